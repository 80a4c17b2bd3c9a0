package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Role represents user roles in the system
type Role string

const (
	RoleAdmin  Role = "admin"
	RoleOwner  Role = "owner"
	RoleViewer Role = "viewer"
)

// Preferences controls how and when the agent contacts a user
type Preferences struct {
	NotificationHour   int      `bson:"notification_hour" json:"notification_hour"` // 0-23, UTC
	MaxTravelMiles     float64  `bson:"max_travel_miles" json:"max_travel_miles"`
	BudgetPreference   string   `bson:"budget_preference" json:"budget_preference"` // "low", "moderate", "premium"
	PreferredShopTypes []string `bson:"preferred_shop_types" json:"preferred_shop_types"`
}

// DefaultPreferences is used for users who never set any.
func DefaultPreferences() Preferences {
	return Preferences{
		NotificationHour:   9,
		MaxTravelMiles:     25,
		BudgetPreference:   "moderate",
		PreferredShopTypes: []string{"chain", "independent"},
	}
}

// User represents a vehicle owner or staff member
type User struct {
	ID           primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Email        string             `bson:"email" json:"email"`
	Phone        string             `bson:"phone" json:"phone"`
	Role         Role               `bson:"role" json:"role"`
	FirstName    string             `bson:"first_name" json:"first_name"`
	LastName     string             `bson:"last_name" json:"last_name"`
	IsActive     bool               `bson:"is_active" json:"is_active"`
	HomeLocation *Location          `bson:"home_location,omitempty" json:"home_location,omitempty"`
	Preferences  *Preferences       `bson:"preferences,omitempty" json:"preferences,omitempty"`
	CreatedAt    time.Time          `bson:"created_at" json:"created_at"`
	UpdatedAt    time.Time          `bson:"updated_at" json:"updated_at"`
}

// EffectivePreferences returns the user's preferences or the defaults.
func (u *User) EffectivePreferences() Preferences {
	if u.Preferences == nil {
		return DefaultPreferences()
	}
	p := *u.Preferences
	if p.NotificationHour < 0 || p.NotificationHour > 23 {
		p.NotificationHour = DefaultPreferences().NotificationHour
	}
	if p.MaxTravelMiles <= 0 {
		p.MaxTravelMiles = DefaultPreferences().MaxTravelMiles
	}
	return p
}

// Owner is an active user together with the vehicles they own
type Owner struct {
	User     User      `json:"user"`
	Vehicles []Vehicle `json:"vehicles"`
}

// Claims represents JWT claims
type Claims struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
	Role   Role   `json:"role"`
	Exp    int64  `json:"exp"`
}

// IsValidRole checks if a role is valid
func IsValidRole(role Role) bool {
	switch role {
	case RoleAdmin, RoleOwner, RoleViewer:
		return true
	default:
		return false
	}
}

// HasPermission checks if a user has permission for a specific action
func (u *User) HasPermission(action string) bool {
	switch u.Role {
	case RoleAdmin:
		return true
	case RoleOwner:
		return action == "view_maintenance" || action == "record_service" ||
			action == "update_mileage" || action == "find_shops" || action == "request_diagnosis"
	case RoleViewer:
		return action == "view_maintenance" || action == "find_shops"
	default:
		return false
	}
}
