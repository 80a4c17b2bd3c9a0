package models

import (
	"testing"
)

func TestIsValidRole(t *testing.T) {
	tests := []struct {
		name     string
		role     Role
		expected bool
	}{
		{"admin role", RoleAdmin, true},
		{"owner role", RoleOwner, true},
		{"viewer role", RoleViewer, true},
		{"invalid role", "invalid", false},
		{"empty role", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := IsValidRole(tt.role)
			if result != tt.expected {
				t.Errorf("IsValidRole(%s) = %v, want %v", tt.role, result, tt.expected)
			}
		})
	}
}

func TestUser_HasPermission(t *testing.T) {
	admin := &User{Role: RoleAdmin}
	owner := &User{Role: RoleOwner}
	viewer := &User{Role: RoleViewer}
	unknown := &User{Role: "mechanic"}

	tests := []struct {
		name     string
		user     *User
		action   string
		expected bool
	}{
		{"admin can do anything", admin, "delete_vehicle", true},
		{"admin can record service", admin, "record_service", true},

		{"owner can view maintenance", owner, "view_maintenance", true},
		{"owner can record service", owner, "record_service", true},
		{"owner can update mileage", owner, "update_mileage", true},
		{"owner can find shops", owner, "find_shops", true},
		{"owner can request diagnosis", owner, "request_diagnosis", true},
		{"owner cannot delete vehicle", owner, "delete_vehicle", false},

		{"viewer can view maintenance", viewer, "view_maintenance", true},
		{"viewer can find shops", viewer, "find_shops", true},
		{"viewer cannot record service", viewer, "record_service", false},
		{"viewer cannot update mileage", viewer, "update_mileage", false},
		{"viewer cannot request diagnosis", viewer, "request_diagnosis", false},

		{"unknown role has no permissions", unknown, "view_maintenance", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := tt.user.HasPermission(tt.action)
			if result != tt.expected {
				t.Errorf("User with role %s HasPermission(%s) = %v, want %v",
					tt.user.Role, tt.action, result, tt.expected)
			}
		})
	}
}

func TestUser_EffectivePreferences(t *testing.T) {
	u := &User{}
	p := u.EffectivePreferences()
	if p.NotificationHour != 9 {
		t.Errorf("Expected default notification hour 9, got %d", p.NotificationHour)
	}
	if p.MaxTravelMiles != 25 {
		t.Errorf("Expected default travel distance 25, got %f", p.MaxTravelMiles)
	}

	u.Preferences = &Preferences{NotificationHour: 30, MaxTravelMiles: 0, BudgetPreference: "low"}
	p = u.EffectivePreferences()
	if p.NotificationHour != 9 {
		t.Errorf("Expected out-of-range hour to fall back to 9, got %d", p.NotificationHour)
	}
	if p.MaxTravelMiles != 25 {
		t.Errorf("Expected zero distance to fall back to 25, got %f", p.MaxTravelMiles)
	}
	if p.BudgetPreference != "low" {
		t.Errorf("Expected budget preference to be kept, got %s", p.BudgetPreference)
	}

	u.Preferences = &Preferences{NotificationHour: 18, MaxTravelMiles: 10}
	p = u.EffectivePreferences()
	if p.NotificationHour != 18 || p.MaxTravelMiles != 10 {
		t.Errorf("Expected explicit preferences to be kept, got %+v", p)
	}
}

func TestVehicle_DisplayName(t *testing.T) {
	v := Vehicle{Year: 2019, Make: "Honda", Model: "Civic"}
	if got := v.DisplayName(); got != "2019 Honda Civic" {
		t.Errorf("DisplayName() = %q, want %q", got, "2019 Honda Civic")
	}
}
