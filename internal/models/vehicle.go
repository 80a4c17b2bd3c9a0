package models

import (
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Vehicle represents a car tracked for maintenance.
type Vehicle struct {
	ID             primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	OwnerID        primitive.ObjectID `bson:"owner_id" json:"owner_id"`
	Make           string             `bson:"make" json:"make"`
	Model          string             `bson:"model" json:"model"`
	Year           int                `bson:"year" json:"year"`
	VIN            string             `bson:"vin" json:"vin"`
	CurrentMileage int                `bson:"current_mileage" json:"current_mileage"` // in miles, never decreases
	Status         string             `bson:"status" json:"status"`                   // "active" or "inactive"
	CreatedAt      time.Time          `bson:"created_at" json:"created_at"`
	UpdatedAt      time.Time          `bson:"updated_at" json:"updated_at"`
}

// DisplayName renders the vehicle as "2019 Honda Civic".
func (v Vehicle) DisplayName() string {
	return fmt.Sprintf("%d %s %s", v.Year, v.Make, v.Model)
}

// MileageReading is an odometer update submitted for a vehicle.
type MileageReading struct {
	Mileage int `json:"mileage"`
}
