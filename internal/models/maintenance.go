package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ServiceRecord represents a completed maintenance event for a vehicle.
type ServiceRecord struct {
	ID               primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	VehicleID        primitive.ObjectID `json:"vehicle_id" bson:"vehicle_id"`
	ServiceType      string             `json:"service_type" bson:"service_type"` // "oil_change", "brake_inspection", "tire_rotation", ...
	DatePerformed    time.Time          `json:"date_performed" bson:"date_performed"`
	MileageAtService int                `json:"mileage_at_service" bson:"mileage_at_service"`
	Cost             float64            `json:"cost" bson:"cost"` // in USD
	ShopName         string             `json:"shop_name" bson:"shop_name"`
	Notes            string             `json:"notes" bson:"notes"`
	CreatedAt        time.Time          `json:"created_at" bson:"created_at"`
}
