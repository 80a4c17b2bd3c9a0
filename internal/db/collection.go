package db

import (
	"context"
	"time"

	"github.com/ukydev/carbuddy/internal/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// VehicleCollection defines the interface for vehicle data operations.
type VehicleCollection interface {
	InsertVehicle(ctx context.Context, vehicle models.Vehicle) (primitive.ObjectID, error)
	FindVehicleByID(ctx context.Context, id string) (*models.Vehicle, error)
	FindVehiclesByOwners(ctx context.Context, ownerIDs []primitive.ObjectID) ([]models.Vehicle, error)
	UpdateMileage(ctx context.Context, id string, mileage int) error
}

// MaintenanceCollection defines the interface for service history operations.
type MaintenanceCollection interface {
	InsertRecord(ctx context.Context, record models.ServiceRecord) (primitive.ObjectID, error)
	FindHistory(ctx context.Context, vehicleID string) ([]models.ServiceRecord, error)
}

// UserCollection defines the interface for user operations.
type UserCollection interface {
	InsertUser(ctx context.Context, user models.User) (primitive.ObjectID, error)
	FindUserByID(ctx context.Context, id string) (*models.User, error)
	FindActiveUsers(ctx context.Context) ([]models.User, error)
}

// NotificationCollection defines the interface for stored notifications.
type NotificationCollection interface {
	InsertNotification(ctx context.Context, n models.Notification) (primitive.ObjectID, error)
	FindDue(ctx context.Context, now time.Time, limit int64) ([]models.Notification, error)
	UpdateStatus(ctx context.Context, id primitive.ObjectID, status, errMsg string, at time.Time) error
	CountByStatus(ctx context.Context, since time.Time) (map[string]int, error)
}

// ActionCollection defines the interface for the agent's audit log.
type ActionCollection interface {
	InsertAction(ctx context.Context, action models.AgentAction) error
	CountByType(ctx context.Context, since time.Time) (map[string]int, error)
}
