package db

import (
	"context"
	"fmt"

	"github.com/ukydev/carbuddy/internal/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

// Store groups the collections the service works with.
type Store struct {
	Vehicles      VehicleCollection
	Maintenance   MaintenanceCollection
	Users         UserCollection
	Notifications NotificationCollection
	Actions       ActionCollection
}

// NewStore wires every collection of database.
func NewStore(database *mongo.Database) *Store {
	return &Store{
		Vehicles:      &MongoVehicleCollection{Collection: database.Collection(VehiclesCollection)},
		Maintenance:   &MongoMaintenanceCollection{Collection: database.Collection(MaintenanceRecords)},
		Users:         &MongoUserCollection{Collection: database.Collection(UsersCollection)},
		Notifications: &MongoNotificationCollection{Collection: database.Collection(NotificationsCollection)},
		Actions:       &MongoActionCollection{Collection: database.Collection(AgentActionsCollection)},
	}
}

// GetMaintenanceHistory returns a vehicle's service history, newest first.
func (s *Store) GetMaintenanceHistory(ctx context.Context, vehicleID string) ([]models.ServiceRecord, error) {
	records, err := s.Maintenance.FindHistory(ctx, vehicleID)
	if err != nil {
		return nil, fmt.Errorf("db: failed to load history for %s: %w", vehicleID, err)
	}
	return records, nil
}

// GetActiveVehicleOwners returns every active user together with their
// vehicles. Users without vehicles are omitted.
func (s *Store) GetActiveVehicleOwners(ctx context.Context) ([]models.Owner, error) {
	users, err := s.Users.FindActiveUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("db: failed to load active users: %w", err)
	}
	if len(users) == 0 {
		return nil, nil
	}

	ids := make([]primitive.ObjectID, 0, len(users))
	for _, u := range users {
		ids = append(ids, u.ID)
	}
	vehicles, err := s.Vehicles.FindVehiclesByOwners(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("db: failed to load vehicles: %w", err)
	}

	byOwner := make(map[primitive.ObjectID][]models.Vehicle, len(users))
	for _, v := range vehicles {
		byOwner[v.OwnerID] = append(byOwner[v.OwnerID], v)
	}

	owners := make([]models.Owner, 0, len(users))
	for _, u := range users {
		vs := byOwner[u.ID]
		if len(vs) == 0 {
			continue
		}
		owners = append(owners, models.Owner{User: u, Vehicles: vs})
	}
	return owners, nil
}
