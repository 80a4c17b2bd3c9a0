package db

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ukydev/carbuddy/internal/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

func TestConnectMongo_BadURI(t *testing.T) {
	client, err := ConnectMongo(context.Background(), "mongodb://bad:uri")
	if err == nil {
		t.Error("expected error for bad URI, got nil")
	}
	if client != nil {
		t.Error("expected nil client on error")
	}
}

func TestCollections_NilCollection(t *testing.T) {
	ctx := context.Background()
	id := primitive.NewObjectID().Hex()

	_, err := (&MongoVehicleCollection{}).InsertVehicle(ctx, models.Vehicle{})
	assert.ErrorIs(t, err, errNilCollection)
	_, err = (&MongoVehicleCollection{}).FindVehicleByID(ctx, id)
	assert.ErrorIs(t, err, errNilCollection)
	assert.ErrorIs(t, (&MongoVehicleCollection{}).UpdateMileage(ctx, id, 10), errNilCollection)

	_, err = (&MongoMaintenanceCollection{}).FindHistory(ctx, id)
	assert.ErrorIs(t, err, errNilCollection)
	_, err = (&MongoUserCollection{}).FindActiveUsers(ctx)
	assert.ErrorIs(t, err, errNilCollection)
	_, err = (&MongoNotificationCollection{}).FindDue(ctx, time.Now(), 10)
	assert.ErrorIs(t, err, errNilCollection)
	assert.ErrorIs(t, (&MongoActionCollection{}).InsertAction(ctx, models.AgentAction{}), errNilCollection)
}

func TestCollections_InvalidID(t *testing.T) {
	coll := &MongoVehicleCollection{Collection: &mongo.Collection{}}
	_, err := coll.FindVehicleByID(context.Background(), "not-an-id")
	assert.Error(t, err)
}

// integrationDB connects to MONGO_URI or skips the test.
func integrationDB(t *testing.T) *mongo.Database {
	t.Helper()
	uri := os.Getenv("MONGO_URI")
	if uri == "" {
		t.Skip("MONGO_URI not set, skipping integration test")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	client, err := ConnectMongo(ctx, uri)
	if err != nil {
		t.Skipf("failed to connect: %v, skipping integration test", err)
	}
	t.Cleanup(func() { _ = client.Disconnect(context.Background()) })

	database := client.Database("carbuddy_test")
	require.NoError(t, database.Drop(context.Background()))
	return database
}

func TestStore_Integration(t *testing.T) {
	database := integrationDB(t)
	store := NewStore(database)
	ctx := context.Background()

	ownerID, err := store.Users.InsertUser(ctx, models.User{Email: "dana@example.com", Role: models.RoleOwner})
	require.NoError(t, err)
	vehicleID, err := store.Vehicles.InsertVehicle(ctx, models.Vehicle{
		OwnerID: ownerID, Make: "Honda", Model: "Civic", Year: 2019, CurrentMileage: 42000,
	})
	require.NoError(t, err)

	for _, days := range []int{200, 20} {
		_, err := store.Maintenance.InsertRecord(ctx, models.ServiceRecord{
			VehicleID:        vehicleID,
			ServiceType:      "oil_change",
			DatePerformed:    time.Now().AddDate(0, 0, -days),
			MileageAtService: 42000 - days*10,
		})
		require.NoError(t, err)
	}

	history, err := store.GetMaintenanceHistory(ctx, vehicleID.Hex())
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.True(t, history[0].DatePerformed.After(history[1].DatePerformed))

	owners, err := store.GetActiveVehicleOwners(ctx)
	require.NoError(t, err)
	require.Len(t, owners, 1)
	assert.Equal(t, "Civic", owners[0].Vehicles[0].Model)

	require.NoError(t, store.Vehicles.UpdateMileage(ctx, vehicleID.Hex(), 43000))
	err = store.Vehicles.UpdateMileage(ctx, vehicleID.Hex(), 100)
	assert.True(t, errors.Is(err, ErrMileageRegression))
	err = store.Vehicles.UpdateMileage(ctx, primitive.NewObjectID().Hex(), 100)
	assert.True(t, errors.Is(err, ErrNotFound))

	due := time.Now().Add(-time.Minute)
	nid, err := store.Notifications.InsertNotification(ctx, models.Notification{
		UserID: ownerID.Hex(), Message: "oil", Status: models.NotificationPending, SendAt: due,
	})
	require.NoError(t, err)
	pending, err := store.Notifications.FindDue(ctx, time.Now(), 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	require.NoError(t, store.Notifications.UpdateStatus(ctx, nid, models.NotificationSent, "", time.Now()))
	pending, err = store.Notifications.FindDue(ctx, time.Now(), 10)
	require.NoError(t, err)
	assert.Empty(t, pending)

	require.NoError(t, store.Actions.InsertAction(ctx, models.AgentAction{ActionType: "daily_analysis"}))
	counts, err := store.Actions.CountByType(ctx, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, counts["daily_analysis"])
}
