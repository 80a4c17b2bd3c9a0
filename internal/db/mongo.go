package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ukydev/carbuddy/internal/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Collection names.
const (
	UsersCollection         = "users"
	VehiclesCollection      = "vehicles"
	MaintenanceRecords      = "maintenance_records"
	NotificationsCollection = "notifications"
	AgentActionsCollection  = "agent_actions"
)

var (
	ErrNotFound          = errors.New("document not found")
	ErrMileageRegression = errors.New("mileage is lower than the recorded odometer reading")

	errNilCollection = errors.New("mongo collection is nil")
)

// ConnectMongo connects to MongoDB and verifies the connection with a ping.
func ConnectMongo(ctx context.Context, uri string) (*mongo.Client, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongo.Connect error: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongo.Ping error: %w", err)
	}
	return client, nil
}

func objectID(id string) (primitive.ObjectID, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return primitive.NilObjectID, fmt.Errorf("invalid id %q: %w", id, err)
	}
	return oid, nil
}

func insertedID(res *mongo.InsertOneResult) primitive.ObjectID {
	if oid, ok := res.InsertedID.(primitive.ObjectID); ok {
		return oid
	}
	return primitive.NilObjectID
}

// MongoVehicleCollection implements VehicleCollection for MongoDB.
type MongoVehicleCollection struct {
	Collection *mongo.Collection
}

// InsertVehicle inserts a vehicle record into the collection.
func (c *MongoVehicleCollection) InsertVehicle(ctx context.Context, vehicle models.Vehicle) (primitive.ObjectID, error) {
	if c.Collection == nil {
		return primitive.NilObjectID, errNilCollection
	}
	now := time.Now()
	vehicle.CreatedAt, vehicle.UpdatedAt = now, now
	if vehicle.Status == "" {
		vehicle.Status = "active"
	}
	res, err := c.Collection.InsertOne(ctx, vehicle)
	if err != nil {
		return primitive.NilObjectID, err
	}
	return insertedID(res), nil
}

// FindVehicleByID finds a vehicle by its ID.
func (c *MongoVehicleCollection) FindVehicleByID(ctx context.Context, id string) (*models.Vehicle, error) {
	if c.Collection == nil {
		return nil, errNilCollection
	}
	oid, err := objectID(id)
	if err != nil {
		return nil, err
	}

	var vehicle models.Vehicle
	err = c.Collection.FindOne(ctx, bson.M{"_id": oid}).Decode(&vehicle)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("vehicle %s: %w", id, ErrNotFound)
		}
		return nil, err
	}
	return &vehicle, nil
}

// FindVehiclesByOwners returns the active vehicles of the given owners.
func (c *MongoVehicleCollection) FindVehiclesByOwners(ctx context.Context, ownerIDs []primitive.ObjectID) ([]models.Vehicle, error) {
	if c.Collection == nil {
		return nil, errNilCollection
	}
	if len(ownerIDs) == 0 {
		return nil, nil
	}
	filter := bson.M{
		"owner_id": bson.M{"$in": ownerIDs},
		"status":   bson.M{"$ne": "inactive"},
	}
	cursor, err := c.Collection.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}}))
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var vehicles []models.Vehicle
	if err := cursor.All(ctx, &vehicles); err != nil {
		return nil, err
	}
	return vehicles, nil
}

// UpdateMileage sets the odometer reading. A reading below the stored one is
// rejected with ErrMileageRegression.
func (c *MongoVehicleCollection) UpdateMileage(ctx context.Context, id string, mileage int) error {
	if c.Collection == nil {
		return errNilCollection
	}
	oid, err := objectID(id)
	if err != nil {
		return err
	}

	res, err := c.Collection.UpdateOne(ctx,
		bson.M{"_id": oid, "current_mileage": bson.M{"$lte": mileage}},
		bson.M{"$set": bson.M{"current_mileage": mileage, "updated_at": time.Now()}},
	)
	if err != nil {
		return err
	}
	if res.MatchedCount > 0 {
		return nil
	}

	n, err := c.Collection.CountDocuments(ctx, bson.M{"_id": oid})
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("vehicle %s: %w", id, ErrNotFound)
	}
	return fmt.Errorf("vehicle %s: %w", id, ErrMileageRegression)
}

// MongoMaintenanceCollection implements MaintenanceCollection for MongoDB.
type MongoMaintenanceCollection struct {
	Collection *mongo.Collection
}

// InsertRecord stores a completed service.
func (c *MongoMaintenanceCollection) InsertRecord(ctx context.Context, record models.ServiceRecord) (primitive.ObjectID, error) {
	if c.Collection == nil {
		return primitive.NilObjectID, errNilCollection
	}
	record.CreatedAt = time.Now()
	res, err := c.Collection.InsertOne(ctx, record)
	if err != nil {
		return primitive.NilObjectID, err
	}
	return insertedID(res), nil
}

// FindHistory returns a vehicle's service records, newest first.
func (c *MongoMaintenanceCollection) FindHistory(ctx context.Context, vehicleID string) ([]models.ServiceRecord, error) {
	if c.Collection == nil {
		return nil, errNilCollection
	}
	oid, err := objectID(vehicleID)
	if err != nil {
		return nil, err
	}

	opts := options.Find().SetSort(bson.D{{Key: "date_performed", Value: -1}})
	cursor, err := c.Collection.Find(ctx, bson.M{"vehicle_id": oid}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var records []models.ServiceRecord
	if err := cursor.All(ctx, &records); err != nil {
		return nil, err
	}
	return records, nil
}

// MongoUserCollection implements UserCollection for MongoDB.
type MongoUserCollection struct {
	Collection *mongo.Collection
}

// InsertUser inserts a new user into the database
func (c *MongoUserCollection) InsertUser(ctx context.Context, user models.User) (primitive.ObjectID, error) {
	if c.Collection == nil {
		return primitive.NilObjectID, errNilCollection
	}
	now := time.Now()
	user.CreatedAt, user.UpdatedAt = now, now
	user.IsActive = true

	res, err := c.Collection.InsertOne(ctx, user)
	if err != nil {
		return primitive.NilObjectID, err
	}
	return insertedID(res), nil
}

// FindUserByID finds a user by their ID
func (c *MongoUserCollection) FindUserByID(ctx context.Context, id string) (*models.User, error) {
	if c.Collection == nil {
		return nil, errNilCollection
	}
	oid, err := objectID(id)
	if err != nil {
		return nil, err
	}

	var user models.User
	err = c.Collection.FindOne(ctx, bson.M{"_id": oid}).Decode(&user)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("user %s: %w", id, ErrNotFound)
		}
		return nil, err
	}
	return &user, nil
}

// FindActiveUsers returns every user with is_active set.
func (c *MongoUserCollection) FindActiveUsers(ctx context.Context) ([]models.User, error) {
	if c.Collection == nil {
		return nil, errNilCollection
	}
	cursor, err := c.Collection.Find(ctx, bson.M{"is_active": true})
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var users []models.User
	if err := cursor.All(ctx, &users); err != nil {
		return nil, err
	}
	return users, nil
}

// MongoNotificationCollection implements NotificationCollection for MongoDB.
type MongoNotificationCollection struct {
	Collection *mongo.Collection
}

// InsertNotification stores a notification.
func (c *MongoNotificationCollection) InsertNotification(ctx context.Context, n models.Notification) (primitive.ObjectID, error) {
	if c.Collection == nil {
		return primitive.NilObjectID, errNilCollection
	}
	n.CreatedAt = time.Now()
	res, err := c.Collection.InsertOne(ctx, n)
	if err != nil {
		return primitive.NilObjectID, err
	}
	return insertedID(res), nil
}

// FindDue returns pending notifications whose send time is not after now,
// oldest first.
func (c *MongoNotificationCollection) FindDue(ctx context.Context, now time.Time, limit int64) ([]models.Notification, error) {
	if c.Collection == nil {
		return nil, errNilCollection
	}
	filter := bson.M{
		"status":  models.NotificationPending,
		"send_at": bson.M{"$lte": now},
	}
	opts := options.Find().SetSort(bson.D{{Key: "send_at", Value: 1}})
	if limit > 0 {
		opts.SetLimit(limit)
	}
	cursor, err := c.Collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var out []models.Notification
	if err := cursor.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// UpdateStatus records the delivery outcome of a notification.
func (c *MongoNotificationCollection) UpdateStatus(ctx context.Context, id primitive.ObjectID, status, errMsg string, at time.Time) error {
	if c.Collection == nil {
		return errNilCollection
	}
	set := bson.M{"status": status, "error": errMsg}
	if status == models.NotificationSent {
		set["sent_at"] = at
	}
	res, err := c.Collection.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": set})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("notification %s: %w", id.Hex(), ErrNotFound)
	}
	return nil
}

// CountByStatus counts notifications created since the given time, per status.
func (c *MongoNotificationCollection) CountByStatus(ctx context.Context, since time.Time) (map[string]int, error) {
	if c.Collection == nil {
		return nil, errNilCollection
	}
	return countBy(ctx, c.Collection, "created_at", since, "$status")
}

// MongoActionCollection implements ActionCollection for MongoDB.
type MongoActionCollection struct {
	Collection *mongo.Collection
}

// InsertAction appends an entry to the agent's audit log.
func (c *MongoActionCollection) InsertAction(ctx context.Context, action models.AgentAction) error {
	if c.Collection == nil {
		return errNilCollection
	}
	if action.Timestamp.IsZero() {
		action.Timestamp = time.Now()
	}
	_, err := c.Collection.InsertOne(ctx, action)
	return err
}

// CountByType counts agent actions logged since the given time, per action type.
func (c *MongoActionCollection) CountByType(ctx context.Context, since time.Time) (map[string]int, error) {
	if c.Collection == nil {
		return nil, errNilCollection
	}
	return countBy(ctx, c.Collection, "timestamp", since, "$action_type")
}

func countBy(ctx context.Context, coll *mongo.Collection, timeField string, since time.Time, groupKey string) (map[string]int, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.D{{Key: timeField, Value: bson.D{{Key: "$gte", Value: since}}}}}},
		{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: groupKey},
			{Key: "count", Value: bson.D{{Key: "$sum", Value: 1}}},
		}}},
	}
	cursor, err := coll.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var rows []struct {
		Key   string `bson:"_id"`
		Count int    `bson:"count"`
	}
	if err := cursor.All(ctx, &rows); err != nil {
		return nil, err
	}
	counts := make(map[string]int, len(rows))
	for _, r := range rows {
		counts[r.Key] = r.Count
	}
	return counts, nil
}
