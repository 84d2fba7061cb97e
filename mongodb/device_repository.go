package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"go.pilab.hu/trustgate/domain"
	trusterrors "go.pilab.hu/trustgate/errors"
)

// DeviceRepositoryMongo implements domain.DeviceRepository using MongoDB.
type DeviceRepositoryMongo struct {
	collection *mongo.Collection
}

// NewDeviceRepositoryMongo creates the repository and ensures its indexes.
func NewDeviceRepositoryMongo(ctx context.Context, db *mongo.Database) (domain.DeviceRepository, error) {
	repo := &DeviceRepositoryMongo{
		collection: db.Collection(DevicesCollection),
	}

	indexModels := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "user_id", Value: 1}},
			Options: options.Index(), // A user owns many devices.
		},
		{
			Keys:    bson.D{{Key: "user_id", Value: 1}, {Key: "registered_at", Value: -1}},
			Options: options.Index(),
		},
	}

	if _, err := repo.collection.Indexes().CreateMany(ctx, indexModels); err != nil {
		log.Warn().Err(err).Msg("Issue creating indexes for trusted_devices collection (might already exist)")
	}

	return repo, nil
}

// RegisterDevice stores a new device record.
func (r *DeviceRepositoryMongo) RegisterDevice(ctx context.Context, device *domain.Device) error {
	if device.ID == "" {
		return errors.New("device id is required")
	}
	if device.RegisteredAt.IsZero() {
		device.RegisteredAt = time.Now().UTC()
	}

	if _, err := r.collection.InsertOne(ctx, device); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("device %s already registered", device.ID)
		}
		log.Error().Err(err).Str("device_id", device.ID).Msg("Error storing device in MongoDB")
		return err
	}
	return nil
}

// GetDeviceByID retrieves a device record by its id.
func (r *DeviceRepositoryMongo) GetDeviceByID(ctx context.Context, id string) (*domain.Device, error) {
	var device domain.Device
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&device)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, trusterrors.ErrDeviceNotFound
		}
		log.Error().Err(err).Str("device_id", id).Msg("Error getting device from MongoDB")
		return nil, err
	}
	return &device, nil
}

// ListDevicesByUser returns all devices registered to a user, most recent
// first.
func (r *DeviceRepositoryMongo) ListDevicesByUser(ctx context.Context, userID string) ([]*domain.Device, error) {
	opts := options.Find().SetSort(bson.D{{Key: "registered_at", Value: -1}})
	cursor, err := r.collection.Find(ctx, bson.M{"user_id": userID}, opts)
	if err != nil {
		log.Error().Err(err).Str("user_id", userID).Msg("Error listing devices from MongoDB")
		return nil, err
	}
	defer cursor.Close(ctx)

	var devices []*domain.Device
	if err := cursor.All(ctx, &devices); err != nil {
		return nil, err
	}
	return devices, nil
}

// RevokeDevice sets revoked_at if it is still null. The filter guarantees
// the null -> set transition happens at most once; a second revoke finds no
// matching document and returns the stored record unchanged.
func (r *DeviceRepositoryMongo) RevokeDevice(ctx context.Context, id string, at time.Time) (*domain.Device, error) {
	filter := bson.M{"_id": id, "revoked_at": bson.M{"$exists": false}}
	update := bson.M{"$set": bson.M{"revoked_at": at.UTC()}}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var device domain.Device
	err := r.collection.FindOneAndUpdate(ctx, filter, update, opts).Decode(&device)
	if err == nil {
		log.Info().Str("device_id", id).Time("revoked_at", at).Msg("Device revoked")
		return &device, nil
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		log.Error().Err(err).Str("device_id", id).Msg("Error revoking device in MongoDB")
		return nil, err
	}

	// Either the device does not exist or it is already revoked.
	return r.GetDeviceByID(ctx, id)
}
