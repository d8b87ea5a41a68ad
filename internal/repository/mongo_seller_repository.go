package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fjod/book_market/internal/domain"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoSellerRepository owns the sellers collection: one document per seller
// holding the pending-order set and the shop profile.
type MongoSellerRepository struct {
	collection *mongo.Collection
}

var (
	_ CounterRepository = (*MongoSellerRepository)(nil)
	_ SellerRepository  = (*MongoSellerRepository)(nil)
)

func NewMongoSellerRepository(db *mongo.Database) *MongoSellerRepository {
	return &MongoSellerRepository{
		collection: db.Collection("sellers"),
	}
}

func (m *MongoSellerRepository) AddPending(ctx context.Context, sellerID, orderID string) (bool, error) {
	filter := bson.M{
		"_id":            sellerID,
		"pending_orders": bson.M{"$ne": orderID},
	}
	update := bson.M{
		"$addToSet": bson.M{"pending_orders": orderID},
		"$inc":      bson.M{"pending": 1},
		"$set":      bson.M{"updated_at": time.Now()},
	}

	result, err := m.collection.UpdateOne(ctx, filter, update, options.Update().SetUpsert(true))
	if mongo.IsDuplicateKeyError(err) {
		// The seller exists and either counts the order already or was
		// created by a concurrent upsert; retry as a plain update.
		result, err = m.collection.UpdateOne(ctx, filter, update)
	}
	if err != nil {
		return false, fmt.Errorf("failed to count pending order: %w", err)
	}
	return result.ModifiedCount == 1 || result.UpsertedCount == 1, nil
}

func (m *MongoSellerRepository) RemovePending(ctx context.Context, sellerID, orderID string) (bool, error) {
	filter := bson.M{
		"_id":            sellerID,
		"pending_orders": orderID,
	}
	update := bson.M{
		"$pull": bson.M{"pending_orders": orderID},
		"$inc":  bson.M{"pending": -1},
		"$set":  bson.M{"updated_at": time.Now()},
	}

	result, err := m.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return false, fmt.Errorf("failed to release pending order: %w", err)
	}
	return result.ModifiedCount == 1, nil
}

func (m *MongoSellerRepository) Get(ctx context.Context, sellerID string) (*domain.SellerCounters, error) {
	var counters domain.SellerCounters

	opts := options.FindOne().SetProjection(bson.M{"pending": 1, "updated_at": 1})
	err := m.collection.FindOne(ctx, bson.M{"_id": sellerID}, opts).Decode(&counters)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return &domain.SellerCounters{SellerID: sellerID}, nil
		}
		return nil, fmt.Errorf("failed to get seller counters: %w", err)
	}
	return &counters, nil
}

func (m *MongoSellerRepository) GetProfile(ctx context.Context, sellerID string) (*domain.SellerProfile, error) {
	var doc struct {
		Profile *domain.SellerProfile `bson:"profile"`
	}

	opts := options.FindOne().SetProjection(bson.M{"profile": 1})
	err := m.collection.FindOne(ctx, bson.M{"_id": sellerID}, opts).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrSellerNotFound
		}
		return nil, fmt.Errorf("failed to get seller profile: %w", err)
	}
	if doc.Profile == nil {
		return nil, ErrSellerNotFound
	}
	doc.Profile.SellerID = sellerID
	return doc.Profile, nil
}

func (m *MongoSellerRepository) SaveProfile(ctx context.Context, profile *domain.SellerProfile) error {
	update := bson.M{
		"$set": bson.M{
			"profile":    profile,
			"updated_at": time.Now(),
		},
	}

	_, err := m.collection.UpdateOne(ctx, bson.M{"_id": profile.SellerID}, update, options.Update().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("failed to save seller profile: %w", err)
	}
	return nil
}
