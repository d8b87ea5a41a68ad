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

// MongoOrderRepository keeps each order twice: once under the buyer and
// once under the seller. Both copies share the same id.
type MongoOrderRepository struct {
	buyers  *mongo.Collection
	sellers *mongo.Collection
}

var _ OrderRepository = (*MongoOrderRepository)(nil)

func NewMongoOrderRepository(db *mongo.Database) *MongoOrderRepository {
	return &MongoOrderRepository{
		buyers:  db.Collection("buyer_orders"),
		sellers: db.Collection("seller_orders"),
	}
}

func (m *MongoOrderRepository) collection(p domain.Partition) *mongo.Collection {
	if p == domain.PartitionSeller {
		return m.sellers
	}
	return m.buyers
}

func ownerField(p domain.Partition) string {
	if p == domain.PartitionSeller {
		return "seller_id"
	}
	return "buyer_id"
}

func (m *MongoOrderRepository) UpsertOrder(ctx context.Context, p domain.Partition, order *domain.Order) (bool, error) {
	raw, err := bson.Marshal(order)
	if err != nil {
		return false, fmt.Errorf("failed to encode order: %w", err)
	}
	var doc bson.M
	if err := bson.Unmarshal(raw, &doc); err != nil {
		return false, fmt.Errorf("failed to encode order: %w", err)
	}
	delete(doc, "_id")

	// $setOnInsert makes a second write with the same id a no-op
	result, err := m.collection(p).UpdateOne(ctx,
		bson.M{"_id": order.ID},
		bson.M{"$setOnInsert": doc},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return false, fmt.Errorf("failed to upsert %s order: %w", p, err)
	}

	return result.UpsertedCount == 1, nil
}

func (m *MongoOrderRepository) GetOrder(ctx context.Context, p domain.Partition, ownerID, orderID string) (*domain.Order, error) {
	var order domain.Order

	filter := bson.M{"_id": orderID, ownerField(p): ownerID}
	err := m.collection(p).FindOne(ctx, filter).Decode(&order)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("failed to get order: %w", err)
	}
	return &order, nil
}

func (m *MongoOrderRepository) ListOrders(ctx context.Context, p domain.Partition, ownerID string) ([]*domain.Order, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})

	cursor, err := m.collection(p).Find(ctx, bson.M{ownerField(p): ownerID}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}
	defer cursor.Close(ctx)

	orders := make([]*domain.Order, 0)
	if err := cursor.All(ctx, &orders); err != nil {
		return nil, fmt.Errorf("failed to decode orders: %w", err)
	}
	return orders, nil
}

func (m *MongoOrderRepository) MarkDelivered(ctx context.Context, p domain.Partition, ownerID, orderID string) (*domain.Order, bool, error) {
	filter := bson.M{
		"_id":         orderID,
		ownerField(p): ownerID,
		"status":      domain.OrderStatusPending,
	}
	update := bson.M{
		"$set": bson.M{
			"status":     domain.OrderStatusDelivered,
			"updated_at": time.Now(),
		},
	}

	var order domain.Order
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	err := m.collection(p).FindOneAndUpdate(ctx, filter, update, opts).Decode(&order)
	if err == nil {
		return &order, true, nil
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return nil, false, fmt.Errorf("failed to mark order delivered: %w", err)
	}

	// Either already delivered or not this owner's order
	existing, err := m.GetOrder(ctx, p, ownerID, orderID)
	if err != nil {
		return nil, false, err
	}
	return existing, false, nil
}

func (m *MongoOrderRepository) CreateIndexes(ctx context.Context) error {
	for _, p := range []domain.Partition{domain.PartitionBuyer, domain.PartitionSeller} {
		index := mongo.IndexModel{
			Keys: bson.D{{Key: ownerField(p), Value: 1}, {Key: "created_at", Value: -1}},
		}
		if _, err := m.collection(p).Indexes().CreateOne(ctx, index); err != nil {
			return fmt.Errorf("failed to create %s order indexes: %w", p, err)
		}
	}
	return nil
}
