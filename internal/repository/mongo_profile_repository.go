package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/fjod/book_market/internal/domain"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type MongoAddressRepository struct {
	collection *mongo.Collection
}

var _ AddressRepository = (*MongoAddressRepository)(nil)

func NewMongoAddressRepository(db *mongo.Database) *MongoAddressRepository {
	return &MongoAddressRepository{
		collection: db.Collection("addresses"),
	}
}

func (m *MongoAddressRepository) List(ctx context.Context, userID string) ([]*domain.Address, error) {
	opts := options.Find().SetSort(bson.D{{Key: "label", Value: 1}})

	cursor, err := m.collection.Find(ctx, bson.M{"user_id": userID}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list addresses: %w", err)
	}
	defer cursor.Close(ctx)

	addresses := make([]*domain.Address, 0)
	if err := cursor.All(ctx, &addresses); err != nil {
		return nil, fmt.Errorf("failed to decode addresses: %w", err)
	}
	return addresses, nil
}

func (m *MongoAddressRepository) Get(ctx context.Context, userID, id string) (*domain.Address, error) {
	var address domain.Address

	err := m.collection.FindOne(ctx, bson.M{"_id": id, "user_id": userID}).Decode(&address)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrAddressNotFound
		}
		return nil, fmt.Errorf("failed to get address: %w", err)
	}
	return &address, nil
}

func (m *MongoAddressRepository) Save(ctx context.Context, address *domain.Address) error {
	_, err := m.collection.ReplaceOne(ctx,
		bson.M{"_id": address.ID},
		address,
		options.Replace().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("failed to save address: %w", err)
	}
	return nil
}

func (m *MongoAddressRepository) Delete(ctx context.Context, userID, id string) error {
	result, err := m.collection.DeleteOne(ctx, bson.M{"_id": id, "user_id": userID})
	if err != nil {
		return fmt.Errorf("failed to delete address: %w", err)
	}
	if result.DeletedCount == 0 {
		return ErrAddressNotFound
	}
	return nil
}

func (m *MongoAddressRepository) CreateIndexes(ctx context.Context) error {
	_, err := m.collection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "user_id", Value: 1}},
	})
	if err != nil {
		return fmt.Errorf("failed to create address indexes: %w", err)
	}
	return nil
}

type MongoWishlistRepository struct {
	collection *mongo.Collection
}

var _ WishlistRepository = (*MongoWishlistRepository)(nil)

func NewMongoWishlistRepository(db *mongo.Database) *MongoWishlistRepository {
	return &MongoWishlistRepository{
		collection: db.Collection("wishlists"),
	}
}

func (m *MongoWishlistRepository) List(ctx context.Context, userID string) ([]*domain.WishlistItem, error) {
	opts := options.Find().SetSort(bson.D{{Key: "added_at", Value: -1}})

	cursor, err := m.collection.Find(ctx, bson.M{"user_id": userID}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list wishlist: %w", err)
	}
	defer cursor.Close(ctx)

	items := make([]*domain.WishlistItem, 0)
	if err := cursor.All(ctx, &items); err != nil {
		return nil, fmt.Errorf("failed to decode wishlist: %w", err)
	}
	return items, nil
}

func (m *MongoWishlistRepository) Contains(ctx context.Context, userID, bookID string) (bool, error) {
	n, err := m.collection.CountDocuments(ctx, bson.M{"user_id": userID, "book_id": bookID})
	if err != nil {
		return false, fmt.Errorf("failed to check wishlist: %w", err)
	}
	return n > 0, nil
}

func (m *MongoWishlistRepository) Add(ctx context.Context, item *domain.WishlistItem) error {
	_, err := m.collection.ReplaceOne(ctx,
		bson.M{"user_id": item.UserID, "book_id": item.BookID},
		item,
		options.Replace().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("failed to add wishlist item: %w", err)
	}
	return nil
}

func (m *MongoWishlistRepository) Remove(ctx context.Context, userID, bookID string) error {
	result, err := m.collection.DeleteOne(ctx, bson.M{"user_id": userID, "book_id": bookID})
	if err != nil {
		return fmt.Errorf("failed to remove wishlist item: %w", err)
	}
	if result.DeletedCount == 0 {
		return ErrWishlistItemNotFound
	}
	return nil
}

func (m *MongoWishlistRepository) CreateIndexes(ctx context.Context) error {
	_, err := m.collection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "user_id", Value: 1}, {Key: "book_id", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("failed to create wishlist indexes: %w", err)
	}
	return nil
}
