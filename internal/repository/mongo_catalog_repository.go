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

const defaultCatalogLimit = 50

type MongoCatalogRepository struct {
	collection *mongo.Collection
}

var _ CatalogRepository = (*MongoCatalogRepository)(nil)

func NewMongoCatalogRepository(db *mongo.Database) *MongoCatalogRepository {
	return &MongoCatalogRepository{
		collection: db.Collection("books"),
	}
}

func (m *MongoCatalogRepository) GetBook(ctx context.Context, id string) (*domain.Book, error) {
	var book domain.Book

	err := m.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&book)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrBookNotFound
		}
		return nil, fmt.Errorf("failed to get book: %w", err)
	}

	return &book, nil
}

func (m *MongoCatalogRepository) ListBooks(ctx context.Context, f domain.CatalogFilter) ([]*domain.Book, error) {
	filter := bson.M{}
	if f.Category != "" {
		filter["category"] = f.Category
	}
	if f.SellerID != "" {
		filter["seller_id"] = f.SellerID
	}
	price := bson.M{}
	if f.MinPrice != nil {
		price["$gte"] = *f.MinPrice
	}
	if f.MaxPrice != nil {
		price["$lte"] = *f.MaxPrice
	}
	if len(price) > 0 {
		filter["price"] = price
	}

	limit := f.Limit
	if limit <= 0 {
		limit = defaultCatalogLimit
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetLimit(limit)

	cursor, err := m.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list books: %w", err)
	}
	defer cursor.Close(ctx)

	books := make([]*domain.Book, 0)
	if err := cursor.All(ctx, &books); err != nil {
		return nil, fmt.Errorf("failed to decode books: %w", err)
	}

	return books, nil
}

func (m *MongoCatalogRepository) CreateBook(ctx context.Context, book *domain.Book) error {
	_, err := m.collection.InsertOne(ctx, book)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrListingExists
		}
		return fmt.Errorf("failed to create book: %w", err)
	}
	return nil
}

func (m *MongoCatalogRepository) UpdatePrice(ctx context.Context, sellerID, id string, price int64) error {
	filter := bson.M{"_id": id, "seller_id": sellerID}
	update := bson.M{
		"$set": bson.M{
			"price":      price,
			"updated_at": time.Now(),
		},
	}

	result, err := m.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("failed to update price: %w", err)
	}
	if result.MatchedCount == 0 {
		return ErrBookNotFound
	}
	return nil
}

func (m *MongoCatalogRepository) DeleteBook(ctx context.Context, sellerID, id string) error {
	result, err := m.collection.DeleteOne(ctx, bson.M{"_id": id, "seller_id": sellerID})
	if err != nil {
		return fmt.Errorf("failed to delete book: %w", err)
	}
	if result.DeletedCount == 0 {
		return ErrBookNotFound
	}
	return nil
}

func (m *MongoCatalogRepository) CreateIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "seller_id", Value: 1}, {Key: "created_at", Value: -1}}},
		{Keys: bson.D{{Key: "category", Value: 1}, {Key: "price", Value: 1}}},
	}

	_, err := m.collection.Indexes().CreateMany(ctx, indexes)
	if err != nil {
		return fmt.Errorf("failed to create catalog indexes: %w", err)
	}
	return nil
}
