package repository

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type MongoOptions struct {
	URI            string
	Database       string
	ConnectTimeout time.Duration
	MaxPoolSize    uint64
}

func ConnectMongoDB(ctx context.Context, opts MongoOptions) (*mongo.Database, error) {
	if opts.ConnectTimeout == 0 {
		opts.ConnectTimeout = 10 * time.Second
	}
	if opts.MaxPoolSize == 0 {
		opts.MaxPoolSize = 100
	}

	clientOpts := options.Client().
		ApplyURI(opts.URI).
		SetConnectTimeout(opts.ConnectTimeout).
		SetServerSelectionTimeout(5 * time.Second).
		SetMaxPoolSize(opts.MaxPoolSize).
		SetMinPoolSize(10)

	client, err := mongo.Connect(ctx, clientOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	// Ping to verify connection
	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	return client.Database(opts.Database), nil
}

// Store bundles the MongoDB-backed repositories of the storefront.
type Store struct {
	Carts     *MongoCartRepository
	Catalog   *MongoCatalogRepository
	Orders    *MongoOrderRepository
	Sellers   *MongoSellerRepository
	Addresses *MongoAddressRepository
	Wishlists *MongoWishlistRepository
}

func NewStore(db *mongo.Database) *Store {
	return &Store{
		Carts:     NewMongoCartRepository(db),
		Catalog:   NewMongoCatalogRepository(db),
		Orders:    NewMongoOrderRepository(db),
		Sellers:   NewMongoSellerRepository(db),
		Addresses: NewMongoAddressRepository(db),
		Wishlists: NewMongoWishlistRepository(db),
	}
}

func (s *Store) CreateIndexes(ctx context.Context) error {
	indexers := []interface {
		CreateIndexes(ctx context.Context) error
	}{s.Carts, s.Catalog, s.Orders, s.Addresses, s.Wishlists}

	for _, ix := range indexers {
		if err := ix.CreateIndexes(ctx); err != nil {
			return err
		}
	}
	return nil
}
