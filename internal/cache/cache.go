package cache

import (
	"context"
	"errors"

	"github.com/fjod/book_market/internal/domain"
)

// CartCache holds raw carts keyed by buyer. Views are rebuilt from it so a
// catalog price change shows up without invalidating every cart.
//
// Every Delete bumps the buyer's version. A reader takes the Version before
// loading the cart from the store and hands it to Set, which refuses to write
// once the version has moved on.
type CartCache interface {
	Get(ctx context.Context, userID string) (*domain.Cart, error)
	Version(ctx context.Context, userID string) (int64, error)
	Set(ctx context.Context, userID string, cart *domain.Cart, version int64) error
	Delete(ctx context.Context, userID string) error
}

var (
	ErrCacheMiss    = errors.New("cache miss")
	ErrStaleVersion = errors.New("cart changed since it was read")
)

// NopCache always misses. Used when no Redis address is configured.
type NopCache struct{}

func (NopCache) Get(context.Context, string) (*domain.Cart, error) {
	return nil, ErrCacheMiss
}

func (NopCache) Version(context.Context, string) (int64, error) {
	return 0, nil
}

func (NopCache) Set(context.Context, string, *domain.Cart, int64) error {
	return nil
}

func (NopCache) Delete(context.Context, string) error {
	return nil
}
