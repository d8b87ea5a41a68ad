package repository

import (
	"context"
	"errors"
	"time"

	"github.com/fjod/book_market/internal/domain"
)

var (
	ErrCartNotFound         = errors.New("cart not found")
	ErrItemNotFound         = errors.New("item not found in cart")
	ErrBookNotFound         = errors.New("book not found")
	ErrListingExists        = errors.New("listing already exists")
	ErrOrderNotFound        = errors.New("order not found")
	ErrAddressNotFound      = errors.New("address not found")
	ErrWishlistItemNotFound = errors.New("book not in wishlist")
	ErrSessionNotFound      = errors.New("checkout session not found")
	ErrSellerNotFound       = errors.New("seller profile not found")
	ErrStaleSession         = errors.New("checkout session state changed concurrently")
)

// CartRepository defines the interface for cart data operations
// Consumers define this interface, not the MongoDB implementation
type CartRepository interface {
	GetCart(ctx context.Context, userID string) (*domain.Cart, error)
	// SetItemQuantity creates or updates a line; a quantity <= 0 removes it.
	SetItemQuantity(ctx context.Context, userID, bookID string, quantity int) error
	RemoveItem(ctx context.Context, userID, bookID string) error
	DeleteCart(ctx context.Context, userID string) error
}

type CatalogRepository interface {
	GetBook(ctx context.Context, id string) (*domain.Book, error)
	ListBooks(ctx context.Context, filter domain.CatalogFilter) ([]*domain.Book, error)
	CreateBook(ctx context.Context, book *domain.Book) error
	UpdatePrice(ctx context.Context, sellerID, id string, price int64) error
	DeleteBook(ctx context.Context, sellerID, id string) error
}

type OrderRepository interface {
	// UpsertOrder stores the copy of order held by partition p. Writing an id
	// that already exists leaves the stored copy untouched and reports false.
	UpsertOrder(ctx context.Context, p domain.Partition, order *domain.Order) (bool, error)
	GetOrder(ctx context.Context, p domain.Partition, ownerID, orderID string) (*domain.Order, error)
	ListOrders(ctx context.Context, p domain.Partition, ownerID string) ([]*domain.Order, error)
	// MarkDelivered moves a pending order to delivered. It returns the stored
	// order and whether this call changed its status.
	MarkDelivered(ctx context.Context, p domain.Partition, ownerID, orderID string) (*domain.Order, bool, error)
}

// CounterRepository keeps a seller's pending count as the set of pending
// order ids, so counting or releasing one order twice changes nothing.
type CounterRepository interface {
	// AddPending counts orderID as pending; false means it already was.
	AddPending(ctx context.Context, sellerID, orderID string) (bool, error)
	// RemovePending releases orderID; false means it was not counted.
	RemovePending(ctx context.Context, sellerID, orderID string) (bool, error)
	Get(ctx context.Context, sellerID string) (*domain.SellerCounters, error)
}

type SellerRepository interface {
	GetProfile(ctx context.Context, sellerID string) (*domain.SellerProfile, error)
	SaveProfile(ctx context.Context, profile *domain.SellerProfile) error
}

type AddressRepository interface {
	List(ctx context.Context, userID string) ([]*domain.Address, error)
	Get(ctx context.Context, userID, id string) (*domain.Address, error)
	Save(ctx context.Context, address *domain.Address) error
	Delete(ctx context.Context, userID, id string) error
}

type WishlistRepository interface {
	List(ctx context.Context, userID string) ([]*domain.WishlistItem, error)
	Contains(ctx context.Context, userID, bookID string) (bool, error)
	Add(ctx context.Context, item *domain.WishlistItem) error
	Remove(ctx context.Context, userID, bookID string) error
}

// SessionRepository persists checkout sessions. UpdateSession is a
// compare-and-set on the state column: it fails with ErrStaleSession when the
// stored state is no longer from.
type SessionRepository interface {
	CreateSession(ctx context.Context, session *domain.CheckoutSession) error
	GetSession(ctx context.Context, buyerID, id string) (*domain.CheckoutSession, error)
	UpdateSession(ctx context.Context, session *domain.CheckoutSession, from domain.CheckoutState) error
	// ListByBuyer returns the buyer's sessions in any of states, newest first.
	ListByBuyer(ctx context.Context, buyerID string, states ...domain.CheckoutState) ([]*domain.CheckoutSession, error)
	// ListStale returns sessions sitting in state since before the cutoff.
	ListStale(ctx context.Context, state domain.CheckoutState, before time.Time, limit int) ([]*domain.CheckoutSession, error)
}
