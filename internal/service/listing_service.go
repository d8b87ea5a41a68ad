package service

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/fjod/book_market/internal/domain"
	"github.com/fjod/book_market/internal/repository"
	"github.com/shopspring/decimal"
)

const (
	maxSellerListings = 1000

	// MaxPriceMinor caps a listing price so cart totals stay far from int64
	// overflow.
	MaxPriceMinor int64 = 10_000_000_000
)

var (
	hundred  = decimal.NewFromInt(100)
	maxPrice = decimal.New(MaxPriceMinor, -2)
)

// ParsePrice converts a decimal amount such as "499.50" to minor units.
func ParsePrice(s string) (int64, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil || d.IsNegative() || d.GreaterThan(maxPrice) || !d.Equal(d.Truncate(2)) {
		return 0, ErrInvalidPrice
	}
	return d.Mul(hundred).IntPart(), nil
}

// FormatPrice renders minor units as a two-decimal amount.
func FormatPrice(minor int64) string {
	return decimal.New(minor, -2).StringFixed(2)
}

type ListingInput struct {
	Name        string
	Author      string
	Category    string
	Description string
	Price       string
	ImageURL    string
}

type ListingService struct {
	catalog repository.CatalogRepository
	log     *slog.Logger
	now     func() time.Time
}

func NewListingService(catalog repository.CatalogRepository, log *slog.Logger) *ListingService {
	return &ListingService{catalog: catalog, log: log, now: time.Now}
}

func (s *ListingService) Browse(ctx context.Context, filter domain.CatalogFilter) ([]*domain.Book, error) {
	return s.catalog.ListBooks(ctx, filter)
}

func (s *ListingService) Get(ctx context.Context, bookID string) (*domain.Book, error) {
	return s.catalog.GetBook(ctx, bookID)
}

// Create lists a new book. A seller lists a title once; the listing id is
// derived from seller and name.
func (s *ListingService) Create(ctx context.Context, sellerID string, in ListingInput) (*domain.Book, error) {
	if sellerID == "" {
		return nil, ErrIdentityMissing
	}
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, ErrInvalidListing
	}
	price, err := ParsePrice(in.Price)
	if err != nil {
		return nil, err
	}

	now := s.now()
	book := &domain.Book{
		ID:          domain.ListingID(sellerID, name),
		Name:        name,
		Author:      strings.TrimSpace(in.Author),
		Category:    strings.TrimSpace(in.Category),
		Description: in.Description,
		Price:       price,
		ImageURL:    in.ImageURL,
		SellerID:    sellerID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.catalog.CreateBook(ctx, book); err != nil {
		return nil, err
	}

	s.log.InfoContext(ctx, "listing created", slog.String("seller_id", sellerID), slog.String("book_id", book.ID))
	return book, nil
}

func (s *ListingService) UpdatePrice(ctx context.Context, sellerID, bookID, price string) (*domain.Book, error) {
	if sellerID == "" {
		return nil, ErrIdentityMissing
	}
	minor, err := ParsePrice(price)
	if err != nil {
		return nil, err
	}
	if err := s.catalog.UpdatePrice(ctx, sellerID, bookID, minor); err != nil {
		return nil, err
	}
	return s.catalog.GetBook(ctx, bookID)
}

// Delete removes a listing. Carts still pointing at it drop the line from
// their view on the next read.
func (s *ListingService) Delete(ctx context.Context, sellerID, bookID string) error {
	if sellerID == "" {
		return ErrIdentityMissing
	}
	if err := s.catalog.DeleteBook(ctx, sellerID, bookID); err != nil {
		return err
	}
	s.log.InfoContext(ctx, "listing deleted", slog.String("seller_id", sellerID), slog.String("book_id", bookID))
	return nil
}

func (s *ListingService) ListOwn(ctx context.Context, sellerID string) ([]*domain.Book, error) {
	if sellerID == "" {
		return nil, ErrIdentityMissing
	}
	return s.catalog.ListBooks(ctx, domain.CatalogFilter{SellerID: sellerID, Limit: maxSellerListings})
}
