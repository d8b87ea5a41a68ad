package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/fjod/book_market/internal/cache"
	"github.com/fjod/book_market/internal/domain"
	"github.com/fjod/book_market/internal/metrics"
	"github.com/fjod/book_market/internal/repository"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

// enrichConcurrency bounds catalog lookups issued for one cart view.
const enrichConcurrency = 8

type BookReader interface {
	GetBook(ctx context.Context, id string) (*domain.Book, error)
}

type CartService struct {
	repo    repository.CartRepository
	catalog BookReader
	cache   cache.CartCache
	log     *slog.Logger
	sfg     singleflight.Group // Prevents cache stampede
}

func NewCartService(repo repository.CartRepository, catalog BookReader, c cache.CartCache, log *slog.Logger) *CartService {
	if c == nil {
		c = cache.NopCache{}
	}
	return &CartService{
		repo:    repo,
		catalog: catalog,
		cache:   c,
		log:     log,
	}
}

// View joins the buyer's cart with the catalog. Lines whose book is gone are
// left out of the lines and the total and reported in Missing.
func (s *CartService) View(ctx context.Context, buyerID string) (*domain.CartView, error) {
	if buyerID == "" {
		return nil, ErrIdentityMissing
	}

	cart, err := s.getCart(ctx, buyerID)
	if err != nil {
		return nil, err
	}
	return s.enrich(ctx, cart)
}

// freshView builds the view from the store, bypassing the cache. Used right
// after a mutation and when a checkout snapshots the cart.
func (s *CartService) freshView(ctx context.Context, buyerID string) (*domain.CartView, error) {
	cart, err := s.repo.GetCart(ctx, buyerID)
	if errors.Is(err, repository.ErrCartNotFound) {
		cart = &domain.Cart{UserID: buyerID}
	} else if err != nil {
		return nil, err
	}
	return s.enrich(ctx, cart)
}

func (s *CartService) enrich(ctx context.Context, cart *domain.Cart) (*domain.CartView, error) {
	buyerID := cart.UserID
	books := make([]*domain.Book, len(cart.Items))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(enrichConcurrency)
	for i, item := range cart.Items {
		g.Go(func() error {
			book, err := s.catalog.GetBook(gctx, item.BookID)
			if errors.Is(err, repository.ErrBookNotFound) {
				return nil
			}
			if err != nil {
				return err
			}
			books[i] = book
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		s.log.ErrorContext(ctx, "cart enrichment failed", slog.String("buyer_id", buyerID), slog.Any("error", err))
		return nil, err
	}

	view := &domain.CartView{UserID: buyerID, Lines: make([]domain.CartLine, 0, len(cart.Items))}
	for i, item := range cart.Items {
		book := books[i]
		if book == nil {
			view.Missing = append(view.Missing, item.BookID)
			continue
		}
		line := domain.CartLine{
			BookID:   book.ID,
			Name:     book.Name,
			Author:   book.Author,
			Price:    book.Price,
			ImageURL: book.ImageURL,
			SellerID: book.SellerID,
			Quantity: item.Quantity,
		}
		view.Lines = append(view.Lines, line)
		view.Total += line.Subtotal()
	}

	if len(view.Missing) > 0 {
		metrics.EnrichmentGapsTotal.Add(float64(len(view.Missing)))
		s.log.WarnContext(ctx, "cart references books missing from catalog",
			slog.String("buyer_id", buyerID),
			slog.Any("book_ids", view.Missing))
	}

	return view, nil
}

func (s *CartService) getCart(ctx context.Context, userID string) (*domain.Cart, error) {
	// Use singleflight to prevent multiple concurrent cache misses for same key
	v, err, _ := s.sfg.Do(userID, func() (interface{}, error) {
		cart, err := s.cache.Get(ctx, userID)
		if err == nil {
			metrics.CartCacheResultsTotal.WithLabelValues("hit").Inc()
			return cart, nil
		}

		if errors.Is(err, cache.ErrCacheMiss) {
			metrics.CartCacheResultsTotal.WithLabelValues("miss").Inc()
		} else {
			metrics.CartCacheResultsTotal.WithLabelValues("error").Inc()
			s.log.WarnContext(ctx, "cart cache get failed", slog.String("buyer_id", userID), slog.Any("error", err))
		}

		// The version is taken before the store read so a mutation that
		// lands in between makes the cache write below a no-op.
		version, verr := s.cache.Version(ctx, userID)

		cart, err = s.repo.GetCart(ctx, userID)
		if errors.Is(err, repository.ErrCartNotFound) {
			now := time.Now()
			return &domain.Cart{UserID: userID, CreatedAt: now, UpdatedAt: now}, nil
		}
		if err != nil {
			return nil, err
		}
		if verr != nil {
			return cart, nil
		}

		go func() {
			setCtx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			err := s.cache.Set(setCtx, userID, cart, version)
			switch {
			case errors.Is(err, cache.ErrStaleVersion):
				s.log.Debug("cart changed while loading; not cached", slog.String("buyer_id", userID))
			case err != nil:
				s.log.Warn("cart cache set failed", slog.String("buyer_id", userID), slog.Any("error", err))
			}
		}()

		return cart, nil
	})
	if err != nil {
		return nil, err
	}

	return v.(*domain.Cart), nil
}

// AddItem puts one more copy of the book in the cart; a new line starts at 1.
func (s *CartService) AddItem(ctx context.Context, buyerID, bookID string) (*domain.CartView, error) {
	if buyerID == "" {
		return nil, ErrIdentityMissing
	}
	if _, err := s.catalog.GetBook(ctx, bookID); err != nil {
		return nil, err
	}

	current, err := s.currentQuantity(ctx, buyerID, bookID)
	if err != nil {
		return nil, err
	}
	if err := s.setQuantity(ctx, buyerID, bookID, current+1); err != nil {
		return nil, err
	}
	return s.freshView(ctx, buyerID)
}

// ChangeQuantity applies delta to an existing line. The result never goes
// below 1; removing a line is RemoveItem's job.
func (s *CartService) ChangeQuantity(ctx context.Context, buyerID, bookID string, delta int) (*domain.CartView, error) {
	if buyerID == "" {
		return nil, ErrIdentityMissing
	}

	current, err := s.currentQuantity(ctx, buyerID, bookID)
	if err != nil {
		return nil, err
	}
	if current == 0 {
		return nil, ErrItemNotFound
	}

	if err := s.setQuantity(ctx, buyerID, bookID, max(1, current+delta)); err != nil {
		return nil, err
	}
	return s.freshView(ctx, buyerID)
}

func (s *CartService) RemoveItem(ctx context.Context, buyerID, bookID string) (*domain.CartView, error) {
	if buyerID == "" {
		return nil, ErrIdentityMissing
	}
	if err := s.removeLines(ctx, buyerID, bookID); err != nil {
		return nil, err
	}
	return s.freshView(ctx, buyerID)
}

func (s *CartService) Clear(ctx context.Context, buyerID string) error {
	if buyerID == "" {
		return ErrIdentityMissing
	}
	return s.clear(ctx, buyerID)
}

// currentQuantity reads the store directly; the cache may lag behind a
// concurrent mutation.
func (s *CartService) currentQuantity(ctx context.Context, buyerID, bookID string) (int, error) {
	cart, err := s.repo.GetCart(ctx, buyerID)
	if errors.Is(err, repository.ErrCartNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return cart.Quantity(bookID), nil
}

func (s *CartService) setQuantity(ctx context.Context, buyerID, bookID string, quantity int) error {
	if err := s.repo.SetItemQuantity(ctx, buyerID, bookID, quantity); err != nil {
		s.log.ErrorContext(ctx, "cart update failed",
			slog.String("buyer_id", buyerID), slog.String("book_id", bookID), slog.Any("error", err))
		return err
	}
	s.invalidateCache(buyerID)
	return nil
}

func (s *CartService) removeLines(ctx context.Context, buyerID string, bookIDs ...string) error {
	defer s.invalidateCache(buyerID)
	for _, bookID := range bookIDs {
		err := s.repo.RemoveItem(ctx, buyerID, bookID)
		if errors.Is(err, repository.ErrCartNotFound) {
			return nil
		}
		if err != nil {
			s.log.ErrorContext(ctx, "cart remove failed",
				slog.String("buyer_id", buyerID), slog.String("book_id", bookID), slog.Any("error", err))
			return err
		}
	}
	return nil
}

func (s *CartService) clear(ctx context.Context, buyerID string) error {
	err := s.repo.DeleteCart(ctx, buyerID)
	if err != nil && !errors.Is(err, repository.ErrCartNotFound) {
		s.log.ErrorContext(ctx, "cart delete failed", slog.String("buyer_id", buyerID), slog.Any("error", err))
		return err
	}
	s.invalidateCache(buyerID)
	return nil
}

func (s *CartService) invalidateCache(userID string) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.cache.Delete(ctx, userID); err != nil {
		s.log.Warn("cart cache invalidate failed", slog.String("buyer_id", userID), slog.Any("error", err))
	}
}
