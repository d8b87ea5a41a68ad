package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/fjod/book_market/internal/domain"
	"github.com/fjod/book_market/internal/metrics"
	"github.com/fjod/book_market/internal/publisher"
	"github.com/fjod/book_market/internal/repository"
)

type ListingCounter interface {
	ListBooks(ctx context.Context, filter domain.CatalogFilter) ([]*domain.Book, error)
}

type OrderService struct {
	orders   repository.OrderRepository
	counters repository.CounterRepository
	catalog  ListingCounter
	events   publisher.OrderPublisher
	retry    RetryPolicy
	log      *slog.Logger
	now      func() time.Time
}

func NewOrderService(
	orders repository.OrderRepository,
	counters repository.CounterRepository,
	catalog ListingCounter,
	events publisher.OrderPublisher,
	retry RetryPolicy,
	log *slog.Logger,
) *OrderService {
	if events == nil {
		events = publisher.Nop{}
	}
	return &OrderService{
		orders:   orders,
		counters: counters,
		catalog:  catalog,
		events:   events,
		retry:    retry,
		log:      log,
		now:      time.Now,
	}
}

// MarkDelivered flips one of the seller's pending orders to delivered, mirrors
// the status on the buyer's copy and releases the order from the seller's
// pending count. The release is keyed by the order and its failure is
// returned, so calling MarkDelivered again on a delivered order finishes what
// an earlier call left undone.
func (s *OrderService) MarkDelivered(ctx context.Context, sellerID, orderID string) (*domain.Order, error) {
	if sellerID == "" {
		return nil, ErrIdentityMissing
	}

	order, changed, err := s.orders.MarkDelivered(ctx, domain.PartitionSeller, sellerID, orderID)
	if err != nil {
		return nil, err
	}

	err = s.retry.do(ctx, func() error {
		_, _, err := s.orders.MarkDelivered(ctx, domain.PartitionBuyer, order.BuyerID, orderID)
		return err
	})
	switch {
	case errors.Is(err, repository.ErrOrderNotFound):
		s.log.WarnContext(ctx, "buyer copy of delivered order is missing",
			slog.String("buyer_id", order.BuyerID), slog.String("order_id", orderID))
	case err != nil:
		s.log.ErrorContext(ctx, "buyer order status mirror failed",
			slog.String("buyer_id", order.BuyerID), slog.String("order_id", orderID), slog.Any("error", err))
	}

	if changed {
		metrics.OrdersDeliveredTotal.Inc()
		pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		if err := s.events.Publish(pctx, publisher.EventOrderDelivered, order); err != nil {
			s.log.WarnContext(ctx, "order delivered event not published", slog.String("order_id", orderID), slog.Any("error", err))
		}
		cancel()
		s.log.InfoContext(ctx, "order delivered", slog.String("seller_id", sellerID), slog.String("order_id", orderID))
	}

	err = s.retry.do(ctx, func() error {
		_, err := s.counters.RemovePending(ctx, sellerID, orderID)
		return err
	})
	if err != nil {
		s.log.ErrorContext(ctx, "pending order release failed",
			slog.String("seller_id", sellerID), slog.String("order_id", orderID), slog.Any("error", err))
		return nil, fmt.Errorf("release pending order: %w", err)
	}

	return order, nil
}

func (s *OrderService) ListBuyerOrders(ctx context.Context, buyerID string) ([]*domain.Order, error) {
	if buyerID == "" {
		return nil, ErrIdentityMissing
	}
	return s.orders.ListOrders(ctx, domain.PartitionBuyer, buyerID)
}

func (s *OrderService) ListSellerOrders(ctx context.Context, sellerID string) ([]*domain.Order, error) {
	if sellerID == "" {
		return nil, ErrIdentityMissing
	}
	return s.orders.ListOrders(ctx, domain.PartitionSeller, sellerID)
}

type SellerDashboard struct {
	SellerID        string    `json:"seller_id"`
	PendingOrders   int64     `json:"pending_orders"`
	DeliveredOrders int       `json:"delivered_orders"`
	Listings        int       `json:"listings"`
	Revenue         int64     `json:"revenue"`
	Year            int       `json:"year"`
	MonthlyEarnings [12]int64 `json:"monthly_earnings"`
}

// SellerDashboard summarises a seller's shop. PendingOrders is the stored
// counter, not a recount. MonthlyEarnings splits the current year's order
// totals by the month (UTC) the order was placed.
func (s *OrderService) SellerDashboard(ctx context.Context, sellerID string) (*SellerDashboard, error) {
	if sellerID == "" {
		return nil, ErrIdentityMissing
	}

	counters, err := s.counters.Get(ctx, sellerID)
	if err != nil {
		return nil, err
	}
	orders, err := s.orders.ListOrders(ctx, domain.PartitionSeller, sellerID)
	if err != nil {
		return nil, err
	}
	listings, err := s.catalog.ListBooks(ctx, domain.CatalogFilter{SellerID: sellerID, Limit: maxSellerListings})
	if err != nil {
		return nil, err
	}

	d := &SellerDashboard{
		SellerID:      sellerID,
		PendingOrders: counters.Pending,
		Listings:      len(listings),
		Year:          s.now().UTC().Year(),
	}
	for _, o := range orders {
		d.Revenue += o.TotalAmount
		if o.Status == domain.OrderStatusDelivered {
			d.DeliveredOrders++
		}
		if placed := o.CreatedAt.UTC(); placed.Year() == d.Year {
			d.MonthlyEarnings[placed.Month()-1] += o.TotalAmount
		}
	}
	return d, nil
}
