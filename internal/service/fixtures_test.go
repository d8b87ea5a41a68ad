package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/fjod/book_market/internal/domain"
	"github.com/fjod/book_market/internal/payment"
	"github.com/fjod/book_market/internal/repository/memory"
	"github.com/fjod/book_market/pkg/logger"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var errStoreDown = errors.New("store unavailable")

type gatewayMock struct{ mock.Mock }

func (m *gatewayMock) CreateOrder(ctx context.Context, amountMinor int64, currency, receipt string) (*payment.Order, error) {
	args := m.Called(ctx, amountMinor, currency, receipt)
	order, _ := args.Get(0).(*payment.Order)
	return order, args.Error(1)
}

func (m *gatewayMock) VerifyPayment(orderID, paymentID, signature string) error {
	args := m.Called(orderID, paymentID, signature)
	return args.Error(0)
}

// flakyOrders fails writes for the listed sellers until healed.
type flakyOrders struct {
	*memory.OrderStore
	mu      sync.Mutex
	failFor map[string]bool
	calls   map[string]int
}

func newFlakyOrders(failFor ...string) *flakyOrders {
	f := &flakyOrders{OrderStore: memory.NewOrderStore(), failFor: map[string]bool{}, calls: map[string]int{}}
	for _, s := range failFor {
		f.failFor[s] = true
	}
	return f
}

func (f *flakyOrders) UpsertOrder(ctx context.Context, p domain.Partition, order *domain.Order) (bool, error) {
	f.mu.Lock()
	f.calls[order.SellerID]++
	fail := f.failFor[order.SellerID]
	f.mu.Unlock()
	if fail {
		return false, errStoreDown
	}
	return f.OrderStore.UpsertOrder(ctx, p, order)
}

func (f *flakyOrders) heal() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failFor = map[string]bool{}
}

func (f *flakyOrders) callsFor(sellerID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[sellerID]
}

// flakySellers fails the next failReleases pending releases.
type flakySellers struct {
	*memory.SellerStore
	mu           sync.Mutex
	failReleases int
}

func (f *flakySellers) RemovePending(ctx context.Context, sellerID, orderID string) (bool, error) {
	f.mu.Lock()
	fail := f.failReleases > 0
	if fail {
		f.failReleases--
	}
	f.mu.Unlock()
	if fail {
		return false, errStoreDown
	}
	return f.SellerStore.RemovePending(ctx, sellerID, orderID)
}

// flakySessions fails every update out of Committing until healed.
type flakySessions struct {
	*memory.SessionStore
	mu             sync.Mutex
	failCommitting bool
	failed         int
}

func (f *flakySessions) UpdateSession(ctx context.Context, session *domain.CheckoutSession, from domain.CheckoutState) error {
	f.mu.Lock()
	fail := f.failCommitting && from == domain.CheckoutStateCommitting
	if fail {
		f.failed++
	}
	f.mu.Unlock()
	if fail {
		return errStoreDown
	}
	return f.SessionStore.UpdateSession(ctx, session, from)
}

func (f *flakySessions) heal() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failCommitting = false
}

type recordingPublisher struct {
	mu     sync.Mutex
	events map[string][]*domain.Order
}

func (p *recordingPublisher) Publish(_ context.Context, eventType string, orders ...*domain.Order) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.events == nil {
		p.events = map[string][]*domain.Order{}
	}
	p.events[eventType] = append(p.events[eventType], orders...)
	return nil
}

func (p *recordingPublisher) count(eventType string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.events[eventType])
}

type fixture struct {
	carts     *memory.CartStore
	catalog   *memory.CatalogStore
	orders    *flakyOrders
	counters  *flakySellers
	addresses *memory.AddressStore
	sessions  *flakySessions
	gateway   *gatewayMock
	events    *recordingPublisher

	cart     *CartService
	checkout *CheckoutService
	order    *OrderService
	seller   *SellerService
}

func newFixture(t *testing.T, books ...*domain.Book) *fixture {
	t.Helper()
	log := logger.Discard()

	f := &fixture{
		carts:     memory.NewCartStore(),
		catalog:   memory.NewCatalogStore(books...),
		orders:    newFlakyOrders(),
		counters:  &flakySellers{SellerStore: memory.NewSellerStore()},
		addresses: memory.NewAddressStore(),
		sessions:  &flakySessions{SessionStore: memory.NewSessionStore()},
		gateway:   &gatewayMock{},
		events:    &recordingPublisher{},
	}
	f.cart = NewCartService(f.carts, f.catalog, nil, log)
	f.checkout = NewCheckoutService(f.cart, f.addresses, f.sessions, f.orders, f.counters, f.gateway, f.events, log,
		CheckoutConfig{
			Currency:      "INR",
			Retry:         RetryPolicy{MaxRetries: 2},
			CommitTimeout: 5 * time.Second,
			StaleAfter:    time.Minute,
		})
	f.order = NewOrderService(f.orders, f.counters, f.catalog, f.events, RetryPolicy{MaxRetries: 1}, log)
	f.seller = NewSellerService(f.counters, log)
	return f
}

func book(id, sellerID string, price int64) *domain.Book {
	return &domain.Book{ID: id, Name: id, Author: "author", SellerID: sellerID, Price: price, CreatedAt: time.Now()}
}

func (f *fixture) addToCart(t *testing.T, buyerID, bookID string, qty int) {
	t.Helper()
	require.NoError(t, f.carts.SetItemQuantity(context.Background(), buyerID, bookID, qty))
}

func (f *fixture) saveAddress(t *testing.T, buyerID string) string {
	t.Helper()
	a := &domain.Address{ID: domain.AddressID(buyerID, "Home"), UserID: buyerID, Label: "Home", Text: "221B Baker St"}
	require.NoError(t, f.addresses.Save(context.Background(), a))
	return a.ID
}

// expectGateway makes the gateway accept one order for amount and any
// signature for it.
func (f *fixture) expectGateway(amount int64, orderID string) {
	f.gateway.On("CreateOrder", mock.Anything, amount, "INR", mock.Anything).
		Return(&payment.Order{ID: orderID, Amount: amount, Currency: "INR"}, nil).Once()
	f.gateway.On("VerifyPayment", orderID, mock.Anything, mock.Anything).Return(nil)
}

func (f *fixture) pending(t *testing.T, sellerID string) int64 {
	t.Helper()
	c, err := f.counters.Get(context.Background(), sellerID)
	require.NoError(t, err)
	return c.Pending
}
