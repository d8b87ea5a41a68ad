package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/fjod/book_market/internal/domain"
	"github.com/fjod/book_market/internal/payment"
	"github.com/fjod/book_market/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// Two sellers: A from S1 (qty 2, price 100), B from S2 (qty 1, price 250).
func scenarioA(t *testing.T) (*fixture, string) {
	f := newFixture(t, book("A", "S1", 100), book("B", "S2", 250))
	f.addToCart(t, "buyer", "A", 2)
	f.addToCart(t, "buyer", "B", 1)
	return f, f.saveAddress(t, "buyer")
}

func TestCheckout_ScenarioA_TwoSellers(t *testing.T) {
	f, addressID := scenarioA(t)
	ctx := context.Background()
	f.expectGateway(450, "order_gw1")

	session, err := f.checkout.Begin(ctx, "buyer", addressID)
	require.NoError(t, err)
	assert.Equal(t, domain.CheckoutStateAwaitingPayment, session.State)
	assert.Equal(t, int64(450), session.Amount)

	session, err = f.checkout.ConfirmPayment(ctx, "buyer", session.ID, "pay123", "sig")
	require.NoError(t, err)
	assert.Equal(t, domain.CheckoutStateIdle, session.State)
	assert.True(t, session.Report.Complete())

	s1, err := f.order.ListSellerOrders(ctx, "S1")
	require.NoError(t, err)
	require.Len(t, s1, 1)
	assert.Equal(t, int64(200), s1[0].TotalAmount)
	assert.Equal(t, domain.OrderID("buyer", "S1", "pay123"), s1[0].ID)
	assert.Equal(t, "221B Baker St", s1[0].Address.Text)

	s2, err := f.order.ListSellerOrders(ctx, "S2")
	require.NoError(t, err)
	require.Len(t, s2, 1)
	assert.Equal(t, int64(250), s2[0].TotalAmount)

	mine, err := f.order.ListBuyerOrders(ctx, "buyer")
	require.NoError(t, err)
	assert.Len(t, mine, 2)

	assert.Equal(t, int64(1), f.pending(t, "S1"))
	assert.Equal(t, int64(1), f.pending(t, "S2"))

	view, err := f.cart.View(ctx, "buyer")
	require.NoError(t, err)
	assert.True(t, view.IsEmpty())
	assert.Equal(t, int64(0), view.Total)

	assert.Equal(t, 2, f.events.count("order.placed"))
}

func TestCheckout_OrderTotalsSumToCartTotal(t *testing.T) {
	f := newFixture(t, book("A", "S1", 120), book("B", "S2", 75), book("C", "S1", 30), book("D", "S3", 999))
	for id, qty := range map[string]int{"A": 1, "B": 4, "C": 3, "D": 2} {
		f.addToCart(t, "buyer", id, qty)
	}
	addressID := f.saveAddress(t, "buyer")
	ctx := context.Background()

	view, err := f.cart.View(ctx, "buyer")
	require.NoError(t, err)
	f.expectGateway(view.Total, "order_gw")

	session, err := f.checkout.Begin(ctx, "buyer", addressID)
	require.NoError(t, err)
	session, err = f.checkout.ConfirmPayment(ctx, "buyer", session.ID, "pay", "sig")
	require.NoError(t, err)

	orders, err := f.order.ListBuyerOrders(ctx, "buyer")
	require.NoError(t, err)
	require.Len(t, orders, 3)
	var sum int64
	for _, o := range orders {
		sum += o.TotalAmount
	}
	assert.Equal(t, view.Total, sum)
	assert.Len(t, session.Report.Groups, 3)
}

func TestCheckout_ScenarioB_DeletedBookMeansEmptyCart(t *testing.T) {
	f := newFixture(t, book("A", "S1", 100))
	f.addToCart(t, "buyer", "A", 1)
	addressID := f.saveAddress(t, "buyer")
	ctx := context.Background()

	require.NoError(t, f.catalog.DeleteBook(ctx, "S1", "A"))

	view, err := f.cart.View(ctx, "buyer")
	require.NoError(t, err)
	assert.Empty(t, view.Lines)
	assert.Equal(t, []string{"A"}, view.Missing)

	_, err = f.checkout.Begin(ctx, "buyer", addressID)
	assert.ErrorIs(t, err, ErrEmptyCart)
	f.gateway.AssertNotCalled(t, "CreateOrder", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestCheckout_ZeroTotalRefused(t *testing.T) {
	f := newFixture(t, book("free", "S1", 0))
	f.addToCart(t, "buyer", "free", 3)
	addressID := f.saveAddress(t, "buyer")

	_, err := f.checkout.Begin(context.Background(), "buyer", addressID)

	assert.ErrorIs(t, err, ErrEmptyCart)
	f.gateway.AssertNotCalled(t, "CreateOrder", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestCheckout_ScenarioC_SecondCheckoutAfterCommitIsRejected(t *testing.T) {
	f, addressID := scenarioA(t)
	ctx := context.Background()
	f.expectGateway(450, "order_gwA")

	first, err := f.checkout.Begin(ctx, "buyer", addressID)
	require.NoError(t, err)
	_, err = f.checkout.ConfirmPayment(ctx, "buyer", first.ID, "payA", "sig")
	require.NoError(t, err)

	_, err = f.checkout.Begin(ctx, "buyer", addressID)
	assert.ErrorIs(t, err, ErrEmptyCart)
	f.gateway.AssertNumberOfCalls(t, "CreateOrder", 1)
}

func TestCheckout_ScenarioC_TwoPaidSessionsBothCommit(t *testing.T) {
	f, addressID := scenarioA(t)
	ctx := context.Background()
	f.gateway.On("CreateOrder", mock.Anything, int64(450), "INR", mock.Anything).
		Return(&payment.Order{ID: "order_gwA"}, nil).Once()
	f.gateway.On("CreateOrder", mock.Anything, int64(450), "INR", mock.Anything).
		Return(&payment.Order{ID: "order_gwB"}, nil).Once()
	f.gateway.On("VerifyPayment", mock.Anything, mock.Anything, mock.Anything).Return(nil)

	a, err := f.checkout.Begin(ctx, "buyer", addressID)
	require.NoError(t, err)
	b, err := f.checkout.Begin(ctx, "buyer", addressID)
	require.NoError(t, err)

	_, err = f.checkout.ConfirmPayment(ctx, "buyer", a.ID, "payA", "sig")
	require.NoError(t, err)
	_, err = f.checkout.ConfirmPayment(ctx, "buyer", b.ID, "payB", "sig")
	require.NoError(t, err)

	// both carts were non-empty when their payment opened
	orders, err := f.order.ListBuyerOrders(ctx, "buyer")
	require.NoError(t, err)
	assert.Len(t, orders, 4)
	assert.Equal(t, int64(2), f.pending(t, "S1"))
}

func TestCheckout_IdentityMissingNeverOpensPayment(t *testing.T) {
	f, addressID := scenarioA(t)

	_, err := f.checkout.Begin(context.Background(), "", addressID)

	assert.ErrorIs(t, err, ErrIdentityMissing)
	f.gateway.AssertNotCalled(t, "CreateOrder", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestCheckout_AddressMustBelongToBuyer(t *testing.T) {
	f, _ := scenarioA(t)
	otherAddress := f.saveAddress(t, "someone-else")

	_, err := f.checkout.Begin(context.Background(), "buyer", otherAddress)
	assert.ErrorIs(t, err, repository.ErrAddressNotFound)

	_, err = f.checkout.Begin(context.Background(), "buyer", "")
	assert.ErrorIs(t, err, ErrAddressRequired)
	f.gateway.AssertNotCalled(t, "CreateOrder", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestCheckout_GatewayFailureLeavesNoSession(t *testing.T) {
	f, addressID := scenarioA(t)
	f.gateway.On("CreateOrder", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(nil, errors.New("gateway down"))

	_, err := f.checkout.Begin(context.Background(), "buyer", addressID)
	require.Error(t, err)

	stale, err := f.sessions.ListStale(context.Background(), domain.CheckoutStateAwaitingPayment, time.Now().Add(time.Hour), 0)
	require.NoError(t, err)
	assert.Empty(t, stale)
}

func TestCheckout_AbandonIsNoOp(t *testing.T) {
	f, addressID := scenarioA(t)
	ctx := context.Background()
	f.expectGateway(450, "order_gw1")

	session, err := f.checkout.Begin(ctx, "buyer", addressID)
	require.NoError(t, err)

	session, err = f.checkout.Abandon(ctx, "buyer", session.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.CheckoutStateIdle, session.State)

	// twice is fine
	_, err = f.checkout.Abandon(ctx, "buyer", session.ID)
	require.NoError(t, err)

	view, err := f.cart.View(ctx, "buyer")
	require.NoError(t, err)
	assert.Equal(t, int64(450), view.Total)
	orders, err := f.order.ListBuyerOrders(ctx, "buyer")
	require.NoError(t, err)
	assert.Empty(t, orders)
	assert.Equal(t, int64(0), f.pending(t, "S1"))

	// a late success callback cannot revive an abandoned session
	_, err = f.checkout.ConfirmPayment(ctx, "buyer", session.ID, "pay", "sig")
	assert.ErrorIs(t, err, domain.ErrIllegalTransition)
}

func TestCheckout_InvalidSignature(t *testing.T) {
	f, addressID := scenarioA(t)
	ctx := context.Background()
	f.gateway.On("CreateOrder", mock.Anything, int64(450), "INR", mock.Anything).
		Return(&payment.Order{ID: "order_gw1"}, nil)
	f.gateway.On("VerifyPayment", "order_gw1", "pay", "forged").Return(payment.ErrInvalidSignature)

	session, err := f.checkout.Begin(ctx, "buyer", addressID)
	require.NoError(t, err)

	_, err = f.checkout.ConfirmPayment(ctx, "buyer", session.ID, "pay", "forged")
	assert.ErrorIs(t, err, payment.ErrInvalidSignature)

	stored, err := f.checkout.GetSession(ctx, "buyer", session.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.CheckoutStateAwaitingPayment, stored.State)
}

func TestCheckout_PartialFailureKeepsUncommittedLines(t *testing.T) {
	f, addressID := scenarioA(t)
	ctx := context.Background()
	f.orders.failFor["S2"] = true
	f.expectGateway(450, "order_gw1")

	session, err := f.checkout.Begin(ctx, "buyer", addressID)
	require.NoError(t, err)

	session, err = f.checkout.ConfirmPayment(ctx, "buyer", session.ID, "pay123", "sig")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrPartialCommit)
	var partial *PartialCommitError
	require.True(t, errors.As(err, &partial))
	assert.Equal(t, []string{"S2"}, partial.Report.Failed())
	assert.Equal(t, domain.CheckoutStateFailed, session.State)

	// retried with backoff before giving up
	assert.Equal(t, 3, f.orders.callsFor("S2"))

	// S1 committed and its line left the cart; S2's line stays
	view, err := f.cart.View(ctx, "buyer")
	require.NoError(t, err)
	require.Len(t, view.Lines, 1)
	assert.Equal(t, "B", view.Lines[0].BookID)
	assert.Equal(t, int64(1), f.pending(t, "S1"))
	assert.Equal(t, int64(0), f.pending(t, "S2"))
	assert.Equal(t, 0, f.events.count("order.placed"))

	// the store recovers and the buyer retries
	f.orders.heal()
	session, err = f.checkout.RetryCommit(ctx, "buyer", session.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.CheckoutStateIdle, session.State)

	assert.Equal(t, int64(1), f.pending(t, "S1"), "S1 must not be counted twice")
	assert.Equal(t, int64(1), f.pending(t, "S2"))
	view, err = f.cart.View(ctx, "buyer")
	require.NoError(t, err)
	assert.True(t, view.IsEmpty())

	orders, err := f.order.ListBuyerOrders(ctx, "buyer")
	require.NoError(t, err)
	assert.Len(t, orders, 2)
	assert.Equal(t, 2, f.events.count("order.placed"))
}

func TestCheckout_ReplayedCallbackReturnsStoredOutcome(t *testing.T) {
	f, addressID := scenarioA(t)
	ctx := context.Background()
	f.expectGateway(450, "order_gw1")

	session, err := f.checkout.Begin(ctx, "buyer", addressID)
	require.NoError(t, err)
	_, err = f.checkout.ConfirmPayment(ctx, "buyer", session.ID, "pay123", "sig")
	require.NoError(t, err)

	replayed, err := f.checkout.ConfirmPayment(ctx, "buyer", session.ID, "pay123", "sig")
	require.NoError(t, err)
	assert.Equal(t, domain.CheckoutStateIdle, replayed.State)
	assert.Equal(t, int64(1), f.pending(t, "S1"))

	_, err = f.checkout.ConfirmPayment(ctx, "buyer", session.ID, "pay999", "sig")
	assert.ErrorIs(t, err, ErrPaymentMismatch)
}

func TestCheckout_ConcurrentCallbacksCommitOnce(t *testing.T) {
	f, addressID := scenarioA(t)
	ctx := context.Background()
	f.expectGateway(450, "order_gw1")

	session, err := f.checkout.Begin(ctx, "buyer", addressID)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = f.checkout.ConfirmPayment(ctx, "buyer", session.ID, "pay123", "sig")
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(1), f.pending(t, "S1"))
	assert.Equal(t, int64(1), f.pending(t, "S2"))
	orders, err := f.order.ListSellerOrders(ctx, "S1")
	require.NoError(t, err)
	assert.Len(t, orders, 1)
}

func TestCheckout_CounterConsistencyAcrossBuyers(t *testing.T) {
	f := newFixture(t, book("A", "S1", 100), book("X", "S2", 10))
	f.gateway.On("CreateOrder", mock.Anything, mock.Anything, "INR", mock.Anything).
		Return(&payment.Order{ID: "order_gw"}, nil)
	f.gateway.On("VerifyPayment", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	ctx := context.Background()

	const n = 10
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		buyer := fmt.Sprintf("buyer-%d", i)
		f.addToCart(t, buyer, "A", 1)
		if i%2 == 0 {
			f.addToCart(t, buyer, "X", 1)
		}
		addressID := f.saveAddress(t, buyer)
		wg.Add(1)
		go func() {
			defer wg.Done()
			session, err := f.checkout.Begin(ctx, buyer, addressID)
			if !assert.NoError(t, err) {
				return
			}
			_, err = f.checkout.ConfirmPayment(ctx, buyer, session.ID, "pay-"+buyer, "sig")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(n), f.pending(t, "S1"))
	assert.Equal(t, int64(n/2), f.pending(t, "S2"))
}

func TestCheckout_RetryOnlyFromFailed(t *testing.T) {
	f, addressID := scenarioA(t)
	ctx := context.Background()
	f.expectGateway(450, "order_gw1")

	session, err := f.checkout.Begin(ctx, "buyer", addressID)
	require.NoError(t, err)

	_, err = f.checkout.RetryCommit(ctx, "buyer", session.ID)
	assert.ErrorIs(t, err, domain.ErrIllegalTransition)

	_, err = f.checkout.RetryCommit(ctx, "intruder", session.ID)
	assert.ErrorIs(t, err, repository.ErrSessionNotFound)
}

func TestCheckout_SnapshotIsWhatGetsOrdered(t *testing.T) {
	f, addressID := scenarioA(t)
	ctx := context.Background()
	f.expectGateway(450, "order_gw1")

	session, err := f.checkout.Begin(ctx, "buyer", addressID)
	require.NoError(t, err)

	// price change after the payment opened does not alter the order
	require.NoError(t, f.catalog.UpdatePrice(ctx, "S1", "A", 999))

	_, err = f.checkout.ConfirmPayment(ctx, "buyer", session.ID, "pay123", "sig")
	require.NoError(t, err)

	orders, err := f.order.ListSellerOrders(ctx, "S1")
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, int64(200), orders[0].TotalAmount)
}

func TestRecoverStale_MarksStuckSessionsFailed(t *testing.T) {
	f, _ := scenarioA(t)
	ctx := context.Background()

	stuck := &domain.CheckoutSession{
		ID:        "stuck",
		BuyerID:   "buyer",
		State:     domain.CheckoutStateCommitting,
		PaymentID: "pay1",
		Lines:     []domain.CartLine{{BookID: "A", SellerID: "S1", Price: 100, Quantity: 2}},
		UpdatedAt: time.Now().Add(-time.Hour),
	}
	require.NoError(t, f.sessions.CreateSession(ctx, stuck))

	n, err := f.checkout.RecoverStale(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := f.checkout.GetSession(ctx, "buyer", "stuck")
	require.NoError(t, err)
	assert.Equal(t, domain.CheckoutStateFailed, got.State)

	got, err = f.checkout.RetryCommit(ctx, "buyer", "stuck")
	require.NoError(t, err)
	assert.Equal(t, domain.CheckoutStateIdle, got.State)
	assert.Equal(t, int64(1), f.pending(t, "S1"))
}

func TestCheckout_LostOutcomeIsRecoveredWithoutDoubleCounting(t *testing.T) {
	f, addressID := scenarioA(t)
	ctx := context.Background()
	f.expectGateway(450, "order_gw1")

	session, err := f.checkout.Begin(ctx, "buyer", addressID)
	require.NoError(t, err)

	// the orders land but neither the report checkpoint nor the final
	// outcome reaches the session store
	f.sessions.failCommitting = true
	_, err = f.checkout.ConfirmPayment(ctx, "buyer", session.ID, "pay123", "sig")
	require.ErrorIs(t, err, errStoreDown)
	assert.Equal(t, 2, f.sessions.failed)
	assert.Equal(t, int64(1), f.pending(t, "S1"))
	assert.Equal(t, int64(1), f.pending(t, "S2"))

	stored, err := f.checkout.GetSession(ctx, "buyer", session.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.CheckoutStateCommitting, stored.State)
	assert.Nil(t, stored.Report)

	f.sessions.heal()
	f.checkout.now = func() time.Time { return time.Now().Add(2 * time.Minute) }
	n, err := f.checkout.RecoverStale(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	session, err = f.checkout.RetryCommit(ctx, "buyer", session.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.CheckoutStateIdle, session.State)
	assert.True(t, session.Report.Complete())

	assert.Equal(t, int64(1), f.pending(t, "S1"), "S1 must not be counted twice")
	assert.Equal(t, int64(1), f.pending(t, "S2"), "S2 must not be counted twice")
	orders, err := f.order.ListBuyerOrders(ctx, "buyer")
	require.NoError(t, err)
	assert.Len(t, orders, 2)
}

func TestCheckout_CheckpointKeepsProgressWhenOutcomeIsLost(t *testing.T) {
	f, addressID := scenarioA(t)
	ctx := context.Background()
	f.expectGateway(450, "order_gw1")

	session, err := f.checkout.Begin(ctx, "buyer", addressID)
	require.NoError(t, err)

	// fail only the final update; the checkpoint before it goes through
	checkpoint := &onceFailingSessions{flakySessions: f.sessions, skip: 1}
	f.checkout.sessions = checkpoint
	_, err = f.checkout.ConfirmPayment(ctx, "buyer", session.ID, "pay123", "sig")
	require.ErrorIs(t, err, errStoreDown)

	stored, err := f.checkout.GetSession(ctx, "buyer", session.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.CheckoutStateCommitting, stored.State)
	require.NotNil(t, stored.Report)
	for _, g := range stored.Report.Groups {
		assert.True(t, g.Done(), "seller %s should be checkpointed as done", g.SellerID)
	}
}

// onceFailingSessions lets skip updates out of Committing through, fails the
// next one and passes everything after it.
type onceFailingSessions struct {
	*flakySessions
	mu   sync.Mutex
	skip int
	done bool
}

func (o *onceFailingSessions) UpdateSession(ctx context.Context, session *domain.CheckoutSession, from domain.CheckoutState) error {
	o.mu.Lock()
	fail := false
	if from == domain.CheckoutStateCommitting && !o.done {
		if o.skip > 0 {
			o.skip--
		} else {
			fail, o.done = true, true
		}
	}
	o.mu.Unlock()
	if fail {
		return errStoreDown
	}
	return o.flakySessions.UpdateSession(ctx, session, from)
}

func TestCheckout_BeginRefusedWhilePaidSessionUnsettled(t *testing.T) {
	f, addressID := scenarioA(t)
	ctx := context.Background()
	f.orders.failFor["S2"] = true
	f.expectGateway(450, "order_gw1")

	session, err := f.checkout.Begin(ctx, "buyer", addressID)
	require.NoError(t, err)
	_, err = f.checkout.ConfirmPayment(ctx, "buyer", session.ID, "pay123", "sig")
	require.ErrorIs(t, err, ErrPartialCommit)

	// B is still in the cart but was already paid for
	_, err = f.checkout.Begin(ctx, "buyer", addressID)
	assert.ErrorIs(t, err, ErrUnsettled)
	f.gateway.AssertNumberOfCalls(t, "CreateOrder", 1)

	// other buyers are unaffected
	f.addToCart(t, "other", "A", 1)
	otherAddress := f.saveAddress(t, "other")
	f.expectGateway(100, "order_gw_other")
	_, err = f.checkout.Begin(ctx, "other", otherAddress)
	require.NoError(t, err)

	f.orders.heal()
	_, err = f.checkout.RetryCommit(ctx, "buyer", session.ID)
	require.NoError(t, err)

	f.addToCart(t, "buyer", "A", 1)
	f.expectGateway(100, "order_gw2")
	next, err := f.checkout.Begin(ctx, "buyer", addressID)
	require.NoError(t, err)
	assert.Equal(t, int64(100), next.Amount)
}
