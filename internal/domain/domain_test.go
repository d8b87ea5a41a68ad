package domain

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransition_HappyPath(t *testing.T) {
	state := CheckoutStateIdle
	for _, ev := range []CheckoutEvent{EventCheckoutRequested, EventPaymentSucceeded, EventCommitSucceeded} {
		next, err := Transition(state, ev)
		require.NoError(t, err)
		state = next
	}
	assert.Equal(t, CheckoutStateIdle, state)
}

func TestTransition_AbandonReturnsToIdle(t *testing.T) {
	next, err := Transition(CheckoutStateAwaitingPayment, EventPaymentAbandoned)
	require.NoError(t, err)
	assert.Equal(t, CheckoutStateIdle, next)
}

func TestTransition_FailedCanBeRetried(t *testing.T) {
	next, err := Transition(CheckoutStateCommitting, EventCommitFailed)
	require.NoError(t, err)
	assert.Equal(t, CheckoutStateFailed, next)

	next, err = Transition(next, EventRetryRequested)
	require.NoError(t, err)
	assert.Equal(t, CheckoutStateCommitting, next)
}

func TestTransition_Illegal(t *testing.T) {
	cases := []struct {
		from CheckoutState
		ev   CheckoutEvent
	}{
		{CheckoutStateIdle, EventPaymentSucceeded},
		{CheckoutStateIdle, EventRetryRequested},
		{CheckoutStateAwaitingPayment, EventCheckoutRequested},
		{CheckoutStateCommitting, EventPaymentAbandoned},
		{CheckoutStateFailed, EventPaymentSucceeded},
	}
	for _, c := range cases {
		next, err := Transition(c.from, c.ev)
		assert.True(t, errors.Is(err, ErrIllegalTransition), "%s on %s", c.ev, c.from)
		assert.Equal(t, c.from, next)
		assert.False(t, CanTransition(c.from, c.ev))
	}
}

func TestGroupBySeller_StableOrder(t *testing.T) {
	lines := []CartLine{
		{BookID: "a", SellerID: "s2", Price: 100, Quantity: 1},
		{BookID: "b", SellerID: "s1", Price: 50, Quantity: 2},
		{BookID: "c", SellerID: "s2", Price: 30, Quantity: 3},
	}

	groups := GroupBySeller(lines)

	require.Len(t, groups, 2)
	assert.Equal(t, "s2", groups[0].SellerID)
	assert.Equal(t, "s1", groups[1].SellerID)
	assert.Equal(t, []string{"a", "c"}, []string{groups[0].Lines[0].BookID, groups[0].Lines[1].BookID})
	assert.Equal(t, int64(190), groups[0].Total())
	assert.Equal(t, int64(100), groups[1].Total())
}

func TestGroupBySeller_KeepsDuplicateLines(t *testing.T) {
	lines := []CartLine{
		{BookID: "a", SellerID: "s1", Price: 10, Quantity: 1},
		{BookID: "a", SellerID: "s1", Price: 10, Quantity: 2},
	}

	groups := GroupBySeller(lines)

	require.Len(t, groups, 1)
	assert.Len(t, groups[0].Lines, 2)
	assert.Equal(t, int64(30), groups[0].Total())
}

func TestGroupBySeller_Empty(t *testing.T) {
	assert.Empty(t, GroupBySeller(nil))
}

func TestOrderID_Deterministic(t *testing.T) {
	a := OrderID("buyer", "seller", "pay123")
	b := OrderID("buyer", "seller", "pay123")
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, OrderID("buyer", "seller", "pay124"))
	assert.NotEqual(t, a, OrderID("buyer", "seller2", "pay123"))
	assert.NotEqual(t, OrderID("ab", "c", "p"), OrderID("a", "bc", "p"))
	// ids that contain the characters of the encoding itself
	assert.NotEqual(t, OrderID("a|b", "c", "p"), OrderID("a", "b|c", "p"))
	assert.NotEqual(t, OrderID("1:a", "b", "p"), OrderID("1", "a1:b", "p"))
	assert.NotEqual(t, OrderID("x@mail.com", "y|z", "p"), OrderID("x@mail.com|y", "z", "p"))
}

func TestSellerGroupOrder(t *testing.T) {
	now := time.Now()
	g := SellerGroup{SellerID: "s1", Lines: []CartLine{{BookID: "a", Name: "Dune", Price: 100, Quantity: 2, SellerID: "s1"}}}

	o := g.Order("buyer", "pay123", "INR", ShippingAddress{ID: "addr"}, now)

	assert.Equal(t, OrderID("buyer", "s1", "pay123"), o.ID)
	assert.Equal(t, int64(200), o.TotalAmount)
	assert.Equal(t, OrderStatusPending, o.Status)
	assert.Equal(t, "s1", o.Owner(PartitionSeller))
	assert.Equal(t, "buyer", o.Owner(PartitionBuyer))
	require.Len(t, o.Items, 1)
	assert.Equal(t, "Dune", o.Items[0].Name)
}

func TestCommitReport(t *testing.T) {
	r := &CommitReport{Groups: []SellerCommit{
		{SellerID: "s1", BuyerCopy: true, SellerCopy: true, Counted: true},
		{SellerID: "s2", BuyerCopy: true},
	}}
	assert.False(t, r.Complete())
	assert.Equal(t, []string{"s2"}, r.Failed())

	r.Groups[1].SellerCopy = true
	r.Groups[1].Counted = true
	assert.False(t, r.Complete())
	r.CartCleared = true
	assert.True(t, r.Complete())
	assert.NotNil(t, r.Group("s2"))
	assert.Nil(t, r.Group("s3"))
}

func TestCartQuantity(t *testing.T) {
	c := &Cart{Items: []CartItem{{BookID: "a", Quantity: 3}}}
	assert.Equal(t, 3, c.Quantity("a"))
	assert.Equal(t, 0, c.Quantity("b"))
	var nilCart *Cart
	assert.True(t, nilCart.IsEmpty())
}
