package domain

import (
	"errors"
	"fmt"
)

type CheckoutState string

const (
	CheckoutStateIdle            CheckoutState = "IDLE"
	CheckoutStateAwaitingPayment CheckoutState = "AWAITING_PAYMENT"
	CheckoutStateCommitting      CheckoutState = "COMMITTING"
	CheckoutStateFailed          CheckoutState = "FAILED"
)

type CheckoutEvent string

const (
	EventCheckoutRequested CheckoutEvent = "CHECKOUT_REQUESTED"
	EventPaymentSucceeded  CheckoutEvent = "PAYMENT_SUCCEEDED"
	EventPaymentAbandoned  CheckoutEvent = "PAYMENT_ABANDONED"
	EventCommitSucceeded   CheckoutEvent = "COMMIT_SUCCEEDED"
	EventCommitFailed      CheckoutEvent = "COMMIT_FAILED"
	EventRetryRequested    CheckoutEvent = "RETRY_REQUESTED"
)

var ErrIllegalTransition = errors.New("illegal transition of checkout state")

var transitions = map[CheckoutState]map[CheckoutEvent]CheckoutState{
	CheckoutStateIdle: {
		EventCheckoutRequested: CheckoutStateAwaitingPayment,
	},
	CheckoutStateAwaitingPayment: {
		EventPaymentSucceeded: CheckoutStateCommitting,
		EventPaymentAbandoned: CheckoutStateIdle,
	},
	CheckoutStateCommitting: {
		EventCommitSucceeded: CheckoutStateIdle,
		EventCommitFailed:    CheckoutStateFailed,
	},
	CheckoutStateFailed: {
		EventRetryRequested: CheckoutStateCommitting,
	},
}

// Transition is the single reducer of the checkout workflow.
func Transition(from CheckoutState, event CheckoutEvent) (CheckoutState, error) {
	next, ok := transitions[from][event]
	if !ok {
		return from, fmt.Errorf("%w: %s on %s", ErrIllegalTransition, event, from)
	}
	return next, nil
}

func CanTransition(from CheckoutState, event CheckoutEvent) bool {
	_, ok := transitions[from][event]
	return ok
}

// IsSuspended reports whether the workflow waits for something outside of it:
// the payment callback or an explicit retry.
func (s CheckoutState) IsSuspended() bool {
	return s == CheckoutStateAwaitingPayment || s == CheckoutStateFailed
}

func (s CheckoutState) String() string {
	return string(s)
}
