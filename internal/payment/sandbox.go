package payment

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Sandbox is an offline gateway for local runs. It issues order ids itself
// and verifies signatures with the same scheme as Razorpay, so a client can
// complete a payment by signing with the sandbox secret.
type Sandbox struct {
	Secret string
}

var _ Gateway = (*Sandbox)(nil)

func NewSandbox(secret string) *Sandbox {
	return &Sandbox{Secret: secret}
}

func (s *Sandbox) CreateOrder(_ context.Context, amountMinor int64, currency, receipt string) (*Order, error) {
	if amountMinor <= 0 {
		return nil, ErrInvalidAmount
	}
	id := strings.ReplaceAll(uuid.NewString(), "-", "")[:14]
	return &Order{
		ID:       fmt.Sprintf("order_%s", id),
		Amount:   amountMinor,
		Currency: currency,
		Receipt:  receipt,
		Status:   "created",
	}, nil
}

func (s *Sandbox) VerifyPayment(orderID, paymentID, signature string) error {
	return verify(s.Secret, orderID, paymentID, signature)
}
