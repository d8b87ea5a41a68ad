package payment

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
)

var (
	ErrInvalidSignature = errors.New("payment signature mismatch")
	ErrInvalidAmount    = errors.New("payment amount must be positive")
	ErrGatewayRejected  = errors.New("payment gateway rejected the request")
)

// Order is the gateway-side handle of a pending payment. The storefront hands
// ID and the key to the payment widget.
type Order struct {
	ID       string `json:"id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Receipt  string `json:"receipt"`
	Status   string `json:"status"`
}

type Gateway interface {
	CreateOrder(ctx context.Context, amountMinor int64, currency, receipt string) (*Order, error)
	// VerifyPayment checks the signature the widget returns on success.
	VerifyPayment(orderID, paymentID, signature string) error
}

// Sign computes the success-callback signature: hex HMAC-SHA256 of
// "orderID|paymentID" keyed with the API secret.
func Sign(secret, orderID, paymentID string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(orderID + "|" + paymentID))
	return hex.EncodeToString(mac.Sum(nil))
}

func verify(secret, orderID, paymentID, signature string) error {
	expected := Sign(secret, orderID, paymentID)
	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return ErrInvalidSignature
	}
	return nil
}
