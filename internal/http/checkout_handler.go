package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/fjod/book_market/internal/domain"
	"github.com/go-chi/chi/v5"
)

type CheckoutService interface {
	Begin(ctx context.Context, buyerID, addressID string) (*domain.CheckoutSession, error)
	ConfirmPayment(ctx context.Context, buyerID, sessionID, paymentID, signature string) (*domain.CheckoutSession, error)
	Abandon(ctx context.Context, buyerID, sessionID string) (*domain.CheckoutSession, error)
	RetryCommit(ctx context.Context, buyerID, sessionID string) (*domain.CheckoutSession, error)
	GetSession(ctx context.Context, buyerID, sessionID string) (*domain.CheckoutSession, error)
}

type CheckoutHandler struct {
	checkout CheckoutService
	keyID    string
	timeout  time.Duration
	log      *slog.Logger
}

// NewCheckoutHandler builds the checkout endpoints. keyID is the public
// gateway key the payment widget is opened with.
func NewCheckoutHandler(checkout CheckoutService, keyID string, timeout time.Duration, log *slog.Logger) *CheckoutHandler {
	return &CheckoutHandler{
		checkout: checkout,
		keyID:    keyID,
		timeout:  timeout,
		log:      log,
	}
}

type BeginCheckoutRequestDTO struct {
	AddressID string `json:"address_id"`
}

type ConfirmPaymentRequestDTO struct {
	PaymentID string `json:"payment_id"`
	Signature string `json:"signature"`
}

type CheckoutResponseDTO struct {
	SessionID      string               `json:"session_id"`
	State          string               `json:"state"`
	Amount         int64                `json:"amount"`
	Currency       string               `json:"currency"`
	GatewayOrderID string               `json:"gateway_order_id,omitempty"`
	GatewayKeyID   string               `json:"gateway_key_id,omitempty"`
	PaymentID      string               `json:"payment_id,omitempty"`
	Report         *domain.CommitReport `json:"report,omitempty"`
}

func (h *CheckoutHandler) toDTO(s *domain.CheckoutSession) CheckoutResponseDTO {
	dto := CheckoutResponseDTO{
		SessionID:      s.ID,
		State:          s.State.String(),
		Amount:         s.Amount,
		Currency:       s.Currency,
		GatewayOrderID: s.GatewayOrderID,
		PaymentID:      s.PaymentID,
		Report:         s.Report,
	}
	if s.State == domain.CheckoutStateAwaitingPayment {
		dto.GatewayKeyID = h.keyID
	}
	return dto
}

// POST /api/v1/checkout
func (h *CheckoutHandler) Begin(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req BeginCheckoutRequestDTO
	if !decodeJSON(w, r, &req) {
		return
	}

	session, err := h.checkout.Begin(ctx, getUserIDFromContext(r.Context()), req.AddressID)
	if err != nil {
		respondServiceError(w, r, h.log, err)
		return
	}

	respondJSON(w, http.StatusCreated, h.toDTO(session))
}

// POST /api/v1/checkout/{session_id}/payment
func (h *CheckoutHandler) ConfirmPayment(w http.ResponseWriter, r *http.Request) {
	var req ConfirmPaymentRequestDTO
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.PaymentID == "" || req.Signature == "" {
		respondError(w, http.StatusBadRequest, "invalid_request", "payment_id and signature are required")
		return
	}

	// The commit runs to completion on its own deadline once started.
	session, err := h.checkout.ConfirmPayment(r.Context(), getUserIDFromContext(r.Context()),
		chi.URLParam(r, "session_id"), req.PaymentID, req.Signature)
	if err != nil {
		respondServiceError(w, r, h.log, err)
		return
	}

	respondJSON(w, http.StatusOK, h.toDTO(session))
}

// POST /api/v1/checkout/{session_id}/abandon
func (h *CheckoutHandler) Abandon(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	session, err := h.checkout.Abandon(ctx, getUserIDFromContext(r.Context()), chi.URLParam(r, "session_id"))
	if err != nil {
		respondServiceError(w, r, h.log, err)
		return
	}

	respondJSON(w, http.StatusOK, h.toDTO(session))
}

// POST /api/v1/checkout/{session_id}/retry
func (h *CheckoutHandler) Retry(w http.ResponseWriter, r *http.Request) {
	session, err := h.checkout.RetryCommit(r.Context(), getUserIDFromContext(r.Context()), chi.URLParam(r, "session_id"))
	if err != nil {
		respondServiceError(w, r, h.log, err)
		return
	}

	respondJSON(w, http.StatusOK, h.toDTO(session))
}

// GET /api/v1/checkout/{session_id}
func (h *CheckoutHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	session, err := h.checkout.GetSession(ctx, getUserIDFromContext(r.Context()), chi.URLParam(r, "session_id"))
	if err != nil {
		respondServiceError(w, r, h.log, err)
		return
	}

	respondJSON(w, http.StatusOK, h.toDTO(session))
}
