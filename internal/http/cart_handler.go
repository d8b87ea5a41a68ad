package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/fjod/book_market/internal/domain"
	"github.com/go-chi/chi/v5"
)

type CartService interface {
	View(ctx context.Context, buyerID string) (*domain.CartView, error)
	AddItem(ctx context.Context, buyerID, bookID string) (*domain.CartView, error)
	ChangeQuantity(ctx context.Context, buyerID, bookID string, delta int) (*domain.CartView, error)
	RemoveItem(ctx context.Context, buyerID, bookID string) (*domain.CartView, error)
	Clear(ctx context.Context, buyerID string) error
}

type CartHandler struct {
	cart    CartService
	timeout time.Duration
	log     *slog.Logger
}

func NewCartHandler(cart CartService, timeout time.Duration, log *slog.Logger) *CartHandler {
	return &CartHandler{
		cart:    cart,
		timeout: timeout,
		log:     log,
	}
}

type AddItemRequestDTO struct {
	BookID string `json:"book_id"`
}

type ChangeQuantityRequestDTO struct {
	Delta int `json:"delta"`
}

func (h *CartHandler) GetCart(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	view, err := h.cart.View(ctx, getUserIDFromContext(r.Context()))
	if err != nil {
		respondServiceError(w, r, h.log, err)
		return
	}

	respondJSON(w, http.StatusOK, view)
}

func (h *CartHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req AddItemRequestDTO
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.BookID == "" {
		respondError(w, http.StatusBadRequest, "invalid_book_id", "book_id is required")
		return
	}

	view, err := h.cart.AddItem(ctx, getUserIDFromContext(r.Context()), req.BookID)
	if err != nil {
		respondServiceError(w, r, h.log, err)
		return
	}

	respondJSON(w, http.StatusCreated, view)
}

func (h *CartHandler) ChangeQuantity(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req ChangeQuantityRequestDTO
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Delta == 0 || req.Delta > 99 || req.Delta < -99 {
		respondError(w, http.StatusBadRequest, "invalid_delta", "delta must be between -99 and 99 and not zero")
		return
	}

	view, err := h.cart.ChangeQuantity(ctx, getUserIDFromContext(r.Context()), chi.URLParam(r, "book_id"), req.Delta)
	if err != nil {
		respondServiceError(w, r, h.log, err)
		return
	}

	respondJSON(w, http.StatusOK, view)
}

func (h *CartHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	view, err := h.cart.RemoveItem(ctx, getUserIDFromContext(r.Context()), chi.URLParam(r, "book_id"))
	if err != nil {
		respondServiceError(w, r, h.log, err)
		return
	}

	respondJSON(w, http.StatusOK, view)
}

func (h *CartHandler) ClearCart(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	if err := h.cart.Clear(ctx, getUserIDFromContext(r.Context())); err != nil {
		respondServiceError(w, r, h.log, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
