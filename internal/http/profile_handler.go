package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/fjod/book_market/internal/domain"
	"github.com/go-chi/chi/v5"
)

type WishlistService interface {
	List(ctx context.Context, userID string) ([]*domain.WishlistItem, error)
	Toggle(ctx context.Context, userID, bookID string) (bool, error)
	Remove(ctx context.Context, userID, bookID string) error
}

type AddressService interface {
	List(ctx context.Context, userID string) ([]*domain.Address, error)
	Save(ctx context.Context, userID, label, text string) (*domain.Address, error)
	Delete(ctx context.Context, userID, id string) error
}

// ProfileHandler serves the buyer's wishlist and saved addresses.
type ProfileHandler struct {
	wishlist  WishlistService
	addresses AddressService
	timeout   time.Duration
	log       *slog.Logger
}

func NewProfileHandler(wishlist WishlistService, addresses AddressService, timeout time.Duration, log *slog.Logger) *ProfileHandler {
	return &ProfileHandler{
		wishlist:  wishlist,
		addresses: addresses,
		timeout:   timeout,
		log:       log,
	}
}

type WishlistResponse struct {
	Items []*domain.WishlistItem `json:"items"`
}

type ToggleWishlistResponse struct {
	BookID     string `json:"book_id"`
	Wishlisted bool   `json:"wishlisted"`
}

type SaveAddressRequestDTO struct {
	Label string `json:"label"`
	Text  string `json:"text"`
}

type AddressesResponse struct {
	Addresses []*domain.Address `json:"addresses"`
}

// GET /api/v1/wishlist
func (h *ProfileHandler) ListWishlist(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	items, err := h.wishlist.List(ctx, getUserIDFromContext(r.Context()))
	if err != nil {
		respondServiceError(w, r, h.log, err)
		return
	}

	respondJSON(w, http.StatusOK, &WishlistResponse{Items: items})
}

// PUT /api/v1/wishlist/{book_id}
func (h *ProfileHandler) ToggleWishlist(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	bookID := chi.URLParam(r, "book_id")
	present, err := h.wishlist.Toggle(ctx, getUserIDFromContext(r.Context()), bookID)
	if err != nil {
		respondServiceError(w, r, h.log, err)
		return
	}

	respondJSON(w, http.StatusOK, &ToggleWishlistResponse{BookID: bookID, Wishlisted: present})
}

// DELETE /api/v1/wishlist/{book_id}
func (h *ProfileHandler) RemoveWishlist(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	if err := h.wishlist.Remove(ctx, getUserIDFromContext(r.Context()), chi.URLParam(r, "book_id")); err != nil {
		respondServiceError(w, r, h.log, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// GET /api/v1/addresses
func (h *ProfileHandler) ListAddresses(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	addresses, err := h.addresses.List(ctx, getUserIDFromContext(r.Context()))
	if err != nil {
		respondServiceError(w, r, h.log, err)
		return
	}

	respondJSON(w, http.StatusOK, &AddressesResponse{Addresses: addresses})
}

// POST /api/v1/addresses
func (h *ProfileHandler) SaveAddress(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req SaveAddressRequestDTO
	if !decodeJSON(w, r, &req) {
		return
	}

	address, err := h.addresses.Save(ctx, getUserIDFromContext(r.Context()), req.Label, req.Text)
	if err != nil {
		respondServiceError(w, r, h.log, err)
		return
	}

	respondJSON(w, http.StatusCreated, address)
}

// DELETE /api/v1/addresses/{address_id}
func (h *ProfileHandler) DeleteAddress(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	if err := h.addresses.Delete(ctx, getUserIDFromContext(r.Context()), chi.URLParam(r, "address_id")); err != nil {
		respondServiceError(w, r, h.log, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
