package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/fjod/book_market/internal/domain"
)

type SellerProfileService interface {
	GetProfile(ctx context.Context, sellerID string) (*domain.SellerProfile, error)
	UpdateProfile(ctx context.Context, sellerID string, in domain.SellerProfile) (*domain.SellerProfile, error)
}

type SellerHandler struct {
	sellers SellerProfileService
	timeout time.Duration
	log     *slog.Logger
}

func NewSellerHandler(sellers SellerProfileService, timeout time.Duration, log *slog.Logger) *SellerHandler {
	return &SellerHandler{
		sellers: sellers,
		timeout: timeout,
		log:     log,
	}
}

type UpdateSellerProfileRequestDTO struct {
	SellerName        string   `json:"seller_name"`
	EnterpriseName    string   `json:"enterprise_name"`
	GSTNumber         string   `json:"gst_number"`
	WarehouseLocation string   `json:"warehouse_location"`
	Genres            []string `json:"genres"`
}

// GET /api/v1/seller/profile
func (h *SellerHandler) GetProfile(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	profile, err := h.sellers.GetProfile(ctx, getUserIDFromContext(r.Context()))
	if err != nil {
		respondServiceError(w, r, h.log, err)
		return
	}

	respondJSON(w, http.StatusOK, profile)
}

// PUT /api/v1/seller/profile
func (h *SellerHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req UpdateSellerProfileRequestDTO
	if !decodeJSON(w, r, &req) {
		return
	}

	profile, err := h.sellers.UpdateProfile(ctx, getUserIDFromContext(r.Context()), domain.SellerProfile{
		SellerName:        req.SellerName,
		EnterpriseName:    req.EnterpriseName,
		GSTNumber:         req.GSTNumber,
		WarehouseLocation: req.WarehouseLocation,
		Genres:            req.Genres,
	})
	if err != nil {
		respondServiceError(w, r, h.log, err)
		return
	}

	respondJSON(w, http.StatusOK, profile)
}
