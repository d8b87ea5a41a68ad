package http

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/fjod/book_market/internal/domain"
	"github.com/fjod/book_market/internal/service"
	"github.com/go-chi/chi/v5"
)

const maxBrowseLimit = 100

type ListingService interface {
	Browse(ctx context.Context, filter domain.CatalogFilter) ([]*domain.Book, error)
	Get(ctx context.Context, bookID string) (*domain.Book, error)
	Create(ctx context.Context, sellerID string, in service.ListingInput) (*domain.Book, error)
	UpdatePrice(ctx context.Context, sellerID, bookID, price string) (*domain.Book, error)
	Delete(ctx context.Context, sellerID, bookID string) error
	ListOwn(ctx context.Context, sellerID string) ([]*domain.Book, error)
}

type CatalogHandler struct {
	listings ListingService
	timeout  time.Duration
	log      *slog.Logger
}

func NewCatalogHandler(listings ListingService, timeout time.Duration, log *slog.Logger) *CatalogHandler {
	return &CatalogHandler{
		listings: listings,
		timeout:  timeout,
		log:      log,
	}
}

type BookResponse struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Author       string `json:"author"`
	Category     string `json:"category"`
	Description  string `json:"description"`
	Price        int64  `json:"price"`
	PriceDisplay string `json:"price_display"`
	ImageURL     string `json:"image_url"`
	SellerID     string `json:"seller_id"`
}

type BooksResponse struct {
	Books []BookResponse `json:"books"`
}

type CreateListingRequestDTO struct {
	Name        string `json:"name"`
	Author      string `json:"author"`
	Category    string `json:"category"`
	Description string `json:"description"`
	Price       string `json:"price"`
	ImageURL    string `json:"image_url"`
}

type UpdatePriceRequestDTO struct {
	Price string `json:"price"`
}

func toBookResponse(b *domain.Book) BookResponse {
	return BookResponse{
		ID:           b.ID,
		Name:         b.Name,
		Author:       b.Author,
		Category:     b.Category,
		Description:  b.Description,
		Price:        b.Price,
		PriceDisplay: service.FormatPrice(b.Price),
		ImageURL:     b.ImageURL,
		SellerID:     b.SellerID,
	}
}

func toBooksResponse(books []*domain.Book) *BooksResponse {
	out := make([]BookResponse, len(books))
	for i, b := range books {
		out[i] = toBookResponse(b)
	}
	return &BooksResponse{Books: out}
}

// GET /api/v1/books?category=&min_price=&max_price=&limit=
func (h *CatalogHandler) Browse(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	q := r.URL.Query()
	filter := domain.CatalogFilter{Category: q.Get("category")}
	for param, dst := range map[string]**int64{"min_price": &filter.MinPrice, "max_price": &filter.MaxPrice} {
		raw := q.Get(param)
		if raw == "" {
			continue
		}
		minor, err := service.ParsePrice(raw)
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid_"+param, err.Error())
			return
		}
		*dst = &minor
	}
	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || limit <= 0 || limit > maxBrowseLimit {
			respondError(w, http.StatusBadRequest, "invalid_limit", "limit must be between 1 and 100")
			return
		}
		filter.Limit = limit
	}

	books, err := h.listings.Browse(ctx, filter)
	if err != nil {
		respondServiceError(w, r, h.log, err)
		return
	}

	respondJSON(w, http.StatusOK, toBooksResponse(books))
}

// GET /api/v1/books/{book_id}
func (h *CatalogHandler) Get(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	book, err := h.listings.Get(ctx, chi.URLParam(r, "book_id"))
	if err != nil {
		respondServiceError(w, r, h.log, err)
		return
	}

	respondJSON(w, http.StatusOK, toBookResponse(book))
}

// GET /api/v1/seller/listings
func (h *CatalogHandler) ListOwn(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	books, err := h.listings.ListOwn(ctx, getUserIDFromContext(r.Context()))
	if err != nil {
		respondServiceError(w, r, h.log, err)
		return
	}

	respondJSON(w, http.StatusOK, toBooksResponse(books))
}

// POST /api/v1/seller/listings
func (h *CatalogHandler) Create(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req CreateListingRequestDTO
	if !decodeJSON(w, r, &req) {
		return
	}

	book, err := h.listings.Create(ctx, getUserIDFromContext(r.Context()), service.ListingInput{
		Name:        req.Name,
		Author:      req.Author,
		Category:    req.Category,
		Description: req.Description,
		Price:       req.Price,
		ImageURL:    req.ImageURL,
	})
	if err != nil {
		respondServiceError(w, r, h.log, err)
		return
	}

	respondJSON(w, http.StatusCreated, toBookResponse(book))
}

// PATCH /api/v1/seller/listings/{book_id}/price
func (h *CatalogHandler) UpdatePrice(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req UpdatePriceRequestDTO
	if !decodeJSON(w, r, &req) {
		return
	}

	book, err := h.listings.UpdatePrice(ctx, getUserIDFromContext(r.Context()), chi.URLParam(r, "book_id"), req.Price)
	if err != nil {
		respondServiceError(w, r, h.log, err)
		return
	}

	respondJSON(w, http.StatusOK, toBookResponse(book))
}

// DELETE /api/v1/seller/listings/{book_id}
func (h *CatalogHandler) Delete(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	if err := h.listings.Delete(ctx, getUserIDFromContext(r.Context()), chi.URLParam(r, "book_id")); err != nil {
		respondServiceError(w, r, h.log, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
