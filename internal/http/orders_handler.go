package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/fjod/book_market/internal/domain"
	"github.com/fjod/book_market/internal/service"
	"github.com/go-chi/chi/v5"
)

type OrderService interface {
	ListBuyerOrders(ctx context.Context, buyerID string) ([]*domain.Order, error)
	ListSellerOrders(ctx context.Context, sellerID string) ([]*domain.Order, error)
	MarkDelivered(ctx context.Context, sellerID, orderID string) (*domain.Order, error)
	SellerDashboard(ctx context.Context, sellerID string) (*service.SellerDashboard, error)
}

type OrdersHandler struct {
	orders  OrderService
	timeout time.Duration
	log     *slog.Logger
}

func NewOrdersHandler(orders OrderService, timeout time.Duration, log *slog.Logger) *OrdersHandler {
	return &OrdersHandler{
		orders:  orders,
		timeout: timeout,
		log:     log,
	}
}

type OrderItemDTO struct {
	BookID   string `json:"book_id"`
	Name     string `json:"name"`
	Quantity int    `json:"quantity"`
	Price    int64  `json:"price"`
}

type OrderResponseDTO struct {
	ID           string         `json:"id"`
	BuyerID      string         `json:"buyer_id"`
	SellerID     string         `json:"seller_id"`
	PaymentID    string         `json:"payment_id"`
	TotalAmount  int64          `json:"total_amount"`
	TotalDisplay string         `json:"total_display"`
	Currency     string         `json:"currency"`
	Status       string         `json:"status"`
	Address      string         `json:"address"`
	Items        []OrderItemDTO `json:"items"`
	CreatedAt    string         `json:"created_at"`
}

type OrdersResponse struct {
	Orders []OrderResponseDTO `json:"orders"`
}

func toOrderDTO(o *domain.Order) OrderResponseDTO {
	items := make([]OrderItemDTO, len(o.Items))
	for i, item := range o.Items {
		items[i] = OrderItemDTO{
			BookID:   item.BookID,
			Name:     item.Name,
			Quantity: item.Quantity,
			Price:    item.Price,
		}
	}
	return OrderResponseDTO{
		ID:           o.ID,
		BuyerID:      o.BuyerID,
		SellerID:     o.SellerID,
		PaymentID:    o.PaymentID,
		TotalAmount:  o.TotalAmount,
		TotalDisplay: service.FormatPrice(o.TotalAmount),
		Currency:     o.Currency,
		Status:       string(o.Status),
		Address:      o.Address.Text,
		Items:        items,
		CreatedAt:    o.CreatedAt.Format(time.RFC3339),
	}
}

func toOrdersResponse(orders []*domain.Order) *OrdersResponse {
	out := make([]OrderResponseDTO, len(orders))
	for i, o := range orders {
		out[i] = toOrderDTO(o)
	}
	return &OrdersResponse{Orders: out}
}

// GET /api/v1/orders
func (h *OrdersHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	orders, err := h.orders.ListBuyerOrders(ctx, getUserIDFromContext(r.Context()))
	if err != nil {
		respondServiceError(w, r, h.log, err)
		return
	}

	respondJSON(w, http.StatusOK, toOrdersResponse(orders))
}

// GET /api/v1/seller/orders
func (h *OrdersHandler) ListSellerOrders(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	orders, err := h.orders.ListSellerOrders(ctx, getUserIDFromContext(r.Context()))
	if err != nil {
		respondServiceError(w, r, h.log, err)
		return
	}

	respondJSON(w, http.StatusOK, toOrdersResponse(orders))
}

// POST /api/v1/seller/orders/{order_id}/deliver
func (h *OrdersHandler) MarkDelivered(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	order, err := h.orders.MarkDelivered(ctx, getUserIDFromContext(r.Context()), chi.URLParam(r, "order_id"))
	if err != nil {
		respondServiceError(w, r, h.log, err)
		return
	}

	respondJSON(w, http.StatusOK, toOrderDTO(order))
}

// GET /api/v1/seller/dashboard
func (h *OrdersHandler) Dashboard(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	d, err := h.orders.SellerDashboard(ctx, getUserIDFromContext(r.Context()))
	if err != nil {
		respondServiceError(w, r, h.log, err)
		return
	}

	respondJSON(w, http.StatusOK, d)
}
