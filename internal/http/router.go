package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/fjod/book_market/internal/metrics"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HealthCheck pings one dependency.
type HealthCheck func(ctx context.Context) error

type RouterConfig struct {
	JWTSecret      []byte
	RequestTimeout time.Duration
	Log            *slog.Logger
	HealthChecks   map[string]HealthCheck

	Catalog  *CatalogHandler
	Cart     *CartHandler
	Checkout *CheckoutHandler
	Orders   *OrdersHandler
	Profile  *ProfileHandler
	Seller   *SellerHandler
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(LoggingMiddleware(cfg.Log))
	r.Use(middleware.Recoverer)
	r.Use(metrics.Middleware)

	r.Get("/health", healthHandler(cfg.HealthChecks))
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		// Payment confirmation and retry run a commit on its own deadline, so
		// they stay outside the request timeout.
		r.Group(func(r chi.Router) {
			r.Use(AuthMiddleware(cfg.JWTSecret))

			r.Post("/checkout/{session_id}/payment", cfg.Checkout.ConfirmPayment)
			r.Post("/checkout/{session_id}/retry", cfg.Checkout.Retry)
		})

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(cfg.RequestTimeout))

			r.Get("/books", cfg.Catalog.Browse)
			r.Get("/books/{book_id}", cfg.Catalog.Get)

			r.Group(func(r chi.Router) {
				r.Use(AuthMiddleware(cfg.JWTSecret))

				r.Route("/cart", func(r chi.Router) {
					r.Get("/", cfg.Cart.GetCart)
					r.Delete("/", cfg.Cart.ClearCart)
					r.Post("/items", cfg.Cart.AddItem)
					r.Patch("/items/{book_id}", cfg.Cart.ChangeQuantity)
					r.Delete("/items/{book_id}", cfg.Cart.RemoveItem)
				})

				r.Post("/checkout", cfg.Checkout.Begin)
				r.Get("/checkout/{session_id}", cfg.Checkout.GetSession)
				r.Post("/checkout/{session_id}/abandon", cfg.Checkout.Abandon)

				r.Get("/orders", cfg.Orders.ListOrders)

				r.Route("/wishlist", func(r chi.Router) {
					r.Get("/", cfg.Profile.ListWishlist)
					r.Put("/{book_id}", cfg.Profile.ToggleWishlist)
					r.Delete("/{book_id}", cfg.Profile.RemoveWishlist)
				})

				r.Route("/addresses", func(r chi.Router) {
					r.Get("/", cfg.Profile.ListAddresses)
					r.Post("/", cfg.Profile.SaveAddress)
					r.Delete("/{address_id}", cfg.Profile.DeleteAddress)
				})

				r.Route("/seller", func(r chi.Router) {
					r.Get("/profile", cfg.Seller.GetProfile)
					r.Put("/profile", cfg.Seller.UpdateProfile)
					r.Get("/listings", cfg.Catalog.ListOwn)
					r.Post("/listings", cfg.Catalog.Create)
					r.Patch("/listings/{book_id}/price", cfg.Catalog.UpdatePrice)
					r.Delete("/listings/{book_id}", cfg.Catalog.Delete)
					r.Get("/orders", cfg.Orders.ListSellerOrders)
					r.Post("/orders/{order_id}/deliver", cfg.Orders.MarkDelivered)
					r.Get("/dashboard", cfg.Orders.Dashboard)
				})
			})
		})
	})

	return r
}

func healthHandler(checks map[string]HealthCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		status := http.StatusOK
		result := map[string]string{"status": "ok"}
		for name, check := range checks {
			if err := check(ctx); err != nil {
				status = http.StatusServiceUnavailable
				result["status"] = "degraded"
				result[name] = err.Error()
				continue
			}
			result[name] = "ok"
		}
		respondJSON(w, status, result)
	}
}
