package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"github.com/fjod/book_market/internal/cache"
	"github.com/fjod/book_market/internal/config"
	h "github.com/fjod/book_market/internal/http"
	"github.com/fjod/book_market/internal/payment"
	"github.com/fjod/book_market/internal/publisher"
	"github.com/fjod/book_market/internal/repository"
	"github.com/fjod/book_market/internal/repository/memory"
	"github.com/fjod/book_market/internal/repository/postgres"
	"github.com/fjod/book_market/internal/service"
	"github.com/fjod/book_market/pkg/logger"
)

// stores holds the repositories picked by configuration.
type stores struct {
	carts     repository.CartRepository
	catalog   repository.CatalogRepository
	orders    repository.OrderRepository
	counters  repository.CounterRepository
	sellers   repository.SellerRepository
	addresses repository.AddressRepository
	wishlists repository.WishlistRepository
	sessions  repository.SessionRepository

	health  map[string]h.HealthCheck
	closers []func()
}

func (s *stores) close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}

func openStores(ctx context.Context, cfg *config.Config, lg *slog.Logger) *stores {
	s := &stores{health: map[string]h.HealthCheck{}}

	switch cfg.Storage {
	case config.StorageMongo:
		db, err := repository.ConnectMongoDB(ctx, repository.MongoOptions{URI: cfg.MongoURI, Database: cfg.MongoDBName})
		if err != nil {
			log.Fatalf("Failed to connect to MongoDB: %v", err)
		}
		store := repository.NewStore(db)
		if err := store.CreateIndexes(ctx); err != nil {
			log.Fatalf("Failed to create MongoDB indexes: %v", err)
		}
		s.carts, s.catalog, s.orders = store.Carts, store.Catalog, store.Orders
		s.counters, s.sellers = store.Sellers, store.Sellers
		s.addresses, s.wishlists = store.Addresses, store.Wishlists
		s.health["mongo"] = func(ctx context.Context) error { return db.Client().Ping(ctx, nil) }
		s.closers = append(s.closers, func() { _ = db.Client().Disconnect(context.Background()) })
		lg.Info("connected to MongoDB", slog.String("database", cfg.MongoDBName))
	default:
		s.carts = memory.NewCartStore()
		s.catalog = memory.NewCatalogStore()
		s.orders = memory.NewOrderStore()
		sellers := memory.NewSellerStore()
		s.counters, s.sellers = sellers, sellers
		s.addresses = memory.NewAddressStore()
		s.wishlists = memory.NewWishlistStore()
		lg.Warn("using in-memory storage; data is lost on restart")
	}

	if cfg.PostgresHost == "" {
		s.sessions = memory.NewSessionStore()
		return s
	}
	cred := &postgres.Credentials{
		Host:              cfg.PostgresHost,
		Port:              cfg.PostgresPort,
		User:              cfg.PostgresUser,
		Password:          cfg.PostgresPassword,
		DBName:            cfg.PostgresDB,
		SSLMode:           cfg.PostgresSSLMode,
		MigrationsDirPath: cfg.MigrationsPath,
	}
	sessions, err := postgres.NewSessionRepository(ctx, cred)
	if err != nil {
		log.Fatalf("Failed to connect to Postgres: %v", err)
	}
	if err := sessions.RunMigrations(cred); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}
	s.sessions = sessions
	s.health["postgres"] = sessions.Ping
	s.closers = append(s.closers, func() { _ = sessions.Close() })
	lg.Info("checkout sessions stored in Postgres", slog.String("host", cfg.PostgresHost))
	return s
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	lg := logger.New(logger.Options{Service: "storefront", Level: cfg.LogLevel})
	slog.SetDefault(lg)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))

	ctx := context.Background()
	st := openStores(ctx, cfg, lg)
	defer st.close()

	var cartCache cache.CartCache
	if cfg.RedisAddr != "" {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       0,
		})
		defer redisClient.Close()
		if err := redisClient.Ping(ctx).Err(); err != nil {
			log.Fatalf("Redis connection failed: %v", err)
		}
		redisCache := cache.NewRedisCache(redisClient, cfg.CartCacheTTL)
		cartCache = redisCache
		st.health["redis"] = redisCache.Ping
		lg.Info("cart cache enabled", slog.String("addr", cfg.RedisAddr))
	}

	var events publisher.OrderPublisher = publisher.Nop{}
	if len(cfg.KafkaBrokers) > 0 {
		kafkaPublisher := publisher.NewKafkaPublisher(cfg.KafkaBrokers...)
		defer kafkaPublisher.Close()
		events = kafkaPublisher
		lg.Info("order events published to Kafka", slog.Any("brokers", cfg.KafkaBrokers))
	}

	var gateway payment.Gateway
	keyID := cfg.RazorpayKeyID
	if keyID != "" {
		gateway = payment.NewRazorpayClient(payment.RazorpayConfig{
			KeyID:     cfg.RazorpayKeyID,
			KeySecret: cfg.RazorpayKeySecret,
			BaseURL:   cfg.RazorpayBaseURL,
		}, lg)
	} else {
		keyID = "sandbox"
		gateway = payment.NewSandbox(cfg.SandboxSecret)
		lg.Warn("RAZORPAY_KEY_ID not set; using the sandbox payment gateway")
	}

	retry := service.DefaultRetryPolicy()
	retry.MaxRetries = uint64(cfg.CommitMaxRetries)

	cartService := service.NewCartService(st.carts, st.catalog, cartCache, lg)
	checkoutService := service.NewCheckoutService(cartService, st.addresses, st.sessions, st.orders, st.counters,
		gateway, events, lg, service.CheckoutConfig{
			Currency:      cfg.Currency,
			Retry:         retry,
			CommitTimeout: cfg.CommitTimeout,
			StaleAfter:    cfg.StaleSessionAge,
		})
	orderService := service.NewOrderService(st.orders, st.counters, st.catalog, events, retry, lg)

	router := h.NewRouter(h.RouterConfig{
		JWTSecret:      []byte(cfg.JWTSecret),
		RequestTimeout: cfg.RequestTimeout,
		Log:            lg,
		HealthChecks:   st.health,
		Catalog:        h.NewCatalogHandler(service.NewListingService(st.catalog, lg), cfg.RequestTimeout, lg),
		Cart:           h.NewCartHandler(cartService, cfg.RequestTimeout, lg),
		Checkout:       h.NewCheckoutHandler(checkoutService, keyID, cfg.RequestTimeout, lg),
		Orders:         h.NewOrdersHandler(orderService, cfg.RequestTimeout, lg),
		Profile: h.NewProfileHandler(
			service.NewWishlistService(st.wishlists, st.catalog),
			service.NewAddressService(st.addresses),
			cfg.RequestTimeout, lg),
		Seller: h.NewSellerHandler(service.NewSellerService(st.sellers, lg), cfg.RequestTimeout, lg),
	})

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      otelhttp.NewHandler(router, "storefront"),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.RequestTimeout + cfg.CommitTimeout,
		IdleTimeout:  60 * time.Second,
	}

	recoveryCtx, stopRecovery := context.WithCancel(ctx)
	defer stopRecovery()
	go checkoutService.RunRecovery(recoveryCtx, cfg.RecoveryInterval)

	go func() {
		lg.Info("storefront starting", slog.String("port", cfg.HTTPPort))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server error: %v", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	lg.Info("shutting down server")
	stopRecovery()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		lg.Error("server forced to shutdown", slog.Any("error", err))
	}

	lg.Info("server exited")
}

