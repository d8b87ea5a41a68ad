package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	StorageMemory = "memory"
	StorageMongo  = "mongo"
)

type Config struct {
	HTTPPort        string
	RequestTimeout  time.Duration
	ShutdownTimeout time.Duration
	LogLevel        string
	JWTSecret       string

	Storage     string // memory or mongo
	MongoURI    string
	MongoDBName string

	// Redis cart cache; empty RedisAddr disables it.
	RedisAddr     string
	RedisPassword string
	CartCacheTTL  time.Duration

	// Postgres checkout session store; empty PostgresHost keeps sessions in memory.
	PostgresHost     string
	PostgresPort     int
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string
	MigrationsPath   string

	// Kafka order events; no brokers disables publishing.
	KafkaBrokers []string

	// Razorpay credentials; without a key id the sandbox gateway is used.
	RazorpayKeyID     string
	RazorpayKeySecret string
	RazorpayBaseURL   string
	SandboxSecret     string
	Currency          string

	CommitMaxRetries int
	CommitTimeout    time.Duration
	StaleSessionAge  time.Duration
	RecoveryInterval time.Duration
}

// Load reads the configuration from the environment. A .env file in the
// working directory is loaded first when present; real environment variables
// win over it.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg := &Config{
		HTTPPort:          getEnv("HTTP_PORT", "8080"),
		LogLevel:          getEnv("LOG_LEVEL", "info"),
		JWTSecret:         os.Getenv("JWT_SECRET"),
		Storage:           getEnv("STORAGE", StorageMemory),
		MongoURI:          getEnv("MONGO_URI", "mongodb://localhost:27017"),
		MongoDBName:       getEnv("MONGO_DB_NAME", "bookmarket"),
		RedisAddr:         os.Getenv("REDIS_ADDR"),
		RedisPassword:     os.Getenv("REDIS_PASSWORD"),
		PostgresHost:      os.Getenv("POSTGRES_HOST"),
		PostgresUser:      getEnv("POSTGRES_USER", "postgres"),
		PostgresPassword:  os.Getenv("POSTGRES_PASSWORD"),
		PostgresDB:        getEnv("POSTGRES_DB", "bookmarket"),
		PostgresSSLMode:   getEnv("POSTGRES_SSLMODE", "disable"),
		MigrationsPath:    getEnv("MIGRATIONS_PATH", "internal/repository/postgres/migrations"),
		KafkaBrokers:      splitList(os.Getenv("KAFKA_BROKERS")),
		RazorpayKeyID:     os.Getenv("RAZORPAY_KEY_ID"),
		RazorpayKeySecret: os.Getenv("RAZORPAY_KEY_SECRET"),
		RazorpayBaseURL:   os.Getenv("RAZORPAY_BASE_URL"),
		SandboxSecret:     getEnv("SANDBOX_SECRET", "sandbox-secret"),
		Currency:          getEnv("CURRENCY", "INR"),
	}

	var err error
	durations := []struct {
		dst *time.Duration
		key string
		def time.Duration
	}{
		{&cfg.RequestTimeout, "REQUEST_TIMEOUT", 30 * time.Second},
		{&cfg.ShutdownTimeout, "SHUTDOWN_TIMEOUT", 10 * time.Second},
		{&cfg.CartCacheTTL, "CART_CACHE_TTL", 15 * time.Minute},
		{&cfg.CommitTimeout, "COMMIT_TIMEOUT", 30 * time.Second},
		{&cfg.StaleSessionAge, "STALE_SESSION_AGE", 5 * time.Minute},
		{&cfg.RecoveryInterval, "RECOVERY_INTERVAL", time.Minute},
	}
	for _, d := range durations {
		if *d.dst, err = getDuration(d.key, d.def); err != nil {
			return nil, err
		}
	}
	if cfg.CommitMaxRetries, err = getInt("COMMIT_MAX_RETRIES", 3); err != nil {
		return nil, err
	}
	if cfg.PostgresPort, err = getInt("POSTGRES_PORT", 5432); err != nil {
		return nil, err
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.JWTSecret == "" {
		return errors.New("JWT_SECRET is required")
	}
	if c.Storage != StorageMemory && c.Storage != StorageMongo {
		return fmt.Errorf("STORAGE must be %q or %q, got %q", StorageMemory, StorageMongo, c.Storage)
	}
	if c.RazorpayKeyID != "" && c.RazorpayKeySecret == "" {
		return errors.New("RAZORPAY_KEY_SECRET is required with RAZORPAY_KEY_ID")
	}
	if c.CommitMaxRetries < 0 {
		return errors.New("COMMIT_MAX_RETRIES must not be negative")
	}
	// Recovery must not fail a commit that is still inside its deadline.
	if c.StaleSessionAge <= c.CommitTimeout {
		return fmt.Errorf("STALE_SESSION_AGE (%s) must be longer than COMMIT_TIMEOUT (%s)", c.StaleSessionAge, c.CommitTimeout)
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("%s: invalid duration %q", key, value)
	}
	return d, nil
}

func getInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid integer %q", key, value)
	}
	return n, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
