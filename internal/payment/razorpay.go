package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/fjod/book_market/pkg/circuitbreaker"
	"github.com/sony/gobreaker/v2"
)

const defaultRazorpayURL = "https://api.razorpay.com"

type RazorpayConfig struct {
	KeyID     string
	KeySecret string
	BaseURL   string
	Timeout   time.Duration
}

// RazorpayClient talks to the Razorpay Orders API. Calls go through a circuit
// breaker; 4xx replies do not count towards tripping it.
type RazorpayClient struct {
	cfg     RazorpayConfig
	http    *http.Client
	breaker *gobreaker.CircuitBreaker[*Order]
}

var _ Gateway = (*RazorpayClient)(nil)

func NewRazorpayClient(cfg RazorpayConfig, log *slog.Logger) *RazorpayClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultRazorpayURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &RazorpayClient{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.Timeout},
		breaker: circuitbreaker.New[*Order](circuitbreaker.DefaultConfig("razorpay"), log, func(err error) bool {
			return err == nil || errors.Is(err, ErrGatewayRejected)
		}),
	}
}

type createOrderRequest struct {
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Receipt  string `json:"receipt"`
}

type apiError struct {
	Error struct {
		Code        string `json:"code"`
		Description string `json:"description"`
	} `json:"error"`
}

func (c *RazorpayClient) CreateOrder(ctx context.Context, amountMinor int64, currency, receipt string) (*Order, error) {
	if amountMinor <= 0 {
		return nil, ErrInvalidAmount
	}

	body, err := json.Marshal(createOrderRequest{Amount: amountMinor, Currency: currency, Receipt: receipt})
	if err != nil {
		return nil, fmt.Errorf("marshal order request: %w", err)
	}

	return c.breaker.Execute(func() (*Order, error) {
		return c.postOrder(ctx, body)
	})
}

func (c *RazorpayClient) postOrder(ctx context.Context, body []byte) (*Order, error) {
	url := strings.TrimRight(c.cfg.BaseURL, "/") + "/v1/orders"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build order request: %w", err)
	}
	req.SetBasicAuth(c.cfg.KeyID, c.cfg.KeySecret)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("razorpay create order: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read razorpay response: %w", err)
	}

	if resp.StatusCode >= 400 {
		var apiErr apiError
		_ = json.Unmarshal(data, &apiErr)
		if resp.StatusCode < 500 {
			return nil, fmt.Errorf("%w: %s %s", ErrGatewayRejected, apiErr.Error.Code, apiErr.Error.Description)
		}
		return nil, fmt.Errorf("razorpay returned status %d", resp.StatusCode)
	}

	var order Order
	if err := json.Unmarshal(data, &order); err != nil {
		return nil, fmt.Errorf("decode razorpay order: %w", err)
	}
	return &order, nil
}

func (c *RazorpayClient) VerifyPayment(orderID, paymentID, signature string) error {
	return verify(c.cfg.KeySecret, orderID, paymentID, signature)
}
