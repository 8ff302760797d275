package razorpay

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ManuelReschke/paykit/internal/pkg/env"
)

const (
	defaultAPIBaseURL = "https://api.razorpay.com/v1"
	defaultTimeout    = 5 * time.Second
)

// Config holds the settings shared by every tenant's client.
type Config struct {
	APIBaseURL string
	Timeout    time.Duration
}

// ConfigFromEnv reads RAZORPAY_API_BASE_URL and OUTBOUND_TIMEOUT_SECONDS.
func ConfigFromEnv() Config {
	timeout := defaultTimeout
	if v := env.GetEnvInt("OUTBOUND_TIMEOUT_SECONDS", 0); v > 0 {
		timeout = time.Duration(v) * time.Second
	}
	return Config{
		APIBaseURL: strings.TrimSpace(env.GetEnv("RAZORPAY_API_BASE_URL", defaultAPIBaseURL)),
		Timeout:    timeout,
	}
}

// Client talks to the gateway REST API with one tenant's key pair.
type Client struct {
	KeyID      string
	KeySecret  string
	APIBaseURL string
	HTTPClient *http.Client
}

// NewClient creates a client for a tenant key pair.
func NewClient(cfg Config, keyID, keySecret string) *Client {
	base := strings.TrimRight(strings.TrimSpace(cfg.APIBaseURL), "/")
	if base == "" {
		base = defaultAPIBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		KeyID:      strings.TrimSpace(keyID),
		KeySecret:  strings.TrimSpace(keySecret),
		APIBaseURL: base,
		HTTPClient: &http.Client{Timeout: timeout},
	}
}

// CreateOrderRequest is the body of POST /orders.
type CreateOrderRequest struct {
	Amount   int64             `json:"amount"`
	Currency string            `json:"currency"`
	Receipt  string            `json:"receipt"`
	Notes    map[string]string `json:"notes,omitempty"`
}

// Order is a gateway order.
type Order struct {
	ID        string `json:"id"`
	Entity    string `json:"entity"`
	Amount    int64  `json:"amount"`
	Currency  string `json:"currency"`
	Receipt   string `json:"receipt"`
	Status    string `json:"status"`
	CreatedAt int64  `json:"created_at"`
}

// Payment is a gateway payment.
type Payment struct {
	ID               string `json:"id"`
	Entity           string `json:"entity"`
	Amount           int64  `json:"amount"`
	Currency         string `json:"currency"`
	Status           string `json:"status"`
	OrderID          string `json:"order_id"`
	Method           string `json:"method"`
	ErrorCode        string `json:"error_code"`
	ErrorDescription string `json:"error_description"`
	CreatedAt        int64  `json:"created_at"`
}

// Refund is a gateway refund.
type Refund struct {
	ID        string `json:"id"`
	Entity    string `json:"entity"`
	PaymentID string `json:"payment_id"`
	Amount    int64  `json:"amount"`
	Currency  string `json:"currency"`
	Status    string `json:"status"`
	CreatedAt int64  `json:"created_at"`
}

// Gateway status values used by callers.
const (
	PaymentStatusCreated    = "created"
	PaymentStatusAuthorized = "authorized"
	PaymentStatusCaptured   = "captured"
	PaymentStatusFailed     = "failed"
	PaymentStatusRefunded   = "refunded"

	RefundStatusPending   = "pending"
	RefundStatusProcessed = "processed"
	RefundStatusFailed    = "failed"
)

// APIError is a non-2xx answer from the gateway.
type APIError struct {
	StatusCode  int
	Code        string
	Description string
}

func (e *APIError) Error() string {
	if e.Code == "" && e.Description == "" {
		return fmt.Sprintf("razorpay request failed: status=%d", e.StatusCode)
	}
	return fmt.Sprintf("razorpay request failed: status=%d code=%s description=%s", e.StatusCode, e.Code, e.Description)
}

// CreateOrder creates a gateway order.
func (c *Client) CreateOrder(ctx context.Context, req CreateOrderRequest) (*Order, error) {
	if req.Amount <= 0 {
		return nil, errors.New("amount must be positive")
	}
	var out Order
	if err := c.do(ctx, http.MethodPost, "/orders", req, &out); err != nil {
		return nil, err
	}
	if strings.TrimSpace(out.ID) == "" {
		return nil, errors.New("razorpay create order returned empty id")
	}
	return &out, nil
}

// FetchPayment loads a payment by id.
func (c *Client) FetchPayment(ctx context.Context, paymentID string) (*Payment, error) {
	if strings.TrimSpace(paymentID) == "" {
		return nil, errors.New("payment id is required")
	}
	var out Payment
	if err := c.do(ctx, http.MethodGet, "/payments/"+url.PathEscape(paymentID), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// FetchRefund loads a refund by id.
func (c *Client) FetchRefund(ctx context.Context, refundID string) (*Refund, error) {
	if strings.TrimSpace(refundID) == "" {
		return nil, errors.New("refund id is required")
	}
	var out Refund
	if err := c.do(ctx, http.MethodGet, "/refunds/"+url.PathEscape(refundID), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListPaymentsForOrder lists every payment attempt made against a gateway order.
func (c *Client) ListPaymentsForOrder(ctx context.Context, gatewayOrderID string) ([]Payment, error) {
	if strings.TrimSpace(gatewayOrderID) == "" {
		return nil, errors.New("order id is required")
	}
	var out struct {
		Entity string    `json:"entity"`
		Count  int       `json:"count"`
		Items  []Payment `json:"items"`
	}
	if err := c.do(ctx, http.MethodGet, "/orders/"+url.PathEscape(gatewayOrderID)+"/payments", nil, &out); err != nil {
		return nil, err
	}
	return out.Items, nil
}

// Refund issues a full refund for a captured payment.
func (c *Client) Refund(ctx context.Context, paymentID string) (*Refund, error) {
	if strings.TrimSpace(paymentID) == "" {
		return nil, errors.New("payment id is required")
	}
	var out Refund
	if err := c.do(ctx, http.MethodPost, "/payments/"+url.PathEscape(paymentID)+"/refund", struct{}{}, &out); err != nil {
		return nil, err
	}
	if strings.TrimSpace(out.ID) == "" {
		return nil, errors.New("razorpay refund returned empty id")
	}
	return &out, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	if c.KeyID == "" || c.KeySecret == "" {
		return errors.New("razorpay key id/secret are not configured")
	}

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.APIBaseURL+path, reader)
	if err != nil {
		return err
	}
	req.SetBasicAuth(c.KeyID, c.KeySecret)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 2<<20))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		var envelope struct {
			Error struct {
				Code        string `json:"code"`
				Description string `json:"description"`
			} `json:"error"`
		}
		if json.Unmarshal(raw, &envelope) == nil {
			apiErr.Code = envelope.Error.Code
			apiErr.Description = envelope.Error.Description
		}
		return apiErr
	}

	if out == nil {
		return nil
	}
	return json.Unmarshal(raw, out)
}
