package whatsapp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ManuelReschke/paykit/internal/pkg/env"
)

const (
	defaultAPIBaseURL  = "https://graph.facebook.com/v19.0"
	defaultTimeout     = 5 * time.Second
	defaultDescription = "Order Payment"
	paymentProvider    = "razorpay"
)

// Config holds the settings shared by every tenant's client.
type Config struct {
	APIBaseURL string
	Timeout    time.Duration
}

// ConfigFromEnv reads WHATSAPP_API_BASE_URL and OUTBOUND_TIMEOUT_SECONDS.
func ConfigFromEnv() Config {
	timeout := defaultTimeout
	if v := env.GetEnvInt("OUTBOUND_TIMEOUT_SECONDS", 0); v > 0 {
		timeout = time.Duration(v) * time.Second
	}
	return Config{
		APIBaseURL: strings.TrimSpace(env.GetEnv("WHATSAPP_API_BASE_URL", defaultAPIBaseURL)),
		Timeout:    timeout,
	}
}

// Client sends messages from one tenant's business number.
type Client struct {
	AccessToken string
	SenderID    string
	APIBaseURL  string
	HTTPClient  *http.Client
}

// NewClient creates a client for a tenant's access token and sender phone number id.
func NewClient(cfg Config, accessToken, senderID string) *Client {
	base := strings.TrimRight(strings.TrimSpace(cfg.APIBaseURL), "/")
	if base == "" {
		base = defaultAPIBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		AccessToken: strings.TrimSpace(accessToken),
		SenderID:    strings.TrimSpace(senderID),
		APIBaseURL:  base,
		HTTPClient:  &http.Client{Timeout: timeout},
	}
}

// PaymentRequest is an in-chat payment request.
type PaymentRequest struct {
	To          string
	Amount      int64
	Currency    string
	Description string
	ReferenceID string
	Metadata    map[string]string
}

// APIError is a non-2xx answer from the messaging API.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("whatsapp request failed: status=%d", e.StatusCode)
	}
	return fmt.Sprintf("whatsapp request failed: status=%d message=%s", e.StatusCode, e.Message)
}

// SendInteractivePaymentRequest sends an interactive payment message.
func (c *Client) SendInteractivePaymentRequest(ctx context.Context, req PaymentRequest) error {
	if strings.TrimSpace(req.To) == "" {
		return errors.New("recipient is required")
	}
	description := strings.TrimSpace(req.Description)
	if description == "" {
		description = defaultDescription
	}

	payload := map[string]any{
		"messaging_product": "whatsapp",
		"to":                req.To,
		"type":              "interactive",
		"interactive": map[string]any{
			"type": "payment",
			"payment": map[string]any{
				"provider":     paymentProvider,
				"reference_id": req.ReferenceID,
				"amount": map[string]any{
					"value":    req.Amount,
					"currency": req.Currency,
				},
				"description": description,
				"metadata":    req.Metadata,
			},
		},
	}
	return c.send(ctx, payload)
}

// SendText sends a plain text message.
func (c *Client) SendText(ctx context.Context, to, body string) error {
	if strings.TrimSpace(to) == "" {
		return errors.New("recipient is required")
	}
	payload := map[string]any{
		"messaging_product": "whatsapp",
		"to":                to,
		"type":              "text",
		"text":              map[string]string{"body": body},
	}
	return c.send(ctx, payload)
}

func (c *Client) send(ctx context.Context, payload map[string]any) error {
	if c.AccessToken == "" || c.SenderID == "" {
		return errors.New("whatsapp access token/sender id are not configured")
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.APIBaseURL+"/"+c.SenderID+"/messages", bytes.NewReader(raw))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.AccessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		apiErr := &APIError{StatusCode: resp.StatusCode}
		var envelope struct {
			Error struct {
				Message string `json:"message"`
			} `json:"error"`
		}
		if json.Unmarshal(body, &envelope) == nil {
			apiErr.Message = envelope.Error.Message
		}
		return apiErr
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
