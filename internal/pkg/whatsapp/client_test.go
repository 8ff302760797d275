package whatsapp

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSendInteractivePaymentRequest(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/1234567890/messages", r.URL.Path)
		assert.Equal(t, "Bearer token-1", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"messages":[{"id":"wamid.1"}]}`))
	}))
	defer srv.Close()

	client := NewClient(Config{APIBaseURL: srv.URL, Timeout: time.Second}, "token-1", "1234567890")
	err := client.SendInteractivePaymentRequest(context.Background(), PaymentRequest{
		To:          "919876543210",
		Amount:      50000,
		Currency:    "INR",
		ReferenceID: "pay_order-1",
		Metadata:    map[string]string{"razorpay_order_id": "order_1"},
	})
	require.NoError(t, err)

	assert.Equal(t, "interactive", got["type"])
	interactive := got["interactive"].(map[string]any)
	payment := interactive["payment"].(map[string]any)
	assert.Equal(t, "pay_order-1", payment["reference_id"])
	assert.Equal(t, defaultDescription, payment["description"])
	amount := payment["amount"].(map[string]any)
	assert.Equal(t, float64(50000), amount["value"])
}

func TestSendTextReturnsAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"message":"Invalid OAuth access token"}}`))
	}))
	defer srv.Close()

	client := NewClient(Config{APIBaseURL: srv.URL}, "bad", "123")
	err := client.SendText(context.Background(), "919876543210", "hello")
	require.Error(t, err)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
	assert.Equal(t, "Invalid OAuth access token", apiErr.Message)
}

func TestSendRequiresCredentials(t *testing.T) {
	client := NewClient(Config{}, "", "")
	assert.Error(t, client.SendText(context.Background(), "919876543210", "hello"))
}

func TestConfigFromEnvTimeout(t *testing.T) {
	tests := []struct {
		value string
		want  time.Duration
	}{
		{"", defaultTimeout},
		{"12", 12 * time.Second},
		{"abc", defaultTimeout},
		{"-3", defaultTimeout},
	}
	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			t.Setenv("OUTBOUND_TIMEOUT_SECONDS", tt.value)
			assert.Equal(t, tt.want, ConfigFromEnv().Timeout)
		})
	}
}
