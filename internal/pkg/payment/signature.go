package payment

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"strings"
)

// VerifyWebhookSignature checks a gateway webhook delivery: the signature
// header must be the lowercase hex HMAC-SHA256 of the raw payload keyed with
// the tenant's webhook secret. Blank inputs fail closed.
func VerifyWebhookSignature(payload []byte, signatureHeader, webhookSecret string) bool {
	sig := strings.TrimSpace(signatureHeader)
	if sig == "" || strings.TrimSpace(webhookSecret) == "" || len(payload) == 0 {
		return false
	}
	return constantTimeEqual(hmacSHA256Hex(payload, webhookSecret), sig)
}

// VerifyCheckoutSignature checks the signature handed to the client after a
// successful checkout: HMAC-SHA256 of "<gatewayOrderID>|<gatewayPaymentID>"
// keyed with the tenant's key secret.
func VerifyCheckoutSignature(gatewayOrderID, gatewayPaymentID, signature, keySecret string) bool {
	if strings.TrimSpace(gatewayOrderID) == "" ||
		strings.TrimSpace(gatewayPaymentID) == "" ||
		strings.TrimSpace(signature) == "" ||
		strings.TrimSpace(keySecret) == "" {
		return false
	}
	expected := hmacSHA256Hex([]byte(gatewayOrderID+"|"+gatewayPaymentID), keySecret)
	return constantTimeEqual(expected, strings.TrimSpace(signature))
}

// CheckoutSignature computes the value VerifyCheckoutSignature expects.
func CheckoutSignature(gatewayOrderID, gatewayPaymentID, keySecret string) string {
	return hmacSHA256Hex([]byte(gatewayOrderID+"|"+gatewayPaymentID), keySecret)
}

// WebhookSignature computes the value VerifyWebhookSignature expects.
func WebhookSignature(payload []byte, webhookSecret string) string {
	return hmacSHA256Hex(payload, webhookSecret)
}

func hmacSHA256Hex(data []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(data)
	return hex.EncodeToString(mac.Sum(nil))
}

func constantTimeEqual(expected, given string) bool {
	if len(expected) != len(given) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(expected), []byte(given)) == 1
}
