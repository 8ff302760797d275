package credentials

import "strings"

// Set is the resolved, decrypted credential set of one tenant. A tenant
// without stored settings resolves to a Set with only TenantID filled.
type Set struct {
	TenantID             string
	GatewayKeyID         string
	GatewayKeySecret     string
	GatewayWebhookSecret string
	MessagingAccessToken string
	MessagingSenderID    string
}

// GatewayConfigured reports whether gateway API calls can be made.
func (s Set) GatewayConfigured() bool {
	return notBlank(s.GatewayKeyID) && notBlank(s.GatewayKeySecret)
}

// WebhookConfigured reports whether webhook signatures can be verified.
func (s Set) WebhookConfigured() bool {
	return notBlank(s.GatewayWebhookSecret)
}

// MessagingConfigured reports whether customer messages can be sent.
func (s Set) MessagingConfigured() bool {
	return notBlank(s.MessagingAccessToken) && notBlank(s.MessagingSenderID)
}

// View is the masked representation returned to API callers.
type View struct {
	TenantID             string `json:"tenant_id"`
	GatewayKeyID         string `json:"gateway_key_id"`
	GatewayKeySecret     string `json:"gateway_key_secret"`
	GatewayWebhookSecret string `json:"gateway_webhook_secret"`
	MessagingAccessToken string `json:"messaging_access_token"`
	MessagingSenderID    string `json:"messaging_sender_id"`
	GatewayConfigured    bool   `json:"gateway_configured"`
	WebhookConfigured    bool   `json:"webhook_configured"`
	MessagingConfigured  bool   `json:"messaging_configured"`
}

// Masked returns the view of s with every secret hidden.
func (s Set) Masked() View {
	return View{
		TenantID:             s.TenantID,
		GatewayKeyID:         s.GatewayKeyID,
		GatewayKeySecret:     mask(s.GatewayKeySecret),
		GatewayWebhookSecret: mask(s.GatewayWebhookSecret),
		MessagingAccessToken: mask(s.MessagingAccessToken),
		MessagingSenderID:    s.MessagingSenderID,
		GatewayConfigured:    s.GatewayConfigured(),
		WebhookConfigured:    s.WebhookConfigured(),
		MessagingConfigured:  s.MessagingConfigured(),
	}
}

func mask(v string) string {
	v = strings.TrimSpace(v)
	if v == "" {
		return ""
	}
	if len(v) <= 4 {
		return "****"
	}
	return "****" + v[len(v)-4:]
}

func notBlank(v string) bool {
	return strings.TrimSpace(v) != ""
}
