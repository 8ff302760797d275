package models

import (
	"strings"
	"time"
)

// TenantSettings stores the per-tenant gateway and messaging credentials.
// Secret columns hold sealed values; see the credentials package.
type TenantSettings struct {
	TenantID                string    `gorm:"type:char(36);primaryKey" json:"tenant_id"`
	GatewayKeyID            string    `gorm:"type:varchar(200);default:''" json:"gateway_key_id"`
	GatewayKeySecretEnc     string    `gorm:"type:text" json:"-"`
	GatewayWebhookSecretEnc string    `gorm:"type:text" json:"-"`
	MessagingAccessTokenEnc string    `gorm:"type:text" json:"-"`
	MessagingSenderID       string    `gorm:"type:varchar(100);default:''" json:"messaging_sender_id"`
	CreatedAt               time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt               time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// HasGatewayKeys reports whether key id and sealed key secret are both present.
func (s *TenantSettings) HasGatewayKeys() bool {
	return strings.TrimSpace(s.GatewayKeyID) != "" && strings.TrimSpace(s.GatewayKeySecretEnc) != ""
}
