package credentials

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/paykit/app/models"
	"github.com/ManuelReschke/paykit/internal/pkg/secretbox"
)

const cacheKeyPrefix = "tenant:settings:"

var (
	ErrTenantRequired = errors.New("tenant id is required")
	ErrInvalid        = errors.New("invalid settings")
)

// Repository loads and stores sealed tenant settings. Find returns nil and
// no error for a tenant without settings.
type Repository interface {
	Find(ctx context.Context, tenantID string) (*models.TenantSettings, error)
	Save(ctx context.Context, settings *models.TenantSettings) error
}

// Cache is a small string cache with expiry.
type Cache interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// Update carries the fields of a settings change. Nil fields keep their
// stored value; an empty string clears it.
type Update struct {
	GatewayKeyID         *string `json:"gateway_key_id" validate:"omitempty,max=200"`
	GatewayKeySecret     *string `json:"gateway_key_secret" validate:"omitempty,max=500"`
	GatewayWebhookSecret *string `json:"gateway_webhook_secret" validate:"omitempty,max=500"`
	MessagingAccessToken *string `json:"messaging_access_token" validate:"omitempty,max=1000"`
	MessagingSenderID    *string `json:"messaging_sender_id" validate:"omitempty,max=100,numeric"`
}

// Store resolves tenant credentials from the database, keeps sealed rows in
// the cache and never holds plaintext secrets longer than a call.
type Store struct {
	repo     Repository
	box      *secretbox.Box
	cache    Cache
	ttl      time.Duration
	validate *validator.Validate
}

// NewStore creates a Store. cache may be nil.
func NewStore(repo Repository, box *secretbox.Box, cache Cache, ttl time.Duration) *Store {
	return &Store{
		repo:     repo,
		box:      box,
		cache:    cache,
		ttl:      ttl,
		validate: validator.New(),
	}
}

// Resolve returns the decrypted credentials of a tenant.
func (s *Store) Resolve(ctx context.Context, tenantID string) (Set, error) {
	tenantID = strings.TrimSpace(tenantID)
	if tenantID == "" {
		return Set{}, ErrTenantRequired
	}
	row, err := s.load(ctx, tenantID)
	if err != nil {
		return Set{}, err
	}
	return s.open(tenantID, row)
}

// View returns the masked credentials of a tenant.
func (s *Store) View(ctx context.Context, tenantID string) (View, error) {
	set, err := s.Resolve(ctx, tenantID)
	if err != nil {
		return View{}, err
	}
	return set.Masked(), nil
}

// Save applies an update, seals the secrets and invalidates the cached row.
func (s *Store) Save(ctx context.Context, tenantID string, in Update) (View, error) {
	tenantID = strings.TrimSpace(tenantID)
	if tenantID == "" {
		return View{}, ErrTenantRequired
	}
	if err := s.validate.Struct(in); err != nil {
		return View{}, fmt.Errorf("%w: %v", ErrInvalid, err)
	}

	row, err := s.repo.Find(ctx, tenantID)
	if err != nil {
		return View{}, fmt.Errorf("load settings: %w", err)
	}
	if row == nil {
		row = &models.TenantSettings{TenantID: tenantID}
	}

	if in.GatewayKeyID != nil {
		row.GatewayKeyID = strings.TrimSpace(*in.GatewayKeyID)
	}
	if in.MessagingSenderID != nil {
		row.MessagingSenderID = strings.TrimSpace(*in.MessagingSenderID)
	}
	sealed := []struct {
		in  *string
		out *string
	}{
		{in.GatewayKeySecret, &row.GatewayKeySecretEnc},
		{in.GatewayWebhookSecret, &row.GatewayWebhookSecretEnc},
		{in.MessagingAccessToken, &row.MessagingAccessTokenEnc},
	}
	for _, f := range sealed {
		if f.in == nil {
			continue
		}
		v, err := s.box.Seal(strings.TrimSpace(*f.in))
		if err != nil {
			return View{}, fmt.Errorf("seal setting: %w", err)
		}
		*f.out = v
	}

	if err := s.repo.Save(ctx, row); err != nil {
		return View{}, fmt.Errorf("save settings: %w", err)
	}
	if s.cache != nil {
		if err := s.cache.Delete(ctx, cacheKeyPrefix+tenantID); err != nil {
			log.Warnf("[Credentials] Failed to invalidate cache for tenant %s: %v", tenantID, err)
		}
	}

	set, err := s.open(tenantID, row)
	if err != nil {
		return View{}, err
	}
	return set.Masked(), nil
}

func (s *Store) load(ctx context.Context, tenantID string) (*models.TenantSettings, error) {
	key := cacheKeyPrefix + tenantID
	if s.cache != nil {
		raw, ok, err := s.cache.Get(ctx, key)
		if err != nil {
			log.Warnf("[Credentials] Cache read failed for tenant %s: %v", tenantID, err)
		} else if ok {
			var cached cachedSettings
			if err := json.Unmarshal([]byte(raw), &cached); err == nil {
				return cached.row(), nil
			}
		}
	}

	row, err := s.repo.Find(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}
	if row == nil {
		row = &models.TenantSettings{TenantID: tenantID}
	}

	if s.cache != nil && s.ttl > 0 {
		// secrets stay sealed in the cache
		if raw, err := json.Marshal(cachedRow(row)); err == nil {
			if err := s.cache.Set(ctx, key, string(raw), s.ttl); err != nil {
				log.Warnf("[Credentials] Cache write failed for tenant %s: %v", tenantID, err)
			}
		}
	}
	return row, nil
}

func (s *Store) open(tenantID string, row *models.TenantSettings) (Set, error) {
	set := Set{
		TenantID:          tenantID,
		GatewayKeyID:      row.GatewayKeyID,
		MessagingSenderID: row.MessagingSenderID,
	}
	var err error
	if set.GatewayKeySecret, err = s.box.Open(row.GatewayKeySecretEnc); err != nil {
		return Set{}, fmt.Errorf("open gateway key secret: %w", err)
	}
	if set.GatewayWebhookSecret, err = s.box.Open(row.GatewayWebhookSecretEnc); err != nil {
		return Set{}, fmt.Errorf("open webhook secret: %w", err)
	}
	if set.MessagingAccessToken, err = s.box.Open(row.MessagingAccessTokenEnc); err != nil {
		return Set{}, fmt.Errorf("open messaging token: %w", err)
	}
	return set, nil
}

// cachedSettings is TenantSettings with the sealed columns visible to encoding/json.
type cachedSettings struct {
	TenantID                string `json:"tenant_id"`
	GatewayKeyID            string `json:"gateway_key_id"`
	GatewayKeySecretEnc     string `json:"gateway_key_secret_enc"`
	GatewayWebhookSecretEnc string `json:"gateway_webhook_secret_enc"`
	MessagingAccessTokenEnc string `json:"messaging_access_token_enc"`
	MessagingSenderID       string `json:"messaging_sender_id"`
}

func cachedRow(row *models.TenantSettings) cachedSettings {
	return cachedSettings{
		TenantID:                row.TenantID,
		GatewayKeyID:            row.GatewayKeyID,
		GatewayKeySecretEnc:     row.GatewayKeySecretEnc,
		GatewayWebhookSecretEnc: row.GatewayWebhookSecretEnc,
		MessagingAccessTokenEnc: row.MessagingAccessTokenEnc,
		MessagingSenderID:       row.MessagingSenderID,
	}
}

func (c cachedSettings) row() *models.TenantSettings {
	return &models.TenantSettings{
		TenantID:                c.TenantID,
		GatewayKeyID:            c.GatewayKeyID,
		GatewayKeySecretEnc:     c.GatewayKeySecretEnc,
		GatewayWebhookSecretEnc: c.GatewayWebhookSecretEnc,
		MessagingAccessTokenEnc: c.MessagingAccessTokenEnc,
		MessagingSenderID:       c.MessagingSenderID,
	}
}
