package archive

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ManuelReschke/paykit/internal/pkg/env"
)

// Config holds webhook archive configuration
type Config struct {
	AccessKeyID     string
	SecretAccessKey string
	Region          string
	BucketName      string
	EndpointURL     string // optional, for S3-compatible services
}

// LoadConfig loads archive configuration from environment variables. The
// archive is disabled when ARCHIVE_S3_BUCKET is empty.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		AccessKeyID:     env.GetEnv("ARCHIVE_S3_ACCESS_KEY_ID", ""),
		SecretAccessKey: env.GetEnv("ARCHIVE_S3_SECRET_ACCESS_KEY", ""),
		Region:          env.GetEnv("ARCHIVE_S3_REGION", "us-east-1"),
		BucketName:      env.GetEnv("ARCHIVE_S3_BUCKET", ""),
		EndpointURL:     env.GetEnv("ARCHIVE_S3_ENDPOINT", ""),
	}

	if cfg.IsEnabled() {
		if cfg.AccessKeyID == "" {
			return nil, errors.New("ARCHIVE_S3_ACCESS_KEY_ID is required when the archive bucket is set")
		}
		if cfg.SecretAccessKey == "" {
			return nil, errors.New("ARCHIVE_S3_SECRET_ACCESS_KEY is required when the archive bucket is set")
		}
	}
	return cfg, nil
}

// IsEnabled returns true if a bucket is configured
func (c *Config) IsEnabled() bool {
	return strings.TrimSpace(c.BucketName) != ""
}

var keyReplacer = strings.NewReplacer("|", "_", "/", "_", "\\", "_", " ", "_")

// ObjectKey generates the object key of an archived payload.
// Format: webhooks/YYYY/MM/DD/<event key>.json
func ObjectKey(at time.Time, eventKey string) string {
	at = at.UTC()
	return fmt.Sprintf("webhooks/%04d/%02d/%02d/%s.json", at.Year(), int(at.Month()), at.Day(), keyReplacer.Replace(eventKey))
}
