package archive

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/gofiber/fiber/v2/log"
)

// S3Archiver stores raw webhook payloads in an S3 bucket
type S3Archiver struct {
	s3Client *s3.Client
	bucket   string
	now      func() time.Time
}

// NewS3Archiver creates a new archiver and checks that the bucket is reachable
func NewS3Archiver(ctx context.Context, cfg *Config) (*S3Archiver, error) {
	if !cfg.IsEnabled() {
		return nil, fmt.Errorf("webhook archive is disabled")
	}

	awsConfig, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(cfg.Region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID,
			cfg.SecretAccessKey,
			"",
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	s3Client := s3.NewFromConfig(awsConfig, func(o *s3.Options) {
		if cfg.EndpointURL != "" {
			o.BaseEndpoint = aws.String(cfg.EndpointURL)
			o.UsePathStyle = true
		}
	})

	if _, err := s3Client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(cfg.BucketName)}); err != nil {
		return nil, fmt.Errorf("failed to reach archive bucket %s: %w", cfg.BucketName, err)
	}

	log.Infof("[Archive] Successfully initialized S3 archive for bucket: %s", cfg.BucketName)
	return &S3Archiver{s3Client: s3Client, bucket: cfg.BucketName, now: time.Now}, nil
}

// Archive uploads a raw webhook payload under its idempotency key
func (a *S3Archiver) Archive(ctx context.Context, eventKey string, payload []byte) error {
	key := ObjectKey(a.now(), eventKey)
	_, err := a.s3Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:               aws.String(a.bucket),
		Key:                  aws.String(key),
		Body:                 bytes.NewReader(payload),
		ContentType:          aws.String("application/json"),
		ServerSideEncryption: types.ServerSideEncryptionAes256,
	})
	if err != nil {
		return fmt.Errorf("failed to upload %s: %w", key, err)
	}
	return nil
}

// NopArchiver discards payloads. Used when no bucket is configured.
type NopArchiver struct{}

func (NopArchiver) Archive(context.Context, string, []byte) error { return nil }
