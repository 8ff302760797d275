package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/gofiber/contrib/swagger"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/basicauth"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/monitor"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/ManuelReschke/paykit/app/controllers"
	"github.com/ManuelReschke/paykit/app/repository"
	"github.com/ManuelReschke/paykit/internal/pkg/archive"
	"github.com/ManuelReschke/paykit/internal/pkg/cache"
	"github.com/ManuelReschke/paykit/internal/pkg/credentials"
	"github.com/ManuelReschke/paykit/internal/pkg/database"
	"github.com/ManuelReschke/paykit/internal/pkg/env"
	"github.com/ManuelReschke/paykit/internal/pkg/events"
	"github.com/ManuelReschke/paykit/internal/pkg/metrics/counter"
	"github.com/ManuelReschke/paykit/internal/pkg/payment"
	"github.com/ManuelReschke/paykit/internal/pkg/razorpay"
	"github.com/ManuelReschke/paykit/internal/pkg/router"
	"github.com/ManuelReschke/paykit/internal/pkg/secretbox"
	"github.com/ManuelReschke/paykit/internal/pkg/whatsapp"
)

func main() {
	app := NewApplication()
	err := app.Listen(fmt.Sprintf("%s:%s", env.GetEnv("APP_HOST", "localhost"), env.GetEnv("APP_PORT", "4000")))
	log.Fatal(err)
}

func NewApplication() *fiber.App {
	env.SetupEnvFile()
	database.SetupDatabase()
	cache.SetupCache()

	repository.InitializeFactory(database.GetDB())
	repos := repository.GetGlobalFactory().GetRepositories()

	box, err := secretbox.New(env.GetEnv("SETTINGS_ENCRYPTION_KEY", ""))
	if err != nil {
		log.Fatalf("SETTINGS_ENCRYPTION_KEY: %v", err)
	}
	jwtSecret := env.GetEnv("JWT_SECRET", "")
	if jwtSecret == "" {
		log.Fatal("JWT_SECRET is required")
	}

	credentialTTL := time.Duration(env.GetEnvInt("CREDENTIALS_CACHE_TTL_SECONDS", 60)) * time.Second
	credentialStore := credentials.NewStore(repos.TenantSettings, box, cache.NewStore(cache.GetClient()), credentialTTL)
	webhookCounter := counter.NewWebhookCounter(cache.GetClient())

	gatewayCfg := razorpay.ConfigFromEnv()
	messagingCfg := whatsapp.ConfigFromEnv()

	publisher := setupPublisher()
	svc := payment.NewService(payment.Options{
		Orders:      repos.Order,
		Ledger:      repos.WebhookEvent,
		Credentials: credentialStore,
		Gateways: func(keyID, keySecret string) payment.Gateway {
			return razorpay.NewClient(gatewayCfg, keyID, keySecret)
		},
		Messengers: func(accessToken, senderID string) payment.Messenger {
			return whatsapp.NewClient(messagingCfg, accessToken, senderID)
		},
		Events:        publisher,
		Archive:       setupArchive(),
		Outcomes:      webhookCounter,
		PublicBaseURL: env.GetEnv("PUBLIC_BASE_URL", "http://localhost:4000"),
		CheckoutName:  env.GetEnv("CHECKOUT_NAME", ""),
	})

	// init fiber app
	app := fiber.New(fiber.Config{
		BodyLimit: 1 * 1024 * 1024,
	})

	// recovery and logging
	app.Use(recover.New(), logger.New())

	metricsUser := env.GetEnv("METRICS_USER", "admin")
	metricsPassword := env.GetEnv("METRICS_PASSWORD", "")
	if metricsPassword == "" {
		log.Println("Warning: METRICS_PASSWORD is empty, /metrics and webhook stats are effectively unprotected")
	}

	// fiber metrics
	app.Get("/metrics", basicauth.New(basicauth.Config{
		Users: map[string]string{
			metricsUser: metricsPassword,
		},
	}), monitor.New())

	// SWAGGER / OPENAPI
	if specPath := findOpenAPISpec(); specPath != "" {
		app.Use(swagger.New(swagger.Config{
			BasePath: "/docs/api/",
			FilePath: specPath,
			Path:     "v1",
		}))
	}

	// ROUTER
	router.InstallRouter(app, router.Dependencies{
		Orders:           controllers.NewOrderController(svc),
		Webhooks:         controllers.NewWebhookController(svc),
		Settings:         controllers.NewSettingsController(credentialStore),
		Stats:            controllers.NewStatsController(webhookCounter, repos.WebhookEvent),
		JWTSecret:        jwtSecret,
		MonitorUser:      metricsUser,
		MonitorPassword:  metricsPassword,
		WebhookRateLimit: env.GetEnvInt("WEBHOOK_RATE_LIMIT_PER_MINUTE", 300),
		LimiterStorage:   router.NewLimiterStorage(),
	})

	app.Hooks().OnShutdown(func() error {
		return publisher.Close()
	})

	return app
}

type closingPublisher interface {
	payment.EventPublisher
	Close() error
}

func setupPublisher() closingPublisher {
	url := env.GetEnv("AMQP_URL", "")
	if url == "" {
		log.Println("AMQP_URL not set, status change events are disabled")
		return events.NopPublisher{}
	}
	pub, err := events.NewRabbitPublisher(url, env.GetEnv("AMQP_EXCHANGE", events.DefaultExchange))
	if err != nil {
		log.Printf("Warning: Could not connect to message broker: %v", err)
		return events.NopPublisher{}
	}
	log.Println("Successfully connected to message broker")
	return pub
}

func setupArchive() payment.PayloadArchiver {
	cfg, err := archive.LoadConfig()
	if err != nil {
		log.Fatalf("Archive config: %v", err)
	}
	if !cfg.IsEnabled() {
		return archive.NopArchiver{}
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	archiver, err := archive.NewS3Archiver(ctx, cfg)
	if err != nil {
		log.Printf("Warning: webhook archive disabled: %v", err)
		return archive.NopArchiver{}
	}
	log.Printf("Webhook payloads are archived to bucket %s", cfg.BucketName)
	return archiver
}

func findOpenAPISpec() string {
	// Define possible base paths
	basePaths := []string{
		"./",        // Current directory
		"../../",    // From cmd/paykit to project root
		"../../../", // Fallback
	}
	for _, path := range basePaths {
		p := path + "public/docs/v1/openapi.yml"
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	log.Println("Warning: OpenAPI spec not found, /docs/api is disabled")
	return ""
}
