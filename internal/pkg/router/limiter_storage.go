package router

import (
	"net"
	"strconv"

	"github.com/gofiber/storage/redis"

	"github.com/ManuelReschke/paykit/internal/pkg/cache"
	"github.com/ManuelReschke/paykit/internal/pkg/env"
)

// NewLimiterStorage returns a redis backed fiber.Storage for the webhook
// limiter so limits hold across instances. It reuses the cache connection
// settings on a separate database.
func NewLimiterStorage() *redis.Storage {
	cacheClient := cache.GetClient()
	host := "localhost"
	port := 6379
	password := env.GetEnv("CACHE_PASSWORD", "")
	if cacheClient != nil {
		addr := cacheClient.Options().Addr
		if h, p, err := net.SplitHostPort(addr); err == nil {
			host = h
			if v, err := strconv.Atoi(p); err == nil {
				port = v
			}
		}
		if p := cacheClient.Options().Password; p != "" {
			password = p
		}
	}

	return redis.New(redis.Config{
		Host:     host,
		Port:     port,
		Password: password,
		Database: env.GetEnvInt("LIMITER_REDIS_DB", 1),
		Reset:    false,
	})
}
