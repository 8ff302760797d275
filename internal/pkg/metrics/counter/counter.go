package counter

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	webhookOutcomesKey      = "webhook:counters:outcomes"
	webhookDailyOutcomesKey = "webhook:counters:outcomes:"
	dailyRetention          = 35 * 24 * time.Hour
)

// WebhookCounter keeps per-outcome webhook counters in Redis: one running
// total hash and one hash per UTC day.
type WebhookCounter struct {
	rdb redis.Cmdable
	now func() time.Time
}

// NewWebhookCounter creates a counter on rdb.
func NewWebhookCounter(rdb redis.Cmdable) *WebhookCounter {
	return &WebhookCounter{rdb: rdb, now: time.Now}
}

// AddWebhookOutcome increments the total and today's counter for outcome
func (c *WebhookCounter) AddWebhookOutcome(ctx context.Context, outcome string) error {
	dayKey := dailyKey(c.now())
	pipe := c.rdb.TxPipeline()
	pipe.HIncrBy(ctx, webhookOutcomesKey, outcome, 1)
	pipe.HIncrBy(ctx, dayKey, outcome, 1)
	pipe.Expire(ctx, dayKey, dailyRetention)
	_, err := pipe.Exec(ctx)
	return err
}

// WebhookOutcomes returns the running totals per outcome
func (c *WebhookCounter) WebhookOutcomes(ctx context.Context) (map[string]int64, error) {
	return c.read(ctx, webhookOutcomesKey)
}

// WebhookOutcomesOn returns the counters of a single UTC day
func (c *WebhookCounter) WebhookOutcomesOn(ctx context.Context, day time.Time) (map[string]int64, error) {
	return c.read(ctx, dailyKey(day))
}

func (c *WebhookCounter) read(ctx context.Context, key string) (map[string]int64, error) {
	data, err := c.rdb.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, err
	}
	out := make(map[string]int64, len(data))
	for k, v := range data {
		n, perr := strconv.ParseInt(v, 10, 64)
		if perr != nil {
			continue
		}
		out[k] = n
	}
	return out, nil
}

func dailyKey(t time.Time) string {
	return webhookDailyOutcomesKey + t.UTC().Format("20060102")
}
