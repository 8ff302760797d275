package controllers

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
)

// OutcomeCounter reads the webhook outcome counters.
type OutcomeCounter interface {
	WebhookOutcomes(ctx context.Context) (map[string]int64, error)
	WebhookOutcomesOn(ctx context.Context, day time.Time) (map[string]int64, error)
}

// LedgerStats reads outcome totals from the webhook ledger.
type LedgerStats interface {
	CountByOutcome(ctx context.Context) (map[string]int64, error)
}

// StatsController serves /api/v1/stats.
type StatsController struct {
	counter OutcomeCounter
	ledger  LedgerStats
}

func NewStatsController(counter OutcomeCounter, ledger LedgerStats) *StatsController {
	return &StatsController{counter: counter, ledger: ledger}
}

// HandleWebhookStats returns the webhook outcome counters: running totals,
// today's counts and the outcomes recorded on the ledger.
func (sc *StatsController) HandleWebhookStats(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), requestTimeout)
	defer cancel()

	totals, err := sc.counter.WebhookOutcomes(ctx)
	if err != nil {
		log.Errorf("[Stats] Failed to read webhook counters: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_error", "message": "Failed to read counters"})
	}
	today, err := sc.counter.WebhookOutcomesOn(ctx, time.Now())
	if err != nil {
		log.Errorf("[Stats] Failed to read daily webhook counters: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_error", "message": "Failed to read counters"})
	}
	ledger, err := sc.ledger.CountByOutcome(ctx)
	if err != nil {
		log.Errorf("[Stats] Failed to read ledger stats: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_error", "message": "Failed to read ledger"})
	}

	return c.JSON(fiber.Map{
		"totals": totals,
		"today":  today,
		"ledger": ledger,
	})
}
