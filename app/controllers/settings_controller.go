package controllers

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/paykit/internal/pkg/credentials"
	"github.com/ManuelReschke/paykit/internal/pkg/tenantcontext"
)

// SettingsStore reads and writes tenant credentials.
type SettingsStore interface {
	View(ctx context.Context, tenantID string) (credentials.View, error)
	Save(ctx context.Context, tenantID string, in credentials.Update) (credentials.View, error)
}

// SettingsController serves /api/v1/settings.
type SettingsController struct {
	store SettingsStore
}

func NewSettingsController(store SettingsStore) *SettingsController {
	return &SettingsController{store: store}
}

// HandleGet returns the tenant's settings with secrets masked.
func (sc *SettingsController) HandleGet(c *fiber.Ctx) error {
	tenantID := tenantcontext.TenantID(c)
	if tenantID == "" {
		return unauthorized(c)
	}

	ctx, cancel := context.WithTimeout(c.UserContext(), requestTimeout)
	defer cancel()
	view, err := sc.store.View(ctx, tenantID)
	if err != nil {
		log.Errorf("[Settings] Failed to load settings for tenant %s: %v", tenantID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_error", "message": "Failed to load settings"})
	}
	return c.JSON(view)
}

// HandlePut updates the tenant's settings. Omitted fields are kept.
func (sc *SettingsController) HandlePut(c *fiber.Ctx) error {
	tenantID := tenantcontext.TenantID(c)
	if tenantID == "" {
		return unauthorized(c)
	}
	var in credentials.Update
	if err := c.BodyParser(&in); err != nil {
		return badRequest(c, "Invalid request body")
	}

	ctx, cancel := context.WithTimeout(c.UserContext(), requestTimeout)
	defer cancel()
	view, err := sc.store.Save(ctx, tenantID, in)
	if err != nil {
		if errors.Is(err, credentials.ErrInvalid) {
			return badRequest(c, err.Error())
		}
		log.Errorf("[Settings] Failed to save settings for tenant %s: %v", tenantID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_error", "message": "Failed to save settings"})
	}
	log.Infof("[Settings] Settings updated for tenant %s", tenantID)
	return c.JSON(view)
}
