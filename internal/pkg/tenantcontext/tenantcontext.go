package tenantcontext

import "github.com/gofiber/fiber/v2"

// Locals key used by the auth middleware and the controllers
const KeyTenant = "TENANT_CONTEXT"

// TenantContext is the authenticated caller of an API request
type TenantContext struct {
	TenantID string `json:"tenant_id"`
	Subject  string `json:"subject"`
}

// Set stores the tenant context on the request
func Set(c *fiber.Ctx, tc TenantContext) {
	c.Locals(KeyTenant, tc)
}

// Get retrieves the tenant context from fiber context.
// Returns an empty context if none is set
func Get(c *fiber.Ctx) TenantContext {
	if tc, ok := c.Locals(KeyTenant).(TenantContext); ok {
		return tc
	}
	return TenantContext{}
}

// TenantID returns the current tenant id, or empty string if unauthenticated
func TenantID(c *fiber.Ctx) string {
	return Get(c).TenantID
}
