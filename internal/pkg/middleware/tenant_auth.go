package middleware

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/ManuelReschke/paykit/internal/pkg/tenantcontext"
)

var ErrInvalidToken = errors.New("invalid token")

// TenantClaims are the claims of a tenant bearer token. Tokens are issued
// elsewhere; this service only verifies them.
type TenantClaims struct {
	TenantID string `json:"tenantId"`
	jwt.RegisteredClaims
}

// ParseTenantToken verifies an HS256 token and returns its claims.
func ParseTenantToken(secret, tokenString string) (*TenantClaims, error) {
	if strings.TrimSpace(secret) == "" || strings.TrimSpace(tokenString) == "" {
		return nil, ErrInvalidToken
	}
	token, err := jwt.ParseWithClaims(tokenString, &TenantClaims{}, func(t *jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, ErrInvalidToken
	}
	claims, ok := token.Claims.(*TenantClaims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	if _, err := uuid.Parse(claims.TenantID); err != nil {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// TenantAuthMiddleware authenticates requests carrying a tenant bearer token.
func TenantAuthMiddleware(secret string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		tokenString := extractBearerToken(c)
		if tokenString == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "Missing bearer token"})
		}

		claims, err := ParseTenantToken(secret, tokenString)
		if err != nil {
			log.Warnf("[Auth] Rejected bearer token from %s", c.IP())
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "Invalid bearer token"})
		}

		tenantcontext.Set(c, tenantcontext.TenantContext{
			TenantID: claims.TenantID,
			Subject:  claims.Subject,
		})
		return c.Next()
	}
}

func extractBearerToken(c *fiber.Ctx) string {
	auth := strings.TrimSpace(c.Get(fiber.HeaderAuthorization))
	if len(auth) > 7 && strings.EqualFold(auth[:7], "bearer ") {
		return strings.TrimSpace(auth[7:])
	}
	return ""
}
