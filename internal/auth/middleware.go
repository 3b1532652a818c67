package auth

import (
	"crypto/subtle"
	"strings"

	"github.com/gofiber/fiber/v2"

	"imgrelay-backend/internal/gateway"
)

// Middleware returns a Fiber middleware that validates bearer JWTs and sets
// the caller's UserContext on the request.
func Middleware(secret string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		header := c.Get("Authorization")
		if header == "" {
			return gateway.UnauthorizedError("Missing auth token")
		}

		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			return gateway.UnauthorizedError("Invalid auth header format")
		}

		claims, err := ParseToken(parts[1], secret)
		if err != nil {
			return gateway.UnauthorizedError("Invalid or expired token")
		}

		c.Locals("user", &gateway.UserContext{
			ID:       claims.UserID,
			Username: claims.Username,
		})

		return c.Next()
	}
}

// APIKeyMiddleware validates the static X-API-Key header and maps the caller
// to the fixed system owner identity. An empty configured key disables
// programmatic access entirely.
func APIKeyMiddleware(apiKey string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		supplied := c.Get("X-API-Key")
		if apiKey == "" || supplied == "" ||
			subtle.ConstantTimeCompare([]byte(supplied), []byte(apiKey)) != 1 {
			return gateway.UnauthorizedError("Invalid API key")
		}

		c.Locals("user", &gateway.UserContext{
			ID:       gateway.SystemOwnerID,
			Username: "api",
		})

		return c.Next()
	}
}
