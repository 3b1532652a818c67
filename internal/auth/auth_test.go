package auth

import (
	"errors"
	"net/http"
	"testing"

	"github.com/gofiber/fiber/v2"

	"imgrelay-backend/internal/gateway"
)

const testSecret = "test-secret"

func TestTokenRoundTrip(t *testing.T) {
	token, err := GenerateToken(42, "alice", testSecret)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	claims, err := ParseToken(token, testSecret)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if claims.UserID != 42 || claims.Username != "alice" {
		t.Fatalf("claims mismatch: %+v", claims)
	}
	if claims.ExpiresAt == nil || claims.IssuedAt == nil {
		t.Fatal("expiry claims not set")
	}
	if ttl := claims.ExpiresAt.Sub(claims.IssuedAt.Time); ttl != TokenTTL {
		t.Fatalf("expected ttl %v, got %v", TokenTTL, ttl)
	}
}

func TestParseTokenWrongSecret(t *testing.T) {
	token, err := GenerateToken(1, "admin", testSecret)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if _, err := ParseToken(token, "other-secret"); err == nil {
		t.Fatal("token accepted with wrong secret")
	}
}

func TestParseTokenGarbage(t *testing.T) {
	if _, err := ParseToken("not.a.token", testSecret); err == nil {
		t.Fatal("garbage token accepted")
	}
}

func TestPasswordHashing(t *testing.T) {
	hash, err := HashPassword("hunter22")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if !CheckPassword("hunter22", hash) {
		t.Fatal("correct password rejected")
	}
	if CheckPassword("hunter2", hash) {
		t.Fatal("wrong password accepted")
	}
}

func protectedApp(mw fiber.Handler) *fiber.App {
	app := fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			var appErr *gateway.AppError
			if errors.As(err, &appErr) {
				return c.Status(appErr.Status).JSON(gateway.ErrorResponse{Error: appErr})
			}
			return c.Status(500).SendString(err.Error())
		},
	})
	app.Get("/protected", mw, func(c *fiber.Ctx) error {
		user := gateway.CurrentUser(c)
		return c.JSON(fiber.Map{"id": user.ID, "username": user.Username})
	})
	return app
}

func TestMiddlewareAcceptsValidBearer(t *testing.T) {
	app := protectedApp(Middleware(testSecret))

	token, err := GenerateToken(7, "bob", testSecret)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	req, _ := http.NewRequest("GET", "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
}

func TestMiddlewareRejects(t *testing.T) {
	app := protectedApp(Middleware(testSecret))

	tests := []struct {
		name   string
		header string
	}{
		{"missing header", ""},
		{"not bearer", "Basic dXNlcjpwYXNz"},
		{"bad token", "Bearer not.a.token"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, _ := http.NewRequest("GET", "/protected", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			resp, err := app.Test(req, -1)
			if err != nil {
				t.Fatalf("request: %v", err)
			}
			if resp.StatusCode != 401 {
				t.Fatalf("expected 401, got %d", resp.StatusCode)
			}
		})
	}
}

func TestAPIKeyMiddleware(t *testing.T) {
	app := protectedApp(APIKeyMiddleware("sekrit"))

	req, _ := http.NewRequest("GET", "/protected", nil)
	req.Header.Set("X-API-Key", "sekrit")
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200 with correct key, got %d", resp.StatusCode)
	}

	req, _ = http.NewRequest("GET", "/protected", nil)
	req.Header.Set("X-API-Key", "wrong")
	resp, err = app.Test(req, -1)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if resp.StatusCode != 401 {
		t.Fatalf("expected 401 with wrong key, got %d", resp.StatusCode)
	}
}

func TestAPIKeyMiddlewareDisabledWhenUnset(t *testing.T) {
	app := protectedApp(APIKeyMiddleware(""))

	// With no key configured, even an empty header must not get through.
	req, _ := http.NewRequest("GET", "/protected", nil)
	req.Header.Set("X-API-Key", "")
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if resp.StatusCode != 401 {
		t.Fatalf("expected 401 when api key disabled, got %d", resp.StatusCode)
	}
}
