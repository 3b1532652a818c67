package auth

import (
	"context"

	"github.com/gofiber/fiber/v2"

	"imgrelay-backend/internal/gateway"
	"imgrelay-backend/internal/store"
)

// Handler handles the authentication endpoints.
type Handler struct {
	store     *store.Store
	jwtSecret string
}

func NewHandler(s *store.Store, jwtSecret string) *Handler {
	return &Handler{store: s, jwtSecret: jwtSecret}
}

// Login handles POST /api/auth/login.
func (h *Handler) Login(c *fiber.Ctx) error {
	var body struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := c.BodyParser(&body); err != nil {
		return gateway.NewAppError("INVALID_PAYLOAD", 400, "Invalid request body")
	}
	if body.Username == "" || body.Password == "" {
		return gateway.NewAppError("INVALID_PAYLOAD", 400, "Username and password are required")
	}

	user, err := h.findUser(c.Context(), body.Username)
	if err != nil {
		return gateway.UnauthorizedError("Invalid username or password")
	}

	hash, _ := user["password_hash"].(string)
	if !CheckPassword(body.Password, hash) {
		return gateway.UnauthorizedError("Invalid username or password")
	}

	userID, _ := user["id"].(int64)
	token, err := GenerateToken(userID, body.Username, h.jwtSecret)
	if err != nil {
		return gateway.NewAppError("INTERNAL_ERROR", 500, "Failed to generate token")
	}

	return c.JSON(fiber.Map{
		"token": token,
		"user": fiber.Map{
			"id":       userID,
			"username": body.Username,
		},
	})
}

// ChangePassword handles POST /api/auth/change-password.
func (h *Handler) ChangePassword(c *fiber.Ctx) error {
	user := gateway.CurrentUser(c)
	if user == nil {
		return gateway.UnauthorizedError("Missing auth token")
	}

	var body struct {
		OldPassword string `json:"oldPassword"`
		NewPassword string `json:"newPassword"`
	}
	if err := c.BodyParser(&body); err != nil {
		return gateway.NewAppError("INVALID_PAYLOAD", 400, "Invalid request body")
	}
	if body.OldPassword == "" || body.NewPassword == "" {
		return gateway.NewAppError("INVALID_PAYLOAD", 400, "Old password and new password are required")
	}
	if len(body.NewPassword) < 6 {
		return gateway.NewAppError("INVALID_PAYLOAD", 400, "New password must be at least 6 characters")
	}

	row, err := h.findUser(c.Context(), user.Username)
	if err != nil {
		return gateway.NewAppError("NOT_FOUND", 404, "User not found")
	}

	hash, _ := row["password_hash"].(string)
	if !CheckPassword(body.OldPassword, hash) {
		return gateway.UnauthorizedError("Invalid old password")
	}

	newHash, err := HashPassword(body.NewPassword)
	if err != nil {
		return gateway.NewAppError("INTERNAL_ERROR", 500, "Failed to hash password")
	}

	_, err = store.Exec(c.Context(), h.store.DB,
		"UPDATE users SET password_hash = $1 WHERE id = $2", newHash, user.ID)
	if err != nil {
		return gateway.NewAppError("INTERNAL_ERROR", 500, "Failed to update password")
	}

	return c.JSON(fiber.Map{"message": "Password changed successfully"})
}

// Me handles GET /api/auth/me.
func (h *Handler) Me(c *fiber.Ctx) error {
	user := gateway.CurrentUser(c)
	if user == nil {
		return gateway.UnauthorizedError("Missing auth token")
	}
	return c.JSON(fiber.Map{
		"id":       user.ID,
		"username": user.Username,
	})
}

// RegisterRoutes registers the auth routes; login is public, the rest sit
// behind the bearer middleware.
func RegisterRoutes(app *fiber.App, h *Handler, authMW fiber.Handler) {
	grp := app.Group("/api/auth")
	grp.Post("/login", h.Login)
	grp.Post("/change-password", authMW, h.ChangePassword)
	grp.Get("/me", authMW, h.Me)
}

func (h *Handler) findUser(ctx context.Context, username string) (map[string]any, error) {
	return store.QueryRow(ctx, h.store.DB,
		"SELECT id, username, password_hash FROM users WHERE username = $1", username)
}
