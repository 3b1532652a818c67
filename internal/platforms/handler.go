// Package platforms owns the per-user platform configuration endpoints. The
// gateway reads these configs; only the handlers here ever write them.
package platforms

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2"

	"imgrelay-backend/internal/backend"
	"imgrelay-backend/internal/gateway"
	"imgrelay-backend/internal/registry"
	"imgrelay-backend/internal/store"
)

// Handler handles platform-config CRUD.
type Handler struct {
	configs *registry.ConfigStore
}

func NewHandler(configs *registry.ConfigStore) *Handler {
	return &Handler{configs: configs}
}

// ListConfigs handles GET /api/config: every config the caller has saved.
func (h *Handler) ListConfigs(c *fiber.Ctx) error {
	user := gateway.CurrentUser(c)
	if user == nil {
		return gateway.UnauthorizedError("Missing auth token")
	}

	configs, err := h.configs.All(c.Context(), user.ID)
	if err != nil {
		return fmt.Errorf("list configs: %w", err)
	}
	return c.JSON(configs)
}

// GetConfig handles GET /api/config/:platform.
func (h *Handler) GetConfig(c *fiber.Ctx) error {
	user := gateway.CurrentUser(c)
	if user == nil {
		return gateway.UnauthorizedError("Missing auth token")
	}

	platform, err := backend.ParsePlatform(c.Params("platform"))
	if err != nil {
		return gateway.InvalidPlatformError(c.Params("platform"))
	}

	cfg, err := h.configs.Get(c.Context(), user.ID, platform)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return c.JSON(fiber.Map{})
		}
		return fmt.Errorf("get config: %w", err)
	}
	c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	return c.Send(cfg)
}

// SaveConfig handles POST /api/config/:platform: validates the required
// credential fields for the platform, then upserts.
func (h *Handler) SaveConfig(c *fiber.Ctx) error {
	user := gateway.CurrentUser(c)
	if user == nil {
		return gateway.UnauthorizedError("Missing auth token")
	}

	platform, err := backend.ParsePlatform(c.Params("platform"))
	if err != nil {
		return gateway.InvalidPlatformError(c.Params("platform"))
	}

	body := c.Body()
	if len(body) == 0 || !json.Valid(body) {
		return gateway.NewAppError("INVALID_PAYLOAD", 400, "Invalid config data")
	}
	if err := validateConfig(platform, body); err != nil {
		return gateway.NewAppError("INVALID_PAYLOAD", 400, err.Error())
	}

	if err := h.configs.Set(c.Context(), user.ID, platform, body); err != nil {
		return fmt.Errorf("save config: %w", err)
	}
	return c.JSON(fiber.Map{"message": "Config saved successfully"})
}

// validateConfig checks the fields an adapter cannot work without.
func validateConfig(platform backend.Platform, raw []byte) error {
	switch platform {
	case backend.PlatformDiscord:
		var cfg backend.DiscordConfig
		if err := json.Unmarshal(raw, &cfg); err != nil {
			return errors.New("Invalid config data")
		}
		if cfg.BotToken == "" || cfg.ChannelID == "" {
			return errors.New("botToken and channelId are required for Discord")
		}
	case backend.PlatformHuggingFace:
		var cfg backend.HuggingFaceConfig
		if err := json.Unmarshal(raw, &cfg); err != nil {
			return errors.New("Invalid config data")
		}
		if cfg.Token == "" || cfg.Repo == "" {
			return errors.New("token and repo are required for HuggingFace")
		}
	case backend.PlatformTelegram:
		var cfg backend.TelegramConfig
		if err := json.Unmarshal(raw, &cfg); err != nil {
			return errors.New("Invalid config data")
		}
		if cfg.BotToken == "" || cfg.ChatID == "" {
			return errors.New("botToken and chatId are required for Telegram")
		}
	}
	return nil
}

// RegisterRoutes registers the config routes behind the bearer middleware.
func RegisterRoutes(app *fiber.App, h *Handler, authMW fiber.Handler) {
	grp := app.Group("/api/config", authMW)
	grp.Get("/", h.ListConfigs)
	grp.Get("/:platform", h.GetConfig)
	grp.Post("/:platform", h.SaveConfig)
}
