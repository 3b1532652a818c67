package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"imgrelay-backend/internal/auth"
	"imgrelay-backend/internal/backend"
	"imgrelay-backend/internal/config"
	"imgrelay-backend/internal/gateway"
	"imgrelay-backend/internal/platforms"
	"imgrelay-backend/internal/registry"
	"imgrelay-backend/internal/store"
)

func main() {
	ctx := context.Background()

	// 1. Load config
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	log.Printf("Config loaded (port: %d, db: %s)", cfg.Server.Port, cfg.Database.Driver)

	// 2. Connect to database
	if cfg.Database.IsSQLite() {
		if err := os.MkdirAll(cfg.Database.Path, 0755); err != nil {
			log.Fatalf("Failed to create data dir: %v", err)
		}
	}
	db, err := store.New(ctx, cfg.Database)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	log.Println("Database connected")

	// 3. Bootstrap system tables and the default admin user
	if err := db.Bootstrap(ctx); err != nil {
		log.Fatalf("Failed to bootstrap system tables: %v", err)
	}
	log.Println("System tables ready")

	// 4. Wire the registry, configs, and platform adapters
	reg := registry.New(db)
	configs := registry.NewConfigStore(db)
	timeout := cfg.Upload.UpstreamTimeout
	backends := map[backend.Platform]backend.Backend{
		backend.PlatformDiscord:     backend.NewDiscord(timeout),
		backend.PlatformHuggingFace: backend.NewHuggingFace(timeout),
		backend.PlatformTelegram:    backend.NewTelegram(timeout),
	}
	gw := gateway.New(reg, configs, backends)

	// 5. Create Fiber app
	app := fiber.New(fiber.Config{
		ErrorHandler: errorHandler,
		BodyLimit:    int(cfg.Upload.MaxFileSize) + 1024*1024,
	})
	app.Use(recover.New(recover.Config{
		EnableStackTrace: true,
	}))
	app.Use(logger.New(logger.Config{
		Format: "${time} ${status} ${method} ${path} ${latency}\n",
	}))
	app.Use(cors.New())

	// 6. Health check
	app.Get("/api/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok", "timestamp": time.Now().UTC().Format(time.RFC3339)})
	})

	// 7. Middleware: bearer sessions and the static API key
	authMW := auth.Middleware(cfg.JWTSecret)
	apiKeyMW := auth.APIKeyMiddleware(cfg.APIKey)

	// 8. Auth routes
	authHandler := auth.NewHandler(db, cfg.JWTSecret)
	auth.RegisterRoutes(app, authHandler, authMW)

	// 9. Platform config routes
	platformHandler := platforms.NewHandler(configs)
	platforms.RegisterRoutes(app, platformHandler, authMW)

	// 10. Gateway routes (upload, serve, list, delete)
	gatewayHandler := gateway.NewHandler(gw, cfg.Upload.MaxFileSize)
	gateway.RegisterRoutes(app, gatewayHandler, authMW, apiKeyMW)

	// 11. Start server
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	log.Printf("Starting server on %s", addr)
	log.Fatal(app.Listen(addr))
}

func errorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError

	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		code = fiberErr.Code
	}

	var appErr *gateway.AppError
	if errors.As(err, &appErr) {
		return c.Status(appErr.Status).JSON(gateway.ErrorResponse{Error: appErr})
	}

	log.Printf("ERROR: %v", err)
	return c.Status(code).JSON(gateway.ErrorResponse{
		Error: &gateway.AppError{
			Code:    "INTERNAL_ERROR",
			Message: "Internal server error",
		},
	})
}
