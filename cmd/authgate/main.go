// Command authgate runs the multi-tenant authentication gateway.
//
// Configuration is read through the config package, so every key below can
// come from the environment, a .env file, or Azure Key Vault depending on
// CONFIG_SOURCE:
//
//	JWT_SECRET_KEY            - HMAC signing secret (required)
//	JWT_ISSUER                - iss claim on minted tokens (default: authgate)
//	ACCESS_TOKEN_TTL          - access-token lifetime, seconds (default: 900)
//	REFRESH_TOKEN_TTL         - refresh-token lifetime, seconds (default: 604800)
//	BCRYPT_COST               - password hash work factor (default: 12)
//	API_KEY_TAG               - prefix tag on minted API keys (default: vxk)
//	INTERNAL_SERVICE_TOKEN    - shared secret for service-to-service calls
//	DATABASE_URL              - PostgreSQL DSN (required)
//	REDIS_ADDR                - host:port of the shared store; empty runs in-process
//	RATE_LIMIT_WINDOW_SECONDS - fixed-window size (default: 60)
//	RATE_LIMIT_MAX            - per-tenant requests per window (default: 120)
//	LOGIN_RATE_LIMIT_MAX      - per-IP login attempts per window (default: 10)
//	SERVICE_TTL_SECONDS       - service-registry liveness TTL (default: 90)
//	HTTP_ADDR                 - listen address (default: :8080)
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"

	"voxhall.io/authgate/auth"
	"voxhall.io/authgate/config"
	"voxhall.io/authgate/kv"
	"voxhall.io/authgate/obs"
	"voxhall.io/authgate/pg"
)

func main() {
	if err := run(); err != nil {
		slog.Error("gateway failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	if err := config.InitGlobalConfig(); err != nil {
		return fmt.Errorf("initializing configuration: %w", err)
	}
	obs.InitLogger(config.GetConfigWithDefault("LOG_LEVEL", "info"))
	obs.Init()

	ctx := context.Background()

	// Relational repository.
	dsn := config.GetConfig("DATABASE_URL")
	if dsn == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	db, err := pg.New(ctx, pg.Config{
		DSN:            dsn,
		MigrateOnStart: true,
	})
	if err != nil {
		return fmt.Errorf("connecting to postgres: %w", err)
	}
	defer db.Close()

	// Shared key-value store for sessions, counters and the service registry.
	var store kv.Store
	if addr := config.GetConfig("REDIS_ADDR"); addr != "" {
		redisStore, err := kv.NewRedisStore(kv.RedisConfig{
			Addr:     addr,
			Password: config.GetConfig("REDIS_PASSWORD"),
			DB:       config.GetConfigInt("REDIS_DB", 0),
		})
		if err != nil {
			return fmt.Errorf("connecting to redis: %w", err)
		}
		defer redisStore.Close()
		store = redisStore
		slog.Info("shared store connected", "backend", "redis", "addr", addr)
	} else {
		store = kv.NewMemoryStore()
		slog.Warn("REDIS_ADDR not set; sessions and rate limits are process-local")
	}

	// Core services.
	secret := config.GetConfig("JWT_SECRET_KEY")
	if secret == "" {
		return fmt.Errorf("JWT_SECRET_KEY is required")
	}
	tokens, err := auth.NewTokenService(
		secret,
		config.GetConfigWithDefault("JWT_ISSUER", "authgate"),
		config.GetConfigSeconds("ACCESS_TOKEN_TTL", 15*time.Minute),
		config.GetConfigSeconds("REFRESH_TOKEN_TTL", 7*24*time.Hour),
	)
	if err != nil {
		return fmt.Errorf("creating token service: %w", err)
	}

	hasher := auth.NewHasher(config.GetConfigInt("BCRYPT_COST", auth.DefaultBCryptCost))
	keys := auth.NewKeyMaker(hasher)
	sessions := auth.NewSessionStore(store)
	limiter := auth.NewRateLimiter(store)
	registry := auth.NewServiceRegistry(store, config.GetConfigSeconds("SERVICE_TTL_SECONDS", 90*time.Second))

	authService := auth.NewAuthService(db, tokens, hasher, sessions)
	keyService := auth.NewApiKeyService(db, keys, config.GetConfig("API_KEY_TAG"))

	internalToken := config.GetConfig("INTERNAL_SERVICE_TOKEN")
	if internalToken == "" {
		slog.Warn("INTERNAL_SERVICE_TOKEN not set; internal endpoints are disabled")
	}
	mw := auth.NewMiddlewareService(auth.MiddlewareConfig{
		Tokens:        tokens,
		Sessions:      sessions,
		Repo:          db,
		Keys:          keys,
		Limiter:       limiter,
		Registry:      registry,
		InternalToken: internalToken,
	})

	// HTTP surface.
	app := fiber.New(fiber.Config{
		AppName:               "authgate",
		DisableStartupMessage: true,
		ReadTimeout:           15 * time.Second,
		WriteTimeout:          15 * time.Second,
		IdleTimeout:           60 * time.Second,
	})

	auth.SetupRoutes(app, auth.Services{
		Middleware: mw,
		Auth:       authService,
		Keys:       keyService,
		Registry:   registry,
	}, auth.RouteConfig{
		RateLimitWindow:   config.GetConfigSeconds("RATE_LIMIT_WINDOW_SECONDS", time.Minute),
		RateLimitMax:      int64(config.GetConfigInt("RATE_LIMIT_MAX", 120)),
		LoginRateLimitMax: int64(config.GetConfigInt("LOGIN_RATE_LIMIT_MAX", 10)),
		Ready:             db.HealthCheck,
	})

	addr := config.GetConfigWithDefault("HTTP_ADDR", ":8080")

	// Graceful shutdown.
	sigCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		slog.Info("gateway listening", "addr", addr)
		if err := app.Listen(addr); err != nil {
			errCh <- err
		}
	}()

	select {
	case <-sigCtx.Done():
		slog.Info("shutting down gracefully")
		return app.ShutdownWithTimeout(10 * time.Second)
	case err := <-errCh:
		return err
	}
}
