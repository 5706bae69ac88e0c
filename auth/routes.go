package auth

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"

	"voxhall.io/authgate/obs"
)

// Services bundles everything the route table needs.
type Services struct {
	Middleware *MiddlewareService
	Auth       *AuthService
	Keys       *ApiKeyService
	Registry   *ServiceRegistry
}

// RouteConfig carries the route-level tunables.
type RouteConfig struct {
	// RateLimitWindow and RateLimitMax bound authenticated traffic per
	// tenant; LoginRateLimitMax bounds login and refresh attempts per IP
	// within the same window.
	RateLimitWindow   time.Duration
	RateLimitMax      int64
	LoginRateLimitMax int64

	// Ready reports whether downstream dependencies are reachable. Nil
	// means always ready.
	Ready func(ctx context.Context) error
}

// SetupRoutes sets up all gateway routes for a Fiber app.
func SetupRoutes(app *fiber.App, svc Services, cfg RouteConfig) {
	if cfg.RateLimitWindow <= 0 {
		cfg.RateLimitWindow = time.Minute
	}
	if cfg.RateLimitMax <= 0 {
		cfg.RateLimitMax = 120
	}
	if cfg.LoginRateLimitMax <= 0 {
		cfg.LoginRateLimitMax = 10
	}

	authHandlers := NewAuthHandlers(svc.Auth)
	keyHandlers := NewApiKeyHandlers(svc.Keys)
	internalHandlers := NewInternalHandlers(svc.Registry)
	mw := svc.Middleware

	app.Use(obs.Instrument())

	// Operational endpoints, no auth.
	app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})
	app.Get("/readyz", func(c *fiber.Ctx) error {
		if cfg.Ready != nil {
			if err := cfg.Ready(c.Context()); err != nil {
				return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"status": "unavailable", "error": err.Error()})
			}
		}
		return c.JSON(fiber.Map{"status": "ready"})
	})
	app.Get("/metrics", obs.Handler())

	perTenant := mw.RateLimit("api", ScopeByTenant("api"), cfg.RateLimitWindow, cfg.RateLimitMax)
	perIP := mw.RateLimit("login", ScopeByIP("login"), cfg.RateLimitWindow, cfg.LoginRateLimitMax)

	// Auth routes carry their middleware per route: the /auth prefix mixes
	// public, session, session-or-key and internal surfaces, so a group-wide
	// Use would gate the wrong ones. Login and refresh share the stricter
	// per-IP window since both accept guessable secrets.
	authRoutes := app.Group("/auth")
	authRoutes.Post("/login", perIP, authHandlers.Login)
	authRoutes.Post("/refresh", perIP, authHandlers.Refresh)

	// Logout deliberately skips tenant enhancement: a user of a
	// just-suspended tenant can still end their session.
	authRoutes.Post("/logout", mw.RequireSession(), authHandlers.Logout)
	authRoutes.Post("/password", mw.RequireSession(), mw.TenantContext(), perTenant, authHandlers.ChangePassword)

	// Identity surface, for sessions and API keys alike.
	authRoutes.Get("/me", mw.RequireSessionOrKey(), mw.TenantContext(), perTenant, authHandlers.Me)

	// Internal service-to-service surface.
	authRoutes.Post("/validate", mw.RequireInternal(), authHandlers.Validate)
	app.Get("/internal/services", mw.RequireInternal(), internalHandlers.Services)

	// API key lifecycle: interactive sessions only, tenant-validated,
	// permission-gated per operation. Every route wants the same gate, so
	// here the group carries it.
	keys := app.Group("/api-keys", mw.RequireSession(), mw.TenantContext(), perTenant)
	keys.Post("/", mw.RequirePermission(RequirePermissions(PermAPIKeyCreate)), keyHandlers.Create)
	keys.Get("/", mw.RequirePermission(RequirePermissions(PermAPIKeyRead)), keyHandlers.List)
	keys.Get("/:id", mw.RequirePermission(RequirePermissions(PermAPIKeyRead)), keyHandlers.Get)
	keys.Patch("/:id", mw.RequirePermission(RequirePermissions(PermAPIKeyUpdate)), keyHandlers.Update)
	keys.Delete("/:id", mw.RequirePermission(RequirePermissions(PermAPIKeyRevoke)), keyHandlers.Revoke)
}
