package auth

import (
	"context"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"voxhall.io/authgate/obs"
)

// sweepTimeout bounds the detached session sweep fired on tenant suspension.
const sweepTimeout = 10 * time.Second

// MiddlewareConfig wires the middleware service's collaborators.
type MiddlewareConfig struct {
	Tokens   *TokenService
	Sessions *SessionStore
	Repo     Repository
	Keys     *KeyMaker
	Limiter  *RateLimiter
	Registry *ServiceRegistry

	// InternalToken is the shared secret for service-to-service calls.
	// Empty disables the internal credential path.
	InternalToken string
}

// MiddlewareService provides the authentication and authorization
// middleware: credential resolution, tenant context enhancement, permission
// gating and rate limiting, in that pipeline order.
type MiddlewareService struct {
	repo     Repository
	sessions *SessionStore
	limiter  *RateLimiter

	sessionChain  *resolverChain
	combinedChain *resolverChain
	internalChain *resolverChain
}

// NewMiddlewareService creates a new middleware service.
func NewMiddlewareService(cfg MiddlewareConfig) *MiddlewareService {
	session := &sessionTokenResolver{tokens: cfg.Tokens, sessions: cfg.Sessions}
	apiKey := &apiKeyResolver{repo: cfg.Repo, keys: cfg.Keys}
	internal := &internalServiceResolver{secret: cfg.InternalToken, registry: cfg.Registry}

	return &MiddlewareService{
		repo:          cfg.Repo,
		sessions:      cfg.Sessions,
		limiter:       cfg.Limiter,
		sessionChain:  &resolverChain{resolvers: []credentialResolver{session}},
		combinedChain: &resolverChain{resolvers: []credentialResolver{session, apiKey}},
		internalChain: &resolverChain{resolvers: []credentialResolver{internal}},
	}
}

// RequireSession authenticates with a session-backed access token only.
// Used where an interactive user must be present, such as logout and the
// API-key lifecycle.
func (s *MiddlewareService) RequireSession() fiber.Handler {
	return s.authenticate(s.sessionChain, "session")
}

// RequireSessionOrKey authenticates with a session token first, falling
// back to an API key when the bearer is not a verifiable token.
func (s *MiddlewareService) RequireSessionOrKey() fiber.Handler {
	return s.authenticate(s.combinedChain, "session_or_key")
}

// RequireInternal authenticates the typed internal-service credential.
func (s *MiddlewareService) RequireInternal() fiber.Handler {
	return s.authenticate(s.internalChain, "internal")
}

func (s *MiddlewareService) authenticate(chain *resolverChain, label string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authCtx, authErr := chain.Resolve(c)
		if authErr != nil {
			obs.AuthAttempts.WithLabelValues(label, authErr.Type).Inc()
			return handleAuthError(c, authErr)
		}

		obs.AuthAttempts.WithLabelValues(label, "granted").Inc()
		SetContext(c, authCtx)
		return c.Next()
	}
}

// TenantContext loads and re-validates the tenant and user behind the
// resolved identity on every request, then attaches read-only snapshots.
// Tokens never cache tenant state: suspension takes effect on the next
// request, not at token expiry.
func (s *MiddlewareService) TenantContext() fiber.Handler {
	return func(c *fiber.Ctx) error {
		authCtx := GetAuthContext(c)
		if authCtx == nil {
			return handleAuthError(c, ErrNoCredential)
		}
		// Internal services carry no tenant.
		if authCtx.Method == MethodInternal {
			return c.Next()
		}

		tenant, err := s.repo.GetTenant(c.Context(), authCtx.TenantID)
		if err != nil {
			return handleAuthError(c, repoAuthError(err, ErrTenantNotFound))
		}

		user, err := s.repo.GetUserByID(c.Context(), authCtx.UserID)
		if err != nil {
			return handleAuthError(c, repoAuthError(err, ErrUserNotFound))
		}

		if !tenant.Operational() {
			if authCtx.Method == MethodSession {
				s.sweepTenantSessions(tenant.ID)
			}
			return handleAuthError(c, ErrTenantSuspended)
		}
		if user.Status != UserActive {
			return handleAuthError(c, ErrUserSuspended)
		}
		if user.TenantID != authCtx.TenantID {
			return handleAuthError(c, ErrTenantMismatch)
		}

		authCtx.Tenant = tenant
		authCtx.User = user

		// Forwarded context for downstream services.
		c.Request().Header.Set(HeaderTenantID, authCtx.TenantID)
		c.Request().Header.Set(HeaderUserID, authCtx.UserID)
		c.Request().Header.Set(HeaderUserRole, authCtx.Role)
		c.Request().Header.Set(HeaderUserPermissions, strings.Join(authCtx.Permissions, ","))

		return c.Next()
	}
}

// sweepTenantSessions purges a suspended tenant's remaining sessions as a
// detached best-effort task, so the suspension bites everywhere without a
// synchronous scan on the request path.
func (s *MiddlewareService) sweepTenantSessions(tenantID string) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), sweepTimeout)
		defer cancel()
		removed, err := s.sessions.DeleteByTenant(ctx, tenantID)
		if err != nil {
			slog.Warn("session sweep for suspended tenant failed", "tenant_id", tenantID, "error", err)
			return
		}
		if removed > 0 {
			slog.Info("swept sessions of suspended tenant", "tenant_id", tenantID, "removed", removed)
		}
	}()
}

// RequirePermission gates the route on the resolved identity's permission
// set. Runs after TenantContext so denials always describe a live identity.
func (s *MiddlewareService) RequirePermission(requirement *AuthRequirement) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authCtx := GetAuthContext(c)
		if authCtx == nil {
			return handleAuthError(c, ErrNoCredential)
		}
		if authErr := CheckRequirement(authCtx.Permissions, requirement); authErr != nil {
			return handleAuthError(c, authErr)
		}
		return c.Next()
	}
}

// ScopeFunc composes the rate-limit scope string for a request. Returning
// "" skips limiting for that request.
type ScopeFunc func(c *fiber.Ctx) string

// ScopeByIP scopes by network origin, for unauthenticated routes.
func ScopeByIP(class string) ScopeFunc {
	return func(c *fiber.Ctx) string {
		return class + ":ip:" + c.IP()
	}
}

// ScopeByTenant scopes by the authenticated tenant.
func ScopeByTenant(class string) ScopeFunc {
	return func(c *fiber.Ctx) string {
		authCtx := GetAuthContext(c)
		if authCtx == nil || authCtx.TenantID == "" {
			return class + ":ip:" + c.IP()
		}
		return class + ":tenant:" + authCtx.TenantID
	}
}

// RateLimit enforces a fixed window per scope and stamps the limit headers
// on every response. Disallowed requests get a 429 with retry metadata; a
// store outage lets traffic through.
func (s *MiddlewareService) RateLimit(label string, scope ScopeFunc, window time.Duration, max int64) fiber.Handler {
	return func(c *fiber.Ctx) error {
		key := scope(c)
		if key == "" {
			return c.Next()
		}

		decision := s.limiter.CheckAndIncrement(c.Context(), key, window, max)
		c.Set("X-RateLimit-Limit", strconv.FormatInt(decision.Limit, 10))
		c.Set("X-RateLimit-Remaining", strconv.FormatInt(decision.Remaining, 10))
		c.Set("X-RateLimit-Reset", strconv.FormatInt(decision.ResetAt.Unix(), 10))

		if !decision.Allowed {
			obs.RateLimitRejections.WithLabelValues(label).Inc()
			retryAfter := int64(decision.RetryAfter.Seconds())
			if retryAfter < 1 {
				retryAfter = 1
			}
			c.Set(fiber.HeaderRetryAfter, strconv.FormatInt(retryAfter, 10))
			return handleAuthError(c, NewRateLimited(decision.Limit, decision.Current, retryAfter))
		}
		return c.Next()
	}
}

// handleAuthError writes a structured auth error to the Fiber response.
// Errors that are not *AuthError are logged here, once, before their detail
// is replaced by a generic 500.
func handleAuthError(c *fiber.Ctx, err error) error {
	if _, ok := err.(*AuthError); !ok {
		slog.Error("request failed", "method", c.Method(), "path", c.Path(), "error", err)
	}
	authErr := AsAuthError(err)
	return c.Status(authErr.Code).JSON(fiber.Map{"error": authErr})
}

// repoAuthError maps a repository failure to its auth meaning: absent rows
// become the given stale-credential error, everything else is a 500.
func repoAuthError(err error, notFound *AuthError) *AuthError {
	if err == nil {
		return nil
	}
	if isNotFound(err) {
		return notFound
	}
	slog.Error("repository lookup failed", "error", err)
	return ErrStoreUnavailable
}
