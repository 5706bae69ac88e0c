package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
)

// apiKeyTouchTimeout bounds the detached last-used update so an unhealthy
// repository cannot pile up goroutines.
const apiKeyTouchTimeout = 5 * time.Second

// resolveDecision is a resolver's vote on a request: grant it, deny it
// terminally, or skip because the presented credential is not of this
// resolver's kind.
type resolveDecision int

const (
	decisionSkip resolveDecision = iota
	decisionGranted
	decisionDenied
)

// credentialResolver is one step of the authentication state machine. A
// skip may carry an *AuthError describing why the credential did not parse;
// the chain falls back to the first such error when nothing else matches.
type credentialResolver interface {
	Resolve(c *fiber.Ctx) (*AuthContext, resolveDecision, *AuthError)
}

// resolverChain runs resolvers in order and stops at the first grant or
// terminal denial. Ordering is significant: session tokens are the common
// case and must be attempted before API keys.
type resolverChain struct {
	resolvers []credentialResolver
}

func (rc *resolverChain) Resolve(c *fiber.Ctx) (*AuthContext, *AuthError) {
	var fallback *AuthError
	for _, r := range rc.resolvers {
		identity, decision, authErr := r.Resolve(c)
		switch decision {
		case decisionGranted:
			return identity, nil
		case decisionDenied:
			return nil, authErr
		case decisionSkip:
			if authErr != nil && fallback == nil {
				fallback = authErr
			}
		}
	}
	if fallback != nil {
		return nil, fallback
	}
	return nil, ErrNoCredential
}

// ExtractBearerToken pulls the token out of an Authorization header value.
// Returns "" when the header is absent or not a bearer scheme.
func ExtractBearerToken(header string) string {
	if header == "" {
		return ""
	}
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return ""
	}
	return strings.TrimSpace(header[len(prefix):])
}

// sessionTokenResolver verifies the bearer as an access token, then
// confirms a live session backs it. A cryptographically valid token without
// a session is denied: that is how server-side forced logout works.
type sessionTokenResolver struct {
	tokens   *TokenService
	sessions *SessionStore
}

func (r *sessionTokenResolver) Resolve(c *fiber.Ctx) (*AuthContext, resolveDecision, *AuthError) {
	token := ExtractBearerToken(c.Get(fiber.HeaderAuthorization))
	if token == "" {
		return nil, decisionSkip, nil
	}

	claims, err := r.tokens.VerifyAccess(token)
	if err != nil {
		// Structural failure: let the API-key resolver look at the string,
		// but remember what went wrong in case nothing else matches.
		return nil, decisionSkip, AsAuthError(err)
	}

	record, storeErr := r.sessions.Get(c.Context(), claims.UserID)
	if storeErr != nil {
		slog.Error("session lookup failed", "user_id", claims.UserID, "error", storeErr)
		return nil, decisionDenied, ErrStoreUnavailable
	}
	if record == nil || record.TenantID != claims.TenantID {
		return nil, decisionDenied, ErrSessionInvalidated
	}

	return &AuthContext{
		UserID:      claims.UserID,
		TenantID:    claims.TenantID,
		Role:        claims.Role,
		Permissions: claims.Permissions,
		Method:      MethodSession,
	}, decisionGranted, nil
}

// apiKeyResolver authenticates three-segment key secrets: prefix lookup,
// liveness checks, then the hash comparison. The identity it produces
// carries the key owner's user/tenant/role but the key's OWN permission
// set, which is how restricted keys stay restricted.
type apiKeyResolver struct {
	repo Repository
	keys *KeyMaker
}

func (r *apiKeyResolver) Resolve(c *fiber.Ctx) (*AuthContext, resolveDecision, *AuthError) {
	token := ExtractBearerToken(c.Get(fiber.HeaderAuthorization))
	if token == "" {
		return nil, decisionSkip, nil
	}

	prefix := ExtractPrefix(token)
	if prefix == "" {
		// Not key-shaped at all; leave the verdict to whatever the session
		// path recorded.
		return nil, decisionSkip, nil
	}

	key, err := r.repo.GetAPIKeyByPrefix(c.Context(), prefix)
	if err != nil {
		if errors.Is(err, ErrRecordNotFound) {
			return nil, decisionDenied, ErrInvalidApiKey
		}
		slog.Error("api key lookup failed", "prefix", prefix, "error", err)
		return nil, decisionDenied, ErrStoreUnavailable
	}

	// Liveness first: a revoked or expired key fails here even though its
	// hash would still verify.
	if key.Revoked() {
		return nil, decisionDenied, ErrInvalidApiKey
	}
	if key.Expired(time.Now()) {
		return nil, decisionDenied, ErrApiKeyExpired
	}

	if !r.keys.Verify(token, key.SecretHash) {
		return nil, decisionDenied, ErrInvalidApiKey
	}

	owner, err := r.repo.GetUserByID(c.Context(), key.CreatedBy)
	if err != nil {
		if errors.Is(err, ErrRecordNotFound) {
			return nil, decisionDenied, ErrUserNotFound
		}
		slog.Error("api key owner lookup failed", "key_id", key.ID, "error", err)
		return nil, decisionDenied, ErrStoreUnavailable
	}

	r.touchLastUsed(key.ID)

	permissions := make([]string, len(key.Permissions))
	copy(permissions, key.Permissions)

	return &AuthContext{
		UserID:      owner.ID,
		TenantID:    key.TenantID,
		Role:        owner.Role,
		Permissions: permissions,
		Method:      MethodAPIKey,
		APIKeyID:    key.ID,
	}, decisionGranted, nil
}

// touchLastUsed records key usage as a detached best-effort task. It runs
// on its own context so client disconnects cannot cancel it, and a failure
// is logged and swallowed, never surfaced to the request.
func (r *apiKeyResolver) touchLastUsed(keyID string) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), apiKeyTouchTimeout)
		defer cancel()
		if err := r.repo.TouchAPIKeyLastUsed(ctx, keyID, time.Now().UTC()); err != nil {
			slog.Warn("failed to record api key last-used", "key_id", keyID, "error", err)
		}
	}()
}

// internalServiceResolver verifies the typed service-to-service credential:
// a shared secret plus the calling service's name, in dedicated headers. A
// verified call doubles as the service's registry heartbeat.
type internalServiceResolver struct {
	secret   string
	registry *ServiceRegistry
}

func (r *internalServiceResolver) Resolve(c *fiber.Ctx) (*AuthContext, resolveDecision, *AuthError) {
	presented := c.Get(HeaderInternalToken)
	if presented == "" {
		return nil, decisionSkip, nil
	}
	if r.secret == "" {
		// No secret configured means internal access is disabled entirely.
		return nil, decisionDenied, ErrInternalCredential
	}
	if subtle.ConstantTimeCompare([]byte(presented), []byte(r.secret)) != 1 {
		return nil, decisionDenied, ErrInternalCredential
	}

	serviceName := c.Get(HeaderServiceName)
	if serviceName == "" {
		return nil, decisionDenied, ErrInternalCredential
	}

	if r.registry != nil {
		if err := r.registry.Heartbeat(c.Context(), serviceName); err != nil {
			slog.Warn("service registry heartbeat failed", "service", serviceName, "error", err)
		}
	}

	return &AuthContext{
		Method:      MethodInternal,
		ServiceName: serviceName,
	}, decisionGranted, nil
}
