package auth

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"golang.org/x/crypto/bcrypt"

	"voxhall.io/authgate/kv"
)

// middlewareFixture wires the middleware service onto in-memory backends
// without the full route table, so tests can mount arbitrary gated routes.
type middlewareFixture struct {
	repo     *fakeRepo
	tokens   *TokenService
	sessions *SessionStore
	keys     *ApiKeyService
	mw       *MiddlewareService
}

func newMiddlewareFixture(t *testing.T) *middlewareFixture {
	t.Helper()

	hasher := NewHasher(bcrypt.MinCost)
	repo := newFakeRepo()
	seedWorld(t, repo, hasher)

	tokens, err := NewTokenService("middleware-test-secret", "authgate-test", 15*time.Minute, 24*time.Hour)
	if err != nil {
		t.Fatalf("Failed to create token service: %v", err)
	}

	store := kv.NewMemoryStore()
	sessions := NewSessionStore(store)
	keyMaker := NewKeyMaker(hasher)

	mw := NewMiddlewareService(MiddlewareConfig{
		Tokens:   tokens,
		Sessions: sessions,
		Repo:     repo,
		Keys:     keyMaker,
		Limiter:  NewRateLimiter(store),
		Registry: NewServiceRegistry(store, time.Minute),
	})

	return &middlewareFixture{
		repo:     repo,
		tokens:   tokens,
		sessions: sessions,
		keys:     NewApiKeyService(repo, keyMaker, "vxk"),
		mw:       mw,
	}
}

// startSession issues an access token and backs it with a live session.
func (f *middlewareFixture) startSession(t *testing.T) string {
	t.Helper()

	pair, err := f.tokens.IssuePair(testUserID, testTenantID, RoleAdmin, RolePermissions(RoleAdmin))
	if err != nil {
		t.Fatalf("Failed to issue token pair: %v", err)
	}
	if err := f.sessions.Put(context.Background(), testUserID, testTenantID, time.Minute); err != nil {
		t.Fatalf("Failed to put session: %v", err)
	}
	return pair.AccessToken
}

// An API key authorizes with ITS permission set, not its owner's. The owner
// here is an admin holding user:invite; the key carries user:read only.
func TestKeyPermissionsNeverWiden(t *testing.T) {
	f := newMiddlewareFixture(t)

	_, secret, err := f.keys.Create(context.Background(), testTenantID, testUserID, RoleAdmin, "reader", []string{PermUserRead}, nil)
	if err != nil {
		t.Fatalf("Failed to create API key: %v", err)
	}

	ok := func(c *fiber.Ctx) error { return c.JSON(fiber.Map{"ok": true}) }
	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	app.Get("/users", f.mw.RequireSessionOrKey(), f.mw.TenantContext(),
		f.mw.RequirePermission(RequirePermissions(PermUserRead)), ok)
	app.Post("/invitations", f.mw.RequireSessionOrKey(), f.mw.TenantContext(),
		f.mw.RequirePermission(RequirePermissions(PermUserInvite)), ok)

	// The key's own permission passes its gate.
	req := httptest.NewRequest("GET", "/users", nil)
	req.Header.Set(fiber.HeaderAuthorization, "Bearer "+secret)
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Errorf("Expected status 200 for a granted key permission, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	// A permission the owner's role holds but the key does not is denied.
	req = httptest.NewRequest("POST", "/invitations", nil)
	req.Header.Set(fiber.HeaderAuthorization, "Bearer "+secret)
	resp, err = app.Test(req, -1)
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusForbidden {
		t.Fatalf("Expected status 403 for a permission outside the key's set, got %d", resp.StatusCode)
	}
	envelope := readError(t, resp)
	if envelope.Error.Type != "INSUFFICIENT_PERMISSIONS" {
		t.Errorf("Expected error type 'INSUFFICIENT_PERMISSIONS', got '%s'", envelope.Error.Type)
	}
	if len(envelope.Error.Required) != 1 || envelope.Error.Required[0] != PermUserInvite {
		t.Errorf("Expected required permissions [%s], got %v", PermUserInvite, envelope.Error.Required)
	}
	if len(envelope.Error.Held) != 1 || envelope.Error.Held[0] != PermUserRead {
		t.Errorf("Expected held permissions [%s], got %v", PermUserRead, envelope.Error.Held)
	}

	// The owner's interactive session still passes the same gate.
	token := f.startSession(t)
	req = httptest.NewRequest("POST", "/invitations", nil)
	req.Header.Set(fiber.HeaderAuthorization, "Bearer "+token)
	resp, err = app.Test(req, -1)
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Errorf("Expected status 200 for the owner's session, got %d", resp.StatusCode)
	}
	resp.Body.Close()
}

// Downstream services read the forwarded identity headers; the enhancer
// must stamp them from the verified identity and overwrite anything the
// client sent.
func TestForwardedIdentityHeaders(t *testing.T) {
	f := newMiddlewareFixture(t)
	token := f.startSession(t)

	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	app.Get("/echo", f.mw.RequireSessionOrKey(), f.mw.TenantContext(), func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"tenant":      c.Get(HeaderTenantID),
			"user":        c.Get(HeaderUserID),
			"role":        c.Get(HeaderUserRole),
			"permissions": c.Get(HeaderUserPermissions),
		})
	})

	req := httptest.NewRequest("GET", "/echo", nil)
	req.Header.Set(fiber.HeaderAuthorization, "Bearer "+token)
	req.Header.Set(HeaderTenantID, "tenant-spoofed")
	req.Header.Set(HeaderUserRole, "SUPERUSER")

	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("Expected status 200, got %d", resp.StatusCode)
	}

	var out struct {
		Tenant      string `json:"tenant"`
		User        string `json:"user"`
		Role        string `json:"role"`
		Permissions string `json:"permissions"`
	}
	decodeBody(t, resp, &out)

	if out.Tenant != testTenantID {
		t.Errorf("Expected forwarded tenant '%s', got '%s'", testTenantID, out.Tenant)
	}
	if out.User != testUserID {
		t.Errorf("Expected forwarded user '%s', got '%s'", testUserID, out.User)
	}
	if out.Role != RoleAdmin {
		t.Errorf("Expected forwarded role '%s', got '%s'", RoleAdmin, out.Role)
	}
	if !strings.Contains(out.Permissions, PermTenantUpdate) {
		t.Errorf("Expected forwarded permissions to contain '%s', got '%s'", PermTenantUpdate, out.Permissions)
	}
}

// RequirePermission placed without a preceding authenticator must reject,
// not panic on the missing identity.
func TestPermissionGateWithoutIdentity(t *testing.T) {
	f := newMiddlewareFixture(t)

	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	app.Get("/bare", f.mw.RequirePermission(RequirePermissions(PermUserRead)), func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})

	resp, err := app.Test(httptest.NewRequest("GET", "/bare", nil), -1)
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusUnauthorized {
		t.Fatalf("Expected status 401, got %d", resp.StatusCode)
	}
	envelope := readError(t, resp)
	if envelope.Error.Type != "NO_CREDENTIAL" {
		t.Errorf("Expected error type 'NO_CREDENTIAL', got '%s'", envelope.Error.Type)
	}
}
