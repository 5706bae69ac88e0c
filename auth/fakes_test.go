package auth

import (
	"context"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"
)

// fakeRepo is an in-memory Repository for tests. Lookups clone records on
// the way out so callers cannot mutate stored state through returned
// pointers, and its error mapping mirrors the PostgreSQL implementation.
type fakeRepo struct {
	mu      sync.Mutex
	tenants map[string]*Tenant
	users   map[string]*User
	keys    map[string]*ApiKey

	// down makes every call fail, simulating a repository outage.
	down bool
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		tenants: make(map[string]*Tenant),
		users:   make(map[string]*User),
		keys:    make(map[string]*ApiKey),
	}
}

func (r *fakeRepo) addTenant(tenant *Tenant) {
	r.mu.Lock()
	defer r.mu.Unlock()
	clone := *tenant
	r.tenants[tenant.ID] = &clone
}

func (r *fakeRepo) addUser(user *User) {
	r.mu.Lock()
	defer r.mu.Unlock()
	clone := *user
	r.users[user.ID] = &clone
}

func (r *fakeRepo) setTenantStatus(tenantID, status string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if tenant, ok := r.tenants[tenantID]; ok {
		tenant.Status = status
	}
}

func (r *fakeRepo) setUserStatus(userID, status string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if user, ok := r.users[userID]; ok {
		user.Status = status
	}
}

func (r *fakeRepo) setUserRole(userID, role string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if user, ok := r.users[userID]; ok {
		user.Role = role
	}
}

func (r *fakeRepo) GetTenant(ctx context.Context, id string) (*Tenant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.down {
		return nil, errStoreDown
	}
	tenant, ok := r.tenants[id]
	if !ok {
		return nil, ErrRecordNotFound
	}
	clone := *tenant
	return &clone, nil
}

func (r *fakeRepo) GetUserByID(ctx context.Context, id string) (*User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.down {
		return nil, errStoreDown
	}
	user, ok := r.users[id]
	if !ok {
		return nil, ErrRecordNotFound
	}
	clone := *user
	return &clone, nil
}

func (r *fakeRepo) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.down {
		return nil, errStoreDown
	}
	for _, user := range r.users {
		if strings.EqualFold(user.Email, email) {
			clone := *user
			return &clone, nil
		}
	}
	return nil, ErrRecordNotFound
}

func (r *fakeRepo) UpdateLastLogin(ctx context.Context, userID string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.down {
		return errStoreDown
	}
	if user, ok := r.users[userID]; ok {
		stamp := at
		user.LastLoginAt = &stamp
	}
	return nil
}

func (r *fakeRepo) UpdatePasswordHash(ctx context.Context, userID string, hash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.down {
		return errStoreDown
	}
	user, ok := r.users[userID]
	if !ok {
		return ErrRecordNotFound
	}
	user.PasswordHash = hash
	return nil
}

func (r *fakeRepo) CreateAPIKey(ctx context.Context, key *ApiKey) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.down {
		return errStoreDown
	}
	clone := *key
	r.keys[key.ID] = &clone
	return nil
}

func (r *fakeRepo) GetAPIKeyByID(ctx context.Context, tenantID, id string) (*ApiKey, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.down {
		return nil, errStoreDown
	}
	key, ok := r.keys[id]
	if !ok || key.TenantID != tenantID {
		return nil, ErrRecordNotFound
	}
	clone := *key
	return &clone, nil
}

func (r *fakeRepo) GetAPIKeyByPrefix(ctx context.Context, prefix string) (*ApiKey, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.down {
		return nil, errStoreDown
	}
	for _, key := range r.keys {
		if key.Prefix == prefix {
			clone := *key
			return &clone, nil
		}
	}
	return nil, ErrRecordNotFound
}

func (r *fakeRepo) ListAPIKeys(ctx context.Context, tenantID string) ([]*ApiKey, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.down {
		return nil, errStoreDown
	}
	var keys []*ApiKey
	for _, key := range r.keys {
		if key.TenantID == tenantID {
			clone := *key
			keys = append(keys, &clone)
		}
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].CreatedAt.After(keys[j].CreatedAt) })
	return keys, nil
}

func (r *fakeRepo) UpdateAPIKey(ctx context.Context, key *ApiKey) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.down {
		return errStoreDown
	}
	stored, ok := r.keys[key.ID]
	if !ok || stored.TenantID != key.TenantID || stored.RevokedAt != nil {
		return ErrRecordNotFound
	}
	stored.Name = key.Name
	stored.Permissions = append([]string(nil), key.Permissions...)
	stored.ExpiresAt = key.ExpiresAt
	return nil
}

func (r *fakeRepo) RevokeAPIKey(ctx context.Context, tenantID, id string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.down {
		return errStoreDown
	}
	key, ok := r.keys[id]
	if !ok || key.TenantID != tenantID || key.RevokedAt != nil {
		// Matches the SQL: zero affected rows is not an error, the first
		// revocation timestamp stands.
		return nil
	}
	stamp := at
	key.RevokedAt = &stamp
	return nil
}

func (r *fakeRepo) TouchAPIKeyLastUsed(ctx context.Context, id string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.down {
		return errStoreDown
	}
	if key, ok := r.keys[id]; ok {
		stamp := at
		key.LastUsedAt = &stamp
	}
	return nil
}

// Standard identities used across the service and route tests.
const (
	testTenantID = "tenant-alpha"
	testUserID   = "user-alice"
	testEmail    = "alice@example.com"
	testPassword = "Sunrise-Over-4-Peaks!"
)

// seedWorld populates an operational tenant with one active admin whose
// password is testPassword.
func seedWorld(t *testing.T, repo *fakeRepo, hasher *Hasher) {
	t.Helper()

	hash, err := hasher.Hash(testPassword)
	if err != nil {
		t.Fatalf("Failed to hash seed password: %v", err)
	}

	repo.addTenant(&Tenant{
		ID:       testTenantID,
		Name:     "Alpha Corp",
		Slug:     "alpha",
		Status:   TenantActive,
		PlanTier: "pro",
	})
	repo.addUser(&User{
		ID:           testUserID,
		TenantID:     testTenantID,
		Email:        testEmail,
		Role:         RoleAdmin,
		Status:       UserActive,
		PasswordHash: hash,
	})
}
