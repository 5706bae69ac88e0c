package auth

import (
	"context"
	"time"
)

// Tenant lifecycle statuses. Anything outside ACTIVE/TRIAL blocks every
// authenticated operation for the tenant's users.
const (
	TenantTrial     = "TRIAL"
	TenantActive    = "ACTIVE"
	TenantSuspended = "SUSPENDED"
)

// User lifecycle statuses. Only ACTIVE users may authenticate.
const (
	UserInvited   = "INVITED"
	UserActive    = "ACTIVE"
	UserSuspended = "SUSPENDED"
)

// Roles. Each maps to a static permission set, see permissions.go.
const (
	RoleAdmin   = "ADMIN"
	RoleManager = "MANAGER"
	RoleUser    = "USER"
)

// Tenant is the identity-scoping root. Every downstream record references
// exactly one tenant.
type Tenant struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Slug     string `json:"slug"`
	Status   string `json:"status"`
	PlanTier string `json:"plan_tier"`
}

// Operational reports whether the tenant may serve authenticated traffic.
func (t *Tenant) Operational() bool {
	return t.Status == TenantActive || t.Status == TenantTrial
}

// User belongs to exactly one tenant. Email is unique per tenant (globally
// unique in this schema, which is stricter).
type User struct {
	ID           string     `json:"id"`
	TenantID     string     `json:"tenant_id"`
	Email        string     `json:"email"`
	Role         string     `json:"role"`
	Status       string     `json:"status"`
	PasswordHash string     `json:"-"` // Never expose in JSON
	LastLoginAt  *time.Time `json:"last_login_at,omitempty"`
}

// ApiKey is a long-lived credential scoped to one tenant and attributed to
// its creating user. The secret is never stored; only its hash and the
// public lookup prefix are. Revocation is soft so the audit trail survives.
type ApiKey struct {
	ID          string     `json:"id"`
	TenantID    string     `json:"tenant_id"`
	CreatedBy   string     `json:"created_by"`
	Name        string     `json:"name"`
	SecretHash  string     `json:"-"` // Never expose in JSON
	Prefix      string     `json:"prefix"`
	Permissions []string   `json:"permissions"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
	LastUsedAt  *time.Time `json:"last_used_at,omitempty"`
	RevokedAt   *time.Time `json:"revoked_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

// Revoked reports whether the key has been soft-deleted.
func (k *ApiKey) Revoked() bool { return k.RevokedAt != nil }

// Expired reports whether the key's optional expiry has passed.
func (k *ApiKey) Expired(now time.Time) bool {
	return k.ExpiresAt != nil && !k.ExpiresAt.After(now)
}

// SessionRecord is the ephemeral store entry backing an access token. One
// live session per subject; login and refresh overwrite it.
type SessionRecord struct {
	UserID    string    `json:"user_id"`
	TenantID  string    `json:"tenant_id"`
	CreatedAt time.Time `json:"created_at"`
}

// UserSummary is the safe subset of User returned by auth endpoints.
type UserSummary struct {
	ID       string `json:"id"`
	TenantID string `json:"tenant_id"`
	Email    string `json:"email"`
	Role     string `json:"role"`
}

// Summary strips a user down to its response shape.
func (u *User) Summary() UserSummary {
	return UserSummary{ID: u.ID, TenantID: u.TenantID, Email: u.Email, Role: u.Role}
}

// TenantSummary is the safe subset of Tenant returned by auth endpoints.
type TenantSummary struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Slug     string `json:"slug"`
	Status   string `json:"status"`
	PlanTier string `json:"plan_tier"`
}

// Summary strips a tenant down to its response shape.
func (t *Tenant) Summary() TenantSummary {
	return TenantSummary{ID: t.ID, Name: t.Name, Slug: t.Slug, Status: t.Status, PlanTier: t.PlanTier}
}

// Repository is the relational-store contract the gateway depends on.
// Implemented by pg.Store; tests substitute in-memory fakes.
type Repository interface {
	GetTenant(ctx context.Context, id string) (*Tenant, error)

	GetUserByID(ctx context.Context, id string) (*User, error)
	GetUserByEmail(ctx context.Context, email string) (*User, error)
	UpdateLastLogin(ctx context.Context, userID string, at time.Time) error
	UpdatePasswordHash(ctx context.Context, userID string, hash string) error

	CreateAPIKey(ctx context.Context, key *ApiKey) error
	GetAPIKeyByID(ctx context.Context, tenantID, id string) (*ApiKey, error)
	GetAPIKeyByPrefix(ctx context.Context, prefix string) (*ApiKey, error)
	ListAPIKeys(ctx context.Context, tenantID string) ([]*ApiKey, error)
	UpdateAPIKey(ctx context.Context, key *ApiKey) error
	RevokeAPIKey(ctx context.Context, tenantID, id string, at time.Time) error
	TouchAPIKeyLastUsed(ctx context.Context, id string, at time.Time) error
}
