package pg

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"voxhall.io/authgate/auth"
)

// Ensure Store implements auth.Repository at compile time.
var _ auth.Repository = (*Store)(nil)

const userColumns = "id, tenant_id, email, role, status, password_hash, last_login_at"

const apiKeyColumns = "id, tenant_id, created_by, name, secret_hash, prefix, " +
	"COALESCE(permissions, '{}') AS permissions, expires_at, last_used_at, revoked_at, created_at"

// GetTenant loads one tenant by id.
func (s *Store) GetTenant(ctx context.Context, id string) (*auth.Tenant, error) {
	var t auth.Tenant
	err := s.pool.QueryRow(ctx, `
		SELECT id, name, slug, status, plan_tier
		FROM tenants WHERE id = $1`, id,
	).Scan(&t.ID, &t.Name, &t.Slug, &t.Status, &t.PlanTier)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, auth.ErrRecordNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying tenant: %w", err)
	}
	return &t, nil
}

// GetUserByID loads one user by id.
func (s *Store) GetUserByID(ctx context.Context, id string) (*auth.User, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	return scanUser(row)
}

// GetUserByEmail loads one user by email, case-insensitively.
func (s *Store) GetUserByEmail(ctx context.Context, email string) (*auth.User, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE lower(email) = lower($1)`, email)
	return scanUser(row)
}

// UpdateLastLogin stamps a successful login. Best-effort; a missing row is
// not reported because the login already succeeded.
func (s *Store) UpdateLastLogin(ctx context.Context, userID string, at time.Time) error {
	_, err := s.pool.Exec(ctx, `UPDATE users SET last_login_at = $2 WHERE id = $1`, userID, at)
	if err != nil {
		return fmt.Errorf("updating last login: %w", err)
	}
	return nil
}

// UpdatePasswordHash replaces the stored credential hash.
func (s *Store) UpdatePasswordHash(ctx context.Context, userID string, hash string) error {
	tag, err := s.pool.Exec(ctx, `UPDATE users SET password_hash = $2 WHERE id = $1`, userID, hash)
	if err != nil {
		return fmt.Errorf("updating password hash: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return auth.ErrRecordNotFound
	}
	return nil
}

// CreateAPIKey persists a freshly minted key.
func (s *Store) CreateAPIKey(ctx context.Context, key *auth.ApiKey) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO api_keys (id, tenant_id, created_by, name, secret_hash, prefix, permissions, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		key.ID, key.TenantID, key.CreatedBy, key.Name, key.SecretHash,
		key.Prefix, key.Permissions, key.ExpiresAt, key.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting api key: %w", err)
	}
	return nil
}

// GetAPIKeyByID loads one key by id within a tenant.
func (s *Store) GetAPIKeyByID(ctx context.Context, tenantID, id string) (*auth.ApiKey, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+apiKeyColumns+` FROM api_keys WHERE id = $1 AND tenant_id = $2`, id, tenantID)
	return scanAPIKey(row)
}

// GetAPIKeyByPrefix is the authentication lookup. Unlike the CRUD reads it
// is not tenant-scoped; the tenant is unknown until the key is found.
func (s *Store) GetAPIKeyByPrefix(ctx context.Context, prefix string) (*auth.ApiKey, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+apiKeyColumns+` FROM api_keys WHERE prefix = $1`, prefix)
	return scanAPIKey(row)
}

// ListAPIKeys returns a tenant's keys, newest first.
func (s *Store) ListAPIKeys(ctx context.Context, tenantID string) ([]*auth.ApiKey, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+apiKeyColumns+` FROM api_keys WHERE tenant_id = $1 ORDER BY created_at DESC`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("querying api keys: %w", err)
	}
	defer rows.Close()

	var keys []*auth.ApiKey
	for rows.Next() {
		key, err := scanAPIKey(rows)
		if err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating api keys: %w", err)
	}
	return keys, nil
}

// UpdateAPIKey writes the mutable fields of an unrevoked key.
func (s *Store) UpdateAPIKey(ctx context.Context, key *auth.ApiKey) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE api_keys SET name = $3, permissions = $4, expires_at = $5
		WHERE id = $1 AND tenant_id = $2 AND revoked_at IS NULL`,
		key.ID, key.TenantID, key.Name, key.Permissions, key.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("updating api key: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return auth.ErrRecordNotFound
	}
	return nil
}

// RevokeAPIKey stamps revoked_at once. Zero affected rows means a
// concurrent revoke won and the original timestamp stands.
func (s *Store) RevokeAPIKey(ctx context.Context, tenantID, id string, at time.Time) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE api_keys SET revoked_at = $3
		WHERE id = $1 AND tenant_id = $2 AND revoked_at IS NULL`,
		id, tenantID, at,
	)
	if err != nil {
		return fmt.Errorf("revoking api key: %w", err)
	}
	return nil
}

// TouchAPIKeyLastUsed advances the key's liveness timestamp. Called from a
// detached goroutine after authentication; a missing row is not an error.
func (s *Store) TouchAPIKeyLastUsed(ctx context.Context, id string, at time.Time) error {
	_, err := s.pool.Exec(ctx, `UPDATE api_keys SET last_used_at = $2 WHERE id = $1`, id, at)
	if err != nil {
		return fmt.Errorf("touching api key: %w", err)
	}
	return nil
}

func scanUser(row pgx.Row) (*auth.User, error) {
	var u auth.User
	err := row.Scan(&u.ID, &u.TenantID, &u.Email, &u.Role, &u.Status, &u.PasswordHash, &u.LastLoginAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, auth.ErrRecordNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning user: %w", err)
	}
	return &u, nil
}

func scanAPIKey(row pgx.Row) (*auth.ApiKey, error) {
	var k auth.ApiKey
	err := row.Scan(
		&k.ID, &k.TenantID, &k.CreatedBy, &k.Name, &k.SecretHash,
		&k.Prefix, &k.Permissions, &k.ExpiresAt, &k.LastUsedAt, &k.RevokedAt, &k.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, auth.ErrRecordNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning api key: %w", err)
	}
	return &k, nil
}
