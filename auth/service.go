package auth

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// AuthService provides the credential flows behind the /auth endpoints:
// login, refresh, logout, token validation and password changes.
type AuthService struct {
	repo     Repository
	tokens   *TokenService
	hasher   *Hasher
	sessions *SessionStore
}

// NewAuthService creates a new authentication service.
func NewAuthService(repo Repository, tokens *TokenService, hasher *Hasher, sessions *SessionStore) *AuthService {
	return &AuthService{
		repo:     repo,
		tokens:   tokens,
		hasher:   hasher,
		sessions: sessions,
	}
}

// Login validates credentials and opens a session for the user. Lookup
// misses, wrong passwords and inactive accounts or tenants all collapse
// into the same INVALID_CREDENTIALS failure so the response never reveals
// which part was wrong.
func (s *AuthService) Login(ctx context.Context, email, password string) (*TokenPair, *User, error) {
	user, err := s.repo.GetUserByEmail(ctx, email)
	if err != nil {
		if isNotFound(err) {
			return nil, nil, ErrInvalidCredentials
		}
		return nil, nil, fmt.Errorf("could not look up user: %w", err)
	}

	if user.Status != UserActive {
		return nil, nil, ErrInvalidCredentials
	}
	if !s.hasher.Verify(password, user.PasswordHash) {
		return nil, nil, ErrInvalidCredentials
	}

	tenant, err := s.repo.GetTenant(ctx, user.TenantID)
	if err != nil {
		if isNotFound(err) {
			return nil, nil, ErrInvalidCredentials
		}
		return nil, nil, fmt.Errorf("could not load tenant: %w", err)
	}
	if !tenant.Operational() {
		return nil, nil, ErrInvalidCredentials
	}

	pair, err := s.tokens.IssuePair(user.ID, user.TenantID, user.Role, RolePermissions(user.Role))
	if err != nil {
		return nil, nil, fmt.Errorf("could not issue tokens: %w", err)
	}

	// Without a session the fresh access token would be rejected on its
	// first use, so a store failure fails the login.
	if err := s.sessions.Put(ctx, user.ID, user.TenantID, s.tokens.AccessTTL()); err != nil {
		return nil, nil, fmt.Errorf("could not store session: %w", err)
	}

	now := time.Now().UTC()
	if err := s.repo.UpdateLastLogin(ctx, user.ID, now); err != nil {
		slog.Warn("last-login update failed", "user_id", user.ID, "error", err)
	}
	user.LastLoginAt = &now

	return pair, user, nil
}

// Refresh exchanges a valid refresh token for a new access token and
// re-establishes the subject's session. Account and tenant state are
// re-checked so a suspension ends the refresh chain.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (string, int64, error) {
	claims, err := s.tokens.VerifyRefresh(refreshToken)
	if err != nil {
		return "", 0, err
	}

	user, err := s.repo.GetUserByID(ctx, claims.UserID)
	if err != nil {
		if isNotFound(err) {
			return "", 0, ErrInvalidCredentials
		}
		return "", 0, fmt.Errorf("could not look up user: %w", err)
	}
	if user.Status != UserActive || user.TenantID != claims.TenantID {
		return "", 0, ErrInvalidCredentials
	}

	tenant, err := s.repo.GetTenant(ctx, user.TenantID)
	if err != nil {
		if isNotFound(err) {
			return "", 0, ErrInvalidCredentials
		}
		return "", 0, fmt.Errorf("could not load tenant: %w", err)
	}
	if !tenant.Operational() {
		return "", 0, ErrInvalidCredentials
	}

	// Permissions come from the role at refresh time, not from the old
	// access token, so role changes take effect here.
	access, err := s.tokens.IssueAccess(user.ID, user.TenantID, user.Role, RolePermissions(user.Role))
	if err != nil {
		return "", 0, fmt.Errorf("could not issue access token: %w", err)
	}

	if err := s.sessions.Put(ctx, user.ID, user.TenantID, s.tokens.AccessTTL()); err != nil {
		return "", 0, fmt.Errorf("could not store session: %w", err)
	}

	return access, int64(s.tokens.AccessTTL().Seconds()), nil
}

// Logout deletes the subject's session. Outstanding access tokens for the
// subject are rejected with SESSION_INVALIDATED from then on.
func (s *AuthService) Logout(ctx context.Context, userID string) error {
	return s.sessions.Delete(ctx, userID)
}

// ValidationResult is the oracle answer for POST /auth/validate. A bad
// token is a negative answer, never an error.
type ValidationResult struct {
	Valid       bool     `json:"valid"`
	UserID      string   `json:"user_id,omitempty"`
	TenantID    string   `json:"tenant_id,omitempty"`
	Role        string   `json:"role,omitempty"`
	Permissions []string `json:"permissions,omitempty"`
}

// Validate answers whether an access token would authenticate right now:
// signature, expiry and type via the codec, then a live session for the
// subject. Only a session-store failure is an error.
func (s *AuthService) Validate(ctx context.Context, token string) (*ValidationResult, error) {
	claims, err := s.tokens.VerifyAccess(token)
	if err != nil {
		return &ValidationResult{}, nil
	}

	record, err := s.sessions.Get(ctx, claims.UserID)
	if err != nil {
		return nil, fmt.Errorf("could not read session: %w", err)
	}
	if record == nil || record.TenantID != claims.TenantID {
		return &ValidationResult{}, nil
	}

	return &ValidationResult{
		Valid:       true,
		UserID:      claims.UserID,
		TenantID:    claims.TenantID,
		Role:        claims.Role,
		Permissions: claims.Permissions,
	}, nil
}

// ChangePassword verifies the current password, enforces the strength
// policy on the replacement, stores the new hash and drops the subject's
// session so other devices must re-authenticate. The refresh token stays
// usable.
func (s *AuthService) ChangePassword(ctx context.Context, userID, currentPassword, newPassword string) error {
	user, err := s.repo.GetUserByID(ctx, userID)
	if err != nil {
		if isNotFound(err) {
			return ErrUserNotFound
		}
		return fmt.Errorf("could not look up user: %w", err)
	}

	if !s.hasher.Verify(currentPassword, user.PasswordHash) {
		return NewAuthError("INVALID_CREDENTIALS", "Current password is incorrect", 401)
	}

	if violations := ValidatePasswordStrength(newPassword); len(violations) > 0 {
		return NewInputError("Password rejected: " + strings.Join(violations, "; "))
	}

	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return fmt.Errorf("could not hash password: %w", err)
	}
	if err := s.repo.UpdatePasswordHash(ctx, userID, hash); err != nil {
		return fmt.Errorf("could not store password hash: %w", err)
	}

	if err := s.sessions.Delete(ctx, userID); err != nil {
		slog.Warn("session delete after password change failed", "user_id", userID, "error", err)
	}
	return nil
}
