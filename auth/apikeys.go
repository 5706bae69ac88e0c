package auth

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// DefaultKeyPrefixTag brands issued keys when API_KEY_TAG is not configured.
const DefaultKeyPrefixTag = "vxk"

// ApiKeyService implements the /api-keys CRUD surface. Keys are
// tenant-scoped; the cleartext secret exists only in the creation response.
type ApiKeyService struct {
	repo Repository
	keys *KeyMaker
	tag  string
}

// NewApiKeyService creates a new API-key service issuing keys under the
// given prefix tag.
func NewApiKeyService(repo Repository, keys *KeyMaker, prefixTag string) *ApiKeyService {
	if prefixTag == "" {
		prefixTag = DefaultKeyPrefixTag
	}
	return &ApiKeyService{
		repo: repo,
		keys: keys,
		tag:  prefixTag,
	}
}

// Create mints a key for the creator's tenant. An empty permission list
// defaults to the creator's grantable set; an explicit list must pass
// ValidateKeyPermissions in full. The returned secret is shown exactly
// once and cannot be recovered.
func (s *ApiKeyService) Create(ctx context.Context, tenantID, creatorID, creatorRole, name string, permissions []string, expiresAt *time.Time) (*ApiKey, string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, "", NewInputError("API key name is required")
	}

	var granted []string
	if len(permissions) == 0 {
		granted = KeyGrantablePermissions(creatorRole)
	} else {
		if offending := ValidateKeyPermissions(creatorRole, permissions); len(offending) > 0 {
			return nil, "", NewInputError("Permissions not grantable to API keys: " + strings.Join(offending, ", "))
		}
		granted = normalizePermissions(permissions)
	}
	if len(granted) == 0 {
		return nil, "", NewInputError("API key would hold no permissions")
	}

	if expiresAt != nil && !expiresAt.After(time.Now()) {
		return nil, "", NewInputError("Expiry must be in the future")
	}

	generated, err := s.keys.Generate(s.tag)
	if err != nil {
		return nil, "", fmt.Errorf("could not generate key: %w", err)
	}

	key := &ApiKey{
		ID:          uuid.NewString(),
		TenantID:    tenantID,
		CreatedBy:   creatorID,
		Name:        name,
		SecretHash:  generated.StoredHash,
		Prefix:      generated.Prefix,
		Permissions: granted,
		ExpiresAt:   expiresAt,
		CreatedAt:   time.Now().UTC(),
	}
	if err := s.repo.CreateAPIKey(ctx, key); err != nil {
		return nil, "", fmt.Errorf("could not store key: %w", err)
	}

	return key, generated.FullSecret, nil
}

// List returns every key in the tenant, revoked ones included.
func (s *ApiKeyService) List(ctx context.Context, tenantID string) ([]*ApiKey, error) {
	keys, err := s.repo.ListAPIKeys(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("could not list keys: %w", err)
	}
	return keys, nil
}

// Get returns one key by id within the tenant.
func (s *ApiKeyService) Get(ctx context.Context, tenantID, keyID string) (*ApiKey, error) {
	key, err := s.repo.GetAPIKeyByID(ctx, tenantID, keyID)
	if err != nil {
		if isNotFound(err) {
			return nil, ErrApiKeyNotFound
		}
		return nil, fmt.Errorf("could not load key: %w", err)
	}
	return key, nil
}

// Update applies a partial update to name, permissions or expiry. Revoked
// keys are immutable. A permission change is validated against the
// caller's role exactly like creation.
func (s *ApiKeyService) Update(ctx context.Context, tenantID, keyID, callerRole string, name *string, permissions []string, expiresAt *time.Time) (*ApiKey, error) {
	key, err := s.Get(ctx, tenantID, keyID)
	if err != nil {
		return nil, err
	}
	if key.Revoked() {
		return nil, NewInputError("API key has been revoked and cannot be updated")
	}

	if name != nil {
		trimmed := strings.TrimSpace(*name)
		if trimmed == "" {
			return nil, NewInputError("API key name cannot be empty")
		}
		key.Name = trimmed
	}
	if len(permissions) > 0 {
		if offending := ValidateKeyPermissions(callerRole, permissions); len(offending) > 0 {
			return nil, NewInputError("Permissions not grantable to API keys: " + strings.Join(offending, ", "))
		}
		key.Permissions = normalizePermissions(permissions)
	}
	if expiresAt != nil {
		if !expiresAt.After(time.Now()) {
			return nil, NewInputError("Expiry must be in the future")
		}
		key.ExpiresAt = expiresAt
	}

	if err := s.repo.UpdateAPIKey(ctx, key); err != nil {
		// The repository refuses to touch revoked rows; losing that race
		// reads the same as the key disappearing.
		if isNotFound(err) {
			return nil, ErrApiKeyNotFound
		}
		return nil, fmt.Errorf("could not update key: %w", err)
	}
	return key, nil
}

// Revoke marks a key revoked. Revoking an already-revoked key succeeds, so
// retries and races stay quiet.
func (s *ApiKeyService) Revoke(ctx context.Context, tenantID, keyID string) error {
	key, err := s.Get(ctx, tenantID, keyID)
	if err != nil {
		return err
	}
	if key.Revoked() {
		return nil
	}
	if err := s.repo.RevokeAPIKey(ctx, tenantID, keyID, time.Now().UTC()); err != nil {
		return fmt.Errorf("could not revoke key: %w", err)
	}
	return nil
}

func normalizePermissions(perms []string) []string {
	seen := make(map[string]bool, len(perms))
	out := make([]string, 0, len(perms))
	for _, p := range perms {
		if seen[p] {
			continue
		}
		seen[p] = true
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}
