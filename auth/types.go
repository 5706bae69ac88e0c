package auth

import (
	"github.com/golang-jwt/jwt/v5"
)

// TokenType marks what a signed credential may be used for.
type TokenType string

const (
	AccessToken  TokenType = "access"
	RefreshToken TokenType = "refresh"
)

// AuthMethod records which credential path resolved a request.
type AuthMethod string

const (
	MethodSession  AuthMethod = "session"
	MethodAPIKey   AuthMethod = "api_key"
	MethodInternal AuthMethod = "internal"
)

// Claims is the signed payload of both token types. Access tokens carry the
// full identity; refresh tokens carry only user_id, tenant_id and token_type
// to limit their replay value.
type Claims struct {
	UserID      string    `json:"user_id"`
	TenantID    string    `json:"tenant_id"`
	Role        string    `json:"role,omitempty"`
	Permissions []string  `json:"permissions,omitempty"`
	TokenType   TokenType `json:"token_type"`
	jwt.RegisteredClaims
}

// AuthContext is the resolved identity attached to a request after the
// credential chain succeeds. Tenant and User are populated by the tenant
// context middleware and are read-only snapshots.
type AuthContext struct {
	UserID      string     `json:"user_id"`
	TenantID    string     `json:"tenant_id"`
	Role        string     `json:"role"`
	Permissions []string   `json:"permissions"`
	Method      AuthMethod `json:"method"`

	// APIKeyID is set when Method is MethodAPIKey.
	APIKeyID string `json:"api_key_id,omitempty"`
	// ServiceName is set when Method is MethodInternal.
	ServiceName string `json:"service_name,omitempty"`

	Tenant *Tenant `json:"-"`
	User   *User   `json:"-"`
}

// HasPermission reports whether the resolved identity holds perm.
func (a *AuthContext) HasPermission(perm string) bool {
	for _, p := range a.Permissions {
		if p == perm {
			return true
		}
	}
	return false
}

// AuthRequirement specifies what authorization a route needs beyond a valid
// credential. Zero value means any authenticated identity is allowed.
type AuthRequirement struct {
	// AllOf must all be held by the identity.
	AllOf []string
	// AnyOf requires at least one match when non-empty.
	AnyOf []string
}
