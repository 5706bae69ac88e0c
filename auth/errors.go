package auth

import (
	"errors"
	"fmt"
	"strings"
)

// ErrRecordNotFound is the repository's absent-row sentinel, checked with
// errors.Is so implementations can wrap it with context.
var ErrRecordNotFound = errors.New("auth: record not found")

func isNotFound(err error) bool {
	return errors.Is(err, ErrRecordNotFound)
}

// AuthError represents authentication/authorization errors
type AuthError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
	Code    int    `json:"-"`

	// Required/Held enumerate permissions on authorization denials.
	Required []string `json:"required,omitempty"`
	Held     []string `json:"held,omitempty"`

	// Rate-limit metadata on 429 responses.
	Limit             int64 `json:"limit,omitempty"`
	Current           int64 `json:"current,omitempty"`
	RetryAfterSeconds int64 `json:"retry_after_seconds,omitempty"`
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Type, e.Message)
}

// Common auth errors. 401 messages stay generic so a caller probing
// credentials learns nothing beyond "not authenticated".
var (
	ErrNoCredential        = &AuthError{Type: "NO_CREDENTIAL", Message: "Authorization header required", Code: 401}
	ErrExpiredCredential   = &AuthError{Type: "EXPIRED_CREDENTIAL", Message: "Credential has expired", Code: 401}
	ErrMalformedCredential = &AuthError{Type: "MALFORMED_CREDENTIAL", Message: "Credential is not valid", Code: 401}
	ErrSessionInvalidated  = &AuthError{Type: "SESSION_INVALIDATED", Message: "Session is no longer active", Code: 401}
	ErrInvalidApiKey       = &AuthError{Type: "INVALID_API_KEY", Message: "API key is not valid", Code: 401}
	ErrApiKeyExpired       = &AuthError{Type: "API_KEY_EXPIRED", Message: "API key has expired", Code: 401}
	ErrInvalidCredentials  = &AuthError{Type: "INVALID_CREDENTIALS", Message: "Invalid credentials", Code: 401}
	ErrTenantNotFound      = &AuthError{Type: "TENANT_NOT_FOUND", Message: "Credential is no longer valid", Code: 401}
	ErrUserNotFound        = &AuthError{Type: "USER_NOT_FOUND", Message: "Credential is no longer valid", Code: 401}
	ErrInternalCredential  = &AuthError{Type: "INVALID_INTERNAL_CREDENTIAL", Message: "Internal credential rejected", Code: 401}

	ErrTenantSuspended = &AuthError{Type: "TENANT_SUSPENDED", Message: "Tenant is not active", Code: 403}
	ErrUserSuspended   = &AuthError{Type: "USER_SUSPENDED", Message: "User account is not active", Code: 403}
	ErrTenantMismatch  = &AuthError{Type: "TENANT_MISMATCH", Message: "Credential does not match tenant", Code: 403}

	// ErrApiKeyNotFound is resource-shaped rather than credential-shaped; it
	// keeps api-key CRUD on the same error envelope.
	ErrApiKeyNotFound = &AuthError{Type: "API_KEY_NOT_FOUND", Message: "API key not found", Code: 404}

	ErrStoreUnavailable = &AuthError{Type: "STORE_UNAVAILABLE", Message: "Authentication backend unavailable", Code: 500}
)

// NewAuthError builds a one-off error for cases the sentinels don't cover.
func NewAuthError(errorType, message string, code int) *AuthError {
	return &AuthError{Type: errorType, Message: message, Code: code}
}

// NewInputError is the 400 shape for malformed request bodies and fields.
func NewInputError(message string) *AuthError {
	return &AuthError{Type: "INVALID_INPUT", Message: message, Code: 400}
}

// NewPermissionDenied enumerates what the route required against what the
// identity held. Safe to reveal: identity is already established at this
// point.
func NewPermissionDenied(required, held []string) *AuthError {
	return &AuthError{
		Type:     "INSUFFICIENT_PERMISSIONS",
		Message:  fmt.Sprintf("Missing required permission(s): %s", strings.Join(required, ", ")),
		Code:     403,
		Required: required,
		Held:     held,
	}
}

// NewRateLimited carries the retry metadata for a 429 response.
func NewRateLimited(limit, current, retryAfterSeconds int64) *AuthError {
	return &AuthError{
		Type:              "RATE_LIMITED",
		Message:           "Rate limit exceeded",
		Code:              429,
		Limit:             limit,
		Current:           current,
		RetryAfterSeconds: retryAfterSeconds,
	}
}

// AsAuthError normalizes any error into an *AuthError, mapping unknown
// failures to a 500 without leaking their detail.
func AsAuthError(err error) *AuthError {
	if err == nil {
		return nil
	}
	if authErr, ok := err.(*AuthError); ok {
		return authErr
	}
	return &AuthError{Type: "INTERNAL_ERROR", Message: "Internal server error", Code: 500}
}
