package auth

import (
	"github.com/gofiber/fiber/v2"
)

// Locals key for the resolved identity.
const authContextKey = "auth_context"

// Headers carrying credentials in and resolved context out.
const (
	HeaderInternalToken = "X-Internal-Token"
	HeaderServiceName   = "X-Service-Name"

	HeaderTenantID        = "X-Tenant-ID"
	HeaderUserID          = "X-User-ID"
	HeaderUserRole        = "X-User-Role"
	HeaderUserPermissions = "X-User-Permissions"
)

// SetContext attaches the resolved identity to the request.
func SetContext(c *fiber.Ctx, authCtx *AuthContext) {
	c.Locals(authContextKey, authCtx)
}

// GetAuthContext extracts the resolved identity, nil when the request has
// not passed authentication middleware.
func GetAuthContext(c *fiber.Ctx) *AuthContext {
	authCtx, ok := c.Locals(authContextKey).(*AuthContext)
	if !ok {
		return nil
	}
	return authCtx
}
