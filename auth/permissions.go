package auth

import "sort"

// The permission catalog, grouped by resource. Permissions are opaque
// strings to every other component; only this file knows the full set.
const (
	PermTenantRead   = "tenant:read"
	PermTenantUpdate = "tenant:update"

	PermUserRead   = "user:read"
	PermUserInvite = "user:invite"
	PermUserUpdate = "user:update"
	PermUserDelete = "user:delete"

	PermAPIKeyRead   = "apikey:read"
	PermAPIKeyCreate = "apikey:create"
	PermAPIKeyUpdate = "apikey:update"
	PermAPIKeyRevoke = "apikey:revoke"

	PermSessionRead   = "session:read"
	PermSessionRevoke = "session:revoke"

	PermFlagRead   = "flag:read"
	PermFlagUpdate = "flag:update"

	PermEventRead    = "event:read"
	PermEventPublish = "event:publish"

	PermAnalyticsRead = "analytics:read"

	PermUsageRead = "usage:read"

	PermServiceRead   = "service:read"
	PermServiceManage = "service:manage"
)

// catalog is the closed set of valid permissions.
var catalog = map[string]bool{
	PermTenantRead: true, PermTenantUpdate: true,
	PermUserRead: true, PermUserInvite: true, PermUserUpdate: true, PermUserDelete: true,
	PermAPIKeyRead: true, PermAPIKeyCreate: true, PermAPIKeyUpdate: true, PermAPIKeyRevoke: true,
	PermSessionRead: true, PermSessionRevoke: true,
	PermFlagRead: true, PermFlagUpdate: true,
	PermEventRead: true, PermEventPublish: true,
	PermAnalyticsRead: true,
	PermUsageRead:     true,
	PermServiceRead:   true, PermServiceManage: true,
}

// rolePermissions is the static role mapping. ADMIN holds everything.
var rolePermissions = map[string][]string{
	RoleAdmin: {
		PermTenantRead, PermTenantUpdate,
		PermUserRead, PermUserInvite, PermUserUpdate, PermUserDelete,
		PermAPIKeyRead, PermAPIKeyCreate, PermAPIKeyUpdate, PermAPIKeyRevoke,
		PermSessionRead, PermSessionRevoke,
		PermFlagRead, PermFlagUpdate,
		PermEventRead, PermEventPublish,
		PermAnalyticsRead,
		PermUsageRead,
		PermServiceRead, PermServiceManage,
	},
	RoleManager: {
		PermTenantRead,
		PermUserRead, PermUserInvite, PermUserUpdate,
		PermAPIKeyRead, PermAPIKeyCreate, PermAPIKeyUpdate, PermAPIKeyRevoke,
		PermSessionRead, PermSessionRevoke,
		PermFlagRead, PermFlagUpdate,
		PermEventRead, PermEventPublish,
		PermAnalyticsRead,
		PermUsageRead,
		PermServiceRead,
	},
	RoleUser: {
		PermTenantRead,
		PermUserRead,
		PermAPIKeyRead,
		PermSessionRead,
		PermFlagRead,
		PermEventRead, PermEventPublish,
		PermAnalyticsRead,
		PermUsageRead,
	},
}

// dangerousPermissions are never grantable to API keys, whether the set is
// defaulted from the creator's role or supplied explicitly.
var dangerousPermissions = map[string]bool{
	PermTenantUpdate:  true,
	PermUserDelete:    true,
	PermAPIKeyCreate:  true,
	PermAPIKeyUpdate:  true,
	PermAPIKeyRevoke:  true,
	PermSessionRevoke: true,
	PermServiceManage: true,
}

// RolePermissions returns a copy of the static permission set for a role.
// Unknown roles get nothing.
func RolePermissions(role string) []string {
	perms, ok := rolePermissions[role]
	if !ok {
		return nil
	}
	out := make([]string, len(perms))
	copy(out, perms)
	return out
}

// KnownPermission reports whether perm is in the catalog.
func KnownPermission(perm string) bool {
	return catalog[perm]
}

// IsDangerous reports whether perm is excluded from API-key grants.
func IsDangerous(perm string) bool {
	return dangerousPermissions[perm]
}

// KeyGrantablePermissions is the creator's role set minus destructive
// operations, the default and also the ceiling for any API key the creator
// issues.
func KeyGrantablePermissions(role string) []string {
	var out []string
	for _, p := range RolePermissions(role) {
		if !dangerousPermissions[p] {
			out = append(out, p)
		}
	}
	return out
}

// ValidateKeyPermissions checks a caller-supplied permission list against
// the creator's grantable set. It returns every offending entry: unknown
// permissions, dangerous permissions, and permissions outside the creator's
// role. Empty result means the list is acceptable.
func ValidateKeyPermissions(role string, requested []string) []string {
	allowed := make(map[string]bool)
	for _, p := range KeyGrantablePermissions(role) {
		allowed[p] = true
	}

	var offending []string
	seen := make(map[string]bool)
	for _, p := range requested {
		if seen[p] {
			continue
		}
		seen[p] = true
		if !allowed[p] {
			offending = append(offending, p)
		}
	}
	sort.Strings(offending)
	return offending
}

// CheckRequirement is the permission gate: a pure function from an
// identity's permission set and a route requirement to allow/deny. Denials
// enumerate required vs. held, never a partial authorization.
func CheckRequirement(held []string, req *AuthRequirement) *AuthError {
	if req == nil || (len(req.AllOf) == 0 && len(req.AnyOf) == 0) {
		return nil
	}

	holds := make(map[string]bool, len(held))
	for _, p := range held {
		holds[p] = true
	}

	var missing []string
	for _, p := range req.AllOf {
		if !holds[p] {
			missing = append(missing, p)
		}
	}
	if len(missing) > 0 {
		return NewPermissionDenied(missing, held)
	}

	if len(req.AnyOf) > 0 {
		for _, p := range req.AnyOf {
			if holds[p] {
				return nil
			}
		}
		return NewPermissionDenied(req.AnyOf, held)
	}

	return nil
}

// RequirePermissions builds an all-of requirement.
func RequirePermissions(permissions ...string) *AuthRequirement {
	return &AuthRequirement{AllOf: permissions}
}

// RequireAnyPermission builds an any-of requirement.
func RequireAnyPermission(permissions ...string) *AuthRequirement {
	return &AuthRequirement{AnyOf: permissions}
}

// RequireAuth only requires a valid credential, with no specific permissions.
func RequireAuth() *AuthRequirement {
	return &AuthRequirement{}
}
