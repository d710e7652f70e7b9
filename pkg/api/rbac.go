package api

import (
	"net/http"
	"strings"

	mapset "github.com/deckarep/golang-set/v2"

	"github.com/dlrs-ng/land-registry/pkg/registry"
)

// Role represents a caller's access level.
type Role string

const (
	// RolePublic can only use the health and verification endpoints.
	RolePublic Role = "public"

	// RoleSurveyor submits, edits and removes pending parcels.
	RoleSurveyor Role = "surveyor"

	// RoleAdmin can additionally approve parcels and run integrity checks.
	RoleAdmin Role = "admin"
)

const (
	// RoleHeader is the HTTP header used by the header extractor.
	RoleHeader = "X-User-Role"

	// PrincipalHeader carries the caller identity recorded in the audit trail.
	PrincipalHeader = "X-User-Principal"
)

// Identity is who is calling and with which role.
type Identity struct {
	Principal string
	Role      Role
}

// IdentityExtractor resolves the caller of a request.
type IdentityExtractor func(r *http.Request) Identity

// ParseRole maps a role name to a Role. Unknown names map to RolePublic.
func ParseRole(s string) Role {
	switch Role(strings.ToLower(strings.TrimSpace(s))) {
	case RoleAdmin:
		return RoleAdmin
	case RoleSurveyor:
		return RoleSurveyor
	default:
		return RolePublic
	}
}

// HeaderIdentityExtractor reads the role from X-User-Role and the principal
// from X-User-Principal. Only suitable behind a trusted proxy.
func HeaderIdentityExtractor(r *http.Request) Identity {
	role := ParseRole(r.Header.Get(RoleHeader))
	return Identity{Principal: headerPrincipal(r, role), Role: role}
}

// OpenIdentityExtractor grants every caller RoleAdmin. It is the default when
// authentication is disabled.
func OpenIdentityExtractor(r *http.Request) Identity {
	return Identity{Principal: headerPrincipal(r, ""), Role: RoleAdmin}
}

func headerPrincipal(r *http.Request, role Role) string {
	if principal := strings.TrimSpace(r.Header.Get(PrincipalHeader)); principal != "" {
		return principal
	}
	if role != "" && role != RolePublic {
		return string(role)
	}
	return ""
}

// RequireRole returns middleware that admits only the given roles. Admitted
// requests carry the caller's principal as the audit actor.
func RequireRole(extractor IdentityExtractor, allowed ...Role) func(http.Handler) http.Handler {
	if extractor == nil {
		extractor = OpenIdentityExtractor
	}
	roles := mapset.NewSet(allowed...)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := extractor(r)
			if !roles.Contains(id.Role) {
				writeError(w, http.StatusForbidden, "FORBIDDEN", "insufficient permissions")
				return
			}
			ctx := registry.WithActor(r.Context(), id.Principal)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
