package auth

import (
	"strings"
	"time"

	"github.com/inkbook/session-core/internal/domain"
)

var roleMarkers = map[string]domain.Role{
	"ROLE_ADMIN":        domain.RoleAdmin,
	"ADMIN":             domain.RoleAdmin,
	"ROLE_DELETED":      domain.RoleDeleted,
	"DELETED":           domain.RoleDeleted,
	"ROLE_PROFESSIONAL": domain.RoleProfessional,
	"ROLE_PROF":         domain.RoleProfessional,
	"PROFESSIONAL":      domain.RoleProfessional,
	"ROLE_USER":         domain.RoleUser,
	"USER":              domain.RoleUser,
}

// precedence lists roles from strongest to weakest.
var precedence = []domain.Role{
	domain.RoleAdmin,
	domain.RoleDeleted,
	domain.RoleProfessional,
	domain.RoleUser,
}

// RoleFromScope maps a space or comma delimited scope to a role.
// Unknown or absent markers resolve to USER.
func RoleFromScope(scope string) domain.Role {
	found := make(map[domain.Role]struct{}, len(precedence))
	for _, marker := range strings.FieldsFunc(scope, func(r rune) bool {
		return r == ' ' || r == ',' || r == '\t' || r == '\n'
	}) {
		if role, ok := roleMarkers[strings.ToUpper(marker)]; ok {
			found[role] = struct{}{}
		}
	}
	for _, role := range precedence {
		if _, ok := found[role]; ok {
			return role
		}
	}
	return domain.RoleUser
}

// RoleOf resolves the role encoded in the token claims.
func RoleOf(claims domain.Claims) domain.Role {
	return RoleFromScope(claims.Scope)
}

// IsExpired reports whether the claims are no longer usable at now.
func IsExpired(claims domain.Claims, now time.Time) bool {
	return !now.Before(claims.ExpiresAt)
}
