package auth

import (
	"fmt"

	"github.com/Halamis85/lpa-web-v2/internal/domain"
)

// ForbiddenError indicates the acting user lacks the required role or
// identity for an operation.
type ForbiddenError struct {
	Need string
}

func (e ForbiddenError) Error() string {
	return fmt.Sprintf("%s required", e.Need)
}

// RequireRole checks that the user holds any of the listed roles.
func RequireRole(u domain.User, roles ...domain.Role) error {
	for _, r := range roles {
		if u.HasRole(r) {
			return nil
		}
	}
	need := ""
	for i, r := range roles {
		if i > 0 {
			need += " or "
		}
		need += string(r)
	}
	return ForbiddenError{Need: "role " + need}
}

// RequireSelfOrAdmin allows the operation when the acting user is the
// expected owner, or holds the admin role.
func RequireSelfOrAdmin(u domain.User, ownerID int64, what string) error {
	if u.ID == ownerID || u.HasRole(domain.RoleAdmin) {
		return nil
	}
	return ForbiddenError{Need: what}
}

// IsAdmin is a convenience wrapper used by read-side visibility checks.
func IsAdmin(u domain.User) bool {
	return u.HasRole(domain.RoleAdmin)
}
