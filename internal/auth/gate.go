package auth

import (
	"github.com/bsudfrance/bsf-server/internal/models"
)

// Access is the outcome of an authorization decision.
type Access int

const (
	// AccessUnauthenticated means no active user could be established.
	AccessUnauthenticated Access = iota
	// AccessForbidden means the user is known but lacks the required role.
	AccessForbidden
	// AccessGranted means the user may proceed.
	AccessGranted
)

// Decision pairs the access outcome with the user it applies to. Consumers
// switch exhaustively on Access instead of testing nested nil chains.
type Decision struct {
	Access Access
	User   *models.User
}

// Authorize evaluates the role gate for an already-resolved user. A nil user
// or a deactivated account is unauthenticated; an empty allowed set grants
// access to any active user.
func Authorize(user *models.User, allowed ...string) Decision {
	if user == nil || !user.IsActive {
		return Decision{Access: AccessUnauthenticated}
	}

	if len(allowed) == 0 {
		return Decision{Access: AccessGranted, User: user}
	}

	for _, role := range allowed {
		if user.Role == role {
			return Decision{Access: AccessGranted, User: user}
		}
	}

	return Decision{Access: AccessForbidden, User: user}
}

// AdminRoles is the allowed set for call sites where SUPER_ADMIN implicitly
// covers ADMIN privileges.
func AdminRoles() []string {
	return []string{models.RoleSuperAdmin, models.RoleAdmin}
}

// AllRoles lists every role, for call sites that only require a login.
func AllRoles() []string {
	return []string{models.RoleSuperAdmin, models.RoleAdmin, models.RoleUser}
}
