package auth

import (
	"fmt"
	"sort"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/property-service/internal/domain"
)

// RoleSet is an immutable set of permitted roles.
type RoleSet map[domain.Role]struct{}

// NewRoleSet builds a set from roles.
func NewRoleSet(roles ...domain.Role) RoleSet {
	set := make(RoleSet, len(roles))
	for _, role := range roles {
		set[role] = struct{}{}
	}
	return set
}

// Contains reports exact membership.
func (s RoleSet) Contains(role domain.Role) bool {
	_, ok := s[role]
	return ok
}

// Authorize permits the request iff role is present and a member of allowed.
func Authorize(role domain.Role, allowed RoleSet) error {
	if role == domain.RoleNone {
		return &AuthorizationError{Kind: AuthorizationNoRole}
	}
	if !allowed.Contains(role) {
		return &AuthorizationError{Kind: AuthorizationForbidden, Role: string(role)}
	}
	return nil
}

// RequireRoles ensures the authenticated principal has one of the allowed roles.
// It must run after a Gate handler.
func RequireRoles(allowed ...domain.Role) fiber.Handler {
	allowedSet := NewRoleSet(allowed...)
	return func(c *fiber.Ctx) error {
		principal, ok := PrincipalFromContext(c)
		if !ok {
			return toDomainError(&CredentialError{Kind: CredentialMissing})
		}
		if err := Authorize(principal.Role, allowedSet); err != nil {
			return toDomainError(err)
		}
		return c.Next()
	}
}

// CheckRoleCatalog verifies every role name the store can return belongs to the enum.
// It returns the enum roles missing from the store so callers can warn about them.
func CheckRoleCatalog(storeNames []string) ([]domain.Role, error) {
	seen := make(map[domain.Role]struct{}, len(storeNames))
	var unknown []string
	for _, name := range storeNames {
		role, ok := domain.ParseRole(name)
		if !ok {
			unknown = append(unknown, name)
			continue
		}
		seen[role] = struct{}{}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return nil, fmt.Errorf("roles table contains unsupported roles: %s", strings.Join(unknown, ", "))
	}

	var missing []domain.Role
	for _, role := range domain.KnownRoles() {
		if _, ok := seen[role]; !ok {
			missing = append(missing, role)
		}
	}
	return missing, nil
}
