package domain

import "sort"

// Role enumerates the closed set of account roles stored in roles.name.
type Role string

const (
	RoleNone     Role = ""
	RoleAdmin    Role = "Admin"
	RoleManager  Role = "Manager"
	RoleLandlord Role = "Landlord"
	RoleTenant   Role = "Tenant"
)

var knownRoles = map[Role]struct{}{
	RoleAdmin:    {},
	RoleManager:  {},
	RoleLandlord: {},
	RoleTenant:   {},
}

// ParseRole maps a stored role name onto the enum. Matching is case-sensitive.
func ParseRole(name string) (Role, bool) {
	role := Role(name)
	if _, ok := knownRoles[role]; !ok {
		return RoleNone, false
	}
	return role, true
}

// KnownRoles returns every defined role sorted by name.
func KnownRoles() []Role {
	roles := make([]Role, 0, len(knownRoles))
	for role := range knownRoles {
		roles = append(roles, role)
	}
	sort.Slice(roles, func(i, j int) bool { return roles[i] < roles[j] })
	return roles
}

// Valid reports whether r is a member of the enum.
func (r Role) Valid() bool {
	_, ok := knownRoles[r]
	return ok
}
