package models

import (
	"fmt"
	"strings"
)

type Role string

const (
	RoleAdmin  Role = "ADMIN"
	RoleMember Role = "MEMBER"
	RoleGuest  Role = "GUEST"
)

// Roles lists every known role, lowest rank first.
var Roles = []Role{RoleGuest, RoleMember, RoleAdmin}

// ParseRole converts user input into a Role. Unknown values are rejected so
// they never reach the permission predicates.
func ParseRole(s string) (Role, error) {
	switch Role(strings.ToUpper(strings.TrimSpace(s))) {
	case RoleAdmin:
		return RoleAdmin, nil
	case RoleMember:
		return RoleMember, nil
	case RoleGuest:
		return RoleGuest, nil
	}
	return "", fmt.Errorf("unknown role %q", s)
}

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	_, err := ParseRole(string(r))
	return err == nil
}

// Rank orders roles: GUEST < MEMBER < ADMIN.
func (r Role) Rank() int {
	switch r {
	case RoleAdmin:
		return 2
	case RoleMember:
		return 1
	case RoleGuest:
		return 0
	}
	// Unknown roles rank below every real role.
	return -1
}

func IsAdmin(r Role) bool {
	return r == RoleAdmin
}

// IsMember is true for MEMBER and ADMIN.
func IsMember(r Role) bool {
	return r == RoleAdmin || r == RoleMember
}

// HasPermission reports whether userRole ranks at least as high as required.
func HasPermission(userRole, required Role) bool {
	if !userRole.Valid() || !required.Valid() {
		return false
	}
	return userRole.Rank() >= required.Rank()
}

func CanCreateProjects(r Role) bool { return HasPermission(r, RoleMember) }
func CanManageProjects(r Role) bool { return IsAdmin(r) }
func CanManageTeams(r Role) bool    { return IsAdmin(r) }
func CanManageUsers(r Role) bool    { return IsAdmin(r) }
func CanCreateTickets(r Role) bool  { return HasPermission(r, RoleMember) }
func CanEditTickets(r Role) bool    { return HasPermission(r, RoleMember) }
func CanDeleteTickets(r Role) bool  { return IsAdmin(r) }
func CanViewAuditLog(r Role) bool   { return IsAdmin(r) }
func CanViewAllTickets(r Role) bool { return IsAdmin(r) }
