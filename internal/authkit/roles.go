package authkit

import (
	"fmt"
	"strings"
)

// Role is the marketplace account role carried in access tokens.
type Role string

const (
	// RoleStudent can browse tutors and book lessons.
	RoleStudent Role = "STUDENT"
	// RoleTutor can publish schedules and accept bookings.
	RoleTutor Role = "TUTOR"
	// RoleAdmin can access aggregate marketplace data.
	RoleAdmin Role = "ADMIN"
)

// ParseRole maps a wire value onto a known Role.
func ParseRole(value string) (Role, error) {
	switch Role(strings.ToUpper(strings.TrimSpace(value))) {
	case RoleStudent:
		return RoleStudent, nil
	case RoleTutor:
		return RoleTutor, nil
	case RoleAdmin:
		return RoleAdmin, nil
	default:
		return "", fmt.Errorf("roles.parse: unknown role %q", value)
	}
}

// RoleSet is an allow-list used by the authorization policy.
type RoleSet map[Role]struct{}

// NewRoleSet builds a RoleSet from the provided roles.
func NewRoleSet(roles ...Role) RoleSet {
	set := make(RoleSet, len(roles))
	for _, role := range roles {
		set[role] = struct{}{}
	}
	return set
}

// Contains reports whether the role is in the allow-list.
func (set RoleSet) Contains(role Role) bool {
	_, ok := set[role]
	return ok
}
