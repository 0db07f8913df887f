package user

import (
	"errors"
	"strings"
)

// Role is the caller role carried in auth claims. The directory system
// owns user records; the core only consumes the role and company scope.
type Role string

const (
	// RoleOperator may read fleet data and dispatch commands within its
	// own company.
	RoleOperator Role = "OPERATOR"
	// RoleManager may additionally manage geofences and alerts within
	// its own company.
	RoleManager Role = "MANAGER"
	// RoleAdmin is the super-admin: queries are not company-scoped.
	RoleAdmin Role = "ADMIN"
)

var ErrInvalidRole = errors.New("invalid role")

// ParseRole normalizes (uppercases+trims) and validates a role string.
func ParseRole(s string) (Role, error) {
	role := Role(strings.ToUpper(strings.TrimSpace(s)))
	if role.Valid() {
		return role, nil
	}
	return "", ErrInvalidRole
}

// Valid reports whether role is one of the allowed role constants.
func (role Role) Valid() bool {
	switch role {
	case RoleOperator, RoleManager, RoleAdmin:
		return true
	default:
		return false
	}
}

// String returns the string representation of the Role.
func (role Role) String() string {
	return string(role)
}

// IsAdmin reports whether the role bypasses company scoping.
func (role Role) IsAdmin() bool { return role == RoleAdmin }
