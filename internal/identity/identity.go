// Package identity carries the principal and role capability check consumed
// by the booking core. Authentication and session handling live upstream;
// this package only answers "does this principal hold that role".
package identity

import "github.com/google/uuid"

type Role string

const (
	RoleAdmin   Role = "ADMIN"
	RoleDoctor  Role = "DOCTOR"
	RolePatient Role = "PATIENT"
)

// ParseRole maps a wire value onto a known role.
func ParseRole(s string) (Role, bool) {
	switch Role(s) {
	case RoleAdmin, RoleDoctor, RolePatient:
		return Role(s), true
	}
	return "", false
}

// Principal is an authenticated actor as reported by the identity provider.
type Principal struct {
	ID    uuid.UUID
	Roles []Role
}

// Checker is the capability check injected into the appointment ledger.
type Checker interface {
	HasRole(p Principal, r Role) bool
}

// RoleChecker answers from the roles embedded in the principal. Admins
// implicitly satisfy doctor-level checks, mirroring the back-office rules.
type RoleChecker struct{}

func (RoleChecker) HasRole(p Principal, r Role) bool {
	for _, have := range p.Roles {
		if have == r {
			return true
		}
		if have == RoleAdmin && r == RoleDoctor {
			return true
		}
	}
	return false
}
