package models

import "fmt"

// Role is the closed set of account roles known to the service.
type Role string

const (
	RoleStudent  Role = "student"
	RoleStaff    Role = "staff"
	RoleSecurity Role = "security"
)

var AllRoles = []Role{RoleStudent, RoleStaff, RoleSecurity}

// GuardianRoles are the roles eligible to receive and act on alerts.
var GuardianRoles = []Role{RoleStaff, RoleSecurity}

func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case RoleStudent, RoleStaff, RoleSecurity:
		return Role(s), nil
	}
	return "", fmt.Errorf("unknown role %q", s)
}

func (r Role) Valid() bool {
	_, err := ParseRole(string(r))
	return err == nil
}

// IsGuardian reports whether the role belongs to the responder subset.
func (r Role) IsGuardian() bool {
	return r == RoleStaff || r == RoleSecurity
}

// IsElevated reports whether the role may resolve alerts and read the full queue.
func (r Role) IsElevated() bool {
	return r == RoleSecurity
}

func (r Role) String() string {
	return string(r)
}
