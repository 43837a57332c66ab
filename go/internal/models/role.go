package models

// Role is the shared-secret role bound to a connection.
type Role string

const (
	RoleNone         Role = ""
	RoleReceptionist Role = "receptionist"
	RoleSafety       Role = "safety"
	RoleObserver     Role = "observer"
)

// Roles lists every role that can authenticate.
var Roles = []Role{RoleReceptionist, RoleSafety, RoleObserver}

func (r Role) Valid() bool {
	switch r {
	case RoleReceptionist, RoleSafety, RoleObserver:
		return true
	}
	return false
}
