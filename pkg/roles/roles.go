package roles

import (
	"fmt"
	"strings"
)

// Role represents a position in the fixed privilege hierarchy
type Role string

const (
	RoleOwner    Role = "OWNER"
	RoleAdmin    Role = "ADMIN"
	RoleOperator Role = "OPERATOR"
	RoleUser     Role = "USER"
)

// roleLevels maps each role to its numeric privilege level.
// Levels are strictly increasing with privilege; all threshold and
// "can X manage Y" decisions go through these numbers, never through
// name equality.
var roleLevels = map[Role]int{
	RoleUser:     1,
	RoleOperator: 2,
	RoleAdmin:    3,
	RoleOwner:    4,
}

// All returns every valid role, highest privilege first.
func All() []Role {
	return []Role{RoleOwner, RoleAdmin, RoleOperator, RoleUser}
}

// Parse converts a role name (case-insensitive) to a Role.
func Parse(name string) (Role, error) {
	role := Role(strings.ToUpper(strings.TrimSpace(name)))
	if _, ok := roleLevels[role]; !ok {
		return "", fmt.Errorf("unknown role: %q", name)
	}
	return role, nil
}

// IsValid reports whether the role is one of the four known roles.
func IsValid(role Role) bool {
	_, ok := roleLevels[role]
	return ok
}

// Level returns the numeric privilege level for a role.
// Unknown roles return 0, below every valid role.
func Level(role Role) int {
	return roleLevels[role]
}

// IsHigher reports whether a outranks b (strict comparison).
func IsHigher(a, b Role) bool {
	return Level(a) > Level(b)
}

// IsEqualOrHigher reports whether a meets the b threshold.
func IsEqualOrHigher(a, b Role) bool {
	return Level(a) >= Level(b)
}

// CanManage reports whether a manager role may alter a target role.
// A role never manages a peer of its own level, including itself.
func CanManage(manager, target Role) bool {
	return IsHigher(manager, target)
}

func (r Role) String() string {
	return string(r)
}
