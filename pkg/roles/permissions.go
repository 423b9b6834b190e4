package roles

import "fmt"

// Permission represents a single enumerated capability
type Permission string

const (
	PermViewAuditLogs       Permission = "VIEW_AUDIT_LOGS"
	PermExportAuditLogs     Permission = "EXPORT_AUDIT_LOGS"
	PermManageUsers         Permission = "MANAGE_USERS"
	PermManageOperators     Permission = "MANAGE_OPERATORS"
	PermManageAdmins        Permission = "MANAGE_ADMINS"
	PermManageOwners        Permission = "MANAGE_OWNERS"
	PermUpdateConfig        Permission = "UPDATE_CONFIG"
	PermUpdateConfigLimited Permission = "UPDATE_CONFIG_LIMITED"
	PermViewGlobalUsage     Permission = "VIEW_GLOBAL_USAGE"
	PermViewOwnUsage        Permission = "VIEW_OWN_USAGE"
	PermManageWhitelist     Permission = "MANAGE_WHITELIST"
	PermChat                Permission = "CHAT"
	PermResetConversation   Permission = "RESET_CONVERSATION"
)

// AllPermissions returns every known permission.
func AllPermissions() []Permission {
	return []Permission{
		PermViewAuditLogs,
		PermExportAuditLogs,
		PermManageUsers,
		PermManageOperators,
		PermManageAdmins,
		PermManageOwners,
		PermUpdateConfig,
		PermUpdateConfigLimited,
		PermViewGlobalUsage,
		PermViewOwnUsage,
		PermManageWhitelist,
		PermChat,
		PermResetConversation,
	}
}

// permissionMatrix is the explicit per-role permission table.
//
// This is deliberately a static table rather than a rule derived from
// role levels: not every capability boundary is monotonic with level
// (export is owner-only even though admins can view), and an explicit
// table cannot silently widen access when roles are re-leveled.
var permissionMatrix = map[Role][]Permission{
	RoleUser: {
		PermChat,
		PermResetConversation,
		PermViewOwnUsage,
	},
	RoleOperator: {
		PermChat,
		PermResetConversation,
		PermViewOwnUsage,
		PermViewGlobalUsage,
		PermUpdateConfigLimited,
		PermManageWhitelist,
	},
	RoleAdmin: {
		PermChat,
		PermResetConversation,
		PermViewOwnUsage,
		PermViewGlobalUsage,
		PermUpdateConfigLimited,
		PermManageWhitelist,
		PermUpdateConfig,
		PermManageUsers,
		PermManageOperators,
		PermViewAuditLogs,
	},
	RoleOwner: {
		PermChat,
		PermResetConversation,
		PermViewOwnUsage,
		PermViewGlobalUsage,
		PermUpdateConfigLimited,
		PermManageWhitelist,
		PermUpdateConfig,
		PermManageUsers,
		PermManageOperators,
		PermViewAuditLogs,
		PermManageAdmins,
		PermManageOwners,
		PermExportAuditLogs,
	},
}

// PermissionsOf returns the full permission set for a role.
// The returned slice is a copy; callers may not mutate the matrix.
func PermissionsOf(role Role) []Permission {
	perms := permissionMatrix[role]
	out := make([]Permission, len(perms))
	copy(out, perms)
	return out
}

// HasPermission reports whether a role holds a permission.
// This is a direct matrix lookup, never a level comparison.
func HasPermission(role Role, perm Permission) bool {
	for _, p := range permissionMatrix[role] {
		if p == perm {
			return true
		}
	}
	return false
}

// MinimumRoleFor returns the lowest role holding a permission.
func MinimumRoleFor(perm Permission) (Role, bool) {
	var min Role
	found := false
	for role, perms := range permissionMatrix {
		for _, p := range perms {
			if p != perm {
				continue
			}
			if !found || Level(role) < Level(min) {
				min = role
				found = true
			}
		}
	}
	return min, found
}

// Validate checks the matrix for configuration errors. It is intended
// to run once at startup; a failure here is fatal, not a runtime
// "permission denied".
func Validate() error {
	for _, role := range All() {
		if len(permissionMatrix[role]) == 0 {
			return fmt.Errorf("permission matrix assigns no permissions to role %s", role)
		}
	}

	known := make(map[Permission]bool, len(AllPermissions()))
	for _, perm := range AllPermissions() {
		known[perm] = true
	}
	for role, perms := range permissionMatrix {
		if !IsValid(role) {
			return fmt.Errorf("permission matrix references unknown role %q", role)
		}
		for _, perm := range perms {
			if !known[perm] {
				return fmt.Errorf("permission matrix references unknown permission %q for role %s", perm, role)
			}
		}
	}

	// Owner-only capabilities must resolve to exactly the OWNER level.
	for _, perm := range []Permission{PermExportAuditLogs, PermManageAdmins, PermManageOwners} {
		min, ok := MinimumRoleFor(perm)
		if !ok {
			return fmt.Errorf("permission %s is not assigned to any role", perm)
		}
		if min != RoleOwner {
			return fmt.Errorf("permission %s must be owner-only, minimum role is %s", perm, min)
		}
	}

	return nil
}
