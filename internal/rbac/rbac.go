package rbac

// Role constants
const (
	RoleAdmin = "admin"
	RoleLead  = "lead"
)

// Permission constants
const (
	PermReadRules   = "read_rules"
	PermManageRules = "manage_rules"
	PermReadAudit   = "read_audit"
	PermProbeMember = "probe_member"
)

// RolePermissions defines what each role can do.
var RolePermissions = map[string][]string{
	RoleAdmin: {
		PermReadRules, PermManageRules, PermReadAudit, PermProbeMember,
	},
	RoleLead: {
		PermReadRules, PermManageRules,
		// Lead CANNOT: PermReadAudit, PermProbeMember
	},
}

// HasPermission checks if a role has a specific permission.
func HasPermission(role, permission string) bool {
	perms, ok := RolePermissions[role]
	if !ok {
		return false
	}
	for _, p := range perms {
		if p == permission {
			return true
		}
	}
	return false
}

// RoleFor resolves the role of fid in a channel led by leadFID.
// Admins outrank leads; everyone else gets "".
func RoleFor(fid, leadFID int64, isAdmin func(int64) bool) string {
	if fid == 0 {
		return ""
	}
	if isAdmin != nil && isAdmin(fid) {
		return RoleAdmin
	}
	if leadFID != 0 && fid == leadFID {
		return RoleLead
	}
	return ""
}
