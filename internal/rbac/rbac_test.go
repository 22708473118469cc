package rbac

import "testing"

func TestHasPermission(t *testing.T) {
	tests := []struct {
		role string
		perm string
		want bool
	}{
		{RoleAdmin, PermReadAudit, true},
		{RoleAdmin, PermProbeMember, true},
		{RoleLead, PermManageRules, true},
		{RoleLead, PermReadAudit, false},
		{"", PermReadRules, false},
		{"stranger", PermReadRules, false},
	}
	for _, tt := range tests {
		if got := HasPermission(tt.role, tt.perm); got != tt.want {
			t.Errorf("HasPermission(%q, %q) = %v, want %v", tt.role, tt.perm, got, tt.want)
		}
	}
}

func TestRoleFor(t *testing.T) {
	admins := func(fid int64) bool { return fid == 1 }

	tests := []struct {
		name string
		fid  int64
		lead int64
		want string
	}{
		{"admin", 1, 42, RoleAdmin},
		{"admin who leads", 1, 1, RoleAdmin},
		{"lead", 42, 42, RoleLead},
		{"member", 7, 42, ""},
		{"anonymous", 0, 0, ""},
		{"channel without lead", 7, 0, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := RoleFor(tt.fid, tt.lead, admins); got != tt.want {
				t.Errorf("RoleFor(%d, %d) = %q, want %q", tt.fid, tt.lead, got, tt.want)
			}
		})
	}
}
