package auth

// School ERP role constants.
const (
	RoleSuperAdmin  = "super_admin"
	RoleSchoolAdmin = "school_admin"
	RoleTeacher     = "teacher"
	RoleStaff       = "staff"
	RoleStudent     = "student"
	RoleParent      = "parent"
)

// AllRoles returns every role that may hold a gamification profile.
func AllRoles() []string {
	return []string{RoleSuperAdmin, RoleSchoolAdmin, RoleTeacher, RoleStaff, RoleStudent, RoleParent}
}

// AdminRoles returns roles that may read other users' gamification data.
func AdminRoles() []string {
	return []string{RoleSuperAdmin, RoleSchoolAdmin}
}

// ValidRole reports whether role is a known ERP role.
func ValidRole(role string) bool {
	for _, r := range AllRoles() {
		if r == role {
			return true
		}
	}
	return false
}
