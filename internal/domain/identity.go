package domain

// Role is the platform role attached to the current user by the identity provider.
type Role string

const (
	RoleStudent Role = "student"
	RoleFaculty Role = "faculty"
	RoleAdmin   Role = "admin"
)

// Identity is the read-only view of the current user.
type Identity struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Role Role   `json:"role"`
}

// HasPermission reports whether the user's role is one of roles.
func (i Identity) HasPermission(roles ...Role) bool {
	for _, role := range roles {
		if i.Role == role {
			return true
		}
	}
	return false
}

// IsStaff is true for authoring roles.
func (i Identity) IsStaff() bool {
	return i.HasPermission(RoleFaculty, RoleAdmin)
}
