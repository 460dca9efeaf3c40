package domain

import "strings"

// Role is the authorization identity a session acts as.
type Role string

const (
	RoleUser  Role = "USER"
	RoleAdmin Role = "ADMIN"
)

// Valid reports whether the role is one of the known values.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAdmin
}

// Slug returns the lowercase storage prefix for the role.
func (r Role) Slug() string {
	if r == RoleAdmin {
		return "admin"
	}
	return "user"
}

// Other returns the opposite role.
func (r Role) Other() Role {
	if r == RoleAdmin {
		return RoleUser
	}
	return RoleAdmin
}

// ParseRole converts a stored or wire value to a Role.
func ParseRole(value string) (Role, bool) {
	switch strings.ToUpper(strings.TrimSpace(value)) {
	case string(RoleUser):
		return RoleUser, true
	case string(RoleAdmin):
		return RoleAdmin, true
	}
	return "", false
}

// RoleFromPath infers a role from a navigation or request path prefix.
// The mapping is a fixed policy: /admin/... acts as ADMIN, /user/... as USER,
// anything else carries no role hint.
func RoleFromPath(path string) (Role, bool) {
	switch {
	case path == "/admin" || strings.HasPrefix(path, "/admin/"):
		return RoleAdmin, true
	case path == "/user" || strings.HasPrefix(path, "/user/"):
		return RoleUser, true
	}
	return "", false
}
