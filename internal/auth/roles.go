package auth

// Role is an admin role for the operations endpoints.
type Role string

const (
	// RoleAdmin can trigger health re-checks and manage the DLQ.
	RoleAdmin Role = "admin"

	// RoleViewer can read health and usage data only.
	RoleViewer Role = "viewer"
)

func (r Role) String() string {
	return string(r)
}

// IsValid checks if the role is a known role.
func (r Role) IsValid() bool {
	switch r {
	case RoleAdmin, RoleViewer:
		return true
	default:
		return false
	}
}

// HasPermission reports whether this role covers the required role.
// Admin covers everything; viewer covers only viewer.
func (r Role) HasPermission(required Role) bool {
	if r == RoleAdmin {
		return true
	}
	return r == required
}
