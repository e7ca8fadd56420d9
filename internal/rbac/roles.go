package rbac

// Role names carried in access tokens.
const (
	RoleUser       = "user"
	RoleAdmin      = "admin"
	RoleSuperAdmin = "super_admin"

	// RoleOperator is granted to automation that may drive reconciliation and nothing else.
	// It never passes a route that does not list it.
	RoleOperator = "sync_operator"
)

func IsSuperAdmin(role string) bool { return role == RoleSuperAdmin }

// CanEndAnyCall reports whether role may end calls it is not a party to.
func CanEndAnyCall(role string) bool { return role == RoleAdmin || role == RoleSuperAdmin }

func Known(role string) bool {
	switch role {
	case RoleUser, RoleAdmin, RoleSuperAdmin, RoleOperator:
		return true
	}
	return false
}
