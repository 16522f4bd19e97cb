package shared

// Temporary privilege permissions declared for RBAC.
const (
	PermPrivilegesView   = "privileges.view"
	PermPrivilegesGrant  = "privileges.grant"
	PermPrivilegesRevoke = "privileges.revoke"
)

// PrivilegeScopes lists all permissions related to the privileges module.
func PrivilegeScopes() []string {
	return []string{
		PermPrivilegesView,
		PermPrivilegesGrant,
		PermPrivilegesRevoke,
	}
}
