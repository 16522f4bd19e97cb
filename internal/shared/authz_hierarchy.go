package shared

// Role hierarchy permissions declared for RBAC.
const (
	PermHierarchyView = "hierarchy.view"
	PermHierarchyEdit = "hierarchy.edit"
)

// HierarchyScopes lists all permissions related to the hierarchy module.
func HierarchyScopes() []string {
	return []string{
		PermHierarchyView,
		PermHierarchyEdit,
	}
}
