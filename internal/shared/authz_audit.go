package shared

// Audit and access review permissions declared for RBAC.
const (
	PermAuditView    = "audit.view"
	PermAccessReview = "access.review"
)

// AuditScopes lists all permissions related to auditing.
func AuditScopes() []string {
	return []string{
		PermAuditView,
		PermAccessReview,
	}
}
