package shared

// PermAll grants every permission.
const PermAll = "all"

// Core record permissions.
const (
	PermEntitiesRead   = "entities.read"
	PermEntitiesWrite  = "entities.write"
	PermEntitiesDelete = "entities.delete"

	PermRelationshipsRead  = "relationships.read"
	PermRelationshipsWrite = "relationships.write"

	PermTransactionsRead  = "transactions.read"
	PermTransactionsPost  = "transactions.post"
	PermTransactionsAmend = "transactions.amend"

	PermReportsView = "reports.view"
	PermAuditView   = "audit.view"
	PermCOAManage   = "coa.manage"
)

// CoreScopes lists all permissions related to the core record store.
func CoreScopes() []string {
	return []string{
		PermEntitiesRead,
		PermEntitiesWrite,
		PermEntitiesDelete,
		PermRelationshipsRead,
		PermRelationshipsWrite,
		PermTransactionsRead,
		PermTransactionsPost,
		PermTransactionsAmend,
		PermReportsView,
		PermAuditView,
		PermCOAManage,
	}
}
