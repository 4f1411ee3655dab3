package shared

// Role is a high-level permission grouping assigned at provisioning.
// A user's role is immutable for the lifetime of the account.
type Role string

const (
	RoleSuperadmin  Role = "superadmin"
	RoleSupervisor  Role = "supervisor"
	RoleProcurement Role = "procurement"
	RoleAccountant  Role = "accountant"
)

// Valid reports whether the role is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleSuperadmin, RoleSupervisor, RoleProcurement, RoleAccountant:
		return true
	}
	return false
}

// Operation identifies a guarded service operation.
type Operation string

const (
	OpRequestCreate Operation = "request.create"
	OpRequestReview Operation = "request.review"
	OpRequestDelete Operation = "request.delete"
	OpBillCreate    Operation = "bill.create"
	OpBillReview    Operation = "bill.review"
	OpBillDelete    Operation = "bill.delete"
	OpSiteManage    Operation = "site.manage"
	OpCatalogManage Operation = "catalog.manage"
	OpLedgerView    Operation = "ledger.view"
	OpUserManage    Operation = "user.manage"
)

// policy is the operation × role decision table. Superadmin is allowed
// everything and is therefore not listed. Operations with an empty row are
// superadmin-only.
var policy = map[Operation]map[Role]bool{
	OpRequestCreate: {RoleSupervisor: true},
	OpRequestReview: {RoleProcurement: true},
	OpRequestDelete: {RoleSupervisor: true},
	OpBillCreate:    {RoleProcurement: true},
	OpBillReview:    {RoleAccountant: true},
	OpBillDelete:    {RoleProcurement: true},
	OpSiteManage:    {},
	OpCatalogManage: {},
	OpLedgerView:    {RoleSupervisor: true, RoleProcurement: true, RoleAccountant: true},
	OpUserManage:    {},
}

// Allows reports whether role may invoke op.
func Allows(role Role, op Operation) bool {
	if role == RoleSuperadmin {
		return true
	}
	return policy[op][role]
}
