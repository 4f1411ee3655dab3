package shared

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAllows(t *testing.T) {
	cases := []struct {
		op      Operation
		role    Role
		allowed bool
	}{
		{OpRequestCreate, RoleSupervisor, true},
		{OpRequestCreate, RoleProcurement, false},
		{OpRequestReview, RoleProcurement, true},
		{OpRequestReview, RoleSupervisor, false},
		{OpRequestReview, RoleAccountant, false},
		{OpBillCreate, RoleProcurement, true},
		{OpBillCreate, RoleAccountant, false},
		{OpBillReview, RoleAccountant, true},
		{OpBillReview, RoleProcurement, false},
		{OpSiteManage, RoleSupervisor, false},
		{OpUserManage, RoleAccountant, false},
		{OpLedgerView, RoleAccountant, true},
	}
	for _, tc := range cases {
		require.Equal(t, tc.allowed, Allows(tc.role, tc.op), "%s/%s", tc.op, tc.role)
	}
}

func TestAllowsSuperadminBypassesTable(t *testing.T) {
	for _, op := range []Operation{
		OpRequestCreate, OpRequestReview, OpBillCreate, OpBillReview,
		OpSiteManage, OpCatalogManage, OpLedgerView, OpUserManage,
	} {
		require.True(t, Allows(RoleSuperadmin, op), "%s", op)
	}
}

func TestRoleValid(t *testing.T) {
	require.True(t, RoleAccountant.Valid())
	require.False(t, Role("driver").Valid())
	require.False(t, Role("").Valid())
}
