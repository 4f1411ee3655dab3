package ledger

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/buildledger/buildledger/internal/shared"
)

type mockRepo struct {
	sites           []SiteBudgetSummary
	siteCalls       int
	billTotals      SiteBillTotals
	vendors         []VendorPerformance
	vendorCalls     int
	supervisors     []SupervisorStats
	supervisorCalls int
}

func (m *mockRepo) SiteBudgets(context.Context) ([]SiteBudgetSummary, error) {
	m.siteCalls++
	return m.sites, nil
}

func (m *mockRepo) SiteBillTotals(_ context.Context, siteID int64) (SiteBillTotals, error) {
	t := m.billTotals
	t.SiteID = siteID
	return t, nil
}

func (m *mockRepo) VendorPerformance(context.Context) ([]VendorPerformance, error) {
	m.vendorCalls++
	return m.vendors, nil
}

func (m *mockRepo) SupervisorStats(context.Context) ([]SupervisorStats, error) {
	m.supervisorCalls++
	return m.supervisors, nil
}

var accountant = shared.Actor{ID: 30, Role: shared.RoleAccountant}

func newCachedService(t *testing.T, repo RepositoryPort) *Service {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return NewService(slog.Default(), repo, NewCache(client, time.Minute))
}

func TestUtilization(t *testing.T) {
	require.Equal(t, 11.8, utilization(11800, 100000))
	require.Equal(t, 0.0, utilization(5000, 0))
	require.Equal(t, 100.0, utilization(120000, 100000))
	require.Equal(t, 0.0, utilization(-10, 100000))
}

func TestSiteBudgetsComputesUtilizationAndCaches(t *testing.T) {
	repo := &mockRepo{sites: []SiteBudgetSummary{
		{SiteID: 1, SiteName: "Green Valley Residences", TotalBudget: 100000, SpentBudget: 11800},
		{SiteID: 2, SiteName: "Blue Sapphire Heights", TotalBudget: 0, SpentBudget: 500},
	}}
	svc := newCachedService(t, repo)

	out, err := svc.SiteBudgets(context.Background(), accountant)
	require.NoError(t, err)
	require.Len(t, out, 2)
	require.Equal(t, 11.8, out[0].Utilization)
	require.Equal(t, 88200.0, out[0].Remaining)
	require.Equal(t, 0.0, out[1].Utilization)

	// Second read comes from the cache.
	_, err = svc.SiteBudgets(context.Background(), accountant)
	require.NoError(t, err)
	require.Equal(t, 1, repo.siteCalls)

	// Bump invalidates; the next read hits the repository again.
	require.NoError(t, svc.Bump(context.Background()))
	_, err = svc.SiteBudgets(context.Background(), accountant)
	require.NoError(t, err)
	require.Equal(t, 2, repo.siteCalls)
}

func TestLedgerViewRoleGuard(t *testing.T) {
	svc := newCachedService(t, &mockRepo{})
	nobody := shared.Actor{ID: 99, Role: "intern"}

	_, err := svc.SiteBudgets(context.Background(), nobody)
	require.ErrorIs(t, err, shared.ErrForbidden)
	_, err = svc.Dashboard(context.Background(), nobody)
	require.ErrorIs(t, err, shared.ErrForbidden)
}

func TestVendorPerformanceRejectionRate(t *testing.T) {
	repo := &mockRepo{vendors: []VendorPerformance{
		{VendorID: 5, VendorName: "Shree Cement Traders", BillCount: 4, RejectedCount: 1},
		{VendorID: 9, VendorName: "", BillCount: 1}, // dangling vendor reference
	}}
	svc := newCachedService(t, repo)

	out, err := svc.VendorPerformance(context.Background(), accountant)
	require.NoError(t, err)
	require.Equal(t, 25.0, out[0].RejectionRate)
	// The dangling reference is reported, not fatal.
	require.Len(t, out, 2)
}

func TestDashboardAssemblesAllViews(t *testing.T) {
	repo := &mockRepo{
		sites:       []SiteBudgetSummary{{SiteID: 1, SiteName: "A", TotalBudget: 1000, SpentBudget: 250}},
		vendors:     []VendorPerformance{{VendorID: 5, VendorName: "V", BillCount: 2}},
		supervisors: []SupervisorStats{{SupervisorID: 7, Name: "S", RequestCount: 3}},
	}
	svc := newCachedService(t, repo)
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc.WithNow(func() time.Time { return fixed })

	dash, err := svc.Dashboard(context.Background(), accountant)
	require.NoError(t, err)
	require.Len(t, dash.Sites, 1)
	require.Len(t, dash.Vendors, 1)
	require.Len(t, dash.Supervisors, 1)
	require.Equal(t, fixed, dash.GeneratedAt)
	require.Equal(t, 25.0, dash.Sites[0].Utilization)
}

func TestExportSiteBudgetsCSV(t *testing.T) {
	repo := &mockRepo{sites: []SiteBudgetSummary{
		{SiteID: 1, SiteName: "Green Valley Residences", Status: "active", TotalBudget: 5000000, SpentBudget: 1234567.89},
	}}
	svc := newCachedService(t, repo)

	var buf bytes.Buffer
	require.NoError(t, svc.ExportSiteBudgetsCSV(context.Background(), accountant, &buf))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	require.Contains(t, lines[0], "site_name")
	require.Contains(t, lines[1], "Green Valley Residences")
	require.Contains(t, lines[1], "₹12,34,567.89")
}

func TestFormatINR(t *testing.T) {
	require.Equal(t, "₹12,34,567.89", FormatINR(1234567.89))
	require.Equal(t, "₹1,000.00", FormatINR(1000))
}
