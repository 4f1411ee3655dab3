package bills

import (
	"context"
	"fmt"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/buildledger/buildledger/internal/shared"
)

type fakeSite struct {
	spent   float64
	total   float64
	pending int
	over    bool
}

type fakeRequest struct {
	siteID int64
	status string
}

type memRepo struct {
	nextID   int64
	bills    map[int64]Bill
	requests map[int64]fakeRequest
	sites    map[int64]*fakeSite
	vendors  map[int64]bool
}

func newMemRepo() *memRepo {
	return &memRepo{
		nextID:   1,
		bills:    map[int64]Bill{},
		requests: map[int64]fakeRequest{},
		sites:    map[int64]*fakeSite{},
		vendors:  map[int64]bool{},
	}
}

func (m *memRepo) snapshot() *memRepo {
	cp := newMemRepo()
	cp.nextID = m.nextID
	for k, v := range m.bills {
		cp.bills[k] = v
	}
	for k, v := range m.requests {
		cp.requests[k] = v
	}
	for k, v := range m.sites {
		site := *v
		cp.sites[k] = &site
	}
	for k, v := range m.vendors {
		cp.vendors[k] = v
	}
	return cp
}

func (m *memRepo) restore(from *memRepo) {
	m.nextID = from.nextID
	m.bills = from.bills
	m.requests = from.requests
	m.sites = from.sites
	m.vendors = from.vendors
}

// WithTx snapshots state up front and rolls back on error, mirroring the
// transactional repository.
func (m *memRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	before := m.snapshot()
	if err := fn(ctx, m); err != nil {
		m.restore(before)
		return err
	}
	return nil
}

func (m *memRepo) Get(_ context.Context, id int64) (Bill, error) {
	b, ok := m.bills[id]
	if !ok {
		return Bill{}, fmt.Errorf("%w: bill %d", shared.ErrNotFound, id)
	}
	return b, nil
}

func (m *memRepo) List(_ context.Context, filter ListFilter) ([]Bill, error) {
	var out []Bill
	for _, b := range m.bills {
		if filter.SiteID > 0 && b.SiteID != filter.SiteID {
			continue
		}
		if filter.VendorID > 0 && b.VendorID != filter.VendorID {
			continue
		}
		if filter.Status != "" && b.Status != filter.Status {
			continue
		}
		out = append(out, b)
	}
	return out, nil
}

func (m *memRepo) VendorExists(_ context.Context, vendorID int64) (bool, error) {
	return m.vendors[vendorID], nil
}

func (m *memRepo) RequestStateForUpdate(_ context.Context, requestID int64) (int64, string, error) {
	req, ok := m.requests[requestID]
	if !ok {
		return 0, "", fmt.Errorf("%w: request %d", shared.ErrNotFound, requestID)
	}
	return req.siteID, req.status, nil
}

func (m *memRepo) CountLiveBills(_ context.Context, requestID int64) (int, error) {
	n := 0
	for _, b := range m.bills {
		if b.RequestID == requestID && b.Status != StatusRejected {
			n++
		}
	}
	return n, nil
}

func (m *memRepo) Insert(_ context.Context, bill Bill) (int64, error) {
	bill.ID = m.nextID
	bill.Status = StatusPending
	m.bills[bill.ID] = bill
	m.nextID++
	return bill.ID, nil
}

func (m *memRepo) InsertItem(_ context.Context, billID int64, item BillItem) error {
	b := m.bills[billID]
	item.ID = int64(len(b.Items) + 1)
	b.Items = append(b.Items, item)
	m.bills[billID] = b
	return nil
}

func (m *memRepo) AdjustPendingBills(_ context.Context, siteID int64, delta int) error {
	site, ok := m.sites[siteID]
	if !ok {
		return fmt.Errorf("%w: site %d", shared.ErrNotFound, siteID)
	}
	site.pending += delta
	return nil
}

func (m *memRepo) UpdateStatusIfPending(_ context.Context, id int64, status Status, actorID int64, reason string) (bool, error) {
	b, ok := m.bills[id]
	if !ok || b.Status != StatusPending {
		return false, nil
	}
	b.Status = status
	if status == StatusApproved {
		b.ApprovedBy = &actorID
	} else {
		b.RejectedBy = &actorID
		b.RejectionReason = reason
	}
	m.bills[id] = b
	return true, nil
}

func (m *memRepo) ApplySiteSpend(_ context.Context, siteID int64, amount float64) (SiteBudget, error) {
	site, ok := m.sites[siteID]
	if !ok {
		return SiteBudget{}, fmt.Errorf("%w: site %d", shared.ErrNotFound, siteID)
	}
	site.spent += amount
	site.pending--
	site.over = site.spent > site.total
	return SiteBudget{SpentBudget: site.spent, TotalBudget: site.total, OverBudget: site.over}, nil
}

func (m *memRepo) DeleteIfPending(_ context.Context, id int64) (bool, error) {
	b, ok := m.bills[id]
	if !ok || b.Status != StatusPending {
		return false, nil
	}
	delete(m.bills, id)
	return true, nil
}

type recordingApprovals struct {
	logs []shared.ApprovalLog
}

func (r *recordingApprovals) Record(_ context.Context, log shared.ApprovalLog) error {
	r.logs = append(r.logs, log)
	return nil
}

func (r *recordingApprovals) List(_ context.Context, module string, ref uuid.UUID) ([]shared.ApprovalLog, error) {
	var out []shared.ApprovalLog
	for _, log := range r.logs {
		if log.Module == module && log.RefID == ref {
			out = append(out, log)
		}
	}
	return out, nil
}

type nopAuditor struct{}

func (nopAuditor) Record(context.Context, shared.AuditLog) error { return nil }

var (
	procurementActor = shared.Actor{ID: 20, Role: shared.RoleProcurement}
	accountantActor  = shared.Actor{ID: 30, Role: shared.RoleAccountant}
)

func newTestService(cfg Config) (*Service, *memRepo) {
	repo := newMemRepo()
	svc := NewService(slog.Default(), repo, &recordingApprovals{}, nopAuditor{}, nil, cfg)
	return svc, repo
}

func seed(repo *memRepo, siteBudget float64) {
	repo.sites[1] = &fakeSite{total: siteBudget}
	repo.requests[1] = fakeRequest{siteID: 1, status: "approved"}
	repo.vendors[5] = true
}

func cementInput() CreateInput {
	return CreateInput{
		RequestID:  1,
		VendorID:   5,
		GSTPercent: 18,
		Items:      []ItemInput{{MaterialName: "Cement OPC 53", Quantity: 50, UnitPrice: 200}},
	}
}

func TestTotalAppliesGSTWithSingleRounding(t *testing.T) {
	items := []BillItem{{Quantity: 50, UnitPrice: 200}}
	require.Equal(t, 11800.0, Total(items, 18))

	items = []BillItem{{Quantity: 3, UnitPrice: 33.33}, {Quantity: 1, UnitPrice: 0.01}}
	require.Equal(t, 118.0, Total(items, 18))

	require.Equal(t, 100.0, Total([]BillItem{{Quantity: 1, UnitPrice: 100}}, 0))
}

func TestCreateBillOnApprovedRequest(t *testing.T) {
	svc, repo := newTestService(Config{})
	seed(repo, 100000)

	bill, err := svc.Create(context.Background(), procurementActor, cementInput())
	require.NoError(t, err)
	require.Equal(t, StatusPending, bill.Status)
	require.Equal(t, 11800.0, bill.TotalAmount)
	require.Equal(t, int64(1), bill.SiteID)
	require.Equal(t, 1, repo.sites[1].pending)
	require.Zero(t, repo.sites[1].spent)
}

func TestCreateBillRequiresApprovedRequest(t *testing.T) {
	svc, repo := newTestService(Config{})
	seed(repo, 100000)
	repo.requests[1] = fakeRequest{siteID: 1, status: "pending"}

	_, err := svc.Create(context.Background(), procurementActor, cementInput())
	require.ErrorIs(t, err, shared.ErrInvalidState)

	input := cementInput()
	input.RequestID = 99
	_, err = svc.Create(context.Background(), procurementActor, input)
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestCreateBillRoleGuard(t *testing.T) {
	svc, repo := newTestService(Config{})
	seed(repo, 100000)

	_, err := svc.Create(context.Background(), accountantActor, cementInput())
	require.ErrorIs(t, err, shared.ErrForbidden)
}

func TestOneLiveBillPerRequest(t *testing.T) {
	svc, repo := newTestService(Config{})
	seed(repo, 100000)

	first, err := svc.Create(context.Background(), procurementActor, cementInput())
	require.NoError(t, err)

	_, err = svc.Create(context.Background(), procurementActor, cementInput())
	require.ErrorIs(t, err, shared.ErrConflict)

	// A rejected bill frees the slot for a corrected one.
	_, err = svc.Review(context.Background(), accountantActor, first.ID, DecisionReject, "wrong vendor")
	require.NoError(t, err)

	_, err = svc.Create(context.Background(), procurementActor, cementInput())
	require.NoError(t, err)
}

func TestApproveAppliesBudgetAtomically(t *testing.T) {
	svc, repo := newTestService(Config{})
	seed(repo, 100000)

	bill, err := svc.Create(context.Background(), procurementActor, cementInput())
	require.NoError(t, err)

	approved, err := svc.Review(context.Background(), accountantActor, bill.ID, DecisionApprove, "")
	require.NoError(t, err)
	require.Equal(t, StatusApproved, approved.Status)
	require.Equal(t, accountantActor.ID, *approved.ApprovedBy)

	site := repo.sites[1]
	require.Equal(t, 11800.0, site.spent)
	require.Equal(t, 0, site.pending)
	require.False(t, site.over)
}

func TestApproveFlagsOverBudget(t *testing.T) {
	svc, repo := newTestService(Config{})
	seed(repo, 10000)

	bill, err := svc.Create(context.Background(), procurementActor, cementInput())
	require.NoError(t, err)

	_, err = svc.Review(context.Background(), accountantActor, bill.ID, DecisionApprove, "")
	require.NoError(t, err)

	site := repo.sites[1]
	require.True(t, site.over)
	require.Equal(t, 11800.0, site.spent)
}

func TestBlockOverBudgetAbortsApproval(t *testing.T) {
	svc, repo := newTestService(Config{BlockOverBudget: true})
	seed(repo, 10000)

	bill, err := svc.Create(context.Background(), procurementActor, cementInput())
	require.NoError(t, err)

	_, err = svc.Review(context.Background(), accountantActor, bill.ID, DecisionApprove, "")
	require.ErrorIs(t, err, shared.ErrConflict)

	// The whole transaction rolled back: bill still pending, no spend.
	current, err := svc.Get(context.Background(), bill.ID)
	require.NoError(t, err)
	require.Equal(t, StatusPending, current.Status)
	require.Zero(t, repo.sites[1].spent)
	require.Equal(t, 1, repo.sites[1].pending)
}

func TestReviewIsTerminal(t *testing.T) {
	svc, repo := newTestService(Config{})
	seed(repo, 100000)

	bill, err := svc.Create(context.Background(), procurementActor, cementInput())
	require.NoError(t, err)

	_, err = svc.Review(context.Background(), accountantActor, bill.ID, DecisionApprove, "")
	require.NoError(t, err)

	_, err = svc.Review(context.Background(), accountantActor, bill.ID, DecisionApprove, "")
	require.ErrorIs(t, err, shared.ErrInvalidState)

	// A second approval must not double-charge the site.
	require.Equal(t, 11800.0, repo.sites[1].spent)
}

func TestReviewRejectRequiresReason(t *testing.T) {
	svc, repo := newTestService(Config{})
	seed(repo, 100000)

	bill, err := svc.Create(context.Background(), procurementActor, cementInput())
	require.NoError(t, err)

	_, err = svc.Review(context.Background(), accountantActor, bill.ID, DecisionReject, "")
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestReviewRoleGuard(t *testing.T) {
	svc, repo := newTestService(Config{})
	seed(repo, 100000)

	bill, err := svc.Create(context.Background(), procurementActor, cementInput())
	require.NoError(t, err)

	_, err = svc.Review(context.Background(), procurementActor, bill.ID, DecisionApprove, "")
	require.ErrorIs(t, err, shared.ErrForbidden)
}

func TestApprovalsKeepRejectedHistory(t *testing.T) {
	repo := newMemRepo()
	approvals := &recordingApprovals{}
	svc := NewService(slog.Default(), repo, approvals, nopAuditor{}, nil, Config{})
	seed(repo, 100000)

	bill, err := svc.Create(context.Background(), procurementActor, cementInput())
	require.NoError(t, err)
	_, err = svc.Review(context.Background(), accountantActor, bill.ID, DecisionReject, "wrong vendor")
	require.NoError(t, err)

	trail, err := svc.Approvals(context.Background(), bill.ID)
	require.NoError(t, err)
	require.Len(t, trail, 2)
	require.Equal(t, shared.ApprovalSubmit, trail[0].Action)
	require.Equal(t, shared.ApprovalReject, trail[1].Action)
	require.Equal(t, "wrong vendor", trail[1].Note)

	_, err = svc.Approvals(context.Background(), 404)
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestDeletePendingBillReleasesSlot(t *testing.T) {
	svc, repo := newTestService(Config{})
	seed(repo, 100000)

	bill, err := svc.Create(context.Background(), procurementActor, cementInput())
	require.NoError(t, err)

	require.NoError(t, svc.Delete(context.Background(), procurementActor, bill.ID))
	require.Equal(t, 0, repo.sites[1].pending)

	_, err = svc.Create(context.Background(), procurementActor, cementInput())
	require.NoError(t, err)
}

func TestDeleteSettledBillFails(t *testing.T) {
	svc, repo := newTestService(Config{})
	seed(repo, 100000)

	bill, err := svc.Create(context.Background(), procurementActor, cementInput())
	require.NoError(t, err)
	_, err = svc.Review(context.Background(), accountantActor, bill.ID, DecisionApprove, "")
	require.NoError(t, err)

	err = svc.Delete(context.Background(), procurementActor, bill.ID)
	require.ErrorIs(t, err, shared.ErrInvalidState)
}
