package requests

import (
	"context"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/buildledger/buildledger/internal/shared"
)

type memRepo struct {
	nextID      int64
	requests    map[int64]MaterialRequest
	sites       map[int64]bool
	users       map[int64]bool
	supervisors map[int64]int64 // siteID -> supervising userID
	clock       time.Time
}

func newMemRepo() *memRepo {
	return &memRepo{
		nextID:      1,
		requests:    map[int64]MaterialRequest{},
		sites:       map[int64]bool{},
		users:       map[int64]bool{},
		supervisors: map[int64]int64{},
		clock:       time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
	}
}

func (m *memRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return fn(ctx, m)
}

func (m *memRepo) Get(_ context.Context, id int64) (MaterialRequest, error) {
	req, ok := m.requests[id]
	if !ok {
		return MaterialRequest{}, fmt.Errorf("%w: request %d", shared.ErrNotFound, id)
	}
	return req, nil
}

func (m *memRepo) List(_ context.Context, filter ListFilter) ([]MaterialRequest, error) {
	var out []MaterialRequest
	for _, r := range m.requests {
		if filter.SiteID > 0 && r.SiteID != filter.SiteID {
			continue
		}
		if filter.Status != "" && r.Status != filter.Status {
			continue
		}
		out = append(out, r)
	}
	// Stored order is creation order.
	for i := 0; i < len(out); i++ {
		for j := i + 1; j < len(out); j++ {
			if out[j].CreatedAt.Before(out[i].CreatedAt) {
				out[i], out[j] = out[j], out[i]
			}
		}
	}
	return out, nil
}

func (m *memRepo) SiteSupervisorUserID(_ context.Context, siteID int64) (int64, bool, error) {
	userID, ok := m.supervisors[siteID]
	return userID, ok, nil
}

func (m *memRepo) SiteExists(_ context.Context, siteID int64) (bool, error) {
	return m.sites[siteID], nil
}

func (m *memRepo) UserExists(_ context.Context, userID int64) (bool, error) {
	return m.users[userID], nil
}

func (m *memRepo) Insert(_ context.Context, req MaterialRequest) (int64, error) {
	req.ID = m.nextID
	req.Status = StatusPending
	req.CreatedAt = m.clock
	req.UpdatedAt = m.clock
	m.clock = m.clock.Add(time.Minute)
	m.requests[req.ID] = req
	m.nextID++
	return req.ID, nil
}

func (m *memRepo) InsertLine(_ context.Context, requestID int64, line MaterialLine) error {
	req := m.requests[requestID]
	line.ID = int64(len(req.Materials) + 1)
	req.Materials = append(req.Materials, line)
	m.requests[requestID] = req
	return nil
}

func (m *memRepo) UpdateStatusIfPending(_ context.Context, id int64, status Status, reviewedBy int64, reason string) (bool, error) {
	req, ok := m.requests[id]
	if !ok || req.Status != StatusPending {
		return false, nil
	}
	req.Status = status
	req.ReviewedBy = &reviewedBy
	req.RejectionReason = reason
	m.requests[id] = req
	return true, nil
}

func (m *memRepo) DeleteIfPending(_ context.Context, id int64) (bool, error) {
	req, ok := m.requests[id]
	if !ok || req.Status != StatusPending {
		return false, nil
	}
	delete(m.requests, id)
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

func newTestService() (*Service, *memRepo, *recordingApprovals) {
	repo := newMemRepo()
	approvals := &recordingApprovals{}
	svc := NewService(slog.Default(), repo, approvals, nopAuditor{}, nil)
	return svc, repo, approvals
}

func seedSite(repo *memRepo, siteID, supervisorUserID int64) {
	repo.sites[siteID] = true
	repo.users[supervisorUserID] = true
	repo.supervisors[siteID] = supervisorUserID
}

var (
	supervisorActor  = shared.Actor{ID: 10, Role: shared.RoleSupervisor}
	procurementActor = shared.Actor{ID: 20, Role: shared.RoleProcurement}
)

func validInput(siteID int64) CreateInput {
	return CreateInput{
		SiteID:  siteID,
		Urgency: UrgencyNormal,
		Materials: []MaterialInput{
			{MaterialName: "Cement OPC 53", Quantity: 100, Unit: "bags"},
		},
	}
}

func TestCreateRequestBySiteSupervisor(t *testing.T) {
	svc, repo, approvals := newTestService()
	seedSite(repo, 1, supervisorActor.ID)

	req, err := svc.Create(context.Background(), supervisorActor, validInput(1))
	require.NoError(t, err)
	require.Equal(t, StatusPending, req.Status)
	require.Equal(t, supervisorActor.ID, req.RequestedBy)
	require.Len(t, req.Materials, 1)

	require.Len(t, approvals.logs, 1)
	require.Equal(t, shared.ApprovalSubmit, approvals.logs[0].Action)
	require.Equal(t, shared.ApprovalRef("REQUEST", req.ID), approvals.logs[0].RefID)
}

func TestCreateRequestRejectsForeignSupervisor(t *testing.T) {
	svc, repo, _ := newTestService()
	seedSite(repo, 1, supervisorActor.ID)
	other := shared.Actor{ID: 11, Role: shared.RoleSupervisor}
	repo.users[other.ID] = true

	_, err := svc.Create(context.Background(), other, validInput(1))
	require.ErrorIs(t, err, shared.ErrForbidden)
}

func TestCreateRequestValidation(t *testing.T) {
	svc, repo, _ := newTestService()
	seedSite(repo, 1, supervisorActor.ID)

	input := validInput(1)
	input.Materials = nil
	_, err := svc.Create(context.Background(), supervisorActor, input)
	require.ErrorIs(t, err, shared.ErrValidation)

	input = validInput(1)
	input.Materials[0].Quantity = 0
	_, err = svc.Create(context.Background(), supervisorActor, input)
	require.ErrorIs(t, err, shared.ErrValidation)

	input = validInput(1)
	input.Urgency = "asap"
	_, err = svc.Create(context.Background(), supervisorActor, input)
	require.ErrorIs(t, err, shared.ErrValidation)

	// A dead site reference is bad input, not a missing page.
	_, err = svc.Create(context.Background(), supervisorActor, validInput(9))
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestCreateRequestRoleGuard(t *testing.T) {
	svc, repo, _ := newTestService()
	seedSite(repo, 1, supervisorActor.ID)

	_, err := svc.Create(context.Background(), procurementActor, validInput(1))
	require.ErrorIs(t, err, shared.ErrForbidden)
}

func TestListOrdersByUrgencyThenAge(t *testing.T) {
	svc, repo, _ := newTestService()
	seedSite(repo, 1, supervisorActor.ID)

	mk := func(u Urgency) int64 {
		input := validInput(1)
		input.Urgency = u
		req, err := svc.Create(context.Background(), supervisorActor, input)
		require.NoError(t, err)
		return req.ID
	}

	normal1 := mk(UrgencyNormal)
	critical := mk(UrgencyCritical)
	urgent := mk(UrgencyUrgent)
	normal2 := mk(UrgencyNormal)

	out, err := svc.List(context.Background(), ListFilter{})
	require.NoError(t, err)

	ids := make([]int64, len(out))
	for i, r := range out {
		ids[i] = r.ID
	}
	require.Equal(t, []int64{critical, urgent, normal1, normal2}, ids)
}

func TestReviewApproveAndRejectAreTerminal(t *testing.T) {
	svc, repo, approvals := newTestService()
	seedSite(repo, 1, supervisorActor.ID)

	req, err := svc.Create(context.Background(), supervisorActor, validInput(1))
	require.NoError(t, err)

	approved, err := svc.Review(context.Background(), procurementActor, req.ID, DecisionApprove, "")
	require.NoError(t, err)
	require.Equal(t, StatusApproved, approved.Status)
	require.Equal(t, procurementActor.ID, *approved.ReviewedBy)

	// Settled requests cannot be reviewed again, in either direction.
	_, err = svc.Review(context.Background(), procurementActor, req.ID, DecisionApprove, "")
	require.ErrorIs(t, err, shared.ErrInvalidState)
	_, err = svc.Review(context.Background(), procurementActor, req.ID, DecisionReject, "late")
	require.ErrorIs(t, err, shared.ErrInvalidState)

	require.Equal(t, shared.ApprovalApprove, approvals.logs[len(approvals.logs)-1].Action)
}

func TestApprovalsFollowLifecycle(t *testing.T) {
	svc, repo, _ := newTestService()
	seedSite(repo, 1, supervisorActor.ID)

	req, err := svc.Create(context.Background(), supervisorActor, validInput(1))
	require.NoError(t, err)
	_, err = svc.Review(context.Background(), procurementActor, req.ID, DecisionApprove, "")
	require.NoError(t, err)

	trail, err := svc.Approvals(context.Background(), req.ID)
	require.NoError(t, err)
	require.Len(t, trail, 2)
	require.Equal(t, shared.ApprovalSubmit, trail[0].Action)
	require.Equal(t, supervisorActor.ID, trail[0].ActorID)
	require.Equal(t, shared.ApprovalApprove, trail[1].Action)
	require.Equal(t, procurementActor.ID, trail[1].ActorID)

	_, err = svc.Approvals(context.Background(), 404)
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestReviewRejectRequiresReason(t *testing.T) {
	svc, repo, _ := newTestService()
	seedSite(repo, 1, supervisorActor.ID)

	req, err := svc.Create(context.Background(), supervisorActor, validInput(1))
	require.NoError(t, err)

	_, err = svc.Review(context.Background(), procurementActor, req.ID, DecisionReject, "  ")
	require.ErrorIs(t, err, shared.ErrValidation)

	rejected, err := svc.Review(context.Background(), procurementActor, req.ID, DecisionReject, "over budget this month")
	require.NoError(t, err)
	require.Equal(t, StatusRejected, rejected.Status)
	require.Equal(t, "over budget this month", rejected.RejectionReason)
}

func TestReviewMissingRequestIsNotFound(t *testing.T) {
	svc, _, _ := newTestService()

	_, err := svc.Review(context.Background(), procurementActor, 404, DecisionApprove, "")
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestReviewRoleGuard(t *testing.T) {
	svc, repo, _ := newTestService()
	seedSite(repo, 1, supervisorActor.ID)

	req, err := svc.Create(context.Background(), supervisorActor, validInput(1))
	require.NoError(t, err)

	_, err = svc.Review(context.Background(), supervisorActor, req.ID, DecisionApprove, "")
	require.ErrorIs(t, err, shared.ErrForbidden)
}

func TestDeleteOnlyOwnPendingRequest(t *testing.T) {
	svc, repo, _ := newTestService()
	seedSite(repo, 1, supervisorActor.ID)

	req, err := svc.Create(context.Background(), supervisorActor, validInput(1))
	require.NoError(t, err)

	other := shared.Actor{ID: 11, Role: shared.RoleSupervisor}
	err = svc.Delete(context.Background(), other, req.ID)
	require.ErrorIs(t, err, shared.ErrForbidden)

	require.NoError(t, svc.Delete(context.Background(), supervisorActor, req.ID))
	require.NotContains(t, repo.requests, req.ID)
}

func TestDeleteSettledRequestFails(t *testing.T) {
	svc, repo, _ := newTestService()
	seedSite(repo, 1, supervisorActor.ID)

	req, err := svc.Create(context.Background(), supervisorActor, validInput(1))
	require.NoError(t, err)
	_, err = svc.Review(context.Background(), procurementActor, req.ID, DecisionApprove, "")
	require.NoError(t, err)

	err = svc.Delete(context.Background(), supervisorActor, req.ID)
	require.ErrorIs(t, err, shared.ErrInvalidState)
}
