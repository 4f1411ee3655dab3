package sites

import (
	"context"
	"fmt"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/buildledger/buildledger/internal/shared"
)

type memRepo struct {
	nextID   int64
	sites    map[int64]Site
	activity map[int64]bool
}

func newMemRepo() *memRepo {
	return &memRepo{nextID: 1, sites: map[int64]Site{}, activity: map[int64]bool{}}
}

func (m *memRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return fn(ctx, m)
}

func (m *memRepo) Get(_ context.Context, id int64) (Site, error) {
	s, ok := m.sites[id]
	if !ok {
		return Site{}, fmt.Errorf("%w: site %d", shared.ErrNotFound, id)
	}
	return s, nil
}

func (m *memRepo) List(_ context.Context) ([]Site, error) {
	out := make([]Site, 0, len(m.sites))
	for _, s := range m.sites {
		out = append(out, s)
	}
	return out, nil
}

func (m *memRepo) Insert(_ context.Context, input NewSite) (Site, error) {
	s := Site{
		ID:          m.nextID,
		Name:        input.Name,
		Location:    input.Location,
		Status:      StatusActive,
		TotalBudget: input.TotalBudget,
		StartDate:   input.StartDate,
		EndDate:     input.EndDate,
	}
	m.sites[s.ID] = s
	m.nextID++
	return s, nil
}

func (m *memRepo) Update(_ context.Context, id int64, input UpdateSite) error {
	s, ok := m.sites[id]
	if !ok {
		return fmt.Errorf("%w: site %d", shared.ErrNotFound, id)
	}
	s.Name = input.Name
	s.Location = input.Location
	s.Status = input.Status
	s.TotalBudget = input.TotalBudget
	s.StartDate = input.StartDate
	s.EndDate = input.EndDate
	m.sites[id] = s
	return nil
}

func (m *memRepo) GetForUpdate(ctx context.Context, id int64) (Site, error) {
	return m.Get(ctx, id)
}

func (m *memRepo) CurrentAssignment(_ context.Context, supervisorID int64) (int64, bool, error) {
	for _, s := range m.sites {
		if s.SupervisorID != nil && *s.SupervisorID == supervisorID {
			return s.ID, true, nil
		}
	}
	return 0, false, nil
}

func (m *memRepo) SetSupervisor(_ context.Context, siteID, supervisorID int64) error {
	s, ok := m.sites[siteID]
	if !ok {
		return fmt.Errorf("%w: site %d", shared.ErrNotFound, siteID)
	}
	s.SupervisorID = &supervisorID
	m.sites[siteID] = s
	return nil
}

func (m *memRepo) SetProgress(_ context.Context, siteID int64, progress int) error {
	s, ok := m.sites[siteID]
	if !ok {
		return fmt.Errorf("%w: site %d", shared.ErrNotFound, siteID)
	}
	s.Progress = progress
	m.sites[siteID] = s
	return nil
}

func (m *memRepo) HasProcurementActivity(_ context.Context, siteID int64) (bool, error) {
	return m.activity[siteID], nil
}

func (m *memRepo) Delete(_ context.Context, siteID int64) error {
	if _, ok := m.sites[siteID]; !ok {
		return fmt.Errorf("%w: site %d", shared.ErrNotFound, siteID)
	}
	delete(m.sites, siteID)
	return nil
}

type stubSupervisors struct {
	known map[int64]bool
}

func (s *stubSupervisors) Exists(_ context.Context, id int64) (bool, error) {
	return s.known[id], nil
}

type nopAuditor struct{}

func (nopAuditor) Record(context.Context, shared.AuditLog) error { return nil }

type countingBumper struct {
	n int
}

func (b *countingBumper) Bump(context.Context) error {
	b.n++
	return nil
}

var admin = shared.Actor{ID: 1, Role: shared.RoleSuperadmin}

func newTestService() (*Service, *memRepo, *stubSupervisors, *countingBumper) {
	repo := newMemRepo()
	sups := &stubSupervisors{known: map[int64]bool{}}
	bumper := &countingBumper{}
	svc := NewService(slog.Default(), repo, sups, nopAuditor{}, bumper)
	return svc, repo, sups, bumper
}

func TestCreateSiteValidation(t *testing.T) {
	svc, _, _, _ := newTestService()

	_, err := svc.Create(context.Background(), admin, NewSite{Name: ""})
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = svc.Create(context.Background(), admin, NewSite{Name: "X", TotalBudget: -5})
	require.ErrorIs(t, err, shared.ErrValidation)

	site, err := svc.Create(context.Background(), admin, NewSite{Name: "Green Valley Residences", TotalBudget: 5000000})
	require.NoError(t, err)
	require.Equal(t, StatusActive, site.Status)
	require.Zero(t, site.SpentBudget)
}

func TestCreateSiteRequiresManageRole(t *testing.T) {
	svc, _, _, _ := newTestService()
	actor := shared.Actor{ID: 2, Role: shared.RoleSupervisor}

	_, err := svc.Create(context.Background(), actor, NewSite{Name: "X"})
	require.ErrorIs(t, err, shared.ErrForbidden)
}

func TestAssignSupervisorConflictsWhenBusy(t *testing.T) {
	svc, _, sups, _ := newTestService()
	sups.known[7] = true

	a, err := svc.Create(context.Background(), admin, NewSite{Name: "A"})
	require.NoError(t, err)
	b, err := svc.Create(context.Background(), admin, NewSite{Name: "B"})
	require.NoError(t, err)

	require.NoError(t, svc.AssignSupervisor(context.Background(), admin, a.ID, 7))

	err = svc.AssignSupervisor(context.Background(), admin, b.ID, 7)
	require.ErrorIs(t, err, shared.ErrConflict)

	// Reassigning to the same site is a no-op, not a conflict.
	require.NoError(t, svc.AssignSupervisor(context.Background(), admin, a.ID, 7))
}

func TestAssignSupervisorUnknownSupervisor(t *testing.T) {
	svc, _, _, _ := newTestService()
	site, err := svc.Create(context.Background(), admin, NewSite{Name: "A"})
	require.NoError(t, err)

	err = svc.AssignSupervisor(context.Background(), admin, site.ID, 99)
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestUpdateProgressMonotonic(t *testing.T) {
	svc, repo, _, _ := newTestService()
	site, err := svc.Create(context.Background(), admin, NewSite{Name: "A"})
	require.NoError(t, err)

	require.NoError(t, svc.UpdateProgress(context.Background(), admin, site.ID, 40, false))

	err = svc.UpdateProgress(context.Background(), admin, site.ID, 30, false)
	require.ErrorIs(t, err, shared.ErrValidation)
	require.Equal(t, 40, repo.sites[site.ID].Progress)

	// Correction is allowed when explicitly requested.
	require.NoError(t, svc.UpdateProgress(context.Background(), admin, site.ID, 30, true))
	require.Equal(t, 30, repo.sites[site.ID].Progress)

	err = svc.UpdateProgress(context.Background(), admin, site.ID, 101, false)
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestDeleteSiteGuardedByActivity(t *testing.T) {
	svc, repo, _, _ := newTestService()
	site, err := svc.Create(context.Background(), admin, NewSite{Name: "A"})
	require.NoError(t, err)

	repo.activity[site.ID] = true
	err = svc.Delete(context.Background(), admin, site.ID)
	require.ErrorIs(t, err, shared.ErrConflict)

	repo.activity[site.ID] = false
	require.NoError(t, svc.Delete(context.Background(), admin, site.ID))
	require.NotContains(t, repo.sites, site.ID)
}
