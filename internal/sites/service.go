package sites

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/buildledger/buildledger/internal/shared"
)

// RepositoryPort describes repository operations used by Service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Get(ctx context.Context, id int64) (Site, error)
	List(ctx context.Context) ([]Site, error)
}

// SupervisorPort verifies supervisor catalog entries before assignment.
type SupervisorPort interface {
	Exists(ctx context.Context, id int64) (bool, error)
}

// CacheBumper invalidates derived ledger views after budget-affecting writes.
type CacheBumper interface {
	Bump(ctx context.Context) error
}

// Service orchestrates site management.
type Service struct {
	logger      *slog.Logger
	repo        RepositoryPort
	supervisors SupervisorPort
	audit       shared.Auditor
	ledger      CacheBumper
}

// NewService constructs the site service.
func NewService(logger *slog.Logger, repo RepositoryPort, supervisors SupervisorPort, audit shared.Auditor, ledger CacheBumper) *Service {
	return &Service{logger: logger, repo: repo, supervisors: supervisors, audit: audit, ledger: ledger}
}

// Create registers a new site.
func (s *Service) Create(ctx context.Context, actor shared.Actor, input NewSite) (Site, error) {
	if !shared.Allows(actor.Role, shared.OpSiteManage) {
		return Site{}, fmt.Errorf("%w: role %s cannot manage sites", shared.ErrForbidden, actor.Role)
	}
	if input.Name == "" {
		return Site{}, fmt.Errorf("%w: site name is required", shared.ErrValidation)
	}
	if input.TotalBudget < 0 {
		return Site{}, fmt.Errorf("%w: total budget cannot be negative", shared.ErrValidation)
	}
	if input.StartDate != nil && input.EndDate != nil && input.EndDate.Before(*input.StartDate) {
		return Site{}, fmt.Errorf("%w: end date precedes start date", shared.ErrValidation)
	}

	var created Site
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		site, err := tx.Insert(ctx, input)
		if err != nil {
			return err
		}
		created = site
		return nil
	})
	if err != nil {
		return Site{}, err
	}

	s.recordAudit(ctx, actor, "site.create", created.ID, map[string]any{"name": created.Name})
	return created, nil
}

// Get returns a site by id.
func (s *Service) Get(ctx context.Context, id int64) (Site, error) {
	return s.repo.Get(ctx, id)
}

// List returns all sites.
func (s *Service) List(ctx context.Context) ([]Site, error) {
	return s.repo.List(ctx)
}

// Update edits site master fields. Budget counters are untouchable here.
func (s *Service) Update(ctx context.Context, actor shared.Actor, id int64, input UpdateSite) (Site, error) {
	if !shared.Allows(actor.Role, shared.OpSiteManage) {
		return Site{}, fmt.Errorf("%w: role %s cannot manage sites", shared.ErrForbidden, actor.Role)
	}
	if input.Name == "" {
		return Site{}, fmt.Errorf("%w: site name is required", shared.ErrValidation)
	}
	if !input.Status.Valid() {
		return Site{}, fmt.Errorf("%w: unknown status %q", shared.ErrValidation, input.Status)
	}
	if input.TotalBudget < 0 {
		return Site{}, fmt.Errorf("%w: total budget cannot be negative", shared.ErrValidation)
	}

	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if _, err := tx.GetForUpdate(ctx, id); err != nil {
			return err
		}
		return tx.Update(ctx, id, input)
	})
	if err != nil {
		return Site{}, err
	}

	s.recordAudit(ctx, actor, "site.update", id, nil)
	s.bumpLedger(ctx)
	return s.repo.Get(ctx, id)
}

// AssignSupervisor puts a supervisor in charge of a site. A supervisor can
// run at most one site at a time, so an existing assignment elsewhere is a
// conflict rather than a silent move.
func (s *Service) AssignSupervisor(ctx context.Context, actor shared.Actor, siteID, supervisorID int64) error {
	if !shared.Allows(actor.Role, shared.OpSiteManage) {
		return fmt.Errorf("%w: role %s cannot manage sites", shared.ErrForbidden, actor.Role)
	}
	ok, err := s.supervisors.Exists(ctx, supervisorID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: supervisor %d", shared.ErrNotFound, supervisorID)
	}

	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if _, err := tx.GetForUpdate(ctx, siteID); err != nil {
			return err
		}
		assigned, exists, err := tx.CurrentAssignment(ctx, supervisorID)
		if err != nil {
			return err
		}
		if exists && assigned != siteID {
			return fmt.Errorf("%w: supervisor %d already assigned to site %d", shared.ErrConflict, supervisorID, assigned)
		}
		return tx.SetSupervisor(ctx, siteID, supervisorID)
	})
	if err != nil {
		return err
	}

	s.recordAudit(ctx, actor, "site.assign_supervisor", siteID, map[string]any{"supervisorId": supervisorID})
	return nil
}

// UpdateProgress moves the completion percentage. Progress only moves
// forward unless the caller explicitly allows a correction, which is logged
// as an anomaly in the audit trail.
func (s *Service) UpdateProgress(ctx context.Context, actor shared.Actor, siteID int64, progress int, allowRegression bool) error {
	if !shared.Allows(actor.Role, shared.OpSiteManage) {
		return fmt.Errorf("%w: role %s cannot manage sites", shared.ErrForbidden, actor.Role)
	}
	if progress < 0 || progress > 100 {
		return fmt.Errorf("%w: progress must be between 0 and 100", shared.ErrValidation)
	}

	var regressed bool
	var previous int
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		site, err := tx.GetForUpdate(ctx, siteID)
		if err != nil {
			return err
		}
		if progress < site.Progress {
			if !allowRegression {
				return fmt.Errorf("%w: progress cannot decrease from %d to %d", shared.ErrValidation, site.Progress, progress)
			}
			regressed = true
			previous = site.Progress
		}
		return tx.SetProgress(ctx, siteID, progress)
	})
	if err != nil {
		return err
	}

	meta := map[string]any{"progress": progress}
	if regressed {
		meta["regressedFrom"] = previous
	}
	s.recordAudit(ctx, actor, "site.update_progress", siteID, meta)
	return nil
}

// Delete removes a site that has no procurement history.
func (s *Service) Delete(ctx context.Context, actor shared.Actor, siteID int64) error {
	if !shared.Allows(actor.Role, shared.OpSiteManage) {
		return fmt.Errorf("%w: role %s cannot manage sites", shared.ErrForbidden, actor.Role)
	}

	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if _, err := tx.GetForUpdate(ctx, siteID); err != nil {
			return err
		}
		busy, err := tx.HasProcurementActivity(ctx, siteID)
		if err != nil {
			return err
		}
		if busy {
			return fmt.Errorf("%w: site %d has requests or bills", shared.ErrConflict, siteID)
		}
		return tx.Delete(ctx, siteID)
	})
	if err != nil {
		return err
	}

	s.recordAudit(ctx, actor, "site.delete", siteID, nil)
	s.bumpLedger(ctx)
	return nil
}

func (s *Service) recordAudit(ctx context.Context, actor shared.Actor, action string, siteID int64, meta map[string]any) {
	if err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actor.ID,
		Action:   action,
		Entity:   "site",
		EntityID: fmt.Sprintf("%d", siteID),
		Meta:     meta,
	}); err != nil {
		s.logger.Warn("audit "+action, slog.Any("error", err))
	}
}

func (s *Service) bumpLedger(ctx context.Context) {
	if s.ledger == nil {
		return
	}
	if err := s.ledger.Bump(ctx); err != nil {
		s.logger.Warn("bump ledger cache", slog.Any("error", err))
	}
}
