package requests

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/buildledger/buildledger/internal/shared"
)

// RepositoryPort describes repository operations used by Service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Get(ctx context.Context, id int64) (MaterialRequest, error)
	List(ctx context.Context, filter ListFilter) ([]MaterialRequest, error)
	SiteSupervisorUserID(ctx context.Context, siteID int64) (int64, bool, error)
	SiteExists(ctx context.Context, siteID int64) (bool, error)
	UserExists(ctx context.Context, userID int64) (bool, error)
}

// CacheBumper invalidates derived ledger views after lifecycle changes.
type CacheBumper interface {
	Bump(ctx context.Context) error
}

// Service orchestrates the material request lifecycle.
type Service struct {
	logger    *slog.Logger
	repo      RepositoryPort
	approvals shared.ApprovalTrail
	audit     shared.Auditor
	ledger    CacheBumper
	now       func() time.Time
}

// NewService constructs the request service.
func NewService(logger *slog.Logger, repo RepositoryPort, approvals shared.ApprovalTrail, audit shared.Auditor, ledger CacheBumper) *Service {
	return &Service{
		logger:    logger,
		repo:      repo,
		approvals: approvals,
		audit:     audit,
		ledger:    ledger,
		now:       time.Now,
	}
}

// WithNow overrides the clock, for tests.
func (s *Service) WithNow(now func() time.Time) *Service {
	s.now = now
	return s
}

// MaterialInput is one requested material line.
type MaterialInput struct {
	MaterialName string
	Quantity     float64
	Unit         string
}

// CreateInput carries the fields for a new material request. The requester
// is always the acting user.
type CreateInput struct {
	SiteID    int64
	Urgency   Urgency
	Notes     string
	Materials []MaterialInput
}

// Create files a material request for a site. Only the supervisor running
// that site may file for it; superadmins may file for any site.
func (s *Service) Create(ctx context.Context, actor shared.Actor, input CreateInput) (MaterialRequest, error) {
	if !shared.Allows(actor.Role, shared.OpRequestCreate) {
		return MaterialRequest{}, fmt.Errorf("%w: role %s cannot create requests", shared.ErrForbidden, actor.Role)
	}
	if input.Urgency == "" {
		input.Urgency = UrgencyNormal
	}
	if !input.Urgency.Valid() {
		return MaterialRequest{}, fmt.Errorf("%w: unknown urgency %q", shared.ErrValidation, input.Urgency)
	}
	if len(input.Materials) == 0 {
		return MaterialRequest{}, fmt.Errorf("%w: at least one material line is required", shared.ErrValidation)
	}
	for _, m := range input.Materials {
		if strings.TrimSpace(m.MaterialName) == "" {
			return MaterialRequest{}, fmt.Errorf("%w: material name is required", shared.ErrValidation)
		}
		if m.Quantity <= 0 {
			return MaterialRequest{}, fmt.Errorf("%w: quantity for %q must be positive", shared.ErrValidation, m.MaterialName)
		}
	}

	// Dangling references on write are caller mistakes, not missing pages.
	ok, err := s.repo.SiteExists(ctx, input.SiteID)
	if err != nil {
		return MaterialRequest{}, err
	}
	if !ok {
		return MaterialRequest{}, fmt.Errorf("%w: site %d does not exist", shared.ErrValidation, input.SiteID)
	}
	ok, err = s.repo.UserExists(ctx, actor.ID)
	if err != nil {
		return MaterialRequest{}, err
	}
	if !ok {
		return MaterialRequest{}, fmt.Errorf("%w: requester %d does not exist", shared.ErrValidation, actor.ID)
	}

	if actor.Role != shared.RoleSuperadmin {
		supervisorUser, assigned, err := s.repo.SiteSupervisorUserID(ctx, input.SiteID)
		if err != nil {
			return MaterialRequest{}, err
		}
		if !assigned || supervisorUser != actor.ID {
			return MaterialRequest{}, fmt.Errorf("%w: only the site's supervisor may request materials", shared.ErrForbidden)
		}
	}

	var requestID int64
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		id, err := tx.Insert(ctx, MaterialRequest{
			SiteID:      input.SiteID,
			RequestedBy: actor.ID,
			Urgency:     input.Urgency,
			Notes:       input.Notes,
		})
		if err != nil {
			return err
		}
		for _, m := range input.Materials {
			line := MaterialLine{MaterialName: m.MaterialName, Quantity: m.Quantity, Unit: m.Unit}
			if err := tx.InsertLine(ctx, id, line); err != nil {
				return err
			}
		}
		requestID = id
		return nil
	})
	if err != nil {
		return MaterialRequest{}, err
	}

	s.recordApproval(ctx, actor, requestID, shared.ApprovalSubmit, input.Notes)
	s.recordAudit(ctx, actor, "request.create", requestID, map[string]any{
		"siteId": input.SiteID, "urgency": input.Urgency, "lines": len(input.Materials),
	})
	return s.repo.Get(ctx, requestID)
}

// Get returns a request with its lines.
func (s *Service) Get(ctx context.Context, id int64) (MaterialRequest, error) {
	return s.repo.Get(ctx, id)
}

// List returns requests in priority order: critical first, then urgent,
// then normal, oldest first within the same urgency.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]MaterialRequest, error) {
	out, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, err
	}
	SortByPriority(out)
	return out, nil
}

// Review settles a pending request. Both approve and reject are terminal;
// reviewing a settled request fails regardless of the verdict.
func (s *Service) Review(ctx context.Context, actor shared.Actor, id int64, decision Decision, reason string) (MaterialRequest, error) {
	if !shared.Allows(actor.Role, shared.OpRequestReview) {
		return MaterialRequest{}, fmt.Errorf("%w: role %s cannot review requests", shared.ErrForbidden, actor.Role)
	}

	var status Status
	var action shared.ApprovalAction
	switch decision {
	case DecisionApprove:
		status, action = StatusApproved, shared.ApprovalApprove
		reason = ""
	case DecisionReject:
		if strings.TrimSpace(reason) == "" {
			return MaterialRequest{}, fmt.Errorf("%w: a rejection reason is required", shared.ErrValidation)
		}
		status, action = StatusRejected, shared.ApprovalReject
	default:
		return MaterialRequest{}, fmt.Errorf("%w: unknown decision %q", shared.ErrValidation, decision)
	}

	// Existence first, so a missing request reads as 404 and not as a
	// state conflict.
	if _, err := s.repo.Get(ctx, id); err != nil {
		return MaterialRequest{}, err
	}

	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		updated, err := tx.UpdateStatusIfPending(ctx, id, status, actor.ID, reason)
		if err != nil {
			return err
		}
		if !updated {
			return fmt.Errorf("%w: request %d is not pending", shared.ErrInvalidState, id)
		}
		return nil
	})
	if err != nil {
		return MaterialRequest{}, err
	}

	s.recordApproval(ctx, actor, id, action, reason)
	s.recordAudit(ctx, actor, "request.review", id, map[string]any{"decision": decision})
	s.bumpLedger(ctx)
	return s.repo.Get(ctx, id)
}

// Delete removes a pending request. Only the requester or a superadmin may
// delete, and settled requests are immutable history.
func (s *Service) Delete(ctx context.Context, actor shared.Actor, id int64) error {
	if !shared.Allows(actor.Role, shared.OpRequestDelete) {
		return fmt.Errorf("%w: role %s cannot delete requests", shared.ErrForbidden, actor.Role)
	}
	req, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if actor.Role != shared.RoleSuperadmin && req.RequestedBy != actor.ID {
		return fmt.Errorf("%w: only the requester may delete this request", shared.ErrForbidden)
	}

	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		deleted, err := tx.DeleteIfPending(ctx, id)
		if err != nil {
			return err
		}
		if !deleted {
			return fmt.Errorf("%w: request %d is not pending", shared.ErrInvalidState, id)
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.recordAudit(ctx, actor, "request.delete", id, nil)
	return nil
}

// Approvals returns the approval trail of one request, oldest entry
// first. The rejected history stays readable after the request settles.
func (s *Service) Approvals(ctx context.Context, id int64) ([]shared.ApprovalLog, error) {
	if _, err := s.repo.Get(ctx, id); err != nil {
		return nil, err
	}
	return s.approvals.List(ctx, "REQUEST", shared.ApprovalRef("REQUEST", id))
}

func (s *Service) recordApproval(ctx context.Context, actor shared.Actor, requestID int64, action shared.ApprovalAction, note string) {
	if err := s.approvals.Record(ctx, shared.ApprovalLog{
		Module:  "REQUEST",
		RefID:   shared.ApprovalRef("REQUEST", requestID),
		ActorID: actor.ID,
		Action:  action,
		Note:    note,
		At:      s.now(),
	}); err != nil {
		s.logger.Warn("record request approval", slog.Any("error", err))
	}
}

func (s *Service) recordAudit(ctx context.Context, actor shared.Actor, action string, requestID int64, meta map[string]any) {
	if err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actor.ID,
		Action:   action,
		Entity:   "material_request",
		EntityID: fmt.Sprintf("%d", requestID),
		Meta:     meta,
		At:       s.now(),
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
