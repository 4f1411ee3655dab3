package bills

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
	Get(ctx context.Context, id int64) (Bill, error)
	List(ctx context.Context, filter ListFilter) ([]Bill, error)
	VendorExists(ctx context.Context, vendorID int64) (bool, error)
}

// CacheBumper invalidates derived ledger views after budget movements.
type CacheBumper interface {
	Bump(ctx context.Context) error
}

// Config tunes bill approval behaviour.
type Config struct {
	// BlockOverBudget aborts approvals that would push a site past its
	// total budget. When false the approval lands and the site is
	// flagged instead.
	BlockOverBudget bool
}

// Service orchestrates the bill lifecycle.
type Service struct {
	logger    *slog.Logger
	repo      RepositoryPort
	approvals shared.ApprovalTrail
	audit     shared.Auditor
	ledger    CacheBumper
	cfg       Config
	now       func() time.Time
}

// NewService constructs the bill service.
func NewService(logger *slog.Logger, repo RepositoryPort, approvals shared.ApprovalTrail, audit shared.Auditor, ledger CacheBumper, cfg Config) *Service {
	return &Service{
		logger:    logger,
		repo:      repo,
		approvals: approvals,
		audit:     audit,
		ledger:    ledger,
		cfg:       cfg,
		now:       time.Now,
	}
}

// WithNow overrides the clock, for tests.
func (s *Service) WithNow(now func() time.Time) *Service {
	s.now = now
	return s
}

// ItemInput is one billed line.
type ItemInput struct {
	MaterialName string
	Quantity     float64
	UnitPrice    float64
}

// CreateInput carries the fields for a new bill. The site is taken from the
// request, never from the caller.
type CreateInput struct {
	RequestID  int64
	VendorID   int64
	GSTPercent float64
	Items      []ItemInput
}

// Create files a bill against an approved material request. A request can
// carry at most one live bill; a rejected bill frees the slot.
func (s *Service) Create(ctx context.Context, actor shared.Actor, input CreateInput) (Bill, error) {
	if !shared.Allows(actor.Role, shared.OpBillCreate) {
		return Bill{}, fmt.Errorf("%w: role %s cannot create bills", shared.ErrForbidden, actor.Role)
	}
	if len(input.Items) == 0 {
		return Bill{}, fmt.Errorf("%w: at least one bill item is required", shared.ErrValidation)
	}
	if input.GSTPercent < 0 || input.GSTPercent > 100 {
		return Bill{}, fmt.Errorf("%w: gst percent must be between 0 and 100", shared.ErrValidation)
	}
	items := make([]BillItem, len(input.Items))
	for i, it := range input.Items {
		if strings.TrimSpace(it.MaterialName) == "" {
			return Bill{}, fmt.Errorf("%w: item material name is required", shared.ErrValidation)
		}
		if it.Quantity <= 0 {
			return Bill{}, fmt.Errorf("%w: quantity for %q must be positive", shared.ErrValidation, it.MaterialName)
		}
		if it.UnitPrice < 0 {
			return Bill{}, fmt.Errorf("%w: unit price for %q cannot be negative", shared.ErrValidation, it.MaterialName)
		}
		items[i] = BillItem{MaterialName: it.MaterialName, Quantity: it.Quantity, UnitPrice: it.UnitPrice}
	}

	ok, err := s.repo.VendorExists(ctx, input.VendorID)
	if err != nil {
		return Bill{}, err
	}
	if !ok {
		return Bill{}, fmt.Errorf("%w: vendor %d does not exist", shared.ErrValidation, input.VendorID)
	}

	total := Total(items, input.GSTPercent)

	var billID int64
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		siteID, status, err := tx.RequestStateForUpdate(ctx, input.RequestID)
		if err != nil {
			return err
		}
		if status != "approved" {
			return fmt.Errorf("%w: request %d is %s, bills need an approved request", shared.ErrInvalidState, input.RequestID, status)
		}
		live, err := tx.CountLiveBills(ctx, input.RequestID)
		if err != nil {
			return err
		}
		if live > 0 {
			return fmt.Errorf("%w: request %d already has a live bill", shared.ErrConflict, input.RequestID)
		}

		id, err := tx.Insert(ctx, Bill{
			RequestID:   input.RequestID,
			VendorID:    input.VendorID,
			SiteID:      siteID,
			GSTPercent:  input.GSTPercent,
			TotalAmount: total,
			CreatedBy:   actor.ID,
		})
		if err != nil {
			return err
		}
		for _, it := range items {
			if err := tx.InsertItem(ctx, id, it); err != nil {
				return err
			}
		}
		if err := tx.AdjustPendingBills(ctx, siteID, 1); err != nil {
			return err
		}
		billID = id
		return nil
	})
	if err != nil {
		return Bill{}, err
	}

	s.recordApproval(ctx, actor, billID, shared.ApprovalSubmit, "")
	s.recordAudit(ctx, actor, "bill.create", billID, map[string]any{
		"requestId": input.RequestID, "vendorId": input.VendorID, "total": total,
	})
	s.bumpLedger(ctx)
	return s.repo.Get(ctx, billID)
}

// Get returns a bill with its items.
func (s *Service) Get(ctx context.Context, id int64) (Bill, error) {
	return s.repo.Get(ctx, id)
}

// List returns bills matching the filter.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]Bill, error) {
	return s.repo.List(ctx, filter)
}

// Review settles a pending bill. Approval moves the amount onto the site
// budget in the same transaction as the status flip, so a crash cannot
// leave an approved bill whose money never landed.
func (s *Service) Review(ctx context.Context, actor shared.Actor, id int64, decision Decision, reason string) (Bill, error) {
	if !shared.Allows(actor.Role, shared.OpBillReview) {
		return Bill{}, fmt.Errorf("%w: role %s cannot review bills", shared.ErrForbidden, actor.Role)
	}

	bill, err := s.repo.Get(ctx, id)
	if err != nil {
		return Bill{}, err
	}

	var action shared.ApprovalAction
	switch decision {
	case DecisionApprove:
		action = shared.ApprovalApprove
		reason = ""
	case DecisionReject:
		if strings.TrimSpace(reason) == "" {
			return Bill{}, fmt.Errorf("%w: a rejection reason is required", shared.ErrValidation)
		}
		action = shared.ApprovalReject
	default:
		return Bill{}, fmt.Errorf("%w: unknown decision %q", shared.ErrValidation, decision)
	}

	var overBudget bool
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		switch decision {
		case DecisionApprove:
			updated, err := tx.UpdateStatusIfPending(ctx, id, StatusApproved, actor.ID, "")
			if err != nil {
				return err
			}
			if !updated {
				return fmt.Errorf("%w: bill %d is not pending", shared.ErrInvalidState, id)
			}
			budget, err := tx.ApplySiteSpend(ctx, bill.SiteID, bill.TotalAmount)
			if err != nil {
				return err
			}
			if budget.OverBudget && s.cfg.BlockOverBudget {
				return fmt.Errorf("%w: approving bill %d would exceed the site budget (%.2f of %.2f)",
					shared.ErrConflict, id, budget.SpentBudget, budget.TotalBudget)
			}
			overBudget = budget.OverBudget
			return nil
		default:
			updated, err := tx.UpdateStatusIfPending(ctx, id, StatusRejected, actor.ID, reason)
			if err != nil {
				return err
			}
			if !updated {
				return fmt.Errorf("%w: bill %d is not pending", shared.ErrInvalidState, id)
			}
			return tx.AdjustPendingBills(ctx, bill.SiteID, -1)
		}
	})
	if err != nil {
		return Bill{}, err
	}

	if overBudget {
		s.logger.Warn("site over budget after bill approval",
			slog.Int64("siteId", bill.SiteID), slog.Int64("billId", id))
	}

	s.recordApproval(ctx, actor, id, action, reason)
	s.recordAudit(ctx, actor, "bill.review", id, map[string]any{"decision": decision, "overBudget": overBudget})
	s.bumpLedger(ctx)
	return s.repo.Get(ctx, id)
}

// Delete removes a pending bill and releases its slot on the request.
func (s *Service) Delete(ctx context.Context, actor shared.Actor, id int64) error {
	if !shared.Allows(actor.Role, shared.OpBillDelete) {
		return fmt.Errorf("%w: role %s cannot delete bills", shared.ErrForbidden, actor.Role)
	}
	bill, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}

	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		deleted, err := tx.DeleteIfPending(ctx, id)
		if err != nil {
			return err
		}
		if !deleted {
			return fmt.Errorf("%w: bill %d is not pending", shared.ErrInvalidState, id)
		}
		return tx.AdjustPendingBills(ctx, bill.SiteID, -1)
	})
	if err != nil {
		return err
	}

	s.recordAudit(ctx, actor, "bill.delete", id, nil)
	s.bumpLedger(ctx)
	return nil
}

// Approvals returns the approval trail of one bill, oldest entry first.
// Rejected bills keep their history for audit.
func (s *Service) Approvals(ctx context.Context, id int64) ([]shared.ApprovalLog, error) {
	if _, err := s.repo.Get(ctx, id); err != nil {
		return nil, err
	}
	return s.approvals.List(ctx, "BILL", shared.ApprovalRef("BILL", id))
}

func (s *Service) recordApproval(ctx context.Context, actor shared.Actor, billID int64, action shared.ApprovalAction, note string) {
	if err := s.approvals.Record(ctx, shared.ApprovalLog{
		Module:  "BILL",
		RefID:   shared.ApprovalRef("BILL", billID),
		ActorID: actor.ID,
		Action:  action,
		Note:    note,
		At:      s.now(),
	}); err != nil {
		s.logger.Warn("record bill approval", slog.Any("error", err))
	}
}

func (s *Service) recordAudit(ctx context.Context, actor shared.Actor, action string, billID int64, meta map[string]any) {
	if err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actor.ID,
		Action:   action,
		Entity:   "bill",
		EntityID: fmt.Sprintf("%d", billID),
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
