package supervisors

import (
	"context"
	"errors"
	"fmt"

	"github.com/buildledger/buildledger/internal/shared"
)

// Service handles supervisor catalog logic.
type Service struct {
	repo Repository
}

// NewService builds Service instance.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// List returns supervisors, optionally filtered by a name/email search.
func (s *Service) List(ctx context.Context, search string) ([]Supervisor, error) {
	return s.repo.List(ctx, search)
}

// Get returns a supervisor by id.
func (s *Service) Get(ctx context.Context, id int64) (Supervisor, error) {
	if id <= 0 {
		return Supervisor{}, fmt.Errorf("%w: invalid supervisor id", shared.ErrValidation)
	}
	return s.repo.Get(ctx, id)
}

// Exists reports whether the supervisor is present in the catalog.
func (s *Service) Exists(ctx context.Context, id int64) (bool, error) {
	_, err := s.repo.Get(ctx, id)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// GetByUserID resolves the catalog entry backing a user account.
func (s *Service) GetByUserID(ctx context.Context, userID int64) (Supervisor, error) {
	return s.repo.GetByUserID(ctx, userID)
}

// Create registers a supervisor.
func (s *Service) Create(ctx context.Context, actor shared.Actor, sup Supervisor) (Supervisor, error) {
	if !shared.Allows(actor.Role, shared.OpCatalogManage) {
		return Supervisor{}, fmt.Errorf("%w: role %s cannot manage the catalog", shared.ErrForbidden, actor.Role)
	}
	if err := s.validate(sup); err != nil {
		return Supervisor{}, err
	}
	return s.repo.Create(ctx, sup)
}

// Update edits a supervisor entry.
func (s *Service) Update(ctx context.Context, actor shared.Actor, id int64, sup Supervisor) error {
	if !shared.Allows(actor.Role, shared.OpCatalogManage) {
		return fmt.Errorf("%w: role %s cannot manage the catalog", shared.ErrForbidden, actor.Role)
	}
	if id <= 0 {
		return fmt.Errorf("%w: invalid supervisor id", shared.ErrValidation)
	}
	if err := s.validate(sup); err != nil {
		return err
	}
	return s.repo.Update(ctx, id, sup)
}

// Delete removes a supervisor that is not running a site.
func (s *Service) Delete(ctx context.Context, actor shared.Actor, id int64) error {
	if !shared.Allows(actor.Role, shared.OpCatalogManage) {
		return fmt.Errorf("%w: role %s cannot manage the catalog", shared.ErrForbidden, actor.Role)
	}
	sup, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if sup.AssignedSiteID != nil {
		return fmt.Errorf("%w: supervisor %d is assigned to site %d", shared.ErrConflict, id, *sup.AssignedSiteID)
	}
	return s.repo.Delete(ctx, id)
}
