package vendors

import (
	"context"
	"fmt"

	"github.com/buildledger/buildledger/internal/shared"
)

// Service handles vendor catalog logic.
type Service struct {
	repo Repository
}

// NewService builds Service instance.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// List returns vendors, optionally filtered by search text and category.
func (s *Service) List(ctx context.Context, search string, category Category) ([]Vendor, error) {
	if category != "" && !category.Valid() {
		return nil, fmt.Errorf("%w: unknown vendor category %q", shared.ErrValidation, category)
	}
	return s.repo.List(ctx, search, category)
}

// Get returns a vendor with its site links.
func (s *Service) Get(ctx context.Context, id int64) (Vendor, error) {
	if id <= 0 {
		return Vendor{}, fmt.Errorf("%w: invalid vendor id", shared.ErrValidation)
	}
	return s.repo.Get(ctx, id)
}

// Create registers a vendor.
func (s *Service) Create(ctx context.Context, actor shared.Actor, v Vendor) (Vendor, error) {
	if !shared.Allows(actor.Role, shared.OpCatalogManage) {
		return Vendor{}, fmt.Errorf("%w: role %s cannot manage the catalog", shared.ErrForbidden, actor.Role)
	}
	if v.Category == "" {
		v.Category = CategoryOther
	}
	if err := s.validate(v); err != nil {
		return Vendor{}, err
	}
	return s.repo.Create(ctx, v)
}

// Update edits a vendor entry.
func (s *Service) Update(ctx context.Context, actor shared.Actor, id int64, v Vendor) error {
	if !shared.Allows(actor.Role, shared.OpCatalogManage) {
		return fmt.Errorf("%w: role %s cannot manage the catalog", shared.ErrForbidden, actor.Role)
	}
	if id <= 0 {
		return fmt.Errorf("%w: invalid vendor id", shared.ErrValidation)
	}
	if err := s.validate(v); err != nil {
		return err
	}
	return s.repo.Update(ctx, id, v)
}

// Delete removes a vendor with no billing history.
func (s *Service) Delete(ctx context.Context, actor shared.Actor, id int64) error {
	if !shared.Allows(actor.Role, shared.OpCatalogManage) {
		return fmt.Errorf("%w: role %s cannot manage the catalog", shared.ErrForbidden, actor.Role)
	}
	busy, err := s.repo.HasBills(ctx, id)
	if err != nil {
		return err
	}
	if busy {
		return fmt.Errorf("%w: vendor %d has bills on record", shared.ErrConflict, id)
	}
	return s.repo.Delete(ctx, id)
}

// AssignSite links the vendor to a site it may bill against.
func (s *Service) AssignSite(ctx context.Context, actor shared.Actor, vendorID, siteID int64) error {
	if !shared.Allows(actor.Role, shared.OpCatalogManage) {
		return fmt.Errorf("%w: role %s cannot manage the catalog", shared.ErrForbidden, actor.Role)
	}
	return s.repo.AssignSite(ctx, vendorID, siteID)
}

// UnassignSite removes a vendor-site link.
func (s *Service) UnassignSite(ctx context.Context, actor shared.Actor, vendorID, siteID int64) error {
	if !shared.Allows(actor.Role, shared.OpCatalogManage) {
		return fmt.Errorf("%w: role %s cannot manage the catalog", shared.ErrForbidden, actor.Role)
	}
	return s.repo.UnassignSite(ctx, vendorID, siteID)
}
