package vendors

import (
	"fmt"
	"strings"

	"github.com/buildledger/buildledger/internal/shared"
)

func (s *Service) validate(v Vendor) error {
	if strings.TrimSpace(v.Name) == "" {
		return fmt.Errorf("%w: vendor name is required", shared.ErrValidation)
	}
	if !v.Category.Valid() {
		return fmt.Errorf("%w: unknown vendor category %q", shared.ErrValidation, v.Category)
	}
	if v.Rating < 0 || v.Rating > 5 {
		return fmt.Errorf("%w: rating must be between 0 and 5", shared.ErrValidation)
	}
	return nil
}
