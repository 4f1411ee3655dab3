package supervisors

import (
	"fmt"
	"strings"

	"github.com/buildledger/buildledger/internal/shared"
)

func (s *Service) validate(sup Supervisor) error {
	if strings.TrimSpace(sup.Name) == "" {
		return fmt.Errorf("%w: supervisor name is required", shared.ErrValidation)
	}
	if strings.TrimSpace(sup.Email) == "" {
		return fmt.Errorf("%w: supervisor email is required", shared.ErrValidation)
	}
	if sup.Rating < 0 || sup.Rating > 5 {
		return fmt.Errorf("%w: rating must be between 0 and 5", shared.ErrValidation)
	}
	return nil
}
