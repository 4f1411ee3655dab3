package httpx

import (
	"errors"
	"net/http"

	"github.com/buildledger/buildledger/internal/shared"
)

// RespondError maps domain errors to HTTP problem responses. The detail
// comes from shared.UserSafeMessage, so unknown errors collapse to a
// generic message and internals never leak.
func RespondError(w http.ResponseWriter, r *http.Request, err error) {
	status, title := classify(err)
	Problem(w, r, status, title, shared.UserSafeMessage(err))
}

func classify(err error) (int, string) {
	switch {
	case errors.Is(err, shared.ErrNotFound):
		return http.StatusNotFound, "Not Found"
	case errors.Is(err, shared.ErrValidation):
		return http.StatusBadRequest, "Validation Failed"
	case errors.Is(err, shared.ErrForbidden):
		return http.StatusForbidden, "Forbidden"
	case errors.Is(err, shared.ErrInvalidState):
		return http.StatusConflict, "Invalid State"
	case errors.Is(err, shared.ErrConflict):
		return http.StatusConflict, "Conflict"
	case errors.Is(err, shared.ErrUnauthorized):
		return http.StatusUnauthorized, "Unauthorized"
	default:
		return http.StatusInternalServerError, "Internal Error"
	}
}
