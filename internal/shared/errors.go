package shared

import "errors"

var (
	// ErrNotFound indicates a referenced entity does not resolve.
	ErrNotFound = errors.New("not found")
	// ErrValidation indicates malformed input.
	ErrValidation = errors.New("invalid input")
	// ErrForbidden indicates the actor's role cannot perform the operation.
	ErrForbidden = errors.New("forbidden")
	// ErrInvalidState indicates the entity is not in the state the transition requires.
	ErrInvalidState = errors.New("invalid state transition")
	// ErrConflict indicates a uniqueness or concurrent-update conflict.
	ErrConflict = errors.New("conflict")
	// ErrUnauthorized indicates a missing or unresolvable caller identity.
	ErrUnauthorized = errors.New("unauthorized")
)

// UserSafeMessage returns an error message that can be rendered to end users.
// Unrecognised errors collapse to a generic message so internals never leak.
func UserSafeMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrValidation),
		errors.Is(err, ErrForbidden),
		errors.Is(err, ErrInvalidState),
		errors.Is(err, ErrConflict),
		errors.Is(err, ErrNotFound),
		errors.Is(err, ErrUnauthorized):
		return err.Error()
	default:
		return "internal error"
	}
}
