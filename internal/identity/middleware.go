package identity

import (
	"context"
	"net/http"
	"strconv"

	"github.com/buildledger/buildledger/internal/platform/httpx"
	"github.com/buildledger/buildledger/internal/shared"
)

// UserLoader resolves a user account by id for request authentication.
type UserLoader interface {
	Get(ctx context.Context, id int64) (User, error)
}

// Middleware resolves the acting user from the X-User-ID header and places
// an Actor on the request context. Requests without a resolvable active
// user are rejected before reaching any handler.
func Middleware(loader UserLoader) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := r.Header.Get("X-User-ID")
			if raw == "" {
				httpx.Problem(w, r, http.StatusUnauthorized, "Unauthorized", "missing X-User-ID header")
				return
			}
			id, err := strconv.ParseInt(raw, 10, 64)
			if err != nil || id <= 0 {
				httpx.Problem(w, r, http.StatusUnauthorized, "Unauthorized", "invalid X-User-ID header")
				return
			}
			user, err := loader.Get(r.Context(), id)
			if err != nil {
				httpx.Problem(w, r, http.StatusUnauthorized, "Unauthorized", "unknown user")
				return
			}
			if user.Status != StatusActive {
				httpx.Problem(w, r, http.StatusForbidden, "Forbidden", "user account is inactive")
				return
			}
			actor := shared.Actor{ID: user.ID, Role: user.Role}
			next.ServeHTTP(w, r.WithContext(shared.ContextWithActor(r.Context(), actor)))
		})
	}
}
