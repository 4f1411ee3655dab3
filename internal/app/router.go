package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/buildledger/buildledger/internal/bills"
	"github.com/buildledger/buildledger/internal/identity"
	"github.com/buildledger/buildledger/internal/ledger"
	"github.com/buildledger/buildledger/internal/observability"
	"github.com/buildledger/buildledger/internal/requests"
	"github.com/buildledger/buildledger/internal/sites"
	"github.com/buildledger/buildledger/internal/supervisors"
	"github.com/buildledger/buildledger/internal/vendors"
	"github.com/buildledger/buildledger/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger             *slog.Logger
	Config             *Config
	UserLoader         identity.UserLoader
	IdentityHandler    *identity.Handler
	SitesHandler       *sites.Handler
	SupervisorsHandler *supervisors.Handler
	VendorsHandler     *vendors.Handler
	RequestsHandler    *requests.Handler
	BillsHandler       *bills.Handler
	LedgerHandler      *ledger.Handler
	JobHandler         *jobs.Handler
	Metrics            *observability.Metrics
}

// NewRouter constructs the chi.Router with the service defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(identity.Middleware(params.UserLoader))

		r.Route("/users", params.IdentityHandler.MountRoutes)
		r.Route("/sites", params.SitesHandler.MountRoutes)
		r.Route("/supervisors", params.SupervisorsHandler.MountRoutes)
		r.Route("/vendors", params.VendorsHandler.MountRoutes)
		r.Route("/requests", params.RequestsHandler.MountRoutes)
		r.Route("/bills", params.BillsHandler.MountRoutes)
		r.Route("/ledger", params.LedgerHandler.MountRoutes)
		if params.JobHandler != nil {
			r.Route("/jobs", params.JobHandler.MountRoutes)
		}
	})

	return r
}
