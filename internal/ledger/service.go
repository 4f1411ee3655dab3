package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/buildledger/buildledger/internal/shared"
)

// RepositoryPort describes the aggregate queries the service reads from.
type RepositoryPort interface {
	SiteBudgets(ctx context.Context) ([]SiteBudgetSummary, error)
	SiteBillTotals(ctx context.Context, siteID int64) (SiteBillTotals, error)
	VendorPerformance(ctx context.Context) ([]VendorPerformance, error)
	SupervisorStats(ctx context.Context) ([]SupervisorStats, error)
}

// Service serves cached reporting views.
type Service struct {
	logger *slog.Logger
	repo   RepositoryPort
	cache  *Cache
	now    func() time.Time
}

// NewService constructs the ledger service.
func NewService(logger *slog.Logger, repo RepositoryPort, cache *Cache) *Service {
	return &Service{logger: logger, repo: repo, cache: cache, now: time.Now}
}

// WithNow overrides the clock, for tests.
func (s *Service) WithNow(now func() time.Time) *Service {
	s.now = now
	return s
}

// Bump invalidates all cached views. Lifecycle services call this after
// budget movements.
func (s *Service) Bump(ctx context.Context) error {
	return s.cache.Bump(ctx)
}

// SiteBudgets returns every site's budget position with utilization.
func (s *Service) SiteBudgets(ctx context.Context, actor shared.Actor) ([]SiteBudgetSummary, error) {
	if !shared.Allows(actor.Role, shared.OpLedgerView) {
		return nil, fmt.Errorf("%w: role %s cannot view the ledger", shared.ErrForbidden, actor.Role)
	}
	return s.siteBudgets(ctx)
}

func (s *Service) siteBudgets(ctx context.Context) ([]SiteBudgetSummary, error) {
	key, err := s.cache.BuildKey(ctx, "ledger", "sites")
	if err != nil {
		return nil, err
	}
	var out []SiteBudgetSummary
	err = s.cache.FetchJSON(ctx, key, &out, func(ctx context.Context) (interface{}, error) {
		sites, err := s.repo.SiteBudgets(ctx)
		if err != nil {
			return nil, err
		}
		for i := range sites {
			sites[i].Remaining = sites[i].TotalBudget - sites[i].SpentBudget
			sites[i].Utilization = utilization(sites[i].SpentBudget, sites[i].TotalBudget)
		}
		return sites, nil
	})
	return out, err
}

// utilization is spend over budget as a percentage, clamped to [0, 100].
// A zero budget reads as zero utilization.
func utilization(spent, total float64) float64 {
	if total <= 0 {
		return 0
	}
	pct := spent / total * 100
	if pct < 0 {
		return 0
	}
	if pct > 100 {
		return 100
	}
	return math.Round(pct*100) / 100
}

// SiteBillTotals returns the bill aggregate for one site.
func (s *Service) SiteBillTotals(ctx context.Context, actor shared.Actor, siteID int64) (SiteBillTotals, error) {
	if !shared.Allows(actor.Role, shared.OpLedgerView) {
		return SiteBillTotals{}, fmt.Errorf("%w: role %s cannot view the ledger", shared.ErrForbidden, actor.Role)
	}
	key, err := s.cache.BuildKey(ctx, "ledger", "site", fmt.Sprintf("%d", siteID), "bills")
	if err != nil {
		return SiteBillTotals{}, err
	}
	var out SiteBillTotals
	err = s.cache.FetchJSON(ctx, key, &out, func(ctx context.Context) (interface{}, error) {
		return s.repo.SiteBillTotals(ctx, siteID)
	})
	return out, err
}

// VendorPerformance returns per-vendor billing aggregates.
func (s *Service) VendorPerformance(ctx context.Context, actor shared.Actor) ([]VendorPerformance, error) {
	if !shared.Allows(actor.Role, shared.OpLedgerView) {
		return nil, fmt.Errorf("%w: role %s cannot view the ledger", shared.ErrForbidden, actor.Role)
	}
	return s.vendorPerformance(ctx)
}

func (s *Service) vendorPerformance(ctx context.Context) ([]VendorPerformance, error) {
	key, err := s.cache.BuildKey(ctx, "ledger", "vendors")
	if err != nil {
		return nil, err
	}
	var out []VendorPerformance
	err = s.cache.FetchJSON(ctx, key, &out, func(ctx context.Context) (interface{}, error) {
		vendors, err := s.repo.VendorPerformance(ctx)
		if err != nil {
			return nil, err
		}
		for i := range vendors {
			v := &vendors[i]
			if v.VendorName == "" {
				// Reporting never fails on a dangling reference.
				s.logger.Warn("bill references missing vendor", slog.Int64("vendorId", v.VendorID))
			}
			if v.BillCount > 0 {
				v.RejectionRate = math.Round(float64(v.RejectedCount)/float64(v.BillCount)*100*100) / 100
			}
		}
		return vendors, nil
	})
	return out, err
}

// SupervisorStats returns per-supervisor request aggregates.
func (s *Service) SupervisorStats(ctx context.Context, actor shared.Actor) ([]SupervisorStats, error) {
	if !shared.Allows(actor.Role, shared.OpLedgerView) {
		return nil, fmt.Errorf("%w: role %s cannot view the ledger", shared.ErrForbidden, actor.Role)
	}
	return s.supervisorStats(ctx)
}

func (s *Service) supervisorStats(ctx context.Context) ([]SupervisorStats, error) {
	key, err := s.cache.BuildKey(ctx, "ledger", "supervisors")
	if err != nil {
		return nil, err
	}
	var out []SupervisorStats
	err = s.cache.FetchJSON(ctx, key, &out, func(ctx context.Context) (interface{}, error) {
		return s.repo.SupervisorStats(ctx)
	})
	return out, err
}

// Dashboard assembles all reporting views, fetching the three aggregates
// concurrently.
func (s *Service) Dashboard(ctx context.Context, actor shared.Actor) (Dashboard, error) {
	if !shared.Allows(actor.Role, shared.OpLedgerView) {
		return Dashboard{}, fmt.Errorf("%w: role %s cannot view the ledger", shared.ErrForbidden, actor.Role)
	}

	var dash Dashboard
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		sites, err := s.siteBudgets(ctx)
		if err != nil {
			return err
		}
		dash.Sites = sites
		return nil
	})
	g.Go(func() error {
		vendors, err := s.vendorPerformance(ctx)
		if err != nil {
			return err
		}
		dash.Vendors = vendors
		return nil
	})
	g.Go(func() error {
		sups, err := s.supervisorStats(ctx)
		if err != nil {
			return err
		}
		dash.Supervisors = sups
		return nil
	})
	if err := g.Wait(); err != nil {
		return Dashboard{}, err
	}
	dash.GeneratedAt = s.now()
	return dash, nil
}

// Warm pre-populates the cached views. The background warmup job calls
// this after each bump so the first dashboard hit stays fast.
func (s *Service) Warm(ctx context.Context) error {
	if _, err := s.siteBudgets(ctx); err != nil {
		return err
	}
	if _, err := s.vendorPerformance(ctx); err != nil {
		return err
	}
	_, err := s.supervisorStats(ctx)
	return err
}
