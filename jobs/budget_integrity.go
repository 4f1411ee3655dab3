package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/buildledger/buildledger/internal/observability"
	"github.com/buildledger/buildledger/internal/platform/db"
)

// budgetDrift describes a site whose stored counters disagree with the
// aggregates derived from its bills.
type budgetDrift struct {
	SiteID          int64
	StoredSpent     float64
	ExpectedSpent   float64
	StoredPending   int
	ExpectedPending int
}

// BudgetIntegrityJob sweeps every site and compares the denormalised
// budget counters against the bill table. Counters only ever drift when
// an operator edits rows by hand, so the sweep is a safety net rather
// than part of the write path.
type BudgetIntegrityJob struct {
	Pool    *pgxpool.Pool
	Bumper  CacheBumper
	Logger  *slog.Logger
	Metrics *observability.Metrics
}

// CacheBumper invalidates the cached reporting views after a repair.
type CacheBumper interface {
	Bump(ctx context.Context) error
}

// NewBudgetIntegrityJob wires dependencies for the integrity handler.
func NewBudgetIntegrityJob(pool *pgxpool.Pool, bumper CacheBumper, logger *slog.Logger, metrics *observability.Metrics) *BudgetIntegrityJob {
	return &BudgetIntegrityJob{Pool: pool, Bumper: bumper, Logger: logger, Metrics: metrics}
}

// Handle processes TaskBudgetIntegrity tasks.
func (j *BudgetIntegrityJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Pool == nil {
		return errors.New("budget integrity: handler not configured")
	}
	var payload BudgetIntegrityPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}

	logger := j.logger()
	start := time.Now()

	drifts, err := j.detect(ctx)
	if err != nil {
		j.Metrics.ObserveJob(TaskBudgetIntegrity, "error")
		logger.Error("detect budget drift", slog.Any("error", err))
		return err
	}
	if len(drifts) == 0 {
		j.Metrics.ObserveJob(TaskBudgetIntegrity, "ok")
		logger.Info("budget counters consistent", slog.Duration("duration", time.Since(start)))
		return nil
	}

	for _, d := range drifts {
		logger.Warn("budget counter drift",
			slog.Int64("siteId", d.SiteID),
			slog.Float64("storedSpent", d.StoredSpent),
			slog.Float64("expectedSpent", d.ExpectedSpent),
			slog.Int("storedPending", d.StoredPending),
			slog.Int("expectedPending", d.ExpectedPending))
	}
	if !payload.Repair {
		j.Metrics.ObserveJob(TaskBudgetIntegrity, "drift")
		return nil
	}

	if err := j.repair(ctx, drifts); err != nil {
		j.Metrics.ObserveJob(TaskBudgetIntegrity, "error")
		logger.Error("repair budget drift", slog.Any("error", err))
		return err
	}
	if j.Bumper != nil {
		if err := j.Bumper.Bump(ctx); err != nil {
			logger.Warn("bump ledger cache", slog.Any("error", err))
		}
	}
	j.Metrics.ObserveJob(TaskBudgetIntegrity, "repaired")
	logger.Info("repaired budget counters",
		slog.Int("sites", len(drifts)),
		slog.Duration("duration", time.Since(start)))
	return nil
}

func (j *BudgetIntegrityJob) detect(ctx context.Context) ([]budgetDrift, error) {
	rows, err := j.Pool.Query(ctx, `
		SELECT s.id, s.spent_budget, s.pending_bills,
		       COALESCE(SUM(b.total_amount) FILTER (WHERE b.status = 'approved'), 0),
		       COUNT(b.id) FILTER (WHERE b.status = 'pending')
		FROM sites s
		LEFT JOIN bills b ON b.site_id = s.id
		GROUP BY s.id, s.spent_budget, s.pending_bills
		ORDER BY s.id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var drifts []budgetDrift
	for rows.Next() {
		var d budgetDrift
		if err := rows.Scan(&d.SiteID, &d.StoredSpent, &d.StoredPending, &d.ExpectedSpent, &d.ExpectedPending); err != nil {
			return nil, err
		}
		if d.StoredSpent != d.ExpectedSpent || d.StoredPending != d.ExpectedPending {
			drifts = append(drifts, d)
		}
	}
	return drifts, rows.Err()
}

func (j *BudgetIntegrityJob) repair(ctx context.Context, drifts []budgetDrift) error {
	return db.WithTx(ctx, j.Pool, pgx.RepeatableRead, func(tx pgx.Tx) error {
		for _, d := range drifts {
			_, err := tx.Exec(ctx, `
				UPDATE sites
				SET spent_budget = $2,
				    pending_bills = $3,
				    over_budget = $2 > total_budget,
				    updated_at = now()
				WHERE id = $1`, d.SiteID, d.ExpectedSpent, d.ExpectedPending)
			if err != nil {
				return err
			}
		}
		return nil
	})
}

func (j *BudgetIntegrityJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskBudgetIntegrity))
	}
	return slog.Default().With(slog.String("job", TaskBudgetIntegrity))
}
