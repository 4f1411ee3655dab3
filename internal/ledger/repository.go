package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/buildledger/buildledger/internal/shared"
)

// Repository reads aggregate views straight from PostgreSQL. All queries
// use LEFT JOINs so a dangling reference degrades to an empty name instead
// of dropping the row.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// SiteBudgets returns the raw budget position of every site.
func (r *Repository) SiteBudgets(ctx context.Context) ([]SiteBudgetSummary, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, name, status, total_budget, spent_budget, pending_bills, over_budget
		FROM sites
		ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("ledger: site budgets: %w", err)
	}
	defer rows.Close()

	var out []SiteBudgetSummary
	for rows.Next() {
		var s SiteBudgetSummary
		if err := rows.Scan(&s.SiteID, &s.SiteName, &s.Status, &s.TotalBudget,
			&s.SpentBudget, &s.PendingBills, &s.OverBudget); err != nil {
			return nil, fmt.Errorf("ledger: scan site: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// SiteBillTotals aggregates bill outcomes for one site.
func (r *Repository) SiteBillTotals(ctx context.Context, siteID int64) (SiteBillTotals, error) {
	var exists bool
	if err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM sites WHERE id = $1)`, siteID).Scan(&exists); err != nil {
		return SiteBillTotals{}, fmt.Errorf("ledger: site check: %w", err)
	}
	if !exists {
		return SiteBillTotals{}, fmt.Errorf("%w: site %d", shared.ErrNotFound, siteID)
	}

	t := SiteBillTotals{SiteID: siteID}
	err := r.pool.QueryRow(ctx, `
		SELECT COALESCE(SUM(total_amount) FILTER (WHERE status = 'approved'), 0),
		       COUNT(*) FILTER (WHERE status = 'approved'),
		       COUNT(*) FILTER (WHERE status = 'pending'),
		       COUNT(*) FILTER (WHERE status = 'rejected')
		FROM bills WHERE site_id = $1`, siteID).
		Scan(&t.ApprovedAmount, &t.ApprovedCount, &t.PendingCount, &t.RejectedCount)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return SiteBillTotals{}, fmt.Errorf("ledger: site bill totals: %w", err)
	}
	return t, nil
}

// VendorPerformance aggregates bill outcomes per vendor. Bills whose vendor
// row is gone surface with an empty name for the service to flag.
func (r *Repository) VendorPerformance(ctx context.Context) ([]VendorPerformance, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT b.vendor_id,
		       COALESCE(v.name, ''),
		       COALESCE(v.category, ''),
		       COUNT(*),
		       COALESCE(SUM(b.total_amount) FILTER (WHERE b.status = 'approved'), 0),
		       COALESCE(SUM(b.total_amount) FILTER (WHERE b.status = 'pending'), 0),
		       COUNT(*) FILTER (WHERE b.status = 'rejected')
		FROM bills b
		LEFT JOIN vendors v ON v.id = b.vendor_id
		GROUP BY b.vendor_id, v.name, v.category
		ORDER BY COALESCE(v.name, '')`)
	if err != nil {
		return nil, fmt.Errorf("ledger: vendor performance: %w", err)
	}
	defer rows.Close()

	var out []VendorPerformance
	for rows.Next() {
		var v VendorPerformance
		if err := rows.Scan(&v.VendorID, &v.VendorName, &v.Category,
			&v.BillCount, &v.ApprovedAmount, &v.PendingAmount, &v.RejectedCount); err != nil {
			return nil, fmt.Errorf("ledger: scan vendor: %w", err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// SupervisorStats aggregates request activity per supervisor.
func (r *Repository) SupervisorStats(ctx context.Context) ([]SupervisorStats, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT sup.id,
		       sup.name,
		       sup.assigned_site_id,
		       COUNT(mr.id),
		       COUNT(mr.id) FILTER (WHERE mr.status = 'approved'),
		       COUNT(mr.id) FILTER (WHERE mr.status = 'pending'),
		       COUNT(mr.id) FILTER (WHERE mr.status = 'rejected')
		FROM supervisors sup
		LEFT JOIN material_requests mr ON mr.requested_by = sup.user_id
		GROUP BY sup.id, sup.name, sup.assigned_site_id
		ORDER BY sup.name`)
	if err != nil {
		return nil, fmt.Errorf("ledger: supervisor stats: %w", err)
	}
	defer rows.Close()

	var out []SupervisorStats
	for rows.Next() {
		var s SupervisorStats
		if err := rows.Scan(&s.SupervisorID, &s.Name, &s.AssignedSiteID,
			&s.RequestCount, &s.ApprovedCount, &s.PendingCount, &s.RejectedCount); err != nil {
			return nil, fmt.Errorf("ledger: scan supervisor: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
