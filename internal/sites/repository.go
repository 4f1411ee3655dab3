package sites

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/buildledger/buildledger/internal/platform/db"
	"github.com/buildledger/buildledger/internal/shared"
)

// Repository provides PostgreSQL backed persistence for sites.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes transactional site operations.
type TxRepository interface {
	Insert(ctx context.Context, input NewSite) (Site, error)
	Update(ctx context.Context, id int64, input UpdateSite) error
	SetSupervisor(ctx context.Context, siteID, supervisorID int64) error
	CurrentAssignment(ctx context.Context, supervisorID int64) (int64, bool, error)
	SetProgress(ctx context.Context, siteID int64, progress int) error
	Delete(ctx context.Context, siteID int64) error
	HasProcurementActivity(ctx context.Context, siteID int64) (bool, error)
	GetForUpdate(ctx context.Context, id int64) (Site, error)
}

type txRepo struct {
	tx pgx.Tx
}

// WithTx wraps callback in a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, pgx.RepeatableRead, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{tx: tx})
	})
}

const siteColumns = `id, name, location, status, progress, total_budget, spent_budget,
pending_bills, over_budget, supervisor_id, start_date, end_date, created_at, updated_at`

func scanSite(row pgx.Row) (Site, error) {
	var s Site
	err := row.Scan(&s.ID, &s.Name, &s.Location, &s.Status, &s.Progress, &s.TotalBudget,
		&s.SpentBudget, &s.PendingBills, &s.OverBudget, &s.SupervisorID, &s.StartDate,
		&s.EndDate, &s.CreatedAt, &s.UpdatedAt)
	return s, err
}

// Get returns a site by id.
func (r *Repository) Get(ctx context.Context, id int64) (Site, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+siteColumns+` FROM sites WHERE id = $1`, id)
	s, err := scanSite(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Site{}, fmt.Errorf("%w: site %d", shared.ErrNotFound, id)
	}
	if err != nil {
		return Site{}, fmt.Errorf("sites: get: %w", err)
	}
	return s, nil
}

// List returns all sites ordered by creation time.
func (r *Repository) List(ctx context.Context) ([]Site, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+siteColumns+` FROM sites ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("sites: list: %w", err)
	}
	defer rows.Close()

	var out []Site
	for rows.Next() {
		s, err := scanSite(rows)
		if err != nil {
			return nil, fmt.Errorf("sites: scan: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (t *txRepo) Insert(ctx context.Context, input NewSite) (Site, error) {
	row := t.tx.QueryRow(ctx, `
		INSERT INTO sites (name, location, total_budget, start_date, end_date)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING `+siteColumns,
		input.Name, input.Location, input.TotalBudget, input.StartDate, input.EndDate)
	s, err := scanSite(row)
	if err != nil {
		return Site{}, fmt.Errorf("sites: insert: %w", err)
	}
	return s, nil
}

func (t *txRepo) Update(ctx context.Context, id int64, input UpdateSite) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE sites
		SET name = $2, location = $3, status = $4, total_budget = $5,
		    start_date = $6, end_date = $7, updated_at = NOW()
		WHERE id = $1`,
		id, input.Name, input.Location, string(input.Status), input.TotalBudget,
		input.StartDate, input.EndDate)
	if err != nil {
		return fmt.Errorf("sites: update: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: site %d", shared.ErrNotFound, id)
	}
	return nil
}

func (t *txRepo) GetForUpdate(ctx context.Context, id int64) (Site, error) {
	row := t.tx.QueryRow(ctx, `SELECT `+siteColumns+` FROM sites WHERE id = $1 FOR UPDATE`, id)
	s, err := scanSite(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Site{}, fmt.Errorf("%w: site %d", shared.ErrNotFound, id)
	}
	if err != nil {
		return Site{}, fmt.Errorf("sites: get for update: %w", err)
	}
	return s, nil
}

// CurrentAssignment returns the site a supervisor is assigned to, if any.
func (t *txRepo) CurrentAssignment(ctx context.Context, supervisorID int64) (int64, bool, error) {
	var siteID int64
	err := t.tx.QueryRow(ctx,
		`SELECT id FROM sites WHERE supervisor_id = $1`, supervisorID).Scan(&siteID)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("sites: current assignment: %w", err)
	}
	return siteID, true, nil
}

// SetSupervisor links the supervisor and the site on both sides.
func (t *txRepo) SetSupervisor(ctx context.Context, siteID, supervisorID int64) error {
	tag, err := t.tx.Exec(ctx,
		`UPDATE sites SET supervisor_id = $2, updated_at = NOW() WHERE id = $1`, siteID, supervisorID)
	if err != nil {
		return fmt.Errorf("sites: set supervisor: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: site %d", shared.ErrNotFound, siteID)
	}
	tag, err = t.tx.Exec(ctx,
		`UPDATE supervisors SET assigned_site_id = $2, updated_at = NOW() WHERE id = $1`, supervisorID, siteID)
	if err != nil {
		return fmt.Errorf("sites: link supervisor: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: supervisor %d", shared.ErrNotFound, supervisorID)
	}
	return nil
}

func (t *txRepo) SetProgress(ctx context.Context, siteID int64, progress int) error {
	tag, err := t.tx.Exec(ctx,
		`UPDATE sites SET progress = $2, updated_at = NOW() WHERE id = $1`, siteID, progress)
	if err != nil {
		return fmt.Errorf("sites: set progress: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: site %d", shared.ErrNotFound, siteID)
	}
	return nil
}

// HasProcurementActivity reports whether any request or bill references the site.
func (t *txRepo) HasProcurementActivity(ctx context.Context, siteID int64) (bool, error) {
	var exists bool
	err := t.tx.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM material_requests WHERE site_id = $1)
		    OR EXISTS (SELECT 1 FROM bills WHERE site_id = $1)`, siteID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("sites: activity check: %w", err)
	}
	return exists, nil
}

func (t *txRepo) Delete(ctx context.Context, siteID int64) error {
	if _, err := t.tx.Exec(ctx,
		`UPDATE supervisors SET assigned_site_id = NULL WHERE assigned_site_id = $1`, siteID); err != nil {
		return fmt.Errorf("sites: unlink supervisors: %w", err)
	}
	tag, err := t.tx.Exec(ctx, `DELETE FROM sites WHERE id = $1`, siteID)
	if err != nil {
		return fmt.Errorf("sites: delete: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: site %d", shared.ErrNotFound, siteID)
	}
	return nil
}
