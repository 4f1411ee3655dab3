package requests

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/buildledger/buildledger/internal/platform/db"
	"github.com/buildledger/buildledger/internal/shared"
)

// Repository provides PostgreSQL backed persistence for material requests.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes transactional request operations.
type TxRepository interface {
	Insert(ctx context.Context, req MaterialRequest) (int64, error)
	InsertLine(ctx context.Context, requestID int64, line MaterialLine) error
	// UpdateStatusIfPending performs the pending-state transition as a
	// single compare-and-set. It reports false when the request was not
	// pending, without telling apart a missing row.
	UpdateStatusIfPending(ctx context.Context, id int64, status Status, reviewedBy int64, reason string) (bool, error)
	DeleteIfPending(ctx context.Context, id int64) (bool, error)
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

const headerColumns = `id, site_id, requested_by, urgency, status, notes, reviewed_by, rejection_reason, created_at, updated_at`

func scanHeader(row pgx.Row) (MaterialRequest, error) {
	var m MaterialRequest
	err := row.Scan(&m.ID, &m.SiteID, &m.RequestedBy, &m.Urgency, &m.Status, &m.Notes,
		&m.ReviewedBy, &m.RejectionReason, &m.CreatedAt, &m.UpdatedAt)
	return m, err
}

// Get returns a request with its material lines.
func (r *Repository) Get(ctx context.Context, id int64) (MaterialRequest, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+headerColumns+` FROM material_requests WHERE id = $1`, id)
	m, err := scanHeader(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return MaterialRequest{}, fmt.Errorf("%w: request %d", shared.ErrNotFound, id)
	}
	if err != nil {
		return MaterialRequest{}, fmt.Errorf("requests: get: %w", err)
	}

	lines, err := r.lines(ctx, id)
	if err != nil {
		return MaterialRequest{}, err
	}
	m.Materials = lines
	return m, nil
}

func (r *Repository) lines(ctx context.Context, requestID int64) ([]MaterialLine, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, material_name, quantity, unit FROM request_materials WHERE request_id = $1 ORDER BY id`,
		requestID)
	if err != nil {
		return nil, fmt.Errorf("requests: lines: %w", err)
	}
	defer rows.Close()

	var out []MaterialLine
	for rows.Next() {
		var l MaterialLine
		if err := rows.Scan(&l.ID, &l.MaterialName, &l.Quantity, &l.Unit); err != nil {
			return nil, fmt.Errorf("requests: scan line: %w", err)
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// ListFilter narrows List output.
type ListFilter struct {
	SiteID  int64
	Status  Status
	Urgency Urgency
}

// List returns request headers in stored order. Priority ordering is the
// service's job.
func (r *Repository) List(ctx context.Context, filter ListFilter) ([]MaterialRequest, error) {
	query := `SELECT ` + headerColumns + ` FROM material_requests WHERE 1=1`
	args := []any{}
	if filter.SiteID > 0 {
		args = append(args, filter.SiteID)
		query += fmt.Sprintf(` AND site_id = $%d`, len(args))
	}
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		query += fmt.Sprintf(` AND status = $%d`, len(args))
	}
	if filter.Urgency != "" {
		args = append(args, string(filter.Urgency))
		query += fmt.Sprintf(` AND urgency = $%d`, len(args))
	}
	query += ` ORDER BY created_at`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("requests: list: %w", err)
	}
	defer rows.Close()

	var out []MaterialRequest
	for rows.Next() {
		m, err := scanHeader(rows)
		if err != nil {
			return nil, fmt.Errorf("requests: scan: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// SiteSupervisorUserID resolves the user account supervising a site.
func (r *Repository) SiteSupervisorUserID(ctx context.Context, siteID int64) (int64, bool, error) {
	var userID *int64
	err := r.pool.QueryRow(ctx, `
		SELECT sup.user_id
		FROM sites s
		JOIN supervisors sup ON sup.id = s.supervisor_id
		WHERE s.id = $1`, siteID).Scan(&userID)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("requests: site supervisor: %w", err)
	}
	if userID == nil {
		return 0, false, nil
	}
	return *userID, true, nil
}

// SiteExists reports whether a site row exists.
func (r *Repository) SiteExists(ctx context.Context, siteID int64) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM sites WHERE id = $1)`, siteID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("requests: site check: %w", err)
	}
	return exists, nil
}

// UserExists reports whether a user row exists.
func (r *Repository) UserExists(ctx context.Context, userID int64) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM users WHERE id = $1)`, userID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("requests: user check: %w", err)
	}
	return exists, nil
}

func (t *txRepo) Insert(ctx context.Context, req MaterialRequest) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `
		INSERT INTO material_requests (site_id, requested_by, urgency, status, notes)
		VALUES ($1, $2, $3, 'pending', $4)
		RETURNING id`,
		req.SiteID, req.RequestedBy, string(req.Urgency), req.Notes).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("requests: insert: %w", err)
	}
	return id, nil
}

func (t *txRepo) InsertLine(ctx context.Context, requestID int64, line MaterialLine) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO request_materials (request_id, material_name, quantity, unit)
		VALUES ($1, $2, $3, $4)`,
		requestID, line.MaterialName, line.Quantity, line.Unit)
	if err != nil {
		return fmt.Errorf("requests: insert line: %w", err)
	}
	return nil
}

func (t *txRepo) UpdateStatusIfPending(ctx context.Context, id int64, status Status, reviewedBy int64, reason string) (bool, error) {
	tag, err := t.tx.Exec(ctx, `
		UPDATE material_requests
		SET status = $2, reviewed_by = $3, rejection_reason = $4, updated_at = NOW()
		WHERE id = $1 AND status = 'pending'`,
		id, string(status), reviewedBy, reason)
	if err != nil {
		return false, fmt.Errorf("requests: update status: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (t *txRepo) DeleteIfPending(ctx context.Context, id int64) (bool, error) {
	if _, err := t.tx.Exec(ctx, `
		DELETE FROM request_materials
		WHERE request_id = $1
		  AND EXISTS (SELECT 1 FROM material_requests WHERE id = $1 AND status = 'pending')`, id); err != nil {
		return false, fmt.Errorf("requests: delete lines: %w", err)
	}
	tag, err := t.tx.Exec(ctx,
		`DELETE FROM material_requests WHERE id = $1 AND status = 'pending'`, id)
	if err != nil {
		return false, fmt.Errorf("requests: delete: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}
