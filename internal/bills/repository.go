package bills

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/buildledger/buildledger/internal/platform/db"
	"github.com/buildledger/buildledger/internal/shared"
)

// Repository provides PostgreSQL backed persistence for bills.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// SiteBudget is the budget position of a site after a spend application.
type SiteBudget struct {
	SpentBudget float64
	TotalBudget float64
	OverBudget  bool
}

// TxRepository exposes transactional bill operations.
type TxRepository interface {
	// RequestStateForUpdate locks the request row and returns its site
	// and lifecycle status.
	RequestStateForUpdate(ctx context.Context, requestID int64) (siteID int64, status string, err error)
	CountLiveBills(ctx context.Context, requestID int64) (int, error)
	Insert(ctx context.Context, bill Bill) (int64, error)
	InsertItem(ctx context.Context, billID int64, item BillItem) error
	AdjustPendingBills(ctx context.Context, siteID int64, delta int) error
	UpdateStatusIfPending(ctx context.Context, id int64, status Status, actorID int64, reason string) (bool, error)
	// ApplySiteSpend moves the approved amount onto the site budget,
	// drops the pending counter and recomputes the over-budget flag in
	// one statement.
	ApplySiteSpend(ctx context.Context, siteID int64, amount float64) (SiteBudget, error)
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

const billColumns = `id, request_id, vendor_id, site_id, gst_percent, total_amount, status,
created_by, approved_by, rejected_by, rejection_reason, created_at, updated_at`

func scanBill(row pgx.Row) (Bill, error) {
	var b Bill
	err := row.Scan(&b.ID, &b.RequestID, &b.VendorID, &b.SiteID, &b.GSTPercent, &b.TotalAmount,
		&b.Status, &b.CreatedBy, &b.ApprovedBy, &b.RejectedBy, &b.RejectionReason,
		&b.CreatedAt, &b.UpdatedAt)
	return b, err
}

// Get returns a bill with its items.
func (r *Repository) Get(ctx context.Context, id int64) (Bill, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+billColumns+` FROM bills WHERE id = $1`, id)
	b, err := scanBill(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Bill{}, fmt.Errorf("%w: bill %d", shared.ErrNotFound, id)
	}
	if err != nil {
		return Bill{}, fmt.Errorf("bills: get: %w", err)
	}

	rows, err := r.pool.Query(ctx,
		`SELECT id, material_name, quantity, unit_price FROM bill_items WHERE bill_id = $1 ORDER BY id`, id)
	if err != nil {
		return Bill{}, fmt.Errorf("bills: items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var it BillItem
		if err := rows.Scan(&it.ID, &it.MaterialName, &it.Quantity, &it.UnitPrice); err != nil {
			return Bill{}, fmt.Errorf("bills: scan item: %w", err)
		}
		b.Items = append(b.Items, it)
	}
	return b, rows.Err()
}

// ListFilter narrows List output.
type ListFilter struct {
	SiteID   int64
	VendorID int64
	Status   Status
}

// List returns bill headers newest first.
func (r *Repository) List(ctx context.Context, filter ListFilter) ([]Bill, error) {
	query := `SELECT ` + billColumns + ` FROM bills WHERE 1=1`
	args := []any{}
	if filter.SiteID > 0 {
		args = append(args, filter.SiteID)
		query += fmt.Sprintf(` AND site_id = $%d`, len(args))
	}
	if filter.VendorID > 0 {
		args = append(args, filter.VendorID)
		query += fmt.Sprintf(` AND vendor_id = $%d`, len(args))
	}
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		query += fmt.Sprintf(` AND status = $%d`, len(args))
	}
	query += ` ORDER BY created_at DESC`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("bills: list: %w", err)
	}
	defer rows.Close()

	var out []Bill
	for rows.Next() {
		b, err := scanBill(rows)
		if err != nil {
			return nil, fmt.Errorf("bills: scan: %w", err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// VendorExists reports whether a vendor row exists.
func (r *Repository) VendorExists(ctx context.Context, vendorID int64) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM vendors WHERE id = $1)`, vendorID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("bills: vendor check: %w", err)
	}
	return exists, nil
}

func (t *txRepo) RequestStateForUpdate(ctx context.Context, requestID int64) (int64, string, error) {
	var siteID int64
	var status string
	err := t.tx.QueryRow(ctx,
		`SELECT site_id, status FROM material_requests WHERE id = $1 FOR UPDATE`, requestID).
		Scan(&siteID, &status)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, "", fmt.Errorf("%w: request %d", shared.ErrNotFound, requestID)
	}
	if err != nil {
		return 0, "", fmt.Errorf("bills: lock request: %w", err)
	}
	return siteID, status, nil
}

func (t *txRepo) CountLiveBills(ctx context.Context, requestID int64) (int, error) {
	var n int
	err := t.tx.QueryRow(ctx,
		`SELECT COUNT(*) FROM bills WHERE request_id = $1 AND status <> 'rejected'`, requestID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("bills: count live: %w", err)
	}
	return n, nil
}

func (t *txRepo) Insert(ctx context.Context, bill Bill) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `
		INSERT INTO bills (request_id, vendor_id, site_id, gst_percent, total_amount, status, created_by)
		VALUES ($1, $2, $3, $4, $5, 'pending', $6)
		RETURNING id`,
		bill.RequestID, bill.VendorID, bill.SiteID, bill.GSTPercent, bill.TotalAmount, bill.CreatedBy).
		Scan(&id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			// The partial unique index backs up the in-transaction count
			// against concurrent creators.
			return 0, fmt.Errorf("%w: request %d already has a live bill", shared.ErrConflict, bill.RequestID)
		}
		return 0, fmt.Errorf("bills: insert: %w", err)
	}
	return id, nil
}

func (t *txRepo) InsertItem(ctx context.Context, billID int64, item BillItem) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO bill_items (bill_id, material_name, quantity, unit_price)
		VALUES ($1, $2, $3, $4)`,
		billID, item.MaterialName, item.Quantity, item.UnitPrice)
	if err != nil {
		return fmt.Errorf("bills: insert item: %w", err)
	}
	return nil
}

func (t *txRepo) AdjustPendingBills(ctx context.Context, siteID int64, delta int) error {
	tag, err := t.tx.Exec(ctx,
		`UPDATE sites SET pending_bills = pending_bills + $2, updated_at = NOW() WHERE id = $1`,
		siteID, delta)
	if err != nil {
		return fmt.Errorf("bills: adjust pending: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: site %d", shared.ErrNotFound, siteID)
	}
	return nil
}

func (t *txRepo) UpdateStatusIfPending(ctx context.Context, id int64, status Status, actorID int64, reason string) (bool, error) {
	var query string
	switch status {
	case StatusApproved:
		query = `UPDATE bills SET status = 'approved', approved_by = $2, updated_at = NOW()
			WHERE id = $1 AND status = 'pending'`
	case StatusRejected:
		query = `UPDATE bills SET status = 'rejected', rejected_by = $2, rejection_reason = $3, updated_at = NOW()
			WHERE id = $1 AND status = 'pending'`
	default:
		return false, fmt.Errorf("bills: unsupported transition to %q", status)
	}

	var tag pgconn.CommandTag
	var err error
	if status == StatusApproved {
		tag, err = t.tx.Exec(ctx, query, id, actorID)
	} else {
		tag, err = t.tx.Exec(ctx, query, id, actorID, reason)
	}
	if err != nil {
		return false, fmt.Errorf("bills: update status: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (t *txRepo) ApplySiteSpend(ctx context.Context, siteID int64, amount float64) (SiteBudget, error) {
	var b SiteBudget
	err := t.tx.QueryRow(ctx, `
		UPDATE sites
		SET spent_budget = spent_budget + $2,
		    pending_bills = pending_bills - 1,
		    over_budget = (spent_budget + $2) > total_budget,
		    updated_at = NOW()
		WHERE id = $1
		RETURNING spent_budget, total_budget, over_budget`,
		siteID, amount).Scan(&b.SpentBudget, &b.TotalBudget, &b.OverBudget)
	if errors.Is(err, pgx.ErrNoRows) {
		return SiteBudget{}, fmt.Errorf("%w: site %d", shared.ErrNotFound, siteID)
	}
	if err != nil {
		return SiteBudget{}, fmt.Errorf("bills: apply spend: %w", err)
	}
	return b, nil
}

func (t *txRepo) DeleteIfPending(ctx context.Context, id int64) (bool, error) {
	if _, err := t.tx.Exec(ctx, `
		DELETE FROM bill_items
		WHERE bill_id = $1
		  AND EXISTS (SELECT 1 FROM bills WHERE id = $1 AND status = 'pending')`, id); err != nil {
		return false, fmt.Errorf("bills: delete items: %w", err)
	}
	tag, err := t.tx.Exec(ctx, `DELETE FROM bills WHERE id = $1 AND status = 'pending'`, id)
	if err != nil {
		return false, fmt.Errorf("bills: delete: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}
