package vendors

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/buildledger/buildledger/internal/shared"
)

// Repository defines data access for the vendor catalog.
type Repository interface {
	List(ctx context.Context, search string, category Category) ([]Vendor, error)
	Get(ctx context.Context, id int64) (Vendor, error)
	Create(ctx context.Context, v Vendor) (Vendor, error)
	Update(ctx context.Context, id int64, v Vendor) error
	Delete(ctx context.Context, id int64) error
	HasBills(ctx context.Context, id int64) (bool, error)
	AssignSite(ctx context.Context, vendorID, siteID int64) error
	UnassignSite(ctx context.Context, vendorID, siteID int64) error
	SiteIDs(ctx context.Context, vendorID int64) ([]int64, error)
}

type repository struct {
	db *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL backed repository.
func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

const columns = `id, name, category, email, phone, address, gst_number, status, rating, created_at, updated_at`

func scan(row pgx.Row) (Vendor, error) {
	var v Vendor
	err := row.Scan(&v.ID, &v.Name, &v.Category, &v.Email, &v.Phone, &v.Address,
		&v.GSTNumber, &v.Status, &v.Rating, &v.CreatedAt, &v.UpdatedAt)
	return v, err
}

func (r *repository) List(ctx context.Context, search string, category Category) ([]Vendor, error) {
	query := `SELECT ` + columns + ` FROM vendors WHERE 1=1`
	args := []any{}
	if search != "" {
		args = append(args, "%"+search+"%")
		query += fmt.Sprintf(` AND (name ILIKE $%d OR gst_number ILIKE $%d)`, len(args), len(args))
	}
	if category != "" {
		args = append(args, string(category))
		query += fmt.Sprintf(` AND category = $%d`, len(args))
	}
	query += ` ORDER BY name`

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("vendors: list: %w", err)
	}
	defer rows.Close()

	var out []Vendor
	for rows.Next() {
		v, err := scan(rows)
		if err != nil {
			return nil, fmt.Errorf("vendors: scan: %w", err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func (r *repository) Get(ctx context.Context, id int64) (Vendor, error) {
	v, err := scan(r.db.QueryRow(ctx, `SELECT `+columns+` FROM vendors WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Vendor{}, fmt.Errorf("%w: vendor %d", shared.ErrNotFound, id)
	}
	if err != nil {
		return Vendor{}, fmt.Errorf("vendors: get: %w", err)
	}
	siteIDs, err := r.SiteIDs(ctx, id)
	if err != nil {
		return Vendor{}, err
	}
	v.SiteIDs = siteIDs
	return v, nil
}

func (r *repository) Create(ctx context.Context, v Vendor) (Vendor, error) {
	row := r.db.QueryRow(ctx, `
		INSERT INTO vendors (name, category, email, phone, address, gst_number, status, rating)
		VALUES ($1, $2, $3, $4, $5, $6, 'active', $7)
		RETURNING `+columns,
		v.Name, string(v.Category), v.Email, v.Phone, v.Address, v.GSTNumber, v.Rating)
	created, err := scan(row)
	if err != nil {
		return Vendor{}, fmt.Errorf("vendors: create: %w", err)
	}
	return created, nil
}

func (r *repository) Update(ctx context.Context, id int64, v Vendor) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE vendors
		SET name = $2, category = $3, email = $4, phone = $5, address = $6,
		    gst_number = $7, status = $8, rating = $9, updated_at = NOW()
		WHERE id = $1`,
		id, v.Name, string(v.Category), v.Email, v.Phone, v.Address, v.GSTNumber, v.Status, v.Rating)
	if err != nil {
		return fmt.Errorf("vendors: update: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: vendor %d", shared.ErrNotFound, id)
	}
	return nil
}

func (r *repository) Delete(ctx context.Context, id int64) error {
	if _, err := r.db.Exec(ctx, `DELETE FROM vendor_sites WHERE vendor_id = $1`, id); err != nil {
		return fmt.Errorf("vendors: unlink sites: %w", err)
	}
	tag, err := r.db.Exec(ctx, `DELETE FROM vendors WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("vendors: delete: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: vendor %d", shared.ErrNotFound, id)
	}
	return nil
}

// HasBills reports whether any bill references the vendor.
func (r *repository) HasBills(ctx context.Context, id int64) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM bills WHERE vendor_id = $1)`, id).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("vendors: bill check: %w", err)
	}
	return exists, nil
}

func (r *repository) AssignSite(ctx context.Context, vendorID, siteID int64) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO vendor_sites (vendor_id, site_id) VALUES ($1, $2)`, vendorID, siteID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			switch pgErr.Code {
			case "23505":
				return fmt.Errorf("%w: vendor %d already serves site %d", shared.ErrConflict, vendorID, siteID)
			case "23503":
				return fmt.Errorf("%w: vendor or site does not exist", shared.ErrNotFound)
			}
		}
		return fmt.Errorf("vendors: assign site: %w", err)
	}
	return nil
}

func (r *repository) UnassignSite(ctx context.Context, vendorID, siteID int64) error {
	tag, err := r.db.Exec(ctx,
		`DELETE FROM vendor_sites WHERE vendor_id = $1 AND site_id = $2`, vendorID, siteID)
	if err != nil {
		return fmt.Errorf("vendors: unassign site: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: vendor %d is not linked to site %d", shared.ErrNotFound, vendorID, siteID)
	}
	return nil
}

func (r *repository) SiteIDs(ctx context.Context, vendorID int64) ([]int64, error) {
	rows, err := r.db.Query(ctx,
		`SELECT site_id FROM vendor_sites WHERE vendor_id = $1 ORDER BY site_id`, vendorID)
	if err != nil {
		return nil, fmt.Errorf("vendors: site ids: %w", err)
	}
	defer rows.Close()

	var out []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("vendors: scan site id: %w", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}
