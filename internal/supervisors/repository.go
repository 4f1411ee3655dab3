package supervisors

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/buildledger/buildledger/internal/shared"
)

// Repository defines data access for the supervisor catalog.
type Repository interface {
	List(ctx context.Context, search string) ([]Supervisor, error)
	Get(ctx context.Context, id int64) (Supervisor, error)
	GetByUserID(ctx context.Context, userID int64) (Supervisor, error)
	Create(ctx context.Context, sup Supervisor) (Supervisor, error)
	Update(ctx context.Context, id int64, sup Supervisor) error
	Delete(ctx context.Context, id int64) error
}

type repository struct {
	db *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL backed repository.
func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

const columns = `id, user_id, name, email, phone, status, assigned_site_id,
completed_projects, rating, created_at, updated_at`

func scan(row pgx.Row) (Supervisor, error) {
	var s Supervisor
	err := row.Scan(&s.ID, &s.UserID, &s.Name, &s.Email, &s.Phone, &s.Status,
		&s.AssignedSiteID, &s.CompletedProjects, &s.Rating, &s.CreatedAt, &s.UpdatedAt)
	return s, err
}

func (r *repository) List(ctx context.Context, search string) ([]Supervisor, error) {
	query := `SELECT ` + columns + ` FROM supervisors`
	args := []any{}
	if search != "" {
		query += ` WHERE name ILIKE $1 OR email ILIKE $1`
		args = append(args, "%"+search+"%")
	}
	query += ` ORDER BY name`

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("supervisors: list: %w", err)
	}
	defer rows.Close()

	var out []Supervisor
	for rows.Next() {
		s, err := scan(rows)
		if err != nil {
			return nil, fmt.Errorf("supervisors: scan: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *repository) Get(ctx context.Context, id int64) (Supervisor, error) {
	s, err := scan(r.db.QueryRow(ctx, `SELECT `+columns+` FROM supervisors WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Supervisor{}, fmt.Errorf("%w: supervisor %d", shared.ErrNotFound, id)
	}
	if err != nil {
		return Supervisor{}, fmt.Errorf("supervisors: get: %w", err)
	}
	return s, nil
}

func (r *repository) GetByUserID(ctx context.Context, userID int64) (Supervisor, error) {
	s, err := scan(r.db.QueryRow(ctx, `SELECT `+columns+` FROM supervisors WHERE user_id = $1`, userID))
	if errors.Is(err, pgx.ErrNoRows) {
		return Supervisor{}, fmt.Errorf("%w: no supervisor for user %d", shared.ErrNotFound, userID)
	}
	if err != nil {
		return Supervisor{}, fmt.Errorf("supervisors: get by user: %w", err)
	}
	return s, nil
}

func (r *repository) Create(ctx context.Context, sup Supervisor) (Supervisor, error) {
	row := r.db.QueryRow(ctx, `
		INSERT INTO supervisors (user_id, name, email, phone, status, completed_projects, rating)
		VALUES ($1, $2, $3, $4, 'active', $5, $6)
		RETURNING `+columns,
		sup.UserID, sup.Name, sup.Email, sup.Phone, sup.CompletedProjects, sup.Rating)
	created, err := scan(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return Supervisor{}, fmt.Errorf("%w: supervisor email already registered", shared.ErrConflict)
		}
		return Supervisor{}, fmt.Errorf("supervisors: create: %w", err)
	}
	return created, nil
}

func (r *repository) Update(ctx context.Context, id int64, sup Supervisor) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE supervisors
		SET name = $2, email = $3, phone = $4, status = $5,
		    completed_projects = $6, rating = $7, updated_at = NOW()
		WHERE id = $1`,
		id, sup.Name, sup.Email, sup.Phone, sup.Status, sup.CompletedProjects, sup.Rating)
	if err != nil {
		return fmt.Errorf("supervisors: update: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: supervisor %d", shared.ErrNotFound, id)
	}
	return nil
}

func (r *repository) Delete(ctx context.Context, id int64) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM supervisors WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("supervisors: delete: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: supervisor %d", shared.ErrNotFound, id)
	}
	return nil
}
