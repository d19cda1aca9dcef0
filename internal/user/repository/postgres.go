package repository

import (
	"context"
	"database/sql"
	"errors"

	"cloudlab-control-plane/internal/user/domain"
)

type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns a user repository that uses the given db for persistence.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const userColumns = `id, COALESCE(org_id::text, ''), email, display_name, daily_usage_minutes, daily_usage_date, created_at`

// GetByID returns the user for id, or nil if not found.
// It returns an error only for database failures, not for missing rows.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	return scanUser(row)
}

// GetByEmail returns the user with the given email, or nil if not found.
func (r *PostgresRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email)
	return scanUser(row)
}

// Create persists the user to the database. The user must have ID set.
func (r *PostgresRepository) Create(ctx context.Context, u *domain.User) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO users (id, org_id, email, display_name, daily_usage_minutes, daily_usage_date, created_at)
		VALUES ($1, NULLIF($2, '')::uuid, $3, $4, $5, $6, $7)`,
		u.ID, u.OrgID, u.Email, u.Name, u.DailyUsageMinutes, u.DailyUsageDate, u.CreatedAt,
	)
	return err
}

// UpdateDailyUsage persists the daily usage counter and its date together.
func (r *PostgresRepository) UpdateDailyUsage(ctx context.Context, userID string, minutes int, date string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE users SET daily_usage_minutes = $2, daily_usage_date = $3 WHERE id = $1`,
		userID, minutes, date,
	)
	return err
}

func scanUser(row *sql.Row) (*domain.User, error) {
	var u domain.User
	err := row.Scan(&u.ID, &u.OrgID, &u.Email, &u.Name, &u.DailyUsageMinutes, &u.DailyUsageDate, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &u, nil
}
