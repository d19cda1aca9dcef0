package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"cloudlab-control-plane/internal/purchase/domain"
)

type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns a purchase repository that uses the given db for persistence.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const purchaseColumns = `id, user_id, course_id, COALESCE(org_id::text, ''), status, launch_count,
	max_launches, total_minutes_used, access_expires_at, principal_name, container_name,
	snapshot_id, task_progress, created_at, updated_at`

// GetByID returns the purchase for id, or nil if not found.
// It returns an error only for database failures, not for missing rows.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*domain.Purchase, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+purchaseColumns+` FROM lab_purchases WHERE id = $1`, id)
	return scanPurchase(row)
}

// GetByUserAndCourse returns the user's purchase for the course, or nil if not found.
func (r *PostgresRepository) GetByUserAndCourse(ctx context.Context, userID, courseID string) (*domain.Purchase, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+purchaseColumns+` FROM lab_purchases WHERE user_id = $1 AND course_id = $2`,
		userID, courseID)
	return scanPurchase(row)
}

// ListByUser returns the user's purchases, newest first.
func (r *PostgresRepository) ListByUser(ctx context.Context, userID string) ([]*domain.Purchase, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+purchaseColumns+` FROM lab_purchases WHERE user_id = $1 ORDER BY created_at DESC`,
		userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.Purchase
	for rows.Next() {
		p, err := scanPurchase(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// Create persists the purchase to the database. The purchase must have ID set.
func (r *PostgresRepository) Create(ctx context.Context, p *domain.Purchase) error {
	progress, err := json.Marshal(p.TaskProgress)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO lab_purchases (id, user_id, course_id, org_id, status, launch_count,
			max_launches, total_minutes_used, access_expires_at, principal_name,
			container_name, snapshot_id, task_progress, created_at, updated_at)
		VALUES ($1, $2, $3, NULLIF($4, '')::uuid, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $14)`,
		p.ID, p.UserID, p.CourseID, p.OrgID, p.Status, p.LaunchCount,
		p.MaxLaunches, p.TotalMinutesUsed, p.AccessExpiresAt, p.PrincipalName,
		p.ContainerName, p.SnapshotID, progress, p.CreatedAt,
	)
	return err
}

// UpdateStatus sets the lifecycle status of the purchase.
func (r *PostgresRepository) UpdateStatus(ctx context.Context, id string, status domain.Status) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE lab_purchases SET status = $2, updated_at = now() WHERE id = $1`,
		id, status)
	return err
}

// IncrementLaunchCount bumps the launch counter only when it still holds
// current. A stale current means another launch committed first.
func (r *PostgresRepository) IncrementLaunchCount(ctx context.Context, id string, current int) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE lab_purchases SET launch_count = launch_count + 1, updated_at = now()
		WHERE id = $1 AND launch_count = $2 AND launch_count < max_launches`,
		id, current)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// SetProvisioned records the directory principal and container allocated on first launch.
func (r *PostgresRepository) SetProvisioned(ctx context.Context, id, principalName, containerName string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE lab_purchases SET principal_name = $2, container_name = $3, updated_at = now()
		WHERE id = $1`,
		id, principalName, containerName)
	return err
}

// SetSnapshot records the snapshot kept by a close; empty snapshotID clears it.
func (r *PostgresRepository) SetSnapshot(ctx context.Context, id, snapshotID string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE lab_purchases SET snapshot_id = $2, updated_at = now() WHERE id = $1`,
		id, snapshotID)
	return err
}

// ClearProvisioned drops principal, container, and snapshot after a full teardown.
func (r *PostgresRepository) ClearProvisioned(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE lab_purchases SET principal_name = '', container_name = '', snapshot_id = '',
			updated_at = now()
		WHERE id = $1`, id)
	return err
}

// AddMinutesUsed adds minutes to the cumulative usage total.
func (r *PostgresRepository) AddMinutesUsed(ctx context.Context, id string, minutes int) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE lab_purchases SET total_minutes_used = total_minutes_used + $2, updated_at = now()
		WHERE id = $1`, id, minutes)
	return err
}

// UpdateTaskProgress replaces the stored task progress map.
func (r *PostgresRepository) UpdateTaskProgress(ctx context.Context, id string, progress map[string]bool) error {
	b, err := json.Marshal(progress)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx,
		`UPDATE lab_purchases SET task_progress = $2, updated_at = now() WHERE id = $1`,
		id, b)
	return err
}

// AppendLaunchHistory opens a history row for a launch at the given time.
func (r *PostgresRepository) AppendLaunchHistory(ctx context.Context, purchaseID string, launchedAt time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO launch_history (purchase_id, launched_at) VALUES ($1, $2)`,
		purchaseID, launchedAt)
	return err
}

// CompleteLaunchHistory closes the most recent open history row.
func (r *PostgresRepository) CompleteLaunchHistory(ctx context.Context, purchaseID string, endedAt time.Time, minutes int) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE launch_history SET ended_at = $2, minutes = $3
		WHERE id = (
			SELECT id FROM launch_history
			WHERE purchase_id = $1 AND ended_at IS NULL
			ORDER BY launched_at DESC LIMIT 1
		)`, purchaseID, endedAt, minutes)
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPurchase(row rowScanner) (*domain.Purchase, error) {
	var p domain.Purchase
	var progress []byte
	err := row.Scan(&p.ID, &p.UserID, &p.CourseID, &p.OrgID, &p.Status, &p.LaunchCount,
		&p.MaxLaunches, &p.TotalMinutesUsed, &p.AccessExpiresAt, &p.PrincipalName,
		&p.ContainerName, &p.SnapshotID, &progress, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	if len(progress) > 0 {
		if err := json.Unmarshal(progress, &p.TaskProgress); err != nil {
			return nil, err
		}
	}
	return &p, nil
}
