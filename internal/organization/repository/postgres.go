package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	"cloudlab-control-plane/internal/organization/domain"
)

type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns an organization repository that uses the given db for persistence.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// GetOrganizationByID returns the organization for id, or nil if not found.
// It returns an error only for database failures, not for missing rows.
func (r *PostgresRepository) GetOrganizationByID(ctx context.Context, id string) (*domain.Org, error) {
	var o domain.Org
	err := r.db.QueryRowContext(ctx,
		`SELECT id, name, admin_email, created_at FROM organizations WHERE id = $1`, id,
	).Scan(&o.ID, &o.Name, &o.AdminEmail, &o.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &o, nil
}

// CreateOrganization persists the organization to the database. The organization must have ID set.
func (r *PostgresRepository) CreateOrganization(ctx context.Context, o *domain.Org) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO organizations (id, name, admin_email, created_at) VALUES ($1, $2, $3, $4)`,
		o.ID, o.Name, o.AdminEmail, o.CreatedAt,
	)
	return err
}

// GetLicensePool returns the pool for the org/course pair, or nil if not found.
func (r *PostgresRepository) GetLicensePool(ctx context.Context, orgID, courseID string) (*domain.LicensePool, error) {
	var p domain.LicensePool
	err := r.db.QueryRowContext(ctx, `
		SELECT id, org_id, course_id, total, used, expires_at, created_at
		FROM org_licenses WHERE org_id = $1 AND course_id = $2`, orgID, courseID,
	).Scan(&p.ID, &p.OrgID, &p.CourseID, &p.Total, &p.Used, &p.ExpiresAt, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &p, nil
}

// ConsumeLicense atomically takes one seat from the pool. The WHERE clause is
// the whole concurrency story: two racing assignments both run the UPDATE, and
// the one that sees used = total (or an expired pool) matches zero rows.
func (r *PostgresRepository) ConsumeLicense(ctx context.Context, orgID, courseID string, now time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE org_licenses SET used = used + 1
		WHERE org_id = $1 AND course_id = $2 AND used < total AND expires_at > $3`,
		orgID, courseID, now,
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// ReleaseLicense returns one seat to the pool. No-op when used is already zero.
func (r *PostgresRepository) ReleaseLicense(ctx context.Context, orgID, courseID string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE org_licenses SET used = used - 1
		WHERE org_id = $1 AND course_id = $2 AND used > 0`,
		orgID, courseID,
	)
	return err
}

// AddLicenses adds quantity seats, creating the pool if needed; the pool expiry
// becomes the later of the existing expiry and expiresAt.
func (r *PostgresRepository) AddLicenses(ctx context.Context, orgID, courseID string, quantity int, expiresAt time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO org_licenses (id, org_id, course_id, total, used, expires_at)
		VALUES ($1, $2, $3, $4, 0, $5)
		ON CONFLICT ON CONSTRAINT org_licenses_org_course_unique DO UPDATE SET
			total = org_licenses.total + EXCLUDED.total,
			expires_at = GREATEST(org_licenses.expires_at, EXCLUDED.expires_at)`,
		uuid.NewString(), orgID, courseID, quantity, expiresAt,
	)
	return err
}
