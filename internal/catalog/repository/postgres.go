package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"cloudlab-control-plane/internal/catalog/domain"
)

type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns a catalog repository that uses the given db for persistence.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const courseColumns = `id, code, title, vm_size, vm_image, location, requires_portal_access, tags, created_at`

// GetCourseByID returns the course for id, or nil if not found.
// It returns an error only for database failures, not for missing rows.
func (r *PostgresRepository) GetCourseByID(ctx context.Context, id string) (*domain.Course, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+courseColumns+` FROM courses WHERE id = $1`, id)
	return scanCourse(row)
}

// GetCourseByCode returns the course for code, or nil if not found.
func (r *PostgresRepository) GetCourseByCode(ctx context.Context, code string) (*domain.Course, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+courseColumns+` FROM courses WHERE code = $1`, code)
	return scanCourse(row)
}

// ListCourses returns all catalog courses ordered by code.
func (r *PostgresRepository) ListCourses(ctx context.Context) ([]*domain.Course, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+courseColumns+` FROM courses ORDER BY code`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var courses []*domain.Course
	for rows.Next() {
		c, err := scanCourse(rows)
		if err != nil {
			return nil, err
		}
		courses = append(courses, c)
	}
	return courses, rows.Err()
}

// CreateCourse persists the course to the database. The course must have ID set.
func (r *PostgresRepository) CreateCourse(ctx context.Context, c *domain.Course) error {
	tags, err := json.Marshal(c.Tags)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO courses (id, code, title, vm_size, vm_image, location, requires_portal_access, tags, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		c.ID, c.Code, c.Title, c.VMSize, c.VMImage, c.Location, c.RequiresPortalAccess, tags, c.CreatedAt,
	)
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCourse(row rowScanner) (*domain.Course, error) {
	var c domain.Course
	var tags []byte
	err := row.Scan(&c.ID, &c.Code, &c.Title, &c.VMSize, &c.VMImage, &c.Location,
		&c.RequiresPortalAccess, &tags, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	if len(tags) > 0 {
		if err := json.Unmarshal(tags, &c.Tags); err != nil {
			return nil, err
		}
	}
	return &c, nil
}
