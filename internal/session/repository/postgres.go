package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"cloudlab-control-plane/internal/session/domain"
)

type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns a session repository that uses the given db for persistence.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const sessionColumns = `id, purchase_id, user_id, status, container_name, vm_name, gateway_user,
	gateway_connection_id, portal_principal, portal_password, portal_object_id, portal_container,
	started_at, expires_at`

// GetByPurchase returns the purchase's live session, or nil if not found.
// It returns an error only for database failures, not for missing rows.
func (r *PostgresRepository) GetByPurchase(ctx context.Context, purchaseID string) (*domain.ActiveSession, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM active_sessions WHERE purchase_id = $1`, purchaseID)
	return scanSession(row)
}

// Create inserts the session row. A unique violation on the purchase id maps
// to ErrSessionExists so the caller can reject the duplicate launch.
func (r *PostgresRepository) Create(ctx context.Context, s *domain.ActiveSession) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO active_sessions (id, purchase_id, user_id, status, container_name, vm_name,
			gateway_user, gateway_connection_id, portal_principal, portal_password,
			portal_object_id, portal_container, started_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		s.ID, s.PurchaseID, s.UserID, s.Status, s.ContainerName, s.VMName,
		s.GatewayUser, s.ConnectionID, s.PortalPrincipal, s.PortalPassword,
		s.PortalObjectID, s.PortalContainer, s.StartedAt, s.ExpiresAt,
	)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return ErrSessionExists
	}
	return err
}

// UpdateStatus sets the session's lifecycle status.
func (r *PostgresRepository) UpdateStatus(ctx context.Context, id string, status domain.Status) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE active_sessions SET status = $2 WHERE id = $1`, id, status)
	return err
}

// SetConnection records the VM name, gateway connection, and running window.
func (r *PostgresRepository) SetConnection(ctx context.Context, id, vmName, connectionID string, startedAt, expiresAt time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE active_sessions SET vm_name = $2, gateway_connection_id = $3,
			started_at = $4, expires_at = $5
		WHERE id = $1`,
		id, vmName, connectionID, startedAt, expiresAt)
	return err
}

// SetPortalAccess records the portal identity fields.
func (r *PostgresRepository) SetPortalAccess(ctx context.Context, id, principal, password, objectID, container string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE active_sessions SET portal_principal = $2, portal_password = $3,
			portal_object_id = $4, portal_container = $5
		WHERE id = $1`,
		id, principal, password, objectID, container)
	return err
}

// Delete clears the session row. Deleting an absent row is a no-op.
func (r *PostgresRepository) Delete(ctx context.Context, purchaseID string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM active_sessions WHERE purchase_id = $1`, purchaseID)
	return err
}

// ListExpired returns sessions whose hard deadline passed before now.
func (r *PostgresRepository) ListExpired(ctx context.Context, now time.Time) ([]*domain.ActiveSession, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+sessionColumns+` FROM active_sessions WHERE expires_at < $1`, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.ActiveSession
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// ListPrincipals returns every portal principal on a live session.
func (r *PostgresRepository) ListPrincipals(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT portal_principal FROM active_sessions WHERE portal_principal <> ''`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*domain.ActiveSession, error) {
	var s domain.ActiveSession
	err := row.Scan(&s.ID, &s.PurchaseID, &s.UserID, &s.Status, &s.ContainerName, &s.VMName,
		&s.GatewayUser, &s.ConnectionID, &s.PortalPrincipal, &s.PortalPassword,
		&s.PortalObjectID, &s.PortalContainer, &s.StartedAt, &s.ExpiresAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &s, nil
}
