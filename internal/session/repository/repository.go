package repository

import (
	"context"
	"errors"
	"time"

	"cloudlab-control-plane/internal/session/domain"
)

// ErrSessionExists is returned by Create when the purchase already has a live
// session row; the unique constraint is what rejects a concurrent duplicate launch.
var ErrSessionExists = errors.New("purchase already has an active session")

// Repository defines persistence for active sessions.
type Repository interface {
	GetByPurchase(ctx context.Context, purchaseID string) (*domain.ActiveSession, error)
	// Create inserts the session row. Returns ErrSessionExists when a row for
	// the purchase is already present.
	Create(ctx context.Context, s *domain.ActiveSession) error
	UpdateStatus(ctx context.Context, id string, status domain.Status) error
	// SetConnection records the VM name, gateway connection, and running window
	// once the compute step completes.
	SetConnection(ctx context.Context, id, vmName, connectionID string, startedAt, expiresAt time.Time) error
	SetPortalAccess(ctx context.Context, id, principal, password, objectID, container string) error
	// Delete clears the session row. Deleting an absent row is a no-op.
	Delete(ctx context.Context, purchaseID string) error
	// ListExpired returns sessions whose hard deadline passed before now.
	ListExpired(ctx context.Context, now time.Time) ([]*domain.ActiveSession, error)
	// ListPrincipals returns every portal principal on a live session.
	ListPrincipals(ctx context.Context) ([]string, error)
}
