package repository

import (
	"context"
	"time"

	"cloudlab-control-plane/internal/purchase/domain"
)

// Repository defines persistence for lab purchases and their launch history.
type Repository interface {
	GetByID(ctx context.Context, id string) (*domain.Purchase, error)
	GetByUserAndCourse(ctx context.Context, userID, courseID string) (*domain.Purchase, error)
	ListByUser(ctx context.Context, userID string) ([]*domain.Purchase, error)
	Create(ctx context.Context, p *domain.Purchase) error

	UpdateStatus(ctx context.Context, id string, status domain.Status) error
	// IncrementLaunchCount bumps the launch counter only when it still holds
	// current; returns false when another launch won the race.
	IncrementLaunchCount(ctx context.Context, id string, current int) (bool, error)
	// SetProvisioned records the directory principal and container allocated on first launch.
	SetProvisioned(ctx context.Context, id, principalName, containerName string) error
	// SetSnapshot records the snapshot kept by a close; empty snapshotID clears it.
	SetSnapshot(ctx context.Context, id, snapshotID string) error
	// ClearProvisioned drops principal, container, and snapshot after a full teardown.
	ClearProvisioned(ctx context.Context, id string) error

	AddMinutesUsed(ctx context.Context, id string, minutes int) error
	UpdateTaskProgress(ctx context.Context, id string, progress map[string]bool) error

	// AppendLaunchHistory opens a history row for a launch at the given time.
	AppendLaunchHistory(ctx context.Context, purchaseID string, launchedAt time.Time) error
	// CompleteLaunchHistory closes the most recent open history row.
	CompleteLaunchHistory(ctx context.Context, purchaseID string, endedAt time.Time, minutes int) error
}
