package repository

import (
	"context"

	"cloudlab-control-plane/internal/user/domain"
)

// Repository defines persistence for users.
type Repository interface {
	GetByID(ctx context.Context, id string) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	Create(ctx context.Context, u *domain.User) error
	// UpdateDailyUsage persists the daily usage counter and its date together.
	UpdateDailyUsage(ctx context.Context, userID string, minutes int, date string) error
}
