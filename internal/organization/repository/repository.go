package repository

import (
	"context"
	"time"

	"cloudlab-control-plane/internal/organization/domain"
)

// Repository defines persistence for organizations and their license pools.
type Repository interface {
	GetOrganizationByID(ctx context.Context, id string) (*domain.Org, error)
	CreateOrganization(ctx context.Context, o *domain.Org) error

	GetLicensePool(ctx context.Context, orgID, courseID string) (*domain.LicensePool, error)
	// ConsumeLicense atomically takes one seat from the pool. Returns false when
	// the pool is missing, exhausted, or expired at now.
	ConsumeLicense(ctx context.Context, orgID, courseID string, now time.Time) (bool, error)
	// ReleaseLicense returns one seat to the pool. No-op when used is already zero.
	ReleaseLicense(ctx context.Context, orgID, courseID string) error
	// AddLicenses adds quantity seats, creating the pool if needed; the pool
	// expiry becomes the later of the existing expiry and expiresAt.
	AddLicenses(ctx context.Context, orgID, courseID string, quantity int, expiresAt time.Time) error
}
