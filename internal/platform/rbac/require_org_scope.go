// Package rbac holds the org-scoping checks handlers apply on top of the
// auth middleware.
package rbac

import (
	"context"
	"errors"

	"cloudlab-control-plane/internal/server/middleware"
)

var (
	// ErrUnauthenticated is returned when no caller identity is on the context.
	ErrUnauthenticated = errors.New("org and user context required")
	// ErrForbidden is returned when the caller's org does not match the target org.
	ErrForbidden = errors.New("caller does not belong to this organization")
)

// RequireOrgScope ensures the caller is authenticated and the access token's
// org claim matches orgID. Returns the caller's user id on success.
func RequireOrgScope(ctx context.Context, orgID string) (userID string, err error) {
	callerOrg, okOrg := middleware.GetOrgID(ctx)
	userID, okUser := middleware.GetUserID(ctx)
	if !okOrg || callerOrg == "" || !okUser || userID == "" {
		return "", ErrUnauthenticated
	}
	if orgID == "" || callerOrg != orgID {
		return "", ErrForbidden
	}
	return userID, nil
}
