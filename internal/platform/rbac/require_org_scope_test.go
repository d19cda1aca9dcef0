package rbac

import (
	"context"
	"errors"
	"testing"

	"cloudlab-control-plane/internal/server/middleware"
)

func TestRequireOrgScope_MatchingOrg(t *testing.T) {
	ctx := middleware.WithIdentity(context.Background(), "user-1", "org-1")
	userID, err := RequireOrgScope(ctx, "org-1")
	if err != nil {
		t.Fatalf("RequireOrgScope: %v", err)
	}
	if userID != "user-1" {
		t.Errorf("user id: got %q", userID)
	}
}

func TestRequireOrgScope_NoIdentity(t *testing.T) {
	_, err := RequireOrgScope(context.Background(), "org-1")
	if !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("got %v, want ErrUnauthenticated", err)
	}
}

func TestRequireOrgScope_ForeignOrg(t *testing.T) {
	ctx := middleware.WithIdentity(context.Background(), "user-1", "org-1")
	_, err := RequireOrgScope(ctx, "org-2")
	if !errors.Is(err, ErrForbidden) {
		t.Fatalf("got %v, want ErrForbidden", err)
	}
}

func TestRequireOrgScope_EmptyTargetOrg(t *testing.T) {
	ctx := middleware.WithIdentity(context.Background(), "user-1", "org-1")
	if _, err := RequireOrgScope(ctx, ""); !errors.Is(err, ErrForbidden) {
		t.Fatalf("got %v, want ErrForbidden", err)
	}
}
