package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"cloudlab-control-plane/internal/audit/domain"
	"cloudlab-control-plane/internal/server/middleware"
)

type mockAuditRepo struct {
	logs []*domain.AuditLog
	err  error

	gotOrgID  string
	gotLimit  int32
	gotOffset int32
}

func (m *mockAuditRepo) GetByID(ctx context.Context, id string) (*domain.AuditLog, error) {
	return nil, nil
}

func (m *mockAuditRepo) ListByOrg(ctx context.Context, orgID string, limit, offset int32) ([]*domain.AuditLog, error) {
	m.gotOrgID = orgID
	m.gotLimit = limit
	m.gotOffset = offset
	return m.logs, m.err
}

func (m *mockAuditRepo) Create(ctx context.Context, a *domain.AuditLog) error {
	return nil
}

// identityMiddleware stands in for the auth middleware in tests.
func identityMiddleware(orgID string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if orgID != "" {
			r = r.WithContext(middleware.WithIdentity(r.Context(), "user-1", orgID))
		}
		next.ServeHTTP(w, r)
	})
}

func newAuditServer(repo *mockAuditRepo, orgID string) *httptest.Server {
	mux := http.NewServeMux()
	New(repo).Register(mux)
	return httptest.NewServer(identityMiddleware(orgID, mux))
}

func getJSON(t *testing.T, url string) (*http.Response, map[string]any) {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	var body map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	return resp, body
}

func TestList_ScopedToCallerOrg(t *testing.T) {
	repo := &mockAuditRepo{logs: []*domain.AuditLog{
		{
			ID:        "log-1",
			OrgID:     "org-1",
			UserID:    "user-1",
			Action:    "lab.launch",
			Resource:  "purchase-1",
			IP:        "203.0.113.7",
			CreatedAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		},
	}}
	srv := newAuditServer(repo, "org-1")
	defer srv.Close()

	resp, body := getJSON(t, srv.URL+"/api/audit")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status: got %d, want 200", resp.StatusCode)
	}
	if repo.gotOrgID != "org-1" {
		t.Errorf("org id: got %q", repo.gotOrgID)
	}
	if repo.gotLimit != defaultLimit || repo.gotOffset != 0 {
		t.Errorf("paging: limit %d offset %d", repo.gotLimit, repo.gotOffset)
	}
	entries, ok := body["entries"].([]any)
	if !ok || len(entries) != 1 {
		t.Fatalf("entries: got %v", body["entries"])
	}
	entry := entries[0].(map[string]any)
	if entry["action"] != "lab.launch" || entry["ip"] != "203.0.113.7" {
		t.Errorf("entry: got %v", entry)
	}
	if entry["createdAt"] != "2026-03-01T12:00:00Z" {
		t.Errorf("createdAt: got %v", entry["createdAt"])
	}
}

func TestList_PagingParams(t *testing.T) {
	repo := &mockAuditRepo{}
	srv := newAuditServer(repo, "org-1")
	defer srv.Close()

	resp, _ := getJSON(t, srv.URL+"/api/audit?limit=10&offset=20")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status: got %d, want 200", resp.StatusCode)
	}
	if repo.gotLimit != 10 || repo.gotOffset != 20 {
		t.Errorf("paging: limit %d offset %d", repo.gotLimit, repo.gotOffset)
	}
}

func TestList_OversizedLimitClamped(t *testing.T) {
	repo := &mockAuditRepo{}
	srv := newAuditServer(repo, "org-1")
	defer srv.Close()

	getJSON(t, srv.URL+"/api/audit?limit=9999")
	if repo.gotLimit != defaultLimit {
		t.Errorf("limit: got %d, want %d", repo.gotLimit, defaultLimit)
	}
}

func TestList_MissingIdentityRejected(t *testing.T) {
	repo := &mockAuditRepo{}
	srv := newAuditServer(repo, "")
	defer srv.Close()

	resp, body := getJSON(t, srv.URL+"/api/audit")
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status: got %d, want 401", resp.StatusCode)
	}
	if body["code"] != "unauthenticated" {
		t.Errorf("error code: got %v", body["code"])
	}
	if repo.gotOrgID != "" {
		t.Error("repository queried without identity")
	}
}

func TestList_RepositoryError(t *testing.T) {
	repo := &mockAuditRepo{err: errors.New("db down")}
	srv := newAuditServer(repo, "org-1")
	defer srv.Close()

	resp, _ := getJSON(t, srv.URL+"/api/audit")
	if resp.StatusCode != http.StatusInternalServerError {
		t.Fatalf("status: got %d, want 500", resp.StatusCode)
	}
}

func TestList_EmptyResultIsEmptyArray(t *testing.T) {
	repo := &mockAuditRepo{}
	srv := newAuditServer(repo, "org-1")
	defer srv.Close()

	_, body := getJSON(t, srv.URL+"/api/audit")
	entries, ok := body["entries"].([]any)
	if !ok {
		t.Fatalf("entries not an array: %v", body["entries"])
	}
	if len(entries) != 0 {
		t.Errorf("entries: got %d, want 0", len(entries))
	}
}
