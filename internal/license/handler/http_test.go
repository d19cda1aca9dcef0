package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"cloudlab-control-plane/internal/license/service"
	orgdomain "cloudlab-control-plane/internal/organization/domain"
	purchasedomain "cloudlab-control-plane/internal/purchase/domain"
	"cloudlab-control-plane/internal/server/middleware"
)

type mockLicenseService struct {
	purchase    *purchasedomain.Purchase
	assignErr   error
	pool        *orgdomain.LicensePool
	purchaseErr error
	unassignErr error

	gotOrgID      string
	gotUserID     string
	gotCourseID   string
	gotQuantity   int
	gotDuration   int
	gotPurchaseID string
}

func (m *mockLicenseService) AssignCourse(ctx context.Context, orgID, userID, courseID string) (*purchasedomain.Purchase, error) {
	m.gotOrgID, m.gotUserID, m.gotCourseID = orgID, userID, courseID
	return m.purchase, m.assignErr
}

func (m *mockLicenseService) PurchaseLicenses(ctx context.Context, orgID, courseID string, quantity, durationDays int) (*orgdomain.LicensePool, error) {
	m.gotOrgID, m.gotCourseID = orgID, courseID
	m.gotQuantity, m.gotDuration = quantity, durationDays
	return m.pool, m.purchaseErr
}

func (m *mockLicenseService) Unassign(ctx context.Context, purchaseID string) error {
	m.gotPurchaseID = purchaseID
	return m.unassignErr
}

// newTestServer stamps the caller identity the auth middleware would set.
func newTestServer(svc LicenseService) *httptest.Server {
	return newTestServerAs(svc, "user-1", "org-1")
}

func newTestServerAs(svc LicenseService, userID, orgID string) *httptest.Server {
	mux := http.NewServeMux()
	New(svc).Register(mux)
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if userID != "" {
			r = r.WithContext(middleware.WithIdentity(r.Context(), userID, orgID))
		}
		mux.ServeHTTP(w, r)
	}))
}

func doJSON(t *testing.T, method, url, body string) (*http.Response, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer resp.Body.Close()
	var out map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	return resp, out
}

func TestPurchaseLicenses_Created(t *testing.T) {
	svc := &mockLicenseService{pool: &orgdomain.LicensePool{
		OrgID:     "org-1",
		CourseID:  "course-1",
		Total:     25,
		Used:      5,
		ExpiresAt: time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC),
	}}
	srv := newTestServer(svc)
	defer srv.Close()

	resp, body := doJSON(t, http.MethodPost, srv.URL+"/api/orgs/org-1/licenses",
		`{"courseId":"course-1","quantity":20,"durationDays":180}`)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status: got %d, want 201", resp.StatusCode)
	}
	if svc.gotOrgID != "org-1" || svc.gotCourseID != "course-1" || svc.gotQuantity != 20 || svc.gotDuration != 180 {
		t.Errorf("service args: org %q course %q qty %d dur %d",
			svc.gotOrgID, svc.gotCourseID, svc.gotQuantity, svc.gotDuration)
	}
	if body["available"] != float64(20) {
		t.Errorf("available: got %v", body["available"])
	}
	if body["expiresAt"] != "2026-09-01T00:00:00Z" {
		t.Errorf("expiresAt: got %v", body["expiresAt"])
	}
}

func TestPurchaseLicenses_BadDuration(t *testing.T) {
	svc := &mockLicenseService{purchaseErr: service.ErrBadDuration}
	srv := newTestServer(svc)
	defer srv.Close()

	resp, body := doJSON(t, http.MethodPost, srv.URL+"/api/orgs/org-1/licenses",
		`{"courseId":"course-1","quantity":5,"durationDays":7}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status: got %d, want 400", resp.StatusCode)
	}
	if body["code"] != "bad_request" {
		t.Errorf("error code: got %v", body["code"])
	}
}

func TestPurchaseLicenses_RejectsUnknownFields(t *testing.T) {
	svc := &mockLicenseService{}
	srv := newTestServer(svc)
	defer srv.Close()

	resp, _ := doJSON(t, http.MethodPost, srv.URL+"/api/orgs/org-1/licenses",
		`{"courseId":"course-1","quantity":5,"durationDays":90,"seats":3}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status: got %d, want 400", resp.StatusCode)
	}
}

func TestAssignCourse_Created(t *testing.T) {
	svc := &mockLicenseService{purchase: &purchasedomain.Purchase{
		ID:              "purchase-1",
		UserID:          "user-1",
		CourseID:        "course-1",
		OrgID:           "org-1",
		Status:          purchasedomain.StatusUnprovisioned,
		MaxLaunches:     10,
		AccessExpiresAt: time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC),
	}}
	srv := newTestServer(svc)
	defer srv.Close()

	resp, body := doJSON(t, http.MethodPost, srv.URL+"/api/orgs/org-1/assignments",
		`{"userId":"user-1","courseId":"course-1"}`)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status: got %d, want 201", resp.StatusCode)
	}
	if svc.gotOrgID != "org-1" || svc.gotUserID != "user-1" || svc.gotCourseID != "course-1" {
		t.Errorf("service args: org %q user %q course %q", svc.gotOrgID, svc.gotUserID, svc.gotCourseID)
	}
	if body["id"] != "purchase-1" || body["status"] != "unprovisioned" {
		t.Errorf("body: got %v", body)
	}
}

func TestAssignCourse_MissingFields(t *testing.T) {
	svc := &mockLicenseService{}
	srv := newTestServer(svc)
	defer srv.Close()

	resp, _ := doJSON(t, http.MethodPost, srv.URL+"/api/orgs/org-1/assignments",
		`{"userId":"user-1"}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status: got %d, want 400", resp.StatusCode)
	}
	if svc.gotUserID != "" {
		t.Error("service called despite missing courseId")
	}
}

func TestAssignCourse_ErrorMapping(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode int
		wantBody string
	}{
		{"org missing", service.ErrOrgNotFound, http.StatusNotFound, "not_found"},
		{"user missing", service.ErrUserNotFound, http.StatusNotFound, "not_found"},
		{"user outside org", service.ErrUserNotInOrg, http.StatusForbidden, "user_not_in_org"},
		{"pool exhausted", service.ErrNoSeatsAvailable, http.StatusConflict, "no_seats_available"},
		{"duplicate", service.ErrAlreadyAssigned, http.StatusConflict, "already_assigned"},
		{"unexpected", errors.New("boom"), http.StatusInternalServerError, "internal"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &mockLicenseService{assignErr: tt.err}
			srv := newTestServer(svc)
			defer srv.Close()

			resp, body := doJSON(t, http.MethodPost, srv.URL+"/api/orgs/org-1/assignments",
				`{"userId":"user-1","courseId":"course-1"}`)
			if resp.StatusCode != tt.wantCode {
				t.Errorf("status: got %d, want %d", resp.StatusCode, tt.wantCode)
			}
			if body["code"] != tt.wantBody {
				t.Errorf("error code: got %v, want %q", body["code"], tt.wantBody)
			}
		})
	}
}

func TestAssignCourse_ForeignOrgForbidden(t *testing.T) {
	svc := &mockLicenseService{}
	srv := newTestServerAs(svc, "user-1", "org-2")
	defer srv.Close()

	resp, body := doJSON(t, http.MethodPost, srv.URL+"/api/orgs/org-1/assignments",
		`{"userId":"user-1","courseId":"course-1"}`)
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("status: got %d, want 403", resp.StatusCode)
	}
	if body["code"] != "forbidden" {
		t.Errorf("error code: got %v", body["code"])
	}
	if svc.gotUserID != "" {
		t.Error("service called for foreign org")
	}
}

func TestPurchaseLicenses_NoIdentityRejected(t *testing.T) {
	svc := &mockLicenseService{}
	srv := newTestServerAs(svc, "", "")
	defer srv.Close()

	resp, body := doJSON(t, http.MethodPost, srv.URL+"/api/orgs/org-1/licenses",
		`{"courseId":"course-1","quantity":5,"durationDays":90}`)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status: got %d, want 401", resp.StatusCode)
	}
	if body["code"] != "unauthenticated" {
		t.Errorf("error code: got %v", body["code"])
	}
}

func TestUnassign_Ok(t *testing.T) {
	svc := &mockLicenseService{}
	srv := newTestServer(svc)
	defer srv.Close()

	resp, body := doJSON(t, http.MethodDelete, srv.URL+"/api/purchases/purchase-1", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status: got %d, want 200", resp.StatusCode)
	}
	if svc.gotPurchaseID != "purchase-1" {
		t.Errorf("purchase id: got %q", svc.gotPurchaseID)
	}
	if body["status"] != "unassigned" {
		t.Errorf("body: got %v", body)
	}
}

func TestUnassign_ActivePurchaseConflicts(t *testing.T) {
	svc := &mockLicenseService{unassignErr: service.ErrPurchaseActive}
	srv := newTestServer(svc)
	defer srv.Close()

	resp, body := doJSON(t, http.MethodDelete, srv.URL+"/api/purchases/purchase-1", "")
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("status: got %d, want 409", resp.StatusCode)
	}
	if body["code"] != "purchase_active" {
		t.Errorf("error code: got %v", body["code"])
	}
}
