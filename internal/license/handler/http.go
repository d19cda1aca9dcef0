// Package handler exposes license pool and assignment management over HTTP JSON.
package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"cloudlab-control-plane/internal/license/service"
	orgdomain "cloudlab-control-plane/internal/organization/domain"
	"cloudlab-control-plane/internal/platform/rbac"
	purchasedomain "cloudlab-control-plane/internal/purchase/domain"
	"cloudlab-control-plane/internal/server/httpjson"
)

// LicenseService is the license surface the handler needs.
type LicenseService interface {
	AssignCourse(ctx context.Context, orgID, userID, courseID string) (*purchasedomain.Purchase, error)
	PurchaseLicenses(ctx context.Context, orgID, courseID string, quantity, durationDays int) (*orgdomain.LicensePool, error)
	Unassign(ctx context.Context, purchaseID string) error
}

// Handler is the thin HTTP layer over the license service.
type Handler struct {
	svc LicenseService
}

// New returns a license Handler.
func New(svc LicenseService) *Handler {
	return &Handler{svc: svc}
}

// Register mounts the license routes on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/orgs/{id}/licenses", h.purchaseLicenses)
	mux.HandleFunc("POST /api/orgs/{id}/assignments", h.assignCourse)
	mux.HandleFunc("DELETE /api/purchases/{id}", h.unassign)
}

type purchaseLicensesRequest struct {
	CourseID     string `json:"courseId"`
	Quantity     int    `json:"quantity"`
	DurationDays int    `json:"durationDays"`
}

type poolResponse struct {
	OrgID     string `json:"orgId"`
	CourseID  string `json:"courseId"`
	Total     int    `json:"total"`
	Used      int    `json:"used"`
	Available int    `json:"available"`
	ExpiresAt string `json:"expiresAt"`
}

type assignRequest struct {
	UserID   string `json:"userId"`
	CourseID string `json:"courseId"`
}

type purchaseResponse struct {
	ID              string `json:"id"`
	UserID          string `json:"userId"`
	CourseID        string `json:"courseId"`
	OrgID           string `json:"orgId"`
	Status          string `json:"status"`
	MaxLaunches     int    `json:"maxLaunches"`
	AccessExpiresAt string `json:"accessExpiresAt"`
}

func (h *Handler) purchaseLicenses(w http.ResponseWriter, r *http.Request) {
	orgID := r.PathValue("id")
	if _, err := rbac.RequireOrgScope(r.Context(), orgID); err != nil {
		writeScopeError(w, err)
		return
	}
	var req purchaseLicensesRequest
	if err := httpjson.Decode(r, &req); err != nil {
		httpjson.WriteError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	pool, err := h.svc.PurchaseLicenses(r.Context(), orgID, req.CourseID, req.Quantity, req.DurationDays)
	if err != nil {
		writeLicenseError(w, err)
		return
	}
	httpjson.Write(w, http.StatusCreated, poolResponse{
		OrgID:     pool.OrgID,
		CourseID:  pool.CourseID,
		Total:     pool.Total,
		Used:      pool.Used,
		Available: pool.Available(),
		ExpiresAt: pool.ExpiresAt.UTC().Format(time.RFC3339),
	})
}

func (h *Handler) assignCourse(w http.ResponseWriter, r *http.Request) {
	orgID := r.PathValue("id")
	if _, err := rbac.RequireOrgScope(r.Context(), orgID); err != nil {
		writeScopeError(w, err)
		return
	}
	var req assignRequest
	if err := httpjson.Decode(r, &req); err != nil {
		httpjson.WriteError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	if req.UserID == "" || req.CourseID == "" {
		httpjson.WriteError(w, http.StatusBadRequest, "bad_request", "userId and courseId are required")
		return
	}
	p, err := h.svc.AssignCourse(r.Context(), orgID, req.UserID, req.CourseID)
	if err != nil {
		writeLicenseError(w, err)
		return
	}
	httpjson.Write(w, http.StatusCreated, purchaseResponse{
		ID:              p.ID,
		UserID:          p.UserID,
		CourseID:        p.CourseID,
		OrgID:           p.OrgID,
		Status:          string(p.Status),
		MaxLaunches:     p.MaxLaunches,
		AccessExpiresAt: p.AccessExpiresAt.UTC().Format(time.RFC3339),
	})
}

func (h *Handler) unassign(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Unassign(r.Context(), r.PathValue("id")); err != nil {
		writeLicenseError(w, err)
		return
	}
	httpjson.Write(w, http.StatusOK, map[string]string{"status": "unassigned"})
}

func writeScopeError(w http.ResponseWriter, err error) {
	if errors.Is(err, rbac.ErrForbidden) {
		httpjson.WriteError(w, http.StatusForbidden, "forbidden", err.Error())
		return
	}
	httpjson.WriteError(w, http.StatusUnauthorized, "unauthenticated", err.Error())
}

func writeLicenseError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrOrgNotFound),
		errors.Is(err, service.ErrUserNotFound),
		errors.Is(err, service.ErrCourseNotFound),
		errors.Is(err, service.ErrPurchaseNotFound):
		httpjson.WriteError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, service.ErrUserNotInOrg):
		httpjson.WriteError(w, http.StatusForbidden, "user_not_in_org", err.Error())
	case errors.Is(err, service.ErrNoSeatsAvailable):
		httpjson.WriteError(w, http.StatusConflict, "no_seats_available", err.Error())
	case errors.Is(err, service.ErrAlreadyAssigned):
		httpjson.WriteError(w, http.StatusConflict, "already_assigned", err.Error())
	case errors.Is(err, service.ErrPurchaseActive):
		httpjson.WriteError(w, http.StatusConflict, "purchase_active", err.Error())
	case errors.Is(err, service.ErrBadQuantity), errors.Is(err, service.ErrBadDuration):
		httpjson.WriteError(w, http.StatusBadRequest, "bad_request", err.Error())
	default:
		httpjson.WriteError(w, http.StatusInternalServerError, "internal", "internal error")
	}
}
