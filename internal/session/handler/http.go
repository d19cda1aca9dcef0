// Package handler exposes the session orchestrator over HTTP JSON.
package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"cloudlab-control-plane/internal/compute"
	"cloudlab-control-plane/internal/guardrail"
	"cloudlab-control-plane/internal/server/httpjson"
	sessiondomain "cloudlab-control-plane/internal/session/domain"
	"cloudlab-control-plane/internal/session/service"
)

// SessionService is the orchestrator surface the handler needs.
type SessionService interface {
	Launch(ctx context.Context, purchaseID string) (*service.LaunchResult, error)
	Teardown(ctx context.Context, purchaseID string) (*sessiondomain.TeardownReport, error)
	Close(ctx context.Context, purchaseID string) error
	Restart(ctx context.Context, purchaseID string) error
	Status(ctx context.Context, purchaseID string) (*service.StatusView, error)
	ProvisionPortalAccess(ctx context.Context, purchaseID string) (*service.PortalCredentials, error)
	Console(ctx context.Context, purchaseID string) (*service.ConsoleAccess, error)
}

// Handler is the thin HTTP layer over the session orchestrator.
type Handler struct {
	svc SessionService
}

// New returns a session Handler.
func New(svc SessionService) *Handler {
	return &Handler{svc: svc}
}

// Register mounts the session routes on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/purchases/{id}/launch", h.launch)
	mux.HandleFunc("POST /api/purchases/{id}/teardown", h.teardown)
	mux.HandleFunc("POST /api/purchases/{id}/close", h.close)
	mux.HandleFunc("POST /api/purchases/{id}/restart", h.restart)
	mux.HandleFunc("GET /api/purchases/{id}/status", h.status)
	mux.HandleFunc("POST /api/purchases/{id}/portal-access", h.portalAccess)
	mux.HandleFunc("GET /api/purchases/{id}/console", h.console)
}

type sessionBody struct {
	ID            string `json:"id"`
	PurchaseID    string `json:"purchaseId"`
	Status        string `json:"status"`
	ContainerName string `json:"containerName"`
	VMName        string `json:"vmName,omitempty"`
	StartedAt     string `json:"startedAt"`
	ExpiresAt     string `json:"expiresAt"`
}

type launchResponse struct {
	Session    sessionBody `json:"session"`
	ConsoleURL string      `json:"consoleUrl,omitempty"`
	Portal     *portalBody `json:"portalCredentials,omitempty"`
}

type portalBody struct {
	PrincipalName string `json:"principalName"`
	Password      string `json:"password"`
}

type statusResponse struct {
	Status    string `json:"status"`
	Terminal  bool   `json:"terminal"`
	ExpiresAt string `json:"expiresAt,omitempty"`
}

type consoleResponse struct {
	URL       string `json:"url"`
	Token     string `json:"token"`
	ExpiresAt string `json:"expiresAt"`
}

func toSessionBody(s *sessiondomain.ActiveSession) sessionBody {
	return sessionBody{
		ID:            s.ID,
		PurchaseID:    s.PurchaseID,
		Status:        string(s.Status),
		ContainerName: s.ContainerName,
		VMName:        s.VMName,
		StartedAt:     s.StartedAt.UTC().Format(time.RFC3339),
		ExpiresAt:     s.ExpiresAt.UTC().Format(time.RFC3339),
	}
}

func (h *Handler) launch(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.Launch(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	resp := launchResponse{Session: toSessionBody(res.Session), ConsoleURL: res.ConsoleURL}
	if res.PortalCredentials != nil {
		resp.Portal = &portalBody{
			PrincipalName: res.PortalCredentials.PrincipalName,
			Password:      res.PortalCredentials.Password,
		}
	}
	httpjson.Write(w, http.StatusOK, resp)
}

func (h *Handler) teardown(w http.ResponseWriter, r *http.Request) {
	report, err := h.svc.Teardown(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	// A report with failed steps is still a 200: partial teardown is a
	// result, not an error, and the caller retries from the report.
	httpjson.Write(w, http.StatusOK, report)
}

func (h *Handler) close(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Close(r.Context(), r.PathValue("id")); err != nil {
		writeServiceError(w, err)
		return
	}
	httpjson.Write(w, http.StatusOK, map[string]string{"status": "stopped"})
}

func (h *Handler) restart(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Restart(r.Context(), r.PathValue("id")); err != nil {
		writeServiceError(w, err)
		return
	}
	httpjson.Write(w, http.StatusAccepted, map[string]string{"status": "restarting"})
}

func (h *Handler) status(w http.ResponseWriter, r *http.Request) {
	view, err := h.svc.Status(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	resp := statusResponse{Status: string(view.Status), Terminal: view.Terminal}
	if !view.ExpiresAt.IsZero() {
		resp.ExpiresAt = view.ExpiresAt.UTC().Format(time.RFC3339)
	}
	httpjson.Write(w, http.StatusOK, resp)
}

func (h *Handler) portalAccess(w http.ResponseWriter, r *http.Request) {
	creds, err := h.svc.ProvisionPortalAccess(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httpjson.Write(w, http.StatusCreated, portalBody{PrincipalName: creds.PrincipalName, Password: creds.Password})
}

func (h *Handler) console(w http.ResponseWriter, r *http.Request) {
	access, err := h.svc.Console(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httpjson.Write(w, http.StatusOK, consoleResponse{
		URL:       access.URL,
		Token:     access.Token,
		ExpiresAt: access.ExpiresAt.UTC().Format(time.RFC3339),
	})
}

// writeServiceError maps orchestrator sentinels to HTTP status codes with
// machine-readable error codes.
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrPurchaseNotFound),
		errors.Is(err, service.ErrCourseNotFound),
		errors.Is(err, service.ErrNoActiveSession):
		httpjson.WriteError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, service.ErrQuotaExceeded):
		httpjson.WriteError(w, http.StatusForbidden, "quota_exceeded", err.Error())
	case errors.Is(err, service.ErrEntitlementExpired):
		httpjson.WriteError(w, http.StatusForbidden, "entitlement_expired", err.Error())
	case errors.Is(err, service.ErrGuardrailRejected):
		httpjson.WriteError(w, http.StatusForbidden, "guardrail_rejected", err.Error())
	case errors.Is(err, service.ErrSessionActive):
		httpjson.WriteError(w, http.StatusConflict, "session_active", err.Error())
	case errors.Is(err, service.ErrPortalAccessExists):
		httpjson.WriteError(w, http.StatusConflict, "portal_access_exists", err.Error())
	case errors.Is(err, service.ErrPortalNotRequired):
		httpjson.WriteError(w, http.StatusBadRequest, "portal_not_required", err.Error())
	case errors.Is(err, compute.ErrUnavailable):
		httpjson.WriteError(w, http.StatusBadGateway, "upstream_unavailable", err.Error())
	case errors.Is(err, guardrail.ErrNotConfigured):
		httpjson.WriteError(w, http.StatusInternalServerError, "configuration_error", err.Error())
	default:
		httpjson.WriteError(w, http.StatusInternalServerError, "internal", "internal error")
	}
}
