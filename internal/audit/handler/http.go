// Package handler exposes audit log queries over HTTP JSON.
package handler

import (
	"net/http"
	"strconv"
	"time"

	"cloudlab-control-plane/internal/audit/repository"
	"cloudlab-control-plane/internal/server/httpjson"
	"cloudlab-control-plane/internal/server/middleware"
)

const (
	defaultLimit = 50
	maxLimit     = 200
)

// Handler serves audit log listings scoped to the caller's organization.
type Handler struct {
	repo repository.Repository
}

// New returns an audit Handler.
func New(repo repository.Repository) *Handler {
	return &Handler{repo: repo}
}

// Register mounts the audit routes on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/audit", h.list)
}

type entryBody struct {
	ID        string `json:"id"`
	UserID    string `json:"userId,omitempty"`
	Action    string `json:"action"`
	Resource  string `json:"resource,omitempty"`
	IP        string `json:"ip"`
	Metadata  string `json:"metadata,omitempty"`
	CreatedAt string `json:"createdAt"`
}

type listResponse struct {
	Entries []entryBody `json:"entries"`
	Limit   int32       `json:"limit"`
	Offset  int32       `json:"offset"`
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	orgID, ok := middleware.GetOrgID(r.Context())
	if !ok || orgID == "" {
		httpjson.WriteError(w, http.StatusUnauthorized, "unauthenticated", "missing organization identity")
		return
	}
	limit := parseInt32(r.URL.Query().Get("limit"), defaultLimit)
	if limit <= 0 || limit > maxLimit {
		limit = defaultLimit
	}
	offset := parseInt32(r.URL.Query().Get("offset"), 0)
	if offset < 0 {
		offset = 0
	}

	logs, err := h.repo.ListByOrg(r.Context(), orgID, limit, offset)
	if err != nil {
		httpjson.WriteError(w, http.StatusInternalServerError, "internal", "internal error")
		return
	}
	resp := listResponse{Entries: make([]entryBody, 0, len(logs)), Limit: limit, Offset: offset}
	for _, l := range logs {
		resp.Entries = append(resp.Entries, entryBody{
			ID:        l.ID,
			UserID:    l.UserID,
			Action:    l.Action,
			Resource:  l.Resource,
			IP:        l.IP,
			Metadata:  l.Metadata,
			CreatedAt: l.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
	httpjson.Write(w, http.StatusOK, resp)
}

func parseInt32(raw string, fallback int32) int32 {
	if raw == "" {
		return fallback
	}
	n, err := strconv.ParseInt(raw, 10, 32)
	if err != nil {
		return fallback
	}
	return int32(n)
}
