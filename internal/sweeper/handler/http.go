// Package handler exposes the sweep trigger on the internal HTTP surface.
package handler

import (
	"context"
	"net/http"
	"strings"
	"time"

	"cloudlab-control-plane/internal/security"
	"cloudlab-control-plane/internal/server/httpjson"
	"cloudlab-control-plane/internal/sweeper"
)

// SweepRunner is the sweeper surface the handler needs.
type SweepRunner interface {
	SweepExpired(ctx context.Context, now time.Time) (*sweeper.Summary, error)
}

// Handler guards the sweep endpoint with a shared bearer secret. The secret
// is stored hashed; an empty hash disables the endpoint entirely.
type Handler struct {
	sweeper   SweepRunner
	hasher    *security.Hasher
	tokenHash string
	now       func() time.Time
}

// New returns a sweep Handler. tokenHash is the bcrypt hash of the sweep
// bearer secret.
func New(runner SweepRunner, hasher *security.Hasher, tokenHash string) *Handler {
	return &Handler{
		sweeper:   runner,
		hasher:    hasher,
		tokenHash: tokenHash,
		now:       time.Now,
	}
}

// Register mounts the sweep route on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /internal/sweep", h.sweep)
}

func (h *Handler) sweep(w http.ResponseWriter, r *http.Request) {
	if h.tokenHash == "" {
		httpjson.WriteError(w, http.StatusNotFound, "not_found", "sweep endpoint disabled")
		return
	}
	secret, ok := extractBearer(r)
	if !ok || h.hasher.Compare(h.tokenHash, []byte(secret)) != nil {
		httpjson.WriteError(w, http.StatusUnauthorized, "unauthenticated", "invalid sweep token")
		return
	}
	summary, err := h.sweeper.SweepExpired(r.Context(), h.now())
	if err != nil {
		httpjson.WriteError(w, http.StatusInternalServerError, "internal", "internal error")
		return
	}
	httpjson.Write(w, http.StatusOK, summary)
}

func extractBearer(r *http.Request) (string, bool) {
	auth := r.Header.Get("Authorization")
	const prefix = "bearer "
	if len(auth) <= len(prefix) || !strings.EqualFold(auth[:len(prefix)], prefix) {
		return "", false
	}
	return auth[len(prefix):], true
}
