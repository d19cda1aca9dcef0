// Package handler serves readiness checks for load balancers and schedulers.
package handler

import (
	"context"
	"net/http"
	"time"

	"cloudlab-control-plane/internal/server/httpjson"
)

// Pinger reports database connectivity.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// PolicyChecker reports whether the guardrail policy compiles and evaluates.
type PolicyChecker interface {
	HealthCheck(ctx context.Context) error
}

// Handler answers GET /healthz. Checks are optional; a nil dependency is
// reported as "skipped" rather than failing the probe.
type Handler struct {
	db     Pinger
	policy PolicyChecker
}

// New returns a health Handler. db and policy may be nil.
func New(db Pinger, policy PolicyChecker) *Handler {
	return &Handler{db: db, policy: policy}
}

type response struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	resp := response{Status: "ok", Checks: map[string]string{}}
	status := http.StatusOK

	if h.db == nil {
		resp.Checks["database"] = "skipped"
	} else if err := h.db.PingContext(ctx); err != nil {
		resp.Checks["database"] = err.Error()
		resp.Status = "degraded"
		status = http.StatusServiceUnavailable
	} else {
		resp.Checks["database"] = "ok"
	}

	if h.policy == nil {
		resp.Checks["guardrail_policy"] = "skipped"
	} else if err := h.policy.HealthCheck(ctx); err != nil {
		resp.Checks["guardrail_policy"] = err.Error()
		resp.Status = "degraded"
		status = http.StatusServiceUnavailable
	} else {
		resp.Checks["guardrail_policy"] = "ok"
	}

	httpjson.Write(w, status, resp)
}
