// Package server assembles the HTTP API: routes, middleware chain, and the
// http.Server itself.
package server

import (
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	audithandler "cloudlab-control-plane/internal/audit/handler"
	auditrepo "cloudlab-control-plane/internal/audit/repository"
	healthhandler "cloudlab-control-plane/internal/health/handler"
	licensehandler "cloudlab-control-plane/internal/license/handler"
	"cloudlab-control-plane/internal/security"
	"cloudlab-control-plane/internal/server/middleware"
	sessionhandler "cloudlab-control-plane/internal/session/handler"
	sweephandler "cloudlab-control-plane/internal/sweeper/handler"
)

// Deps holds the wired services the HTTP handlers need.
type Deps struct {
	// Sessions drives the lab session lifecycle endpoints. Required.
	Sessions sessionhandler.SessionService
	// Licenses drives license pool and assignment endpoints. Required.
	Licenses licensehandler.LicenseService
	// Sweeper runs the expiry sweep behind the internal endpoint. Required.
	Sweeper sweephandler.SweepRunner
	// AuditRepo backs the audit listing endpoint. If nil, /api/audit is not registered.
	AuditRepo auditrepo.Repository
	// Tokens validates access tokens on the auth middleware. Required.
	Tokens *security.TokenProvider
	// Hasher compares the sweep bearer secret against SweepTokenHash.
	Hasher *security.Hasher
	// SweepTokenHash is the bcrypt hash of the sweep secret; empty disables /internal/sweep.
	SweepTokenHash string
	// HealthPinger is pinged for readiness (e.g. *sql.DB). If nil, the DB check is skipped.
	HealthPinger healthhandler.Pinger
	// HealthPolicyChecker checks the policy engine for readiness. If nil, the check is skipped.
	HealthPolicyChecker healthhandler.PolicyChecker
}

// publicPaths are served without an access token. The sweep endpoint carries
// its own shared-secret check.
var publicPaths = map[string]bool{
	"/healthz":        true,
	"/internal/sweep": true,
}

// NewHandler builds the routed and middleware-wrapped HTTP handler.
func NewHandler(deps Deps) http.Handler {
	mux := http.NewServeMux()

	mux.Handle("GET /healthz", healthhandler.New(deps.HealthPinger, deps.HealthPolicyChecker))
	sessionhandler.New(deps.Sessions).Register(mux)
	licensehandler.New(deps.Licenses).Register(mux)
	sweephandler.New(deps.Sweeper, deps.Hasher, deps.SweepTokenHash).Register(mux)
	if deps.AuditRepo != nil {
		audithandler.New(deps.AuditRepo).Register(mux)
	}

	var h http.Handler = mux
	h = middleware.Auth(deps.Tokens, publicPaths)(h)
	h = middleware.CaptureClientIP(h)
	return otelhttp.NewHandler(h, "cloudlab-api")
}

// New returns the configured http.Server listening on addr.
func New(addr string, deps Deps) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           NewHandler(deps),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		// Provisioning calls block on the cloud provider; keep the write
		// window generous.
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  2 * time.Minute,
	}
}
