// Package middleware holds the HTTP middleware chain: identity context,
// bearer-token auth, and client IP capture.
package middleware

import (
	"net"
	"net/http"
	"strings"

	"cloudlab-control-plane/internal/security"
	"cloudlab-control-plane/internal/server/httpjson"
)

const bearerPrefix = "bearer "

// Auth validates the Bearer (access) token from the Authorization header and
// sets user_id and org_id in the request context. publicPaths is the set of
// exact paths that do not require a token (e.g. /healthz).
func Auth(tokens *security.TokenProvider, publicPaths map[string]bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := extractBearer(r)
			if token == "" {
				if publicPaths[r.URL.Path] {
					next.ServeHTTP(w, r)
					return
				}
				httpjson.WriteError(w, http.StatusUnauthorized, "unauthenticated", "missing or invalid authorization")
				return
			}
			userID, orgID, err := tokens.ValidateAccess(token)
			if err != nil {
				if publicPaths[r.URL.Path] {
					next.ServeHTTP(w, r)
					return
				}
				httpjson.WriteError(w, http.StatusUnauthorized, "unauthenticated", "missing or invalid authorization")
				return
			}
			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), userID, orgID)))
		})
	}
}

// CaptureClientIP records the remote address (or X-Forwarded-For when set by
// a trusted proxy) on the request context for audit logging.
func CaptureClientIP(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := clientIPFromRequest(r)
		next.ServeHTTP(w, r.WithContext(WithClientIP(r.Context(), ip)))
	})
}

func clientIPFromRequest(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		// First hop is the originating client.
		if i := strings.IndexByte(fwd, ','); i > 0 {
			return strings.TrimSpace(fwd[:i])
		}
		return strings.TrimSpace(fwd)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// extractBearer returns the Bearer token from the Authorization header, or "" if missing or malformed.
func extractBearer(r *http.Request) string {
	v := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(v) < len(bearerPrefix) {
		return ""
	}
	if !strings.EqualFold(v[:len(bearerPrefix)], bearerPrefix) {
		return ""
	}
	return strings.TrimSpace(v[len(bearerPrefix):])
}
