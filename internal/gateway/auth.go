package gateway

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5/middleware"

	ctxengine "github.com/flemzord/writenow/internal/context"
	"github.com/flemzord/writenow/internal/security"
)

// codeUnauthenticated is only produced by the gateway; the engine never
// sees unauthenticated calls.
const codeUnauthenticated ctxengine.Code = "UNAUTHENTICATED"

// credentialCheck accepts or rejects a request. The scheme names the
// method that succeeded.
type credentialCheck func(r *http.Request) (scheme string, ok bool)

func bearerCheck(token string) credentialCheck {
	return func(r *http.Request) (string, bool) {
		got, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		return "bearer", ok && constantTimeEqual(got, token)
	}
}

func basicCheck(user, pass string) credentialCheck {
	return func(r *http.Request) (string, bool) {
		u, p, ok := r.BasicAuth()
		// Evaluate both comparisons so timing does not reveal which one failed.
		userOK := constantTimeEqual(u, user)
		passOK := constantTimeEqual(p, pass)
		return "basic", ok && userOK && passOK
	}
}

// authMiddleware guards the API and admin routes. Each request is checked
// against the configured bearer token, then basic credentials, and the
// outcome is written to the audit log (a nil logger discards it).
func authMiddleware(cfg AuthConfig, audit *security.AuditLogger) func(http.Handler) http.Handler {
	var checks []credentialCheck
	if cfg.BearerToken != "" {
		checks = append(checks, bearerCheck(cfg.BearerToken))
	}
	if cfg.BasicUser != "" && cfg.BasicPass != "" {
		checks = append(checks, basicCheck(cfg.BasicUser, cfg.BasicPass))
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("Authorization") == "" {
				deny(w, r, audit, "missing authorization header")
				return
			}
			for _, check := range checks {
				if scheme, ok := check(r); ok {
					audit.Log(authEvent(r, security.EventAuthSuccess, scheme))
					next.ServeHTTP(w, r)
					return
				}
			}
			deny(w, r, audit, "invalid credentials")
		})
	}
}

func deny(w http.ResponseWriter, r *http.Request, audit *security.AuditLogger, reason string) {
	audit.Log(authEvent(r, security.EventAuthFailure, reason))
	w.Header().Set("WWW-Authenticate", `Bearer realm="writenow"`)
	writeJSON(w, http.StatusUnauthorized, errorBody{Error: errorDetail{Code: codeUnauthenticated, Message: reason}})
}

func authEvent(r *http.Request, typ security.EventType, detail string) security.AuditEvent {
	return security.AuditEvent{
		Type:      typ,
		RequestID: middleware.GetReqID(r.Context()),
		Detail:    detail,
		Metadata: map[string]string{
			"remote_addr": r.RemoteAddr,
			"method":      r.Method,
			"path":        r.URL.Path,
		},
	}
}

func constantTimeEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
