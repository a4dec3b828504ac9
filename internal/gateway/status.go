package gateway

import (
	"net/http"
	"time"

	"github.com/flemzord/writenow/internal/reload"
)

// StatusResponse is the JSON response for GET /status.
type StatusResponse struct {
	Uptime           time.Duration   `json:"uptime_seconds"`
	Projects         []string        `json:"projects"`
	AuditWriteErrors int64           `json:"audit_write_errors"`
	LastReload       *reload.Outcome `json:"last_reload,omitempty"`
}

// reloadHistory is implemented by reload.Handler.
type reloadHistory interface {
	Last() reload.Outcome
}

// handleStatus returns an http.HandlerFunc for GET /status.
func (g *Gateway) handleStatus() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		resp := StatusResponse{
			Uptime:           time.Since(g.startedAt).Truncate(time.Second),
			Projects:         g.engine.Projects(),
			AuditWriteErrors: g.audit.WriteErrors(),
		}
		if h, ok := g.reloader.(reloadHistory); ok {
			if last := h.Last(); !last.At.IsZero() {
				resp.LastReload = &last
			}
		}
		writeJSON(w, http.StatusOK, resp)
	}
}
