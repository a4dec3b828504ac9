package gateway

import (
	"net/http"
	"time"

	"github.com/flemzord/writenow/internal/provider"
)

// ModelStatus reports the summary model's availability.
type ModelStatus struct {
	Model     string    `json:"model"`
	Available bool      `json:"available"`
	State     string    `json:"state,omitempty"`
	Failures  int       `json:"failures,omitempty"`
	RetryAt   time.Time `json:"retry_at,omitzero"`
}

// HealthResponse is the JSON response for GET /health.
type HealthResponse struct {
	Status   string       `json:"status"` // "ok" or "degraded"
	Projects int          `json:"projects"`
	Summary  *ModelStatus `json:"summary_model,omitempty"`
}

// availability is implemented by provider.Guarded.
type availability interface {
	Available() bool
	Status() provider.Availability
}

// handleHealth returns an http.HandlerFunc for GET /health.
// Returns 200 when the summary model (if any) is reachable, 503 otherwise.
// Summaries still work while degraded, using the heuristic fallback.
func (g *Gateway) handleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		resp := HealthResponse{
			Status:   "ok",
			Projects: len(g.engine.Projects()),
		}

		if g.summary != nil {
			st := &ModelStatus{Model: g.summary.ModelName(), Available: true}
			if a, ok := g.summary.(availability); ok {
				st.Available = a.Available()
				av := a.Status()
				st.State, st.Failures, st.RetryAt = av.State, av.Failures, av.RetryAt
			}
			resp.Summary = st
			if !st.Available {
				resp.Status = "degraded"
			}
		}

		code := http.StatusOK
		if resp.Status == "degraded" {
			code = http.StatusServiceUnavailable
		}
		writeJSON(w, code, resp)
	}
}
