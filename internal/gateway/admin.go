package gateway

import (
	"net/http"
	"os"
	"regexp"

	"github.com/flemzord/writenow/internal/config"
	"github.com/flemzord/writenow/internal/core"
	"github.com/flemzord/writenow/internal/security"
	"gopkg.in/yaml.v3"
)

// moduleJSON is a serializable module info snapshot.
type moduleJSON struct {
	ID        string `json:"id"`
	Namespace string `json:"namespace"`
	Name      string `json:"name"`
}

// handleGetAllModules lists all compiled modules.
func (g *Gateway) handleGetAllModules() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		mods := core.GetModules()
		out := make([]moduleJSON, 0, len(mods))
		for _, m := range mods {
			out = append(out, moduleJSON{
				ID:        string(m.ID),
				Namespace: m.ID.Namespace(),
				Name:      m.ID.Name(),
			})
		}
		writeJSON(w, http.StatusOK, out)
	}
}

// secretPattern matches YAML keys that likely contain secrets.
var secretPattern = regexp.MustCompile(`(?i)(secret|token|password|pass|key|api_key)`)

// handleGetConfig returns the configuration file as written, before
// environment expansion, with secret-looking keys redacted.
func (g *Gateway) handleGetConfig() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		if g.configPath == "" {
			http.Error(w, "config path not set", http.StatusServiceUnavailable)
			return
		}

		raw, err := os.ReadFile(g.configPath)
		if err != nil {
			http.Error(w, "failed to load config", http.StatusInternalServerError)
			return
		}

		var generic map[string]any
		if err := yaml.Unmarshal(raw, &generic); err != nil {
			http.Error(w, "failed to parse config", http.StatusInternalServerError)
			return
		}

		redactSecrets(generic)
		writeJSON(w, http.StatusOK, generic)
	}
}

// redactSecrets walks a map and replaces values whose keys match the secret pattern.
func redactSecrets(m map[string]any) {
	for k, v := range m {
		if secretPattern.MatchString(k) {
			if s, ok := v.(string); ok && s != "" {
				m[k] = security.RedactPlaceholder
			}
			continue
		}
		switch val := v.(type) {
		case map[string]any:
			redactSecrets(val)
		case []any:
			for _, item := range val {
				if sub, ok := item.(map[string]any); ok {
					redactSecrets(sub)
				}
			}
		}
	}
}

// handleReloadConfig validates the configuration file and hot-reloads the
// modules that support it.
func (g *Gateway) handleReloadConfig() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if g.configPath == "" {
			http.Error(w, "config path not set", http.StatusServiceUnavailable)
			return
		}

		cfg, err := config.Load(g.configPath)
		if err == nil {
			err = config.Validate(cfg)
		}
		if err != nil {
			g.logger.Error("config reload rejected", "error", err)
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}

		if g.reloader != nil {
			if err := g.reloader.HandleReload(r.Context(), g.configPath); err != nil {
				g.logger.Error("config reload failed", "error", err)
				writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
				return
			}
		}

		g.audit.Log(security.AuditEvent{
			Type:     security.EventConfigChange,
			Detail:   "reload via admin API",
			Metadata: map[string]string{"path": g.configPath},
		})
		resp := map[string]any{"status": "reloaded"}
		if h, ok := g.reloader.(reloadHistory); ok {
			resp["outcome"] = h.Last()
		}
		writeJSON(w, http.StatusOK, resp)
	}
}
