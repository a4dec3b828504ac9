package gateway

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/flemzord/writenow/internal/reload"
	"github.com/flemzord/writenow/internal/security"
)

func TestRedactSecrets(t *testing.T) {
	t.Parallel()

	m := map[string]any{
		"version": "1",
		"modules": map[string]any{
			"gateway.http": map[string]any{
				"bind": "127.0.0.1:8080",
				"auth": map[string]any{"bearer_token": "tok-123", "basic_user": "ada"},
			},
			"provider.openai_compatible": map[string]any{"api_key": "sk-live", "model": "llama3"},
		},
		"hooks": []any{map[string]any{"secret": "hush", "name": "h1"}},
		"empty": map[string]any{"password": ""},
	}
	redactSecrets(m)

	mods := m["modules"].(map[string]any)
	auth := mods["gateway.http"].(map[string]any)["auth"].(map[string]any)
	if auth["bearer_token"] != security.RedactPlaceholder {
		t.Errorf("bearer_token = %v", auth["bearer_token"])
	}
	if auth["basic_user"] != "ada" {
		t.Errorf("basic_user should stay visible, got %v", auth["basic_user"])
	}
	openai := mods["provider.openai_compatible"].(map[string]any)
	if openai["api_key"] != security.RedactPlaceholder || openai["model"] != "llama3" {
		t.Errorf("openai = %v", openai)
	}
	if hook := m["hooks"].([]any)[0].(map[string]any); hook["secret"] != security.RedactPlaceholder {
		t.Errorf("hook secret = %v", hook["secret"])
	}
	if m["empty"].(map[string]any)["password"] != "" {
		t.Error("empty secrets stay empty")
	}
}

type fakeReloader struct {
	mu    sync.Mutex
	paths []string
}

func (r *fakeReloader) HandleReload(_ context.Context, path string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.paths = append(r.paths, path)
	return nil
}

func (r *fakeReloader) Last() reload.Outcome {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.paths) == 0 {
		return reload.Outcome{}
	}
	return reload.Outcome{Path: r.paths[len(r.paths)-1], At: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC), Reloaded: []string{"engine.context"}}
}

func (r *fakeReloader) calls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.paths)
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "writenow.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

const adminConfig = `version: "1"
modules:
  gateway.http:
    bind: "127.0.0.1:0"
    auth:
      bearer_token: "tok-123"
`

func TestAdmin_Modules(t *testing.T) {
	t.Parallel()
	f := newAPIFixture(t, AuthConfig{BearerToken: "tok-123"})

	mods := decodeBody[[]moduleJSON](t, f.do(t, http.MethodGet, "/api/admin/modules", nil), http.StatusOK)
	if !slices.ContainsFunc(mods, func(m moduleJSON) bool {
		return m.ID == "gateway.http" && m.Namespace == "gateway" && m.Name == "http"
	}) {
		t.Errorf("modules = %+v", mods)
	}
}

func TestAdmin_GetConfigRedacts(t *testing.T) {
	t.Parallel()
	bare := newAPIFixture(t, AuthConfig{BearerToken: "tok-123"})
	resp := bare.do(t, http.MethodGet, "/api/admin/config", nil)
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("without a config path: status = %d, want 503", resp.StatusCode)
	}

	path := writeConfig(t, adminConfig)
	f := newAPIFixture(t, AuthConfig{BearerToken: "tok-123"}, func(g *Gateway) { g.configPath = path })
	raw := readAll(t, f.do(t, http.MethodGet, "/api/admin/config", nil))
	if strings.Contains(raw, "tok-123") {
		t.Errorf("token leaked: %s", raw)
	}
	if !strings.Contains(raw, security.RedactPlaceholder) {
		t.Errorf("expected placeholder: %s", raw)
	}
}

func TestAdmin_ReloadConfig(t *testing.T) {
	t.Parallel()
	reloader := &fakeReloader{}
	path := writeConfig(t, `version: "2"
modules:
  gateway.http: {}
`)
	f := newAPIFixture(t, AuthConfig{BearerToken: "tok-123"}, func(g *Gateway) {
		g.reloader = reloader
		g.configPath = path
	})

	resp := f.do(t, http.MethodPost, "/api/admin/config/reload", nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("invalid config: status = %d, want 400", resp.StatusCode)
	}
	if reloader.calls() != nil {
		t.Fatalf("reloader called for an invalid config: %v", reloader.calls())
	}

	if err := os.WriteFile(path, []byte(adminConfig), 0o600); err != nil {
		t.Fatal(err)
	}
	got := decodeBody[struct {
		Status  string         `json:"status"`
		Outcome reload.Outcome `json:"outcome"`
	}](t, f.do(t, http.MethodPost, "/api/admin/config/reload", nil), http.StatusOK)
	if got.Status != "reloaded" || got.Outcome.Path != path {
		t.Errorf("body = %+v", got)
	}

	st := decodeBody[StatusResponse](t, f.do(t, http.MethodGet, "/status", nil), http.StatusOK)
	if st.LastReload == nil || !slices.Equal(st.LastReload.Reloaded, []string{"engine.context"}) {
		t.Errorf("status last reload = %+v", st.LastReload)
	}
	if !slices.Equal(reloader.calls(), []string{path}) {
		t.Errorf("reloader paths = %v", reloader.calls())
	}
	ev, ok := f.audit.find(security.EventConfigChange)
	if !ok || ev.Metadata["path"] != path {
		t.Errorf("config_change event = %+v (found %v)", ev, ok)
	}
}
