package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/flemzord/writenow/internal/core"
	"github.com/flemzord/writenow/internal/engine"
	"github.com/flemzord/writenow/internal/telemetry"
	"gopkg.in/yaml.v3"
)

func TestGateway_ModuleInfo(t *testing.T) {
	t.Parallel()

	g := &Gateway{}
	info := g.ModuleInfo()

	if info.ID != "gateway.http" {
		t.Errorf("ID = %q, want %q", info.ID, "gateway.http")
	}
	if info.New == nil {
		t.Fatal("New func is nil")
	}

	mod := info.New()
	if _, ok := mod.(*Gateway); !ok {
		t.Error("New() should return *Gateway")
	}
}

func TestGateway_ConfigureDefaults(t *testing.T) {
	t.Parallel()

	g := &Gateway{}

	node := mustYAMLNode(t, "{}")
	if err := g.Configure(node); err != nil {
		t.Fatalf("Configure: %v", err)
	}

	if g.config.Bind != "127.0.0.1:8080" {
		t.Errorf("Bind = %q, want default", g.config.Bind)
	}
	if g.config.ReadTimeout != 10*time.Second {
		t.Errorf("ReadTimeout = %v, want 10s", g.config.ReadTimeout)
	}
	if g.config.WriteTimeout != 30*time.Second {
		t.Errorf("WriteTimeout = %v, want 30s", g.config.WriteTimeout)
	}
	if g.config.ShutdownTimeout != 5*time.Second {
		t.Errorf("ShutdownTimeout = %v, want 5s", g.config.ShutdownTimeout)
	}
	if g.config.MaxBodyBytes != 4<<20 {
		t.Errorf("MaxBodyBytes = %d, want 4 MiB", g.config.MaxBodyBytes)
	}
}

func TestGateway_ConfigureCustom(t *testing.T) {
	t.Parallel()

	g := &Gateway{}
	node := mustYAMLNode(t, `
bind: "0.0.0.0:9090"
read_timeout: 5s
write_timeout: 15s
shutdown_timeout: 10s
max_body_bytes: 1024
auth:
  bearer_token: "my-token"
`)

	if err := g.Configure(node); err != nil {
		t.Fatalf("Configure: %v", err)
	}

	if g.config.Bind != "0.0.0.0:9090" {
		t.Errorf("Bind = %q, want custom", g.config.Bind)
	}
	if g.config.Auth.BearerToken != "my-token" {
		t.Errorf("BearerToken = %q", g.config.Auth.BearerToken)
	}
	if g.config.MaxBodyBytes != 1024 {
		t.Errorf("MaxBodyBytes = %d", g.config.MaxBodyBytes)
	}
	if g.config.ReadTimeout != 5*time.Second {
		t.Errorf("ReadTimeout = %v", g.config.ReadTimeout)
	}
}

func TestGateway_Provision(t *testing.T) {
	t.Parallel()

	g := &Gateway{}
	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	appCtx := core.NewAppContext(logger, "/data", "/ws")

	if err := g.Provision(appCtx); err != nil {
		t.Fatalf("Provision: %v", err)
	}
	if g.appCtx != appCtx || g.logger != logger {
		t.Error("Provision should keep the app context and logger")
	}
	if g.config.Bind != "127.0.0.1:8080" {
		t.Errorf("Bind = %q, want default", g.config.Bind)
	}
}

func TestGateway_ValidateGoodAddress(t *testing.T) {
	t.Parallel()

	g := &Gateway{}
	g.config.Bind = "127.0.0.1:8080"
	if err := g.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestGateway_ValidateExposedWithoutAuth(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	g := &Gateway{logger: slog.New(slog.NewTextHandler(&buf, nil))}
	g.config.Bind = "0.0.0.0:8080"
	if err := g.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if !bytes.Contains(buf.Bytes(), []byte("without auth")) {
		t.Errorf("expected a warning, got %q", buf.String())
	}
}

func TestGateway_ValidateBadAddress(t *testing.T) {
	t.Parallel()

	g := &Gateway{}
	g.config.Bind = "not a valid address::"
	if err := g.Validate(); err == nil {
		t.Error("expected validation error for bad address")
	}
}

// freeAddr returns a free TCP address on localhost.
func freeAddr(t *testing.T) string {
	t.Helper()
	var lc net.ListenConfig
	ln, err := lc.Listen(t.Context(), "tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := ln.Addr().String()
	if err := ln.Close(); err != nil {
		t.Fatal(err)
	}
	return addr
}

// doGet makes a GET request with context.
func doGet(t *testing.T, url string) *http.Response {
	t.Helper()
	req, err := http.NewRequestWithContext(t.Context(), http.MethodGet, url, nil)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	return resp
}

// doGetWithBearer makes a GET request with a bearer token.
func doGetWithBearer(t *testing.T, url, token string) *http.Response {
	t.Helper()
	req, err := http.NewRequestWithContext(t.Context(), http.MethodGet, url, nil)
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	return resp
}

func newTestGateway(t *testing.T, addr string, auth AuthConfig) *Gateway {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	appCtx := core.NewAppContext(logger, "/data", "/ws")

	eng := engine.New(engine.Options{
		Projects: map[string]string{testProject: t.TempDir()},
		Logger:   logger,
	})
	t.Cleanup(eng.Close)
	appCtx.RegisterService(engine.ServiceName, eng)
	appCtx.RegisterService("telemetry.metrics", telemetry.NewMetrics())

	g := &Gateway{}
	g.config = Config{
		Bind:            addr,
		ReadTimeout:     5 * time.Second,
		WriteTimeout:    5 * time.Second,
		ShutdownTimeout: 2 * time.Second,
		MaxBodyBytes:    1 << 20,
		Auth:            auth,
	}
	g.appCtx = appCtx
	g.logger = logger
	return g
}

func TestGateway_StartStop(t *testing.T) {
	t.Parallel()

	addr := freeAddr(t)
	g := newTestGateway(t, addr, AuthConfig{})

	if err := g.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	resp := doGet(t, "http://"+addr+"/health")
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("health status = %d, want %d", resp.StatusCode, http.StatusOK)
	}

	var health HealthResponse
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		t.Fatalf("decode health: %v", err)
	}
	if health.Status != "ok" || health.Projects != 1 {
		t.Errorf("health = %+v, want ok with 1 project", health)
	}
	if health.Summary != nil {
		t.Errorf("no summary model registered, got %+v", health.Summary)
	}

	if err := g.Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}
}

func TestGateway_StartWithoutEngine(t *testing.T) {
	t.Parallel()

	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	g := &Gateway{appCtx: core.NewAppContext(logger, "/data", "/ws"), logger: logger}
	g.config.defaults()
	g.config.Bind = freeAddr(t)

	if err := g.Start(); err == nil {
		t.Fatal("Start should fail without an engine service")
	}
}

func TestGateway_StartWithServices(t *testing.T) {
	t.Parallel()

	addr := freeAddr(t)
	g := newTestGateway(t, addr, AuthConfig{})
	g.appCtx.RegisterService("provider.summary", &fakeModel{name: "llama3", available: true})
	g.appCtx.RegisterService("config.path", "/etc/writenow.yaml")

	if err := g.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer func() { _ = g.Stop(context.Background()) }()

	if g.metrics == nil || g.summary == nil || g.configPath != "/etc/writenow.yaml" {
		t.Errorf("services not resolved: metrics=%v summary=%v path=%q", g.metrics, g.summary, g.configPath)
	}

	resp := doGet(t, "http://"+addr+"/health")
	defer func() { _ = resp.Body.Close() }()

	var health HealthResponse
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if health.Summary == nil || health.Summary.Model != "llama3" || !health.Summary.Available {
		t.Errorf("summary = %+v", health.Summary)
	}
}

func TestGateway_AdminNotMountedWithoutAuth(t *testing.T) {
	t.Parallel()

	addr := freeAddr(t)
	g := newTestGateway(t, addr, AuthConfig{})

	if err := g.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer func() { _ = g.Stop(context.Background()) }()

	for _, path := range []string{"/status", "/api/admin/modules"} {
		resp := doGet(t, "http://"+addr+path)
		_ = resp.Body.Close()
		if resp.StatusCode != http.StatusNotFound && resp.StatusCode != http.StatusMethodNotAllowed {
			t.Errorf("%s code = %d, want 404 or 405 (not mounted)", path, resp.StatusCode)
		}
	}

	// The engine API stays open on loopback.
	resp := doGet(t, "http://"+addr+"/api/projects")
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("projects code = %d, want 200", resp.StatusCode)
	}
}

func TestGateway_AdminWithAuth(t *testing.T) {
	t.Parallel()

	addr := freeAddr(t)
	g := newTestGateway(t, addr, AuthConfig{BearerToken: "test-token"})

	if err := g.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer func() { _ = g.Stop(context.Background()) }()

	for _, path := range []string{"/status", "/api/projects"} {
		// Without token → 401.
		resp := doGet(t, "http://"+addr+path)
		_ = resp.Body.Close()
		if resp.StatusCode != http.StatusUnauthorized {
			t.Errorf("%s no-auth status = %d, want %d", path, resp.StatusCode, http.StatusUnauthorized)
		}

		// With valid token → 200.
		resp2 := doGetWithBearer(t, "http://"+addr+path, "test-token")
		_ = resp2.Body.Close()
		if resp2.StatusCode != http.StatusOK {
			t.Errorf("%s auth status = %d, want %d", path, resp2.StatusCode, http.StatusOK)
		}
	}

	// Health stays public.
	resp := doGet(t, "http://"+addr+"/health")
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("health status = %d, want 200", resp.StatusCode)
	}
}

func TestGateway_StopNilServer(t *testing.T) {
	t.Parallel()

	g := &Gateway{}
	if err := g.Stop(context.Background()); err != nil {
		t.Errorf("Stop on nil server should not error: %v", err)
	}
}

// mustYAMLNode parses YAML text into a *yaml.Node for Configure calls.
func mustYAMLNode(t *testing.T, text string) *yaml.Node {
	t.Helper()
	var node yaml.Node
	if err := yaml.Unmarshal([]byte(text), &node); err != nil {
		t.Fatalf("YAML parse: %v", err)
	}
	if len(node.Content) > 0 {
		return node.Content[0]
	}
	return &node
}
