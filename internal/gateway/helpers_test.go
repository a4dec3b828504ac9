package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/flemzord/writenow/internal/clock/clocktest"
	"github.com/flemzord/writenow/internal/core"
	"github.com/flemzord/writenow/internal/engine"
	"github.com/flemzord/writenow/internal/knowledge"
	"github.com/flemzord/writenow/internal/provider"
	"github.com/flemzord/writenow/internal/security"
	"github.com/flemzord/writenow/internal/telemetry"
)

const testProject = "novel"

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeModel is a summary model whose availability the test controls.
type fakeModel struct {
	name      string
	available bool
}

func (f *fakeModel) Complete(_ context.Context, _ provider.CompletionRequest) (provider.CompletionResponse, error) {
	return provider.CompletionResponse{Content: "summary from " + f.name}, nil
}

func (f *fakeModel) ModelName() string { return f.name }

func (f *fakeModel) Available() bool { return f.available }

func (f *fakeModel) Status() provider.Availability {
	if f.available {
		return provider.Availability{State: provider.StateUp}
	}
	return provider.Availability{State: provider.StateDown, Failures: 5}
}

// auditSink collects audit events.
type auditSink struct {
	mu     sync.Mutex
	events []security.AuditEvent
}

func (s *auditSink) record(ev security.AuditEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
}

func (s *auditSink) find(typ security.EventType) (security.AuditEvent, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ev := range s.events {
		if ev.Type == typ {
			return ev, true
		}
	}
	return security.AuditEvent{}, false
}

type apiFixture struct {
	gw    *Gateway
	root  string
	clock *clocktest.Fake
	audit *auditSink
	srv   *httptest.Server
	token string
}

// newAPIFixture serves a gateway over one temp project. opts run before
// the server starts.
func newAPIFixture(t *testing.T, auth AuthConfig, opts ...func(*Gateway)) *apiFixture {
	t.Helper()
	f := &apiFixture{
		root:  t.TempDir(),
		clock: clocktest.New(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)),
		audit: &auditSink{},
		token: auth.BearerToken,
	}
	logger := testLogger()
	metrics := telemetry.NewMetrics()
	audit := security.NewAuditLogger(security.AuditLoggerConfig{OnEvent: f.audit.record})

	eng := engine.New(engine.Options{
		Projects: map[string]string{testProject: f.root},
		Clock:    f.clock,
		Audit:    audit,
		Metrics:  metrics,
		Logger:   logger,
	})
	t.Cleanup(eng.Close)

	g := &Gateway{}
	g.config.defaults()
	g.config.Auth = auth
	g.appCtx = core.NewAppContext(logger, t.TempDir(), f.root)
	g.logger = logger
	g.engine = eng
	g.metrics = metrics
	g.audit = audit
	g.startedAt = time.Now()
	for _, opt := range opts {
		opt(g)
	}
	f.gw = g

	f.srv = httptest.NewServer(g.buildRouter())
	t.Cleanup(f.srv.Close)
	return f
}

// write puts content at <root>/.writenow/<rel>.
func (f *apiFixture) write(t *testing.T, rel, content string) {
	t.Helper()
	path := filepath.Join(f.root, knowledge.DirName, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
}

// do sends a request with an optional JSON body, authenticated when the
// fixture has a token. A string body is sent verbatim.
func (f *apiFixture) do(t *testing.T, method, path string, body any) *http.Response {
	t.Helper()
	var rd io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		rd = bytes.NewBufferString(b)
	default:
		raw, err := json.Marshal(b)
		if err != nil {
			t.Fatal(err)
		}
		rd = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(t.Context(), method, f.srv.URL+path, rd)
	if err != nil {
		t.Fatal(err)
	}
	if rd != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if f.token != "" {
		req.Header.Set("Authorization", "Bearer "+f.token)
	}
	resp, err := f.srv.Client().Do(req)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

// decodeBody checks the status and decodes the JSON body into T.
func decodeBody[T any](t *testing.T, resp *http.Response, wantStatus int) T {
	t.Helper()
	var out T
	if resp.StatusCode != wantStatus {
		raw, _ := io.ReadAll(resp.Body)
		t.Fatalf("status = %d, want %d; body = %s", resp.StatusCode, wantStatus, raw)
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return out
}

func readAll(t *testing.T, resp *http.Response) string {
	t.Helper()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	return string(raw)
}
