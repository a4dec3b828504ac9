package engine_test

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/flemzord/writenow/internal/clock/clocktest"
	ctxengine "github.com/flemzord/writenow/internal/context"
	"github.com/flemzord/writenow/internal/engine"
	"github.com/flemzord/writenow/internal/knowledge"
	"github.com/flemzord/writenow/internal/security"
	"github.com/flemzord/writenow/internal/telemetry"
)

const testProject = "novel"

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// writeKnowledge writes content to <root>/.writenow/<rel>.
func writeKnowledge(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, knowledge.DirName, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
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

func (s *auditSink) types() []security.EventType {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]security.EventType, len(s.events))
	for i, ev := range s.events {
		out[i] = ev.Type
	}
	return out
}

type fixture struct {
	engine  *engine.Engine
	root    string
	clock   *clocktest.Fake
	audit   *auditSink
	metrics *telemetry.Metrics
}

// newFixture creates an engine over one project rooted in a temp dir.
func newFixture(t *testing.T, mutate ...func(*engine.Options)) *fixture {
	t.Helper()
	f := &fixture{
		root:    t.TempDir(),
		clock:   clocktest.New(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)),
		audit:   &auditSink{},
		metrics: telemetry.NewMetrics(),
	}
	opts := engine.Options{
		Projects: map[string]string{testProject: f.root},
		Clock:    f.clock,
		Audit:    security.NewAuditLogger(security.AuditLoggerConfig{OnEvent: f.audit.record}),
		Metrics:  f.metrics,
		Logger:   testLogger(),
	}
	for _, m := range mutate {
		m(&opts)
	}
	f.engine = engine.New(opts)
	t.Cleanup(f.engine.Close)
	return f
}

func polish() *ctxengine.Skill {
	return &ctxengine.Skill{
		ID:                "polish",
		Name:              "Polish",
		OutputConstraints: []string{"keep the author's voice"},
		OutputFormat:      "plain text",
	}
}

func fragmentIDs(frags []ctxengine.Fragment) []string {
	out := make([]string, len(frags))
	for i, f := range frags {
		out[i] = f.ID
	}
	return out
}

// counterValue reads one sample of a counter vector from the registry.
func counterValue(t *testing.T, m *telemetry.Metrics, name string, labels map[string]string) float64 {
	t.Helper()
	families, err := m.Registry().Gather()
	if err != nil {
		t.Fatal(err)
	}
	for _, fam := range families {
		if fam.GetName() != name {
			continue
		}
	metrics:
		for _, metric := range fam.GetMetric() {
			for _, lp := range metric.GetLabel() {
				if want, ok := labels[lp.GetName()]; ok && want != lp.GetValue() {
					continue metrics
				}
			}
			return metric.GetCounter().GetValue()
		}
	}
	return 0
}
