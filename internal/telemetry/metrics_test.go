package telemetry_test

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/flemzord/writenow/internal/telemetry"
)

func TestMetrics_NilIsNoop(t *testing.T) {
	t.Parallel()

	var m *telemetry.Metrics
	m.ObserveAssembly(telemetry.AssemblyOutcome{Result: telemetry.ResultOK})
	m.SourceError("rules", "NOT_FOUND")
	m.WatchBatch([]string{"rules"})
	m.ConversationSaved()
	m.Summary("heuristic")
	m.HTTPRequest("GET", "/health", "200", time.Millisecond)
	if m.Registry() != nil {
		t.Error("nil metrics should have no registry")
	}
}

func TestMetrics_ObserveAssembly(t *testing.T) {
	t.Parallel()

	m := telemetry.NewMetrics()
	m.ObserveAssembly(telemetry.AssemblyOutcome{
		Result:     telemetry.ResultOK,
		Duration:   2 * time.Millisecond,
		TokensUsed: 420,
		Evicted:    map[string]int{"retrieved": 2, "settings": 1},
		Compressed: 1,
		Redactions: 3,
	})
	m.ObserveAssembly(telemetry.AssemblyOutcome{Result: telemetry.ResultImpossible, Evicted: map[string]int{"rules": 5}})

	got := gather(t, m)
	for _, want := range []string{
		`writenow_assemblies_total{result="ok"} 1`,
		`writenow_assemblies_total{result="budget_impossible"} 1`,
		`writenow_fragments_evicted_total{layer="retrieved"} 2`,
		`writenow_fragments_compressed_total 1`,
		`writenow_redactions_total 3`,
	} {
		if !strings.Contains(got, want) {
			t.Errorf("exposition missing %q", want)
		}
	}
	if strings.Contains(got, `layer="rules"`) {
		t.Error("failed assemblies must not count evictions")
	}
}

func TestMetrics_Counters(t *testing.T) {
	t.Parallel()

	m := telemetry.NewMetrics()
	m.SourceError("rules", "PARSE_ERROR")
	m.SourceError("rules", "PARSE_ERROR")
	m.WatchBatch([]string{"rules", "settings"})
	m.ConversationSaved()
	m.Summary("model")

	families, err := m.Registry().Gather()
	if err != nil {
		t.Fatal(err)
	}
	series := 0
	for _, mf := range families {
		switch mf.GetName() {
		case "writenow_source_errors_total", "writenow_cache_invalidations_total":
			series += len(mf.GetMetric())
		}
	}
	if series != 3 {
		t.Errorf("series = %d, want 3", series)
	}
	got := gather(t, m)
	for _, want := range []string{
		`writenow_source_errors_total{code="PARSE_ERROR",source="rules"} 2`,
		`writenow_watch_batches_total 1`,
		`writenow_conversations_saved_total 1`,
		`writenow_summaries_total{quality="model"} 1`,
	} {
		if !strings.Contains(got, want) {
			t.Errorf("exposition missing %q", want)
		}
	}
}

func gather(t *testing.T, m *telemetry.Metrics) string {
	t.Helper()
	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	return string(body)
}
