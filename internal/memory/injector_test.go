package memory_test

import (
	"context"
	"strings"
	"testing"

	"github.com/flemzord/writenow/internal/memory"
)

// mockEstimator implements ctxengine.TokenEstimator for tests.
type mockEstimator struct{}

func (mockEstimator) Estimate(text string) int { return len(text)/4 + 1 }

func seedStore(t *testing.T, store *memory.InMemoryStore, items ...memory.Item) {
	t.Helper()
	for _, item := range items {
		if err := store.Put(context.Background(), "p", item); err != nil {
			t.Fatalf("Put(%q): %v", item.ID, err)
		}
	}
}

func ids(items []memory.Item) string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		out = append(out, item.ID)
	}
	return strings.Join(out, ",")
}

func TestInjector_Preview(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		settings memory.Settings
		want     string
	}{
		{"enabled", memory.Settings{InjectionEnabled: true}, "a-manual,b-learned,c-manual"},
		{"disabled", memory.Settings{InjectionEnabled: false}, ""},
		{"privacy drops learned", memory.Settings{InjectionEnabled: true, PrivacyMode: true}, "a-manual,c-manual"},
		{"disabled wins over privacy", memory.Settings{PrivacyMode: true}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			store := memory.NewInMemoryStore()
			seedStore(t, store,
				testItem("c-manual", memory.OriginManual, "prefers short sentences"),
				testItem("b-learned", memory.OriginLearned, "often rejects adverbs"),
				testItem("a-manual", memory.OriginManual, "writes in British English"),
			)
			if err := store.SetSettings(context.Background(), "p", tt.settings); err != nil {
				t.Fatal(err)
			}

			p, err := memory.NewInjector(store, mockEstimator{}, 0, 0).Preview(context.Background(), "p")
			if err != nil {
				t.Fatalf("Preview: %v", err)
			}
			if p.Settings != tt.settings {
				t.Errorf("Settings = %+v, want %+v", p.Settings, tt.settings)
			}
			if p.Injected.Memory == nil {
				t.Error("Injected.Memory is nil, want empty slice")
			}
			if got := ids(p.Injected.Memory); got != tt.want {
				t.Errorf("injected = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestInjector_Caps(t *testing.T) {
	t.Parallel()

	store := memory.NewInMemoryStore()
	seedStore(t, store,
		testItem("1", memory.OriginManual, strings.Repeat("x", 36)), // 10 tokens
		testItem("2", memory.OriginManual, strings.Repeat("x", 36)),
		testItem("3", memory.OriginManual, strings.Repeat("x", 36)),
	)

	p, err := memory.NewInjector(store, mockEstimator{}, 2, 1000).Preview(context.Background(), "p")
	if err != nil {
		t.Fatal(err)
	}
	if got := ids(p.Injected.Memory); got != "1,2" {
		t.Errorf("max items: injected = %q, want 1,2", got)
	}

	p, err = memory.NewInjector(store, mockEstimator{}, 10, 25).Preview(context.Background(), "p")
	if err != nil {
		t.Fatal(err)
	}
	if got := ids(p.Injected.Memory); got != "1,2" {
		t.Errorf("max tokens: injected = %q, want 1,2", got)
	}
}

func TestNotes(t *testing.T) {
	t.Parallel()

	notes := memory.Notes([]memory.Item{
		{ID: "1", Type: memory.TypeStyle, Origin: memory.OriginManual, Content: "terse"},
	})
	if len(notes) != 1 || notes[0].ID != "1" || notes[0].Type != "style" || notes[0].Content != "terse" {
		t.Errorf("Notes() = %+v", notes)
	}
}

func TestInjector_TokenCapSkipsOversizedItem(t *testing.T) {
	t.Parallel()

	store := memory.NewInMemoryStore()
	seedStore(t, store,
		testItem("1", memory.OriginManual, strings.Repeat("x", 36)),  // 10 tokens
		testItem("2", memory.OriginManual, strings.Repeat("x", 156)), // 40 tokens
		testItem("3", memory.OriginManual, strings.Repeat("x", 36)),
	)

	p, err := memory.NewInjector(store, mockEstimator{}, 10, 25).Preview(context.Background(), "p")
	if err != nil {
		t.Fatal(err)
	}
	if got := ids(p.Injected.Memory); got != "1,3" {
		t.Errorf("injected = %q, want 1,3", got)
	}
}
