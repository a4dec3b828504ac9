package engine_test

import (
	"slices"
	"testing"

	ctxengine "github.com/flemzord/writenow/internal/context"
	"github.com/flemzord/writenow/internal/engine"
	"github.com/flemzord/writenow/internal/memory"
	"github.com/flemzord/writenow/internal/security"
)

func TestMemoryPreview(t *testing.T) {
	t.Parallel()
	store := memory.NewInMemoryStore()
	f := newFixture(t, func(o *engine.Options) {
		o.MemoryStore = store
		o.MemoryMaxItems = 2
	})
	for _, id := range []string{"m3", "m1", "m2"} {
		if err := store.Put(t.Context(), testProject, memory.Item{ID: id, Type: memory.TypeFeedback, Origin: memory.OriginManual, Content: "note " + id}); err != nil {
			t.Fatal(err)
		}
	}

	p, err := f.engine.MemoryPreview(t.Context(), testProject)
	if err != nil {
		t.Fatal(err)
	}
	if !p.Settings.InjectionEnabled {
		t.Error("injection should default to enabled")
	}
	ids := make([]string, len(p.Injected.Memory))
	for i, it := range p.Injected.Memory {
		ids[i] = it.ID
	}
	if !slices.Equal(ids, []string{"m1", "m2"}) {
		t.Errorf("injected = %v, want [m1 m2]", ids)
	}
	if !slices.Contains(f.audit.types(), security.EventMemoryPreview) {
		t.Errorf("audit = %v", f.audit.types())
	}

	if err := store.SetSettings(t.Context(), testProject, memory.Settings{}); err != nil {
		t.Fatal(err)
	}
	p, err = f.engine.MemoryPreview(t.Context(), testProject)
	if err != nil {
		t.Fatal(err)
	}
	if len(p.Injected.Memory) != 0 {
		t.Errorf("disabled injection still lists %d items", len(p.Injected.Memory))
	}

	if _, err := f.engine.MemoryPreview(t.Context(), "nope"); ctxengine.CodeOf(err) != ctxengine.CodeNotFound {
		t.Errorf("err = %v, want NOT_FOUND", err)
	}
}
