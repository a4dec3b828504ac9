package entity

import (
	"context"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/flemzord/writenow/internal/clock/clocktest"
	ctxengine "github.com/flemzord/writenow/internal/context"
	"github.com/flemzord/writenow/internal/knowledge"
)

type fakeSource struct {
	kind knowledge.SourceKind
	docs []knowledge.Document
	fail map[string]error

	mu      sync.Mutex
	lookups []string
}

func (s *fakeSource) Kind() knowledge.SourceKind { return s.kind }

func (s *fakeSource) Documents(context.Context) []knowledge.Document {
	return slices.Clone(s.docs)
}

func (s *fakeSource) Lookup(_ context.Context, stem string) (knowledge.Document, error) {
	s.mu.Lock()
	s.lookups = append(s.lookups, stem)
	s.mu.Unlock()
	if err := s.fail[stem]; err != nil {
		return knowledge.Document{}, err
	}
	for _, d := range s.docs {
		if d.Name == stem {
			return d, nil
		}
	}
	return knowledge.Document{}, ctxengine.Errorf(ctxengine.CodeNotFound, "%s not found", stem)
}

func doc(kind knowledge.SourceKind, stem, body string) knowledge.Document {
	return knowledge.Document{Name: stem, Path: string(kind) + "/" + stem + ".md", Body: body}
}

func newTestPrefetch(t *testing.T, fail map[string]error) (*Prefetch, *clocktest.Fake, *fakeSource) {
	t.Helper()
	chars := &fakeSource{
		kind: knowledge.SourceCharacters,
		docs: []knowledge.Document{
			doc(knowledge.SourceCharacters, "Alice", "Alice is a detective."),
			doc(knowledge.SourceCharacters, "Bob", "Bob is her partner."),
		},
		fail: fail,
	}
	settings := &fakeSource{
		kind: knowledge.SourceSettings,
		docs: []knowledge.Document{doc(knowledge.SourceSettings, "Harbor", "A foggy harbor.")},
	}
	fake := clocktest.New(time.Unix(0, 0))
	p := NewPrefetch(PrefetchConfig{
		Sources:  []Source{chars, settings},
		Clock:    fake,
		Debounce: 300 * time.Millisecond,
	})
	t.Cleanup(p.Close)
	return p, fake, chars
}

func TestPrefetch_DebouncedUpdateResolves(t *testing.T) {
	t.Parallel()

	p, fake, _ := newTestPrefetch(t, nil)
	if st := p.Status(); st.State != StateIdle {
		t.Fatalf("initial state = %s, want idle", st.State)
	}

	p.Update(ctxengine.EditorContext{CurrentParagraph: "Bob waited."})
	p.Update(ctxengine.EditorContext{CurrentParagraph: "At the Harbor, Alice waited."})
	fake.Advance(299 * time.Millisecond)
	if st := p.Status(); st.State != StateIdle {
		t.Fatalf("resolved before the window closed: %s", st.State)
	}
	fake.Advance(time.Millisecond)

	st := p.Status()
	if st.State != StateReady {
		t.Fatalf("state = %s, want ready (%s)", st.State, st.Error)
	}
	if !slices.Equal(st.Resolved.Characters, []string{"Alice.md"}) {
		t.Errorf("characters = %v", st.Resolved.Characters)
	}
	if !slices.Equal(st.Resolved.Settings, []string{"Harbor.md"}) {
		t.Errorf("settings = %v", st.Resolved.Settings)
	}

	frags := p.Fragments()
	if len(frags) != 2 {
		t.Fatalf("fragments = %d, want 2", len(frags))
	}
	if frags[0].ID != "settings:settings/Harbor.md" || frags[0].Priority <= frags[1].Priority {
		t.Errorf("fragments not in resolution order: %s(%d), %s(%d)",
			frags[0].ID, frags[0].Priority, frags[1].ID, frags[1].Priority)
	}
}

func TestPrefetch_LookupFailureKeepsPartialResults(t *testing.T) {
	t.Parallel()

	p, _, _ := newTestPrefetch(t, map[string]error{
		"Bob": ctxengine.Errorf(ctxengine.CodeParseError, "characters/Bob.md: broken frontmatter"),
	})

	st := p.Resolve(t.Context(), ctxengine.EditorContext{SelectedText: "Alice and Bob"})
	if st.State != StateError {
		t.Fatalf("state = %s, want error", st.State)
	}
	if !strings.Contains(st.Error, "broken frontmatter") {
		t.Errorf("error = %q", st.Error)
	}
	if !slices.Equal(st.Resolved.Characters, []string{"Alice.md"}) {
		t.Errorf("characters = %v, want the successful lookup", st.Resolved.Characters)
	}
	if len(p.Fragments()) != 1 {
		t.Errorf("fragments = %d, want 1", len(p.Fragments()))
	}
}

func TestPrefetch_ResolveSupersedesPendingUpdate(t *testing.T) {
	t.Parallel()

	p, fake, chars := newTestPrefetch(t, nil)
	p.Update(ctxengine.EditorContext{CurrentParagraph: "Bob"})
	p.Resolve(t.Context(), ctxengine.EditorContext{CurrentParagraph: "Alice"})
	if fake.Pending() != 0 {
		t.Errorf("pending timers = %d, want 0", fake.Pending())
	}
	fake.Advance(time.Second)

	if got := p.Status().Resolved.Characters; !slices.Equal(got, []string{"Alice.md"}) {
		t.Errorf("characters = %v", got)
	}
	chars.mu.Lock()
	defer chars.mu.Unlock()
	if slices.Contains(chars.lookups, "Bob") {
		t.Errorf("superseded update was resolved: %v", chars.lookups)
	}
}

func TestPrefetch_NoMatchesIsReadyAndEmpty(t *testing.T) {
	t.Parallel()

	p, _, _ := newTestPrefetch(t, nil)
	st := p.Resolve(context.Background(), ctxengine.EditorContext{CurrentParagraph: "nobody here"})
	if st.State != StateReady || len(st.Resolved.Characters) != 0 || len(st.Resolved.Settings) != 0 {
		t.Errorf("status = %+v", st)
	}
}

func TestPrefetch_CloseCancelsPending(t *testing.T) {
	t.Parallel()

	p, fake, chars := newTestPrefetch(t, nil)
	p.Update(ctxengine.EditorContext{CurrentParagraph: "Alice"})
	p.Close()
	p.Close()
	fake.Advance(time.Second)
	p.Update(ctxengine.EditorContext{CurrentParagraph: "Alice"})
	fake.Advance(time.Second)

	if st := p.Status(); st.State != StateIdle {
		t.Errorf("state = %s after Close, want idle", st.State)
	}
	chars.mu.Lock()
	defer chars.mu.Unlock()
	if len(chars.lookups) != 0 {
		t.Errorf("lookups after Close: %v", chars.lookups)
	}
}

func TestLookup_OrderAndPartialFailure(t *testing.T) {
	t.Parallel()

	chars := &fakeSource{
		kind: knowledge.SourceCharacters,
		docs: []knowledge.Document{
			doc(knowledge.SourceCharacters, "Alice", "a"),
			doc(knowledge.SourceCharacters, "Bob", "b"),
		},
		fail: map[string]error{"Bob": ctxengine.Errorf(ctxengine.CodeIOError, "disk")},
	}
	settings := &fakeSource{
		kind: knowledge.SourceSettings,
		docs: []knowledge.Document{doc(knowledge.SourceSettings, "Harbor", "h")},
	}

	docs, err := Lookup(context.Background(), []Source{chars, settings}, "Bob met Alice at the Harbor.")
	if err == nil {
		t.Fatal("expected the Bob lookup error")
	}
	frags := Fragments(docs)
	var ids []string
	for _, f := range frags {
		ids = append(ids, f.ID)
	}
	want := []string{"settings:characters/Alice.md", "settings:settings/Harbor.md"}
	if !slices.Equal(ids, want) {
		t.Fatalf("fragments = %v, want %v", ids, want)
	}
	if frags[0].Priority <= frags[1].Priority {
		t.Errorf("earlier mention should rank higher: %d vs %d", frags[0].Priority, frags[1].Priority)
	}
}
