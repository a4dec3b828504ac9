package entity

import (
	"context"
	"errors"
	"log/slog"
	"path"
	"sync"
	"time"

	"github.com/flemzord/writenow/internal/clock"
	ctxengine "github.com/flemzord/writenow/internal/context"
	"github.com/flemzord/writenow/internal/knowledge"
	"golang.org/x/sync/errgroup"
)

// DefaultDebounce matches the filesystem watcher window.
const DefaultDebounce = 300 * time.Millisecond

// maxParallelLookups bounds concurrent document lookups per resolution.
const maxParallelLookups = 4

// State is the prefetch lifecycle state.
type State string

// Prefetch states.
const (
	StateIdle    State = "idle"
	StateLoading State = "loading"
	StateReady   State = "ready"
	StateError   State = "error"
)

// Source is a document store that can be searched by file stem.
type Source interface {
	Kind() knowledge.SourceKind
	Documents(ctx context.Context) []knowledge.Document
	Lookup(ctx context.Context, stem string) (knowledge.Document, error)
}

// Resolved lists the file names of prefetched documents.
type Resolved struct {
	Characters []string `json:"characters"`
	Settings   []string `json:"settings"`
}

// Status is a point-in-time view of a Prefetch.
type Status struct {
	State    State    `json:"state"`
	Resolved Resolved `json:"resolved"`
	Error    string   `json:"error,omitempty"`
}

// PrefetchConfig configures a Prefetch.
type PrefetchConfig struct {
	Sources  []Source
	Clock    clock.Clock
	Debounce time.Duration
	Logger   *slog.Logger
}

// Prefetch resolves the entities mentioned in the editor context into
// knowledge documents ahead of assembly. Editor updates are debounced; a
// resolution overtaken by a newer update is discarded.
type Prefetch struct {
	sources  []Source
	clock    clock.Clock
	debounce time.Duration
	logger   *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	state   State
	docs    []ResolvedDocument
	lastErr error
	text    string
	gen     uint64
	timer   clock.Timer
	closed  bool
}

// ResolvedDocument is a document found for a detected entity.
type ResolvedDocument struct {
	Kind     knowledge.SourceKind
	Document knowledge.Document
}

// NewPrefetch creates an idle Prefetch.
func NewPrefetch(cfg PrefetchConfig) *Prefetch {
	if cfg.Clock == nil {
		cfg.Clock = clock.Real{}
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultDebounce
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Prefetch{
		sources:  cfg.Sources,
		clock:    cfg.Clock,
		debounce: cfg.Debounce,
		logger:   logger.With("component", "prefetch"),
		ctx:      ctx,
		cancel:   cancel,
		state:    StateIdle,
	}
}

// ScanText is the part of the editor context searched for entity names.
func ScanText(editor ctxengine.EditorContext) string {
	return editor.CurrentParagraph + "\n" + editor.SelectedText
}

// Update records a new editor context. Resolution runs once the debounce
// window that the first pending update opened elapses, on the latest text.
func (p *Prefetch) Update(editor ctxengine.EditorContext) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.text = ScanText(editor)
	p.gen++
	if p.timer == nil {
		p.timer = p.clock.AfterFunc(p.debounce, p.fire)
	}
}

func (p *Prefetch) fire() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.timer = nil
	gen, text := p.gen, p.text
	p.state = StateLoading
	p.wg.Add(1)
	p.mu.Unlock()

	defer p.wg.Done()
	p.resolve(p.ctx, gen, text)
}

// Resolve runs a resolution immediately for editor and returns the
// resulting status. A pending debounced update is superseded.
func (p *Prefetch) Resolve(ctx context.Context, editor ctxengine.EditorContext) Status {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return p.Status()
	}
	p.gen++
	gen := p.gen
	text := ScanText(editor)
	p.text = text
	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}
	p.state = StateLoading
	p.wg.Add(1)
	p.mu.Unlock()

	defer p.wg.Done()
	p.resolve(ctx, gen, text)
	return p.Status()
}

// Lookup detects the entities named in text and loads their documents.
// Documents come back in order of first mention. Lookup failures are
// joined into the error; the documents that did load are still returned.
func Lookup(ctx context.Context, sources []Source, text string) ([]ResolvedDocument, error) {
	byKind := make(map[knowledge.SourceKind]Source, len(sources))
	var candidates []Candidate
	for _, s := range sources {
		byKind[s.Kind()] = s
		candidates = append(candidates, CandidatesFrom(s.Kind(), s.Documents(ctx))...)
	}
	matches := NewDetector(candidates).Detect(text)

	found := make([]*ResolvedDocument, len(matches))
	errs := make([]error, len(matches))
	var g errgroup.Group
	g.SetLimit(maxParallelLookups)
	for i, m := range matches {
		g.Go(func() error {
			doc, err := byKind[m.Kind].Lookup(ctx, m.Stem)
			if err != nil {
				errs[i] = err
				return nil
			}
			found[i] = &ResolvedDocument{Kind: m.Kind, Document: doc}
			return nil
		})
	}
	_ = g.Wait()

	docs := make([]ResolvedDocument, 0, len(found))
	for _, d := range found {
		if d != nil {
			docs = append(docs, *d)
		}
	}
	return docs, errors.Join(errs...)
}

// Fragments turns resolved documents into settings-layer fragments.
// Priority falls with resolution order, so earlier mentions sort first.
func Fragments(docs []ResolvedDocument) []ctxengine.Fragment {
	out := make([]ctxengine.Fragment, 0, len(docs))
	for i, d := range docs {
		out = append(out, d.Document.Fragment(len(docs)-i))
	}
	return out
}

func (p *Prefetch) resolve(ctx context.Context, gen uint64, text string) {
	docs, err := Lookup(ctx, p.sources, text)

	p.mu.Lock()
	defer p.mu.Unlock()
	if gen != p.gen || p.closed {
		return
	}
	p.docs = docs
	p.lastErr = err
	if err != nil {
		p.state = StateError
		p.logger.Warn("entity lookup failed", "resolved", len(docs), "error", err)
		return
	}
	p.state = StateReady
	p.logger.Debug("entities resolved", "resolved", len(docs))
}

// Status returns the current state and resolved file names.
func (p *Prefetch) Status() Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	st := Status{
		State:    p.state,
		Resolved: Resolved{Characters: []string{}, Settings: []string{}},
	}
	for _, d := range p.docs {
		name := path.Base(d.Document.Path)
		if d.Kind == knowledge.SourceCharacters {
			st.Resolved.Characters = append(st.Resolved.Characters, name)
		} else {
			st.Resolved.Settings = append(st.Resolved.Settings, name)
		}
	}
	if p.lastErr != nil {
		st.Error = p.lastErr.Error()
	}
	return st
}

// Fragments returns the resolved documents as settings-layer fragments.
func (p *Prefetch) Fragments() []ctxengine.Fragment {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Fragments(p.docs)
}

// Close cancels pending work and waits for an in-flight resolution.
func (p *Prefetch) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}
	p.mu.Unlock()

	p.cancel()
	p.wg.Wait()
}
