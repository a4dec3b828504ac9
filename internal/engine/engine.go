// Package engine is the service object behind every boundary call of the
// context assembly engine. It owns one knowledge cache, entity prefetcher
// and optional change watcher per project, plus the shared assembler,
// conversation store and memory injector.
package engine

import (
	"context"
	"log/slog"
	"maps"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/flemzord/writenow/internal/clock"
	ctxengine "github.com/flemzord/writenow/internal/context"
	"github.com/flemzord/writenow/internal/conversation"
	"github.com/flemzord/writenow/internal/entity"
	"github.com/flemzord/writenow/internal/knowledge"
	"github.com/flemzord/writenow/internal/memory"
	"github.com/flemzord/writenow/internal/provider"
	"github.com/flemzord/writenow/internal/reload"
	"github.com/flemzord/writenow/internal/security"
	"github.com/flemzord/writenow/internal/telemetry"
	"go.opentelemetry.io/otel/trace"
)

// Options configures an Engine. Only Projects is required.
type Options struct {
	// Projects maps project ids to absolute project roots.
	Projects map[string]string

	Debounce      time.Duration
	Clock         clock.Clock
	Assembler     ctxengine.Config
	DefaultBudget ctxengine.Budget

	// MemoryStore defaults to an in-memory store.
	MemoryStore     memory.Store
	MemoryMaxItems  int
	MemoryMaxTokens int

	// SummaryModel is optional; without it summaries are heuristic.
	SummaryModel   provider.Provider
	SummaryTimeout time.Duration

	Redactor *security.Redactor
	Audit    *security.AuditLogger
	Metrics  *telemetry.Metrics
	Logger   *slog.Logger
}

// Engine implements the engine's boundary calls. It is safe for concurrent
// use; calls for different projects never contend.
type Engine struct {
	clock         clock.Clock
	debounce      time.Duration
	defaultBudget ctxengine.Budget

	assembler     *ctxengine.ContextAssembler
	conversations *conversation.Store
	summaries     *conversation.SummaryGenerator
	injector      *memory.Injector

	audit   *security.AuditLogger
	metrics *telemetry.Metrics
	tracer  trace.Tracer
	logger  *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	roots    map[string]string
	projects map[string]*project
	closed   bool
}

// project is the per-project state, created on first use.
type project struct {
	id        string
	knowledge *knowledge.Project
	prefetch  *entity.Prefetch
	router    *reload.Router

	mu      sync.Mutex
	watcher *reload.ChangeWatcher
	subs    map[int]chan ChangeEvent
	nextSub int
}

// New creates an Engine. Nothing is read from disk until the first call.
func New(opts Options) *Engine {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Clock == nil {
		opts.Clock = clock.Real{}
	}
	if opts.DefaultBudget.IsZero() {
		opts.DefaultBudget = ctxengine.DefaultBudget()
	}
	if opts.MemoryStore == nil {
		opts.MemoryStore = memory.NewInMemoryStore()
	}

	assembler := ctxengine.NewContextAssembler(nil, opts.Assembler)
	assembler.SetRedactor(opts.Redactor)

	ctx, cancel := context.WithCancel(context.Background())
	e := &Engine{
		clock:         opts.Clock,
		debounce:      opts.Debounce,
		defaultBudget: opts.DefaultBudget,
		assembler:     assembler,
		summaries:     conversation.NewSummaryGenerator(opts.SummaryModel, opts.SummaryTimeout, logger),
		injector:      memory.NewInjector(opts.MemoryStore, assembler.Estimator(), opts.MemoryMaxItems, opts.MemoryMaxTokens),
		audit:         opts.Audit,
		metrics:       opts.Metrics,
		tracer:        telemetry.Tracer("engine"),
		logger:        logger,
		ctx:           ctx,
		cancel:        cancel,
		roots:         cleanRoots(opts.Projects),
		projects:      make(map[string]*project),
	}
	e.conversations = conversation.NewStore(e.conversationDir, opts.Clock.Now, logger)
	return e
}

func cleanRoots(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for id, root := range in {
		out[id] = filepath.Clean(root)
	}
	return out
}

// Projects returns the configured project ids, sorted.
func (e *Engine) Projects() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return slices.Sorted(maps.Keys(e.roots))
}

// SetProjects replaces the project table. Projects that disappear or move
// are shut down; the others keep their caches and watchers.
func (e *Engine) SetProjects(roots map[string]string) {
	roots = cleanRoots(roots)

	e.mu.Lock()
	var dropped []*project
	for id, p := range e.projects {
		if root, ok := roots[id]; !ok || root != e.roots[id] {
			dropped = append(dropped, p)
			delete(e.projects, id)
		}
	}
	e.roots = roots
	e.mu.Unlock()

	for _, p := range dropped {
		p.close()
		e.logger.Info("project removed", "project", p.id)
	}
}

// Backfill returns the job that regenerates placeholder summaries across
// every configured project.
func (e *Engine) Backfill() *conversation.Backfill {
	return conversation.NewBackfill(e.conversations, e.summaries, e.Projects, e.logger)
}

// Close stops every watcher and prefetcher. Calls made after Close fail.
func (e *Engine) Close() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	projects := slices.Collect(maps.Values(e.projects))
	e.projects = map[string]*project{}
	e.mu.Unlock()

	e.cancel()
	for _, p := range projects {
		p.close()
	}
}

func (e *Engine) project(id string) (*project, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil, ctxengine.Errorf(ctxengine.CodeInternal, "engine is closed")
	}
	if p, ok := e.projects[id]; ok {
		return p, nil
	}
	root, ok := e.roots[id]
	if !ok {
		return nil, ctxengine.Errorf(ctxengine.CodeNotFound, "unknown project %q", id)
	}

	logger := e.logger.With("project", id)
	kp := knowledge.OpenProject(root, logger)
	p := &project{
		id:        id,
		knowledge: kp,
		prefetch: entity.NewPrefetch(entity.PrefetchConfig{
			Sources:  []entity.Source{kp.Characters, kp.Settings},
			Clock:    e.clock,
			Debounce: e.debounce,
			Logger:   logger,
		}),
		router: reload.NewRouter(kp, logger),
		subs:   make(map[int]chan ChangeEvent),
	}
	e.projects[id] = p
	return p, nil
}

func (e *Engine) conversationDir(projectID string) (string, error) {
	e.mu.Lock()
	root, ok := e.roots[projectID]
	e.mu.Unlock()
	if !ok {
		return "", ctxengine.Errorf(ctxengine.CodeNotFound, "unknown project %q", projectID)
	}
	return knowledge.NewLayout(root).Dir(knowledge.SourceConversations), nil
}

func (p *project) close() {
	p.mu.Lock()
	w := p.watcher
	p.watcher = nil
	subs := p.subs
	p.subs = make(map[int]chan ChangeEvent)
	p.mu.Unlock()

	if w != nil {
		w.Stop()
	}
	p.prefetch.Close()
	for _, ch := range subs {
		close(ch)
	}
}
