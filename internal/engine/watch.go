package engine

import (
	"context"

	ctxengine "github.com/flemzord/writenow/internal/context"
	"github.com/flemzord/writenow/internal/knowledge"
	"github.com/flemzord/writenow/internal/reload"
	"github.com/flemzord/writenow/internal/security"
)

// subscriberBuffer is how many change events a slow subscriber may lag
// before events are dropped for it.
const subscriberBuffer = 16

// WatchStatus is the reply of watch:start and watch:stop.
type WatchStatus struct {
	Watching bool `json:"watching"`
}

// ChangeEvent is the changed(paths) notification.
type ChangeEvent struct {
	ProjectID string `json:"projectId"`
	// Paths are relative to the knowledge root.
	Paths []string `json:"paths"`
	// Invalidated lists the sources whose caches were dropped.
	Invalidated []knowledge.SourceKind `json:"invalidated"`
}

// WatchStart implements watch:start. Starting a running watch is a no-op.
func (e *Engine) WatchStart(_ context.Context, projectID string) (WatchStatus, error) {
	p, err := e.project(projectID)
	if err != nil {
		return WatchStatus{}, err
	}

	p.mu.Lock()
	if p.watcher == nil {
		p.watcher = reload.NewChangeWatcher(reload.WatcherConfig{
			Root:     p.knowledge.Layout.KnowledgeRoot(),
			Debounce: e.debounce,
			Clock:    e.clock,
			Logger:   e.logger.With("project", projectID),
			OnChange: func(paths []string) { e.changed(p, paths) },
			Ignore:   []string{string(knowledge.SourceConversations)},
		})
	}
	w := p.watcher
	p.mu.Unlock()

	if w.Running() {
		return WatchStatus{Watching: true}, nil
	}
	// The watch outlives the request that started it.
	if err := w.Start(e.ctx); err != nil {
		return WatchStatus{}, ctxengine.Wrap(ctxengine.CodeIOError, err, "start watch for "+projectID)
	}
	e.audit.Log(security.AuditEvent{Type: security.EventWatchStart, ProjectID: projectID})
	return WatchStatus{Watching: true}, nil
}

// WatchStop implements watch:stop. Stopping an idle watch is a no-op; a
// batch still inside the debounce window is discarded.
func (e *Engine) WatchStop(_ context.Context, projectID string) (WatchStatus, error) {
	p, err := e.project(projectID)
	if err != nil {
		return WatchStatus{}, err
	}
	p.mu.Lock()
	w := p.watcher
	p.mu.Unlock()

	if w != nil && w.Running() {
		w.Stop()
		e.audit.Log(security.AuditEvent{Type: security.EventWatchStop, ProjectID: projectID})
	}
	return WatchStatus{Watching: false}, nil
}

// Subscribe registers for the project's changed notifications. The
// channel is closed when cancel is called or the project shuts down.
func (e *Engine) Subscribe(projectID string) (<-chan ChangeEvent, func(), error) {
	p, err := e.project(projectID)
	if err != nil {
		return nil, nil, err
	}

	ch := make(chan ChangeEvent, subscriberBuffer)
	p.mu.Lock()
	id := p.nextSub
	p.nextSub++
	p.subs[id] = ch
	p.mu.Unlock()

	cancel := func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		if c, ok := p.subs[id]; ok {
			delete(p.subs, id)
			close(c)
		}
	}
	return ch, cancel, nil
}

// changed handles one debounced batch: invalidate the touched sources,
// then notify subscribers.
func (e *Engine) changed(p *project, paths []string) {
	kinds := p.router.Route(paths)

	names := make([]string, len(kinds))
	for i, k := range kinds {
		names[i] = string(k)
	}
	e.metrics.WatchBatch(names)

	ev := ChangeEvent{ProjectID: p.id, Paths: paths, Invalidated: kinds}
	p.mu.Lock()
	defer p.mu.Unlock()
	for id, ch := range p.subs {
		select {
		case ch <- ev:
		default:
			e.logger.Warn("change subscriber lagging, event dropped", "project", p.id, "subscriber", id)
		}
	}
}
