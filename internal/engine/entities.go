package engine

import (
	"context"

	ctxengine "github.com/flemzord/writenow/internal/context"
	"github.com/flemzord/writenow/internal/entity"
)

// EditorChanged records a new editor context. Entity resolution runs after
// the debounce window; the returned status is the one before it.
func (e *Engine) EditorChanged(_ context.Context, projectID string, editor ctxengine.EditorContext) (entity.Status, error) {
	p, err := e.project(projectID)
	if err != nil {
		return entity.Status{}, err
	}
	p.prefetch.Update(editor)
	return p.prefetch.Status(), nil
}

// EntityStatus implements entities:status.
func (e *Engine) EntityStatus(_ context.Context, projectID string) (entity.Status, error) {
	p, err := e.project(projectID)
	if err != nil {
		return entity.Status{}, err
	}
	return p.prefetch.Status(), nil
}
