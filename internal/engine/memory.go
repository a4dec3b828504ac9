package engine

import (
	"context"

	"github.com/flemzord/writenow/internal/memory"
	"github.com/flemzord/writenow/internal/security"
)

// MemoryPreview implements memory:injection:preview: the project's memory
// settings and the items the next assembly would inject.
func (e *Engine) MemoryPreview(ctx context.Context, projectID string) (memory.Preview, error) {
	if _, err := e.project(projectID); err != nil {
		return memory.Preview{}, err
	}
	p, err := e.injector.Preview(ctx, projectID)
	if err != nil {
		return memory.Preview{}, err
	}
	e.audit.Log(security.AuditEvent{Type: security.EventMemoryPreview, ProjectID: projectID})
	return p, nil
}
