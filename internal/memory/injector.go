package memory

import (
	"context"
	"fmt"

	ctxengine "github.com/flemzord/writenow/internal/context"
)

// Defaults for the injection caps.
const (
	DefaultMaxItems  = 20
	DefaultMaxTokens = 500
)

// Preview is what the injector would add to the stable prompt prefix.
type Preview struct {
	Settings Settings `json:"settings"`
	Injected Injected `json:"injected"`
}

// Injected lists the items selected for injection.
type Injected struct {
	Memory []Item `json:"memory"`
}

// Injector selects the memory items for a project's prompts.
type Injector struct {
	store     Store
	estimator ctxengine.TokenEstimator
	maxItems  int
	maxTokens int
}

// NewInjector creates an Injector. Non-positive caps fall back to the
// defaults; a nil estimator uses ctxengine's character estimator.
func NewInjector(store Store, estimator ctxengine.TokenEstimator, maxItems, maxTokens int) *Injector {
	if estimator == nil {
		estimator = ctxengine.NewCharEstimator(0)
	}
	if maxItems <= 0 {
		maxItems = DefaultMaxItems
	}
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}
	return &Injector{store: store, estimator: estimator, maxItems: maxItems, maxTokens: maxTokens}
}

// Preview returns the project's settings and the items that would be
// injected. Disabled injection yields an empty list; privacy mode drops
// learned items. Items are taken in id order; one that would overrun
// max_tokens is skipped and later, smaller items still fit.
func (in *Injector) Preview(ctx context.Context, projectID string) (Preview, error) {
	settings, err := in.store.Settings(ctx, projectID)
	if err != nil {
		return Preview{}, fmt.Errorf("memory: load settings: %w", err)
	}
	p := Preview{Settings: settings, Injected: Injected{Memory: []Item{}}}
	if !settings.InjectionEnabled {
		return p, nil
	}

	items, err := in.store.List(ctx, projectID)
	if err != nil {
		return Preview{}, fmt.Errorf("memory: list items: %w", err)
	}

	used := 0
	for _, item := range items {
		if settings.PrivacyMode && item.Origin == OriginLearned {
			continue
		}
		if len(p.Injected.Memory) >= in.maxItems {
			break
		}
		tokens := in.estimator.Estimate(item.Content)
		if used+tokens > in.maxTokens {
			continue
		}
		p.Injected.Memory = append(p.Injected.Memory, item)
		used += tokens
	}
	return p, nil
}

// Notes converts items to the assembler's memory notes.
func Notes(items []Item) []ctxengine.MemoryNote {
	notes := make([]ctxengine.MemoryNote, 0, len(items))
	for _, item := range items {
		notes = append(notes, ctxengine.MemoryNote{ID: item.ID, Type: string(item.Type), Content: item.Content})
	}
	return notes
}
