package config

import (
	"slices"

	"github.com/flemzord/writenow/internal/core"
)

// Resolve returns the configured module IDs in load order: memory and
// provider modules first so their services exist when the engine provisions,
// then the engine, then transports. Within a tier IDs are sorted.
func Resolve(cfg *Config) []string {
	ids := make([]string, 0, len(cfg.Modules))
	for id := range cfg.Modules {
		ids = append(ids, id)
	}
	slices.SortFunc(ids, func(a, b string) int {
		if ta, tb := tier(a), tier(b); ta != tb {
			return ta - tb
		}
		if a < b {
			return -1
		}
		if a > b {
			return 1
		}
		return 0
	})
	return ids
}

func tier(id string) int {
	switch core.ModuleID(id).Namespace() {
	case "memory", "provider":
		return 0
	case "engine":
		return 1
	default:
		return 2
	}
}
