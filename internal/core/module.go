// Package core provides the module system the writenow daemon is assembled
// from: a registry of module constructors, a shared AppContext, and the App
// lifecycle that provisions, starts, reloads and stops modules in order.
package core

// ModuleID is a namespaced module identifier such as "engine.context" or
// "memory.sqlite".
type ModuleID string

// Namespace returns the part of the ID before the first dot.
func (id ModuleID) Namespace() string {
	for i := 0; i < len(id); i++ {
		if id[i] == '.' {
			return string(id[:i])
		}
	}
	return string(id)
}

// ModuleInfo describes a registered module.
type ModuleInfo struct {
	ID  ModuleID
	New func() Module
}

// Module is implemented by everything that can be registered with the App.
type Module interface {
	ModuleInfo() ModuleInfo
}
