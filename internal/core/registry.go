package core

import (
	"cmp"
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"
)

// registry maps module IDs to constructors. Modules add themselves from
// init(), so the set is fixed by the binary's imports.
var registry = struct {
	sync.RWMutex
	infos map[string]ModuleInfo
}{infos: make(map[string]ModuleInfo)}

// RegisterModule records instance's ModuleInfo. IDs take the form
// "namespace.name"; config.Resolve orders modules by namespace. It panics
// on a malformed or duplicate ID and on a nil constructor.
func RegisterModule(instance Module) {
	info := instance.ModuleInfo()
	if err := checkModuleID(info.ID); err != nil {
		panic(err.Error())
	}
	if info.New == nil {
		panic(fmt.Sprintf("module %s: nil constructor", info.ID))
	}

	registry.Lock()
	defer registry.Unlock()
	if _, dup := registry.infos[string(info.ID)]; dup {
		panic(fmt.Sprintf("module %s registered twice", info.ID))
	}
	registry.infos[string(info.ID)] = info
}

func checkModuleID(id ModuleID) error {
	ns, name, ok := strings.Cut(string(id), ".")
	if !ok || ns == "" || name == "" {
		return fmt.Errorf("module ID %q is not of the form namespace.name", id)
	}
	return nil
}

// GetModule looks up a registered module.
func GetModule(id string) (ModuleInfo, bool) {
	registry.RLock()
	defer registry.RUnlock()
	info, ok := registry.infos[id]
	return info, ok
}

// GetModules returns every registered module ordered by ID.
func GetModules() []ModuleInfo {
	registry.RLock()
	infos := slices.Collect(maps.Values(registry.infos))
	registry.RUnlock()

	slices.SortFunc(infos, func(a, b ModuleInfo) int { return cmp.Compare(a.ID, b.ID) })
	return infos
}

func resetRegistry() {
	registry.Lock()
	defer registry.Unlock()
	clear(registry.infos)
}
