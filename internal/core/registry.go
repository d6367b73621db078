package core

import (
	"cmp"
	"fmt"
	"slices"
	"strings"
	"sync"
)

// registry holds every module compiled into the binary, keyed by module ID.
// Modules add themselves from init() before main runs; everything after
// that is read-only lookups.
var registry = struct {
	sync.RWMutex
	infos map[ModuleID]ModuleInfo
}{infos: make(map[ModuleID]ModuleInfo)}

// RegisterModule records a module type by instantiating it for its
// ModuleInfo. An empty ID, a nil New, or a duplicate ID is a defect in the
// module itself, so it panics. Intended to be called from init().
func RegisterModule(instance Module) {
	info := instance.ModuleInfo()
	if info.ID == "" {
		panic("core: module ID must not be empty")
	}
	if info.New == nil {
		panic(fmt.Sprintf("core: module %s: New must not be nil", info.ID))
	}

	registry.Lock()
	defer registry.Unlock()

	if _, exists := registry.infos[info.ID]; exists {
		panic(fmt.Sprintf("core: module already registered: %s", info.ID))
	}
	registry.infos[info.ID] = info
}

// GetModule returns the ModuleInfo registered under id.
func GetModule(id ModuleID) (ModuleInfo, bool) {
	registry.RLock()
	defer registry.RUnlock()
	info, ok := registry.infos[id]
	return info, ok
}

// GetModules returns every registered module sorted by ID.
func GetModules() []ModuleInfo {
	return modulesWhere(func(ModuleID) bool { return true })
}

// GetModulesByNamespace returns the modules whose ID lives under the given
// namespace prefix ("channel" matches "channel.lark"), sorted by ID.
func GetModulesByNamespace(namespace string) []ModuleInfo {
	prefix := namespace + "."
	return modulesWhere(func(id ModuleID) bool {
		return strings.HasPrefix(string(id), prefix)
	})
}

func modulesWhere(match func(ModuleID) bool) []ModuleInfo {
	registry.RLock()
	defer registry.RUnlock()

	result := make([]ModuleInfo, 0, len(registry.infos))
	for id, info := range registry.infos {
		if match(id) {
			result = append(result, info)
		}
	}
	slices.SortFunc(result, func(a, b ModuleInfo) int {
		return cmp.Compare(a.ID, b.ID)
	})
	return result
}

// resetRegistry clears the registry. Only for testing.
func resetRegistry() {
	registry.Lock()
	defer registry.Unlock()
	registry.infos = make(map[ModuleID]ModuleInfo)
}
