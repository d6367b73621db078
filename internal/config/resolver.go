package config

import (
	"sort"

	"github.com/flemzord/larkbridge/internal/core"
)

// Resolve returns the ordered list of module IDs to load from the config.
// Ordering is deterministic (lexicographic by module ID) so that load and
// start sequences are stable across runs.
func Resolve(cfg *Config) []core.ModuleID {
	ids := make([]core.ModuleID, 0, len(cfg.Modules))
	for name := range cfg.Modules {
		ids = append(ids, core.ModuleID(name))
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
