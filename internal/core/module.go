// Package core provides the module system foundation for larkbridge.
// Every functional unit of the bridge (the gateway session, the chat
// channel, the ops server) is a module registered at init() time and
// driven through a common lifecycle.
package core

// ModuleID uniquely identifies a module, namespaced by dots
// (e.g. "channel.lark", "gateway.session", "ops.http").
type ModuleID string

// ModuleInfo describes a registered module.
type ModuleInfo struct {
	// ID is the module identifier. The part before the first dot is the
	// module namespace.
	ID ModuleID

	// New returns a fresh, unconfigured instance of the module.
	New func() Module
}

// Module is the minimal interface all modules implement.
type Module interface {
	ModuleInfo() ModuleInfo
}
