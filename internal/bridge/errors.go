// Package bridge routes inbound messages to the gateway as conversation
// turns, serializing work per conversation while independent conversations
// run concurrently, and renders replies back through the channel layer.
package bridge

import "errors"

// Sentinel errors for bridge operations.
var (
	// ErrInboxFull indicates the inbox is at capacity and the incoming
	// message was dropped. Callers should back off or alert the operator.
	ErrInboxFull = errors.New("bridge: inbox full, message dropped")

	// ErrStopped indicates the router has been shut down and no longer
	// accepts messages.
	ErrStopped = errors.New("bridge: stopped")

	// ErrNoDispatcher indicates no channel dispatcher was configured.
	ErrNoDispatcher = errors.New("bridge: no dispatcher configured")

	// ErrNoAgent indicates no gateway agent client was configured.
	ErrNoAgent = errors.New("bridge: no agent client configured")
)
