package gateway

import "errors"

// Sentinel errors for gateway operations.
var (
	// ErrNotConnected indicates a request was issued while the session is
	// not in the Ready state.
	ErrNotConnected = errors.New("gateway: not connected")

	// ErrTimeout indicates a correlated request received no response within
	// its deadline.
	ErrTimeout = errors.New("gateway: request timeout")

	// ErrCancelled indicates a pending request was rejected because the
	// session disconnected or is shutting down.
	ErrCancelled = errors.New("gateway: request cancelled")

	// ErrDuplicateID indicates a request ID collision in the pending table.
	ErrDuplicateID = errors.New("gateway: duplicate request id")

	// ErrHandshake indicates the challenge/connect exchange failed.
	ErrHandshake = errors.New("gateway: handshake failed")

	// ErrMaxAttempts indicates the reconnect policy exhausted its budget.
	// This is fatal for the session.
	ErrMaxAttempts = errors.New("gateway: reconnect attempts exhausted")
)
