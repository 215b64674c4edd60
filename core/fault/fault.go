// Package fault holds the internal error taxonomy shared by the facades.
//
// The RPC surface never exposes these: a failed call collapses to the
// documented sentinel (null, false, -1, or 0) for compatibility with the
// scripting clients. The taxonomy exists so logs and diagnostics can tell
// apart an invalid identifier from a platform refusal.
package fault

import "errors"

var (
	// ErrNotFound means an identifier had no live registry entry.
	ErrNotFound = errors.New("not found")

	// ErrResourceUnavailable means the platform ran out of a resource
	// (SPIs, sockets, ranging slots).
	ErrResourceUnavailable = errors.New("resource unavailable")

	// ErrPlatformRejected means the platform refused an otherwise
	// well-formed request.
	ErrPlatformRejected = errors.New("platform rejected")

	// ErrEncoding means an RPC parameter could not be converted to the
	// platform representation.
	ErrEncoding = errors.New("encoding error")

	// ErrNotReady means the backing service proxy is not connected yet.
	ErrNotReady = errors.New("not ready")
)
