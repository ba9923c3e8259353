// Package api
//
// Live debug and introspection support.

package api

// Debug exposes runtime introspection.
type Debug interface {
	// DumpState emits a snapshot of system state for diagnostics.
	DumpState() map[string]any

	// RegisterProbe dynamically registers a new debug probe.
	RegisterProbe(name string, fn func() any)
}
