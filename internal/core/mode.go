// Package core is the composition layer.  It assembles sources, the
// connection manager, and the orchestrator into complete operational
// modes and provides a builder that selects the right mode from a
// Config.
//
// Architecture layers (bottom → top):
//
//	source/netctl  →  manager  →  orchestrator  →  core  →  cmd (CLI)
//
// The builder in this package is the single dispatch point between the
// CLI surface and the engine.
package core

import "context"

// Mode represents a complete operational mode of sever (disconnect,
// connections-only, or list).  Each mode owns its full lifecycle from
// engine construction to teardown.
type Mode interface {
	Run(ctx context.Context) error
}
