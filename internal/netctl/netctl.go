// Package netctl defines the network collaborator boundary: the one
// external capability the orchestrator invokes to sever the host's
// connectivity.  Network isolation is the engine's primary guarantee,
// so implementations must keep PrepareDisconnect side-effect-free and
// make Disable as unconditional as the platform allows.
package netctl

import "context"

// Collaborator is the capability interface for host network control.
type Collaborator interface {
	// PrepareDisconnect verifies the collaborator is ready to act
	// (tooling present, interfaces resolvable).  It must not change
	// any network state.
	PrepareDisconnect(ctx context.Context) error

	// Disable severs the host's network connectivity.  Failures are
	// recorded by the orchestrator, never fatal to the run.
	Disable(ctx context.Context) error
}
