// Package source defines the capability interfaces through which the
// engine observes and terminates remote-access channels.  Each source
// encapsulates one family of platform calls and is swappable for a
// deterministic simulation, which keeps the orchestration layers
// testable without touching a real session or process table.
package source

import (
	"context"

	"sever/internal/conn"
)

// SessionSource enumerates and terminates inbound remote sessions.
//
// Logoff, Disconnect, and Force form the escalation ladder from
// graceful to last-resort; the connection manager drives them through
// its tiered retry policy.  Enumeration failures should be returned as
// EnumerationError so callers fall back instead of aborting.
type SessionSource interface {
	EnumerateSessions(ctx context.Context) ([]conn.SessionDescriptor, error)
	IsRemoteSession(d conn.SessionDescriptor) bool
	QueryDetails(ctx context.Context, sessionID int) (*conn.SessionDetails, error)
	Logoff(ctx context.Context, sessionID int) error
	Disconnect(ctx context.Context, sessionID int) error
	Force(ctx context.Context, sessionID int) error
}

// ClientProcessSource enumerates and terminates outbound remote-access
// client processes.  Terminate is the cooperative method, Kill the
// forceful one.
type ClientProcessSource interface {
	EnumerateClients(ctx context.Context) ([]conn.ProcessDescriptor, error)
	QueryDetails(ctx context.Context, pid int) (*conn.ProcessDetails, error)
	Terminate(ctx context.Context, pid int) error
	Kill(ctx context.Context, pid int) error
}
