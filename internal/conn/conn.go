// Package conn defines the connection data model shared by the source
// adapters, the connection manager, and the orchestrator.
//
// A Connection is constructed fresh on every detection pass and never
// mutated in place: a new pass produces a new set, with no persistent
// identity across passes.
package conn

import (
	"fmt"
	"time"
)

// Kind distinguishes the two remote-access channel types.  The kind
// determines which source adapter owns the connection; termination
// paths are never mixed for a given id.
type Kind int

const (
	// IncomingSession is an inbound remote session to this host.
	IncomingSession Kind = iota
	// OutgoingClient is an outbound remote-access client process
	// running on this host.
	OutgoingClient
)

func (k Kind) String() string {
	switch k {
	case IncomingSession:
		return "session"
	case OutgoingClient:
		return "client"
	default:
		return "unknown"
	}
}

// Connection identifies one remote channel observed during a
// detection pass.
type Connection struct {
	ID            string
	Kind          Kind
	SessionID     int // valid when Kind == IncomingSession
	ProcessID     int // valid when Kind == OutgoingClient
	UserName      string
	ClientName    string
	ClientAddress string
	ConnectState  string
	ConnectedAt   time.Time
}

// SessionConnectionID builds the canonical id for an inbound session.
func SessionConnectionID(sessionID int) string {
	return fmt.Sprintf("session-%d", sessionID)
}

// ClientConnectionID builds the canonical id for an outbound client
// process.
func ClientConnectionID(pid int) string {
	return fmt.Sprintf("client-%d", pid)
}

// ── Source descriptor types ──────────────────────────────────────────

// SessionDescriptor is one entry from a session enumeration.
type SessionDescriptor struct {
	SessionID   int
	StationName string
	State       string
}

// SessionDetails carries the optional per-session metadata returned by
// a detail query.
type SessionDetails struct {
	UserName      string
	ClientName    string
	ClientAddress string
	ConnectedAt   time.Time
}

// ProcessDescriptor is one entry from a client-process enumeration.
type ProcessDescriptor struct {
	PID  int
	Name string
}

// ProcessDetails carries the optional per-process metadata returned by
// a detail query.
type ProcessDetails struct {
	UserName      string
	RemoteAddress string
	StartedAt     time.Time
}

// ── Result types ─────────────────────────────────────────────────────

// BatchResult aggregates the outcome of one termination batch.
// Immutable once produced.
type BatchResult struct {
	Attempted int
	Succeeded []string
	Failed    map[string]string // id → reason
	Elapsed   time.Duration
}

// Success reports whether every attempted termination succeeded.
func (r BatchResult) Success() bool {
	return len(r.Failed) == 0
}

// Merge combines two batch results into a new one.
func (r BatchResult) Merge(other BatchResult) BatchResult {
	out := BatchResult{
		Attempted: r.Attempted + other.Attempted,
		Succeeded: append(append([]string(nil), r.Succeeded...), other.Succeeded...),
		Failed:    make(map[string]string, len(r.Failed)+len(other.Failed)),
		Elapsed:   r.Elapsed,
	}
	if other.Elapsed > out.Elapsed {
		out.Elapsed = other.Elapsed
	}
	for id, reason := range r.Failed {
		out.Failed[id] = reason
	}
	for id, reason := range other.Failed {
		out.Failed[id] = reason
	}
	return out
}

// DisconnectResult is the aggregate outcome of one orchestration run.
// Produced once per run; immutable.
type DisconnectResult struct {
	RunID               string
	Success             bool
	SessionsTerminated  int
	ClientsTerminated   int
	NetworkDisconnected bool
	Errors              []string
	Elapsed             time.Duration
}

// Summary renders a one-line human-readable outcome.
func (r DisconnectResult) Summary() string {
	status := "FAILED"
	if r.Success {
		status = "ok"
	}
	return fmt.Sprintf("%s: %d sessions, %d clients terminated, network disconnected=%v, %d error(s), %v",
		status, r.SessionsTerminated, r.ClientsTerminated,
		r.NetworkDisconnected, len(r.Errors), r.Elapsed.Truncate(time.Millisecond))
}
