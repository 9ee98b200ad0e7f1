package source

import (
	"context"
	"sync"
	"time"

	"sever/internal/conn"
	severrors "sever/internal/errors"
	"sever/util"
)

// simDelay mimics the latency of a real platform call so safe-mode
// timing resembles production timing.
const simDelay = 25 * time.Millisecond

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

// ── Simulated session source ─────────────────────────────────────────

// SimSessionSource is a deterministic, side-effect-free SessionSource
// used in safe mode and in tests.  Error fields inject failures;
// terminated ids are recorded and disappear from later enumerations.
type SimSessionSource struct {
	Sessions []conn.SessionDescriptor
	Details  map[int]conn.SessionDetails
	Delay    time.Duration

	EnumerateErr  error
	LogoffErr     error
	DisconnectErr error
	ForceErr      error
	// FailIDs injects a failure for every termination method against
	// the listed session ids, independent of the global error fields.
	FailIDs map[int]error

	mu         sync.Mutex
	calls      map[string]int
	terminated map[int]bool

	logger *util.Logger
}

// NewSimSessionSource returns a source with the standard safe-mode
// fixture: the local console plus one remote session.
func NewSimSessionSource(logger *util.Logger) *SimSessionSource {
	return &SimSessionSource{
		Sessions: []conn.SessionDescriptor{
			{SessionID: 0, StationName: "console", State: "active"},
			{SessionID: 2, StationName: "rdp-tcp#1", State: "active"},
		},
		Details: map[int]conn.SessionDetails{
			2: {
				UserName:      "intruder",
				ClientName:    "DESKTOP-REMOTE",
				ClientAddress: "203.0.113.7",
				ConnectedAt:   time.Now().Add(-12 * time.Minute),
			},
		},
		Delay:      simDelay,
		calls:      make(map[string]int),
		terminated: make(map[int]bool),
		logger:     logger,
	}
}

func (s *SimSessionSource) EnumerateSessions(ctx context.Context) ([]conn.SessionDescriptor, error) {
	s.record("enumerate")
	if err := sleepCtx(ctx, s.Delay); err != nil {
		return nil, err
	}
	if s.EnumerateErr != nil {
		return nil, severrors.WrapEnumeration("sessions", s.EnumerateErr)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]conn.SessionDescriptor, 0, len(s.Sessions))
	for _, d := range s.Sessions {
		if !s.terminated[d.SessionID] {
			out = append(out, d)
		}
	}
	return out, nil
}

func (s *SimSessionSource) IsRemoteSession(d conn.SessionDescriptor) bool {
	return d.StationName != "console"
}

func (s *SimSessionSource) QueryDetails(_ context.Context, sessionID int) (*conn.SessionDetails, error) {
	s.record("query")
	if d, ok := s.Details[sessionID]; ok {
		out := d
		return &out, nil
	}
	return nil, nil
}

func (s *SimSessionSource) Logoff(ctx context.Context, sessionID int) error {
	return s.terminate(ctx, "logoff", sessionID, s.LogoffErr)
}

func (s *SimSessionSource) Disconnect(ctx context.Context, sessionID int) error {
	return s.terminate(ctx, "disconnect", sessionID, s.DisconnectErr)
}

func (s *SimSessionSource) Force(ctx context.Context, sessionID int) error {
	return s.terminate(ctx, "force", sessionID, s.ForceErr)
}

func (s *SimSessionSource) terminate(ctx context.Context, op string, sessionID int, injected error) error {
	s.record(op)
	if err := sleepCtx(ctx, s.Delay); err != nil {
		return err
	}
	if err, ok := s.FailIDs[sessionID]; ok {
		return err
	}
	if injected != nil {
		return injected
	}

	s.mu.Lock()
	s.terminated[sessionID] = true
	s.mu.Unlock()
	s.logger.Debug("sim: %s session %d", op, sessionID)
	return nil
}

// CallCount reports how many times op ("enumerate", "logoff",
// "disconnect", "force", "query") was invoked.
func (s *SimSessionSource) CallCount(op string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[op]
}

func (s *SimSessionSource) record(op string) {
	s.mu.Lock()
	s.calls[op]++
	s.mu.Unlock()
}

// ── Simulated client-process source ──────────────────────────────────

// SimClientSource is the deterministic ClientProcessSource counterpart
// of [SimSessionSource].
type SimClientSource struct {
	Processes []conn.ProcessDescriptor
	Details   map[int]conn.ProcessDetails
	Delay     time.Duration

	EnumerateErr error
	TerminateErr error
	KillErr      error
	// FailIDs injects a failure for every termination method against
	// the listed pids, independent of the global error fields.
	FailIDs map[int]error

	mu         sync.Mutex
	calls      map[string]int
	terminated map[int]bool

	logger *util.Logger
}

// NewSimClientSource returns a source with the standard safe-mode
// fixture: one outbound remote-desktop client process.
func NewSimClientSource(logger *util.Logger) *SimClientSource {
	return &SimClientSource{
		Processes: []conn.ProcessDescriptor{
			{PID: 4242, Name: "xfreerdp"},
		},
		Details: map[int]conn.ProcessDetails{
			4242: {
				UserName:      "operator",
				RemoteAddress: "198.51.100.23:3389",
				StartedAt:     time.Now().Add(-3 * time.Minute),
			},
		},
		Delay:      simDelay,
		calls:      make(map[string]int),
		terminated: make(map[int]bool),
		logger:     logger,
	}
}

func (s *SimClientSource) EnumerateClients(ctx context.Context) ([]conn.ProcessDescriptor, error) {
	s.record("enumerate")
	if err := sleepCtx(ctx, s.Delay); err != nil {
		return nil, err
	}
	if s.EnumerateErr != nil {
		return nil, severrors.WrapEnumeration("clients", s.EnumerateErr)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]conn.ProcessDescriptor, 0, len(s.Processes))
	for _, d := range s.Processes {
		if !s.terminated[d.PID] {
			out = append(out, d)
		}
	}
	return out, nil
}

func (s *SimClientSource) QueryDetails(_ context.Context, pid int) (*conn.ProcessDetails, error) {
	s.record("query")
	if d, ok := s.Details[pid]; ok {
		out := d
		return &out, nil
	}
	return nil, nil
}

func (s *SimClientSource) Terminate(ctx context.Context, pid int) error {
	return s.terminate(ctx, "terminate", pid, s.TerminateErr)
}

func (s *SimClientSource) Kill(ctx context.Context, pid int) error {
	return s.terminate(ctx, "kill", pid, s.KillErr)
}

func (s *SimClientSource) terminate(ctx context.Context, op string, pid int, injected error) error {
	s.record(op)
	if err := sleepCtx(ctx, s.Delay); err != nil {
		return err
	}
	if err, ok := s.FailIDs[pid]; ok {
		return err
	}
	if injected != nil {
		return injected
	}

	s.mu.Lock()
	s.terminated[pid] = true
	s.mu.Unlock()
	s.logger.Debug("sim: %s pid %d", op, pid)
	return nil
}

// CallCount reports how many times op ("enumerate", "terminate",
// "kill", "query") was invoked.
func (s *SimClientSource) CallCount(op string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[op]
}

func (s *SimClientSource) record(op string) {
	s.mu.Lock()
	s.calls[op]++
	s.mu.Unlock()
}
