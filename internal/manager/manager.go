// Package manager aggregates the two connection sources behind the
// TTL cache and the batch queue, presenting a single connection list
// and a single termination operation that tolerate partial failure of
// either underlying source.
package manager

import (
	"context"
	"fmt"
	"strconv"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"sever/internal/batch"
	"sever/internal/cache"
	"sever/internal/conn"
	severrors "sever/internal/errors"
	"sever/internal/monitor"
	"sever/internal/retry"
	"sever/internal/source"
	"sever/util"
)

// connListKey caches the combined connection list.  Rapid repeated
// calls during the emergency sequence must not repeat expensive system
// queries, hence the short TTL.
const connListKey = "connections:active"

// Config holds the manager's tuneables.
type Config struct {
	// ConnectionListTTL is the cache TTL for the combined connection
	// list (default 3s).
	ConnectionListTTL time.Duration
	// CacheSweepInterval drives the cache's background cleanup
	// (default 30s).
	CacheSweepInterval time.Duration
	// MaxConcurrentFills bounds concurrent cache recomputation
	// (default 4).
	MaxConcurrentFills int64

	// Queue configures the termination batch queue.
	Queue batch.Config

	// GracefulBackoff is the retry budget of each first (graceful)
	// termination tier.  Nil means [retry.DefaultBackoff].
	GracefulBackoff *retry.Backoff
	// EscalatedBackoff is the retry budget of each later tier.  Nil
	// means a two-attempt budget.
	EscalatedBackoff *retry.Backoff

	// BreakerFailures and BreakerReset configure the per-source
	// enumeration circuit breakers.
	BreakerFailures int
	BreakerReset    time.Duration

	// ProtectedUsers own sessions that are never terminated, in
	// addition to the local console.
	ProtectedUsers []string
}

func (c *Config) applyDefaults() {
	if c.ConnectionListTTL <= 0 {
		c.ConnectionListTTL = 3 * time.Second
	}
	if c.CacheSweepInterval <= 0 {
		c.CacheSweepInterval = 30 * time.Second
	}
	if c.MaxConcurrentFills <= 0 {
		c.MaxConcurrentFills = 4
	}
	if c.EscalatedBackoff == nil {
		c.EscalatedBackoff = &retry.Backoff{
			InitialDelay: 200 * time.Millisecond,
			MaxDelay:     time.Second,
			Multiplier:   2.0,
			MaxAttempts:  2,
		}
	}
}

// Manager is the cache- and batch-accelerated view over both
// connection sources.
type Manager struct {
	sessions source.SessionSource
	clients  source.ClientProcessSource

	cache *cache.Cache[[]conn.Connection]
	queue *batch.Queue

	sessionBreaker *retry.CircuitBreaker
	clientBreaker  *retry.CircuitBreaker

	cfg    Config
	mon    *monitor.Monitor
	logger *util.Logger
}

// New wires a manager over the given sources.  Close must be called on
// teardown to stop the cache sweeper and drain the queue.
func New(sessions source.SessionSource, clients source.ClientProcessSource, cfg Config, mon *monitor.Monitor, logger *util.Logger) *Manager {
	cfg.applyDefaults()
	m := &Manager{
		sessions:       sessions,
		clients:        clients,
		sessionBreaker: retry.NewCircuitBreaker(cfg.BreakerFailures, cfg.BreakerReset),
		clientBreaker:  retry.NewCircuitBreaker(cfg.BreakerFailures, cfg.BreakerReset),
		cfg:            cfg,
		mon:            mon,
		logger:         logger,
	}
	m.cache = cache.New[[]conn.Connection](cfg.MaxConcurrentFills, cfg.CacheSweepInterval, logger.Tagged("cache"))
	m.queue = batch.NewQueue(cfg.Queue, m.executeOp, logger.Tagged("batch"))
	return m
}

// Close stops the cache sweeper and shuts the batch queue down,
// resolving any still-pending operations as cancelled.
func (m *Manager) Close() {
	m.queue.Close()
	m.cache.Close()
}

// ── Listing ──────────────────────────────────────────────────────────

// ListActive returns the combined connection list from both sources,
// served from the cache within its TTL.  A failing source degrades to
// its fallback rather than failing the whole call.
func (m *Manager) ListActive(ctx context.Context) ([]conn.Connection, error) {
	defer m.mon.Time("list_active")()

	return m.cache.GetOrSet(ctx, connListKey, m.cfg.ConnectionListTTL,
		func(ctx context.Context) ([]conn.Connection, error) {
			var sessions, clients []conn.Connection

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				sessions = m.sessionConnections(gctx)
				return nil
			})
			g.Go(func() error {
				clients = m.clientConnections(gctx)
				return nil
			})
			_ = g.Wait()

			return append(sessions, clients...), nil
		})
}

// InvalidateConnections drops the cached connection list so the next
// detection pass observes fresh state.
func (m *Manager) InvalidateConnections() {
	m.cache.Invalidate(connListKey)
}

// sessionConnections enumerates inbound sessions, falling back to the
// always-present local console when the platform call fails.
func (m *Manager) sessionConnections(ctx context.Context) []conn.Connection {
	var descriptors []conn.SessionDescriptor
	err := m.sessionBreaker.Execute(func() error {
		var enumErr error
		descriptors, enumErr = m.sessions.EnumerateSessions(ctx)
		return enumErr
	})
	if err != nil {
		m.logger.Warn("session enumeration failed (%v), assuming console only", err)
		return []conn.Connection{consoleConnection()}
	}

	out := make([]conn.Connection, 0, len(descriptors))
	for _, d := range descriptors {
		c := conn.Connection{
			ID:           conn.SessionConnectionID(d.SessionID),
			Kind:         conn.IncomingSession,
			SessionID:    d.SessionID,
			ClientName:   d.StationName,
			ConnectState: d.State,
		}
		if m.sessions.IsRemoteSession(d) {
			if details, err := m.sessions.QueryDetails(ctx, d.SessionID); err == nil && details != nil {
				c.UserName = details.UserName
				if details.ClientName != "" {
					c.ClientName = details.ClientName
				}
				c.ClientAddress = details.ClientAddress
				c.ConnectedAt = details.ConnectedAt
			}
		}
		out = append(out, c)
	}
	return out
}

// clientConnections enumerates outbound client processes, falling back
// to an empty list when the platform call fails.
func (m *Manager) clientConnections(ctx context.Context) []conn.Connection {
	var descriptors []conn.ProcessDescriptor
	err := m.clientBreaker.Execute(func() error {
		var enumErr error
		descriptors, enumErr = m.clients.EnumerateClients(ctx)
		return enumErr
	})
	if err != nil {
		m.logger.Warn("client enumeration failed (%v), assuming none", err)
		return nil
	}

	out := make([]conn.Connection, 0, len(descriptors))
	for _, d := range descriptors {
		c := conn.Connection{
			ID:           conn.ClientConnectionID(d.PID),
			Kind:         conn.OutgoingClient,
			ProcessID:    d.PID,
			ClientName:   d.Name,
			ConnectState: "running",
		}
		if details, err := m.clients.QueryDetails(ctx, d.PID); err == nil && details != nil {
			c.UserName = details.UserName
			c.ClientAddress = details.RemoteAddress
			c.ConnectedAt = details.StartedAt
		}
		out = append(out, c)
	}
	return out
}

func consoleConnection() conn.Connection {
	return conn.Connection{
		ID:           conn.SessionConnectionID(0),
		Kind:         conn.IncomingSession,
		SessionID:    0,
		UserName:     "console",
		ClientName:   "console",
		ConnectState: "active",
	}
}

// ── Termination ──────────────────────────────────────────────────────

// TerminateSessions terminates every remote inbound session through
// the batch queue, one operation per session.  Per-item failures never
// abort the siblings.
func (m *Manager) TerminateSessions(ctx context.Context) conn.BatchResult {
	defer m.mon.Time("terminate_sessions")()

	var targets []int
	for _, d := range m.remoteSessionDescriptors(ctx) {
		targets = append(targets, d.SessionID)
	}
	return m.terminateBatch(ctx, batch.SessionTermination, targets, conn.SessionConnectionID)
}

// TerminateClients terminates every outbound client process through
// the batch queue.
func (m *Manager) TerminateClients(ctx context.Context) conn.BatchResult {
	defer m.mon.Time("terminate_clients")()

	var targets []int
	descriptors, err := m.enumerateClientsWithBreaker(ctx)
	if err != nil {
		m.logger.Warn("client enumeration failed (%v), nothing to terminate", err)
	}
	for _, d := range descriptors {
		targets = append(targets, d.PID)
	}
	return m.terminateBatch(ctx, batch.ProcessTermination, targets, conn.ClientConnectionID)
}

// TerminateAll invalidates the cached connection list (so any re-check
// observes fresh state), then runs session and client termination
// concurrently.  The combined run succeeds only if both halves do.
func (m *Manager) TerminateAll(ctx context.Context) (sessions, clients conn.BatchResult) {
	defer m.mon.Time("terminate_all")()

	m.InvalidateConnections()

	done := make(chan struct{})
	go func() {
		defer close(done)
		clients = m.TerminateClients(ctx)
	}()
	sessions = m.TerminateSessions(ctx)
	<-done
	return sessions, clients
}

func (m *Manager) remoteSessionDescriptors(ctx context.Context) []conn.SessionDescriptor {
	var descriptors []conn.SessionDescriptor
	err := m.sessionBreaker.Execute(func() error {
		var enumErr error
		descriptors, enumErr = m.sessions.EnumerateSessions(ctx)
		return enumErr
	})
	if err != nil {
		// Fallback view contains only the console, which is not
		// remote, so there is nothing to terminate.
		m.logger.Warn("session enumeration failed (%v), nothing to terminate", err)
		return nil
	}

	var remote []conn.SessionDescriptor
	for _, d := range descriptors {
		if !m.sessions.IsRemoteSession(d) {
			continue
		}
		if len(m.cfg.ProtectedUsers) > 0 {
			if user := m.sessionUser(ctx, d.SessionID); m.isProtectedUser(user) {
				m.logger.Info("sparing session %d: user %q is protected by policy", d.SessionID, user)
				continue
			}
		}
		remote = append(remote, d)
	}
	return remote
}

func (m *Manager) sessionUser(ctx context.Context, sessionID int) string {
	details, err := m.sessions.QueryDetails(ctx, sessionID)
	if err != nil || details == nil {
		return ""
	}
	return details.UserName
}

func (m *Manager) isProtectedUser(user string) bool {
	if user == "" {
		return false
	}
	for _, u := range m.cfg.ProtectedUsers {
		if u == user {
			return true
		}
	}
	return false
}

func (m *Manager) enumerateClientsWithBreaker(ctx context.Context) ([]conn.ProcessDescriptor, error) {
	var descriptors []conn.ProcessDescriptor
	err := m.clientBreaker.Execute(func() error {
		var enumErr error
		descriptors, enumErr = m.clients.EnumerateClients(ctx)
		return enumErr
	})
	return descriptors, err
}

// terminateBatch submits one queue operation per target, forces an
// immediate flush (the emergency path cannot afford a batch interval),
// and awaits the aggregate result.
func (m *Manager) terminateBatch(ctx context.Context, kind batch.OpKind, targets []int, idFor func(int) string) conn.BatchResult {
	start := time.Now()
	result := conn.BatchResult{
		Attempted: len(targets),
		Failed:    make(map[string]string),
	}
	if len(targets) == 0 {
		result.Elapsed = time.Since(start)
		return result
	}

	pendings := make(map[string]*batch.Pending, len(targets))
	for _, target := range targets {
		id := idFor(target)
		p, err := m.queue.Enqueue(kind, strconv.Itoa(target))
		if err != nil {
			result.Failed[id] = err.Error()
			continue
		}
		pendings[id] = p
	}

	m.queue.FlushNow(ctx)

	for id, p := range pendings {
		ok, err := p.Wait(ctx)
		switch {
		case ok:
			result.Succeeded = append(result.Succeeded, id)
		case err != nil:
			result.Failed[id] = err.Error()
		default:
			result.Failed[id] = "termination failed"
		}
	}

	result.Elapsed = time.Since(start)
	m.logger.Info("%s batch: %d attempted, %d succeeded, %d failed in %v",
		kind, result.Attempted, len(result.Succeeded), len(result.Failed),
		result.Elapsed.Truncate(time.Millisecond))
	return result
}

// executeOp is the queue's executor: the real tiered-retry termination
// path for one connection.
func (m *Manager) executeOp(ctx context.Context, op batch.Operation) error {
	target, err := strconv.Atoi(op.TargetID)
	if err != nil {
		return fmt.Errorf("bad target id %q: %w", op.TargetID, err)
	}

	switch op.Kind {
	case batch.SessionTermination:
		return retry.RunTiers(ctx, []retry.Tier{
			{Name: "logoff", Backoff: m.gracefulBackoff(), Attempt: m.tierAttempt("session", op.TargetID, "logoff", func(ctx context.Context) error {
				return m.sessions.Logoff(ctx, target)
			})},
			{Name: "disconnect", Backoff: m.cfg.EscalatedBackoff, Attempt: m.tierAttempt("session", op.TargetID, "disconnect", func(ctx context.Context) error {
				return m.sessions.Disconnect(ctx, target)
			})},
			{Name: "force", Backoff: m.cfg.EscalatedBackoff, Attempt: m.tierAttempt("session", op.TargetID, "force", func(ctx context.Context) error {
				return m.sessions.Force(ctx, target)
			})},
		}, m.logger)

	case batch.ProcessTermination:
		return retry.RunTiers(ctx, []retry.Tier{
			{Name: "terminate", Backoff: m.gracefulBackoff(), Attempt: m.tierAttempt("client", op.TargetID, "terminate", func(ctx context.Context) error {
				return m.clients.Terminate(ctx, target)
			})},
			{Name: "kill", Backoff: m.cfg.EscalatedBackoff, Attempt: m.tierAttempt("client", op.TargetID, "kill", func(ctx context.Context) error {
				return m.clients.Kill(ctx, target)
			})},
		}, m.logger)

	default:
		return fmt.Errorf("unknown operation kind %v", op.Kind)
	}
}

// tierAttempt wraps one source call with error classification:
// non-retryable platform errors short-circuit the tier's remaining
// budget via retry.Permanent.  A target that vanished between
// enumeration and termination already satisfies the goal, so
// no-such-target counts as success rather than a failed termination.
func (m *Manager) tierAttempt(kind, target, tier string, call func(ctx context.Context) error) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		err := call(ctx)
		if err == nil {
			return nil
		}
		if severrors.Is(err, syscall.ESRCH) {
			m.logger.Verbose("%s %s already gone during %s", kind, target, tier)
			return nil
		}
		te := severrors.WrapTermination(kind, target, tier, err)
		if !te.Retryable {
			return retry.Permanent(te)
		}
		return te
	}
}

func (m *Manager) gracefulBackoff() *retry.Backoff {
	if m.cfg.GracefulBackoff != nil {
		return m.cfg.GracefulBackoff
	}
	return retry.DefaultBackoff()
}

// ── Statistics ───────────────────────────────────────────────────────

// CacheStats exposes the connection cache counters.
func (m *Manager) CacheStats() cache.Stats { return m.cache.Stats() }

// QueueStats exposes the batch queue counters.
func (m *Manager) QueueStats() batch.Stats { return m.queue.Stats() }
