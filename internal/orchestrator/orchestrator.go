// Package orchestrator implements the top-level emergency disconnect
// state machine: it drives the connection manager's termination path
// and the network collaborator's disconnect path under a fixed
// sequencing policy, aggregates their results, and emits lifecycle
// events.
//
// Ordering policy: network disconnection is strictly ordered after the
// termination+prepare barrier, and it is attempted unconditionally,
// even when every connection termination failed.  Network isolation is
// the primary privacy guarantee.
package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"sever/internal/conn"
	severrors "sever/internal/errors"
	"sever/internal/manager"
	"sever/internal/monitor"
	"sever/internal/netctl"
	"sever/util"
)

// State is the orchestrator's observable lifecycle position.
type State int32

const (
	StateIdle State = iota
	StateTriggered
	StateRunning
	StateDisconnectingNetwork
	StateCompleted
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateTriggered:
		return "triggered"
	case StateRunning:
		return "running"
	case StateDisconnectingNetwork:
		return "disconnecting-network"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Orchestrator executes one emergency disconnect run at a time.  It
// holds no cross-run state: every invocation operates on freshly
// observed system state.
type Orchestrator struct {
	mgr     *manager.Manager
	network netctl.Collaborator

	notifier *Notifier
	// guard serialises full runs; read-only listing elsewhere is not
	// subject to it.
	guard *semaphore.Weighted
	state atomic.Int32

	mon    *monitor.Monitor
	logger *util.Logger
}

// New creates an orchestrator over the given manager and network
// collaborator.
func New(mgr *manager.Manager, network netctl.Collaborator, mon *monitor.Monitor, logger *util.Logger) *Orchestrator {
	return &Orchestrator{
		mgr:      mgr,
		network:  network,
		notifier: NewNotifier(),
		guard:    semaphore.NewWeighted(1),
		mon:      mon,
		logger:   logger,
	}
}

// Notifier exposes the lifecycle event stream for observers.
func (o *Orchestrator) Notifier() *Notifier { return o.notifier }

// State returns the current lifecycle state.
func (o *Orchestrator) State() State { return State(o.state.Load()) }

func (o *Orchestrator) setState(s State) {
	o.state.Store(int32(s))
	o.logger.Debug("state: %s", s)
}

// ExecuteEmergencyDisconnect severs all remote-access channels and the
// host's network connectivity.  It never returns a raw error: every
// failure is folded into the result's Errors list.
//
// Success rule: network-isolation success alone is sufficient to call
// the run successful; otherwise the run succeeds only when connection
// termination fully succeeded with no recorded errors.
func (o *Orchestrator) ExecuteEmergencyDisconnect(ctx context.Context) conn.DisconnectResult {
	return o.run(ctx, true)
}

// TerminateConnectionsOnly runs only the connection termination path,
// for callers that manage network state themselves.  The result always
// reports NetworkDisconnected=false.
func (o *Orchestrator) TerminateConnectionsOnly(ctx context.Context) conn.DisconnectResult {
	return o.run(ctx, false)
}

func (o *Orchestrator) run(ctx context.Context, withNetwork bool) (result conn.DisconnectResult) {
	runID := uuid.NewString()
	start := time.Now()

	if !o.guard.TryAcquire(1) {
		o.logger.Warn("run %s rejected: %v", runID, severrors.ErrRunInProgress)
		return conn.DisconnectResult{
			RunID:   runID,
			Success: false,
			Errors:  []string{severrors.ErrRunInProgress.Error()},
			Elapsed: time.Since(start),
		}
	}
	defer o.guard.Release(1)
	defer o.mon.Time("disconnect_run")()

	// Nothing propagates past this boundary: an unexpected panic
	// becomes a failed result.
	defer func() {
		if r := recover(); r != nil {
			oe := &severrors.OrchestrationError{
				Stage: o.State().String(),
				Err:   fmt.Errorf("%v", r),
			}
			result = conn.DisconnectResult{
				RunID:   runID,
				Success: false,
				Errors:  []string{oe.Error()},
				Elapsed: time.Since(start),
			}
			o.setState(StateFailed)
			o.publishCompleted(result)
		}
	}()

	o.setState(StateTriggered)
	o.notifier.Publish(Event{
		Type:    EventTriggered,
		RunID:   runID,
		Message: "emergency disconnect triggered",
	})
	o.logger.Info("run %s: emergency disconnect triggered", runID)

	// ── Running: terminate connections + prepare network ─────────
	o.setState(StateRunning)

	var (
		sessRes, clientRes conn.BatchResult
		prepareErr         error
		wg                 sync.WaitGroup
	)
	wg.Add(1)
	go func() {
		defer wg.Done()
		sessRes, clientRes = o.mgr.TerminateAll(ctx)
	}()
	if withNetwork {
		wg.Add(1)
		go func() {
			defer wg.Done()
			prepareErr = o.network.PrepareDisconnect(ctx)
		}()
	}
	wg.Wait() // barrier: both phases complete before any network change

	var errs []string
	for id, reason := range sessRes.Failed {
		errs = append(errs, fmt.Sprintf("%s: %s", id, reason))
	}
	for id, reason := range clientRes.Failed {
		errs = append(errs, fmt.Sprintf("%s: %s", id, reason))
	}
	if prepareErr != nil {
		errs = append(errs, severrors.WrapNetwork("prepare", prepareErr).Error())
	}

	terminationOK := sessRes.Success() && clientRes.Success()

	// ── DisconnectingNetwork: always attempted ───────────────────
	networkOK := false
	if withNetwork {
		o.setState(StateDisconnectingNetwork)
		if err := o.network.Disable(ctx); err != nil {
			errs = append(errs, severrors.WrapNetwork("disable", err).Error())
		} else {
			networkOK = true
		}
	}

	success := networkOK || (terminationOK && len(errs) == 0)

	result = conn.DisconnectResult{
		RunID:               runID,
		Success:             success,
		SessionsTerminated:  len(sessRes.Succeeded),
		ClientsTerminated:   len(clientRes.Succeeded),
		NetworkDisconnected: networkOK,
		Errors:              errs,
		Elapsed:             time.Since(start),
	}

	if success {
		o.setState(StateCompleted)
	} else {
		o.setState(StateFailed)
	}
	o.publishCompleted(result)
	o.logger.Info("run %s: %s", runID, result.Summary())
	return result
}

func (o *Orchestrator) publishCompleted(result conn.DisconnectResult) {
	r := result
	o.notifier.Publish(Event{
		Type:    EventCompleted,
		RunID:   result.RunID,
		Message: "emergency disconnect completed",
		Result:  &r,
	})
}
