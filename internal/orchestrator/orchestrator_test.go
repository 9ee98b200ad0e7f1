package orchestrator

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"sever/internal/batch"
	"sever/internal/conn"
	"sever/internal/manager"
	"sever/internal/netctl"
	"sever/internal/retry"
	"sever/internal/source"
	"sever/util"
)

// fakeCollaborator lets tests script and observe the network boundary.
type fakeCollaborator struct {
	prepare func(ctx context.Context) error
	disable func(ctx context.Context) error

	disables atomic.Int64
}

func (f *fakeCollaborator) PrepareDisconnect(ctx context.Context) error {
	if f.prepare != nil {
		return f.prepare(ctx)
	}
	return nil
}

func (f *fakeCollaborator) Disable(ctx context.Context) error {
	f.disables.Add(1)
	if f.disable != nil {
		return f.disable(ctx)
	}
	return nil
}

func fastManagerConfig() manager.Config {
	fast := &retry.Backoff{
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Multiplier:   2.0,
		MaxAttempts:  2,
	}
	return manager.Config{
		ConnectionListTTL: time.Minute,
		Queue:             batch.Config{FlushInterval: 10 * time.Millisecond, MaxBatchSize: 32},
		GracefulBackoff:   fast,
		EscalatedBackoff:  fast,
	}
}

func newTestOrchestrator(t *testing.T, network netctl.Collaborator) (*Orchestrator, *source.SimSessionSource, *source.SimClientSource) {
	t.Helper()
	logger := util.NewLogger(0)
	sessions := source.NewSimSessionSource(logger)
	sessions.Delay = 0
	clients := source.NewSimClientSource(logger)
	clients.Delay = 0

	mgr := manager.New(sessions, clients, fastManagerConfig(), nil, logger)
	t.Cleanup(mgr.Close)

	o := New(mgr, network, nil, logger)
	t.Cleanup(o.Notifier().Close)
	return o, sessions, clients
}

func TestExecuteEmergencyDisconnect_SafeModeEndToEnd(t *testing.T) {
	net := netctl.NewSimCollaborator(util.NewLogger(0))
	net.Delay = 0
	o, _, _ := newTestOrchestrator(t, net)

	start := time.Now()
	res := o.ExecuteEmergencyDisconnect(context.Background())

	if !res.Success {
		t.Fatalf("run failed: %v", res.Errors)
	}
	if res.SessionsTerminated != 1 {
		t.Errorf("sessions terminated = %d, want 1", res.SessionsTerminated)
	}
	if res.ClientsTerminated != 1 {
		t.Errorf("clients terminated = %d, want 1", res.ClientsTerminated)
	}
	if !res.NetworkDisconnected {
		t.Error("network should be disconnected")
	}
	if len(res.Errors) != 0 {
		t.Errorf("errors = %v, want none", res.Errors)
	}
	if elapsed := time.Since(start); elapsed > 10*time.Second {
		t.Errorf("run took %v, budget is 10s", elapsed)
	}
	if o.State() != StateCompleted {
		t.Errorf("state = %v, want completed", o.State())
	}
}

// The deliberate priority policy: network-isolation success alone makes
// the run successful, even when every termination failed.
func TestExecuteEmergencyDisconnect_NetworkSuccessOutweighsTerminationFailure(t *testing.T) {
	net := &fakeCollaborator{}
	o, sessions, clients := newTestOrchestrator(t, net)

	sessions.LogoffErr = errors.New("stuck")
	sessions.DisconnectErr = errors.New("stuck")
	sessions.ForceErr = errors.New("stuck")
	clients.TerminateErr = errors.New("stuck")
	clients.KillErr = errors.New("stuck")

	res := o.ExecuteEmergencyDisconnect(context.Background())

	if net.disables.Load() != 1 {
		t.Fatalf("network disable invoked %d times, want exactly 1", net.disables.Load())
	}
	if !res.NetworkDisconnected {
		t.Error("network disconnect must still be attempted and succeed")
	}
	if !res.Success {
		t.Error("network success alone must make the run successful")
	}
	if res.SessionsTerminated != 0 || res.ClientsTerminated != 0 {
		t.Errorf("terminated = %d/%d, want 0/0", res.SessionsTerminated, res.ClientsTerminated)
	}
	if len(res.Errors) == 0 {
		t.Error("termination failures must be recorded in errors")
	}
}

// The inverse: termination succeeded but network disable failed. The
// recorded network error makes the run unsuccessful.
func TestExecuteEmergencyDisconnect_NetworkFailureIsRecordedNotFatal(t *testing.T) {
	net := &fakeCollaborator{
		disable: func(context.Context) error { return errors.New("adapter refused") },
	}
	o, _, _ := newTestOrchestrator(t, net)

	res := o.ExecuteEmergencyDisconnect(context.Background())

	if res.NetworkDisconnected {
		t.Error("network must not be reported disconnected")
	}
	if res.Success {
		t.Error("run must not be successful with a recorded network error")
	}
	if res.SessionsTerminated != 1 || res.ClientsTerminated != 1 {
		t.Errorf("terminations should still have happened: %d/%d", res.SessionsTerminated, res.ClientsTerminated)
	}
	found := false
	for _, e := range res.Errors {
		if strings.Contains(e, "adapter refused") {
			found = true
		}
	}
	if !found {
		t.Errorf("errors = %v, want network failure recorded", res.Errors)
	}
}

// Network disconnect must come strictly after the termination+prepare
// barrier: when Disable runs, the remote session is already gone.
func TestExecuteEmergencyDisconnect_NetworkAfterBarrier(t *testing.T) {
	var o *Orchestrator
	var sessions *source.SimSessionSource

	net := &fakeCollaborator{}
	net.disable = func(ctx context.Context) error {
		remaining, err := sessions.EnumerateSessions(ctx)
		if err != nil {
			return err
		}
		for _, d := range remaining {
			if sessions.IsRemoteSession(d) {
				return errors.New("disable ran before termination finished")
			}
		}
		return nil
	}

	o, sessions, _ = newTestOrchestrator(t, net)
	sessions.Delay = 20 * time.Millisecond // make termination observable

	res := o.ExecuteEmergencyDisconnect(context.Background())
	if !res.NetworkDisconnected {
		t.Fatalf("ordering violated or disable failed: %v", res.Errors)
	}
}

func TestExecuteEmergencyDisconnect_SingleFlight(t *testing.T) {
	gate := make(chan struct{})
	net := &fakeCollaborator{
		disable: func(ctx context.Context) error {
			<-gate
			return nil
		},
	}
	o, _, _ := newTestOrchestrator(t, net)

	var (
		wg    sync.WaitGroup
		first conn.DisconnectResult
	)
	wg.Add(1)
	go func() {
		defer wg.Done()
		first = o.ExecuteEmergencyDisconnect(context.Background())
	}()

	// Wait until the first run is blocked inside network disable.
	deadline := time.Now().Add(2 * time.Second)
	for o.State() != StateDisconnectingNetwork && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if o.State() != StateDisconnectingNetwork {
		close(gate)
		t.Fatal("first run never reached DisconnectingNetwork")
	}

	second := o.ExecuteEmergencyDisconnect(context.Background())
	if second.Success {
		t.Error("second concurrent run must be rejected")
	}
	if len(second.Errors) == 0 || !strings.Contains(second.Errors[0], "already in progress") {
		t.Errorf("second run errors = %v, want run-in-progress", second.Errors)
	}
	// The first run is still gated inside its disable; the rejected
	// run must not have started a second one.
	if net.disables.Load() != 1 {
		t.Errorf("disables = %d before gate release, want 1", net.disables.Load())
	}

	close(gate)
	wg.Wait()

	if !first.Success {
		t.Errorf("first run should have succeeded: %v", first.Errors)
	}
	if net.disables.Load() != 1 {
		t.Errorf("disable invoked %d times, want exactly 1", net.disables.Load())
	}
}

func TestTerminateConnectionsOnly(t *testing.T) {
	net := &fakeCollaborator{}
	o, _, _ := newTestOrchestrator(t, net)

	res := o.TerminateConnectionsOnly(context.Background())

	if res.NetworkDisconnected {
		t.Error("connections-only run must report NetworkDisconnected=false")
	}
	if net.disables.Load() != 0 {
		t.Errorf("network disable invoked %d times, want 0", net.disables.Load())
	}
	if !res.Success {
		t.Fatalf("run failed: %v", res.Errors)
	}
	if res.SessionsTerminated != 1 || res.ClientsTerminated != 1 {
		t.Errorf("terminated = %d/%d, want 1/1", res.SessionsTerminated, res.ClientsTerminated)
	}
}

func TestExecuteEmergencyDisconnect_PanicBecomesFailedResult(t *testing.T) {
	net := &fakeCollaborator{
		disable: func(context.Context) error { panic("collaborator exploded") },
	}
	o, _, _ := newTestOrchestrator(t, net)

	res := o.ExecuteEmergencyDisconnect(context.Background())

	if res.Success {
		t.Error("panicked run must fail")
	}
	if len(res.Errors) == 0 || !strings.Contains(res.Errors[0], "collaborator exploded") {
		t.Errorf("errors = %v, want recovered panic message", res.Errors)
	}
	if o.State() != StateFailed {
		t.Errorf("state = %v, want failed", o.State())
	}
}

func TestOrchestrator_Events(t *testing.T) {
	net := netctl.NewSimCollaborator(util.NewLogger(0))
	net.Delay = 0
	o, _, _ := newTestOrchestrator(t, net)

	events, unsub := o.Notifier().Subscribe()
	defer unsub()

	res := o.ExecuteEmergencyDisconnect(context.Background())

	var got []Event
	timeout := time.After(time.Second)
	for len(got) < 2 {
		select {
		case ev := <-events:
			got = append(got, ev)
		case <-timeout:
			t.Fatalf("received %d events, want 2", len(got))
		}
	}

	if got[0].Type != EventTriggered {
		t.Errorf("first event = %v, want triggered", got[0].Type)
	}
	if got[1].Type != EventCompleted {
		t.Errorf("second event = %v, want completed", got[1].Type)
	}
	if got[1].Result == nil || got[1].Result.RunID != res.RunID {
		t.Error("completed event must carry the run's result")
	}
	if got[0].RunID != res.RunID {
		t.Error("events must share the run id")
	}
}

func TestNotifier_SlowSubscriberDoesNotBlock(t *testing.T) {
	n := NewNotifier()
	defer n.Close()

	// Unbuffered consumption: fill the subscriber buffer completely.
	_, unsub := n.Subscribe()
	defer unsub()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			n.Publish(Event{Type: EventTriggered})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on a slow subscriber")
	}
}
