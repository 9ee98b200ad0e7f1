package core

import (
	"context"
	"fmt"
	"io"
	"time"

	"sever/internal/conn"
	"sever/internal/orchestrator"
	"sever/util"
)

// DisconnectMode runs one emergency disconnect (or connections-only)
// pass and reports the outcome.
type DisconnectMode struct {
	Engine          *Engine
	ConnectionsOnly bool
	Stats           bool
	Timeout         time.Duration
	Out             io.Writer
	Logger          *util.Logger
}

// Run executes the disconnect run within the configured budget.  A
// non-nil error means the run did not achieve its goal.
func (m *DisconnectMode) Run(ctx context.Context) error {
	defer m.Engine.Close()

	if m.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.Timeout)
		defer cancel()
	}

	events, unsub := m.Engine.Orchestrator.Notifier().Subscribe()
	defer unsub()
	go m.logEvents(events)

	var result conn.DisconnectResult
	if m.ConnectionsOnly {
		result = m.Engine.Orchestrator.TerminateConnectionsOnly(ctx)
	} else {
		result = m.Engine.Orchestrator.ExecuteEmergencyDisconnect(ctx)
	}

	fmt.Fprintf(m.Out, "run %s\n%s\n", result.RunID, result.Summary())
	for _, e := range result.Errors {
		fmt.Fprintf(m.Out, "  error: %s\n", e)
	}

	if m.Stats {
		m.printStats()
	}

	if !result.Success {
		return fmt.Errorf("disconnect run %s failed with %d error(s)", result.RunID, len(result.Errors))
	}
	return nil
}

func (m *DisconnectMode) logEvents(events <-chan orchestrator.Event) {
	for ev := range events {
		m.Logger.Verbose("event %s: run %s: %s", ev.Type, ev.RunID, ev.Message)
	}
}

func (m *DisconnectMode) printStats() {
	printEngineStats(m.Out, m.Engine)
}
