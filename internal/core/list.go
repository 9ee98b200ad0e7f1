package core

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"sever/util"
)

// ListMode prints the active connection list without touching anything.
// Listing is a read path and is not subject to the orchestrator's
// single-flight guard.
type ListMode struct {
	Engine *Engine
	Stats  bool
	Out    io.Writer
	Logger *util.Logger
}

// Run enumerates and prints every active connection.
func (m *ListMode) Run(ctx context.Context) error {
	defer m.Engine.Close()

	connections, err := m.Engine.Manager.ListActive(ctx)
	if err != nil {
		return fmt.Errorf("list connections: %w", err)
	}

	tw := tabwriter.NewWriter(m.Out, 2, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tKIND\tUSER\tCLIENT\tADDRESS\tSTATE\tCONNECTED")
	for _, c := range connections {
		connected := "-"
		if !c.ConnectedAt.IsZero() {
			connected = c.ConnectedAt.Format(time.RFC3339)
		}
		addr := c.ClientAddress
		if addr == "" {
			addr = "-"
		}
		user := c.UserName
		if user == "" {
			user = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			c.ID, c.Kind, user, c.ClientName, addr, c.ConnectState, connected)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(m.Out, "%d connection(s)\n", len(connections))

	if m.Stats {
		printEngineStats(m.Out, m.Engine)
	}
	return nil
}
