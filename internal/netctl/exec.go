package netctl

import (
	"context"
	"fmt"
	"net"
	"os/exec"
	"strings"

	severrors "sever/internal/errors"
	"sever/util"
)

// ExecCollaborator disables network interfaces by driving the platform
// link tool ("ip link set dev <if> down").  When Interfaces is empty
// it targets every non-loopback interface that is currently up.
type ExecCollaborator struct {
	// Interfaces to take down; empty means all up non-loopback ones.
	Interfaces []string
	// Tool is the link utility (default "ip").
	Tool string

	logger *util.Logger
}

// NewExecCollaborator creates a collaborator over the given interface
// policy.
func NewExecCollaborator(interfaces []string, logger *util.Logger) *ExecCollaborator {
	return &ExecCollaborator{Interfaces: interfaces, Tool: "ip", logger: logger}
}

// PrepareDisconnect verifies the link tool exists and at least one
// target interface resolves.  No network state is touched.
func (c *ExecCollaborator) PrepareDisconnect(ctx context.Context) error {
	if _, err := exec.LookPath(c.tool()); err != nil {
		return severrors.WrapNetwork("prepare", err)
	}
	targets, err := c.targets()
	if err != nil {
		return severrors.WrapNetwork("prepare", err)
	}
	if len(targets) == 0 {
		return severrors.WrapNetwork("prepare", fmt.Errorf("no target interfaces"))
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	c.logger.Verbose("network disconnect prepared: %s", strings.Join(targets, ", "))
	return nil
}

// Disable takes every target interface down.  One interface failing
// does not stop the rest; the combined error is returned.
func (c *ExecCollaborator) Disable(ctx context.Context) error {
	targets, err := c.targets()
	if err != nil {
		return severrors.WrapNetwork("disable", err)
	}

	var errs []error
	for _, ifc := range targets {
		cmd := exec.CommandContext(ctx, c.tool(), "link", "set", "dev", ifc, "down")
		if out, err := cmd.CombinedOutput(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %v (%s)", ifc, err, strings.TrimSpace(string(out))))
			continue
		}
		c.logger.Info("interface %s down", ifc)
	}
	if len(errs) > 0 {
		return severrors.WrapNetwork("disable", severrors.Join(errs...))
	}
	return nil
}

func (c *ExecCollaborator) tool() string {
	if c.Tool == "" {
		return "ip"
	}
	return c.Tool
}

func (c *ExecCollaborator) targets() ([]string, error) {
	if len(c.Interfaces) > 0 {
		return c.Interfaces, nil
	}

	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}
	var out []string
	for _, ifc := range ifaces {
		if ifc.Flags&net.FlagLoopback != 0 {
			continue
		}
		if ifc.Flags&net.FlagUp == 0 {
			continue
		}
		out = append(out, ifc.Name)
	}
	return out, nil
}
