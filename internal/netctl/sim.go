package netctl

import (
	"context"
	"sync"
	"time"

	severrors "sever/internal/errors"
	"sever/util"
)

// SimCollaborator is a deterministic, side-effect-free Collaborator
// for safe mode and tests.  Error fields inject failures; Disabled()
// reports whether a simulated disconnect happened.
type SimCollaborator struct {
	Delay      time.Duration
	PrepareErr error
	DisableErr error

	mu         sync.Mutex
	prepared   bool
	disabled   bool
	disabledAt time.Time

	logger *util.Logger
}

// NewSimCollaborator returns a collaborator that always succeeds, with
// a small injected delay to mimic realistic timing.
func NewSimCollaborator(logger *util.Logger) *SimCollaborator {
	return &SimCollaborator{Delay: 25 * time.Millisecond, logger: logger}
}

func (c *SimCollaborator) PrepareDisconnect(ctx context.Context) error {
	if err := c.sleep(ctx); err != nil {
		return err
	}
	if c.PrepareErr != nil {
		return severrors.WrapNetwork("prepare", c.PrepareErr)
	}
	c.mu.Lock()
	c.prepared = true
	c.mu.Unlock()
	c.logger.Debug("sim: network disconnect prepared")
	return nil
}

func (c *SimCollaborator) Disable(ctx context.Context) error {
	if err := c.sleep(ctx); err != nil {
		return err
	}
	if c.DisableErr != nil {
		return severrors.WrapNetwork("disable", c.DisableErr)
	}
	c.mu.Lock()
	c.disabled = true
	c.disabledAt = time.Now()
	c.mu.Unlock()
	c.logger.Debug("sim: network disabled")
	return nil
}

// Disabled reports whether Disable has succeeded.
func (c *SimCollaborator) Disabled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.disabled
}

// DisabledAt returns when the simulated disconnect happened (zero if
// it has not).
func (c *SimCollaborator) DisabledAt() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.disabledAt
}

func (c *SimCollaborator) sleep(ctx context.Context) error {
	if c.Delay <= 0 {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(c.Delay):
		return nil
	}
}
