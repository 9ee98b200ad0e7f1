package retry

import (
	"context"
	"fmt"

	"sever/util"
)

// Tier is one escalation step in a tiered termination sequence.  Each
// tier owns its own retry budget; exhausting it (or hitting a
// permanent error) escalates to the next tier rather than failing the
// whole operation.
type Tier struct {
	// Name identifies the tier in logs and errors ("logoff", "kill"…).
	Name string
	// Attempt performs one try of this tier's method.
	Attempt func(ctx context.Context) error
	// Backoff is the retry budget for this tier.  Nil means
	// [DefaultBackoff].
	Backoff *Backoff
}

// RunTiers executes tiers in order until one succeeds.  A tier fails
// either by exhausting its retry budget or by returning a permanent
// error; both escalate to the next tier.  The error of the last tier
// is returned when every tier fails.
//
// Escalation is per target: RunTiers is called once per connection, so
// one target's failures never slow a sibling down.
func RunTiers(ctx context.Context, tiers []Tier, logger *util.Logger) error {
	if len(tiers) == 0 {
		return fmt.Errorf("no termination tiers configured")
	}

	var lastErr error
	for i, tier := range tiers {
		b := tier.Backoff
		if b == nil {
			b = DefaultBackoff()
		}

		err := b.Do(ctx, func(_ int) error {
			return tier.Attempt(ctx)
		})
		if err == nil {
			if i > 0 {
				logger.Verbose("tier %q succeeded after %d escalation(s)", tier.Name, i)
			}
			return nil
		}

		lastErr = err
		if ctx.Err() != nil {
			return fmt.Errorf("tier %q: %w", tier.Name, err)
		}
		if i < len(tiers)-1 {
			logger.Verbose("tier %q exhausted (%v), escalating to %q",
				tier.Name, err, tiers[i+1].Name)
		}
	}

	return fmt.Errorf("all %d tiers exhausted: %w", len(tiers), lastErr)
}
