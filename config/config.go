// Package config defines the runtime configuration for sever and the
// termination policy loaded from the policy file.
package config

import (
	"fmt"
	"time"
)

// Config holds every tuneable for a single sever invocation.
type Config struct {
	// ── Mode selection ───────────────────────────────────────────────
	ConnectionsOnly bool // terminate connections, leave the network up
	List            bool // print active connections and exit
	Stats           bool // print engine statistics after the run
	SafeMode        bool // simulated adapters only, no real side effects

	// ── Safety ───────────────────────────────────────────────────────
	AssumeYes bool // skip the interactive confirmation prompt

	// ── Policy ───────────────────────────────────────────────────────
	PolicyPath string // TOML policy file; empty means defaults
	Policy     Policy

	// ── Tuning ───────────────────────────────────────────────────────
	Timeout time.Duration // overall run budget

	// ── Output ───────────────────────────────────────────────────────
	Verbose     int
	ShowVersion bool
}

// Validate checks that the configuration is internally consistent.
func (c *Config) Validate() error {
	if c.List && c.ConnectionsOnly {
		return fmt.Errorf("--list and --connections-only are mutually exclusive")
	}

	if c.Timeout < 0 {
		return fmt.Errorf("timeout must not be negative")
	}
	if c.Timeout == 0 {
		c.Timeout = DefaultRunTimeout
	}

	if err := c.Policy.Validate(); err != nil {
		return fmt.Errorf("policy: %w", err)
	}

	return nil
}
