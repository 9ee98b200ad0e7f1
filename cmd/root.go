// Package cmd wires up the CLI flags and dispatches to the engine core.
package cmd

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	flag "github.com/spf13/pflag"
	"golang.org/x/term"

	"sever/config"
	"sever/internal/core"
	"sever/util"
)

// version is overridable at link time:
//
//	go build -ldflags "-X sever/cmd.version=2.0.0"
var version = "1.0.0" //nolint:gochecknoglobals

// Execute parses args and runs the appropriate sever mode.
func Execute(ctx context.Context, args []string) error {
	cfg := &config.Config{}

	// Environment first so that flags take precedence.
	config.LoadFromEnv(cfg)

	fs := flag.NewFlagSet("sever", flag.ContinueOnError)

	// ── mode selection ───────────────────────────────────────────
	fs.BoolVar(&cfg.ConnectionsOnly, "connections-only", cfg.ConnectionsOnly,
		"Terminate remote connections but leave the network up")
	fs.BoolVarP(&cfg.List, "list", "l", cfg.List, "List active remote connections and exit")
	fs.BoolVar(&cfg.Stats, "stats", cfg.Stats, "Print engine statistics")
	fs.BoolVar(&cfg.SafeMode, "safe-mode", cfg.SafeMode,
		"Use simulated adapters, no real side effects")

	// ── safety ───────────────────────────────────────────────────
	fs.BoolVarP(&cfg.AssumeYes, "yes", "y", cfg.AssumeYes, "Skip the confirmation prompt")

	// ── tuning ───────────────────────────────────────────────────
	var timeoutSec int
	fs.IntVarP(&timeoutSec, "timeout", "w", 0, "Run budget in seconds")
	fs.StringVar(&cfg.PolicyPath, "policy", cfg.PolicyPath, "Termination policy file (TOML)")

	// ── output ───────────────────────────────────────────────────
	fs.CountVarP(&cfg.Verbose, "verbose", "v", "Increase verbosity (repeatable)")

	var showHelp bool
	fs.BoolVar(&cfg.ShowVersion, "version", false, "Print version and exit")
	fs.BoolVarP(&showHelp, "help", "h", false, "Show this help")

	fs.Usage = func() { printUsage(fs) }

	// ── parse ────────────────────────────────────────────────────
	if err := fs.Parse(args); err != nil {
		return err
	}

	if showHelp {
		printUsage(fs)
		return nil
	}
	if cfg.ShowVersion {
		fmt.Printf("sever %s\n", version)
		return nil
	}
	if len(fs.Args()) > 0 {
		return fmt.Errorf("unexpected argument %q (use --help for usage)", fs.Args()[0])
	}

	if timeoutSec > 0 {
		cfg.Timeout = time.Duration(timeoutSec) * time.Second
	}

	// ── policy ───────────────────────────────────────────────────
	policyPath := cfg.PolicyPath
	if policyPath == "" {
		policyPath = config.DefaultPolicyPath
	}
	policy, err := config.LoadPolicy(policyPath)
	if err != nil {
		return err
	}
	cfg.Policy = policy

	// ── validate ─────────────────────────────────────────────────
	if err := cfg.Validate(); err != nil {
		return err
	}

	// ── confirm ──────────────────────────────────────────────────
	if needsConfirmation(cfg) {
		ok, err := confirm(os.Stdin)
		if err != nil {
			return err
		}
		if !ok {
			fmt.Fprintln(os.Stderr, "aborted")
			return nil
		}
	}

	// ── build and run ────────────────────────────────────────────
	logger := util.NewLogger(cfg.Verbose)

	mode, err := core.Build(cfg, logger)
	if err != nil {
		return err
	}
	return mode.Run(ctx)
}

// ── helpers ──────────────────────────────────────────────────────────

// needsConfirmation reports whether this invocation must prompt before
// acting: real destructive runs on an interactive terminal only.
func needsConfirmation(cfg *config.Config) bool {
	if cfg.SafeMode || cfg.List || cfg.AssumeYes {
		return false
	}
	return term.IsTerminal(int(os.Stdin.Fd()))
}

func confirm(in *os.File) (bool, error) {
	fmt.Fprint(os.Stderr,
		"This will terminate every remote session and client and disable networking.\nProceed? [y/N]: ")

	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil {
		return false, fmt.Errorf("read confirmation: %w", err)
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes", nil
}

func printUsage(fs *flag.FlagSet) {
	fmt.Fprintf(os.Stderr, `sever – Emergency Disconnect Engine v%s

Terminates every remote session and remote-access client on this host,
then disables its network interfaces.

Usage:
  sever [options]                     Full emergency disconnect
  sever --connections-only            Terminate connections, keep the network
  sever -l                            List active remote connections
  sever --safe-mode                   Dry run against simulated adapters

Options:
`, version)
	fs.PrintDefaults()
	fmt.Fprintf(os.Stderr, `
Examples:
  sever -y                            Disconnect without prompting
  sever --safe-mode --stats           Simulated run with statistics
  sever -l --policy /etc/sever/policy.toml
  SEVER_SAFE_MODE=1 sever             Safe mode via environment
`)
}
