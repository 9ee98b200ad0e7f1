package core

import (
	"fmt"
	"os"
	"time"

	"sever/config"
	"sever/internal/batch"
	"sever/internal/manager"
	"sever/internal/monitor"
	"sever/internal/netctl"
	"sever/internal/orchestrator"
	"sever/internal/source"
	"sever/util"
)

// resourceSampleInterval drives the monitor's rusage sampler when
// statistics are requested.
const resourceSampleInterval = time.Second

// Build constructs the appropriate Mode from the given configuration.
// This is the single dispatch point between the CLI and the engine.
func Build(cfg *config.Config, logger *util.Logger) (Mode, error) {
	engine, err := buildEngine(cfg, logger)
	if err != nil {
		return nil, err
	}

	if cfg.List {
		return &ListMode{
			Engine: engine,
			Stats:  cfg.Stats,
			Out:    os.Stdout,
			Logger: logger,
		}, nil
	}

	return &DisconnectMode{
		Engine:          engine,
		ConnectionsOnly: cfg.ConnectionsOnly,
		Stats:           cfg.Stats,
		Timeout:         cfg.Timeout,
		Out:             os.Stdout,
		Logger:          logger,
	}, nil
}

// Engine bundles the assembled component stack so modes can run it and
// tear it down.
type Engine struct {
	Manager      *manager.Manager
	Orchestrator *orchestrator.Orchestrator
	Monitor      *monitor.Monitor
}

// Close releases the engine's background resources.
func (e *Engine) Close() {
	e.Orchestrator.Notifier().Close()
	e.Manager.Close()
	e.Monitor.Close()
}

func buildEngine(cfg *config.Config, logger *util.Logger) (*Engine, error) {
	sessions, clients, network, err := buildAdapters(cfg, logger)
	if err != nil {
		return nil, err
	}

	var mon *monitor.Monitor
	if cfg.Stats {
		mon = monitor.New(resourceSampleInterval, logger.Tagged("monitor"))
	}

	mgr := manager.New(sessions, clients, manager.Config{
		ConnectionListTTL:  config.DefaultConnectionListTTL,
		CacheSweepInterval: config.DefaultCacheSweepInterval,
		MaxConcurrentFills: config.DefaultMaxConcurrentFills,
		Queue:              batchConfig(),
		BreakerFailures:    config.DefaultBreakerFailures,
		BreakerReset:       config.DefaultBreakerReset,
		ProtectedUsers:     cfg.Policy.ProtectedUsers,
	}, mon, logger.Tagged("manager"))

	orch := orchestrator.New(mgr, network, mon, logger.Tagged("orchestrator"))

	return &Engine{Manager: mgr, Orchestrator: orch, Monitor: mon}, nil
}

// buildAdapters selects simulated or platform-native adapters.  Safe
// mode never touches the real system.
func buildAdapters(cfg *config.Config, logger *util.Logger) (source.SessionSource, source.ClientProcessSource, netctl.Collaborator, error) {
	if cfg.SafeMode {
		logger.Info("safe mode: all adapters simulated, no real side effects")
		return source.NewSimSessionSource(logger.Tagged("sim-sessions")),
			source.NewSimClientSource(logger.Tagged("sim-clients")),
			netctl.NewSimCollaborator(logger.Tagged("sim-net")),
			nil
	}

	sessions, err := source.NewPlatformSessionSource(logger.Tagged("sessions"))
	if err != nil {
		return nil, nil, nil, fmt.Errorf("session source: %w", err)
	}
	clients, err := source.NewPlatformClientSource(cfg.Policy.ClientProcessNames, logger.Tagged("clients"))
	if err != nil {
		return nil, nil, nil, fmt.Errorf("client source: %w", err)
	}
	network := netctl.NewExecCollaborator(cfg.Policy.NetworkInterfaces, logger.Tagged("net"))
	return sessions, clients, network, nil
}

func batchConfig() batch.Config {
	return batch.Config{
		FlushInterval: config.DefaultFlushInterval,
		MaxBatchSize:  config.DefaultMaxBatchSize,
		MaxWait:       config.DefaultMaxBatchWait,
		Workers:       config.DefaultBatchWorkers,
	}
}
