package config

import "time"

// ── Default values ───────────────────────────────────────────────────
//
// All tuneable defaults live here so they are easy to audit and reuse
// across CLI flags, the policy file, and environment variable loading.

const (
	// DefaultRunTimeout bounds a full emergency disconnect run.
	DefaultRunTimeout = 10 * time.Second

	// DefaultConnectionListTTL is how long an enumerated connection
	// list stays fresh in the cache.
	DefaultConnectionListTTL = 3 * time.Second

	// DefaultCacheSweepInterval is the cache's expired-entry sweep tick.
	DefaultCacheSweepInterval = 30 * time.Second

	// DefaultMaxConcurrentFills bounds concurrent cache recomputation
	// across distinct keys.
	DefaultMaxConcurrentFills = 4

	// DefaultFlushInterval is the batch queue's timer flush period.
	DefaultFlushInterval = 100 * time.Millisecond

	// DefaultMaxBatchSize triggers an immediate flush when reached.
	DefaultMaxBatchSize = 32

	// DefaultMaxBatchWait marks a queued operation as over-age.
	DefaultMaxBatchWait = time.Second

	// DefaultBatchWorkers bounds parallel execution within one batch.
	DefaultBatchWorkers = 8

	// DefaultBreakerFailures is how many consecutive enumeration
	// failures trip a source's circuit breaker.
	DefaultBreakerFailures = 3

	// DefaultBreakerReset is how long a tripped breaker stays open
	// before allowing a probe.
	DefaultBreakerReset = 30 * time.Second

	// DefaultPolicyPath is consulted when no --policy flag is given.
	DefaultPolicyPath = "/etc/sever/policy.toml"
)
