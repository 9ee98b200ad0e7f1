// Package monitor records operation latencies and periodic resource
// samples so the engine's timing budgets can be verified.  It feeds
// observability only and is never load-bearing for correctness.
//
// All methods are safe for concurrent use.  A nil *Monitor is a valid
// no-op receiver, so callers never need to nil-check.
package monitor

import (
	"encoding/json"
	"sync"
	"time"

	"sever/util"
)

type opStats struct {
	count int64
	total time.Duration
	max   time.Duration
}

// ResourceSample is one point-in-time process resource reading.
type ResourceSample struct {
	MaxRSSKB   int64         `json:"max_rss_kb"`
	UserTime   time.Duration `json:"user_time"`
	SystemTime time.Duration `json:"system_time"`
	SampledAt  time.Time     `json:"sampled_at"`
}

// Monitor tracks per-operation latency and the latest resource sample.
// A nil Monitor is safe to use; all methods become no-ops.
type Monitor struct {
	mu        sync.RWMutex
	ops       map[string]*opStats
	resource  ResourceSample
	startTime time.Time

	done chan struct{}
	once sync.Once

	logger *util.Logger
}

// New creates a monitor.  When sampleInterval > 0 a background sampler
// records process resource usage on that period; Close stops it.
func New(sampleInterval time.Duration, logger *util.Logger) *Monitor {
	m := &Monitor{
		ops:       make(map[string]*opStats),
		startTime: time.Now(),
		done:      make(chan struct{}),
		logger:    logger,
	}
	if sampleInterval > 0 {
		go m.sampleLoop(sampleInterval)
	}
	return m
}

// Record adds one latency observation for the named operation.
func (m *Monitor) Record(op string, d time.Duration) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.ops[op]
	if !ok {
		s = &opStats{}
		m.ops[op] = s
	}
	s.count++
	s.total += d
	if d > s.max {
		s.max = d
	}
}

// Time returns a stop function recording the elapsed time under op:
//
//	defer mon.Time("terminate_all")()
func (m *Monitor) Time(op string) func() {
	if m == nil {
		return func() {}
	}
	start := time.Now()
	return func() { m.Record(op, time.Since(start)) }
}

// Close stops the resource sampler.
func (m *Monitor) Close() {
	if m == nil {
		return
	}
	m.once.Do(func() { close(m.done) })
}

// ── Snapshot ─────────────────────────────────────────────────────────

// OpSnapshot summarises one operation's recorded latencies.
type OpSnapshot struct {
	Count int64  `json:"count"`
	Avg   string `json:"avg"`
	Max   string `json:"max"`
}

// Snapshot is a point-in-time view of everything the monitor tracks.
type Snapshot struct {
	Uptime   string                `json:"uptime"`
	Ops      map[string]OpSnapshot `json:"ops,omitempty"`
	Resource *ResourceSample       `json:"resource,omitempty"`
}

// Snapshot returns a copy of all current measurements.
func (m *Monitor) Snapshot() Snapshot {
	if m == nil {
		return Snapshot{}
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	s := Snapshot{
		Uptime: time.Since(m.startTime).Truncate(time.Millisecond).String(),
	}
	if len(m.ops) > 0 {
		s.Ops = make(map[string]OpSnapshot, len(m.ops))
		for name, op := range m.ops {
			avg := time.Duration(0)
			if op.count > 0 {
				avg = op.total / time.Duration(op.count)
			}
			s.Ops[name] = OpSnapshot{
				Count: op.count,
				Avg:   avg.Truncate(time.Microsecond).String(),
				Max:   op.max.Truncate(time.Microsecond).String(),
			}
		}
	}
	if !m.resource.SampledAt.IsZero() {
		r := m.resource
		s.Resource = &r
	}
	return s
}

// JSON returns the snapshot as an indented JSON string.
func (m *Monitor) JSON() string {
	s := m.Snapshot()
	data, _ := json.MarshalIndent(s, "", "  ")
	return string(data)
}

// ── internal ─────────────────────────────────────────────────────────

func (m *Monitor) sampleLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			sample, ok := readResourceSample()
			if !ok {
				continue
			}
			m.mu.Lock()
			m.resource = sample
			m.mu.Unlock()
		}
	}
}
