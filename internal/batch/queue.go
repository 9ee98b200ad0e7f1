// Package batch converts many individually-submitted termination
// requests into fewer, larger, parallel executions.  A flush happens
// either on a fixed timer or immediately once the queue depth reaches
// the configured batch size, whichever comes first; the emergency path
// can force one with FlushNow.
package batch

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	severrors "sever/internal/errors"
	"sever/util"
)

// OpKind identifies which termination path an operation belongs to.
type OpKind int

const (
	// SessionTermination targets an inbound remote session.
	SessionTermination OpKind = iota
	// ProcessTermination targets an outbound client process.
	ProcessTermination
)

func (k OpKind) String() string {
	switch k {
	case SessionTermination:
		return "session"
	case ProcessTermination:
		return "process"
	default:
		return "unknown"
	}
}

// Operation is one queued unit of termination work.
type Operation struct {
	Kind     OpKind
	TargetID string
	QueuedAt time.Time
}

// Executor performs one operation.  The queue never stubs this out:
// the connection manager injects its real tiered-termination path.
type Executor func(ctx context.Context, op Operation) error

// ── Pending handle ───────────────────────────────────────────────────

type outcome struct {
	ok  bool
	err error
}

// Pending is the completion handle returned by Enqueue.  It resolves
// when the batch processor executes (or cancels) the operation.
type Pending struct {
	done chan outcome
}

// Wait blocks until the operation is processed or ctx expires.  The
// bool reports termination success; err carries the failure reason or
// [severrors.ErrCancelled] on queue shutdown.
func (p *Pending) Wait(ctx context.Context) (bool, error) {
	select {
	case <-ctx.Done():
		return false, ctx.Err()
	case out := <-p.done:
		return out.ok, out.err
	}
}

type queued struct {
	op      Operation
	pending *Pending
}

// ── Queue ────────────────────────────────────────────────────────────

// Config holds the queue's tuneables.
type Config struct {
	// FlushInterval is the timer period between batch flushes
	// (default 100ms).
	FlushInterval time.Duration
	// MaxBatchSize triggers an immediate flush when reached and caps
	// how many operations one flush dequeues (default 32).
	MaxBatchSize int
	// MaxWait is the per-operation latency target.  Operations older
	// than this are logged as over-age but still processed (default 1s).
	MaxWait time.Duration
	// Workers bounds per-batch parallelism (default 8).
	Workers int
}

// DefaultConfig returns the standard queue tuning.
func DefaultConfig() Config {
	return Config{
		FlushInterval: 100 * time.Millisecond,
		MaxBatchSize:  32,
		MaxWait:       time.Second,
		Workers:       8,
	}
}

func (c *Config) applyDefaults() {
	d := DefaultConfig()
	if c.FlushInterval <= 0 {
		c.FlushInterval = d.FlushInterval
	}
	if c.MaxBatchSize <= 0 {
		c.MaxBatchSize = d.MaxBatchSize
	}
	if c.MaxWait <= 0 {
		c.MaxWait = d.MaxWait
	}
	if c.Workers <= 0 {
		c.Workers = d.Workers
	}
}

// Queue is the time/size-triggered termination batcher.
type Queue struct {
	cfg  Config
	exec Executor

	mu     sync.Mutex
	ops    []queued
	closed bool

	flushCh chan struct{}
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	once    sync.Once

	enqueued  atomic.Int64
	processed atomic.Int64
	batches   atomic.Int64
	overAge   atomic.Int64

	logger *util.Logger
}

// NewQueue creates a queue and starts its flush loop.  Close must be
// called on teardown; pending operations are then resolved as
// cancelled rather than left unresolved.
func NewQueue(cfg Config, exec Executor, logger *util.Logger) *Queue {
	cfg.applyDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	q := &Queue{
		cfg:     cfg,
		exec:    exec,
		flushCh: make(chan struct{}, 1),
		ctx:     ctx,
		cancel:  cancel,
		logger:  logger,
	}
	q.wg.Add(1)
	go q.loop()
	return q
}

// Enqueue appends a termination request and returns its completion
// handle.  Reaching MaxBatchSize triggers an immediate flush instead
// of waiting for the timer.
func (q *Queue) Enqueue(kind OpKind, targetID string) (*Pending, error) {
	p := &Pending{done: make(chan outcome, 1)}
	item := queued{
		op:      Operation{Kind: kind, TargetID: targetID, QueuedAt: time.Now()},
		pending: p,
	}

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil, severrors.ErrQueueClosed
	}
	q.ops = append(q.ops, item)
	full := len(q.ops) >= q.cfg.MaxBatchSize
	q.mu.Unlock()

	q.enqueued.Add(1)
	if full {
		q.triggerFlush()
	}
	return p, nil
}

// FlushNow synchronously processes everything queued, without waiting
// for the timer.  Used by the emergency path.
func (q *Queue) FlushNow(ctx context.Context) {
	for q.flushBatch(ctx) > 0 {
	}
}

// Close stops the flush loop and resolves all still-pending operations
// as cancelled.
func (q *Queue) Close() {
	q.once.Do(func() {
		q.mu.Lock()
		q.closed = true
		remaining := q.ops
		q.ops = nil
		q.mu.Unlock()

		q.cancel()
		q.wg.Wait()

		for _, item := range remaining {
			item.pending.done <- outcome{ok: false, err: severrors.ErrCancelled}
		}
	})
}

// Depth returns the number of currently queued operations.
func (q *Queue) Depth() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.ops)
}

// ── Statistics ───────────────────────────────────────────────────────

// Stats is a point-in-time view of queue throughput.
type Stats struct {
	Enqueued  int64 `json:"enqueued"`
	Processed int64 `json:"processed"`
	Batches   int64 `json:"batches"`
	OverAge   int64 `json:"over_age"`
	Depth     int   `json:"depth"`
}

// Stats returns current counters.
func (q *Queue) Stats() Stats {
	return Stats{
		Enqueued:  q.enqueued.Load(),
		Processed: q.processed.Load(),
		Batches:   q.batches.Load(),
		OverAge:   q.overAge.Load(),
		Depth:     q.Depth(),
	}
}

// ── internal ─────────────────────────────────────────────────────────

func (q *Queue) loop() {
	defer q.wg.Done()

	ticker := time.NewTicker(q.cfg.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-q.ctx.Done():
			return
		case <-ticker.C:
			q.flushBatch(q.ctx)
		case <-q.flushCh:
			q.flushBatch(q.ctx)
		}
	}
}

func (q *Queue) triggerFlush() {
	select {
	case q.flushCh <- struct{}{}:
	default: // a flush is already signalled
	}
}

// flushBatch dequeues up to MaxBatchSize operations, groups them by
// kind, and executes each group fully in parallel (bounded by
// Workers).  Returns the number of operations processed.
func (q *Queue) flushBatch(ctx context.Context) int {
	q.mu.Lock()
	n := len(q.ops)
	if n == 0 {
		q.mu.Unlock()
		return 0
	}
	if n > q.cfg.MaxBatchSize {
		n = q.cfg.MaxBatchSize
	}
	taken := make([]queued, n)
	copy(taken, q.ops[:n])
	q.ops = q.ops[n:]
	q.mu.Unlock()

	q.batches.Add(1)

	groups := make(map[OpKind][]queued)
	for _, item := range taken {
		groups[item.op.Kind] = append(groups[item.op.Kind], item)
	}

	for kind, items := range groups {
		q.logger.Debug("flushing %d %s operation(s)", len(items), kind)
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(q.cfg.Workers)
		for _, item := range items {
			item := item
			g.Go(func() error {
				q.process(gctx, item)
				return nil // one failure never aborts the batch
			})
		}
		_ = g.Wait()
	}
	return len(taken)
}

func (q *Queue) process(ctx context.Context, item queued) {
	if age := time.Since(item.op.QueuedAt); age > q.cfg.MaxWait {
		// Over-age is an observability signal, not a cancellation
		// trigger: the operation is still processed.
		q.overAge.Add(1)
		q.logger.Warn("%s op %s waited %v (target %v)",
			item.op.Kind, item.op.TargetID, age.Truncate(time.Millisecond), q.cfg.MaxWait)
	}

	err := q.exec(ctx, item.op)
	q.processed.Add(1)
	item.pending.done <- outcome{ok: err == nil, err: err}
}
