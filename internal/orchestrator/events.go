package orchestrator

import (
	"sync"
	"time"

	"sever/internal/conn"
)

// EventType identifies a lifecycle notification.
type EventType string

const (
	// EventTriggered fires when a disconnect run begins.
	EventTriggered EventType = "triggered"
	// EventCompleted fires when a run finishes, regardless of outcome.
	EventCompleted EventType = "completed"
)

// Event is one lifecycle notification.  Completed events carry the
// aggregated run result.
type Event struct {
	Type    EventType
	RunID   string
	Message string
	Result  *conn.DisconnectResult
	At      time.Time
}

// Notifier fans lifecycle events out to subscribers.  Delivery is
// fire-and-forget: a subscriber whose channel is full loses the event
// rather than blocking the orchestrator.
type Notifier struct {
	mu     sync.RWMutex
	subs   map[int]chan Event
	nextID int
	closed bool
}

// NewNotifier creates an empty notifier.
func NewNotifier() *Notifier {
	return &Notifier{subs: make(map[int]chan Event)}
}

// Subscribe registers a new observer and returns its event channel
// plus an unsubscribe function.  The channel is buffered so slow
// observers do not stall publishers.
func (n *Notifier) Subscribe() (<-chan Event, func()) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.closed {
		ch := make(chan Event)
		close(ch)
		return ch, func() {}
	}

	n.nextID++
	id := n.nextID
	ch := make(chan Event, 16)
	n.subs[id] = ch

	return ch, func() {
		n.mu.Lock()
		defer n.mu.Unlock()
		if ch, ok := n.subs[id]; ok {
			close(ch)
			delete(n.subs, id)
		}
	}
}

// Publish delivers ev to every subscriber without blocking.
func (n *Notifier) Publish(ev Event) {
	if ev.At.IsZero() {
		ev.At = time.Now()
	}

	n.mu.RLock()
	defer n.mu.RUnlock()
	if n.closed {
		return
	}
	for _, ch := range n.subs {
		select {
		case ch <- ev:
		default: // observer too slow, drop
		}
	}
}

// Close closes every subscriber channel.  Publish becomes a no-op.
func (n *Notifier) Close() {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return
	}
	n.closed = true
	for id, ch := range n.subs {
		close(ch)
		delete(n.subs, id)
	}
}
