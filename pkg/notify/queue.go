package notify

import (
	"log/slog"
	"sync"
)

const defaultQueueSize = 100

// QueueBackend fans events out to bounded per-agent channels. Sends are
// non-blocking: a full queue drops the event for that subscriber.
type QueueBackend struct {
	mu        sync.RWMutex
	queues    map[string]chan Event
	queueSize int
}

// NewQueueBackend creates a queue backend with the given per-agent buffer
// size. Size zero selects the default of 100.
func NewQueueBackend(queueSize int) *QueueBackend {
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	return &QueueBackend{
		queues:    make(map[string]chan Event),
		queueSize: queueSize,
	}
}

// Notify implements Backend.
func (b *QueueBackend) Notify(agent string, event Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	queue, ok := b.queues[agent]
	if !ok {
		return
	}
	select {
	case queue <- event:
	default:
		slog.Warn("event queue full, dropping event", "agent", agent, "event", string(event.Type))
	}
}

// NotifyAll implements Backend.
func (b *QueueBackend) NotifyAll(event Event, exclude string) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for agent, queue := range b.queues {
		if agent == exclude {
			continue
		}
		select {
		case queue <- event:
		default:
			slog.Warn("event queue full, dropping event", "agent", agent, "event", string(event.Type))
		}
	}
}

// Subscribe implements Backend. A second subscription for the same agent
// replaces the first; the replaced channel is closed so its reader stops.
func (b *QueueBackend) Subscribe(agent string) <-chan Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	if old, ok := b.queues[agent]; ok {
		close(old)
	}
	queue := make(chan Event, b.queueSize)
	b.queues[agent] = queue
	return queue
}

// Unsubscribe implements Backend.
func (b *QueueBackend) Unsubscribe(agent string, queue <-chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	current, ok := b.queues[agent]
	if !ok {
		return
	}
	if queue != nil && (<-chan Event)(current) != queue {
		// The registration was replaced; it belongs to someone else now.
		return
	}
	delete(b.queues, agent)
	close(current)
}

// Connected implements Backend.
func (b *QueueBackend) Connected(agent string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, ok := b.queues[agent]
	return ok
}

// SubscriberCount returns the number of active subscriptions.
func (b *QueueBackend) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.queues)
}

// NoopBackend discards everything. Used for the stdio transport where
// clients poll the store instead of holding a stream open.
type NoopBackend struct{}

// Notify implements Backend.
func (NoopBackend) Notify(string, Event) {}

// NotifyAll implements Backend.
func (NoopBackend) NotifyAll(Event, string) {}

// Subscribe implements Backend. The returned channel never delivers.
func (NoopBackend) Subscribe(string) <-chan Event { return nil }

// Unsubscribe implements Backend.
func (NoopBackend) Unsubscribe(string, <-chan Event) {}

// Connected implements Backend.
func (NoopBackend) Connected(string) bool { return false }
