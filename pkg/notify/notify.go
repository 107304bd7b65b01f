// Package notify delivers best-effort real-time events to subscribed agents.
// Delivery is never durable: offline agents rely on polling the store, and a
// full queue drops the new event rather than blocking the producer.
package notify

import (
	"time"

	"github.com/google/uuid"
)

// EventType identifies a semantic event pushed to agents.
type EventType string

const (
	EventMessage      EventType = "message"
	EventBroadcast    EventType = "broadcast"
	EventTaskAssigned EventType = "task_assigned"
	EventTaskUpdated  EventType = "task_updated"
	EventConnected    EventType = "connected"
	EventHeartbeat    EventType = "heartbeat"
)

// Event is a single notification delivered to a subscribed agent.
type Event struct {
	ID        string         `json:"id"`
	Type      EventType      `json:"event"`
	Timestamp time.Time      `json:"timestamp"`
	Data      map[string]any `json:"data,omitempty"`
}

// NewEvent builds an event with a generated id and UTC timestamp.
func NewEvent(eventType EventType, data map[string]any) Event {
	return Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		Data:      data,
	}
}

// Backend is the notification delivery contract. Two variants exist:
// QueueBackend for streaming transports and NoopBackend for transports
// whose clients poll instead.
type Backend interface {
	// Notify enqueues an event for agent if it is subscribed; silent no-op
	// otherwise.
	Notify(agent string, event Event)

	// NotifyAll enqueues an event to every subscriber except exclude.
	NotifyAll(event Event, exclude string)

	// Subscribe registers agent and returns its event channel, replacing
	// any previous subscription.
	Subscribe(agent string) <-chan Event

	// Unsubscribe removes agent's subscription and closes its channel.
	// A non-nil queue releases the registration only while it still points
	// at that channel, so a stream torn down after being replaced cannot
	// kill its successor; nil releases unconditionally.
	Unsubscribe(agent string, queue <-chan Event)

	// Connected reports whether agent has an active subscription.
	Connected(agent string) bool
}
