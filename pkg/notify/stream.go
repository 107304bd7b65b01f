package notify

import (
	"context"
	"time"
)

const defaultHeartbeatInterval = 15 * time.Second

// Stream is the long-lived per-agent reader used by streaming transport
// adapters. It subscribes agent, emits a connected event, forwards queued
// events to emit, and injects a heartbeat event whenever the queue stays
// idle for heartbeatInterval so dead connections are detected.
//
// Stream returns when ctx is cancelled, when the subscription is replaced
// or removed, or when emit fails; the subscription is released on every
// path so queue registrations never leak.
func Stream(ctx context.Context, backend Backend, agent string, heartbeatInterval time.Duration, emit func(Event) error) error {
	if heartbeatInterval <= 0 {
		heartbeatInterval = defaultHeartbeatInterval
	}
	queue := backend.Subscribe(agent)
	defer backend.Unsubscribe(agent, queue)

	if err := emit(NewEvent(EventConnected, map[string]any{"agent": agent})); err != nil {
		return err
	}

	idle := time.NewTimer(heartbeatInterval)
	defer idle.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-queue:
			if !ok {
				// Subscription replaced or removed elsewhere.
				return nil
			}
			if err := emit(event); err != nil {
				return err
			}
		case <-idle.C:
			if err := emit(NewEvent(EventHeartbeat, nil)); err != nil {
				return err
			}
		}
		if !idle.Stop() {
			select {
			case <-idle.C:
			default:
			}
		}
		idle.Reset(heartbeatInterval)
	}
}
