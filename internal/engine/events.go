package engine

import (
	"context"

	"github.com/postline/postline-backend/internal/store"
)

// EventType classifies a change notification.
type EventType string

const (
	EventTimelineUpdated EventType = "timeline_updated"
	EventNotesUpdated    EventType = "notes_updated"
	EventRefreshFailed   EventType = "refresh_failed"
)

// Event is pushed to subscribers whenever engine state changes. Consumers
// re-read through the engine's read methods rather than carrying payloads.
type Event struct {
	Type      EventType `json:"type"`
	ProjectID string    `json:"project_id"`
}

// Subscribe registers a change-notification channel. Slow subscribers drop
// events rather than block the engine.
func (e *Engine) Subscribe() chan Event {
	ch := make(chan Event, 16)
	e.subMu.Lock()
	e.subscribers[ch] = struct{}{}
	e.subMu.Unlock()
	return ch
}

func (e *Engine) Unsubscribe(ch chan Event) {
	e.subMu.Lock()
	delete(e.subscribers, ch)
	e.subMu.Unlock()
	close(ch)
}

func (e *Engine) publish(ctx context.Context, event Event) {
	e.subMu.Lock()
	for ch := range e.subscribers {
		select {
		case ch <- event:
		default:
		}
	}
	e.subMu.Unlock()

	if e.cache != nil {
		if err := e.cache.Publish(ctx, store.EventChannel(event.ProjectID), event); err != nil {
			e.logger.Debugw("Event publish failed", "project", event.ProjectID, "error", err)
		}
	}
}
