// Package telemetry fans pipeline events out to observers and sets up
// tracing for builds.
package telemetry

import (
	"sync"
	"sync/atomic"
	"time"
)

// EventType identifies the kind of telemetry event.
type EventType string

const (
	EventChangesetEnqueued  EventType = "changeset.enqueued"
	EventChangesetRejected  EventType = "changeset.rejected"
	EventBuildStarted       EventType = "build.started"
	EventBuildCompleted     EventType = "build.completed"
	EventBuildDiscarded     EventType = "build.discarded"
	EventBuildFailed        EventType = "build.failed"
	EventGenerationCommit   EventType = "generation.committed"
	EventSelectionChanged   EventType = "selection.changed"
	EventContextReloaded    EventType = "context.reloaded"
	EventPhaseChanged       EventType = "phase.changed"
	EventViewBatchApplied   EventType = "view.batch_applied"
	EventViewReloadFallback EventType = "view.reload_fallback"
)

// Event describes pipeline telemetry that hosts and tools can consume.
type Event struct {
	Type      EventType      `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	Source    string         `json:"source,omitempty"`
	Version   uint64         `json:"version,omitempty"`
	Data      map[string]any `json:"data,omitempty"`
}

// DefaultSubscriberBuffer is the channel capacity handed to each subscriber.
const DefaultSubscriberBuffer = 64

// Hub fan-outs telemetry events to any number of subscribers. A nil *Hub
// drops everything.
type Hub struct {
	mu          sync.RWMutex
	subscribers map[chan Event]struct{}
	closed      bool
	dropped     atomic.Uint64
}

// NewHub constructs a telemetry hub.
func NewHub() *Hub {
	return &Hub{subscribers: make(map[chan Event]struct{})}
}

// Publish notifies all subscribers of an event. Non-blocking; drops if buffer full.
func (h *Hub) Publish(event Event) {
	if h == nil {
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	for ch := range h.subscribers {
		select {
		case ch <- event:
		default:
			// Subscriber can't keep up; never stall the pipeline.
			h.dropped.Add(1)
		}
	}
}

// Dropped returns how many deliveries were skipped because a subscriber's
// buffer was full.
func (h *Hub) Dropped() uint64 {
	if h == nil {
		return 0
	}
	return h.dropped.Load()
}

// Subscribe returns a channel that will receive future events and a cleanup func.
func (h *Hub) Subscribe() (<-chan Event, func()) {
	return h.SubscribeBuffered(DefaultSubscriberBuffer)
}

// SubscribeBuffered is Subscribe with an explicit channel capacity.
func (h *Hub) SubscribeBuffered(size int) (<-chan Event, func()) {
	if h == nil {
		empty := make(chan Event)
		close(empty)
		return empty, func() {}
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		empty := make(chan Event)
		close(empty)
		return empty, func() {}
	}
	if size <= 0 {
		size = DefaultSubscriberBuffer
	}
	ch := make(chan Event, size)
	h.subscribers[ch] = struct{}{}
	unsubscribe := func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if _, ok := h.subscribers[ch]; ok {
			delete(h.subscribers, ch)
			close(ch)
		}
	}
	return ch, unsubscribe
}

// Close unsubscribes all listeners and prevents future publications.
func (h *Hub) Close() {
	if h == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for ch := range h.subscribers {
		close(ch)
		delete(h.subscribers, ch)
	}
}
