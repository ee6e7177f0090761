package events

import (
	"log/slog"
	"sync"
	"time"
)

// Type classifies engine events published on the bus
type Type string

const (
	TypeSyncCompleted          Type = "sync.completed"
	TypeNotificationDispatched Type = "notification.dispatched"
	TypeCleanupCompleted       Type = "cleanup.completed"
)

// Event is one engine occurrence pushed to live subscribers
type Event struct {
	Type    Type        `json:"type"`
	At      time.Time   `json:"at"`
	Payload interface{} `json:"payload,omitempty"`
}

// Bus is a small in-process pub/sub fan-out. Publishing never blocks; slow
// subscribers drop events rather than stalling the workers.
type Bus struct {
	mu     sync.RWMutex
	subs   map[int]chan Event
	nextID int
}

// NewBus creates a new event bus
func NewBus() *Bus {
	return &Bus{subs: make(map[int]chan Event)}
}

// Subscribe registers a subscriber and returns its channel plus a cancel
// function. The channel is closed on cancel.
func (b *Bus) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer < 1 {
		buffer = 16
	}

	b.mu.Lock()
	id := b.nextID
	b.nextID++
	ch := make(chan Event, buffer)
	b.subs[id] = ch
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if sub, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(sub)
		}
	}

	return ch, cancel
}

// Publish delivers an event to every subscriber without blocking
func (b *Bus) Publish(typ Type, payload interface{}) {
	evt := Event{Type: typ, At: time.Now().UTC(), Payload: payload}

	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, ch := range b.subs {
		select {
		case ch <- evt:
		default:
			slog.Debug("dropping event for slow subscriber", "type", typ)
		}
	}
}

// SubscriberCount returns the number of live subscribers
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
