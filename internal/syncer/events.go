package syncer

import (
	"sync"

	"github.com/storyhive/storyhive/internal/storage"
)

// Event names published by the Coordinator. These are the only outbound
// signals the sync core produces toward observers.
const (
	EventStorySavedOffline = "storySavedOffline"
	EventStorySynced       = "storySynced"
	EventSyncCompleted     = "syncCompleted"
)

// Event is a sync notification.
type Event struct {
	Name string
	// Record is set for storySavedOffline and storySynced.
	Record *storage.FavoriteRecord
	// Processed and Synced are set for syncCompleted.
	Processed int
	Synced    int
}

// Notifier decouples the Coordinator from whatever observes it.
type Notifier interface {
	Publish(Event)
}

// NopNotifier discards every event.
type NopNotifier struct{}

func (NopNotifier) Publish(Event) {}

// Bus is a subscription-based Notifier. Publishing never blocks: a
// subscriber that falls behind misses events rather than stalling a replay
// pass.
type Bus struct {
	mu   sync.RWMutex
	subs map[int]chan Event
	next int
}

func NewBus() *Bus {
	return &Bus{subs: make(map[int]chan Event)}
}

// Subscribe returns a channel of events and a cancel function. The channel
// is buffered; it is closed by cancel.
func (b *Bus) Subscribe() (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.next
	b.next++
	ch := make(chan Event, 16)
	b.subs[id] = ch
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

// Publish implements Notifier.
func (b *Bus) Publish(event Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs {
		select {
		case ch <- event:
		default:
		}
	}
}

// Alerter is an optional user-facing alert capability. The default is a
// no-op; callers that have a surface to show toasts inject their own.
type Alerter interface {
	Alert(message, level string)
}

// NopAlerter ignores alerts.
type NopAlerter struct{}

func (NopAlerter) Alert(string, string) {}
