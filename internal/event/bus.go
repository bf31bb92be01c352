// Package event provides a small publish/subscribe bus for applied-wallpaper
// notifications. Observers (GUI, tray) subscribe instead of wiring callbacks
// into the scheduler.
package event

import (
	"errors"
	"sync"

	"github.com/muralhq/mural/internal/domain"
)

var (
	ErrBusClosed        = errors.New("event bus is closed")
	ErrSubscriberExists = errors.New("subscriber id already registered")
	ErrNilChannel       = errors.New("subscriber channel is nil")
)

type subscriber struct {
	id      string
	ch      chan<- domain.AppliedEvent
	dropped uint64
}

// Bus fans applied events out to subscribers. Publish never blocks: a
// subscriber whose channel buffer is full loses the event.
type Bus struct {
	mu        sync.RWMutex
	subs      map[string]*subscriber
	published uint64
	closed    bool
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[string]*subscriber)}
}

// Subscribe registers a channel under an id. The caller owns the channel
// and chooses its buffer size.
func (b *Bus) Subscribe(id string, ch chan<- domain.AppliedEvent) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrBusClosed
	}
	if ch == nil {
		return ErrNilChannel
	}
	if _, exists := b.subs[id]; exists {
		return ErrSubscriberExists
	}

	b.subs[id] = &subscriber{id: id, ch: ch}
	return nil
}

// Unsubscribe removes a subscriber. Unknown ids are ignored.
func (b *Bus) Unsubscribe(id string) {
	b.mu.Lock()
	delete(b.subs, id)
	b.mu.Unlock()
}

// Publish delivers the event to every subscriber without blocking.
func (b *Bus) Publish(ev domain.AppliedEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.published++

	for _, sub := range b.subs {
		select {
		case sub.ch <- ev:
		default:
			sub.dropped++
		}
	}
}

// Published returns the total number of events published.
func (b *Bus) Published() uint64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.published
}

// Dropped returns how many events a subscriber has missed due to a full
// buffer. Returns 0 for unknown ids.
func (b *Bus) Dropped(id string) uint64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if sub, ok := b.subs[id]; ok {
		return sub.dropped
	}
	return 0
}

// Close shuts the bus down. Subsequent publishes are discarded and
// subscriptions rejected.
func (b *Bus) Close() {
	b.mu.Lock()
	b.closed = true
	b.subs = make(map[string]*subscriber)
	b.mu.Unlock()
}
