package rotation

import "sync"

// History is a bounded per-monitor ring of the last K applied entry ids,
// used to avoid immediate repeats.
type History struct {
	mu   sync.RWMutex
	size int
	ring map[int][]string
}

// DefaultHistorySize is K when no size is configured.
const DefaultHistorySize = 5

// NewHistory creates a history keeping the last size ids per monitor.
func NewHistory(size int) *History {
	if size <= 0 {
		size = DefaultHistorySize
	}
	return &History{
		size: size,
		ring: make(map[int][]string),
	}
}

// Size returns K.
func (h *History) Size() int { return h.size }

// Push records an applied entry for a monitor, evicting the oldest id once
// the ring is full.
func (h *History) Push(monitor int, id string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	ids := append(h.ring[monitor], id)
	if len(ids) > h.size {
		ids = ids[len(ids)-h.size:]
	}
	h.ring[monitor] = ids
}

// Contains reports whether the id is in the monitor's recent window.
func (h *History) Contains(monitor int, id string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, recent := range h.ring[monitor] {
		if recent == id {
			return true
		}
	}
	return false
}

// Recent returns a copy of the monitor's window, oldest first.
func (h *History) Recent(monitor int) []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make([]string, len(h.ring[monitor]))
	copy(out, h.ring[monitor])
	return out
}
