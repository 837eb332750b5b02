package server

import (
	"sync"

	"github.com/jonathan/newscaster/internal/pipeline"
)

const subscriberBuffer = 64

// Hub fans pipeline progress events out to stream subscribers. Publish never
// blocks: a subscriber whose buffer is full misses events.
type Hub struct {
	mu   sync.Mutex
	subs map[chan pipeline.ProgressEvent]struct{}
}

// NewHub creates an empty Hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[chan pipeline.ProgressEvent]struct{})}
}

// Publish delivers event to every subscriber. Its signature matches
// pipeline.ProgressCallback.
func (h *Hub) Publish(event pipeline.ProgressEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs {
		select {
		case ch <- event:
		default:
		}
	}
}

// Subscribe registers a new subscriber. The returned cancel func removes it
// and closes the channel; it is safe to call more than once.
func (h *Hub) Subscribe() (<-chan pipeline.ProgressEvent, func()) {
	ch := make(chan pipeline.ProgressEvent, subscriberBuffer)
	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()

	return ch, sync.OnceFunc(func() {
		h.mu.Lock()
		delete(h.subs, ch)
		h.mu.Unlock()
		close(ch)
	})
}

// Subscribers returns the current number of subscribers.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}
