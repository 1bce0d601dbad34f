package events

import (
	"sync"
	"sync/atomic"
)

// Hub fans events out to in-process subscribers over buffered channels.
type Hub struct {
	mu      sync.RWMutex
	subs    map[uint64]chan Envelope
	nextID  uint64
	seq     atomic.Uint64
	dropped atomic.Uint64
	buffer  int
}

// NewHub creates a hub whose subscriber channels hold buffer events.
func NewHub(buffer int) *Hub {
	if buffer <= 0 {
		buffer = 64
	}
	return &Hub{subs: make(map[uint64]chan Envelope), buffer: buffer}
}

// Subscribe registers a new subscriber. The returned function unsubscribes
// and closes the channel; it is safe to call more than once.
func (h *Hub) Subscribe() (<-chan Envelope, func()) {
	ch := make(chan Envelope, h.buffer)
	h.mu.Lock()
	h.nextID++
	id := h.nextID
	h.subs[id] = ch
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, id)
			h.mu.Unlock()
			close(ch)
		})
	}
}

func (h *Hub) PublishStatus(evt Status) {
	h.broadcast(Envelope{Name: NameStatus, Status: &evt})
}

func (h *Hub) PublishProgress(evt Progress) {
	h.broadcast(Envelope{Name: NameProgress, Progress: &evt})
}

func (h *Hub) broadcast(env Envelope) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	env.Seq = h.seq.Add(1)
	for _, ch := range h.subs {
		select {
		case ch <- env:
		default:
			h.dropped.Add(1)
		}
	}
}

// Subscribers reports the number of active subscribers.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Dropped reports how many deliveries were skipped because a subscriber was full.
func (h *Hub) Dropped() uint64 {
	return h.dropped.Load()
}
