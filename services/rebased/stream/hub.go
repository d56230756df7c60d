package stream

import (
	"sync"

	"github.com/MRAlirad/ccip-rebase-token/core/events"
	"github.com/MRAlirad/ccip-rebase-token/core/types"
)

const defaultBuffer = 64

// Hub fans committed events out to live subscribers. A subscriber that
// cannot keep up loses events instead of stalling the ledger.
type Hub struct {
	mu     sync.RWMutex
	subs   map[uint64]*subscriber
	next   uint64
	buffer int
	onDrop func()
}

type subscriber struct {
	account string
	ch      chan *types.Event
}

// NewHub creates a hub whose subscriptions buffer up to buffer events.
// onDrop, if set, is called for every dropped event.
func NewHub(buffer int, onDrop func()) *Hub {
	if buffer <= 0 {
		buffer = defaultBuffer
	}
	return &Hub{subs: make(map[uint64]*subscriber), buffer: buffer, onDrop: onDrop}
}

// Subscribe registers a subscriber. A non-empty account only receives events
// naming that account. The returned cancel closes the channel.
func (h *Hub) Subscribe(account string) (<-chan *types.Event, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()
	id := h.next
	h.next++
	sub := &subscriber{account: account, ch: make(chan *types.Event, h.buffer)}
	h.subs[id] = sub
	var once sync.Once
	return sub.ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, id)
			h.mu.Unlock()
			close(sub.ch)
		})
	}
}

// Emit implements events.Emitter.
func (h *Hub) Emit(ev events.Event) {
	if h == nil || ev == nil {
		return
	}
	payload := ev.Event()
	if payload == nil {
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, sub := range h.subs {
		if sub.account != "" && !payload.Mentions(sub.account) {
			continue
		}
		select {
		case sub.ch <- payload:
		default:
			if h.onDrop != nil {
				h.onDrop()
			}
		}
	}
}

// Subscribers reports the number of live subscriptions.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}
