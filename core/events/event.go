package events

import (
	"sync"

	"github.com/MRAlirad/ccip-rebase-token/core/types"
)

// Event represents a structured state change emitted by the ledger.
type Event interface {
	EventType() string
	Event() *types.Event
}

// Emitter broadcasts events to downstream subscribers (e.g. journal, websocket).
type Emitter interface {
	Emit(Event)
}

// BatchEmitter is implemented by sinks that can persist the events of one
// committed operation together.
type BatchEmitter interface {
	EmitBatch([]Event)
}

// EmitAll hands evs to dst as one batch when dst supports it and one by one
// otherwise.
func EmitAll(dst Emitter, evs []Event) {
	if dst == nil || len(evs) == 0 {
		return
	}
	if batch, ok := dst.(BatchEmitter); ok {
		batch.EmitBatch(evs)
		return
	}
	for _, ev := range evs {
		dst.Emit(ev)
	}
}

// NoopEmitter is a helper that satisfies the Emitter interface while discarding
// all events. It is useful when a component wants to optionally expose events.
type NoopEmitter struct{}

// Emit implements the Emitter interface.
func (NoopEmitter) Emit(Event) {}

// Buffer collects events in memory until the caller decides to publish or
// drop them. The ledger uses one per operation so nothing is published for
// an operation that is later rolled back.
type Buffer struct {
	mu     sync.Mutex
	events []Event
}

// Emit implements the Emitter interface.
func (b *Buffer) Emit(ev Event) {
	if b == nil || ev == nil {
		return
	}
	b.mu.Lock()
	b.events = append(b.events, ev)
	b.mu.Unlock()
}

// Events returns a copy of the buffered events.
func (b *Buffer) Events() []Event {
	if b == nil {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Event, len(b.events))
	copy(out, b.events)
	return out
}

// Flush forwards buffered events to dst in emission order, as a single batch
// when dst is a BatchEmitter, and clears the buffer.
func (b *Buffer) Flush(dst Emitter) {
	if b == nil {
		return
	}
	b.mu.Lock()
	pending := b.events
	b.events = nil
	b.mu.Unlock()
	EmitAll(dst, pending)
}

// Reset discards buffered events.
func (b *Buffer) Reset() {
	if b == nil {
		return
	}
	b.mu.Lock()
	b.events = nil
	b.mu.Unlock()
}

// Fanout forwards each event to every registered emitter.
type Fanout struct {
	mu    sync.RWMutex
	sinks []Emitter
}

// NewFanout builds a fanout over the non-nil sinks.
func NewFanout(sinks ...Emitter) *Fanout {
	f := &Fanout{}
	for _, sink := range sinks {
		f.Add(sink)
	}
	return f
}

// Add registers another sink.
func (f *Fanout) Add(sink Emitter) {
	if f == nil || sink == nil {
		return
	}
	f.mu.Lock()
	f.sinks = append(f.sinks, sink)
	f.mu.Unlock()
}

// Emit implements the Emitter interface.
func (f *Fanout) Emit(ev Event) {
	if f == nil {
		return
	}
	f.mu.RLock()
	sinks := f.sinks
	f.mu.RUnlock()
	for _, sink := range sinks {
		sink.Emit(ev)
	}
}

// EmitBatch implements BatchEmitter, keeping the batch intact for sinks that
// support it.
func (f *Fanout) EmitBatch(evs []Event) {
	if f == nil {
		return
	}
	f.mu.RLock()
	sinks := f.sinks
	f.mu.RUnlock()
	for _, sink := range sinks {
		EmitAll(sink, evs)
	}
}
