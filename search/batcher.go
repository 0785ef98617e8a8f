package search

import (
	"sync"
	"time"

	"github.com/lexandro/volindex-mcp/feed"
)

// Batcher collects change events and hands them over in batches, either
// after a quiet interval or once threshold events are pending. Multiple
// events for the same record within a batch collapse into the latest one.
type Batcher struct {
	interval  time.Duration
	threshold int
	flushFn   func([]feed.Event)

	mu      sync.Mutex
	events  []feed.Event
	pos     map[uint64]int
	timer   *time.Timer
	stopped bool

	// flushMu keeps batches in arrival order.
	flushMu sync.Mutex
}

// NewBatcher creates a batcher that passes each batch to fn.
func NewBatcher(interval time.Duration, threshold int, fn func([]feed.Event)) *Batcher {
	return &Batcher{
		interval:  interval,
		threshold: threshold,
		flushFn:   fn,
		pos:       make(map[uint64]int),
	}
}

// Add adds an event to the current batch. If an event for the same record
// is already pending it is replaced, keeping its position.
func (b *Batcher) Add(ev feed.Event) {
	b.mu.Lock()
	if b.stopped {
		b.mu.Unlock()
		return
	}
	if i, ok := b.pos[ev.RecordID]; ok {
		b.events[i] = ev
	} else {
		b.pos[ev.RecordID] = len(b.events)
		b.events = append(b.events, ev)
	}

	// Reset the timer each time a new event arrives
	if b.timer != nil {
		b.timer.Stop()
	}
	full := b.threshold > 0 && len(b.events) >= b.threshold
	if !full {
		b.timer = time.AfterFunc(b.interval, b.Flush)
	}
	b.mu.Unlock()

	if full {
		b.Flush()
	}
}

// Pending returns the number of events waiting for the next batch.
func (b *Batcher) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.events)
}

// Flush hands the pending events over immediately.
func (b *Batcher) Flush() {
	b.flushMu.Lock()
	defer b.flushMu.Unlock()

	b.mu.Lock()
	if len(b.events) == 0 {
		b.mu.Unlock()
		return
	}
	batch := b.events
	b.events = nil
	b.pos = make(map[uint64]int)
	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}
	b.mu.Unlock()

	b.flushFn(batch)
}

// Stop flushes pending events and rejects further ones.
func (b *Batcher) Stop() {
	b.mu.Lock()
	b.stopped = true
	b.mu.Unlock()
	b.Flush()
}
