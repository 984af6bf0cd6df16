// Package dedup guards against duplicate deliveries of the same notification
// within a sliding time window. The upstream notifier is allowed to retry, so
// a logically identical record can arrive more than once, concurrently.
package dedup

import (
	"context"
	"sync"
	"time"
)

// DefaultWindow is the dedup window applied when no override is configured.
const DefaultWindow = 5 * time.Minute

// Deduplicator records which record identifiers were processed recently.
//
// Per-identifier state machine: absent → (CheckAndMark) → active →
// (window elapses, or Release) → absent. CheckAndMark is a single atomic
// insert-if-absent: with N concurrent callers for one identifier, exactly one
// observes true. Release drops an active mark so a persistence failure leaves
// the identifier eligible for redelivery; Mark refreshes the mark once the
// run has fully persisted.
type Deduplicator interface {
	CheckAndMark(ctx context.Context, id string) (bool, error)
	Seen(ctx context.Context, id string) (bool, error)
	Mark(ctx context.Context, id string) error
	Release(ctx context.Context, id string) error
	Sweep(ctx context.Context) error
}

// MemoryDeduplicator keeps marks in a process-local map. It is the default
// backend and is safe for concurrent use.
type MemoryDeduplicator struct {
	window time.Duration

	mu    sync.Mutex
	marks map[string]time.Time

	now func() time.Time
}

// NewMemoryDeduplicator creates an in-memory deduplicator. window <= 0 falls
// back to DefaultWindow.
func NewMemoryDeduplicator(window time.Duration) *MemoryDeduplicator {
	if window <= 0 {
		window = DefaultWindow
	}
	return &MemoryDeduplicator{
		window: window,
		marks:  make(map[string]time.Time),
		now:    time.Now,
	}
}

// CheckAndMark atomically records id unless an unexpired mark already exists.
// Returns true when the caller won the identifier and should proceed.
func (d *MemoryDeduplicator) CheckAndMark(_ context.Context, id string) (bool, error) {
	now := d.now()

	d.mu.Lock()
	defer d.mu.Unlock()

	if at, ok := d.marks[id]; ok && now.Sub(at) < d.window {
		return false, nil
	}
	d.marks[id] = now
	return true, nil
}

// Seen reports whether id carries an unexpired mark.
func (d *MemoryDeduplicator) Seen(_ context.Context, id string) (bool, error) {
	now := d.now()

	d.mu.Lock()
	defer d.mu.Unlock()

	at, ok := d.marks[id]
	return ok && now.Sub(at) < d.window, nil
}

// Mark refreshes the mark for id with the current time.
func (d *MemoryDeduplicator) Mark(_ context.Context, id string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.marks[id] = d.now()
	return nil
}

// Release removes the mark for id, re-enabling processing of a redelivery.
func (d *MemoryDeduplicator) Release(_ context.Context, id string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	delete(d.marks, id)
	return nil
}

// Sweep drops every expired mark. Invoked opportunistically on inbound
// notifications rather than from a background timer.
func (d *MemoryDeduplicator) Sweep(_ context.Context) error {
	now := d.now()

	d.mu.Lock()
	defer d.mu.Unlock()

	for id, at := range d.marks {
		if now.Sub(at) >= d.window {
			delete(d.marks, id)
		}
	}
	return nil
}
