package market

import (
	"iter"

	"marketshm/internal/wire"
)

// Ring is a fixed-capacity circular store of records plus their frame
// headers. A full ring overwrites the logically oldest entry on append; that
// eviction is the designed behavior, so Append cannot fail.
//
// Ring is not self-synchronizing. It is owned by a Symbol and must only be
// touched while the Symbol's mutex is held.
type Ring[T any] struct {
	records []T
	headers []wire.FrameHeader
	next    int // next write position, advances mod capacity
	count   int // saturates at capacity
}

// NewRing creates a ring holding at most capacity entries.
func NewRing[T any](capacity int) *Ring[T] {
	return &Ring[T]{
		records: make([]T, capacity),
		headers: make([]wire.FrameHeader, capacity),
	}
}

// Append stores a record and its header, evicting the oldest entry when full.
func (r *Ring[T]) Append(rec T, hdr wire.FrameHeader) {
	r.records[r.next] = rec
	r.headers[r.next] = hdr
	r.next = (r.next + 1) % len(r.records)
	if r.count < len(r.records) {
		r.count++
	}
}

// Len returns the number of stored entries.
func (r *Ring[T]) Len() int { return r.count }

// Cap returns the ring capacity.
func (r *Ring[T]) Cap() int { return len(r.records) }

// All yields the stored (header, record) pairs in chronological order,
// oldest first. The sequence is restartable and performs no blocking, so it
// is safe to range over while holding the owning mutex.
func (r *Ring[T]) All() iter.Seq2[wire.FrameHeader, T] {
	return func(yield func(wire.FrameHeader, T) bool) {
		start := 0
		if r.count == len(r.records) {
			start = r.next
		}
		for i := 0; i < r.count; i++ {
			idx := (start + i) % len(r.records)
			if !yield(r.headers[idx], r.records[idx]) {
				return
			}
		}
	}
}
