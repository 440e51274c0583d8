// Package queue provides the bounded single-producer/single-consumer
// transfer queue between the feed callbacks and the publish worker.
package queue

import (
	"sync/atomic"

	"github.com/faroukBakari/tws-redis-bridge-sub000/market"
)

// Ring is a fixed-capacity SPSC ring buffer of tick updates.
//
// Exactly one goroutine may call TryPush and exactly one may call TryPop.
// The producer side never blocks: on a full ring TryPush returns false
// and the caller drops the update. head and tail are kept on separate
// cache lines to avoid false sharing between the two goroutines.
type Ring struct {
	mask uint64
	buf  []market.TickUpdate

	_    [64]byte
	head atomic.Uint64 // next slot to pop, advanced by the consumer
	_    [64]byte
	tail atomic.Uint64 // next slot to push, advanced by the producer
	_    [64]byte
}

// NewRing allocates a ring with at least the requested capacity, rounded
// up to a power of two so index math stays a single mask.
func NewRing(capacity int) *Ring {
	if capacity < 2 {
		capacity = 2
	}
	size := uint64(1)
	for size < uint64(capacity) {
		size <<= 1
	}
	return &Ring{
		mask: size - 1,
		buf:  make([]market.TickUpdate, size),
	}
}

// Cap returns the number of slots.
func (r *Ring) Cap() int { return len(r.buf) }

// Len returns the number of queued updates. It is an instantaneous
// reading, safe to call from any goroutine.
func (r *Ring) Len() int {
	return int(r.tail.Load() - r.head.Load())
}

// TryPush appends one update without blocking. It returns false when the
// ring is full; the update is then the caller's to drop.
func (r *Ring) TryPush(u market.TickUpdate) bool {
	tail := r.tail.Load()
	if tail-r.head.Load() > r.mask {
		return false
	}
	r.buf[tail&r.mask] = u
	// The store below publishes the slot write above to the consumer.
	r.tail.Store(tail + 1)
	return true
}

// TryPop removes the oldest update without blocking. The second return
// value is false when the ring is empty.
func (r *Ring) TryPop() (market.TickUpdate, bool) {
	head := r.head.Load()
	if head == r.tail.Load() {
		return market.TickUpdate{}, false
	}
	u := r.buf[head&r.mask]
	r.head.Store(head + 1)
	return u, true
}
