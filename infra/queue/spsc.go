package queue

import (
	"sync/atomic"

	"github.com/cockroachdb/errors"
)

var (
	ErrEndpointClaimed = errors.New("queue: endpoint already claimed")
	ErrCursorInversion = errors.New("queue: read cursor ahead of write cursor")
)

// SPSC is a fixed-capacity ring with monotonically increasing cursors.
// Data only moves through the Producer and Consumer endpoints.
//
// Cursors are never wrapped; slots are addressed with cursor & mask.
// The producer owns write and a cached copy of read, the consumer owns
// read and a cached copy of write, each on its own cache line.
type SPSC[T any] struct {
	_         [64]byte
	write     atomic.Uint64
	_         [56]byte
	readCache uint64 // producer-local
	_         [56]byte

	read       atomic.Uint64
	_          [56]byte
	writeCache uint64 // consumer-local
	_          [56]byte

	buf  []T
	mask uint64

	producerClaimed atomic.Bool
	consumerClaimed atomic.Bool
}

// NewSPSC allocates a ring of capacity slots. capacity must be a
// positive power of two.
func NewSPSC[T any](capacity int) *SPSC[T] {
	if capacity <= 0 || capacity&(capacity-1) != 0 {
		panic(errors.AssertionFailedf("queue: capacity must be a power of two, got %d", capacity))
	}
	return &SPSC[T]{
		buf:  make([]T, capacity),
		mask: uint64(capacity - 1),
	}
}

// push copies v into the next slot and publishes it to the consumer.
// It returns false without blocking when the ring is full.
func (q *SPSC[T]) push(v T) bool {
	w := q.write.Load()
	if w-q.readCache == uint64(len(q.buf)) {
		// looks full against the stale copy; refresh before giving up
		q.readCache = q.read.Load()
		if w-q.readCache == uint64(len(q.buf)) {
			return false
		}
	}
	q.buf[w&q.mask] = v
	q.write.Store(w + 1)
	return true
}

// pop moves the oldest element out of the ring. It returns false
// without blocking when the ring is empty.
func (q *SPSC[T]) pop() (T, bool) {
	var zero T
	r := q.read.Load()
	if r == q.writeCache {
		q.writeCache = q.write.Load()
		if r == q.writeCache {
			return zero, false
		}
	}
	i := r & q.mask
	v := q.buf[i]
	q.buf[i] = zero
	q.read.Store(r + 1)
	return v, true
}

// Size returns the number of queued elements. Safe from either side.
func (q *SPSC[T]) Size() int {
	r := q.read.Load()
	w := q.write.Load()
	if r > w {
		panic(errors.Wrapf(ErrCursorInversion, "read=%d write=%d", r, w))
	}
	return int(w - r)
}

// Empty reports whether the ring currently holds no elements.
func (q *SPSC[T]) Empty() bool { return q.Size() == 0 }

// Cap returns the fixed capacity.
func (q *SPSC[T]) Cap() int { return len(q.buf) }

// ---- endpoints ----

// Producer is the push side of an SPSC.
type Producer[T any] struct {
	q *SPSC[T]
}

// Consumer is the pop side of an SPSC.
type Consumer[T any] struct {
	q *SPSC[T]
}

// Producer claims the push endpoint. A second claim panics.
func (q *SPSC[T]) Producer() *Producer[T] {
	if !q.producerClaimed.CompareAndSwap(false, true) {
		panic(errors.Wrap(ErrEndpointClaimed, "producer"))
	}
	return &Producer[T]{q: q}
}

// Consumer claims the pop endpoint. A second claim panics.
func (q *SPSC[T]) Consumer() *Consumer[T] {
	if !q.consumerClaimed.CompareAndSwap(false, true) {
		panic(errors.Wrap(ErrEndpointClaimed, "consumer"))
	}
	return &Consumer[T]{q: q}
}

// Push hands v to the consumer. It returns false without blocking when
// the ring is full. Producer goroutine only.
func (p *Producer[T]) Push(v T) bool { return p.q.push(v) }
func (p *Producer[T]) Size() int     { return p.q.Size() }
func (p *Producer[T]) Cap() int      { return p.q.Cap() }

// Pop takes the oldest element. It returns false without blocking when
// the ring is empty. Consumer goroutine only.
func (c *Consumer[T]) Pop() (T, bool) { return c.q.pop() }
func (c *Consumer[T]) Size() int      { return c.q.Size() }
func (c *Consumer[T]) Cap() int       { return c.q.Cap() }
