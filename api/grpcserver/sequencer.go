package grpcserver

import (
	"slices"
	"sync"

	"go.uber.org/zap"

	"tachyon/domain/exchange"
	"tachyon/infra/queue"
)

type pendingRequest struct {
	rx  int64 // receive time, unix nanos
	req exchange.ClientRequest
}

// FIFOSequencer orders requests from all clients by receive time before
// they reach the engine. Add is called from any handler goroutine;
// SequenceAndPublish from the single pump goroutine, which is the
// request queue's only producer.
type FIFOSequencer struct {
	mu      sync.Mutex
	pending []pendingRequest
	max     int

	// pump-owned: sorted requests the engine queue had no room for
	batch []pendingRequest
	out   *queue.Producer[exchange.ClientRequest]
	log   *zap.Logger
}

func NewFIFOSequencer(out *queue.Producer[exchange.ClientRequest], maxPending int, log *zap.Logger) *FIFOSequencer {
	return &FIFOSequencer{
		pending: make([]pendingRequest, 0, maxPending),
		max:     maxPending,
		batch:   make([]pendingRequest, 0, maxPending),
		out:     out,
		log:     log,
	}
}

// Add buffers req. It returns false when the buffer is full.
func (s *FIFOSequencer) Add(rx int64, req exchange.ClientRequest) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.pending) >= s.max {
		return false
	}
	s.pending = append(s.pending, pendingRequest{rx: rx, req: req})
	return true
}

// Pending returns the number of buffered requests not yet taken by the
// pump.
func (s *FIFOSequencer) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// SequenceAndPublish moves everything buffered so far to the engine
// queue in receive-time order and returns how many were pushed.
// Whatever does not fit stays at the front for the next pass.
func (s *FIFOSequencer) SequenceAndPublish() int {
	s.mu.Lock()
	s.batch = append(s.batch, s.pending...)
	s.pending = s.pending[:0]
	s.mu.Unlock()

	if len(s.batch) == 0 {
		return 0
	}
	slices.SortStableFunc(s.batch, func(a, b pendingRequest) int {
		switch {
		case a.rx < b.rx:
			return -1
		case a.rx > b.rx:
			return 1
		}
		return 0
	})

	n := 0
	for ; n < len(s.batch); n++ {
		if !s.out.Push(s.batch[n].req) {
			break
		}
	}
	if n < len(s.batch) {
		s.log.Warn("engine request queue full",
			zap.Int("pushed", n), zap.Int("held", len(s.batch)-n))
	}
	s.batch = s.batch[:copy(s.batch, s.batch[n:])]
	return n
}
