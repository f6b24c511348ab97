package grpcserver

import (
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"tachyon/domain/exchange"
	"tachyon/infra/metrics"
	"tachyon/infra/queue"
)

// session is one open Responses stream.
type session struct {
	id     uuid.UUID
	client exchange.ClientID
	out    chan exchange.SequencedClientResponse

	once sync.Once
	done chan struct{}
	err  error
}

// end closes the session with err. Only the first call counts.
func (s *session) end(err error) {
	s.once.Do(func() {
		s.err = err
		close(s.done)
	})
}

// dispatcher fans engine responses out to client sessions and numbers
// them per client from 1.
type dispatcher struct {
	in      *queue.Consumer[exchange.ClientResponse]
	nextSeq []uint64 // dispatcher goroutine only

	mu       sync.RWMutex
	sessions []*session
	closing  bool

	bufSize int
	log     *zap.Logger
	metrics *metrics.Gateway
}

func newDispatcher(in *queue.Consumer[exchange.ClientResponse], clients, bufSize int, log *zap.Logger, m *metrics.Gateway) *dispatcher {
	d := &dispatcher{
		in:       in,
		nextSeq:  make([]uint64, clients),
		sessions: make([]*session, clients),
		bufSize:  bufSize,
		log:      log,
		metrics:  m,
	}
	for i := range d.nextSeq {
		d.nextSeq[i] = 1
	}
	return d
}

func (d *dispatcher) subscribe(client exchange.ClientID) (*session, error) {
	if int(client) >= len(d.sessions) {
		return nil, status.Errorf(codes.InvalidArgument, "client %s out of range", client)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closing {
		return nil, status.Error(codes.Unavailable, "gateway shutting down")
	}
	if d.sessions[client] != nil {
		return nil, status.Errorf(codes.AlreadyExists, "client %s already subscribed", client)
	}
	s := &session{
		id:     uuid.New(),
		client: client,
		out:    make(chan exchange.SequencedClientResponse, d.bufSize),
		done:   make(chan struct{}),
	}
	d.sessions[client] = s
	d.metrics.Sessions.Inc()
	d.log.Info("session opened", zap.Stringer("session", s.id), zap.Uint32("client", uint32(client)))
	return s, nil
}

func (d *dispatcher) unsubscribe(s *session) {
	d.mu.Lock()
	if d.sessions[s.client] == s {
		d.sessions[s.client] = nil
		d.metrics.Sessions.Dec()
	}
	d.mu.Unlock()
	s.end(nil)
	d.log.Info("session closed", zap.Stringer("session", s.id), zap.Uint32("client", uint32(s.client)))
}

// closeAll ends every session and refuses new ones.
func (d *dispatcher) closeAll() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closing = true
	for _, s := range d.sessions {
		if s != nil {
			s.end(status.Error(codes.Unavailable, "gateway shutting down"))
		}
	}
}

// dispatchOnce delivers at most one engine response. It reports whether
// one was popped.
func (d *dispatcher) dispatchOnce() bool {
	resp, ok := d.in.Pop()
	if !ok {
		return false
	}
	if int(resp.ClientID) >= len(d.nextSeq) {
		d.metrics.Dropped.Inc()
		d.log.Error("response for unknown client", zap.Stringer("response", resp))
		return true
	}

	msg := exchange.SequencedClientResponse{SeqNum: d.nextSeq[resp.ClientID], Response: resp}
	d.nextSeq[resp.ClientID]++

	d.mu.RLock()
	s := d.sessions[resp.ClientID]
	d.mu.RUnlock()

	if s == nil {
		d.metrics.Dropped.Inc()
		d.log.Warn("no session for response", zap.Stringer("response", msg))
		return true
	}

	select {
	case <-s.done:
		// disconnected, handler not yet unsubscribed
		d.metrics.Dropped.Inc()
		return true
	default:
	}

	select {
	case s.out <- msg:
		d.metrics.Delivered.Inc()
	default:
		d.metrics.Disconnected.Inc()
		d.log.Warn("slow consumer disconnected",
			zap.Stringer("session", s.id), zap.Uint32("client", uint32(s.client)), zap.Uint64("seq", msg.SeqNum))
		s.end(status.Error(codes.ResourceExhausted, "response buffer full"))
	}
	return true
}
