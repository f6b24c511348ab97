// Package grpcserver is the order gateway: clients submit sequenced
// requests and read their responses over gRPC.
package grpcserver

import (
	"context"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"tachyon/domain/exchange"
	"tachyon/infra/affinity"
	"tachyon/infra/codec"
	"tachyon/infra/metrics"
	"tachyon/infra/queue"
)

type Config struct {
	MaxNumClients      int
	MaxPendingRequests int
	PumpInterval       time.Duration
	// StreamBuffer is the per-session response buffer; a session that
	// lets it fill is disconnected.
	StreamBuffer  int
	SequencerCPU  int
	DispatcherCPU int
}

// Server adapts the engine queues to gRPC.
type Server struct {
	cfg  Config
	grpc *grpc.Server

	seqMu    sync.Mutex
	expected []uint64 // next inbound seq per client

	fifo *FIFOSequencer
	disp *dispatcher

	log     *zap.Logger
	metrics *metrics.Gateway
	now     func() time.Time

	stopped      atomic.Bool
	pumpDone     chan struct{}
	dispatchDone chan struct{}
}

func New(
	cfg Config,
	requests *queue.Producer[exchange.ClientRequest],
	responses *queue.Consumer[exchange.ClientResponse],
	log *zap.Logger,
	m *metrics.Gateway,
	opts ...grpc.ServerOption,
) *Server {
	s := &Server{
		cfg:          cfg,
		expected:     make([]uint64, cfg.MaxNumClients),
		fifo:         NewFIFOSequencer(requests, cfg.MaxPendingRequests, log.Named("fifo")),
		disp:         newDispatcher(responses, cfg.MaxNumClients, cfg.StreamBuffer, log.Named("dispatch"), m),
		log:          log,
		metrics:      m,
		now:          time.Now,
		pumpDone:     make(chan struct{}),
		dispatchDone: make(chan struct{}),
	}
	for i := range s.expected {
		s.expected[i] = 1
	}

	opts = append([]grpc.ServerOption{grpc.ForceServerCodec(Codec{})}, opts...)
	s.grpc = grpc.NewServer(opts...)
	s.grpc.RegisterService(&ServiceDesc, s)
	return s
}

// -------------------- Lifecycle --------------------

// Start launches the sequencer pump and the response dispatcher.
func (s *Server) Start(ctx context.Context) error {
	if err := affinity.Go(s.cfg.SequencerCPU, func() { s.pump(ctx) }); err != nil {
		return errors.Wrap(err, "gateway: start sequencer")
	}
	if err := affinity.Go(s.cfg.DispatcherCPU, func() { s.dispatch(ctx) }); err != nil {
		s.stopped.Store(true)
		<-s.pumpDone
		return errors.Wrap(err, "gateway: start dispatcher")
	}
	return nil
}

// Serve accepts gRPC connections on lis until Stop.
func (s *Server) Serve(lis net.Listener) error {
	s.log.Info("gateway serving", zap.Stringer("addr", lis.Addr()))
	return s.grpc.Serve(lis)
}

// Stop ends all sessions, drains in-flight calls, flushes pending
// requests to the engine and stops both goroutines. It must only be
// called after a successful Start.
func (s *Server) Stop() {
	s.disp.closeAll()
	s.grpc.GracefulStop()
	s.stopped.Store(true)
	<-s.pumpDone
	<-s.dispatchDone
	s.log.Info("gateway stopped")
}

func (s *Server) pump(ctx context.Context) {
	defer close(s.pumpDone)
	t := time.NewTicker(s.cfg.PumpInterval)
	defer t.Stop()

	for !s.stopped.Load() {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			s.fifo.SequenceAndPublish()
		}
	}
	s.fifo.SequenceAndPublish()
}

func (s *Server) dispatch(ctx context.Context) {
	defer close(s.dispatchDone)
	var spin affinity.Spinner
	if s.cfg.DispatcherCPU < 0 {
		spin.Park = 50 * time.Microsecond
	}

	for !s.stopped.Load() {
		select {
		case <-ctx.Done():
			return
		default:
		}
		if s.disp.dispatchOnce() {
			spin.Hit()
		} else {
			spin.Miss()
		}
	}
}

// -------------------- RPCs --------------------

func (s *Server) Submit(ctx context.Context, in *exchange.SequencedClientRequest) (*codec.SubmitAck, error) {
	req := in.Request
	if int(req.ClientID) >= len(s.expected) {
		return s.reject(in, fmt.Sprintf("unknown client %s", req.ClientID)), nil
	}

	s.seqMu.Lock()
	defer s.seqMu.Unlock()

	want := s.expected[req.ClientID]
	if in.SeqNum != want {
		s.expected[req.ClientID]++
		return s.reject(in, fmt.Sprintf("sequence: expected %d got %d", want, in.SeqNum)), nil
	}
	if reason := invalidReason(&req); reason != "" {
		s.expected[req.ClientID]++
		return s.reject(in, reason), nil
	}

	if !s.fifo.Add(s.now().UnixNano(), req) {
		s.metrics.Throttled.Inc()
		return nil, status.Errorf(codes.ResourceExhausted, "%d requests pending", s.cfg.MaxPendingRequests)
	}
	s.expected[req.ClientID]++
	s.metrics.Accepted.Inc()
	return &codec.SubmitAck{SeqNum: in.SeqNum, Accepted: true}, nil
}

func (s *Server) reject(in *exchange.SequencedClientRequest, reason string) *codec.SubmitAck {
	s.metrics.Rejected.Inc()
	s.log.Warn("request rejected", zap.Stringer("request", in), zap.String("reason", reason))
	return &codec.SubmitAck{SeqNum: in.SeqNum, Reason: reason}
}

func invalidReason(req *exchange.ClientRequest) string {
	switch req.Type {
	case exchange.RequestNew:
		if !req.Side.Valid() {
			return "invalid side"
		}
	case exchange.RequestCancel:
	default:
		return "unknown request type"
	}
	return ""
}

func (s *Server) Responses(in *codec.Subscribe, stream ResponsesServer) error {
	sess, err := s.disp.subscribe(in.ClientID)
	if err != nil {
		return err
	}
	defer s.disp.unsubscribe(sess)

	for {
		select {
		case <-stream.Context().Done():
			return nil
		case <-sess.done:
			return sess.err
		case msg := <-sess.out:
			if err := stream.Send(&msg); err != nil {
				return err
			}
		}
	}
}
