package service

import (
	"context"
	"sync/atomic"

	"github.com/cockroachdb/errors"

	"tachyon/domain/exchange"
	"tachyon/domain/orderbook"
	"tachyon/infra/affinity"
	"tachyon/infra/metrics"
	"tachyon/infra/queue"
)

var (
	ErrOutputQueueFull = errors.New("engine: output queue full")
	ErrUnknownRequest  = errors.New("engine: unknown request type")
)

type Config struct {
	Tickers int
	Limits  orderbook.Limits
	// CPU pins the engine thread; negative leaves it unpinned.
	CPU int
	// DepthEvery is the number of processed requests between depth
	// publications. 0 disables them.
	DepthEvery  int
	DepthLevels int
}

/*
MatchingEngine is the ONLY writer of the order books.

Run is a busy-poll loop: one request per iteration, processed to
completion before the stop flag is looked at again.
*/
type MatchingEngine struct {
	cfg   Config
	books []*orderbook.OrderBook

	requests  *queue.Consumer[exchange.ClientRequest]
	responses *queue.Producer[exchange.ClientResponse]
	updates   *queue.Producer[exchange.MarketUpdate]

	log     orderbook.Logger
	metrics *metrics.Engine
	depth   *DepthPublisher

	processed uint64
	spin      affinity.Spinner
	stopped   atomic.Bool
	done      chan struct{}
}

// NewMatchingEngine wires one book per ticker to the queues.
func NewMatchingEngine(
	cfg Config,
	requests *queue.Consumer[exchange.ClientRequest],
	responses *queue.Producer[exchange.ClientResponse],
	updates *queue.Producer[exchange.MarketUpdate],
	log orderbook.Logger,
	m *metrics.Engine,
	depth *DepthPublisher,
) *MatchingEngine {
	e := &MatchingEngine{
		cfg:       cfg,
		books:     make([]*orderbook.OrderBook, cfg.Tickers),
		requests:  requests,
		responses: responses,
		updates:   updates,
		log:       log,
		metrics:   m,
		depth:     depth,
		done:      make(chan struct{}),
	}
	for i := range e.books {
		e.books[i] = orderbook.New(exchange.TickerID(i), e, log, cfg.Limits)
	}
	return e
}

//
// ──────────────────────────────────────────────────────────
// Lifecycle
// ──────────────────────────────────────────────────────────
//

// Start runs the engine on its own OS thread pinned to cfg.CPU.
func (e *MatchingEngine) Start(ctx context.Context) error {
	err := affinity.Go(e.cfg.CPU, func() { e.Run(ctx) })
	return errors.Wrap(err, "engine: start")
}

// Run processes requests until Stop is called or ctx is done. After
// Stop it also drains what is already queued.
func (e *MatchingEngine) Run(ctx context.Context) {
	defer close(e.done)
	e.log.Log("engine running tickers:% cpu:%\n", len(e.books), e.cfg.CPU)
	e.publishDepth()

	if e.loop(ctx) {
		for req, ok := e.requests.Pop(); ok; req, ok = e.requests.Pop() {
			e.log.Log("engine recv %\n", req)
			e.ProcessRequest(&req)
		}
	}
	e.publishDepth()
	e.log.Log("engine stopped after % requests\n", e.processed)
}

// loop polls until Stop (true) or ctx cancellation (false).
func (e *MatchingEngine) loop(ctx context.Context) bool {
	for !e.stopped.Load() {
		select {
		case <-ctx.Done():
			e.log.Log("engine context done\n")
			return false
		default:
		}

		req, ok := e.requests.Pop()
		if !ok {
			e.spin.Miss()
			continue
		}
		e.spin.Hit()
		e.log.Log("engine recv %\n", req)
		e.ProcessRequest(&req)
	}
	return true
}

// Stop asks Run to drain the request queue and return.
func (e *MatchingEngine) Stop() { e.stopped.Store(true) }

// Done is closed when Run has returned.
func (e *MatchingEngine) Done() <-chan struct{} { return e.done }

//
// ──────────────────────────────────────────────────────────
// Commands
// ──────────────────────────────────────────────────────────
//

// ProcessRequest applies one client request to its book. Engine
// goroutine only.
func (e *MatchingEngine) ProcessRequest(req *exchange.ClientRequest) {
	e.metrics.Request(req.Type)

	switch {
	case int(req.TickerID) >= len(e.books):
		e.log.Log("engine reject unknown ticker %\n", req)
		resp := exchange.Rejected(*req)
		e.SendClientResponse(&resp)
	case req.Type == exchange.RequestNew:
		e.books[req.TickerID].Add(req.ClientID, req.ClientOrderID, req.Side, req.Price, req.Qty)
	case req.Type == exchange.RequestCancel:
		e.books[req.TickerID].Cancel(req.ClientID, req.ClientOrderID)
	default:
		panic(errors.Wrapf(ErrUnknownRequest, "%s", req))
	}

	e.processed++
	if e.cfg.DepthEvery > 0 && e.processed%uint64(e.cfg.DepthEvery) == 0 {
		e.publishDepth()
	}
}

// SendClientResponse implements orderbook.Sink.
func (e *MatchingEngine) SendClientResponse(resp *exchange.ClientResponse) {
	e.log.Log("engine send %\n", resp)
	if !e.responses.Push(*resp) {
		panic(errors.Wrapf(ErrOutputQueueFull, "client responses (cap %d) at %s", e.responses.Cap(), resp))
	}
	e.metrics.Response(resp.Type)
}

// SendMarketUpdate implements orderbook.Sink.
func (e *MatchingEngine) SendMarketUpdate(update *exchange.MarketUpdate) {
	e.log.Log("engine send %\n", update)
	if !e.updates.Push(*update) {
		panic(errors.Wrapf(ErrOutputQueueFull, "market updates (cap %d) at %s", e.updates.Cap(), update))
	}
	e.metrics.Update(update)
}

func (e *MatchingEngine) publishDepth() {
	if e.depth == nil {
		return
	}
	for _, book := range e.books {
		e.depth.store(&BookDepth{
			Ticker:    book.Ticker(),
			Bids:      book.Depth(exchange.Buy, e.cfg.DepthLevels),
			Asks:      book.Depth(exchange.Sell, e.cfg.DepthLevels),
			Orders:    book.OrderCount(),
			Processed: e.processed,
		})
	}
}
