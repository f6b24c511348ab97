// Package snapshot rebuilds the full book image from the incremental
// feed and periodically publishes it, so late joiners can recover
// without replaying the whole feed.
package snapshot

import (
	"context"
	"slices"
	"sync/atomic"
	"time"

	"github.com/IBM/sarama"
	"github.com/cockroachdb/errors"

	"tachyon/domain/exchange"
	"tachyon/infra/affinity"
	"tachyon/infra/codec"
	"tachyon/infra/memory"
	"tachyon/infra/metrics"
	"tachyon/infra/queue"
)

var (
	ErrSequenceGap    = errors.New("snapshot: incremental sequence gap")
	ErrDuplicateOrder = errors.New("snapshot: order already live")
	ErrUnknownOrder   = errors.New("snapshot: order not live")
	ErrSideMismatch   = errors.New("snapshot: side changed")
	ErrUnknownTicker  = errors.New("snapshot: ticker out of range")
)

var snapshotKey = sarama.StringEncoder("snapshot")

type Logger interface {
	Log(format string, args ...any)
}

type Config struct {
	CPU      int
	Topic    string
	Interval time.Duration
	Tickers  int
	// MaxOrders bounds the live orders held across all tickers.
	MaxOrders int
}

// Synthesizer is single-goroutine: Apply and PublishSnapshot run on the
// goroutine that owns it.
type Synthesizer struct {
	cfg Config

	updates  *queue.Consumer[exchange.PubMarketUpdate]
	producer sarama.SyncProducer
	log      Logger
	metrics  *metrics.MarketData

	pool   *memory.MemPool[exchange.MarketUpdate]
	orders []map[exchange.OrderID]*exchange.MarketUpdate
	live   int

	lastSeq      uint64
	lastSnapshot time.Time
	now          func() time.Time

	msgs []*sarama.ProducerMessage
	ids  []exchange.OrderID

	spin    affinity.Spinner
	stopped atomic.Bool
	done    chan struct{}
}

func New(
	cfg Config,
	updates *queue.Consumer[exchange.PubMarketUpdate],
	producer sarama.SyncProducer,
	log Logger,
	m *metrics.MarketData,
) *Synthesizer {
	s := &Synthesizer{
		cfg:      cfg,
		updates:  updates,
		producer: producer,
		log:      log,
		metrics:  m,
		pool:     memory.NewMemPool[exchange.MarketUpdate](cfg.MaxOrders),
		orders:   make([]map[exchange.OrderID]*exchange.MarketUpdate, cfg.Tickers),
		now:      time.Now,
		done:     make(chan struct{}),
	}
	for i := range s.orders {
		s.orders[i] = make(map[exchange.OrderID]*exchange.MarketUpdate)
	}
	s.lastSnapshot = s.now()
	return s
}

// ------------------------------------------------
// LIFECYCLE
// ------------------------------------------------

func (s *Synthesizer) Start(ctx context.Context) error {
	return errors.Wrap(affinity.Go(s.cfg.CPU, func() { s.Run(ctx) }), "snapshot: start")
}

// Run applies incremental updates and publishes a snapshot every
// cfg.Interval until Stop is called or ctx is done.
func (s *Synthesizer) Run(ctx context.Context) {
	defer close(s.done)
	s.log.Log("snapshot running cpu:% interval:%\n", s.cfg.CPU, s.cfg.Interval)

	for !s.stopped.Load() {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if pub, ok := s.updates.Pop(); ok {
			s.spin.Hit()
			s.Apply(&pub)
		} else {
			s.spin.Miss()
		}

		if s.now().Sub(s.lastSnapshot) >= s.cfg.Interval {
			if err := s.PublishSnapshot(); err != nil {
				s.metrics.SinkErrors.Inc()
				s.log.Log("snapshot publish err:%\n", err)
			}
		}
	}

	for pub, ok := s.updates.Pop(); ok; pub, ok = s.updates.Pop() {
		s.Apply(&pub)
	}
	s.log.Log("snapshot stopped at seq:%\n", s.lastSeq)
}

func (s *Synthesizer) Stop() { s.stopped.Store(true) }

func (s *Synthesizer) Done() <-chan struct{} { return s.done }

// ------------------------------------------------
// STATE
// ------------------------------------------------

// Apply folds one incremental update into the image. Gaps and updates
// inconsistent with the image are fatal.
func (s *Synthesizer) Apply(pub *exchange.PubMarketUpdate) {
	if pub.SeqNum != s.lastSeq+1 {
		panic(errors.Wrapf(ErrSequenceGap, "expected %d got %s", s.lastSeq+1, pub))
	}
	s.lastSeq = pub.SeqNum

	u := &pub.Update
	switch u.Type {
	case exchange.UpdateAdd:
		book := s.book(u)
		if _, ok := book[u.OrderID]; ok {
			panic(errors.Wrapf(ErrDuplicateOrder, "%s", pub))
		}
		book[u.OrderID] = s.pool.Allocate(*u)
		s.live++

	case exchange.UpdateModify:
		order, ok := s.book(u)[u.OrderID]
		if !ok {
			panic(errors.Wrapf(ErrUnknownOrder, "%s", pub))
		}
		if order.Side != u.Side {
			panic(errors.Wrapf(ErrSideMismatch, "%s live %s", pub, order))
		}
		order.Qty = u.Qty
		order.Price = u.Price

	case exchange.UpdateCancel:
		book := s.book(u)
		order, ok := book[u.OrderID]
		if !ok {
			panic(errors.Wrapf(ErrUnknownOrder, "%s", pub))
		}
		if order.Side != u.Side {
			panic(errors.Wrapf(ErrSideMismatch, "%s live %s", pub, order))
		}
		delete(book, u.OrderID)
		s.pool.Deallocate(order)
		s.live--

	default:
		// TRADE, CLEAR and SNAPSHOT_* carry no resting state
	}
}

func (s *Synthesizer) book(u *exchange.MarketUpdate) map[exchange.OrderID]*exchange.MarketUpdate {
	if int(u.TickerID) >= len(s.orders) {
		panic(errors.Wrapf(ErrUnknownTicker, "%s", u))
	}
	return s.orders[u.TickerID]
}

// LastSeq returns the last incremental sequence number applied.
func (s *Synthesizer) LastSeq() uint64 { return s.lastSeq }

// LiveOrders returns the number of orders in the image.
func (s *Synthesizer) LiveOrders() int { return s.live }

// ------------------------------------------------
// PUBLISH
// ------------------------------------------------

// PublishSnapshot sends SNAPSHOT_START, then per ticker a CLEAR followed
// by every live order as an ADD in order id order, then SNAPSHOT_END.
// START and END carry the last incremental sequence number in OrderID;
// snapshot messages are numbered from 0.
func (s *Synthesizer) PublishSnapshot() error {
	s.lastSnapshot = s.now()
	s.msgs = s.msgs[:0]

	s.appendMsg(exchange.MarketUpdate{Type: exchange.UpdateSnapshotStart, OrderID: exchange.OrderID(s.lastSeq)})
	for ticker, book := range s.orders {
		s.appendMsg(exchange.MarketUpdate{Type: exchange.UpdateClear, TickerID: exchange.TickerID(ticker)})

		s.ids = s.ids[:0]
		for id := range book {
			s.ids = append(s.ids, id)
		}
		slices.Sort(s.ids)
		for _, id := range s.ids {
			s.appendMsg(*book[id])
		}
	}
	s.appendMsg(exchange.MarketUpdate{Type: exchange.UpdateSnapshotEnd, OrderID: exchange.OrderID(s.lastSeq)})

	if err := s.producer.SendMessages(s.msgs); err != nil {
		return errors.Wrapf(err, "snapshot: send %d messages at seq %d", len(s.msgs), s.lastSeq)
	}

	s.metrics.Snapshots.Inc()
	s.metrics.LiveOrders.Set(float64(s.live))
	s.log.Log("snapshot published seq:% orders:% messages:%\n", s.lastSeq, s.live, len(s.msgs))
	return nil
}

func (s *Synthesizer) appendMsg(u exchange.MarketUpdate) {
	pub := exchange.PubMarketUpdate{SeqNum: uint64(len(s.msgs)), Update: u}
	s.msgs = append(s.msgs, &sarama.ProducerMessage{
		Topic: s.cfg.Topic,
		Key:   snapshotKey,
		Value: sarama.ByteEncoder(codec.EncodePubMarketUpdate(&pub)),
	})
}
