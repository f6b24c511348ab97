// Package publisher turns the engine's market updates into the
// sequenced incremental feed.
package publisher

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/prometheus/client_golang/prometheus"

	"tachyon/domain/exchange"
	"tachyon/infra/affinity"
	"tachyon/infra/codec"
	"tachyon/infra/metrics"
	"tachyon/infra/queue"
)

var ErrSnapshotQueueFull = errors.New("publisher: snapshot queue full")

// feedKey keys every incremental message; one key keeps the feed on
// one partition.
var feedKey = []byte("incremental")

// sample queue depths every this many updates
const sampleEvery = 1024

// IncrementalSink delivers one encoded update to subscribers.
type IncrementalSink interface {
	Send(ctx context.Context, key, value []byte) error
}

// Store keeps published updates for retransmission.
type Store interface {
	Put(seq uint64, value []byte) error
	TruncateBefore(seq uint64) error
}

type Logger interface {
	Log(format string, args ...any)
}

type Config struct {
	CPU int
	// Retain bounds the store to the last Retain sequence numbers.
	// 0 keeps everything.
	Retain uint64
	// SendTimeout bounds one sink send. 0 leaves sends unbounded.
	SendTimeout time.Duration
	// SinkBackoff is how long the sink is skipped after a failed send.
	// Skipped updates are still sequenced, stored and forwarded.
	SinkBackoff time.Duration
}

type Publisher struct {
	cfg Config

	updates  *queue.Consumer[exchange.MarketUpdate]
	snapshot *queue.Producer[exchange.PubMarketUpdate]
	// last sequence number issued; written by the publisher goroutine
	seq atomic.Uint64

	sink    IncrementalSink
	store   Store
	log     Logger
	metrics *metrics.MarketData

	sinkDownUntil time.Time
	now           func() time.Time

	updatesDepth  prometheus.Gauge
	snapshotDepth prometheus.Gauge

	spin    affinity.Spinner
	stopped atomic.Bool
	done    chan struct{}
}

func New(
	cfg Config,
	updates *queue.Consumer[exchange.MarketUpdate],
	snapshot *queue.Producer[exchange.PubMarketUpdate],
	sink IncrementalSink,
	store Store,
	log Logger,
	m *metrics.MarketData,
) *Publisher {
	return &Publisher{
		cfg:           cfg,
		updates:       updates,
		snapshot:      snapshot,
		sink:          sink,
		store:         store,
		log:           log,
		metrics:       m,
		updatesDepth:  m.QueueDepth.WithLabelValues("market_updates"),
		snapshotDepth: m.QueueDepth.WithLabelValues("snapshot_updates"),
		now:           time.Now,
		done:          make(chan struct{}),
	}
}

// Start runs the publisher on its own OS thread pinned to cfg.CPU.
func (p *Publisher) Start(ctx context.Context) error {
	return errors.Wrap(affinity.Go(p.cfg.CPU, func() { p.Run(ctx) }), "publisher: start")
}

// Run publishes until Stop is called or ctx is done, then drains what
// the engine already queued.
func (p *Publisher) Run(ctx context.Context) {
	defer close(p.done)
	p.log.Log("publisher running cpu:%\n", p.cfg.CPU)

	for !p.stopped.Load() {
		select {
		case <-ctx.Done():
			p.log.Log("publisher context done at seq:%\n", p.seq.Load())
			return
		default:
		}

		u, ok := p.updates.Pop()
		if !ok {
			p.spin.Miss()
			continue
		}
		p.spin.Hit()
		p.Publish(ctx, &u)
	}

	for u, ok := p.updates.Pop(); ok; u, ok = p.updates.Pop() {
		p.Publish(ctx, &u)
	}
	p.log.Log("publisher stopped at seq:%\n", p.seq.Load())
}

func (p *Publisher) Stop() { p.stopped.Store(true) }

func (p *Publisher) Done() <-chan struct{} { return p.done }

// LastSeq returns the last sequence number published.
func (p *Publisher) LastSeq() uint64 { return p.seq.Load() }

// Publish stamps u with the next sequence number and fans it out.
// Publisher goroutine only.
func (p *Publisher) Publish(ctx context.Context, u *exchange.MarketUpdate) {
	pub := exchange.PubMarketUpdate{SeqNum: p.seq.Load() + 1, Update: *u}
	p.seq.Store(pub.SeqNum)
	p.log.Log("publisher send %\n", pub)

	msg := codec.EncodePubMarketUpdate(&pub)
	p.send(ctx, pub.SeqNum, msg)
	if err := p.store.Put(pub.SeqNum, msg); err != nil {
		p.metrics.StoreErrors.Inc()
		p.log.Log("publisher store seq:% err:%\n", pub.SeqNum, err)
	}
	if r := p.cfg.Retain; r > 0 && pub.SeqNum > r && pub.SeqNum%r == 0 {
		if err := p.store.TruncateBefore(pub.SeqNum - r); err != nil {
			p.metrics.StoreErrors.Inc()
			p.log.Log("publisher truncate before:% err:%\n", pub.SeqNum-r, err)
		}
	}

	if !p.snapshot.Push(pub) {
		panic(errors.Wrapf(ErrSnapshotQueueFull, "cap %d at %s", p.snapshot.Cap(), pub))
	}

	p.metrics.Published.Inc()
	p.metrics.LastSeq.Set(float64(pub.SeqNum))
	if pub.SeqNum%sampleEvery == 0 {
		p.updatesDepth.Set(float64(p.updates.Size()))
		p.snapshotDepth.Set(float64(p.snapshot.Size()))
	}
}

// send delivers msg within cfg.SendTimeout. After a failure the sink is
// skipped for cfg.SinkBackoff so a dead broker cannot stall the feed;
// subscribers recover skipped updates from the store.
func (p *Publisher) send(ctx context.Context, seq uint64, msg []byte) {
	now := p.now()
	if now.Before(p.sinkDownUntil) {
		p.metrics.SinkSkipped.Inc()
		return
	}

	if p.cfg.SendTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.cfg.SendTimeout)
		defer cancel()
	}
	if err := p.sink.Send(ctx, feedKey, msg); err != nil {
		p.metrics.SinkErrors.Inc()
		p.sinkDownUntil = p.now().Add(p.cfg.SinkBackoff)
		p.log.Log("publisher sink seq:% err:% backoff:%\n", seq, err, p.cfg.SinkBackoff)
	}
}
