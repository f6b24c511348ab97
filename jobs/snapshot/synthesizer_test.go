package snapshot

import (
	"context"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/cockroachdb/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tachyon/domain/exchange"
	"tachyon/infra/codec"
	"tachyon/infra/metrics"
	"tachyon/infra/queue"
)

type nopLogger struct{}

func (nopLogger) Log(string, ...any) {}

func newSynth(t *testing.T, producer sarama.SyncProducer) (*Synthesizer, *queue.Producer[exchange.PubMarketUpdate]) {
	t.Helper()
	q := queue.NewSPSC[exchange.PubMarketUpdate](256)
	s := New(Config{CPU: -1, Topic: "md.snapshot", Interval: time.Hour, Tickers: 2, MaxOrders: 64},
		q.Consumer(), producer, nopLogger{}, metrics.NewMarketData(prometheus.NewRegistry()))
	return s, q.Producer()
}

type feed struct {
	seq uint64
}

func (f *feed) next(u exchange.MarketUpdate) *exchange.PubMarketUpdate {
	f.seq++
	return &exchange.PubMarketUpdate{SeqNum: f.seq, Update: u}
}

func addUpdate(ticker exchange.TickerID, oid exchange.OrderID, side exchange.Side, px exchange.Price, qty exchange.Qty) exchange.MarketUpdate {
	return exchange.MarketUpdate{Type: exchange.UpdateAdd, TickerID: ticker, OrderID: oid, Side: side, Price: px, Qty: qty, Priority: 1}
}

func recoverErr(fn func()) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = r.(error)
		}
	}()
	fn()
	return nil
}

func TestApply_AddModifyCancel(t *testing.T) {
	s, _ := newSynth(t, mocks.NewSyncProducer(t, mocks.NewTestConfig()))
	var f feed

	s.Apply(f.next(addUpdate(0, 1, exchange.Buy, 100, 10)))
	s.Apply(f.next(addUpdate(0, 2, exchange.Buy, 100, 5)))
	s.Apply(f.next(exchange.MarketUpdate{Type: exchange.UpdateTrade, TickerID: 0, Side: exchange.Sell, Price: 100, Qty: 4}))
	s.Apply(f.next(exchange.MarketUpdate{Type: exchange.UpdateModify, TickerID: 0, OrderID: 1, Side: exchange.Buy, Price: 100, Qty: 6}))
	s.Apply(f.next(exchange.MarketUpdate{Type: exchange.UpdateCancel, TickerID: 0, OrderID: 2, Side: exchange.Buy, Price: 100}))

	assert.Equal(t, uint64(5), s.LastSeq())
	assert.Equal(t, 1, s.LiveOrders())
	assert.Equal(t, exchange.Qty(6), s.orders[0][1].Qty)
}

func TestApply_InconsistenciesAreFatal(t *testing.T) {
	tests := []struct {
		name string
		want error
		run  func(s *Synthesizer, f *feed)
	}{
		{"gap", ErrSequenceGap, func(s *Synthesizer, f *feed) {
			f.seq++
			s.Apply(f.next(addUpdate(0, 1, exchange.Buy, 100, 1)))
		}},
		{"duplicate add", ErrDuplicateOrder, func(s *Synthesizer, f *feed) {
			s.Apply(f.next(addUpdate(0, 1, exchange.Buy, 100, 1)))
			s.Apply(f.next(addUpdate(0, 1, exchange.Buy, 100, 1)))
		}},
		{"modify unknown", ErrUnknownOrder, func(s *Synthesizer, f *feed) {
			s.Apply(f.next(exchange.MarketUpdate{Type: exchange.UpdateModify, OrderID: 9, Side: exchange.Buy}))
		}},
		{"modify side", ErrSideMismatch, func(s *Synthesizer, f *feed) {
			s.Apply(f.next(addUpdate(0, 1, exchange.Buy, 100, 1)))
			s.Apply(f.next(exchange.MarketUpdate{Type: exchange.UpdateModify, OrderID: 1, Side: exchange.Sell}))
		}},
		{"cancel unknown", ErrUnknownOrder, func(s *Synthesizer, f *feed) {
			s.Apply(f.next(exchange.MarketUpdate{Type: exchange.UpdateCancel, TickerID: 1, OrderID: 3, Side: exchange.Sell}))
		}},
		{"ticker", ErrUnknownTicker, func(s *Synthesizer, f *feed) {
			s.Apply(f.next(addUpdate(5, 1, exchange.Buy, 100, 1)))
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, _ := newSynth(t, mocks.NewSyncProducer(t, mocks.NewTestConfig()))
			err := recoverErr(func() { tt.run(s, &feed{}) })
			require.True(t, errors.Is(err, tt.want), "got %v", err)
		})
	}
}

func TestPublishSnapshot_Layout(t *testing.T) {
	producer := mocks.NewSyncProducer(t, mocks.NewTestConfig())
	s, _ := newSynth(t, producer)
	var f feed

	s.Apply(f.next(addUpdate(1, 7, exchange.Sell, 105, 3)))
	s.Apply(f.next(addUpdate(0, 4, exchange.Buy, 99, 2)))
	s.Apply(f.next(addUpdate(1, 2, exchange.Sell, 106, 1)))

	var got []exchange.PubMarketUpdate
	checker := func(val []byte) error {
		pub, err := codec.DecodePubMarketUpdate(val)
		got = append(got, pub)
		return err
	}
	// START, CLEAR t0, ADD 4, CLEAR t1, ADD 2, ADD 7, END
	for i := 0; i < 7; i++ {
		producer.ExpectSendMessageWithCheckerFunctionAndSucceed(checker)
	}

	require.NoError(t, s.PublishSnapshot())
	require.NoError(t, producer.Close())

	require.Len(t, got, 7)
	for i, pub := range got {
		assert.Equal(t, uint64(i), pub.SeqNum, "snapshot messages numbered from 0")
	}
	assert.Equal(t, exchange.UpdateSnapshotStart, got[0].Update.Type)
	assert.Equal(t, exchange.OrderID(3), got[0].Update.OrderID)
	assert.Equal(t, exchange.UpdateClear, got[1].Update.Type)
	assert.Equal(t, exchange.TickerID(0), got[1].Update.TickerID)
	assert.Equal(t, exchange.OrderID(4), got[2].Update.OrderID)
	assert.Equal(t, exchange.UpdateClear, got[3].Update.Type)
	assert.Equal(t, exchange.TickerID(1), got[3].Update.TickerID)
	assert.Equal(t, exchange.OrderID(2), got[4].Update.OrderID)
	assert.Equal(t, exchange.OrderID(7), got[5].Update.OrderID)
	assert.Equal(t, exchange.Qty(3), got[5].Update.Qty)
	assert.Equal(t, exchange.UpdateSnapshotEnd, got[6].Update.Type)
	assert.Equal(t, exchange.OrderID(3), got[6].Update.OrderID)
}

func TestPublishSnapshot_ProducerError(t *testing.T) {
	producer := mocks.NewSyncProducer(t, mocks.NewTestConfig())
	s, _ := newSynth(t, producer)

	producer.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)
	producer.ExpectSendMessageAndSucceed()
	producer.ExpectSendMessageAndSucceed()
	producer.ExpectSendMessageAndSucceed()

	err := s.PublishSnapshot()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "snapshot: send 4 messages")
	require.NoError(t, producer.Close())
}

func TestRun_PublishesOnInterval(t *testing.T) {
	producer := mocks.NewSyncProducer(t, mocks.NewTestConfig())
	s, in := newSynth(t, producer)

	clock := time.Unix(0, 0)
	s.now = func() time.Time { return clock }
	s.lastSnapshot = clock

	require.True(t, in.Push(*(&feed{}).next(addUpdate(0, 1, exchange.Buy, 100, 1))))
	// START, CLEAR, ADD, CLEAR, END
	for i := 0; i < 5; i++ {
		producer.ExpectSendMessageAndSucceed()
	}
	// the interval elapses before Run starts; the first pass applies
	// the update then publishes
	clock = clock.Add(2 * time.Hour)

	require.NoError(t, s.Start(context.Background()))
	require.Eventually(t, func() bool {
		return testutil.ToFloat64(s.metrics.Snapshots) == 1
	}, 5*time.Second, time.Millisecond)
	s.Stop()
	<-s.Done()
	require.NoError(t, producer.Close())
}
