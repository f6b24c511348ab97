package orderbook

import (
	"math/rand"
	"strings"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tachyon/domain/exchange"
)

type captureSink struct {
	responses []exchange.ClientResponse
	updates   []exchange.MarketUpdate
}

func (s *captureSink) SendClientResponse(r *exchange.ClientResponse) {
	s.responses = append(s.responses, *r)
}

func (s *captureSink) SendMarketUpdate(u *exchange.MarketUpdate) {
	s.updates = append(s.updates, *u)
}

func (s *captureSink) reset() {
	s.responses = s.responses[:0]
	s.updates = s.updates[:0]
}

func (s *captureSink) updatesOf(t exchange.MarketUpdateType) []exchange.MarketUpdate {
	var out []exchange.MarketUpdate
	for _, u := range s.updates {
		if u.Type == t {
			out = append(out, u)
		}
	}
	return out
}

func (s *captureSink) responsesOf(t exchange.ClientResponseType) []exchange.ClientResponse {
	var out []exchange.ClientResponse
	for _, r := range s.responses {
		if r.Type == t {
			out = append(out, r)
		}
	}
	return out
}

type nopLogger struct{}

func (nopLogger) Log(string, ...any) {}

var testLimits = Limits{MaxOrderIDs: 1024, MaxNumClients: 8, MaxPriceLevels: 256}

func newTestBook() (*OrderBook, *captureSink) {
	sink := &captureSink{}
	return New(1, sink, nopLogger{}, testLimits), sink
}

func TestAdd_RestsWhenNothingCrosses(t *testing.T) {
	book, sink := newTestBook()
	book.Add(1, 10, exchange.Buy, 100, 5)

	require.Len(t, sink.responses, 1)
	assert.Equal(t, exchange.ResponseAccepted, sink.responses[0].Type)
	assert.Equal(t, exchange.OrderID(1), sink.responses[0].MarketOrderID)
	assert.Equal(t, exchange.Qty(5), sink.responses[0].LeavesQty)

	adds := sink.updatesOf(exchange.UpdateAdd)
	require.Len(t, adds, 1)
	assert.Equal(t, exchange.Priority(1), adds[0].Priority)
	assert.Equal(t, exchange.Qty(5), adds[0].Qty)

	bid, ok := book.Best(exchange.Buy)
	require.True(t, ok)
	assert.Equal(t, exchange.Price(100), bid.Price)
	_, ok = book.Best(exchange.Sell)
	assert.False(t, ok)
	require.NoError(t, book.Validate())
}

func TestAdd_PartialFillRestsRemainder(t *testing.T) {
	book, sink := newTestBook()
	book.Add(2, 1, exchange.Sell, 100, 60)
	sink.reset()

	book.Add(1, 1, exchange.Buy, 101, 100)

	fills := sink.responsesOf(exchange.ResponseFilled)
	require.Len(t, fills, 2)
	assert.Equal(t, exchange.ClientID(1), fills[0].ClientID)
	assert.Equal(t, exchange.Qty(60), fills[0].ExecQty)
	assert.Equal(t, exchange.Qty(40), fills[0].LeavesQty)
	assert.Equal(t, exchange.Price(100), fills[0].Price, "executes at the resting price")
	assert.Equal(t, exchange.ClientID(2), fills[1].ClientID)
	assert.Equal(t, exchange.Qty(60), fills[1].ExecQty)
	assert.Equal(t, exchange.Qty(0), fills[1].LeavesQty)

	trades := sink.updatesOf(exchange.UpdateTrade)
	require.Len(t, trades, 1)
	assert.Equal(t, exchange.Qty(60), trades[0].Qty)
	assert.Equal(t, exchange.Buy, trades[0].Side)

	adds := sink.updatesOf(exchange.UpdateAdd)
	require.Len(t, adds, 1)
	assert.Equal(t, exchange.Qty(40), adds[0].Qty)
	assert.Equal(t, exchange.Price(101), adds[0].Price)

	_, ok := book.Best(exchange.Sell)
	assert.False(t, ok)
	bid, ok := book.Best(exchange.Buy)
	require.True(t, ok)
	assert.Equal(t, uint64(40), bid.Qty)
	require.NoError(t, book.Validate())
}

func TestAdd_ExactMatchRemovesResting(t *testing.T) {
	book, sink := newTestBook()
	book.Add(1, 1, exchange.Buy, 100, 50)
	sink.reset()

	book.Add(2, 1, exchange.Sell, 100, 50)

	fills := sink.responsesOf(exchange.ResponseFilled)
	require.Len(t, fills, 2)
	assert.Equal(t, exchange.Qty(0), fills[0].LeavesQty)
	assert.Equal(t, exchange.Qty(0), fills[1].LeavesQty)

	cancels := sink.updatesOf(exchange.UpdateCancel)
	require.Len(t, cancels, 1)
	assert.Equal(t, exchange.OrderID(1), cancels[0].OrderID)
	assert.Empty(t, sink.updatesOf(exchange.UpdateAdd))

	assert.Equal(t, 0, book.OrderCount())
	assert.Equal(t, 0, book.LevelCount())
	assert.Nil(t, book.Lookup(1, 1))
	require.NoError(t, book.Validate())
}

func TestMatch_PartialRestingEmitsModify(t *testing.T) {
	book, sink := newTestBook()
	book.Add(1, 1, exchange.Sell, 100, 80)
	sink.reset()

	book.Add(2, 1, exchange.Buy, 100, 30)

	mods := sink.updatesOf(exchange.UpdateModify)
	require.Len(t, mods, 1)
	assert.Equal(t, exchange.Qty(50), mods[0].Qty)
	assert.Equal(t, exchange.Priority(1), mods[0].Priority)
	assert.Empty(t, sink.updatesOf(exchange.UpdateAdd))
	assert.Equal(t, exchange.Qty(50), book.Lookup(1, 1).Qty)
}

func TestMatch_FIFOWithinPrice(t *testing.T) {
	book, sink := newTestBook()
	book.Add(1, 1, exchange.Buy, 100, 10)
	book.Add(2, 1, exchange.Buy, 100, 10)
	book.Add(3, 1, exchange.Buy, 100, 10)
	sink.reset()

	book.Add(4, 1, exchange.Sell, 100, 15)

	fills := sink.responsesOf(exchange.ResponseFilled)
	require.Len(t, fills, 4)
	assert.Equal(t, exchange.ClientID(1), fills[1].ClientID, "oldest order is hit first")
	assert.Equal(t, exchange.Qty(10), fills[1].ExecQty)
	assert.Equal(t, exchange.ClientID(2), fills[3].ClientID)
	assert.Equal(t, exchange.Qty(5), fills[3].ExecQty)
	assert.Equal(t, exchange.Qty(5), fills[3].LeavesQty)

	bid, ok := book.Best(exchange.Buy)
	require.True(t, ok)
	assert.Equal(t, 2, bid.Orders)
	assert.Equal(t, uint64(15), bid.Qty)
	require.NoError(t, book.Validate())
}

func TestMatch_PricePriority(t *testing.T) {
	book, sink := newTestBook()
	book.Add(1, 1, exchange.Buy, 99, 10)
	book.Add(2, 1, exchange.Buy, 101, 10)
	book.Add(3, 1, exchange.Buy, 100, 10)
	sink.reset()

	book.Add(4, 1, exchange.Sell, 98, 25)

	trades := sink.updatesOf(exchange.UpdateTrade)
	require.Len(t, trades, 3)
	assert.Equal(t, exchange.Price(101), trades[0].Price)
	assert.Equal(t, exchange.Price(100), trades[1].Price)
	assert.Equal(t, exchange.Price(99), trades[2].Price)
	assert.Equal(t, exchange.Qty(5), trades[2].Qty)

	bid, ok := book.Best(exchange.Buy)
	require.True(t, ok)
	assert.Equal(t, exchange.Price(99), bid.Price)
	assert.Equal(t, uint64(5), bid.Qty)
	require.NoError(t, book.Validate())
}

func TestMatch_StopsAtLimitPrice(t *testing.T) {
	book, sink := newTestBook()
	book.Add(1, 1, exchange.Sell, 100, 10)
	book.Add(1, 2, exchange.Sell, 102, 10)
	sink.reset()

	book.Add(2, 1, exchange.Buy, 101, 30)

	trades := sink.updatesOf(exchange.UpdateTrade)
	require.Len(t, trades, 1)
	assert.Equal(t, exchange.Price(100), trades[0].Price)

	bid, _ := book.Best(exchange.Buy)
	ask, _ := book.Best(exchange.Sell)
	assert.Equal(t, exchange.Price(101), bid.Price)
	assert.Equal(t, uint64(20), bid.Qty)
	assert.Equal(t, exchange.Price(102), ask.Price)
}

func TestCancel_Unknown(t *testing.T) {
	book, sink := newTestBook()
	book.Add(1, 1, exchange.Buy, 100, 10)
	before := book.String(true, true)
	sink.reset()

	book.Cancel(1, 99)
	book.Cancel(7, 1)
	book.Cancel(200, 1)
	book.Cancel(1, exchange.OrderIDInvalid)

	require.Len(t, sink.responses, 4)
	for _, r := range sink.responses {
		assert.Equal(t, exchange.ResponseCancelRejected, r.Type)
		assert.Equal(t, exchange.OrderIDInvalid, r.MarketOrderID)
	}
	assert.Empty(t, sink.updates)
	assert.Equal(t, before, book.String(true, true))
}

func TestCancel_RemovesOrderAndEmits(t *testing.T) {
	book, sink := newTestBook()
	book.Add(1, 1, exchange.Buy, 100, 10)
	book.Add(1, 2, exchange.Buy, 100, 20)
	sink.reset()

	book.Cancel(1, 1)

	require.Len(t, sink.responses, 1)
	assert.Equal(t, exchange.ResponseCanceled, sink.responses[0].Type)
	assert.Equal(t, exchange.Qty(10), sink.responses[0].LeavesQty)
	require.Len(t, sink.updates, 1)
	assert.Equal(t, exchange.UpdateCancel, sink.updates[0].Type)
	assert.Equal(t, exchange.Priority(1), sink.updates[0].Priority)

	bid, _ := book.Best(exchange.Buy)
	assert.Equal(t, 1, bid.Orders)
	assert.Equal(t, exchange.OrderID(2), book.Lookup(1, 2).MarketOrderID)
	require.NoError(t, book.Validate())

	sink.reset()
	book.Cancel(1, 1)
	assert.Equal(t, exchange.ResponseCancelRejected, sink.responses[0].Type, "second cancel is rejected")
}

func TestCancel_LastOrderRemovesBestLevel(t *testing.T) {
	book, _ := newTestBook()
	book.Add(1, 1, exchange.Sell, 105, 10)
	book.Add(1, 2, exchange.Sell, 103, 10)
	book.Add(1, 3, exchange.Sell, 104, 10)

	ask, _ := book.Best(exchange.Sell)
	require.Equal(t, exchange.Price(103), ask.Price)

	book.Cancel(1, 2)
	ask, _ = book.Best(exchange.Sell)
	assert.Equal(t, exchange.Price(104), ask.Price)
	assert.Equal(t, 2, book.LevelCount())

	book.Cancel(1, 3)
	book.Cancel(1, 1)
	_, ok := book.Best(exchange.Sell)
	assert.False(t, ok)
	assert.Equal(t, 0, book.LevelCount())
	require.NoError(t, book.Validate())
}

func TestLevels_SortedOnInsert(t *testing.T) {
	book, _ := newTestBook()
	// head, middle, tail and new-best insertions on both sides
	for i, px := range []exchange.Price{100, 98, 99, 97, 103, 101} {
		book.Add(1, exchange.OrderID(i), exchange.Buy, px, 1)
	}
	for i, px := range []exchange.Price{110, 112, 111, 115, 109, 113} {
		book.Add(2, exchange.OrderID(i), exchange.Sell, px, 1)
	}
	require.NoError(t, book.Validate())

	prices := func(side exchange.Side) []exchange.Price {
		var out []exchange.Price
		for _, l := range book.Depth(side, 0) {
			out = append(out, l.Price)
		}
		return out
	}
	assert.Equal(t, []exchange.Price{103, 101, 100, 99, 98, 97}, prices(exchange.Buy))
	assert.Equal(t, []exchange.Price{109, 110, 111, 112, 113, 115}, prices(exchange.Sell))
	assert.Len(t, book.Depth(exchange.Sell, 2), 2)
}

func TestPriority_IncreasesWithinLevel(t *testing.T) {
	book, sink := newTestBook()
	book.Add(1, 1, exchange.Buy, 100, 1)
	book.Add(1, 2, exchange.Buy, 100, 1)
	book.Cancel(1, 1)
	book.Add(1, 3, exchange.Buy, 100, 1)

	adds := sink.updatesOf(exchange.UpdateAdd)
	require.Len(t, adds, 3)
	assert.Equal(t, exchange.Priority(1), adds[0].Priority)
	assert.Equal(t, exchange.Priority(2), adds[1].Priority)
	assert.Equal(t, exchange.Priority(3), adds[2].Priority)

	book.Cancel(1, 2)
	book.Cancel(1, 3)
	book.Add(1, 4, exchange.Buy, 100, 1)
	assert.Equal(t, exchange.Priority(1), sink.updatesOf(exchange.UpdateAdd)[3].Priority, "fresh level restarts at 1")
}

func TestAdd_Rejects(t *testing.T) {
	book, sink := newTestBook()
	book.Add(1, 1, exchange.Buy, 100, 1)
	sink.reset()

	book.Add(1, 1, exchange.Buy, 100, 1)    // duplicate live id
	book.Add(100, 1, exchange.Buy, 100, 1)  // client out of range
	book.Add(1, 5000, exchange.Buy, 100, 1) // order id out of range
	book.Add(1, 2, exchange.Buy, 0, 1)      // zero price
	book.Add(1, 3, exchange.Buy, -5, 1)     // negative price
	book.Add(1, 4, exchange.Buy, 100, 0)    // zero qty

	require.Len(t, sink.responses, 6)
	for _, r := range sink.responses {
		assert.Equal(t, exchange.ResponseRejected, r.Type)
	}
	assert.Empty(t, sink.updates)
	assert.Equal(t, 1, book.OrderCount())
}

func TestAdd_InvalidSideIsFatal(t *testing.T) {
	book, _ := newTestBook()
	defer func() {
		r := recover()
		require.NotNil(t, r)
		assert.True(t, errors.Is(r.(error), ErrInvalidSide))
	}()
	book.Add(1, 1, exchange.SideInvalid, 100, 1)
}

func TestLevels_PriceCollisionIsFatal(t *testing.T) {
	book, _ := newTestBook()
	book.Add(1, 1, exchange.Buy, 100, 1)
	defer func() {
		r := recover()
		require.NotNil(t, r)
		assert.True(t, errors.Is(r.(error), ErrPriceCollision))
	}()
	book.Add(1, 2, exchange.Buy, 100+exchange.Price(testLimits.MaxPriceLevels), 1)
}

func TestString_RendersBothSides(t *testing.T) {
	book, _ := newTestBook()
	book.Add(1, 1, exchange.Buy, 100, 7)
	book.Add(1, 2, exchange.Sell, 105, 3)

	s := book.String(true, true)
	assert.True(t, strings.HasPrefix(s, "Ticker:1\n"))
	assert.Contains(t, s, "ASKS L:0")
	assert.Contains(t, s, "BIDS L:0")
	assert.Contains(t, s, "[oid:1 q:7")
}

// Resting quantity always equals what was submitted minus what
// traded and what was canceled.
func TestConservation_RandomFlow(t *testing.T) {
	book, sink := newTestBook()
	rng := rand.New(rand.NewSource(42))

	var submitted, traded, canceled uint64

	for i := 0; i < 5000; i++ {
		cid := exchange.ClientID(rng.Intn(testLimits.MaxNumClients))
		coid := exchange.OrderID(rng.Intn(100))
		sink.reset()

		if rng.Intn(4) == 0 {
			book.Cancel(cid, coid)
			for _, r := range sink.responsesOf(exchange.ResponseCanceled) {
				canceled += uint64(r.LeavesQty)
			}
		} else {
			side := exchange.Buy
			if rng.Intn(2) == 0 {
				side = exchange.Sell
			}
			qty := exchange.Qty(1 + rng.Intn(50))
			px := exchange.Price(90 + rng.Intn(20))
			book.Add(cid, coid, side, px, qty)
			if len(sink.responsesOf(exchange.ResponseAccepted)) == 1 {
				submitted += uint64(qty)
			}
			for _, tr := range sink.updatesOf(exchange.UpdateTrade) {
				traded += uint64(tr.Qty)
			}
		}

		resting := book.RestingQty(exchange.Buy) + book.RestingQty(exchange.Sell)
		require.Equal(t, submitted-2*traded-canceled, resting, "step %d", i)

		bid, hasBid := book.Best(exchange.Buy)
		ask, hasAsk := book.Best(exchange.Sell)
		if hasBid && hasAsk {
			require.Less(t, bid.Price, ask.Price, "book must not stay crossed")
		}
	}
	require.NoError(t, book.Validate())
}
