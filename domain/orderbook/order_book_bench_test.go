package orderbook

import (
	"testing"

	"tachyon/domain/exchange"
)

type discardSink struct{}

func (discardSink) SendClientResponse(*exchange.ClientResponse) {}
func (discardSink) SendMarketUpdate(*exchange.MarketUpdate)     {}

// ---------------- Basic Benchmarks ---------------- //

func BenchmarkAddResting(b *testing.B) {
	book := New(1, discardSink{}, nopLogger{}, Limits{MaxOrderIDs: 1 << 16, MaxNumClients: 4, MaxPriceLevels: 256})

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		coid := exchange.OrderID(i & (1<<16 - 1))
		book.Add(1, coid, exchange.Buy, 100, 10)
		book.Cancel(1, coid)
	}
}

func BenchmarkAddCrossing(b *testing.B) {
	book := New(1, discardSink{}, nopLogger{}, Limits{MaxOrderIDs: 1 << 16, MaxNumClients: 4, MaxPriceLevels: 256})

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		coid := exchange.OrderID(i & (1<<16 - 1))
		book.Add(1, coid, exchange.Sell, 100, 10)
		book.Add(2, coid, exchange.Buy, 100, 10)
	}
}

func BenchmarkMixedLevels(b *testing.B) {
	book := New(1, discardSink{}, nopLogger{}, Limits{MaxOrderIDs: 1 << 16, MaxNumClients: 4, MaxPriceLevels: 256})

	// preload a ladder on both sides so inserts walk the rings
	for i := 0; i < 64; i++ {
		book.Add(3, exchange.OrderID(i), exchange.Buy, exchange.Price(10+i), 100)
		book.Add(3, exchange.OrderID(64+i), exchange.Sell, exchange.Price(150+i), 100)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		coid := exchange.OrderID(i & (1<<16 - 1))
		book.Add(1, coid, exchange.Buy, exchange.Price(80+i%40), 1)
		book.Cancel(1, coid)
	}
}
