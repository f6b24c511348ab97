package service

import (
	"testing"

	"tachyon/domain/exchange"
)

func BenchmarkProcessRequest_AddCancel(b *testing.B) {
	h := newHarness(b, 1<<16)
	add := newOrder(1, 0, 0, exchange.Buy, 100, 1)
	cancel := &exchange.ClientRequest{Type: exchange.RequestCancel, ClientID: 1, TickerID: 0}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		coid := exchange.OrderID(i & 1023)
		add.ClientOrderID = coid
		cancel.ClientOrderID = coid
		h.engine.ProcessRequest(add)
		h.engine.ProcessRequest(cancel)
		h.drainResponses()
		h.drainUpdates()
	}
}
