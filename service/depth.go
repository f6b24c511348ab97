package service

import (
	"sync/atomic"

	"tachyon/domain/exchange"
	"tachyon/domain/orderbook"
)

// BookDepth is an immutable copy of the top of one book.
type BookDepth struct {
	Ticker exchange.TickerID
	Bids   []orderbook.LevelInfo
	Asks   []orderbook.LevelInfo
	Orders int
	// Processed is the engine's request count when the copy was taken.
	Processed uint64
}

// DepthPublisher hands book copies from the engine goroutine to readers.
type DepthPublisher struct {
	books []atomic.Pointer[BookDepth]
}

func NewDepthPublisher(tickers int) *DepthPublisher {
	return &DepthPublisher{books: make([]atomic.Pointer[BookDepth], tickers)}
}

// Load returns the latest copy for ticker, if one was published.
func (p *DepthPublisher) Load(ticker exchange.TickerID) (*BookDepth, bool) {
	if int(ticker) >= len(p.books) {
		return nil, false
	}
	d := p.books[ticker].Load()
	return d, d != nil
}

// Tickers returns the number of tickers served.
func (p *DepthPublisher) Tickers() int { return len(p.books) }

func (p *DepthPublisher) store(d *BookDepth) {
	if int(d.Ticker) < len(p.books) {
		p.books[d.Ticker].Store(d)
	}
}
