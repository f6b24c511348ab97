package orderbook

import (
	"fmt"

	"tachyon/domain/exchange"
)

// Order is a resting order. It is pooled and linked into the circular
// FIFO of its price level through prev/next.
type Order struct {
	TickerID      exchange.TickerID
	ClientOrderID exchange.OrderID
	MarketOrderID exchange.OrderID
	ClientID      exchange.ClientID
	Side          exchange.Side
	Price         exchange.Price
	Qty           exchange.Qty
	Priority      exchange.Priority

	prev *Order
	next *Order
}

// Read-only traversal helpers
func (o *Order) Next() *Order { return o.next }
func (o *Order) Prev() *Order { return o.prev }

func (o *Order) String() string {
	prev, next := exchange.OrderIDInvalid, exchange.OrderIDInvalid
	if o.prev != nil {
		prev = o.prev.MarketOrderID
	}
	if o.next != nil {
		next = o.next.MarketOrderID
	}
	return fmt.Sprintf("Order[ticker:%s cid:%s oid:%s moid:%s side:%s price:%s qty:%s prio:%s prev:%s next:%s]",
		o.TickerID, o.ClientID, o.ClientOrderID, o.MarketOrderID, o.Side, o.Price, o.Qty, o.Priority, prev, next)
}

// PriceLevel holds every resting order at one price on one side.
// first is the oldest order; first.prev is the newest.
type PriceLevel struct {
	Side  exchange.Side
	Price exchange.Price

	first *Order

	prev *PriceLevel
	next *PriceLevel
}

// Read-only traversal helpers
func (l *PriceLevel) First() *Order     { return l.first }
func (l *PriceLevel) Next() *PriceLevel { return l.next }
func (l *PriceLevel) Prev() *PriceLevel { return l.prev }

// Orders visits the level's orders in time priority.
func (l *PriceLevel) Orders(fn func(*Order) bool) {
	for o := l.first; o != nil; {
		if !fn(o) {
			return
		}
		o = o.next
		if o == l.first {
			return
		}
	}
}

// Totals sums the remaining quantity and counts the orders.
func (l *PriceLevel) Totals() (qty uint64, count int) {
	l.Orders(func(o *Order) bool {
		qty += uint64(o.Qty)
		count++
		return true
	})
	return qty, count
}

func (l *PriceLevel) String() string {
	prev, next := exchange.PriceInvalid, exchange.PriceInvalid
	if l.prev != nil {
		prev = l.prev.Price
	}
	if l.next != nil {
		next = l.next.Price
	}
	first := "null"
	if l.first != nil {
		first = l.first.String()
	}
	return fmt.Sprintf("PriceLevel[side:%s price:%s first:%s prev:%s next:%s]",
		l.Side, l.Price, first, prev, next)
}
