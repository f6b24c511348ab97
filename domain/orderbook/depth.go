package orderbook

import (
	"fmt"
	"strings"

	"github.com/cockroachdb/errors"

	"tachyon/domain/exchange"
)

// LevelInfo is an aggregated view of one price level.
type LevelInfo struct {
	Price  exchange.Price
	Qty    uint64
	Orders int
}

// ---- traversal helpers ----

// Walk visits the levels of side from best to worst until fn returns false.
func (b *OrderBook) Walk(side exchange.Side, fn func(*PriceLevel) bool) {
	head := b.best(side)
	for lvl := head; lvl != nil; {
		if !fn(lvl) {
			return
		}
		lvl = lvl.next
		if lvl == head {
			return
		}
	}
}

// Best returns the top of book for side.
func (b *OrderBook) Best(side exchange.Side) (LevelInfo, bool) {
	head := b.best(side)
	if head == nil {
		return LevelInfo{}, false
	}
	qty, n := head.Totals()
	return LevelInfo{Price: head.Price, Qty: qty, Orders: n}, true
}

// Depth aggregates up to levels price levels of side, best first.
// levels <= 0 means all of them.
func (b *OrderBook) Depth(side exchange.Side, levels int) []LevelInfo {
	out := make([]LevelInfo, 0, 8)
	b.Walk(side, func(lvl *PriceLevel) bool {
		qty, n := lvl.Totals()
		out = append(out, LevelInfo{Price: lvl.Price, Qty: qty, Orders: n})
		return levels <= 0 || len(out) < levels
	})
	return out
}

// RestingQty sums the remaining quantity of every order on side.
func (b *OrderBook) RestingQty(side exchange.Side) uint64 {
	var total uint64
	b.Walk(side, func(lvl *PriceLevel) bool {
		qty, _ := lvl.Totals()
		total += qty
		return true
	})
	return total
}

// OrderCount returns the number of live orders in the book.
func (b *OrderBook) OrderCount() int { return b.orderPool.InUse() }

// LevelCount returns the number of live price levels in the book.
func (b *OrderBook) LevelCount() int { return b.levelPool.InUse() }

// ---- consistency ----

// Validate checks the ring links, the best-first ordering of levels,
// the FIFO rings and both indexes.
func (b *OrderBook) Validate() error {
	orders := 0
	levels := 0
	for _, side := range [...]exchange.Side{exchange.Buy, exchange.Sell} {
		var last *PriceLevel
		var err error
		b.Walk(side, func(lvl *PriceLevel) bool {
			levels++
			switch {
			case lvl.Side != side:
				err = errors.Wrapf(ErrBookCorrupt, "level %s on wrong side %s", lvl.Price, lvl.Side)
			case lvl.next.prev != lvl || lvl.prev.next != lvl:
				err = errors.Wrapf(ErrBookCorrupt, "level %s ring broken", lvl.Price)
			case last != nil && !aheadOf(last, lvl):
				err = errors.Wrapf(ErrBookCorrupt, "%s levels not sorted: %s before %s", side, last.Price, lvl.Price)
			case b.priceLevels[b.priceIndex(lvl.Price)] != lvl:
				err = errors.Wrapf(ErrBookCorrupt, "level %s missing from price index", lvl.Price)
			case lvl.first == nil:
				err = errors.Wrapf(ErrBookCorrupt, "level %s has no orders", lvl.Price)
			}
			if err != nil {
				return false
			}
			last = lvl

			var prio exchange.Priority
			lvl.Orders(func(o *Order) bool {
				orders++
				switch {
				case o.next.prev != o || o.prev.next != o:
					err = errors.Wrapf(ErrBookCorrupt, "order %s ring broken", o.MarketOrderID)
				case o.Price != lvl.Price || o.Side != lvl.Side:
					err = errors.Wrapf(ErrBookCorrupt, "order %s on level %s", o.MarketOrderID, lvl.Price)
				case o.Priority <= prio:
					err = errors.Wrapf(ErrBookCorrupt, "order %s priority %s not increasing", o.MarketOrderID, o.Priority)
				case o.Qty == 0:
					err = errors.Wrapf(ErrBookCorrupt, "order %s rests with zero qty", o.MarketOrderID)
				case b.Lookup(o.ClientID, o.ClientOrderID) != o:
					err = errors.Wrapf(ErrBookCorrupt, "order %s missing from client index", o.MarketOrderID)
				}
				prio = o.Priority
				return err == nil
			})
			return err == nil
		})
		if err != nil {
			return err
		}
	}

	if orders != b.orderPool.InUse() {
		return errors.Wrapf(ErrBookCorrupt, "%d orders linked, %d allocated", orders, b.orderPool.InUse())
	}
	if levels != b.levelPool.InUse() {
		return errors.Wrapf(ErrBookCorrupt, "%d levels linked, %d allocated", levels, b.levelPool.InUse())
	}
	return nil
}

// String renders the book, asks on top. With validate set a broken
// book is fatal.
func (b *OrderBook) String(detailed, validate bool) string {
	if validate {
		if err := b.Validate(); err != nil {
			panic(err)
		}
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Ticker:%s\n", b.ticker)

	printLevel := func(label string, n int, lvl *PriceLevel) {
		qty, count := lvl.Totals()
		fmt.Fprintf(&sb, "%s L:%d => <px:%3s p:%3s n:%3s> %-3s @ %-5d(%-4d)",
			label, n, lvl.Price, lvl.prev.Price, lvl.next.Price, lvl.Price, qty, count)
		if detailed {
			lvl.Orders(func(o *Order) bool {
				fmt.Fprintf(&sb, "[oid:%s q:%s p:%s n:%s] ",
					o.MarketOrderID, o.Qty, o.prev.MarketOrderID, o.next.MarketOrderID)
				return true
			})
		}
		sb.WriteByte('\n')
	}

	n := 0
	b.Walk(exchange.Sell, func(lvl *PriceLevel) bool {
		printLevel("ASKS", n, lvl)
		n++
		return true
	})
	sb.WriteString("\n                          X\n\n")
	n = 0
	b.Walk(exchange.Buy, func(lvl *PriceLevel) bool {
		printLevel("BIDS", n, lvl)
		n++
		return true
	})
	return sb.String()
}
