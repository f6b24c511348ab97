package orderbook

import (
	"github.com/cockroachdb/errors"

	"tachyon/domain/exchange"
	"tachyon/infra/memory"
)

var (
	ErrInvalidSide    = errors.New("orderbook: invalid side")
	ErrPriceCollision = errors.New("orderbook: price index collision")
	ErrBookCorrupt    = errors.New("orderbook: inconsistent book")
)

// Sink receives everything a book emits. The matching engine
// implements it by pushing onto its outbound queues.
type Sink interface {
	SendClientResponse(resp *exchange.ClientResponse)
	SendMarketUpdate(update *exchange.MarketUpdate)
}

// Logger is the diagnostic sink. Placeholders are single '%'.
type Logger interface {
	Log(format string, args ...any)
}

// Limits sizes the book's pools and indexes.
type Limits struct {
	MaxOrderIDs    int
	MaxNumClients  int
	MaxPriceLevels int
}

// DefaultLimits mirrors the exchange package constants.
func DefaultLimits() Limits {
	return Limits{
		MaxOrderIDs:    exchange.MaxOrderIDs,
		MaxNumClients:  exchange.MaxNumClients,
		MaxPriceLevels: exchange.MaxPriceLevels,
	}
}

// OrderBook is single-writer and deterministic.
type OrderBook struct {
	ticker exchange.TickerID
	sink   Sink
	log    Logger
	limits Limits

	// clientOrders[client][clientOrderID]; rows are allocated on a
	// client's first resting order.
	clientOrders [][]*Order

	levelPool   *memory.MemPool[PriceLevel]
	bids        *PriceLevel
	asks        *PriceLevel
	priceLevels []*PriceLevel

	orderPool *memory.MemPool[Order]

	// reused for every emission; sinks copy them
	resp   exchange.ClientResponse
	update exchange.MarketUpdate

	nextMarketOrderID exchange.OrderID
}

// New creates an empty book for ticker.
func New(ticker exchange.TickerID, sink Sink, log Logger, limits Limits) *OrderBook {
	return &OrderBook{
		ticker:            ticker,
		sink:              sink,
		log:               log,
		limits:            limits,
		clientOrders:      make([][]*Order, limits.MaxNumClients),
		levelPool:         memory.NewMemPool[PriceLevel](limits.MaxPriceLevels),
		priceLevels:       make([]*PriceLevel, limits.MaxPriceLevels),
		orderPool:         memory.NewMemPool[Order](limits.MaxOrderIDs),
		nextMarketOrderID: 1,
	}
}

// Ticker returns the instrument this book serves.
func (b *OrderBook) Ticker() exchange.TickerID { return b.ticker }

// ---- commands ----

// Add accepts a new order, matches it against the contra side and
// rests whatever is left.
func (b *OrderBook) Add(
	clientID exchange.ClientID,
	clientOrderID exchange.OrderID,
	side exchange.Side,
	price exchange.Price,
	qty exchange.Qty,
) {
	if reason := b.rejectReason(clientID, clientOrderID, price, qty); reason != "" {
		b.log.Log("ticker:% reject cid:% coid:% reason:%\n", b.ticker, clientID, clientOrderID, reason)
		b.resp = exchange.Rejected(exchange.ClientRequest{
			Type:          exchange.RequestNew,
			ClientID:      clientID,
			TickerID:      b.ticker,
			ClientOrderID: clientOrderID,
			Side:          side,
			Price:         price,
			Qty:           qty,
		})
		b.sink.SendClientResponse(&b.resp)
		return
	}

	marketOrderID := b.nextMarketOrderID
	b.nextMarketOrderID++

	b.resp = exchange.ClientResponse{
		Type:          exchange.ResponseAccepted,
		ClientID:      clientID,
		TickerID:      b.ticker,
		ClientOrderID: clientOrderID,
		MarketOrderID: marketOrderID,
		Side:          side,
		Price:         price,
		ExecQty:       0,
		LeavesQty:     qty,
	}
	b.sink.SendClientResponse(&b.resp)

	leaves := b.checkForMatch(clientID, clientOrderID, side, price, qty, marketOrderID)
	if leaves == 0 {
		return
	}

	priority := b.nextPriority(price)
	order := b.orderPool.Allocate(Order{
		TickerID:      b.ticker,
		ClientOrderID: clientOrderID,
		MarketOrderID: marketOrderID,
		ClientID:      clientID,
		Side:          side,
		Price:         price,
		Qty:           leaves,
		Priority:      priority,
	})
	b.addOrder(order)
	b.log.Log("ticker:% rest %\n", b.ticker, order)

	b.update = exchange.MarketUpdate{
		Type:     exchange.UpdateAdd,
		OrderID:  marketOrderID,
		TickerID: b.ticker,
		Side:     side,
		Price:    price,
		Qty:      leaves,
		Priority: priority,
	}
	b.sink.SendMarketUpdate(&b.update)
}

// Cancel removes a live order. Unknown orders get CANCEL_REJECTED and
// leave the book untouched.
func (b *OrderBook) Cancel(clientID exchange.ClientID, clientOrderID exchange.OrderID) {
	order := b.Lookup(clientID, clientOrderID)

	if order == nil {
		b.log.Log("ticker:% cancel rejected cid:% coid:%\n", b.ticker, clientID, clientOrderID)
		b.resp = exchange.ClientResponse{
			Type:          exchange.ResponseCancelRejected,
			ClientID:      clientID,
			TickerID:      b.ticker,
			ClientOrderID: clientOrderID,
			MarketOrderID: exchange.OrderIDInvalid,
			Side:          exchange.SideInvalid,
			Price:         exchange.PriceInvalid,
			ExecQty:       exchange.QtyInvalid,
			LeavesQty:     exchange.QtyInvalid,
		}
		b.sink.SendClientResponse(&b.resp)
		return
	}

	b.log.Log("ticker:% cancel %\n", b.ticker, order)
	b.resp = exchange.ClientResponse{
		Type:          exchange.ResponseCanceled,
		ClientID:      clientID,
		TickerID:      b.ticker,
		ClientOrderID: clientOrderID,
		MarketOrderID: order.MarketOrderID,
		Side:          order.Side,
		Price:         order.Price,
		ExecQty:       0,
		LeavesQty:     order.Qty,
	}
	b.update = exchange.MarketUpdate{
		Type:     exchange.UpdateCancel,
		OrderID:  order.MarketOrderID,
		TickerID: b.ticker,
		Side:     order.Side,
		Price:    order.Price,
		Qty:      order.Qty,
		Priority: order.Priority,
	}
	b.sink.SendMarketUpdate(&b.update)

	b.removeOrder(order)
	b.sink.SendClientResponse(&b.resp)
}

// Lookup returns the live order for (clientID, clientOrderID) or nil.
func (b *OrderBook) Lookup(clientID exchange.ClientID, clientOrderID exchange.OrderID) *Order {
	if int(clientID) >= len(b.clientOrders) || uint64(clientOrderID) >= uint64(b.limits.MaxOrderIDs) {
		return nil
	}
	row := b.clientOrders[clientID]
	if row == nil {
		return nil
	}
	return row[clientOrderID]
}

func (b *OrderBook) rejectReason(
	clientID exchange.ClientID,
	clientOrderID exchange.OrderID,
	price exchange.Price,
	qty exchange.Qty,
) string {
	switch {
	case int(clientID) >= len(b.clientOrders):
		return "client id out of range"
	case uint64(clientOrderID) >= uint64(b.limits.MaxOrderIDs):
		return "client order id out of range"
	case price <= 0 || price == exchange.PriceInvalid:
		return "invalid price"
	case qty == 0 || qty == exchange.QtyInvalid:
		return "invalid qty"
	case b.Lookup(clientID, clientOrderID) != nil:
		return "duplicate live client order id"
	}
	return ""
}

// ---- matching ----

// checkForMatch trades the incoming order against the best contra
// levels while they cross and returns the unfilled quantity.
func (b *OrderBook) checkForMatch(
	clientID exchange.ClientID,
	clientOrderID exchange.OrderID,
	side exchange.Side,
	price exchange.Price,
	qty exchange.Qty,
	marketOrderID exchange.OrderID,
) exchange.Qty {
	leaves := qty

	switch side {
	case exchange.Buy:
		for leaves > 0 && b.asks != nil {
			top := b.asks.first
			if top.Price > price {
				break
			}
			b.match(clientID, side, clientOrderID, marketOrderID, top, &leaves)
		}
	case exchange.Sell:
		for leaves > 0 && b.bids != nil {
			top := b.bids.first
			if top.Price < price {
				break
			}
			b.match(clientID, side, clientOrderID, marketOrderID, top, &leaves)
		}
	default:
		panic(errors.Wrapf(ErrInvalidSide, "ticker %s side %d", b.ticker, int8(side)))
	}

	return leaves
}

// match executes one fill at the resting order's price.
func (b *OrderBook) match(
	clientID exchange.ClientID,
	side exchange.Side,
	clientOrderID exchange.OrderID,
	marketOrderID exchange.OrderID,
	resting *Order,
	leaves *exchange.Qty,
) {
	execQty := min(*leaves, resting.Qty)
	execPrice := resting.Price

	*leaves -= execQty
	resting.Qty -= execQty

	b.log.Log("ticker:% match moid:% against % exec:%@%\n", b.ticker, marketOrderID, resting, execQty, execPrice)

	b.resp = exchange.ClientResponse{
		Type:          exchange.ResponseFilled,
		ClientID:      clientID,
		TickerID:      b.ticker,
		ClientOrderID: clientOrderID,
		MarketOrderID: marketOrderID,
		Side:          side,
		Price:         execPrice,
		ExecQty:       execQty,
		LeavesQty:     *leaves,
	}
	b.sink.SendClientResponse(&b.resp)

	b.resp = exchange.ClientResponse{
		Type:          exchange.ResponseFilled,
		ClientID:      resting.ClientID,
		TickerID:      b.ticker,
		ClientOrderID: resting.ClientOrderID,
		MarketOrderID: resting.MarketOrderID,
		Side:          resting.Side,
		Price:         execPrice,
		ExecQty:       execQty,
		LeavesQty:     resting.Qty,
	}
	b.sink.SendClientResponse(&b.resp)

	b.update = exchange.MarketUpdate{
		Type:     exchange.UpdateTrade,
		OrderID:  exchange.OrderIDInvalid,
		TickerID: b.ticker,
		Side:     side,
		Price:    execPrice,
		Qty:      execQty,
		Priority: exchange.PriorityInvalid,
	}
	b.sink.SendMarketUpdate(&b.update)

	if resting.Qty > 0 {
		b.update = exchange.MarketUpdate{
			Type:     exchange.UpdateModify,
			OrderID:  resting.MarketOrderID,
			TickerID: b.ticker,
			Side:     resting.Side,
			Price:    execPrice,
			Qty:      resting.Qty,
			Priority: resting.Priority,
		}
		b.sink.SendMarketUpdate(&b.update)
		return
	}

	b.update = exchange.MarketUpdate{
		Type:     exchange.UpdateCancel,
		OrderID:  resting.MarketOrderID,
		TickerID: b.ticker,
		Side:     resting.Side,
		Price:    execPrice,
		Qty:      resting.Qty,
		Priority: exchange.PriorityInvalid,
	}
	b.sink.SendMarketUpdate(&b.update)
	b.removeOrder(resting)
}

// ---- price levels ----

func (b *OrderBook) priceIndex(price exchange.Price) int {
	return int(uint64(price) % uint64(len(b.priceLevels)))
}

// levelAt returns the level resting at price, if any. A slot owned by
// another price means two live prices share an index slot.
func (b *OrderBook) levelAt(price exchange.Price) *PriceLevel {
	lvl := b.priceLevels[b.priceIndex(price)]
	if lvl != nil && lvl.Price != price {
		panic(errors.Wrapf(ErrPriceCollision, "ticker %s price %s slot held by %s", b.ticker, price, lvl.Price))
	}
	return lvl
}

func (b *OrderBook) best(side exchange.Side) *PriceLevel {
	if side == exchange.Buy {
		return b.bids
	}
	return b.asks
}

func (b *OrderBook) setBest(side exchange.Side, lvl *PriceLevel) {
	if side == exchange.Buy {
		b.bids = lvl
	} else {
		b.asks = lvl
	}
}

// aheadOf reports whether a sorts before c on their (shared) side.
func aheadOf(a, c *PriceLevel) bool {
	if a.Side == exchange.Buy {
		return a.Price > c.Price
	}
	return a.Price < c.Price
}

// insertBefore links lvl into the ring just ahead of at.
func insertBefore(at, lvl *PriceLevel) {
	lvl.prev = at.prev
	lvl.next = at
	at.prev.next = lvl
	at.prev = lvl
}

// addLevel indexes lvl and links it into its side's ring in best-first
// order, moving the head when lvl becomes the new best.
func (b *OrderBook) addLevel(lvl *PriceLevel) {
	idx := b.priceIndex(lvl.Price)
	if held := b.priceLevels[idx]; held != nil {
		panic(errors.Wrapf(ErrPriceCollision, "ticker %s price %s slot held by %s", b.ticker, lvl.Price, held.Price))
	}
	b.priceLevels[idx] = lvl

	head := b.best(lvl.Side)
	if head == nil {
		lvl.prev, lvl.next = lvl, lvl
		b.setBest(lvl.Side, lvl)
		return
	}

	it := head
	for {
		if aheadOf(lvl, it) {
			insertBefore(it, lvl)
			if it == head {
				b.setBest(lvl.Side, lvl)
			}
			return
		}
		it = it.next
		if it == head {
			break
		}
	}
	// worst price on the side: the tail sits just before the head
	insertBefore(head, lvl)
}

// removeLevel unlinks the level at price and returns it to the pool.
func (b *OrderBook) removeLevel(side exchange.Side, price exchange.Price) {
	head := b.best(side)
	lvl := b.levelAt(price)
	if head == nil || lvl == nil || lvl.Side != side {
		panic(errors.Wrapf(ErrBookCorrupt, "ticker %s remove missing level %s %s", b.ticker, side, price))
	}

	if head.next == head {
		b.setBest(side, nil)
	} else {
		lvl.prev.next = lvl.next
		lvl.next.prev = lvl.prev
		if head == lvl {
			b.setBest(side, lvl.next)
		}
	}

	lvl.prev, lvl.next = nil, nil
	b.priceLevels[b.priceIndex(price)] = nil
	b.levelPool.Deallocate(lvl)
}

// nextPriority is one more than the newest order at price, or 1 when
// the level does not exist yet.
func (b *OrderBook) nextPriority(price exchange.Price) exchange.Priority {
	lvl := b.levelAt(price)
	if lvl == nil {
		return 1
	}
	return lvl.first.prev.Priority + 1
}

// ---- orders ----

// addOrder appends order at the tail of its level's FIFO, creating the
// level when needed, and indexes it by client ids.
func (b *OrderBook) addOrder(order *Order) {
	lvl := b.levelAt(order.Price)
	if lvl == nil {
		order.prev, order.next = order, order
		b.addLevel(b.levelPool.Allocate(PriceLevel{
			Side:  order.Side,
			Price: order.Price,
			first: order,
		}))
	} else {
		if lvl.Side != order.Side {
			panic(errors.Wrapf(ErrBookCorrupt, "ticker %s %s order rests on %s level %s", b.ticker, order.Side, lvl.Side, lvl.Price))
		}
		first := lvl.first
		first.prev.next = order
		order.prev = first.prev
		first.prev = order
		order.next = first
	}

	row := b.clientOrders[order.ClientID]
	if row == nil {
		row = make([]*Order, b.limits.MaxOrderIDs)
		b.clientOrders[order.ClientID] = row
	}
	row[order.ClientOrderID] = order
}

// removeOrder unlinks order, collapsing its level when it was the only
// order there, and returns it to the pool.
func (b *OrderBook) removeOrder(order *Order) {
	lvl := b.levelAt(order.Price)

	if order.next == order {
		b.removeLevel(lvl.Side, lvl.Price)
	} else {
		order.prev.next = order.next
		order.next.prev = order.prev
		if lvl.first == order {
			lvl.first = order.next
		}
	}

	order.prev, order.next = nil, nil
	b.clientOrders[order.ClientID][order.ClientOrderID] = nil
	b.orderPool.Deallocate(order)
}
