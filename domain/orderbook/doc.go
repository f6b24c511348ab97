// Package orderbook implements the per-instrument limit order book and
// the price-time matching loop.
//
// Price levels form a circular doubly-linked ring per side, ordered
// best first (descending bids, ascending asks), and each level holds a
// circular FIFO of orders. Orders and levels live in fixed-capacity
// memory pools; a price index keyed by price modulo MaxPriceLevels and
// a (client, client order id) index give O(1) lookup.
//
// A book is single-writer: only the matching engine goroutine calls it.
package orderbook
