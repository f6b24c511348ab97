// Package exchange defines the scalar types and the fixed-layout
// records that cross goroutine boundaries: client requests, client
// responses and market updates. Records carry values only, never
// pointers, so they can be copied through the SPSC queues.
package exchange
