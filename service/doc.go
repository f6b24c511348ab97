// Package service runs the matching engine: the single goroutine that
// owns every order book.
//
// The engine pops client requests from the gateway's queue, applies
// them to the book of the requested ticker and pushes the resulting
// client responses and market updates onto two outbound queues. Nothing
// else ever touches a book; readers get copies through DepthPublisher.
package service
