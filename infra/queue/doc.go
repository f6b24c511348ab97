// Package queue implements the bounded lock-free single-producer /
// single-consumer ring used for every hand-off between the engine,
// the gateway, the market data publisher and the logger.
//
// Exactly one goroutine may push and exactly one goroutine may pop.
// Components receive a Producer or a Consumer endpoint rather than
// the queue itself; each endpoint can be claimed once.
package queue
