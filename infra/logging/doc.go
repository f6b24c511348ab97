// Package logging carries the two loggers of the process.
//
// Logger is the hot-path sink used by the engine and the market data
// jobs: Log formats on the caller's goroutine, hands the line to a
// flusher over an SPSC ring and returns. The flusher writes to zap.
//
// NewZap builds the zap logger used for everything else (startup,
// gateway, admin) and as the flusher's destination.
package logging
