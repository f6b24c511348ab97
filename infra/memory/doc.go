// Package memory provides the fixed-capacity object pool used by the
// order books and the snapshot synthesizer.
//
// A MemPool pre-constructs every slot up front and never grows, so
// allocation on the matching path is a cursor scan and a copy. Objects
// keep a stable address until they are handed back with Deallocate.
// Pools are single-writer: only the goroutine that owns the book may
// touch them.
package memory
