//go:build !linux

package affinity

// Pin is a no-op where thread affinity is not available.
func Pin(cpu int) error { return nil }
