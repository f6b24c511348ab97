// Package affinity pins hot goroutines to cores and implements the
// busy-poll relax policy they share.
package affinity

import (
	"runtime"
	"time"
)

// DefaultSpinBudget is the number of empty polls before a poller yields.
const DefaultSpinBudget = 1024

// Spinner tracks consecutive empty polls of one busy loop.
type Spinner struct {
	Budget int
	// Park, when set, sleeps this long instead of yielding. Unpinned
	// loops use it so they don't burn a shared core.
	Park time.Duration

	miss int
}

// Hit resets the miss counter after useful work.
func (s *Spinner) Hit() { s.miss = 0 }

// Miss records an empty poll and relaxes once the budget is spent.
func (s *Spinner) Miss() {
	budget := s.Budget
	if budget <= 0 {
		budget = DefaultSpinBudget
	}
	if s.miss++; s.miss < budget {
		return
	}
	s.miss = 0
	if s.Park > 0 {
		time.Sleep(s.Park)
		return
	}
	runtime.Gosched()
}

// Go starts fn on a new goroutine locked to its own OS thread, pinned
// to cpu (negative means anywhere). It returns once pinning succeeded
// or failed; on failure fn never runs.
func Go(cpu int, fn func()) error {
	pinned := make(chan error, 1)
	go func() {
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()

		if cpu >= 0 {
			if err := Pin(cpu); err != nil {
				pinned <- err
				return
			}
		}
		pinned <- nil
		fn()
	}()
	return <-pinned
}
