//go:build linux

package affinity

import (
	"github.com/cockroachdb/errors"
	"golang.org/x/sys/unix"
)

// Pin restricts the current OS thread to cpu. Callers must hold the
// thread with runtime.LockOSThread.
func Pin(cpu int) error {
	if cpu < 0 {
		return errors.Newf("affinity: invalid cpu %d", cpu)
	}
	var set unix.CPUSet
	set.Zero()
	set.Set(cpu)
	if err := unix.SchedSetaffinity(0, &set); err != nil {
		return errors.Wrapf(err, "affinity: pin to cpu %d", cpu)
	}
	return nil
}
