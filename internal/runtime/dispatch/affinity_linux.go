//go:build linux

package dispatch

import (
	"fmt"
	"runtime"

	"golang.org/x/sys/unix"
)

// lockToCPUs wires the calling goroutine to its OS thread and restricts that
// thread to cpus. The returned func restores the thread's previous mask and
// unlocks it. If the mask cannot be restored the thread stays locked, so it
// is torn down with the goroutine instead of serving others pinned.
func lockToCPUs(cpus []int, report func(int32, error)) func() {
	runtime.LockOSThread()

	var prev unix.CPUSet
	if err := unix.SchedGetaffinity(0, &prev); err != nil {
		reportAffinity(report, fmt.Errorf("dispatch: read cpu mask: %w", err))
		return runtime.UnlockOSThread
	}

	var set unix.CPUSet
	set.Zero()
	for _, c := range cpus {
		set.Set(c)
	}
	if err := unix.SchedSetaffinity(0, &set); err != nil {
		reportAffinity(report, fmt.Errorf("dispatch: pin worker to cpus %v: %w", cpus, err))
		return runtime.UnlockOSThread
	}

	return func() {
		if err := unix.SchedSetaffinity(0, &prev); err != nil {
			reportAffinity(report, fmt.Errorf("dispatch: restore cpu mask: %w", err))
			return
		}
		runtime.UnlockOSThread()
	}
}

func reportAffinity(report func(int32, error), err error) {
	if report != nil {
		report(0, err)
	}
}
