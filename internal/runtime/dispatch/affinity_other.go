//go:build !linux

package dispatch

import "runtime"

// lockToCPUs only wires the goroutine to its thread; CPU affinity is not
// available on this platform.
func lockToCPUs(_ []int, _ func(int32, error)) func() {
	runtime.LockOSThread()
	return runtime.UnlockOSThread
}
