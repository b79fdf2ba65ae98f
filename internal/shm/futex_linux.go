//go:build linux

package shm

import (
	"fmt"
	"sync/atomic"
	"unsafe"

	"golang.org/x/sys/unix"
)

// Futex operations without FUTEX_PRIVATE_FLAG: the word lives in a mapping
// shared between processes, so private (per-address-space) futexes would
// never match across the boundary.
const (
	futexWaitOp = 0 // FUTEX_WAIT
	futexWakeOp = 1 // FUTEX_WAKE
)

// FutexWait blocks until the value at addr is no longer val, or a wake
// arrives. Spurious returns are possible; callers must re-check their
// condition in a loop.
func FutexWait(addr *uint32, val uint32) error {
	// Re-check right before the syscall to close the lost-wake window
	// between the caller's snapshot and futex entry.
	if atomic.LoadUint32(addr) != val {
		return nil
	}
	_, _, errno := unix.Syscall6(
		unix.SYS_FUTEX,
		uintptr(unsafe.Pointer(addr)),
		futexWaitOp,
		uintptr(val),
		0, 0, 0,
	)
	if errno != 0 && errno != unix.EAGAIN && errno != unix.EINTR {
		return fmt.Errorf("futex wait: %w", errno)
	}
	return nil
}

// FutexWake wakes at most n waiters blocked on addr.
func FutexWake(addr *uint32, n uint32) error {
	_, _, errno := unix.Syscall6(
		unix.SYS_FUTEX,
		uintptr(unsafe.Pointer(addr)),
		futexWakeOp,
		uintptr(n),
		0, 0, 0,
	)
	if errno != 0 {
		return fmt.Errorf("futex wake: %w", errno)
	}
	return nil
}
