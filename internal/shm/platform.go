// Package shm contains platform-specific helpers for named shared-memory
// segments and the futex word backing the cross-process mutex.
package shm

import "errors"

// ErrNotSupported is returned on platforms without a shared-memory backend.
var ErrNotSupported = errors.New("shared memory is not supported on this platform")

// MappedRegion represents a memory-mapped shared region.
type MappedRegion struct {
	Addr []byte
	Fd   int
	Size int
	Path string
}

// MapOptions defines options for mapping shared memory.
type MapOptions struct {
	Name string
	Size int
	// Create maps a new region with O_EXCL semantics; opening an existing
	// name fails. Without Create the region must already exist and Size is
	// taken from the backing file.
	Create bool
}
