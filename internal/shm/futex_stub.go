//go:build !linux

package shm

func FutexWait(addr *uint32, val uint32) error { return ErrNotSupported }

func FutexWake(addr *uint32, n uint32) error { return ErrNotSupported }
