/*
 * Copyright 2025 SREDiag Authors
 * Copyright 2023 CloudWeGo Authors
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

//go:build linux

package shm

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/shirou/gopsutil/v3/disk"
	"golang.org/x/sys/unix"
)

// DefaultSegmentDir is where named segments are backed on Linux.
const DefaultSegmentDir = "/dev/shm"

// SegmentPath returns the backing file path for a named segment.
func SegmentPath(dir, name string) string {
	if dir == "" {
		dir = DefaultSegmentDir
	}
	return filepath.Join(dir, name)
}

// MapRegion maps or creates a shared memory region.
func MapRegion(opts MapOptions) (*MappedRegion, error) {
	flags := unix.O_RDWR
	if opts.Create {
		flags |= unix.O_CREAT | unix.O_EXCL
	}
	fd, err := unix.Open(opts.Name, flags, 0600)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", opts.Name, err)
	}
	size := opts.Size
	if opts.Create {
		if !CanCreateOnDevShm(uint64(size), opts.Name) {
			_ = unix.Close(fd)
			_ = os.Remove(opts.Name)
			return nil, fmt.Errorf("not enough space left on %s for %d bytes: %w",
				filepath.Dir(opts.Name), size, unix.ENOSPC)
		}
		if err := unix.Ftruncate(fd, int64(size)); err != nil {
			_ = unix.Close(fd)
			_ = os.Remove(opts.Name)
			return nil, fmt.Errorf("ftruncate: %w", err)
		}
	} else {
		var stat unix.Stat_t
		if err := unix.Fstat(fd, &stat); err != nil {
			_ = unix.Close(fd)
			return nil, fmt.Errorf("fstat: %w", err)
		}
		size = int(stat.Size)
	}
	addr, err := unix.Mmap(fd, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		_ = unix.Close(fd)
		if opts.Create {
			_ = os.Remove(opts.Name)
		}
		return nil, fmt.Errorf("mmap: %w", err)
	}
	return &MappedRegion{
		Addr: addr,
		Fd:   fd,
		Size: size,
		Path: opts.Name,
	}, nil
}

// UnmapRegion unmaps and closes the shared memory region. The backing file
// is left in place so other holders keep a valid view.
func UnmapRegion(region *MappedRegion) error {
	if region == nil || region.Addr == nil {
		return nil
	}
	if err := unix.Munmap(region.Addr); err != nil {
		return fmt.Errorf("munmap: %w", err)
	}
	region.Addr = nil
	if err := unix.Close(region.Fd); err != nil {
		return fmt.Errorf("close: %w", err)
	}
	return nil
}

// UnlinkRegion removes the backing file, destroying the segment for every
// process once all mappings are gone.
func UnlinkRegion(path string) error {
	return os.Remove(path)
}

// MemfdCreate wraps memfd_create. The resulting fd backs an anonymous
// region that is never discoverable by name and can only reach another
// process through fd inheritance.
func MemfdCreate(name string, flags int) (int, error) {
	return unix.MemfdCreate(name, flags)
}

// CanCreateOnDevShm reports whether a tmpfs under /dev/shm has enough free
// space for size bytes. Paths outside /dev/shm are not checked.
func CanCreateOnDevShm(size uint64, path string) bool {
	if !strings.HasPrefix(path, DefaultSegmentDir) {
		return true
	}
	stat, err := disk.Usage(DefaultSegmentDir)
	if err != nil {
		// stat failure shouldn't block creation, the ftruncate will fail instead
		return true
	}
	return stat.Free >= size
}
