//go:build !linux

package shm

// DefaultSegmentDir is unused on unsupported platforms.
const DefaultSegmentDir = ""

func SegmentPath(dir, name string) string { return name }

func MapRegion(opts MapOptions) (*MappedRegion, error) { return nil, ErrNotSupported }

func UnmapRegion(region *MappedRegion) error { return ErrNotSupported }

func UnlinkRegion(path string) error { return ErrNotSupported }

func MemfdCreate(name string, flags int) (int, error) { return -1, ErrNotSupported }

func CanCreateOnDevShm(size uint64, path string) bool { return false }
