package segment

import (
	"encoding/binary"
	"fmt"
	"os"

	internalshm "github.com/srediag/shmvars/internal/shm"
	"github.com/srediag/shmvars/pkg/serializer"
)

// Info is a point-in-time description of a segment's framing, for
// diagnostics.
type Info struct {
	Name       string
	Size       int
	HeaderOK   bool
	Format     serializer.Format
	PayloadLen int
}

func (i Info) String() string {
	if !i.HeaderOK {
		return fmt.Sprintf("name:%s size:%d header:invalid", i.Name, i.Size)
	}
	return fmt.Sprintf("name:%s size:%d format:%s payload:%d",
		i.Name, i.Size, i.Format, i.PayloadLen)
}

// Describe reads a segment's backing file without mapping it and reports
// its header state.
func Describe(dir, name string) (Info, error) {
	data, err := os.ReadFile(internalshm.SegmentPath(dir, name))
	if err != nil {
		return Info{}, err
	}
	info := Info{Name: name, Size: len(data)}
	format, payloadLen, err := parseHeader(data, len(data))
	if err != nil {
		return info, nil
	}
	info.HeaderOK = true
	info.Format = format
	info.PayloadLen = payloadLen
	// reserved bytes are part of the fixed header; surface garbage there
	if len(data) >= HeaderSize {
		if r := binary.LittleEndian.Uint32(data[formatOffset:]) >> 8; r != 0 {
			info.HeaderOK = false
		}
	}
	return info, nil
}
