package segment

import (
	"encoding/binary"
	"fmt"

	"github.com/srediag/shmvars/pkg/result"
	"github.com/srediag/shmvars/pkg/serializer"
)

// Wire layout at offset 0 of every segment:
//
//	magic   uint32  little-endian ("SHMV")
//	format  uint8   serializer format identifier
//	_       [3]byte reserved, must be zero
//	length  uint64  little-endian payload byte count
//
// followed immediately by length payload bytes. No other framing exists;
// readers decode exactly length bytes with the declared format.
const (
	headerMagic uint32 = 0x53484D56 // "SHMV"

	magicOffset  = 0
	formatOffset = 4
	lengthOffset = 8

	// HeaderSize is the fixed width of the segment header in bytes.
	HeaderSize = 16
)

func putHeader(dst []byte, format serializer.Format, payloadLen uint64) {
	binary.LittleEndian.PutUint32(dst[magicOffset:], headerMagic)
	dst[formatOffset] = byte(format)
	dst[formatOffset+1] = 0
	dst[formatOffset+2] = 0
	dst[formatOffset+3] = 0
	binary.LittleEndian.PutUint64(dst[lengthOffset:], payloadLen)
}

// parseHeader validates the header against the segment size and returns
// the declared format and payload length.
func parseHeader(src []byte, segmentSize int) (serializer.Format, int, error) {
	if len(src) < HeaderSize || segmentSize < HeaderSize {
		return serializer.FormatUnknown, 0,
			fmt.Errorf("segment smaller than header (%d bytes): %w", segmentSize, result.ErrCorruptHeader)
	}
	if magic := binary.LittleEndian.Uint32(src[magicOffset:]); magic != headerMagic {
		return serializer.FormatUnknown, 0,
			fmt.Errorf("bad magic 0x%08X: %w", magic, result.ErrCorruptHeader)
	}
	payloadLen := binary.LittleEndian.Uint64(src[lengthOffset:])
	if payloadLen > uint64(segmentSize-HeaderSize) {
		return serializer.FormatUnknown, 0,
			fmt.Errorf("declared payload %d exceeds segment capacity %d: %w",
				payloadLen, segmentSize-HeaderSize, result.ErrCorruptHeader)
	}
	return serializer.Format(src[formatOffset]), int(payloadLen), nil
}
