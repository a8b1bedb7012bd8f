// Package wire defines the binary frame format shared by every reactor.
//
// A frame is an 8 byte header followed by the payload of one message:
//
//	[type id int32][version int32][payload]
//
// All integers are little-endian. Payload fields are written in declaration
// order with fixed widths; text fields carry a 4 byte length prefix.
package wire

import (
	"encoding/binary"
	"fmt"

	errspkg "github.com/drblury/reactorflow/internal/runtime/errors"
)

const (
	// HeaderLength is the size of the frame header in bytes.
	HeaderLength = 8
	// Version is written into every frame header.
	Version int32 = 1
)

var order = binary.LittleEndian

// Header is the decoded frame prefix.
type Header struct {
	TypeID  int32
	Version int32
}

// PutHeader writes a header for typeID at off and returns the next offset.
func PutHeader(buf []byte, off int, typeID int32) (int, error) {
	if err := need(buf, off, HeaderLength); err != nil {
		return off, err
	}
	order.PutUint32(buf[off:], uint32(typeID))
	order.PutUint32(buf[off+4:], uint32(Version))
	return off + HeaderLength, nil
}

// ReadHeader reads the header at off. Frames written with another version
// are rejected.
func ReadHeader(buf []byte, off int) (Header, error) {
	if err := need(buf, off, HeaderLength); err != nil {
		return Header{}, err
	}
	h := Header{
		TypeID:  int32(order.Uint32(buf[off:])),
		Version: int32(order.Uint32(buf[off+4:])),
	}
	if h.Version != Version {
		return h, fmt.Errorf("%w: %d", errspkg.ErrUnsupportedVersion, h.Version)
	}
	return h, nil
}

func need(buf []byte, off, n int) error {
	if off < 0 || n < 0 || len(buf)-off < n {
		return fmt.Errorf("%w: need %d bytes at offset %d, have %d", errspkg.ErrBufferTooSmall, n, off, len(buf))
	}
	return nil
}
