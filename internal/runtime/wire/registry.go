package wire

import (
	"fmt"
	"sort"

	"github.com/puzpuzpuz/xsync/v3"

	errspkg "github.com/drblury/reactorflow/internal/runtime/errors"
	"github.com/drblury/reactorflow/internal/runtime/messagepool"
)

// Registry maps type ids to codecs and decodes whole frames.
type Registry struct {
	codecs *xsync.MapOf[int32, Codec]
}

// NewRegistry creates an empty codec registry.
func NewRegistry() *Registry {
	return &Registry{codecs: xsync.NewMapOf[int32, Codec]()}
}

// Register adds c. A second codec for the same type id is rejected.
func (r *Registry) Register(c Codec) error {
	if c == nil {
		return fmt.Errorf("%w: codec is nil", errspkg.ErrConfiguration)
	}
	if existing, loaded := r.codecs.LoadOrStore(c.TypeID(), c); loaded {
		return fmt.Errorf("%w: type %d (%s, %s)", errspkg.ErrDuplicateCodec, c.TypeID(), existing.Name(), c.Name())
	}
	return nil
}

// Lookup returns the codec for typeID.
func (r *Registry) Lookup(typeID int32) (Codec, bool) {
	return r.codecs.Load(typeID)
}

// Codecs returns every codec ordered by type id.
func (r *Registry) Codecs() []Codec {
	out := make([]Codec, 0, r.codecs.Size())
	r.codecs.Range(func(_ int32, c Codec) bool {
		out = append(out, c)
		return true
	})
	sort.Slice(out, func(i, j int) bool { return out[i].TypeID() < out[j].TypeID() })
	return out
}

func (r *Registry) codecFor(typeID int32) (Codec, error) {
	c, ok := r.codecs.Load(typeID)
	if !ok {
		return nil, fmt.Errorf("%w: %d", errspkg.ErrUnknownWireType, typeID)
	}
	return c, nil
}

// Decode reads the frame occupying buf[off:off+length]. Frames with a type id
// that has no codec fail with ErrUnknownWireType.
func (r *Registry) Decode(buf []byte, off, length int, pool Pool) (messagepool.Message, error) {
	if off < 0 || length < 0 || off > len(buf) || len(buf)-off < length {
		return nil, fmt.Errorf("%w: fragment [%d:%d+%d] outside buffer of %d bytes", errspkg.ErrFragmentBounds, off, off, length, len(buf))
	}
	frame := buf[off : off+length]
	h, err := ReadHeader(frame, 0)
	if err != nil {
		return nil, err
	}
	c, err := r.codecFor(h.TypeID)
	if err != nil {
		return nil, err
	}
	return c.Decode(frame, 0, pool)
}

// FrameLength is the encoded size of msg including the header.
func (r *Registry) FrameLength(msg messagepool.Message) (int, error) {
	c, err := r.codecFor(msg.TypeID())
	if err != nil {
		return 0, err
	}
	n, err := c.Length(msg)
	if err != nil {
		return 0, err
	}
	return HeaderLength + n, nil
}

// Encode writes the frame of msg at off and returns the next offset.
func (r *Registry) Encode(msg messagepool.Message, buf []byte, off int) (int, error) {
	c, err := r.codecFor(msg.TypeID())
	if err != nil {
		return off, err
	}
	return c.Encode(msg, buf, off)
}

// Append encodes msg onto the end of dst, growing it when needed.
func (r *Registry) Append(dst []byte, msg messagepool.Message) ([]byte, error) {
	n, err := r.FrameLength(msg)
	if err != nil {
		return dst, err
	}
	start := len(dst)
	if cap(dst)-start < n {
		grown := make([]byte, start, start+n)
		copy(grown, dst)
		dst = grown
	}
	dst = dst[:start+n]
	if _, err := r.Encode(msg, dst, start); err != nil {
		return dst[:start], err
	}
	return dst, nil
}
