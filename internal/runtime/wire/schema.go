package wire

import (
	"fmt"

	errspkg "github.com/drblury/reactorflow/internal/runtime/errors"
	"github.com/drblury/reactorflow/internal/runtime/messagepool"
)

// Pool supplies decoded instances. Decoders never allocate messages
// themselves.
type Pool interface {
	Checkout(typeID int32) (messagepool.Message, error)
	Release(msg messagepool.Message) error
}

// Codec encodes and decodes one message type.
type Codec interface {
	TypeID() int32
	Name() string
	// Length is the payload size of msg in bytes, header excluded.
	Length(msg messagepool.Message) (int, error)
	// Encode writes header and payload at off and returns the next offset.
	Encode(msg messagepool.Message, buf []byte, off int) (int, error)
	// Decode reads the frame at off into an instance checked out of pool.
	// On failure the instance has already been released.
	Decode(buf []byte, off int, pool Pool) (messagepool.Message, error)
	// Reset returns every field of msg to its default.
	Reset(msg messagepool.Message) error
	// Values maps field names to their current values.
	Values(msg messagepool.Message) (map[string]any, error)
}

// Schema is a reflection-free codec driven by an ordered list of field
// descriptors. M is the pointer type of the message, for example *Demo.
type Schema[M messagepool.Message] struct {
	typeID int32
	name   string
	fields []Field[M]
}

var _ Codec = (*Schema[messagepool.Message])(nil)

// NewSchema declares the wire layout of a message type. Fields are encoded in
// the order given.
func NewSchema[M messagepool.Message](typeID int32, name string, fields ...Field[M]) *Schema[M] {
	return &Schema[M]{typeID: typeID, name: name, fields: fields}
}

func (s *Schema[M]) TypeID() int32 { return s.typeID }

func (s *Schema[M]) Name() string { return s.name }

// Fields lists the declared field names and kinds in wire order.
func (s *Schema[M]) Fields() []FieldInfo {
	out := make([]FieldInfo, len(s.fields))
	for i, f := range s.fields {
		out[i] = FieldInfo{Name: f.Name, Kind: f.Kind}
	}
	return out
}

// FieldInfo is the exported view of a field descriptor.
type FieldInfo struct {
	Name string `json:"name"`
	Kind Kind   `json:"kind"`
}

func (s *Schema[M]) cast(msg messagepool.Message) (M, error) {
	m, ok := msg.(M)
	if !ok {
		var zero M
		return zero, fmt.Errorf("%w: %s cannot handle %T", errspkg.ErrTypeMismatch, s.name, msg)
	}
	return m, nil
}

// PayloadLength is the typed form of Length.
func (s *Schema[M]) PayloadLength(m M) int {
	n := 0
	for i := range s.fields {
		n += s.fields[i].size(m)
	}
	return n
}

func (s *Schema[M]) Length(msg messagepool.Message) (int, error) {
	m, err := s.cast(msg)
	if err != nil {
		return 0, err
	}
	return s.PayloadLength(m), nil
}

// EncodeMessage is the typed form of Encode.
func (s *Schema[M]) EncodeMessage(m M, buf []byte, off int) (int, error) {
	if err := need(buf, off, HeaderLength+s.PayloadLength(m)); err != nil {
		return off, err
	}
	pos, err := PutHeader(buf, off, s.typeID)
	if err != nil {
		return off, err
	}
	for i := range s.fields {
		pos = s.fields[i].encode(m, buf, pos)
	}
	return pos, nil
}

func (s *Schema[M]) Encode(msg messagepool.Message, buf []byte, off int) (int, error) {
	m, err := s.cast(msg)
	if err != nil {
		return off, err
	}
	return s.EncodeMessage(m, buf, off)
}

func (s *Schema[M]) Decode(buf []byte, off int, pool Pool) (messagepool.Message, error) {
	h, err := ReadHeader(buf, off)
	if err != nil {
		return nil, err
	}
	if h.TypeID != s.typeID {
		return nil, fmt.Errorf("%w: frame type %d, codec %s is type %d", errspkg.ErrTypeMismatch, h.TypeID, s.name, s.typeID)
	}

	msg, err := pool.Checkout(s.typeID)
	if err != nil {
		return nil, err
	}
	m, err := s.cast(msg)
	if err != nil {
		_ = pool.Release(msg)
		return nil, err
	}

	pos := off + HeaderLength
	for i := range s.fields {
		pos, err = s.fields[i].decode(m, buf, pos)
		if err != nil {
			_ = pool.Release(msg)
			return nil, fmt.Errorf("decode %s.%s: %w", s.name, s.fields[i].Name, err)
		}
	}
	return m, nil
}

// ResetMessage is the typed form of Reset.
func (s *Schema[M]) ResetMessage(m M) {
	for i := range s.fields {
		s.fields[i].reset(m)
	}
}

func (s *Schema[M]) Reset(msg messagepool.Message) error {
	m, err := s.cast(msg)
	if err != nil {
		return err
	}
	s.ResetMessage(m)
	return nil
}

func (s *Schema[M]) Values(msg messagepool.Message) (map[string]any, error) {
	m, err := s.cast(msg)
	if err != nil {
		return nil, err
	}
	out := make(map[string]any, len(s.fields))
	for i := range s.fields {
		out[s.fields[i].Name] = s.fields[i].value(m)
	}
	return out, nil
}
