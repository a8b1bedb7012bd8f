package wire

import (
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
)

var describeJSON = protojson.MarshalOptions{
	Multiline:       true,
	EmitUnpopulated: true,
}

// Describe decodes the frame in buf and returns a generic view of it:
// {"type": name, "typeId": id, "fields": {...}}. The decoded instance is
// released before returning.
func (r *Registry) Describe(buf []byte, pool Pool) (*structpb.Struct, error) {
	msg, err := r.Decode(buf, 0, len(buf), pool)
	if err != nil {
		return nil, err
	}
	defer func() { _ = pool.Release(msg) }()

	c, err := r.codecFor(msg.TypeID())
	if err != nil {
		return nil, err
	}
	values, err := c.Values(msg)
	if err != nil {
		return nil, err
	}
	return structpb.NewStruct(map[string]any{
		"type":   c.Name(),
		"typeId": int64(c.TypeID()),
		"fields": values,
	})
}

// DescribeJSON renders Describe as indented JSON.
func (r *Registry) DescribeJSON(buf []byte, pool Pool) ([]byte, error) {
	s, err := r.Describe(buf, pool)
	if err != nil {
		return nil, err
	}
	return describeJSON.Marshal(s)
}
