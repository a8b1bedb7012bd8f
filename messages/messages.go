// Package messages holds the message types shipped with reactorflow: Demo,
// used by the CLI and examples, and Sample, the smallest useful frame.
package messages

import (
	"github.com/drblury/reactorflow/internal/runtime/messagepool"
	"github.com/drblury/reactorflow/internal/runtime/wire"
)

const (
	DemoTypeID   int32 = 1
	SampleTypeID int32 = 5
)

// Demo exercises every kind of field a typical message carries.
type Demo struct {
	StringField       wire.Text
	StringBufferField wire.Chars
	IntField          int32
	BoolField         bool
	DoubleField       float64
	LongField         int64
}

func (*Demo) TypeID() int32 { return DemoTypeID }

func (d *Demo) Reset() { DemoSchema.ResetMessage(d) }

// DemoSchema is the wire layout of Demo.
var DemoSchema = wire.NewSchema(DemoTypeID, "Demo",
	wire.ByteText("stringField", func(m *Demo) *wire.Text { return &m.StringField }),
	wire.CharText("stringBufferField", func(m *Demo) *wire.Chars { return &m.StringBufferField }),
	wire.Int32("intField", func(m *Demo) *int32 { return &m.IntField }),
	wire.Bool("boolField", func(m *Demo) *bool { return &m.BoolField }),
	wire.Float64("doubleField", func(m *Demo) *float64 { return &m.DoubleField }),
	wire.Int64("longField", func(m *Demo) *int64 { return &m.LongField }),
)

// NewDemo is the pool factory for Demo.
func NewDemo() messagepool.Message { return &Demo{} }

// Sample is a counter plus a label.
type Sample struct {
	IntField    int32
	StringField wire.Text
}

func (*Sample) TypeID() int32 { return SampleTypeID }

func (s *Sample) Reset() {
	s.IntField = 0
	s.StringField.Reset()
}

// SampleSchema is the wire layout of Sample: 4 bytes of int followed by a
// length-prefixed byte string.
var SampleSchema = wire.NewSchema(SampleTypeID, "Sample",
	wire.Int32("intField", func(m *Sample) *int32 { return &m.IntField }),
	wire.ByteText("stringField", func(m *Sample) *wire.Text { return &m.StringField }),
)

// NewSample is the pool factory for Sample.
func NewSample() messagepool.Message { return &Sample{} }

// Registration pairs a codec with the factory its pool needs.
type Registration struct {
	Codec   wire.Codec
	Factory messagepool.Factory
}

// All lists every built-in message type.
func All() []Registration {
	return []Registration{
		{Codec: DemoSchema, Factory: NewDemo},
		{Codec: SampleSchema, Factory: NewSample},
	}
}
