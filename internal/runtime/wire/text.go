package wire

import "unicode/utf16"

// Text is a reusable byte-counted text field. It is written with a 4 byte
// byte-length prefix and one byte per character, so it is meant for ASCII
// content. The backing array survives Reset.
type Text struct {
	buf []byte
}

// Set replaces the content with s.
func (t *Text) Set(s string) {
	t.buf = append(t.buf[:0], s...)
}

// SetBytes replaces the content with a copy of b.
func (t *Text) SetBytes(b []byte) {
	t.buf = append(t.buf[:0], b...)
}

// Bytes returns the content. The slice is only valid until the next change.
func (t *Text) Bytes() []byte {
	return t.buf
}

func (t *Text) String() string {
	return string(t.buf)
}

// Len is the encoded length in bytes.
func (t *Text) Len() int {
	return len(t.buf)
}

func (t *Text) Reset() {
	t.buf = t.buf[:0]
}

// Chars is a reusable char-counted text field. It holds UTF-16 code units
// and is written with a 4 byte unit-count prefix and two bytes per unit.
type Chars struct {
	units []uint16
}

// Set replaces the content with the UTF-16 encoding of s.
func (c *Chars) Set(s string) {
	c.units = c.units[:0]
	for _, r := range s {
		c.units = utf16.AppendRune(c.units, r)
	}
}

// SetUnits replaces the content with a copy of u.
func (c *Chars) SetUnits(u []uint16) {
	c.units = append(c.units[:0], u...)
}

// Append adds r to the end of the content.
func (c *Chars) Append(r rune) {
	c.units = utf16.AppendRune(c.units, r)
}

// Units returns the code units. The slice is only valid until the next change.
func (c *Chars) Units() []uint16 {
	return c.units
}

func (c *Chars) String() string {
	return string(utf16.Decode(c.units))
}

// Len is the number of UTF-16 code units.
func (c *Chars) Len() int {
	return len(c.units)
}

func (c *Chars) Reset() {
	c.units = c.units[:0]
}
