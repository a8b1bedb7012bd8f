// Package metadata holds the string headers that travel next to a frame.
package metadata

import "maps"

// Metadata is the header set of one transport message. Methods never modify
// the receiver.
type Metadata map[string]string

// New builds metadata from alternating key/value pairs. A trailing key
// without a value is dropped.
func New(pairs ...string) Metadata {
	md := make(Metadata, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		md[pairs[i]] = pairs[i+1]
	}
	return md
}

// Clone copies m. The result is never nil.
func (m Metadata) Clone() Metadata {
	return m.grow(0)
}

// With returns a copy of m with key set to value.
func (m Metadata) With(key, value string) Metadata {
	out := m.grow(1)
	out[key] = value
	return out
}

// WithAll returns a copy of m with every entry of entries set. Entries win
// over existing keys.
func (m Metadata) WithAll(entries Metadata) Metadata {
	out := m.grow(len(entries))
	maps.Copy(out, entries)
	return out
}

func (m Metadata) grow(extra int) Metadata {
	out := make(Metadata, len(m)+extra)
	maps.Copy(out, m)
	return out
}
