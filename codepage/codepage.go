// Package codepage implements CP850 byte<->text conversion and bounded
// zero-terminated string extraction from guest memory, the text
// encoding requirement.
package codepage

import (
	"golang.org/x/text/encoding/charmap"

	"dosk/memview"
)

// Codec converts between CP850 bytes (as stored in guest memory) and Go
// (UTF-8) strings.
type Codec struct{}

// New returns the CP850 codec.
func New() *Codec { return &Codec{} }

// Decode converts CP850-encoded bytes to a Go string, byte for byte falling
// back to the raw byte where CP850 has no mapping (none do, in practice:
// CP850 is a total single-byte encoding).
func (c *Codec) Decode(b []byte) string {
	out, err := charmap.CodePage850.NewDecoder().Bytes(b)
	if err != nil {
		return string(b)
	}
	return string(out)
}

// Encode converts a Go string to CP850 bytes. If any rune has no CP850
// representation, the encoder fails and the string's raw UTF-8 bytes are
// returned unchanged instead.
func (c *Codec) Encode(s string) []byte {
	out, err := charmap.CodePage850.NewEncoder().Bytes([]byte(s))
	if err != nil {
		return []byte(s)
	}
	return out
}

// ReadCString extracts a zero-terminated string from mem starting at phys,
// bounded at max bytes even if no terminator is found (a malformed or
// hostile guest must never cause an unbounded scan).
func (c *Codec) ReadCString(mem memview.Bus, phys uint32, max int) string {
	raw := make([]byte, 0, 32)
	for i := 0; i < max; i++ {
		b := mem.ReadU8(phys + uint32(i))
		if b == 0 {
			break
		}
		raw = append(raw, b)
	}
	return c.Decode(raw)
}

// WriteCString encodes s as CP850 and writes it zero-terminated at phys,
// truncating (never overflowing) to fit within max bytes including the
// terminator.
func (c *Codec) WriteCString(mem memview.Bus, phys uint32, s string, max int) {
	enc := c.Encode(s)
	if max <= 0 {
		return
	}
	if len(enc) > max-1 {
		enc = enc[:max-1]
	}
	mem.WriteBytes(phys, enc)
	mem.WriteU8(phys+uint32(len(enc)), 0)
}
