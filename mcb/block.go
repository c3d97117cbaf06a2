// Package mcb implements the conventional-memory allocator: a DOS Memory
// Control Block (MCB) chain with first/best/last-fit policies, splitting,
// coalescing, and min/max-range reservation for EXE loading.
package mcb

import (
	"dosk/memview"
)

// Type byte values for an MCB header.
const (
	TypeNonLast byte = 0x4D // 'M'
	TypeLast    byte = 0x5A // 'Z'
)

// HeaderSize is the size, in bytes, of one MCB header: the header always
// occupies exactly one paragraph.
const HeaderSize = 16

// Block is a view over one MCB header at BaseSegment:0000. It holds no
// state of its own beyond the bus and address: all mutation goes straight
// to guest memory: a view, not a copy, so there is nothing to sync back
// after mutation.
type Block struct {
	bus  memview.Bus
	Base uint16 // segment of the header paragraph
}

func at(bus memview.Bus, base uint16) Block {
	return Block{bus: bus, Base: base}
}

func (b Block) addr(off uint16) uint32 { return memview.Phys(b.Base, off) }

func (b Block) Type() byte      { return b.bus.ReadU8(b.addr(0)) }
func (b Block) SetType(t byte)  { b.bus.WriteU8(b.addr(0), t) }
func (b Block) PspSegment() uint16 { return b.bus.ReadU16(b.addr(1)) }
func (b Block) SetPspSegment(seg uint16) { b.bus.WriteU16(b.addr(1), seg) }
func (b Block) Size() uint16    { return b.bus.ReadU16(b.addr(3)) }
func (b Block) SetSize(size uint16) { b.bus.WriteU16(b.addr(3), size) }

// OwnerName returns the 8-byte, space-padded owner filename field.
func (b Block) OwnerName() string {
	return string(b.bus.ReadBytes(b.addr(8), 8))
}

func (b Block) SetOwnerName(name string) {
	buf := make([]byte, 8)
	for i := range buf {
		buf[i] = ' '
	}
	copy(buf, name)
	b.bus.WriteBytes(b.addr(8), buf)
}

// Free reports whether this block is unowned.
func (b Block) Free() bool { return b.PspSegment() == 0 }

// Last reports whether this is the terminal block of the chain.
func (b Block) Last() bool { return b.Type() == TypeLast }

// Valid reports whether the Type byte is one of the two legal values.
func (b Block) Valid() bool {
	t := b.Type()
	return t == TypeNonLast || t == TypeLast
}

// PayloadSegment is the segment of the first paragraph usable by the owner.
func (b Block) PayloadSegment() uint16 { return b.Base + 1 }

// Next is the segment of the following MCB header, valid only when this
// block is not Last.
func (b Block) Next() uint16 { return b.Base + 1 + b.Size() }
