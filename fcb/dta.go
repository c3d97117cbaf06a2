package fcb

import (
	"dosk/codepage"
	"dosk/memview"
)

// DTA field offsets within the classic 43-byte find-first/find-next record.
const (
	offReserved = 0x00 // 21 bytes, unused: our FindState lives in Go, not here
	offAttr     = 0x15
	offTime     = 0x16
	offDate     = 0x18
	offSize     = 0x1A
	offName     = 0x1E

	// Size is the total byte length of one DTA record.
	Size = 0x2B
)

// Entry is one decoded DTA record, for tools and tests that read back what
// WriteEntry deposited.
type Entry struct {
	Attr     uint8
	Time     uint16
	Date     uint16
	FileSize uint32
	Name     string
}

// ReadEntry decodes the DTA record at addr.
func ReadEntry(mem memview.Bus, codec *codepage.Codec, addr uint32) Entry {
	return Entry{
		Attr:     mem.ReadU8(addr + offAttr),
		Time:     mem.ReadU16(addr + offTime),
		Date:     mem.ReadU16(addr + offDate),
		FileSize: mem.ReadU32(addr + offSize),
		Name:     codec.ReadCString(mem, addr+offName, Size-offName),
	}
}

// WriteEntry deposits one find-first/find-next match into the DTA at addr:
// attribute byte, packed DOS time/date, 32-bit size, and a zero-terminated
// 8.3 name.
func WriteEntry(mem memview.Bus, codec *codepage.Codec, addr uint32, attr uint8, date, tm uint16, size uint32, name string) {
	mem.WriteBytes(addr+offReserved, make([]byte, 21))
	mem.WriteU8(addr+offAttr, attr)
	mem.WriteU16(addr+offTime, tm)
	mem.WriteU16(addr+offDate, date)
	mem.WriteU32(addr+offSize, size)
	codec.WriteCString(mem, addr+offName, name, Size-offName)
}
