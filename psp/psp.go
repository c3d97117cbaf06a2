// Package psp implements the 256-byte Program Segment Prefix view and the
// PSP stack: root (COMMAND.COM) PSP synthesis, push/pop on EXEC/terminate,
// and the current-PSP accessor every other service reads.
package psp

import (
	"dosk/memview"
)

// Size is the fixed size, in bytes, of one PSP.
const Size = 256

// JFTSize is the number of job-file-table entries a PSP's built-in JFT
// holds.
const JFTSize = 20

// ClosedHandle marks an unused JFT slot.
const ClosedHandle = 0xFF

// Field byte offsets within a PSP.
const (
	offExit                 = 0x00
	offNextSegment          = 0x02
	offCpmServiceRequest    = 0x05
	offTerminateAddress     = 0x0A
	offBreakAddress         = 0x0E
	offCriticalErrorAddress = 0x12
	offParentPspSegment     = 0x16
	offJFT                  = 0x18
	offEnvironmentSegment   = 0x2C
	offSavedSsSp            = 0x2E
	offMaxOpenFiles         = 0x32
	offJFTFar               = 0x34
	offPreviousPsp          = 0x38
	offDosVersion           = 0x40
	offFCB1                 = 0x5C
	offFCB2                 = 0x6C
	offCommandTail          = 0x80

	fcbSize = 16
)

// FarPtr is a segment:offset pair as stored in a 4-byte PSP field (offset
// word first, then segment word, the real-mode far-pointer byte order).
type FarPtr struct {
	Offset  uint16
	Segment uint16
}

// Zero reports whether this pointer is the null far pointer.
func (p FarPtr) Zero() bool { return p.Offset == 0 && p.Segment == 0 }

// View is a live view over one PSP's 256 bytes at Base:0000.
type View struct {
	bus  memview.Bus
	Base uint16 // PSP segment
}

// At returns a View over the PSP at the given segment. It does not
// initialize the memory: callers use New for that.
func At(bus memview.Bus, segment uint16) View {
	return View{bus: bus, Base: segment}
}

func (v View) addr(off uint16) uint32 { return memview.Phys(v.Base, off) }

// New writes a fresh, minimally-initialized PSP at segment and returns its
// View: all 256 bytes are cleared, then the INT 20h/CD 20 exit sequence, the
// CP/M call byte, an all-closed JFT with its size and far pointer, DOS
// version 5.0 and an empty command tail are written (the caller fills in
// parent/environment/next segment/handles).
func New(bus memview.Bus, segment uint16) View {
	v := View{bus: bus, Base: segment}
	v.bus.WriteBytes(v.addr(0), make([]byte, Size))
	v.bus.WriteBytes(v.addr(offExit), []byte{0xCD, 0x20})
	v.bus.WriteU8(v.addr(offCpmServiceRequest), 0x9A) // far call opcode, CP/M-86 courtesy field
	for i := 0; i < JFTSize; i++ {
		v.SetJFTEntry(i, ClosedHandle)
	}
	v.SetMaxOpenFiles(JFTSize)
	v.SetJFTFar(FarPtr{Offset: offJFT, Segment: segment})
	v.SetDosVersion(5, 0)
	v.SetCommandTail("")
	return v
}

func (v View) NextSegment() uint16     { return v.bus.ReadU16(v.addr(offNextSegment)) }
func (v View) SetNextSegment(s uint16) { v.bus.WriteU16(v.addr(offNextSegment), s) }

func (v View) readFarPtr(off uint16) FarPtr {
	return FarPtr{Offset: v.bus.ReadU16(v.addr(off)), Segment: v.bus.ReadU16(v.addr(off + 2))}
}

func (v View) writeFarPtr(off uint16, p FarPtr) {
	v.bus.WriteU16(v.addr(off), p.Offset)
	v.bus.WriteU16(v.addr(off+2), p.Segment)
}

func (v View) TerminateAddress() FarPtr        { return v.readFarPtr(offTerminateAddress) }
func (v View) SetTerminateAddress(p FarPtr)     { v.writeFarPtr(offTerminateAddress, p) }
func (v View) BreakAddress() FarPtr             { return v.readFarPtr(offBreakAddress) }
func (v View) SetBreakAddress(p FarPtr)         { v.writeFarPtr(offBreakAddress, p) }
func (v View) CriticalErrorAddress() FarPtr     { return v.readFarPtr(offCriticalErrorAddress) }
func (v View) SetCriticalErrorAddress(p FarPtr) { v.writeFarPtr(offCriticalErrorAddress, p) }

func (v View) ParentPspSegment() uint16     { return v.bus.ReadU16(v.addr(offParentPspSegment)) }
func (v View) SetParentPspSegment(s uint16) { v.bus.WriteU16(v.addr(offParentPspSegment), s) }

func (v View) JFTEntry(i int) uint8 {
	return v.bus.ReadU8(v.addr(offJFT) + uint32(i))
}

func (v View) SetJFTEntry(i int, sftIndex uint8) {
	v.bus.WriteU8(v.addr(offJFT)+uint32(i), sftIndex)
}

func (v View) EnvironmentSegment() uint16     { return v.bus.ReadU16(v.addr(offEnvironmentSegment)) }
func (v View) SetEnvironmentSegment(s uint16) { v.bus.WriteU16(v.addr(offEnvironmentSegment), s) }

func (v View) SavedSsSp() FarPtr    { return v.readFarPtr(offSavedSsSp) }
func (v View) SetSavedSsSp(p FarPtr) { v.writeFarPtr(offSavedSsSp, p) }

func (v View) MaxOpenFiles() uint16     { return v.bus.ReadU16(v.addr(offMaxOpenFiles)) }
func (v View) SetMaxOpenFiles(n uint16) { v.bus.WriteU16(v.addr(offMaxOpenFiles), n) }

func (v View) JFTFar() FarPtr     { return v.readFarPtr(offJFTFar) }
func (v View) SetJFTFar(p FarPtr) { v.writeFarPtr(offJFTFar, p) }

func (v View) PreviousPsp() FarPtr     { return v.readFarPtr(offPreviousPsp) }
func (v View) SetPreviousPsp(p FarPtr) { v.writeFarPtr(offPreviousPsp, p) }

func (v View) DosVersion() (major, minor uint8) {
	return v.bus.ReadU8(v.addr(offDosVersion)), v.bus.ReadU8(v.addr(offDosVersion + 1))
}

func (v View) SetDosVersion(major, minor uint8) {
	v.bus.WriteU8(v.addr(offDosVersion), major)
	v.bus.WriteU8(v.addr(offDosVersion+1), minor)
}

// FCB1Addr / FCB2Addr return the physical addresses of the two 16-byte
// legacy default FCB areas (PSP offsets 0x5C and 0x6C).
func (v View) FCB1Addr() uint32 { return v.addr(offFCB1) }
func (v View) FCB2Addr() uint32 { return v.addr(offFCB2) }

// CommandTail returns the raw (un-decoded) command-tail bytes, up to and
// not including the terminating CR.
func (v View) CommandTail() []byte {
	n := v.bus.ReadU8(v.addr(offCommandTail))
	if n > 127 {
		n = 127
	}
	return v.bus.ReadBytes(v.addr(offCommandTail)+1, int(n))
}

// SetCommandTail writes tail (CP850 bytes, already encoded by the caller)
// at offset 0x80: a length byte, up to 127 bytes of text, then CR.
func (v View) SetCommandTail(tail string) {
	b := []byte(tail)
	if len(b) > 127 {
		b = b[:127]
	}
	v.bus.WriteU8(v.addr(offCommandTail), uint8(len(b)))
	v.bus.WriteBytes(v.addr(offCommandTail)+1, b)
	v.bus.WriteU8(v.addr(offCommandTail)+1+uint32(len(b)), 0x0D)
}

// SetCommandTailBytes is like SetCommandTail but takes already-encoded bytes
// (used by EXEC to write the CP850-encoded tail it was given).
func (v View) SetCommandTailBytes(tail []byte) {
	if len(tail) > 127 {
		tail = tail[:127]
	}
	v.bus.WriteU8(v.addr(offCommandTail), uint8(len(tail)))
	v.bus.WriteBytes(v.addr(offCommandTail)+1, tail)
	v.bus.WriteU8(v.addr(offCommandTail)+1+uint32(len(tail)), 0x0D)
}
