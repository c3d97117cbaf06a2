// Package registers specifies the narrow façade this core needs onto the
// excluded 8086 register file: the INT dispatcher reads arguments from and
// writes results to an Interface, and never otherwise touches CPU state.
package registers

// Interface is implemented by the host CPU emulator. The DOS core never
// constructs one directly in production; tests use the Fake below.
type Interface interface {
	AX() uint16
	SetAX(uint16)
	AL() uint8
	SetAL(uint8)
	AH() uint8
	SetAH(uint8)
	BX() uint16
	SetBX(uint16)
	BL() uint8
	SetBL(uint8)
	BH() uint8
	SetBH(uint8)
	CX() uint16
	SetCX(uint16)
	CL() uint8
	SetCL(uint8)
	CH() uint8
	SetCH(uint8)
	DX() uint16
	SetDX(uint16)
	DL() uint8
	SetDL(uint8)
	DH() uint8
	SetDH(uint8)
	SI() uint16
	SetSI(uint16)
	DI() uint16
	SetDI(uint16)
	BP() uint16
	SetBP(uint16)
	SP() uint16
	SetSP(uint16)
	CS() uint16
	SetCS(uint16)
	DS() uint16
	SetDS(uint16)
	ES() uint16
	SetES(uint16)
	SS() uint16
	SetSS(uint16)
	IP() uint16
	SetIP(uint16)
	CF() bool
	SetCF(bool)
}

// Fake is a plain struct implementation of Interface, used by tests and by
// cmd/dosktool, which drives the kernel without a real CPU.
type Fake struct {
	ax, bx, cx, dx     uint16
	si, di, bp, sp     uint16
	cs, ds, es, ss, ip uint16
	cf                 bool
}

func (f *Fake) AX() uint16     { return f.ax }
func (f *Fake) SetAX(v uint16) { f.ax = v }
func (f *Fake) AL() uint8      { return uint8(f.ax) }
func (f *Fake) SetAL(v uint8)  { f.ax = f.ax&0xFF00 | uint16(v) }
func (f *Fake) AH() uint8      { return uint8(f.ax >> 8) }
func (f *Fake) SetAH(v uint8)  { f.ax = f.ax&0x00FF | uint16(v)<<8 }

func (f *Fake) BX() uint16     { return f.bx }
func (f *Fake) SetBX(v uint16) { f.bx = v }
func (f *Fake) BL() uint8      { return uint8(f.bx) }
func (f *Fake) SetBL(v uint8)  { f.bx = f.bx&0xFF00 | uint16(v) }
func (f *Fake) BH() uint8      { return uint8(f.bx >> 8) }
func (f *Fake) SetBH(v uint8)  { f.bx = f.bx&0x00FF | uint16(v)<<8 }

func (f *Fake) CX() uint16     { return f.cx }
func (f *Fake) SetCX(v uint16) { f.cx = v }
func (f *Fake) CL() uint8      { return uint8(f.cx) }
func (f *Fake) SetCL(v uint8)  { f.cx = f.cx&0xFF00 | uint16(v) }
func (f *Fake) CH() uint8      { return uint8(f.cx >> 8) }
func (f *Fake) SetCH(v uint8)  { f.cx = f.cx&0x00FF | uint16(v)<<8 }

func (f *Fake) DX() uint16     { return f.dx }
func (f *Fake) SetDX(v uint16) { f.dx = v }
func (f *Fake) DL() uint8      { return uint8(f.dx) }
func (f *Fake) SetDL(v uint8)  { f.dx = f.dx&0xFF00 | uint16(v) }
func (f *Fake) DH() uint8      { return uint8(f.dx >> 8) }
func (f *Fake) SetDH(v uint8)  { f.dx = f.dx&0x00FF | uint16(v)<<8 }

func (f *Fake) SI() uint16     { return f.si }
func (f *Fake) SetSI(v uint16) { f.si = v }
func (f *Fake) DI() uint16     { return f.di }
func (f *Fake) SetDI(v uint16) { f.di = v }
func (f *Fake) BP() uint16     { return f.bp }
func (f *Fake) SetBP(v uint16) { f.bp = v }
func (f *Fake) SP() uint16     { return f.sp }
func (f *Fake) SetSP(v uint16) { f.sp = v }
func (f *Fake) CS() uint16     { return f.cs }
func (f *Fake) SetCS(v uint16) { f.cs = v }
func (f *Fake) DS() uint16     { return f.ds }
func (f *Fake) SetDS(v uint16) { f.ds = v }
func (f *Fake) ES() uint16     { return f.es }
func (f *Fake) SetES(v uint16) { f.es = v }
func (f *Fake) SS() uint16     { return f.ss }
func (f *Fake) SetSS(v uint16) { f.ss = v }
func (f *Fake) IP() uint16     { return f.ip }
func (f *Fake) SetIP(v uint16) { f.ip = v }
func (f *Fake) CF() bool       { return f.cf }
func (f *Fake) SetCF(v bool)   { f.cf = v }
