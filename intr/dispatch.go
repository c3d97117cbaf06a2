// Package intr implements the guest interrupt dispatch for INT 20h, 21h,
// 25h, 26h, 27h and 2Fh: a table keyed on AH for INT 21h, each entry a thin
// adapter between CPU registers and the service managers. This is the only
// package that knows every manager; the managers never reach each other.
package intr

import (
	"io"

	"github.com/sirupsen/logrus"

	"dosk/clock"
	"dosk/codepage"
	"dosk/dos"
	"dosk/drivemap"
	"dosk/files"
	"dosk/mcb"
	"dosk/memview"
	"dosk/process"
	"dosk/psp"
	"dosk/registers"
)

// Services is the registry the dispatcher consumes: every manager and
// shared component, wired once at kernel construction.
type Services struct {
	Mem    memview.Bus
	Codec  *codepage.Codec
	Clock  *clock.Clock
	Drives *drivemap.Map
	Alloc  *mcb.Allocator
	Psps   *psp.Stack
	Files  *files.Manager
	Procs  *process.Manager
	Log    logrus.FieldLogger

	Stdin  io.Reader
	Stdout io.Writer

	// SdaSegment is where the DOS Swappable Data Area lives; the current
	// PSP segment is mirrored there after every operation that changes it.
	SdaSegment uint16

	// DriveCount is what select-disk (INT 21h/0Eh) reports in AL.
	DriveCount uint8
}

// sdaCurrentPspOffset is where the SDA keeps the current PSP segment.
const sdaCurrentPspOffset = 0x10

type handler func(regs registers.Interface) dos.Result

// Dispatcher routes guest interrupts to the services.
type Dispatcher struct {
	svc      Services
	services [256]handler
}

// New builds the dispatch table.
func New(svc Services) *Dispatcher {
	if svc.Log == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		svc.Log = l
	}
	d := &Dispatcher{svc: svc}
	d.install()
	d.syncSda()
	return d
}

func (d *Dispatcher) install() {
	d.services[0x00] = d.terminateZero
	d.services[0x02] = d.displayChar
	d.services[0x08] = d.consoleInputNoEcho
	d.services[0x09] = d.printString
	d.services[0x0A] = d.bufferedInput
	d.services[0x0B] = d.checkInputStatus
	d.services[0x0C] = d.flushAndInvoke
	d.services[0x0E] = d.selectDisk
	d.services[0x19] = d.currentDisk
	d.services[0x1A] = d.setDta
	d.services[0x25] = d.setInterruptVector
	d.services[0x29] = d.parseFilename
	d.services[0x2A] = d.getDate
	d.services[0x2B] = d.setDate
	d.services[0x2C] = d.getTime
	d.services[0x2D] = d.setTime
	d.services[0x2F] = d.getDta
	d.services[0x30] = d.getVersion
	d.services[0x31] = d.keepResident
	d.services[0x33] = d.ctrlBreakFlag
	d.services[0x35] = d.getInterruptVector
	d.services[0x36] = d.diskFreeSpace
	d.services[0x37] = d.switchChar
	d.services[0x38] = d.countryInfo
	d.services[0x39] = d.mkDir
	d.services[0x3A] = d.rmDir
	d.services[0x3B] = d.chDir
	d.services[0x3C] = d.createFile
	d.services[0x3D] = d.openFile
	d.services[0x3E] = d.closeFile
	d.services[0x3F] = d.readFile
	d.services[0x40] = d.writeFile
	d.services[0x41] = d.deleteFile
	d.services[0x42] = d.seekFile
	d.services[0x43] = d.fileAttributes
	d.services[0x44] = d.ioctl
	d.services[0x45] = d.duplicateHandle
	d.services[0x46] = d.forceDuplicateHandle
	d.services[0x47] = d.currentDirectory
	d.services[0x48] = d.allocateMemory
	d.services[0x49] = d.freeMemory
	d.services[0x4A] = d.resizeMemory
	d.services[0x4B] = d.loadAndExecute
	d.services[0x4C] = d.terminateWithCode
	d.services[0x4D] = d.childExitCode
	d.services[0x4E] = d.findFirst
	d.services[0x4F] = d.findNext
	d.services[0x50] = d.setCurrentPsp
	d.services[0x51] = d.getCurrentPsp
	d.services[0x56] = d.renameFile
	d.services[0x57] = d.fileDateTime
	d.services[0x58] = d.allocationStrategy
	d.services[0x62] = d.getPsp
}

// Interrupt dispatches one guest INT. Unknown interrupt numbers are
// ignored; they belong to the BIOS layer, not this core.
func (d *Dispatcher) Interrupt(num uint8, regs registers.Interface) {
	switch num {
	case 0x20:
		d.finish(regs, d.svc.Procs.Terminate(regs, 0, process.TermNormal))
		d.syncSda()
	case 0x21:
		d.int21(regs)
	case 0x25, 0x26:
		// Absolute disk read/write: reported as success with no effect on
		// mounted drives.
		regs.SetCF(false)
	case 0x27:
		paragraphs := uint16((uint32(regs.DX()) + 15) / 16)
		d.finish(regs, d.svc.Procs.KeepResident(regs, 0, paragraphs))
		d.syncSda()
	case 0x2F:
		regs.SetAL(0)
		regs.SetCF(false)
	}
}

func (d *Dispatcher) int21(regs registers.Interface) {
	ah := regs.AH()
	d.svc.Log.WithFields(logrus.Fields{
		"ah": ah,
		"al": regs.AL(),
		"cs": regs.CS(),
		"ip": regs.IP(),
	}).Debug("int 21h")

	h := d.services[ah]
	if h == nil {
		d.finish(regs, dos.Err(dos.FunctionInvalid))
		return
	}
	d.finish(regs, h(regs))
	switch ah {
	case 0x00, 0x31, 0x4B, 0x4C, 0x50:
		d.syncSda()
	}
}

// finish applies the CF/AX error contract: CF set with AX holding the code
// on failure, CF clear on success (the handler has set its own registers).
func (d *Dispatcher) finish(regs registers.Interface, res dos.Result) {
	if !res.OK() {
		regs.SetCF(true)
		regs.SetAX(uint16(res.Code))
		return
	}
	regs.SetCF(false)
}

func (d *Dispatcher) syncSda() {
	if d.svc.SdaSegment != 0 {
		d.svc.Mem.WriteU16(memview.Phys(d.svc.SdaSegment, sdaCurrentPspOffset), d.svc.Psps.Current())
	}
}

func (d *Dispatcher) current() psp.View { return d.svc.Psps.CurrentView() }

func (d *Dispatcher) dsdx(regs registers.Interface) uint32 {
	return memview.Phys(regs.DS(), regs.DX())
}

// readPath reads the ASCIIZ path argument at DS:DX.
func (d *Dispatcher) readPath(regs registers.Interface) string {
	return d.svc.Codec.ReadCString(d.svc.Mem, d.dsdx(regs), 128)
}
