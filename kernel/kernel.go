// Package kernel wires the DOS core together: guest memory, the clock and
// codec, the drive map, the MCB allocator, the PSP stack, the file and
// process managers, and the interrupt dispatcher that fronts them all.
package kernel

import (
	"io"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"dosk/clock"
	"dosk/codepage"
	"dosk/dos"
	"dosk/drivemap"
	"dosk/files"
	"dosk/intr"
	"dosk/mcb"
	"dosk/memview"
	"dosk/process"
	"dosk/psp"
	"dosk/registers"
)

// Kernel is one booted DOS core instance.
type Kernel struct {
	Config Config

	Mem      *memview.Memory
	Regs     registers.Interface
	Codec    *codepage.Codec
	Clock    *clock.Clock
	Drives   *drivemap.Map
	Alloc    *mcb.Allocator
	Psps     *psp.Stack
	Files    *files.Manager
	Procs    *process.Manager
	Dispatch *intr.Dispatcher

	log logrus.FieldLogger
}

// defaultVector is the far pointer installed for INT 22h/23h/24h when no
// parent supplies one: the traditional BIOS reset stub.
var defaultVector = psp.FarPtr{Segment: 0xF000, Offset: 0xFFF0}

// New boots a kernel against the given CPU register façade and host console
// streams. log may be nil; a discarding logger is used then.
func New(cfg Config, regs registers.Interface, stdin io.Reader, stdout io.Writer, log logrus.FieldLogger) (*Kernel, error) {
	if log == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		log = l
	}

	k := &Kernel{
		Config: cfg,
		Mem:    memview.New(cfg.MemorySize),
		Regs:   regs,
		Codec:  codepage.New(),
		Clock:  clock.New(),
		log:    log,
	}

	if err := k.mountDrives(); err != nil {
		return nil, err
	}

	firstPsp := cfg.LoadSegment + 1
	k.Alloc = mcb.New(k.Mem, firstPsp, cfg.LastFreeSegment)
	if res := k.Alloc.SetStrategy(cfg.AllocationStrategy); !res.OK() {
		k.log.WithFields(logrus.Fields{"strategy": cfg.AllocationStrategy}).Warn("invalid allocation strategy, keeping 0")
	}

	envSegment := k.writeRootEnvironment(cfg.RootPspSegment)
	k.Psps = psp.NewShell(k.Mem, cfg.RootPspSegment, envSegment)
	root := k.Psps.CurrentView()
	root.SetDosVersion(cfg.DosMajor, cfg.DosMinor)
	root.SetTerminateAddress(defaultVector)
	root.SetBreakAddress(defaultVector)
	root.SetCriticalErrorAddress(defaultVector)

	k.Files = files.New(k.Mem, k.Codec, k.Clock, k.Drives, stdin, stdout)
	k.Files.InitRootHandles(root)

	k.Procs = process.New(k.Mem, k.Codec, k.Alloc, k.Psps, k.Files, k.Drives, log)
	k.Procs.SetDefaultVectors(defaultVector, defaultVector, defaultVector)
	k.Procs.SetFirstLoadTarget(firstPsp)

	k.writeDeviceDriverChain()
	k.writeInterruptVectors()

	k.Dispatch = intr.New(intr.Services{
		Mem:        k.Mem,
		Codec:      k.Codec,
		Clock:      k.Clock,
		Drives:     k.Drives,
		Alloc:      k.Alloc,
		Psps:       k.Psps,
		Files:      k.Files,
		Procs:      k.Procs,
		Log:        log,
		Stdin:      stdin,
		Stdout:     stdout,
		SdaSegment: cfg.SdaSegment,
		DriveCount: 26,
	})

	k.log.WithFields(logrus.Fields{
		"root_psp":  cfg.RootPspSegment,
		"load_seg":  cfg.LoadSegment,
		"last_free": cfg.LastFreeSegment,
	}).Info("kernel booted")

	return k, nil
}

func (k *Kernel) mountDrives() error {
	k.Drives = drivemap.New()
	for letter, root := range k.Config.Mounts {
		if len(letter) != 1 {
			continue
		}
		k.Drives.Mount(letter[0], afero.NewBasePathFs(afero.NewOsFs(), root))
	}
	k.Drives.Mount('Z', drivemap.NewScratchZ())
	if cur := k.Config.CurrentDrive; cur != "" && k.Drives.Mounted(cur[0]) {
		_ = k.Drives.SetCurrent(cur[0])
	} else {
		_ = k.Drives.SetCurrent('Z')
	}
	return nil
}

// MountFs attaches an arbitrary filesystem as a drive, for tests and tools
// that don't go through Config.Mounts.
func (k *Kernel) MountFs(letter byte, fs afero.Fs) {
	k.Drives.Mount(letter, fs)
}

// writeRootEnvironment places the shell's environment block directly below
// the root PSP, outside the MCB chain; children copy it into allocated
// blocks of their own.
func (k *Kernel) writeRootEnvironment(rootPsp uint16) uint16 {
	env := strings.Join([]string{
		`PATH=Z:\;C:\`,
		`COMSPEC=Z:\COMMAND.COM`,
	}, "\x00")
	raw := append([]byte(env), 0, 0)

	paragraphs := uint16((len(raw) + 15) / 16)
	segment := rootPsp - paragraphs
	k.Mem.WriteBytes(memview.Phys(segment, 0), raw)
	return segment
}

// deviceHeaderSize is the byte length of one driver header.
const deviceHeaderSize = 18

// writeDeviceDriverChain lays down the character-device driver headers:
// next-pointer (FFFF:FFFF terminates), attribute word, strategy and
// interrupt entry offsets, and the 8-byte device name.
func (k *Kernel) writeDeviceDriverChain() {
	type device struct {
		name string
		attr uint16
	}
	devices := []device{
		{"NUL", 0x8004},
		{"CON", 0x8013},
		{"AUX", 0x8000},
		{"PRN", 0xA040},
		{"CLOCK$", 0x8008},
	}

	segment := k.Config.DeviceDriverSegment
	for i, dev := range devices {
		base := memview.Phys(segment, uint16(i*deviceHeaderSize))
		if i == len(devices)-1 {
			k.Mem.WriteU16(base, 0xFFFF)
			k.Mem.WriteU16(base+2, 0xFFFF)
		} else {
			k.Mem.WriteU16(base, uint16((i+1)*deviceHeaderSize))
			k.Mem.WriteU16(base+2, segment)
		}
		k.Mem.WriteU16(base+4, dev.attr)
		k.Mem.WriteU16(base+6, 0) // strategy entry
		k.Mem.WriteU16(base+8, 0) // interrupt entry
		name := dev.name
		for len(name) < 8 {
			name += " "
		}
		k.Mem.WriteBytes(base+10, []byte(name))
	}
}

// writeInterruptVectors seeds the IVT entries this core owns so a guest
// reading them via INT 21h/35h before ever setting one sees sane values.
func (k *Kernel) writeInterruptVectors() {
	for _, vec := range []uint8{0x20, 0x21, 0x22, 0x23, 0x24, 0x25, 0x26, 0x27, 0x2F} {
		base := uint32(vec) * 4
		k.Mem.WriteU16(base, defaultVector.Offset)
		k.Mem.WriteU16(base+2, defaultVector.Segment)
	}
}

// Exec loads and starts a program from the host side, the entry the CLI
// front-end and tests use in place of a guest INT 21h/4Bh.
func (k *Kernel) Exec(dosPath, commandTail string) dos.Result {
	return k.Procs.Exec(k.Regs, dosPath, 0, commandTail)
}

// Interrupt forwards a guest INT to the dispatcher.
func (k *Kernel) Interrupt(num uint8) {
	k.Dispatch.Interrupt(num, k.Regs)
}

// Halted reports whether the root program has terminated and the host
// should stop fetching instructions.
func (k *Kernel) Halted() bool { return k.Procs.Halted() }
