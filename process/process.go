// Package process implements the process manager: INT 21h/4Bh load-and-
// execute, the terminate family (INT 20h, 21h/00h, 21h/4Ch, 27h), keep-
// resident, and the exit-code report INT 21h/4Dh reads.
package process

import (
	"io"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"dosk/codepage"
	"dosk/dos"
	"dosk/drivemap"
	"dosk/exe"
	"dosk/fcb"
	"dosk/files"
	"dosk/mcb"
	"dosk/memview"
	"dosk/psp"
	"dosk/registers"
)

// TerminationKind is the AH half of the INT 21h/4Dh report.
type TerminationKind uint8

const (
	TermNormal TerminationKind = iota
	TermCtrlC
	TermCriticalError
	TermResident
)

// pspParagraphs is the PSP's size in paragraphs.
const pspParagraphs = 16

// Manager drives EXEC and terminate. It owns no other manager: the
// allocator, PSP stack, and file manager come in at construction and are
// driven through their public operations only.
type Manager struct {
	mem    memview.Bus
	codec  *codepage.Codec
	alloc  *mcb.Allocator
	psps   *psp.Stack
	files  *files.Manager
	drives *drivemap.Map
	log    logrus.FieldLogger

	// firstLoadTarget, when non-nil, pins the next EXEC's block to a
	// configured payload segment. It is consumed by the first Exec so the
	// initial program lands at the configured load address.
	firstLoadTarget *uint16

	// defaultVectors are the INT 22/23/24 far pointers a child inherits
	// when its parent PSP carries none.
	defaultVectors [3]psp.FarPtr

	lastExitCode uint8
	lastExitKind TerminationKind

	// halted is set once the root PSP terminates; the host checks it after
	// every dispatched interrupt and stops fetching guest instructions.
	halted bool
}

// New wires a Manager. log may be nil; a discarding logger is used then.
func New(mem memview.Bus, codec *codepage.Codec, alloc *mcb.Allocator, psps *psp.Stack, fm *files.Manager, drives *drivemap.Map, log logrus.FieldLogger) *Manager {
	if log == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		log = l
	}
	return &Manager{
		mem:    mem,
		codec:  codec,
		alloc:  alloc,
		psps:   psps,
		files:  fm,
		drives: drives,
		log:    log,
	}
}

// SetFirstLoadTarget pins the next Exec to the given payload segment.
func (m *Manager) SetFirstLoadTarget(segment uint16) {
	s := segment
	m.firstLoadTarget = &s
}

// SetDefaultVectors installs the system INT 22h/23h/24h far pointers used
// when a parent PSP has none to inherit.
func (m *Manager) SetDefaultVectors(terminate, brk, critical psp.FarPtr) {
	m.defaultVectors = [3]psp.FarPtr{terminate, brk, critical}
}

// Halted reports whether the root program has terminated.
func (m *Manager) Halted() bool { return m.halted }

// LastExit returns the most recent child's exit code and termination kind
// (INT 21h/4Dh).
func (m *Manager) LastExit() (code uint8, kind TerminationKind) {
	return m.lastExitCode, m.lastExitKind
}

// ParamBlock is the caller-supplied EXEC parameter block at ES:BX
// (INT 21h/4Bh AL=0): an environment segment (0 = inherit) and far pointers
// to the command tail and the two FCBs to copy into the child PSP.
type ParamBlock struct {
	EnvironmentSegment uint16
	CommandTail        psp.FarPtr
	FCB1               psp.FarPtr
	FCB2               psp.FarPtr
}

// paramBlock field offsets. The words at 0x0E/0x12 receive the parent's
// SS:SP and CS:IP on return, mirroring what DOS stores there.
const (
	pbOffEnv       = 0x00
	pbOffTail      = 0x02
	pbOffFCB1      = 0x06
	pbOffFCB2      = 0x0A
	pbOffSavedSsSp = 0x0E
	pbOffSavedCsIp = 0x12
)

// ReadParamBlock decodes the EXEC parameter block at the given address.
func ReadParamBlock(mem memview.Bus, addr uint32) ParamBlock {
	readFar := func(off uint32) psp.FarPtr {
		return psp.FarPtr{Offset: mem.ReadU16(addr + off), Segment: mem.ReadU16(addr + off + 2)}
	}
	return ParamBlock{
		EnvironmentSegment: mem.ReadU16(addr + pbOffEnv),
		CommandTail:        readFar(pbOffTail),
		FCB1:               readFar(pbOffFCB1),
		FCB2:               readFar(pbOffFCB2),
	}
}

// Exec implements INT 21h/4Bh subfunction 0: load dosPath, build its PSP
// and environment, and transfer control to it. paramAddr is the physical
// address of the caller's parameter block, or 0 when the host itself starts
// the first program (then tail carries the command line directly).
func (m *Manager) Exec(regs registers.Interface, dosPath string, paramAddr uint32, tail string) dos.Result {
	var pb ParamBlock
	if paramAddr != 0 {
		pb = ReadParamBlock(m.mem, paramAddr)
		raw := m.mem.ReadBytes(memview.Phys(pb.CommandTail.Segment, pb.CommandTail.Offset), 128)
		tail = decodeTail(m.codec, raw)
	}

	fs, hostPath, res := m.drives.Resolve(dosPath, false)
	if !res.OK() {
		return res
	}
	raw, err := afero.ReadFile(fs, hostPath)
	if err != nil {
		return dos.Err(dos.FileNotFound)
	}
	img, err := exe.Read(raw, dosPath)
	if err != nil {
		return dos.Err(dos.FormatInvalid)
	}

	parentSegment := m.psps.Current()
	parent := m.psps.CurrentView()
	target := m.firstLoadTarget
	m.firstLoadTarget = nil

	// The environment block goes in first, owned by the parent for the
	// moment, so the program reservation below can still take the whole of
	// the remaining largest block. A pinned first load is the exception:
	// its block must start at the configured segment, which a fresh chain's
	// only free block also does, so the child shares the shell's
	// environment (a static block outside the chain) instead.
	envSegment := pb.EnvironmentSegment
	ownEnvironment := envSegment == 0
	if ownEnvironment && target != nil {
		envSegment = parent.EnvironmentSegment()
		ownEnvironment = false
	}
	if ownEnvironment {
		envSegment, res = m.copyEnvironment(parent.EnvironmentSegment(), parentSegment, dosPath)
		if !res.OK() {
			return res
		}
	}

	min, max := img.AllocRange()
	pspSegment, ares := m.alloc.ReserveForExe(min, max, target)
	if !ares.OK() {
		if ownEnvironment {
			_ = m.alloc.Free(envSegment)
		}
		return ares
	}
	block := m.alloc.BlockAt(pspSegment)
	block.SetOwnerName(baseName(dosPath))
	if ownEnvironment {
		m.alloc.BlockAt(envSegment).SetPspSegment(pspSegment)
	}

	child := psp.New(m.mem, pspSegment)
	child.SetNextSegment(block.PayloadSegment() + block.Size())
	child.SetParentPspSegment(parentSegment)
	child.SetEnvironmentSegment(envSegment)
	child.SetDosVersion(parent.DosVersion())
	m.inheritVectors(parent, child)
	m.files.InheritHandles(parent, child)
	// The FCB parse clears 37 bytes from 0x6C, reaching into 0x80, so the
	// command tail is written after the default FCBs.
	m.fillDefaultFCBs(child, tail)
	child.SetCommandTailBytes(m.codec.Encode(tail))

	entry := m.placeImage(img, pspSegment, regs)

	// The parent resumes, after the child's INT 21h/4Ch, at the return
	// address its own INT 4Bh pushed; the CPU façade's CS:IP/SS:SP at this
	// point are exactly that resume state.
	parent.SetSavedSsSp(psp.FarPtr{Segment: regs.SS(), Offset: regs.SP()})
	if paramAddr != 0 {
		m.mem.WriteU16(paramAddr+pbOffSavedSsSp, regs.SP())
		m.mem.WriteU16(paramAddr+pbOffSavedSsSp+2, regs.SS())
		m.mem.WriteU16(paramAddr+pbOffSavedCsIp, regs.IP())
		m.mem.WriteU16(paramAddr+pbOffSavedCsIp+2, regs.CS())
	}
	child.SetTerminateAddress(psp.FarPtr{Segment: regs.CS(), Offset: regs.IP()})

	m.psps.Push(pspSegment)

	regs.SetCS(entry.cs)
	regs.SetIP(entry.ip)
	regs.SetSS(entry.ss)
	regs.SetSP(entry.sp)
	regs.SetDS(pspSegment)
	regs.SetES(pspSegment)
	regs.SetAX(0)

	m.log.WithFields(logrus.Fields{
		"path": dosPath,
		"kind": img.Kind.String(),
		"psp":  pspSegment,
		"cs":   entry.cs,
		"ip":   entry.ip,
	}).Info("program loaded")

	return dos.Ok(uint32(pspSegment))
}

type entryPoint struct {
	cs, ip, ss, sp uint16
}

// placeImage copies the load module into the block at pspSegment and
// computes the initial CS:IP/SS:SP.
func (m *Manager) placeImage(img *exe.Image, pspSegment uint16, regs registers.Interface) entryPoint {
	loadSegment := pspSegment + pspParagraphs

	m.mem.WriteBytes(memview.Phys(loadSegment, 0), img.Body)

	if img.Kind == exe.KindCom {
		// A COM image sees one segment: code at PSP:0100, stack at the top
		// of the same 64 KiB with a pushed zero word.
		m.mem.WriteU16(memview.Phys(pspSegment, 0xFFFE), 0)
		return entryPoint{cs: pspSegment, ip: 0x0100, ss: pspSegment, sp: 0xFFFE}
	}

	for _, rel := range img.Relocs {
		addr := memview.Phys(loadSegment+rel.Segment, rel.Offset)
		m.mem.WriteU16(addr, m.mem.ReadU16(addr)+loadSegment)
	}
	return entryPoint{
		cs: img.Header.InitCS + loadSegment,
		ip: img.Header.InitIP,
		ss: img.Header.InitSS + loadSegment,
		sp: img.Header.InitSP,
	}
}

// copyEnvironment clones the parent's environment block into a fresh MCB
// owned by the child, appending the standard trailer: a word count of 1 and
// the child's full program path. A parent without an environment yields a
// minimal block holding only the trailer.
func (m *Manager) copyEnvironment(parentEnvSegment, ownerPsp uint16, dosPath string) (uint16, dos.Result) {
	var env []byte
	if parentEnvSegment != 0 {
		env = readEnvironmentStrings(m.mem, parentEnvSegment)
	}
	env = append(env, 0) // terminates the variable area
	env = append(env, 1, 0)
	env = append(env, m.codec.Encode(dosPath)...)
	env = append(env, 0)

	paragraphs := uint16((len(env) + 15) / 16)
	segment, res := m.alloc.Allocate(paragraphs, ownerPsp)
	if !res.OK() {
		return 0, dos.Err(dos.EnvironmentInvalid)
	}
	m.alloc.BlockAt(segment).SetOwnerName(baseName(dosPath))
	m.mem.WriteBytes(memview.Phys(segment, 0), env)
	return segment, dos.Ok(uint32(segment))
}

// readEnvironmentStrings returns the ASCIIZ,ASCIIZ,...,0 variable area of
// an environment block, without the final extra zero or the path trailer.
func readEnvironmentStrings(mem memview.Bus, segment uint16) []byte {
	base := memview.Phys(segment, 0)
	var out []byte
	for i := uint32(0); i < 0x8000; i++ {
		b := mem.ReadU8(base + i)
		if b == 0 {
			if i == 0 || mem.ReadU8(base+i-1) == 0 {
				break
			}
			out = append(out, 0)
			continue
		}
		out = append(out, b)
	}
	return out
}

func (m *Manager) inheritVectors(parent, child psp.View) {
	vectors := [3]psp.FarPtr{
		parent.TerminateAddress(),
		parent.BreakAddress(),
		parent.CriticalErrorAddress(),
	}
	for i, v := range vectors {
		if v.Zero() {
			vectors[i] = m.defaultVectors[i]
		}
	}
	child.SetTerminateAddress(vectors[0])
	child.SetBreakAddress(vectors[1])
	child.SetCriticalErrorAddress(vectors[2])
}

// fillDefaultFCBs parses the first two command-tail tokens into the child
// PSP's FCB area at 0x5C and 0x6C.
func (m *Manager) fillDefaultFCBs(child psp.View, tail string) {
	r1 := fcb.ParseFCB(m.mem, fcb.CtrlSkipSeparators, tail, child.FCB1Addr())
	rest := tail[min(r1.Consumed, len(tail)):]
	fcb.ParseFCB(m.mem, fcb.CtrlSkipSeparators, rest, child.FCB2Addr())
}

// Terminate ends the current process with the given exit code and kind:
// free its MCBs (environment block included), release its handles, pop the
// PSP, and restore the parent's CS:IP and SS:SP. When the root PSP
// terminates the manager flags a halt instead of restoring.
func (m *Manager) Terminate(regs registers.Interface, exitCode uint8, kind TerminationKind) dos.Result {
	current := m.psps.Current()
	view := m.psps.CurrentView()

	m.files.CloseAllForPsp(view)
	if kind != TermResident {
		m.alloc.FreeByPsp(current)
	} else {
		// A resident program keeps its program block; the environment
		// block would normally be released by the program itself before
		// the INT 21h/31h call, so only non-program blocks it still owns
		// stay put as well.
	}

	m.lastExitCode = exitCode
	m.lastExitKind = kind

	popped, ok := m.psps.Pop()
	if !ok {
		m.halted = true
		m.log.WithFields(logrus.Fields{"exit_code": exitCode}).Info("root program terminated, halting")
		return dos.Ok(0)
	}

	terminated := psp.At(m.mem, popped)
	ret := terminated.TerminateAddress()
	saved := psp.At(m.mem, m.psps.Current()).SavedSsSp()

	regs.SetCS(ret.Segment)
	regs.SetIP(ret.Offset)
	regs.SetSS(saved.Segment)
	regs.SetSP(saved.Offset)
	regs.SetDS(m.psps.Current())
	regs.SetES(m.psps.Current())

	m.log.WithFields(logrus.Fields{
		"psp":       popped,
		"exit_code": exitCode,
		"kind":      uint8(kind),
	}).Info("program terminated")

	return dos.Ok(0)
}

// KeepResident implements INT 21h/31h: shrink the current program's block
// to the requested paragraph count and terminate without freeing it.
func (m *Manager) KeepResident(regs registers.Interface, exitCode uint8, paragraphs uint16) dos.Result {
	current := m.psps.Current()
	if res := m.alloc.Resize(current, paragraphs); !res.OK() {
		return res
	}
	return m.Terminate(regs, exitCode, TermResident)
}

func decodeTail(codec *codepage.Codec, raw []byte) string {
	if len(raw) == 0 {
		return ""
	}
	n := int(raw[0])
	if n > len(raw)-1 {
		n = len(raw) - 1
	}
	return codec.Decode(raw[1 : 1+n])
}

func baseName(dosPath string) string {
	name := dosPath
	for i := len(dosPath) - 1; i >= 0; i-- {
		if dosPath[i] == '\\' || dosPath[i] == '/' || dosPath[i] == ':' {
			name = dosPath[i+1:]
			break
		}
	}
	if i := strings.IndexByte(name, '.'); i >= 0 {
		name = name[:i]
	}
	if len(name) > 8 {
		name = name[:8]
	}
	return name
}
