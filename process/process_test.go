package process

import (
	"bytes"
	"strings"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dosk/clock"
	"dosk/codepage"
	"dosk/drivemap"
	"dosk/files"
	"dosk/mcb"
	"dosk/memview"
	"dosk/psp"
	"dosk/registers"
)

const (
	rootPsp  = 0x0060
	firstPsp = 0x0081
	lastFree = 0x9FFF
)

// helloCom is B4 4C B0 00 CD 21 (mov ah,4Ch; mov al,0; int 21h) padded to
// 17 bytes.
var helloCom = append([]byte{0xB4, 0x4C, 0xB0, 0x00, 0xCD, 0x21}, make([]byte, 11)...)

type harness struct {
	mem   *memview.Memory
	alloc *mcb.Allocator
	psps  *psp.Stack
	files *files.Manager
	procs *Manager
	regs  *registers.Fake
	fs    afero.Fs
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		mem:  memview.New(1 << 20),
		regs: &registers.Fake{},
		fs:   afero.NewMemMapFs(),
	}
	require.NoError(t, afero.WriteFile(h.fs, "/HELLO.COM", helloCom, 0o644))

	drives := drivemap.New()
	drives.Mount('C', h.fs)

	h.alloc = mcb.New(h.mem, firstPsp, lastFree)
	h.psps = psp.NewShell(h.mem, rootPsp, 0)
	h.files = files.New(h.mem, codepage.New(), clock.New(), drives, strings.NewReader(""), &bytes.Buffer{})
	h.files.InitRootHandles(h.psps.CurrentView())
	h.procs = New(h.mem, codepage.New(), h.alloc, h.psps, h.files, drives, nil)
	h.procs.SetDefaultVectors(psp.FarPtr{Segment: 0xF000, Offset: 0xFFF0}, psp.FarPtr{}, psp.FarPtr{})
	return h
}

func TestExecComAtConfiguredLoadAddress(t *testing.T) {
	h := newHarness(t)
	h.procs.SetFirstLoadTarget(firstPsp)
	h.regs.SetCS(0x1234)
	h.regs.SetIP(0x0005)

	res := h.procs.Exec(h.regs, `C:\HELLO.COM`, 0, "")
	require.True(t, res.OK())

	assert.EqualValues(t, firstPsp, h.psps.Current())
	assert.EqualValues(t, firstPsp, h.regs.CS())
	assert.EqualValues(t, 0x0100, h.regs.IP())
	assert.EqualValues(t, firstPsp, h.regs.SS())
	assert.EqualValues(t, 0xFFFE, h.regs.SP())
	assert.EqualValues(t, firstPsp, h.regs.DS())

	// Image bytes land at PSP:0100.
	loaded := h.mem.ReadBytes(memview.Phys(firstPsp, 0x0100), 6)
	assert.Equal(t, helloCom[:6], loaded)
}

func TestExecBuildsChildPsp(t *testing.T) {
	h := newHarness(t)
	res := h.procs.Exec(h.regs, `C:\HELLO.COM`, 0, "ARG1 ARG2")
	require.True(t, res.OK())

	child := h.psps.CurrentView()
	assert.EqualValues(t, rootPsp, child.ParentPspSegment())
	assert.Equal(t, []byte("ARG1 ARG2"), child.CommandTail())

	// Handles 0-4 inherited from the shell.
	for i := 0; i < 5; i++ {
		assert.NotEqualValues(t, psp.ClosedHandle, child.JFTEntry(i), "handle %d", i)
	}

	// FCB 1 holds the first tail token, space-padded to 8.3.
	name := h.mem.ReadBytes(child.FCB1Addr()+1, 8)
	assert.Equal(t, []byte("ARG1    "), name)
	name2 := h.mem.ReadBytes(child.FCB2Addr()+1, 8)
	assert.Equal(t, []byte("ARG2    "), name2)
}

func TestExecAllocatesEnvironmentBlock(t *testing.T) {
	h := newHarness(t)
	res := h.procs.Exec(h.regs, `C:\HELLO.COM`, 0, "")
	require.True(t, res.OK())

	child := h.psps.CurrentView()
	envSegment := child.EnvironmentSegment()
	require.NotZero(t, envSegment)

	// The trailer is a count word of 1 followed by the program path.
	env := h.mem.ReadBytes(memview.Phys(envSegment, 0), 64)
	idx := bytes.Index(env, []byte{0, 1, 0})
	require.GreaterOrEqual(t, idx, 0)
	assert.True(t, bytes.HasPrefix(env[idx+3:], []byte(`C:\HELLO.COM`)))

	// The environment MCB is owned by the child and freed with it.
	envBlock := h.alloc.BlockAt(envSegment)
	assert.EqualValues(t, h.psps.Current(), envBlock.PspSegment())
}

func TestTerminateRestoresParentAndFreesChain(t *testing.T) {
	h := newHarness(t)
	h.regs.SetCS(0x0777)
	h.regs.SetIP(0x0042)
	h.regs.SetSS(0x0600)
	h.regs.SetSP(0x0200)

	require.True(t, h.procs.Exec(h.regs, `C:\HELLO.COM`, 0, "").OK())
	require.True(t, h.procs.Terminate(h.regs, 0, TermNormal).OK())

	assert.EqualValues(t, rootPsp, h.psps.Current())
	assert.EqualValues(t, 0x0777, h.regs.CS())
	assert.EqualValues(t, 0x0042, h.regs.IP())
	assert.EqualValues(t, 0x0600, h.regs.SS())
	assert.EqualValues(t, 0x0200, h.regs.SP())

	code, kind := h.procs.LastExit()
	assert.EqualValues(t, 0, code)
	assert.Equal(t, TermNormal, kind)

	// Every block, program and environment alike, is free again.
	for _, b := range h.alloc.Chain() {
		assert.True(t, b.Free())
	}
	assert.False(t, h.procs.Halted())
}

func TestRootTerminateHalts(t *testing.T) {
	h := newHarness(t)
	require.True(t, h.procs.Terminate(h.regs, 3, TermNormal).OK())
	assert.True(t, h.procs.Halted())

	code, _ := h.procs.LastExit()
	assert.EqualValues(t, 3, code)
}

func TestExecMissingFile(t *testing.T) {
	h := newHarness(t)
	res := h.procs.Exec(h.regs, `C:\NOPE.COM`, 0, "")
	require.False(t, res.OK())
}

func TestKeepResidentKeepsProgramBlock(t *testing.T) {
	h := newHarness(t)
	require.True(t, h.procs.Exec(h.regs, `C:\HELLO.COM`, 0, "").OK())
	child := h.psps.Current()

	require.True(t, h.procs.KeepResident(h.regs, 0, 0x20).OK())

	assert.EqualValues(t, rootPsp, h.psps.Current())
	block := h.alloc.BlockAt(child)
	assert.False(t, block.Free())
	assert.EqualValues(t, 0x20, block.Size())

	_, kind := h.procs.LastExit()
	assert.Equal(t, TermResident, kind)
}
