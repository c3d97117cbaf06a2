package intr

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

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

const (
	rootPsp  = 0x0060
	firstPsp = 0x0081
	lastFree = 0x9FFF
)

type fixture struct {
	d    *Dispatcher
	regs *registers.Fake
	mem  *memview.Memory
	out  *bytes.Buffer
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		regs: &registers.Fake{},
		mem:  memview.New(1 << 20),
		out:  &bytes.Buffer{},
	}

	fs := afero.NewMemMapFs()
	drives := drivemap.New()
	drives.Mount('C', fs)
	require.True(t, drives.SetCurrent('C').OK())

	codec := codepage.New()
	clk := clock.NewWithNow(func() time.Time {
		return time.Date(1994, time.June, 15, 10, 30, 44, 0, time.UTC)
	})
	alloc := mcb.New(f.mem, firstPsp, lastFree)
	psps := psp.NewShell(f.mem, rootPsp, 0)
	stdin := strings.NewReader("hi\n")
	fm := files.New(f.mem, codec, clk, drives, stdin, f.out)
	fm.InitRootHandles(psps.CurrentView())
	procs := process.New(f.mem, codec, alloc, psps, fm, drives, nil)

	f.d = New(Services{
		Mem:        f.mem,
		Codec:      codec,
		Clock:      clk,
		Drives:     drives,
		Alloc:      alloc,
		Psps:       psps,
		Files:      fm,
		Procs:      procs,
		Stdin:      stdin,
		Stdout:     f.out,
		SdaSegment: 0x0050,
		DriveCount: 26,
	})
	return f
}

func (f *fixture) int21(ah, al uint8) {
	f.regs.SetAH(ah)
	f.regs.SetAL(al)
	f.d.Interrupt(0x21, f.regs)
}

func TestUnknownFunctionSetsCarry(t *testing.T) {
	f := newFixture(t)
	f.int21(0xA5, 0)
	assert.True(t, f.regs.CF())
	assert.EqualValues(t, dos.FunctionInvalid, f.regs.AX())
}

func TestGetDateAndTime(t *testing.T) {
	f := newFixture(t)

	f.int21(0x2A, 0)
	assert.EqualValues(t, 1994, f.regs.CX())
	assert.EqualValues(t, 6, f.regs.DH())
	assert.EqualValues(t, 15, f.regs.DL())

	f.int21(0x2C, 0)
	assert.EqualValues(t, 10, f.regs.CH())
	assert.EqualValues(t, 30, f.regs.CL())
	assert.EqualValues(t, 44, f.regs.DH())
}

func TestSetDateRejectsOutOfRange(t *testing.T) {
	f := newFixture(t)
	f.regs.SetCX(1975)
	f.regs.SetDH(1)
	f.regs.SetDL(1)
	f.int21(0x2B, 0)
	assert.False(t, f.regs.CF())
	assert.EqualValues(t, 0xFF, f.regs.AL())
}

func TestPrintString(t *testing.T) {
	f := newFixture(t)
	f.mem.WriteBytes(memview.Phys(0x2000, 0), []byte("Hello, world$garbage"))
	f.regs.SetDS(0x2000)
	f.regs.SetDX(0)
	f.int21(0x09, 0)
	assert.Equal(t, "Hello, world", f.out.String())
}

func TestBufferedInput(t *testing.T) {
	f := newFixture(t)
	addr := memview.Phys(0x2000, 0)
	f.mem.WriteU8(addr, 10)
	f.regs.SetDS(0x2000)
	f.regs.SetDX(0)
	f.int21(0x0A, 0)

	assert.EqualValues(t, 2, f.mem.ReadU8(addr+1))
	assert.Equal(t, []byte("hi"), f.mem.ReadBytes(addr+2, 2))
	assert.EqualValues(t, 0x0D, f.mem.ReadU8(addr+4))
}

func TestParseFilenameIntoFcb(t *testing.T) {
	f := newFixture(t)
	f.mem.WriteBytes(memview.Phys(0x2000, 0), append([]byte(`  B:STAR*.TX?`), 0))
	f.regs.SetDS(0x2000)
	f.regs.SetSI(0)
	f.regs.SetES(0x2100)
	f.regs.SetDI(0)
	f.int21(0x29, 0x01)

	assert.EqualValues(t, 1, f.regs.AL()) // wildcard seen
	fcbAddr := memview.Phys(0x2100, 0)
	assert.EqualValues(t, 2, f.mem.ReadU8(fcbAddr)) // drive B
	assert.Equal(t, []byte("STAR????"), f.mem.ReadBytes(fcbAddr+1, 8))
	assert.Equal(t, []byte("TX?"), f.mem.ReadBytes(fcbAddr+9, 3))
}

func TestAllocateReportsLargestFreeOnFailure(t *testing.T) {
	f := newFixture(t)
	f.regs.SetBX(0x9000)
	f.int21(0x48, 0)
	require.False(t, f.regs.CF())
	first := f.regs.AX()
	assert.EqualValues(t, firstPsp, first)

	f.regs.SetBX(0x9000)
	f.int21(0x48, 0)
	assert.True(t, f.regs.CF())
	assert.EqualValues(t, dos.InsufficientMem, f.regs.AX())
	assert.EqualValues(t, lastFree-(firstPsp-1)-0x9000-1, f.regs.BX())
}

func TestFreeAndResizeThroughRegisters(t *testing.T) {
	f := newFixture(t)
	f.regs.SetBX(0x0100)
	f.int21(0x48, 0)
	require.False(t, f.regs.CF())
	segment := f.regs.AX()

	f.regs.SetES(segment)
	f.regs.SetBX(0x0080)
	f.int21(0x4A, 0)
	assert.False(t, f.regs.CF())

	f.regs.SetES(segment)
	f.int21(0x49, 0)
	assert.False(t, f.regs.CF())
}

func TestDtaRoundTrip(t *testing.T) {
	f := newFixture(t)
	f.regs.SetDS(0x1234)
	f.regs.SetDX(0x0056)
	f.int21(0x1A, 0)

	f.int21(0x2F, 0)
	assert.EqualValues(t, memview.Phys(0x1234, 0x0056), memview.Phys(f.regs.ES(), f.regs.BX()))
}

func TestIoctlDistinguishesDeviceFromFile(t *testing.T) {
	f := newFixture(t)

	// Handle 1 is the CON output stream.
	f.regs.SetBX(1)
	f.int21(0x44, 0)
	require.False(t, f.regs.CF())
	assert.NotZero(t, f.regs.DX()&0x8000)
	assert.NotZero(t, f.regs.DX()&0x0002)

	// A handle on a disk file reports no device bit.
	h, res := f.d.svc.Files.CreateFile(f.d.current(), `C:\X.TXT`, 0)
	require.True(t, res.OK())
	f.regs.SetBX(uint16(h))
	f.int21(0x44, 0)
	require.False(t, f.regs.CF())
	assert.Zero(t, f.regs.DX()&0x8000)
}

func TestSdaMirrorsCurrentPsp(t *testing.T) {
	f := newFixture(t)
	assert.EqualValues(t, rootPsp, f.mem.ReadU16(memview.Phys(0x0050, 0x10)))

	f.regs.SetBX(0x0777)
	f.int21(0x50, 0)
	assert.EqualValues(t, 0x0777, f.mem.ReadU16(memview.Phys(0x0050, 0x10)))
}

func TestVersionFromPsp(t *testing.T) {
	f := newFixture(t)
	f.int21(0x30, 0)
	assert.EqualValues(t, 5, f.regs.AL())
	assert.EqualValues(t, 0, f.regs.AH())
}

func TestCurrentDiskAndSelect(t *testing.T) {
	f := newFixture(t)
	f.int21(0x19, 0)
	assert.EqualValues(t, 'C'-'A', f.regs.AL())

	f.regs.SetDL('C' - 'A')
	f.int21(0x0E, 0)
	assert.EqualValues(t, 26, f.regs.AL())
}
