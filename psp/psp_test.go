package psp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dosk/memview"
)

func TestNewPspExitSequenceAndDefaults(t *testing.T) {
	mem := memview.New(1 << 20)
	v := New(mem, 0x0060)

	assert.Equal(t, []byte{0xCD, 0x20}, mem.ReadBytes(memview.Phys(0x0060, 0), 2))
	for i := 0; i < JFTSize; i++ {
		assert.EqualValues(t, ClosedHandle, v.JFTEntry(i))
	}
	assert.EqualValues(t, JFTSize, v.MaxOpenFiles())
	major, minor := v.DosVersion()
	assert.EqualValues(t, 5, major)
	assert.EqualValues(t, 0, minor)
}

func TestCommandTailRoundTrip(t *testing.T) {
	mem := memview.New(1 << 20)
	v := New(mem, 0x0060)
	v.SetCommandTail(" HELLO.TXT")
	tail := v.CommandTail()
	assert.Equal(t, " HELLO.TXT", string(tail))
	// CR terminator immediately follows the tail bytes.
	assert.EqualValues(t, 0x0D, mem.ReadU8(v.addr(offCommandTail)+1+uint32(len(tail))))
}

func TestFarPtrRoundTrip(t *testing.T) {
	mem := memview.New(1 << 20)
	v := New(mem, 0x0060)
	p := FarPtr{Offset: 0x1234, Segment: 0x5678}
	v.SetTerminateAddress(p)
	assert.Equal(t, p, v.TerminateAddress())
}

func TestShellPspIsOwnParent(t *testing.T) {
	mem := memview.New(1 << 20)
	stack := NewShell(mem, 0x0060, 0x0059)
	require.Equal(t, uint16(0x0060), stack.Current())
	assert.True(t, stack.IsRoot(0x0060))
	assert.Equal(t, uint16(0x0060), stack.CurrentView().ParentPspSegment())
}

func TestPushPopChildPsp(t *testing.T) {
	mem := memview.New(1 << 20)
	stack := NewShell(mem, 0x0060, 0x0059)
	stack.Push(0x0200)
	assert.Equal(t, uint16(0x0200), stack.Current())

	popped, ok := stack.Pop()
	assert.True(t, ok)
	assert.Equal(t, uint16(0x0200), popped)
	assert.Equal(t, uint16(0x0060), stack.Current())
}

func TestPopRootFails(t *testing.T) {
	mem := memview.New(1 << 20)
	stack := NewShell(mem, 0x0060, 0x0059)
	_, ok := stack.Pop()
	assert.False(t, ok)
	assert.Equal(t, uint16(0x0060), stack.Current())
}
