package exe

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// buildExe assembles a minimal MZ image: header, relocation table, body.
func buildExe(t *testing.T, h Header, relocs []Relocation, body []byte) []byte {
	t.Helper()

	const headerParagraphs = 4 // 64 bytes: header + room for a few relocations
	h.Signature = [2]byte{'M', 'Z'}
	h.HeaderParagraphs = headerParagraphs
	h.RelocationItems = uint16(len(relocs))
	h.RelocTableOffset = 28

	total := headerParagraphs*16 + len(body)
	h.Pages = uint16((total + 511) / 512)
	h.BytesInLastPage = uint16(total % 512)

	buf := make([]byte, headerParagraphs*16)
	w := &sliceWriter{buf: buf}
	require.NoError(t, binary.Write(w, binary.LittleEndian, h))
	w.pos = 28
	require.NoError(t, binary.Write(w, binary.LittleEndian, relocs))
	return append(buf, body...)
}

type sliceWriter struct {
	buf []byte
	pos int
}

func (s *sliceWriter) Write(p []byte) (int, error) {
	n := copy(s.buf[s.pos:], p)
	s.pos += n
	return n, nil
}

func TestReadComByExtension(t *testing.T) {
	// Even an MZ signature is ignored when the name says .COM.
	raw := []byte{'M', 'Z', 0xC3}
	img, err := Read(raw, `C:\WEIRD.COM`)
	require.NoError(t, err)
	assert.Equal(t, KindCom, img.Kind)
	assert.Equal(t, raw, img.Body)
}

func TestReadFlatWithoutSignature(t *testing.T) {
	raw := []byte{0xB4, 0x4C, 0xB0, 0x00, 0xCD, 0x21}
	img, err := Read(raw, `C:\HELLO.BIN`)
	require.NoError(t, err)
	assert.Equal(t, KindCom, img.Kind)
}

func TestReadExeHeaderAndBody(t *testing.T) {
	body := make([]byte, 100)
	raw := buildExe(t, Header{InitIP: 0x10, InitCS: 2, InitSS: 4, InitSP: 0x100, MinAlloc: 8, MaxAlloc: 32}, nil, body)

	img, err := Read(raw, `C:\PROG.EXE`)
	require.NoError(t, err)
	assert.Equal(t, KindExe, img.Kind)
	assert.Len(t, img.Body, 100)
	assert.EqualValues(t, 0x10, img.Header.InitIP)
	assert.EqualValues(t, 2, img.Header.InitCS)
}

func TestReadExeRelocations(t *testing.T) {
	relocs := []Relocation{{Offset: 0x0002, Segment: 0x0000}, {Offset: 0x0010, Segment: 0x0001}}
	raw := buildExe(t, Header{}, relocs, make([]byte, 48))

	img, err := Read(raw, `C:\PROG.EXE`)
	require.NoError(t, err)
	require.Len(t, img.Relocs, 2)
	assert.Equal(t, relocs, img.Relocs)
}

func TestAllocRangeRegular(t *testing.T) {
	raw := buildExe(t, Header{MinAlloc: 8, MaxAlloc: 32}, nil, make([]byte, 160))
	img, err := Read(raw, `C:\PROG.EXE`)
	require.NoError(t, err)

	min, max := img.AllocRange()
	assert.EqualValues(t, 10+16+8, min) // 10 body paragraphs + PSP + MinAlloc
	assert.EqualValues(t, 10+16+32, max)
}

func TestAllocRangeMaxAllocOverflow(t *testing.T) {
	raw := buildExe(t, Header{MinAlloc: 0, MaxAlloc: 0xFFFF}, nil, make([]byte, 160))
	img, err := Read(raw, `C:\PROG.EXE`)
	require.NoError(t, err)

	min, max := img.AllocRange()
	assert.EqualValues(t, 10+16, min)
	assert.Zero(t, max) // overflow defers to the largest free block
}

func TestAllocRangeComTakesLargestBlock(t *testing.T) {
	img, err := Read(make([]byte, 17), `C:\HELLO.COM`)
	require.NoError(t, err)

	min, max := img.AllocRange()
	assert.EqualValues(t, 2+16, min)
	assert.Zero(t, max)
}

func TestReadExeTruncatedHeader(t *testing.T) {
	_, err := Read([]byte{'M', 'Z', 0x10}, `C:\BAD.EXE`)
	require.Error(t, err)
}
