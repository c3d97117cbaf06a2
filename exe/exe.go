// Package exe implements reading DOS executable images.
//
// Two formats exist: flat .COM binaries, copied into memory verbatim, and
// .EXE images carrying the 28-byte MZ header, a relocation table, and a
// load module that begins after HeaderParagraphs paragraphs.
// Note: all WORD and DWORD values are stored in low/high byte order.
package exe

import (
	"bytes"
	"encoding/binary"
	"strings"

	"github.com/pkg/errors"
)

// Kind tags which loader path an image takes.
type Kind uint8

const (
	KindCom Kind = iota
	KindExe
)

func (k Kind) String() string {
	if k == KindExe {
		return "EXE"
	}
	return "COM"
}

// Header is the MZ executable header.
//
// Pages counts 512-byte pages of the whole file; BytesInLastPage is the
// number used in the final page, with 0 meaning the page is full.
type Header struct {
	Signature        [2]byte // "MZ", or the byte-swapped "ZM" some linkers emit
	BytesInLastPage  uint16
	Pages            uint16
	RelocationItems  uint16
	HeaderParagraphs uint16
	MinAlloc         uint16 // paragraphs needed beyond the load module
	MaxAlloc         uint16 // paragraphs wanted beyond the load module
	InitSS           uint16 // relative to the load segment
	InitSP           uint16
	Checksum         uint16
	InitIP           uint16
	InitCS           uint16 // relative to the load segment
	RelocTableOffset uint16
	Overlay          uint16
}

// Relocation is one entry of the MZ relocation table: the location, relative
// to the load module, of a segment word to be fixed up at load time.
type Relocation struct {
	Offset  uint16
	Segment uint16
}

// Image is a parsed executable ready for the process manager to place in
// guest memory.
type Image struct {
	Kind   Kind
	Header Header       // zero value for COM images
	Relocs []Relocation // empty for COM images
	Body   []byte       // the load module (COM: the whole file)
}

func hasMzSignature(sig [2]byte) bool {
	return (sig[0] == 'M' && sig[1] == 'Z') || (sig[0] == 'Z' && sig[1] == 'M')
}

// Read parses raw as a DOS executable. The filename decides the initial
// guess: a .COM extension forces the flat loader even when the first two
// bytes happen to spell MZ, and anything else without an MZ/ZM signature
// falls back to the flat loader too.
func Read(raw []byte, filename string) (*Image, error) {
	isCom := strings.HasSuffix(strings.ToUpper(filename), ".COM")
	if !isCom && len(raw) >= 2 && hasMzSignature([2]byte{raw[0], raw[1]}) {
		return readExe(raw)
	}
	return &Image{Kind: KindCom, Body: raw}, nil
}

func readExe(raw []byte) (*Image, error) {
	img := &Image{Kind: KindExe}

	if err := binary.Read(bytes.NewReader(raw), binary.LittleEndian, &img.Header); err != nil {
		return nil, errors.Wrap(err, "error reading the MZ header")
	}
	if !hasMzSignature(img.Header.Signature) {
		return nil, errors.Errorf("bad executable signature %q", img.Header.Signature)
	}

	if n := img.Header.RelocationItems; n > 0 {
		if int(img.Header.RelocTableOffset) > len(raw) {
			return nil, errors.Errorf("relocation table offset %#04x past end of image", img.Header.RelocTableOffset)
		}
		img.Relocs = make([]Relocation, n)
		if err := binary.Read(bytes.NewReader(raw[img.Header.RelocTableOffset:]), binary.LittleEndian, img.Relocs); err != nil {
			return nil, errors.Wrapf(err, "error reading %d relocation entries", n)
		}
	}

	start := int(img.Header.HeaderParagraphs) * 16
	end := int(img.Header.Pages) * 512
	if img.Header.BytesInLastPage > 0 {
		end = (int(img.Header.Pages)-1)*512 + int(img.Header.BytesInLastPage)
	}
	if end > len(raw) {
		end = len(raw)
	}
	if start > end {
		return nil, errors.Errorf("header claims %d paragraphs but image holds %d bytes", img.Header.HeaderParagraphs, end)
	}
	img.Body = raw[start:end]

	return img, nil
}

// BodyParagraphs is the size of the load module rounded up to paragraphs.
func (img *Image) BodyParagraphs() uint16 {
	return uint16((len(img.Body) + 15) / 16)
}

// AllocRange returns the (min, max) paragraph range the loader should
// reserve, including the 16 PSP paragraphs. A COM image, and an EXE whose
// header arithmetic overflows 16 bits, report max = 0 so the allocator's
// largest-free interpretation applies; MinAlloc = MaxAlloc = 0 reports
// (min, 0) the same way.
func (img *Image) AllocRange() (min, max uint16) {
	const pspParagraphs = 16
	base := uint32(img.BodyParagraphs()) + pspParagraphs

	if img.Kind == KindCom {
		return clamp16(base), 0
	}

	lo := base + uint32(img.Header.MinAlloc)
	hi := base + uint32(img.Header.MaxAlloc)
	if lo > 0xFFFF || hi > 0xFFFF {
		return clamp16(base), 0
	}
	if img.Header.MinAlloc == 0 && img.Header.MaxAlloc == 0 {
		return uint16(lo), 0
	}
	return uint16(lo), uint16(hi)
}

func clamp16(v uint32) uint16 {
	if v > 0xFFFF {
		return 0xFFFF
	}
	return uint16(v)
}
