// Package fcb implements legacy FCB name parsing (INT 21h/29h) and the
// find-first/find-next directory iterator that deposits results into the
// guest's Disk Transfer Area.
package fcb

import (
	"dosk/memview"
)

// Control-byte bits for ParseFCB.
const (
	CtrlSkipSeparators byte = 1 << 0
	CtrlPreserveDrive  byte = 1 << 1
	CtrlPreserveName   byte = 1 << 2
	CtrlPreserveExt    byte = 1 << 3
)

// unextendedFCBSize is the size, in bytes, of a standard (non-extended)
// FCB: drive(1) + name(8) + ext(3) + current block(2) + record size(2) +
// file size(4) + date(2) + time(2) + reserved(8) + record(1) + random(4).
const unextendedFCBSize = 37

func isSeparator(c byte) bool {
	switch c {
	case ' ', '\t', '\\', '/', ':', ';', ',', '=':
		return true
	}
	return false
}

func upper(c byte) byte {
	if c >= 'a' && c <= 'z' {
		return c - ('a' - 'A')
	}
	return c
}

// ParseResult reports what ParseFCB did, per INT 21h/29h's AL convention:
// AL=1 if any wildcard was present, AL=0 otherwise, AL=0xFF if the source
// named an invalid drive letter.
type ParseResult struct {
	Consumed     int  // bytes of src consumed
	HadWildcard  bool
	InvalidDrive bool
}

// ParseFCB parses src (already positioned at the candidate filename,
// skipping separators first if CtrlSkipSeparators is set) into the FCB at
// fcbAddr, honoring the preserve-field bits.
func ParseFCB(mem memview.Bus, control byte, src string, fcbAddr uint32) ParseResult {
	if control&(CtrlPreserveDrive|CtrlPreserveName|CtrlPreserveExt) == 0 {
		mem.WriteBytes(fcbAddr, make([]byte, unextendedFCBSize))
	}

	i := 0
	if control&CtrlSkipSeparators != 0 {
		for i < len(src) && isSeparator(src[i]) {
			i++
		}
	}

	var drive byte
	if i+1 < len(src) && src[i+1] == ':' {
		d := upper(src[i])
		if d < 'A' || d > 'Z' {
			return ParseResult{Consumed: i, InvalidDrive: true}
		}
		drive = d - 'A' + 1
		i += 2
	}
	if control&CtrlPreserveDrive == 0 {
		mem.WriteU8(fcbAddr, drive)
	}

	wildcard := false
	name := [8]byte{' ', ' ', ' ', ' ', ' ', ' ', ' ', ' '}
	pos := 0
	for i < len(src) && src[i] != '.' && !isSeparator(src[i]) {
		c := src[i]
		switch {
		case c == '*':
			for pos < 8 {
				name[pos] = '?'
				pos++
			}
			wildcard = true
			i++
			for i < len(src) && src[i] != '.' && !isSeparator(src[i]) {
				i++
			}
		case c == '?':
			if pos < 8 {
				name[pos] = '?'
				pos++
			}
			wildcard = true
			i++
		default:
			if pos < 8 {
				name[pos] = upper(c)
				pos++
			}
			i++
		}
	}
	if control&CtrlPreserveName == 0 {
		mem.WriteBytes(fcbAddr+1, name[:])
	}

	ext := [3]byte{' ', ' ', ' '}
	if i < len(src) && src[i] == '.' {
		i++
		epos := 0
		for i < len(src) && !isSeparator(src[i]) {
			c := src[i]
			switch {
			case c == '*':
				for epos < 3 {
					ext[epos] = '?'
					epos++
				}
				wildcard = true
				i++
				for i < len(src) && !isSeparator(src[i]) {
					i++
				}
			case c == '?':
				if epos < 3 {
					ext[epos] = '?'
					epos++
				}
				wildcard = true
				i++
			default:
				if epos < 3 {
					ext[epos] = upper(c)
					epos++
				}
				i++
			}
		}
	}
	if control&CtrlPreserveExt == 0 {
		mem.WriteBytes(fcbAddr+9, ext[:])
	}

	return ParseResult{Consumed: i, HadWildcard: wildcard}
}

// Name8 and Ext3 return the (space-padded) name/extension fields of an
// already-populated FCB, for building a search pattern or a diagnostic
// directory listing.
func Name8(mem memview.Bus, fcbAddr uint32) string {
	return string(mem.ReadBytes(fcbAddr+1, 8))
}

func Ext3(mem memview.Bus, fcbAddr uint32) string {
	return string(mem.ReadBytes(fcbAddr+9, 3))
}
