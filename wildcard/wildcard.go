// Package wildcard implements the DOS 8.3 filename-vs-pattern matcher: a
// pure function with the same name/extension-phase semantics DOSBox uses,
// including its one-extra-trailing-character sanity check on the pattern's
// extension buffer.
package wildcard

import "strings"

const (
	nameLen = 8
	extLen  = 3
)

// Matches reports whether filename (an arbitrary host or DOS name) matches
// pattern (a DOS 8.3 pattern, possibly containing '*'/'?'). Both are
// uppercased into fixed, space-padded buffers before comparison.
func Matches(filename, pattern string) bool {
	// Fast path: exact case-insensitive equality always matches, including
	// names a wildcard pass would reject (e.g. hidden names).
	if strings.EqualFold(filename, pattern) {
		return true
	}

	fName, fExt := split83(strings.ToUpper(filename))
	pName, pExt, pExtRaw := splitPattern(strings.ToUpper(pattern))

	if hasWildcard(pattern) && isHidden(filename) {
		return false
	}

	if len(pExtRaw) > extLen && pExtRaw[extLen] != '*' {
		return false
	}

	nameBuf := pad(fName, nameLen)
	patBuf := pad(pName, nameLen)
	extBuf := pad(fExt, extLen)
	patExtBuf := pad(pExt, extLen)

	for i := 0; i < nameLen; i++ {
		switch patBuf[i] {
		case '*':
			return matchExtension(extBuf, patExtBuf)
		case '?':
			continue
		default:
			if patBuf[i] != nameBuf[i] {
				return false
			}
		}
	}

	return matchExtension(extBuf, patExtBuf)
}

func matchExtension(extBuf, patExtBuf string) bool {
	for i := 0; i < extLen; i++ {
		switch patExtBuf[i] {
		case '*':
			return true
		case '?':
			continue
		default:
			if patExtBuf[i] != extBuf[i] {
				return false
			}
		}
	}
	return true
}

func hasWildcard(pattern string) bool {
	return strings.ContainsAny(pattern, "*?")
}

// isHidden reports whether name looks like a dotfile the wildcard phase
// should never match: length >= 5, starts with '.', and isn't "." or "..".
func isHidden(name string) bool {
	return len(name) >= 5 && name[0] == '.' && name != "." && name != ".."
}

// split83 splits an arbitrary uppercased name into its 8.3 name/extension
// parts on the last '.'.
func split83(name string) (base, ext string) {
	if i := strings.LastIndexByte(name, '.'); i >= 0 {
		return name[:i], name[i+1:]
	}
	return name, ""
}

// splitPattern splits an uppercased pattern and also returns the raw
// (unpadded, untruncated) extension part, used for the DOSBox-compatible
// sanity check on overlong extensions.
func splitPattern(pattern string) (base, ext, rawExt string) {
	base, ext = split83(pattern)
	return base, ext, ext
}

func pad(s string, n int) string {
	if len(s) >= n {
		return s[:n]
	}
	return s + strings.Repeat(" ", n-len(s))
}
