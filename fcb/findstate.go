package fcb

import (
	"strings"

	"github.com/spf13/afero"

	"dosk/wildcard"
)

// FindState is the lazy cursor behind INT 21h/4Eh-4Fh (the FCB-based
// AH=11h/12h calls are not dispatched): one directory listing, read once at
// FindFirst time, walked forward by FindNext. At most one
// find is active at a time, so the kernel holds a single FindState
// rather than one per process.
type FindState struct {
	fs      afero.Fs
	dir     string // DOS-style directory this search covers, for diagnostics
	hostDir string
	pattern string // uppercased 8.3 pattern, e.g. "*.TXT"
	attrs   uint8  // SetDTA/FindFirst search-attribute mask (unused beyond
	// the normal/read-only/archive files every listing already returns;
	// volume-label and directory-attribute filtering are Non-goals)
	entries []string
	idx     int
}

// NewFindState lists hostDir once and returns a cursor over the entries
// matching pattern.
func NewFindState(fs afero.Fs, dosDir, hostDir, pattern string, attrs uint8) (*FindState, error) {
	infos, err := afero.ReadDir(fs, hostDir)
	if err != nil {
		return nil, err
	}
	names := make([]string, len(infos))
	for i, info := range infos {
		names[i] = info.Name()
	}
	return &FindState{
		fs:      fs,
		dir:     dosDir,
		hostDir: hostDir,
		pattern: strings.ToUpper(pattern),
		attrs:   attrs,
		entries: names,
	}, nil
}

// Next advances the cursor to the next entry matching the search pattern,
// returning its host-filesystem name, or ok=false once exhausted.
func (s *FindState) Next() (name string, ok bool) {
	for s.idx < len(s.entries) {
		e := s.entries[s.idx]
		s.idx++
		if wildcard.Matches(e, s.pattern) {
			return e, true
		}
	}
	return "", false
}

// Fs is the host filesystem the listing was taken from, and HostDir the
// directory within it, both needed by the caller to Stat each matched
// name for size/mtime before writing the DTA record.
func (s *FindState) Fs() afero.Fs    { return s.fs }
func (s *FindState) HostDir() string { return s.hostDir }
