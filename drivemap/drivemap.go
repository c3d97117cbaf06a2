// Package drivemap implements the drive-letter to host-root mapping and
// DOS<->host path conversion with case recovery (the path
// resolution), backed by afero so the host filesystem is a swappable seam
// (a real directory in production, an in-memory filesystem in tests).
package drivemap

import (
	"path"
	"strings"

	"github.com/spf13/afero"

	"dosk/dos"
)

// Mount is one mounted drive: a host filesystem root and the DOS-side
// "current directory" guests see under CHDIR.
type Mount struct {
	Fs         afero.Fs
	CurrentDir string // DOS-style, e.g. `\GAME\DATA`, "" for root
}

// Map holds up to 26 mounted drives, A: through Z:, with exactly one
// current drive.
type Map struct {
	mounts  [26]*Mount
	current int // 0-25
}

// New returns an empty Map with A: current.
func New() *Map {
	return &Map{current: 0}
}

func letterIndex(letter byte) (int, bool) {
	l := letter
	if l >= 'a' && l <= 'z' {
		l -= 'a' - 'A'
	}
	if l < 'A' || l > 'Z' {
		return 0, false
	}
	return int(l - 'A'), true
}

// Mount attaches fs as the host root for letter (A-Z, case-insensitive).
func (m *Map) Mount(letter byte, fs afero.Fs) {
	i, ok := letterIndex(letter)
	if !ok {
		return
	}
	m.mounts[i] = &Mount{Fs: fs}
}

// MountAt is Mount plus an initial current directory.
func (m *Map) MountAt(letter byte, fs afero.Fs, currentDir string) {
	m.Mount(letter, fs)
	i, _ := letterIndex(letter)
	m.mounts[i].CurrentDir = currentDir
}

// Current returns the current drive letter.
func (m *Map) Current() byte { return byte('A' + m.current) }

// SetCurrent changes the current drive (INT 21h/0Eh), failing with
// InvalidDrive if the letter has no mount.
func (m *Map) SetCurrent(letter byte) dos.Result {
	i, ok := letterIndex(letter)
	if !ok || m.mounts[i] == nil {
		return dos.Err(dos.InvalidDrive)
	}
	m.current = i
	return dos.Ok(0)
}

// Mounted reports whether letter has an attached filesystem.
func (m *Map) Mounted(letter byte) bool {
	i, ok := letterIndex(letter)
	return ok && m.mounts[i] != nil
}

func (m *Map) mountFor(letter byte) (*Mount, bool) {
	i, ok := letterIndex(letter)
	if !ok {
		return nil, false
	}
	return m.mounts[i], m.mounts[i] != nil
}

// CurrentDir returns the DOS-style current directory of the given drive.
func (m *Map) CurrentDir(letter byte) (string, dos.Result) {
	mnt, ok := m.mountFor(letter)
	if !ok {
		return "", dos.Err(dos.InvalidDrive)
	}
	return mnt.CurrentDir, dos.Ok(0)
}

// splitDrive pulls a leading "X:" off a DOS path, defaulting to the
// current drive when absent.
func (m *Map) splitDrive(dosPath string) (letter byte, rest string) {
	if len(dosPath) >= 2 && dosPath[1] == ':' {
		return dosPath[0], dosPath[2:]
	}
	return m.Current(), dosPath
}

// Resolve converts a DOS path to a (host filesystem, host path) pair,
// recovering the on-disk case of every path segment via a case-insensitive
// directory scan. When forCreation is true and the final segment does not
// already exist, only the parent chain is resolved and the final segment
// is appended (uppercased) verbatim, so CreateFile can make a new node.
func (m *Map) Resolve(dosPath string, forCreation bool) (afero.Fs, string, dos.Result) {
	letter, rest := m.splitDrive(dosPath)
	mnt, ok := m.mountFor(letter)
	if !ok {
		return nil, "", dos.Err(dos.InvalidDrive)
	}

	rest = strings.ReplaceAll(rest, `\`, "/")
	if !strings.HasPrefix(rest, "/") && mnt.CurrentDir != "" {
		rest = strings.ReplaceAll(mnt.CurrentDir, `\`, "/") + "/" + rest
	}
	rest = path.Clean("/" + rest)

	segments := strings.Split(strings.Trim(rest, "/"), "/")
	if len(segments) == 1 && segments[0] == "" {
		return mnt.Fs, "/", dos.Ok(0)
	}

	hostPath := "/"
	for idx, seg := range segments {
		last := idx == len(segments)-1
		recovered, found := recoverCase(mnt.Fs, hostPath, seg)
		switch {
		case found:
			hostPath = joinHost(hostPath, recovered)
		case last && forCreation:
			hostPath = joinHost(hostPath, strings.ToUpper(seg))
		case last:
			return nil, "", dos.Err(dos.FileNotFound)
		default:
			return nil, "", dos.Err(dos.PathNotFound)
		}
	}
	return mnt.Fs, hostPath, dos.Ok(0)
}

func joinHost(dir, name string) string {
	if dir == "/" {
		return "/" + name
	}
	return dir + "/" + name
}

// recoverCase case-insensitively scans dir for an entry named name,
// returning its on-disk spelling.
func recoverCase(fs afero.Fs, dir, name string) (string, bool) {
	entries, err := afero.ReadDir(fs, dir)
	if err != nil {
		return "", false
	}
	for _, e := range entries {
		if strings.EqualFold(e.Name(), name) {
			return e.Name(), true
		}
	}
	return "", false
}

// MkDir creates a directory (INT 21h/39h).
func (m *Map) MkDir(dosPath string) dos.Result {
	fs, hostPath, res := m.Resolve(dosPath, true)
	if !res.OK() {
		return res
	}
	if err := fs.Mkdir(hostPath, 0o755); err != nil {
		return dos.Err(dos.PathNotFound)
	}
	return dos.Ok(0)
}

// RmDir removes a directory (INT 21h/3Ah), refusing the current directory
// of its drive.
func (m *Map) RmDir(dosPath string) dos.Result {
	letter, _ := m.splitDrive(dosPath)
	mnt, ok := m.mountFor(letter)
	if !ok {
		return dos.Err(dos.InvalidDrive)
	}
	fs, hostPath, res := m.Resolve(dosPath, false)
	if !res.OK() {
		return res
	}
	cur := strings.ReplaceAll(mnt.CurrentDir, `\`, "/")
	if cur == "" {
		cur = "/"
	}
	if strings.EqualFold(hostPath, cur) {
		return dos.Err(dos.RemoveCurrentDir)
	}
	if err := fs.Remove(hostPath); err != nil {
		return dos.Err(dos.AccessDenied)
	}
	return dos.Ok(0)
}

// ChDir changes the drive's current directory (INT 21h/3Bh). The stored
// form is the DOS spelling, backslash-separated from the drive root.
func (m *Map) ChDir(dosPath string) dos.Result {
	letter, _ := m.splitDrive(dosPath)
	mnt, ok := m.mountFor(letter)
	if !ok {
		return dos.Err(dos.InvalidDrive)
	}
	fs, hostPath, res := m.Resolve(dosPath, false)
	if !res.OK() {
		return res
	}
	info, err := fs.Stat(hostPath)
	if err != nil || !info.IsDir() {
		return dos.Err(dos.PathNotFound)
	}
	mnt.CurrentDir = strings.ReplaceAll(strings.TrimPrefix(hostPath, "/"), "/", `\`)
	if mnt.CurrentDir != "" {
		mnt.CurrentDir = `\` + mnt.CurrentDir
	}
	return dos.Ok(0)
}

// ListDir returns the host directory entries for a resolved DOS directory
// path, used by the find-first/find-next iterator in package fcb.
func (m *Map) ListDir(dosDir string) (afero.Fs, string, []string, dos.Result) {
	fs, hostPath, res := m.Resolve(dosDir, false)
	if !res.OK() {
		return nil, "", nil, res
	}
	entries, err := afero.ReadDir(fs, hostPath)
	if err != nil {
		return nil, "", nil, dos.Err(dos.PathNotFound)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return fs, hostPath, names, dos.Ok(0)
}

// NewScratchZ creates the Z: scratch drive: an in-memory filesystem seeded
// with a minimal AUTOEXEC.BAT.
func NewScratchZ() afero.Fs {
	fs := afero.NewMemMapFs()
	content := "@ECHO OFF\r\nSET PATH=Z:\\;C:\\\r\n\r\n"
	_ = afero.WriteFile(fs, "/AUTOEXEC.BAT", []byte(content), 0o644)
	return fs
}
