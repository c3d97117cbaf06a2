// Package files implements the file manager: per-process job file tables
// backed by a process-wide system file table, character-device
// streams, and the find-first/find-next DTA iterator built on package fcb.
package files

import (
	"io"
	"os"
	"path"
	"strings"

	"github.com/spf13/afero"

	"dosk/clock"
	"dosk/codepage"
	"dosk/dos"
	"dosk/drivemap"
	"dosk/fcb"
	"dosk/memview"
	"dosk/psp"
)

// Mode is an INT 21h open-access mode: 0 read-only, 1 write-only, 2
// read/write, matching AL's low bits on AH=3Dh.
type Mode uint8

const (
	ModeRead Mode = iota
	ModeWrite
	ModeReadWrite
)

func osFlags(mode Mode) int {
	switch mode {
	case ModeRead:
		return os.O_RDONLY
	case ModeWrite:
		return os.O_WRONLY
	default:
		return os.O_RDWR
	}
}

type streamKind uint8

const (
	kindHostFile streamKind = iota
	kindDevice
)

// stream is a sum type: a record tagged by kind,
// carrying only the field that tag uses.
type stream struct {
	kind     streamKind
	hostFile afero.File
	device   DeviceID
}

type sftRecord struct {
	stream   stream
	mode     Mode
	refCount int
}

// Manager is the process-wide file manager: one System File Table shared by
// every process's Job File Table ("no manager holds another
// manager" rule: Manager takes psp.View parameters instead of holding
// a process manager reference).
type Manager struct {
	mem    memview.Bus
	codec  *codepage.Codec
	clk    *clock.Clock
	drives *drivemap.Map
	stdin  io.Reader
	stdout io.Writer

	sft    []*sftRecord
	dtaFor map[uint16]uint32 // PSP segment -> current DTA physical address
	find   *fcb.FindState    // at most one active find-first/find-next walk
}

// New returns a Manager wired to the given guest memory, drive map, and
// host console streams.
func New(mem memview.Bus, codec *codepage.Codec, clk *clock.Clock, drives *drivemap.Map, stdin io.Reader, stdout io.Writer) *Manager {
	return &Manager{
		mem:    mem,
		codec:  codec,
		clk:    clk,
		drives: drives,
		stdin:  stdin,
		stdout: stdout,
		dtaFor: make(map[uint16]uint32),
	}
}

func (m *Manager) allocSFT(s stream, mode Mode) int {
	for i, r := range m.sft {
		if r == nil {
			m.sft[i] = &sftRecord{stream: s, mode: mode, refCount: 1}
			return i
		}
	}
	m.sft = append(m.sft, &sftRecord{stream: s, mode: mode, refCount: 1})
	return len(m.sft) - 1
}

// FindNextFreeHandle returns the lowest unused JFT slot for p, or
// TooManyOpenFiles once all JFTSize entries are in use.
func (m *Manager) FindNextFreeHandle(p psp.View) (int, dos.Result) {
	for i := 0; i < psp.JFTSize; i++ {
		if p.JFTEntry(i) == psp.ClosedHandle {
			return i, dos.Ok(0)
		}
	}
	return 0, dos.Err(dos.TooManyOpenFiles)
}

func (m *Manager) sftFor(p psp.View, handle int) (*sftRecord, uint8, dos.Result) {
	if handle < 0 || handle >= psp.JFTSize {
		return nil, 0, dos.Err(dos.InvalidHandle)
	}
	idx := p.JFTEntry(handle)
	if idx == psp.ClosedHandle || int(idx) >= len(m.sft) || m.sft[idx] == nil {
		return nil, 0, dos.Err(dos.InvalidHandle)
	}
	return m.sft[idx], idx, dos.Ok(0)
}

// InitRootHandles wires up the fixed 0-4 handle set of the root PSP: CON
// (input), CON (output), CON (output, the traditional stderr alias), AUX,
// PRN. EXEC'd children get theirs through InheritHandles instead.
func (m *Manager) InitRootHandles(p psp.View) {
	p.SetJFTEntry(0, uint8(m.allocSFT(stream{kind: kindDevice, device: DeviceCON}, ModeRead)))
	p.SetJFTEntry(1, uint8(m.allocSFT(stream{kind: kindDevice, device: DeviceCON}, ModeWrite)))
	p.SetJFTEntry(2, uint8(m.allocSFT(stream{kind: kindDevice, device: DeviceCON}, ModeWrite)))
	p.SetJFTEntry(3, uint8(m.allocSFT(stream{kind: kindDevice, device: DeviceAUX}, ModeReadWrite)))
	p.SetJFTEntry(4, uint8(m.allocSFT(stream{kind: kindDevice, device: DevicePRN}, ModeWrite)))
	m.dtaFor[p.Base] = memview.Phys(p.Base, 0x80)
}

// InheritHandles copies parent's JFT into child (EXEC's default: every open
// handle is inherited) and bumps each shared SFT entry's reference count.
func (m *Manager) InheritHandles(parent, child psp.View) {
	for i := 0; i < psp.JFTSize; i++ {
		idx := parent.JFTEntry(i)
		child.SetJFTEntry(i, idx)
		if idx != psp.ClosedHandle && int(idx) < len(m.sft) && m.sft[idx] != nil {
			m.sft[idx].refCount++
		}
	}
	m.dtaFor[child.Base] = memview.Phys(child.Base, 0x80)
}

// OpenDevice opens one of the registered character devices directly (used
// both for an explicit device name passed to OpenFile and for programmatic
// access, e.g. redirecting a handle to CLOCK$).
func (m *Manager) OpenDevice(p psp.View, device DeviceID, mode Mode, alias string) (int, dos.Result) {
	handle, res := m.FindNextFreeHandle(p)
	if !res.OK() {
		return -1, res
	}
	idx := m.allocSFT(stream{kind: kindDevice, device: device}, mode)
	p.SetJFTEntry(handle, uint8(idx))
	return handle, dos.Ok(uint32(handle))
}

// OpenFile opens an existing file or device by DOS path/name (INT 21h/3Dh).
func (m *Manager) OpenFile(p psp.View, name string, mode Mode) (int, dos.Result) {
	if dev, ok := LookupDevice(name); ok {
		return m.OpenDevice(p, dev, mode, name)
	}
	handle, res := m.FindNextFreeHandle(p)
	if !res.OK() {
		return -1, res
	}
	fs, hostPath, rres := m.drives.Resolve(name, false)
	if !rres.OK() {
		return -1, rres
	}
	f, err := fs.OpenFile(hostPath, osFlags(mode), 0o644)
	if err != nil {
		return -1, dos.Err(dos.FileNotFound)
	}
	idx := m.allocSFT(stream{kind: kindHostFile, hostFile: f}, mode)
	p.SetJFTEntry(handle, uint8(idx))
	return handle, dos.Ok(uint32(handle))
}

// CreateFile creates (or truncates) a file by DOS path (INT 21h/3Ch). attrs
// is accepted but ignored: the host filesystem abstraction has no
// DOS-attribute byte of its own, and read-only/hidden/system bits are not
// recorded anywhere.
func (m *Manager) CreateFile(p psp.View, name string, attrs uint8) (int, dos.Result) {
	handle, res := m.FindNextFreeHandle(p)
	if !res.OK() {
		return -1, res
	}
	fs, hostPath, rres := m.drives.Resolve(name, true)
	if !rres.OK() {
		return -1, rres
	}
	f, err := fs.OpenFile(hostPath, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return -1, dos.Err(dos.AccessDenied)
	}
	idx := m.allocSFT(stream{kind: kindHostFile, hostFile: f}, ModeReadWrite)
	p.SetJFTEntry(handle, uint8(idx))
	return handle, dos.Ok(uint32(handle))
}

// Close releases handle (INT 21h/3Eh), closing the underlying host file
// only once its System File Table entry's reference count drops to zero.
func (m *Manager) Close(p psp.View, handle int) dos.Result {
	rec, idx, res := m.sftFor(p, handle)
	if !res.OK() {
		return res
	}
	p.SetJFTEntry(handle, psp.ClosedHandle)
	rec.refCount--
	if rec.refCount <= 0 {
		if rec.stream.kind == kindHostFile && rec.stream.hostFile != nil {
			_ = rec.stream.hostFile.Close()
		}
		m.sft[idx] = nil
	}
	return dos.Ok(0)
}

// CloseAllForPsp closes every handle p still has open, for process
// termination.
func (m *Manager) CloseAllForPsp(p psp.View) {
	for i := 0; i < psp.JFTSize; i++ {
		if p.JFTEntry(i) != psp.ClosedHandle {
			_ = m.Close(p, i)
		}
	}
	delete(m.dtaFor, p.Base)
}

// Read reads up to n bytes from handle (INT 21h/3Fh).
func (m *Manager) Read(p psp.View, handle int, n int) ([]byte, dos.Result) {
	rec, _, res := m.sftFor(p, handle)
	if !res.OK() {
		return nil, res
	}
	switch rec.stream.kind {
	case kindHostFile:
		buf := make([]byte, n)
		got, err := rec.stream.hostFile.Read(buf)
		if err != nil && err != io.EOF {
			return nil, dos.Err(dos.AccessDenied)
		}
		return buf[:got], dos.Ok(uint32(got))
	default:
		if rec.stream.device == DeviceCON {
			buf := make([]byte, n)
			got, _ := m.stdin.Read(buf)
			return buf[:got], dos.Ok(uint32(got))
		}
		return nil, dos.Ok(0) // AUX/PRN/CLOCK$ reads report EOF
	}
}

// Write writes data to handle (INT 21h/40h). A zero-length write truncates
// the file at its current position.
func (m *Manager) Write(p psp.View, handle int, data []byte) (int, dos.Result) {
	rec, _, res := m.sftFor(p, handle)
	if !res.OK() {
		return 0, res
	}
	switch rec.stream.kind {
	case kindHostFile:
		if len(data) == 0 {
			pos, err := rec.stream.hostFile.Seek(0, io.SeekCurrent)
			if err != nil {
				return 0, dos.Err(dos.AccessDenied)
			}
			if err := rec.stream.hostFile.Truncate(pos); err != nil {
				return 0, dos.Err(dos.AccessDenied)
			}
			return 0, dos.Ok(0)
		}
		got, err := rec.stream.hostFile.Write(data)
		if err != nil {
			return 0, dos.Err(dos.AccessDenied)
		}
		return got, dos.Ok(uint32(got))
	default:
		if rec.stream.device == DeviceCON || rec.stream.device == DevicePRN {
			got, _ := m.stdout.Write(data)
			return got, dos.Ok(uint32(got))
		}
		return len(data), dos.Ok(uint32(len(data))) // AUX/CLOCK$ writes are accepted and discarded
	}
}

// Seek repositions handle (INT 21h/42h). origin follows the LSEEK
// convention: 0 from start, 1 from current position, 2 from end.
func (m *Manager) Seek(p psp.View, handle int, origin int, offset int64) (uint32, dos.Result) {
	rec, _, res := m.sftFor(p, handle)
	if !res.OK() {
		return 0, res
	}
	if rec.stream.kind != kindHostFile {
		return 0, dos.Err(dos.InvalidHandle)
	}
	var whence int
	switch origin {
	case 1:
		whence = io.SeekCurrent
	case 2:
		whence = io.SeekEnd
	default:
		whence = io.SeekStart
	}
	pos, err := rec.stream.hostFile.Seek(offset, whence)
	if err != nil {
		return 0, dos.Err(dos.AccessDenied)
	}
	return uint32(pos), dos.Ok(uint32(pos))
}

// Duplicate allocates a new handle sharing src's System File Table entry
// (INT 21h/45h).
func (m *Manager) Duplicate(p psp.View, src int) (int, dos.Result) {
	rec, idx, res := m.sftFor(p, src)
	if !res.OK() {
		return -1, res
	}
	dst, res2 := m.FindNextFreeHandle(p)
	if !res2.OK() {
		return -1, res2
	}
	p.SetJFTEntry(dst, idx)
	rec.refCount++
	return dst, dos.Ok(uint32(dst))
}

// ForceDuplicate makes dst an alias of src's System File Table entry (INT
// 21h/46h), first closing whatever dst previously held.
func (m *Manager) ForceDuplicate(p psp.View, src, dst int) dos.Result {
	rec, idx, res := m.sftFor(p, src)
	if !res.OK() {
		return res
	}
	if p.JFTEntry(dst) != psp.ClosedHandle {
		_ = m.Close(p, dst)
	}
	p.SetJFTEntry(dst, idx)
	rec.refCount++
	return dos.Ok(0)
}

// SetDTA and GetDTA implement INT 21h/1Ah and the DTA half of 2Fh:
// each process has its own current Disk Transfer Area pointer, defaulting
// to its PSP's command-tail buffer at offset 0x80.
func (m *Manager) SetDTA(pspSegment uint16, addr uint32) { m.dtaFor[pspSegment] = addr }

func (m *Manager) GetDTA(pspSegment uint16) uint32 {
	if a, ok := m.dtaFor[pspSegment]; ok {
		return a
	}
	return memview.Phys(pspSegment, 0x80)
}

// Delete removes the file named by dosPath (INT 21h/41h).
func (m *Manager) Delete(dosPath string) dos.Result {
	fs, hostPath, res := m.drives.Resolve(dosPath, false)
	if !res.OK() {
		return res
	}
	if err := fs.Remove(hostPath); err != nil {
		return dos.Err(dos.AccessDenied)
	}
	return dos.Ok(0)
}

// Rename moves oldPath to newPath (INT 21h/56h). Both must land on the same
// mounted drive: cross-drive renames report NotSameDevice, as real DOS does.
func (m *Manager) Rename(oldPath, newPath string) dos.Result {
	fsOld, hostOld, res := m.drives.Resolve(oldPath, false)
	if !res.OK() {
		return res
	}
	fsNew, hostNew, res2 := m.drives.Resolve(newPath, true)
	if !res2.OK() {
		return res2
	}
	if fsOld != fsNew {
		return dos.Err(dos.NotSameDevice)
	}
	if err := fsOld.Rename(hostOld, hostNew); err != nil {
		return dos.Err(dos.AccessDenied)
	}
	return dos.Ok(0)
}

// Attributes returns the DOS attribute byte for dosPath (INT 21h/43h AL=0):
// directory or archive, with read-only folded in from the host permissions.
func (m *Manager) Attributes(dosPath string) (uint8, dos.Result) {
	fs, hostPath, res := m.drives.Resolve(dosPath, false)
	if !res.OK() {
		return 0, res
	}
	info, err := fs.Stat(hostPath)
	if err != nil {
		return 0, dos.Err(dos.FileNotFound)
	}
	var attr uint8
	if info.IsDir() {
		attr |= 0x10
	} else {
		attr |= 0x20
	}
	if info.Mode()&0o200 == 0 {
		attr |= 0x01
	}
	return attr, dos.Ok(uint32(attr))
}

// FileDateTime returns the packed modification date and time of the file
// behind handle (INT 21h/57h AL=0). Character devices have no timestamp and
// report InvalidHandle, matching what a real SFT-less device entry does.
func (m *Manager) FileDateTime(p psp.View, handle int) (date, tm uint16, res dos.Result) {
	rec, _, r := m.sftFor(p, handle)
	if !r.OK() {
		return 0, 0, r
	}
	if rec.stream.kind != kindHostFile {
		return 0, 0, dos.Err(dos.InvalidHandle)
	}
	info, err := rec.stream.hostFile.Stat()
	if err != nil {
		return 0, 0, dos.Err(dos.AccessDenied)
	}
	date, tm = clock.DirEntry(info.ModTime())
	return date, tm, dos.Ok(0)
}

// IsDevice reports whether handle refers to a character device, and which
// one; IOCTL's get-device-info (INT 21h/44h AL=0) needs the distinction.
func (m *Manager) IsDevice(p psp.View, handle int) (DeviceID, bool, dos.Result) {
	rec, _, res := m.sftFor(p, handle)
	if !res.OK() {
		return 0, false, res
	}
	if rec.stream.kind == kindDevice {
		return rec.stream.device, true, dos.Ok(0)
	}
	return 0, false, dos.Ok(0)
}

func splitSpec(spec string) (dir, pattern string) {
	if idx := strings.LastIndexAny(spec, `\/`); idx >= 0 {
		return spec[:idx+1], spec[idx+1:]
	}
	if len(spec) >= 2 && spec[1] == ':' {
		return spec[:2], spec[2:]
	}
	return "", spec
}

// FindFirst starts a directory search for dosSpec (INT 21h/4Eh), writing
// the first match into p's current DTA.
func (m *Manager) FindFirst(p psp.View, dosSpec string, attrs uint8) dos.Result {
	dir, pattern := splitSpec(dosSpec)
	fs, hostDir, _, res := m.drives.ListDir(dir)
	if !res.OK() {
		return res
	}
	fst, err := fcb.NewFindState(fs, dir, hostDir, pattern, attrs)
	if err != nil {
		return dos.Err(dos.PathNotFound)
	}
	m.find = fst
	return m.writeNextMatch(p)
}

// FindNext advances the active search (INT 21h/4Fh).
func (m *Manager) FindNext(p psp.View) dos.Result {
	if m.find == nil {
		return dos.Err(dos.NoMoreFiles)
	}
	return m.writeNextMatch(p)
}

func (m *Manager) writeNextMatch(p psp.View) dos.Result {
	name, ok := m.find.Next()
	if !ok {
		return dos.Err(dos.NoMoreFiles)
	}
	fs := m.find.Fs()
	info, err := fs.Stat(path.Join(m.find.HostDir(), name))
	if err != nil {
		return dos.Err(dos.FileNotFound)
	}
	var attr uint8
	if info.IsDir() {
		attr = 0x10
	}
	date, tm := clock.DirEntry(info.ModTime())
	addr := m.GetDTA(p.Base)
	fcb.WriteEntry(m.mem, m.codec, addr, attr, date, tm, uint32(info.Size()), strings.ToUpper(name))
	return dos.Ok(0)
}
