package intr

import (
	"time"

	"dosk/dos"
	"dosk/fcb"
	"dosk/files"
	"dosk/memview"
	"dosk/process"
	"dosk/registers"
)

func (d *Dispatcher) terminateZero(regs registers.Interface) dos.Result {
	return d.svc.Procs.Terminate(regs, 0, process.TermNormal)
}

func (d *Dispatcher) displayChar(regs registers.Interface) dos.Result {
	_, _ = d.svc.Stdout.Write([]byte(d.svc.Codec.Decode([]byte{regs.DL()})))
	regs.SetAL(regs.DL())
	return dos.Ok(0)
}

func (d *Dispatcher) consoleInputNoEcho(regs registers.Interface) dos.Result {
	buf := make([]byte, 1)
	n, _ := d.svc.Stdin.Read(buf)
	if n == 0 {
		buf[0] = 0x1A // end-of-input reads as Ctrl-Z
	}
	regs.SetAL(buf[0])
	return dos.Ok(0)
}

// printString writes the '$'-terminated string at DS:DX (INT 21h/09h).
func (d *Dispatcher) printString(regs registers.Interface) dos.Result {
	addr := d.dsdx(regs)
	var raw []byte
	for i := uint32(0); i < 0xFFFF; i++ {
		b := d.svc.Mem.ReadU8(addr + i)
		if b == '$' {
			break
		}
		raw = append(raw, b)
	}
	_, _ = d.svc.Stdout.Write([]byte(d.svc.Codec.Decode(raw)))
	regs.SetAL('$')
	return dos.Ok(0)
}

// bufferedInput reads a line into the DS:DX buffer (INT 21h/0Ah): byte 0
// holds the capacity, byte 1 receives the count, the text follows, CR last.
func (d *Dispatcher) bufferedInput(regs registers.Interface) dos.Result {
	addr := d.dsdx(regs)
	capacity := int(d.svc.Mem.ReadU8(addr))
	if capacity == 0 {
		return dos.Ok(0)
	}

	var line []byte
	one := make([]byte, 1)
	for len(line) < capacity-1 {
		n, err := d.svc.Stdin.Read(one)
		if n == 0 || err != nil || one[0] == '\n' || one[0] == '\r' {
			break
		}
		line = append(line, one[0])
	}
	d.svc.Mem.WriteU8(addr+1, uint8(len(line)))
	d.svc.Mem.WriteBytes(addr+2, line)
	d.svc.Mem.WriteU8(addr+2+uint32(len(line)), 0x0D)
	return dos.Ok(0)
}

func (d *Dispatcher) checkInputStatus(regs registers.Interface) dos.Result {
	// Host stdin is blocking; there is no portable peek, so the status
	// report is always "no character ready".
	regs.SetAL(0)
	return dos.Ok(0)
}

// flushAndInvoke clears the type-ahead buffer (nothing to clear here) and
// chains to the input function named in AL (INT 21h/0Ch).
func (d *Dispatcher) flushAndInvoke(regs registers.Interface) dos.Result {
	switch regs.AL() {
	case 0x01, 0x06, 0x07, 0x08, 0x0A:
		sub := d.services[regs.AL()]
		if sub == nil {
			return d.consoleInputNoEcho(regs)
		}
		return sub(regs)
	}
	regs.SetAL(0)
	return dos.Ok(0)
}

func (d *Dispatcher) selectDisk(regs registers.Interface) dos.Result {
	_ = d.svc.Drives.SetCurrent('A' + regs.DL())
	regs.SetAL(d.svc.DriveCount)
	return dos.Ok(0)
}

func (d *Dispatcher) currentDisk(regs registers.Interface) dos.Result {
	regs.SetAL(d.svc.Drives.Current() - 'A')
	return dos.Ok(0)
}

func (d *Dispatcher) setDta(regs registers.Interface) dos.Result {
	d.svc.Files.SetDTA(d.svc.Psps.Current(), d.dsdx(regs))
	return dos.Ok(0)
}

func (d *Dispatcher) getDta(regs registers.Interface) dos.Result {
	segment, offset := memview.Unphys(d.svc.Files.GetDTA(d.svc.Psps.Current()))
	regs.SetES(segment)
	regs.SetBX(offset)
	return dos.Ok(0)
}

func (d *Dispatcher) setInterruptVector(regs registers.Interface) dos.Result {
	base := uint32(regs.AL()) * 4
	d.svc.Mem.WriteU16(base, regs.DX())
	d.svc.Mem.WriteU16(base+2, regs.DS())
	return dos.Ok(0)
}

func (d *Dispatcher) getInterruptVector(regs registers.Interface) dos.Result {
	base := uint32(regs.AL()) * 4
	regs.SetBX(d.svc.Mem.ReadU16(base))
	regs.SetES(d.svc.Mem.ReadU16(base + 2))
	return dos.Ok(0)
}

// parseFilename implements INT 21h/29h: parse the string at DS:SI into the
// FCB at ES:DI under the AL control byte.
func (d *Dispatcher) parseFilename(regs registers.Interface) dos.Result {
	src := d.svc.Codec.ReadCString(d.svc.Mem, memview.Phys(regs.DS(), regs.SI()), 128)
	r := fcb.ParseFCB(d.svc.Mem, regs.AL(), src, memview.Phys(regs.ES(), regs.DI()))
	switch {
	case r.InvalidDrive:
		regs.SetAL(0xFF)
	case r.HadWildcard:
		regs.SetAL(1)
	default:
		regs.SetAL(0)
	}
	regs.SetSI(regs.SI() + uint16(r.Consumed))
	return dos.Ok(0)
}

func (d *Dispatcher) getDate(regs registers.Interface) dos.Result {
	now := d.svc.Clock.Now()
	regs.SetCX(uint16(now.Year()))
	regs.SetDH(uint8(now.Month()))
	regs.SetDL(uint8(now.Day()))
	regs.SetAL(uint8(now.Weekday()))
	return dos.Ok(0)
}

func (d *Dispatcher) setDate(regs registers.Interface) dos.Result {
	year, month, day := int(regs.CX()), int(regs.DH()), int(regs.DL())
	if year < 1980 || year > 2107 || month < 1 || month > 12 || day < 1 || day > 31 {
		regs.SetAL(0xFF)
		return dos.Ok(0)
	}
	d.svc.Clock.SetDate(year, time.Month(month), day)
	regs.SetAL(0)
	return dos.Ok(0)
}

func (d *Dispatcher) getTime(regs registers.Interface) dos.Result {
	now := d.svc.Clock.Now()
	regs.SetCH(uint8(now.Hour()))
	regs.SetCL(uint8(now.Minute()))
	regs.SetDH(uint8(now.Second()))
	regs.SetDL(uint8(now.Nanosecond() / 10_000_000))
	return dos.Ok(0)
}

func (d *Dispatcher) setTime(regs registers.Interface) dos.Result {
	hour, minute := int(regs.CH()), int(regs.CL())
	second, hundredths := int(regs.DH()), int(regs.DL())
	if hour > 23 || minute > 59 || second > 59 || hundredths > 99 {
		regs.SetAL(0xFF)
		return dos.Ok(0)
	}
	d.svc.Clock.SetTime(hour, minute, second, hundredths)
	regs.SetAL(0)
	return dos.Ok(0)
}

func (d *Dispatcher) getVersion(regs registers.Interface) dos.Result {
	major, minor := d.current().DosVersion()
	regs.SetAL(major)
	regs.SetAH(minor)
	regs.SetBX(0)
	regs.SetCX(0)
	return dos.Ok(0)
}

func (d *Dispatcher) keepResident(regs registers.Interface) dos.Result {
	return d.svc.Procs.KeepResident(regs, regs.AL(), regs.DX())
}

func (d *Dispatcher) ctrlBreakFlag(regs registers.Interface) dos.Result {
	switch regs.AL() {
	case 0:
		regs.SetDL(0)
	case 1:
		// Accepted and ignored: there is no keyboard interrupt to extend
		// break checking onto.
	default:
		return dos.Err(dos.FunctionInvalid)
	}
	return dos.Ok(0)
}

// diskFreeSpace reports fixed, plausible geometry (INT 21h/36h): mounted
// drives have no FAT to measure, so the numbers only need to be non-zero
// and internally consistent.
func (d *Dispatcher) diskFreeSpace(regs registers.Interface) dos.Result {
	drive := regs.DL()
	letter := d.svc.Drives.Current()
	if drive != 0 {
		letter = 'A' + drive - 1
	}
	if !d.svc.Drives.Mounted(letter) {
		regs.SetAX(0xFFFF)
		return dos.Ok(0)
	}
	regs.SetAX(8)      // sectors per cluster
	regs.SetBX(0x1000) // free clusters
	regs.SetCX(512)    // bytes per sector
	regs.SetDX(0x4000) // total clusters
	return dos.Ok(0)
}

func (d *Dispatcher) switchChar(regs registers.Interface) dos.Result {
	switch regs.AL() {
	case 0:
		regs.SetDL('/')
	case 1:
		// Accepted and ignored.
	default:
		return dos.Err(dos.FunctionInvalid)
	}
	return dos.Ok(0)
}

// countryInfo fills the DS:DX buffer with the US-country table
// (INT 21h/38h, get only).
func (d *Dispatcher) countryInfo(regs registers.Interface) dos.Result {
	addr := d.dsdx(regs)
	info := make([]byte, 34)
	info[0] = 0          // date format: MDY
	copy(info[2:], "$")  // currency symbol
	copy(info[7:], ",")  // thousands separator
	copy(info[9:], ".")  // decimal separator
	copy(info[11:], "-") // date separator
	copy(info[13:], ":") // time separator
	info[16] = 2         // currency decimal digits
	d.svc.Mem.WriteBytes(addr, info)
	regs.SetBX(1)
	return dos.Ok(0)
}

func (d *Dispatcher) mkDir(regs registers.Interface) dos.Result {
	return d.svc.Drives.MkDir(d.readPath(regs))
}

func (d *Dispatcher) rmDir(regs registers.Interface) dos.Result {
	return d.svc.Drives.RmDir(d.readPath(regs))
}

func (d *Dispatcher) chDir(regs registers.Interface) dos.Result {
	return d.svc.Drives.ChDir(d.readPath(regs))
}

func (d *Dispatcher) createFile(regs registers.Interface) dos.Result {
	handle, res := d.svc.Files.CreateFile(d.current(), d.readPath(regs), uint8(regs.CX()))
	if !res.OK() {
		return res
	}
	regs.SetAX(uint16(handle))
	return res
}

func (d *Dispatcher) openFile(regs registers.Interface) dos.Result {
	mode := files.Mode(regs.AL() & 0x03)
	if regs.AL()&0x03 == 0x03 {
		return dos.Err(dos.AccessCodeInvalid)
	}
	handle, res := d.svc.Files.OpenFile(d.current(), d.readPath(regs), mode)
	if !res.OK() {
		return res
	}
	regs.SetAX(uint16(handle))
	return res
}

func (d *Dispatcher) closeFile(regs registers.Interface) dos.Result {
	return d.svc.Files.Close(d.current(), int(regs.BX()))
}

func (d *Dispatcher) readFile(regs registers.Interface) dos.Result {
	data, res := d.svc.Files.Read(d.current(), int(regs.BX()), int(regs.CX()))
	if !res.OK() {
		return res
	}
	d.svc.Mem.WriteBytes(d.dsdx(regs), data)
	regs.SetAX(uint16(len(data)))
	return res
}

func (d *Dispatcher) writeFile(regs registers.Interface) dos.Result {
	data := d.svc.Mem.ReadBytes(d.dsdx(regs), int(regs.CX()))
	n, res := d.svc.Files.Write(d.current(), int(regs.BX()), data)
	if !res.OK() {
		return res
	}
	regs.SetAX(uint16(n))
	return res
}

func (d *Dispatcher) deleteFile(regs registers.Interface) dos.Result {
	return d.svc.Files.Delete(d.readPath(regs))
}

func (d *Dispatcher) seekFile(regs registers.Interface) dos.Result {
	offset := int64(int32(uint32(regs.CX())<<16 | uint32(regs.DX())))
	pos, res := d.svc.Files.Seek(d.current(), int(regs.BX()), int(regs.AL()), offset)
	if !res.OK() {
		return res
	}
	regs.SetDX(uint16(pos >> 16))
	regs.SetAX(uint16(pos))
	return res
}

func (d *Dispatcher) fileAttributes(regs registers.Interface) dos.Result {
	switch regs.AL() {
	case 0:
		attr, res := d.svc.Files.Attributes(d.readPath(regs))
		if !res.OK() {
			return res
		}
		regs.SetCX(uint16(attr))
		return res
	case 1:
		// The host filesystem has no DOS attribute byte; setting is
		// accepted so installers that chmod their files keep going.
		_, res := d.svc.Files.Attributes(d.readPath(regs))
		return res
	}
	return dos.Err(dos.FunctionInvalid)
}

func (d *Dispatcher) ioctl(regs registers.Interface) dos.Result {
	switch regs.AL() {
	case 0x00: // get device information
		device, isDevice, res := d.svc.Files.IsDevice(d.current(), int(regs.BX()))
		if !res.OK() {
			return res
		}
		if isDevice {
			info := uint16(0x80C0) // character device, supports fast output
			if device == files.DeviceCON {
				info |= 0x0003 // standard input + standard output bits
			}
			regs.SetDX(info)
		} else {
			regs.SetDX(uint16(d.svc.Drives.Current() - 'A'))
		}
		return res
	case 0x01: // set device information: accepted, nothing to store
		return dos.Ok(0)
	case 0x06: // input status
		regs.SetAL(0xFF)
		return dos.Ok(0)
	case 0x07: // output status
		regs.SetAL(0xFF)
		return dos.Ok(0)
	case 0x08: // removable-media check: mounted drives are fixed
		regs.SetAX(1)
		return dos.Ok(0)
	case 0x0E: // logical drive map: one logical drive per letter
		regs.SetAL(0)
		return dos.Ok(0)
	}
	return dos.Err(dos.FunctionInvalid)
}

func (d *Dispatcher) duplicateHandle(regs registers.Interface) dos.Result {
	handle, res := d.svc.Files.Duplicate(d.current(), int(regs.BX()))
	if !res.OK() {
		return res
	}
	regs.SetAX(uint16(handle))
	return res
}

func (d *Dispatcher) forceDuplicateHandle(regs registers.Interface) dos.Result {
	return d.svc.Files.ForceDuplicate(d.current(), int(regs.BX()), int(regs.CX()))
}

// currentDirectory writes the drive's current directory, without drive
// letter or leading backslash, as ASCIIZ at DS:SI (INT 21h/47h).
func (d *Dispatcher) currentDirectory(regs registers.Interface) dos.Result {
	letter := d.svc.Drives.Current()
	if regs.DL() != 0 {
		letter = 'A' + regs.DL() - 1
	}
	dir, res := d.svc.Drives.CurrentDir(letter)
	if !res.OK() {
		return res
	}
	for len(dir) > 0 && dir[0] == '\\' {
		dir = dir[1:]
	}
	d.svc.Codec.WriteCString(d.svc.Mem, memview.Phys(regs.DS(), regs.SI()), dir, 64)
	regs.SetAX(0x0100)
	return res
}

func (d *Dispatcher) allocateMemory(regs registers.Interface) dos.Result {
	segment, res := d.svc.Alloc.Allocate(regs.BX(), d.svc.Psps.Current())
	if !res.OK() {
		regs.SetBX(uint16(res.Value)) // largest free block
		return res
	}
	regs.SetAX(segment)
	return res
}

func (d *Dispatcher) freeMemory(regs registers.Interface) dos.Result {
	return d.svc.Alloc.Free(regs.ES())
}

func (d *Dispatcher) resizeMemory(regs registers.Interface) dos.Result {
	res := d.svc.Alloc.Resize(regs.ES(), regs.BX())
	if !res.OK() {
		regs.SetBX(uint16(res.Value))
	}
	return res
}

func (d *Dispatcher) loadAndExecute(regs registers.Interface) dos.Result {
	if regs.AL() != 0 {
		return dos.Err(dos.FunctionInvalid)
	}
	path := d.readPath(regs)
	return d.svc.Procs.Exec(regs, path, memview.Phys(regs.ES(), regs.BX()), "")
}

func (d *Dispatcher) terminateWithCode(regs registers.Interface) dos.Result {
	return d.svc.Procs.Terminate(regs, regs.AL(), process.TermNormal)
}

func (d *Dispatcher) childExitCode(regs registers.Interface) dos.Result {
	code, kind := d.svc.Procs.LastExit()
	regs.SetAL(code)
	regs.SetAH(uint8(kind))
	return dos.Ok(0)
}

func (d *Dispatcher) findFirst(regs registers.Interface) dos.Result {
	return d.svc.Files.FindFirst(d.current(), d.readPath(regs), uint8(regs.CX()))
}

func (d *Dispatcher) findNext(regs registers.Interface) dos.Result {
	return d.svc.Files.FindNext(d.current())
}

func (d *Dispatcher) setCurrentPsp(regs registers.Interface) dos.Result {
	d.svc.Psps.SetCurrent(regs.BX())
	return dos.Ok(0)
}

func (d *Dispatcher) getCurrentPsp(regs registers.Interface) dos.Result {
	regs.SetBX(d.svc.Psps.Current())
	return dos.Ok(0)
}

func (d *Dispatcher) renameFile(regs registers.Interface) dos.Result {
	oldPath := d.readPath(regs)
	newPath := d.svc.Codec.ReadCString(d.svc.Mem, memview.Phys(regs.ES(), regs.DI()), 128)
	return d.svc.Files.Rename(oldPath, newPath)
}

func (d *Dispatcher) fileDateTime(regs registers.Interface) dos.Result {
	switch regs.AL() {
	case 0:
		date, tm, res := d.svc.Files.FileDateTime(d.current(), int(regs.BX()))
		if !res.OK() {
			return res
		}
		regs.SetCX(tm)
		regs.SetDX(date)
		return res
	case 1:
		// Setting timestamps on the host is accepted and dropped; the next
		// stat re-reads the host's own mtime anyway.
		return dos.Ok(0)
	}
	return dos.Err(dos.FunctionInvalid)
}

func (d *Dispatcher) allocationStrategy(regs registers.Interface) dos.Result {
	switch regs.AL() {
	case 0:
		regs.SetAX(uint16(d.svc.Alloc.Strategy()))
		return dos.Ok(0)
	case 1:
		return d.svc.Alloc.SetStrategy(regs.BL())
	case 2: // UMB link state: no upper memory blocks
		regs.SetAL(0)
		return dos.Ok(0)
	case 3: // set UMB link: accepted, nothing to link
		return dos.Ok(0)
	}
	return dos.Err(dos.FunctionInvalid)
}

func (d *Dispatcher) getPsp(regs registers.Interface) dos.Result {
	regs.SetBX(d.svc.Psps.Current())
	return dos.Ok(0)
}
