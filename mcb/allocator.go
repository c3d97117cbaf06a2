package mcb

import (
	"dosk/dos"
	"dosk/memview"
)

// Fit selects which free block Allocate chooses among candidates large
// enough to satisfy a request.
type Fit uint8

const (
	FirstFit Fit = 0
	BestFit  Fit = 1
	LastFit  Fit = 2
)

// HighMemoryPolicy is stored and returned verbatim by Strategy/SetStrategy
// but never changes allocation behavior: this core does not implement the
// HMA, so every policy behaves as LowOnly.
type HighMemoryPolicy uint8

const (
	LowOnly     HighMemoryPolicy = 0
	HighThenLow HighMemoryPolicy = 1
	HighOnly    HighMemoryPolicy = 2
)

// Allocator owns the MCB chain spanning [start, lastFree] and implements
// INT 21h/48h, /4Ah, /58h and the reservation/free-by-owner operations the
// process manager drives.
type Allocator struct {
	bus      memview.Bus
	start    uint16 // loadSegment: header segment of the first MCB
	lastFree uint16
	strategy uint8
}

// New initializes the chain: one free, last MCB spanning the whole of
// conventional memory from initialPspSegment-1 through lastFreeSegment.
func New(bus memview.Bus, initialPspSegment, lastFreeSegment uint16) *Allocator {
	loadSegment := initialPspSegment - 1
	a := &Allocator{bus: bus, start: loadSegment, lastFree: lastFreeSegment}
	b := at(bus, loadSegment)
	b.SetType(TypeLast)
	b.SetPspSegment(0)
	b.SetSize(lastFreeSegment - loadSegment)
	b.SetOwnerName("")
	return a
}

// Start returns the segment of the chain's first MCB header.
func (a *Allocator) Start() uint16 { return a.start }

// Strategy returns the raw allocation-strategy byte (INT 21h/58h, get).
func (a *Allocator) Strategy() uint8 { return a.strategy }

// SetStrategy validates and stores the allocation-strategy byte (INT
// 21h/58h, set). Bits 2-5 must be zero; bits 0-1 select Fit, bits 6-7
// select a HighMemoryPolicy that is accepted and echoed back but has no
// effect.
func (a *Allocator) SetStrategy(v uint8) dos.Result {
	if v&0x3C != 0 {
		return dos.Err(dos.FunctionInvalid)
	}
	a.strategy = v
	return dos.Ok(0)
}

func (a *Allocator) fit() Fit { return Fit(a.strategy & 0x03) }

// CheckMcbChain reports whether the chain is well-formed: every MCB has a
// valid Type, there is exactly one terminal (Type=Last) block, and no
// header segment repeats (guards against a cyclic, corrupted chain).
func (a *Allocator) CheckMcbChain() bool {
	cur := at(a.bus, a.start)
	seen := make(map[uint16]bool)
	for {
		if !cur.Valid() {
			return false
		}
		if seen[cur.Base] {
			return false
		}
		seen[cur.Base] = true
		if cur.Last() {
			return true
		}
		next := cur.Next()
		if next <= cur.Base || next > a.lastFree+1 {
			return false
		}
		cur = at(a.bus, next)
	}
}

// join coalesces b with as many immediately-following free blocks as
// exist, returning b (whose Size/Type may have grown).
func (a *Allocator) join(b Block) Block {
	for !b.Last() {
		next := at(a.bus, b.Next())
		if !next.Free() {
			break
		}
		wasLast := next.Last()
		b.SetSize(b.Size() + 1 + next.Size())
		if wasLast {
			b.SetType(TypeLast)
		}
	}
	return b
}

// coalesceAll walks the whole chain, joining every free block with its
// free successor(s) before an allocation attempt.
func (a *Allocator) coalesceAll() {
	cur := at(a.bus, a.start)
	for {
		if cur.Free() {
			cur = a.join(cur)
		}
		if cur.Last() {
			return
		}
		cur = at(a.bus, cur.Next())
	}
}

// split shrinks b to exactly requested paragraphs, creating a new free
// successor MCB from the remainder (a no-op if b is already exactly that
// size). One paragraph of the remainder is consumed by the new header.
func (a *Allocator) split(b Block, requested uint16) {
	orig := b.Size()
	if orig == requested {
		return
	}
	wasLast := b.Last()
	succBase := b.Base + 1 + requested
	b.SetSize(requested)
	b.SetType(TypeNonLast)

	succ := at(a.bus, succBase)
	succ.SetPspSegment(0)
	succ.SetSize(orig - requested - 1)
	succ.SetOwnerName("")
	if wasLast {
		succ.SetType(TypeLast)
	} else {
		succ.SetType(TypeNonLast)
	}
}

func (a *Allocator) collectFree(minSize uint16) []Block {
	var out []Block
	cur := at(a.bus, a.start)
	for {
		if cur.Free() && cur.Size() >= minSize {
			out = append(out, cur)
		}
		if cur.Last() {
			break
		}
		cur = at(a.bus, cur.Next())
	}
	return out
}

func (a *Allocator) largestFree() uint16 {
	var max uint16
	cur := at(a.bus, a.start)
	for {
		if cur.Free() && cur.Size() > max {
			max = cur.Size()
		}
		if cur.Last() {
			break
		}
		cur = at(a.bus, cur.Next())
	}
	return max
}

func (a *Allocator) pickByPolicy(candidates []Block) Block {
	switch a.fit() {
	case BestFit:
		chosen := candidates[0]
		for _, c := range candidates[1:] {
			if c.Size() < chosen.Size() {
				chosen = c
			}
		}
		return chosen
	case LastFit:
		return candidates[len(candidates)-1]
	default: // FirstFit
		return candidates[0]
	}
}

// Allocate implements INT 21h/48h: reserve requested paragraphs for
// ownerPsp, returning the payload segment on success.
func (a *Allocator) Allocate(requested uint16, ownerPsp uint16) (uint16, dos.Result) {
	if !a.CheckMcbChain() {
		return 0, dos.Err(dos.McbDestroyed)
	}
	a.coalesceAll()

	candidates := a.collectFree(requested)
	if len(candidates) == 0 {
		return 0, dos.Result{Code: dos.InsufficientMem, Value: uint32(a.largestFree())}
	}

	chosen := a.pickByPolicy(candidates)
	a.split(chosen, requested)
	chosen.SetPspSegment(ownerPsp)
	return chosen.PayloadSegment(), dos.Ok(uint32(chosen.PayloadSegment()))
}

// Resize implements INT 21h/4Ah: grow or shrink the block at blockSegment
// (a payload segment) to requested paragraphs.
func (a *Allocator) Resize(blockSegment uint16, requested uint16) dos.Result {
	if !a.CheckMcbChain() {
		return dos.Err(dos.McbDestroyed)
	}
	if blockSegment == 0 {
		return dos.Err(dos.McbAddressInvalid)
	}
	b := at(a.bus, blockSegment-1)
	if !b.Valid() || b.Free() {
		return dos.Err(dos.McbAddressInvalid)
	}

	orig := b.Size()
	b = a.join(b)

	if b.Size() < requested {
		if b.Size() != orig {
			a.split(b, orig)
		}
		return dos.Result{Code: dos.InsufficientMem, Value: uint32(a.largestFree())}
	}

	if b.Size() > requested {
		a.split(b, requested)
	}
	b.SetPspSegment(b.PspSegment())
	return dos.Ok(uint32(b.Size()))
}

// ReserveForExe implements the min/max-range reservation EXEC uses to size
// a program's initial block. When target is non-nil, the
// reservation must land at that exact payload segment (used only for the
// first program, to honor a configured load address); otherwise the block
// is picked by the current fit policy among free blocks >= min.
func (a *Allocator) ReserveForExe(min, max uint16, target *uint16) (uint16, dos.Result) {
	if !a.CheckMcbChain() {
		return 0, dos.Err(dos.McbDestroyed)
	}
	a.coalesceAll()

	if (min == 0 && max == 0) || max < min {
		lf := a.largestFree()
		if lf < min {
			lf = min
		}
		max = lf
	}

	var chosen Block
	if target != nil {
		blk := at(a.bus, *target-1)
		if !blk.Valid() || !blk.Free() || blk.Size() < min {
			return 0, dos.Result{Code: dos.InsufficientMem, Value: uint32(a.largestFree())}
		}
		chosen = blk
	} else {
		candidates := a.collectFree(min)
		if len(candidates) == 0 {
			return 0, dos.Result{Code: dos.InsufficientMem, Value: uint32(a.largestFree())}
		}
		chosen = a.pickByPolicy(candidates)
	}

	grant := max
	if chosen.Size() < grant {
		grant = chosen.Size()
	}
	a.split(chosen, grant)
	chosen.SetPspSegment(chosen.PayloadSegment())
	return chosen.PayloadSegment(), dos.Ok(uint32(chosen.PayloadSegment()))
}

// Free implements INT 21h/49h: release the single block whose payload is at
// blockSegment, whoever owns it.
func (a *Allocator) Free(blockSegment uint16) dos.Result {
	if !a.CheckMcbChain() {
		return dos.Err(dos.McbDestroyed)
	}
	if blockSegment == 0 {
		return dos.Err(dos.McbAddressInvalid)
	}
	b := at(a.bus, blockSegment-1)
	if !b.Valid() {
		return dos.Err(dos.McbAddressInvalid)
	}
	b.SetPspSegment(0)
	a.coalesceAll()
	return dos.Ok(0)
}

// FreeByPsp implements process-exit cleanup: every MCB owned by pspSegment
// (including a separate environment-block MCB with the same owner) is
// marked free, then the chain is coalesced.
func (a *Allocator) FreeByPsp(pspSegment uint16) dos.Result {
	if !a.CheckMcbChain() {
		return dos.Err(dos.McbDestroyed)
	}
	cur := at(a.bus, a.start)
	for {
		if cur.PspSegment() == pspSegment {
			cur.SetPspSegment(0)
		}
		if cur.Last() {
			break
		}
		cur = at(a.bus, cur.Next())
	}
	a.coalesceAll()
	return dos.Ok(0)
}

// Chain returns every MCB from start to the terminal block, for
// diagnostics and tests.
func (a *Allocator) Chain() []Block {
	var out []Block
	cur := at(a.bus, a.start)
	for {
		out = append(out, cur)
		if !cur.Valid() || cur.Last() {
			break
		}
		cur = at(a.bus, cur.Next())
	}
	return out
}

// BlockAt returns the MCB whose payload is at the given segment.
func (a *Allocator) BlockAt(payloadSegment uint16) Block {
	return at(a.bus, payloadSegment-1)
}
