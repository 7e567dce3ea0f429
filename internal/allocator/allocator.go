// Package allocator implements a single-threaded, segregated-free-list
// dynamic storage allocator over one contiguous, monotonically extensible
// memory region. It embeds all of its metadata (boundary tags and
// free-list links) directly in the managed region; the Allocator value
// itself keeps only a handful of anchors (the region, the free index, and
// the largest-free hint carried inside the free index).
package allocator

import (
	"sync/atomic"
	"unsafe"
)

// Allocator is the allocator core: the public surface (Acquire, Release,
// Resize) plus the place/coalesce procedures that keep the block encoder
// and free index consistent. It assumes single-threaded mutation; a
// caller needing concurrent use must wrap it in external exclusion.
type Allocator struct {
	cfg    *Config
	reg    region
	bins   *freeIndex
	firstB unsafe.Pointer // address of the first real block (after prologue)

	debugChecker atomic.Bool
	statsEnabled atomic.Bool
	lastStats    atomic.Pointer[AllocStats]
}

// binsAreaSize is the prefix size reserved for the bin array, before the
// alignment padding (paddingSize) and the prologue block.
const binsAreaSize = numBins * ptrSize // already 8-aligned: 8*8=64

// prologueSize is the whole size of the sentinel prologue block (header +
// zero payload + footer collapse into a single 8-byte allocated tag pair):
// an allocated 8-byte block at the region's low end.
const prologueSize = 8

// epilogueHeaderSize is the zero-sized allocated epilogue sentinel: one
// header word, no payload, no footer.
const epilogueHeaderSize = tagSize

// paddingSize offsets the prologue block by one word so that a.firstB (and
// every real block after it) lands on an 8-byte boundary: the bins area is
// already a multiple of 8, but tagSize(4) alone would leave the prologue's
// bp 4 bytes short of alignment.
const paddingSize = tagSize

// New constructs and initializes an Allocator.
// It performs the first region growth to materialize the bin array, the
// prologue, and the epilogue; no initial free extent is created, so the
// first Acquire drives the first real region growth.
func New(opts ...Option) (*Allocator, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}

	if cfg.ReserveSize <= 0 {
		return nil, errInvalidConfig("ReserveSize", cfg.ReserveSize)
	}

	if cfg.ChunkSize <= 0 || cfg.ChunkSize%8 != 0 {
		return nil, errInvalidConfig("ChunkSize", cfg.ChunkSize)
	}

	reg, err := newPlatformRegion(cfg.ReserveSize)
	if err != nil {
		return nil, err
	}

	a := &Allocator{cfg: cfg, reg: reg}
	a.debugChecker.Store(cfg.EnableDebugChecker)
	a.statsEnabled.Store(cfg.EnableStats)

	prefix := binsAreaSize + paddingSize + prologueSize + epilogueHeaderSize

	base, ok := reg.grow(alignUp8(prefix))
	if !ok {
		return nil, newStandardError(CategoryOOM, "failed to reserve initial prefix area", nil)
	}

	a.bins = newFreeIndex(base)
	a.bins.zeroBins()

	prologueBp := addPtr(base, binsAreaSize+paddingSize+tagSize)
	writeBlockTags(prologueBp, prologueSize, true)

	a.firstB = nextBlock(prologueBp)
	writeTag(header(a.firstB), 0, true)

	a.publishStats()

	return a, nil
}

// Acquire returns a pointer to at least n usable bytes, or nil if the
// region cannot grow to satisfy the request. A request of 0 bytes returns
// nil and performs no mutation.
func (a *Allocator) Acquire(n uintptr) unsafe.Pointer {
	if n == 0 {
		return nil
	}

	adj := adjustedSize(n)

	p := a.bins.findFit(adj)
	if p == nil {
		if !a.extend(maxInt(adj, a.cfg.ChunkSize)) {
			return nil
		}

		// extend's free block is at least maxInt(adj, ChunkSize) >= adj,
		// and coalescing with a free predecessor can only grow it, so the
		// re-fit is guaranteed to succeed.
		p = a.bins.findFit(adj)
		if p == nil {
			return nil
		}
	}

	a.place(p, adj)
	a.publishStats()

	return p
}

// extend grows the region by bytes rounded up to a multiple of 8, writes a
// free tag over the new space, rewrites the epilogue at the new
// high-water mark, and coalesces the new free block with the previous
// tail if that tail was free. Returns false (and leaves all invariants
// intact) if the region primitive refuses growth.
func (a *Allocator) extend(bytes int) bool {
	size := alignUp8(bytes)

	// The previous epilogue's header occupies the last tagSize committed
	// bytes, so growing by exactly size (not size+epilogueHeaderSize) is
	// enough: that header is reused as the new free block's header, and
	// the new epilogue header lands inside the same newly committed span.
	oldEpilogueBp := a.reg.hi()

	base, ok := a.reg.grow(size)
	if !ok {
		return false
	}

	if base != oldEpilogueBp {
		// Defensive: the region primitive promised a stable, contiguous
		// extension; if that contract is somehow violated there is
		// nothing safe to do but refuse the grow.
		return false
	}

	newBlock := oldEpilogueBp
	writeBlockTags(newBlock, size, false)
	writeTag(header(nextBlock(newBlock)), 0, true)

	// coalesce performs the only insertion into the free index; newBlock
	// must not be prepended here too, or it ends up linked in twice.
	a.coalesce(newBlock)

	return true
}

// Release returns p's block to the free index, coalescing with free
// neighbors. Releasing an already-free block is a no-op for caller
// convenience, not a contract; releasing an unowned pointer is undefined
// behavior.
func (a *Allocator) Release(p unsafe.Pointer) {
	if p == nil {
		return
	}

	if !isAllocated(p) {
		return
	}

	size := blockSize(p)
	writeBlockTags(p, size, false)
	a.coalesce(p)
	a.publishStats()
}

// Resize changes the size of the block at p to n bytes, preferring
// in-place growth or shrinkage over relocation, and preserving the
// min(oldSize, n)-byte prefix of the payload across any relocation.
func (a *Allocator) Resize(p unsafe.Pointer, n uintptr) unsafe.Pointer {
	if p == nil {
		return a.Acquire(n)
	}

	if n == 0 {
		a.Release(p)
		return nil
	}

	adj := adjustedSize(n)
	oldSize := blockSize(p)

	if adj == oldSize {
		return p
	}

	if adj < oldSize {
		return a.shrinkInPlace(p, adj)
	}

	return a.grow(p, adj, oldSize)
}

// shrinkInPlace splits the tail as a free remainder (place-style) and
// coalesces it forward.
func (a *Allocator) shrinkInPlace(p unsafe.Pointer, adj int) unsafe.Pointer {
	oldSize := blockSize(p)
	leftover := oldSize - adj

	if leftover < minBlockSize {
		return p
	}

	writeBlockTags(p, adj, true)

	tail := nextBlock(p)
	writeBlockTags(tail, leftover, false)
	a.coalesce(tail)
	a.publishStats()

	return p
}

// grow tries to absorb free neighbors in place before falling back to
// find/extend + copy.
func (a *Allocator) grow(p unsafe.Pointer, adj, oldSize int) unsafe.Pointer {
	nextFree := !nextHeaderAllocated(p)
	prevFree := !prevFooterAllocated(p)

	switch {
	case nextFree && oldSize+blockSize(nextBlock(p)) >= adj:
		next := nextBlock(p)
		total := oldSize + blockSize(next)
		a.bins.remove(next, blockSize(next))
		writeBlockTags(p, total, true)
		a.splitTailIfWorthwhile(p, adj)
		a.publishStats()

		return p

	case prevFree && oldSize+blockSize(prevBlock(p)) >= adj:
		prev := prevBlock(p)
		prevSize := blockSize(prev)
		total := oldSize + prevSize
		a.bins.remove(prev, prevSize)
		copyBytes(prev, p, oldSize-2*tagSize)
		writeBlockTags(prev, total, true)
		a.splitTailIfWorthwhile(prev, adj)
		a.publishStats()

		return prev

	case nextFree && prevFree && oldSize+blockSize(nextBlock(p))+blockSize(prevBlock(p)) >= adj:
		next := nextBlock(p)
		prev := prevBlock(p)
		nextSize := blockSize(next)
		prevSize := blockSize(prev)
		total := oldSize + nextSize + prevSize
		a.bins.remove(next, nextSize)
		a.bins.remove(prev, prevSize)
		copyBytes(prev, p, oldSize-2*tagSize)
		writeBlockTags(prev, total, true)
		a.splitTailIfWorthwhile(prev, adj)
		a.publishStats()

		return prev

	default:
		return a.growByRelocation(p, adj, oldSize)
	}
}

// growByRelocation handles the case where neither neighbor can be
// absorbed in place: find or extend to a new block, copy the old payload,
// and release the old one (which will coalesce).
func (a *Allocator) growByRelocation(p unsafe.Pointer, adj, oldSize int) unsafe.Pointer {
	newBp := a.bins.findFit(adj)
	if newBp == nil {
		if !a.extend(maxInt(adj, a.cfg.ChunkSize)) {
			return nil
		}

		newBp = a.bins.findFit(adj)
		if newBp == nil {
			return nil
		}
	}

	a.place(newBp, adj)

	copySize := oldSize - 2*tagSize // header and footer words are not user data
	copyBytes(newBp, p, copySize)

	a.Release(p)
	a.publishStats()

	return newBp
}

// splitTailIfWorthwhile splits off a free tail block and coalesces it if
// the chosen block is strictly larger than adj by at least the minimum
// block size.
func (a *Allocator) splitTailIfWorthwhile(p unsafe.Pointer, adj int) {
	size := blockSize(p)
	leftover := size - adj

	if leftover < minBlockSize {
		return
	}

	writeBlockTags(p, adj, true)

	tail := nextBlock(p)
	writeBlockTags(tail, leftover, false)
	a.coalesce(tail)
}

// place marks bp allocated at requestedSize, splitting off a free tail
// when the remainder is large enough to hold its own block overhead.
// Precondition: bp is free, on its bin, and size(bp) >= requestedSize.
func (a *Allocator) place(p unsafe.Pointer, requestedSize int) {
	curSize := blockSize(p)
	a.bins.remove(p, curSize)

	leftover := curSize - requestedSize
	if leftover >= minBlockSize {
		writeBlockTags(p, requestedSize, true)

		tail := nextBlock(p)
		writeBlockTags(tail, leftover, false)
		a.bins.prepend(tail, leftover)
	} else {
		writeBlockTags(p, curSize, true)
	}
}

// coalesce merges bp with any free neighbors and returns the address of
// the resulting free block (bp, prevBlock(bp), or prevBlock(bp) again in
// the both-free case), leaving it on the free index exactly once.
// Precondition: bp is tagged free in its header/footer but not yet on any
// free list.
func (a *Allocator) coalesce(p unsafe.Pointer) unsafe.Pointer {
	prevFree := !prevFooterAllocated(p)
	nextFree := !nextHeaderAllocated(p)

	switch {
	case !prevFree && !nextFree:
		a.bins.prepend(p, blockSize(p))
		return p

	case !prevFree && nextFree:
		next := nextBlock(p)
		nextSize := blockSize(next)
		a.bins.remove(next, nextSize)

		size := blockSize(p) + nextSize
		writeBlockTags(p, size, false)
		a.bins.prepend(p, size)

		return p

	case prevFree && !nextFree:
		prev := prevBlock(p)
		prevSize := blockSize(prev)
		a.bins.remove(prev, prevSize)

		size := prevSize + blockSize(p)
		writeBlockTags(prev, size, false)
		a.bins.prepend(prev, size)

		return prev

	default: // both free
		prev := prevBlock(p)
		next := nextBlock(p)
		prevSize := blockSize(prev)
		nextSize := blockSize(next)

		a.bins.remove(prev, prevSize)
		a.bins.remove(next, nextSize)

		size := prevSize + blockSize(p) + nextSize
		writeBlockTags(prev, size, false)
		a.bins.prepend(prev, size)

		return prev
	}
}

// copyBytes copies n bytes from src to dst, tolerating overlap. Used both
// to preserve payload data across relocation and, in Resize's
// absorb-previous-neighbor path, to shift a payload left by the absorbed
// block's size.
func copyBytes(dst, src unsafe.Pointer, n int) {
	if n <= 0 {
		return
	}

	dstSlice := unsafe.Slice((*byte)(dst), n)
	srcSlice := unsafe.Slice((*byte)(src), n)
	copy(dstSlice, srcSlice) // copy tolerates overlapping slices correctly
}

// publishStats runs after every mutating call. When the debug checker is
// enabled it runs Verify and panics with the returned *CorruptionError on
// the first violation. When stats publishing is enabled it snapshots
// AllocStats for the remote diagnostics exporter
// (internal/allocator/diagnostics.go).
// It only reads the region; it never mutates it, so it cannot race with
// the single-threaded mutation path even if called from New before any
// exporter goroutine exists.
func (a *Allocator) publishStats() {
	if a.debugChecker.Load() {
		if _, err := a.Verify(); err != nil {
			panic(err)
		}
	}

	if !a.statsEnabled.Load() {
		return
	}

	stats := a.computeStats()
	a.lastStats.Store(&stats)
}

// Stats returns the most recently published AllocStats snapshot, or a
// freshly computed one if no snapshot has been published. A snapshot
// published before stats publishing was turned off is still returned.
func (a *Allocator) Stats() AllocStats {
	if s := a.lastStats.Load(); s != nil {
		return *s
	}

	return a.computeStats()
}
