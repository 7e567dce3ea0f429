package allocator

import (
	"encoding/binary"
	"unsafe"
)

// Block tag layout, per the region's persisted state format: a 4-byte word
// whose upper bits hold the whole block size (a multiple of 8) and whose
// bit 0 holds the allocation flag. Header and footer are always identical.
const (
	tagSize      = 4 // bytes in a header/footer word
	ptrSize      = 8 // bytes in a free-list link word (uint64-encoded address)
	linkOverhead = 2 * ptrSize
	sizeMask     = ^uint32(0x7)
	allocBit     = uint32(0x1)

	// minBlockSize is the smallest block that can hold a header, the two
	// free-list links, and a footer: 4 + 16 + 4 = 24, already 8-aligned.
	minBlockSize = tagSize + linkOverhead + tagSize
)

// bp is a block pointer: the address of a block's payload, exactly the
// value handed back to callers of Acquire/Resize. All functions in this
// file are the only code in the package allowed to interpret raw region
// bytes; everything above treats bp as opaque.
type bp = unsafe.Pointer

func addPtr(p unsafe.Pointer, delta int) unsafe.Pointer {
	return unsafe.Pointer(uintptr(p) + uintptr(delta))
}

// addrOf exposes a block pointer's raw address for use as a map key, e.g.
// by checker.go when cross-referencing the walked block sequence against
// the free index's reachable set.
func addrOf(p unsafe.Pointer) uintptr { return uintptr(p) }

func subPtr(a, b unsafe.Pointer) int {
	return int(uintptr(a) - uintptr(b))
}

func readTag(addr unsafe.Pointer) uint32 {
	return binary.LittleEndian.Uint32((*[tagSize]byte)(addr)[:])
}

func writeTag(addr unsafe.Pointer, size uint32, alloc bool) {
	v := size &^ uint32(0x7)
	if alloc {
		v |= allocBit
	}
	binary.LittleEndian.PutUint32((*[tagSize]byte)(addr)[:], v)
}

func tagSizeOf(word uint32) uint32   { return word & sizeMask }
func tagAllocOf(word uint32) bool    { return word&allocBit != 0 }
func sizeAt(addr unsafe.Pointer) int { return int(tagSizeOf(readTag(addr))) }

// header returns the address of bp's header word, 4 bytes before bp.
func header(p bp) unsafe.Pointer { return addPtr(p, -tagSize) }

// footer returns the address of bp's footer word: the last tagSize bytes
// of the block, immediately preceding the next block's header.
func footer(p bp) unsafe.Pointer {
	return addPtr(p, sizeAt(header(p))-2*tagSize)
}

// blockSize reads the size field (total block size, header through footer).
func blockSize(p bp) int { return sizeAt(header(p)) }

// isAllocated reports whether bp's header marks the block allocated.
func isAllocated(p bp) bool { return tagAllocOf(readTag(header(p))) }

// nextBlock returns the address of the block immediately following bp.
func nextBlock(p bp) bp { return addPtr(p, blockSize(p)) }

// prevBlock returns the address of the block immediately preceding bp,
// read from the previous block's footer (the boundary-tag trick).
func prevBlock(p bp) bp {
	prevFooter := addPtr(p, -tagSize-tagSize)
	return addPtr(p, -int(tagSizeOf(readTag(prevFooter))))
}

// prevFooterAllocated/nextHeaderAllocated answer coalesce's neighbor queries directly
// from the boundary tags, without materializing prevBlock when not needed.
func prevFooterAllocated(p bp) bool {
	return tagAllocOf(readTag(addPtr(p, -tagSize-tagSize)))
}

func nextHeaderAllocated(p bp) bool {
	return tagAllocOf(readTag(header(nextBlock(p))))
}

// writeBlockTags stamps both the header and footer of bp with size/alloc.
func writeBlockTags(p bp, size int, alloc bool) {
	writeTag(header(p), uint32(size), alloc)
	writeTag(footer(p), uint32(size), alloc)
}

// Free-list link accessors. A free block's payload holds next then prev,
// each encoded as a little-endian address (0 meaning nil), so the bytes
// are ordinary in-band region content rather than typed Go pointers.

func linkNext(p bp) bp { return decodeLink(p) }
func linkPrev(p bp) bp { return decodeLink(addPtr(p, ptrSize)) }

func setLinkNext(p bp, target bp) { encodeLink(p, target) }
func setLinkPrev(p bp, target bp) { encodeLink(addPtr(p, ptrSize), target) }

func decodeLink(addr unsafe.Pointer) bp {
	v := binary.LittleEndian.Uint64((*[ptrSize]byte)(addr)[:])
	if v == 0 {
		return nil
	}

	return unsafe.Pointer(uintptr(v))
}

func encodeLink(addr unsafe.Pointer, target bp) {
	binary.LittleEndian.PutUint64((*[ptrSize]byte)(addr)[:], uint64(uintptr(target)))
}

// alignUp8 rounds n up to the nearest multiple of 8.
func alignUp8(n int) int { return (n + 7) &^ 7 }

func maxInt(a, b int) int {
	if a > b {
		return a
	}

	return b
}

// adjustedSize computes the total in-region block size needed to satisfy a
// payload request of n bytes: header+footer overhead, at least the minimum
// block size, rounded to 8 bytes.
func adjustedSize(n uintptr) int {
	need := alignUp8(int(n) + 2*tagSize)
	if need < minBlockSize {
		return minBlockSize
	}

	return need
}
