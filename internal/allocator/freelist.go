package allocator

import "unsafe"

// numBins is the number of size-classed free lists. Bin i holds free
// blocks with size <= binBounds[i], except the last bin, which is
// unbounded and may also hold blocks smaller than any requested size.
const numBins = 8

var binBounds = [numBins]int{32, 64, 128, 256, 512, 1024, 2048, 0}

// freeIndex is the segregated free-list index: one list head per size
// class, stored as pointer-sized words at the low end of the region
// (before the prologue block). It never allocates; it only threads
// pointers through free-block payloads via block.go's link accessors.
type freeIndex struct {
	binsBase unsafe.Pointer // address of bin[0]

	// largestFree upper-bounds the size of any block currently on any
	// free list. 0 means "unknown, must probe". It is permitted to be
	// stale upward (an overestimate just costs a wasted probe) but never
	// downward, so prepend only ever raises a known hint (a 0 hint on a
	// non-empty index stays 0) and remove only resets it to 0 (never
	// lowers it to a computed value).
	largestFree int
}

func newFreeIndex(binsBase unsafe.Pointer) *freeIndex {
	return &freeIndex{binsBase: binsBase}
}

func (fi *freeIndex) binHead(i int) unsafe.Pointer { return addPtr(fi.binsBase, i*ptrSize) }

func (fi *freeIndex) binAt(i int) bp { return decodeLink(fi.binHead(i)) }

func (fi *freeIndex) setBinAt(i int, head bp) { encodeLink(fi.binHead(i), head) }

// binIndexForSize returns the class index whose upper bound is the
// smallest bound >= s (the last class is unbounded).
func binIndexForSize(s int) int {
	for i, bound := range binBounds {
		if bound == 0 || s <= bound {
			return i
		}
	}

	return numBins - 1
}

// zeroBins clears every bin head; called once from New.
func (fi *freeIndex) zeroBins() {
	for i := 0; i < numBins; i++ {
		fi.setBinAt(i, nil)
	}
}

// prepend inserts bp at the head of the bin matching size s. LIFO: no
// ordering within a bin is required or maintained.
func (fi *freeIndex) prepend(p bp, s int) {
	i := binIndexForSize(s)
	old := fi.binAt(i)

	// A 0 hint is only a true maximum when every bin is empty; otherwise
	// it means "unknown" and raising it to s could undershoot a larger
	// block that is already listed.
	known := fi.largestFree != 0
	if !known {
		known = true
		for j := 0; j < numBins; j++ {
			if fi.binAt(j) != nil {
				known = false
				break
			}
		}
	}

	setLinkPrev(p, nil)
	setLinkNext(p, old)

	if old != nil {
		setLinkPrev(old, p)
	}

	fi.setBinAt(i, p)

	if known && s > fi.largestFree {
		fi.largestFree = s
	}
}

// remove unlinks bp from the bin matching its current size s. The four
// cases cover every position bp may occupy: the sole member, the head
// of a longer list, or an interior/tail member.
func (fi *freeIndex) remove(p bp, s int) {
	prev := linkPrev(p)
	next := linkNext(p)

	switch {
	case prev == nil && next == nil:
		i := binIndexForSize(s)
		fi.setBinAt(i, nil)
	case prev == nil:
		i := binIndexForSize(s)
		fi.setBinAt(i, next)
		setLinkPrev(next, nil)
	case next == nil:
		setLinkNext(prev, nil)
	default:
		setLinkNext(prev, next)
		setLinkPrev(next, prev)
	}

	if s == fi.largestFree {
		fi.largestFree = 0 // lazy invalidation; next successful find is its own witness
	}
}

// findFit scans bins starting at binIndexForSize(s) for the first free
// block whose size is >= s. The starting bin and the last (unbounded) bin
// can both contain blocks smaller than s, so every candidate's size is
// checked. A non-zero largestFree that undershoots s short-circuits the
// whole scan.
func (fi *freeIndex) findFit(s int) bp {
	if fi.largestFree != 0 && s > fi.largestFree {
		return nil
	}

	start := binIndexForSize(s)
	for i := start; i < numBins; i++ {
		for p := fi.binAt(i); p != nil; p = linkNext(p) {
			if blockSize(p) >= s {
				return p
			}
		}
	}

	return nil
}
