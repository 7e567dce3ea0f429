package allocator

import (
	"testing"
	"unsafe"
)

func newTestFreeIndex(t *testing.T) (*freeIndex, unsafe.Pointer) {
	t.Helper()

	buf := make([]byte, binsAreaSize+8)
	base := unsafe.Pointer(&buf[0])
	fi := newFreeIndex(base)
	fi.zeroBins()

	return fi, base
}

func TestBinIndexForSize(t *testing.T) {
	cases := []struct {
		size int
		want int
	}{
		{8, 0}, {32, 0}, {33, 1}, {64, 1}, {65, 2},
		{2048, 6}, {2049, 7}, {1 << 20, 7},
	}

	for _, c := range cases {
		if got := binIndexForSize(c.size); got != c.want {
			t.Errorf("binIndexForSize(%d) = %d, want %d", c.size, got, c.want)
		}
	}
}

func TestPrependAndRemoveSingle(t *testing.T) {
	fi, base := newTestFreeIndex(t)

	buf := make([]byte, 128)
	p := unsafe.Pointer(&buf[0])
	writeBlockTags(addPtr(p, tagSize), 32, false)
	block := addPtr(p, tagSize)

	fi.prepend(block, 32)

	if got := fi.binAt(binIndexForSize(32)); got != block {
		t.Fatalf("bin head = %p, want %p", got, block)
	}

	fi.remove(block, 32)

	if got := fi.binAt(binIndexForSize(32)); got != nil {
		t.Fatalf("bin head after remove = %p, want nil", got)
	}

	_ = base
}

func TestPrependLIFOOrderAndRemoveMiddle(t *testing.T) {
	fi, _ := newTestFreeIndex(t)

	backing := make([]byte, 512)
	mk := func(off int, size int) unsafe.Pointer {
		p := addPtr(unsafe.Pointer(&backing[0]), off+tagSize)
		writeBlockTags(p, size, false)
		return p
	}

	b1 := mk(0, 32)
	b2 := mk(64, 32)
	b3 := mk(128, 32)

	fi.prepend(b1, 32)
	fi.prepend(b2, 32)
	fi.prepend(b3, 32)

	idx := binIndexForSize(32)
	if got := fi.binAt(idx); got != b3 {
		t.Fatalf("head = %p, want most-recently-prepended %p", got, b3)
	}

	// Remove the middle-inserted block (b2, now the interior node).
	fi.remove(b2, 32)

	var seen []unsafe.Pointer
	for p := fi.binAt(idx); p != nil; p = linkNext(p) {
		seen = append(seen, p)
	}

	if len(seen) != 2 || seen[0] != b3 || seen[1] != b1 {
		t.Fatalf("chain after removing middle = %v, want [b3 b1]", seen)
	}
}

func TestFindFitSkipsTooSmallAndRespectsLargestFreeHint(t *testing.T) {
	fi, _ := newTestFreeIndex(t)

	backing := make([]byte, 256)
	p := addPtr(unsafe.Pointer(&backing[0]), tagSize)
	writeBlockTags(p, 32, false)
	fi.prepend(p, 32)

	if got := fi.findFit(64); got != nil {
		t.Fatalf("findFit(64) = %p, want nil (only a 32-byte block exists)", got)
	}

	if fi.largestFree != 32 {
		t.Fatalf("largestFree = %d, want 32", fi.largestFree)
	}

	if got := fi.findFit(32); got != p {
		t.Fatalf("findFit(32) = %p, want %p", got, p)
	}

	fi.remove(p, 32)

	if fi.largestFree != 0 {
		t.Fatalf("largestFree after removing the only block = %d, want 0 (invalidated)", fi.largestFree)
	}
}

func TestFindFitUnboundedBinSkipsUndersizedMembers(t *testing.T) {
	fi, _ := newTestFreeIndex(t)

	backing := make([]byte, 8192) // holds both blocks: 2056 + 3000 bytes
	small := addPtr(unsafe.Pointer(&backing[0]), tagSize)
	writeBlockTags(small, 2056, false) // lands in the unbounded bin, < 3000

	big := addPtr(unsafe.Pointer(&backing[0]), 2056+tagSize)
	writeBlockTags(big, 3000, false)

	fi.prepend(big, 3000)
	fi.prepend(small, 2056) // most recently prepended becomes the bin head

	got := fi.findFit(3000)
	if got != big {
		t.Fatalf("findFit(3000) = %p, want the 3000-byte block %p (must skip the undersized one)", got, big)
	}
}
