package allocator

import (
	"testing"
	"unsafe"
)

func TestAlignUp8(t *testing.T) {
	cases := []struct {
		in, want int
	}{
		{0, 0}, {1, 8}, {7, 8}, {8, 8}, {9, 16}, {17, 24},
	}

	for _, c := range cases {
		if got := alignUp8(c.in); got != c.want {
			t.Errorf("alignUp8(%d) = %d, want %d", c.in, got, c.want)
		}
	}
}

func TestAdjustedSize(t *testing.T) {
	cases := []struct {
		in   uintptr
		want int
	}{
		{0, minBlockSize},
		{1, minBlockSize},
		{16, minBlockSize},
		{17, 32}, // 17+8=25 -> align 32
		{100, 112},
	}

	for _, c := range cases {
		if got := adjustedSize(c.in); got != c.want {
			t.Errorf("adjustedSize(%d) = %d, want %d", c.in, got, c.want)
		}
	}
}

func TestWriteAndReadBlockTags(t *testing.T) {
	buf := make([]byte, 64)
	p := unsafe.Pointer(&buf[tagSize]) // leave room for a header before bp

	writeBlockTags(p, 32, true)

	if got := blockSize(p); got != 32 {
		t.Fatalf("blockSize = %d, want 32", got)
	}

	if !isAllocated(p) {
		t.Fatal("expected block to read as allocated")
	}

	writeBlockTags(p, 32, false)

	if isAllocated(p) {
		t.Fatal("expected block to read as free")
	}

	if got := blockSize(p); got != 32 {
		t.Fatalf("blockSize after free = %d, want 32", got)
	}
}

func TestFreeListLinks(t *testing.T) {
	buf := make([]byte, 64)
	p := unsafe.Pointer(&buf[0])
	target := unsafe.Pointer(&buf[32])

	setLinkNext(p, target)
	setLinkPrev(p, nil)

	if got := linkNext(p); got != target {
		t.Fatalf("linkNext = %p, want %p", got, target)
	}

	if got := linkPrev(p); got != nil {
		t.Fatalf("linkPrev = %p, want nil", got)
	}
}

func TestNextBlockAndPrevBlock(t *testing.T) {
	// Lay out: [prologue-like hdr][block A, size 32][block B, size 24]
	buf := make([]byte, 128)
	base := unsafe.Pointer(&buf[0])

	a := addPtr(base, tagSize)
	writeBlockTags(a, 32, true)

	b := addPtr(a, 32)
	writeBlockTags(b, 24, false)

	if got := nextBlock(a); got != b {
		t.Fatalf("nextBlock(a) = %p, want %p", got, b)
	}

	if got := prevBlock(b); got != a {
		t.Fatalf("prevBlock(b) = %p, want %p", got, a)
	}
}
