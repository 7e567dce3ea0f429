package allocator

import "testing"

// These tests exercise the region interface through newPlatformRegion,
// which resolves to mmapRegion on unix (region_unix.go) and sliceRegion
// elsewhere (region_generic.go). The allocator core never branches on
// which one it got, so neither should these tests.

func TestPlatformRegionGrowReturnsStableBase(t *testing.T) {
	reg, err := newPlatformRegion(1 << 20)
	if err != nil {
		t.Fatalf("newPlatformRegion: %v", err)
	}

	first, ok := reg.grow(64)
	if !ok {
		t.Fatal("first grow(64) failed")
	}

	if reg.lo() != first {
		t.Fatalf("lo() = %p, want %p", reg.lo(), first)
	}

	second, ok := reg.grow(128)
	if !ok {
		t.Fatal("second grow(128) failed")
	}

	if second != addPtr(first, 64) {
		t.Fatalf("second grow base = %p, want contiguous with first at %p", second, addPtr(first, 64))
	}

	if reg.hi() != addPtr(first, 64+128) {
		t.Fatalf("hi() = %p, want %p", reg.hi(), addPtr(first, 64+128))
	}

	if reg.size() != 64+128 {
		t.Fatalf("size() = %d, want %d", reg.size(), 64+128)
	}
}

func TestPlatformRegionRefusesGrowthPastReservation(t *testing.T) {
	reg, err := newPlatformRegion(4096)
	if err != nil {
		t.Fatalf("newPlatformRegion: %v", err)
	}

	if _, ok := reg.grow(1 << 30); ok {
		t.Fatal("grow beyond the reservation should fail")
	}
}

func TestPlatformRegionRejectsMisalignedGrow(t *testing.T) {
	reg, err := newPlatformRegion(4096)
	if err != nil {
		t.Fatalf("newPlatformRegion: %v", err)
	}

	if _, ok := reg.grow(5); ok {
		t.Fatal("grow(5) should be rejected: not a multiple of 8")
	}

	if _, ok := reg.grow(0); ok {
		t.Fatal("grow(0) should be rejected")
	}
}
