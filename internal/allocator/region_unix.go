//go:build unix

package allocator

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"
)

// mmapRegion reserves a large, contiguous virtual range up front with
// PROT_NONE and commits pages into it (PROT_READ|PROT_WRITE via mprotect)
// as the allocator asks the region to grow. Growth never calls mmap again
// on the hot path and never moves the base address, which is what lets
// outstanding block pointers survive a later grow.
type mmapRegion struct {
	base      unsafe.Pointer
	reserved  int
	committed int // bytes currently PROT_READ|PROT_WRITE, from base
}

// newMmapRegion reserves reserveBytes of address space, rounded up to the
// host page size. No memory is committed yet; New performs the first
// grow() to materialize the prefix area.
func newMmapRegion(reserveBytes int) (*mmapRegion, error) {
	pageSize := unix.Getpagesize()
	reserved := roundUpTo(reserveBytes, pageSize)

	data, err := unix.Mmap(-1, 0, reserved, unix.PROT_NONE, unix.MAP_PRIVATE|unix.MAP_ANON)
	if err != nil {
		return nil, fmt.Errorf("allocator: reserve %d bytes: %w", reserved, err)
	}

	return &mmapRegion{
		base:     unsafe.Pointer(&data[0]),
		reserved: reserved,
	}, nil
}

func (r *mmapRegion) grow(delta int) (unsafe.Pointer, bool) {
	if delta <= 0 || delta%8 != 0 {
		return nil, false
	}

	base := addPtr(r.base, r.committed)
	newCommitted := r.committed + delta

	if newCommitted > r.reserved {
		return nil, false
	}

	pageSize := unix.Getpagesize()
	committedPages := roundUpTo(r.committed, pageSize)
	neededPages := roundUpTo(newCommitted, pageSize)

	if neededPages > committedPages {
		region := unsafe.Slice((*byte)(addPtr(r.base, committedPages)), neededPages-committedPages)
		if err := unix.Mprotect(region, unix.PROT_READ|unix.PROT_WRITE); err != nil {
			return nil, false
		}
	}

	r.committed = newCommitted

	return base, true
}

func (r *mmapRegion) lo() unsafe.Pointer { return r.base }
func (r *mmapRegion) hi() unsafe.Pointer { return addPtr(r.base, r.committed) }
func (r *mmapRegion) size() int          { return r.committed }

func roundUpTo(n, unit int) int {
	if unit <= 0 {
		return n
	}

	return (n + unit - 1) / unit * unit
}

func newPlatformRegion(reserveBytes int) (region, error) {
	return newMmapRegion(reserveBytes)
}
