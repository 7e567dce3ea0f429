package allocator

import "unsafe"

// region is the external collaborator the allocator core grows and
// inspects. It knows nothing about blocks, bins, or tags: it hands back
// raw, zero-length-until-grown byte ranges and never moves a base address
// it has already returned, so a bp computed against an earlier grow stays
// valid across later ones.
type region interface {
	// grow extends the region by delta bytes (delta must be a multiple of
	// 8) and returns the address of the first new byte. ok is false if the
	// primitive cannot satisfy the request (reservation exhausted, mmap
	// failure, ...); the region is left unchanged on failure.
	grow(delta int) (base unsafe.Pointer, ok bool)

	lo() unsafe.Pointer
	hi() unsafe.Pointer
	size() int
}

// regionPageSize is a 64 KiB commitment unit. Neither region
// implementation reads it: mmapRegion commits in host pages
// (unix.Getpagesize) and sliceRegion has no separate commitment step. It
// has no effect on the allocator's own chunking (Config.ChunkSize governs
// that).
const regionPageSize = 64 * 1024
