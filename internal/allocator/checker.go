package allocator

// Verify walks the block sequence and the free index and checks invariants
// 1-5 and 7; it does not check which bin a free block sits in (6) or the
// largest-free hint (8). Grounded on cznic-exp/lldb's
// Allocator.Verify and the reference mm.c's check_heap routine. Unlike the
// reference's assert-and-abort checker, Verify returns a *CorruptionError
// identifying the first violation rather than panicking. Tests and
// cmd/heapcheck decide what to do with it.
func (a *Allocator) Verify() (AllocStats, error) {
	stats, walked, err := a.verifyBlockSequence()
	if err != nil {
		return stats, err
	}

	if err := a.verifyFreeIndex(walked); err != nil {
		return stats, err
	}

	return stats, nil
}

// verifyBlockSequence checks invariants 1-4 and 7 (header==footer, tiling,
// no two adjacent free blocks, sentinels allocated, alignment) and returns
// the set of free blocks it observed by walking forward, keyed by address.
func (a *Allocator) verifyBlockSequence() (AllocStats, map[uintptr]int, error) {
	var stats AllocStats

	walked := make(map[uintptr]int)

	prologueBp := addPtr(a.firstB, -prologueSize)
	if !isAllocated(prologueBp) || blockSize(prologueBp) != prologueSize {
		return stats, nil, errCorruption("prologue is not an allocated 8-byte sentinel", prologueBp, nil)
	}

	prevWasFree := false

	p := a.firstB
	for {
		if addrOf(p)%8 != 0 {
			return stats, nil, errCorruption("block address is not 8-byte aligned", p, nil)
		}

		sz := blockSize(p)
		if sz == 0 {
			// Epilogue reached.
			if !isAllocated(p) {
				return stats, nil, errCorruption("epilogue is not allocated", p, nil)
			}

			break
		}

		if sz%8 != 0 || sz < minBlockSize {
			return stats, nil, errCorruption("block size is invalid", p, map[string]any{"size": sz})
		}

		hdr := readTag(header(p))
		ftr := readTag(footer(p))

		if hdr != ftr {
			return stats, nil, errCorruption("header does not equal footer", p,
				map[string]any{"header": hdr, "footer": ftr})
		}

		alloc := isAllocated(p)
		if !alloc {
			if prevWasFree {
				return stats, nil, errCorruption("two adjacent free blocks were not coalesced", p, nil)
			}

			walked[addrOf(p)] = sz
			stats.FreeBytes += int64(sz)
			stats.FreeBlockCount++
			stats.BinCounts[binIndexForSize(sz)]++
		} else {
			stats.AllocatedBytes += int64(sz)
		}

		stats.TotalBytes += int64(sz)
		stats.BlockCount++

		prevWasFree = !alloc
		p = nextBlock(p)
	}

	stats.RegionSize = int64(a.reg.size())

	return stats, walked, nil
}

// verifyFreeIndex checks that every free block is reachable from
// exactly one bin, and every block reachable from a bin is free, by
// comparing the walked free-block set against what every bin reports.
func (a *Allocator) verifyFreeIndex(walked map[uintptr]int) error {
	seen := make(map[uintptr]bool, len(walked))

	for i := 0; i < numBins; i++ {
		for p := a.bins.binAt(i); p != nil; p = linkNext(p) {
			addr := addrOf(p)

			if _, onSequence := walked[addr]; !onSequence {
				return errCorruption("free list references a block absent from the block sequence", p, nil)
			}

			if isAllocated(p) {
				return errCorruption("free list references an allocated block", p, nil)
			}

			if seen[addr] {
				return errCorruption("block is reachable from more than one free list", p, nil)
			}

			seen[addr] = true
		}
	}

	if len(seen) != len(walked) {
		return errCorruption("a free block in the block sequence is unreachable from every bin", nil,
			map[string]any{"walked": len(walked), "reachable": len(seen)})
	}

	return nil
}
