package allocator

// AllocStats records a snapshot of allocator state, optionally filled in
// by Allocator.Stats or by checker.go's Verify pass. Grounded on
// cznic-exp/lldb's AllocStats (TotalAtoms/AllocBytes/AllocAtoms/FreeAtoms),
// adapted from that allocator's atom-counted model to this one's
// byte-counted boundary-tag blocks.
type AllocStats struct {
	TotalBytes     int64 // bytes covered by the blocks between the prologue and epilogue (sentinels not counted)
	AllocatedBytes int64 // bytes in allocated blocks, including their overhead
	FreeBytes      int64 // bytes in free blocks, including their overhead
	BlockCount     int64 // total blocks, allocated + free
	FreeBlockCount int64
	BinCounts      [numBins]int64 // free blocks per size class
	RegionSize     int64          // current committed region size
}

// computeStats walks the block sequence once, tallying allocated vs. free
// bytes and per-bin free-block counts. It never mutates anything, so it is
// safe to call concurrently with the single-threaded mutation path only in
// the sense that it takes a consistent snapshot at a single point in time;
// callers (diagnostics.go's exporter) must still not call it while a
// mutation is in flight, which is why publishStats snapshots it right
// after each mutating call instead of leaving it to be called externally.
func (a *Allocator) computeStats() AllocStats {
	var s AllocStats

	s.RegionSize = int64(a.reg.size())

	for p := a.firstB; blockSize(p) != 0; p = nextBlock(p) {
		sz := int64(blockSize(p))
		s.TotalBytes += sz
		s.BlockCount++

		if isAllocated(p) {
			s.AllocatedBytes += sz
		} else {
			s.FreeBytes += sz
			s.FreeBlockCount++
			s.BinCounts[binIndexForSize(int(sz))]++
		}
	}

	return s
}
