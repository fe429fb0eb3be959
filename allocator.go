package persist

import (
	"math/bits"
	"sort"
)

// usedBlock is an occupied extent of the data region.
type usedBlock struct {
	start uint64
	size  uint32
	hash  uint64
}

func (u usedBlock) end() uint64 { return u.start + uint64(u.size) }

// freeBlock is a vacant extent of the data region.
type freeBlock struct {
	size  uint32
	start uint64
}

func (f freeBlock) end() uint64 { return f.start + uint64(f.size) }

// allocator tracks used and free extents of a contiguous byte region as
// two ordered slices: used, ordered by start, and freeList, ordered by
// (size, start). It mirrors the allocator described in original_source's
// memmngr.rs, backed by slices with binary-searched insertion instead of
// a balanced tree, since Go has no ordered-set container in std or in
// the pack's dependency set.
type allocator struct {
	start, end uint64
	used       []usedBlock
	freeList   []freeBlock
	usedSize   uint64
}

func newAllocator(start, end uint64) *allocator {
	a := &allocator{start: start, end: end}
	if start != end {
		a.freeList = append(a.freeList, freeBlock{size: uint32(end - start), start: start})
	}

	return a
}

func (a *allocator) usedIndexOf(start uint64) (int, bool) {
	i := sort.Search(len(a.used), func(i int) bool { return a.used[i].start >= start })
	if i < len(a.used) && a.used[i].start == start {
		return i, true
	}

	return i, false
}

func (a *allocator) insertUsed(u usedBlock) {
	i, _ := a.usedIndexOf(u.start)
	a.used = append(a.used, usedBlock{})
	copy(a.used[i+1:], a.used[i:])
	a.used[i] = u
}

func (a *allocator) removeUsedAt(i int) usedBlock {
	u := a.used[i]
	a.used = append(a.used[:i], a.used[i+1:]...)

	return u
}

func freeLess(a, b freeBlock) bool {
	if a.size != b.size {
		return a.size < b.size
	}

	return a.start < b.start
}

func (a *allocator) freeIndexOf(f freeBlock) (int, bool) {
	i := sort.Search(len(a.freeList), func(i int) bool { return !freeLess(a.freeList[i], f) })
	if i < len(a.freeList) && a.freeList[i] == f {
		return i, true
	}

	return i, false
}

func (a *allocator) insertFree(f freeBlock) {
	if f.size == 0 {
		return
	}

	i, _ := a.freeIndexOf(f)
	a.freeList = append(a.freeList, freeBlock{})
	copy(a.freeList[i+1:], a.freeList[i:])
	a.freeList[i] = f
}

// removeFree removes the exact (size, start) pair. It panics if the block
// is not present, mirroring the Rust original's `assert!(... .remove())`:
// a missing block here means the allocator's bookkeeping is corrupt.
func (a *allocator) removeFree(f freeBlock) {
	i, ok := a.freeIndexOf(f)
	if !ok {
		panic("persist: allocator: free block not found")
	}

	a.freeList = append(a.freeList[:i], a.freeList[i+1:]...)
}

// setUsed bulk-loads a used block during the open-time scan, before fixUp
// reconstructs the free set from the gaps between used blocks.
func (a *allocator) setUsed(start uint64, size uint32, hash uint64) {
	if size < 1 {
		size = 1
	}

	a.insertUsed(usedBlock{start: start, size: size, hash: hash})
}

// fixUp recomputes usedSize and rebuilds the free set as the gaps
// between consecutive used blocks and the region boundaries.
func (a *allocator) fixUp() {
	a.freeList = a.freeList[:0]
	a.usedSize = 0
	lastEnd := a.start

	for _, u := range a.used {
		a.usedSize += uint64(u.size)
		if u.start != lastEnd {
			a.insertFree(freeBlock{size: uint32(u.start - lastEnd), start: lastEnd})
		}

		lastEnd = u.end()
	}

	if lastEnd != a.end {
		a.insertFree(freeBlock{size: uint32(a.end - lastEnd), start: lastEnd})
	}
}

func log2Ceil(x uint64) uint32 {
	if x <= 1 {
		return 0
	}

	return uint32(bits.Len64(x - 1))
}

// allocate finds a best-fit free extent among the first five candidates
// of size >= the request (ordered by (size, start)), scored by fit
// quality and address, carves off the requested prefix, and returns its
// start. It reports false if no extent is large enough.
func (a *allocator) allocate(size uint32, hash uint64) (uint64, bool) {
	if size < 1 {
		size = 1
	}

	start := sort.Search(len(a.freeList), func(i int) bool { return a.freeList[i].size >= size })

	bestIdx := -1

	var bestScore uint32

	for i, examined := start, 0; i < len(a.freeList) && examined < 5; i, examined = i+1, examined+1 {
		cand := a.freeList[i]
		score := log2Ceil(uint64(cand.size-size)) + log2Ceil(cand.start)

		if bestIdx == -1 || score < bestScore {
			bestIdx, bestScore = i, score
		}
	}

	if bestIdx == -1 {
		return 0, false
	}

	chosen := a.freeList[bestIdx]
	a.freeList = append(a.freeList[:bestIdx], a.freeList[bestIdx+1:]...)

	if chosen.size > size {
		a.insertFree(freeBlock{size: chosen.size - size, start: chosen.start + uint64(size)})
	}

	a.insertUsed(usedBlock{start: chosen.start, size: size, hash: hash})
	a.usedSize += uint64(size)

	return chosen.start, true
}

// free removes the used block starting at pos, merging it with any
// adjacent free neighbors. It reports false if no used block starts
// there.
func (a *allocator) free(pos uint64) bool {
	i, ok := a.usedIndexOf(pos)
	if !ok {
		return false
	}

	u := a.removeUsedAt(i)
	a.usedSize -= uint64(u.size)

	merged := freeBlock{start: u.start, size: u.size}

	var before freeBlock
	if i > 0 {
		b := a.used[i-1]
		before = freeBlock{start: b.end(), size: uint32(merged.start - b.end())}
	} else {
		before = freeBlock{start: a.start, size: uint32(pos - a.start)}
	}

	if before.size > 0 {
		a.removeFree(before)
		merged.start = before.start
		merged.size += before.size
	}

	var after freeBlock
	if i < len(a.used) {
		n := a.used[i]
		after = freeBlock{start: u.end(), size: uint32(n.start - u.end())}
	} else {
		after = freeBlock{start: u.end(), size: uint32(a.end - u.end())}
	}

	if after.size > 0 {
		a.removeFree(after)
		merged.size += after.size
	}

	a.insertFree(merged)

	return true
}

// setEnd moves the region's end boundary, evicting (freeing) any used
// block that would extend past the new end, and returns the evicted
// blocks in eviction order (highest address first).
func (a *allocator) setEnd(newEnd uint64) []usedBlock {
	var evicted []usedBlock

	if newEnd <= a.end {
		for len(a.used) > 0 {
			last := a.used[len(a.used)-1]
			if last.end() <= newEnd {
				break
			}

			a.free(last.start)

			evicted = append(evicted, last)
		}
	}

	var lastFree freeBlock
	if len(a.used) > 0 {
		last := a.used[len(a.used)-1]
		lastFree = freeBlock{start: last.end(), size: uint32(a.end - last.end())}
	} else {
		lastFree = freeBlock{start: a.start, size: uint32(a.end - a.start)}
	}

	if lastFree.size > 0 {
		a.removeFree(lastFree)
	}

	a.end = newEnd
	lastFree.size = uint32(a.end - lastFree.start)

	if lastFree.size > 0 {
		a.insertFree(lastFree)
	}

	return evicted
}

// setStart moves the region's start boundary, evicting any used block
// that starts below the new start, and returns the evicted blocks in
// eviction order (lowest address first).
func (a *allocator) setStart(newStart uint64) []usedBlock {
	var evicted []usedBlock

	if newStart > a.start {
		for len(a.used) > 0 {
			first := a.used[0]
			if first.start >= newStart {
				break
			}

			a.free(first.start)

			evicted = append(evicted, first)
		}
	}

	var firstFree freeBlock
	if len(a.used) > 0 {
		first := a.used[0]
		firstFree = freeBlock{start: a.start, size: uint32(first.start - a.start)}
	} else {
		firstFree = freeBlock{start: a.start, size: uint32(a.end - a.start)}
	}

	if firstFree.size > 0 {
		a.removeFree(firstFree)
	}

	a.start = newStart
	firstFree.size = uint32(firstFree.end() - a.start)
	firstFree.start = a.start

	if firstFree.size > 0 {
		a.insertFree(firstFree)
	}

	return evicted
}

// takeUsed returns the used blocks ordered by start, leaving the
// allocator's used set intact.
func (a *allocator) takeUsed() []usedBlock {
	return a.used
}

func (a *allocator) isValid() bool {
	type block struct {
		pos  uint64
		size uint32
		used bool
	}

	blocks := make([]block, 0, len(a.used)+len(a.freeList))

	var usedSize uint64
	for _, u := range a.used {
		blocks = append(blocks, block{u.start, u.size, true})
		usedSize += uint64(u.size)
	}

	for _, f := range a.freeList {
		blocks = append(blocks, block{f.start, f.size, false})
	}

	if usedSize != a.usedSize {
		return false
	}

	if len(blocks) == 0 {
		return a.start == a.end
	}

	sort.Slice(blocks, func(i, j int) bool { return blocks[i].pos < blocks[j].pos })

	last := a.start
	lastUsed := !blocks[0].used

	for _, b := range blocks {
		if b.size == 0 {
			return false
		}

		if b.pos != last || (!b.used && !lastUsed) {
			return false
		}

		lastUsed = b.used
		last = b.pos + uint64(b.size)
	}

	return last == a.end
}
