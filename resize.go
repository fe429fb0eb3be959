package persist

import "fmt"

// resizeFd changes the file's length to fit indexCapacity slots and
// dataSize bytes of data, remaps, and rebuilds every view derived from
// the mapping. The allocator is untouched: its bounds are pure
// bookkeeping and survive a remap unchanged, unlike the header and
// index which alias the mapped bytes directly.
func (t *Table) resizeFd(indexCapacity uint32, dataSize uint64) error {
	if err := t.f.setLen(totalSize(indexCapacity, dataSize)); err != nil {
		return err
	}

	t.hdr = newHeader(t.f.mapped)
	sl := newSlots(t.f.mapped[headerSize:], indexCapacity)
	t.dataStart = totalSize(indexCapacity, 0)
	t.idx = newIndex(sl, indexCapacity, t.idx.Len())
	t.maxEntries, t.minEntries = deriveBounds(indexCapacity)

	return nil
}

// extendData grows the data region by size bytes, keeping index capacity
// fixed. The allocator's end boundary is pushed out to match; since the
// region only grows, no used block can be evicted.
func (t *Table) extendData(size uint32) error {
	curLen := uint64(len(t.f.mapped)) - t.dataStart

	if err := t.resizeFd(t.idx.Capacity(), curLen+uint64(size)); err != nil {
		return err
	}

	if evicted := t.alloc.setEnd(t.dataStart + curLen + uint64(size)); len(evicted) != 0 {
		return fmt.Errorf("%w: extendData: unexpected eviction", ErrIO)
	}

	return nil
}

// maybeExtendIndex doubles the index capacity once the live entry count
// exceeds the load-factor ceiling. Doubling the slot array pushes the
// data region's start forward, so any block occupying the newly-claimed
// low range is relocated (in reverse eviction order, matching how the
// allocator would re-coalesce them) before the file is actually resized.
func (t *Table) maybeExtendIndex() error {
	if t.idx.Len() <= t.maxEntries {
		return nil
	}

	t.hdr.setDirty(true)

	newCapacity := t.idx.Capacity() * 2
	dataStartNew := totalSize(newCapacity, 0)

	// The doubled slot array can reach past the current end of the data
	// region; extend the region first so the allocator's start never
	// moves beyond its end.
	if end := t.alloc.end; dataStartNew > end {
		if err := t.extendData(uint32(dataStartNew - end)); err != nil {
			return err
		}
	}

	evicted := t.alloc.setStart(dataStartNew)

	for i := len(evicted) - 1; i >= 0; i-- {
		e := evicted[i]

		newPos, ok := t.alloc.allocate(e.size, e.hash)
		if !ok {
			if err := t.extendData(e.size); err != nil {
				return err
			}

			if len(t.alloc.setStart(dataStartNew)) != 0 {
				return fmt.Errorf("%w: maybeExtendIndex: unexpected eviction after extend", ErrIO)
			}

			newPos, ok = t.alloc.allocate(e.size, e.hash)
			if !ok {
				return fmt.Errorf("%w: maybeExtendIndex: still no space after extending data", ErrIO)
			}
		}

		copy(t.f.mapped[newPos:newPos+uint64(e.size)], t.f.mapped[e.start:e.start+uint64(e.size)])
		t.idx.updateBlockPosition(e.hash, e.start, newPos)
	}

	t.hdr.setIndexCapacity(newCapacity)

	dataSizeNew := t.alloc.end - t.alloc.start

	if err := t.resizeFd(newCapacity, dataSizeNew); err != nil {
		return err
	}

	t.idx.growFromHalf()
	t.hdr.setDirty(false)

	return nil
}

// maybeShrinkIndex halves the index capacity once the live entry count
// falls below the floor, provided it would stay at or above the initial
// capacity. shrinkToHalf re-keys the slot array in place before the
// allocator's start boundary (and then the file itself) is pulled in to
// match the smaller index.
func (t *Table) maybeShrinkIndex() error {
	if t.idx.Len() >= t.minEntries || t.idx.Capacity() <= initialIndexCapacity {
		return nil
	}

	t.hdr.setDirty(true)

	newCapacity := t.idx.Capacity() / 2
	dataStartNew := totalSize(newCapacity, 0)

	t.idx.shrinkToHalf()

	if evicted := t.alloc.setStart(dataStartNew); len(evicted) != 0 {
		return fmt.Errorf("%w: maybeShrinkIndex: unexpected eviction", ErrIO)
	}

	t.hdr.setIndexCapacity(newCapacity)

	dataSizeNew := t.alloc.end - t.alloc.start

	if err := t.resizeFd(newCapacity, dataSizeNew); err != nil {
		return err
	}

	t.hdr.setDirty(false)

	return t.maybeShrinkData()
}

// maybeShrinkData defragments the data region once the live fraction
// drops to half or less of the region's size, unless the region is
// already at or below the floor past which shrinking isn't worthwhile.
func (t *Table) maybeShrinkData() error {
	dataLen := t.alloc.end - t.alloc.start
	if t.alloc.usedSize > dataLen/2 || dataLen <= shrinkDataFloor {
		return nil
	}

	return t.defragment()
}

// defragment relocates every live block to the low end of the data
// region in start order, then truncates the file to exactly the live
// byte count. This is the reclamation path for the garbage left behind
// by copy-on-write writes.
func (t *Table) defragment() error {
	old := t.alloc
	fresh := newAllocator(old.start, old.end)

	for _, u := range old.takeUsed() {
		newPos, ok := fresh.allocate(u.size, u.hash)
		if !ok {
			return fmt.Errorf("%w: defragment: no space for relocated block", ErrIO)
		}

		copy(t.f.mapped[newPos:newPos+uint64(u.size)], t.f.mapped[u.start:u.start+uint64(u.size)])
		t.idx.updateBlockPosition(u.hash, u.start, newPos)
	}

	t.alloc = fresh

	if err := t.resizeFd(t.idx.Capacity(), t.alloc.usedSize); err != nil {
		return err
	}

	if evicted := t.alloc.setEnd(t.dataStart + t.alloc.usedSize); len(evicted) != 0 {
		return fmt.Errorf("%w: defragment: unexpected eviction", ErrIO)
	}

	return nil
}

// Defragment relocates every live entry to the low end of the data
// region and truncates the file, reclaiming space left behind by
// copy-on-write writes regardless of the usual shrink threshold.
func (t *Table) Defragment() error {
	return t.defragment()
}

// Clear empties the table back to its initial, freshly-created geometry:
// the minimum index capacity and a zero-length data region.
func (t *Table) Clear() error {
	if err := t.resizeFd(initialIndexCapacity, initialDataSize); err != nil {
		return err
	}

	t.idx.clear()
	t.alloc = newAllocator(t.dataStart, t.dataStart+initialDataSize)
	t.hdr.setIndexCapacity(initialIndexCapacity)

	return nil
}
