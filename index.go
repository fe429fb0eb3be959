package persist

// locateResult classifies where a probe for a hash landed.
type locateResult int

const (
	locateHole locateResult = iota
	locateFound
	locateSteal
)

// index is the Robin-Hood open-addressed hash table stored in the
// mapping's index-slot array. Capacity is always a power of two;
// displacement is measured modulo capacity.
type index struct {
	slots    slots
	capacity uint32
	mask     uint32
	count    int
}

func newIndex(s slots, capacity uint32, count int) *index {
	return &index{slots: s, capacity: capacity, mask: capacity - 1, count: count}
}

func (x *index) Len() int          { return x.count }
func (x *index) Capacity() uint32  { return x.capacity }

func (x *index) idealSlot(hash uint64) uint32 {
	return uint32(hash) & x.mask
}

func (x *index) displacement(pos uint32, hash uint64) uint32 {
	return (pos - x.idealSlot(hash)) & x.mask
}

// locate walks the probe sequence for hash, applying match to any
// same-hash occupied slot it passes. It returns locateFound at the first
// matching slot, locateHole at the first empty slot, or locateSteal at
// the first slot whose displacement is exceeded by the probe distance
// (identical hashes never trigger a steal, so duplicate-hash chains are
// walked to their end).
func (x *index) locate(hash uint64, match func(entryData) bool) (locateResult, uint32) {
	pos := x.idealSlot(hash)

	for dist := uint32(0); ; dist++ {
		slot := x.slots.at(pos)

		if !slotUsed(slot) {
			return locateHole, pos
		}

		residentHash := slotHash(slot)
		if residentHash == hash && match(slotData(slot)) {
			return locateFound, pos
		}

		residentDisp := x.displacement(pos, residentHash)
		if dist > residentDisp && residentHash != hash {
			return locateSteal, pos
		}

		pos = (pos + 1) & x.mask
	}
}

// get returns the entry data for hash if match accepts an occupied slot
// carrying that hash.
func (x *index) get(hash uint64, match func(entryData) bool) (entryData, bool) {
	res, pos := x.locate(hash, match)
	if res != locateFound {
		return entryData{}, false
	}

	return slotData(x.slots.at(pos)), true
}

// robinHoodInsert writes (hash, data) at pos, displacing forward
// Robin-Hood style until a hole absorbs the trailing pair.
func (x *index) robinHoodInsert(pos uint32, hash uint64, data entryData) {
	curHash, curData := hash, data

	for {
		slot := x.slots.at(pos)

		if !slotUsed(slot) {
			writeSlot(slot, curHash, curData)

			return
		}

		residentHash := slotHash(slot)
		residentDisp := x.displacement(pos, residentHash)
		curDisp := x.displacement(pos, curHash)

		if curDisp > residentDisp && residentHash != curHash {
			residentData := slotData(slot)
			writeSlot(slot, curHash, curData)
			curHash, curData = residentHash, residentData
		}

		pos = (pos + 1) & x.mask
	}
}

// indexSet locates hash via match, installs data, and returns the
// previous entry if one was replaced.
func (x *index) indexSet(hash uint64, match func(entryData) bool, data entryData) (entryData, bool) {
	res, pos := x.locate(hash, match)

	switch res {
	case locateFound:
		slot := x.slots.at(pos)
		old := slotData(slot)
		setSlotData(slot, data)

		return old, true
	case locateHole:
		writeSlot(x.slots.at(pos), hash, data)
		x.count++

		return entryData{}, false
	default: // locateSteal
		x.robinHoodInsert(pos, hash, data)
		x.count++

		return entryData{}, false
	}
}

// setFresh inserts (hash, data) unconditionally, as a brand-new entry;
// used by the bulk re-insertion paths (grow/shrink/recovery) where every
// entry is already known to be unique.
func (x *index) setFresh(hash uint64, data entryData) {
	res, pos := x.locate(hash, func(entryData) bool { return false })
	if res == locateHole {
		writeSlot(x.slots.at(pos), hash, data)
	} else {
		x.robinHoodInsert(pos, hash, data)
	}

	x.count++
}

// indexDelete locates hash via match and, if found, backward-shifts
// every following displaced slot left by one until a hole or a
// zero-displacement slot is reached, then clears the vacated tail slot.
func (x *index) indexDelete(hash uint64, match func(entryData) bool) (entryData, bool) {
	res, pos := x.locate(hash, match)
	if res != locateFound {
		return entryData{}, false
	}

	old := slotData(x.slots.at(pos))

	hole := pos
	next := (pos + 1) & x.mask

	for {
		nslot := x.slots.at(next)
		if !slotUsed(nslot) {
			break
		}

		if x.displacement(next, slotHash(nslot)) == 0 {
			break
		}

		copy(x.slots.at(hole), nslot)

		hole = next
		next = (next + 1) & x.mask
	}

	clearSlot(x.slots.at(hole))
	x.count--

	return old, true
}

// snapshot collects every occupied slot's (hash, data) pair and clears
// the slot array, for the bulk re-insertion passes below.
func (x *index) snapshot() []struct {
	hash uint64
	data entryData
} {
	out := make([]struct {
		hash uint64
		data entryData
	}, 0, x.count)

	for i := uint32(0); i < x.capacity; i++ {
		s := x.slots.at(i)
		if slotUsed(s) {
			out = append(out, struct {
				hash uint64
				data entryData
			}{slotHash(s), slotData(s)})
			clearSlot(s)
		}
	}

	return out
}

// growFromHalf re-keys a table that has just been re-sliced to double
// capacity: the upper half is zeroed and every slot of the (old) lower
// half is re-inserted, since some may now belong in the new half.
func (x *index) growFromHalf() {
	oldCap := x.capacity / 2

	for i := oldCap; i < x.capacity; i++ {
		clearSlot(x.slots.at(i))
	}

	entries := make([]struct {
		hash uint64
		data entryData
	}, 0)

	for i := uint32(0); i < oldCap; i++ {
		s := x.slots.at(i)
		if slotUsed(s) {
			entries = append(entries, struct {
				hash uint64
				data entryData
			}{slotHash(s), slotData(s)})
			clearSlot(s)
		}
	}

	x.count = 0

	for _, e := range entries {
		x.setFresh(e.hash, e.data)
	}
}

// shrinkToHalf halves the index's logical capacity in place, over the
// still-larger slot array: every occupied slot of both halves is
// collected and cleared, then the lower half's entries are re-inserted
// under the smaller mask, followed by the upper half's. The caller is
// responsible for re-slicing the slot view to the smaller capacity
// after the table file itself shrinks.
func (x *index) shrinkToHalf() {
	newCap := x.capacity / 2

	type ent struct {
		hash uint64
		data entryData
	}

	var displaced, lower []ent

	for i := newCap; i < x.capacity; i++ {
		s := x.slots.at(i)
		if slotUsed(s) {
			displaced = append(displaced, ent{slotHash(s), slotData(s)})
			clearSlot(s)
		}
	}

	for i := uint32(0); i < newCap; i++ {
		s := x.slots.at(i)
		if slotUsed(s) {
			lower = append(lower, ent{slotHash(s), slotData(s)})
			clearSlot(s)
		}
	}

	x.capacity = newCap
	x.mask = newCap - 1
	x.count = 0

	for _, e := range lower {
		x.setFresh(e.hash, e.data)
	}

	for _, e := range displaced {
		x.setFresh(e.hash, e.data)
	}
}

// reinsertAll clears and re-inserts every occupied slot. Used for crash
// recovery: any half-completed resize can leave entries displaced
// relative to their ideal probe sequence, and a full re-insertion
// restores the Robin-Hood invariants regardless of the prior state.
func (x *index) reinsertAll() {
	entries := x.snapshot()
	x.count = 0

	for _, e := range entries {
		x.setFresh(e.hash, e.data)
	}
}

// updateBlockPosition finds the unique slot carrying (hash, oldPos) and
// rewrites its position. Used when the allocator relocates a block
// during compaction or index growth.
func (x *index) updateBlockPosition(hash uint64, oldPos, newPos uint64) {
	pos := x.idealSlot(hash)

	for {
		s := x.slots.at(pos)
		if !slotUsed(s) {
			return
		}

		if slotHash(s) == hash {
			d := slotData(s)
			if d.position == oldPos {
				d.position = newPos
				setSlotData(s, d)

				return
			}
		}

		pos = (pos + 1) & x.mask
	}
}

func (x *index) clear() {
	for i := uint32(0); i < x.capacity; i++ {
		clearSlot(x.slots.at(i))
	}

	x.count = 0
}

func (x *index) isValid() bool {
	count := 0

	for i := uint32(0); i < x.capacity; i++ {
		s := x.slots.at(i)
		if !slotUsed(s) {
			continue
		}

		count++

		data := slotData(s)
		if uint32(data.keySize) > data.size {
			return false
		}

		res, pos := x.locate(slotHash(s), func(other entryData) bool { return other == data })
		if res != locateFound || pos != i {
			return false
		}
	}

	return count == x.count
}
