package persist

import (
	"bytes"
	"fmt"
	"os"

	"github.com/persistkv/persist/internal/hash"
)

// Entry is a stored key/value pair together with its caller-controlled
// flags bits.
type Entry struct {
	Key   []byte
	Value []byte
	Flags uint16
}

// Stats summarizes a table's size and occupancy.
type Stats struct {
	Valid     bool
	Entries   int
	Size      uint64
	HashSize  uint64
	HashFree  uint64
	DataSize  uint64
	DataFree  uint64
}

// Table is a persistent hash table mapping byte-string keys to
// byte-string values, backed by a single memory-mapped file. It owns
// the file handle, the mapping, and every live view into it exclusively;
// none of those are safe to share across goroutines without external
// synchronization, and never across processes (see ErrTableLocked).
type Table struct {
	f *file

	hdr       header
	idx       *index
	alloc     *allocator
	dataStart uint64

	maxEntries int
	minEntries int
}

func deriveBounds(capacity uint32) (maxEntries, minEntries int) {
	return int(float64(capacity) * maxUsage), int(float64(capacity) * minUsage)
}

func open(path string, create bool) (*Table, error) {
	f, err := openFile(path, create)
	if err != nil {
		return nil, err
	}

	info, err := f.fd.Stat()
	if err != nil {
		_ = f.close()

		return nil, fmt.Errorf("%w: stat %q: %w", ErrIO, path, err)
	}

	if create && info.Size() == 0 {
		if err := f.setLen(totalSize(initialIndexCapacity, initialDataSize)); err != nil {
			_ = f.close()

			return nil, err
		}
	} else if err := f.remap(); err != nil {
		_ = f.close()

		return nil, err
	}

	if len(f.mapped) < headerSize {
		_ = f.close()

		return nil, fmt.Errorf("%w: %q shorter than header", ErrWrongHeader, path)
	}

	hdr := newHeader(f.mapped)

	if create && info.Size() == 0 {
		hdr.writeMagic()
		hdr.setIndexCapacity(initialIndexCapacity)
		hdr.setWriterEndianness(nativeIsBigEndian)
	}

	if !hdr.magicOK() {
		_ = f.close()

		return nil, fmt.Errorf("%w: %q", ErrWrongHeader, path)
	}

	if hdr.writerWasBigEndian() != nativeIsBigEndian {
		capacity := swap32(hdr.indexCapacity())
		sl := newSlots(f.mapped[headerSize:], capacity)

		for i := uint32(0); i < capacity; i++ {
			s := sl.at(i)
			if slotUsed(s) {
				fixSlotEndianness(s)
			}
		}

		hdr.setIndexCapacity(capacity)
		hdr.setWriterEndianness(nativeIsBigEndian)
	}

	capacity := hdr.indexCapacity()
	if capacity == 0 || capacity&(capacity-1) != 0 {
		_ = f.close()

		return nil, fmt.Errorf("%w: capacity %d", errInvalidIndexCap, capacity)
	}

	dataStart := totalSize(capacity, 0)
	sl := newSlots(f.mapped[headerSize:], capacity)

	alloc := newAllocator(dataStart, uint64(len(f.mapped)))

	count := 0

	for i := uint32(0); i < capacity; i++ {
		s := sl.at(i)
		if !slotUsed(s) {
			continue
		}

		if create {
			clearSlot(s)

			continue
		}

		d := slotData(s)
		alloc.setUsed(d.position, d.size, slotHash(s))
		count++
	}

	alloc.fixUp()

	idx := newIndex(sl, capacity, count)

	if hdr.dirty() {
		idx.reinsertAll()
		hdr.setDirty(false)
	}

	maxEntries, minEntries := deriveBounds(capacity)

	t := &Table{
		f:          f,
		hdr:        hdr,
		idx:        idx,
		alloc:      alloc,
		dataStart:  dataStart,
		maxEntries: maxEntries,
		minEntries: minEntries,
	}

	return t, nil
}

// Create creates a new, empty table at path, overwriting it if it
// already exists.
func Create(path string) (*Table, error) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: remove %q: %w", ErrIO, path, err)
	}

	return open(path, true)
}

// Open opens an existing table at path.
func Open(path string) (*Table, error) {
	return open(path, false)
}

// OpenOrCreate opens path if it exists, or creates a new table there.
func OpenOrCreate(path string) (*Table, error) {
	if _, err := os.Stat(path); err == nil {
		return Open(path)
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: stat %q: %w", ErrIO, path, err)
	}

	return Create(path)
}

// Close releases the table's file handle, mapping, and advisory lock.
func (t *Table) Close() error {
	return t.f.close()
}

// Flush requests the OS to write back the mapping's dirty pages.
func (t *Table) Flush() error {
	return t.f.flush()
}

// Len returns the number of key/value pairs stored in the table.
func (t *Table) Len() int { return t.idx.Len() }

// IsEmpty reports whether the table holds no entries.
func (t *Table) IsEmpty() bool { return t.idx.Len() == 0 }

// Size returns the raw file size in bytes.
func (t *Table) Size() uint64 { return uint64(len(t.f.mapped)) }

func (t *Table) getData(pos uint64, size uint32) []byte {
	if size == 0 {
		return nil
	}

	start := pos - t.dataStart

	return t.f.mapped[t.dataStart+start : t.dataStart+start+uint64(size)]
}

func (t *Table) matchKey(d entryData, key []byte) bool {
	if len(key) == 0 && d.keySize == 0 {
		return true
	}

	stored := t.getData(d.position, d.size)

	return bytes.Equal(stored[:d.keySize], key)
}

func (t *Table) entryFrom(d entryData) Entry {
	data := t.getData(d.position, d.size)
	key := data[:d.keySize]
	value := data[d.keySize:]

	return Entry{Key: key, Value: value, Flags: d.flags}
}

// Contains reports whether key has a stored value.
func (t *Table) Contains(key []byte) bool {
	h := hash.Key(key)
	_, ok := t.idx.get(h, func(d entryData) bool { return t.matchKey(d, key) })

	return ok
}

// GetEntry returns the full stored entry for key, or false if absent.
// The returned slices are views into the mapping, valid until the next
// mutating call.
func (t *Table) GetEntry(key []byte) (Entry, bool) {
	h := hash.Key(key)

	d, ok := t.idx.get(h, func(d entryData) bool { return t.matchKey(d, key) })
	if !ok {
		return Entry{}, false
	}

	return t.entryFrom(d), true
}

// Get returns the stored value for key, or false if absent.
func (t *Table) Get(key []byte) ([]byte, bool) {
	e, ok := t.GetEntry(key)
	if !ok {
		return nil, false
	}

	return e.Value, true
}

// GetEntryMut returns the full stored entry for key, or false if absent.
// It is identical to GetEntry: the returned slices already alias the
// mapping, so writing through them mutates the stored bytes in place
// without a separate mutable accessor. Kept under this name for callers
// porting code that expects a distinct mutable-access path.
func (t *Table) GetEntryMut(key []byte) (Entry, bool) {
	return t.GetEntry(key)
}

// GetMut returns the stored value for key, or false if absent. See
// GetEntryMut: the slice it returns already aliases the mapping.
func (t *Table) GetMut(key []byte) ([]byte, bool) {
	e, ok := t.GetEntryMut(key)
	if !ok {
		return nil, false
	}

	return e.Value, true
}

func (t *Table) allocateData(h uint64, size uint32) (uint64, error) {
	if size < 1 {
		size = 1
	}

	if pos, ok := t.alloc.allocate(size, h); ok {
		return pos, nil
	}

	if err := t.extendData(size); err != nil {
		return 0, err
	}

	pos, ok := t.alloc.allocate(size, h)
	if !ok {
		return 0, fmt.Errorf("%w: no space after extend", ErrIO)
	}

	return pos, nil
}

// SetEntry stores entry, returning the previous entry for its key if
// one existed. The write never overwrites the previous value's bytes in
// place: it allocates fresh space for the new value and frees the old
// space only after the new one is fully installed, so a crash mid-write
// never corrupts the old value.
func (t *Table) SetEntry(entry Entry) (Entry, bool, error) {
	if err := t.maybeExtendIndex(); err != nil {
		return Entry{}, false, err
	}

	if err := t.maybeShrinkData(); err != nil {
		return Entry{}, false, err
	}

	h := hash.Key(entry.Key)
	length := uint32(len(entry.Key) + len(entry.Value))

	pos, err := t.allocateData(h, length)
	if err != nil {
		return Entry{}, false, err
	}

	if length > 0 {
		space := t.getData(pos, length)
		copy(space[:len(entry.Key)], entry.Key)
		copy(space[len(entry.Key):], entry.Value)
	}

	newData := entryData{position: pos, size: length, keySize: uint16(len(entry.Key)), flags: entry.Flags}

	old, hadOld := t.idx.indexSet(h, func(d entryData) bool { return t.matchKey(d, entry.Key) }, newData)
	if hadOld {
		oldEntry := t.entryFromDetached(old)
		t.alloc.free(old.position)

		return oldEntry, true, nil
	}

	return Entry{}, false, nil
}

// entryFromDetached materializes an entry's bytes before its backing
// data block is freed, since getData would otherwise alias freed space.
func (t *Table) entryFromDetached(d entryData) Entry {
	data := t.getData(d.position, d.size)
	key := append([]byte(nil), data[:d.keySize]...)
	value := append([]byte(nil), data[d.keySize:]...)

	return Entry{Key: key, Value: value, Flags: d.flags}
}

// Set stores value under key, returning the previous value if one
// existed.
func (t *Table) Set(key, value []byte) ([]byte, bool, error) {
	old, had, err := t.SetEntry(Entry{Key: key, Value: value})
	if err != nil || !had {
		return nil, false, err
	}

	return old.Value, true, nil
}

func (t *Table) deleteEntryNoShrink(key []byte) (Entry, bool) {
	h := hash.Key(key)

	old, ok := t.idx.indexDelete(h, func(d entryData) bool { return t.matchKey(d, key) })
	if !ok {
		return Entry{}, false
	}

	entry := t.entryFromDetached(old)
	t.alloc.free(old.position)

	return entry, true
}

// DeleteEntry removes key's entry, returning it if present.
func (t *Table) DeleteEntry(key []byte) (Entry, bool, error) {
	if err := t.maybeShrinkIndex(); err != nil {
		return Entry{}, false, err
	}

	if err := t.maybeShrinkData(); err != nil {
		return Entry{}, false, err
	}

	e, ok := t.deleteEntryNoShrink(key)

	return e, ok, nil
}

// Delete removes key's value, returning it if present.
func (t *Table) Delete(key []byte) ([]byte, bool, error) {
	e, ok, err := t.DeleteEntry(key)
	if err != nil || !ok {
		return nil, false, err
	}

	return e.Value, true, nil
}

// Each calls fn for every live entry in physical slot order. It stops
// early if fn returns false.
func (t *Table) Each(fn func(Entry) bool) {
	for i := uint32(0); i < t.idx.Capacity(); i++ {
		s := t.idx.slots.at(i)
		if !slotUsed(s) {
			continue
		}

		if !fn(t.entryFrom(slotData(s))) {
			return
		}
	}
}

// EachMut calls fn for every live entry in physical slot order, same as
// Each: the Entry handed to fn already carries slices that alias the
// mapping, so mutating them through fn writes back in place.
func (t *Table) EachMut(fn func(Entry) bool) {
	t.Each(fn)
}

// Iter returns every live entry as a slice, in physical slot order.
func (t *Table) Iter() []Entry {
	out := make([]Entry, 0, t.idx.Len())

	t.Each(func(e Entry) bool {
		out = append(out, e)

		return true
	})

	return out
}

// Filter deletes every entry for which pred returns false. Index and
// data shrinking are deferred until the pass completes, so the physical
// walk is never invalidated by a shrink triggered mid-pass.
func (t *Table) Filter(pred func(Entry) bool) error {
	var toDelete [][]byte

	t.Each(func(e Entry) bool {
		if !pred(e) {
			toDelete = append(toDelete, append([]byte(nil), e.Key...))
		}

		return true
	})

	for _, key := range toDelete {
		t.deleteEntryNoShrink(key)
	}

	if err := t.maybeShrinkIndex(); err != nil {
		return err
	}

	return t.maybeShrinkData()
}

// Stats reports the table's current size and occupancy.
func (t *Table) Stats() Stats {
	capacity := uint64(t.idx.Capacity())

	return Stats{
		Valid:    t.isValid(),
		Entries:  t.idx.Len(),
		Size:     t.Size(),
		HashSize: capacity * indexSlotSize,
		HashFree: (capacity - uint64(t.idx.Len())) * indexSlotSize,
		DataSize: t.alloc.end - t.alloc.start,
		DataFree: t.alloc.end - t.alloc.start - t.alloc.usedSize,
	}
}

func (t *Table) isValid() bool {
	if !t.idx.isValid() || !t.alloc.isValid() {
		return false
	}

	if t.alloc.start < t.dataStart || t.alloc.end > uint64(len(t.f.mapped)) {
		return false
	}

	return true
}

// IsValid reports whether the table's index and allocator bookkeeping
// are mutually consistent. Intended for tests and diagnostics.
func (t *Table) IsValid() bool { return t.isValid() }
