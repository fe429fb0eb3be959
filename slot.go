package persist

import (
	"encoding/binary"
	"math/bits"
)

// entryData is the payload of an index slot, everything but the hash.
type entryData struct {
	position uint64
	size     uint32
	keySize  uint16
	flags    uint16
}

// slots is a live view over the capacity*indexSlotSize bytes of the
// mapping holding the index array. Layout per slot: hash(8) position(8)
// size(4) key_size(2) flags(2), host-native byte order.
type slots struct {
	b []byte
}

func newSlots(mapping []byte, capacity uint32) slots {
	n := int(capacity) * indexSlotSize

	return slots{b: mapping[:n:n]}
}

func (s slots) at(i uint32) []byte {
	off := int(i) * indexSlotSize

	return s.b[off : off+indexSlotSize : off+indexSlotSize]
}

func slotHash(b []byte) uint64 { return binary.NativeEndian.Uint64(b[0:8]) }

func setSlotHash(b []byte, v uint64) { binary.NativeEndian.PutUint64(b[0:8], v) }

func slotData(b []byte) entryData {
	return entryData{
		position: binary.NativeEndian.Uint64(b[8:16]),
		size:     binary.NativeEndian.Uint32(b[16:20]),
		keySize:  binary.NativeEndian.Uint16(b[20:22]),
		flags:    binary.NativeEndian.Uint16(b[22:24]),
	}
}

func setSlotData(b []byte, d entryData) {
	binary.NativeEndian.PutUint64(b[8:16], d.position)
	binary.NativeEndian.PutUint32(b[16:20], d.size)
	binary.NativeEndian.PutUint16(b[20:22], d.keySize)
	binary.NativeEndian.PutUint16(b[22:24], d.flags)
}

func writeSlot(b []byte, hash uint64, d entryData) {
	setSlotHash(b, hash)
	setSlotData(b, d)
}

func slotUsed(b []byte) bool { return slotHash(b) != 0 }

func clearSlot(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

// fixSlotEndianness byte-swaps every multi-byte field of a slot written
// under the opposite endianness.
func fixSlotEndianness(b []byte) {
	h := swap64(binary.NativeEndian.Uint64(b[0:8]))
	pos := swap64(binary.NativeEndian.Uint64(b[8:16]))
	size := swap32(binary.NativeEndian.Uint32(b[16:20]))
	ks := bits.ReverseBytes16(binary.NativeEndian.Uint16(b[20:22]))
	fl := bits.ReverseBytes16(binary.NativeEndian.Uint16(b[22:24]))
	binary.NativeEndian.PutUint64(b[0:8], h)
	binary.NativeEndian.PutUint64(b[8:16], pos)
	binary.NativeEndian.PutUint32(b[16:20], size)
	binary.NativeEndian.PutUint16(b[20:22], ks)
	binary.NativeEndian.PutUint16(b[22:24], fl)
}
