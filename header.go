package persist

import "encoding/binary"

// header is a live view over the first headerSize bytes of the mapping.
// Every accessor reads or writes directly into the mapped page; there is
// no intermediate copy.
type header struct {
	b []byte // len == headerSize, backed by the mmap
}

func newHeader(mapping []byte) header {
	return header{b: mapping[:headerSize:headerSize]}
}

func (h header) magicOK() bool {
	for i, want := range headerMagic {
		if h.b[i] != want {
			return false
		}
	}

	return true
}

func (h header) writeMagic() {
	copy(h.b[0:16], headerMagic[:])
}

func (h header) flagBit(byteOff, bit int) bool {
	return h.b[16+byteOff]&(1<<uint(bit)) != 0
}

func (h header) setFlagBit(byteOff, bit int, v bool) {
	mask := byte(1) << uint(bit)
	if v {
		h.b[16+byteOff] |= mask
	} else {
		h.b[16+byteOff] &^= mask
	}
}

func (h header) dirty() bool       { return h.flagBit(flagByteDirty, flagBitDirty) }
func (h header) setDirty(v bool)   { h.setFlagBit(flagByteDirty, flagBitDirty, v) }

// writerWasBigEndian reports the endianness flag left by the last writer.
func (h header) writerWasBigEndian() bool { return h.flagBit(flagByteEndian, flagBitEndian) }

func (h header) setWriterEndianness(bigEndian bool) {
	h.setFlagBit(flagByteEndian, flagBitEndian, bigEndian)
}

// indexCapacity reads the 32-bit capacity field using host-native byte
// order; if the file was written under a different endianness, the
// caller must swap the field (as open does) before relying on it.
func (h header) indexCapacity() uint32 {
	return binary.NativeEndian.Uint32(h.b[32:36])
}

func (h header) setIndexCapacity(v uint32) {
	binary.NativeEndian.PutUint32(h.b[32:36], v)
}
