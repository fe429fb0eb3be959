package persist

import (
	"encoding/binary"
	"math/bits"
)

// nativeIsBigEndian reports whether the running process stores multi-byte
// integers in big-endian order. The on-disk header and index slots are
// written in the writer's native order (mirroring the original format's
// repr(C) struct layout) and tagged with that order via a header flag, so
// a reader on the opposite endianness can detect and correct it.
var nativeIsBigEndian = func() bool {
	buf := make([]byte, 2)
	binary.NativeEndian.PutUint16(buf, 1)

	return buf[0] == 0
}()

func swap32(v uint32) uint32 { return bits.ReverseBytes32(v) }
func swap64(v uint64) uint64 { return bits.ReverseBytes64(v) }
