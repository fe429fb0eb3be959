// Package hash computes the 64-bit keyed hash used to place keys in the
// index. It implements SipHash-1-3 (one compression round, three
// finalization rounds) with an all-zero 128-bit key, matching the fixed
// test vector hash("test") == 16183295663280961421.
//
// Any well-distributed 64-bit keyed hash satisfies the store's contract;
// this one is pinned so on-disk files are byte-for-byte reproducible
// across runs and implementations that agree on the same test vector.
package hash

import "math/bits"

const (
	k0 uint64 = 0 // zero key, low 64 bits
	k1 uint64 = 0 // zero key, high 64 bits

	initV0 = 0x736f6d6570736575
	initV1 = 0x646f72616e646f6d
	initV2 = 0x6c7967656e657261
	initV3 = 0x7465646279746573
)

// Key hashes b with SipHash-1-3 under the zero key and returns a nonzero
// 64-bit value. A real hash of zero is perturbed to 1: a zero hash marks
// an empty index slot, so a genuine zero hash must never occur.
func Key(b []byte) uint64 {
	h := sipHash13(b)
	if h == 0 {
		return 1
	}

	return h
}

func sipHash13(data []byte) uint64 {
	v0 := initV0 ^ k0
	v1 := initV1 ^ k1
	v2 := initV2 ^ k0
	v3 := initV3 ^ k1

	round := func() {
		v0 += v1
		v1 = bits.RotateLeft64(v1, 13)
		v1 ^= v0
		v0 = bits.RotateLeft64(v0, 32)
		v2 += v3
		v3 = bits.RotateLeft64(v3, 16)
		v3 ^= v2
		v0 += v3
		v3 = bits.RotateLeft64(v3, 21)
		v3 ^= v0
		v2 += v1
		v1 = bits.RotateLeft64(v1, 17)
		v1 ^= v2
		v2 = bits.RotateLeft64(v2, 32)
	}

	length := len(data)
	end := length - (length % 8)

	for i := 0; i < end; i += 8 {
		m := leUint64(data[i : i+8])
		v3 ^= m
		round() // c_rounds = 1
		v0 ^= m
	}

	var last [8]byte
	copy(last[:], data[end:])
	last[7] = byte(length)
	m := leUint64(last[:])
	v3 ^= m
	round()
	v0 ^= m

	v2 ^= 0xff
	round()
	round()
	round() // d_rounds = 3

	return v0 ^ v1 ^ v2 ^ v3
}

func leUint64(b []byte) uint64 {
	_ = b[7]

	return uint64(b[0]) | uint64(b[1])<<8 | uint64(b[2])<<16 | uint64(b[3])<<24 |
		uint64(b[4])<<32 | uint64(b[5])<<40 | uint64(b[6])<<48 | uint64(b[7])<<56
}
