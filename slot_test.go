package persist

import "testing"

func TestSlotRoundTrip(t *testing.T) {
	t.Parallel()

	buf := make([]byte, indexSlotSize*4)
	sl := slots{b: buf}

	d := entryData{position: 12345, size: 678, keySize: 9, flags: 0xabcd}
	writeSlot(sl.at(2), 0xfeedface, d)

	if !slotUsed(sl.at(2)) {
		t.Fatal("slot should be used after writeSlot")
	}

	if got := slotHash(sl.at(2)); got != 0xfeedface {
		t.Errorf("slotHash = %#x, want %#x", got, 0xfeedface)
	}

	if got := slotData(sl.at(2)); got != d {
		t.Errorf("slotData = %+v, want %+v", got, d)
	}

	clearSlot(sl.at(2))

	if slotUsed(sl.at(2)) {
		t.Fatal("slot should not be used after clearSlot")
	}
}

func TestSlotZeroHashIsUnused(t *testing.T) {
	t.Parallel()

	buf := make([]byte, indexSlotSize)

	if slotUsed(buf) {
		t.Fatal("a zeroed slot must read as unused (zero hash is the empty sentinel)")
	}
}

func TestFixSlotEndianness(t *testing.T) {
	t.Parallel()

	buf := make([]byte, indexSlotSize)
	sl := slots{b: buf}

	d := entryData{position: 0x0102030405060708, size: 0x11223344, keySize: 0x5566, flags: 0x7788}
	writeSlot(sl.at(0), 0x0a0b0c0d0e0f1011, d)

	fixSlotEndianness(sl.at(0))
	fixSlotEndianness(sl.at(0))

	if got := slotHash(sl.at(0)); got != 0x0a0b0c0d0e0f1011 {
		t.Errorf("hash after double swap = %#x, want original", got)
	}

	if got := slotData(sl.at(0)); got != d {
		t.Errorf("data after double swap = %+v, want %+v", got, d)
	}
}
