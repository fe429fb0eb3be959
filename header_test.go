package persist

import "testing"

func TestHeaderMagicAndFlags(t *testing.T) {
	t.Parallel()

	buf := make([]byte, headerSize)
	h := newHeader(buf)

	if h.magicOK() {
		t.Fatal("fresh zeroed buffer should not have a valid magic")
	}

	h.writeMagic()

	if !h.magicOK() {
		t.Fatal("magicOK false after writeMagic")
	}

	if h.dirty() {
		t.Fatal("dirty should start false")
	}

	h.setDirty(true)

	if !h.dirty() {
		t.Fatal("dirty should be true after setDirty(true)")
	}

	h.setDirty(false)

	if h.dirty() {
		t.Fatal("dirty should be false after setDirty(false)")
	}
}

func TestHeaderDirtyAndEndianBitsIndependent(t *testing.T) {
	t.Parallel()

	buf := make([]byte, headerSize)
	h := newHeader(buf)

	h.setDirty(true)
	h.setWriterEndianness(true)

	if !h.dirty() || !h.writerWasBigEndian() {
		t.Fatal("setting both bits should leave both set")
	}

	h.setDirty(false)

	if !h.writerWasBigEndian() {
		t.Fatal("clearing dirty should not clear the endianness bit")
	}
}

func TestHeaderIndexCapacity(t *testing.T) {
	t.Parallel()

	buf := make([]byte, headerSize)
	h := newHeader(buf)

	h.setIndexCapacity(256)

	if got := h.indexCapacity(); got != 256 {
		t.Errorf("indexCapacity() = %d, want 256", got)
	}
}
