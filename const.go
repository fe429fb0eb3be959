package persist

const (
	// maxUsage and minUsage bound index occupancy; crossing them triggers
	// a grow or shrink of the index capacity.
	maxUsage = 0.90
	minUsage = 0.35

	// initialIndexCapacity is the slot count a freshly created table
	// starts with. Must be a power of two.
	initialIndexCapacity = 128

	// initialDataSize is the data region length a freshly created table
	// starts with.
	initialDataSize = 0

	// shrinkDataFloor is the data region length below which defragment
	// is never triggered by usage alone, avoiding needless resizes of
	// small files.
	shrinkDataFloor = 4 * 1024
)

// headerMagic identifies the file format and its version. It is
// byte-symmetric, so no endianness handling applies to it.
var headerMagic = [16]byte{'r', 'u', 's', 't', '-', 'p', 'e', 'r', 's', 'i', 's', 't', '-', '0', '1', '\n'}

const (
	headerSize   = 36 // magic(16) + flags(16) + index_capacity(4)
	indexSlotSize = 24 // hash(8) + position(8) + size(4) + key_size(2) + flags(2)
)

const (
	flagByteDirty     = 0
	flagBitDirty      = 0
	flagByteEndian    = 0
	flagBitEndian     = 1
)
