package persist

import "errors"

// Sentinel errors returned by Table operations. Callers should check these
// with errors.Is rather than comparing error strings.
var (
	// ErrIO wraps any OS-reported I/O failure: open, truncate, mmap, flush.
	ErrIO = errors.New("persist: io error")

	// ErrWrongHeader is returned when a file's magic does not match or the
	// file is too short to hold a header.
	ErrWrongHeader = errors.New("persist: wrong header")

	// ErrTableLocked is returned when the exclusive advisory lock on the
	// table file is already held by another process.
	ErrTableLocked = errors.New("persist: table locked")

	// ErrSerialize is returned by the typed/compressed wrappers in
	// internal/typed when encoding a key or value fails.
	ErrSerialize = errors.New("persist: serialize error")

	// ErrDeserialize is returned by the typed/compressed wrappers in
	// internal/typed when decoding a key or value fails.
	ErrDeserialize = errors.New("persist: deserialize error")
)

var (
	errKeyNotFound     = errors.New("persist: key not found")
	errInvalidIndexCap = errors.New("persist: invalid index capacity")
)
