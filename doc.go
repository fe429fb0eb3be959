// Package persist implements an embedded, single-process, persistent
// key/value store backed by a single memory-mapped file.
//
// The file is its own runtime data structure: a fixed header, a
// Robin-Hood open-addressed hash index, and a variable-length data
// region managed by a best-fit allocator. Reads and writes operate
// directly on the mapped pages; there is no write buffer between a
// caller and the file. The store is single-threaded and single-process:
// a second process opening the same file fails with [ErrTableLocked].
//
// Typical usage:
//
//	t, err := persist.OpenOrCreate("data.db")
//	if err != nil {
//		return err
//	}
//	defer t.Close()
//
//	if _, _, err := t.Set([]byte("key"), []byte("value")); err != nil {
//		return err
//	}
//	v, ok := t.Get([]byte("key"))
package persist
