package persist

import (
	"errors"
	"path/filepath"
	"testing"
)

func newTestTable(t *testing.T) *Table {
	t.Helper()

	path := filepath.Join(t.TempDir(), "table.db")

	tbl, err := Create(path)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	t.Cleanup(func() { _ = tbl.Close() })

	return tbl
}

func TestTableSetGetOverwriteDelete(t *testing.T) {
	t.Parallel()

	tbl := newTestTable(t)

	if _, had, err := tbl.Set([]byte("a"), []byte("1")); err != nil || had {
		t.Fatalf("first Set: had=%v err=%v", had, err)
	}

	v, ok := tbl.Get([]byte("a"))
	if !ok || string(v) != "1" {
		t.Fatalf("Get(a) = (%q, %v), want (1, true)", v, ok)
	}

	old, had, err := tbl.Set([]byte("a"), []byte("2"))
	if err != nil || !had || string(old) != "1" {
		t.Fatalf("overwrite Set = (%q, %v, %v), want (1, true, nil)", old, had, err)
	}

	v, ok = tbl.Get([]byte("a"))
	if !ok || string(v) != "2" {
		t.Fatalf("Get(a) after overwrite = (%q, %v), want (2, true)", v, ok)
	}

	deleted, had, err := tbl.Delete([]byte("a"))
	if err != nil || !had || string(deleted) != "2" {
		t.Fatalf("Delete(a) = (%q, %v, %v), want (2, true, nil)", deleted, had, err)
	}

	if _, ok := tbl.Get([]byte("a")); ok {
		t.Fatal("Get(a) should miss after Delete")
	}

	if _, had, err := tbl.Delete([]byte("a")); err != nil || had {
		t.Fatalf("Delete of an absent key: had=%v err=%v", had, err)
	}
}

func TestTableZeroLengthValue(t *testing.T) {
	t.Parallel()

	tbl := newTestTable(t)

	if _, _, err := tbl.Set([]byte("empty"), nil); err != nil {
		t.Fatalf("Set with nil value: %v", err)
	}

	v, ok := tbl.Get([]byte("empty"))
	if !ok || len(v) != 0 {
		t.Fatalf("Get(empty) = (%v, %v), want (empty slice, true)", v, ok)
	}

	if !tbl.Contains([]byte("empty")) {
		t.Fatal("Contains(empty) should be true")
	}
}

func TestTableZeroLengthKey(t *testing.T) {
	t.Parallel()

	tbl := newTestTable(t)

	if _, _, err := tbl.Set(nil, []byte("v")); err != nil {
		t.Fatalf("Set with nil key: %v", err)
	}

	v, ok := tbl.Get(nil)
	if !ok || string(v) != "v" {
		t.Fatalf("Get(nil) = (%q, %v), want (v, true)", v, ok)
	}
}

func TestTableGrowsIndexOnManyInserts(t *testing.T) {
	t.Parallel()

	tbl := newTestTable(t)

	startCap := tbl.idx.Capacity()

	const n = 200

	for i := range n {
		key := []byte{byte(i), byte(i >> 8)}
		if _, _, err := tbl.Set(key, []byte("value")); err != nil {
			t.Fatalf("Set(%d): %v", i, err)
		}
	}

	if tbl.idx.Capacity() <= startCap {
		t.Fatalf("index capacity did not grow: started %d, now %d", startCap, tbl.idx.Capacity())
	}

	if tbl.Len() != n {
		t.Fatalf("Len() = %d, want %d", tbl.Len(), n)
	}

	if !tbl.isValid() {
		t.Fatal("table invalid after many inserts")
	}

	for i := range n {
		key := []byte{byte(i), byte(i >> 8)}
		if _, ok := tbl.Get(key); !ok {
			t.Fatalf("Get(%d) missing after growth", i)
		}
	}
}

func TestTableShrinksIndexOnManyDeletes(t *testing.T) {
	t.Parallel()

	tbl := newTestTable(t)

	const n = 200

	keys := make([][]byte, n)

	for i := range n {
		keys[i] = []byte{byte(i), byte(i >> 8)}
		if _, _, err := tbl.Set(keys[i], []byte("value")); err != nil {
			t.Fatalf("Set(%d): %v", i, err)
		}
	}

	grownCap := tbl.idx.Capacity()

	for i := 0; i < n-5; i++ {
		if _, _, err := tbl.Delete(keys[i]); err != nil {
			t.Fatalf("Delete(%d): %v", i, err)
		}
	}

	if tbl.idx.Capacity() >= grownCap {
		t.Fatalf("index capacity did not shrink: grown %d, now %d", grownCap, tbl.idx.Capacity())
	}

	if !tbl.isValid() {
		t.Fatal("table invalid after shrink")
	}

	for i := n - 5; i < n; i++ {
		if _, ok := tbl.Get(keys[i]); !ok {
			t.Fatalf("Get(%d) missing after shrink", i)
		}
	}
}

func TestTableLargeEntry(t *testing.T) {
	t.Parallel()

	tbl := newTestTable(t)

	value := make([]byte, 64*1024)
	for i := range value {
		value[i] = byte(i)
	}

	if _, _, err := tbl.Set([]byte("big"), value); err != nil {
		t.Fatalf("Set large value: %v", err)
	}

	got, ok := tbl.Get([]byte("big"))
	if !ok || len(got) != len(value) {
		t.Fatalf("Get(big) len = %d, ok=%v, want %d", len(got), ok, len(value))
	}

	for i := range value {
		if got[i] != value[i] {
			t.Fatalf("byte %d mismatch: got %d, want %d", i, got[i], value[i])
		}
	}
}

func TestTableDefragmentReclaimsSpace(t *testing.T) {
	t.Parallel()

	tbl := newTestTable(t)

	value := make([]byte, 1024)

	const n = 50

	for i := range n {
		key := []byte{byte(i)}
		if _, _, err := tbl.Set(key, value); err != nil {
			t.Fatalf("Set(%d): %v", i, err)
		}
	}

	for i := 0; i < n; i += 2 {
		key := []byte{byte(i)}
		if _, _, err := tbl.Delete(key); err != nil {
			t.Fatalf("Delete(%d): %v", i, err)
		}
	}

	sizeBefore := tbl.Size()

	if err := tbl.Defragment(); err != nil {
		t.Fatalf("Defragment: %v", err)
	}

	if tbl.Size() > sizeBefore {
		t.Fatalf("Size grew after Defragment: %d -> %d", sizeBefore, tbl.Size())
	}

	if !tbl.isValid() {
		t.Fatal("table invalid after Defragment")
	}

	for i := 1; i < n; i += 2 {
		key := []byte{byte(i)}
		if _, ok := tbl.Get(key); !ok {
			t.Fatalf("Get(%d) missing after Defragment", i)
		}
	}
}

func TestTableIterEachFilter(t *testing.T) {
	t.Parallel()

	tbl := newTestTable(t)

	for i := range 10 {
		key := []byte{byte(i)}
		if _, _, err := tbl.Set(key, []byte("v")); err != nil {
			t.Fatalf("Set(%d): %v", i, err)
		}
	}

	if len(tbl.Iter()) != 10 {
		t.Fatalf("Iter() len = %d, want 10", len(tbl.Iter()))
	}

	seen := 0
	tbl.Each(func(Entry) bool {
		seen++

		return seen < 3
	})

	if seen != 3 {
		t.Fatalf("Each() stopped early at %d, want exactly 3", seen)
	}

	if err := tbl.Filter(func(e Entry) bool { return e.Key[0]%2 == 0 }); err != nil {
		t.Fatalf("Filter: %v", err)
	}

	if tbl.Len() != 5 {
		t.Fatalf("Len() after Filter = %d, want 5", tbl.Len())
	}

	for i := range 10 {
		key := []byte{byte(i)}

		_, ok := tbl.Get(key)
		if i%2 == 0 && !ok {
			t.Fatalf("even key %d should survive Filter", i)
		}

		if i%2 == 1 && ok {
			t.Fatalf("odd key %d should be removed by Filter", i)
		}
	}
}

func TestTableClear(t *testing.T) {
	t.Parallel()

	tbl := newTestTable(t)

	for i := range 20 {
		key := []byte{byte(i)}
		if _, _, err := tbl.Set(key, []byte("v")); err != nil {
			t.Fatalf("Set(%d): %v", i, err)
		}
	}

	if err := tbl.Clear(); err != nil {
		t.Fatalf("Clear: %v", err)
	}

	if tbl.Len() != 0 || !tbl.IsEmpty() {
		t.Fatalf("table not empty after Clear: Len=%d", tbl.Len())
	}

	if tbl.idx.Capacity() != initialIndexCapacity {
		t.Fatalf("index capacity after Clear = %d, want %d", tbl.idx.Capacity(), initialIndexCapacity)
	}

	if _, _, err := tbl.Set([]byte("x"), []byte("y")); err != nil {
		t.Fatalf("Set after Clear: %v", err)
	}

	if v, ok := tbl.Get([]byte("x")); !ok || string(v) != "y" {
		t.Fatalf("Get(x) after Clear+Set = (%q, %v)", v, ok)
	}
}

func TestTableStats(t *testing.T) {
	t.Parallel()

	tbl := newTestTable(t)

	for i := range 5 {
		key := []byte{byte(i)}
		if _, _, err := tbl.Set(key, []byte("value")); err != nil {
			t.Fatalf("Set(%d): %v", i, err)
		}
	}

	s := tbl.Stats()
	if !s.Valid {
		t.Fatal("Stats().Valid = false")
	}

	if s.Entries != 5 {
		t.Fatalf("Stats().Entries = %d, want 5", s.Entries)
	}

	if s.Size != tbl.Size() {
		t.Fatalf("Stats().Size = %d, want %d", s.Size, tbl.Size())
	}
}

func TestTableCloseAndReopenRoundTrips(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "table.db")

	tbl, err := Create(path)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	for i := range 30 {
		key := []byte{byte(i)}
		if _, _, err := tbl.Set(key, []byte("value")); err != nil {
			t.Fatalf("Set(%d): %v", i, err)
		}
	}

	if err := tbl.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	reopened, err := Open(path)
	if err != nil {
		t.Fatalf("Open after Close: %v", err)
	}

	t.Cleanup(func() { _ = reopened.Close() })

	if reopened.Len() != 30 {
		t.Fatalf("Len() after reopen = %d, want 30", reopened.Len())
	}

	for i := range 30 {
		key := []byte{byte(i)}
		if _, ok := reopened.Get(key); !ok {
			t.Fatalf("Get(%d) missing after reopen", i)
		}
	}

	if !reopened.isValid() {
		t.Fatal("table invalid after reopen")
	}
}

func TestTableReopenWhileLockedFails(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "table.db")

	tbl, err := Create(path)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	t.Cleanup(func() { _ = tbl.Close() })

	_, err = Open(path)
	if !errors.Is(err, ErrTableLocked) {
		t.Fatalf("Open of a locked table: err = %v, want ErrTableLocked", err)
	}
}

func TestTableDirtyBitRecoversOnReopen(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "table.db")

	tbl, err := Create(path)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	for i := range 10 {
		key := []byte{byte(i)}
		if _, _, err := tbl.Set(key, []byte("value")); err != nil {
			t.Fatalf("Set(%d): %v", i, err)
		}
	}

	// Simulate a crash mid-resize: the dirty bit was left set without
	// ever being cleared, as maybeExtendIndex/maybeShrinkIndex do while
	// relocating blocks.
	tbl.hdr.setDirty(true)

	if err := tbl.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	reopened, err := Open(path)
	if err != nil {
		t.Fatalf("Open after simulated crash: %v", err)
	}

	t.Cleanup(func() { _ = reopened.Close() })

	if reopened.hdr.dirty() {
		t.Fatal("dirty bit should be cleared by recovery on open")
	}

	if !reopened.isValid() {
		t.Fatal("table invalid after dirty-bit recovery")
	}

	for i := range 10 {
		key := []byte{byte(i)}
		if _, ok := reopened.Get(key); !ok {
			t.Fatalf("Get(%d) missing after recovery", i)
		}
	}
}
