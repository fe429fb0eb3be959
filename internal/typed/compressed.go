package typed

import (
	"bytes"
	"compress/gzip"
	"fmt"
	"io"

	"github.com/persistkv/persist"
)

// CompressedTable gzip-compresses values before storing them under
// plain byte keys, decompressing on read. Keys are stored as-is; only
// the value side pays the compression cost, mirroring original_source's
// compress wrapper which compresses values, not keys.
type CompressedTable struct {
	t backend
}

// NewCompressed wraps an existing table for compressed value access.
func NewCompressed(t backend) *CompressedTable {
	return &CompressedTable{t: t}
}

func compress(value []byte) ([]byte, error) {
	var buf bytes.Buffer

	w := gzip.NewWriter(&buf)

	if _, err := w.Write(value); err != nil {
		return nil, fmt.Errorf("%w: gzip write: %w", persist.ErrSerialize, err)
	}

	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("%w: gzip close: %w", persist.ErrSerialize, err)
	}

	return buf.Bytes(), nil
}

func decompress(value []byte) ([]byte, error) {
	r, err := gzip.NewReader(bytes.NewReader(value))
	if err != nil {
		return nil, fmt.Errorf("%w: gzip open: %w", persist.ErrDeserialize, err)
	}

	defer r.Close()

	out, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("%w: gzip read: %w", persist.ErrDeserialize, err)
	}

	return out, nil
}

// Get returns the decompressed value stored under key, if any.
func (ct *CompressedTable) Get(key []byte) ([]byte, bool, error) {
	raw, ok := ct.t.Get(key)
	if !ok {
		return nil, false, nil
	}

	v, err := decompress(raw)

	return v, err == nil, err
}

// Set compresses value and stores it under key, decompressing the
// previous value if one existed.
func (ct *CompressedTable) Set(key, value []byte) ([]byte, bool, error) {
	packed, err := compress(value)
	if err != nil {
		return nil, false, err
	}

	oldRaw, had, err := ct.t.Set(key, packed)
	if err != nil || !had {
		return nil, false, err
	}

	old, err := decompress(oldRaw)

	return old, err == nil, err
}

// Delete removes key's entry, decompressing its value if present.
func (ct *CompressedTable) Delete(key []byte) ([]byte, bool, error) {
	raw, had, err := ct.t.Delete(key)
	if err != nil || !had {
		return nil, false, err
	}

	v, err := decompress(raw)

	return v, err == nil, err
}
