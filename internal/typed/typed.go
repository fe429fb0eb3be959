// Package typed layers generic, self-describing encodings on top of the
// byte-oriented core table, mirroring the typed and compressed wrappers
// original_source builds on top of its raw table.
package typed

import (
	"bytes"
	"encoding/gob"
	"fmt"

	"github.com/persistkv/persist"
)

// backend is the subset of *persist.Table the wrappers in this package
// need, so tests can exercise them against a fake.
type backend interface {
	Get(key []byte) ([]byte, bool)
	Set(key, value []byte) ([]byte, bool, error)
	Delete(key []byte) ([]byte, bool, error)
}

var _ backend = (*persist.Table)(nil)

// Table encodes arbitrary Go values with encoding/gob before delegating
// to a byte-oriented backend. K and V must be gob-encodable (exported
// fields, registered concrete types for interface values).
type Table[K, V any] struct {
	t backend
}

// New wraps an existing table for typed access.
func New[K, V any](t backend) *Table[K, V] {
	return &Table[K, V]{t: t}
}

func encode(v any) ([]byte, error) {
	var buf bytes.Buffer

	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return nil, fmt.Errorf("%w: gob encode: %w", persist.ErrSerialize, err)
	}

	return buf.Bytes(), nil
}

func decode[T any](b []byte) (T, error) {
	var v T

	if err := gob.NewDecoder(bytes.NewReader(b)).Decode(&v); err != nil {
		return v, fmt.Errorf("%w: gob decode: %w", persist.ErrDeserialize, err)
	}

	return v, nil
}

// Get decodes the value stored under key, if any.
func (tt *Table[K, V]) Get(key K) (V, bool, error) {
	var zero V

	kb, err := encode(key)
	if err != nil {
		return zero, false, err
	}

	vb, ok := tt.t.Get(kb)
	if !ok {
		return zero, false, nil
	}

	v, err := decode[V](vb)

	return v, err == nil, err
}

// Set encodes key and value and stores them, decoding the previous
// value if one existed.
func (tt *Table[K, V]) Set(key K, value V) (V, bool, error) {
	var zero V

	kb, err := encode(key)
	if err != nil {
		return zero, false, err
	}

	vb, err := encode(value)
	if err != nil {
		return zero, false, err
	}

	oldb, had, err := tt.t.Set(kb, vb)
	if err != nil || !had {
		return zero, false, err
	}

	old, err := decode[V](oldb)

	return old, err == nil, err
}

// Delete removes key's entry, decoding its value if it was present.
func (tt *Table[K, V]) Delete(key K) (V, bool, error) {
	var zero V

	kb, err := encode(key)
	if err != nil {
		return zero, false, err
	}

	vb, had, err := tt.t.Delete(kb)
	if err != nil || !had {
		return zero, false, err
	}

	v, err := decode[V](vb)

	return v, err == nil, err
}
