// Package model drives a real table and a plain-map oracle through the
// same randomized operation sequence, asserting agreement after every
// step. It mirrors the shape of a model-based test harness: generate an
// operation, apply it to both sides, compare.
package model

import (
	"fmt"

	"golang.org/x/exp/rand"
)

// Backend is the subset of *persist.Table a soak run exercises.
type Backend interface {
	Get(key []byte) ([]byte, bool)
	Set(key, value []byte) ([]byte, bool, error)
	Delete(key []byte) ([]byte, bool, error)
	Len() int
	IsEmpty() bool
	IsValid() bool

	// Reopen closes and reopens the backing file in place, so a soak run
	// can exercise persistence across a close/reopen cycle.
	Reopen() error
}

// Oracle is a plain-map reference implementation of Backend's semantics.
type Oracle struct {
	m map[string][]byte
}

// NewOracle returns an empty oracle.
func NewOracle() *Oracle {
	return &Oracle{m: make(map[string][]byte)}
}

func (o *Oracle) Get(key []byte) ([]byte, bool) {
	v, ok := o.m[string(key)]

	return v, ok
}

func (o *Oracle) Set(key, value []byte) ([]byte, bool) {
	old, had := o.m[string(key)]
	cp := append([]byte(nil), value...)
	o.m[string(key)] = cp

	return old, had
}

func (o *Oracle) Delete(key []byte) ([]byte, bool) {
	old, had := o.m[string(key)]
	delete(o.m, string(key))

	return old, had
}

func (o *Oracle) Len() int { return len(o.m) }

// IsEmpty reports whether the oracle currently holds no keys.
func (o *Oracle) IsEmpty() bool { return len(o.m) == 0 }

// Keys returns every key the oracle currently holds, in no particular
// order.
func (o *Oracle) Keys() [][]byte {
	out := make([][]byte, 0, len(o.m))
	for k := range o.m {
		out = append(out, []byte(k))
	}

	return out
}

// opKind enumerates the operations a soak run chooses between.
type opKind int

const (
	opSet opKind = iota
	opDelete
	opGet
)

// reopenEvery sets the cadence at which Run cycles the backend through
// a close/reopen, exercising persistence across the round trip.
const reopenEvery = 251

// Run applies n randomized operations drawn from a small key space to
// both backend and the oracle, seeded deterministically by seed,
// periodically cycling backend through a close/reopen and checking its
// internal consistency after every step. Once the n steps are done, it
// deletes every key the oracle still holds and confirms both sides end
// up empty. It returns the first disagreement it finds (nil if none).
func Run(backend Backend, n int, seed uint64, keySpace, maxValueLen int) error {
	oracle := NewOracle()
	rng := rand.New(rand.NewSource(seed))

	for step := range n {
		key := []byte(fmt.Sprintf("key-%d", rng.Intn(keySpace)))

		switch opKind(rng.Intn(3)) {
		case opSet:
			value := make([]byte, rng.Intn(maxValueLen+1))
			for i := range value {
				value[i] = byte(rng.Intn(256))
			}

			gotOld, gotHad, err := backend.Set(key, value)
			if err != nil {
				return fmt.Errorf("step %d: set(%q): %w", step, key, err)
			}

			wantOld, wantHad := oracle.Set(key, value)
			if err := compare(step, "set", key, gotOld, gotHad, wantOld, wantHad); err != nil {
				return err
			}

		case opDelete:
			gotOld, gotHad, err := backend.Delete(key)
			if err != nil {
				return fmt.Errorf("step %d: delete(%q): %w", step, key, err)
			}

			wantOld, wantHad := oracle.Delete(key)
			if err := compare(step, "delete", key, gotOld, gotHad, wantOld, wantHad); err != nil {
				return err
			}

		case opGet:
			gotV, gotHad := backend.Get(key)
			wantV, wantHad := oracle.Get(key)

			if err := compare(step, "get", key, gotV, gotHad, wantV, wantHad); err != nil {
				return err
			}
		}

		if backend.Len() != oracle.Len() {
			return fmt.Errorf("step %d: len mismatch: backend=%d oracle=%d", step, backend.Len(), oracle.Len())
		}

		if !backend.IsValid() {
			return fmt.Errorf("step %d: backend invalid", step)
		}

		if step > 0 && step%reopenEvery == 0 {
			if err := backend.Reopen(); err != nil {
				return fmt.Errorf("step %d: reopen: %w", step, err)
			}

			if backend.Len() != oracle.Len() {
				return fmt.Errorf("step %d: len mismatch after reopen: backend=%d oracle=%d", step, backend.Len(), oracle.Len())
			}

			for _, key := range oracle.Keys() {
				wantV, _ := oracle.Get(key)
				gotV, gotHad := backend.Get(key)

				if err := compare(step, "get-after-reopen", key, gotV, gotHad, wantV, true); err != nil {
					return err
				}
			}

			if !backend.IsValid() {
				return fmt.Errorf("step %d: backend invalid after reopen", step)
			}
		}
	}

	for _, key := range oracle.Keys() {
		gotOld, gotHad, err := backend.Delete(key)
		if err != nil {
			return fmt.Errorf("final drain: delete(%q): %w", key, err)
		}

		wantOld, wantHad := oracle.Delete(key)
		if err := compare(n, "final-delete", key, gotOld, gotHad, wantOld, wantHad); err != nil {
			return err
		}

		if !backend.IsValid() {
			return fmt.Errorf("final drain: backend invalid after delete(%q)", key)
		}
	}

	if !backend.IsEmpty() || !oracle.IsEmpty() {
		return fmt.Errorf("not empty after final drain: backend.IsEmpty()=%v oracle.IsEmpty()=%v",
			backend.IsEmpty(), oracle.IsEmpty())
	}

	return nil
}

func compare(step int, op string, key, gotV []byte, gotHad bool, wantV []byte, wantHad bool) error {
	if gotHad != wantHad {
		return fmt.Errorf("step %d: %s(%q): had=%v, want had=%v", step, op, key, gotHad, wantHad)
	}

	if gotHad && string(gotV) != string(wantV) {
		return fmt.Errorf("step %d: %s(%q): value=%q, want %q", step, op, key, gotV, wantV)
	}

	return nil
}
