// Package pinmap provides a small fixed-capacity, order-preserving map.
// Lookups are a linear scan, which is fine for the handful of entries a
// board has. The map never grows past its capacity and never allocates after
// construction.
package pinmap

import "github.com/pkg/errors"

// MaxEntries is the hard capacity of every Map.
const MaxEntries = 8

// ErrFull is returned by Insert when the map already holds MaxEntries keys.
var ErrFull = errors.New("pin map full")

type entry[K comparable, V any] struct {
	key   K
	value V
}

// Map associates keys with values in insertion order.
// The zero value is an empty map ready to use.
type Map[K comparable, V any] struct {
	entries [MaxEntries]entry[K, V]
	n       int
}

// Insert adds or replaces the value for key. Replacing keeps the original
// position. It fails with ErrFull only when key is new and the map is full.
func (m *Map[K, V]) Insert(key K, value V) error {
	for i := 0; i < m.n; i++ {
		if m.entries[i].key == key {
			m.entries[i].value = value
			return nil
		}
	}
	if m.n == MaxEntries {
		return errors.Wrapf(ErrFull, "insert %v", key)
	}
	m.entries[m.n] = entry[K, V]{key: key, value: value}
	m.n++
	return nil
}

// Get returns the value for key. ok is false when key is absent.
func (m *Map[K, V]) Get(key K) (value V, ok bool) {
	for i := 0; i < m.n; i++ {
		if m.entries[i].key == key {
			return m.entries[i].value, true
		}
	}
	return value, false
}

// Contains reports whether key is present.
func (m *Map[K, V]) Contains(key K) bool {
	_, ok := m.Get(key)
	return ok
}

// Len returns the number of entries.
func (m *Map[K, V]) Len() int { return m.n }

// Range calls fn for each entry in insertion order until fn returns false.
func (m *Map[K, V]) Range(fn func(key K, value V) bool) {
	for i := 0; i < m.n; i++ {
		if !fn(m.entries[i].key, m.entries[i].value) {
			return
		}
	}
}
