// Copyright 2024 The Cockroach Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package ordmap

import (
	"iter"
	"strings"
)

// KeySet is a live view of the keys of a Map. Removing a key from the view
// removes its entry from the map. Keys cannot be added through the view.
type KeySet[K comparable, V any] struct {
	m *Map[K, V]
}

// Keys returns a view of the map's keys.
func (m *Map[K, V]) Keys() KeySet[K, V] {
	return KeySet[K, V]{m}
}

// Len returns the number of keys.
func (s KeySet[K, V]) Len() int { return s.m.Len() }

// IsEmpty returns true if there are no keys.
func (s KeySet[K, V]) IsEmpty() bool { return s.m.IsEmpty() }

// Contains returns true if key is present in the map.
func (s KeySet[K, V]) Contains(key K) bool { return s.m.ContainsKey(key) }

// ContainsAll returns true if every key produced by keys is present.
func (s KeySet[K, V]) ContainsAll(keys iter.Seq[K]) bool {
	for k := range keys {
		if !s.m.ContainsKey(k) {
			return false
		}
	}
	return true
}

// Add returns ErrUnsupported: a key set cannot invent a value for a key.
func (s KeySet[K, V]) Add(key K) (bool, error) {
	return false, ErrUnsupported
}

// AddAll returns ErrUnsupported.
func (s KeySet[K, V]) AddAll(keys iter.Seq[K]) (bool, error) {
	return false, ErrUnsupported
}

// Remove removes the entry for key, returning true if it was present.
func (s KeySet[K, V]) Remove(key K) bool {
	_, removed := s.m.Remove(key)
	return removed
}

// RemoveAll removes the entries for every key produced by keys, returning
// true if the map changed.
func (s KeySet[K, V]) RemoveAll(keys iter.Seq[K]) bool {
	changed := false
	for k := range keys {
		if _, removed := s.m.Remove(k); removed {
			changed = true
		}
	}
	return changed
}

// RetainAll removes the entries whose keys are not produced by keys,
// returning true if the map changed.
func (s KeySet[K, V]) RetainAll(keys iter.Seq[K]) bool {
	keep := make(map[K]struct{})
	for k := range keys {
		keep[k] = struct{}{}
	}
	m := s.m
	return m.removeIf(func(i int) bool {
		_, ok := keep[m.keys[i]]
		return !ok
	})
}

// Clear removes every entry from the map.
func (s KeySet[K, V]) Clear() { s.m.Clear() }

// All returns an iterator over the keys in insertion order. It panics with
// ErrConcurrentModification if the map is structurally modified while
// iterating.
func (s KeySet[K, V]) All() iter.Seq[K] {
	m := s.m
	return func(yield func(K) bool) {
		m.slots(func(i int) bool {
			return yield(m.keys[i])
		})
	}
}

// Iterator returns an iterator positioned before the first key.
func (s KeySet[K, V]) Iterator() *KeyIterator[K, V] {
	return &KeyIterator[K, V]{makeCursor(s.m)}
}

// Equal returns true if both views hold the same keys, in any order.
func (s KeySet[K, V]) Equal(other KeySet[K, V]) bool {
	if s.m == other.m {
		return true
	}
	return s.Len() == other.Len() && s.ContainsAll(other.All())
}

// HashCode returns the sum of the hash codes of the keys.
func (s KeySet[K, V]) HashCode() uint32 {
	var h uint32
	m := s.m
	m.slots(func(i int) bool {
		h += m.hashCode(m.keys[i])
		return true
	})
	return h
}

// String formats the keys like fmt formats a slice.
func (s KeySet[K, V]) String() string {
	var buf strings.Builder
	m := s.m
	buf.WriteByte('[')
	sep := ""
	m.slots(func(i int) bool {
		buf.WriteString(sep)
		m.formatElement(&buf, m.keys[i])
		sep = " "
		return true
	})
	buf.WriteByte(']')
	return buf.String()
}
