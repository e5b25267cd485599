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

// EntrySet is a live view of the entries of a Map. Adding an entry puts it
// into the map, and removing one removes the map's entry only if both its
// key and value match.
type EntrySet[K comparable, V any] struct {
	m *Map[K, V]
}

// Entries returns a view of the map's entries.
func (m *Map[K, V]) Entries() EntrySet[K, V] {
	return EntrySet[K, V]{m}
}

// Len returns the number of entries.
func (s EntrySet[K, V]) Len() int { return s.m.Len() }

// IsEmpty returns true if there are no entries.
func (s EntrySet[K, V]) IsEmpty() bool { return s.m.IsEmpty() }

// Contains returns true if the map holds e's key mapped to a value equal to
// e's value.
func (s EntrySet[K, V]) Contains(e Entry[K, V]) bool {
	return s.m.containsEntry(e.Key(), e.Value())
}

// ContainsAll returns true if every entry produced by entries is contained.
func (s EntrySet[K, V]) ContainsAll(entries iter.Seq[Entry[K, V]]) bool {
	for e := range entries {
		if !s.Contains(e) {
			return false
		}
	}
	return true
}

// Add puts e into the map. It returns true if the map changed, that is if
// the key was absent or was mapped to a different value.
func (s EntrySet[K, V]) Add(e Entry[K, V]) bool {
	value := e.Value()
	old, replaced := s.m.Put(e.Key(), value)
	return !replaced || !s.m.valueEqual(old, value)
}

// AddAll adds every entry produced by entries, returning true if the map
// changed.
func (s EntrySet[K, V]) AddAll(entries iter.Seq[Entry[K, V]]) bool {
	changed := false
	for e := range entries {
		if s.Add(e) {
			changed = true
		}
	}
	return changed
}

// Remove removes e's key from the map if it is mapped to a value equal to
// e's value, returning true if it was.
func (s EntrySet[K, V]) Remove(e Entry[K, V]) bool {
	m := s.m
	b, i, ok := m.find(e.Key())
	if !ok || !m.valueEqual(m.values[i], e.Value()) {
		return false
	}
	m.removeSlot(b, i)
	m.checkInvariants()
	return true
}

// RemoveAll removes every entry produced by entries, returning true if the
// map changed.
func (s EntrySet[K, V]) RemoveAll(entries iter.Seq[Entry[K, V]]) bool {
	changed := false
	for e := range entries {
		if s.Remove(e) {
			changed = true
		}
	}
	return changed
}

// RetainAll removes every entry that is not produced by entries, returning
// true if the map changed.
func (s EntrySet[K, V]) RetainAll(entries iter.Seq[Entry[K, V]]) bool {
	m := s.m
	// A builtin map: a Map[K, []V] here would instantiate Map[K, [][]V] and
	// so on without end.
	keep := make(map[K][]V)
	for e := range entries {
		keep[e.Key()] = append(keep[e.Key()], e.Value())
	}
	return m.removeIf(func(i int) bool {
		vs, ok := keep[m.keys[i]]
		return !ok || !m.holdsValueIn(i, vs)
	})
}

// Clear removes every entry from the map.
func (s EntrySet[K, V]) Clear() { s.m.Clear() }

// All returns an iterator over handles to the entries in insertion order. It
// panics with ErrConcurrentModification if the map is structurally modified
// while iterating. Setting the value of a handle is not a structural
// modification.
func (s EntrySet[K, V]) All() iter.Seq[*EntryRef[K, V]] {
	m := s.m
	return func(yield func(*EntryRef[K, V]) bool) {
		m.slots(func(i int) bool {
			return yield(m.entryRef(i))
		})
	}
}

// Iterator returns an iterator positioned before the first entry.
func (s EntrySet[K, V]) Iterator() *EntryIterator[K, V] {
	return &EntryIterator[K, V]{makeCursor(s.m)}
}

// Equal returns true if both views hold the same entries, in any order.
func (s EntrySet[K, V]) Equal(other EntrySet[K, V]) bool {
	return s.m.Equal(other.m)
}

// HashCode returns the sum of the entry hashes, each of which is the key's
// hash code xor the value hash. It equals the map's HashCode.
func (s EntrySet[K, V]) HashCode() uint32 {
	return s.m.HashCode()
}

// String formats the entries like fmt formats a slice, each entry as
// key:value.
func (s EntrySet[K, V]) String() string {
	var buf strings.Builder
	m := s.m
	buf.WriteByte('[')
	sep := ""
	m.slots(func(i int) bool {
		buf.WriteString(sep)
		m.formatElement(&buf, m.keys[i])
		buf.WriteByte(':')
		m.formatElement(&buf, m.values[i])
		sep = " "
		return true
	})
	buf.WriteByte(']')
	return buf.String()
}
