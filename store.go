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

import "fmt"

// The backing store is three parallel arrays of equal capacity: keys, values
// and presence flags. Slots [0, length) have been handed out in insertion
// order; slot i holds a live entry iff presence[i]. A slot whose presence
// flag is clear always holds zero values so that removed keys and values
// can be garbage collected.

// resetAt returns slot i of s to the zero value.
func resetAt[T any](s []T, i int) {
	var zero T
	s[i] = zero
}

// resetRange returns slots [from, to) of s to the zero value.
func resetRange[T any](s []T, from, to int) {
	clear(s[from:to])
}

// copyRange copies slots [from, to) of s to the slots starting at dest. The
// ranges may overlap.
func copyRange[T any](s []T, from, to, dest int) {
	copy(s[dest:], s[from:to])
}

// copyOfSlots returns a slice of n slots obtained from alloc holding the first
// used slots of old. The remaining slots are zero. The old slice is released
// with free.
func copyOfSlots[T any](old []T, used, n int, alloc func(int) []T, free func([]T)) []T {
	s := alloc(n)
	copy(s, old[:used])
	if old != nil {
		free(old)
	}
	return s
}

// growStore grows the backing store to hold at least minCapacity slots,
// rebuilding the index if the larger store calls for a larger index.
func (m *Map[K, V]) growStore(minCapacity int) {
	capacity := len(m.keys)
	newCapacity := capacity + capacity/2
	if newCapacity < minCapacity {
		newCapacity = minCapacity
	}
	if debug {
		fmt.Printf("grow: capacity=%d->%d length=%d size=%d\n",
			capacity, newCapacity, m.length, m.size)
	}

	a := m.allocator
	m.keys = copyOfSlots(m.keys, m.length, newCapacity, a.AllocKeys, a.FreeKeys)
	m.values = copyOfSlots(m.values, m.length, newCapacity, a.AllocValues, a.FreeValues)
	m.presence = copyOfSlots(m.presence, m.length, newCapacity, a.AllocPresence, a.FreePresence)

	if hashSize := computeHashSize(newCapacity); hashSize > len(m.index) {
		m.rehash(hashSize)
	}
}

// compact removes the dead slots from the backing store, moving live slots
// down while preserving their relative order, and resets length to size.
// The index is stale afterwards and must be rebuilt by the caller.
func (m *Map[K, V]) compact() {
	j := 0
	for i := 0; i < m.length; {
		for i < m.length && !m.presence[i] {
			i++
		}
		start := i
		for i < m.length && m.presence[i] {
			i++
		}
		if start != j {
			copyRange(m.keys, start, i, j)
			copyRange(m.values, start, i, j)
			copyRange(m.presence, start, i, j)
		}
		j += i - start
	}
	if debug {
		fmt.Printf("compact: length=%d->%d\n", m.length, j)
	}

	resetRange(m.keys, j, m.length)
	resetRange(m.values, j, m.length)
	resetRange(m.presence, j, m.length)
	m.length = j
	m.compactions++
}

// freeStore releases the backing arrays and the index to the allocator.
func (m *Map[K, V]) freeStore() {
	a := m.allocator
	if m.keys != nil {
		a.FreeKeys(m.keys)
		a.FreeValues(m.values)
		a.FreePresence(m.presence)
	}
	if m.index != nil {
		a.FreeIndex(unsafeConvertSlice[uint32](m.index))
	}
	m.keys, m.values, m.presence, m.index = nil, nil, nil, nil
}
