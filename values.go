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
	"slices"
	"strings"
)

// ValueCollection is a live view of the values of a Map. Values may repeat.
// Removing a value removes an entry holding it from the map. Values cannot
// be added through the view since there is no key to add them under.
type ValueCollection[K comparable, V any] struct {
	m *Map[K, V]
}

// Values returns a view of the map's values.
func (m *Map[K, V]) Values() ValueCollection[K, V] {
	return ValueCollection[K, V]{m}
}

// Len returns the number of values, counting repeats.
func (c ValueCollection[K, V]) Len() int { return c.m.Len() }

// IsEmpty returns true if there are no values.
func (c ValueCollection[K, V]) IsEmpty() bool { return c.m.IsEmpty() }

// Contains returns true if some entry holds a value equal to value.
func (c ValueCollection[K, V]) Contains(value V) bool { return c.m.ContainsValue(value) }

// ContainsAll returns true if every value produced by values is held by
// some entry.
func (c ValueCollection[K, V]) ContainsAll(values iter.Seq[V]) bool {
	for v := range values {
		if !c.m.ContainsValue(v) {
			return false
		}
	}
	return true
}

// Add returns ErrUnsupported.
func (c ValueCollection[K, V]) Add(value V) (bool, error) {
	return false, ErrUnsupported
}

// AddAll returns ErrUnsupported.
func (c ValueCollection[K, V]) AddAll(values iter.Seq[V]) (bool, error) {
	return false, ErrUnsupported
}

// Remove removes the first entry in insertion order whose value equals
// value, returning true if there was one.
func (c ValueCollection[K, V]) Remove(value V) bool {
	i := c.m.indexOfValue(value)
	if i < 0 {
		return false
	}
	c.m.removeAt(i)
	return true
}

// RemoveAll removes every entry whose value equals a value produced by
// values, returning true if the map changed.
func (c ValueCollection[K, V]) RemoveAll(values iter.Seq[V]) bool {
	vs := slices.Collect(values)
	m := c.m
	return m.removeIf(func(i int) bool {
		return m.holdsValueIn(i, vs)
	})
}

// RetainAll removes every entry whose value does not equal any value
// produced by values, returning true if the map changed.
func (c ValueCollection[K, V]) RetainAll(values iter.Seq[V]) bool {
	vs := slices.Collect(values)
	m := c.m
	return m.removeIf(func(i int) bool {
		return !m.holdsValueIn(i, vs)
	})
}

// Clear removes every entry from the map.
func (c ValueCollection[K, V]) Clear() { c.m.Clear() }

// All returns an iterator over the values in insertion order. It panics with
// ErrConcurrentModification if the map is structurally modified while
// iterating.
func (c ValueCollection[K, V]) All() iter.Seq[V] {
	m := c.m
	return func(yield func(V) bool) {
		m.slots(func(i int) bool {
			return yield(m.values[i])
		})
	}
}

// Iterator returns an iterator positioned before the first value.
func (c ValueCollection[K, V]) Iterator() *ValueIterator[K, V] {
	return &ValueIterator[K, V]{makeCursor(c.m)}
}

// Equal returns true if both views hold the same values with the same
// multiplicities, in any order.
func (c ValueCollection[K, V]) Equal(other ValueCollection[K, V]) bool {
	if c.m == other.m {
		return true
	}
	if c.Len() != other.Len() {
		return false
	}
	vs := slices.Collect(other.All())
	matched := make([]bool, len(vs))
	m := c.m
	equal := true
	m.slots(func(i int) bool {
		for j := range vs {
			if !matched[j] && m.valueEqual(m.values[i], vs[j]) {
				matched[j] = true
				return true
			}
		}
		equal = false
		return false
	})
	return equal
}

// HashCode returns the sum of the value hashes. See WithValueHash.
func (c ValueCollection[K, V]) HashCode() uint32 {
	var h uint32
	m := c.m
	m.slots(func(i int) bool {
		h += m.valueHash(m.values[i])
		return true
	})
	return h
}

// String formats the values like fmt formats a slice.
func (c ValueCollection[K, V]) String() string {
	var buf strings.Builder
	m := c.m
	buf.WriteByte('[')
	sep := ""
	m.slots(func(i int) bool {
		buf.WriteString(sep)
		m.formatElement(&buf, m.values[i])
		sep = " "
		return true
	})
	buf.WriteByte(']')
	return buf.String()
}

func (m *Map[K, V]) holdsValueIn(i int, values []V) bool {
	for _, v := range values {
		if m.valueEqual(m.values[i], v) {
			return true
		}
	}
	return false
}
