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

// cursor walks the live slots of a map in storage order. It remembers the
// map's modification count and fails with ErrConcurrentModification once the
// map has been structurally modified by anything but the cursor itself.
type cursor[K comparable, V any] struct {
	m    *Map[K, V]
	next int
	// cur is the slot returned by the last successful Next, or -1.
	cur  int
	mods uint64
	err  error
}

func makeCursor[K comparable, V any](m *Map[K, V]) cursor[K, V] {
	return cursor[K, V]{m: m, cur: -1, mods: m.mods}
}

func (c *cursor[K, V]) check() error {
	if c.err == nil && c.m.mods != c.mods {
		c.err = ErrConcurrentModification
	}
	return c.err
}

// Next advances to the next entry, returning false when there are no more
// entries or the map was modified concurrently. Err distinguishes the two.
func (c *cursor[K, V]) Next() bool {
	if c.check() != nil {
		c.cur = -1
		return false
	}
	m := c.m
	for c.next < m.length && !m.presence[c.next] {
		c.next++
	}
	if c.next >= m.length {
		c.cur = -1
		return false
	}
	c.cur = c.next
	c.next++
	return true
}

// Remove removes the current entry from the map. Other iterators over the
// map are invalidated, but this one may continue with Next.
func (c *cursor[K, V]) Remove() error {
	if err := c.check(); err != nil {
		return err
	}
	if c.cur < 0 {
		return ErrNoCurrentEntry
	}
	c.m.removeAt(c.cur)
	c.cur = -1
	c.mods = c.m.mods
	return nil
}

// Err returns ErrConcurrentModification if iteration stopped because the
// map was modified, and nil otherwise.
func (c *cursor[K, V]) Err() error {
	return c.err
}

func (c *cursor[K, V]) key() (key K) {
	if c.cur >= 0 {
		key = c.m.keys[c.cur]
	}
	return key
}

func (c *cursor[K, V]) value() (value V) {
	if c.cur >= 0 {
		value = c.m.values[c.cur]
	}
	return value
}

func (c *cursor[K, V]) entry() *EntryRef[K, V] {
	if c.cur < 0 {
		return nil
	}
	return c.m.entryRef(c.cur)
}

// Iterator iterates over the entries of a Map in insertion order.
//
//	it := m.Iterator()
//	for it.Next() {
//	  if it.Value() == stale {
//	    it.Remove()
//	  }
//	}
//	if err := it.Err(); err != nil {
//	  ...
//	}
type Iterator[K comparable, V any] struct {
	cursor[K, V]
}

// Iterator returns an iterator positioned before the first entry.
func (m *Map[K, V]) Iterator() *Iterator[K, V] {
	return &Iterator[K, V]{makeCursor(m)}
}

// Key returns the key of the current entry.
func (it *Iterator[K, V]) Key() K {
	return it.key()
}

// Value returns the value of the current entry.
func (it *Iterator[K, V]) Value() V {
	return it.value()
}

// Entry returns a handle to the current entry, or nil if there is none.
func (it *Iterator[K, V]) Entry() *EntryRef[K, V] {
	return it.entry()
}

// KeyIterator iterates over the keys of a Map in insertion order.
type KeyIterator[K comparable, V any] struct {
	cursor[K, V]
}

// Key returns the current key.
func (it *KeyIterator[K, V]) Key() K {
	return it.key()
}

// ValueIterator iterates over the values of a Map in insertion order.
type ValueIterator[K comparable, V any] struct {
	cursor[K, V]
}

// Value returns the current value.
func (it *ValueIterator[K, V]) Value() V {
	return it.value()
}

// EntryIterator iterates over the entries of a Map in insertion order,
// returning mutable handles.
type EntryIterator[K comparable, V any] struct {
	cursor[K, V]
}

// Entry returns a handle to the current entry, or nil if there is none.
func (it *EntryIterator[K, V]) Entry() *EntryRef[K, V] {
	return it.entry()
}

// Entry is a key/value pair.
type Entry[K comparable, V any] interface {
	Key() K
	Value() V
}

type pair[K comparable, V any] struct {
	key   K
	value V
}

func (p pair[K, V]) Key() K   { return p.key }
func (p pair[K, V]) Value() V { return p.value }

func (p pair[K, V]) String() string {
	return fmt.Sprintf("%v:%v", p.key, p.value)
}

// MakeEntry returns an immutable Entry holding key and value, for use with
// the Entries view.
func MakeEntry[K comparable, V any](key K, value V) Entry[K, V] {
	return pair[K, V]{key, value}
}

// EntryRef is a handle to an entry of a Map, obtained while iterating. The
// handle remains usable until the map is next structurally modified.
type EntryRef[K comparable, V any] struct {
	m     *Map[K, V]
	i     int
	mods  uint64
	key   K
	value V
}

func (m *Map[K, V]) entryRef(i int) *EntryRef[K, V] {
	return &EntryRef[K, V]{m: m, i: i, mods: m.mods, key: m.keys[i], value: m.values[i]}
}

func (e *EntryRef[K, V]) valid() bool {
	return e.m.mods == e.mods
}

// Key returns the entry's key.
func (e *EntryRef[K, V]) Key() K {
	return e.key
}

// Value returns the entry's current value. Once the handle is stale it
// returns the last value it observed.
func (e *EntryRef[K, V]) Value() V {
	if e.valid() {
		e.value = e.m.values[e.i]
	}
	return e.value
}

// SetValue replaces the entry's value in the map, returning the previous
// value. It fails with ErrConcurrentModification if the map was structurally
// modified since the handle was obtained.
func (e *EntryRef[K, V]) SetValue(value V) (old V, err error) {
	if !e.valid() {
		return old, ErrConcurrentModification
	}
	old = e.m.values[e.i]
	e.m.values[e.i] = value
	e.value = value
	return old, nil
}

func (e *EntryRef[K, V]) String() string {
	return fmt.Sprintf("%v:%v", e.key, e.Value())
}
