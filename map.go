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

// Package ordmap is an insertion-ordered hash map built from parallel
// backing arrays and a separate open-addressing hash index.
//
// # Layout
//
// Entries live in three parallel arrays: keys, values, and presence flags.
// New entries are always appended at the end of the arrays, which is where
// the insertion-order iteration guarantee comes from. Removing an entry
// clears its slot (releasing the key and value to the GC) but leaves a hole;
// holes are only reclaimed by compaction, which shifts the live slots down
// without changing their relative order.
//
// The hash index is a power-of-two array of bucket references pointing into
// the backing arrays. It is sized from the backing capacity so that it is at
// most 1/3 full. A key's home bucket is the top bits of hashCode(key) times a
// golden-ratio constant (Fibonacci hashing), which spreads hash codes that
// differ only in their low bits. Collisions are resolved by linear probing
// that steps backwards from the home bucket.
//
// Every probe is bounded by maxProbes buckets. A lookup that exhausts the
// budget is a miss. An insert that exhausts it rebuilds the index at twice
// the size and tries again. If that does not help, or the index is already
// maxHashSizeFactor times the size the backing capacity calls for, maxProbes
// is doubled instead. A rebuild that itself exhausts the budget for some key
// doubles both the index size and maxProbes. maxProbes starts at 5 and is
// never reduced.
//
// Removal marks only the matched bucket as a tombstone. Tombstones keep the
// entries probed past them reachable and are dropped when the index is next
// rebuilt, which always happens from scratch.
//
// # Views
//
// Keys, Values and Entries return live views over the map. Iterators obtained
// from the map or its views fail with ErrConcurrentModification once the map
// is structurally modified by anything other than the iterator itself.
//
// A Map is NOT goroutine-safe.
package ordmap

import (
	"fmt"
	"iter"
	"strings"
)

const debug = false

// Map is a hash map from keys to values which iterates in insertion order.
// By default a Map[K,V] hashes string keys with XXH3 and other keys with
// hash/maphash, and compares values with == where V allows it and cmp.Equal
// otherwise. Both can be replaced using the WithHash and WithValueEqual
// options.
type Map[K comparable, V any] struct {
	hash       func(key K) uint64
	valueEqual func(a, b V) bool
	valueHash  func(v V) uint32
	allocator  Allocator[K, V]

	// The backing store. All three slices share the same length, which is
	// the capacity of the map.
	keys     []K
	values   []V
	presence []bool
	// length is the next free slot in the backing store. Slots at or above
	// length are always zero.
	length int
	// size is the number of live slots below length.
	size int

	// index is a power-of-two sized array of references into the backing
	// store.
	index []bucketRef
	// hashShift reduces a 32-bit product to a bucket of index.
	hashShift uint
	// maxProbes bounds every probe sequence. It only ever grows.
	maxProbes int
	// tombstones is the number of tombstone buckets in index.
	tombstones int

	// mods is incremented by every structural modification and is used by
	// iterators to detect concurrent modification.
	mods uint64

	rehashes    int
	compactions int
}

// New constructs a new Map with room for initialCapacity entries before the
// backing store needs to grow. If initialCapacity is 0 the map starts out
// with zero capacity and grows on the first insert. New panics with
// ErrInvalidArgument if initialCapacity is negative. The zero value for a Map
// is not usable.
func New[K comparable, V any](initialCapacity int, options ...option[K, V]) *Map[K, V] {
	if initialCapacity < 0 {
		panic(invalidArgument("negative capacity %d", initialCapacity))
	}
	m := &Map[K, V]{
		hash:       defaultHasher[K](),
		valueEqual: defaultValueEqual[V](),
		valueHash:  zeroValueHash[V],
		allocator:  defaultAllocator[K, V]{},
		maxProbes:  initialMaxProbes,
	}
	for _, op := range options {
		op.apply(m)
	}

	if initialCapacity > 0 {
		m.keys = m.allocator.AllocKeys(initialCapacity)
		m.values = m.allocator.AllocValues(initialCapacity)
		m.presence = m.allocator.AllocPresence(initialCapacity)
	}
	m.allocIndex(computeHashSize(initialCapacity))
	m.checkInvariants()
	return m
}

// Close closes the map, releasing any memory back to its configured
// allocator. It is unnecessary to close a map using the default allocator. It
// is invalid to use a Map after it has been closed, though Close itself is
// idempotent.
func (m *Map[K, V]) Close() {
	if m.allocator == nil {
		return
	}
	m.freeStore()
	m.length, m.size = 0, 0
	m.mods++
	m.allocator = nil
}

// Len returns the number of entries in the map.
func (m *Map[K, V]) Len() int {
	return m.size
}

// IsEmpty returns true if the map has no entries.
func (m *Map[K, V]) IsEmpty() bool {
	return m.size == 0
}

// ContainsKey returns true if key is present in the map.
func (m *Map[K, V]) ContainsKey(key K) bool {
	_, _, ok := m.find(key)
	return ok
}

// ContainsValue returns true if some entry holds a value equal to value.
// It runs in time proportional to the number of slots in the map.
func (m *Map[K, V]) ContainsValue(value V) bool {
	return m.indexOfValue(value) >= 0
}

// Get retrieves the value from the map for the specified key, returning
// ok=false if the key is not present.
func (m *Map[K, V]) Get(key K) (value V, ok bool) {
	if _, i, ok := m.find(key); ok {
		return m.values[i], true
	}
	return value, false
}

// Put inserts an entry into the map, overwriting the value of an existing
// entry with the same key. If there was such an entry its previous value is
// returned with replaced=true. Overwriting does not change the entry's
// position in the iteration order.
func (m *Map[K, V]) Put(key K, value V) (old V, replaced bool) {
	if m.length == len(m.keys) {
		// Reserving a slot may compact or rehash, which must not happen on
		// an overwrite.
		if _, i, ok := m.find(key); ok {
			old = m.values[i]
			m.values[i] = value
			return old, true
		}
		m.ensureExtraCapacity(1)
	}
	return m.putInternal(key, value)
}

// PutAll copies every entry of other into the map. Room for all of other's
// entries is reserved before the first insert.
func (m *Map[K, V]) PutAll(other *Map[K, V]) {
	if other == m {
		return
	}
	m.ensureExtraCapacity(other.size)
	for i := 0; i < other.length; i++ {
		if other.presence[i] {
			m.putInternal(other.keys[i], other.values[i])
		}
	}
}

// PutSeq inserts every key/value pair produced by seq, in order.
func (m *Map[K, V]) PutSeq(seq iter.Seq2[K, V]) {
	for k, v := range seq {
		m.Put(k, v)
	}
}

// Remove deletes the entry for key, returning its value with removed=true.
// It is a noop to remove a non-existent key.
func (m *Map[K, V]) Remove(key K) (old V, removed bool) {
	b, i, ok := m.find(key)
	if !ok {
		return old, false
	}
	old = m.values[i]
	m.removeSlot(b, i)
	m.checkInvariants()
	return old, true
}

// Clear removes every entry from the map. The capacity of the map is
// retained.
func (m *Map[K, V]) Clear() {
	if m.length == 0 {
		return
	}
	resetRange(m.keys, 0, m.length)
	resetRange(m.values, 0, m.length)
	resetRange(m.presence, 0, m.length)
	clear(m.index)
	m.tombstones = 0
	m.length = 0
	m.size = 0
	m.mods++
	m.checkInvariants()
}

// EnsureCapacity makes room for n entries so that the map can grow to n
// entries without reallocating the backing store or rebuilding the index
// (barring pathological collisions). It is a noop if the map already has
// room. EnsureCapacity panics with ErrInvalidArgument if n is negative.
func (m *Map[K, V]) EnsureCapacity(n int) {
	if n < 0 {
		panic(invalidArgument("negative capacity %d", n))
	}
	if extra := n - m.size; extra > 0 {
		m.ensureExtraCapacity(extra)
	}
}

// All returns an iterator over the entries of the map in insertion order.
// The iterator panics with ErrConcurrentModification if the map is
// structurally modified while iterating; use Iterator to remove entries
// during iteration.
func (m *Map[K, V]) All() iter.Seq2[K, V] {
	return func(yield func(key K, value V) bool) {
		m.slots(func(i int) bool {
			return yield(m.keys[i], m.values[i])
		})
	}
}

// Equal returns true if other holds the same keys as m, each mapped to an
// equal value. Iteration order is not considered.
func (m *Map[K, V]) Equal(other *Map[K, V]) bool {
	if m == other {
		return true
	}
	if other == nil || m.size != other.size {
		return false
	}
	for i := 0; i < other.length; i++ {
		if !other.presence[i] {
			continue
		}
		if !m.containsEntry(other.keys[i], other.values[i]) {
			return false
		}
	}
	return true
}

// HashCode returns a hash of the map's contents which does not depend on
// iteration order. Maps which are Equal and use the same hash functions
// have the same HashCode.
func (m *Map[K, V]) HashCode() uint32 {
	var h uint32
	m.slots(func(i int) bool {
		h += m.entryHash(i)
		return true
	})
	return h
}

// String formats the map like fmt formats a builtin map, but in insertion
// order.
func (m *Map[K, V]) String() string {
	var buf strings.Builder
	buf.WriteString("map[")
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

// Stats describes the internal state of a map.
type Stats struct {
	// Len is the number of entries.
	Len int
	// Slots is the number of backing slots in use, including dead ones.
	Slots int
	// Capacity is the number of backing slots allocated.
	Capacity int
	// HashSize is the number of buckets in the hash index.
	HashSize int
	// MaxProbes is the current probe budget.
	MaxProbes int
	// Rehashes counts index rebuilds.
	Rehashes int
	// Compactions counts backing store compactions.
	Compactions int
}

// Stats returns a snapshot of the map's internal counters.
func (m *Map[K, V]) Stats() Stats {
	return Stats{
		Len:         m.size,
		Slots:       m.length,
		Capacity:    len(m.keys),
		HashSize:    len(m.index),
		MaxProbes:   m.maxProbes,
		Rehashes:    m.rehashes,
		Compactions: m.compactions,
	}
}

func (m *Map[K, V]) hashCode(key K) uint32 {
	return foldHash(m.hash(key))
}

func (m *Map[K, V]) probe(key K) probeSeq {
	home := fibonacciBucket(m.hashCode(key), m.hashShift)
	return makeProbeSeq(home, len(m.index), m.maxProbes)
}

// find returns the bucket and backing slot holding key.
func (m *Map[K, V]) find(key K) (bucket uint32, i int, ok bool) {
	for seq := m.probe(key); ; seq = seq.next() {
		ref := m.index[seq.offset]
		if ref == refEmpty {
			return 0, 0, false
		}
		if i, ok := ref.slot(); ok && m.keys[i] == key {
			return seq.offset, i, true
		}
		if seq.final() {
			// A key can only have been placed within maxProbes buckets of
			// its home bucket, and maxProbes never shrinks.
			return 0, 0, false
		}
	}
}

// indexOfValue returns the first slot in storage order holding a value equal
// to value, or -1.
func (m *Map[K, V]) indexOfValue(value V) int {
	for i := 0; i < m.length; i++ {
		if m.presence[i] && m.valueEqual(m.values[i], value) {
			return i
		}
	}
	return -1
}

func (m *Map[K, V]) containsEntry(key K, value V) bool {
	_, i, ok := m.find(key)
	return ok && m.valueEqual(m.values[i], value)
}

func (m *Map[K, V]) entryHash(i int) uint32 {
	return m.hashCode(m.keys[i]) ^ m.valueHash(m.values[i])
}

// putInternal inserts or overwrites the entry for key. The caller must have
// reserved room for one more slot.
func (m *Map[K, V]) putInternal(key K, value V) (old V, replaced bool) {
	var cleared, grown bool
	for {
		seq := m.probe(key)
		if debug {
			fmt.Printf("put(%v): %s\n", key, seq)
		}
		for ; ; seq = seq.next() {
			ref := m.index[seq.offset]
			if ref == refEmpty {
				i := m.length
				m.length++
				m.keys[i] = key
				m.values[i] = value
				m.presence[i] = true
				m.index[seq.offset] = refTo(i)
				m.size++
				m.mods++
				if debug {
					fmt.Printf("put(inserting): bucket=%d slot=%d size=%d\n", seq.offset, i, m.size)
				}
				m.checkInvariants()
				return old, false
			}
			if i, ok := ref.slot(); ok && m.keys[i] == key {
				old = m.values[i]
				m.values[i] = value
				return old, true
			}
			if seq.final() {
				break
			}
		}

		// The probe budget is exhausted. Tombstones are dropped first by
		// rebuilding the index at the same size. Failing that, rebuild a
		// larger index and start over since the key's home bucket moves. If
		// a larger index already failed to make room for this key, or the
		// index is already far larger than the backing store calls for, the
		// probe chain itself is too long: grow the budget and keep the size.
		if debug {
			fmt.Printf("put(%v): probes exhausted tombstones=%d hash-size=%d max-probes=%d\n",
				key, m.tombstones, len(m.index), m.maxProbes)
		}
		switch {
		case m.tombstones > 0 && !cleared:
			cleared = true
			m.rehash(len(m.index))
		case !grown && len(m.index) < maxHashSizeFactor*computeHashSize(len(m.keys)):
			grown = true
			m.rehash(2 * len(m.index))
		default:
			m.maxProbes *= 2
			m.rehash(len(m.index))
		}
	}
}

// removeSlot clears live slot i which is referenced from bucket b.
func (m *Map[K, V]) removeSlot(b uint32, i int) {
	resetAt(m.keys, i)
	resetAt(m.values, i)
	m.presence[i] = false
	m.index[b] = refTombstone
	m.tombstones++
	m.size--
	m.mods++
	if debug {
		fmt.Printf("remove: bucket=%d slot=%d size=%d\n", b, i, m.size)
	}
}

// removeAt removes live slot i, locating its bucket by probing.
func (m *Map[K, V]) removeAt(i int) {
	ref := refTo(i)
	for seq := m.probe(m.keys[i]); ; seq = seq.next() {
		if m.index[seq.offset] == ref {
			m.removeSlot(seq.offset, i)
			m.checkInvariants()
			return
		}
		if seq.final() {
			panic(fmt.Sprintf("slot %d not reachable from its home bucket\n%s", i, m.debugString()))
		}
	}
}

// removeIf removes every live slot for which pred returns true, returning
// true if any slot was removed.
func (m *Map[K, V]) removeIf(pred func(i int) bool) bool {
	removed := false
	for i := 0; i < m.length; i++ {
		if m.presence[i] && pred(i) {
			m.removeAt(i)
			removed = true
		}
	}
	return removed
}

// slots calls yield for each live slot in storage order until yield returns
// false. It panics with ErrConcurrentModification if yield structurally
// modifies the map.
func (m *Map[K, V]) slots(yield func(i int) bool) {
	mods := m.mods
	for i := 0; i < m.length; i++ {
		if !m.presence[i] {
			continue
		}
		if !yield(i) {
			return
		}
		if m.mods != mods {
			panic(ErrConcurrentModification)
		}
	}
}

// ensureExtraCapacity makes room for n more slots at the end of the backing
// store, either by compacting away dead slots or by growing the store.
func (m *Map[K, V]) ensureExtraCapacity(n int) {
	if n < 0 {
		panic(invalidArgument("negative extra capacity %d", n))
	}
	capacity := len(m.keys)
	if m.length+n <= capacity {
		return
	}
	// Compaction replaces the plain "length + n - size > capacity" trigger:
	// it is only worthwhile if it recovers a reasonable fraction of the
	// store. Otherwise a map hovering near capacity would rebuild its index
	// on nearly every insert.
	if gaps := m.length - m.size; m.size+n <= capacity && gaps >= capacity/4 {
		m.rehash(len(m.index))
		return
	}
	m.growStore(m.length + n)
}

func (m *Map[K, V]) allocIndex(hashSize int) {
	if m.index != nil {
		m.allocator.FreeIndex(unsafeConvertSlice[uint32](m.index))
	}
	m.index = unsafeConvertSlice[bucketRef](m.allocator.AllocIndex(hashSize))
	m.hashShift = computeShift(hashSize)
}

// rehash compacts the backing store if it has dead slots and rebuilds the
// index from scratch with newHashSize buckets. The rebuild inserts the slots
// in storage order. If some slot cannot be placed within the probe budget,
// both the index size and the probe budget are doubled and the rebuild
// starts over.
func (m *Map[K, V]) rehash(newHashSize int) {
	if m.length > m.size {
		m.compact()
	}
	m.mods++
	m.rehashes++
	m.tombstones = 0

	for {
		if debug {
			fmt.Printf("rehash: hash-size=%d->%d max-probes=%d slots=%d\n",
				len(m.index), newHashSize, m.maxProbes, m.length)
		}
		if newHashSize != len(m.index) {
			m.allocIndex(newHashSize)
		} else {
			clear(m.index)
		}
		if m.rebuildIndex() {
			break
		}
		if debug {
			fmt.Printf("rehash: probes exhausted, retrying\n")
		}
		newHashSize *= 2
		m.maxProbes *= 2
	}
	m.checkInvariants()
}

func (m *Map[K, V]) rebuildIndex() bool {
	for i := 0; i < m.length; i++ {
		if !m.putRehash(i) {
			return false
		}
	}
	return true
}

// putRehash records slot i in the first empty bucket of its probe sequence.
// The index being rebuilt has no tombstones.
func (m *Map[K, V]) putRehash(i int) bool {
	for seq := m.probe(m.keys[i]); ; seq = seq.next() {
		if m.index[seq.offset] == refEmpty {
			m.index[seq.offset] = refTo(i)
			return true
		}
		if seq.final() {
			return false
		}
	}
}

// formatElement writes v to buf, taking care not to recurse into a map that
// contains itself.
func (m *Map[K, V]) formatElement(buf *strings.Builder, v any) {
	if p, ok := v.(*Map[K, V]); ok && p == m {
		buf.WriteString("(this Map)")
		return
	}
	fmt.Fprint(buf, v)
}

func (m *Map[K, V]) checkInvariants() {
	if invariants {
		if m.size < 0 || m.size > m.length || m.length > len(m.keys) {
			panic(fmt.Sprintf("invariant failed: size=%d length=%d capacity=%d\n%s",
				m.size, m.length, len(m.keys), m.debugString()))
		}
		if len(m.index) < computeHashSize(len(m.keys)) {
			panic(fmt.Sprintf("invariant failed: hash-size=%d too small for capacity=%d\n%s",
				len(m.index), len(m.keys), m.debugString()))
		}

		// Dead slots and slots beyond length must hold zero keys.
		var zero K
		live := 0
		for i := 0; i < len(m.keys); i++ {
			if i < m.length && m.presence[i] {
				live++
				continue
			}
			if m.presence[i] {
				panic(fmt.Sprintf("invariant failed: slot(%d) beyond length is present\n%s", i, m.debugString()))
			}
			if m.keys[i] != zero {
				panic(fmt.Sprintf("invariant failed: dead slot(%d) holds key %v\n%s", i, m.keys[i], m.debugString()))
			}
		}
		if live != m.size {
			panic(fmt.Sprintf("invariant failed: found %d live slots, but size is %d\n%s",
				live, m.size, m.debugString()))
		}

		// Every live slot is reachable from its home bucket, and every
		// bucket reference points at a live slot.
		refs, tombstones := 0, 0
		for b, ref := range m.index {
			if ref == refTombstone {
				tombstones++
			}
			i, ok := ref.slot()
			if !ok {
				continue
			}
			refs++
			if i >= m.length || !m.presence[i] {
				panic(fmt.Sprintf("invariant failed: bucket(%d) refers to dead slot(%d)\n%s", b, i, m.debugString()))
			}
			if _, j, ok := m.find(m.keys[i]); !ok || j != i {
				panic(fmt.Sprintf("invariant failed: slot(%d): %v not found\n%s", i, m.keys[i], m.debugString()))
			}
		}
		if refs != m.size {
			panic(fmt.Sprintf("invariant failed: found %d bucket references, but size is %d\n%s",
				refs, m.size, m.debugString()))
		}
		if tombstones != m.tombstones {
			panic(fmt.Sprintf("invariant failed: found %d tombstones, but expected %d\n%s",
				tombstones, m.tombstones, m.debugString()))
		}
	}
}

func (m *Map[K, V]) debugString() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "capacity=%d  length=%d  size=%d  hash-size=%d  max-probes=%d\n",
		len(m.keys), m.length, m.size, len(m.index), m.maxProbes)
	for i := 0; i < m.length; i++ {
		if m.presence[i] {
			fmt.Fprintf(&buf, "  slot %4d: %v=%v [code=%08x]\n", i, m.keys[i], m.values[i], m.hashCode(m.keys[i]))
		} else {
			fmt.Fprintf(&buf, "  slot %4d: dead\n", i)
		}
	}
	for b, ref := range m.index {
		if ref != refEmpty {
			fmt.Fprintf(&buf, "  bucket %4d: %s\n", b, ref)
		}
	}
	return buf.String()
}
