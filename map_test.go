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
	"fmt"
	"hash/maphash"
	"math/rand"
	"slices"
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"
)

// toBuiltinMap returns the elements as a map[K]V. Useful for testing.
func (m *Map[K, V]) toBuiltinMap() map[K]V {
	r := make(map[K]V)
	for k, v := range m.All() {
		r[k] = v
	}
	return r
}

// randElement returns a uniformly random live entry.
func (m *Map[K, V]) randElement() (key K, value V, ok bool) {
	if m.size == 0 {
		return key, value, false
	}
	n := rand.Intn(m.size)
	for k, v := range m.All() {
		if n == 0 {
			return k, v, true
		}
		n--
	}
	panic("not reached")
}

func constantHash(h uint64) func(key int) uint64 {
	return func(key int) uint64 {
		return h
	}
}

// lowBitsHash produces hash codes which only differ above bit 20.
func lowBitsHash(key int) uint64 {
	return uint64(key) << 20
}

func TestComputeHashSize(t *testing.T) {
	testCases := []struct {
		capacity int
		expected int
	}{
		{0, 2},
		{1, 2},
		{2, 4},
		{3, 8},
		{8, 16},
		{11, 32},
		{1000, 2048},
	}
	for _, c := range testCases {
		t.Run(strconv.Itoa(c.capacity), func(t *testing.T) {
			require.Equal(t, c.expected, computeHashSize(c.capacity))
		})
	}
}

func TestFibonacciBucket(t *testing.T) {
	for _, hashSize := range []int{1, 2, 16, 1 << 10, 1 << 20} {
		t.Run(strconv.Itoa(hashSize), func(t *testing.T) {
			shift := computeShift(hashSize)
			for i := 0; i < 1000; i++ {
				b := fibonacciBucket(rand.Uint32(), shift)
				require.Less(t, int(b), hashSize)
			}
		})
	}

	// Hash codes which differ only in their high bits must not all land in
	// the same bucket.
	shift := computeShift(64)
	seen := make(map[uint32]bool)
	for i := 0; i < 64; i++ {
		seen[fibonacciBucket(foldHash(lowBitsHash(i)), shift)] = true
	}
	require.Greater(t, len(seen), 32)
}

func TestProbeSeq(t *testing.T) {
	genSeq := func(home uint32, hashSize, maxProbes int) []uint32 {
		var vals []uint32
		for seq := makeProbeSeq(home, hashSize, maxProbes); ; seq = seq.next() {
			vals = append(vals, seq.offset)
			if seq.final() {
				return vals
			}
		}
	}
	require.Equal(t, []uint32{3, 2, 1, 0, 7}, genSeq(3, 8, 5))
	require.Equal(t, []uint32{0, 15, 14}, genSeq(0, 16, 3))
	require.Equal(t, []uint32{5}, genSeq(5, 8, 1))
	require.Equal(t, []uint32{0, 0, 0}, genSeq(0, 1, 3))
}

func TestBucketRef(t *testing.T) {
	_, ok := refEmpty.slot()
	require.False(t, ok)
	_, ok = refTombstone.slot()
	require.False(t, ok)

	for _, i := range []int{0, 1, 7, 1 << 20} {
		r := refTo(i)
		require.NotEqual(t, refEmpty, r)
		require.NotEqual(t, refTombstone, r)
		j, ok := r.slot()
		require.True(t, ok)
		require.Equal(t, i, j)
	}
	require.Equal(t, "empty", refEmpty.String())
	require.Equal(t, "tombstone", refTombstone.String())
	require.Equal(t, "slot(3)", refTo(3).String())
}

func TestInitialCapacity(t *testing.T) {
	testCases := []struct {
		initialCapacity  int
		expectedHashSize int
	}{
		{0, 2},
		{1, 2},
		{8, 16},
		{100, 256},
	}
	for _, c := range testCases {
		t.Run("", func(t *testing.T) {
			m := New[int, int](c.initialCapacity)
			s := m.Stats()
			require.Equal(t, c.initialCapacity, s.Capacity)
			require.Equal(t, c.expectedHashSize, s.HashSize)
			require.Equal(t, initialMaxProbes, s.MaxProbes)
		})
	}
}

func TestInvalidCapacity(t *testing.T) {
	require.PanicsWithError(t, "ordmap: invalid argument: negative capacity -1", func() {
		New[int, int](-1)
	})

	m := New[int, int](0)
	m.Put(1, 1)
	before := m.Stats()
	require.PanicsWithError(t, "ordmap: invalid argument: negative capacity -5", func() {
		m.EnsureCapacity(-5)
	})
	require.Equal(t, before, m.Stats())
	require.Equal(t, map[int]int{1: 1}, m.toBuiltinMap())
}

func TestScenario(t *testing.T) {
	m := New[string, string](0)
	require.True(t, m.IsEmpty())
	require.False(t, m.ContainsKey("1"))
	require.False(t, m.ContainsValue("a"))
	_, ok := m.Get("1")
	require.False(t, ok)

	old, replaced := m.Put("1", "a")
	require.False(t, replaced)
	require.Equal(t, "", old)
	require.True(t, m.ContainsKey("1"))
	require.True(t, m.ContainsValue("a"))

	old, replaced = m.Put("1", "b")
	require.True(t, replaced)
	require.Equal(t, "a", old)
	v, ok := m.Get("1")
	require.True(t, ok)
	require.Equal(t, "b", v)
	require.False(t, m.ContainsValue("a"))

	old, removed := m.Remove("1")
	require.True(t, removed)
	require.Equal(t, "b", old)
	require.True(t, m.IsEmpty())
	require.Equal(t, 0, m.Len())

	// Removing an absent key is a noop.
	_, removed = m.Remove("1")
	require.False(t, removed)
	require.Equal(t, 0, m.Len())
}

func TestBasic(t *testing.T) {
	test := func(t *testing.T, m *Map[int, int]) {
		const count = 100

		e := make(map[int]int)
		require.EqualValues(t, 0, m.Len())

		// Non-existent.
		for i := 0; i < count; i++ {
			_, ok := m.Get(i)
			require.False(t, ok)
		}

		// Insert.
		for i := 0; i < count; i++ {
			_, replaced := m.Put(i, i+count)
			require.False(t, replaced)
			e[i] = i + count
			v, ok := m.Get(i)
			require.True(t, ok)
			require.EqualValues(t, i+count, v)
			require.EqualValues(t, i+1, m.Len())
			require.Equal(t, e, m.toBuiltinMap())
		}

		// Update.
		for i := 0; i < count; i++ {
			old, replaced := m.Put(i, i+2*count)
			require.True(t, replaced)
			require.EqualValues(t, i+count, old)
			e[i] = i + 2*count
			v, ok := m.Get(i)
			require.True(t, ok)
			require.EqualValues(t, i+2*count, v)
			require.EqualValues(t, count, m.Len())
			require.Equal(t, e, m.toBuiltinMap())
		}

		// Delete.
		for i := 0; i < count; i++ {
			old, removed := m.Remove(i)
			require.True(t, removed)
			require.EqualValues(t, i+2*count, old)
			delete(e, i)
			require.EqualValues(t, count-i-1, m.Len())
			_, ok := m.Get(i)
			require.False(t, ok)
			require.Equal(t, e, m.toBuiltinMap())
		}
	}

	t.Run("normal", func(t *testing.T) {
		test(t, New[int, int](0))
	})

	t.Run("degenerate", func(t *testing.T) {
		testDegenerate := func(t *testing.T, h uint64) {
			test(t, New[int, int](0, WithHash[int, int](constantHash(h))))
		}

		for _, v := range []uint64{0, ^uint64(0)} {
			t.Run(fmt.Sprintf("%016x", v), func(t *testing.T) {
				testDegenerate(t, v)
			})
		}
		for i := 0; i < 10; i++ {
			v := rand.Uint64()
			t.Run(fmt.Sprintf("%016x", v), func(t *testing.T) {
				testDegenerate(t, v)
			})
		}
	})
}

func TestRehash(t *testing.T) {
	m := New[string, string](0)
	const n = 10000
	for i := 1; i <= n; i++ {
		_, replaced := m.Put(strconv.Itoa(i), "val"+strconv.Itoa(i))
		require.False(t, replaced)
		require.True(t, m.ContainsKey(strconv.Itoa(i)))
		require.Equal(t, i, m.Len())
	}
	for i := 1; i <= n; i++ {
		require.True(t, m.ContainsKey(strconv.Itoa(i)))
	}
	for i := 1; i <= n; i++ {
		old, removed := m.Remove(strconv.Itoa(i))
		require.True(t, removed)
		require.Equal(t, "val"+strconv.Itoa(i), old)
		require.False(t, m.ContainsKey(strconv.Itoa(i)))
		require.Equal(t, n-i, m.Len())
	}
	require.True(t, m.IsEmpty())
}

func TestCollisions(t *testing.T) {
	const initialCapacity = 8
	m := New[int, int](initialCapacity, WithHash[int, int](lowBitsHash))
	for i := 0; i < 2*initialCapacity; i++ {
		m.Put(i, -i)
	}
	for i := 0; i < 2*initialCapacity; i++ {
		require.True(t, m.ContainsKey(i))
		v, ok := m.Get(i)
		require.True(t, ok)
		require.Equal(t, -i, v)
	}
	require.False(t, m.ContainsKey(2*initialCapacity))
}

func TestProbeExhaustionGrowsBoth(t *testing.T) {
	// With a constant hash every key shares one probe chain, so only a
	// larger probe budget can make room.
	m := New[int, int](0, WithHash[int, int](constantHash(0)))
	for i := 0; i <= initialMaxProbes; i++ {
		m.Put(i, i)
	}
	s := m.Stats()
	require.Greater(t, s.MaxProbes, initialMaxProbes)
	require.GreaterOrEqual(t, s.HashSize, computeHashSize(s.Capacity))
	for i := 0; i <= initialMaxProbes; i++ {
		require.True(t, m.ContainsKey(i))
	}
}

func TestTombstones(t *testing.T) {
	// Removing an entry in the middle of a probe chain must not make the
	// entries probed past it unreachable.
	m := New[int, int](16, WithHash[int, int](constantHash(7)))
	for i := 0; i < 4; i++ {
		m.Put(i, i)
	}
	m.Remove(1)
	require.Equal(t, 1, m.tombstones)
	for _, i := range []int{0, 2, 3} {
		require.True(t, m.ContainsKey(i))
	}
	require.False(t, m.ContainsKey(1))

	// Churn on a single chain reclaims tombstones rather than growing the
	// index without bound.
	for i := 4; i < 1000; i++ {
		m.Put(i, i)
		m.Remove(i - 3)
	}
	require.Equal(t, 4, m.Len())
	require.LessOrEqual(t, m.Stats().HashSize, 1024)
	require.Equal(t, []int{0, 997, 998, 999}, slices.Collect(m.Keys().All()))
}

func TestOrder(t *testing.T) {
	m := New[string, int](0)
	m.Put("a", 1)
	m.Put("b", 2)
	m.Put("c", 3)
	m.Remove("b")
	m.Put("d", 4)
	require.Equal(t, []string{"a", "c", "d"}, slices.Collect(m.Keys().All()))

	// Order survives compaction and growth.
	m.EnsureCapacity(1000)
	require.Equal(t, []string{"a", "c", "d"}, slices.Collect(m.Keys().All()))
	m.Put("a", 5)
	require.Equal(t, []string{"a", "c", "d"}, slices.Collect(m.Keys().All()))
	require.Equal(t, []int{5, 3, 4}, slices.Collect(m.Values().All()))

	m = New[string, int](4)
	for i := 0; i < 100; i++ {
		m.Put(strconv.Itoa(i), i)
		if i%3 == 0 {
			m.Remove(strconv.Itoa(i))
		}
	}
	var expected []string
	for i := 0; i < 100; i++ {
		if i%3 != 0 {
			expected = append(expected, strconv.Itoa(i))
		}
	}
	require.Equal(t, expected, slices.Collect(m.Keys().All()))
}

func TestCompact(t *testing.T) {
	m := New[int, *int](8)
	vals := make([]int, 8)
	for i := range vals {
		m.Put(i, &vals[i])
	}
	for i := 0; i < 8; i += 2 {
		m.Remove(i)
	}
	require.Equal(t, 8, m.length)

	// Dead slots hold no references.
	for i := 0; i < 8; i += 2 {
		require.False(t, m.presence[i])
		require.Nil(t, m.values[i])
	}

	m.rehash(len(m.index))
	require.Equal(t, 4, m.length)
	require.Equal(t, 1, m.Stats().Compactions)
	require.Equal(t, []int{1, 3, 5, 7}, slices.Collect(m.Keys().All()))
	for i := 4; i < 8; i++ {
		require.False(t, m.presence[i])
		require.Nil(t, m.values[i])
	}
	for i := 1; i < 8; i += 2 {
		v, ok := m.Get(i)
		require.True(t, ok)
		require.Same(t, &vals[i], v)
	}
}

func TestEnsureCapacity(t *testing.T) {
	m := New[int, int](0)
	m.EnsureCapacity(100)
	s := m.Stats()
	require.GreaterOrEqual(t, s.Capacity, 100)
	require.GreaterOrEqual(t, s.HashSize, computeHashSize(s.Capacity))

	for i := 0; i < 100; i++ {
		m.Put(i, i)
	}
	require.Equal(t, s.Capacity, m.Stats().Capacity)

	// Already sufficient.
	m.EnsureCapacity(50)
	require.Equal(t, s.Capacity, m.Stats().Capacity)

	// Dead slots are compacted away instead of growing the store.
	for i := 0; i < 60; i++ {
		m.Remove(i)
	}
	capacity := m.Stats().Capacity
	m.EnsureCapacity(m.Len() + capacity - m.length + 10)
	require.Equal(t, capacity, m.Stats().Capacity)
	require.Equal(t, m.Len(), m.length)
}

func TestPutAll(t *testing.T) {
	src := New[int, string](0)
	for i := 0; i < 50; i++ {
		src.Put(i, strconv.Itoa(i))
	}
	dst := New[int, string](0)
	dst.Put(100, "x")
	dst.Put(3, "old")
	dst.PutAll(src)
	require.Equal(t, 51, dst.Len())
	v, _ := dst.Get(3)
	require.Equal(t, "3", v)
	require.GreaterOrEqual(t, dst.Stats().Capacity, 51)
	require.Equal(t, append([]int{100, 3}, slices.DeleteFunc(slices.Collect(src.Keys().All()), func(k int) bool {
		return k == 3
	})...), slices.Collect(dst.Keys().All()))

	// Putting a map into itself is a noop.
	dst.PutAll(dst)
	require.Equal(t, 51, dst.Len())

	m := New[string, int](0)
	m.PutSeq(func(yield func(string, int) bool) {
		for i := 0; i < 3; i++ {
			if !yield(strconv.Itoa(i), i) {
				return
			}
		}
	})
	require.Equal(t, map[string]int{"0": 0, "1": 1, "2": 2}, m.toBuiltinMap())
}

func TestRandom(t *testing.T) {
	test := func(t *testing.T, m *Map[int, int], ops int) {
		e := make(map[int]int)
		for i := 0; i < ops; i++ {
			switch r := rand.Float64(); {
			case r < 0.5: // 50% inserts
				k, v := rand.Int(), rand.Int()
				m.Put(k, v)
				e[k] = v
			case r < 0.65: // 15% updates
				if k, _, ok := m.randElement(); !ok {
					require.EqualValues(t, 0, m.Len(), e)
				} else {
					v := rand.Int()
					m.Put(k, v)
					e[k] = v
				}
			case r < 0.80: // 15% deletes
				if k, _, ok := m.randElement(); !ok {
					require.EqualValues(t, 0, m.Len(), e)
				} else {
					m.Remove(k)
					delete(e, k)
				}
			case r < 0.95: // 15% lookups
				if k, v, ok := m.randElement(); !ok {
					require.EqualValues(t, 0, m.Len(), e)
				} else {
					require.EqualValues(t, e[k], v)
					got, ok := m.Get(k)
					require.True(t, ok)
					require.EqualValues(t, v, got)
				}
			default: // 5% rehash in place and iterate
				m.rehash(len(m.index))
				require.Equal(t, e, m.toBuiltinMap())
			}
			require.EqualValues(t, len(e), m.Len())
		}
		require.Equal(t, e, m.toBuiltinMap())
	}

	t.Run("normal", func(t *testing.T) {
		test(t, New[int, int](0), 10000)
	})

	t.Run("degenerate", func(t *testing.T) {
		for _, v := range []uint64{0, ^uint64(0)} {
			t.Run(fmt.Sprintf("%016x", v), func(t *testing.T) {
				test(t, New[int, int](0, WithHash[int, int](constantHash(v))), 1000)
			})
		}
	})
}

func TestClear(t *testing.T) {
	m := New[int, int](0)
	for i := 0; i < 1000; i++ {
		m.Put(i, i)
	}

	capacity := m.Stats().Capacity
	m.Clear()
	require.EqualValues(t, 0, m.Len())
	require.EqualValues(t, capacity, m.Stats().Capacity)
	require.False(t, m.ContainsKey(1))

	for range m.All() {
		require.Fail(t, "should not iterate")
	}

	m.Put(1, 1)
	require.Equal(t, map[int]int{1: 1}, m.toBuiltinMap())
}

func TestEqual(t *testing.T) {
	a := New[string, []int](0)
	b := New[string, []int](0)
	require.True(t, a.Equal(b))
	a.Put("x", []int{1})
	a.Put("y", []int{2})
	b.Put("y", []int{2})
	require.False(t, a.Equal(b))
	b.Put("x", []int{1})
	require.True(t, a.Equal(b))
	require.True(t, b.Equal(a))
	require.Equal(t, a.HashCode(), b.HashCode())
	require.NotEqual(t, a.String(), b.String())

	b.Put("x", []int{3})
	require.False(t, a.Equal(b))
	require.False(t, a.Equal(nil))
}

func TestHashCode(t *testing.T) {
	valueHash := func(v int) uint32 { return uint32(v) * 31 }
	a := New[int, int](0, WithValueHash[int, int](valueHash))
	b := New[int, int](0, WithValueHash[int, int](valueHash))
	for i := 0; i < 10; i++ {
		a.Put(i, i)
		b.Put(9-i, 9-i)
	}
	require.True(t, a.Equal(b))
	require.Equal(t, a.HashCode(), b.HashCode())
	require.Equal(t, a.HashCode(), a.Entries().HashCode())

	b.Put(0, 100)
	require.NotEqual(t, a.HashCode(), b.HashCode())
}

func TestString(t *testing.T) {
	m := New[string, int](0)
	require.Equal(t, "map[]", m.String())
	m.Put("b", 2)
	m.Put("a", 1)
	require.Equal(t, "map[b:2 a:1]", m.String())
	require.Equal(t, "map[b:2 a:1]", fmt.Sprint(m))

	self := New[int, any](0)
	self.Put(1, self)
	self.Put(2, "x")
	require.Equal(t, "map[1:(this Map) 2:x]", self.String())
}

func TestValueEqual(t *testing.T) {
	type opaque struct{ v int }
	m := New[int, opaque](0, WithValueEqual[int, opaque](func(a, b opaque) bool {
		return a.v == b.v
	}))
	m.Put(1, opaque{7})
	require.True(t, m.ContainsValue(opaque{7}))
	require.False(t, m.ContainsValue(opaque{8}))
}

func TestDefaultValueEqual(t *testing.T) {
	type token struct{ id int }
	tokens := New[string, token](0)
	tokens.Put("a", token{1})
	require.True(t, tokens.ContainsValue(token{1}))
	require.False(t, tokens.ContainsValue(token{2}))
	require.True(t, tokens.Entries().Contains(MakeEntry("a", token{1})))
	require.True(t, tokens.Values().Remove(token{1}))
	require.True(t, tokens.IsEmpty())

	// Pointers are equal only if they are identical.
	type point struct{ X int }
	p := &point{1}
	ptrs := New[string, *point](0)
	ptrs.Put("p", p)
	require.True(t, ptrs.ContainsValue(p))
	require.False(t, ptrs.ContainsValue(&point{1}))

	// Values which cannot be compared with == are compared structurally,
	// unexported fields included.
	type bag struct{ items []int }
	bags := New[int, bag](0)
	bags.Put(1, bag{[]int{1, 2}})
	require.True(t, bags.ContainsValue(bag{[]int{1, 2}}))
	require.False(t, bags.ContainsValue(bag{[]int{2, 1}}))
	other := New[int, bag](0)
	other.Put(1, bag{[]int{1, 2}})
	require.True(t, bags.Equal(other))

	// Interface values use == unless their dynamic types are not comparable.
	anys := New[string, any](0)
	anys.Put("t", token{3})
	anys.Put("s", []int{4})
	require.True(t, anys.ContainsValue(token{3}))
	require.True(t, anys.ContainsValue([]int{4}))
	require.False(t, anys.ContainsValue([]int{5}))
	require.False(t, anys.ContainsValue(3))
}

func TestConstantHashBoundsIndex(t *testing.T) {
	n := 2000
	if invariants {
		n = 200
	}
	m := New[int, int](0, WithHash[int, int](constantHash(7)))
	for i := 0; i < n; i++ {
		m.Put(i, i)
	}
	s := m.Stats()
	require.Equal(t, n, s.Len)
	require.GreaterOrEqual(t, s.MaxProbes, n)
	require.LessOrEqual(t, s.HashSize, maxHashSizeFactor*computeHashSize(s.Capacity))
	for i := 0; i < n; i++ {
		v, ok := m.Get(i)
		require.True(t, ok)
		require.Equal(t, i, v)
	}
}

func TestDefaultHasher(t *testing.T) {
	hs := defaultHasher[string]()
	require.Equal(t, hs("hello"), hs("hel"+"lo"))
	require.NotEqual(t, hs("hello"), hs("world"))
	require.Equal(t, hs(""), hs(""))

	type named string
	hn := defaultHasher[named]()
	require.Equal(t, maphash.Comparable(comparableSeed, named("x")), hn("x"))

	hi := defaultHasher[[2]int]()
	require.Equal(t, hi([2]int{1, 2}), hi([2]int{1, 2}))
}

type countingAllocator[K comparable, V any] struct {
	alloc int
	free  int
}

func (a *countingAllocator[K, V]) AllocKeys(n int) []K {
	a.alloc++
	return make([]K, n)
}

func (a *countingAllocator[K, V]) AllocValues(n int) []V {
	a.alloc++
	return make([]V, n)
}

func (a *countingAllocator[K, V]) AllocPresence(n int) []bool {
	a.alloc++
	return make([]bool, n)
}

func (a *countingAllocator[K, V]) AllocIndex(n int) []uint32 {
	a.alloc++
	return make([]uint32, n)
}

func (a *countingAllocator[K, V]) FreeKeys(_ []K) { a.free++ }
func (a *countingAllocator[K, V]) FreeValues(_ []V) { a.free++ }
func (a *countingAllocator[K, V]) FreePresence(_ []bool) { a.free++ }
func (a *countingAllocator[K, V]) FreeIndex(_ []uint32) { a.free++ }

func TestAllocator(t *testing.T) {
	a := &countingAllocator[int, int]{}
	m := New[int, int](0, WithAllocator[int, int](a))

	for i := 0; i < 100; i++ {
		m.Put(i, i)
	}
	require.Greater(t, a.alloc, 4)
	// Everything but the live store and index has been released.
	require.EqualValues(t, a.alloc-4, a.free)

	m.Close()
	require.EqualValues(t, a.alloc, a.free)

	// Close is idempotent.
	m.Close()
	require.EqualValues(t, a.alloc, a.free)
}
