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
	"hash/maphash"
	"math/rand"
	"slices"
	"testing"

	"github.com/stretchr/testify/require"
)

// TestSlidingWindow runs a long insert/remove workload that keeps the number
// of live keys between minLive and maxLive. A quarter of the keys fall into
// a handful of fully colliding hash classes.
func TestSlidingWindow(t *testing.T) {
	const minLive, maxLive = 10, 100
	ops := 1000000
	if testing.Short() || invariants {
		ops = 50000
	}

	seed := maphash.MakeSeed()
	hash := func(k int) uint64 {
		if k%4 == 0 {
			return uint64(k%32) << 27
		}
		return maphash.Comparable(seed, k)
	}
	m := New[int, int](0, WithHash[int, int](hash))
	rng := rand.New(rand.NewSource(1))

	var window []int
	next := 0
	for op := 0; op < ops; op++ {
		insert := len(window) < minLive ||
			(len(window) < maxLive && rng.Intn(2) == 0)
		if insert {
			k := next
			next++
			_, replaced := m.Put(k, -k)
			require.False(t, replaced, "key %d", k)
			window = append(window, k)
		} else {
			j := rng.Intn(len(window))
			k := window[j]
			window = slices.Delete(window, j, j+1)
			v, removed := m.Remove(k)
			require.True(t, removed, "key %d", k)
			require.Equal(t, -k, v)
			require.False(t, m.ContainsKey(k))
		}
		require.Equal(t, len(window), m.Len())
		require.LessOrEqual(t, m.Len(), maxLive)

		if op%1000 == 0 {
			require.Equal(t, window, slices.Collect(m.Keys().All()))
			for _, k := range window {
				v, ok := m.Get(k)
				require.True(t, ok, "key %d", k)
				require.Equal(t, -k, v)
			}
		}
	}
	require.Equal(t, window, slices.Collect(m.Keys().All()))

	// Dead slots are reclaimed by compaction rather than growth.
	s := m.Stats()
	require.LessOrEqual(t, s.Capacity, 4*maxLive)
	require.Greater(t, s.Compactions, 0)
	t.Logf("%+v", s)
}
