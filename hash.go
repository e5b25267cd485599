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
	"unsafe"

	"github.com/zeebo/xxh3"
)

// The default hashers are seeded once per process so that hash codes, and
// therefore HashCode results, agree between maps in the same process.
var (
	comparableSeed = maphash.MakeSeed()
	stringSeed     = maphash.Comparable(comparableSeed, "ordmap")
)

// defaultHasher returns the hash function used when WithHash is not given.
// String keys are hashed with XXH3; all other comparable keys use the
// runtime's hash through maphash.Comparable.
func defaultHasher[K comparable]() func(key K) uint64 {
	var zero K
	if _, ok := any(zero).(string); ok {
		return func(key K) uint64 {
			s := *(*string)(unsafe.Pointer(&key))
			return xxh3.HashSeed(unsafe.Slice(unsafe.StringData(s), len(s)), stringSeed)
		}
	}
	return func(key K) uint64 {
		return maphash.Comparable(comparableSeed, key)
	}
}

// foldHash reduces a 64-bit hash to the 32-bit hash code used to select a
// bucket.
func foldHash(h uint64) uint32 {
	return uint32(h) ^ uint32(h>>32)
}
