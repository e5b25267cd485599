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
	"math"
	"math/bits"
	"unsafe"
)

const (
	// fibonacciMultiplier is 2^32 divided by the golden ratio. Multiplying a
	// hash code by it and keeping the top bits spreads hash codes which only
	// differ in their low bits across the whole index.
	fibonacciMultiplier = 0x9e3779b9

	initialMaxProbes = 5

	// maxHashSizeFactor bounds how far probe exhaustion may grow the index
	// beyond computeHashSize of the backing capacity. Past it, exhaustion
	// grows the probe budget instead.
	maxHashSizeFactor = 4
)

// Each bucket of the hash index holds a reference into the backing store.
// The reference is one of three states:
//
//	    empty: 0           never occupied, terminates a probe
//	tombstone: 0xffffffff  occupied once, skipped by probes
//	     slot: i+1         refers to live backing slot i
type bucketRef uint32

const (
	refEmpty     bucketRef = 0
	refTombstone bucketRef = math.MaxUint32
)

// refTo returns the bucket reference for backing slot i.
func refTo(i int) bucketRef {
	return bucketRef(i + 1)
}

// slot returns the backing slot referenced by r. ok is false for empty and
// tombstone buckets.
func (r bucketRef) slot() (i int, ok bool) {
	if r == refEmpty || r == refTombstone {
		return 0, false
	}
	return int(r - 1), true
}

func (r bucketRef) String() string {
	switch r {
	case refEmpty:
		return "empty"
	case refTombstone:
		return "tombstone"
	default:
		return fmt.Sprintf("slot(%d)", r-1)
	}
}

// computeHashSize returns the index size for a backing store of the given
// capacity. The index is kept at a load factor of at most 1/3 of the backing
// capacity.
func computeHashSize(capacity int) int {
	if capacity < 1 {
		capacity = 1
	}
	return highestOneBit(capacity * 3)
}

// highestOneBit returns n with all but its highest set bit cleared. n must be
// positive.
func highestOneBit(n int) int {
	return 1 << (bits.Len(uint(n)) - 1)
}

// computeShift returns the right shift which reduces a 32-bit product to an
// index bucket for an index of hashSize buckets.
func computeShift(hashSize int) uint {
	return uint(bits.LeadingZeros32(uint32(hashSize))) + 1
}

// fibonacciBucket maps a hash code to its home bucket.
func fibonacciBucket(code uint32, shift uint) uint32 {
	return (code * fibonacciMultiplier) >> shift
}

// probeSeq maintains the state for a probe sequence. Probing starts at the
// home bucket and steps backward, wrapping from bucket 0 to the last bucket,
// visiting at most maxProbes buckets.
type probeSeq struct {
	mask   uint32
	offset uint32
	left   int
}

func makeProbeSeq(home uint32, hashSize int, maxProbes int) probeSeq {
	mask := uint32(hashSize - 1)
	return probeSeq{
		mask:   mask,
		offset: home & mask,
		left:   maxProbes,
	}
}

// final returns true if the current bucket is the last one the probe budget
// allows.
func (s probeSeq) final() bool {
	return s.left <= 1
}

func (s probeSeq) next() probeSeq {
	s.left--
	s.offset = (s.offset - 1) & s.mask
	return s
}

func (s probeSeq) String() string {
	return fmt.Sprintf("mask=%d offset=%d left=%d", s.mask, s.offset, s.left)
}

func unsafeConvertSlice[Dest any, Src any](s []Src) []Dest {
	return unsafe.Slice((*Dest)(unsafe.Pointer(unsafe.SliceData(s))), len(s))
}
