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
	"reflect"

	"github.com/google/go-cmp/cmp"
)

// option provide an interface to do work on Map while it is being created.
type option[K comparable, V any] interface {
	apply(m *Map[K, V])
}

type hashOption[K comparable, V any] struct {
	hash func(key K) uint64
}

func (op hashOption[K, V]) apply(m *Map[K, V]) {
	m.hash = op.hash
}

// WithHash is an option to specify the hash function to use for a Map[K,V].
// Only the folded 32-bit hash code is used for bucket selection, so a hash
// function should mix entropy into both halves of its result. Equal keys
// must produce equal hashes.
func WithHash[K comparable, V any](hash func(key K) uint64) option[K, V] {
	return hashOption[K, V]{hash}
}

type valueEqualOption[K comparable, V any] struct {
	equal func(a, b V) bool
}

func (op valueEqualOption[K, V]) apply(m *Map[K, V]) {
	m.valueEqual = op.equal
}

// WithValueEqual is an option to specify how values are compared by
// ContainsValue, the value and entry views, and Equal. By default values of
// comparable types are compared with ==, and other values (slices, maps,
// structs holding them) are compared structurally with cmp.Equal, unexported
// fields included.
func WithValueEqual[K comparable, V any](equal func(a, b V) bool) option[K, V] {
	return valueEqualOption[K, V]{equal}
}

type valueHashOption[K comparable, V any] struct {
	hash func(v V) uint32
}

func (op valueHashOption[K, V]) apply(m *Map[K, V]) {
	m.valueHash = op.hash
}

// WithValueHash is an option to specify the value hash mixed into HashCode.
// Values which are equal according to the value equality must hash the
// same. Without this option values do not contribute to HashCode.
func WithValueHash[K comparable, V any](hash func(v V) uint32) option[K, V] {
	return valueHashOption[K, V]{hash}
}

// exportAll lets cmp.Equal descend into unexported struct fields.
var exportAll = cmp.Exporter(func(reflect.Type) bool { return true })

// defaultValueEqual returns the value equality used when WithValueEqual is
// not given. Values of a comparable type are compared with ==, so pointers
// are equal only if they are identical. Values which cannot be compared
// with == are compared structurally by cmp.Equal.
func defaultValueEqual[V any]() func(a, b V) bool {
	t := reflect.TypeFor[V]()
	if t.Comparable() && !holdsInterface(t) {
		return func(a, b V) bool {
			return any(a) == any(b)
		}
	}
	// An interface anywhere in V means == may panic depending on the dynamic
	// types, so the check is made per call.
	return func(a, b V) bool {
		if reflect.ValueOf(&a).Elem().Comparable() && reflect.ValueOf(&b).Elem().Comparable() {
			return any(a) == any(b)
		}
		return cmp.Equal(a, b, exportAll)
	}
}

// holdsInterface returns true if a value of type t can contain an interface
// value without indirection.
func holdsInterface(t reflect.Type) bool {
	switch t.Kind() {
	case reflect.Interface:
		return true
	case reflect.Array:
		return holdsInterface(t.Elem())
	case reflect.Struct:
		for i := 0; i < t.NumField(); i++ {
			if holdsInterface(t.Field(i).Type) {
				return true
			}
		}
	}
	return false
}

func zeroValueHash[V any](V) uint32 {
	return 0
}

// Allocator specifies an interface for allocating and releasing the backing
// arrays used by a Map. The default allocator utilizes Go's builtin make()
// and allows the GC to reclaim memory.
//
// If the allocator is manually managing memory and requires that arrays be
// freed then Map.Close must be called in order to ensure the Free methods
// are called.
type Allocator[K comparable, V any] interface {
	// AllocKeys should return a slice equivalent to make([]K, n).
	AllocKeys(n int) []K

	// AllocValues should return a slice equivalent to make([]V, n).
	AllocValues(n int) []V

	// AllocPresence should return a slice equivalent to make([]bool, n).
	AllocPresence(n int) []bool

	// AllocIndex should return a slice equivalent to make([]uint32, n).
	AllocIndex(n int) []uint32

	// FreeKeys can optionally release the memory associated with the supplied
	// slice that is guaranteed to have been allocated by AllocKeys.
	FreeKeys(v []K)

	// FreeValues can optionally release the memory associated with the
	// supplied slice that is guaranteed to have been allocated by
	// AllocValues.
	FreeValues(v []V)

	// FreePresence can optionally release the memory associated with the
	// supplied slice that is guaranteed to have been allocated by
	// AllocPresence.
	FreePresence(v []bool)

	// FreeIndex can optionally release the memory associated with the
	// supplied slice that is guaranteed to have been allocated by
	// AllocIndex.
	FreeIndex(v []uint32)
}

type defaultAllocator[K comparable, V any] struct{}

func (defaultAllocator[K, V]) AllocKeys(n int) []K {
	return make([]K, n)
}

func (defaultAllocator[K, V]) AllocValues(n int) []V {
	return make([]V, n)
}

func (defaultAllocator[K, V]) AllocPresence(n int) []bool {
	return make([]bool, n)
}

func (defaultAllocator[K, V]) AllocIndex(n int) []uint32 {
	return make([]uint32, n)
}

func (defaultAllocator[K, V]) FreeKeys(v []K) {
}

func (defaultAllocator[K, V]) FreeValues(v []V) {
}

func (defaultAllocator[K, V]) FreePresence(v []bool) {
}

func (defaultAllocator[K, V]) FreeIndex(v []uint32) {
}

type allocatorOption[K comparable, V any] struct {
	allocator Allocator[K, V]
}

func (op allocatorOption[K, V]) apply(m *Map[K, V]) {
	m.allocator = op.allocator
}

// WithAllocator is an option for specify the Allocator to use for a Map[K,V].
func WithAllocator[K comparable, V any](allocator Allocator[K, V]) option[K, V] {
	return allocatorOption[K, V]{allocator}
}
