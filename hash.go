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

package chainmap

import (
	"encoding/binary"
	"hash/maphash"
	"math"
	"reflect"
	"unsafe"

	"github.com/zeebo/xxh3"
)

// Hasher is the wide hashing and equality capability used by a Map. Keys
// which are Equal must have the same Hash64.
type Hasher[K any] interface {
	Equal(a, b K) bool
	Hash64(key K) uint64
}

// Randomizer can be implemented by a Hasher to supply a replacement with
// unpredictable output, typically a freshly seeded copy of itself. The
// collision defense uses it in place of the intrinsic hash so that the
// Hasher's Equal semantics survive the switch.
type Randomizer[K any] interface {
	Randomized() Hasher[K]
}

// Hash64er is implemented by key types which supply their own wide hash.
// The default strategy of a Map uses it in preference to hashing the key's
// memory.
type Hash64er interface {
	Hash64() uint64
}

// hashKind identifies the strategy a Map resolved for its key type.
type hashKind uint8

const (
	hashCustom hashKind = iota
	hashSelf
	hashWiden
	hashFloat
	hashString
	hashMemory
	hashIdentity
	hashIntrinsic
)

func (k hashKind) String() string {
	switch k {
	case hashCustom:
		return "custom"
	case hashSelf:
		return "self"
	case hashWiden:
		return "widen"
	case hashFloat:
		return "float"
	case hashString:
		return "string"
	case hashMemory:
		return "memory"
	case hashIdentity:
		return "identity"
	case hashIntrinsic:
		return "intrinsic"
	}
	return "unknown"
}

// strategy is the hash and equality pair selected for a key type. A nil
// equal means the keys are compared with ==.
type strategy[K comparable] struct {
	kind  hashKind
	hash  func(key *K) uint64
	equal func(a, b *K) bool
}

// resolveStrategy selects the hashing strategy for K. A caller supplied
// hasher always wins. Otherwise the choice is made once from the shape of
// K so that no per-call type dispatch is needed.
func resolveStrategy[K comparable](hasher Hasher[K], seed maphash.Seed) strategy[K] {
	if hasher != nil {
		return customStrategy(hasher)
	}

	t := reflect.TypeFor[K]()
	// Pointer keys compare by address, and a nil pointer cannot be asked
	// for its hash, so they use identity hashing below.
	if k := t.Kind(); k != reflect.Interface && k != reflect.Pointer &&
		t.Implements(reflect.TypeFor[Hash64er]()) {
		return strategy[K]{
			kind: hashSelf,
			hash: func(key *K) uint64 {
				return any(*key).(Hash64er).Hash64()
			},
		}
	}

	switch t.Kind() {
	case reflect.Bool, reflect.Uint8:
		return widen(func(key *K) uint64 { return uint64(*(*uint8)(unsafe.Pointer(key))) })
	case reflect.Int8:
		return widen(func(key *K) uint64 { return uint64(*(*int8)(unsafe.Pointer(key))) })
	case reflect.Uint16:
		return widen(func(key *K) uint64 { return uint64(*(*uint16)(unsafe.Pointer(key))) })
	case reflect.Int16:
		return widen(func(key *K) uint64 { return uint64(*(*int16)(unsafe.Pointer(key))) })
	case reflect.Uint32:
		return widen(func(key *K) uint64 { return uint64(*(*uint32)(unsafe.Pointer(key))) })
	case reflect.Int32:
		return widen(func(key *K) uint64 { return uint64(*(*int32)(unsafe.Pointer(key))) })
	case reflect.Uint64:
		return widen(func(key *K) uint64 { return *(*uint64)(unsafe.Pointer(key)) })
	case reflect.Int64:
		return widen(func(key *K) uint64 { return uint64(*(*int64)(unsafe.Pointer(key))) })
	case reflect.Uint:
		return widen(func(key *K) uint64 { return uint64(*(*uint)(unsafe.Pointer(key))) })
	case reflect.Int:
		return widen(func(key *K) uint64 { return uint64(*(*int)(unsafe.Pointer(key))) })
	case reflect.Uintptr:
		return widen(func(key *K) uint64 { return uint64(*(*uintptr)(unsafe.Pointer(key))) })

	case reflect.Float32:
		return strategy[K]{kind: hashFloat, hash: func(key *K) uint64 {
			f := *(*float32)(unsafe.Pointer(key))
			if f == 0 {
				// +0 and -0 are equal and must hash alike.
				return 0
			}
			return uint64(math.Float32bits(f))
		}}
	case reflect.Float64:
		return strategy[K]{kind: hashFloat, hash: func(key *K) uint64 {
			f := *(*float64)(unsafe.Pointer(key))
			if f == 0 {
				return 0
			}
			return math.Float64bits(f)
		}}

	case reflect.String:
		return strategy[K]{kind: hashString, hash: func(key *K) uint64 {
			return xxh3.HashString(*(*string)(unsafe.Pointer(key)))
		}}

	case reflect.Pointer, reflect.Chan, reflect.UnsafePointer:
		return strategy[K]{kind: hashIdentity, hash: func(key *K) uint64 {
			return mix64(uint64(*(*uintptr)(unsafe.Pointer(key))))
		}}
	}

	if isMemoryKey(t) {
		size := t.Size()
		return strategy[K]{kind: hashMemory, hash: func(key *K) uint64 {
			return foldBytes(unsafe.Pointer(key), size)
		}}
	}
	return intrinsicStrategy[K](seed)
}

func widen[K comparable](hash func(key *K) uint64) strategy[K] {
	return strategy[K]{kind: hashWiden, hash: hash}
}

func customStrategy[K comparable](hasher Hasher[K]) strategy[K] {
	return strategy[K]{
		kind: hashCustom,
		hash: func(key *K) uint64 {
			return hasher.Hash64(*key)
		},
		equal: func(a, b *K) bool {
			return hasher.Equal(*a, *b)
		},
	}
}

// intrinsicStrategy uses the runtime's seeded hash for K, the same hash the
// builtin map uses. It is the fallback for keys with no cheaper strategy
// and the replacement installed by the collision defense.
func intrinsicStrategy[K comparable](seed maphash.Seed) strategy[K] {
	return strategy[K]{kind: hashIntrinsic, hash: func(key *K) uint64 {
		return maphash.Comparable(seed, *key)
	}}
}

// isMemoryKey reports whether == on values of type t is equivalent to
// comparing their memory: no padding, blank fields, floats, strings,
// pointers or interfaces anywhere in the type.
func isMemoryKey(t reflect.Type) bool {
	switch t.Kind() {
	case reflect.Bool,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return true
	case reflect.Array:
		return t.Len() == 0 || isMemoryKey(t.Elem())
	case reflect.Struct:
		var size uintptr
		for i := 0; i < t.NumField(); i++ {
			f := t.Field(i)
			if f.Name == "_" || !isMemoryKey(f.Type) {
				return false
			}
			size += f.Type.Size()
		}
		return size == t.Size()
	}
	return false
}

// isPrimitive reports whether t is a builtin scalar. The collision defense
// is never applied to primitive keys.
func isPrimitive(t reflect.Type) bool {
	switch t.Kind() {
	case reflect.Bool,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr,
		reflect.Float32, reflect.Float64, reflect.Complex64, reflect.Complex128:
		return true
	}
	return false
}

const (
	foldOffset = 14695981039346656037
	foldPrime  = 1099511628211
)

// foldBytes hashes n bytes at p, folding them into the state a word at a
// time with the FNV-1a multiplier and finishing with mix64.
func foldBytes(p unsafe.Pointer, n uintptr) uint64 {
	b := unsafe.Slice((*byte)(p), n)
	h := uint64(foldOffset)
	for ; len(b) >= 8; b = b[8:] {
		h = (h ^ binary.LittleEndian.Uint64(b)) * foldPrime
	}
	for _, c := range b {
		h = (h ^ uint64(c)) * foldPrime
	}
	return mix64(h)
}

// mix64 is the SplitMix64 finalizer.
func mix64(x uint64) uint64 {
	x ^= x >> 30
	x *= 0xbf58476d1ce4e5b9
	x ^= x >> 27
	x *= 0x94d049bb133111eb
	x ^= x >> 31
	return x
}
