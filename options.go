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

import "go.uber.org/zap"

// option provide an interface to do work on Map while it is being created.
type option[K comparable, V any] interface {
	apply(m *Map[K, V])
}

type hasherOption[K comparable, V any] struct {
	hasher Hasher[K]
}

func (op hasherOption[K, V]) apply(m *Map[K, V]) {
	m.hasher = op.hasher
}

// WithHasher is an option to specify the Hasher to use for a Map[K,V] in
// place of the default strategy for K.
//
// If the collision defense fires and hasher does not implement Randomizer,
// the map switches to the runtime hash and compares keys with ==. A hasher
// whose Equal is coarser than == should implement Randomizer.
func WithHasher[K comparable, V any](hasher Hasher[K]) option[K, V] {
	return hasherOption[K, V]{hasher}
}

// Allocator specifies an interface for allocating and releasing the entry
// and bucket arrays used by a Map. The default allocator utilizes Go's
// builtin make() and allows the GC to reclaim memory.
//
// If the allocator is manually managing memory and requires that arrays be
// freed then Map.Close must be called in order to ensure FreeEntries and
// FreeBuckets are called.
type Allocator[K comparable, V any] interface {
	// AllocEntries should return a slice equivalent to
	// make([]Entry[K,V], n).
	AllocEntries(n int) []Entry[K, V]

	// AllocBuckets should return a zeroed slice equivalent to
	// make([]int32, n).
	AllocBuckets(n int) []int32

	// FreeEntries can optionally release the memory associated with the
	// supplied slice that is guaranteed to have been allocated by
	// AllocEntries.
	FreeEntries(v []Entry[K, V])

	// FreeBuckets can optionally release the memory associated with the
	// supplied slice that is guaranteed to have been allocated by
	// AllocBuckets.
	FreeBuckets(v []int32)
}

type defaultAllocator[K comparable, V any] struct{}

func (defaultAllocator[K, V]) AllocEntries(n int) []Entry[K, V] {
	return make([]Entry[K, V], n)
}

func (defaultAllocator[K, V]) AllocBuckets(n int) []int32 {
	return make([]int32, n)
}

func (defaultAllocator[K, V]) FreeEntries(v []Entry[K, V]) {
}

func (defaultAllocator[K, V]) FreeBuckets(v []int32) {
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

// DefenseMode selects how a Map reacts when an insert walks a chain longer
// than the collision threshold.
type DefenseMode uint8

const (
	// DefenseRehash replaces the hash strategy with a randomized one and
	// rehashes every entry. A caller supplied Hasher is dropped in favor of
	// the runtime's seeded hash for K unless it implements Randomizer, in
	// which case its Randomized replacement is used. The switch happens at
	// most once per Map.
	DefenseRehash DefenseMode = iota
	// DefenseReport leaves the hash strategy in place and reports every
	// insert that crosses the threshold through the Observer and an
	// error-level log entry.
	DefenseReport
	// DefenseOff only notifies the Observer.
	DefenseOff
)

func (d DefenseMode) String() string {
	switch d {
	case DefenseRehash:
		return "rehash"
	case DefenseReport:
		return "report"
	case DefenseOff:
		return "off"
	}
	return "unknown"
}

type defenseOption[K comparable, V any] struct {
	mode DefenseMode
}

func (op defenseOption[K, V]) apply(m *Map[K, V]) {
	m.defense = op.mode
}

// WithCollisionDefense is an option to specify the DefenseMode of a
// Map[K,V]. The default is DefenseRehash.
func WithCollisionDefense[K comparable, V any](mode DefenseMode) option[K, V] {
	return defenseOption[K, V]{mode}
}

type thresholdOption[K comparable, V any] struct {
	threshold int
}

func (op thresholdOption[K, V]) apply(m *Map[K, V]) {
	m.collisionThreshold = op.threshold
}

// WithCollisionThreshold is an option to specify the chain length an insert
// may walk before the collision defense engages. The default is 100.
func WithCollisionThreshold[K comparable, V any](threshold int) option[K, V] {
	return thresholdOption[K, V]{threshold}
}

type loggerOption[K comparable, V any] struct {
	logger *zap.Logger
}

func (op loggerOption[K, V]) apply(m *Map[K, V]) {
	if op.logger == nil {
		m.logger = zap.NewNop()
		return
	}
	m.logger = op.logger
}

// WithLogger is an option to specify the logger used for resize and
// collision defense events. The default, and a nil logger, discards
// everything.
func WithLogger[K comparable, V any](logger *zap.Logger) option[K, V] {
	return loggerOption[K, V]{logger}
}

// Observer receives structural events from a Map. Calls are made
// synchronously from the mutating operation.
type Observer interface {
	// Resized is called whenever the bucket and entry arrays are replaced.
	// oldSize is 0 when arrays are first allocated, including those of a
	// Clone, and newSize is 0 when the map is closed or reinitialized with
	// Init. forced is set when every hash code was recomputed.
	Resized(oldSize, newSize int, forced bool)
	// CollisionDefense is called when an insert walked more than the
	// collision threshold.
	CollisionDefense(hops int, mode DefenseMode)
}

type observerOption[K comparable, V any] struct {
	observer Observer
}

func (op observerOption[K, V]) apply(m *Map[K, V]) {
	m.observer = op.observer
}

// WithObserver is an option to specify an Observer for a Map[K,V].
func WithObserver[K comparable, V any](observer Observer) option[K, V] {
	return observerOption[K, V]{observer}
}
