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

// Package chainmap is a Go implementation of a chained hash table laid out
// in two flat arrays, in the style of the .NET Dictionary<TKey,TValue>.
//
// # Layout
//
// A Map holds an entry array and a bucket array of the same prime length.
// Each entry holds the wide (64-bit) hash of its key, the key, the value and
// a next link. Entries which share a bucket form a singly linked chain
// threaded through the entry array by index, so chaining never allocates a
// node. The bucket array holds the 1-based index of the head of each chain,
// which lets the zero value mean "empty bucket".
//
//	buckets:  [ 0 | 3 | 0 | 1 | 0 ]
//	                |       |
//	                v       v
//	entries:  [ k0 next=-1 | k1 next=-1 | k2 next=0 | ... ]
//	                ^                        |
//	                +------------------------+
//
// A hash is mapped to a bucket by folding it to 32 bits and reducing it
// modulo the prime table size with Lemire's multiplicative fast modulo, so
// lookups never divide.
//
// # Deletion
//
// Deleted entries are not moved. They are unlinked from their chain and
// pushed onto a free list which is threaded through the same next field:
// a next value >= -1 is a chain link (-1 ends the chain) while a value < -1
// marks the entry as free and encodes the index of the next free entry as
// startOfFreeList-next. Inserts pop the free list before appending, so a
// Map with churn but a stable size never grows.
//
// # Collision defense
//
// An insert which walks a chain longer than the collision threshold (100 by
// default) on a non-primitive key type is treated as a hash-flooding
// attack. Under the default DefenseRehash mode the Map replaces its hash
// strategy with a randomly seeded one and rehashes every entry.
//
// A Map is NOT goroutine-safe. A chain walk which visits more entries than
// the Map holds is reported by panicking with an error matching
// ErrConcurrentMutation, which is a best-effort detector of unsynchronized
// concurrent mutation.
package chainmap

import (
	"fmt"
	"hash/maphash"
	"reflect"
	"strings"

	"go.uber.org/zap"
)

const (
	debug = false

	defaultCollisionThreshold = 100

	// startOfFreeList biases free-list links stored in Entry.next so that
	// they never collide with chain links. See freeLink.
	startOfFreeList = -3
)

// maxTableSize is the largest entry array a Map grows to.
var maxTableSize = maxPrimeArrayLength

// Entry holds a key and value along with the wide hash of the key and the
// link to the next entry.
//
// next is a tagged union stored in one int32:
//
//	next >= -1  Next(next): index of the next entry in the chain, -1 ends it.
//	next <  -1  Free(startOfFreeList-next): the entry is free and the
//	            decoded value is the next free entry, -1 ends the list.
type Entry[K comparable, V any] struct {
	hash  uint64
	next  int32
	key   K
	value V
}

// live reports whether the entry holds a key.
func (e *Entry[K, V]) live() bool {
	return e.next >= -1
}

// freeLink converts between a free-list index and its encoding in
// Entry.next. The conversion is its own inverse.
func freeLink(v int32) int32 {
	return startOfFreeList - v
}

type insertionBehavior uint8

const (
	insertOverwrite insertionBehavior = iota
	insertThrowOnExisting
	insertFailSilently
)

type insertResult uint8

const (
	inserted insertResult = iota
	updated
	exists
	// overflow means the key is absent and the table is already at
	// maxTableSize.
	overflow
)

// Map is an unordered map from keys to values. By default a Map[K,V] picks
// a hash strategy from the shape of K (see Hasher), though a different one
// can be specified using the WithHasher option.
//
// The zero value is an empty map ready to use.
//
// A Map is NOT goroutine-safe.
type Map[K comparable, V any] struct {
	// The hash and equality functions for keys of type K, resolved once from
	// hasher or the shape of K. A nil equal compares keys with ==.
	hash  func(key *K) uint64
	equal func(a, b *K) bool
	kind  hashKind
	// primitive is set when K is a builtin scalar; the collision defense is
	// never applied to such keys.
	primitive bool
	// hasher is the caller supplied Hasher, if any.
	hasher Hasher[K]
	// The allocator to use for the buckets and entries slices.
	allocator Allocator[K, V]
	logger    *zap.Logger
	observer  Observer

	collisionThreshold int
	defense            DefenseMode
	// defended is set once DefenseRehash has replaced the hash strategy.
	defended bool

	// buckets holds 1-based indexes of chain heads in entries. len(buckets)
	// == len(entries), and both are nil until the first insert.
	buckets []int32
	entries []Entry[K, V]
	// multiplier is fastModMultiplier(len(buckets)).
	multiplier uint64
	// count is the number of entries ever allocated, live or free. Entries
	// at or above count have never been used.
	count int32
	// freeList is the index of the first free entry or -1.
	freeList  int32
	freeCount int32
	// version is bumped by every structural mutation. Overwriting the value
	// of an existing key does not bump it.
	version uint64
}

// New constructs a new Map with the specified initial capacity. If
// initialCapacity is 0 the map will start out with zero capacity and will
// grow on the first insert. New panics if initialCapacity is negative or
// exceeds the largest supported table size.
func New[K comparable, V any](initialCapacity int, options ...option[K, V]) *Map[K, V] {
	m := &Map[K, V]{}
	m.Init(initialCapacity, options...)
	return m
}

// FromMap constructs a new Map holding the entries of src.
func FromMap[K comparable, V any](src map[K]V, options ...option[K, V]) *Map[K, V] {
	m := New[K, V](len(src), options...)
	for k, v := range src {
		m.Set(k, v)
	}
	return m
}

// Init initializes a Map with the specified initial capacity, releasing any
// arrays it previously held. Init is a convenience for reusing a Map value,
// or embedding one, without an additional allocation.
func (m *Map[K, V]) Init(initialCapacity int, options ...option[K, V]) {
	if m.buckets != nil && m.observer != nil {
		m.observer.Resized(len(m.buckets), 0, false)
	}
	m.release()
	*m = Map[K, V]{
		allocator:          defaultAllocator[K, V]{},
		logger:             zap.NewNop(),
		collisionThreshold: defaultCollisionThreshold,
		freeList:           -1,
	}
	for _, op := range options {
		op.apply(m)
	}
	m.resolveHash()

	if initialCapacity != 0 {
		if _, err := m.EnsureCapacity(initialCapacity); err != nil {
			panic(err)
		}
	}
	m.checkInvariants()
}

// lazyInit gives a zero Map its defaults.
func (m *Map[K, V]) lazyInit() {
	if m.allocator == nil {
		m.allocator = defaultAllocator[K, V]{}
	}
	if m.logger == nil {
		m.logger = zap.NewNop()
	}
	if m.collisionThreshold == 0 {
		m.collisionThreshold = defaultCollisionThreshold
	}
	m.resolveHash()
}

func (m *Map[K, V]) resolveHash() {
	s := resolveStrategy(m.hasher, maphash.MakeSeed())
	m.kind, m.hash, m.equal = s.kind, s.hash, s.equal
	m.primitive = isPrimitive(reflect.TypeFor[K]())
}

// Close closes the map, releasing any memory back to its configured
// allocator. It is unnecessary to close a map using the default allocator.
// It is invalid to use a Map after it has been closed, though Close itself
// is idempotent.
func (m *Map[K, V]) Close() {
	if m.buckets != nil && m.observer != nil {
		m.observer.Resized(len(m.buckets), 0, false)
	}
	m.release()
	m.count, m.freeCount, m.freeList = 0, 0, -1
	m.version++
	m.allocator = nil
}

func (m *Map[K, V]) release() {
	if m.buckets == nil {
		return
	}
	if m.allocator != nil {
		m.allocator.FreeEntries(m.entries)
		m.allocator.FreeBuckets(m.buckets)
	}
	m.buckets, m.entries = nil, nil
}

// Set inserts an entry into the map, overwriting an existing value if an
// entry with the same key already exists.
//
// Set panics with a *CapacityError if the key is absent and the map is
// already at its largest table size. Use Insert to receive that as an error.
func (m *Map[K, V]) Set(key K, value V) {
	if _, r := m.tryInsert(key, value, insertOverwrite); r == overflow {
		panic(m.overflowError())
	}
}

// Insert inserts an entry into the map. If an entry with the same key is
// already present the map is unchanged and a *KeyError matching
// ErrDuplicateKey is returned. If the key is absent and the map is already
// at its largest table size a *CapacityError matching ErrCapacityOverflow
// is returned.
func (m *Map[K, V]) Insert(key K, value V) error {
	switch _, r := m.tryInsert(key, value, insertThrowOnExisting); r {
	case exists:
		return &KeyError[K]{Key: key, Err: ErrDuplicateKey}
	case overflow:
		return m.overflowError()
	}
	return nil
}

// TryInsert inserts an entry into the map if no entry with the same key is
// present, returning whether the entry was inserted. It returns false
// rather than growing past the largest table size.
func (m *Map[K, V]) TryInsert(key K, value V) bool {
	_, r := m.tryInsert(key, value, insertFailSilently)
	return r == inserted
}

// GetOrAdd returns the existing value for key if present. Otherwise it
// inserts value and returns it. loaded is true if the value was present.
func (m *Map[K, V]) GetOrAdd(key K, value V) (actual V, loaded bool) {
	i, r := m.tryInsert(key, value, insertFailSilently)
	if r == overflow {
		panic(m.overflowError())
	}
	return m.entries[i].value, r == exists
}

// Get retrieves the value from the map for the specified key. If the key is
// not present a *KeyError matching ErrKeyNotFound is returned.
func (m *Map[K, V]) Get(key K) (V, error) {
	if e := m.findEntry(&key); e != nil {
		return e.value, nil
	}
	var zero V
	return zero, &KeyError[K]{Key: key, Err: ErrKeyNotFound}
}

// TryGet retrieves the value from the map for the specified key, returning
// ok=false if the key is not present.
func (m *Map[K, V]) TryGet(key K) (value V, ok bool) {
	if e := m.findEntry(&key); e != nil {
		return e.value, true
	}
	return value, false
}

// Ptr returns a pointer to the value stored for key, or nil if the key is
// not present. The pointer is valid until the next structural mutation of
// the map.
func (m *Map[K, V]) Ptr(key K) *V {
	if e := m.findEntry(&key); e != nil {
		return &e.value
	}
	return nil
}

// ContainsKey reports whether key is present in the map.
func (m *Map[K, V]) ContainsKey(key K) bool {
	return m.findEntry(&key) != nil
}

// ContainsValue reports whether any entry holds a value equal to value
// according to equal. It scans every entry.
func (m *Map[K, V]) ContainsValue(value V, equal func(a, b V) bool) bool {
	for i := range m.entries[:m.count] {
		if e := &m.entries[i]; e.live() && equal(e.value, value) {
			return true
		}
	}
	return false
}

// Remove deletes the entry for key from the map, returning whether it was
// present.
func (m *Map[K, V]) Remove(key K) bool {
	_, ok := m.remove(&key)
	return ok
}

// RemoveTake deletes the entry for key from the map, returning the value it
// held.
func (m *Map[K, V]) RemoveTake(key K) (V, bool) {
	return m.remove(&key)
}

// Clear deletes all entries from the map. The capacity of the map is
// retained.
func (m *Map[K, V]) Clear() {
	if count := m.count; count > 0 {
		clear(m.buckets)
		clear(m.entries[:count])
		m.count = 0
		m.freeList = -1
		m.freeCount = 0
	}
	m.version++
	m.checkInvariants()
}

// Len returns the number of entries in the map.
func (m *Map[K, V]) Len() int {
	return int(m.count - m.freeCount)
}

// IsEmpty reports whether the map holds no entries.
func (m *Map[K, V]) IsEmpty() bool {
	return m.Len() == 0
}

// Capacity returns the number of entries the map can hold before it must
// grow.
func (m *Map[K, V]) Capacity() int {
	return len(m.entries)
}

// EnsureCapacity grows the map, if necessary, so that it can hold capacity
// entries without further growth. It returns the resulting capacity.
func (m *Map[K, V]) EnsureCapacity(capacity int) (int, error) {
	if capacity < 0 {
		return 0, &CapacityError{Requested: capacity, Err: ErrInvalidCapacity}
	}
	if capacity > maxTableSize {
		return 0, &CapacityError{Requested: capacity, Err: ErrCapacityOverflow}
	}
	if current := len(m.entries); current >= capacity {
		return current, nil
	}
	if m.buckets == nil {
		return m.initialize(capacity), nil
	}
	newSize := getPrime(capacity)
	m.resize(newSize, false)
	return newSize, nil
}

// TrimExcess shrinks the capacity of the map to the smallest table size
// which holds its entries.
func (m *Map[K, V]) TrimExcess() {
	_ = m.TrimExcessTo(m.Len())
}

// TrimExcessTo shrinks the capacity of the map to the smallest table size
// which holds capacity entries. It is an error for capacity to be smaller
// than Len. The map is left unchanged if it is already small enough.
func (m *Map[K, V]) TrimExcessTo(capacity int) error {
	if capacity < m.Len() {
		return &CapacityError{Requested: capacity, Err: ErrInvalidCapacity}
	}
	if capacity > maxTableSize {
		return &CapacityError{Requested: capacity, Err: ErrCapacityOverflow}
	}
	newSize := getPrime(capacity)
	if m.buckets == nil || newSize >= len(m.entries) {
		return nil
	}
	m.compact(newSize)
	return nil
}

// Clone returns a copy of the map which shares no storage with m.
func (m *Map[K, V]) Clone() *Map[K, V] {
	c := &Map[K, V]{}
	*c = *m
	c.version = 0
	if m.buckets != nil {
		c.buckets = c.allocator.AllocBuckets(len(m.buckets))
		c.entries = c.allocator.AllocEntries(len(m.entries))
		copy(c.buckets, m.buckets)
		copy(c.entries, m.entries[:m.count])
		if c.observer != nil {
			c.observer.Resized(0, len(c.buckets), false)
		}
	}
	return c
}

// bucket returns a pointer to the bucket head for hash value h. The pointer
// must not be held across a resize.
func (m *Map[K, V]) bucket(h uint64) *int32 {
	return &m.buckets[reduce(h, uint32(len(m.buckets)), m.multiplier)]
}

func (m *Map[K, V]) equalKeys(a, b *K) bool {
	if m.equal == nil {
		return *a == *b
	}
	return m.equal(a, b)
}

func (m *Map[K, V]) overflowError() error {
	return &CapacityError{Requested: len(m.entries) + 1, Err: ErrCapacityOverflow}
}

// concurrentMutation panics with an error matching ErrConcurrentMutation.
func (m *Map[K, V]) concurrentMutation(op string, hops int) {
	panic(&mutationError{op: op, hops: hops})
}

// findEntry returns the entry holding key, or nil.
func (m *Map[K, V]) findEntry(key *K) *Entry[K, V] {
	if m.buckets == nil {
		return nil
	}
	h := m.hash(key)
	i := *m.bucket(h) - 1
	if debug {
		fmt.Printf("find(%v): hash=%016x head=%d\n", *key, h, i)
	}

	for hops := 0; i >= 0; hops++ {
		if int(i) >= len(m.entries) || hops > len(m.entries) {
			m.concurrentMutation("find", hops)
		}
		e := &m.entries[i]
		if e.hash == h && m.equalKeys(&e.key, key) {
			return e
		}
		i = e.next
	}
	return nil
}

// initialize allocates the bucket and entry arrays at the smallest table
// size >= capacity and returns that size.
func (m *Map[K, V]) initialize(capacity int) int {
	if m.hash == nil {
		m.lazyInit()
	}
	size := getPrime(capacity)
	m.replace(m.allocator.AllocBuckets(size), m.allocator.AllocEntries(size), false)
	m.freeList = -1
	return size
}

func (m *Map[K, V]) tryInsert(key K, value V, behavior insertionBehavior) (int32, insertResult) {
	if m.buckets == nil {
		m.initialize(0)
	}

	h := m.hash(&key)
	b := m.bucket(h)
	i := *b - 1
	if debug {
		fmt.Printf("insert(%v): hash=%016x head=%d\n", key, h, i)
	}

	hops := 0
	for ; i >= 0; hops++ {
		if int(i) >= len(m.entries) || hops > len(m.entries) {
			m.concurrentMutation("insert", hops)
		}
		e := &m.entries[i]
		if e.hash == h && m.equalKeys(&e.key, &key) {
			if behavior == insertOverwrite {
				if debug {
					fmt.Printf("insert(updating): index=%d key=%v\n", i, key)
				}
				e.value = value
				return i, updated
			}
			return i, exists
		}
		i = e.next
	}

	var index int32
	if m.freeCount > 0 {
		index = m.freeList
		m.freeList = freeLink(m.entries[index].next)
		m.freeCount--
	} else {
		if int(m.count) == len(m.entries) {
			if len(m.entries) >= maxTableSize {
				return -1, overflow
			}
			m.resize(min(expandPrime(int(m.count)), maxTableSize), false)
			// The arrays were replaced: re-derive the bucket.
			b = m.bucket(h)
		}
		index = m.count
		m.count++
	}

	e := &m.entries[index]
	e.hash = h
	e.next = *b - 1
	e.key = key
	e.value = value
	*b = index + 1
	m.version++
	if debug {
		fmt.Printf("insert(inserting): index=%d len=%d free=%d\n", index, m.Len(), m.freeCount)
	}

	if hops > m.collisionThreshold && !m.primitive {
		m.collisionDefense(hops)
	}
	m.checkInvariants()
	return index, inserted
}

func (m *Map[K, V]) remove(key *K) (value V, ok bool) {
	if m.buckets == nil {
		return value, false
	}

	h := m.hash(key)
	b := m.bucket(h)
	last := int32(-1)
	i := *b - 1
	for hops := 0; i >= 0; hops++ {
		if int(i) >= len(m.entries) || hops > len(m.entries) {
			m.concurrentMutation("remove", hops)
		}
		e := &m.entries[i]
		if e.hash == h && m.equalKeys(&e.key, key) {
			if last < 0 {
				*b = e.next + 1
			} else {
				m.entries[last].next = e.next
			}
			value = e.value

			// Clear the key and value so the entry does not retain garbage.
			*e = Entry[K, V]{next: freeLink(m.freeList)}
			m.freeList = i
			m.freeCount++
			m.version++
			if debug {
				fmt.Printf("remove(%v): index=%d len=%d free=%d\n", *key, i, m.Len(), m.freeCount)
			}
			m.checkInvariants()
			return value, true
		}
		last = i
		i = e.next
	}
	return value, false
}

// collisionDefense handles an insert which walked more than the collision
// threshold.
func (m *Map[K, V]) collisionDefense(hops int) {
	if m.defense == DefenseRehash && m.defended {
		return
	}
	if m.observer != nil {
		m.observer.CollisionDefense(hops, m.defense)
	}

	switch m.defense {
	case DefenseRehash:
		m.defended = true
		from := m.kind
		var s strategy[K]
		if r, ok := m.hasher.(Randomizer[K]); ok {
			m.hasher = r.Randomized()
			s = customStrategy(m.hasher)
		} else {
			m.hasher = nil
			s = intrinsicStrategy[K](maphash.MakeSeed())
		}
		m.kind, m.hash, m.equal = s.kind, s.hash, s.equal
		m.logger.Warn("chainmap: collision threshold exceeded; rehashing with randomized hash",
			zap.Int("hops", hops),
			zap.Int("threshold", m.collisionThreshold),
			zap.Stringer("from", from),
			zap.Stringer("to", m.kind),
			zap.Int("len", m.Len()))
		m.resize(len(m.entries), true)
	case DefenseReport:
		m.logger.Error("chainmap: collision threshold exceeded",
			zap.Int("hops", hops),
			zap.Int("threshold", m.collisionThreshold),
			zap.Stringer("hash", m.kind),
			zap.Int("len", m.Len()))
	}
}

// resize replaces the bucket and entry arrays with arrays of newSize,
// relinking every live entry. If forceNewHashCodes is set every hash is
// recomputed with the current strategy. Entry indexes are preserved, which
// keeps the free list valid.
func (m *Map[K, V]) resize(newSize int, forceNewHashCodes bool) {
	count := int(m.count)
	if newSize < count {
		panic(fmt.Sprintf("chainmap: resize to %d below count %d", newSize, count))
	}

	entries := m.allocator.AllocEntries(newSize)
	copy(entries, m.entries[:count])
	if forceNewHashCodes {
		for i := range entries[:count] {
			if e := &entries[i]; e.live() {
				e.hash = m.hash(&e.key)
			}
		}
	}

	buckets := m.allocator.AllocBuckets(newSize)
	multiplier := fastModMultiplier(uint32(newSize))
	for i := range entries[:count] {
		if e := &entries[i]; e.live() {
			b := &buckets[reduce(e.hash, uint32(newSize), multiplier)]
			e.next = *b - 1
			*b = int32(i) + 1
		}
	}
	m.replace(buckets, entries, forceNewHashCodes)
	m.checkInvariants()
}

// compact rebuilds the map into arrays of newSize, packing live entries to
// the front and discarding the free list.
func (m *Map[K, V]) compact(newSize int) {
	entries := m.allocator.AllocEntries(newSize)
	buckets := m.allocator.AllocBuckets(newSize)
	multiplier := fastModMultiplier(uint32(newSize))

	var n int32
	for i := range m.entries[:m.count] {
		if e := &m.entries[i]; e.live() {
			entries[n] = *e
			b := &buckets[reduce(e.hash, uint32(newSize), multiplier)]
			entries[n].next = *b - 1
			*b = n + 1
			n++
		}
	}
	m.replace(buckets, entries, false)
	m.count = n
	m.freeList = -1
	m.freeCount = 0
	m.checkInvariants()
}

// replace installs new bucket and entry arrays, releasing the old ones.
func (m *Map[K, V]) replace(buckets []int32, entries []Entry[K, V], forced bool) {
	oldSize := len(m.buckets)
	newSize := len(buckets)
	m.release()
	m.buckets, m.entries = buckets, entries
	m.multiplier = fastModMultiplier(uint32(newSize))
	m.version++

	if debug {
		fmt.Printf("resize: size=%d->%d forced=%t\n", oldSize, newSize, forced)
	}
	m.logger.Debug("chainmap: resize",
		zap.Int("old", oldSize),
		zap.Int("new", newSize),
		zap.Bool("forced", forced),
		zap.Int("len", m.Len()))
	if m.observer != nil {
		m.observer.Resized(oldSize, newSize, forced)
	}
}

func (m *Map[K, V]) checkInvariants() {
	if invariants {
		if len(m.buckets) != len(m.entries) {
			panic(fmt.Sprintf("invariant failed: %d buckets != %d entries\n%s",
				len(m.buckets), len(m.entries), m.debugString()))
		}
		if m.buckets != nil && !isPrime(len(m.buckets)) {
			panic(fmt.Sprintf("invariant failed: table size %d is not prime", len(m.buckets)))
		}
		if int(m.count) > len(m.entries) {
			panic(fmt.Sprintf("invariant failed: count %d exceeds %d entries\n%s",
				m.count, len(m.entries), m.debugString()))
		}

		// Walk the free list.
		var free int32
		for i := m.freeList; i >= 0; i = freeLink(m.entries[i].next) {
			if m.entries[i].live() {
				panic(fmt.Sprintf("invariant failed: free list entry %d is live\n%s", i, m.debugString()))
			}
			if free++; free > m.count {
				panic(fmt.Sprintf("invariant failed: free list cycle\n%s", m.debugString()))
			}
		}
		if free != m.freeCount {
			panic(fmt.Sprintf("invariant failed: found %d free entries, but free count is %d\n%s",
				free, m.freeCount, m.debugString()))
		}

		// For every live entry, verify its hash and that we can find it by
		// key.
		var live int
		for i := range m.entries[:m.count] {
			e := &m.entries[i]
			if !e.live() {
				continue
			}
			live++
			if h := m.hash(&e.key); h != e.hash {
				panic(fmt.Sprintf("invariant failed: entry(%d): %v hash=%016x, stored %016x\n%s",
					i, e.key, h, e.hash, m.debugString()))
			}
			if !m.equalKeys(&e.key, &e.key) {
				// NaN keys can never be found.
				continue
			}
			if m.findEntry(&e.key) != e {
				panic(fmt.Sprintf("invariant failed: entry(%d): %v not found\n%s", i, e.key, m.debugString()))
			}
		}
		if live != m.Len() {
			panic(fmt.Sprintf("invariant failed: found %d live entries, but len is %d\n%s",
				live, m.Len(), m.debugString()))
		}
	}
}

func (m *Map[K, V]) debugString() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "size=%d  count=%d  free=%d  free-list=%d  hash=%s\n",
		len(m.buckets), m.count, m.freeCount, m.freeList, m.kind)
	for i, head := range m.buckets {
		if head != 0 {
			fmt.Fprintf(&buf, "  bucket %4d: head=%d\n", i, head-1)
		}
	}
	for i := range m.entries[:m.count] {
		e := &m.entries[i]
		if e.live() {
			fmt.Fprintf(&buf, "  %4d: %v [hash=%016x next=%d]\n", i, e.key, e.hash, e.next)
		} else {
			fmt.Fprintf(&buf, "  %4d: free [next-free=%d]\n", i, freeLink(e.next))
		}
	}
	return buf.String()
}
