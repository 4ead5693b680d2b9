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
	"fmt"
	"math"
	"math/rand"
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

// randElement returns an element of the map. The elements are not selected
// uniformly: the scan starts at a random entry index.
func (m *Map[K, V]) randElement() (key K, value V, ok bool) {
	if m.Len() == 0 {
		return key, value, false
	}
	start := rand.Intn(int(m.count))
	for j := 0; j < int(m.count); j++ {
		e := &m.entries[(start+j)%int(m.count)]
		if e.live() {
			return e.key, e.value, true
		}
	}
	panic("not reached")
}

// chainLength returns the length of the longest chain.
func (m *Map[K, V]) chainLength() int {
	var longest int
	for _, head := range m.buckets {
		n := 0
		for i := head - 1; i >= 0; i = m.entries[i].next {
			n++
		}
		longest = max(longest, n)
	}
	return longest
}

// constHasher hashes every key to the same value.
type constHasher[K comparable] struct {
	h uint64
}

func (constHasher[K]) Equal(a, b K) bool  { return a == b }
func (c constHasher[K]) Hash64(K) uint64 { return c.h }

// recoverError runs f and returns the error it panicked with, if any.
func recoverError(f func()) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err, _ = r.(error)
		}
	}()
	f()
	return nil
}

// countingObserver counts Observer callbacks.
type countingObserver struct {
	resizes  int
	forced   int
	defenses int
	sizes    []int
}

func (o *countingObserver) Resized(oldSize, newSize int, forced bool) {
	o.resizes++
	if forced {
		o.forced++
	}
	o.sizes = append(o.sizes, newSize)
}

func (o *countingObserver) CollisionDefense(hops int, mode DefenseMode) {
	o.defenses++
}

func TestFreeLink(t *testing.T) {
	// The empty free list (-1) encodes as -2, below every chain link.
	require.EqualValues(t, -2, freeLink(-1))
	for _, i := range []int32{-1, 0, 1, 7, math.MaxInt32 + startOfFreeList} {
		enc := freeLink(i)
		require.Less(t, enc, int32(-1))
		require.Equal(t, i, freeLink(enc))
	}
}

func TestInitialCapacity(t *testing.T) {
	testCases := []struct {
		initialCapacity  int
		expectedCapacity int
	}{
		{0, 0},
		{1, 3},
		{3, 3},
		{4, 7},
		{100, 107},
		{1000, 1103},
		{2000, 2333},
	}
	for _, c := range testCases {
		t.Run("", func(t *testing.T) {
			m := New[int, int](c.initialCapacity)
			require.EqualValues(t, c.expectedCapacity, m.Capacity())
			require.EqualValues(t, c.expectedCapacity, len(m.buckets))
			require.EqualValues(t, 0, m.Len())
		})
	}

	require.Panics(t, func() { New[int, int](-1) })
}

func TestZeroValue(t *testing.T) {
	var m Map[string, int]
	require.EqualValues(t, 0, m.Len())
	require.True(t, m.IsEmpty())
	require.False(t, m.ContainsKey("a"))
	require.False(t, m.Remove("a"))
	_, err := m.Get("a")
	require.ErrorIs(t, err, ErrKeyNotFound)
	require.Nil(t, m.buckets)

	m.Set("a", 1)
	v, err := m.Get("a")
	require.NoError(t, err)
	require.EqualValues(t, 1, v)
	require.EqualValues(t, 3, m.Capacity())
	require.Equal(t, hashString, m.kind)
}

func TestBasic(t *testing.T) {
	test := func(t *testing.T, m *Map[int, int]) {
		const count = 100

		e := make(map[int]int)
		require.EqualValues(t, 0, m.Len())

		// Non-existent.
		for i := 0; i < count; i++ {
			_, ok := m.TryGet(i)
			require.False(t, ok)
			_, err := m.Get(i)
			require.ErrorIs(t, err, ErrKeyNotFound)
		}

		// Insert.
		for i := 0; i < count; i++ {
			require.NoError(t, m.Insert(i, i+count))
			e[i] = i + count
			v, ok := m.TryGet(i)
			require.True(t, ok)
			require.EqualValues(t, i+count, v)
			require.EqualValues(t, i+1, m.Len())
			require.Equal(t, e, m.toBuiltinMap())
		}

		// Duplicate inserts fail and leave the value alone.
		for i := 0; i < count; i++ {
			err := m.Insert(i, -1)
			require.ErrorIs(t, err, ErrDuplicateKey)
			var kerr *KeyError[int]
			require.ErrorAs(t, err, &kerr)
			require.Equal(t, i, kerr.Key)
			require.False(t, m.TryInsert(i, -1))
			v, err := m.Get(i)
			require.NoError(t, err)
			require.EqualValues(t, i+count, v)
		}

		// Update.
		for i := 0; i < count; i++ {
			m.Set(i, i+2*count)
			e[i] = i + 2*count
			v, err := m.Get(i)
			require.NoError(t, err)
			require.EqualValues(t, i+2*count, v)
			require.EqualValues(t, count, m.Len())
			require.Equal(t, e, m.toBuiltinMap())
		}

		// Delete.
		for i := 0; i < count; i++ {
			v, ok := m.RemoveTake(i)
			require.True(t, ok)
			require.EqualValues(t, i+2*count, v)
			delete(e, i)
			require.EqualValues(t, count-i-1, m.Len())
			require.False(t, m.ContainsKey(i))
			require.False(t, m.Remove(i))
			require.Equal(t, e, m.toBuiltinMap())
		}
		require.True(t, m.IsEmpty())
	}

	t.Run("normal", func(t *testing.T) {
		test(t, New[int, int](0))
	})

	t.Run("degenerate", func(t *testing.T) {
		testDegenerate := func(t *testing.T, h uint64) {
			m := New[int, int](0, WithHasher[int, int](constHasher[int]{h}))
			test(t, m)
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

func TestScenario(t *testing.T) {
	m := New[string, int](0)
	require.NoError(t, m.Insert("a", 1))
	require.NoError(t, m.Insert("b", 2))
	require.NoError(t, m.Insert("c", 3))

	v, err := m.Get("b")
	require.NoError(t, err)
	require.EqualValues(t, 2, v)

	capacity := m.Capacity()
	require.True(t, m.Remove("a"))
	_, err = m.Get("a")
	require.ErrorIs(t, err, ErrKeyNotFound)

	// "d" reuses the entry freed by "a".
	require.NoError(t, m.Insert("d", 4))
	require.Equal(t, capacity, m.Capacity())
	require.Equal(t, "d", m.entries[0].key)
	require.EqualValues(t, 0, m.freeCount)
	require.EqualValues(t, 3, m.count)
	require.Equal(t, map[string]int{"b": 2, "c": 3, "d": 4}, m.toBuiltinMap())
}

func TestFreeListReuse(t *testing.T) {
	const n = 500
	m := New[int, string](0)
	for i := 0; i < n; i++ {
		m.Set(i, strconv.Itoa(i))
	}
	capacity := m.Capacity()
	for i := 0; i < n; i++ {
		require.True(t, m.Remove(i))
	}
	require.EqualValues(t, n, m.freeCount)

	for i := n; i < 2*n; i++ {
		m.Set(i, strconv.Itoa(i))
	}
	require.Equal(t, capacity, m.Capacity())
	require.EqualValues(t, n, m.Len())
	require.EqualValues(t, 0, m.freeCount)

	// Removed entries do not retain their keys or values.
	m.Remove(n)
	for i := range m.entries[:m.count] {
		if e := &m.entries[i]; !e.live() {
			require.Equal(t, "", e.value)
		}
	}
}

func TestEnsureCapacity(t *testing.T) {
	o := &countingObserver{}
	m := New[int, int](0, WithObserver[int, int](o))

	capacity, err := m.EnsureCapacity(1000)
	require.NoError(t, err)
	require.EqualValues(t, 1103, capacity)
	require.EqualValues(t, 1, o.resizes)

	for i := 0; i < 1000; i++ {
		m.Set(i, i)
	}
	require.EqualValues(t, 1, o.resizes)
	require.EqualValues(t, capacity, m.Capacity())

	// Smaller requests are a no-op.
	capacity, err = m.EnsureCapacity(10)
	require.NoError(t, err)
	require.EqualValues(t, 1103, capacity)
	require.EqualValues(t, 1, o.resizes)

	_, err = m.EnsureCapacity(-1)
	require.ErrorIs(t, err, ErrInvalidCapacity)
	_, err = m.EnsureCapacity(maxPrimeArrayLength + 1)
	require.ErrorIs(t, err, ErrCapacityOverflow)
	var cerr *CapacityError
	require.ErrorAs(t, err, &cerr)
	require.Equal(t, maxPrimeArrayLength+1, cerr.Requested)
}

func TestTrimExcess(t *testing.T) {
	m := New[int, int](0)
	for i := 0; i < 1000; i++ {
		m.Set(i, i)
	}
	for i := 0; i < 1000; i += 2 {
		m.Remove(i)
	}
	e := m.toBuiltinMap()
	require.EqualValues(t, 500, len(e))

	require.ErrorIs(t, m.TrimExcessTo(499), ErrInvalidCapacity)
	require.ErrorIs(t, m.TrimExcessTo(maxPrimeArrayLength+1), ErrCapacityOverflow)

	m.TrimExcess()
	require.EqualValues(t, getPrime(500), m.Capacity())
	require.EqualValues(t, 500, m.count)
	require.EqualValues(t, 0, m.freeCount)
	require.EqualValues(t, -1, m.freeList)
	require.Equal(t, e, m.toBuiltinMap())
	for k, v := range e {
		got, err := m.Get(k)
		require.NoError(t, err)
		require.Equal(t, v, got)
	}

	// Growing is not trimming.
	capacity := m.Capacity()
	require.NoError(t, m.TrimExcessTo(5000))
	require.Equal(t, capacity, m.Capacity())

	// The map still works after trimming.
	for i := 0; i < 1000; i += 2 {
		require.NoError(t, m.Insert(i, i))
	}
	require.EqualValues(t, 1000, m.Len())

	// Trimming an unallocated map does nothing.
	var z Map[int, int]
	z.TrimExcess()
	require.Nil(t, z.buckets)
}

func TestResizeTransparency(t *testing.T) {
	m := New[string, int](0)
	e := make(map[string]int)
	for i := 0; i < 300; i++ {
		k := strconv.Itoa(i)
		m.Set(k, i)
		e[k] = i
	}
	for i := 0; i < 300; i += 3 {
		k := strconv.Itoa(i)
		m.Remove(k)
		delete(e, k)
	}

	check := func() {
		require.Equal(t, e, m.toBuiltinMap())
		for i := 0; i < 300; i++ {
			k := strconv.Itoa(i)
			_, ok := e[k]
			require.Equal(t, ok, m.ContainsKey(k))
		}
	}

	_, err := m.EnsureCapacity(5000)
	require.NoError(t, err)
	check()
	m.resize(m.Capacity(), true)
	check()
	m.TrimExcess()
	check()
}

func TestRandom(t *testing.T) {
	test := func(t *testing.T, m *Map[int, int]) {
		e := make(map[int]int)
		for i := 0; i < 10000; i++ {
			switch r := rand.Float64(); {
			case r < 0.5: // 50% inserts
				k, v := rand.Int(), rand.Int()
				m.Set(k, v)
				e[k] = v
			case r < 0.65: // 15% updates
				if k, _, ok := m.randElement(); !ok {
					require.EqualValues(t, 0, m.Len(), e)
				} else {
					v := rand.Int()
					m.Set(k, v)
					e[k] = v
				}
			case r < 0.80: // 15% deletes
				if k, _, ok := m.randElement(); !ok {
					require.EqualValues(t, 0, m.Len(), e)
				} else {
					require.True(t, m.Remove(k))
					delete(e, k)
				}
			case r < 0.95: // 15% lookups
				if k, v, ok := m.randElement(); !ok {
					require.EqualValues(t, 0, m.Len(), e)
				} else {
					require.EqualValues(t, e[k], v)
					got, err := m.Get(k)
					require.NoError(t, err)
					require.EqualValues(t, e[k], got)
				}
			default: // 5% rehash and iterate
				if m.Capacity() > 0 {
					m.resize(m.Capacity(), true)
				}
				require.Equal(t, e, m.toBuiltinMap())
			}
			require.EqualValues(t, len(e), m.Len())
		}
	}

	t.Run("normal", func(t *testing.T) {
		test(t, New[int, int](0))
	})

	t.Run("degenerate", func(t *testing.T) {
		for _, v := range []uint64{0, ^uint64(0)} {
			t.Run(fmt.Sprintf("%016x", v), func(t *testing.T) {
				test(t, New[int, int](0, WithHasher[int, int](constHasher[int]{v})))
			})
		}
	})
}

func TestClear(t *testing.T) {
	for _, count := range []int{0, 1, 1000} {
		t.Run("", func(t *testing.T) {
			m := New[int, int](0)
			for i := 0; i < count; i++ {
				m.Set(i, i)
			}

			capacity := m.Capacity()
			m.Clear()
			require.EqualValues(t, 0, m.Len())
			require.EqualValues(t, capacity, m.Capacity())
			require.EqualValues(t, -1, m.freeList)

			for range m.All() {
				require.Fail(t, "should not iterate")
			}

			// The retained capacity is reused.
			for i := 0; i < count; i++ {
				m.Set(i, i)
			}
			require.EqualValues(t, capacity, m.Capacity())
			require.EqualValues(t, count, m.Len())
		})
	}
}

func TestGetOrAddAndPtr(t *testing.T) {
	m := New[string, int](0)
	v, loaded := m.GetOrAdd("a", 1)
	require.False(t, loaded)
	require.EqualValues(t, 1, v)
	v, loaded = m.GetOrAdd("a", 2)
	require.True(t, loaded)
	require.EqualValues(t, 1, v)

	p := m.Ptr("a")
	require.NotNil(t, p)
	*p = 10
	v, err := m.Get("a")
	require.NoError(t, err)
	require.EqualValues(t, 10, v)
	require.Nil(t, m.Ptr("b"))

	require.True(t, m.ContainsValue(10, func(a, b int) bool { return a == b }))
	require.False(t, m.ContainsValue(1, func(a, b int) bool { return a == b }))
}

func TestCloneAndFromMap(t *testing.T) {
	src := map[string]int{"x": 1, "y": 2, "z": 3}
	m := FromMap(src)
	require.Equal(t, src, m.toBuiltinMap())

	c := m.Clone()
	require.Equal(t, src, c.toBuiltinMap())
	c.Set("w", 4)
	c.Remove("x")
	require.Equal(t, src, m.toBuiltinMap())
	require.Equal(t, map[string]int{"y": 2, "z": 3, "w": 4}, c.toBuiltinMap())

	var z Map[int, int]
	require.EqualValues(t, 0, z.Clone().Len())
}

func TestConcurrentMutationDetected(t *testing.T) {
	m := New[int, int](0, WithHasher[int, int](constHasher[int]{7}))
	m.Set(1, 1)
	m.Set(2, 2)
	// Corrupt the chain 1 -> 0 into a cycle.
	m.entries[0].next = 1

	err := recoverError(func() { m.ContainsKey(3) })
	require.ErrorIs(t, err, ErrConcurrentMutation)
	err = recoverError(func() { m.Set(3, 3) })
	require.ErrorIs(t, err, ErrConcurrentMutation)
	err = recoverError(func() { m.Remove(3) })
	require.ErrorIs(t, err, ErrConcurrentMutation)
}

func TestFloatKeys(t *testing.T) {
	m := New[float64, string](0)
	m.Set(0, "zero")
	v, err := m.Get(math.Copysign(0, -1))
	require.NoError(t, err)
	require.Equal(t, "zero", v)

	// NaN never equals itself, so NaN keys are never found.
	m.Set(math.NaN(), "nan")
	m.Set(math.NaN(), "nan")
	require.EqualValues(t, 3, m.Len())
	require.False(t, m.ContainsKey(math.NaN()))
}

type countingAllocator[K comparable, V any] struct {
	alloc int
	free  int
}

func (a *countingAllocator[K, V]) AllocEntries(n int) []Entry[K, V] {
	a.alloc++
	return make([]Entry[K, V], n)
}

func (a *countingAllocator[K, V]) AllocBuckets(n int) []int32 {
	return make([]int32, n)
}

func (a *countingAllocator[K, V]) FreeEntries(_ []Entry[K, V]) {
	a.free++
}

func (a *countingAllocator[K, V]) FreeBuckets(_ []int32) {
}

func TestAllocator(t *testing.T) {
	a := &countingAllocator[int, int]{}
	m := New[int, int](0, WithAllocator[int, int](a))

	for i := 0; i < 100; i++ {
		m.Set(i, i)
	}

	// 3 -> 7 -> 17 -> 37 -> 89 -> 197
	const expected = 6
	require.EqualValues(t, expected, a.alloc)
	require.EqualValues(t, expected-1, a.free)
	require.EqualValues(t, 197, m.Capacity())

	m.Close()
	require.EqualValues(t, expected, a.free)
	m.Close()
	require.EqualValues(t, expected, a.free)
}

func TestInsertCapacityOverflow(t *testing.T) {
	defer func(n int) { maxTableSize = n }(maxTableSize)
	maxTableSize = 7

	m := New[int, int](0)
	for i := 0; i < 7; i++ {
		require.NoError(t, m.Insert(i, i))
	}
	require.EqualValues(t, 7, m.Capacity())

	it := m.Iter()
	err := m.Insert(7, 7)
	require.ErrorIs(t, err, ErrCapacityOverflow)
	var cerr *CapacityError
	require.ErrorAs(t, err, &cerr)
	require.EqualValues(t, 8, cerr.Requested)
	require.False(t, m.TryInsert(7, 7))
	require.False(t, m.ContainsKey(7))
	require.EqualValues(t, 7, m.Len())

	// A full table does not invalidate iterators.
	n := 0
	for it.Next() {
		n++
	}
	require.NoError(t, it.Err())
	require.EqualValues(t, 7, n)

	// Existing keys are still found and updated.
	require.ErrorIs(t, m.Insert(3, 0), ErrDuplicateKey)
	m.Set(3, 30)
	v, loaded := m.GetOrAdd(3, 0)
	require.True(t, loaded)
	require.EqualValues(t, 30, v)

	// Only the operations without an error return panic.
	require.ErrorIs(t, recoverError(func() { m.Set(7, 7) }), ErrCapacityOverflow)
	require.ErrorIs(t, recoverError(func() { m.GetOrAdd(7, 7) }), ErrCapacityOverflow)

	// A free entry makes room again.
	require.True(t, m.Remove(0))
	require.NoError(t, m.Insert(7, 7))
	require.EqualValues(t, 7, m.Capacity())
}

func TestNilLogger(t *testing.T) {
	m := New[string, int](0,
		WithLogger[string, int](nil),
		WithHasher[string, int](constHasher[string]{}))
	require.NotNil(t, m.logger)
	// Grow and trip the collision defense, both of which log.
	for i := 0; i < 200; i++ {
		m.Set(strconv.Itoa(i), i)
	}
	require.EqualValues(t, 200, m.Len())
	require.Equal(t, hashIntrinsic, m.kind)
}

// sizeObserver tracks the number of buckets held by the maps it observes.
type sizeObserver struct {
	buckets int
}

func (o *sizeObserver) Resized(oldSize, newSize int, forced bool) {
	o.buckets += newSize - oldSize
}

func (o *sizeObserver) CollisionDefense(int, DefenseMode) {}

func TestObserverBucketAccounting(t *testing.T) {
	t.Run("clone", func(t *testing.T) {
		o := &sizeObserver{}
		m := New[int, int](100, WithObserver[int, int](o))
		require.EqualValues(t, 107, o.buckets)

		c := m.Clone()
		require.EqualValues(t, 214, o.buckets)
		c.Close()
		require.EqualValues(t, 107, o.buckets)
		m.Close()
		require.EqualValues(t, 0, o.buckets)

		// Cloning an unallocated map reports nothing.
		var z Map[int, int]
		z.Init(0, WithObserver[int, int](o))
		z.Clone().Close()
		require.EqualValues(t, 0, o.buckets)
	})

	t.Run("init", func(t *testing.T) {
		o := &sizeObserver{}
		var m Map[int, int]
		m.Init(100, WithObserver[int, int](o))
		require.EqualValues(t, 107, o.buckets)
		m.Init(100, WithObserver[int, int](o))
		require.EqualValues(t, 107, o.buckets)
		m.Init(0, WithObserver[int, int](o))
		require.EqualValues(t, 0, o.buckets)
		m.Set(1, 1)
		require.EqualValues(t, 3, o.buckets)
		m.Close()
		require.EqualValues(t, 0, o.buckets)
	})
}
