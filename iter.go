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

import "iter"

// cursor scans the entry array of a map for live entries. It does not
// snapshot the map: it captures the map's version and refuses to advance
// once the map has been structurally modified.
type cursor[K comparable, V any] struct {
	m       *Map[K, V]
	version uint64
	index   uint32
}

func (c *cursor[K, V]) next() (*Entry[K, V], error) {
	if c.version != c.m.version {
		return nil, ErrIteratorInvalidated
	}
	// Use unsigned comparison so that the parked index (count+1) stays out
	// of range.
	count := uint32(c.m.count)
	for c.index < count {
		e := &c.m.entries[c.index]
		c.index++
		if e.live() {
			return e, nil
		}
	}
	c.index = count + 1
	return nil, nil
}

// Iterator is a cursor over the entries of a Map in an unspecified order:
//
//	it := m.Iter()
//	for it.Next() {
//	  fmt.Println(it.Key(), it.Value())
//	}
//	if err := it.Err(); err != nil {
//	  ...
//	}
//
// Inserting a new key, removing a key, clearing or resizing the map after
// the Iterator is created invalidates it: the next call to Next returns
// false and Err returns ErrIteratorInvalidated. Overwriting the value of an
// existing key does not invalidate it.
type Iterator[K comparable, V any] struct {
	c     cursor[K, V]
	key   K
	value V
	err   error
}

// Iter returns an Iterator positioned before the first entry of the map.
func (m *Map[K, V]) Iter() *Iterator[K, V] {
	return &Iterator[K, V]{c: cursor[K, V]{m: m, version: m.version}}
}

// Next advances the iterator, returning false when there are no more
// entries or the iterator was invalidated. Once Next has returned false it
// continues to do so.
func (it *Iterator[K, V]) Next() bool {
	if it.err != nil {
		return false
	}
	e, err := it.c.next()
	if e == nil {
		var k K
		var v V
		it.key, it.value, it.err = k, v, err
		return false
	}
	it.key, it.value = e.key, e.value
	return true
}

// Key returns the key of the current entry.
func (it *Iterator[K, V]) Key() K {
	return it.key
}

// Value returns the value of the current entry as of the last call to Next.
func (it *Iterator[K, V]) Value() V {
	return it.value
}

// Err returns ErrIteratorInvalidated if iteration stopped because the map
// was modified, and nil otherwise.
func (it *Iterator[K, V]) Err() error {
	return it.err
}

// All returns an iterator over the keys and values in the map. Structural
// modification of the map during iteration causes a panic with
// ErrIteratorInvalidated at the next step; overwriting existing values is
// permitted.
func (m *Map[K, V]) All() iter.Seq2[K, V] {
	return func(yield func(K, V) bool) {
		c := cursor[K, V]{m: m, version: m.version}
		for {
			e, err := c.next()
			if err != nil {
				panic(err)
			}
			if e == nil || !yield(e.key, e.value) {
				return
			}
		}
	}
}

// Keys returns an iterator over the keys in the map with the same
// invalidation rules as All.
func (m *Map[K, V]) Keys() iter.Seq[K] {
	return func(yield func(K) bool) {
		c := cursor[K, V]{m: m, version: m.version}
		for {
			e, err := c.next()
			if err != nil {
				panic(err)
			}
			if e == nil || !yield(e.key) {
				return
			}
		}
	}
}

// Values returns an iterator over the values in the map with the same
// invalidation rules as All.
func (m *Map[K, V]) Values() iter.Seq[V] {
	return func(yield func(V) bool) {
		c := cursor[K, V]{m: m, version: m.version}
		for {
			e, err := c.next()
			if err != nil {
				panic(err)
			}
			if e == nil || !yield(e.value) {
				return
			}
		}
	}
}
