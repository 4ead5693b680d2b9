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

	"github.com/juju/errors"
)

var (
	// ErrDuplicateKey is returned by Map.Insert when the key is already
	// present.
	ErrDuplicateKey = errors.New("chainmap: an entry with the same key already exists")
	// ErrKeyNotFound is returned by Map.Get when the key is not present.
	ErrKeyNotFound = errors.New("chainmap: key not found")
	// ErrConcurrentMutation is the panic value (wrapped) raised when a chain
	// walk visits more entries than the map holds. It indicates the map was
	// mutated concurrently, which is not supported.
	ErrConcurrentMutation = errors.New("chainmap: concurrent operations are not supported")
	// ErrCapacityOverflow is returned when a requested capacity exceeds the
	// largest supported table size.
	ErrCapacityOverflow = errors.New("chainmap: capacity overflow")
	// ErrInvalidCapacity is returned when a requested capacity is negative
	// or smaller than the number of entries in the map.
	ErrInvalidCapacity = errors.New("chainmap: invalid capacity")
	// ErrIteratorInvalidated is reported by an Iterator (and raised as a
	// panic by All, Keys and Values) when the map was structurally modified
	// after the iteration began.
	ErrIteratorInvalidated = errors.New("chainmap: map was modified; iteration may not continue")
)

// KeyError is an error associated with a specific key. It matches its
// underlying sentinel (ErrDuplicateKey or ErrKeyNotFound) with errors.Is.
type KeyError[K any] struct {
	Key K
	Err error
}

func (e *KeyError[K]) Error() string {
	return fmt.Sprintf("%s: %v", e.Err.Error(), e.Key)
}

func (e *KeyError[K]) Unwrap() error {
	return e.Err
}

// CapacityError reports a rejected capacity request.
type CapacityError struct {
	Requested int
	Err       error
}

func (e *CapacityError) Error() string {
	return fmt.Sprintf("%s: %d", e.Err.Error(), e.Requested)
}

func (e *CapacityError) Unwrap() error {
	return e.Err
}

// mutationError is the panic value used for ErrConcurrentMutation. It
// records the operation which detected the corruption.
type mutationError struct {
	op   string
	hops int
}

func (e *mutationError) Error() string {
	return fmt.Sprintf("%s (%s: chain walk exceeded %d hops)", ErrConcurrentMutation.Error(), e.op, e.hops)
}

func (e *mutationError) Unwrap() error {
	return ErrConcurrentMutation
}
