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

// Package hashers provides chainmap.Hasher implementations for string keys
// backed by well-known 64-bit hash functions. The seeded hashers implement
// chainmap.Randomizer, so the collision defense reseeds them rather than
// replacing them.
//
//	m := chainmap.New[string, int](0,
//	  chainmap.WithHasher[string, int](hashers.XXH3[string]{}))
package hashers

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"io"
	randv2 "math/rand/v2"
	"strings"

	"github.com/cockroachdb/chainmap"
	"github.com/dgryski/go-farm"
	"github.com/twmb/murmur3"
	"github.com/zeebo/xxh3"
	"golang.org/x/crypto/blake2b"
)

// XXH3 hashes keys with XXH3-64.
type XXH3[K ~string] struct {
	Seed uint64
}

func (XXH3[K]) Equal(a, b K) bool { return a == b }

func (h XXH3[K]) Hash64(key K) uint64 {
	if h.Seed == 0 {
		return xxh3.HashString(string(key))
	}
	return xxh3.HashStringSeed(string(key), h.Seed)
}

// Randomized returns an XXH3 hasher with a random seed.
func (XXH3[K]) Randomized() chainmap.Hasher[K] {
	return XXH3[K]{Seed: randv2.Uint64() | 1}
}

// Farm hashes keys with FarmHash Hash64.
type Farm[K ~string] struct {
	Seed uint64
}

func (Farm[K]) Equal(a, b K) bool { return a == b }

func (h Farm[K]) Hash64(key K) uint64 {
	if h.Seed == 0 {
		return farm.Hash64([]byte(key))
	}
	return farm.Hash64WithSeed([]byte(key), h.Seed)
}

// Randomized returns a Farm hasher with a random seed.
func (Farm[K]) Randomized() chainmap.Hasher[K] {
	return Farm[K]{Seed: randv2.Uint64() | 1}
}

// Murmur3 hashes keys with the low 64 bits of MurmurHash3 x64-128.
type Murmur3[K ~string] struct {
	Seed uint64
}

func (Murmur3[K]) Equal(a, b K) bool { return a == b }

func (h Murmur3[K]) Hash64(key K) uint64 {
	return murmur3.SeedSum64(h.Seed, []byte(key))
}

// Randomized returns a Murmur3 hasher with a random seed.
func (Murmur3[K]) Randomized() chainmap.Hasher[K] {
	return Murmur3[K]{Seed: randv2.Uint64() | 1}
}

// keyedSize is the digest size, in bytes, requested from BLAKE2b.
const keyedSize = 8

// Keyed hashes keys with BLAKE2b keyed by a secret. It is much slower than
// the other hashers but its output cannot be predicted without the key,
// which makes it suitable for attacker-controlled keys.
type Keyed[K ~string] struct {
	key []byte
}

// NewKeyed returns a Keyed hasher using key, which must be at most 64
// bytes. A nil key is replaced by 32 random bytes.
func NewKeyed[K ~string](key []byte) (Keyed[K], error) {
	if key == nil {
		key = make([]byte, 32)
		if _, err := io.ReadFull(rand.Reader, key); err != nil {
			return Keyed[K]{}, err
		}
	}
	if len(key) > blake2b.Size {
		return Keyed[K]{}, fmt.Errorf("hashers: BLAKE2b key must be at most %d bytes, got %d", blake2b.Size, len(key))
	}
	if _, err := blake2b.New(keyedSize, key); err != nil {
		return Keyed[K]{}, err
	}
	return Keyed[K]{key: append([]byte(nil), key...)}, nil
}

func (Keyed[K]) Equal(a, b K) bool { return a == b }

func (h Keyed[K]) Hash64(key K) uint64 {
	d, err := blake2b.New(keyedSize, h.key)
	if err != nil {
		// The key was validated by NewKeyed.
		panic(err)
	}
	_, _ = io.WriteString(d, string(key))
	var sum [keyedSize]byte
	return binary.LittleEndian.Uint64(d.Sum(sum[:0]))
}

// FoldCase compares keys case-insensitively using Unicode simple case
// folding (strings.EqualFold) and hashes a case-folded form with XXH3.
type FoldCase[K ~string] struct {
	Seed uint64
}

func (FoldCase[K]) Equal(a, b K) bool { return strings.EqualFold(string(a), string(b)) }

func (h FoldCase[K]) Hash64(key K) uint64 {
	return xxh3.HashStringSeed(fold(string(key)), h.Seed)
}

// Randomized returns a FoldCase hasher with a random seed. Unlike the
// intrinsic hash, it preserves case-insensitive equality.
func (FoldCase[K]) Randomized() chainmap.Hasher[K] {
	return FoldCase[K]{Seed: randv2.Uint64() | 1}
}

// fold maps every member of a simple case folding orbit to one
// representative.
func fold(s string) string {
	return strings.ToLower(strings.ToUpper(s))
}
