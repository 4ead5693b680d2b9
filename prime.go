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
	"math"
	"math/bits"
)

const (
	// maxPrimeArrayLength is the largest prime table size. It is the largest
	// prime below math.MaxInt32, which keeps every entry index representable
	// in the int32 chain links.
	maxPrimeArrayLength = 0x7FFFFFC3

	// hashPrime is excluded as a factor of p-1 for table sizes found by the
	// primality search.
	hashPrime = 101
)

// primes is a table of sizes used for the bucket and entry arrays. Each is
// roughly 1.2x the previous which keeps growth close to doubling after
// expandPrime while skipping a primality search for common sizes.
var primes = [...]int{
	3, 7, 11, 17, 23, 29, 37, 47, 59, 71, 89, 107, 131, 163, 197, 239, 293, 353, 431, 521, 631, 761, 919,
	1103, 1327, 1597, 1931, 2333, 2801, 3371, 4049, 4861, 5839, 7013, 8419, 10103, 12143, 14591,
	17519, 21023, 25229, 30293, 36353, 43627, 52361, 62851, 75431, 90523, 108631, 130363, 156437,
	187751, 225307, 270371, 324449, 389357, 467237, 560689, 672827, 807403, 968897, 1162687, 1395263,
	1674319, 2009191, 2411033, 2893249, 3471899, 4166287, 4999559, 5999471, 7199369,
}

// isPrime reports whether n is prime using trial division by odd divisors.
func isPrime(n int) bool {
	if n&1 == 0 {
		return n == 2
	}
	limit := int(math.Sqrt(float64(n)))
	for divisor := 3; divisor <= limit; divisor += 2 {
		if n%divisor == 0 {
			return false
		}
	}
	return n > 1
}

// getPrime returns the smallest table size >= min.
func getPrime(min int) int {
	for _, p := range primes {
		if p >= min {
			return p
		}
	}
	// Outside of the table: search odd numbers, skipping primes p where
	// hashPrime divides p-1.
	for i := min | 1; i < math.MaxInt32; i += 2 {
		if isPrime(i) && (i-1)%hashPrime != 0 {
			return i
		}
	}
	return min
}

// expandPrime returns the table size to grow to from oldSize: the smallest
// prime >= 2*oldSize, capped at maxPrimeArrayLength.
func expandPrime(oldSize int) int {
	newSize := 2 * oldSize
	if newSize > maxPrimeArrayLength && oldSize < maxPrimeArrayLength {
		return maxPrimeArrayLength
	}
	return getPrime(newSize)
}

// fastModMultiplier returns the multiplier used by fastMod for divisor.
func fastModMultiplier(divisor uint32) uint64 {
	return math.MaxUint64/uint64(divisor) + 1
}

// fastMod computes value % divisor without a division using Lemire's
// method (https://arxiv.org/abs/1902.01961). multiplier must be
// fastModMultiplier(divisor). The result is exact for all 32-bit values
// and divisors.
func fastMod(value, divisor uint32, multiplier uint64) uint32 {
	lowbits := multiplier * uint64(value)
	hi, _ := bits.Mul64(lowbits, uint64(divisor))
	return uint32(hi)
}

// reduce maps a wide hash to a bucket index. The upper half is folded into
// the lower half so that every hash bit participates in the bucket choice.
func reduce(h uint64, size uint32, multiplier uint64) uint32 {
	return fastMod(uint32(h^(h>>32)), size, multiplier)
}
