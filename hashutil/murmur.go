// Package hashutil implements the 64-bit hash used to key every record in a
// bundle, plus the small lookup tables built on top of it: a static
// extension table and a runtime name dictionary.
package hashutil

import "encoding/binary"

const (
	murmurMagic uint64 = 0xc6a4a7935bd1e995
	murmurRoll         = 47
)

// Hash64A computes MurmurHash64A (seed 0) over key, matching the reference
// tool's hashing of every bundle record's name and extension.
func Hash64A(key []byte) uint64 {
	return Hash64ASeed(key, 0)
}

// Hash64ASeed computes MurmurHash64A with an explicit seed.
func Hash64ASeed(key []byte, seed uint64) uint64 {
	hash := seed ^ (uint64(len(key)) * murmurMagic)

	for len(key) > 7 {
		k := binary.LittleEndian.Uint64(key[:8])
		key = key[8:]

		k *= murmurMagic
		k ^= k >> murmurRoll
		k *= murmurMagic
		hash ^= k
		hash *= murmurMagic
	}

	if len(key) > 0 {
		var tail [8]byte
		copy(tail[:], key)
		hash ^= binary.LittleEndian.Uint64(tail[:])
		hash *= murmurMagic
	}

	hash ^= hash >> murmurRoll
	hash *= murmurMagic
	hash ^= hash >> murmurRoll
	return hash
}

// ShortHash folds a 64-bit hash down to the 32-bit form used to key
// localized-string lookups: the high 32 bits of the full hash.
func ShortHash(h uint64) uint32 {
	return uint32((h >> 32) & 0xffffffff)
}
