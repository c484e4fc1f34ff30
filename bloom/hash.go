package bloom

import "math"

// Hash is the Bloom-filter key hash, carried verbatim from the teacher's
// utils/boomFilter.go Hash (a Murmur-style hash tuned for short keys); all
// three filter variants in this package hash through it so they agree on
// bit placement for the same key.
func Hash(key []byte) uint32 {
	const seed = 0xbc9f1d34
	const m = 0xc6a4a793

	hash := uint32(seed) ^ uint32(len(key))*m
	for ; len(key) >= 4; key = key[4:] {
		hash += uint32(key[0]) | uint32(key[1])<<8 | uint32(key[2])<<16 | uint32(key[3])<<24
		hash *= m
		hash ^= hash >> 16
	}
	switch len(key) {
	case 3:
		hash += uint32(key[2]) << 16
		fallthrough
	case 2:
		hash += uint32(key[1]) << 8
		fallthrough
	case 1:
		hash += uint32(key[0])
		hash *= m
		hash ^= hash >> 24
	}
	return hash
}

// BitsPerKey computes the bits-per-key budget for a target false-positive
// probability, carried verbatim from utils/boomFilter.go BitsPerkey.
func BitsPerKey(entries int, falsePositive float64) int {
	if entries == 0 {
		return 0
	}
	size := -1 * float64(entries) * math.Log(falsePositive) / (0.69314718056 * 0.69314718056)
	locs := math.Ceil(size / float64(entries))
	return int(locs)
}

func numHashes(bitsPerKey int) uint32 {
	k := uint32(float64(bitsPerKey) * 0.69)
	if k < 1 {
		k = 1
	}
	if k > 30 {
		k = 30
	}
	return k
}
