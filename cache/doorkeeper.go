package cache

import "math"

const seed = 0xbc9f1d34
const mParam = 0xc6a4a793

// doorkeeper is a reset-able bloom filter gating admission from the
// window-LRU into the segmented LRU: a key must be seen at least twice
// (once to set its bit, once to pass Allow) before TinyLFU will consider
// promoting it, which keeps one-off scans from displacing hot entries.
type doorkeeper struct {
	bitmap []byte
	k      uint8
}

func bitsPerKey(entries int, falsePositive float64) int {
	size := -1 * float64(entries) * math.Log(falsePositive) / math.Pow(0.69314718056, 2)
	return int(math.Ceil(size / float64(entries)))
}

func newDoorkeeper(entries int, falsePositive float64) *doorkeeper {
	bitsperkey := bitsPerKey(entries, falsePositive)
	if bitsperkey < 0 {
		bitsperkey = 0
	}
	k := uint32(float64(bitsperkey) * 0.69)
	if k < 1 {
		k = 1
	}
	if k > 30 {
		k = 30
	}
	size := entries * bitsperkey
	if size < 64 {
		size = 64
	}
	nbytes := (size + 7) / 8
	bitmap := make([]byte, nbytes+1)
	bitmap[nbytes] = uint8(k)
	return &doorkeeper{bitmap: bitmap, k: uint8(k)}
}

func (d *doorkeeper) len() int32 { return int32(len(d.bitmap)) }

func (d *doorkeeper) insert(hash uint32) {
	if d.k > 30 {
		return
	}
	size := uint32(8 * (d.len() - 1))
	delta := hash>>17 | hash<<15
	for j := uint8(0); j < d.k; j++ {
		offset := hash % size
		d.bitmap[offset/8] |= 1 << (offset % 8)
		hash += delta
	}
}

func (d *doorkeeper) mayContain(hash uint32) bool {
	if d.len() < 2 {
		return false
	}
	bits := uint32(8 * (d.len() - 1))
	delta := hash>>17 | hash<<15
	for j := uint8(0); j < d.k; j++ {
		offset := hash % bits
		if d.bitmap[offset/8]&(1<<(offset%8)) == 0 {
			return false
		}
		hash += delta
	}
	return true
}

func (d *doorkeeper) reset() {
	if d == nil {
		return
	}
	for i := range d.bitmap {
		d.bitmap[i] = 0
	}
}

// allow reports whether hash was already recorded, recording it either
// way — the single "have I seen this before" admission gate the cache
// calls on every miss and every A1->A2 promotion attempt.
func (d *doorkeeper) allow(hash uint32) bool {
	if d == nil {
		return true
	}
	already := d.mayContain(hash)
	if !already {
		d.insert(hash)
	}
	return already
}

// keyHash is a small non-cryptographic hash over bytes. Nothing in this
// package calls it: the doorkeeper is fed the low 32 bits of the key's
// xxhash (cache.go).
func keyHash(key []byte) uint32 {
	hash := uint32(seed) ^ uint32(len(key))*mParam
	for ; len(key) >= 4; key = key[4:] {
		hash += uint32(key[0]) | uint32(key[1])<<8 | uint32(key[2])<<16 | uint32(key[3])<<24
		hash *= mParam
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
		hash *= mParam
		hash ^= hash >> 24
	}
	return hash
}
