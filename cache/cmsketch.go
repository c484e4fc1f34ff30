package cache

import (
	"math/rand"
	"time"
)

// cmDepth is the number of independent hashed rows kept per counter,
// redundancy that keeps a single hash collision from corrupting an
// estimate.
const cmDepth = 4

// cmRow is one row of 4-bit saturating counters, two counters packed per
// byte.
type cmRow []byte

// cmSketch is a Count-Min Sketch used as TinyLFU's frequency estimator:
// an approximate, bounded-memory admission-count table for every key ever
// seen, not just the ones currently cached.
type cmSketch struct {
	rows [cmDepth]cmRow
	seed [cmDepth]uint64
	mask uint64
}

func newCmRow(numCounters int64) cmRow {
	return cmRow(make([]byte, numCounters/2))
}

func (r cmRow) incrRow(n uint64) {
	byteIndex := n / 2
	bitIndex := (n & 1) * 4
	count := (r[byteIndex] >> bitIndex) & 0x0f
	if count < 15 {
		r[byteIndex] += 1 << bitIndex
	}
}

func (r cmRow) getRow(n uint64) uint8 {
	byteIndex := n / 2
	bitIndex := (n & 1) * 4
	return (r[byteIndex] >> bitIndex) & 0x0f
}

// reset halves every counter, TinyLFU's periodic freshness mechanism so
// old hot keys eventually lose their advantage over new ones.
func (r cmRow) reset() {
	for i := range r {
		r[i] = r[i] >> 1 & 0x77
	}
}

func (r cmRow) clear() {
	for i := range r {
		r[i] = 0
	}
}

func next2Power(x uint64) uint64 {
	x--
	x |= x >> 1
	x |= x >> 2
	x |= x >> 4
	x |= x >> 8
	x |= x >> 16
	x |= x >> 32
	x++
	return x
}

func newCmSketch(numCounters int64) *cmSketch {
	if numCounters <= 0 {
		panic("cache: cmSketch requires a positive counter count")
	}
	numCounters = int64(next2Power(uint64(numCounters)))
	cs := &cmSketch{mask: uint64(numCounters) - 1}
	source := rand.New(rand.NewSource(time.Now().UnixNano()))
	for i := 0; i < cmDepth; i++ {
		cs.rows[i] = newCmRow(numCounters)
		cs.seed[i] = source.Uint64()
	}
	return cs
}

func (cs *cmSketch) Increment(hash uint64) {
	for i := range cs.rows {
		cs.rows[i].incrRow((hash ^ cs.seed[i]) & cs.mask)
	}
}

func (cs *cmSketch) GetEstimate(hash uint64) uint64 {
	min := uint8(255)
	for i := range cs.rows {
		val := cs.rows[i].getRow((hash ^ cs.seed[i]) & cs.mask)
		if val < min {
			min = val
		}
	}
	return uint64(min)
}

func (cs *cmSketch) Reset() {
	for _, r := range cs.rows {
		r.reset()
	}
}

func (cs *cmSketch) Clear() {
	for _, r := range cs.rows {
		r.clear()
	}
}
