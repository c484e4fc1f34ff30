package bloom

// Retouched is a retouched Bloom filter (Bruck/Gripon/Berrou's scheme): a
// plain bit array that additionally remembers, at construction time, which
// keys set which bits, so a known false positive can be selectively
// "retouched" away by clearing the bit that is least shared with other
// members — trading a small chance of new false negatives for eliminating
// a specific observed false positive. Spec 4.3/9 name "retouched" as one of
// the closed bloom-filter variants; the owners index lives only during
// construction/retouch and is not persisted (Encode emits the same flat
// bit-array-plus-k shape as Plain).
type Retouched struct {
	bits   []byte
	k      uint32
	owners map[uint32]map[uint32]bool // bit offset -> set of hashes depending on it
}

func NewRetouched(keyHashes []uint32, bitsPerKey int) *Retouched {
	if bitsPerKey < 0 {
		bitsPerKey = 0
	}
	k := numHashes(bitsPerKey)
	numBits := uint32(len(keyHashes) * bitsPerKey)
	if numBits < 64 {
		numBits = 64
	}
	numBytes := (numBits + 7) / 8
	numBits = numBytes * 8

	f := &Retouched{bits: make([]byte, numBytes), k: k, owners: map[uint32]map[uint32]bool{}}
	for _, hash := range keyHashes {
		h := hash
		delta := h>>17 | h<<15
		for j := uint32(0); j < k; j++ {
			offset := h % numBits
			f.bits[offset/8] |= 1 << (offset % 8)
			if f.owners[offset] == nil {
				f.owners[offset] = map[uint32]bool{}
			}
			f.owners[offset][hash] = true
			h += delta
		}
	}
	return f
}

func (f *Retouched) numBits() uint32 { return uint32(len(f.bits) * 8) }

func (f *Retouched) offsets(hash uint32) []uint32 {
	n := f.numBits()
	delta := hash>>17 | hash<<15
	out := make([]uint32, f.k)
	for j := uint32(0); j < f.k; j++ {
		out[j] = hash % n
		hash += delta
	}
	return out
}

// Retouch clears the single bit position, among nonMemberHash's k
// positions, that is depended on by the fewest other known member hashes —
// minimising collateral false negatives while guaranteeing
// MayContain(nonMemberHash) becomes false.
func (f *Retouched) Retouch(nonMemberHash uint32) {
	offsets := f.offsets(nonMemberHash)
	bestOffset := offsets[0]
	bestCost := -1
	for _, off := range offsets {
		cost := len(f.owners[off])
		if bestCost == -1 || cost < bestCost {
			bestCost = cost
			bestOffset = off
		}
	}
	f.bits[bestOffset/8] &^= 1 << (bestOffset % 8)
	delete(f.owners, bestOffset)
}

func (f *Retouched) RetouchKey(key []byte) { f.Retouch(Hash(key)) }

func (f *Retouched) MayContain(hash uint32) bool {
	if len(f.bits) == 0 {
		return false
	}
	for _, off := range f.offsets(hash) {
		if f.bits[off/8]&(1<<(off%8)) == 0 {
			return false
		}
	}
	return true
}

func (f *Retouched) MayContainKey(key []byte) bool { return f.MayContain(Hash(key)) }

func (f *Retouched) Encode() []byte {
	out := make([]byte, len(f.bits)+1)
	copy(out, f.bits)
	out[len(f.bits)] = byte(f.k)
	return out
}

func decodeRetouched(data []byte) *Retouched {
	if len(data) < 1 {
		return &Retouched{}
	}
	return &Retouched{bits: data[:len(data)-1], k: uint32(data[len(data)-1]), owners: map[uint32]map[uint32]bool{}}
}
