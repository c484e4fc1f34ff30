package bloom

// Counting is a counting Bloom filter: each bit position is a saturating
// byte counter instead of a single bit, which lets it support Remove as
// well as Add — needed where the store wants to keep a filter's contract
// even as compaction drops versions. Spec 4.3/9 names "counting" as one of
// the three closed bloom-filter variants without specifying an encoding;
// this generalises Plain's single-bit-per-slot layout to a byte-per-slot
// counter array rather than inventing a packed-nibble format, trading
// space for a simpler, obviously-correct Remove.
type Counting struct {
	counters []byte
	k        uint32
}

func NewCounting(bitsPerKey, expectedEntries int) *Counting {
	k := numHashes(bitsPerKey)
	numSlots := expectedEntries * bitsPerKey
	if numSlots < 64 {
		numSlots = 64
	}
	return &Counting{counters: make([]byte, numSlots), k: k}
}

func (f *Counting) slots(hash uint32) []uint32 {
	n := uint32(len(f.counters))
	delta := hash>>17 | hash<<15
	out := make([]uint32, f.k)
	for j := uint32(0); j < f.k; j++ {
		out[j] = hash % n
		hash += delta
	}
	return out
}

func (f *Counting) Add(key []byte) {
	for _, slot := range f.slots(Hash(key)) {
		if f.counters[slot] < 255 {
			f.counters[slot]++
		}
	}
}

func (f *Counting) Remove(key []byte) {
	for _, slot := range f.slots(Hash(key)) {
		if f.counters[slot] > 0 {
			f.counters[slot]--
		}
	}
}

func (f *Counting) MayContain(hash uint32) bool {
	if len(f.counters) == 0 {
		return false
	}
	for _, slot := range f.slots(hash) {
		if f.counters[slot] == 0 {
			return false
		}
	}
	return true
}

func (f *Counting) MayContainKey(key []byte) bool { return f.MayContain(Hash(key)) }

func (f *Counting) Encode() []byte {
	out := make([]byte, len(f.counters)+1)
	copy(out, f.counters)
	out[len(f.counters)] = byte(f.k)
	return out
}

func decodeCounting(data []byte) *Counting {
	if len(data) < 1 {
		return &Counting{}
	}
	return &Counting{counters: append([]byte{}, data[:len(data)-1]...), k: uint32(data[len(data)-1])}
}
