package bloom

import "github.com/pkg/errors"

// Variant is the closed set of bloom-filter kinds spec 4.3/9 allows; a
// store owns at most one.
type Variant byte

const (
	VariantPlain Variant = iota
	VariantCounting
	VariantRetouched
)

// Filter is the membership-test contract spec 4.3 specifies: "consulted on
// point reads to skip files that certainly lack the key."
type Filter interface {
	MayContainKey(key []byte) bool
	Encode() []byte
}

// Build constructs the filter variant for a family over the given keys
// (opaque byte strings; Store builds and probes its filter with row keys), honoring
// bitsPerKey (derived from the family's target false-positive rate via
// BitsPerKey).
func Build(variant Variant, keys [][]byte, bitsPerKey int) Filter {
	hashes := make([]uint32, len(keys))
	for i, k := range keys {
		hashes[i] = Hash(k)
	}
	switch variant {
	case VariantCounting:
		f := NewCounting(bitsPerKey, len(keys))
		for _, k := range keys {
			f.Add(k)
		}
		return f
	case VariantRetouched:
		return NewRetouched(hashes, bitsPerKey)
	default:
		return NewPlain(hashes, bitsPerKey)
	}
}

// Decode reconstructs a persisted filter from its sidecar file bytes. The
// first byte is the variant tag this package prefixes onto Encode's
// output via Persist; the remainder is the variant's own flat encoding.
func Decode(data []byte) (Filter, error) {
	if len(data) < 1 {
		return nil, errors.New("bloom: empty filter file")
	}
	variant, payload := Variant(data[0]), data[1:]
	switch variant {
	case VariantPlain:
		return decodePlain(payload), nil
	case VariantCounting:
		return decodeCounting(payload), nil
	case VariantRetouched:
		return decodeRetouched(payload), nil
	default:
		return nil, errors.Errorf("bloom: unknown filter variant %d", variant)
	}
}

// Persist prefixes a variant tag onto Encode's output, the shape stored in
// the family's filter sidecar file (spec 6).
func Persist(variant Variant, f Filter) []byte {
	return append([]byte{byte(variant)}, f.Encode()...)
}
