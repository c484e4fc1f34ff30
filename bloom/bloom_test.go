package bloom

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func sampleKeys(n int) [][]byte {
	keys := make([][]byte, n)
	for i := range keys {
		keys[i] = []byte(fmt.Sprintf("row-%d", i))
	}
	return keys
}

func TestPlainNoFalseNegatives(t *testing.T) {
	keys := sampleKeys(200)
	bitsPerKey := BitsPerKey(len(keys), 0.01)
	f := Build(VariantPlain, keys, bitsPerKey)
	for _, k := range keys {
		require.True(t, f.MayContainKey(k))
	}
}

func TestCountingAddRemove(t *testing.T) {
	keys := sampleKeys(50)
	f := NewCounting(10, len(keys))
	for _, k := range keys {
		f.Add(k)
	}
	for _, k := range keys {
		require.True(t, f.MayContainKey(k))
	}
	f.Remove(keys[0])
	require.False(t, f.MayContainKey(keys[0]))
	for _, k := range keys[1:] {
		require.True(t, f.MayContainKey(k))
	}
}

func TestRetouchedEliminatesChosenFalsePositive(t *testing.T) {
	keys := sampleKeys(30)
	bitsPerKey := BitsPerKey(len(keys), 0.1)
	hashes := make([]uint32, len(keys))
	for i, k := range keys {
		hashes[i] = Hash(k)
	}
	f := NewRetouched(hashes, bitsPerKey)
	for _, k := range keys {
		require.True(t, f.MayContainKey(k))
	}

	var falsePositive []byte
	for i := 0; i < 10000; i++ {
		cand := []byte(fmt.Sprintf("nonmember-%d", i))
		if f.MayContainKey(cand) {
			falsePositive = cand
			break
		}
	}
	require.NotNil(t, falsePositive, "expected to find a false positive to retouch")
	f.RetouchKey(falsePositive)
	require.False(t, f.MayContainKey(falsePositive))
}

func TestPersistDecodeRoundtrip(t *testing.T) {
	keys := sampleKeys(40)
	bitsPerKey := BitsPerKey(len(keys), 0.01)
	f := Build(VariantPlain, keys, bitsPerKey)
	persisted := Persist(VariantPlain, f)

	decoded, err := Decode(persisted)
	require.NoError(t, err)
	for _, k := range keys {
		require.True(t, decoded.MayContainKey(k))
	}
}

func TestDecodeUnknownVariant(t *testing.T) {
	_, err := Decode([]byte{99, 0, 0})
	require.Error(t, err)
}
