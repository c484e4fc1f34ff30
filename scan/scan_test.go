package scan

import (
	"testing"

	"github.com/stretchr/testify/require"

	"regiondb/key"
)

func edits(es ...key.Edit) key.Cursor {
	sorted := append([]key.Edit{}, es...)
	for i := 1; i < len(sorted); i++ {
		for j := i; j > 0 && key.Less(sorted[j].Key, sorted[j-1].Key); j-- {
			sorted[j], sorted[j-1] = sorted[j-1], sorted[j]
		}
	}
	return key.NewSliceCursor(sorted)
}

func allMatchers() *key.MatcherSet {
	m, err := key.NewMatcherSet(nil)
	if err != nil {
		panic(err)
	}
	return m
}

func TestStoreScannerNewestPerColumnWins(t *testing.T) {
	c := edits(
		key.Edit{Key: key.New([]byte("r1"), []byte("cf:a"), 100), Value: key.Put([]byte("old"))},
		key.Edit{Key: key.New([]byte("r1"), []byte("cf:a"), 200), Value: key.Put([]byte("new"))},
		key.Edit{Key: key.New([]byte("r1"), []byte("cf:b"), 150), Value: key.Put([]byte("b-val"))},
	)
	s := NewStoreScanner([]key.Cursor{c}, key.MaxTimestamp, allMatchers())

	row, results, ok := s.Next()
	require.True(t, ok)
	require.Equal(t, "r1", string(row))
	require.Equal(t, "new", string(results["cf:a"].Bytes))
	require.Equal(t, "b-val", string(results["cf:b"].Bytes))

	_, _, ok = s.Next()
	require.False(t, ok)
}

func TestStoreScannerRespectsTimestampCeiling(t *testing.T) {
	c := edits(
		key.Edit{Key: key.New([]byte("r1"), []byte("cf:a"), 100), Value: key.Put([]byte("old"))},
		key.Edit{Key: key.New([]byte("r1"), []byte("cf:a"), 200), Value: key.Put([]byte("new"))},
	)
	s := NewStoreScanner([]key.Cursor{c}, 150, allMatchers())

	_, results, ok := s.Next()
	require.True(t, ok)
	require.Equal(t, "old", string(results["cf:a"].Bytes))
}

func TestStoreScannerSkipsTombstonedColumn(t *testing.T) {
	c := edits(
		key.Edit{Key: key.New([]byte("r1"), []byte("cf:a"), 100), Value: key.Put([]byte("old"))},
		key.Edit{Key: key.New([]byte("r1"), []byte("cf:a"), 200), Value: key.Tombstone()},
	)
	s := NewStoreScanner([]key.Cursor{c}, key.MaxTimestamp, allMatchers())

	_, _, ok := s.Next()
	require.False(t, ok)
}

func TestStoreScannerColumnMatcherFilters(t *testing.T) {
	c := edits(
		key.Edit{Key: key.New([]byte("r1"), []byte("cf:a"), 100), Value: key.Put([]byte("av"))},
		key.Edit{Key: key.New([]byte("r1"), []byte("cf:b"), 100), Value: key.Put([]byte("bv"))},
	)
	matchers, err := key.NewMatcherSet([][]byte{[]byte("cf:a")})
	require.NoError(t, err)
	s := NewStoreScanner([]key.Cursor{c}, key.MaxTimestamp, matchers)

	_, results, ok := s.Next()
	require.True(t, ok)
	require.Contains(t, results, "cf:a")
	require.NotContains(t, results, "cf:b")
}

func TestRegionScannerMergesFamilies(t *testing.T) {
	cfA := edits(key.Edit{Key: key.New([]byte("r1"), []byte("a:x"), 100), Value: key.Put([]byte("av"))})
	cfB := edits(key.Edit{Key: key.New([]byte("r1"), []byte("b:x"), 100), Value: key.Put([]byte("bv"))})

	sa := NewStoreScanner([]key.Cursor{cfA}, key.MaxTimestamp, allMatchers())
	sb := NewStoreScanner([]key.Cursor{cfB}, key.MaxTimestamp, allMatchers())

	rs := NewRegionScanner([]*StoreScanner{sa, sb}, nil)
	row, results, ok := rs.Next()
	require.True(t, ok)
	require.Equal(t, "r1", string(row))
	require.Equal(t, "av", string(results["a:x"]))
	require.Equal(t, "bv", string(results["b:x"]))

	_, _, ok = rs.Next()
	require.False(t, ok)
}

type dropRowFilter struct{ dropRow string }

func (f *dropRowFilter) FilterRow(row []byte) bool           { return string(row) == f.dropRow }
func (f *dropRowFilter) FilterCell([]byte, []byte, []byte) bool { return false }
func (f *dropRowFilter) FilterAllRemaining() bool             { return false }

func TestRegionScannerRowFilterDropsRow(t *testing.T) {
	cf := edits(
		key.Edit{Key: key.New([]byte("r1"), []byte("a:x"), 100), Value: key.Put([]byte("v1"))},
		key.Edit{Key: key.New([]byte("r2"), []byte("a:x"), 100), Value: key.Put([]byte("v2"))},
	)
	s := NewStoreScanner([]key.Cursor{cf}, key.MaxTimestamp, allMatchers())
	rs := NewRegionScanner([]*StoreScanner{s}, &dropRowFilter{dropRow: "r1"})

	row, results, ok := rs.Next()
	require.True(t, ok)
	require.Equal(t, "r2", string(row))
	require.Equal(t, "v2", string(results["a:x"]))

	_, _, ok = rs.Next()
	require.False(t, ok)
}
