package memcache

import (
	"testing"

	"github.com/stretchr/testify/require"

	"regiondb/key"
)

func TestAddAndGetSingleVersion(t *testing.T) {
	m := New()
	m.Add(key.New([]byte("r1"), []byte("cf:a"), 100), key.Put([]byte("x")))

	vals := m.Get(key.New([]byte("r1"), []byte("cf:a"), key.MaxTimestamp), 1)
	require.Equal(t, []key.Value{key.Put([]byte("x"))}, vals)

	vals = m.Get(key.New([]byte("r1"), []byte("cf:a"), 50), 1)
	require.Empty(t, vals)
}

func TestVersionStack(t *testing.T) {
	m := New()
	m.Add(key.New([]byte("r"), []byte("cf:a"), 100), key.Put([]byte("x")))
	m.Add(key.New([]byte("r"), []byte("cf:a"), 200), key.Put([]byte("y")))
	m.Add(key.New([]byte("r"), []byte("cf:a"), 300), key.Put([]byte("z")))

	vals := m.Get(key.New([]byte("r"), []byte("cf:a"), key.MaxTimestamp), 2)
	require.Equal(t, [][]byte{[]byte("z"), []byte("y")}, valBytes(vals))

	vals = m.Get(key.New([]byte("r"), []byte("cf:a"), 250), 1)
	require.Equal(t, [][]byte{[]byte("y")}, valBytes(vals))
}

func valBytes(vs []key.Value) [][]byte {
	out := make([][]byte, len(vs))
	for i, v := range vs {
		out[i] = v.Bytes
	}
	return out
}

func TestTombstoneOcclusion(t *testing.T) {
	m := New()
	m.Add(key.New([]byte("r"), []byte("cf:a"), 100), key.Put([]byte("x")))
	m.Add(key.New([]byte("r"), []byte("cf:a"), 200), key.Tombstone())

	vals := m.Get(key.New([]byte("r"), []byte("cf:a"), key.MaxTimestamp), 5)
	require.Empty(t, vals)
}

func TestSnapshotMovesLiveAndClear(t *testing.T) {
	m := New()
	m.Add(key.New([]byte("r"), []byte("cf:a"), 100), key.Put([]byte("x")))
	require.Equal(t, 1, m.Size())

	m.Snapshot()
	require.Equal(t, 0, m.Size())

	vals := m.Get(key.New([]byte("r"), []byte("cf:a"), key.MaxTimestamp), 1)
	require.Equal(t, [][]byte{[]byte("x")}, valBytes(vals))

	m.ClearSnapshot()
	vals = m.Get(key.New([]byte("r"), []byte("cf:a"), key.MaxTimestamp), 1)
	require.Empty(t, vals)
}

func TestSnapshotNoopWhenLiveEmpty(t *testing.T) {
	m := New()
	m.Snapshot()
	require.Equal(t, 0, m.Size())
}

func TestGetFullAcrossColumns(t *testing.T) {
	m := New()
	m.Add(key.New([]byte("r"), []byte("cf:a"), 100), key.Put([]byte("a-val")))
	m.Add(key.New([]byte("r"), []byte("cf:b"), 150), key.Put([]byte("b-val")))
	m.Add(key.New([]byte("r"), []byte("cf:b"), 50), key.Put([]byte("b-old")))
	m.Add(key.New([]byte("r"), []byte("cf:c"), 120), key.Tombstone())

	deletes := map[string]uint64{}
	results := map[string]key.Value{}
	m.GetFull(key.New([]byte("r"), nil, key.MaxTimestamp), deletes, results)

	require.Equal(t, "a-val", string(results["cf:a"].Bytes))
	require.Equal(t, "b-val", string(results["cf:b"].Bytes))
	require.NotContains(t, results, "cf:c")
	require.Equal(t, uint64(120), deletes["cf:c"])
}

func TestGetKeysBeforeSameColumn(t *testing.T) {
	m := New()
	m.Add(key.New([]byte("r"), []byte("cf:a"), 300), key.Put([]byte("z")))
	m.Add(key.New([]byte("r"), []byte("cf:a"), 200), key.Put([]byte("y")))
	m.Add(key.New([]byte("r"), []byte("cf:a"), 100), key.Put([]byte("x")))

	origin := key.New([]byte("r"), []byte("cf:a"), 250)
	keys := m.GetKeysBefore(origin, 2)
	require.Len(t, keys, 2)
	require.Equal(t, uint64(200), keys[0].Timestamp)
	require.Equal(t, uint64(100), keys[1].Timestamp)
}

func TestScannerCursorOrdering(t *testing.T) {
	m := New()
	m.Add(key.New([]byte("b"), []byte("cf:a"), 100), key.Put([]byte("bv")))
	m.Add(key.New([]byte("a"), []byte("cf:a"), 100), key.Put([]byte("av")))

	cursor := m.ScannerCursor(nil)
	require.True(t, cursor.Valid())
	require.Equal(t, "a", string(cursor.Key().Row))
	cursor.Next()
	require.Equal(t, "b", string(cursor.Key().Row))
}
