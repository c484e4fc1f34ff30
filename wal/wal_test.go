package wal

import (
	"testing"

	"github.com/stretchr/testify/require"

	"regiondb/layout"
)

func TestAppendAndReplay(t *testing.T) {
	fs := layout.NewLocalFS(t.TempDir())
	require.NoError(t, fs.MkdirAll("."))

	w, err := Open(fs, "region.log", true)
	require.NoError(t, err)

	seq1 := w.NextSequence()
	require.NoError(t, w.Append([]Record{
		{Type: RecordEdit, Region: "r1", Table: "t", Sequence: seq1, Row: []byte("row1"), Column: []byte("cf:a"), Timestamp: 100, Value: []byte("x")},
		{Type: RecordEdit, Region: "r1", Table: "t", Sequence: seq1, Row: []byte("row2"), Column: []byte("cf:a"), Timestamp: 100, Value: []byte("y")},
	}))
	require.NoError(t, w.AppendFlushStart("r1", "t", seq1))
	require.NoError(t, w.AppendFlushComplete("r1", "t", seq1))
	require.NoError(t, w.Close())

	var got []Record
	err = Replay(fs, "region.log", func(r Record) error {
		got = append(got, r)
		return nil
	})
	require.NoError(t, err)
	require.Len(t, got, 4)
	require.Equal(t, RecordEdit, got[0].Type)
	require.Equal(t, "row1", string(got[0].Row))
	require.Equal(t, "cf:a", string(got[0].Column))
	require.Equal(t, uint64(100), got[0].Timestamp)
	require.False(t, got[0].Delete)
	require.Equal(t, RecordFlushStart, got[2].Type)
	require.Equal(t, RecordFlushComplete, got[3].Type)
}

func TestReplayMissingFileIsNotError(t *testing.T) {
	fs := layout.NewLocalFS(t.TempDir())
	err := Replay(fs, "nope.log", func(Record) error { return nil })
	require.NoError(t, err)
}

func TestDeleteRecordRoundtrip(t *testing.T) {
	fs := layout.NewLocalFS(t.TempDir())
	w, err := Open(fs, "r.log", true)
	require.NoError(t, err)
	seq := w.NextSequence()
	require.NoError(t, w.Append([]Record{
		{Type: RecordEdit, Region: "r1", Table: "t", Sequence: seq, Row: []byte("r"), Column: []byte("cf:a"), Timestamp: 5, Delete: true},
	}))
	require.NoError(t, w.Close())

	var got Record
	require.NoError(t, Replay(fs, "r.log", func(r Record) error {
		got = r
		return nil
	}))
	require.True(t, got.Delete)
}

func TestSeedSequenceMonotonic(t *testing.T) {
	fs := layout.NewLocalFS(t.TempDir())
	w, err := Open(fs, "r.log", false)
	require.NoError(t, err)
	w.SeedSequence(10)
	require.Equal(t, uint64(11), w.NextSequence())
	w.SeedSequence(5)
	require.Equal(t, uint64(12), w.NextSequence())
}
