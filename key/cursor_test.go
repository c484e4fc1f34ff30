package key

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMergeCursorsOrdering(t *testing.T) {
	a := NewSliceCursor([]Edit{
		{Key: New([]byte("a"), []byte("cf:x"), 100), Value: Put([]byte("a1"))},
		{Key: New([]byte("c"), []byte("cf:x"), 100), Value: Put([]byte("c1"))},
	})
	b := NewSliceCursor([]Edit{
		{Key: New([]byte("b"), []byte("cf:x"), 100), Value: Put([]byte("b1"))},
	})
	m := MergeCursors([]Cursor{a, b})

	var rows []string
	for m.Valid() {
		rows = append(rows, string(m.Key().Row))
		m.Next()
	}
	require.Equal(t, []string{"a", "b", "c"}, rows)
}

func TestMergeCursorsTieBothAdvance(t *testing.T) {
	a := NewSliceCursor([]Edit{
		{Key: New([]byte("a"), []byte("cf:x"), 100), Value: Put([]byte("newer"))},
	})
	b := NewSliceCursor([]Edit{
		{Key: New([]byte("a"), []byte("cf:x"), 100), Value: Put([]byte("older"))},
	})
	m := MergeCursors([]Cursor{a, b})
	require.True(t, m.Valid())
	require.Equal(t, "newer", string(m.Value().Bytes))
	m.Next()
	require.False(t, m.Valid(), "both tied cursors must be consumed by one Next")
}
