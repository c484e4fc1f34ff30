package rowlock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"regiondb/errs"
)

func TestLockUnlockRoundtrip(t *testing.T) {
	r := New()
	tok := r.Lock([]byte("row1"))
	require.True(t, r.Valid(tok))
	row, ok := r.Row(tok)
	require.True(t, ok)
	require.Equal(t, "row1", string(row))

	r.Unlock(tok)
	require.False(t, r.Valid(tok))
	require.Equal(t, 0, r.Outstanding())
}

func TestLockSerializesSameRow(t *testing.T) {
	r := New()
	tok1 := r.Lock([]byte("row1"))

	acquired := make(chan Token, 1)
	go func() {
		acquired <- r.Lock([]byte("row1"))
	}()

	select {
	case <-acquired:
		t.Fatal("second Lock should not have acquired while first is held")
	case <-time.After(20 * time.Millisecond):
	}

	r.Unlock(tok1)
	tok2 := <-acquired
	require.True(t, r.Valid(tok2))
	require.NotEqual(t, tok1, tok2)
}

func TestExpireInvalidatesToken(t *testing.T) {
	r := New()
	tok := r.Lock([]byte("row1"))
	require.NoError(t, r.Expire(tok))
	require.False(t, r.Valid(tok))
	require.ErrorIs(t, r.Expire(tok), errs.ErrRowLockExpired)
}

func TestUnlockUnknownTokenIsNoop(t *testing.T) {
	r := New()
	r.Unlock(Token(999))
	require.Equal(t, 0, r.Outstanding())
}

func TestDrainReturnsWhenEmpty(t *testing.T) {
	r := New()
	done := make(chan struct{})
	go func() {
		r.Drain(time.Millisecond)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(200 * time.Millisecond):
		t.Fatal("Drain did not return for an empty registry")
	}
}

func TestIndependentRowsDoNotBlock(t *testing.T) {
	r := New()
	tok1 := r.Lock([]byte("row1"))
	tok2 := r.Lock([]byte("row2"))
	require.NotEqual(t, tok1, tok2)
	require.True(t, r.Valid(tok1))
	require.True(t, r.Valid(tok2))
}
