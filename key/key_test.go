package key

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCompareOrdering(t *testing.T) {
	a := New([]byte("r1"), []byte("cf:a"), 100)
	b := New([]byte("r1"), []byte("cf:a"), 200)
	require.True(t, Less(b, a), "higher timestamp must sort first")

	c := New([]byte("r1"), []byte("cf:b"), 100)
	require.True(t, Less(a, c), "column ordering must be ascending")

	d := New([]byte("r2"), []byte("cf:a"), 999)
	require.True(t, Less(a, d), "row ordering dominates column/timestamp")
}

func TestSplitColumn(t *testing.T) {
	f, q := SplitColumn([]byte("cf:qualifier"))
	require.Equal(t, "cf", string(f))
	require.Equal(t, "qualifier", string(q))

	f, q = SplitColumn([]byte("cf"))
	require.Equal(t, "cf", string(f))
	require.Empty(t, q)
}

func TestMatchesWithoutColumn(t *testing.T) {
	target := New([]byte("r1"), []byte("cf:a"), 200)
	older := New([]byte("r1"), []byte("cf:b"), 100)
	newer := New([]byte("r1"), []byte("cf:b"), 300)
	otherRow := New([]byte("r2"), []byte("cf:b"), 100)

	require.True(t, MatchesWithoutColumn(target, older))
	require.False(t, MatchesWithoutColumn(target, newer))
	require.False(t, MatchesWithoutColumn(target, otherRow))
}

func TestMatcherLiteral(t *testing.T) {
	m, err := NewMatcher([]byte("cf:exact"))
	require.NoError(t, err)
	require.False(t, m.Wildcard())
	require.True(t, m.Match([]byte("cf:exact")))
	require.False(t, m.Match([]byte("cf:other")))
	require.False(t, m.Match([]byte("other:exact")))
}

func TestMatcherFamilyOnly(t *testing.T) {
	m, err := NewMatcher([]byte("cf"))
	require.NoError(t, err)
	require.True(t, m.Wildcard())
	require.True(t, m.Match([]byte("cf:anything")))
	require.False(t, m.Match([]byte("other:anything")))
}

func TestMatcherRegex(t *testing.T) {
	m, err := NewMatcher([]byte("cf:a.*"))
	require.NoError(t, err)
	require.True(t, m.Wildcard())
	require.True(t, m.Match([]byte("cf:abc")))
	require.False(t, m.Match([]byte("cf:xyz")))
}

func TestMatcherSetWildcardAndMulti(t *testing.T) {
	s, err := NewMatcherSet([][]byte{[]byte("cf:a"), []byte("cf:b"), []byte("cf2")})
	require.NoError(t, err)
	require.True(t, s.Wildcard(), "cf2 is family-only so the set is wildcard")
	require.True(t, s.MultiMatcher(), "cf has two matchers")
	require.ElementsMatch(t, []string{"cf", "cf2"}, familyStrings(s.Families()))
}

func familyStrings(fs [][]byte) []string {
	out := make([]string, len(fs))
	for i, f := range fs {
		out[i] = string(f)
	}
	return out
}

func TestMatcherSetExactOnly(t *testing.T) {
	s, err := NewMatcherSet([][]byte{[]byte("cf:a"), []byte("cf:b")})
	require.NoError(t, err)
	require.False(t, s.Wildcard())
	require.True(t, s.MultiMatcher())
}

func TestInvalidMatcher(t *testing.T) {
	_, err := NewMatcher([]byte(""))
	require.Error(t, err)
}
