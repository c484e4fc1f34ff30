package key

import (
	"bytes"
	"regexp"

	"github.com/pkg/errors"
)

type matcherKind int

const (
	kindFamilyOnly matcherKind = iota
	kindRegex
	kindLiteral
)

// regexMeta is the set of characters that mark a qualifier as a regex
// pattern rather than a literal (spec 4.1).
const regexMeta = `\+|^&*$[]{}()`

func looksLikeRegex(qualifier []byte) bool {
	return bytes.ContainsAny(qualifier, regexMeta)
}

// Matcher decides whether a column belongs to a scan. It is built from one
// of the three column-spec forms spec 4.1 defines: family-only, regex, or
// literal.
type Matcher struct {
	family    []byte
	qualifier []byte
	re        *regexp.Regexp
	kind      matcherKind
}

// NewMatcher parses a "family" or "family:qualifier" column spec.
func NewMatcher(column []byte) (*Matcher, error) {
	family, qualifier := SplitColumn(column)
	if len(family) == 0 {
		return nil, errors.Wrap(ErrInvalidColumnMatcher, "empty family")
	}
	if len(qualifier) == 0 {
		return &Matcher{family: family, kind: kindFamilyOnly}, nil
	}
	if looksLikeRegex(qualifier) {
		re, err := regexp.Compile(string(qualifier))
		if err != nil {
			return nil, errors.Wrapf(ErrInvalidColumnMatcher, "compiling %q: %v", qualifier, err)
		}
		return &Matcher{family: family, re: re, kind: kindRegex}, nil
	}
	return &Matcher{family: family, qualifier: qualifier, kind: kindLiteral}, nil
}

func (m *Matcher) Family() []byte { return m.family }

// Wildcard reports whether this matcher can match more than one qualifier
// within its family.
func (m *Matcher) Wildcard() bool { return m.kind != kindLiteral }

func (m *Matcher) Match(column []byte) bool {
	family, qualifier := SplitColumn(column)
	if !bytes.Equal(family, m.family) {
		return false
	}
	switch m.kind {
	case kindFamilyOnly:
		return true
	case kindRegex:
		return m.re.Match(qualifier)
	default:
		return bytes.Equal(qualifier, m.qualifier)
	}
}

// MatcherSet is the full set of column specs a scanner was asked for. A
// store scanner (spec 4.8) needs to know, in aggregate, whether it carries
// any wildcard matcher and whether any one family has more than one
// matcher — both change how a scanner may short-circuit within a row.
type MatcherSet struct {
	matchers      []*Matcher
	familyCount   map[string]int
}

// NewMatcherSet builds a MatcherSet from raw "family[:qualifier]" specs. An
// empty columns slice yields a set with no matchers, whose Match accepts
// every column.
func NewMatcherSet(columns [][]byte) (*MatcherSet, error) {
	s := &MatcherSet{familyCount: map[string]int{}}
	for _, col := range columns {
		m, err := NewMatcher(col)
		if err != nil {
			return nil, err
		}
		s.matchers = append(s.matchers, m)
		s.familyCount[string(m.Family())]++
	}
	return s, nil
}

func (s *MatcherSet) Matchers() []*Matcher { return s.matchers }

func (s *MatcherSet) Wildcard() bool {
	for _, m := range s.matchers {
		if m.Wildcard() {
			return true
		}
	}
	return false
}

func (s *MatcherSet) MultiMatcher() bool {
	for _, n := range s.familyCount {
		if n >= 2 {
			return true
		}
	}
	return false
}

func (s *MatcherSet) Match(column []byte) bool {
	if len(s.matchers) == 0 {
		return true
	}
	for _, m := range s.matchers {
		if m.Match(column) {
			return true
		}
	}
	return false
}

// Families returns the distinct families referenced by the matcher set, in
// first-seen order. A region uses this to decide which family stores
// participate in a scan (spec 4.6 getScanner).
func (s *MatcherSet) Families() [][]byte {
	seen := map[string]bool{}
	var out [][]byte
	for _, m := range s.matchers {
		k := string(m.Family())
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, m.Family())
	}
	return out
}
