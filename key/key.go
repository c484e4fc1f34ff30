// Package key implements the row/column/timestamp key model shared by every
// tier of the engine (memcache, store file, WAL, scanner). The ordering rule
// — row ascending, column ascending, timestamp descending — is the one
// invariant every other package depends on; it is centralised here instead
// of being re-derived (the teacher's utils/key.go inverts the timestamp into
// raw key bytes, which is ambiguous once row and column both vary in
// length, so this is a struct-and-Compare rewrite of that idea rather than
// a byte-concatenation trick).
package key

import (
	"bytes"
	"fmt"

	"github.com/pkg/errors"
)

// MaxTimestamp sorts first under Compare (descending timestamp order), so it
// is the right sentinel for "give me the newest version as of now".
const MaxTimestamp = ^uint64(0)

// Key identifies one versioned cell. Column is the undivided "family:qualifier"
// byte string; SplitColumn below is the single place that parses it.
type Key struct {
	Row       []byte
	Column    []byte
	Timestamp uint64
}

func New(row, column []byte, ts uint64) Key {
	return Key{Row: row, Column: column, Timestamp: ts}
}

// MakeColumn joins family and qualifier with the ':' separator used
// throughout the on-disk and wire formats.
func MakeColumn(family, qualifier []byte) []byte {
	if len(qualifier) == 0 {
		return append(append([]byte{}, family...), ':')
	}
	buf := make([]byte, 0, len(family)+1+len(qualifier))
	buf = append(buf, family...)
	buf = append(buf, ':')
	buf = append(buf, qualifier...)
	return buf
}

// SplitColumn splits a column on its first ':' into family and qualifier.
// An empty qualifier means "family only" (spec 4.1).
func SplitColumn(column []byte) (family, qualifier []byte) {
	i := bytes.IndexByte(column, ':')
	if i < 0 {
		return column, nil
	}
	return column[:i], column[i+1:]
}

func (k Key) Family() []byte {
	f, _ := SplitColumn(k.Column)
	return f
}

func (k Key) Qualifier() []byte {
	_, q := SplitColumn(k.Column)
	return q
}

// Compare imposes the engine's total order: row ascending, column ascending,
// timestamp descending. This is the comparator every sorted structure in the
// engine (memcache skiplist, store file block index, merge scanners) must
// use verbatim — spec 9 calls out that preserving it exactly is required or
// reads break.
func Compare(a, b Key) int {
	if c := bytes.Compare(a.Row, b.Row); c != 0 {
		return c
	}
	if c := bytes.Compare(a.Column, b.Column); c != 0 {
		return c
	}
	switch {
	case a.Timestamp > b.Timestamp:
		return -1
	case a.Timestamp < b.Timestamp:
		return 1
	default:
		return 0
	}
}

func Less(a, b Key) bool { return Compare(a, b) < 0 }

func Equal(a, b Key) bool { return Compare(a, b) == 0 }

// RowEqual reports whether a and b address the same row.
func RowEqual(a, b Key) bool { return bytes.Equal(a.Row, b.Row) }

// RowColumnEqual reports whether a and b address the same row and column,
// ignoring timestamp.
func RowColumnEqual(a, b Key) bool {
	return RowEqual(a, b) && bytes.Equal(a.Column, b.Column)
}

// MatchesWithoutColumn reports whether other is a visible predecessor of k
// ignoring column: same row, and other's timestamp no newer than k's. Used
// by the closest-row-before protocol (spec 4.4) where candidates are
// compared across columns within a row.
func MatchesWithoutColumn(k, other Key) bool {
	return RowEqual(k, other) && other.Timestamp <= k.Timestamp
}

func (k Key) String() string {
	return fmt.Sprintf("%s/%s/%d", k.Row, k.Column, k.Timestamp)
}

// Value is the payload half of an edit. Delete is the tombstone sentinel
// (spec 3 calls it "the delete marker"); it is modelled as a flag rather
// than a reserved byte string so an empty put value can never collide with
// a tombstone, mirroring the teacher's Meta-byte BitDelete flag in
// utils/const.go rather than a sentinel byte slice.
type Value struct {
	Bytes  []byte
	Delete bool
}

func Put(b []byte) Value   { return Value{Bytes: b} }
func Tombstone() Value     { return Value{Delete: true} }
func (v Value) IsTombstone() bool { return v.Delete }

// Edit is one (Key, Value) pair as it flows from client request through WAL
// into memcache.
type Edit struct {
	Key   Key
	Value Value
}

// ErrInvalidColumnMatcher is returned when a scanner column spec is
// malformed (spec 7's invalid-column-matcher error kind).
var ErrInvalidColumnMatcher = errors.New("invalid column matcher")
