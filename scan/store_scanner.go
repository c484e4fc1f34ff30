// Package scan implements the scanner protocol (spec 4.8): a per-store
// scanner that yields one (row, column->value) bundle at a time from the
// merge of a memcache snapshot and every store file, and a region scanner
// that merges bundles across families and applies an optional row filter.
// Both are built on key.Cursor/key.MergeCursors (key's pull-based sorted
// merge), the same composition spec 9's design note calls for ("iterator
// composition... naturally expressed as a pull-based sorted merge").
package scan

import (
	"bytes"

	"regiondb/key"
)

// StoreScanner yields one row at a time from a single family's memcache
// snapshot and store files, newest version per column winning (spec 4.8).
type StoreScanner struct {
	cursor    key.Cursor
	timestamp uint64
	matchers  *key.MatcherSet
}

// NewStoreScanner builds a scanner over cursors — ordinarily the
// memcache's ScannerCursor result followed by each store file's Cursor,
// newest sequence id first — seeked at firstRow. Callers order cursors
// newest-first so key.MergeCursors' lowest-index tie-break encodes "prefer
// the newest source" without extra bookkeeping (spec 9's compaction
// tie-break, reused here for scan).
func NewStoreScanner(cursors []key.Cursor, timestamp uint64, matchers *key.MatcherSet) *StoreScanner {
	return &StoreScanner{cursor: key.MergeCursors(cursors), timestamp: timestamp, matchers: matchers}
}

// Next returns the next row's bundle. ok is false once the scan is
// exhausted.
func (s *StoreScanner) Next() (row []byte, results map[string]key.Value, ok bool) {
	for s.cursor.Valid() {
		row = append([]byte{}, s.cursor.Key().Row...)
		results = map[string]key.Value{}
		visited := map[string]bool{}

		for s.cursor.Valid() && bytes.Equal(s.cursor.Key().Row, row) {
			k := s.cursor.Key()
			col := string(k.Column)

			if k.Timestamp > s.timestamp || visited[col] {
				s.cursor.Next()
				continue
			}
			visited[col] = true
			if s.matchers.Match(k.Column) {
				v := s.cursor.Value()
				if !v.IsTombstone() {
					results[col] = v
				}
			}
			s.cursor.Next()
		}

		if len(results) > 0 {
			return row, results, true
		}
		// An empty result set causes the scanner to advance and retry
		// (spec 4.8's moreToFollow loop, shared with the region scanner).
	}
	return nil, nil, false
}
