package store

import (
	"bytes"

	"regiondb/key"
)

// candidateKey is a (row, column) pair tracked while resolving the
// closest-row-at-or-before protocol (spec 4.4).
type candidateKey struct {
	row, column string
}

// closestRowAtOrBefore implements spec 4.4's protocol generically over a
// set of seek funcs, each returning a key.Cursor positioned at or after a
// given key. Store.GetRowKeyAtOrBefore supplies its store files oldest to
// newest followed by its memcache, the tier order the spec requires:
// candidates accumulate a (row,column) -> best-timestamp map; a tombstone
// removes a candidate only if the tombstone's timestamp is >= the
// candidate's best timestamp (i.e. the tombstone occludes it); the result
// is the largest row with any candidate surviving after every tier has
// been applied in order.
func closestRowAtOrBefore(sources []func(key.Key) key.Cursor, row []byte) ([]byte, bool) {
	best := map[candidateKey]uint64{}
	var largestRow []byte
	haveRow := false

	for _, seek := range sources {
		c := seek(key.Key{})
		for c.Valid() {
			k := c.Key()
			if bytes.Compare(k.Row, row) > 0 {
				break
			}
			ck := candidateKey{string(k.Row), string(k.Column)}
			v := c.Value()
			if v.IsTombstone() {
				if ts, ok := best[ck]; ok && k.Timestamp >= ts {
					delete(best, ck)
				}
				c.Next()
				continue
			}
			if ts, ok := best[ck]; !ok || k.Timestamp > ts {
				best[ck] = k.Timestamp
			}
			c.Next()
		}
	}

	for ck := range best {
		r := []byte(ck.row)
		if !haveRow || bytes.Compare(r, largestRow) > 0 {
			largestRow, haveRow = r, true
		}
	}
	return largestRow, haveRow
}
