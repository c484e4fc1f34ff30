package scan

import "bytes"

// RowFilter lets a caller discard rows or individual cells mid-scan (spec
// 4.8): FilterRow may discard a row wholesale before its cells are even
// inspected, FilterCell may discard the row based on any one cell, and
// FilterAllRemaining terminates the scan outright.
type RowFilter interface {
	FilterRow(row []byte) bool
	FilterCell(row, column, value []byte) bool
	FilterAllRemaining() bool
}

type peeked struct {
	row     []byte
	results map[string][]byte
	ok      bool
}

// RegionScanner wraps one StoreScanner per family and merges their
// per-row bundles into one, applying an optional RowFilter (spec 4.8).
type RegionScanner struct {
	scanners []*StoreScanner
	peek     []peeked
	filter   RowFilter
}

func NewRegionScanner(scanners []*StoreScanner, filter RowFilter) *RegionScanner {
	rs := &RegionScanner{scanners: scanners, filter: filter, peek: make([]peeked, len(scanners))}
	for i, s := range scanners {
		rs.refill(i, s)
	}
	return rs
}

func (rs *RegionScanner) refill(i int, s *StoreScanner) {
	row, results, ok := s.Next()
	out := make(map[string][]byte, len(results))
	for col, v := range results {
		out[col] = v.Bytes
	}
	rs.peek[i] = peeked{row: row, results: out, ok: ok}
}

func (rs *RegionScanner) smallestRow() ([]byte, bool) {
	var best []byte
	found := false
	for _, p := range rs.peek {
		if !p.ok {
			continue
		}
		if !found || bytes.Compare(p.row, best) < 0 {
			best, found = p.row, true
		}
	}
	return best, found
}

// Next returns the next surviving row's merged bundle. ok is false once
// every family scanner is exhausted or the filter has terminated the
// scan.
func (rs *RegionScanner) Next() (row []byte, results map[string][]byte, ok bool) {
	for {
		if rs.filter != nil && rs.filter.FilterAllRemaining() {
			return nil, nil, false
		}
		row, found := rs.smallestRow()
		if !found {
			return nil, nil, false
		}

		merged := map[string][]byte{}
		for i, p := range rs.peek {
			if !p.ok || !bytes.Equal(p.row, row) {
				continue
			}
			for col, val := range p.results {
				if _, present := merged[col]; !present {
					merged[col] = val
				}
			}
			rs.refill(i, rs.scanners[i])
		}

		if rs.filter != nil && rs.filter.FilterRow(row) {
			continue
		}
		if rs.filter != nil {
			discard := false
			for col, val := range merged {
				if rs.filter.FilterCell(row, []byte(col), val) {
					discard = true
					break
				}
			}
			if discard {
				continue
			}
		}
		if len(merged) == 0 {
			continue
		}
		return row, merged, true
	}
}
