package memcache

import (
	"bytes"
	"sort"
	"sync"

	"regiondb/key"
)

// Memcache is one family's in-memory buffer: a live map taking new writes
// and a snapshot map holding whatever is being flushed to disk. Reads
// consult both (spec 4.2: "searching live then snapshot").
type Memcache struct {
	mu       sync.RWMutex
	live     *skiplist
	snapshot *skiplist
}

func New() *Memcache {
	return &Memcache{live: newSkiplist(), snapshot: newSkiplist()}
}

// Add inserts one edit into the live map.
func (m *Memcache) Add(k key.Key, v key.Value) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.live.put(k, v)
}

// Snapshot atomically moves every live entry into the snapshot map and
// empties the live map. A no-op if the live map is currently empty (spec
// 4.2: "fails silently if the live map is empty").
func (m *Memcache) Snapshot() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snapshotLocked()
}

func (m *Memcache) snapshotLocked() {
	if m.live.len() == 0 {
		return
	}
	it := m.live.iterAll()
	for it.Valid() {
		m.snapshot.put(it.Key(), it.Value())
		it.Next()
	}
	m.live = newSkiplist()
}

// ClearSnapshot drops everything in the snapshot map. Called once its
// contents are durable in a new store file (spec 4.5 flushCache).
func (m *Memcache) ClearSnapshot() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snapshot = newSkiplist()
}

// Size is the live map's entry count. The region's flush trigger does not
// read it; Region keeps its own byte estimate of what it has inserted.
func (m *Memcache) Size() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.live.len()
}

func mergedCursorFrom(live, snapshot *skiplist, k key.Key) key.Cursor {
	return key.MergeCursors([]key.Cursor{live.iterFrom(k), snapshot.iterFrom(k)})
}

// Get returns up to numVersions newest non-tombstone values row-column-equal
// to k with timestamp <= k.Timestamp, honouring tombstone occlusion across
// both tiers (spec 4.2, spec 8's tombstone-occlusion property).
func (m *Memcache) Get(k key.Key, numVersions int) []key.Value {
	m.mu.RLock()
	defer m.mu.RUnlock()

	type tsValue struct {
		ts  uint64
		val key.Value
	}
	var cands []tsValue
	seekKey := key.New(k.Row, k.Column, k.Timestamp)
	for _, sl := range []*skiplist{m.live, m.snapshot} {
		it := sl.iterFrom(seekKey)
		for it.Valid() && key.RowColumnEqual(it.Key(), k) {
			cands = append(cands, tsValue{it.Key().Timestamp, it.Value()})
			it.Next()
		}
	}
	sort.Slice(cands, func(i, j int) bool { return cands[i].ts > cands[j].ts })

	var out []key.Value
	var maxTombstone uint64
	hasTombstone := false
	for _, c := range cands {
		if hasTombstone && c.ts <= maxTombstone {
			continue
		}
		if c.val.IsTombstone() {
			maxTombstone, hasTombstone = c.ts, true
			continue
		}
		out = append(out, c.val)
		if len(out) >= numVersions {
			break
		}
	}
	return out
}

// GetFull implements spec 4.2's row-scoped scan: for every column at
// k.Row with timestamp <= k.Timestamp, record the newest non-tombstone
// value into results (keyed by column string) unless occluded by an
// entry already in deletes; tombstones raise deletes[column] to the
// largest tombstoned timestamp seen. deletes and results are accumulators
// the caller (Store.getFull) threads across memcache and successive store
// files, newest tier first, so entries already present in results are
// left untouched (an earlier, newer tier already supplied the answer).
func (m *Memcache) GetFull(k key.Key, deletes map[string]uint64, results map[string]key.Value) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	type rowEntry struct {
		k key.Key
		v key.Value
	}
	var entries []rowEntry
	seekKey := key.New(k.Row, nil, key.MaxTimestamp)
	for _, sl := range []*skiplist{m.live, m.snapshot} {
		it := sl.iterFrom(seekKey)
		for it.Valid() && key.RowEqual(it.Key(), k) {
			entries = append(entries, rowEntry{it.Key(), it.Value()})
			it.Next()
		}
	}
	sort.Slice(entries, func(i, j int) bool { return key.Less(entries[i].k, entries[j].k) })

	for _, e := range entries {
		if e.k.Timestamp > k.Timestamp {
			continue
		}
		col := string(e.k.Column)
		if e.v.IsTombstone() {
			if ts, ok := deletes[col]; !ok || e.k.Timestamp > ts {
				deletes[col] = e.k.Timestamp
			}
			continue
		}
		if ts, ok := deletes[col]; ok && ts >= e.k.Timestamp {
			continue
		}
		if _, exists := results[col]; exists {
			continue
		}
		results[col] = e.v
	}
}

// GetKeysBefore returns up to versions non-tombstone keys with Key-order
// at or after origin, restricted to origin's row (and, if origin.Column is
// non-empty, origin's column too) — spec 4.2.
func (m *Memcache) GetKeysBefore(origin key.Key, versions int) []key.Key {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []key.Key
	for _, sl := range []*skiplist{m.live, m.snapshot} {
		it := sl.iterFrom(origin)
		for it.Valid() {
			k := it.Key()
			if !key.RowEqual(k, origin) {
				break
			}
			if len(origin.Column) > 0 && !bytes.Equal(k.Column, origin.Column) {
				break
			}
			if !it.Value().IsTombstone() {
				out = append(out, k)
			}
			it.Next()
		}
	}
	sort.Slice(out, func(i, j int) bool { return key.Less(out[i], out[j]) })
	if len(out) > versions {
		out = out[:versions]
	}
	return out
}

// Cursor returns a merged live+snapshot cursor over everything at or after
// from, used by the closest-row-before protocol (spec 4.4) and by scanner
// construction (spec 4.8), both of which treat memcache as just another
// tier behind the Cursor interface.
func (m *Memcache) Cursor(from key.Key) key.Cursor {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return mergedCursorFrom(m.live, m.snapshot, from)
}

// ScannerCursor materialises a fresh snapshot (moving any pending live
// writes into it, same semantics as Snapshot) and returns a cursor over
// the result seeked to firstRow — spec 4.2's scanner operation. A scanner
// built this way will not observe writes that arrive after construction,
// which is what gives it a consistent point-in-time view.
func (m *Memcache) ScannerCursor(firstRow []byte) key.Cursor {
	m.mu.Lock()
	m.snapshotLocked()
	cursor := m.snapshot.iterFrom(key.New(firstRow, nil, key.MaxTimestamp))
	m.mu.Unlock()
	return cursor
}
