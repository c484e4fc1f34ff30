// Package store implements a column family's Store (spec 4.5): a
// memcache plus an ordered set of store files, with add/get/getFull/
// getKeys/getRowKeyAtOrBefore, flush, compaction, and scanner
// construction. Grounded on the teacher's db.go, which plays the same
// role (memtable + SSTables + flush/compact) one level up without the
// family/region partitioning this spec adds.
package store

import (
	"bytes"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"

	"regiondb/bloom"
	"regiondb/cache"
	"regiondb/internal/xlog"
	"regiondb/key"
	"regiondb/layout"
	"regiondb/memcache"
	"regiondb/scan"
	"regiondb/storefile"
)

// Store owns one column family's mutable memcache and its immutable,
// sequence-id-ordered store files (spec 3: "Store: a column family's
// memcache and a map sequence-id → store file").
type Store struct {
	fs                    layout.FileSystem
	table, region, family string
	opts                  *Options
	blockCache            *cache.BlockCache

	mem *memcache.Memcache

	mu       sync.RWMutex // guards files/refFiles/filter/nextFileID
	files    map[uint64]storefile.File
	refFiles map[uint64]string // fileID -> parent encoded region name; "" means concrete (not a reference)
	filter   bloom.Filter
	nextFileID uint64

	compacting   atomic.Bool
	flushing     atomic.Bool
	newScannerMu sync.RWMutex // write held during compaction commit (spec 5)
	activeScan   int32
}

// Open opens (or creates) a Store for table/region/family, rebuilding its
// file set from the filesystem's mapfiles/info directories.
func Open(fs layout.FileSystem, table, region, family string, opts *Options) (*Store, error) {
	s := &Store{
		fs:       fs,
		table:    table,
		region:   region,
		family:   family,
		opts:     opts,
		mem:      memcache.New(),
		files:    map[uint64]storefile.File{},
		refFiles: map[uint64]string{},
	}
	if opts.BlockCacheEntries > 0 {
		s.blockCache = cache.New(opts.BlockCacheEntries)
	}

	if err := fs.MkdirAll(layout.MapfilesDir(table, region, family)); err != nil {
		return nil, err
	}
	if err := fs.MkdirAll(layout.InfoDir(table, region, family)); err != nil {
		return nil, err
	}

	names, err := fs.ReadDir(layout.MapfilesDir(table, region, family))
	if err != nil {
		return nil, err
	}
	for _, name := range names {
		fileID, parentRegion, _, err := layout.ParseFileName(name)
		if err != nil {
			return nil, errors.Wrapf(err, "opening store %s/%s/%s", table, region, family)
		}
		dataPath := layout.DataFilePath(table, region, family, fileID, parentRegion)
		infoPath := layout.InfoFilePath(table, region, family, fileID, parentRegion)
		f, err := storefile.Open(fs, table, region, family, dataPath, infoPath, fileID, parentRegion, s.blockCache)
		if err != nil {
			return nil, errors.Wrapf(err, "opening store file %s", name)
		}
		s.files[fileID] = f
		s.refFiles[fileID] = parentRegion
		if fileID >= s.nextFileID {
			s.nextFileID = fileID + 1
		}
	}

	if ok, _ := fs.Exists(layout.FilterFile(table, region, family)); ok {
		raw, err := fs.ReadFile(layout.FilterFile(table, region, family))
		if err != nil {
			return nil, errors.Wrapf(err, "reading filter sidecar for %s/%s/%s", table, region, family)
		}
		filter, err := bloom.Decode(raw)
		if err != nil {
			return nil, errors.Wrapf(err, "decoding filter sidecar for %s/%s/%s", table, region, family)
		}
		s.filter = filter
	}
	return s, nil
}

func (s *Store) Family() string { return s.family }

// Add delegates to the memcache (spec 4.5 add).
func (s *Store) Add(k key.Key, v key.Value) {
	s.mem.Add(k, v)
}

// orderedFiles returns the store's files sorted newest (largest sequence
// id / fileID) first, the order every read path needs (spec 4.5:
// "memcache first, then newest store file backwards").
func (s *Store) orderedFiles() []storefile.File {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]uint64, 0, len(s.files))
	for id := range s.files {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] > ids[j] })
	out := make([]storefile.File, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.files[id])
	}
	return out
}

// Get returns up to numVersions newest values row-column-equal to k,
// memcache first then files newest to oldest, honoring tombstone
// occlusion across tiers (spec 4.5 get).
func (s *Store) Get(k key.Key, numVersions int) []key.Value {
	var out []key.Value
	out = append(out, s.mem.Get(k, numVersions)...)
	if len(out) >= numVersions {
		return out[:numVersions]
	}

	s.mu.RLock()
	filter := s.filter
	s.mu.RUnlock()
	if filter != nil && !filter.MayContainKey(k.Row) {
		return out
	}

	deletes := uint64(0)
	hasDelete := false
	// The memcache's own newest tombstone (if any) still occludes file
	// versions older than it; recover it via GetFull's side channel on a
	// throwaway scan of the whole row, keeping only this column's entry.
	tmpDeletes := map[string]uint64{}
	tmpResults := map[string]key.Value{}
	s.mem.GetFull(key.New(k.Row, nil, key.MaxTimestamp), tmpDeletes, tmpResults)
	if ts, ok := tmpDeletes[string(k.Column)]; ok {
		deletes, hasDelete = ts, true
	}

	for _, f := range s.orderedFiles() {
		if len(out) >= numVersions {
			break
		}
		search := key.New(k.Row, k.Column, k.Timestamp)
		found, _, ok := f.GetClosest(search, false)
		if !ok || !bytes.Equal(found.Row, k.Row) || !bytes.Equal(found.Column, k.Column) {
			continue
		}
		c := f.Cursor(found)
		for c.Valid() && len(out) < numVersions {
			ck := c.Key()
			if !bytes.Equal(ck.Row, k.Row) || !bytes.Equal(ck.Column, k.Column) {
				break
			}
			v := c.Value()
			if v.IsTombstone() {
				if !hasDelete || ck.Timestamp > deletes {
					deletes, hasDelete = ck.Timestamp, true
				}
				c.Next()
				continue
			}
			if hasDelete && ck.Timestamp <= deletes {
				c.Next()
				continue
			}
			out = append(out, v)
			c.Next()
		}
	}
	return out
}

// GetFull populates results with the newest non-tombstone value per
// column at row k.Row with timestamp <= k.Timestamp, memcache first then
// files newest to oldest (spec 4.5 getFull).
func (s *Store) GetFull(k key.Key, results map[string]key.Value) {
	deletes := map[string]uint64{}
	s.mem.GetFull(k, deletes, results)

	for _, f := range s.orderedFiles() {
		search := key.New(k.Row, nil, k.Timestamp)
		c := f.Cursor(search)
		for c.Valid() {
			ck := c.Key()
			if !bytes.Equal(ck.Row, k.Row) {
				break
			}
			col := string(ck.Column)
			if ck.Timestamp > k.Timestamp {
				c.Next()
				continue
			}
			v := c.Value()
			if v.IsTombstone() {
				if ts, ok := deletes[col]; !ok || ck.Timestamp > ts {
					deletes[col] = ck.Timestamp
				}
				c.Next()
				continue
			}
			if ts, ok := deletes[col]; ok && ts >= ck.Timestamp {
				c.Next()
				continue
			}
			if _, present := results[col]; !present {
				results[col] = v
			}
			c.Next()
		}
	}
}

// GetKeys is symmetrical to Get but returns keys rather than values
// (spec 4.5 getKeys).
func (s *Store) GetKeys(origin key.Key, versions int) []key.Key {
	out := s.mem.GetKeysBefore(origin, versions)
	if len(out) >= versions {
		return out[:versions]
	}
	for _, f := range s.orderedFiles() {
		if len(out) >= versions {
			break
		}
		found, _, ok := f.GetClosest(origin, false)
		if !ok {
			continue
		}
		c := f.Cursor(found)
		for c.Valid() && len(out) < versions {
			ck := c.Key()
			if !bytes.Equal(ck.Row, origin.Row) {
				break
			}
			if len(origin.Column) > 0 && !bytes.Equal(ck.Column, origin.Column) {
				break
			}
			if !c.Value().IsTombstone() {
				out = append(out, ck)
			}
			c.Next()
		}
	}
	return out
}

// GetRowKeyAtOrBefore implements the closest-row-at-or-before protocol
// (spec 4.4) over this store's files (oldest to newest) and then its
// memcache.
func (s *Store) GetRowKeyAtOrBefore(row []byte) ([]byte, bool) {
	files := s.orderedFiles()
	sources := make([]func(key.Key) key.Cursor, 0, len(files)+1)
	for i := len(files) - 1; i >= 0; i-- { // oldest first
		f := files[i]
		sources = append(sources, f.Cursor)
	}
	sources = append(sources, s.mem.Cursor)
	return closestRowAtOrBefore(sources, row)
}

// SnapshotMemcache delegates to the memcache (spec 4.5 snapshotMemcache).
func (s *Store) SnapshotMemcache() {
	s.mem.Snapshot()
}

// NeedsCompaction reports whether the file count meets the configured
// threshold, or any file is a reference (spec 4.5 needsCompaction).
func (s *Store) NeedsCompaction() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.files) >= s.opts.CompactionThreshold {
		return true
	}
	for _, parent := range s.refFiles {
		if parent != "" {
			return true
		}
	}
	return false
}

// hasReference reports whether any currently registered file is a
// reference, regardless of file count — a store holding a single
// reference file still needs compacting so the reference can be replaced
// with a materialised file and the parent eventually deleted (spec 8
// "reference lifetime").
func (s *Store) hasReference() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, parent := range s.refFiles {
		if parent != "" {
			return true
		}
	}
	return false
}

// Size reports the largest file's size and its midKey, and whether the
// store is splitable (false if any file is a reference, spec 4.5 size).
func (s *Store) Size() (largest int64, midKey []byte, splitable bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	splitable = true
	for id, f := range s.files {
		if s.refFiles[id] != "" {
			splitable = false
		}
		if sz := f.Size(); sz > largest {
			largest = sz
			midKey = f.MidKey()
		}
	}
	return largest, midKey, splitable
}

// GetScanner constructs a per-store scanner (spec 4.5 getScanner, 4.8).
func (s *Store) GetScanner(timestamp uint64, matchers *key.MatcherSet, firstRow []byte) *scan.StoreScanner {
	atomic.AddInt32(&s.activeScan, 1)
	s.newScannerMu.RLock()
	defer s.newScannerMu.RUnlock()

	from := key.New(firstRow, nil, key.MaxTimestamp)
	cursors := []key.Cursor{s.mem.ScannerCursor(firstRow)}
	for _, f := range s.orderedFiles() {
		cursors = append(cursors, f.Cursor(from))
	}
	return scan.NewStoreScanner(cursors, timestamp, matchers)
}

// ReleaseScanner marks a scanner constructed by GetScanner as finished,
// allowing ActiveScanners to reach zero for compaction/close quiescence
// (spec 5).
func (s *Store) ReleaseScanner() {
	atomic.AddInt32(&s.activeScan, -1)
}

func (s *Store) ActiveScanners() int32 { return atomic.LoadInt32(&s.activeScan) }

// FileRef identifies one of this store's currently registered files by the
// identity its file name encodes (spec 6), for a caller (Region.Close)
// that needs to hand the file set to a split or merge for reuse without
// reaching into Store internals.
type FileRef struct {
	FileID       uint64
	ParentRegion string // "" for a concrete file, else the reference's parent region
}

// FileRefs lists every file currently registered with this store.
func (s *Store) FileRefs() []FileRef {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]FileRef, 0, len(s.files))
	for id := range s.files {
		out = append(out, FileRef{FileID: id, ParentRegion: s.refFiles[id]})
	}
	return out
}

// Close drops every open file reference; the Store itself becomes unusable
// afterwards (spec 4.6: a region closes each of its stores on close/split).
func (s *Store) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.files = map[uint64]storefile.File{}
	s.refFiles = map[uint64]string{}
}

func (s *Store) logf(actor string, err error) error { return xlog.Errorf(actor, err) }
