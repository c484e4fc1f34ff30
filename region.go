package regiondb

import (
	"bytes"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"

	"regiondb/errs"
	"regiondb/internal/xlog"
	"regiondb/key"
	"regiondb/layout"
	"regiondb/rowlock"
	"regiondb/scan"
	"regiondb/store"
	"regiondb/wal"
)

// Info is a region's descriptor (spec 3: "region-info{table, start-key
// inclusive, end-key exclusive or unbounded}"). An empty EndKey means
// unbounded, matching spec 6's "empty bytes represent unbounded".
type Info struct {
	Table       string
	Name        string // encoded region name, the directory-safe identifier
	StartKey    []byte
	EndKey      []byte
	ParentNames []string // non-empty only for a just-split or just-merged region
}

func (ri Info) contains(row []byte) bool {
	if bytes.Compare(row, ri.StartKey) < 0 {
		return false
	}
	if len(ri.EndKey) > 0 && bytes.Compare(row, ri.EndKey) >= 0 {
		return false
	}
	return true
}

// FlushListener is notified when a region's aggregate memcache size
// crosses the configured flush threshold (spec 4.6 batchUpdate: "notify
// the flush listener"). The caller (a background flush scheduler, out of
// this core's scope per spec 1) decides when to actually call FlushCache.
type FlushListener interface {
	NotifyFlushNeeded(region *Region)
}

// SplitListener receives the descriptors of the two child regions a split
// produces. SplitRegion has already opened each child once as a sanity
// check and closed it again, so the caller reopens them to serve them.
type SplitListener interface {
	NotifySplit(a, b Info)
}

// Region owns one Store per column family plus the row-lock registry and
// its own WAL handle (not shared with other regions). Grounded on the teacher's DB (db.go):
// the same role (coordinate memtable/WAL/flush across one partition) one
// level down, generalised from one global table to one row-range with one
// Store per family.
type Region struct {
	fs   layout.FileSystem
	info Info
	opts *Options

	stores map[string]*store.Store
	wal    *wal.WAL

	rows *rowlock.Registry

	splitMu  sync.Mutex // spec 5: split lock, held for the entirety of a split or close
	updateMu sync.Mutex // spec 5: update lock, held across WAL append + memcache inserts

	regionMu sync.RWMutex // spec 5: region read/write lock

	flushing   atomic.Bool
	compacting atomic.Bool

	activeScan int32 // spec 5: activeScannerCount

	memSize int64 // aggregate memcache size across families, bytes

	closed atomic.Bool

	flushListener FlushListener
	splitListener SplitListener

	stats *Stats
}

// Open opens a region: one Store per family, a WAL of its own at the
// region's old-log path (replayed if that file is present), and a fresh
// row-lock registry.
func Open(fs layout.FileSystem, info Info, families []string, opts *Options, fl FlushListener, sl SplitListener) (*Region, error) {
	r := &Region{
		fs:            fs,
		info:          info,
		opts:          opts,
		stores:        map[string]*store.Store{},
		rows:          rowlock.New(),
		flushListener: fl,
		splitListener: sl,
		stats:         newStats(),
	}

	for _, fam := range families {
		s, err := store.Open(fs, info.Table, info.Name, fam, opts.storeOptionsFor(fam))
		if err != nil {
			return nil, errors.Wrapf(err, "opening store for family %s in region %s", fam, info.Name)
		}
		r.stores[fam] = s
	}

	walPath := layout.OldLogFile(info.Table, info.Name)
	w, err := wal.Open(fs, walPath, opts.SyncOnEveryAppend)
	if err != nil {
		return nil, errors.Wrapf(err, "opening wal for region %s", info.Name)
	}
	r.wal = w

	if err := r.replay(walPath); err != nil {
		return nil, err
	}

	return r, nil
}

// replay re-applies WAL edit records to the memcaches in log order. An
// edit read after a flush-complete marker whose sequence id is at or below
// that marker's is skipped; edits that precede the marker in the log are
// re-applied before the marker is read, so edits a later marker covers
// land in the memcache again. A region's flushcache stamps every family with the
// same sequence id (spec 4.6: "flush each family...stamped with that
// id"), so one scalar durability cutoff covers the whole region rather
// than one per family.
func (r *Region) replay(path string) error {
	var durable uint64
	haveDurable := false
	var maxSeq uint64
	err := wal.Replay(r.fs, path, func(rec wal.Record) error {
		if rec.Sequence > maxSeq {
			maxSeq = rec.Sequence
		}
		switch rec.Type {
		case wal.RecordFlushComplete:
			durable, haveDurable = rec.Sequence, true
			return nil
		case wal.RecordFlushStart:
			return nil
		case wal.RecordEdit:
			if haveDurable && rec.Sequence <= durable {
				return nil
			}
			s, ok := r.stores[familyOfColumn(rec.Column)]
			if !ok {
				return nil
			}
			v := key.Value{Bytes: rec.Value, Delete: rec.Delete}
			s.Add(key.New(rec.Row, rec.Column, rec.Timestamp), v)
			return nil
		default:
			return nil
		}
	})
	if err != nil {
		return errors.Wrapf(err, "replaying wal for region %s", r.info.Name)
	}
	r.wal.SeedSequence(maxSeq)
	return nil
}

func familyOfColumn(column []byte) string {
	fam, _ := key.SplitColumn(column)
	return string(fam)
}

func (r *Region) checkOpen() error {
	if r.closed.Load() {
		return errs.ErrRegionClosed
	}
	return nil
}

func (r *Region) checkRange(row []byte) error {
	if !r.info.contains(row) {
		return errs.ErrRowOutOfRange
	}
	return nil
}

func (r *Region) storeFor(family string) (*store.Store, error) {
	s, ok := r.stores[family]
	if !ok {
		return nil, errs.ErrUnknownFamily
	}
	return s, nil
}

// Get implements spec 4.6 get: range-check the row, family-check the
// column, delegate to the family store.
func (r *Region) Get(row, column []byte, timestamp uint64, numVersions int) ([]key.Value, error) {
	if err := r.checkOpen(); err != nil {
		return nil, err
	}
	if err := r.checkRange(row); err != nil {
		return nil, err
	}
	fam, _ := key.SplitColumn(column)
	s, err := r.storeFor(string(fam))
	if err != nil {
		return nil, err
	}
	r.regionMu.RLock()
	defer r.regionMu.RUnlock()
	return s.Get(key.New(row, column, timestamp), numVersions), nil
}

// GetFull implements spec 4.6 getFull: row-locked, accumulate getFull
// across every family.
func (r *Region) GetFull(row []byte, timestamp uint64) (map[string]key.Value, error) {
	if err := r.checkOpen(); err != nil {
		return nil, err
	}
	if err := r.checkRange(row); err != nil {
		return nil, err
	}

	r.regionMu.RLock()
	defer r.regionMu.RUnlock()

	tok := r.rows.Lock(row)
	defer r.rows.Unlock(tok)

	results := map[string]key.Value{}
	k := key.New(row, nil, timestamp)
	for _, s := range r.stores {
		s.GetFull(k, results)
	}
	return results, nil
}

// GetClosestRowBefore implements spec 4.6 getClosestRowBefore: read-locked,
// query each family, pick the largest closest key across families, then
// re-query every family (not just the winner) with that key via getFull
// (SPEC_FULL 12's "cross-family re-query" supplement).
func (r *Region) GetClosestRowBefore(row []byte) (foundRow []byte, results map[string]key.Value, err error) {
	if err := r.checkOpen(); err != nil {
		return nil, nil, err
	}

	r.regionMu.RLock()
	defer r.regionMu.RUnlock()

	var best []byte
	have := false
	for _, s := range r.stores {
		candidate, ok := s.GetRowKeyAtOrBefore(row)
		if !ok {
			continue
		}
		if !have || bytes.Compare(candidate, best) > 0 {
			best, have = candidate, true
		}
	}
	if !have {
		return nil, nil, nil
	}

	results = map[string]key.Value{}
	k := key.New(best, nil, key.MaxTimestamp)
	for _, s := range r.stores {
		s.GetFull(k, results)
	}
	return best, results, nil
}

// waitForMemroom blocks (without holding any region lock) until the
// aggregate memcache size is below the blocking threshold, giving a
// pending flush time to drain it (spec 4.6 batchUpdate: "wait if the
// aggregate memcache size >= blocking threshold").
func (r *Region) waitForMemroom() {
	for atomic.LoadInt64(&r.memSize) >= r.opts.MemstoreFlushSize {
		time.Sleep(time.Duration(r.opts.RowLockWakeFrequencyMillis) * time.Millisecond)
		if r.closed.Load() {
			return
		}
	}
}

// BatchUpdate implements spec 4.6 batchUpdate. All ops must share the same
// row (a region row lock covers one row); a batch spanning multiple rows
// is rejected the same way the teacher's sendToWriteCh rejects an
// oversized request, via a returned error rather than silently splitting
// it, since spec 4.6 describes batchUpdate as single-row ("acquire row
// lock" singular).
func (r *Region) BatchUpdate(timestamp uint64, batch Batch) error {
	if err := r.checkOpen(); err != nil {
		return err
	}
	if len(batch.Ops) == 0 {
		return nil
	}
	row := batch.Ops[0].Row
	for _, op := range batch.Ops {
		if !bytes.Equal(op.Row, row) {
			return errors.Errorf("batchUpdate: all ops must share one row, got %q and %q", row, op.Row)
		}
	}
	if err := r.checkRange(row); err != nil {
		return err
	}

	r.waitForMemroom()

	r.regionMu.RLock()
	defer r.regionMu.RUnlock()
	if err := r.checkOpen(); err != nil {
		return err
	}

	tok := r.rows.Lock(row)
	defer func() {
		if r.rows.Valid(tok) {
			r.rows.Unlock(tok)
		}
	}()

	seq := r.wal.NextSequence()

	re := newRowEdits(row)
	for _, op := range batch.Ops {
		col := key.MakeColumn([]byte(op.Family), op.Qualifier)
		if _, err := r.storeFor(op.Family); err != nil {
			return err
		}
		if op.Delete && timestamp == key.MaxTimestamp {
			re.lateDel[op.Family] = append(re.lateDel[op.Family], op.Qualifier)
			continue
		}
		v := key.Value{Bytes: op.Value, Delete: op.Delete}
		re.byFam[op.Family] = append(re.byFam[op.Family], key.Edit{Key: key.New(row, col, timestamp), Value: v})
	}

	var addedSize int64
	var appendErr error
	func() {
		r.updateMu.Lock()
		defer r.updateMu.Unlock()

		if !r.rows.Valid(tok) {
			return
		}

		records := make([]wal.Record, 0, len(batch.Ops))
		for _, edits := range re.byFam {
			for _, e := range edits {
				records = append(records, wal.Record{
					Type: wal.RecordEdit, Region: r.info.Name, Table: r.info.Table,
					Sequence: seq, Row: e.Key.Row, Column: e.Key.Column,
					Timestamp: e.Key.Timestamp, Value: e.Value.Bytes, Delete: e.Value.Delete,
				})
			}
		}
		if err := r.wal.Append(records); err != nil {
			appendErr = xlog.Errorf("batchUpdate", err)
			return
		}

		for fam, edits := range re.byFam {
			s := r.stores[fam]
			for _, e := range edits {
				s.Add(e.Key, e.Value)
				addedSize += int64(len(e.Key.Row) + len(e.Key.Column) + len(e.Value.Bytes) + 16)
			}
		}
	}()

	if appendErr != nil {
		return appendErr
	}
	if !r.rows.Valid(tok) {
		return errs.ErrRowLockExpired
	}

	newSize := atomic.AddInt64(&r.memSize, addedSize)
	r.stats.recordEntry(int64(len(batch.Ops)))
	if newSize >= r.opts.FlushSize && r.flushListener != nil {
		r.flushListener.NotifyFlushNeeded(r)
	}

	// Delete-at-LATEST post-processing (spec 4.6): for each such column,
	// read the current newest key and append a same-timestamp tombstone.
	for fam, quals := range re.lateDel {
		s := r.stores[fam]
		for _, q := range quals {
			col := key.MakeColumn([]byte(fam), q)
			keys := s.GetKeys(key.New(row, col, key.MaxTimestamp), 1)
			if len(keys) == 0 {
				continue
			}
			latest := keys[0]
			tomb := key.Edit{Key: key.New(row, col, latest.Timestamp), Value: key.Tombstone()}
			r.updateMu.Lock()
			err := r.wal.Append([]wal.Record{{
				Type: wal.RecordEdit, Region: r.info.Name, Table: r.info.Table,
				Sequence: seq, Row: row, Column: col, Timestamp: latest.Timestamp, Delete: true,
			}})
			if err == nil {
				s.Add(tomb.Key, tomb.Value)
			}
			r.updateMu.Unlock()
			if err != nil {
				return xlog.Errorf("batchUpdate", err)
			}
		}
	}

	return nil
}

// deleteAll implements spec 4.6 deleteAll: read matching keys via the
// store(s), append tombstones via the WAL+memcache path. If column is
// nil, every family is targeted (row-wide delete); otherwise only the
// column's family. Keys are read in bounded-size chunks (SPEC_FULL 12's
// "batched row count" supplement) rather than materialising the whole row
// at once.
func (r *Region) DeleteAll(row, column []byte, ts uint64) error {
	if column != nil {
		fam, _ := key.SplitColumn(column)
		return r.deleteFromStores(row, ts, map[string][]byte{string(fam): column})
	}
	targets := map[string][]byte{}
	for fam := range r.stores {
		targets[fam] = nil
	}
	return r.deleteFromStores(row, ts, targets)
}

// DeleteFamily implements spec 4.6 deleteFamily: tombstone every column
// currently present for row in family.
func (r *Region) DeleteFamily(row []byte, family string, ts uint64) error {
	return r.deleteFromStores(row, ts, map[string][]byte{family: nil})
}

const deleteChunkSize = 256

func (r *Region) deleteFromStores(row []byte, ts uint64, targets map[string][]byte) error {
	if err := r.checkOpen(); err != nil {
		return err
	}
	if err := r.checkRange(row); err != nil {
		return err
	}

	r.regionMu.RLock()
	defer r.regionMu.RUnlock()

	tok := r.rows.Lock(row)
	defer r.rows.Unlock(tok)

	for fam, column := range targets {
		s, err := r.storeFor(fam)
		if err != nil {
			return err
		}
		origin := key.New(row, column, key.MaxTimestamp)
		seenCols := map[string]bool{}
		for {
			keys := s.GetKeys(origin, deleteChunkSize)
			if len(keys) == 0 {
				break
			}
			var toTombstone []key.Key
			for _, k := range keys {
				col := string(k.Column)
				if seenCols[col] || k.Timestamp > ts {
					continue
				}
				seenCols[col] = true
				toTombstone = append(toTombstone, key.New(k.Row, k.Column, ts))
			}
			if len(toTombstone) > 0 {
				if !r.rows.Valid(tok) {
					return errs.ErrRowLockExpired
				}
				if err := r.appendTombstones(toTombstone, s); err != nil {
					return err
				}
			}
			if len(keys) < deleteChunkSize {
				break
			}
			last := keys[len(keys)-1]
			if last.Timestamp == 0 {
				// No smaller timestamp exists for this column; advance past
				// it by seeking to the smallest key of the next column
				// instead of underflowing (which would re-seek to the same
				// chunk forever).
				nextCol := append(append([]byte{}, last.Column...), 0x00)
				origin = key.New(last.Row, nextCol, key.MaxTimestamp)
			} else {
				origin = key.New(last.Row, last.Column, last.Timestamp-1)
			}
		}
	}
	return nil
}

// appendTombstones writes one tombstone per distinct (row, column) at
// timestamp ts under a single WAL sequence id; compaction's <= range
// occlusion (store/compact.go) then treats this single tombstone as
// covering every existing version at or before ts, so deleteAll/
// deleteFamily need not write one tombstone per existing version.
func (r *Region) appendTombstones(keys []key.Key, s *store.Store) error {
	r.updateMu.Lock()
	defer r.updateMu.Unlock()

	seq := r.wal.NextSequence()
	records := make([]wal.Record, 0, len(keys))
	for _, k := range keys {
		records = append(records, wal.Record{
			Type: wal.RecordEdit, Region: r.info.Name, Table: r.info.Table,
			Sequence: seq, Row: k.Row, Column: k.Column, Timestamp: k.Timestamp, Delete: true,
		})
	}
	if err := r.wal.Append(records); err != nil {
		return xlog.Errorf("delete", err)
	}
	var addedSize int64
	for _, k := range keys {
		s.Add(k, key.Tombstone())
		addedSize += int64(len(k.Row) + len(k.Column) + 16)
	}

	newSize := atomic.AddInt64(&r.memSize, addedSize)
	if newSize >= r.opts.FlushSize && r.flushListener != nil {
		r.flushListener.NotifyFlushNeeded(r)
	}
	return nil
}

// GetScanner implements spec 4.6 getScanner / 4.8: collect the families
// covering columns, build one per-family store scanner, wrap in a region
// scanner.
func (r *Region) GetScanner(columns [][]byte, firstRow []byte, timestamp uint64, filter scan.RowFilter) (*scan.RegionScanner, error) {
	if err := r.checkOpen(); err != nil {
		return nil, err
	}

	matchers, err := key.NewMatcherSet(columns)
	if err != nil {
		return nil, errs.ErrInvalidColumnMatcher
	}

	r.regionMu.RLock()
	defer r.regionMu.RUnlock()

	families := matchers.Families()
	var famNames []string
	if len(families) == 0 {
		for fam := range r.stores {
			famNames = append(famNames, fam)
		}
	} else {
		for _, f := range families {
			famNames = append(famNames, string(f))
		}
	}

	atomic.AddInt32(&r.activeScan, 1)

	scanners := make([]*scan.StoreScanner, 0, len(famNames))
	for _, fam := range famNames {
		s, ok := r.stores[fam]
		if !ok {
			continue
		}
		scanners = append(scanners, s.GetScanner(timestamp, matchers, firstRow))
	}
	return scan.NewRegionScanner(scanners, filter), nil
}

// ReleaseScanner must be called once the caller is done with a scanner
// returned by GetScanner, releasing the families' store-level scanner
// refs and the region's activeScannerCount (spec 5).
func (r *Region) ReleaseScanner(families []string) {
	for _, fam := range families {
		if s, ok := r.stores[fam]; ok {
			s.ReleaseScanner()
		}
	}
	atomic.AddInt32(&r.activeScan, -1)
}

// FlushCache implements spec 4.6 flushcache: snapshot all families'
// memcaches under the update lock, reset the region's accumulated
// memcache-size, open a WAL cache-flush marker with a sequence id, flush
// each family (each writes its own file stamped with that id), append a
// flush-complete record, notify writers blocked on memory pressure.
func (r *Region) FlushCache() error {
	if !r.flushing.CompareAndSwap(false, true) {
		return errs.ErrAlreadyFlushing
	}
	defer r.flushing.Store(false)

	if err := r.checkOpen(); err != nil {
		return err
	}

	r.regionMu.RLock()
	defer r.regionMu.RUnlock()

	return r.flushLocked()
}

// CompactStores implements spec 4.6 compactStores: iterate families, skip
// any already compacting, clean the region's compaction scratch dir
// before and after.
func (r *Region) CompactStores() error {
	if !r.compacting.CompareAndSwap(false, true) {
		return errs.ErrAlreadyCompacting
	}
	defer r.compacting.Store(false)

	compactionDir := layout.CompactionDir(r.info.Table, r.info.Name)
	r.fs.RemoveAll(compactionDir)
	defer r.fs.RemoveAll(compactionDir)

	for fam, s := range r.stores {
		if !s.NeedsCompaction() {
			continue
		}
		stats, err := s.Compact()
		if err != nil {
			if errors.Is(err, errs.ErrAlreadyCompacting) {
				continue
			}
			xlog.Errorf("compact", errors.Wrapf(err, "family %s", fam))
			continue
		}
		r.stats.recordCompaction(stats)
	}
	return nil
}

// NeedsSplit implements spec 4.6 needsSplit: true iff the largest family's
// largest file >= MaxFileSize and that family is splitable. The
// "largest family" is chosen by size alone, independent of splitability,
// matching the literal spec wording — a family whose biggest file is huge
// but mid-compaction (a reference present) correctly reports needs=false
// rather than falling through to a smaller, splitable family.
func (r *Region) NeedsSplit() (midKey []byte, family string, needs bool) {
	var largest int64
	var largestSplitable bool
	found := false
	for fam, s := range r.stores {
		sz, mid, splitable := s.Size()
		if !found || sz > largest {
			largest, midKey, family, largestSplitable, found = sz, mid, fam, splitable, true
		}
	}
	if !found {
		return nil, "", false
	}
	return midKey, family, largestSplitable && largest >= r.opts.MaxFileSize
}

// Stats returns a snapshot of the region's counters.
func (r *Region) Stats() Stats { return r.stats.snapshot() }
