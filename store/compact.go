package store

import (
	"bytes"
	"time"

	"github.com/pkg/errors"

	"regiondb/bloom"
	"regiondb/errs"
	"regiondb/key"
	"regiondb/layout"
	"regiondb/storefile"
)

// CompactionStats reports a compaction's write amplification (SPEC_FULL
// 12's accounting feature: bytes read vs. written and cells dropped let an
// operator see the reclaimed space without re-reading every file).
type CompactionStats struct {
	BytesRead    int64
	BytesWritten int64
	CellsDropped int
	FilesMerged  int
}

// FlushCache materialises the memcache's snapshot into a new store file
// and registers it, then drops the snapshot (spec 4.5 flushCache). A
// no-op, returning ok=false, if the snapshot is empty (nothing to write).
func (s *Store) FlushCache(sequenceID uint64) (ok bool, err error) {
	if !s.flushing.CompareAndSwap(false, true) {
		return false, errs.ErrAlreadyFlushing
	}
	defer s.flushing.Store(false)

	c := s.mem.Cursor(key.Key{})
	if !c.Valid() {
		s.mem.ClearSnapshot()
		return false, nil
	}

	dataPath := layout.DataFilePath(s.table, s.region, s.family, sequenceID, "")
	infoPath := layout.InfoFilePath(s.table, s.region, s.family, sequenceID, "")

	b, err := storefile.NewBuilder(s.fs, dataPath)
	if err != nil {
		return false, s.logf("flush", err)
	}
	for c.Valid() {
		k, v := c.Key(), c.Value()
		if err := b.Add(k, v); err != nil {
			return false, s.logf("flush", err)
		}
		c.Next()
	}
	if _, err := b.Finish(); err != nil {
		return false, s.logf("flush", err)
	}
	if err := storefile.WriteInfoSidecar(s.fs, infoPath, sequenceID); err != nil {
		return false, s.logf("flush", err)
	}

	f, err := storefile.Open(s.fs, s.table, s.region, s.family, dataPath, infoPath, sequenceID, "", s.blockCache)
	if err != nil {
		return false, s.logf("flush", err)
	}

	s.mu.Lock()
	s.files[sequenceID] = f
	s.refFiles[sequenceID] = ""
	if sequenceID >= s.nextFileID {
		s.nextFileID = sequenceID + 1
	}
	s.mu.Unlock()

	if err := s.rebuildFilter(); err != nil {
		return false, s.logf("flush", err)
	}

	s.mem.ClearSnapshot()
	return true, nil
}

// rebuildFilter builds a fresh family-wide bloom filter covering every row
// across every currently registered store file and persists it to the
// single filter sidecar spec 6 names (.../family/filter/filter). It scans
// every file's keys on each flush/compaction; acceptable here since a
// Store's file count stays small between compactions (spec 4.5's
// compaction threshold keeps it bounded), and correctness requires the
// filter to cover the whole file set — Get treats a filter miss as "absent
// everywhere" and skips the tiered scan entirely, so a filter scoped to
// only the newest file would wrongly hide older files' rows.
func (s *Store) rebuildFilter() error {
	var rowKeys [][]byte
	for _, f := range s.orderedFiles() {
		c := f.CursorAll()
		for c.Valid() {
			rowKeys = append(rowKeys, c.Key().Row)
			c.Next()
		}
	}

	bitsPerKey := bloom.BitsPerKey(len(rowKeys), s.opts.BloomFalsePositive)
	filter := bloom.Build(s.opts.BloomFilterType, rowKeys, bitsPerKey)
	persisted := bloom.Persist(s.opts.BloomFilterType, filter)
	if err := s.fs.MkdirAll(layout.FamilyDir(s.table, s.region, s.family) + "/filter"); err != nil {
		return err
	}
	w, err := s.fs.Create(layout.FilterFile(s.table, s.region, s.family))
	if err != nil {
		return err
	}
	if _, err := w.Write(persisted); err != nil {
		w.Close()
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}

	s.mu.Lock()
	s.filter = filter
	s.mu.Unlock()
	return nil
}

// Compact performs a minor/major compaction: a descending k-way merge of
// every current store file (oldest and newest alike — spec 4.5 treats all
// files as compaction candidates once the threshold is reached) into one
// new file, dropping cells per spec 4.5's three rules: the cell itself is
// a tombstone, the cell is occluded by a tombstone already seen for the
// same (row,column) in this merge, or the cell is beyond maxVersions for
// its (row,column). See the tombstone-occlusion design note in DESIGN.md:
// this uses <= range occlusion (matching the engine's GLOSSARY invariant
// and memcache's existing behavior) rather than the original HStore's
// exact-timestamp-match check.
func (s *Store) Compact() (CompactionStats, error) {
	if !s.compacting.CompareAndSwap(false, true) {
		return CompactionStats{}, errs.ErrAlreadyCompacting
	}
	defer s.compacting.Store(false)

	files := s.orderedFiles() // newest first
	if len(files) < 2 && !s.hasReference() {
		return CompactionStats{}, nil
	}
	if len(files) == 0 {
		return CompactionStats{}, nil
	}

	var stats CompactionStats
	stats.FilesMerged = len(files)
	cursors := make([]key.Cursor, len(files))
	for i, f := range files {
		cursors[i] = f.CursorAll()
		stats.BytesRead += f.Size()
	}
	merged := key.MergeCursors(cursors)

	compactionDir := layout.CompactionDir(s.table, s.region)
	if err := s.fs.MkdirAll(compactionDir); err != nil {
		return stats, s.logf("compact", err)
	}
	scratchPath := compactionDir + "/" + s.family + ".compacting"
	b, err := storefile.NewBuilder(s.fs, scratchPath)
	if err != nil {
		return stats, s.logf("compact", err)
	}

	var lastRow, lastColumn []byte
	haveLast := false
	timesSeen := 0
	maxTombstone := uint64(0)
	haveTombstone := false

	for merged.Valid() {
		k, v := merged.Key(), merged.Value()
		sameCell := haveLast && bytes.Equal(k.Row, lastRow) && bytes.Equal(k.Column, lastColumn)
		if !sameCell {
			lastRow = append(lastRow[:0:0], k.Row...)
			lastColumn = append(lastColumn[:0:0], k.Column...)
			haveLast = true
			timesSeen = 0
			haveTombstone = false
			maxTombstone = 0
		}
		timesSeen++

		drop := false
		switch {
		case v.IsTombstone():
			if !haveTombstone || k.Timestamp > maxTombstone {
				maxTombstone, haveTombstone = k.Timestamp, true
			}
			drop = true
		case haveTombstone && k.Timestamp <= maxTombstone:
			drop = true
		case s.opts.MaxVersions > 0 && timesSeen > s.opts.MaxVersions:
			drop = true
		}

		if drop {
			stats.CellsDropped++
		} else {
			if err := b.Add(k, v); err != nil {
				return stats, s.logf("compact", err)
			}
		}
		merged.Next()
	}

	if _, err := b.Finish(); err != nil {
		return stats, s.logf("compact", err)
	}

	if err := s.commitCompaction(scratchPath, files, &stats); err != nil {
		return stats, err
	}
	if err := s.rebuildFilter(); err != nil {
		return stats, s.logf("compact", err)
	}
	return stats, nil
}

// commitCompaction performs spec 4.5's compaction commit critical
// section: quiesce active scanners, hold the store write lock while the
// new file replaces the merged set, then release. newScannerMu is held
// write-side only for this section, so GetScanner (an RLock) blocks for
// its short duration rather than for the whole merge above.
func (s *Store) commitCompaction(scratchPath string, replaced []storefile.File, stats *CompactionStats) error {
	for s.ActiveScanners() > 0 {
		// Spec 5: compaction commit waits for outstanding scanners to
		// finish before swapping the file set under them.
		time.Sleep(time.Millisecond)
	}

	s.newScannerMu.Lock()
	defer s.newScannerMu.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()

	newID := s.nextFileID
	s.nextFileID++
	dataPath := layout.DataFilePath(s.table, s.region, s.family, newID, "")
	infoPath := layout.InfoFilePath(s.table, s.region, s.family, newID, "")

	if err := s.fs.Rename(scratchPath, dataPath); err != nil {
		return s.logf("compact", errors.Wrapf(err, "committing compacted file"))
	}

	maxSeq := uint64(0)
	for _, f := range replaced {
		if seq := f.MaxSequence(); seq > maxSeq {
			maxSeq = seq
		}
	}
	if err := storefile.WriteInfoSidecar(s.fs, infoPath, maxSeq); err != nil {
		return s.logf("compact", err)
	}

	f, err := storefile.Open(s.fs, s.table, s.region, s.family, dataPath, infoPath, newID, "", s.blockCache)
	if err != nil {
		return s.logf("compact", err)
	}
	stats.BytesWritten = f.Size()

	for id, old := range s.files {
		replacedHere := false
		for _, r := range replaced {
			if old == r {
				replacedHere = true
				break
			}
		}
		if !replacedHere {
			continue
		}
		isRef := s.refFiles[id] != ""
		delete(s.files, id)
		delete(s.refFiles, id)
		if !isRef {
			s.fs.Remove(layout.DataFilePath(s.table, s.region, s.family, id, ""))
			s.fs.Remove(layout.InfoFilePath(s.table, s.region, s.family, id, ""))
		}
	}
	s.files[newID] = f
	s.refFiles[newID] = ""
	return nil
}
