package regiondb

import (
	"sync/atomic"
	"time"

	"github.com/pkg/errors"

	"regiondb/errs"
	"regiondb/internal/xlog"
)

// StoreFileRef identifies one still-live store file a closed region hands
// back to its caller for reuse (spec 4.6 close: "Return the list of store
// files for reuse (by split or merge)").
type StoreFileRef struct {
	Family       string
	FileID       uint64
	ParentRegion string
}

func (r *Region) wakeFrequency() time.Duration {
	return time.Duration(r.opts.RowLockWakeFrequencyMillis) * time.Millisecond
}

// Close implements spec 4.6 close: disable compactions/flushes, wait for
// any in-flight one to finish, acquire the region write lock (blocking new
// scanners and row locks), wait for scanner/row-lock quiescence, then
// (unless aborting) snapshot+flush once more, close all stores, and mark
// closed. abort skips the final flush — used when the region is being
// torn down after an unrecoverable error rather than a clean shutdown or
// split/merge (spec 7: dropped-snapshot makes the region "effectively
// dead to writes", so there is nothing safe to flush in that case).
func (r *Region) Close(abort bool) ([]StoreFileRef, error) {
	r.splitMu.Lock()
	defer r.splitMu.Unlock()

	if r.closed.Load() {
		return nil, nil // spec 7: close swallows already-closed
	}

	// Taking both flags (and never releasing them) waits out an in-flight
	// flush or compaction and makes every later FlushCache/CompactStores
	// call fail its CAS guard.
	for !r.flushing.CompareAndSwap(false, true) {
		time.Sleep(r.wakeFrequency())
	}
	for !r.compacting.CompareAndSwap(false, true) {
		time.Sleep(r.wakeFrequency())
	}

	r.regionMu.Lock()
	defer r.regionMu.Unlock()

	for atomic.LoadInt32(&r.activeScan) > 0 {
		time.Sleep(r.wakeFrequency())
	}
	r.rows.Drain(r.wakeFrequency())

	r.closed.Store(true)

	if !abort {
		if err := r.flushLocked(); err != nil {
			return nil, err
		}
	}

	var refs []StoreFileRef
	for fam, s := range r.stores {
		for _, fr := range s.FileRefs() {
			refs = append(refs, StoreFileRef{Family: fam, FileID: fr.FileID, ParentRegion: fr.ParentRegion})
		}
		s.Close()
	}
	if err := r.wal.Close(); err != nil {
		return refs, xlog.Errorf("close", err)
	}
	return refs, nil
}

// flushLocked performs spec 4.6 flushcache's body; FlushCache (region.go)
// wraps it with the flushing CAS guard for the ordinary background-flush
// path, while Close calls it directly since close already holds the
// region write lock and has already ensured no other flush is in flight.
func (r *Region) flushLocked() error {
	seq := r.wal.NextSequence()

	r.updateMu.Lock()
	for _, s := range r.stores {
		s.SnapshotMemcache()
	}
	atomic.StoreInt64(&r.memSize, 0)
	r.updateMu.Unlock()

	if err := r.wal.AppendFlushStart(r.info.Name, r.info.Table, seq); err != nil {
		return xlog.Errorf("close", err)
	}
	for fam, s := range r.stores {
		if ok, err := s.FlushCache(seq); err != nil {
			return xlog.Errorf("close", errors.Wrapf(errs.ErrDroppedSnapshot, "family %s: %v", fam, err))
		} else if ok {
			r.stats.recordFlush()
		}
	}
	if err := r.wal.AppendFlushComplete(r.info.Name, r.info.Table, seq); err != nil {
		return xlog.Errorf("close", err)
	}
	return nil
}
