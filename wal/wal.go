package wal

import (
	"bufio"
	"io"
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"

	"regiondb/layout"
)

// WAL is the write-ahead log client. Region.Open opens one WAL per region,
// at that region's old-log file; a WAL instance is not shared between
// regions, though every record still names its region in the Region
// field. Sequence ids are drawn from the WAL's single monotonic counter,
// so they impose a total order on the records of one log, as spec 3's
// sequence-id invariants require within a region and spec 5's "update
// lock" ordering guarantee assumes across batches.
type WAL struct {
	mu  sync.Mutex
	fs  layout.FileSystem
	w   layout.WriteSyncer
	seq uint64
	path string
	syncOnEveryAppend bool
}

// Open opens (creating if absent) the WAL file at path with its sequence
// counter at 0. Open does not scan the file itself — callers that need to
// resume the counter call Replay and then SeedSequence with the highest
// sequence id observed.
func Open(fs layout.FileSystem, path string, syncOnEveryAppend bool) (*WAL, error) {
	w, err := fs.AppendWriter(path)
	if err != nil {
		return nil, errors.Wrapf(err, "opening wal %s", path)
	}
	return &WAL{fs: fs, w: w, path: path, syncOnEveryAppend: syncOnEveryAppend}, nil
}

// NextSequence draws the next sequence id without appending a record. Used
// by a region's flush path to mint the sequence id a cache-flush marker
// and the resulting store files will carry (spec 4.6 flushcache).
func (w *WAL) NextSequence() uint64 {
	return atomic.AddUint64(&w.seq, 1)
}

// SeedSequence advances the counter to at least seq, used after replaying
// an existing log at startup so freshly minted sequence ids never collide
// with replayed ones.
func (w *WAL) SeedSequence(seq uint64) {
	for {
		cur := atomic.LoadUint64(&w.seq)
		if seq <= cur {
			return
		}
		if atomic.CompareAndSwapUint64(&w.seq, cur, seq) {
			return
		}
	}
}

// Append writes one batch of edit records under a single sequence id and,
// when the WAL was opened with syncOnEveryAppend, syncs the log before
// returning. Spec 5 requires a whole batchUpdate's edits to
// become visible atomically and carry one sequence id; callers pass the
// same Sequence on every record in the batch. Append is safe for
// concurrent use; each call's bytes land contiguously in the log because
// the write is held under mu.
func (w *WAL) Append(records []Record) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, r := range records {
		if _, err := w.w.Write(Encode(r)); err != nil {
			return errors.Wrap(err, "appending wal record")
		}
	}
	if w.syncOnEveryAppend {
		return errors.Wrap(w.w.Sync(), "syncing wal after append")
	}
	return nil
}

// Sync forces durability of everything appended so far. Callers that batch
// appends without SyncOnEveryAppend call this at the points spec 5 treats
// as durability boundaries (after a batchUpdate, before acknowledging it).
func (w *WAL) Sync() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return errors.Wrap(w.w.Sync(), "syncing wal")
}

// AppendFlushStart writes the cache-flush marker spec 6 defines, recording
// that a flush at sequence is in progress for (region, table).
func (w *WAL) AppendFlushStart(region, table string, sequence uint64) error {
	return w.Append([]Record{{Type: RecordFlushStart, Region: region, Table: table, Sequence: sequence}})
}

// AppendFlushComplete writes the flush-complete marker. Spec 3: once this
// lands, any WAL edit with id <= sequence for this region may be skipped on
// replay.
func (w *WAL) AppendFlushComplete(region, table string, sequence uint64) error {
	return w.Append([]Record{{Type: RecordFlushComplete, Region: region, Table: table, Sequence: sequence}})
}

func (w *WAL) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return errors.Wrap(w.w.Close(), "closing wal")
}

// Replay reads every record in the log at path in append order and invokes
// fn for each. It stops cleanly at end of file; a record that fails its
// checksum (the common shape of a crash mid-append) truncates the replay
// at that point rather than failing it, matching spec 5's crash-consistency
// note that the log's tail may be a partially written record. Replay does
// not itself apply the "skip edits already covered by flush-complete"
// filter (spec 3) — fn is responsible for that, since only it (the region)
// knows what sequence ids are already durable on disk.
func Replay(fsys layout.FileSystem, path string, fn func(Record) error) error {
	exists, err := fsys.Exists(path)
	if err != nil {
		return err
	}
	if !exists {
		return nil
	}
	f, err := fsys.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	r := bufio.NewReader(f)
	for {
		rec, err := Decode(r)
		if err == io.EOF || err == ErrCorruptRecord {
			return nil
		}
		if err != nil {
			return err
		}
		if err := fn(rec); err != nil {
			return err
		}
	}
}
