package storefile

import (
	"encoding/binary"

	"github.com/pkg/errors"

	"regiondb/key"
	"regiondb/layout"
)

// indexEntry records one record's key and its byte offset in the data
// file, the in-memory substitute for the teacher's persisted block index
// (lsmT/builder.go's buildIndex) — kept in memory only, rebuilt on open by
// Builder's sibling reader (see reader.go), since spec 6 has no block-index
// sidecar in the file layout.
type indexEntry struct {
	k      key.Key
	offset int64
}

// Builder writes a new StoreFile's data file. Callers must call Add with
// keys in ascending key.Compare order — the same requirement the teacher's
// tableBuilder places on its caller, and the one spec 4.3 requires ("an
// immutable sorted sequence").
type Builder struct {
	fs       layout.FileSystem
	path     string
	w        layout.WriteSyncer
	offset   int64
	index    []indexEntry
	finalKey key.Key
	hasAny   bool
}

func NewBuilder(fs layout.FileSystem, path string) (*Builder, error) {
	w, err := fs.Create(path)
	if err != nil {
		return nil, errors.Wrapf(err, "creating store file %s", path)
	}
	ws, ok := w.(layout.WriteSyncer)
	if !ok {
		// fs.Create returns io.WriteCloser; Builder needs Sync, so require
		// a concrete *os.File-backed implementation (LocalFS satisfies this).
		return nil, errors.Errorf("storefile: filesystem writer for %s does not support Sync", path)
	}
	return &Builder{fs: fs, path: path, w: ws, offset: 0}, nil
}

func (b *Builder) Add(k key.Key, v key.Value) error {
	b.index = append(b.index, indexEntry{k: k, offset: b.offset})
	n, err := encodeEdit(b.w, k, v)
	if err != nil {
		return errors.Wrapf(err, "writing record to %s", b.path)
	}
	b.offset += int64(n)
	b.finalKey = k
	b.hasAny = true
	return nil
}

// Result describes a finished data file, the metadata the Store needs to
// register it (spec 4.5 flushCache/compact).
type Result struct {
	FinalKey key.Key
	MidKey   []byte
	Count    int
}

// Finish fsyncs and closes the data file. Per spec 4.3, finalKey is the
// largest key written, and midKey partitions the file roughly in half —
// taken here as the row of the index entry closest to the file's midpoint.
func (b *Builder) Finish() (Result, error) {
	if err := b.w.Sync(); err != nil {
		return Result{}, errors.Wrapf(err, "syncing store file %s", b.path)
	}
	if err := b.w.Close(); err != nil {
		return Result{}, errors.Wrapf(err, "closing store file %s", b.path)
	}
	res := Result{FinalKey: b.finalKey, Count: len(b.index)}
	if len(b.index) > 0 {
		res.MidKey = append([]byte{}, b.index[len(b.index)/2].k.Row...)
	}
	return res, nil
}

// WriteInfoSidecar writes the 8-byte max-sequence-id info file (spec 6).
// Callers write it only after the data file is finalised, matching spec
// 4.3's "durability marker used by recovery" contract — a new file only
// enters the readers set once this exists.
func WriteInfoSidecar(fs layout.FileSystem, path string, maxSequence uint64) error {
	w, err := fs.Create(path)
	if err != nil {
		return errors.Wrapf(err, "creating info sidecar %s", path)
	}
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], maxSequence)
	if _, err := w.Write(buf[:]); err != nil {
		w.Close()
		return errors.Wrapf(err, "writing info sidecar %s", path)
	}
	return errors.Wrapf(w.Close(), "closing info sidecar %s", path)
}

// ReadInfoSidecar reads the max-sequence-id back.
func ReadInfoSidecar(fs layout.FileSystem, path string) (uint64, error) {
	b, err := fs.ReadFile(path)
	if err != nil {
		return 0, errors.Wrapf(err, "reading info sidecar %s", path)
	}
	if len(b) != 8 {
		return 0, errors.Errorf("info sidecar %s has unexpected length %d", path, len(b))
	}
	return binary.BigEndian.Uint64(b), nil
}
