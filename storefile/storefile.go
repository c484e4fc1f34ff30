package storefile

import (
	"github.com/pkg/errors"

	"regiondb/cache"
	"regiondb/key"
	"regiondb/layout"
)

// File is a StoreFile: an immutable, sorted, on-disk (Key, Value) sequence
// read by Store's get/getFull/getKeys/getRowKeyAtOrBefore/getScanner (spec
// 4.3/4.5). Both a concrete data file and a reference file (split child,
// spec 4.6) satisfy it, so callers never need to know which they opened.
type File interface {
	Cursor(from key.Key) key.Cursor
	CursorAll() key.Cursor
	GetClosest(search key.Key, beforeOrEqual bool) (key.Key, key.Value, bool)
	FinalKey() (key.Key, bool)
	MidKey() []byte
	MaxSequence() uint64
	// Size approximates the on-disk byte size this file contributes,
	// used by Store.Size (spec 4.5) to pick the largest file for split
	// consideration.
	Size() int64
}

// Open opens the data file at dataPath, deciding concrete vs. reference by
// the presence of a parent region suffix on the file name (spec 6's file
// name regex), and populates MaxSequence from the info sidecar at
// infoPath when present (absent for files still mid-flush, per spec 4.3).
// A reference file takes MaxSequence from its parent's sidecar instead and
// does not read infoPath.
// blockCache, if non-nil, is shared across every File a Store opens so
// decoded records compete for one cache budget (SPEC_FULL 11); pass nil to
// disable caching.
func Open(fs layout.FileSystem, table, region, family, dataPath, infoPath string, fileID uint64, parentRegion string, blockCache *cache.BlockCache) (File, error) {
	if parentRegion == "" {
		cf, err := openConcrete(fs, dataPath)
		if err != nil {
			return nil, err
		}
		cf.blockCache = blockCache
		if ok, _ := fs.Exists(infoPath); ok {
			seq, err := ReadInfoSidecar(fs, infoPath)
			if err != nil {
				return nil, err
			}
			cf.maxSequence = seq
		}
		return cf, nil
	}

	raw, err := fs.ReadFile(dataPath)
	if err != nil {
		return nil, errors.Wrapf(err, "reading reference file %s", dataPath)
	}
	desc, err := DecodeRef(raw)
	if err != nil {
		return nil, errors.Wrapf(err, "decoding reference file %s", dataPath)
	}

	parentDataPath := layout.DataFilePath(table, desc.ParentRegion, family, desc.ParentFileID, "")
	parentInfoPath := layout.InfoFilePath(table, desc.ParentRegion, family, desc.ParentFileID, "")
	parent, err := openConcrete(fs, parentDataPath)
	if err != nil {
		return nil, errors.Wrapf(err, "opening parent of reference file %s", dataPath)
	}
	parent.blockCache = blockCache
	if ok, _ := fs.Exists(parentInfoPath); ok {
		seq, err := ReadInfoSidecar(fs, parentInfoPath)
		if err != nil {
			return nil, err
		}
		parent.maxSequence = seq
	}
	return &referenceFile{parent: parent, desc: desc}, nil
}

// WriteReference writes a reference file's data file: the encoded
// RefDescriptor bytes, not a copy of the parent's data (spec 6: a
// reference "carries no data of its own").
func WriteReference(fs layout.FileSystem, dataPath string, desc RefDescriptor) error {
	w, err := fs.Create(dataPath)
	if err != nil {
		return errors.Wrapf(err, "creating reference file %s", dataPath)
	}
	if _, err := w.Write(EncodeRef(desc)); err != nil {
		w.Close()
		return errors.Wrapf(err, "writing reference file %s", dataPath)
	}
	return errors.Wrapf(w.Close(), "closing reference file %s", dataPath)
}
