package storefile

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"io"
	"sort"

	"github.com/pkg/errors"

	"regiondb/cache"
	"regiondb/key"
	"regiondb/layout"
)

// concreteFile is a StoreFile backed by an actual on-disk data file. It
// loads the whole file into memory once at open (grounded on the
// teacher's file/SSTable.go tail-read init, simplified: no block
// indirection, no mmap) and serves every File method from that buffer
// plus an in-memory key index built during the same scan. blockCache, when
// set, caches decoded (Key, Value) pairs by offset so a hot record serves
// repeated scans without re-running decodeEdit (SPEC_FULL 11's block-cache
// wiring; shared across every concreteFile a Store opens, so a family's
// working set competes for one cache budget rather than one per file).
type concreteFile struct {
	data        []byte
	index       []indexEntry
	maxSequence uint64
	path        string
	blockCache  *cache.BlockCache
}

func (f *concreteFile) cacheKey(offset int64) []byte {
	buf := make([]byte, len(f.path)+8)
	copy(buf, f.path)
	binary.BigEndian.PutUint64(buf[len(f.path):], uint64(offset))
	return buf
}

func openConcrete(fs layout.FileSystem, path string) (*concreteFile, error) {
	data, err := fs.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading store file %s", path)
	}
	cf := &concreteFile{data: data, path: path}
	r := bufio.NewReader(bytes.NewReader(data))
	var offset int64
	for {
		k, _, n, err := decodeEdit(r)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrapf(err, "parsing store file %s at offset %d", path, offset)
		}
		cf.index = append(cf.index, indexEntry{k: k, offset: offset})
		offset += int64(n)
	}
	return cf, nil
}

func (f *concreteFile) len() int { return len(f.index) }

type decodedRecord struct {
	k key.Key
	v key.Value
}

func (f *concreteFile) recordAt(i int) (key.Key, key.Value) {
	offset := f.index[i].offset
	if f.blockCache != nil {
		if cached, ok := f.blockCache.Get(f.cacheKey(offset)); ok {
			rec := cached.(decodedRecord)
			return rec.k, rec.v
		}
	}

	r := bufio.NewReader(bytes.NewReader(f.data[offset:]))
	k, v, _, err := decodeEdit(r)
	if err != nil {
		// The byte range came from our own index built over the same
		// bytes; a failure here means the file was corrupted after open.
		panic(errors.Wrap(err, "storefile: index inconsistent with data"))
	}
	if f.blockCache != nil {
		f.blockCache.Set(f.cacheKey(offset), decodedRecord{k: k, v: v})
	}
	return k, v
}

// lowerBound returns the index of the first entry with Key >= k (len(index)
// if none).
func (f *concreteFile) lowerBound(k key.Key) int {
	return sort.Search(len(f.index), func(i int) bool {
		return key.Compare(f.index[i].k, k) >= 0
	})
}

// cursor is a File-backed key.Cursor over a contiguous slice [lo, hi) of
// a concreteFile's index.
type cursor struct {
	f   *concreteFile
	pos int
	hi  int
}

func (c *cursor) Valid() bool { return c.pos < c.hi }
func (c *cursor) Key() key.Key {
	k, _ := c.f.recordAt(c.pos)
	return k
}
func (c *cursor) Value() key.Value {
	_, v := c.f.recordAt(c.pos)
	return v
}
func (c *cursor) Next() { c.pos++ }

func (f *concreteFile) Cursor(from key.Key) key.Cursor {
	return &cursor{f: f, pos: f.lowerBound(from), hi: f.len()}
}

func (f *concreteFile) CursorAll() key.Cursor { return &cursor{f: f, pos: 0, hi: f.len()} }

// GetClosest returns the smallest Key >= search (beforeOrEqual == false)
// or the largest Key <= search (beforeOrEqual == true) — spec 4.3.
func (f *concreteFile) GetClosest(search key.Key, beforeOrEqual bool) (key.Key, key.Value, bool) {
	idx := f.lowerBound(search)
	if !beforeOrEqual {
		if idx >= f.len() {
			return key.Key{}, key.Value{}, false
		}
		k, v := f.recordAt(idx)
		return k, v, true
	}
	// idx is the first entry >= search; the largest entry <= search is
	// either idx itself (if it is an exact match) or idx-1.
	if idx < f.len() {
		if k, _ := f.recordAt(idx); key.Equal(k, search) {
			k, v := f.recordAt(idx)
			return k, v, true
		}
	}
	if idx == 0 {
		return key.Key{}, key.Value{}, false
	}
	k, v := f.recordAt(idx - 1)
	return k, v, true
}

func (f *concreteFile) FinalKey() (key.Key, bool) {
	if f.len() == 0 {
		return key.Key{}, false
	}
	k, _ := f.recordAt(f.len() - 1)
	return k, true
}

func (f *concreteFile) MidKey() []byte {
	if f.len() == 0 {
		return nil
	}
	k, _ := f.recordAt(f.len() / 2)
	return append([]byte{}, k.Row...)
}

func (f *concreteFile) MaxSequence() uint64 { return f.maxSequence }

func (f *concreteFile) Size() int64 { return int64(len(f.data)) }
