package storefile

import (
	"bytes"
	"encoding/binary"

	"github.com/pkg/errors"

	"regiondb/key"
)

// Half identifies which side of a split-key a Reference file exposes
// (spec 4.3/6).
type Half byte

const (
	HalfBottom Half = iota
	HalfTop
)

// RefDescriptor is a reference file's entire on-disk content: it carries
// no data of its own, only a pointer into the parent's file (spec 6:
// "encoded parent-region name, parent file id, split key, half").
type RefDescriptor struct {
	ParentRegion string
	ParentFileID uint64
	SplitKey     []byte
	Half         Half
}

func EncodeRef(d RefDescriptor) []byte {
	buf := newCountingBuffer()
	putBytes(buf, []byte(d.ParentRegion))
	putUvarint(buf, d.ParentFileID)
	putBytes(buf, d.SplitKey)
	buf.WriteByte(byte(d.Half))
	return buf.Bytes()
}

func DecodeRef(data []byte) (RefDescriptor, error) {
	br := newByteSliceReader(data)
	region, err := readBytes(br)
	if err != nil {
		return RefDescriptor{}, errors.Wrap(err, "decoding reference parent region")
	}
	fid, err := binary.ReadUvarint(br)
	if err != nil {
		return RefDescriptor{}, errors.Wrap(err, "decoding reference parent file id")
	}
	splitKey, err := readBytes(br)
	if err != nil {
		return RefDescriptor{}, errors.Wrap(err, "decoding reference split key")
	}
	half, err := br.ReadByte()
	if err != nil {
		return RefDescriptor{}, errors.Wrap(err, "decoding reference half")
	}
	return RefDescriptor{ParentRegion: string(region), ParentFileID: fid, SplitKey: splitKey, Half: Half(half)}, nil
}

// referenceFile restricts a parent concreteFile's visible keys to one half
// relative to SplitKey (spec 4.3: "reads through a reference restrict
// visible keys to the chosen half").
type referenceFile struct {
	parent *concreteFile
	desc   RefDescriptor
}

func (r *referenceFile) visible(k key.Key) bool {
	c := bytes.Compare(k.Row, r.desc.SplitKey)
	if r.desc.Half == HalfBottom {
		return c < 0
	}
	return c >= 0
}

type filteredCursor struct {
	inner key.Cursor
	keep  func(key.Key) bool
}

func (c *filteredCursor) skip() {
	for c.inner.Valid() && !c.keep(c.inner.Key()) {
		c.inner.Next()
	}
}
func newFilteredCursor(inner key.Cursor, keep func(key.Key) bool) key.Cursor {
	c := &filteredCursor{inner: inner, keep: keep}
	c.skip()
	return c
}
func (c *filteredCursor) Valid() bool      { return c.inner.Valid() }
func (c *filteredCursor) Key() key.Key     { return c.inner.Key() }
func (c *filteredCursor) Value() key.Value { return c.inner.Value() }
func (c *filteredCursor) Next() {
	c.inner.Next()
	c.skip()
}

func (r *referenceFile) Cursor(from key.Key) key.Cursor {
	start := from
	if r.desc.Half == HalfTop {
		splitStart := key.New(r.desc.SplitKey, nil, key.MaxTimestamp)
		if key.Less(start, splitStart) {
			start = splitStart
		}
	}
	return newFilteredCursor(r.parent.Cursor(start), r.visible)
}

func (r *referenceFile) CursorAll() key.Cursor {
	return r.Cursor(key.Key{})
}

func (r *referenceFile) GetClosest(search key.Key, beforeOrEqual bool) (key.Key, key.Value, bool) {
	// Fall back to a linear cursor scan bounded by the half filter; a
	// reference file is a transient construct (replaced at the next
	// compaction, spec 4.3) so this need not be as fast as concreteFile's
	// binary search.
	if !beforeOrEqual {
		c := r.Cursor(search)
		if !c.Valid() {
			return key.Key{}, key.Value{}, false
		}
		return c.Key(), c.Value(), true
	}
	var bestK key.Key
	var bestV key.Value
	found := false
	c := r.CursorAll()
	for c.Valid() {
		k := c.Key()
		if key.Compare(k, search) > 0 {
			break
		}
		bestK, bestV, found = k, c.Value(), true
		c.Next()
	}
	return bestK, bestV, found
}

func (r *referenceFile) FinalKey() (key.Key, bool) {
	var lastK key.Key
	var found bool
	c := r.CursorAll()
	for c.Valid() {
		lastK, found = c.Key(), true
		c.Next()
	}
	return lastK, found
}

func (r *referenceFile) MidKey() []byte { return nil }

func (r *referenceFile) MaxSequence() uint64 { return r.parent.MaxSequence() }

// Size approximates a reference's contribution as half its parent's,
// since a reference exposes exactly one split half (spec 4.3).
func (r *referenceFile) Size() int64 { return r.parent.Size() / 2 }
