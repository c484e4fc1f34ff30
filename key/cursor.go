package key

import "container/heap"

// Cursor is the pull-based iterator contract every tier (memcache,
// store file) exposes, and the shape every merge (store get/getFull,
// compaction, scanners) is built from — spec 9's design notes call this
// out explicitly: "iterator composition... is naturally expressed as a
// pull-based sorted merge."
type Cursor interface {
	Valid() bool
	Key() Key
	Value() Value
	Next()
}

// mergeCursor is the Cursor MergeCursors returns: a heap of source indices
// ordered by each source's current key. On equal keys the lower index wins
// (spec 9: "prefer the file with the larger sequence id"), so callers that
// care about source precedence order the cursors slice so earlier index =
// newer source. The tieBreak field is never set or called.
type mergeCursor struct {
	cursors   []Cursor
	heap      sourceHeap
	tieBreak  func(winner, otherIdx int)
	curIdx    int
}

type sourceHeap struct {
	idx []int
	cur []Cursor
}

func (h sourceHeap) Len() int { return len(h.idx) }
func (h sourceHeap) Less(i, j int) bool {
	c := Compare(h.cur[h.idx[i]].Key(), h.cur[h.idx[j]].Key())
	if c != 0 {
		return c < 0
	}
	// Equal keys: prefer the lower source index (caller orders newest-first).
	return h.idx[i] < h.idx[j]
}
func (h sourceHeap) Swap(i, j int) { h.idx[i], h.idx[j] = h.idx[j], h.idx[i] }
func (h *sourceHeap) Push(x interface{}) { h.idx = append(h.idx, x.(int)) }
func (h *sourceHeap) Pop() interface{} {
	n := len(h.idx)
	v := h.idx[n-1]
	h.idx = h.idx[:n-1]
	return v
}

// MergeCursors performs a k-way sorted merge over cursors in Key order.
// When multiple cursors carry an identical Key, all of them are advanced by
// Next (spec 4.5 compaction: "both entries still advance") but Key/Value
// report the winner, which is the cursor at the lowest index among the
// tied set — callers order cursors newest-first so index order already
// encodes the "larger sequence id wins" tie-break spec 9 settles on.
func MergeCursors(cursors []Cursor) Cursor {
	m := &mergeCursor{cursors: cursors}
	m.heap.cur = cursors
	for i, c := range cursors {
		if c.Valid() {
			m.heap.idx = append(m.heap.idx, i)
		}
	}
	heap.Init(&m.heap)
	return m
}

func (m *mergeCursor) Valid() bool { return len(m.heap.idx) > 0 }

func (m *mergeCursor) winner() int {
	return m.heap.idx[0]
}

func (m *mergeCursor) Key() Key   { return m.cursors[m.winner()].Key() }
func (m *mergeCursor) Value() Value { return m.cursors[m.winner()].Value() }

// Next advances every cursor whose current key equals the winner's key,
// then re-establishes heap order.
func (m *mergeCursor) Next() {
	if !m.Valid() {
		return
	}
	winKey := m.Key()
	// Collect all tied source indices first; mutating cursors while
	// iterating the heap slice is unsafe.
	var tied []int
	for _, idx := range m.heap.idx {
		if Equal(m.cursors[idx].Key(), winKey) {
			tied = append(tied, idx)
		}
	}
	for _, idx := range tied {
		m.cursors[idx].Next()
	}
	// Rebuild the heap from scratch: the simplest correct way to reflect
	// the advanced cursors (some now invalid, others with new keys).
	m.heap.idx = m.heap.idx[:0]
	for i, c := range m.cursors {
		if c.Valid() {
			m.heap.idx = append(m.heap.idx, i)
		}
	}
	heap.Init(&m.heap)
}

// SliceCursor adapts an in-memory, pre-sorted []Edit into a Cursor. Useful
// for tests and for small materialised result sets.
type SliceCursor struct {
	edits []Edit
	pos   int
}

func NewSliceCursor(edits []Edit) *SliceCursor { return &SliceCursor{edits: edits} }

func (c *SliceCursor) Valid() bool   { return c.pos < len(c.edits) }
func (c *SliceCursor) Key() Key     { return c.edits[c.pos].Key }
func (c *SliceCursor) Value() Value { return c.edits[c.pos].Value }
func (c *SliceCursor) Next()        { c.pos++ }
