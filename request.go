package regiondb

import (
	"regiondb/key"
)

// Op is one mutation within a batchUpdate call (spec 4.6), versioned at
// the call's shared timestamp argument: a put carries Value; a delete
// sets Delete true. When the batch's timestamp equals key.MaxTimestamp, a
// delete op targets "the latest version" rather than a specific one,
// which batchUpdate must resolve to the current newest timestamp after
// the edit lands (spec 4.6's "delete-at-LATEST post-processing").
type Op struct {
	Row       []byte
	Family    string
	Qualifier []byte
	Value     []byte
	Delete    bool
}

// Batch is the caller-supplied unit of work for batchUpdate, generalising
// the teacher's request.Entries slice from flat KV entries to
// family-qualified row ops.
type Batch struct {
	Ops []Op
}

// rowEdits groups the edits one row contributes to one family within a
// single batchUpdate, the per-row accumulator spec 4.6 describes
// ("accumulate a per-row edits map") before the atomic WAL append.
type rowEdits struct {
	row     []byte
	byFam   map[string][]key.Edit
	lateDel map[string][][]byte // family -> qualifiers deleted at LATEST
}

func newRowEdits(row []byte) *rowEdits {
	return &rowEdits{row: row, byFam: map[string][]key.Edit{}, lateDel: map[string][][]byte{}}
}
