// Package regiondb implements the per-region, per-column-family storage
// engine (spec 1): region lifecycle, batched writes through a shared WAL,
// and the flush/compaction/split background activity. Grounded on the
// teacher's db.go, generalised one level down from a single-table KV
// engine to a region hosting many families, each with its own Store.
package regiondb

import (
	"regiondb/store"
)

// Options mirrors the teacher's plain-struct options.go, expanded to the
// region/store scope (SPEC_FULL 10.3): family-level knobs live in
// FamilyOptions (forwarded to store.Options per family), region-level
// knobs control flush/split thresholds and row-lock/WAL behavior.
type Options struct {
	// FlushSize is the aggregate memcache size (bytes, summed across
	// families) at which batchUpdate notifies the flush listener (spec
	// 4.6 batchUpdate: "if size crosses the flush threshold").
	FlushSize int64
	// MemstoreFlushSize is the aggregate size at which batchUpdate blocks
	// new writers until a flush has drained it (spec 4.6: "wait if the
	// aggregate memcache size >= blocking threshold").
	MemstoreFlushSize int64
	// MaxFileSize is the largest-file threshold needsSplit compares
	// against (spec 4.6 needsSplit).
	MaxFileSize int64
	// BlockingStoreFileCount is carried from the teacher's
	// MaxBatchCount-style knob. It is defaulted but no code path reads it:
	// writers block only on MemstoreFlushSize, whatever a family's file
	// count.
	BlockingStoreFileCount int

	// SyncOnEveryAppend controls WAL durability (spec 6's WAL record
	// types; teacher's ValueLogFileSize-adjacent durability knobs).
	SyncOnEveryAppend bool

	// RowLockWakeFrequencyMillis is how often, in milliseconds,
	// Region.close polls row-lock and
	// scanner quiescence (spec 5: "timed wait with a configured wake
	// frequency so shutdown signals can propagate").
	RowLockWakeFrequencyMillis int64

	// FamilyOptions supplies per-family store.Options; a family with no
	// entry here gets store.NewDefaultOptions().
	FamilyOptions map[string]*store.Options
}

// NewDefaultOptions returns the default Options, following the teacher's
// NewDefaultOptions (plain literal plus field fix-ups).
func NewDefaultOptions() *Options {
	opt := &Options{
		FlushSize:                  1 << 20,
		MemstoreFlushSize:          4 << 20,
		MaxFileSize:                256 << 20,
		BlockingStoreFileCount:     7,
		SyncOnEveryAppend:          true,
		RowLockWakeFrequencyMillis: 50,
		FamilyOptions:              map[string]*store.Options{},
	}
	return opt
}

// storeOptionsFor returns the configured store.Options for family, or a
// fresh default set if the caller never configured one.
func (o *Options) storeOptionsFor(family string) *store.Options {
	if so, ok := o.FamilyOptions[family]; ok {
		return so
	}
	return store.NewDefaultOptions()
}
