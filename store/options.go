package store

import "regiondb/bloom"

// Options configures one family Store, the store-scoped slice of the
// region/family options SPEC_FULL 10.3 expands the teacher's options.go
// into. A region constructs one Options per family (typically sharing
// table-wide defaults) and passes it to Open.
type Options struct {
	MaxVersions         int
	CompactionThreshold int
	BloomFilterType     bloom.Variant
	BloomFalsePositive  float64
	BlockCacheEntries   int
	SyncOnEveryAppend   bool
}

// NewDefaultOptions mirrors the teacher's options.go NewDefaultOptions:
// a plain struct literal with the defaults spec 4.5 names explicitly
// (compaction threshold 3) plus reasonable defaults for knobs spec.md
// leaves to the implementation.
func NewDefaultOptions() *Options {
	return &Options{
		MaxVersions:         3,
		CompactionThreshold: 3,
		BloomFilterType:     bloom.VariantPlain,
		BloomFalsePositive:  0.01,
		BlockCacheEntries:   4096,
		SyncOnEveryAppend:   true,
	}
}
