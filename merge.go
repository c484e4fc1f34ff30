package regiondb

import (
	"bytes"

	"github.com/pkg/errors"

	"regiondb/errs"
	"regiondb/internal/xlog"
	"regiondb/layout"
)

// checkMergePreconditions implements spec 6's merge-preconditions list:
// the two regions must belong to the same table, must be adjacent (one's
// end key is the other's start key), and must not both carry a null start
// key (two regions both claiming to be the table's first region cannot be
// merged into one).
func checkMergePreconditions(a, b Info) (lo, hi Info, err error) {
	if a.Table != b.Table {
		return Info{}, Info{}, errors.Wrap(errs.ErrMergePreconditions, "different tables")
	}
	if len(a.StartKey) == 0 && len(b.StartKey) == 0 {
		return Info{}, Info{}, errors.Wrap(errs.ErrMergePreconditions, "null start keys on both sides")
	}
	switch {
	case len(a.EndKey) > 0 && bytes.Equal(a.EndKey, b.StartKey):
		return a, b, nil
	case len(b.EndKey) > 0 && bytes.Equal(b.EndKey, a.StartKey):
		return b, a, nil
	default:
		return Info{}, Info{}, errors.Wrap(errs.ErrMergePreconditions, "non-adjacent regions")
	}
}

// MergeRegions implements spec 4.7: given two regions of the same table,
// flush both, compact both, close both (obtaining their still-live store
// files), combine per family (de-duplicating a shared file id), rename
// the files under the new region's directory, open it, compact once, and
// only then delete the two source region directories.
func MergeRegions(fs layout.FileSystem, a, b *Region, opts *Options, fl FlushListener, sl SplitListener) (*Region, Info, error) {
	lo, hi, err := checkMergePreconditions(a.info, b.info)
	if err != nil {
		return nil, Info{}, err
	}
	// a/b may have been passed in either order; pick the Region values to
	// match the lo/hi Info ordering checkMergePreconditions settled on.
	loRegion, hiRegion := a, b
	if lo.Name != a.info.Name {
		loRegion, hiRegion = b, a
	}

	merged := Info{
		Table:       lo.Table,
		StartKey:    lo.StartKey,
		EndKey:      hi.EndKey,
		ParentNames: []string{lo.Name, hi.Name},
	}
	merged.Name = encodeRegionName(merged.Table, merged.StartKey, merged.EndKey)

	for _, r := range []*Region{loRegion, hiRegion} {
		if err := r.FlushCache(); err != nil {
			return nil, Info{}, xlog.Errorf("merge", err)
		}
		if err := r.CompactStores(); err != nil {
			return nil, Info{}, xlog.Errorf("merge", err)
		}
	}

	loRefs, err := loRegion.Close(false)
	if err != nil {
		return nil, Info{}, xlog.Errorf("merge", err)
	}
	hiRefs, err := hiRegion.Close(false)
	if err != nil {
		return nil, Info{}, xlog.Errorf("merge", err)
	}

	families := make(map[string]bool)
	for _, ref := range loRefs {
		families[ref.Family] = true
	}
	for _, ref := range hiRefs {
		families[ref.Family] = true
	}

	scratch := layout.MergesDir(merged.Table, merged.Name)
	if err := fs.MkdirAll(scratch); err != nil {
		return nil, Info{}, xlog.Errorf("merge", err)
	}

	seen := make(map[string]map[uint64]bool, len(families))
	for fam := range families {
		seen[fam] = map[uint64]bool{}
		if err := fs.MkdirAll(layout.MapfilesDir(merged.Table, merged.Name, fam)); err != nil {
			return nil, Info{}, xlog.Errorf("merge", err)
		}
		if err := fs.MkdirAll(layout.InfoDir(merged.Table, merged.Name, fam)); err != nil {
			return nil, Info{}, xlog.Errorf("merge", err)
		}
	}

	for _, group := range []struct {
		region Info
		refs   []StoreFileRef
	}{{lo, loRefs}, {hi, hiRefs}} {
		for _, ref := range group.refs {
			fileID := ref.FileID
			for seen[ref.Family][fileID] {
				fileID-- // spec 4.7: decrement to enforce id uniqueness across the merged halves
			}
			seen[ref.Family][fileID] = true

			oldData := layout.DataFilePath(group.region.Table, group.region.Name, ref.Family, ref.FileID, ref.ParentRegion)
			newData := layout.DataFilePath(merged.Table, merged.Name, ref.Family, fileID, ref.ParentRegion)
			if err := fs.Rename(oldData, newData); err != nil {
				return nil, Info{}, xlog.Errorf("merge", err)
			}

			oldInfo := layout.InfoFilePath(group.region.Table, group.region.Name, ref.Family, ref.FileID, ref.ParentRegion)
			if ok, _ := fs.Exists(oldInfo); ok {
				newInfo := layout.InfoFilePath(merged.Table, merged.Name, ref.Family, fileID, ref.ParentRegion)
				if err := fs.Rename(oldInfo, newInfo); err != nil {
					return nil, Info{}, xlog.Errorf("merge", err)
				}
			}
		}
	}

	familyList := make([]string, 0, len(families))
	for fam := range families {
		familyList = append(familyList, fam)
	}

	newRegion, err := Open(fs, merged, familyList, opts, fl, sl)
	if err != nil {
		return nil, Info{}, xlog.Errorf("merge", err)
	}
	if err := newRegion.CompactStores(); err != nil {
		return nil, Info{}, xlog.Errorf("merge", err)
	}

	fs.RemoveAll(scratch)
	fs.RemoveAll(layout.RegionDir(lo.Table, lo.Name))
	fs.RemoveAll(layout.RegionDir(hi.Table, hi.Name))

	return newRegion, merged, nil
}
