package regiondb

import (
	"encoding/hex"

	"regiondb/errs"
	"regiondb/internal/xlog"
	"regiondb/layout"
	"regiondb/storefile"
)

// encodeRegionName derives a directory-safe region name from its
// coordinates. Spec 6 names region directories by an "encoded region
// name" without specifying the encoding (that's the out-of-scope master's
// job per spec 1); this core needs some deterministic, collision-free
// name to mint for a split's two children, so it joins the table name
// with the hex-encoded start and end keys that identify a region.
func encodeRegionName(table string, start, end []byte) string {
	return table + "," + hex.EncodeToString(start) + "," + hex.EncodeToString(end)
}

// SplitRegion implements spec 4.6 splitRegion: acquire the split lock,
// verify the need, create split scratch dirs for children A (start..mid)
// and B (mid..end), close this region, turn every store file into a
// bottom-half reference for A and a top-half reference for B, sanity-open
// and close the two children, then delete the scratch dirs.
//
// Every family must currently be splitable (no reference file present):
// spec 4.5's Size already reports splitable=false for a family holding a
// reference, and storefile.Open supports only one level of reference
// indirection (a reference's parent must itself be a concrete file), so a
// family mid-way through a prior split cannot be split again until its
// reference is compacted away (spec 3: "a compaction of the child's store
// materialises an independent file and permits eventual deletion of the
// parent").
func (r *Region) SplitRegion() (a, b Info, err error) {
	r.splitMu.Lock()
	defer r.splitMu.Unlock()

	midKey, _, needs := r.NeedsSplit()
	if !needs {
		return Info{}, Info{}, errs.ErrNotSplitable
	}
	for _, s := range r.stores {
		if _, _, splitable := s.Size(); !splitable {
			return Info{}, Info{}, errs.ErrNotSplitable
		}
	}

	aInfo := Info{Table: r.info.Table, StartKey: r.info.StartKey, EndKey: midKey, ParentNames: []string{r.info.Name}}
	bInfo := Info{Table: r.info.Table, StartKey: midKey, EndKey: r.info.EndKey, ParentNames: []string{r.info.Name}}
	aInfo.Name = encodeRegionName(aInfo.Table, aInfo.StartKey, aInfo.EndKey)
	bInfo.Name = encodeRegionName(bInfo.Table, bInfo.StartKey, bInfo.EndKey)

	aScratch := layout.SplitsDir(r.info.Table, r.info.Name, aInfo.Name)
	bScratch := layout.SplitsDir(r.info.Table, r.info.Name, bInfo.Name)
	if err := r.fs.MkdirAll(aScratch); err != nil {
		return Info{}, Info{}, xlog.Errorf("split", err)
	}
	if err := r.fs.MkdirAll(bScratch); err != nil {
		return Info{}, Info{}, xlog.Errorf("split", err)
	}

	families := make([]string, 0, len(r.stores))
	for fam := range r.stores {
		families = append(families, fam)
	}

	refs, err := r.Close(false)
	if err != nil {
		return Info{}, Info{}, xlog.Errorf("split", err)
	}

	parentRegion := r.info.Name
	for _, ref := range refs {
		if err := r.materializeHalf(aInfo, ref, parentRegion, midKey, storefile.HalfBottom); err != nil {
			return Info{}, Info{}, err
		}
		if err := r.materializeHalf(bInfo, ref, parentRegion, midKey, storefile.HalfTop); err != nil {
			return Info{}, Info{}, err
		}
	}

	for _, child := range []Info{aInfo, bInfo} {
		cr, err := Open(r.fs, child, families, r.opts, r.flushListener, r.splitListener)
		if err != nil {
			return Info{}, Info{}, xlog.Errorf("split", err)
		}
		if _, err := cr.Close(false); err != nil {
			return Info{}, Info{}, xlog.Errorf("split", err)
		}
	}

	r.fs.RemoveAll(aScratch)
	r.fs.RemoveAll(bScratch)

	if r.splitListener != nil {
		r.splitListener.NotifySplit(aInfo, bInfo)
	}
	return aInfo, bInfo, nil
}

// materializeHalf writes one child's reference file (and carries forward
// the parent file's max-sequence info sidecar) for one of the closed
// parent region's store files (spec 6: reference contents are "encoded
// parent-region name, parent file id, split key, half").
func (r *Region) materializeHalf(child Info, ref StoreFileRef, parentRegion string, midKey []byte, half storefile.Half) error {
	desc := storefile.RefDescriptor{ParentRegion: parentRegion, ParentFileID: ref.FileID, SplitKey: midKey, Half: half}

	if err := r.fs.MkdirAll(layout.MapfilesDir(r.info.Table, child.Name, ref.Family)); err != nil {
		return xlog.Errorf("split", err)
	}
	if err := r.fs.MkdirAll(layout.InfoDir(r.info.Table, child.Name, ref.Family)); err != nil {
		return xlog.Errorf("split", err)
	}

	dataPath := layout.DataFilePath(r.info.Table, child.Name, ref.Family, ref.FileID, parentRegion)
	if err := storefile.WriteReference(r.fs, dataPath, desc); err != nil {
		return xlog.Errorf("split", err)
	}

	parentInfoPath := layout.InfoFilePath(r.info.Table, parentRegion, ref.Family, ref.FileID, ref.ParentRegion)
	if ok, _ := r.fs.Exists(parentInfoPath); ok {
		seq, err := storefile.ReadInfoSidecar(r.fs, parentInfoPath)
		if err == nil {
			infoPath := layout.InfoFilePath(r.info.Table, child.Name, ref.Family, ref.FileID, parentRegion)
			if err := storefile.WriteInfoSidecar(r.fs, infoPath, seq); err != nil {
				return xlog.Errorf("split", err)
			}
		}
	}
	return nil
}
