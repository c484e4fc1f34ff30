// Package layout implements the engine's filesystem contract (spec 6): a
// minimal FileSystem interface the region/store/WAL packages use for all
// durable I/O, plus the path-naming conventions above it (region, family,
// mapfiles, info, filter, compaction, split, merge directories, and the
// store-file name regex).
//
// Spec 1 treats the distributed filesystem as an external collaborator
// that "provides atomic rename, hierarchical directories, random-access
// read, and append-style sequential write" — this package is the thin,
// named-interface boundary to that collaborator, implemented locally with
// plain os.File the way the teacher's file/manifet.go does its manifest
// I/O (no mmap: spec's filesystem contract doesn't offer mmap semantics,
// and a DFS client library wouldn't either).
package layout

import (
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strconv"

	"github.com/pkg/errors"
)

// FileSystem is the engine's whole durability contract. Every field spec 1
// assumes of the real distributed filesystem (atomic rename, hierarchical
// directories, random-access read, append-only sequential write) appears
// here as one method.
type FileSystem interface {
	Open(path string) (io.ReadCloser, error)
	ReadFile(path string) ([]byte, error)
	Create(path string) (io.WriteCloser, error)
	AppendWriter(path string) (WriteSyncer, error)
	Rename(oldpath, newpath string) error
	Remove(path string) error
	RemoveAll(path string) error
	MkdirAll(path string) error
	ReadDir(path string) ([]string, error)
	Exists(path string) (bool, error)
}

// WriteSyncer is an append handle that can be fsynced, the minimum the WAL
// needs for durable sequential writes.
type WriteSyncer interface {
	io.WriteCloser
	Sync() error
}

// LocalFS implements FileSystem over the local disk, rooted at Root. This
// is the "local development / single node" collaborator; a real deployment
// would swap in an HDFS-backed implementation behind the same interface,
// exactly the boundary spec 1 draws.
type LocalFS struct {
	Root string
}

func NewLocalFS(root string) *LocalFS { return &LocalFS{Root: root} }

func (fs *LocalFS) abs(p string) string { return filepath.Join(fs.Root, p) }

func (fs *LocalFS) Open(p string) (io.ReadCloser, error) {
	f, err := os.Open(fs.abs(p))
	return f, errors.Wrapf(err, "opening %s", p)
}

func (fs *LocalFS) ReadFile(p string) ([]byte, error) {
	b, err := os.ReadFile(fs.abs(p))
	return b, errors.Wrapf(err, "reading %s", p)
}

func (fs *LocalFS) Create(p string) (io.WriteCloser, error) {
	f, err := os.OpenFile(fs.abs(p), os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0666)
	return f, errors.Wrapf(err, "creating %s", p)
}

func (fs *LocalFS) AppendWriter(p string) (WriteSyncer, error) {
	f, err := os.OpenFile(fs.abs(p), os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
	return f, errors.Wrapf(err, "opening append writer %s", p)
}

func (fs *LocalFS) Rename(oldpath, newpath string) error {
	err := os.Rename(fs.abs(oldpath), fs.abs(newpath))
	return errors.Wrapf(err, "renaming %s to %s", oldpath, newpath)
}

func (fs *LocalFS) Remove(p string) error {
	err := os.Remove(fs.abs(p))
	if os.IsNotExist(err) {
		return nil
	}
	return errors.Wrapf(err, "removing %s", p)
}

func (fs *LocalFS) RemoveAll(p string) error {
	return errors.Wrapf(os.RemoveAll(fs.abs(p)), "removing all under %s", p)
}

func (fs *LocalFS) MkdirAll(p string) error {
	return errors.Wrapf(os.MkdirAll(fs.abs(p), 0755), "mkdir %s", p)
}

func (fs *LocalFS) ReadDir(p string) ([]string, error) {
	entries, err := os.ReadDir(fs.abs(p))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.Wrapf(err, "reading dir %s", p)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names, nil
}

func (fs *LocalFS) Exists(p string) (bool, error) {
	_, err := os.Stat(fs.abs(p))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, errors.Wrapf(err, "stat %s", p)
}

// SyncDir fsyncs a directory's entry, needed after a rename so the rename
// itself is durable — grounded on the teacher's file/mmap.go SyncDir,
// called from file/manifet.go's helpRewrite after os.Rename.
func (fs *LocalFS) SyncDir(p string) error {
	df, err := os.Open(fs.abs(p))
	if err != nil {
		return errors.Wrapf(err, "opening dir %s", p)
	}
	defer df.Close()
	return errors.Wrapf(df.Sync(), "syncing dir %s", p)
}

var fileNameRe = regexp.MustCompile(`^(\d+)(?:\.(.+))?$`)

// ParseFileName parses a mapfiles/info entry name per spec 6's regex:
// group 1 is the numeric file id, optional group 2 is the parent encoded
// region name marking the file as a reference.
func ParseFileName(name string) (fileID uint64, parentRegion string, isReference bool, err error) {
	m := fileNameRe.FindStringSubmatch(name)
	if m == nil {
		return 0, "", false, errors.Errorf("malformed store file name %q", name)
	}
	id, err := strconv.ParseUint(m[1], 10, 64)
	if err != nil {
		return 0, "", false, errors.Wrapf(err, "parsing file id in %q", name)
	}
	return id, m[2], m[2] != "", nil
}

func FileName(fileID uint64, parentRegion string) string {
	if parentRegion == "" {
		return strconv.FormatUint(fileID, 10)
	}
	return strconv.FormatUint(fileID, 10) + "." + parentRegion
}

// Path helpers below mirror spec 6's layout literally:
//   /{table}/{region}/{family}/mapfiles/{file-id}[.{parent}]
//   /{table}/{region}/{family}/info/{file-id}[.{parent}]
//   /{table}/{region}/{family}/filter/filter
//   /{table}/compaction.dir/{region}/
//   /{table}/{region}/splits/{child-region}/
//   /{table}/{region}/merges/
//   /{table}/{region}/oldlogfile.log

func RegionDir(table, region string) string {
	return filepath.Join(table, region)
}

func FamilyDir(table, region, family string) string {
	return filepath.Join(table, region, family)
}

func MapfilesDir(table, region, family string) string {
	return filepath.Join(table, region, family, "mapfiles")
}

func InfoDir(table, region, family string) string {
	return filepath.Join(table, region, family, "info")
}

func FilterFile(table, region, family string) string {
	return filepath.Join(table, region, family, "filter", "filter")
}

func DataFilePath(table, region, family string, fileID uint64, parentRegion string) string {
	return filepath.Join(MapfilesDir(table, region, family), FileName(fileID, parentRegion))
}

func InfoFilePath(table, region, family string, fileID uint64, parentRegion string) string {
	return filepath.Join(InfoDir(table, region, family), FileName(fileID, parentRegion))
}

func CompactionDir(table, region string) string {
	return filepath.Join(table, "compaction.dir", region)
}

func SplitsDir(table, region, childRegion string) string {
	return filepath.Join(table, region, "splits", childRegion)
}

func MergesDir(table, region string) string {
	return filepath.Join(table, region, "merges")
}

func OldLogFile(table, region string) string {
	return filepath.Join(table, region, "oldlogfile.log")
}
