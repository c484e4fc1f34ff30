package storefile

import (
	"testing"

	"github.com/stretchr/testify/require"

	"regiondb/key"
	"regiondb/layout"
)

func buildFile(t *testing.T, fs layout.FileSystem, path string, edits []key.Edit) Result {
	t.Helper()
	b, err := NewBuilder(fs, path)
	require.NoError(t, err)
	for _, e := range edits {
		require.NoError(t, b.Add(e.Key, e.Value))
	}
	res, err := b.Finish()
	require.NoError(t, err)
	return res
}

func TestConcreteFileCursorAndGetClosest(t *testing.T) {
	dir := t.TempDir()
	fs := layout.NewLocalFS(dir)

	edits := []key.Edit{
		{Key: key.New([]byte("a"), []byte("cf:x"), 100), Value: key.Put([]byte("av"))},
		{Key: key.New([]byte("b"), []byte("cf:x"), 100), Value: key.Put([]byte("bv"))},
		{Key: key.New([]byte("c"), []byte("cf:x"), 100), Value: key.Put([]byte("cv"))},
	}
	buildFile(t, fs, "data", edits)
	require.NoError(t, fs.MkdirAll("."))

	cf, err := openConcrete(fs, "data")
	require.NoError(t, err)
	require.Equal(t, uint64(0), cf.MaxSequence())

	c := cf.CursorAll()
	var rows []string
	for c.Valid() {
		rows = append(rows, string(c.Key().Row))
		c.Next()
	}
	require.Equal(t, []string{"a", "b", "c"}, rows)

	k, v, ok := cf.GetClosest(key.New([]byte("b"), nil, key.MaxTimestamp), false)
	require.True(t, ok)
	require.Equal(t, "b", string(k.Row))
	require.Equal(t, "bv", string(v.Bytes))

	k, v, ok = cf.GetClosest(key.New([]byte("bb"), nil, key.MaxTimestamp), true)
	require.True(t, ok)
	require.Equal(t, "b", string(k.Row))
	require.Equal(t, "bv", string(v.Bytes))

	fk, ok := cf.FinalKey()
	require.True(t, ok)
	require.Equal(t, "c", string(fk.Row))
}

func TestOpenWiresInfoSidecarMaxSequence(t *testing.T) {
	dir := t.TempDir()
	fs := layout.NewLocalFS(dir)
	require.NoError(t, fs.MkdirAll("mapfiles"))
	require.NoError(t, fs.MkdirAll("info"))

	dataPath := "mapfiles/1"
	infoPath := "info/1"
	buildFile(t, fs, dataPath, []key.Edit{
		{Key: key.New([]byte("a"), []byte("cf:x"), 10), Value: key.Put([]byte("v"))},
	})
	require.NoError(t, WriteInfoSidecar(fs, infoPath, 42))

	f, err := Open(fs, "table", "region", "cf", dataPath, infoPath, 1, "", nil)
	require.NoError(t, err)
	require.Equal(t, uint64(42), f.MaxSequence())
}

func TestReferenceFileFiltersByHalf(t *testing.T) {
	dir := t.TempDir()
	fs := layout.NewLocalFS(dir)
	require.NoError(t, fs.MkdirAll("table/parent-region/cf/mapfiles"))
	require.NoError(t, fs.MkdirAll("table/parent-region/cf/info"))
	require.NoError(t, fs.MkdirAll("child-region/cf/mapfiles"))

	parentData := "table/parent-region/cf/mapfiles/1"
	parentInfo := "table/parent-region/cf/info/1"
	buildFile(t, fs, parentData, []key.Edit{
		{Key: key.New([]byte("a"), []byte("cf:x"), 100), Value: key.Put([]byte("av"))},
		{Key: key.New([]byte("m"), []byte("cf:x"), 100), Value: key.Put([]byte("mv"))},
		{Key: key.New([]byte("z"), []byte("cf:x"), 100), Value: key.Put([]byte("zv"))},
	})
	require.NoError(t, WriteInfoSidecar(fs, parentInfo, 7))

	refDataPath := "child-region/cf/mapfiles/2.parent-region"
	desc := RefDescriptor{ParentRegion: "parent-region", ParentFileID: 1, SplitKey: []byte("m"), Half: HalfBottom}
	require.NoError(t, WriteReference(fs, refDataPath, desc))

	f, err := Open(fs, "table", "child-region", "cf", refDataPath, "child-region/cf/info/2.parent-region", 2, "parent-region", nil)
	require.NoError(t, err)
	require.Equal(t, uint64(7), f.MaxSequence())

	c := f.CursorAll()
	var rows []string
	for c.Valid() {
		rows = append(rows, string(c.Key().Row))
		c.Next()
	}
	require.Equal(t, []string{"a"}, rows)

	topDesc := RefDescriptor{ParentRegion: "parent-region", ParentFileID: 1, SplitKey: []byte("m"), Half: HalfTop}
	topRefPath := "child-region/cf/mapfiles/3.parent-region"
	require.NoError(t, WriteReference(fs, topRefPath, topDesc))
	topF, err := Open(fs, "table", "child-region", "cf", topRefPath, "child-region/cf/info/3.parent-region", 3, "parent-region", nil)
	require.NoError(t, err)

	c = topF.CursorAll()
	rows = nil
	for c.Valid() {
		rows = append(rows, string(c.Key().Row))
		c.Next()
	}
	require.Equal(t, []string{"m", "z"}, rows)
}

func TestRefDescriptorRoundtrip(t *testing.T) {
	desc := RefDescriptor{ParentRegion: "r1", ParentFileID: 99, SplitKey: []byte("mmm"), Half: HalfTop}
	got, err := DecodeRef(EncodeRef(desc))
	require.NoError(t, err)
	require.Equal(t, desc, got)
}
