package layout

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseFileName(t *testing.T) {
	id, parent, isRef, err := ParseFileName("42")
	require.NoError(t, err)
	require.Equal(t, uint64(42), id)
	require.Empty(t, parent)
	require.False(t, isRef)

	id, parent, isRef, err = ParseFileName("7.myregion_enc")
	require.NoError(t, err)
	require.Equal(t, uint64(7), id)
	require.Equal(t, "myregion_enc", parent)
	require.True(t, isRef)

	_, _, _, err = ParseFileName("not-a-number")
	require.Error(t, err)
}

func TestFileNameRoundtrip(t *testing.T) {
	name := FileName(5, "")
	id, parent, isRef, err := ParseFileName(name)
	require.NoError(t, err)
	require.Equal(t, uint64(5), id)
	require.Empty(t, parent)
	require.False(t, isRef)

	name = FileName(5, "parentregion")
	id, parent, isRef, err = ParseFileName(name)
	require.NoError(t, err)
	require.Equal(t, uint64(5), id)
	require.Equal(t, "parentregion", parent)
	require.True(t, isRef)
}

func TestLocalFSCreateAppendRename(t *testing.T) {
	dir := t.TempDir()
	fs := NewLocalFS(dir)
	require.NoError(t, fs.MkdirAll("tbl/region/cf/mapfiles"))

	w, err := fs.AppendWriter("tbl/region/cf/mapfiles/1")
	require.NoError(t, err)
	_, err = w.Write([]byte("hello"))
	require.NoError(t, err)
	require.NoError(t, w.Sync())
	require.NoError(t, w.Close())

	exists, err := fs.Exists("tbl/region/cf/mapfiles/1")
	require.NoError(t, err)
	require.True(t, exists)

	require.NoError(t, fs.Rename("tbl/region/cf/mapfiles/1", "tbl/region/cf/mapfiles/1.ref"))
	exists, err = fs.Exists("tbl/region/cf/mapfiles/1")
	require.NoError(t, err)
	require.False(t, exists)

	b, err := fs.ReadFile("tbl/region/cf/mapfiles/1.ref")
	require.NoError(t, err)
	require.Equal(t, "hello", string(b))

	names, err := fs.ReadDir("tbl/region/cf/mapfiles")
	require.NoError(t, err)
	require.Equal(t, []string{"1.ref"}, names)

	require.NoError(t, fs.SyncDir("tbl/region/cf/mapfiles"))

	_, err = os.Stat(filepath.Join(dir, "tbl/region/cf/mapfiles/1.ref"))
	require.NoError(t, err)
}
