package workspace

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandle_Paths(t *testing.T) {
	h := NewHandle("/work/api")

	assert.Equal(t, "/work/api", h.Root())
	assert.Equal(t, filepath.Join("/work/api", ".apidb"), h.Dir())
	assert.Equal(t, filepath.Join("/work/api", ".apidb", "config.json"), h.ConfigPath())
	assert.Equal(t, filepath.Join("/work/api", ".apidb", "index.sqlite"), h.IndexPath())
	assert.Equal(t, filepath.Join("/work/api", ".apidb", "index.sqlite.tmp"), h.IndexTmpPath())
	assert.Equal(t, filepath.Join("/work/api", ".apidb", "index.sqlite.bak"), h.IndexBakPath())
	assert.Equal(t, filepath.Join("/work/api", ".apidb", "state.sqlite"), h.StatePath())
	assert.Equal(t, filepath.Join("/work/api", ".apidb", "blobs"), h.BlobDir())
	assert.Equal(t, filepath.Join("/work/api", ".apidb", "lock"), h.LockPath())
}

func TestFindRoot_ExplicitFlagWins(t *testing.T) {
	dir := t.TempDir()

	sel, err := FindRoot("/somewhere/else", dir)
	require.NoError(t, err)
	assert.Equal(t, dir, sel.Root)
	assert.Equal(t, "explicit --root", sel.Reason)
}

func TestFindRoot_WalksUpToMarkerDirectory(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, DirName), 0700))

	nested := filepath.Join(root, "a", "b", "c")
	require.NoError(t, os.MkdirAll(nested, 0700))

	sel, err := FindRoot(nested, "")
	require.NoError(t, err)
	assert.Equal(t, root, sel.Root)
	assert.Contains(t, sel.Reason, DirName)
}

func TestFindRoot_DefaultsToCwd(t *testing.T) {
	dir := t.TempDir()

	sel, err := FindRoot(dir, "")
	require.NoError(t, err)
	assert.Equal(t, dir, sel.Root)
	assert.Equal(t, "default to cwd", sel.Reason)
}
