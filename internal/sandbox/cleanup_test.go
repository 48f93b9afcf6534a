package sandbox

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDeleteDirIfSafe_RefusesPathOutsideAllowList(t *testing.T) {
	err := DeleteDirIfSafe("/home/someone/important")
	require.ErrorIs(t, err, ErrUnsafePath)
}

func TestDeleteDirIfSafe_RemovesTempScratchDir(t *testing.T) {
	dir := t.TempDir() // under /tmp
	sub := filepath.Join(dir, "match-123")
	require.NoError(t, os.MkdirAll(sub, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(sub, "f"), []byte("x"), 0o644))

	require.NoError(t, DeleteDirIfSafe(sub))

	_, err := os.Stat(sub)
	require.True(t, os.IsNotExist(err))
}

func TestManager_CleanupStaleMatchDirs_MissingDirIsNotError(t *testing.T) {
	m := &Manager{cfg: Config{MatchRunDir: filepath.Join(t.TempDir(), "does-not-exist")}}
	removed, err := m.CleanupStaleMatchDirs()
	require.NoError(t, err)
	require.Equal(t, 0, removed)
}
