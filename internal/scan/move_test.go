package scan

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMoveFileCreatesParentsAndKeepsMtime(t *testing.T) {
	root := t.TempDir()
	src := filepath.Join(root, "in", "a.jpg")
	dst := filepath.Join(root, "out", "2019", "summer", "a.jpg")
	writeFile(t, src, 32)
	mtime := time.Date(2012, 1, 2, 3, 4, 5, 0, time.Local)
	require.NoError(t, os.Chtimes(src, mtime, mtime))

	require.NoError(t, MoveFile(src, dst))

	assert.NoFileExists(t, src)
	info, err := os.Stat(dst)
	require.NoError(t, err)
	assert.Equal(t, int64(32), info.Size())
	assert.True(t, info.ModTime().Equal(mtime))
}

func TestMoveFileRefusesOverwrite(t *testing.T) {
	root := t.TempDir()
	src := filepath.Join(root, "a.jpg")
	dst := filepath.Join(root, "b.jpg")
	writeFile(t, src, 8)
	writeFile(t, dst, 4)

	err := MoveFile(src, dst)
	require.ErrorIs(t, err, errDestinationExists)

	assert.FileExists(t, src)
	info, err := os.Stat(dst)
	require.NoError(t, err)
	assert.Equal(t, int64(4), info.Size())
}

func TestMoveFileRejects(t *testing.T) {
	root := t.TempDir()
	src := filepath.Join(root, "a.jpg")
	writeFile(t, src, 8)

	assert.Error(t, MoveFile(filepath.Join(root, "missing.jpg"), filepath.Join(root, "x.jpg")))
	assert.Error(t, MoveFile(root, filepath.Join(root, "x.jpg")))
	assert.Error(t, MoveFile(src, filepath.Join(root, "noext")))
	assert.FileExists(t, src)
}

func TestCopyExclusiveKeepsExistingDestination(t *testing.T) {
	root := t.TempDir()
	src := filepath.Join(root, "a.jpg")
	dst := filepath.Join(root, "b.jpg")
	writeFile(t, src, 8)
	writeFile(t, dst, 4)

	info, err := os.Stat(src)
	require.NoError(t, err)
	assert.Error(t, copyExclusive(src, dst, info))
	assert.FileExists(t, dst)
}
