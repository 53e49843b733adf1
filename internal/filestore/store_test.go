package filestore

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tanq16/rangefetch/internal/utils"
)

func fixedSpace(n uint64) func(string) (uint64, error) {
	return func(string) (uint64, error) { return n, nil }
}

func TestPrepareCreatesDirsAndPresizes(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "nested", "deeper", "file.bin")
	s := New(Options{FreeSpace: fixedSpace(1 << 30)})

	f, err := s.Prepare(dest, 4096, 0)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, filepath.Join(filepath.Dir(dest), utils.TempDirName, "file.bin.part"), s.TempPath(dest))
	info, err := os.Stat(s.TempPath(dest))
	require.NoError(t, err)
	assert.EqualValues(t, 4096, info.Size())
}

func TestPrepareKeepsExistingPartial(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "file.bin")
	s := New(Options{FreeSpace: fixedSpace(1 << 30)})

	f, err := s.Prepare(dest, 0, 0)
	require.NoError(t, err)
	_, err = f.WriteAt([]byte("hello"), 0)
	require.NoError(t, err)
	f.Close()

	f, err = s.Prepare(dest, 0, 5)
	require.NoError(t, err)
	defer f.Close()
	buf := make([]byte, 5)
	_, err = f.ReadAt(buf, 0)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(buf))
}

func TestPrepareDropsStaleContent(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "file.bin")
	s := New(Options{FreeSpace: fixedSpace(1 << 30)})
	require.NoError(t, os.MkdirAll(filepath.Dir(s.TempPath(dest)), 0755))
	require.NoError(t, os.WriteFile(s.TempPath(dest), make([]byte, 2000), 0644))

	f, err := s.Prepare(dest, 500, 0)
	require.NoError(t, err)
	info, err := f.Stat()
	require.NoError(t, err)
	assert.EqualValues(t, 500, info.Size(), "known size is exact")
	f.Close()

	require.NoError(t, os.WriteFile(s.TempPath(dest), []byte("stale bytes"), 0644))
	f, err = s.Prepare(dest, 0, 0)
	require.NoError(t, err)
	defer f.Close()
	info, err = f.Stat()
	require.NoError(t, err)
	assert.Zero(t, info.Size(), "a fresh start with unknown size begins empty")
}

func TestPrepareInsufficientSpace(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "big.iso")
	s := New(Options{FreeSpace: fixedSpace(100)})

	_, err := s.Prepare(dest, 1000, 0)
	require.Error(t, err)
	assert.True(t, errors.Is(err, utils.ErrInsufficientSpace))
	var local *utils.LocalError
	assert.True(t, errors.As(err, &local))

	// only the remaining bytes must fit
	f, err := s.Prepare(dest, 1000, 950)
	require.NoError(t, err)
	f.Close()
}

func TestPrepareFailsWhenDirectoryCannotBeCreated(t *testing.T) {
	root := t.TempDir()
	blocker := filepath.Join(root, "blocker")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0644))
	s := New(Options{FreeSpace: fixedSpace(1 << 30)})

	_, err := s.Prepare(filepath.Join(blocker, "file.bin"), 10, 0)
	var local *utils.LocalError
	require.True(t, errors.As(err, &local))
	assert.Equal(t, "mkdir", local.Op)
}

func TestFinalizeRenamesAndCleansTempDir(t *testing.T) {
	dir := t.TempDir()
	dest := filepath.Join(dir, "file.bin")
	s := New(Options{FreeSpace: fixedSpace(1 << 30)})

	f, err := s.Prepare(dest, 3, 0)
	require.NoError(t, err)
	_, err = f.WriteAt([]byte("abc"), 0)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	require.NoError(t, s.Finalize(dest))
	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, "abc", string(data))
	assert.NoDirExists(t, filepath.Join(dir, utils.TempDirName))
}

func TestFinalizeFailureKeepsTemp(t *testing.T) {
	dir := t.TempDir()
	dest := filepath.Join(dir, "file.bin")
	s := New(Options{FreeSpace: fixedSpace(1 << 30)})

	f, err := s.Prepare(dest, 3, 0)
	require.NoError(t, err)
	require.NoError(t, f.Close())
	// a non-empty directory at dest makes the rename fail
	require.NoError(t, os.MkdirAll(filepath.Join(dest, "occupied"), 0755))

	err = s.Finalize(dest)
	var local *utils.LocalError
	require.True(t, errors.As(err, &local))
	assert.Equal(t, "rename", local.Op)
	assert.FileExists(t, s.TempPath(dest))
}

func TestDiscardAndRemove(t *testing.T) {
	dir := t.TempDir()
	dest := filepath.Join(dir, "file.bin")
	s := New(Options{FreeSpace: fixedSpace(1 << 30)})

	f, err := s.Prepare(dest, 10, 0)
	require.NoError(t, err)
	f.Close()
	require.NoError(t, s.DiscardPartial(dest))
	assert.NoFileExists(t, s.TempPath(dest))
	require.NoError(t, s.DiscardPartial(dest))

	require.NoError(t, os.WriteFile(dest, []byte("done"), 0644))
	require.NoError(t, s.Remove(dest))
	assert.NoFileExists(t, dest)
}

func TestClean(t *testing.T) {
	dir := t.TempDir()
	s := New(Options{FreeSpace: fixedSpace(1 << 30)})
	for _, name := range []string{"a.bin", "b.bin"} {
		f, err := s.Prepare(filepath.Join(dir, name), 1, 0)
		require.NoError(t, err)
		f.Close()
	}

	require.NoError(t, s.Clean(filepath.Join(dir, "a.bin")))
	assert.NoFileExists(t, s.TempPath(filepath.Join(dir, "a.bin")))
	assert.FileExists(t, s.TempPath(filepath.Join(dir, "b.bin")))

	require.NoError(t, s.Clean(dir))
	assert.NoDirExists(t, filepath.Join(dir, utils.TempDirName))
}
