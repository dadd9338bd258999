package vfs

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAtomicWriterWriteBytes(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "doc.md")

	w := NewAtomicWriter(NewReal())
	require.NoError(t, w.WriteBytes(path, []byte("hello\n")))

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "hello\n", string(got))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1, "no leftover temp files")
}

func TestAtomicWriterOverwritesExisting(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "doc.md")
	require.NoError(t, os.WriteFile(path, []byte("old"), 0o644))

	w := NewAtomicWriter(NewReal())
	require.NoError(t, w.WriteBytes(path, []byte("new")))

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "new", string(got))
}

func TestAtomicWriterRejectsEmptyPath(t *testing.T) {
	t.Parallel()

	w := NewAtomicWriter(NewReal())
	err := w.WriteBytes("", []byte("x"))
	require.Error(t, err)
}

func TestAtomicWriterRenameFailureLeavesTargetUntouched(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "doc.md")
	require.NoError(t, os.WriteFile(path, []byte("old"), 0o644))

	chaos := NewChaos(NewReal())
	chaos.FailNext("Rename", errors.New("injected"))

	w := NewAtomicWriter(chaos)
	err := w.WriteBytes(path, []byte("new"))
	require.Error(t, err)

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "old", string(got), "failed rename must not corrupt the target")

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1, "temp file must be cleaned up after a failed rename")
}

func TestLockerExclusiveBlocksSecondAcquirer(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "sync.lock")

	locker := NewLocker(NewReal())

	lock, err := locker.Lock(path)
	require.NoError(t, err)
	defer lock.Close()

	_, err = locker.TryLock(path)
	require.ErrorIs(t, err, ErrWouldBlock)
}

func TestLockerReleaseAllowsReacquire(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "sync.lock")

	locker := NewLocker(NewReal())

	lock, err := locker.Lock(path)
	require.NoError(t, err)
	require.NoError(t, lock.Close())

	lock2, err := locker.TryLock(path)
	require.NoError(t, err)
	require.NoError(t, lock2.Close())
}

func TestLockerWithTimeoutExpires(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "sync.lock")

	locker := NewLocker(NewReal())

	lock, err := locker.Lock(path)
	require.NoError(t, err)
	defer lock.Close()

	_, err = locker.LockWithTimeout(path, 20_000_000) // 20ms
	require.ErrorIs(t, err, ErrWouldBlock)
}

func TestLockCloseIdempotent(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "sync.lock")

	locker := NewLocker(NewReal())

	lock, err := locker.Lock(path)
	require.NoError(t, err)
	require.NoError(t, lock.Close())
	require.NoError(t, lock.Close())
}
