package vfs

import (
	"fmt"
	"os"
	"sync"
)

// Chaos wraps an FS and injects failures on matching operations, for testing
// the atomic-write and lock-acquisition error paths without needing real
// disk faults.
type Chaos struct {
	fs FS

	mu    sync.Mutex
	fails map[string]error
}

// NewChaos wraps fs with fault-injection controls.
func NewChaos(fs FS) *Chaos {
	return &Chaos{fs: fs, fails: map[string]error{}}
}

// FailNext arranges for the next call to the named operation (e.g. "Rename",
// "OpenFile", "Sync") to return err instead of delegating to the wrapped FS.
// The failure is consumed by the first matching call.
func (c *Chaos) FailNext(op string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fails[op] = err
}

func (c *Chaos) take(op string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	err, ok := c.fails[op]
	if !ok {
		return nil
	}

	delete(c.fails, op)

	return err
}

func (c *Chaos) Open(path string) (File, error) {
	if err := c.take("Open"); err != nil {
		return nil, err
	}

	return c.fs.Open(path)
}

func (c *Chaos) Create(path string) (File, error) {
	if err := c.take("Create"); err != nil {
		return nil, err
	}

	return c.fs.Create(path)
}

func (c *Chaos) OpenFile(path string, flag int, perm os.FileMode) (File, error) {
	if err := c.take("OpenFile"); err != nil {
		return nil, err
	}

	f, err := c.fs.OpenFile(path, flag, perm)
	if err != nil {
		return nil, err
	}

	return &chaosFile{File: f, c: c}, nil
}

func (c *Chaos) ReadFile(path string) ([]byte, error) {
	if err := c.take("ReadFile"); err != nil {
		return nil, err
	}

	return c.fs.ReadFile(path)
}

func (c *Chaos) WriteFile(path string, data []byte, perm os.FileMode) error {
	if err := c.take("WriteFile"); err != nil {
		return err
	}

	return c.fs.WriteFile(path, data, perm)
}

func (c *Chaos) ReadDir(path string) ([]os.DirEntry, error) {
	if err := c.take("ReadDir"); err != nil {
		return nil, err
	}

	return c.fs.ReadDir(path)
}

func (c *Chaos) MkdirAll(path string, perm os.FileMode) error {
	if err := c.take("MkdirAll"); err != nil {
		return err
	}

	return c.fs.MkdirAll(path, perm)
}

func (c *Chaos) Stat(path string) (os.FileInfo, error) {
	if err := c.take("Stat"); err != nil {
		return nil, err
	}

	return c.fs.Stat(path)
}

func (c *Chaos) Lstat(path string) (os.FileInfo, error) {
	if err := c.take("Lstat"); err != nil {
		return nil, err
	}

	return c.fs.Lstat(path)
}

func (c *Chaos) Exists(path string) (bool, error) {
	if err := c.take("Exists"); err != nil {
		return false, err
	}

	return c.fs.Exists(path)
}

func (c *Chaos) Remove(path string) error {
	if err := c.take("Remove"); err != nil {
		return err
	}

	return c.fs.Remove(path)
}

func (c *Chaos) RemoveAll(path string) error {
	if err := c.take("RemoveAll"); err != nil {
		return err
	}

	return c.fs.RemoveAll(path)
}

func (c *Chaos) Rename(oldpath, newpath string) error {
	if err := c.take("Rename"); err != nil {
		return err
	}

	return c.fs.Rename(oldpath, newpath)
}

type chaosFile struct {
	File
	c *Chaos
}

func (f *chaosFile) Sync() error {
	if err := f.c.take("Sync"); err != nil {
		return fmt.Errorf("injected sync failure: %w", err)
	}

	return f.File.Sync()
}

func (f *chaosFile) Write(p []byte) (int, error) {
	if err := f.c.take("Write"); err != nil {
		return 0, err
	}

	return f.File.Write(p)
}

var _ FS = (*Chaos)(nil)
