// Package fsys is the FileSystem adapter component of spec.md §2: existence,
// stat, read-dir, mkdir-all, unlink, recursive remove and a streaming
// writer, over an afero.Fs so tests can run against an in-memory
// filesystem instead of touching disk (grounded on
// jgivc-fetchtracker/internal/adapter/fsadapter's NewFSAdapterWithFS
// dependency-injection pattern).
package fsys

import (
	"io"
	"os"

	"github.com/spf13/afero"
)

// FileMode defaults, mirroring glorpus-work-gotya/pkg/fsutil's permission
// constants.
const (
	FileModeDefault os.FileMode = 0o644
	DirModeDefault  os.FileMode = 0o755
)

// FileSystem is the abstract filesystem every other component depends on.
type FileSystem interface {
	// Exists reports whether path exists at all (file or directory).
	Exists(path string) (bool, error)
	// Stat returns file info for path.
	Stat(path string) (os.FileInfo, error)
	// IsDir reports whether path exists and is a directory.
	IsDir(path string) (bool, error)
	// IsFile reports whether path exists and is a regular file.
	IsFile(path string) (bool, error)
	// ReadDir lists the immediate children of dir, in the filesystem's
	// reported order.
	ReadDir(dir string) ([]os.FileInfo, error)
	// MkdirAll creates path and any missing parents.
	MkdirAll(path string) error
	// Remove unlinks a single file.
	Remove(path string) error
	// RemoveAll recursively removes path (file or directory).
	RemoveAll(path string) error
	// Create opens path for writing, truncating any existing content.
	// The caller must Close the returned writer to flush it to disk.
	Create(path string) (io.WriteCloser, error)
	// WriteFile writes the given bytes to path in one shot.
	WriteFile(path string, data []byte, perm os.FileMode) error
	// ReadFile reads path fully into memory.
	ReadFile(path string) ([]byte, error)
}

// aferoFS adapts an afero.Fs to FileSystem.
type aferoFS struct {
	fs afero.Fs
}

// New wraps an existing afero.Fs. Production callers typically pass
// afero.NewOsFs(); tests pass afero.NewMemMapFs().
func New(fs afero.Fs) FileSystem {
	return &aferoFS{fs: fs}
}

// NewOS returns the production FileSystem backed by the real disk.
func NewOS() FileSystem {
	return New(afero.NewOsFs())
}

func (a *aferoFS) Exists(path string) (bool, error) {
	return afero.Exists(a.fs, path)
}

func (a *aferoFS) Stat(path string) (os.FileInfo, error) {
	return a.fs.Stat(path)
}

func (a *aferoFS) IsDir(path string) (bool, error) {
	info, err := a.fs.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return info.IsDir(), nil
}

func (a *aferoFS) IsFile(path string) (bool, error) {
	info, err := a.fs.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return !info.IsDir(), nil
}

func (a *aferoFS) ReadDir(dir string) ([]os.FileInfo, error) {
	entries, err := afero.ReadDir(a.fs, dir)
	if err != nil {
		return nil, err
	}
	return entries, nil
}

func (a *aferoFS) MkdirAll(path string) error {
	return a.fs.MkdirAll(path, DirModeDefault)
}

func (a *aferoFS) Remove(path string) error {
	return a.fs.Remove(path)
}

func (a *aferoFS) RemoveAll(path string) error {
	return a.fs.RemoveAll(path)
}

func (a *aferoFS) Create(path string) (io.WriteCloser, error) {
	return a.fs.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, FileModeDefault)
}

func (a *aferoFS) WriteFile(path string, data []byte, perm os.FileMode) error {
	return afero.WriteFile(a.fs, path, data, perm)
}

func (a *aferoFS) ReadFile(path string) ([]byte, error) {
	return afero.ReadFile(a.fs, path)
}
