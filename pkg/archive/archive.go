// Package archive is the Extractor component of spec.md §2, grounded on
// glorpus-work-gotya/pkg/archive.Manager but trimmed to the single
// operation the engine needs: extract an archive file into a target
// directory.
package archive

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/mholt/archives"
)

// Extractor extracts an archive file into a target directory.
type Extractor interface {
	Extract(ctx context.Context, archivePath, destDir string) error
}

// Manager is the production Extractor, backed by mholt/archives so the
// format (zip, tar.gz, ...) is auto-detected from content rather than the
// file extension.
type Manager struct{}

// NewManager creates a new Manager instance.
func NewManager() *Manager {
	return &Manager{}
}

// Extract implements Extractor.
func (m *Manager) Extract(ctx context.Context, archivePath, destDir string) error {
	fsys, err := archives.FileSystem(ctx, archivePath, nil)
	if err != nil {
		return fmt.Errorf("failed to open archive file: %w", err)
	}
	if closer, ok := fsys.(io.Closer); ok {
		defer func() { _ = closer.Close() }()
	}

	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return fmt.Errorf("failed to create destination directory: %w", err)
	}

	walkFn := func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		return m.extractEntry(fsys, path, destDir, d)
	}

	return fs.WalkDir(fsys, ".", walkFn)
}

func (m *Manager) extractEntry(fsys fs.FS, path, destDir string, d fs.DirEntry) error {
	if path == "." {
		return nil
	}

	targetPath, err := safeJoin(destDir, path)
	if err != nil {
		return err
	}

	if d.IsDir() {
		return os.MkdirAll(targetPath, 0o755)
	}

	info, err := d.Info()
	if err != nil {
		return fmt.Errorf("failed to get file info for %s: %w", path, err)
	}

	if info.Mode()&os.ModeSymlink != 0 {
		return m.writeSymlink(fsys, path, targetPath, destDir)
	}

	return m.writeRegularFile(fsys, path, targetPath, info)
}

// safeJoin joins destDir and an archive-relative entry path, rejecting any
// path that would resolve outside destDir (zip-slip: "../" segments or an
// absolute path smuggled into an archive entry name).
func safeJoin(destDir, path string) (string, error) {
	joined := filepath.Join(destDir, path)
	if !withinDir(destDir, joined) {
		return "", fmt.Errorf("archive entry %q escapes destination directory", path)
	}
	return joined, nil
}

// withinDir reports whether target is base itself or a descendant of it.
func withinDir(base, target string) bool {
	base = filepath.Clean(base)
	target = filepath.Clean(target)
	if target == base {
		return true
	}
	return strings.HasPrefix(target, base+string(os.PathSeparator))
}

func (m *Manager) writeSymlink(fsys fs.FS, path, targetPath, destDir string) error {
	linkTarget, err := fsys.Open(path)
	if err != nil {
		return fmt.Errorf("failed to read symlink %s: %w", path, err)
	}
	defer func() { _ = linkTarget.Close() }()

	targetBytes, err := io.ReadAll(linkTarget)
	if err != nil {
		return fmt.Errorf("failed to read symlink target %s: %w", path, err)
	}

	rawLink := string(targetBytes)
	resolved := rawLink
	if !filepath.IsAbs(resolved) {
		resolved = filepath.Join(filepath.Dir(targetPath), resolved)
	}
	if !withinDir(destDir, resolved) {
		return fmt.Errorf("symlink %s targets %q, which escapes the destination directory", path, rawLink)
	}

	if err := os.MkdirAll(filepath.Dir(targetPath), 0o755); err != nil {
		return fmt.Errorf("failed to create parent directory for symlink %s: %w", path, err)
	}

	_ = os.Remove(targetPath)
	return os.Symlink(rawLink, targetPath)
}

func (m *Manager) writeRegularFile(fsys fs.FS, path, targetPath string, info fs.FileInfo) error {
	srcFile, err := fsys.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open source file %s: %w", path, err)
	}
	defer func() { _ = srcFile.Close() }()

	if err := os.MkdirAll(filepath.Dir(targetPath), 0o755); err != nil {
		return fmt.Errorf("failed to create parent directory for %s: %w", path, err)
	}

	dstFile, err := os.OpenFile(targetPath, os.O_RDWR|os.O_CREATE|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return fmt.Errorf("failed to create destination file %s: %w", targetPath, err)
	}
	defer func() { _ = dstFile.Close() }()

	if _, err := io.Copy(dstFile, srcFile); err != nil {
		return fmt.Errorf("failed to copy file %s: %w", path, err)
	}

	return os.Chmod(targetPath, info.Mode().Perm())
}
