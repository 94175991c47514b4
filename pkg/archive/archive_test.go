package archive

import (
	"archive/zip"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTestZip(t *testing.T, path string, files map[string]string) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	defer func() { _ = f.Close() }()

	zw := zip.NewWriter(f)
	for name, content := range files {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
}

func TestManager_Extract_RoundTrip(t *testing.T) {
	tempDir := t.TempDir()
	archivePath := filepath.Join(tempDir, "p.zip")

	files := map[string]string{
		"f1":         "hello",
		"f2":         "world",
		"sub/f3.txt": "nested",
	}
	writeTestZip(t, archivePath, files)

	m := NewManager()
	destDir := filepath.Join(tempDir, "extracted")
	require.NoError(t, m.Extract(context.Background(), archivePath, destDir))

	for name, expected := range files {
		data, err := os.ReadFile(filepath.Join(destDir, name))
		require.NoError(t, err, "expected extracted file %s", name)
		assert.Equal(t, expected, string(data))
	}
}

func TestManager_Extract_CreatesDestinationDirectory(t *testing.T) {
	tempDir := t.TempDir()
	archivePath := filepath.Join(tempDir, "p.zip")
	writeTestZip(t, archivePath, map[string]string{"a.txt": "x"})

	m := NewManager()
	destDir := filepath.Join(tempDir, "does", "not", "exist", "yet")

	require.NoError(t, m.Extract(context.Background(), archivePath, destDir))

	info, err := os.Stat(destDir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestManager_Extract_MissingArchiveErrors(t *testing.T) {
	m := NewManager()
	err := m.Extract(context.Background(), filepath.Join(t.TempDir(), "missing.zip"), t.TempDir())
	require.Error(t, err)
}

func TestManager_Extract_RejectsZipSlipEntry(t *testing.T) {
	tempDir := t.TempDir()
	archivePath := filepath.Join(tempDir, "evil.zip")
	writeTestZip(t, archivePath, map[string]string{"../escape.txt": "pwned"})

	m := NewManager()
	destDir := filepath.Join(tempDir, "extracted")
	err := m.Extract(context.Background(), archivePath, destDir)
	require.Error(t, err)

	_, statErr := os.Stat(filepath.Join(tempDir, "escape.txt"))
	assert.True(t, os.IsNotExist(statErr), "a zip-slip entry must not be written outside destDir")
}

func TestWithinDir(t *testing.T) {
	assert.True(t, withinDir("/dest", "/dest"))
	assert.True(t, withinDir("/dest", "/dest/a/b"))
	assert.False(t, withinDir("/dest", "/destination"))
	assert.False(t, withinDir("/dest", "/other"))
}
