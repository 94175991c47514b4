package postprocess

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cperrin88/assetsync/pkg/clock"
	"github.com/cperrin88/assetsync/pkg/fsys"
	"github.com/cperrin88/assetsync/pkg/manifest"
)

// fakeExtractor is a hand-rolled test double for archive.Extractor: it
// drops fixed children into destDir instead of actually unpacking bytes,
// since the Processor under test only cares about what happens after
// extraction succeeds or fails.
type fakeExtractor struct {
	fs       fsys.FileSystem
	children map[string]string
	err      error
}

func (f *fakeExtractor) Extract(_ context.Context, _ string, destDir string) error {
	if f.err != nil {
		return f.err
	}
	if err := f.fs.MkdirAll(destDir); err != nil {
		return err
	}
	for name, content := range f.children {
		if err := f.fs.WriteFile(destDir+"/"+name, []byte(content), fsys.FileModeDefault); err != nil {
			return err
		}
	}
	return nil
}

func TestProcessor_Process_NonArchiveIsNoOp(t *testing.T) {
	fs := fsys.New(afero.NewMemMapFs())
	require.NoError(t, fs.MkdirAll("/work"))
	require.NoError(t, fs.WriteFile("/work/a.bin", []byte("x"), fsys.FileModeDefault))

	p := NewProcessor(fs, &fakeExtractor{fs: fs}, "/work", clock.New())
	entry := manifest.Entry{URL: "http://h/a.bin"}

	require.NoError(t, p.Process(context.Background(), entry, "/work/a.bin"))

	exists, err := fs.Exists("/work/a.bin")
	require.NoError(t, err)
	assert.True(t, exists, "non-archive entries must not have their destination touched")
}

func TestProcessor_Process_ExtractsWritesCatalogAndDeletesArchive(t *testing.T) {
	fs := fsys.New(afero.NewMemMapFs())
	require.NoError(t, fs.MkdirAll("/work"))
	require.NoError(t, fs.WriteFile("/work/p.zip", []byte("zip bytes"), fsys.FileModeDefault))

	fc := clock.NewFake(time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC))
	extractor := &fakeExtractor{fs: fs, children: map[string]string{
		"f1":      "one",
		"f2":      "two",
		".hidden": "secret",
	}}
	p := NewProcessor(fs, extractor, "/work", fc)

	entry := manifest.Entry{URL: "http://h/p.zip", UnzipTo: "p"}
	require.NoError(t, p.Process(context.Background(), entry, "/work/p.zip"))

	exists, err := fs.Exists("/work/p.zip")
	require.NoError(t, err)
	assert.False(t, exists, "the archive must be deleted after extraction")

	data, err := fs.ReadFile("/work/p/info.json")
	require.NoError(t, err)

	var catalog Catalog
	require.NoError(t, json.Unmarshal(data, &catalog))
	assert.ElementsMatch(t, []string{"f1", "f2"}, catalog.RequiredFiles, "dotfiles are excluded")
	assert.Equal(t, fc.Now().UnixMilli(), catalog.DownloadedAt)
}

func TestProcessor_Process_ExtractionErrorLeavesArchiveInPlace(t *testing.T) {
	fs := fsys.New(afero.NewMemMapFs())
	require.NoError(t, fs.MkdirAll("/work"))
	require.NoError(t, fs.WriteFile("/work/p.zip", []byte("corrupt"), fsys.FileModeDefault))

	extractor := &fakeExtractor{fs: fs, err: errors.New("bad zip")}
	p := NewProcessor(fs, extractor, "/work", clock.New())

	entry := manifest.Entry{URL: "http://h/p.zip", UnzipTo: "p"}
	err := p.Process(context.Background(), entry, "/work/p.zip")
	require.Error(t, err)

	exists, existsErr := fs.Exists("/work/p.zip")
	require.NoError(t, existsErr)
	assert.True(t, exists, "a failed extraction must leave the archive for the next reconciliation pass to retry")
}

func TestProcessor_Process_CatalogExcludesItself(t *testing.T) {
	fs := fsys.New(afero.NewMemMapFs())
	require.NoError(t, fs.MkdirAll("/work"))
	require.NoError(t, fs.WriteFile("/work/p.zip", []byte("zip bytes"), fsys.FileModeDefault))

	extractor := &fakeExtractor{fs: fs, children: map[string]string{"f1": "one"}}
	p := NewProcessor(fs, extractor, "/work", clock.New())

	entry := manifest.Entry{URL: "http://h/p.zip", UnzipTo: "p"}
	require.NoError(t, p.Process(context.Background(), entry, "/work/p.zip"))

	data, err := fs.ReadFile("/work/p/info.json")
	require.NoError(t, err)
	var catalog Catalog
	require.NoError(t, json.Unmarshal(data, &catalog))
	assert.Equal(t, []string{"f1"}, catalog.RequiredFiles)
}
