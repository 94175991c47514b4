// Package postprocess implements the post-download step of spec.md §4.5:
// archive extraction, the per-extraction info.json catalog, and archive
// cleanup. It satisfies backoff.PostProcessor.
package postprocess

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/cperrin88/assetsync/pkg/archive"
	"github.com/cperrin88/assetsync/pkg/cache"
	"github.com/cperrin88/assetsync/pkg/clock"
	"github.com/cperrin88/assetsync/pkg/fsys"
	"github.com/cperrin88/assetsync/pkg/logging"
	"github.com/cperrin88/assetsync/pkg/manifest"
)

// Catalog is the JSON document written to extractDir/info.json
// (spec.md §3 CatalogFile), grounded on
// glorpus-work-gotya/pkg/artifact.InstalledDatabase's json-tagged,
// MarshalIndent-then-write style.
type Catalog struct {
	RequiredFiles []string `json:"requiredFiles"`
	DownloadedAt  int64    `json:"downloadedAt"`
}

// Processor runs after a successful Engine.Start for one manifest entry.
type Processor struct {
	FS               fsys.FileSystem
	Extractor        archive.Extractor
	WorkingDirectory string
	Clock            clock.Clock
	Log              logging.Sink
}

// NewProcessor builds a Processor rooted at workingDirectory.
func NewProcessor(fs fsys.FileSystem, extractor archive.Extractor, workingDirectory string, clk clock.Clock) *Processor {
	return &Processor{
		FS:               fs,
		Extractor:        extractor,
		WorkingDirectory: workingDirectory,
		Clock:            clk,
		Log:              logging.Noop(),
	}
}

// Process implements backoff.PostProcessor (spec.md §4.5). Non-archive
// entries are a no-op: only entries with an UnzipTo target get extracted.
func (p *Processor) Process(ctx context.Context, entry manifest.Entry, destination string) error {
	if !entry.IsArchive() {
		return nil
	}

	extractDir := filepath.Join(p.WorkingDirectory, entry.UnzipTo)
	if err := p.Extractor.Extract(ctx, destination, extractDir); err != nil {
		return fmt.Errorf("postprocess: extract %s into %s: %w", destination, extractDir, err)
	}

	isDir, err := p.FS.IsDir(extractDir)
	if err != nil {
		return fmt.Errorf("postprocess: stat extraction target %s: %w", extractDir, err)
	}
	if isDir {
		if err := p.writeCatalog(extractDir); err != nil {
			return err
		}
	}

	if err := p.FS.Remove(destination); err != nil {
		p.safeLog().Warnf("postprocess: remove archive %s: %v", destination, err)
	}
	return nil
}

// writeCatalog lists extractDir's immediate, non-dotfile children as
// requiredFiles and writes info.json (spec.md §4.5/§3 CatalogFile).
func (p *Processor) writeCatalog(extractDir string) error {
	entries, err := p.FS.ReadDir(extractDir)
	if err != nil {
		return fmt.Errorf("postprocess: list %s: %w", extractDir, err)
	}

	required := make([]string, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if name == cache.CatalogFileName || strings.HasPrefix(name, ".") {
			continue
		}
		required = append(required, name)
	}

	catalog := Catalog{
		RequiredFiles: required,
		DownloadedAt:  p.nowMillis(),
	}
	data, err := json.MarshalIndent(catalog, "", "  ")
	if err != nil {
		return fmt.Errorf("postprocess: marshal catalog for %s: %w", extractDir, err)
	}

	catalogPath := filepath.Join(extractDir, cache.CatalogFileName)
	if err := p.FS.WriteFile(catalogPath, data, fsys.FileModeDefault); err != nil {
		return fmt.Errorf("postprocess: write %s: %w", catalogPath, err)
	}
	return nil
}

func (p *Processor) nowMillis() int64 {
	if p.Clock != nil {
		return p.Clock.Now().UnixMilli()
	}
	return 0
}

func (p *Processor) safeLog() logging.Sink {
	if p.Log == nil {
		return logging.Noop()
	}
	return p.Log
}
