// Package cache implements the Cache Inspector and Cache Purger of
// spec.md §4.1/§4.2, grounded on glorpus-work-gotya/pkg/cache.Manager's
// directory-sweeping style but re-targeted at manifest presence/absence
// instead of cache size accounting.
package cache

import (
	"path/filepath"

	"github.com/cperrin88/assetsync/pkg/fsys"
	"github.com/cperrin88/assetsync/pkg/logging"
	"github.com/cperrin88/assetsync/pkg/manifest"
)

// CatalogFileName is the per-extraction marker file spec.md §3 defines.
const CatalogFileName = "info.json"

// Inspector decides which manifest entries are missing from the working
// directory. It is pure with respect to filesystem reads (spec.md §4.1).
type Inspector struct {
	FS               fsys.FileSystem
	WorkingDirectory string
	DisableUnzip     bool
	Log              logging.Sink
}

// NewInspector builds an Inspector over fs rooted at workingDirectory.
func NewInspector(fs fsys.FileSystem, workingDirectory string, disableUnzip bool) *Inspector {
	return &Inspector{FS: fs, WorkingDirectory: workingDirectory, DisableUnzip: disableUnzip, Log: logging.Noop()}
}

// Missing returns the ordered sub-sequence of m considered "missing" from
// the working directory, per the presence rule of spec.md §4.1. A stat
// error on a single entry is logged and the entry is treated as missing
// (spec.md §7) rather than aborting the whole sweep.
func (i *Inspector) Missing(m manifest.Manifest) (manifest.Manifest, error) {
	missing := make(manifest.Manifest, 0, len(m))
	for _, entry := range m {
		present, err := i.isPresent(entry)
		if err != nil {
			i.safeLog().Warnf("cache: inspect %s: %v, treating as missing", entry.ResolvedName(), err)
			missing = append(missing, entry)
			continue
		}
		if !present {
			missing = append(missing, entry)
		}
	}
	return missing, nil
}

func (i *Inspector) safeLog() logging.Sink {
	if i.Log == nil {
		return logging.Noop()
	}
	return i.Log
}

// isPresent implements the presence rule of spec.md §4.1, including the
// disableUnzip gate of open question 4 (SPEC_FULL.md §9 / spec.md §9):
// when unzip is disabled, an archive entry is present iff the archive file
// itself exists, never looking at the extraction directory.
func (i *Inspector) isPresent(entry manifest.Entry) (bool, error) {
	if entry.IsArchive() && !i.DisableUnzip {
		extractDir := filepath.Join(i.WorkingDirectory, entry.UnzipTo)
		return i.archivePresent(extractDir)
	}

	fileName := entry.ResolvedName()
	filePath := filepath.Join(i.WorkingDirectory, fileName)
	return i.FS.IsFile(filePath)
}

func (i *Inspector) archivePresent(extractDir string) (bool, error) {
	isDir, err := i.FS.IsDir(extractDir)
	if err != nil {
		return false, err
	}
	if !isDir {
		return false, nil
	}

	entries, err := i.FS.ReadDir(extractDir)
	if err != nil {
		return false, err
	}
	if len(entries) == 0 {
		return false, nil
	}

	catalogPath := filepath.Join(extractDir, CatalogFileName)
	return i.FS.IsFile(catalogPath)
}
