package cache

import (
	"path/filepath"

	"github.com/cperrin88/assetsync/pkg/fsys"
	"github.com/cperrin88/assetsync/pkg/logging"
	"github.com/cperrin88/assetsync/pkg/manifest"
)

// Purger enumerates immediate children of the working directory and
// removes whatever no current manifest entry references (spec.md §4.2).
// Per spec.md §9 open question 3, the sweep is entirely synchronous.
type Purger struct {
	FS               fsys.FileSystem
	WorkingDirectory string
	Log              logging.Sink
}

// NewPurger builds a Purger over fs rooted at workingDirectory.
func NewPurger(fs fsys.FileSystem, workingDirectory string, log logging.Sink) *Purger {
	if log == nil {
		log = logging.Noop()
	}
	return &Purger{FS: fs, WorkingDirectory: workingDirectory, Log: log}
}

// Purge removes every immediate child of the working directory whose name
// is not some entry's FileName or UnzipTo. Errors on individual entries are
// logged and do not abort the sweep (spec.md §4.2).
func (p *Purger) Purge(m manifest.Manifest) {
	kept := keptNames(m)

	entries, err := p.FS.ReadDir(p.WorkingDirectory)
	if err != nil {
		p.Log.Errorf("purge: read working directory %s: %v", p.WorkingDirectory, err)
		return
	}

	for _, e := range entries {
		if kept[e.Name()] {
			continue
		}
		target := filepath.Join(p.WorkingDirectory, e.Name())
		if err := p.FS.RemoveAll(target); err != nil {
			p.Log.Errorf("purge: remove orphan %s: %v", target, err)
			continue
		}
		p.Log.Infof("purge: removed orphan %s", target)
	}
}

func keptNames(m manifest.Manifest) map[string]bool {
	kept := make(map[string]bool, len(m)*2)
	for _, entry := range m {
		kept[entry.ResolvedName()] = true
		if entry.UnzipTo != "" {
			kept[entry.UnzipTo] = true
		}
	}
	return kept
}
