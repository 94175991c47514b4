// Package manifest holds the declarative data model of spec.md §3: the
// ordered list of remote assets a working directory should contain, and
// the helpers that resolve each entry's destination filename.
package manifest

import (
	"net/url"
	"path"
	"strings"
)

// Entry is one declarative asset description (spec.md §3 ManifestEntry).
type Entry struct {
	// URL is the remote location of the asset. Required, non-empty.
	URL string
	// FileName is the name under workingDirectory the asset is stored as.
	// Defaults to the last path segment of URL when empty.
	FileName string
	// UnzipTo is a path segment, relative to workingDirectory, where
	// archive contents are placed. Empty means "do not extract".
	UnzipTo string
	// DelayInSeconds overrides the engine's default scheduling delay for
	// this entry. Nil means "use the default".
	DelayInSeconds *int
	// RequestConfig is opaque request options forwarded to the Fetcher.
	// "url" within it is always overridden with URL.
	RequestConfig map[string]any
	// RetryLimit overrides the coordinator's default retry limit for this
	// entry. Nil means "use the default".
	RetryLimit *int
}

// Manifest is an ordered sequence of Entry, replaced atomically each tick
// (spec.md §3).
type Manifest []Entry

// DefaultDelaySeconds is the manifest wire-format default for
// delayInSeconds when a document omits it (spec.md §3: "delayInSeconds
// (optional; default 60)").
const DefaultDelaySeconds = 60

// Resolve applies spec.md §3's documented field defaults to e. Producers
// (ParseYAML) call this on every decoded entry so a manifest document that
// omits delayInSeconds still carries the spec's concrete per-entry default,
// independent of whatever system-wide default a Coordinator is configured
// with (spec.md §4.4's entry.delayInSeconds ?? defaultDelayInSeconds).
func (e Entry) Resolve() Entry {
	if e.DelayInSeconds == nil {
		d := DefaultDelaySeconds
		e.DelayInSeconds = &d
	}
	return e
}

// ResolvedName returns the entry's resolved filename: FileName if set,
// otherwise the last path segment of URL.
func (e Entry) ResolvedName() string {
	if e.FileName != "" {
		return e.FileName
	}
	return lastPathSegment(e.URL)
}

// IsArchive reports whether this entry is a zip-backed extraction target:
// its resolved filename ends in ".zip" and UnzipTo is set.
func (e Entry) IsArchive() bool {
	return strings.HasSuffix(strings.ToLower(e.ResolvedName()), ".zip") && e.UnzipTo != ""
}

// Request returns the request configuration to hand the Fetcher, with url
// always set to e.URL (spec.md §3: "url within is always overridden").
func (e Entry) Request() map[string]any {
	cfg := make(map[string]any, len(e.RequestConfig)+1)
	for k, v := range e.RequestConfig {
		cfg[k] = v
	}
	cfg["url"] = e.URL
	return cfg
}

func lastPathSegment(rawURL string) string {
	if u, err := url.Parse(rawURL); err == nil && u.Path != "" {
		return path.Base(u.Path)
	}
	return path.Base(rawURL)
}

// Producer is the user-supplied manifest refresh function (spec.md §6
// getManifest): invoked once per tick, replacing the engine's working
// manifest on success, leaving it untouched on failure.
type Producer func() (Manifest, error)
