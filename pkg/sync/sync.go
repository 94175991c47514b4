// Package sync implements the Reconciliation Loop and Public API of
// spec.md §4.6/§6: the ticker-driven orchestration that pulls the
// manifest, inspects the cache, drives downloads through the Retry
// Coordinator, and purges orphans — and the constructor/Init/Start/Close
// surface an embedder drives it through.
package sync

import (
	"context"
	"io"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/cperrin88/assetsync/pkg/archive"
	"github.com/cperrin88/assetsync/pkg/backoff"
	"github.com/cperrin88/assetsync/pkg/cache"
	"github.com/cperrin88/assetsync/pkg/clock"
	"github.com/cperrin88/assetsync/pkg/engine"
	"github.com/cperrin88/assetsync/pkg/fetcher"
	"github.com/cperrin88/assetsync/pkg/fsys"
	"github.com/cperrin88/assetsync/pkg/logging"
	"github.com/cperrin88/assetsync/pkg/manifest"
	"github.com/cperrin88/assetsync/pkg/postprocess"
)

// Options configures a Synchronizer, carrying the recognized keys of
// spec.md §6 plus the external collaborators (Fetcher, Extractor, FS,
// Clock) a Go constructor needs in place of the original's ambient
// globals.
type Options struct {
	AbandonedTimeout         time.Duration
	DefaultDelayInSeconds    float64
	DefaultRetryLimit        int
	GetDownloadDelay         backoff.DelayFunc
	DisableUnzip             bool
	DownloadManifest         manifest.Manifest
	Interval                 time.Duration
	Verbose                  bool
	WorkingDirectory         string
	GetManifest              manifest.Producer
	DisableImmediateDownload bool
	// MaxConcurrentDownloads bounds how many missing entries one tick
	// drives through the Retry Coordinator at once (SPEC_FULL.md §5).
	// <= 0 means unbounded.
	MaxConcurrentDownloads int

	Fetcher   fetcher.Fetcher
	Extractor archive.Extractor
	FS        fsys.FileSystem
	Clock     clock.Clock
	LogOutput io.Writer

	// OnEvent receives every Download Engine state transition
	// (SPEC_FULL.md §4.3.4).
	OnEvent func(engine.Event)
}

func (o Options) withDefaults() Options {
	if o.AbandonedTimeout <= 0 {
		o.AbandonedTimeout = 30 * time.Minute
	}
	if o.DefaultRetryLimit <= 0 {
		o.DefaultRetryLimit = 5
	}
	if o.Interval <= 0 {
		o.Interval = 60 * time.Second
	}
	if o.WorkingDirectory == "" {
		o.WorkingDirectory = "./downloads"
	}
	if o.MaxConcurrentDownloads <= 0 {
		o.MaxConcurrentDownloads = -1
	}
	if o.FS == nil {
		o.FS = fsys.NewOS()
	}
	if o.Clock == nil {
		o.Clock = clock.New()
	}
	if o.Fetcher == nil {
		o.Fetcher = fetcher.NewHTTPFetcher(0, "")
	}
	if o.Extractor == nil {
		o.Extractor = archive.NewManager()
	}
	return o
}

// Synchronizer is the Public API of spec.md §6: construction with
// options, Init (start the loop), Start (ad-hoc download), Close
// (graceful shutdown).
type Synchronizer struct {
	opts Options
	log  logging.Sink

	engine    *engine.Engine
	store     *backoff.Store
	coord     *backoff.Coordinator
	inspector *cache.Inspector
	purger    *cache.Purger
	process   *postprocess.Processor

	mu       sync.Mutex
	manifest manifest.Manifest

	ticker    clock.Ticker
	loopCtx   context.Context
	loopClose context.CancelFunc
	wg        sync.WaitGroup
	started   bool
}

// New constructs a Synchronizer from opts, applying the defaults
// documented in spec.md §6.
func New(opts Options) *Synchronizer {
	opts = opts.withDefaults()
	log := logging.New(opts.Verbose, opts.LogOutput)

	store := backoff.NewStore()
	eng := engine.New(engine.Config{
		Fetcher:               opts.Fetcher,
		FS:                    opts.FS,
		Clock:                 opts.Clock,
		Log:                   log,
		AbandonedTimeout:      opts.AbandonedTimeout,
		DefaultDelayInSeconds: opts.DefaultDelayInSeconds,
		OnAttempt:             store.RecordAttempt,
		OnEvent:               opts.OnEvent,
	})

	process := postprocess.NewProcessor(opts.FS, opts.Extractor, opts.WorkingDirectory, opts.Clock)
	process.Log = log

	// With unzip disabled no post-processing runs: the archive stays in
	// place, which is what the Inspector checks for in that mode.
	var pp backoff.PostProcessor = process
	if opts.DisableUnzip {
		pp = nil
	}
	coord := backoff.NewCoordinator(engineAdapter{eng}, pp, store)
	coord.Clock = clockAdapter{opts.Clock}
	coord.DefaultRetryLimit = opts.DefaultRetryLimit
	coord.DefaultDelaySeconds = opts.DefaultDelayInSeconds
	coord.GetDownloadDelay = opts.GetDownloadDelay
	coord.Log = log

	inspector := cache.NewInspector(opts.FS, opts.WorkingDirectory, opts.DisableUnzip)
	inspector.Log = log

	return &Synchronizer{
		opts:      opts,
		log:       log,
		engine:    eng,
		store:     store,
		coord:     coord,
		inspector: inspector,
		purger:    cache.NewPurger(opts.FS, opts.WorkingDirectory, log),
		process:   process,
		manifest:  opts.DownloadManifest,
	}
}

// clockAdapter lets clock.Clock satisfy backoff.Coordinator's narrow
// Now() dependency without backoff importing pkg/clock.
type clockAdapter struct{ c clock.Clock }

func (a clockAdapter) Now() time.Time { return a.c.Now() }

// engineAdapter satisfies backoff.Starter over *engine.Engine: the two
// packages each declare their own StartOptions to stay independent, so
// the wiring site translates between them.
type engineAdapter struct{ e *engine.Engine }

func (a engineAdapter) Start(ctx context.Context, destination string, requestConfig map[string]any, opts backoff.StartOptions) error {
	return a.e.Start(ctx, destination, requestConfig, engine.StartOptions{
		DelaySeconds:  opts.DelaySeconds,
		OnNewDownload: opts.OnNewDownload,
	})
}

// Init starts the reconciliation loop (spec.md §4.6). A second call is a
// no-op: the loop is not restarted.
func (s *Synchronizer) Init() error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return nil
	}
	s.started = true
	ctx, cancel := context.WithCancel(context.Background())
	s.loopCtx = ctx
	s.loopClose = cancel
	s.mu.Unlock()

	s.log.Infof("sync: starting reconciliation loop, interval=%s workingDirectory=%s", s.opts.Interval, s.opts.WorkingDirectory)

	if err := s.opts.FS.MkdirAll(s.opts.WorkingDirectory); err != nil {
		s.log.Warnf("sync: mkdir %s: %v", s.opts.WorkingDirectory, err)
	}

	s.ticker = s.opts.Clock.NewTicker(s.opts.Interval)

	if !s.opts.DisableImmediateDownload {
		s.tick(ctx)
	}

	s.wg.Add(1)
	go s.loop(ctx)
	return nil
}

func (s *Synchronizer) loop(ctx context.Context) {
	defer s.wg.Done()
	for {
		select {
		case <-ctx.Done():
			s.ticker.Stop()
			return
		case <-s.ticker.C():
			s.tick(ctx)
		}
	}
}

// tick implements spec.md §4.6 step 5: mkdir, manifest refresh, inspect,
// initiate per-entry, purge.
func (s *Synchronizer) tick(ctx context.Context) {
	if err := s.opts.FS.MkdirAll(s.opts.WorkingDirectory); err != nil {
		s.log.Warnf("sync: mkdir %s: %v", s.opts.WorkingDirectory, err)
	}

	if s.opts.GetManifest != nil {
		fresh, err := s.opts.GetManifest()
		if err != nil {
			s.log.Errorf("sync: getManifest: %v, skipping tick", err)
			return
		}
		s.mu.Lock()
		s.manifest = fresh
		s.mu.Unlock()
	}

	s.mu.Lock()
	current := s.manifest
	s.mu.Unlock()

	missing, err := s.inspector.Missing(current)
	if err != nil {
		s.log.Errorf("sync: inspect cache: %v", err)
		return
	}

	s.initiate(ctx, missing)

	s.purger.Purge(current)
}

// initiate drives every missing entry through the Retry Coordinator,
// bounded by MaxConcurrentDownloads (SPEC_FULL.md §5).
func (s *Synchronizer) initiate(ctx context.Context, missing manifest.Manifest) {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.MaxConcurrentDownloads)

	for _, entry := range missing {
		entry := entry
		g.Go(func() error {
			s.coord.Attempt(gctx, entry, s.workingDirFile)
			return nil
		})
	}
	_ = g.Wait()
}

func (s *Synchronizer) workingDirFile(e manifest.Entry) string {
	return filepath.Join(s.opts.WorkingDirectory, e.ResolvedName())
}

// Start performs an ad-hoc download (spec.md §4.3/§6), independent of the
// reconciliation loop and the Retry Coordinator's retry bookkeeping.
func (s *Synchronizer) Start(ctx context.Context, destination string, requestConfig map[string]any, opts engine.StartOptions) error {
	return s.engine.Start(ctx, destination, requestConfig, opts)
}

// Close stops the loop, if running, and the Download Engine (spec.md §5
// "Cancellation & shutdown").
func (s *Synchronizer) Close() error {
	s.mu.Lock()
	started := s.started
	s.started = false
	cancel := s.loopClose
	s.mu.Unlock()

	if started && cancel != nil {
		cancel()
		s.wg.Wait()
	}
	s.engine.Close()
	return nil
}
