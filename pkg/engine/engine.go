package engine

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cperrin88/assetsync/pkg/clock"
	"github.com/cperrin88/assetsync/pkg/errs"
	"github.com/cperrin88/assetsync/pkg/fetcher"
	"github.com/cperrin88/assetsync/pkg/fsys"
	"github.com/cperrin88/assetsync/pkg/logging"
)

// scheduledRecord represents a pending download awaiting its timer
// (spec.md §3 ScheduledRecord). Start blocks on it: a scheduled call only
// returns once the timer fires and the real download has run, which is
// what lets Start behave as the "future that completes with destination
// on success" spec.md §4.3 describes even through the delayed path.
type scheduledRecord struct {
	startTime time.Time
	timer     clock.Timer
	cancelled chan struct{}
	once      sync.Once
}

func (s *scheduledRecord) cancel() {
	s.once.Do(func() {
		s.timer.Stop()
		close(s.cancelled)
	})
}

// Config wires the Engine's external collaborators (spec.md §1's "external
// collaborators": Fetcher, FileSystem, Clock, Logger).
type Config struct {
	Fetcher               fetcher.Fetcher
	FS                    fsys.FileSystem
	Clock                 clock.Clock
	Log                   logging.Sink
	AbandonedTimeout      time.Duration
	DefaultDelayInSeconds float64
	// OnAttempt is called once admission succeeds, so the Retry
	// Coordinator's DownloadLog.lastDownloadAttempt stays current even for
	// ad-hoc Start calls that never go through the coordinator
	// (spec.md §4.3 step 6).
	OnAttempt func(destination string, at time.Time)
	// OnEvent receives every Engine state transition (SPEC_FULL.md §4.3.4).
	OnEvent func(Event)
}

// Engine is the per-destination download state machine of spec.md §4.3.
// currentDownloads, scheduledDownloads and their invariants (spec.md §3
// invariants 1-2) are guarded by a single mutex, per spec.md §5.
type Engine struct {
	cfg Config

	mu        sync.Mutex
	current   map[string]*DownloadRecord
	scheduled map[string]*scheduledRecord
	closed    bool

	closeOnce sync.Once
	closeCtx  context.Context
	closeFn   context.CancelFunc
}

// New builds an Engine from cfg, defaulting AbandonedTimeout to 30 minutes
// (1,800,000ms, spec.md §6) when unset.
func New(cfg Config) *Engine {
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}
	if cfg.Log == nil {
		cfg.Log = logging.Noop()
	}
	if cfg.AbandonedTimeout <= 0 {
		cfg.AbandonedTimeout = 30 * time.Minute
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Engine{
		cfg:       cfg,
		current:   make(map[string]*DownloadRecord),
		scheduled: make(map[string]*scheduledRecord),
		closeCtx:  ctx,
		closeFn:   cancel,
	}
}

// Start is the Engine's public operation (spec.md §4.3). It blocks until
// the attempt resolves: immediately for the non-delayed path, or after the
// scheduling delay elapses and the resulting download finishes for the
// delayed path (spec.md §4.3.1). Run it from its own goroutine to get the
// "I/O-concurrent downloads" behavior spec.md §5 describes.
func (e *Engine) Start(ctx context.Context, destination string, requestConfig map[string]any, opts StartOptions) error {
	if opts.DelaySeconds > 0 {
		return e.startScheduled(ctx, destination, requestConfig, opts)
	}
	return e.startImmediate(ctx, destination, requestConfig, opts)
}

// Close stops the engine: every pending scheduled timer is cancelled so
// the blocked Start call rejects with errs.ErrCancelled, and in-flight
// streams are aborted via context cancellation (spec.md §5 "Cancellation &
// shutdown").
func (e *Engine) Close() {
	e.closeOnce.Do(func() {
		e.mu.Lock()
		e.closed = true
		pending := make([]*scheduledRecord, 0, len(e.scheduled))
		for dest, s := range e.scheduled {
			pending = append(pending, s)
			delete(e.scheduled, dest)
		}
		e.mu.Unlock()

		e.closeFn()
		for _, s := range pending {
			s.cancel()
		}
	})
}

func (e *Engine) startImmediate(ctx context.Context, destination string, requestConfig map[string]any, opts StartOptions) error {
	if err := e.admit(destination, opts); err != nil {
		return err
	}
	return e.runDownload(ctx, destination, requestConfig)
}

// admit implements spec.md §4.3 steps 2-6: cancel any pending schedule,
// evaluate the current in-flight record, unlink a stale partial file, fire
// onNewDownload, and insert a fresh DownloadRecord.
func (e *Engine) admit(destination string, opts StartOptions) error {
	e.mu.Lock()
	if sched, ok := e.scheduled[destination]; ok {
		sched.cancel()
		delete(e.scheduled, destination)
	}

	if rec, ok := e.current[destination]; ok {
		if e.cfg.Clock.Now().Sub(rec.StartTime) > e.cfg.AbandonedTimeout {
			delete(e.current, destination)
			e.mu.Unlock()
			e.unlinkPartial(destination)
			e.emit(Event{Phase: PhaseAbandoned, Destination: destination})
			return errs.ErrAbandoned
		}
		e.mu.Unlock()
		return errs.ErrDuplicate
	}

	if exists, _ := e.cfg.FS.Exists(destination); exists {
		if err := e.cfg.FS.RemoveAll(destination); err != nil {
			e.cfg.Log.Warnf("engine: unlink stale partial %s: %v", destination, err)
		}
	}
	if opts.OnNewDownload != nil {
		opts.OnNewDownload()
	}
	now := e.cfg.Clock.Now()
	e.current[destination] = &DownloadRecord{StartTime: now}
	e.mu.Unlock()

	if e.cfg.OnAttempt != nil {
		e.cfg.OnAttempt(destination, now)
	}
	e.emit(Event{Phase: PhaseStarted, Destination: destination})
	return nil
}

// runDownload implements spec.md §4.3 steps 7-10.
func (e *Engine) runDownload(ctx context.Context, destination string, requestConfig map[string]any) error {
	ctx, cancel := e.mergeShutdown(ctx)
	defer cancel()

	attemptID := uuid.NewString()
	e.cfg.Log.Debugf("engine: attempt %s fetching %v -> %s", attemptID, requestConfig["url"], destination)

	writer, err := e.cfg.FS.Create(destination)
	if err != nil {
		e.release(destination)
		wrapped := errs.Wrapf(err, "engine: open writer for %s", destination)
		e.emit(Event{Phase: PhaseFailed, Destination: destination, Err: wrapped})
		return wrapped
	}

	resp, err := e.cfg.Fetcher.Fetch(ctx, requestConfig)
	if err != nil {
		_ = writer.Close()
		return e.failDownload(ctx, destination, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_ = writer.Close()
		e.release(destination)
		e.unlinkPartial(destination)
		httpErr := &errs.HTTPStatusError{Code: resp.StatusCode}
		e.emit(Event{Phase: PhaseFailed, Destination: destination, Err: httpErr})
		return httpErr
	}

	if _, err := io.Copy(writer, resp.Body); err != nil {
		_ = writer.Close()
		return e.failDownload(ctx, destination, err)
	}

	if err := writer.Close(); err != nil {
		return e.failDownload(ctx, destination, err)
	}

	e.release(destination)
	e.cfg.Log.Debugf("engine: attempt %s completed -> %s", attemptID, destination)
	e.emit(Event{Phase: PhaseSucceeded, Destination: destination})
	return nil
}

func (e *Engine) failDownload(ctx context.Context, destination string, cause error) error {
	e.release(destination)
	e.unlinkPartial(destination)

	var outErr error
	if errors.Is(ctx.Err(), context.Canceled) && e.isClosed() {
		outErr = errs.ErrCancelled
	} else {
		outErr = &errs.TransportError{Inner: cause}
	}
	e.emit(Event{Phase: PhaseFailed, Destination: destination, Err: outErr})
	return outErr
}

// startScheduled implements spec.md §4.3.1. It blocks: once admitted, it
// waits for the timer (or cancellation/shutdown) and, on firing, runs the
// real attempt inline so the caller's Start call settles with the same
// outcome a non-delayed call would have produced.
func (e *Engine) startScheduled(ctx context.Context, destination string, requestConfig map[string]any, opts StartOptions) error {
	e.mu.Lock()
	if sched, ok := e.scheduled[destination]; ok {
		remaining := sched.startTime.Sub(e.cfg.Clock.Now()).Seconds()
		e.mu.Unlock()
		return &errs.DuplicateScheduledError{RemainingSeconds: remaining}
	}

	if rec, ok := e.current[destination]; ok {
		if e.cfg.Clock.Now().Sub(rec.StartTime) > e.cfg.AbandonedTimeout {
			delete(e.current, destination)
			e.mu.Unlock()
			e.unlinkPartial(destination)
			e.emit(Event{Phase: PhaseAbandoned, Destination: destination})
			e.mu.Lock()
		} else {
			e.mu.Unlock()
			return errs.ErrDuplicateInFlight
		}
	}

	delay := opts.DelaySeconds
	if delay <= 0 {
		delay = e.cfg.DefaultDelayInSeconds
	}
	timer := e.cfg.Clock.NewTimer(time.Duration(delay * float64(time.Second)))
	sched := &scheduledRecord{
		startTime: e.cfg.Clock.Now().Add(time.Duration(delay * float64(time.Second))),
		timer:     timer,
		cancelled: make(chan struct{}),
	}
	e.scheduled[destination] = sched
	e.mu.Unlock()

	e.emit(Event{Phase: PhaseScheduled, Destination: destination})

	select {
	case <-timer.C():
		e.mu.Lock()
		if e.scheduled[destination] == sched {
			delete(e.scheduled, destination)
		}
		e.mu.Unlock()
		return e.startImmediate(ctx, destination, requestConfig, StartOptions{OnNewDownload: opts.OnNewDownload})
	case <-sched.cancelled:
		e.emit(Event{Phase: PhaseCancelled, Destination: destination})
		return errs.ErrCancelled
	case <-ctx.Done():
		e.mu.Lock()
		if e.scheduled[destination] == sched {
			delete(e.scheduled, destination)
		}
		e.mu.Unlock()
		timer.Stop()
		return ctx.Err()
	}
}

func (e *Engine) release(destination string) {
	e.mu.Lock()
	delete(e.current, destination)
	e.mu.Unlock()
}

func (e *Engine) unlinkPartial(destination string) {
	if err := e.cfg.FS.RemoveAll(destination); err != nil {
		e.cfg.Log.Debugf("engine: unlink partial %s: %v", destination, err)
	}
}

func (e *Engine) emit(ev Event) {
	if e.cfg.OnEvent != nil {
		e.cfg.OnEvent(ev)
	}
}

func (e *Engine) isClosed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closed
}

// mergeShutdown returns a context cancelled when either ctx or the
// engine's own shutdown context is done, so Close aborts in-flight
// streams (spec.md §5).
func (e *Engine) mergeShutdown(ctx context.Context) (context.Context, context.CancelFunc) {
	merged, cancel := context.WithCancel(ctx)
	go func() {
		select {
		case <-e.closeCtx.Done():
			cancel()
		case <-merged.Done():
		}
	}()
	return merged, cancel
}
