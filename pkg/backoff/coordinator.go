package backoff

import (
	"context"
	"time"

	"github.com/cperrin88/assetsync/pkg/errs"
	"github.com/cperrin88/assetsync/pkg/logging"
	"github.com/cperrin88/assetsync/pkg/manifest"
)

// Starter is the subset of engine.Engine the Coordinator drives. Declaring
// it here (rather than importing pkg/engine) keeps backoff free of a
// dependency on engine, since engine in turn calls back into a Store via
// Config.OnAttempt.
type Starter interface {
	Start(ctx context.Context, destination string, requestConfig map[string]any, opts StartOptions) error
}

// StartOptions mirrors engine.StartOptions; duplicated rather than
// imported for the same reason as Starter: backoff does not import engine.
type StartOptions struct {
	DelaySeconds  float64
	OnNewDownload func()
}

// PostProcessor runs after a successful download (spec.md §4.5): archive
// extraction, info.json, and archive deletion.
type PostProcessor interface {
	Process(ctx context.Context, entry manifest.Entry, destination string) error
}

// Coordinator is the Retry/Back-off Coordinator of spec.md §4.4.
type Coordinator struct {
	Engine              Starter
	PostProcess         PostProcessor
	Store               *Store
	Clock               interface{ Now() time.Time }
	DefaultRetryLimit   int
	DefaultDelaySeconds float64
	GetDownloadDelay    DelayFunc
	Log                 logging.Sink
}

// NewCoordinator builds a Coordinator with sane defaults (spec.md §6:
// defaultRetryLimit=5, defaultDelayInSeconds=0).
func NewCoordinator(engine Starter, postProcess PostProcessor, store *Store) *Coordinator {
	return &Coordinator{
		Engine:              engine,
		PostProcess:         postProcess,
		Store:               store,
		DefaultRetryLimit:   5,
		DefaultDelaySeconds: 0,
		Log:                 logging.Noop(),
	}
}

// Attempt drives a single manifest entry through the Coordinator's
// decision tree (spec.md §4.4).
func (c *Coordinator) Attempt(ctx context.Context, entry manifest.Entry, workingDirFile func(manifest.Entry) string) {
	destination := workingDirFile(entry)
	log := c.Store.Ensure(destination)

	limit := c.DefaultRetryLimit
	if entry.RetryLimit != nil {
		limit = *entry.RetryLimit
	}
	// Strict '>': the Nth retry is allowed, the (N+1)th is not
	// (spec.md §9 open question 2, preserved).
	if log.Retries > limit {
		c.safeLog().Warnf("backoff: %s abandoned after %d retries (limit %d)", destination, log.Retries, limit)
		return
	}

	delaySeconds := c.delayFor(entry, log.Retries)

	err := c.Engine.Start(ctx, destination, entry.Request(), StartOptions{DelaySeconds: delaySeconds})
	if err != nil {
		if !errs.IsDuplicate(err) {
			c.Store.BumpRetry(destination)
		}
		c.safeLog().Debugf("backoff: %s attempt failed: %v", destination, err)
		return
	}

	if c.PostProcess != nil {
		if ppErr := c.PostProcess.Process(ctx, entry, destination); ppErr != nil {
			c.safeLog().Errorf("backoff: post-process %s: %v", destination, ppErr)
		}
	}

	now := time.Now()
	if c.Clock != nil {
		now = c.Clock.Now()
	}
	c.Store.RecordSuccess(destination, now)
}

func (c *Coordinator) delayFor(entry manifest.Entry, retries int) float64 {
	if c.GetDownloadDelay != nil {
		return c.GetDownloadDelay(retries)
	}
	if entry.DelayInSeconds != nil {
		return float64(*entry.DelayInSeconds)
	}
	return c.DefaultDelaySeconds
}

func (c *Coordinator) safeLog() logging.Sink {
	if c.Log == nil {
		return logging.Noop()
	}
	return c.Log
}
