package backoff

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cperrin88/assetsync/pkg/errs"
	"github.com/cperrin88/assetsync/pkg/manifest"
)

// fakeStarter is a hand-rolled Starter test double recording every call it
// receives and returning queued results in order.
type fakeStarter struct {
	calls   []StartOptions
	results []error
}

func (f *fakeStarter) Start(_ context.Context, _ string, _ map[string]any, opts StartOptions) error {
	f.calls = append(f.calls, opts)
	if len(f.results) == 0 {
		return nil
	}
	err := f.results[0]
	f.results = f.results[1:]
	return err
}

type fakePostProcessor struct {
	calls int
	err   error
}

func (f *fakePostProcessor) Process(_ context.Context, _ manifest.Entry, _ string) error {
	f.calls++
	return f.err
}

func workingDirFile(e manifest.Entry) string {
	return "/work/" + e.ResolvedName()
}

func TestCoordinator_Attempt_SuccessPostProcessesAndResetsRetries(t *testing.T) {
	starter := &fakeStarter{}
	pp := &fakePostProcessor{}
	store := NewStore()
	c := NewCoordinator(starter, pp, store)

	store.BumpRetry("/work/a.bin")
	entry := manifest.Entry{URL: "http://h/a.bin"}

	c.Attempt(context.Background(), entry, workingDirFile)

	assert.Equal(t, 1, pp.calls)
	assert.Equal(t, 0, store.Retries("/work/a.bin"))
	assert.False(t, store.Get("/work/a.bin").DownloadedAt.IsZero())
}

func TestCoordinator_Attempt_FailureBumpsRetries(t *testing.T) {
	starter := &fakeStarter{results: []error{&errs.TransportError{Inner: errors.New("boom")}}}
	store := NewStore()
	c := NewCoordinator(starter, nil, store)

	entry := manifest.Entry{URL: "http://h/a.bin"}
	c.Attempt(context.Background(), entry, workingDirFile)

	assert.Equal(t, 1, store.Retries("/work/a.bin"))
}

func TestCoordinator_Attempt_DuplicateDoesNotBumpRetries(t *testing.T) {
	starter := &fakeStarter{results: []error{errs.ErrDuplicate}}
	store := NewStore()
	c := NewCoordinator(starter, nil, store)

	entry := manifest.Entry{URL: "http://h/a.bin"}
	c.Attempt(context.Background(), entry, workingDirFile)

	assert.Equal(t, 0, store.Retries("/work/a.bin"), "a Duplicate failure is an inhibited attempt, not a failed one")
}

func TestCoordinator_Attempt_AbandonsAfterRetryLimit(t *testing.T) {
	starter := &fakeStarter{}
	store := NewStore()
	c := NewCoordinator(starter, nil, store)
	c.DefaultRetryLimit = 2

	// Simulate 3 prior failures (exceeds limit of 2, strict '>').
	store.BumpRetry("/work/a.bin")
	store.BumpRetry("/work/a.bin")
	store.BumpRetry("/work/a.bin")

	entry := manifest.Entry{URL: "http://h/a.bin"}
	c.Attempt(context.Background(), entry, workingDirFile)

	assert.Empty(t, starter.calls, "retries > limit must abandon without attempting")
}

func TestCoordinator_Attempt_NthRetryAllowedNPlus1Abandoned(t *testing.T) {
	// The first attempt is inhibited as a Duplicate, which leaves the retry
	// counter untouched (a success would reset it to 0).
	starter := &fakeStarter{results: []error{errs.ErrDuplicate}}
	store := NewStore()
	c := NewCoordinator(starter, nil, store)
	c.DefaultRetryLimit = 2

	store.BumpRetry("/work/a.bin")
	store.BumpRetry("/work/a.bin")
	entry := manifest.Entry{URL: "http://h/a.bin"}

	c.Attempt(context.Background(), entry, workingDirFile)
	assert.Len(t, starter.calls, 1, "the 2nd retry (== limit) must still be attempted")

	store.BumpRetry("/work/a.bin")
	c.Attempt(context.Background(), entry, workingDirFile)
	assert.Len(t, starter.calls, 1, "the 3rd retry (> limit) must not be attempted")
}

func TestCoordinator_Attempt_EntryRetryLimitOverridesDefault(t *testing.T) {
	starter := &fakeStarter{}
	store := NewStore()
	c := NewCoordinator(starter, nil, store)
	c.DefaultRetryLimit = 5

	store.BumpRetry("/work/a.bin")
	limit := 0
	entry := manifest.Entry{URL: "http://h/a.bin", RetryLimit: &limit}

	c.Attempt(context.Background(), entry, workingDirFile)
	assert.Empty(t, starter.calls, "entry-level RetryLimit must override DefaultRetryLimit")
}

func TestCoordinator_DelayFor_PrefersScriptOverEntryOverDefault(t *testing.T) {
	c := &Coordinator{DefaultDelaySeconds: 5}
	entryDelay := 10
	entry := manifest.Entry{DelayInSeconds: &entryDelay}

	assert.Equal(t, float64(10), c.delayFor(entry, 0), "entry delay beats default")

	c.GetDownloadDelay = func(retries int) float64 { return 99 + float64(retries) }
	assert.Equal(t, float64(101), c.delayFor(entry, 2), "getDownloadDelay beats entry delay")
}

func TestCoordinator_Attempt_UsesDelayFromGetDownloadDelay(t *testing.T) {
	starter := &fakeStarter{}
	store := NewStore()
	c := NewCoordinator(starter, nil, store)
	c.GetDownloadDelay = func(retries int) float64 { return 10 + 30*float64(retries) }

	entry := manifest.Entry{URL: "http://h/a.bin"}

	c.Attempt(context.Background(), entry, workingDirFile)
	require.Len(t, starter.calls, 1)
	assert.Equal(t, float64(10), starter.calls[0].DelaySeconds)

	store.BumpRetry("/work/a.bin")
	c.Attempt(context.Background(), entry, workingDirFile)
	require.Len(t, starter.calls, 2)
	assert.Equal(t, float64(40), starter.calls[1].DelaySeconds)
}

func TestCoordinator_Attempt_PostProcessErrorDoesNotPreventSuccessBookkeeping(t *testing.T) {
	starter := &fakeStarter{}
	pp := &fakePostProcessor{err: errors.New("extract failed")}
	store := NewStore()
	c := NewCoordinator(starter, pp, store)

	entry := manifest.Entry{URL: "http://h/p.zip", UnzipTo: "p"}
	c.Attempt(context.Background(), entry, workingDirFile)

	assert.Equal(t, 1, pp.calls)
	assert.Equal(t, 0, store.Retries("/work/p.zip"), "post-process errors are logged, not propagated into retry bookkeeping")
}

func TestCoordinator_Attempt_UsesClockForDownloadedAt(t *testing.T) {
	starter := &fakeStarter{}
	store := NewStore()
	c := NewCoordinator(starter, nil, store)
	fixed := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	c.Clock = fixedClock{fixed}

	entry := manifest.Entry{URL: "http://h/a.bin"}
	c.Attempt(context.Background(), entry, workingDirFile)

	assert.Equal(t, fixed, store.Get("/work/a.bin").DownloadedAt)
}

type fixedClock struct{ t time.Time }

func (f fixedClock) Now() time.Time { return f.t }
