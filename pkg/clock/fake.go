package clock

import (
	"sync"
	"time"
)

// Fake is a manually-advanced Clock for deterministic tests (spec.md §8's
// "fake Clock" testing requirement).
type Fake struct {
	mu      sync.Mutex
	now     time.Time
	timers  []*fakeTimer
	tickers []*fakeTicker
}

// NewFake creates a Fake clock starting at now.
func NewFake(now time.Time) *Fake {
	return &Fake{now: now}
}

func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

// Advance moves the clock forward by d, firing any timers/tickers whose
// deadline has been reached.
func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	now := f.now
	var fire []*fakeTimer
	for _, t := range f.timers {
		if !t.stopped && !now.Before(t.deadline) {
			fire = append(fire, t)
			t.stopped = true
		}
	}
	for _, t := range f.tickers {
		for !t.stopped && !now.Before(t.next) {
			fire = append(fire, &fakeTimer{ch: t.ch, deadline: t.next})
			t.next = t.next.Add(t.period)
		}
	}
	f.mu.Unlock()

	for _, t := range fire {
		select {
		case t.ch <- now:
		default:
		}
	}
}

func (f *Fake) NewTimer(d time.Duration) Timer {
	f.mu.Lock()
	defer f.mu.Unlock()
	t := &fakeTimer{ch: make(chan time.Time, 1), deadline: f.now.Add(d)}
	f.timers = append(f.timers, t)
	return t
}

func (f *Fake) NewTicker(d time.Duration) Ticker {
	f.mu.Lock()
	defer f.mu.Unlock()
	t := &fakeTicker{ch: make(chan time.Time, 1), next: f.now.Add(d), period: d}
	f.tickers = append(f.tickers, t)
	return t
}

type fakeTimer struct {
	ch       chan time.Time
	deadline time.Time
	stopped  bool
}

func (t *fakeTimer) C() <-chan time.Time { return t.ch }
func (t *fakeTimer) Stop() bool {
	wasRunning := !t.stopped
	t.stopped = true
	return wasRunning
}

type fakeTicker struct {
	ch      chan time.Time
	next    time.Time
	period  time.Duration
	stopped bool
}

func (t *fakeTicker) C() <-chan time.Time { return t.ch }
func (t *fakeTicker) Stop()               { t.stopped = true }
