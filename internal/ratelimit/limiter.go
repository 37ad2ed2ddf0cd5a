// Package ratelimit implements fixed-window request limiting for the public
// HTTP endpoints.
//
// The window for a key is floor(now / interval). Each window admits up to
// limit calls; further calls are denied without being counted. Windows do
// not slide, so a client can burst up to twice the limit across a window
// boundary.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/conneroisu/gitcms/internal/logging"
)

// DefaultInterval is the window length used when none is configured.
const DefaultInterval = time.Minute

// Clock returns the current time.
type Clock func() time.Time

// Result is the outcome of one check.
type Result struct {
	Success   bool      `json:"success"`
	Limit     int       `json:"limit"`
	Remaining int       `json:"remaining"`
	ResetAt   time.Time `json:"resetAt"`
}

// RetryAfter returns how long the caller should wait before the window resets.
func (r Result) RetryAfter(now time.Time) time.Duration {
	if d := r.ResetAt.Sub(now); d > 0 {
		return d
	}
	return 0
}

// Limiter admits or denies calls for a key.
type Limiter interface {
	Check(ctx context.Context, limit int, key string) (Result, error)
}

type windowKey struct {
	key   string
	index int64
}

type window struct {
	count   int
	resetAt time.Time
}

// FixedWindow is an in-process Limiter. It is safe for concurrent use.
type FixedWindow struct {
	interval time.Duration
	now      Clock
	logger   logging.Logger

	mu      sync.Mutex
	windows map[windowKey]*window

	stopOnce    sync.Once
	stopCleaner chan struct{}
	cleanerDone chan struct{}
}

// NewFixedWindow creates a limiter with the given window length. A nil
// clock uses time.Now.
func NewFixedWindow(interval time.Duration, clock Clock, logger logging.Logger) *FixedWindow {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if clock == nil {
		clock = time.Now
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &FixedWindow{
		interval: interval,
		now:      clock,
		logger:   logger.WithComponent("ratelimit"),
		windows:  make(map[windowKey]*window),
	}
}

// Interval returns the window length.
func (l *FixedWindow) Interval() time.Duration { return l.interval }

// Check counts one call for key against limit in the current window.
func (l *FixedWindow) Check(_ context.Context, limit int, key string) (Result, error) {
	now := l.now()
	index, resetAt := windowFor(now, l.interval)

	l.mu.Lock()
	defer l.mu.Unlock()

	l.pruneLocked(now)

	wk := windowKey{key: key, index: index}
	w, ok := l.windows[wk]
	if !ok {
		w = &window{resetAt: resetAt}
		l.windows[wk] = w
	}

	if w.count >= limit {
		return Result{Limit: limit, ResetAt: w.resetAt}, nil
	}

	w.count++
	return Result{
		Success:   true,
		Limit:     limit,
		Remaining: limit - w.count,
		ResetAt:   w.resetAt,
	}, nil
}

// Sweep drops every expired window and returns how many were removed.
func (l *FixedWindow) Sweep() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.pruneLocked(l.now())
}

// Len returns the number of live windows.
func (l *FixedWindow) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.windows)
}

func (l *FixedWindow) pruneLocked(now time.Time) int {
	removed := 0
	for k, w := range l.windows {
		if w.resetAt.Before(now) {
			delete(l.windows, k)
			removed++
		}
	}
	return removed
}

// StartCleaner sweeps expired windows every interval until Stop is called.
func (l *FixedWindow) StartCleaner(interval time.Duration) {
	if interval <= 0 {
		return
	}

	l.mu.Lock()
	if l.stopCleaner != nil {
		l.mu.Unlock()
		return
	}
	l.stopCleaner = make(chan struct{})
	l.cleanerDone = make(chan struct{})
	stop, done := l.stopCleaner, l.cleanerDone
	l.mu.Unlock()

	go func() {
		defer close(done)

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				if n := l.Sweep(); n > 0 {
					l.logger.Debug(context.Background(), "Swept expired rate limit windows", "removed", n)
				}
			case <-stop:
				return
			}
		}
	}()
}

// Stop stops the cleaner goroutine. It is safe to call more than once.
func (l *FixedWindow) Stop() {
	l.mu.Lock()
	stop, done := l.stopCleaner, l.cleanerDone
	l.mu.Unlock()

	if stop == nil {
		return
	}
	l.stopOnce.Do(func() { close(stop) })
	<-done
}

// windowFor returns the window index containing now and the time it resets.
func windowFor(now time.Time, interval time.Duration) (int64, time.Time) {
	ms := interval.Milliseconds()
	if ms <= 0 {
		ms = 1
	}
	index := now.UnixMilli() / ms
	return index, time.UnixMilli((index + 1) * ms)
}
