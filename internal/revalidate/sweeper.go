package revalidate

import (
	"context"
	"sync"
	"time"

	"github.com/conneroisu/gitcms/internal/logging"
)

// Sweeper periodically invalidates everything. It is the backstop for
// invalidations lost to failed or missing webhook deliveries.
type Sweeper struct {
	router   *Router
	interval time.Duration
	logger   logging.Logger

	mu      sync.Mutex
	stop    chan struct{}
	done    chan struct{}
	sweeps  int
	lastErr error
}

// NewSweeper creates a Sweeper. A non-positive interval disables it.
func NewSweeper(router *Router, interval time.Duration, logger logging.Logger) *Sweeper {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Sweeper{
		router:   router,
		interval: interval,
		logger:   logger.WithComponent("sweeper"),
	}
}

// Start runs the sweep loop until ctx is done or Stop is called.
func (s *Sweeper) Start(ctx context.Context) {
	if s.interval <= 0 {
		return
	}

	s.mu.Lock()
	if s.stop != nil {
		s.mu.Unlock()
		return
	}
	s.stop = make(chan struct{})
	s.done = make(chan struct{})
	stop, done := s.stop, s.done
	s.mu.Unlock()

	go func() {
		defer close(done)

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				s.Sweep(ctx)
			case <-stop:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Sweep runs one full invalidation.
func (s *Sweeper) Sweep(ctx context.Context) error {
	err := s.router.InvalidateAll(ctx)

	s.mu.Lock()
	s.sweeps++
	s.lastErr = err
	s.mu.Unlock()

	if err != nil {
		s.logger.Error(ctx, err, "Scheduled revalidation failed")
		return err
	}
	s.logger.Info(ctx, "Scheduled revalidation completed")
	return nil
}

// Sweeps returns the number of sweeps run so far.
func (s *Sweeper) Sweeps() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sweeps
}

// LastError returns the error of the most recent sweep.
func (s *Sweeper) LastError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// Stop ends the sweep loop and waits for it to exit.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	stop, done := s.stop, s.done
	s.stop = nil
	s.mu.Unlock()

	if stop == nil {
		return
	}
	close(stop)
	<-done
}
