// Package health runs component checks for the /health endpoint. Results
// are cached for MaxAge so probes do not hit the content repository on
// every request.
package health

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/conneroisu/gitcms/internal/logging"
	"github.com/conneroisu/gitcms/internal/remote"
)

// Status is the health of one check or of the whole service.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

// Result is the outcome of one check.
type Result struct {
	Name        string                 `json:"name"`
	Status      Status                 `json:"status"`
	Message     string                 `json:"message,omitempty"`
	Critical    bool                   `json:"critical"`
	LastChecked time.Time              `json:"last_checked"`
	Duration    time.Duration          `json:"duration"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
}

// Checker is one named component check.
type Checker interface {
	Name() string
	Critical() bool
	Check(ctx context.Context) Result
}

// CheckFunc adapts a function to Checker.
type CheckFunc struct {
	name     string
	critical bool
	fn       func(ctx context.Context) Result
}

// NewCheckFunc creates a Checker from fn.
func NewCheckFunc(name string, critical bool, fn func(ctx context.Context) Result) *CheckFunc {
	return &CheckFunc{name: name, critical: critical, fn: fn}
}

func (c *CheckFunc) Name() string   { return c.name }
func (c *CheckFunc) Critical() bool { return c.critical }

func (c *CheckFunc) Check(ctx context.Context) Result {
	return c.fn(ctx)
}

// Summary counts results by status.
type Summary struct {
	Total     int `json:"total"`
	Healthy   int `json:"healthy"`
	Degraded  int `json:"degraded"`
	Unhealthy int `json:"unhealthy"`
}

// SystemInfo describes the running process.
type SystemInfo struct {
	Hostname  string    `json:"hostname"`
	Platform  string    `json:"platform"`
	GoVersion string    `json:"go_version"`
	StartTime time.Time `json:"start_time"`
	PID       int       `json:"pid"`
}

// Report is the /health response body.
type Report struct {
	Status      Status            `json:"status"`
	Version     string            `json:"version,omitempty"`
	Environment string            `json:"environment,omitempty"`
	Timestamp   time.Time         `json:"timestamp"`
	Uptime      string            `json:"uptime"`
	Checks      map[string]Result `json:"checks"`
	Summary     Summary           `json:"summary"`
	System      SystemInfo        `json:"system"`
}

// HTTPStatus maps the overall status to a response code. Degraded still
// answers 200.
func (r Report) HTTPStatus() int {
	if r.Status == StatusUnhealthy {
		return http.StatusServiceUnavailable
	}
	return http.StatusOK
}

// Options configure a Monitor.
type Options struct {
	Version     string
	Environment string
	// MaxAge is how long results are reused before Report runs the checks
	// again. Zero means DefaultMaxAge.
	MaxAge time.Duration
	// Timeout bounds each check. Zero means DefaultTimeout.
	Timeout time.Duration
	Clock   func() time.Time
}

const (
	DefaultMaxAge  = 15 * time.Second
	DefaultTimeout = 5 * time.Second
)

// Monitor owns the registered checks and their latest results.
type Monitor struct {
	opts    Options
	logger  logging.Logger
	started time.Time

	mu      sync.RWMutex
	checks  map[string]Checker
	results map[string]Result
	ranAt   time.Time

	stop chan struct{}
	wg   sync.WaitGroup
}

// NewMonitor creates a Monitor with no checks.
func NewMonitor(opts Options, logger logging.Logger) *Monitor {
	if opts.MaxAge <= 0 {
		opts.MaxAge = DefaultMaxAge
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Monitor{
		opts:    opts,
		logger:  logger.WithComponent("health"),
		started: opts.Clock(),
		checks:  make(map[string]Checker),
		results: make(map[string]Result),
	}
}

// Register adds or replaces a check.
func (m *Monitor) Register(c Checker) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.checks[c.Name()] = c
	m.ranAt = time.Time{}
}

// Run executes every check concurrently and stores the results.
func (m *Monitor) Run(ctx context.Context) {
	m.mu.RLock()
	checks := make([]Checker, 0, len(m.checks))
	for _, c := range m.checks {
		checks = append(checks, c)
	}
	m.mu.RUnlock()

	results := make([]Result, len(checks))
	var wg sync.WaitGroup
	for i, c := range checks {
		wg.Add(1)
		go func(i int, c Checker) {
			defer wg.Done()
			results[i] = m.runOne(ctx, c)
		}(i, c)
	}
	wg.Wait()

	m.mu.Lock()
	for _, r := range results {
		m.results[r.Name] = r
	}
	m.ranAt = m.opts.Clock()
	m.mu.Unlock()

	for _, r := range results {
		if r.Status != StatusHealthy {
			m.logger.Warn(ctx, nil, "Health check failed",
				"name", r.Name,
				"status", string(r.Status),
				"message", r.Message)
		}
	}
}

func (m *Monitor) runOne(ctx context.Context, c Checker) (result Result) {
	ctx, cancel := context.WithTimeout(ctx, m.opts.Timeout)
	defer cancel()

	start := m.opts.Clock()
	defer func() {
		if rec := recover(); rec != nil {
			result = Result{Status: StatusUnhealthy, Message: fmt.Sprintf("check panicked: %v", rec)}
		}
		result.Name = c.Name()
		result.Critical = c.Critical()
		result.LastChecked = m.opts.Clock()
		result.Duration = result.LastChecked.Sub(start)
	}()
	return c.Check(ctx)
}

// Report returns the current health, running the checks first when the
// stored results are older than MaxAge.
func (m *Monitor) Report(ctx context.Context) Report {
	m.mu.RLock()
	stale := m.opts.Clock().Sub(m.ranAt) > m.opts.MaxAge
	m.mu.RUnlock()
	if stale {
		m.Run(ctx)
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	now := m.opts.Clock()
	report := Report{
		Status:      overall(m.results),
		Version:     m.opts.Version,
		Environment: m.opts.Environment,
		Timestamp:   now.UTC(),
		Uptime:      now.Sub(m.started).Round(time.Second).String(),
		Checks:      make(map[string]Result, len(m.results)),
		System:      systemInfo(m.started),
	}
	for name, r := range m.results {
		report.Checks[name] = r
		report.Summary.Total++
		switch r.Status {
		case StatusHealthy:
			report.Summary.Healthy++
		case StatusDegraded:
			report.Summary.Degraded++
		default:
			report.Summary.Unhealthy++
		}
	}
	return report
}

// Start refreshes the results every interval until ctx is done or Stop is
// called.
func (m *Monitor) Start(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	m.stop = make(chan struct{})
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		m.Run(ctx)
		for {
			select {
			case <-ticker.C:
				m.Run(ctx)
			case <-m.stop:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop ends the refresh loop started by Start.
func (m *Monitor) Stop() {
	if m.stop == nil {
		return
	}
	select {
	case <-m.stop:
	default:
		close(m.stop)
	}
	m.wg.Wait()
}

// Names returns the registered check names in order.
func (m *Monitor) Names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	names := make([]string, 0, len(m.checks))
	for name := range m.checks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// A critical failure makes the service unhealthy; anything else not
// healthy degrades it.
func overall(results map[string]Result) Status {
	status := StatusHealthy
	for _, r := range results {
		switch {
		case r.Status == StatusHealthy:
		case r.Critical && r.Status == StatusUnhealthy:
			return StatusUnhealthy
		default:
			status = StatusDegraded
		}
	}
	return status
}

func systemInfo(started time.Time) SystemInfo {
	hostname, _ := os.Hostname()
	return SystemInfo{
		Hostname:  hostname,
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
		GoVersion: runtime.Version(),
		StartTime: started.UTC(),
		PID:       os.Getpid(),
	}
}

// Repository checks that the content store is reachable with the
// configured credentials.
func Repository(store remote.Store) Checker {
	return NewCheckFunc("repository", true, func(ctx context.Context) Result {
		access := store.CheckAccess(ctx)
		if !access.Valid {
			return Result{Status: StatusUnhealthy, Message: access.Error}
		}
		return Result{Status: StatusHealthy, Message: "Content repository is reachable"}
	})
}

// Redis checks the shared cache and rate limit backend. A failure only
// degrades the service.
func Redis(rdb redis.UniversalClient) Checker {
	return NewCheckFunc("redis", false, func(ctx context.Context) Result {
		if err := rdb.Ping(ctx).Err(); err != nil {
			return Result{Status: StatusDegraded, Message: err.Error()}
		}
		return Result{Status: StatusHealthy, Message: "Redis is reachable"}
	})
}

// Goroutines flags runaway goroutine counts, usually leaked websocket
// clients.
func Goroutines(degraded, unhealthy int) Checker {
	return NewCheckFunc("goroutines", false, func(ctx context.Context) Result {
		n := runtime.NumGoroutine()
		result := Result{
			Status:   StatusHealthy,
			Message:  "Goroutine count is normal",
			Metadata: map[string]interface{}{"count": n},
		}
		switch {
		case n > unhealthy:
			result.Status = StatusUnhealthy
			result.Message = fmt.Sprintf("Very high goroutine count: %d", n)
		case n > degraded:
			result.Status = StatusDegraded
			result.Message = fmt.Sprintf("High goroutine count: %d", n)
		}
		return result
	})
}
