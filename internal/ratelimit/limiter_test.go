package ratelimit

import (
	"context"
	stderrors "errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// windowStart is aligned to a minute boundary.
var windowStart = time.Unix(1_700_000_040, 0)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock { return &fakeClock{now: windowStart} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type limiterFactory func(t *testing.T, clock *fakeClock) Limiter

func limiterBackends() map[string]limiterFactory {
	return map[string]limiterFactory{
		"memory": func(t *testing.T, clock *fakeClock) Limiter {
			return NewFixedWindow(time.Minute, clock.Now, nil)
		},
		"redis": func(t *testing.T, clock *fakeClock) Limiter {
			mr := miniredis.RunT(t)
			client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
			t.Cleanup(func() { _ = client.Close() })
			return NewRedis(client, "test", time.Minute, clock.Now)
		},
	}
}

func TestLimiterBudget(t *testing.T) {
	for name, factory := range limiterBackends() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			clock := newFakeClock()
			limiter := factory(t, clock)

			clock.Advance(10 * time.Second)
			for _, want := range []int{4, 3, 2, 1, 0} {
				res, err := limiter.Check(ctx, 5, "1.2.3.4")
				require.NoError(t, err)
				assert.True(t, res.Success)
				assert.Equal(t, 5, res.Limit)
				assert.Equal(t, want, res.Remaining)
				assert.Equal(t, windowStart.Add(time.Minute), res.ResetAt)
			}

			res, err := limiter.Check(ctx, 5, "1.2.3.4")
			require.NoError(t, err)
			assert.False(t, res.Success)
			assert.Equal(t, 0, res.Remaining)
			assert.Equal(t, 50*time.Second, res.RetryAfter(clock.Now()))

			clock.Advance(time.Minute)
			res, err = limiter.Check(ctx, 5, "1.2.3.4")
			require.NoError(t, err)
			assert.True(t, res.Success)
			assert.Equal(t, 4, res.Remaining)
			assert.Equal(t, windowStart.Add(2*time.Minute), res.ResetAt)
		})
	}
}

func TestLimiterKeyIsolation(t *testing.T) {
	for name, factory := range limiterBackends() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			limiter := factory(t, newFakeClock())

			for i := 0; i < 3; i++ {
				res, err := limiter.Check(ctx, 3, "a")
				require.NoError(t, err)
				require.True(t, res.Success)
			}
			res, err := limiter.Check(ctx, 3, "a")
			require.NoError(t, err)
			assert.False(t, res.Success)

			res, err = limiter.Check(ctx, 3, "b")
			require.NoError(t, err)
			assert.True(t, res.Success)
			assert.Equal(t, 2, res.Remaining)
		})
	}
}

func TestFixedWindowDeniedCallsAreNotCounted(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	limiter := NewFixedWindow(time.Minute, clock.Now, nil)

	for i := 0; i < 10; i++ {
		_, err := limiter.Check(ctx, 2, "k")
		require.NoError(t, err)
	}
	limiter.mu.Lock()
	w := limiter.windows[windowKey{key: "k", index: windowStart.UnixMilli() / time.Minute.Milliseconds()}]
	limiter.mu.Unlock()
	require.NotNil(t, w)
	assert.Equal(t, 2, w.count)
}

func TestFixedWindowPrunesExpiredWindows(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	limiter := NewFixedWindow(time.Minute, clock.Now, nil)

	_, _ = limiter.Check(ctx, 5, "a")
	_, _ = limiter.Check(ctx, 5, "b")
	assert.Equal(t, 2, limiter.Len())

	clock.Advance(2 * time.Minute)
	assert.Equal(t, 2, limiter.Sweep())
	assert.Equal(t, 0, limiter.Len())

	_, _ = limiter.Check(ctx, 5, "a")
	clock.Advance(2 * time.Minute)
	_, _ = limiter.Check(ctx, 5, "c")
	assert.Equal(t, 1, limiter.Len(), "lazy prune on check")
}

func TestFixedWindowConcurrentChecks(t *testing.T) {
	ctx := context.Background()
	limiter := NewFixedWindow(time.Minute, newFakeClock().Now, nil)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		allowed int
	)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := limiter.Check(ctx, 20, "shared")
			if err == nil && res.Success {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 20, allowed)
}

func TestFixedWindowCleaner(t *testing.T) {
	clock := newFakeClock()
	limiter := NewFixedWindow(time.Minute, clock.Now, nil)
	_, _ = limiter.Check(context.Background(), 1, "a")
	clock.Advance(5 * time.Minute)

	limiter.StartCleaner(5 * time.Millisecond)
	require.Eventually(t, func() bool { return limiter.Len() == 0 }, time.Second, 5*time.Millisecond)

	limiter.Stop()
	limiter.Stop()
}

func TestRedisLimiterExpiresKeys(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	clock := newFakeClock()
	limiter := NewRedis(client, "test", time.Minute, clock.Now)

	_, err := limiter.Check(ctx, 5, "1.2.3.4")
	require.NoError(t, err)

	key := "test:ratelimit:1.2.3.4:" + itoa(windowStart.UnixMilli()/time.Minute.Milliseconds())
	assert.True(t, mr.Exists(key))
	assert.Greater(t, mr.TTL(key), time.Duration(0))

	mr.FastForward(2 * time.Minute)
	assert.False(t, mr.Exists(key))
}

func TestRedisLimiterUnavailable(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	mr.Close()

	_, err := NewRedis(client, "test", time.Minute, nil).Check(context.Background(), 5, "k")
	assert.Error(t, err)
}

type brokenLimiter struct{}

func (brokenLimiter) Check(context.Context, int, string) (Result, error) {
	return Result{}, stderrors.New("redis down")
}

func TestMiddleware(t *testing.T) {
	clock := newFakeClock()
	limiter := NewFixedWindow(time.Minute, clock.Now, nil)
	handler := Middleware(limiter, Policy{Name: "webhook", Limit: 2}, clock.Now, nil)(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNoContent)
		}))

	call := func(ip string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/webhooks/github", nil)
		req.RemoteAddr = ip + ":5555"
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec
	}

	rec := call("10.0.0.1")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "2", rec.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "1", rec.Header().Get("X-RateLimit-Remaining"))
	assert.Equal(t, itoa(windowStart.Add(time.Minute).Unix()), rec.Header().Get("X-RateLimit-Reset"))

	assert.Equal(t, http.StatusNoContent, call("10.0.0.1").Code)

	rec = call("10.0.0.1")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "0", rec.Header().Get("X-RateLimit-Remaining"))
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))

	assert.Equal(t, http.StatusNoContent, call("10.0.0.2").Code)
}

func TestMiddlewarePoliciesHaveSeparateBudgets(t *testing.T) {
	limiter := NewFixedWindow(time.Minute, newFakeClock().Now, nil)
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})
	webhook := Middleware(limiter, Policy{Name: "webhook", Limit: 1}, nil, nil)(ok)
	api := Middleware(limiter, Policy{Name: "api", Limit: 1}, nil, nil)(ok)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	webhook.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	api.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestMiddlewareFailsOpen(t *testing.T) {
	handler := Middleware(brokenLimiter{}, Policy{Name: "api", Limit: 1}, nil, nil)(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusAccepted)
		}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Empty(t, rec.Header().Get("X-RateLimit-Limit"))
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		remote  string
		want    string
	}{
		{name: "remote addr", remote: "192.0.2.1:1234", want: "192.0.2.1"},
		{name: "ipv6 remote addr", remote: "[2001:db8::1]:443", want: "2001:db8::1"},
		{name: "no port", remote: "192.0.2.9", want: "192.0.2.9"},
		{
			name:    "forwarded for ignored",
			headers: map[string]string{"X-Forwarded-For": "203.0.113.5, 10.0.0.1"},
			remote:  "10.0.0.1:80",
			want:    "10.0.0.1",
		},
		{
			name:    "real ip ignored",
			headers: map[string]string{"X-Real-IP": "203.0.113.7"},
			remote:  "10.0.0.1:80",
			want:    "10.0.0.1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			assert.Equal(t, tt.want, ClientIP(req))
		})
	}
}

func TestParseProxies(t *testing.T) {
	proxies, err := ParseProxies([]string{"10.0.0.0/8", " 192.0.2.1 ", "", "2001:db8::/32"})
	require.NoError(t, err)
	require.Len(t, proxies, 3)

	assert.True(t, proxies.Trusted("10.1.2.3"))
	assert.True(t, proxies.Trusted("192.0.2.1"))
	assert.False(t, proxies.Trusted("192.0.2.2"))
	assert.True(t, proxies.Trusted("2001:db8::5"))
	assert.False(t, proxies.Trusted("not-an-ip"))

	_, err = ParseProxies([]string{"10.0.0.0/33"})
	assert.Error(t, err)
	_, err = ParseProxies([]string{"proxy.internal"})
	assert.ErrorContains(t, err, "proxy.internal")
}

func TestProxiesClientIP(t *testing.T) {
	proxies, err := ParseProxies([]string{"10.0.0.0/8"})
	require.NoError(t, err)

	tests := []struct {
		name    string
		headers map[string]string
		remote  string
		want    string
	}{
		{
			name:    "untrusted peer keeps remote addr",
			headers: map[string]string{"X-Forwarded-For": "203.0.113.5"},
			remote:  "198.51.100.4:80",
			want:    "198.51.100.4",
		},
		{
			name:    "trusted peer uses forwarded client",
			headers: map[string]string{"X-Forwarded-For": "203.0.113.5"},
			remote:  "10.0.0.1:80",
			want:    "203.0.113.5",
		},
		{
			name:    "client supplied hops left of the proxy chain are skipped",
			headers: map[string]string{"X-Forwarded-For": "1.2.3.4, 203.0.113.5, 10.0.0.2"},
			remote:  "10.0.0.1:80",
			want:    "203.0.113.5",
		},
		{
			name:    "malformed hop falls back to peer",
			headers: map[string]string{"X-Forwarded-For": "garbage"},
			remote:  "10.0.0.1:80",
			want:    "10.0.0.1",
		},
		{
			name:    "real ip from trusted peer",
			headers: map[string]string{"X-Real-IP": " 203.0.113.7 "},
			remote:  "10.0.0.1:80",
			want:    "203.0.113.7",
		},
		{
			name:   "trusted peer without headers",
			remote: "10.0.0.1:80",
			want:   "10.0.0.1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			assert.Equal(t, tt.want, proxies.ClientIP(req))
		})
	}
}

func TestMiddlewareIgnoresSpoofedForwardedFor(t *testing.T) {
	limiter := NewFixedWindow(time.Minute, newFakeClock().Now, nil)
	handler := Middleware(limiter, Policy{Name: "api", Limit: 1}, nil, nil)(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	call := func(forwarded string) int {
		req := httptest.NewRequest(http.MethodGet, "/api/status", nil)
		req.RemoteAddr = "198.51.100.4:5555"
		req.Header.Set("X-Forwarded-For", forwarded)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusOK, call("203.0.113.1"))
	assert.Equal(t, http.StatusTooManyRequests, call("203.0.113.2"))
	assert.Equal(t, http.StatusTooManyRequests, call("203.0.113.3"))
}

func TestMiddlewareTrustedProxyKeysByForwardedClient(t *testing.T) {
	proxies, err := ParseProxies([]string{"10.0.0.1"})
	require.NoError(t, err)
	limiter := NewFixedWindow(time.Minute, newFakeClock().Now, nil)
	handler := Middleware(limiter, Policy{Name: "api", Limit: 1, Key: proxies.ClientIP}, nil, nil)(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	call := func(forwarded string) int {
		req := httptest.NewRequest(http.MethodGet, "/api/status", nil)
		req.RemoteAddr = "10.0.0.1:5555"
		req.Header.Set("X-Forwarded-For", forwarded)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusOK, call("203.0.113.1"))
	assert.Equal(t, http.StatusTooManyRequests, call("203.0.113.1"))
	assert.Equal(t, http.StatusOK, call("203.0.113.2"))
}

func itoa(n int64) string {
	return strconv.FormatInt(n, 10)
}
