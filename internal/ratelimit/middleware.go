package ratelimit

import (
	"fmt"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/conneroisu/gitcms/internal/errors"
	"github.com/conneroisu/gitcms/internal/logging"
)

// Policy is the limit applied by Middleware to one route group.
type Policy struct {
	// Name scopes the counter keys so route groups have separate budgets.
	Name  string
	Limit int
	// Key extracts the client key; ClientIP when nil.
	Key func(*http.Request) string
}

// Middleware rejects requests over the policy limit with 429 and sets the
// X-RateLimit-* headers on every response. A limiter error lets the
// request through.
func Middleware(limiter Limiter, policy Policy, clock Clock, logger logging.Logger) func(http.Handler) http.Handler {
	if clock == nil {
		clock = time.Now
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	keyFn := policy.Key
	if keyFn == nil {
		keyFn = ClientIP
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			clientKey := keyFn(r)

			result, err := limiter.Check(r.Context(), policy.Limit, policy.Name+":"+clientKey)
			if err != nil {
				logger.Warn(r.Context(), err, "Rate limiter unavailable, allowing request",
					"policy", policy.Name, "path", r.URL.Path)
				next.ServeHTTP(w, r)
				return
			}

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(result.Limit))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
			w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt.Unix(), 10))

			if !result.Success {
				retry := result.RetryAfter(clock())
				w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(retry.Seconds()))))

				logger.Warn(r.Context(),
					errors.NewTransientError(errors.ErrCodeRateLimited, "rate limit exceeded", nil),
					"Rate limit exceeded",
					"policy", policy.Name,
					"client", clientKey,
					"user_agent", r.UserAgent(),
					"path", r.URL.Path,
					"method", r.Method)

				http.Error(w, "Rate limit exceeded", http.StatusTooManyRequests)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// ClientIP returns the host part of RemoteAddr. Forwarding headers are
// ignored; use Proxies.ClientIP behind a reverse proxy.
func ClientIP(r *http.Request) string {
	return remoteHost(r)
}

// Proxies lists the networks of reverse proxies whose forwarding headers
// are believed.
type Proxies []*net.IPNet

// ParseProxies parses IP addresses and CIDR blocks.
func ParseProxies(entries []string) (Proxies, error) {
	proxies := make(Proxies, 0, len(entries))
	for _, entry := range entries {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		if strings.Contains(entry, "/") {
			_, network, err := net.ParseCIDR(entry)
			if err != nil {
				return nil, fmt.Errorf("trusted proxy %q: %w", entry, err)
			}
			proxies = append(proxies, network)
			continue
		}
		ip := net.ParseIP(entry)
		if ip == nil {
			return nil, fmt.Errorf("trusted proxy %q: not an IP address or CIDR block", entry)
		}
		bits := 8 * net.IPv6len
		if v4 := ip.To4(); v4 != nil {
			ip, bits = v4, 8*net.IPv4len
		}
		proxies = append(proxies, &net.IPNet{IP: ip, Mask: net.CIDRMask(bits, bits)})
	}
	return proxies, nil
}

// Trusted reports whether addr belongs to a trusted proxy.
func (p Proxies) Trusted(addr string) bool {
	ip := net.ParseIP(strings.TrimSpace(addr))
	if ip == nil {
		return false
	}
	for _, network := range p {
		if network.Contains(ip) {
			return true
		}
	}
	return false
}

// ClientIP returns the host part of RemoteAddr unless the peer is a trusted
// proxy. Then X-Forwarded-For is walked from the right, skipping trusted
// hops, and X-Real-IP is used when no X-Forwarded-For is present.
func (p Proxies) ClientIP(r *http.Request) string {
	peer := remoteHost(r)
	if !p.Trusted(peer) {
		return peer
	}

	if xff := r.Header.Values("X-Forwarded-For"); len(xff) > 0 {
		hops := strings.Split(strings.Join(xff, ","), ",")
		for i := len(hops) - 1; i >= 0; i-- {
			hop := strings.TrimSpace(hops[i])
			if hop == "" || net.ParseIP(hop) == nil {
				// Anything left of a malformed hop is client supplied.
				return peer
			}
			if !p.Trusted(hop) {
				return hop
			}
		}
		return peer
	}

	if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); net.ParseIP(xri) != nil {
		return xri
	}
	return peer
}

func remoteHost(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
