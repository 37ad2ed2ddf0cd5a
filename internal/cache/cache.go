// Package cache holds the regeneration cache: rendered content documents
// keyed by public path and grouped by invalidation tag.
package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/conneroisu/gitcms/internal/logging"
)

// Backend names accepted by New.
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

// Entry is one cached document.
type Entry struct {
	Body        []byte    `json:"body"`
	ContentType string    `json:"contentType"`
	Tags        []string  `json:"tags"`
	StoredAt    time.Time `json:"storedAt"`
}

// Stamp is a snapshot of the invalidation state of one path and a set of
// tags. Every invalidation of the path or of one of the tags moves it
// forward, including invalidations of tags and paths with nothing cached.
type Stamp uint64

// Store is a page cache that can be invalidated by tag or by path.
// Invalidating an unknown tag or path is a no-op apart from advancing its
// stamp.
type Store interface {
	Get(ctx context.Context, path string) (*Entry, bool, error)
	// Set stores entry unconditionally.
	Set(ctx context.Context, path string, entry Entry) error
	// Stamp snapshots the invalidation state of path and tags. Take it
	// before reading the content a document is rendered from.
	Stamp(ctx context.Context, path string, tags []string) (Stamp, error)
	// SetIfUnchanged stores entry only when neither path nor any of
	// entry.Tags was invalidated since stamp was taken, and reports whether
	// it stored.
	SetIfUnchanged(ctx context.Context, path string, entry Entry, stamp Stamp) (bool, error)
	InvalidateTag(ctx context.Context, tag string) error
	InvalidatePath(ctx context.Context, path string) error
}

// Options configure New.
type Options struct {
	Backend   string
	Redis     redis.UniversalClient
	KeyPrefix string
	TTL       time.Duration
}

// New builds the cache named by opts.Backend.
func New(opts Options, logger logging.Logger) (Store, error) {
	switch opts.Backend {
	case "", BackendMemory:
		return NewMemory(), nil
	case BackendRedis:
		if opts.Redis == nil {
			return nil, fmt.Errorf("redis cache requires a redis client")
		}
		return NewRedis(opts.Redis, opts.KeyPrefix, opts.TTL, logger), nil
	default:
		return nil, fmt.Errorf("unknown cache backend %q", opts.Backend)
	}
}
