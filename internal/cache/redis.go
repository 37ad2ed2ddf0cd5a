package cache

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/conneroisu/gitcms/internal/logging"
)

// DefaultKeyPrefix namespaces cache keys when none is configured.
const DefaultKeyPrefix = "gitcms"

// invalidateTagScript bumps the tag epoch and deletes the tag's pages and
// set in one step. KEYS[1] is the tag set, KEYS[2] the tag epoch and
// ARGV[1] the page key prefix.
var invalidateTagScript = redis.NewScript(`
redis.call('INCR', KEYS[2])
local paths = redis.call('SMEMBERS', KEYS[1])
for _, p in ipairs(paths) do
	redis.call('DEL', ARGV[1] .. p)
end
redis.call('DEL', KEYS[1])
return #paths
`)

// Redis is a Store backed by Redis. Documents live under
// <prefix>:page:<path> and tag membership under <prefix>:tag:<tag> sets.
// Invalidation counters live under <prefix>:epoch:tag:<tag> and
// <prefix>:epoch:path:<path>.
type Redis struct {
	rdb       redis.UniversalClient
	keyPrefix string
	ttl       time.Duration
	logger    logging.Logger
	now       func() time.Time
}

// NewRedis creates a Redis cache. A zero ttl keeps entries until invalidated.
func NewRedis(rdb redis.UniversalClient, keyPrefix string, ttl time.Duration, logger logging.Logger) *Redis {
	if keyPrefix == "" {
		keyPrefix = DefaultKeyPrefix
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Redis{
		rdb:       rdb,
		keyPrefix: keyPrefix,
		ttl:       ttl,
		logger:    logger.WithComponent("cache"),
		now:       time.Now,
	}
}

func (r *Redis) key(parts ...string) string {
	return r.keyPrefix + ":" + strings.Join(parts, ":")
}

func (r *Redis) pageKey(path string) string { return r.key("page", path) }

func (r *Redis) tagKey(tag string) string { return r.key("tag", tag) }

func (r *Redis) epochKeys(path string, tags []string) []string {
	keys := make([]string, 0, len(tags)+1)
	keys = append(keys, r.key("epoch", "path", path))
	for _, tag := range tags {
		keys = append(keys, r.key("epoch", "tag", tag))
	}
	return keys
}

func sumEpochs(vals []interface{}) (Stamp, error) {
	var sum uint64
	for _, v := range vals {
		if v == nil {
			continue
		}
		s, ok := v.(string)
		if !ok {
			return 0, fmt.Errorf("unexpected epoch value %T", v)
		}
		n, err := strconv.ParseUint(s, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("parsing epoch %q: %w", s, err)
		}
		sum += n
	}
	return Stamp(sum), nil
}

// Get returns the entry cached for path.
func (r *Redis) Get(ctx context.Context, path string) (*Entry, bool, error) {
	raw, err := r.rdb.Get(ctx, r.pageKey(path)).Bytes()
	if stderrors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("reading cache entry %s: %w", path, err)
	}

	var entry Entry
	if err := json.Unmarshal(raw, &entry); err != nil {
		// A corrupt entry is a miss; the next Set overwrites it.
		r.logger.Warn(ctx, err, "Discarding undecodable cache entry", "path", path)
		return nil, false, nil
	}
	return &entry, true, nil
}

// Set stores entry under path and adds path to each tag set.
func (r *Redis) Set(ctx context.Context, path string, entry Entry) error {
	raw, err := r.encode(path, &entry)
	if err != nil {
		return err
	}

	_, err = r.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		r.write(ctx, pipe, path, raw, entry.Tags)
		return nil
	})
	if err != nil {
		return fmt.Errorf("writing cache entry %s: %w", path, err)
	}
	return nil
}

// Stamp implements Store.
func (r *Redis) Stamp(ctx context.Context, path string, tags []string) (Stamp, error) {
	vals, err := r.rdb.MGet(ctx, r.epochKeys(path, tags)...).Result()
	if err != nil {
		return 0, fmt.Errorf("reading cache epochs %s: %w", path, err)
	}
	return sumEpochs(vals)
}

// SetIfUnchanged implements Store. The epoch keys are watched so an
// invalidation that lands between the check and the write aborts it.
func (r *Redis) SetIfUnchanged(ctx context.Context, path string, entry Entry, stamp Stamp) (bool, error) {
	raw, err := r.encode(path, &entry)
	if err != nil {
		return false, err
	}

	keys := r.epochKeys(path, entry.Tags)
	stored := false
	err = r.rdb.Watch(ctx, func(tx *redis.Tx) error {
		vals, err := tx.MGet(ctx, keys...).Result()
		if err != nil {
			return err
		}
		current, err := sumEpochs(vals)
		if err != nil {
			return err
		}
		if current != stamp {
			return nil
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			r.write(ctx, pipe, path, raw, entry.Tags)
			return nil
		})
		if err != nil {
			return err
		}
		stored = true
		return nil
	}, keys...)
	if stderrors.Is(err, redis.TxFailedErr) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("writing cache entry %s: %w", path, err)
	}
	return stored, nil
}

func (r *Redis) encode(path string, entry *Entry) ([]byte, error) {
	if entry.StoredAt.IsZero() {
		entry.StoredAt = r.now()
	}
	raw, err := json.Marshal(entry)
	if err != nil {
		return nil, fmt.Errorf("encoding cache entry %s: %w", path, err)
	}
	return raw, nil
}

func (r *Redis) write(ctx context.Context, pipe redis.Pipeliner, path string, raw []byte, tags []string) {
	pipe.Set(ctx, r.pageKey(path), raw, r.ttl)
	for _, tag := range tags {
		pipe.SAdd(ctx, r.tagKey(tag), path)
	}
}

// InvalidateTag deletes every page in the tag set and the set itself.
func (r *Redis) InvalidateTag(ctx context.Context, tag string) error {
	keys := []string{r.tagKey(tag), r.key("epoch", "tag", tag)}
	pages, err := invalidateTagScript.Run(ctx, r.rdb, keys, r.key("page")+":").Int64()
	if err != nil {
		return fmt.Errorf("invalidating tag %s: %w", tag, err)
	}

	r.logger.Debug(ctx, "Invalidated cache tag", "tag", tag, "pages", pages)
	return nil
}

// InvalidatePath deletes the page cached for path. Stale tag set members
// are harmless and are removed on the next tag invalidation.
func (r *Redis) InvalidatePath(ctx context.Context, path string) error {
	_, err := r.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, r.key("epoch", "path", path))
		pipe.Del(ctx, r.pageKey(path))
		return nil
	})
	if err != nil {
		return fmt.Errorf("invalidating path %s: %w", path, err)
	}
	return nil
}
