package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/gitcms/internal/revalidate"
)

// Both caches are used as invalidation targets by the router.
var (
	_ revalidate.Cache = (*Memory)(nil)
	_ revalidate.Cache = (*Redis)(nil)
)

func newRedisCache(t *testing.T, ttl time.Duration) (*Redis, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedis(client, "test", ttl, nil), mr
}

func TestCacheContract(t *testing.T) {
	cases := []struct {
		name    string
		factory func(t *testing.T) Store
	}{
		{
			name:    "memory",
			factory: func(t *testing.T) Store { return NewMemory() },
		},
		{
			name: "redis",
			factory: func(t *testing.T) Store {
				c, _ := newRedisCache(t, 0)
				return c
			},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			runCacheContract(t, tc.factory(t))
		})
	}
}

func runCacheContract(t *testing.T, c Store) {
	t.Helper()
	ctx := context.Background()

	_, ok, err := c.Get(ctx, "/projects")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.Set(ctx, "/projects", Entry{
		Body:        []byte(`[{"id":"deck"}]`),
		ContentType: "application/json",
		Tags:        []string{"projects", "all-content"},
	}))
	require.NoError(t, c.Set(ctx, "/projects/deck", Entry{
		Body: []byte(`{"id":"deck"}`),
		Tags: []string{"projects", "all-content"},
	}))
	require.NoError(t, c.Set(ctx, "/services", Entry{
		Body: []byte(`[]`),
		Tags: []string{"services", "all-content"},
	}))

	entry, ok, err := c.Get(ctx, "/projects")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, `[{"id":"deck"}]`, string(entry.Body))
	assert.Equal(t, "application/json", entry.ContentType)
	assert.False(t, entry.StoredAt.IsZero())

	t.Run("tag invalidation drops tagged pages only", func(t *testing.T) {
		require.NoError(t, c.InvalidateTag(ctx, "projects"))

		_, ok, _ := c.Get(ctx, "/projects")
		assert.False(t, ok)
		_, ok, _ = c.Get(ctx, "/projects/deck")
		assert.False(t, ok)
		_, ok, _ = c.Get(ctx, "/services")
		assert.True(t, ok)
	})

	t.Run("path invalidation", func(t *testing.T) {
		require.NoError(t, c.InvalidatePath(ctx, "/services"))
		_, ok, _ := c.Get(ctx, "/services")
		assert.False(t, ok)
	})

	t.Run("unknown tags and paths are no-ops", func(t *testing.T) {
		assert.NoError(t, c.InvalidateTag(ctx, "never-registered"))
		assert.NoError(t, c.InvalidatePath(ctx, "/nowhere"))
		assert.NoError(t, c.InvalidatePath(ctx, "/services"))
	})

	t.Run("overwrite replaces tags", func(t *testing.T) {
		require.NoError(t, c.Set(ctx, "/blog", Entry{Body: []byte("a"), Tags: []string{"blog"}}))
		require.NoError(t, c.Set(ctx, "/blog", Entry{Body: []byte("b"), Tags: []string{"blog"}}))

		entry, ok, err := c.Get(ctx, "/blog")
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, "b", string(entry.Body))

		require.NoError(t, c.InvalidateTag(ctx, "blog"))
		_, ok, _ = c.Get(ctx, "/blog")
		assert.False(t, ok)
	})

	t.Run("unchanged stamp stores", func(t *testing.T) {
		tags := []string{"faq", "all-content"}
		stamp, err := c.Stamp(ctx, "/faq", tags)
		require.NoError(t, err)

		stored, err := c.SetIfUnchanged(ctx, "/faq", Entry{Body: []byte("q"), Tags: tags}, stamp)
		require.NoError(t, err)
		assert.True(t, stored)

		entry, ok, err := c.Get(ctx, "/faq")
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, "q", string(entry.Body))
	})

	t.Run("tag invalidation after stamp blocks store", func(t *testing.T) {
		tags := []string{"team", "all-content"}
		stamp, err := c.Stamp(ctx, "/team", tags)
		require.NoError(t, err)

		// Nothing is cached under the tag yet; the invalidation still counts.
		require.NoError(t, c.InvalidateTag(ctx, "team"))

		stored, err := c.SetIfUnchanged(ctx, "/team", Entry{Body: []byte("stale"), Tags: tags}, stamp)
		require.NoError(t, err)
		assert.False(t, stored)
		_, ok, _ := c.Get(ctx, "/team")
		assert.False(t, ok)
	})

	t.Run("path invalidation after stamp blocks store", func(t *testing.T) {
		tags := []string{"testimonials"}
		stamp, err := c.Stamp(ctx, "/testimonials", tags)
		require.NoError(t, err)

		require.NoError(t, c.InvalidatePath(ctx, "/testimonials"))

		stored, err := c.SetIfUnchanged(ctx, "/testimonials", Entry{Body: []byte("stale"), Tags: tags}, stamp)
		require.NoError(t, err)
		assert.False(t, stored)
		_, ok, _ := c.Get(ctx, "/testimonials")
		assert.False(t, ok)

		fresh, err := c.Stamp(ctx, "/testimonials", tags)
		require.NoError(t, err)
		stored, err = c.SetIfUnchanged(ctx, "/testimonials", Entry{Body: []byte("fresh"), Tags: tags}, fresh)
		require.NoError(t, err)
		assert.True(t, stored)
	})

	t.Run("unrelated invalidation does not block store", func(t *testing.T) {
		tags := []string{"gallery"}
		stamp, err := c.Stamp(ctx, "/gallery", tags)
		require.NoError(t, err)

		require.NoError(t, c.InvalidateTag(ctx, "services"))
		require.NoError(t, c.InvalidatePath(ctx, "/services"))

		stored, err := c.SetIfUnchanged(ctx, "/gallery", Entry{Body: []byte("g"), Tags: tags}, stamp)
		require.NoError(t, err)
		assert.True(t, stored)
	})
}

func TestMemoryIsolatesStoredEntries(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	body := []byte("original")
	require.NoError(t, m.Set(ctx, "/", Entry{Body: body, Tags: []string{"pages"}}))
	body[0] = 'X'

	entry, ok, err := m.Get(ctx, "/")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "original", string(entry.Body))

	entry.Body[0] = 'Y'
	again, _, _ := m.Get(ctx, "/")
	assert.Equal(t, "original", string(again.Body))
}

func TestMemoryTagIndexShrinks(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	require.NoError(t, m.Set(ctx, "/a", Entry{Tags: []string{"pages"}}))
	require.NoError(t, m.Set(ctx, "/a", Entry{Tags: []string{"blog"}}))
	require.NoError(t, m.InvalidateTag(ctx, "pages"))

	_, ok, _ := m.Get(ctx, "/a")
	assert.True(t, ok, "retagged entry survives its old tag")
	assert.Equal(t, 1, m.Len())

	require.NoError(t, m.InvalidatePath(ctx, "/a"))
	assert.Equal(t, 0, m.Len())
	assert.Empty(t, m.tags)
}

func TestRedisKeyLayout(t *testing.T) {
	ctx := context.Background()
	c, mr := newRedisCache(t, 0)

	require.NoError(t, c.Set(ctx, "/projects/deck", Entry{Body: []byte("{}"), Tags: []string{"projects"}}))

	assert.True(t, mr.Exists("test:page:/projects/deck"))
	members, err := mr.Members("test:tag:projects")
	require.NoError(t, err)
	assert.Equal(t, []string{"/projects/deck"}, members)

	require.NoError(t, c.InvalidateTag(ctx, "projects"))
	assert.False(t, mr.Exists("test:page:/projects/deck"))
	assert.False(t, mr.Exists("test:tag:projects"))

	epoch, err := mr.Get("test:epoch:tag:projects")
	require.NoError(t, err)
	assert.Equal(t, "1", epoch)

	require.NoError(t, c.InvalidatePath(ctx, "/projects/deck"))
	epoch, err = mr.Get("test:epoch:path:/projects/deck")
	require.NoError(t, err)
	assert.Equal(t, "1", epoch)
}

func TestRedisInvalidateTagDropsEveryMember(t *testing.T) {
	ctx := context.Background()
	c, mr := newRedisCache(t, 0)

	for _, p := range []string{"/blog", "/blog/a", "/blog/b"} {
		require.NoError(t, c.Set(ctx, p, Entry{Body: []byte(p), Tags: []string{"blog", "all-content"}}))
	}
	require.NoError(t, c.Set(ctx, "/", Entry{Body: []byte("home"), Tags: []string{"pages", "all-content"}}))

	require.NoError(t, c.InvalidateTag(ctx, "blog"))

	for _, p := range []string{"/blog", "/blog/a", "/blog/b"} {
		assert.False(t, mr.Exists("test:page:"+p), p)
	}
	assert.True(t, mr.Exists("test:page:/"))
	assert.False(t, mr.Exists("test:tag:blog"))
}

func TestRedisSetIfUnchangedSeesConcurrentWriterEpoch(t *testing.T) {
	ctx := context.Background()
	c, mr := newRedisCache(t, 0)

	tags := []string{"projects"}
	stamp, err := c.Stamp(ctx, "/projects/deck", tags)
	require.NoError(t, err)

	// Another instance sharing the Redis bumps the epoch directly.
	_, err = mr.Incr("test:epoch:tag:projects", 1)
	require.NoError(t, err)

	stored, err := c.SetIfUnchanged(ctx, "/projects/deck", Entry{Body: []byte("{}"), Tags: tags}, stamp)
	require.NoError(t, err)
	assert.False(t, stored)
	assert.False(t, mr.Exists("test:page:/projects/deck"))
}

func TestRedisTTL(t *testing.T) {
	ctx := context.Background()
	c, mr := newRedisCache(t, time.Minute)

	require.NoError(t, c.Set(ctx, "/", Entry{Body: []byte("home")}))
	_, ok, _ := c.Get(ctx, "/")
	require.True(t, ok)

	mr.FastForward(2 * time.Minute)
	_, ok, err := c.Get(ctx, "/")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisCorruptEntryIsMiss(t *testing.T) {
	ctx := context.Background()
	c, mr := newRedisCache(t, 0)

	require.NoError(t, mr.Set("test:page:/", "not json"))
	_, ok, err := c.Get(ctx, "/")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisUnavailable(t *testing.T) {
	ctx := context.Background()
	c, mr := newRedisCache(t, 0)
	mr.Close()

	assert.Error(t, c.InvalidatePath(ctx, "/"))
	assert.Error(t, c.InvalidateTag(ctx, "pages"))
	_, _, err := c.Get(ctx, "/")
	assert.Error(t, err)
	_, err = c.Stamp(ctx, "/", nil)
	assert.Error(t, err)
}

func TestNew(t *testing.T) {
	store, err := New(Options{}, nil)
	require.NoError(t, err)
	assert.IsType(t, &Memory{}, store)

	_, err = New(Options{Backend: BackendRedis}, nil)
	assert.Error(t, err)

	_, err = New(Options{Backend: "memcached"}, nil)
	assert.Error(t, err)

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	store, err = New(Options{Backend: BackendRedis, Redis: client}, nil)
	require.NoError(t, err)
	assert.IsType(t, &Redis{}, store)
}
