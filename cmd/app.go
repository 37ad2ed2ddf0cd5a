package cmd

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/conneroisu/gitcms/internal/cache"
	"github.com/conneroisu/gitcms/internal/config"
	"github.com/conneroisu/gitcms/internal/fetcher"
	"github.com/conneroisu/gitcms/internal/logging"
	"github.com/conneroisu/gitcms/internal/ratelimit"
	"github.com/conneroisu/gitcms/internal/remote"
	"github.com/conneroisu/gitcms/internal/version"
)

const redisPingTimeout = 5 * time.Second

// app holds the collaborators shared by every command.
type app struct {
	cfg     *config.Config
	logger  logging.Logger
	store   remote.Store
	fetcher *fetcher.Fetcher
	redis   redis.UniversalClient
}

// loadConfig reads the configuration assembled by initConfig.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg, nil
}

// newLogger builds the process logger from the logging section.
func newLogger(cfg *config.Config, out io.Writer) (logging.Logger, error) {
	level, err := logging.ParseLevel(cfg.Logging.Level)
	if err != nil {
		return nil, err
	}
	return logging.NewLogger(&logging.LoggerConfig{
		Level:     level,
		Format:    cfg.Logging.Format,
		Output:    out,
		Component: "gitcms",
	}), nil
}

// newApp assembles the logger, store, fetcher and, when any component needs
// it, the Redis client.
func newApp(ctx context.Context, cfg *config.Config, logOut io.Writer) (*app, error) {
	logger, err := newLogger(cfg, logOut)
	if err != nil {
		return nil, err
	}

	store, err := newStore(cfg, logger)
	if err != nil {
		return nil, err
	}

	a := &app{
		cfg:    cfg,
		logger: logger,
		store:  store,
		fetcher: fetcher.New(store, logger, fetcher.Options{
			Concurrency: cfg.Fetch.Concurrency,
			Ref:         cfg.Repository.Branch,
		}),
	}

	if cfg.NeedsRedis() {
		a.redis = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})

		pingCtx, cancel := context.WithTimeout(ctx, redisPingTimeout)
		defer cancel()
		if err := a.redis.Ping(pingCtx).Err(); err != nil {
			_ = a.redis.Close()
			return nil, fmt.Errorf("connecting to redis at %s: %w", cfg.Redis.Addr, err)
		}
	}

	return a, nil
}

// Close releases the Redis client.
func (a *app) Close() error {
	if a.redis == nil {
		return nil
	}
	return a.redis.Close()
}

// newStore builds the repository backend named by the configuration.
func newStore(cfg *config.Config, logger logging.Logger) (remote.Store, error) {
	switch cfg.Repository.Backend {
	case config.BackendGitHub:
		return remote.NewGitHubClient(remote.GitHubConfig{
			Repo:      cfg.Repository.Repo,
			Branch:    cfg.Repository.Branch,
			Token:     cfg.Repository.Token,
			APIURL:    cfg.Repository.APIURL,
			UserAgent: version.UserAgent(),
		}, logger)
	case config.BackendLocal:
		return remote.NewLocalStore(cfg.Repository.LocalRoot, logger)
	case config.BackendMemory:
		logger.Warn(context.Background(), nil, "Using the in-memory repository; content is lost on exit")
		return remote.NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown repository backend %q", cfg.Repository.Backend)
	}
}

// pageCache builds the regeneration cache.
func (a *app) pageCache() (cache.Store, error) {
	return cache.New(cache.Options{
		Backend:   a.cfg.Cache.Backend,
		Redis:     a.redis,
		KeyPrefix: a.cfg.Redis.KeyPrefix,
		TTL:       a.cfg.Cache.TTL,
	}, a.logger)
}

// limiter builds the request limiter. It returns a nil Limiter when rate
// limiting is disabled, and a stop function that is always safe to call.
func (a *app) limiter() (ratelimit.Limiter, func()) {
	rl := a.cfg.RateLimit
	if !rl.Enabled {
		return nil, func() {}
	}

	if rl.Backend == config.BackendRedis {
		return ratelimit.NewRedis(a.redis, a.cfg.Redis.KeyPrefix, rl.Interval, nil), func() {}
	}

	fw := ratelimit.NewFixedWindow(rl.Interval, nil, a.logger)
	if rl.SweepInterval > 0 {
		fw.StartCleaner(rl.SweepInterval)
	}
	return fw, fw.Stop
}
