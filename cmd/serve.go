package cmd

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/conneroisu/gitcms/internal/config"
	"github.com/conneroisu/gitcms/internal/health"
	"github.com/conneroisu/gitcms/internal/ratelimit"
	"github.com/conneroisu/gitcms/internal/remote"
	"github.com/conneroisu/gitcms/internal/revalidate"
	"github.com/conneroisu/gitcms/internal/server"
	"github.com/conneroisu/gitcms/internal/version"
	"github.com/conneroisu/gitcms/internal/watcher"
	"github.com/conneroisu/gitcms/internal/websocket"
)

const healthInterval = 30 * time.Second

var serveCmd = &cobra.Command{
	Use:     "serve",
	Aliases: []string{"s"},
	Short:   "Start the content server",
	Long: `Start the HTTP server: the GitHub push webhook, the admin API, the cached
public content documents and the live invalidation feed on /ws.

With the local backend and watch enabled, edits under the checkout are
revalidated as they are saved.

Examples:
  gitcms serve                      # Serve with .gitcms.yml
  gitcms serve -p 3000              # Serve on port 3000
  gitcms serve --watch              # Revalidate local edits as they happen`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	addServerFlags(serveCmd)
	serveCmd.Flags().Bool("watch", false, "Watch the local checkout for changes (local backend only)")

	_ = viper.BindPFlag("server.port", serveCmd.Flags().Lookup("port"))
	_ = viper.BindPFlag("server.host", serveCmd.Flags().Lookup("host"))
	_ = viper.BindPFlag("watch.enabled", serveCmd.Flags().Lookup("watch"))
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return serve(ctx, cfg, cmd.ErrOrStderr())
}

// serve runs the server until ctx is done.
func serve(ctx context.Context, cfg *config.Config, logOut io.Writer) error {
	a, err := newApp(ctx, cfg, logOut)
	if err != nil {
		return err
	}
	defer a.Close()

	pages, err := a.pageCache()
	if err != nil {
		return err
	}

	limiter, stopLimiter := a.limiter()
	defer stopLimiter()

	proxies, err := ratelimit.ParseProxies(cfg.RateLimit.TrustedProxies)
	if err != nil {
		return err
	}

	hub := websocket.NewHub(websocket.Options{
		OriginPatterns: originPatterns(cfg.Server.AllowedOrigins),
		Limiter:        limiter,
		ConnectLimit:   cfg.RateLimit.ConnectLimit,
		ClientIP:       proxies.ClientIP,
	}, a.logger)

	router := revalidate.NewRouter(revalidate.Fanout{pages, hub}, a.logger)

	monitor := health.NewMonitor(health.Options{
		Version:     version.Get().Short(),
		Environment: cfg.Server.Environment,
	}, a.logger)
	monitor.Register(health.Repository(a.store))
	monitor.Register(health.Goroutines(1000, 10000))
	if a.redis != nil {
		monitor.Register(health.Redis(a.redis))
	}
	monitor.Start(ctx, healthInterval)
	defer monitor.Stop()

	srv, err := server.New(server.Deps{
		Config:  cfg,
		Store:   a.store,
		Fetcher: a.fetcher,
		Router:  router,
		Pages:   pages,
		Hub:     hub,
		Limiter: limiter,
		Health:  monitor,
		Logger:  a.logger,
	})
	if err != nil {
		return err
	}

	sweeper := revalidate.NewSweeper(router, cfg.Cache.FullSweepInterval, a.logger)
	sweeper.Start(ctx)
	defer sweeper.Stop()

	if cfg.Watch.Enabled {
		fw, err := startWatcher(ctx, a, router)
		if err != nil {
			return err
		}
		defer fw.Stop()
	}

	access := a.store.CheckAccess(ctx)
	if !access.Valid {
		a.logger.Warn(ctx, access.Err, "Content repository is not reachable; serving will degrade",
			"backend", cfg.Repository.Backend)
	}

	a.logger.Info(ctx, "Starting gitcms server",
		"addr", cfg.Server.Addr(),
		"backend", cfg.Repository.Backend,
		"branch", cfg.Repository.Branch,
		"cache", cfg.Cache.Backend,
		"watch", cfg.Watch.Enabled)

	return srv.Start(ctx)
}

// startWatcher revalidates local edits through router.
func startWatcher(ctx context.Context, a *app, router *revalidate.Router) (*watcher.FileWatcher, error) {
	local, ok := a.store.(*remote.LocalStore)
	if !ok {
		return nil, fmt.Errorf("watch requires the %s repository backend", config.BackendLocal)
	}

	fw, err := watcher.NewFileWatcher(a.cfg.Watch.Debounce, a.logger)
	if err != nil {
		return nil, fmt.Errorf("creating file watcher: %w", err)
	}

	contentSync := watcher.NewContentSync(router, local.RepoPath, a.logger)
	fw.AddFilter(watcher.ContentFilter(local.RepoPath))
	fw.AddHandler(contentSync.Handle)

	if err := fw.AddRecursive(local.Root()); err != nil {
		_ = fw.Stop()
		return nil, fmt.Errorf("watching %s: %w", local.Root(), err)
	}
	if err := fw.Start(ctx); err != nil {
		_ = fw.Stop()
		return nil, err
	}

	a.logger.Info(ctx, "Watching local checkout", "root", local.Root())
	return fw, nil
}

// originPatterns turns allowed origins into the host patterns the websocket
// handshake checks.
func originPatterns(origins []string) []string {
	patterns := make([]string, 0, len(origins))
	for _, o := range origins {
		if o == "*" {
			patterns = append(patterns, o)
			continue
		}
		u, err := url.Parse(o)
		if err != nil || u.Host == "" {
			patterns = append(patterns, o)
			continue
		}
		patterns = append(patterns, u.Host)
	}
	return patterns
}
