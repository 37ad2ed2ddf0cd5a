// Package server is the HTTP surface of gitcms: the push webhook, the
// admin API, the public content documents served through the page cache,
// and the live invalidation feed.
package server

import (
	"context"
	stderrors "errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/conneroisu/gitcms/internal/cache"
	"github.com/conneroisu/gitcms/internal/config"
	"github.com/conneroisu/gitcms/internal/fetcher"
	"github.com/conneroisu/gitcms/internal/health"
	"github.com/conneroisu/gitcms/internal/logging"
	"github.com/conneroisu/gitcms/internal/ratelimit"
	"github.com/conneroisu/gitcms/internal/remote"
	"github.com/conneroisu/gitcms/internal/revalidate"
	"github.com/conneroisu/gitcms/internal/version"
	"github.com/conneroisu/gitcms/internal/webhook"
	"github.com/conneroisu/gitcms/internal/websocket"
)

// Deps are the collaborators a Server is assembled from. Hub, Limiter and
// Health are optional. Without Health only the repository is checked.
type Deps struct {
	Config  *config.Config
	Store   remote.Store
	Fetcher *fetcher.Fetcher
	Router  *revalidate.Router
	Pages   cache.Store
	Hub     *websocket.Hub
	Limiter ratelimit.Limiter
	Health  *health.Monitor
	Logger  logging.Logger
	Clock   ratelimit.Clock
}

// Server serves the HTTP surface.
type Server struct {
	config  *config.Config
	store   remote.Store
	fetcher *fetcher.Fetcher
	router  *revalidate.Router
	pages   cache.Store
	hub     *websocket.Hub
	limiter ratelimit.Limiter
	proxies ratelimit.Proxies
	health  *health.Monitor
	logger  logging.Logger
	clock   ratelimit.Clock

	// invalidateOnWrite is set for backends that never send push webhooks.
	invalidateOnWrite bool

	serverMutex sync.RWMutex
	httpServer  *http.Server
	addr        string
	isShutdown  bool

	shutdownOnce sync.Once
	done         chan struct{}
}

// New validates deps and creates a Server.
func New(deps Deps) (*Server, error) {
	switch {
	case deps.Config == nil:
		return nil, stderrors.New("server: config is required")
	case deps.Store == nil:
		return nil, stderrors.New("server: store is required")
	case deps.Fetcher == nil:
		return nil, stderrors.New("server: fetcher is required")
	case deps.Router == nil:
		return nil, stderrors.New("server: router is required")
	case deps.Pages == nil:
		return nil, stderrors.New("server: page cache is required")
	}
	if deps.Logger == nil {
		deps.Logger = logging.NewNopLogger()
	}
	if deps.Clock == nil {
		deps.Clock = time.Now
	}

	if deps.Health == nil {
		deps.Health = health.NewMonitor(health.Options{
			Version:     version.Get().Short(),
			Environment: deps.Config.Server.Environment,
			Clock:       deps.Clock,
		}, deps.Logger)
		deps.Health.Register(health.Repository(deps.Store))
	}

	proxies, err := ratelimit.ParseProxies(deps.Config.RateLimit.TrustedProxies)
	if err != nil {
		return nil, fmt.Errorf("server: %w", err)
	}

	repo := deps.Config.Repository
	return &Server{
		config:            deps.Config,
		store:             deps.Store,
		fetcher:           deps.Fetcher,
		router:            deps.Router,
		pages:             deps.Pages,
		hub:               deps.Hub,
		limiter:           deps.Limiter,
		proxies:           proxies,
		health:            deps.Health,
		logger:            deps.Logger.WithComponent("server"),
		clock:             deps.Clock,
		invalidateOnWrite: repo.Backend == config.BackendMemory || (repo.Backend == config.BackendLocal && !deps.Config.Watch.Enabled),
		done:              make(chan struct{}),
	}, nil
}

// Handler returns the complete handler with middleware applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.registerRoutes(mux)

	return chain(mux,
		recoverer(s.logger),
		requestID,
		accessLog(s.logger, s.proxies.ClientIP),
		securityHeaders,
		s.cors,
	)
}

func (s *Server) registerRoutes(mux *http.ServeMux) {
	rl := s.config.RateLimit
	webhookLimit := s.rateLimited(ratelimit.Policy{Name: "webhook", Limit: rl.WebhookLimit})
	apiLimit := s.rateLimited(ratelimit.Policy{Name: "api", Limit: rl.APILimit})

	hook := webhook.NewHandler(s.config.Webhook.Secret, s.config.Repository.Branch, s.router, s.logger)
	mux.Handle("/api/webhooks/github", webhookLimit(hook))

	mux.Handle("/api/revalidate", apiLimit(s.requireAdmin(http.HandlerFunc(s.handleRevalidate))))
	mux.Handle("/api/status", apiLimit(s.requireAdmin(http.HandlerFunc(s.handleStatus))))
	mux.Handle("/api/content", apiLimit(s.requireAdmin(http.HandlerFunc(s.handleContent))))

	mux.HandleFunc("GET /health", s.handleHealth)
	if s.hub != nil {
		mux.Handle("GET /ws", s.hub)
	}

	s.registerPublicRoutes(mux)
}

// rateLimited wraps handlers with the limiter when rate limiting is on.
func (s *Server) rateLimited(policy ratelimit.Policy) func(http.Handler) http.Handler {
	if s.limiter == nil || !s.config.RateLimit.Enabled || policy.Limit <= 0 {
		return func(h http.Handler) http.Handler { return h }
	}
	if policy.Key == nil {
		policy.Key = s.proxies.ClientIP
	}
	return ratelimit.Middleware(s.limiter, policy, s.clock, s.logger)
}

// Start listens on the configured address and serves until ctx is done or
// Shutdown is called.
func (s *Server) Start(ctx context.Context) error {
	s.serverMutex.Lock()
	if s.isShutdown {
		s.serverMutex.Unlock()
		return stderrors.New("server is shut down")
	}
	if s.httpServer != nil {
		s.serverMutex.Unlock()
		return stderrors.New("server already started")
	}

	ln, err := net.Listen("tcp", s.config.Server.Addr())
	if err != nil {
		s.serverMutex.Unlock()
		return fmt.Errorf("listening on %s: %w", s.config.Server.Addr(), err)
	}

	s.httpServer = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}
	s.addr = ln.Addr().String()
	server := s.httpServer
	s.serverMutex.Unlock()

	go func() {
		select {
		case <-ctx.Done():
			timeout := s.config.Server.ShutdownTimeout
			if timeout <= 0 {
				timeout = 10 * time.Second
			}
			shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
			defer cancel()
			if err := s.Shutdown(shutdownCtx); err != nil {
				s.logger.Error(shutdownCtx, err, "Graceful shutdown failed")
			}
		case <-s.done:
		}
	}()

	s.logger.Info(ctx, "Server listening", "addr", s.addr,
		"backend", s.config.Repository.Backend, "environment", s.config.Server.Environment)

	if err := server.Serve(ln); err != nil && !stderrors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// Addr returns the bound address once Start is listening.
func (s *Server) Addr() string {
	s.serverMutex.RLock()
	defer s.serverMutex.RUnlock()
	return s.addr
}

// Shutdown disconnects live clients and gracefully stops the HTTP server.
// It is safe to call more than once.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error

	s.shutdownOnce.Do(func() {
		s.logger.Info(ctx, "Shutting down server")

		s.serverMutex.Lock()
		s.isShutdown = true
		server := s.httpServer
		s.serverMutex.Unlock()
		close(s.done)

		// Hijacked websocket connections are not tracked by http.Server.
		if s.hub != nil {
			if err := s.hub.Shutdown(ctx); err != nil {
				shutdownErr = fmt.Errorf("closing websocket clients: %w", err)
			}
		}

		if server != nil {
			if err := server.Shutdown(ctx); err != nil && shutdownErr == nil {
				shutdownErr = fmt.Errorf("shutting down http server: %w", err)
			}
		}
	})

	return shutdownErr
}
