package server

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/desertthunder/makin/internal/metrics"
	"github.com/desertthunder/makin/internal/services"
	"github.com/desertthunder/makin/internal/session"
	"github.com/desertthunder/makin/internal/shared"
)

const shutdownTimeout = 10 * time.Second

// Options holds the dependencies of a [Server].
type Options struct {
	Config   *shared.Config
	Logger   *log.Logger
	Spotify  *services.SpotifyService
	Sessions *session.Manager
	Metrics  *metrics.Collector
	Public   fs.FS // static files; nil disables them
}

// Server is the makin HTTP server: static endpoints plus whatever route modules get mounted.
type Server struct {
	router *BasicRouter
	health *Health
	config *shared.Config
	logger *log.Logger
}

// New builds the router with its middleware chain and static endpoints.
func New(opts Options) *Server {
	if opts.Config == nil {
		opts.Config = shared.DefaultConfig()
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.New()
	}
	if opts.Spotify == nil {
		opts.Spotify = services.NewSpotifyService(opts.Config.Credentials.Spotify)
	}
	if opts.Sessions == nil {
		opts.Sessions = session.NewManager(session.NewMemoryStore(), session.Options{
			Name:   opts.Config.Session.Name,
			Secret: opts.Config.Session.Secret,
			MaxAge: opts.Config.Session.MaxAge(),
			Secure: opts.Config.IsProduction(),
		}, opts.Logger)
	}

	cfg := opts.Config
	verbose := cfg.IsDevelopment()

	s := &Server{
		router: NewBasicRouter(),
		health: NewHealth(),
		config: cfg,
		logger: opts.Logger,
	}

	s.router.Use(
		middleware.RequestID,
		RequestLogger(opts.Logger),
		Metrics(opts.Metrics),
		Recoverer(opts.Logger, verbose),
		CORS(cfg.CORS.AllowedOrigins, cfg.CORS.AllowedMethods),
		opts.Sessions.Middleware,
	)
	if cfg.Server.RateLimit > 0 {
		limiter := NewRateLimiter(cfg.Server.RateLimit, cfg.Server.RateBurst)
		limiter.OnLimit(opts.Metrics.RateLimitHits.Inc)
		s.router.Use(OnPrefix(cfg.Server.APIPrefix, limiter.Middleware))
	}

	s.router.Handler(NewOAuthHandler(OAuthOptions{
		Spotify:     opts.Spotify,
		FrontendURL: cfg.Frontend.URL,
		Verbose:     verbose,
		Logger:      opts.Logger.WithPrefix("oauth"),
		Metrics:     opts.Metrics,
	}))
	s.router.Handle(http.MethodGet, "/healthz", s.health)
	s.router.Handle(http.MethodGet, "/metrics", opts.Metrics.Handler())

	if opts.Public != nil {
		s.router.NotFound(StaticFallback(opts.Public, http.HandlerFunc(NotFound)))
	}
	return s
}

// Router returns the underlying router.
func (s *Server) Router() *BasicRouter {
	return s.router
}

// Health returns the health signal fed by the startup loaders.
func (s *Server) Health() *Health {
	return s.health
}

// Mount attaches a route module handler.
func (s *Server) Mount(path string, handler http.Handler) {
	s.logger.Debug("mounting route module", "path", path, "stacked", s.router.Mounted(path))
	s.router.Mount(path, handler)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Run listens on the configured address until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.config.Server.Addr(),
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrors <- err
		}
		close(serverErrors)
	}()

	select {
	case err := <-serverErrors:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	s.logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down: %w", err)
	}
	return nil
}
