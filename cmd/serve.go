package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/desertthunder/makin/internal/loader"
	"github.com/desertthunder/makin/internal/metrics"
	"github.com/desertthunder/makin/internal/models"
	"github.com/desertthunder/makin/internal/orm"
	"github.com/desertthunder/makin/internal/routes"
	"github.com/desertthunder/makin/internal/server"
	"github.com/desertthunder/makin/internal/services"
	"github.com/desertthunder/makin/internal/session"
	"github.com/desertthunder/makin/internal/shared"
	"github.com/jmoiron/sqlx"
	"github.com/urfave/cli/v3"
)

const (
	defaultSecret = "default_secret"
	pruneInterval = time.Hour
	storeMemory   = "memory"
	storeRedis    = "redis"
	storeSQL      = "sql"
)

// Serve registers the model modules, mounts the route modules and listens until interrupted.
//
// Startup is sequential: models are registered before any route module is mounted and both
// finish before the listener opens.
func (r *Runner) Serve(ctx context.Context, cmd *cli.Command) error {
	config, err := r.resolve(cmd)
	if err != nil {
		return err
	}
	if port := cmd.Int("port"); port > 0 {
		config.Server.Port = port
	}

	var opts []loader.Option
	if cmd.Bool("fail-fast") {
		opts = append(opts, loader.FailFast())
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	conn, err := r.openConn(config)
	if err != nil {
		return err
	}
	defer conn.Close()

	store, closeStore, err := r.sessionStore(ctx, config, conn.DB())
	if err != nil {
		return err
	}
	defer closeStore()

	if config.Session.Secret == "" || config.Session.Secret == defaultSecret {
		r.logger.Warn("session secret is not set, falling back to the default")
		if config.Session.Secret == "" {
			config.Session.Secret = defaultSecret
		}
	}

	spotify := services.NewSpotifyService(config.Credentials.Spotify)
	if !spotify.Configured() {
		r.logger.Warn("spotify credentials are missing, token exchanges will fail")
	}

	collector := metrics.New()
	serverOpts := server.Options{
		Config:  config,
		Logger:  r.logger,
		Spotify: spotify,
		Metrics: collector,
		Sessions: session.NewManager(store, session.Options{
			Name:   config.Session.Name,
			Secret: config.Session.Secret,
			MaxAge: config.Session.MaxAge(),
			Secure: config.IsProduction(),
		}, r.logger.WithPrefix("session")),
	}
	if dirExists(config.Paths.Public) {
		serverOpts.Public = os.DirFS(config.Paths.Public)
	}

	srv := server.New(serverOpts)
	r.loadModules(ctx, srv, conn, collector, config, opts...)

	return srv.Run(ctx)
}

// loadModules applies the model directory, then mounts the route directory.
func (r *Runner) loadModules(ctx context.Context, srv *server.Server, conn *orm.Conn, collector *metrics.Collector, config *shared.Config, opts ...loader.Option) {
	if dir := config.Paths.Models; dirExists(dir) {
		report, err := models.Apply(ctx, conn, os.DirFS(dir), ".", opts...)
		r.record(srv, collector, metrics.KindModels, dir, report, err)
	} else {
		r.logger.Warn("models directory not found", "dir", dir)
	}

	if dir := config.Paths.Routes; dirExists(dir) {
		report, err := routes.Mount(ctx, srv, os.DirFS(dir), ".", config.Server.APIPrefix, routes.NewActions(), conn, opts...)
		r.record(srv, collector, metrics.KindRoutes, dir, report, err)
	} else {
		r.logger.Warn("routes directory not found", "dir", dir)
	}
}

func (r *Runner) record(srv *server.Server, collector *metrics.Collector, kind, dir string, report *loader.Report, err error) {
	srv.Health().Record(kind, report, err)
	if report == nil {
		r.logger.Error("failed to load modules", "kind", kind, "dir", dir, "error", err)
		return
	}
	collector.Modules(kind, len(report.Loaded), len(report.Failed))
	r.logReport(kind, dir, report)
}

// sessionStore opens the store named by session.store. The returned func releases it.
func (r *Runner) sessionStore(ctx context.Context, config *shared.Config, db *sqlx.DB) (session.Store, func(), error) {
	switch config.Session.Store {
	case storeMemory, "":
		return session.NewMemoryStore(), func() {}, nil
	case storeRedis:
		store, err := session.OpenRedisStore(ctx, config.Redis.URL)
		if err != nil {
			return nil, nil, err
		}
		return store, func() { store.Close() }, nil
	case storeSQL:
		store := session.NewSQLStore(db)
		go r.pruneSessions(ctx, store)
		return store, func() {}, nil
	default:
		return nil, nil, fmt.Errorf("%w: unknown session store %q", shared.ErrInvalidConfig, config.Session.Store)
	}
}

// pruneSessions deletes expired rows from the SQL store until ctx is done.
func (r *Runner) pruneSessions(ctx context.Context, store *session.SQLStore) {
	ticker := time.NewTicker(pruneInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := store.Prune(ctx)
			if err != nil {
				r.logger.Warn("failed to prune sessions", "error", err)
				continue
			}
			r.logger.Debug("pruned sessions", "count", n)
		}
	}
}
