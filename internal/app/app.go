// Package app wires the admin server: storage, registry, collectors,
// the gRPC admin service and the metrics endpoint.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/dmitrijs2005/logicaldelete/internal/admin"
	gs "github.com/dmitrijs2005/logicaldelete/internal/admin/grpc"
	"github.com/dmitrijs2005/logicaldelete/internal/config"
	"github.com/dmitrijs2005/logicaldelete/internal/dbx"
	"github.com/dmitrijs2005/logicaldelete/internal/logging"
	"github.com/dmitrijs2005/logicaldelete/internal/logical"
	"github.com/dmitrijs2005/logicaldelete/internal/metrics"
	"github.com/dmitrijs2005/logicaldelete/internal/schema"
	"github.com/dmitrijs2005/logicaldelete/internal/signals"
	"github.com/dmitrijs2005/logicaldelete/internal/vault"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	_ "modernc.org/sqlite"
)

var (
	logOutput io.Writer = os.Stdout

	newArchive = func(ctx context.Context, c admin.S3Config) (admin.Archive, error) {
		return admin.NewS3Archive(ctx, c)
	}
)

type App struct {
	config   *config.Config
	logger   logging.Logger
	conn     *sql.DB
	db       *logical.DB
	site     *admin.Site
	registry *prometheus.Registry
}

func NewApp(ctx context.Context, c *config.Config) (*App, error) {

	logger := logging.New(logOutput, c.LogFormat, c.LogLevel)

	conn, err := sql.Open(c.Driver, c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db open error: %w", err)
	}
	dialect := dbx.DialectFor(c.Driver)
	if dialect == dbx.SQLite {
		// one writer, and foreign_keys is a per-connection pragma
		conn.SetMaxOpenConns(1)
	}

	if err := vault.RunMigrations(ctx, conn, dialect); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("migration error: %w", err)
	}

	reg := schema.NewRegistry()
	if err := vault.Register(reg); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("registry error: %w", err)
	}

	promReg := prometheus.NewRegistry()
	promReg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	db := logical.New(conn, dialect, reg,
		logical.WithSignals(signals.NewDispatcher()),
		logical.WithLogger(logger),
		logical.WithMetrics(metrics.New(promReg)),
	)

	var opts []admin.SiteOption
	if c.S3Bucket != "" {
		archive, err := newArchive(ctx, admin.S3Config{
			Bucket:    c.S3Bucket,
			Region:    c.S3Region,
			Endpoint:  c.S3BaseEndpoint,
			AccessKey: c.S3AccessKey,
			SecretKey: c.S3SecretKey,
		})
		if err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("archive init error: %w", err)
		}
		opts = append(opts, admin.WithArchive(archive))
	}

	return &App{
		config:   c,
		logger:   logger,
		conn:     conn,
		db:       db,
		site:     admin.NewSite(db, opts...),
		registry: promReg,
	}, nil
}

// DB is the handle application code builds managers on.
func (app *App) DB() *logical.DB { return app.db }

func (app *App) Site() *admin.Site { return app.site }

// MetricsHandler serves the app's Prometheus registry.
func (app *App) MetricsHandler() http.Handler {
	return promhttp.HandlerFor(app.registry, promhttp.HandlerOpts{})
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) startGRPCServer(ctx context.Context, cancelFunc context.CancelFunc) error {
	s := gs.NewGRPCServer(app.config.GRPCAddr, app.logger, app.site, app.config.SecretKey)
	if err := s.Run(ctx); err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
		return err
	}
	return nil
}

func (app *App) startMetricsServer(ctx context.Context, cancelFunc context.CancelFunc) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", app.MetricsHandler())
	srv := &http.Server{Addr: app.config.MetricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		app.logger.Info(ctx, "Stopping metrics server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	app.logger.Info(ctx, "Starting metrics server", "address", app.config.MetricsAddr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
		return err
	}
	return nil
}

// Run serves until ctx is cancelled or a termination signal arrives, then
// closes the database. The first server failure stops everything and is
// returned.
func (app *App) Run(ctx context.Context) error {

	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")

	app.initSignalHandler(cancelFunc)

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		firstErr error
	)
	start := func(run func(context.Context, context.CancelFunc) error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := run(ctx, cancelFunc); err != nil {
				mu.Lock()
				if firstErr == nil {
					firstErr = err
				}
				mu.Unlock()
			}
		}()
	}

	start(app.startGRPCServer)
	if app.config.MetricsAddr != "" {
		start(app.startMetricsServer)
	}

	wg.Wait()

	if err := app.conn.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	app.logger.Info(context.Background(), "App stopped")
	return firstErr
}

// Close releases the database without running the servers.
func (app *App) Close() error { return app.conn.Close() }
