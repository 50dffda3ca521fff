// Package bootstrap wires all dependencies and starts the application:
// logger, store backend, schema loading, metrics, and the HTTP server.
package bootstrap

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/albmarin/umongo/adapters/hasher"
	"github.com/albmarin/umongo/adapters/idgen"
	"github.com/albmarin/umongo/adapters/memory"
	"github.com/albmarin/umongo/adapters/metrics"
	"github.com/albmarin/umongo/adapters/sqlite"
	"github.com/albmarin/umongo/app"
	"github.com/albmarin/umongo/config"
	"github.com/albmarin/umongo/core/registry"
	"github.com/albmarin/umongo/ports"
	"github.com/albmarin/umongo/web"
)

// App represents the running application.
type App struct {
	Logger     zerolog.Logger
	Config     *config.Config
	Schemas    *app.SchemaService
	Documents  *app.DocumentService
	HTTPServer *http.Server
	Metrics    *metrics.Collector

	// Holder is set when the app was built with hot reload.
	Holder *config.Holder

	// store is closed on shutdown; nil for the memory backend.
	store io.Closer
}

// New creates and initializes the application.
func New(cfg *config.Config) (*App, error) {
	logger := setupLogger(cfg)

	logger.Info().Msg("initializing umongo")

	a := &App{
		Logger: logger,
		Config: cfg,
	}

	db, err := a.openStore(cfg)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	if cfg.Metrics.Enabled {
		a.Metrics = metrics.New()
		logger.Info().Msg("prometheus metrics enabled")
	}

	factory := func() *registry.Instance {
		return registry.New(db, registry.Config{
			IDGenerator: idgen.UUID{},
			Metrics:     a.metricsOrNop(),
			Logger:      logger,
		})
	}

	schemas, err := app.NewSchemaService(context.Background(), cfg.Schemas.Dir, factory, logger)
	if err != nil {
		a.closeStore()
		return nil, fmt.Errorf("load schemas: %w", err)
	}
	a.Schemas = schemas

	if cfg.Schemas.Watch {
		if err := schemas.Watch(); err != nil {
			logger.Warn().Err(err).Msg("schema watch unavailable, continuing without hot reload")
		}
	}

	a.Documents = app.NewDocumentService(schemas, hasher.NewBcrypt(0), logger)

	a.initHTTPServer()
	return a, nil
}

// NewWithHotReload builds the app from a config file and keeps watching
// it. Reloadable settings apply live; the rest logs a restart warning.
func NewWithHotReload(path string) (*App, error) {
	holder, err := config.NewHolder(path, setupLogger(nil))
	if err != nil {
		return nil, err
	}

	a, err := New(holder.Get())
	if err != nil {
		holder.Stop()
		return nil, err
	}
	a.Holder = holder

	holder.OnChange(func(cfg *config.Config) {
		applyLogLevel(cfg.Logging.Level)
		a.Logger.Info().Msg("configuration reloaded")
	})
	if err := holder.WatchFile(); err != nil {
		a.Logger.Warn().Err(err).Msg("config watch unavailable")
	}
	holder.WatchSignals()

	return a, nil
}

func (a *App) openStore(cfg *config.Config) (ports.Database, error) {
	switch cfg.Store.Driver {
	case "memory":
		a.Logger.Info().Msg("using in-memory store")
		return memory.NewDatabase(), nil
	case "sqlite":
		db, err := sqlite.Open(cfg.Store.DSN)
		if err != nil {
			return nil, err
		}
		a.store = db
		a.Logger.Info().Str("dsn", cfg.Store.DSN).Msg("sqlite store initialized")
		return db, nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}

func (a *App) metricsOrNop() ports.Metrics {
	if a.Metrics != nil {
		return a.Metrics
	}
	return ports.NopMetrics{}
}

func (a *App) initHTTPServer() {
	handler := web.NewHandler(web.Deps{
		Schemas:        a.Schemas,
		Documents:      a.Documents,
		Logger:         a.Logger,
		MetricsEnabled: a.Config.Metrics.Enabled,
		MetricsPath:    a.Config.Metrics.Path,
	})

	addr := fmt.Sprintf("%s:%d", a.Config.Server.Host, a.Config.Server.Port)
	a.HTTPServer = &http.Server{
		Addr:         addr,
		Handler:      handler.Router(),
		ReadTimeout:  a.Config.Server.ReadTimeout,
		WriteTimeout: a.Config.Server.WriteTimeout,
	}

	a.Logger.Info().Str("addr", addr).Msg("http server configured")
}

// Run starts the HTTP server and blocks until shutdown.
func (a *App) Run() error {
	errCh := make(chan error, 1)
	go func() {
		a.Logger.Info().
			Str("addr", a.HTTPServer.Addr).
			Msg("starting http server")
		if err := a.HTTPServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case sig := <-quit:
		a.Logger.Info().Str("signal", sig.String()).Msg("shutting down")
	}

	return a.Shutdown()
}

// Shutdown gracefully stops the application.
func (a *App) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if a.HTTPServer != nil {
		if err := a.HTTPServer.Shutdown(ctx); err != nil {
			a.Logger.Error().Err(err).Msg("http server shutdown error")
		}
	}

	if a.Schemas != nil {
		a.Schemas.Stop()
	}

	if a.Holder != nil {
		a.Holder.Stop()
	}

	a.closeStore()

	a.Logger.Info().Msg("shutdown complete")
	return nil
}

func (a *App) closeStore() {
	if a.store == nil {
		return
	}
	if err := a.store.Close(); err != nil {
		a.Logger.Error().Err(err).Msg("store close error")
	}
	a.store = nil
}

// setupLogger builds the process logger. A nil config falls back to
// info-level JSON output.
func setupLogger(cfg *config.Config) zerolog.Logger {
	level := "info"
	format := "json"
	if cfg != nil {
		level = cfg.Logging.Level
		format = cfg.Logging.Format
	}

	applyLogLevel(level)

	if format == "console" {
		output := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
		return zerolog.New(output).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}

func applyLogLevel(levelStr string) {
	level, err := zerolog.ParseLevel(levelStr)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
}
