package application

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/eugenenazirov/dbstats/internal/api"
	"github.com/eugenenazirov/dbstats/internal/config"
	"github.com/eugenenazirov/dbstats/internal/stats"
	"github.com/eugenenazirov/dbstats/internal/storage"
)

// App encapsulates the application dependencies and HTTP server.
type App struct {
	storage  storage.Storage
	reporter *stats.Reporter
	handler  *api.Handler
	router   http.Handler
	logger   *zap.Logger
	server   *http.Server
}

// Option configures New.
type Option func(*options)

type options struct {
	storage storage.Storage
	version string
}

// WithStorage supplies an already opened storage instead of connecting to
// the configured database.
func WithStorage(store storage.Storage) Option {
	return func(o *options) {
		o.storage = store
	}
}

// WithVersion sets the application version reported by the alerts endpoint.
func WithVersion(version string) Option {
	return func(o *options) {
		o.version = version
	}
}

// New initializes the application with all dependencies from the provided
// configuration. The database is opened and pinged before New returns.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger, opts ...Option) (*App, error) {
	o := options{version: "dev"}
	for _, opt := range opts {
		opt(&o)
	}

	store := o.storage
	if store == nil {
		if cfg.Connection == nil {
			return nil, errors.New("no database connection configured")
		}
		opened, err := storage.Open(ctx, cfg.Connection, logger, storage.WithQueryLogging(cfg.LoggingEnabled))
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}
		store = opened
	}

	reporter := stats.NewReporter(store, logger,
		stats.WithRowLimit(cfg.MaxRowsInChart),
		stats.WithAppVersion(o.version),
		stats.WithConnectionSource(cfg.ConnectionSource),
	)
	handler := api.NewHandler(reporter,
		api.WithHandlerLogger(logger),
		api.WithConfigInfo(configInfo(cfg)),
	)
	apiRouter := api.NewRouter(handler, logger,
		api.WithLogging(cfg.EnableRequestLogging),
		api.WithRateLimit(cfg.RateLimitRPS, cfg.RateLimitBurst),
	)

	rootHandler, err := BuildRootHandler(apiRouter, cfg.StaticDir)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to build HTTP handler: %w", err)
	}

	return &App{
		storage:  store,
		reporter: reporter,
		handler:  handler,
		router:   apiRouter,
		logger:   logger,
		server:   NewServer(cfg, rootHandler),
	}, nil
}

func configInfo(cfg config.Config) api.ConfigInfo {
	info := api.ConfigInfo{
		Source:         cfg.ConnectionSource,
		LoggingEnabled: cfg.LoggingEnabled,
		ServerPort:     cfg.ServerPort,
		MaxRowsInChart: cfg.MaxRowsInChart,
	}
	if cfg.Connection != nil {
		info.Dialect = cfg.Connection.Dialect()
		info.Database = cfg.Connection.String()
	}
	return info
}

// BuildRootHandler routes API requests and, when staticDir is set, serves the
// dashboard frontend from it. A relative staticDir is looked up from the
// working directory upwards.
func BuildRootHandler(apiHandler http.Handler, staticDir string) (http.Handler, error) {
	mux := http.NewServeMux()
	mux.Handle("/api/", apiHandler)

	if staticDir == "" {
		mux.Handle("/", http.NotFoundHandler())
		return mux, nil
	}

	staticPath := staticDir
	if !filepath.IsAbs(staticPath) {
		resolved, err := resolveProjectPath(staticPath)
		if err != nil {
			return nil, err
		}
		staticPath = resolved
	}
	info, err := os.Stat(staticPath)
	if err != nil {
		return nil, fmt.Errorf("static directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("static directory %s is not a directory", staticPath)
	}

	mux.Handle("/", http.FileServer(http.Dir(staticPath)))
	return mux, nil
}

// NewServer creates and configures an HTTP server from the provided configuration.
func NewServer(cfg config.Config, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              cfg.Addr(),
		Handler:           handler,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
	}
}

// Start starts the HTTP server in a goroutine and logs the listening address.
func (a *App) Start() error {
	go func() {
		a.logger.Info("server listening", zap.String("addr", a.server.Addr))
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Fatal("server error", zap.Error(err))
		}
	}()
	return nil
}

// Server returns the HTTP server instance for shutdown handling.
func (a *App) Server() *http.Server {
	return a.server
}

// Close releases the database connection.
func (a *App) Close() error {
	if a.storage == nil {
		return nil
	}
	return a.storage.Close()
}

// resolveProjectPath locates a file or directory relative to the project root by walking up the directory tree.
func resolveProjectPath(relative string) (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}

	for {
		candidate := filepath.Join(dir, relative)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return "", fmt.Errorf("unable to locate %s", relative)
}
