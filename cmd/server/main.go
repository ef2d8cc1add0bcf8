package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"go.uber.org/zap"

	"github.com/eugenenazirov/dbstats/internal/application"
	"github.com/eugenenazirov/dbstats/internal/config"
	"github.com/eugenenazirov/dbstats/internal/logging"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

const startupTimeout = 30 * time.Second

var signalNotify = signal.Notify

func main() {
	kingpinApp := kingpin.New("dbstats", "dbstats - statistics about the Home Assistant recorder database")
	kingpinApp.Version(version)
	configFile := kingpinApp.Flag("config", "Path to YAML configuration file").String()
	port := kingpinApp.Flag("port", "HTTP port exposed by the service").String()
	homeDir := kingpinApp.Flag("home-dir", "Home Assistant configuration directory").String()
	dbConnect := kingpinApp.Flag("db-connect-string", "Database URL overriding the recorder configuration").String()
	dbLogging := kingpinApp.Flag("db-logging", "Log every database query").Bool()
	strictIncludes := kingpinApp.Flag("strict-includes", "Fail when an included configuration file cannot be loaded").Bool()
	staticDir := kingpinApp.Flag("static-dir", "Directory with the dashboard frontend to serve at /").String()
	rateLimitRPSFlag := kingpinApp.Flag("rate-limit-rps", "Requests per second allowed (set 0 to disable)").Default("-1").Float64()
	rateLimitBurstFlag := kingpinApp.Flag("rate-limit-burst", "Burst capacity for rate limiter (set 0 to disable)").Default("-1").Int()

	kingpin.MustParse(kingpinApp.Parse(os.Args[1:]))

	overrides := &config.CLIOverrides{
		ConfigFile: *configFile,
	}

	if *port != "" {
		overrides.Port = port
	}

	if *homeDir != "" {
		overrides.HomeDir = homeDir
	}

	if *dbConnect != "" {
		overrides.DBConnectString = dbConnect
	}

	if *dbLogging {
		overrides.DBLogging = dbLogging
	}

	if *strictIncludes {
		overrides.StrictIncludes = strictIncludes
	}

	if *staticDir != "" {
		overrides.StaticDir = staticDir
	}

	if *rateLimitRPSFlag >= 0 {
		overrides.RateLimitRPS = rateLimitRPSFlag
	}

	if *rateLimitBurstFlag >= 0 {
		overrides.RateLimitBurst = rateLimitBurstFlag
	}

	settings, err := config.LoadSettings(overrides)
	if err != nil {
		panic(fmt.Sprintf("failed to load configuration: %v", err))
	}

	logger, err := logging.New(settings.DBLogging)
	if err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}
	defer func() {
		_ = logger.Sync()
	}()

	cfg, err := config.Assemble(settings, config.NewResolver(settings, logger))
	if err != nil {
		reportConfigError(logger, err)
		_ = logger.Sync()
		os.Exit(1)
	}
	logger.Info("configuration loaded",
		zap.String("database", cfg.Connection.String()),
		zap.String("source", string(cfg.ConnectionSource)),
		zap.Int("port", cfg.ServerPort),
		zap.Bool("db_logging", cfg.LoggingEnabled),
	)

	ctx, cancel := context.WithTimeout(context.Background(), startupTimeout)
	app, err := application.New(ctx, cfg, logger, application.WithVersion(version))
	cancel()
	if err != nil {
		logger.Fatal("failed to initialize application", zap.Error(err))
	}
	defer func() {
		if err := app.Close(); err != nil {
			logger.Warn("closing database failed", zap.Error(err))
		}
	}()

	if err := app.Start(); err != nil {
		logger.Fatal("failed to start server", zap.Error(err))
	}

	shutdown(app.Server(), cfg.ShutdownGracePeriod, logger)
}

// reportConfigError logs the missing fields as one entry, or the resolution
// failure when the connection could not be determined.
func reportConfigError(logger *zap.Logger, err error) {
	var missing *config.MissingFieldsError
	if errors.As(err, &missing) {
		fields := make([]string, 0, len(missing.Fields))
		for _, field := range missing.Fields {
			fields = append(fields, field+" not provided")
		}
		logger.Error("configuration incomplete", zap.Strings("fields", fields))
		return
	}
	logger.Error("failed to resolve configuration", zap.Error(err))
}

func shutdown(server *http.Server, timeout time.Duration, logger *zap.Logger) {
	quit := make(chan os.Signal, 1)
	signalNotify(quit, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	<-quit
	logger.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Warn("graceful shutdown failed", zap.Error(err))
		if closeErr := server.Close(); closeErr != nil {
			logger.Error("forced close failed", zap.Error(closeErr))
		}
	}
}
