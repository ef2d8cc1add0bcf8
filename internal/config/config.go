package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/eugenenazirov/dbstats/internal/dbconn"
	"github.com/eugenenazirov/dbstats/internal/haconfig"
)

const (
	defaultServerPort     = 3000
	defaultHomeDir        = "/homeassistant"
	defaultRateLimitRPS   = 25.0
	defaultRateLimitBurst = 50
	defaultMaxRowsInChart = 10
)

// Config is the resolved, read-only runtime configuration. It is built once
// at start-up and handed out by value.
type Config struct {
	Connection           dbconn.Descriptor
	ConnectionSource     dbconn.Source
	LoggingEnabled       bool
	ServerPort           int
	ShutdownGracePeriod  time.Duration
	ReadHeaderTimeout    time.Duration
	WriteTimeout         time.Duration
	IdleTimeout          time.Duration
	EnableRequestLogging bool
	RateLimitRPS         float64
	RateLimitBurst       int
	MaxRowsInChart       int
	StaticDir            string
}

// Settings are the raw inputs gathered from defaults, environment, YAML and
// CLI flags before the database connection is resolved.
type Settings struct {
	HomeDir              string
	DBConnectString      string
	DBLogging            bool
	ServerPort           int
	ShutdownGracePeriod  time.Duration
	ReadHeaderTimeout    time.Duration
	WriteTimeout         time.Duration
	IdleTimeout          time.Duration
	EnableRequestLogging bool
	RateLimitRPS         float64
	RateLimitBurst       int
	MaxRowsInChart       int
	StaticDir            string
	StrictIncludes       bool
	SecretsBoundary      haconfig.BoundaryMode
}

// yamlConfig represents the YAML settings file structure.
type yamlConfig struct {
	HomeDir              string        `yaml:"home_dir"`
	DBConnectString      string        `yaml:"db_connect_string"`
	DBLogging            *bool         `yaml:"db_logging"`
	Port                 string        `yaml:"port"`
	ShutdownGracePeriod  string        `yaml:"shutdown_grace_period"`
	ReadHeaderTimeout    string        `yaml:"read_header_timeout"`
	WriteTimeout         string        `yaml:"write_timeout"`
	IdleTimeout          string        `yaml:"idle_timeout"`
	EnableRequestLogging *bool         `yaml:"enable_request_logging"`
	RateLimit            yamlRateLimit `yaml:"rate_limit"`
	MaxRowsInChart       int           `yaml:"max_rows_in_chart"`
	StaticDir            string        `yaml:"static_dir"`
	StrictIncludes       *bool         `yaml:"strict_includes"`
	SecretsBoundary      string        `yaml:"secrets_boundary"`
}

// yamlRateLimit represents the rate limit section in YAML.
type yamlRateLimit struct {
	RPS   *float64 `yaml:"rps"`
	Burst *int     `yaml:"burst"`
}

// CLIOverrides holds command-line flag overrides.
type CLIOverrides struct {
	ConfigFile      string
	Port            *string
	HomeDir         *string
	DBConnectString *string
	DBLogging       *bool
	RateLimitRPS    *float64
	RateLimitBurst  *int
	StaticDir       *string
	StrictIncludes  *bool
}

// ConnectionResolver picks the database connection.
type ConnectionResolver interface {
	Resolve(override, home string) (dbconn.Resolution, error)
}

// Load gathers settings and resolves the database connection using the Home
// Assistant configuration found in the home directory.
func Load(overrides *CLIOverrides, logger *zap.Logger) (Config, error) {
	settings, err := LoadSettings(overrides)
	if err != nil {
		return Config{}, err
	}
	return Assemble(settings, NewResolver(settings, logger))
}

// NewResolver builds the connection resolver described by settings.
func NewResolver(s Settings, logger *zap.Logger) *dbconn.Resolver {
	policy := haconfig.IncludeTolerant
	if s.StrictIncludes {
		policy = haconfig.IncludeStrict
	}
	fsys := haconfig.OSFileSystem{}
	loader := haconfig.NewLoader(
		haconfig.WithFileSystem(fsys),
		haconfig.WithLogger(logger),
		haconfig.WithIncludePolicy(policy),
		haconfig.WithBoundary(s.SecretsBoundary),
	)
	return dbconn.NewResolver(loader, logger, dbconn.WithFileSystem(fsys))
}

// LoadSettings extracts settings from multiple sources with precedence:
// CLI flags > YAML config > Environment variables > Defaults
func LoadSettings(overrides *CLIOverrides) (Settings, error) {
	s := defaultSettings()

	if err := applyEnvSettings(&s); err != nil {
		return Settings{}, err
	}

	if overrides != nil && overrides.ConfigFile != "" {
		yamlCfg, err := loadFromFile(overrides.ConfigFile)
		if err != nil {
			return Settings{}, fmt.Errorf("load YAML config: %w", err)
		}
		if err := applyYAMLSettings(&s, yamlCfg); err != nil {
			return Settings{}, err
		}
	}

	if overrides != nil {
		applyCLIOverrides(&s, overrides)
	}

	if err := validateSettings(s); err != nil {
		return Settings{}, err
	}
	return s, nil
}

// Assemble runs the connection fallback chain once and combines the result
// with the remaining settings. Resolution failures are returned as is;
// missing required fields are reported together in a *MissingFieldsError.
func Assemble(s Settings, resolver ConnectionResolver) (Config, error) {
	resolution, err := resolver.Resolve(s.DBConnectString, s.HomeDir)
	if err != nil {
		return Config{}, fmt.Errorf("resolve database connection: %w", err)
	}

	cfg := Config{
		Connection:           resolution.Descriptor,
		ConnectionSource:     resolution.Source,
		LoggingEnabled:       s.DBLogging,
		ServerPort:           s.ServerPort,
		ShutdownGracePeriod:  s.ShutdownGracePeriod,
		ReadHeaderTimeout:    s.ReadHeaderTimeout,
		WriteTimeout:         s.WriteTimeout,
		IdleTimeout:          s.IdleTimeout,
		EnableRequestLogging: s.EnableRequestLogging,
		RateLimitRPS:         s.RateLimitRPS,
		RateLimitBurst:       s.RateLimitBurst,
		MaxRowsInChart:       s.MaxRowsInChart,
		StaticDir:            s.StaticDir,
	}

	if missing := missingFields(cfg); len(missing) > 0 {
		return Config{}, &MissingFieldsError{Fields: missing}
	}
	return cfg, nil
}

// Addr returns the listen address for the HTTP server.
func (c Config) Addr() string {
	return ":" + strconv.Itoa(c.ServerPort)
}

// MissingFieldsError lists every required field left unset after assembly.
type MissingFieldsError struct {
	Fields []string
}

func (e *MissingFieldsError) Error() string {
	lines := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		lines = append(lines, f+" not provided")
	}
	return strings.Join(lines, "\n")
}

// IsMissingFields reports whether err carries a *MissingFieldsError.
func IsMissingFields(err error) bool {
	var target *MissingFieldsError
	return errors.As(err, &target)
}

func missingFields(cfg Config) []string {
	var missing []string
	if cfg.Connection == nil {
		missing = append(missing, "db.connection")
	}
	if cfg.ServerPort <= 0 {
		missing = append(missing, "server.port")
	}
	if cfg.MaxRowsInChart <= 0 {
		missing = append(missing, "charts.maxRows")
	}
	return missing
}

// defaultSettings returns Settings with default values.
func defaultSettings() Settings {
	return Settings{
		HomeDir:              defaultHomeDir,
		ServerPort:           defaultServerPort,
		ShutdownGracePeriod:  10 * time.Second,
		ReadHeaderTimeout:    5 * time.Second,
		WriteTimeout:         60 * time.Second,
		IdleTimeout:          60 * time.Second,
		EnableRequestLogging: true,
		RateLimitRPS:         defaultRateLimitRPS,
		RateLimitBurst:       defaultRateLimitBurst,
		MaxRowsInChart:       defaultMaxRowsInChart,
		SecretsBoundary:      haconfig.BoundaryAncestry,
	}
}

// loadFromFile loads settings from a YAML file.
func loadFromFile(path string) (*yamlConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}

	var yamlCfg yamlConfig
	if err := yaml.Unmarshal(data, &yamlCfg); err != nil {
		return nil, fmt.Errorf("parse YAML: %w", err)
	}

	return &yamlCfg, nil
}

// applyEnvSettings applies environment variable configuration.
func applyEnvSettings(s *Settings) error {
	if home := strings.TrimSpace(os.Getenv("HOME_DIR")); home != "" {
		s.HomeDir = home
	}

	s.DBConnectString = strings.TrimSpace(os.Getenv("DB_CONNECT_STRING"))
	s.DBLogging = os.Getenv("DB_LOGGING") == "true"

	if port, ok := os.LookupEnv("SERVER_PORT"); ok {
		s.ServerPort = parsePort(port)
	}

	if rps := strings.TrimSpace(os.Getenv("RATE_LIMIT_RPS")); rps != "" {
		if value, err := strconv.ParseFloat(rps, 64); err == nil && value >= 0 {
			s.RateLimitRPS = value
		}
	}

	if burst := strings.TrimSpace(os.Getenv("RATE_LIMIT_BURST")); burst != "" {
		if value, err := strconv.Atoi(burst); err == nil && value >= 0 {
			s.RateLimitBurst = value
		}
	}

	if rows := strings.TrimSpace(os.Getenv("MAX_ROWS_IN_CHART")); rows != "" {
		if value, err := strconv.Atoi(rows); err == nil && value > 0 {
			s.MaxRowsInChart = value
		}
	}

	if static := strings.TrimSpace(os.Getenv("STATIC_DIR")); static != "" {
		s.StaticDir = static
	}

	if raw := strings.TrimSpace(os.Getenv("ENABLE_REQUEST_LOGGING")); raw != "" {
		s.EnableRequestLogging = raw == "true"
	}

	s.StrictIncludes = os.Getenv("STRICT_INCLUDES") == "true"

	if raw := strings.TrimSpace(os.Getenv("SECRETS_BOUNDARY")); raw != "" {
		mode, err := parseBoundary(raw)
		if err != nil {
			return err
		}
		s.SecretsBoundary = mode
	}
	return nil
}

// applyYAMLSettings applies YAML configuration to the Settings struct.
func applyYAMLSettings(s *Settings, yamlCfg *yamlConfig) error {
	if yamlCfg.HomeDir != "" {
		s.HomeDir = yamlCfg.HomeDir
	}

	if yamlCfg.DBConnectString != "" {
		s.DBConnectString = yamlCfg.DBConnectString
	}

	if yamlCfg.DBLogging != nil {
		s.DBLogging = *yamlCfg.DBLogging
	}

	if yamlCfg.Port != "" {
		s.ServerPort = parsePort(yamlCfg.Port)
	}

	applyDuration(&s.ShutdownGracePeriod, yamlCfg.ShutdownGracePeriod)
	applyDuration(&s.ReadHeaderTimeout, yamlCfg.ReadHeaderTimeout)
	applyDuration(&s.WriteTimeout, yamlCfg.WriteTimeout)
	applyDuration(&s.IdleTimeout, yamlCfg.IdleTimeout)

	if yamlCfg.EnableRequestLogging != nil {
		s.EnableRequestLogging = *yamlCfg.EnableRequestLogging
	}

	if yamlCfg.RateLimit.RPS != nil && *yamlCfg.RateLimit.RPS >= 0 {
		s.RateLimitRPS = *yamlCfg.RateLimit.RPS
	}

	if yamlCfg.RateLimit.Burst != nil && *yamlCfg.RateLimit.Burst >= 0 {
		s.RateLimitBurst = *yamlCfg.RateLimit.Burst
	}

	if yamlCfg.MaxRowsInChart > 0 {
		s.MaxRowsInChart = yamlCfg.MaxRowsInChart
	}

	if yamlCfg.StaticDir != "" {
		s.StaticDir = yamlCfg.StaticDir
	}

	if yamlCfg.StrictIncludes != nil {
		s.StrictIncludes = *yamlCfg.StrictIncludes
	}

	if yamlCfg.SecretsBoundary != "" {
		mode, err := parseBoundary(yamlCfg.SecretsBoundary)
		if err != nil {
			return err
		}
		s.SecretsBoundary = mode
	}
	return nil
}

// applyCLIOverrides applies command-line flag overrides.
func applyCLIOverrides(s *Settings, overrides *CLIOverrides) {
	if overrides.Port != nil && *overrides.Port != "" {
		s.ServerPort = parsePort(*overrides.Port)
	}

	if overrides.HomeDir != nil && *overrides.HomeDir != "" {
		s.HomeDir = *overrides.HomeDir
	}

	if overrides.DBConnectString != nil && *overrides.DBConnectString != "" {
		s.DBConnectString = *overrides.DBConnectString
	}

	if overrides.DBLogging != nil {
		s.DBLogging = *overrides.DBLogging
	}

	if overrides.RateLimitRPS != nil && *overrides.RateLimitRPS >= 0 {
		s.RateLimitRPS = *overrides.RateLimitRPS
	}

	if overrides.RateLimitBurst != nil && *overrides.RateLimitBurst >= 0 {
		s.RateLimitBurst = *overrides.RateLimitBurst
	}

	if overrides.StaticDir != nil && *overrides.StaticDir != "" {
		s.StaticDir = *overrides.StaticDir
	}

	if overrides.StrictIncludes != nil {
		s.StrictIncludes = *overrides.StrictIncludes
	}
}

// validateSettings validates the merged settings.
func validateSettings(s Settings) error {
	if s.RateLimitRPS < 0 {
		return fmt.Errorf("RATE_LIMIT_RPS must be >= 0")
	}
	if s.RateLimitBurst < 0 {
		return fmt.Errorf("RATE_LIMIT_BURST must be >= 0")
	}
	return nil
}

// parsePort falls back to the default port for anything that is not a
// positive integer.
func parsePort(raw string) int {
	port, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || port <= 0 {
		return defaultServerPort
	}
	return port
}

func parseBoundary(raw string) (haconfig.BoundaryMode, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "ancestry":
		return haconfig.BoundaryAncestry, nil
	case "lexical":
		return haconfig.BoundaryLexicalLength, nil
	}
	return 0, fmt.Errorf("unknown secrets boundary %q, expected ancestry or lexical", raw)
}

func applyDuration(dst *time.Duration, raw string) {
	if raw == "" {
		return
	}
	if d, err := time.ParseDuration(raw); err == nil {
		*dst = d
	}
}
