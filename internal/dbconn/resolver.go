package dbconn

import (
	"fmt"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/eugenenazirov/dbstats/internal/haconfig"
)

const (
	// ConfigFileName is the entry configuration file inside the home directory.
	ConfigFileName = "configuration.yaml"
	// DefaultDatabaseFile is the recorder's database file name when no db_url is set.
	DefaultDatabaseFile = "home-assistant_v2.db"

	recorderKey = "recorder"
	dbURLKey    = "db_url"
)

// Source records which step of the fallback chain produced the connection.
type Source string

const (
	SourceOverride    Source = "override"
	SourceRecorder    Source = "recorder"
	SourceDefaultFile Source = "default-file"
)

// TreeLoader loads a configuration tree rooted at path.
type TreeLoader interface {
	Load(path, home string) (*haconfig.Node, error)
}

// Resolution is the outcome of Resolve.
type Resolution struct {
	Descriptor Descriptor
	Source     Source
}

// Resolver decides which database the service reports on.
type Resolver struct {
	loader TreeLoader
	fs     haconfig.FileSystem
	logger *zap.Logger
}

// ResolverOption configures a Resolver.
type ResolverOption func(*Resolver)

// WithFileSystem sets the filesystem used to check for the configuration
// and default database files. It should match the loader's filesystem.
func WithFileSystem(fsys haconfig.FileSystem) ResolverOption {
	return func(r *Resolver) {
		if fsys != nil {
			r.fs = fsys
		}
	}
}

// NewResolver creates a Resolver backed by loader.
func NewResolver(loader TreeLoader, logger *zap.Logger, opts ...ResolverOption) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Resolver{loader: loader, fs: haconfig.OSFileSystem{}, logger: logger}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve runs the fallback chain: an explicit connection string, then the
// recorder db_url found anywhere in home's configuration tree, then the
// default SQLite file in home. The first step that yields a connection
// string wins.
func (r *Resolver) Resolve(override, home string) (Resolution, error) {
	if override != "" {
		r.logger.Info("using database connection string from environment")
		return normalizeFrom(override, SourceOverride)
	}
	if home == "" {
		return Resolution{}, ErrNoSource
	}

	r.logger.Info("database connection string not provided, checking configuration", zap.String("home", home))
	configFile := filepath.Join(home, ConfigFileName)
	if !r.exists(configFile) {
		return Resolution{}, fmt.Errorf("%w in path %s", ErrConfigNotFound, home)
	}
	tree, err := r.loader.Load(configFile, home)
	if err != nil {
		return Resolution{}, fmt.Errorf("load %s: %w", configFile, err)
	}

	if dbURL, ok := recorderURL(tree); ok {
		r.logger.Info("found recorder configuration")
		return normalizeFrom(dbURL, SourceRecorder)
	}

	r.logger.Info("recorder db_url not found, trying default database path")
	dbFile := filepath.Join(home, DefaultDatabaseFile)
	if !r.exists(dbFile) {
		return Resolution{}, fmt.Errorf("%w: sqlite database file not found in %s", ErrDatabaseNotFound, dbFile)
	}
	r.logger.Info("using default sqlite database", zap.String("path", dbFile))
	return normalizeFrom("sqlite://"+dbFile, SourceDefaultFile)
}

func recorderURL(tree *haconfig.Node) (string, bool) {
	recorder, ok := haconfig.Find(tree, recorderKey)
	if !ok {
		return "", false
	}
	dbURL, ok := recorder.Get(dbURLKey)
	if !ok || dbURL.String() == "" {
		return "", false
	}
	return dbURL.String(), true
}

func normalizeFrom(connStr string, source Source) (Resolution, error) {
	desc, err := Normalize(connStr)
	if err != nil {
		return Resolution{}, err
	}
	return Resolution{Descriptor: desc, Source: source}, nil
}

func (r *Resolver) exists(path string) bool {
	_, err := r.fs.Stat(path)
	return err == nil
}
