package dbconn

import "errors"

var (
	// ErrUnknownDialect is returned when a connection string has an unsupported scheme.
	ErrUnknownDialect = errors.New("unknown database type")
	// ErrMalformedConnectionString is returned when a connection string has no "://" separator.
	ErrMalformedConnectionString = errors.New("malformed connection string")
	// ErrNoSource is returned when neither a connection string nor a home directory is provided.
	ErrNoSource = errors.New("neither home dir nor database connection string is provided")
	// ErrConfigNotFound is returned when the home directory has no configuration.yaml.
	ErrConfigNotFound = errors.New("config file not found")
	// ErrDatabaseNotFound is returned when no recorder setting exists and the default database file is missing.
	ErrDatabaseNotFound = errors.New("no database found")
)
