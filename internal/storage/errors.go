package storage

import "errors"

var (
	// ErrUnsupportedDialect is returned when a query has no variant for the connected database.
	ErrUnsupportedDialect = errors.New("database type not supported for this query")
	// ErrInvalidConnection is returned when a connection URL cannot be turned into driver settings.
	ErrInvalidConnection = errors.New("invalid database connection")
)
