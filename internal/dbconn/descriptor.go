package dbconn

import (
	"fmt"
	"net/url"
	"strings"
)

// Dialect names a supported recorder database engine.
type Dialect string

const (
	DialectPostgres Dialect = "postgres"
	DialectMySQL    Dialect = "mysql"
	DialectSQLite   Dialect = "sqlite"
)

// OpenReadOnly mirrors SQLITE_OPEN_READONLY; SQLite databases are never
// opened for writing.
const OpenReadOnly = 0x00000001

// Descriptor is the normalised connection information for one of the
// supported dialects. It is implemented by SQLite, Postgres and MySQL only.
type Descriptor interface {
	Dialect() Dialect
	// String renders the descriptor with credentials masked.
	String() string
	descriptor()
}

// SQLite points at a database file.
type SQLite struct {
	Path      string
	OpenFlags int
}

// Postgres carries a postgresql:// URL.
type Postgres struct {
	URL string
}

// MySQL carries a mysql:// URL.
type MySQL struct {
	URL string
}

func (SQLite) Dialect() Dialect   { return DialectSQLite }
func (Postgres) Dialect() Dialect { return DialectPostgres }
func (MySQL) Dialect() Dialect    { return DialectMySQL }

func (SQLite) descriptor()   {}
func (Postgres) descriptor() {}
func (MySQL) descriptor()    {}

func (d SQLite) String() string {
	return fmt.Sprintf("sqlite://%s (flags=%d)", d.Path, d.OpenFlags)
}

func (d Postgres) String() string { return redactURL(d.URL) }

func (d MySQL) String() string { return redactURL(d.URL) }

// Classify returns the dialect of connStr, judged by its scheme prefix only.
func Classify(connStr string) (Dialect, error) {
	switch {
	case strings.HasPrefix(connStr, "postgres"):
		return DialectPostgres, nil
	case strings.HasPrefix(connStr, "mysql"):
		return DialectMySQL, nil
	case strings.HasPrefix(connStr, "sqlite"):
		return DialectSQLite, nil
	}
	prefix, _, _ := strings.Cut(connStr, ":")
	return "", fmt.Errorf("%w %s", ErrUnknownDialect, prefix)
}

// Normalize converts a recorder connection string into a Descriptor. Scheme
// variants such as postgres:// or mysql+pymysql:// collapse to the dialect's
// canonical scheme.
func Normalize(connStr string) (Descriptor, error) {
	dialect, err := Classify(connStr)
	if err != nil {
		return nil, err
	}
	_, rest, found := strings.Cut(connStr, "://")
	if !found {
		return nil, fmt.Errorf("%w: missing :// in %s connection string", ErrMalformedConnectionString, dialect)
	}
	switch dialect {
	case DialectSQLite:
		return SQLite{Path: rest, OpenFlags: OpenReadOnly}, nil
	case DialectPostgres:
		return Postgres{URL: "postgresql://" + rest}, nil
	default:
		return MySQL{URL: "mysql://" + rest}, nil
	}
}

func redactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		scheme, _, _ := strings.Cut(raw, "://")
		return scheme + "://***"
	}
	return u.Redacted()
}
