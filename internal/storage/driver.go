package storage

import (
	"database/sql"
	"fmt"
	"net"
	"net/url"
	"path/filepath"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"

	"github.com/eugenenazirov/dbstats/internal/dbconn"
)

// statementTimeoutMs bounds every statistics query on the server side.
const statementTimeoutMs = "60000"

func openDB(desc dbconn.Descriptor) (*sql.DB, error) {
	switch d := desc.(type) {
	case dbconn.SQLite:
		return sql.Open("sqlite3", sqliteDSN(d))
	case dbconn.Postgres:
		cfg, err := postgresConfig(d)
		if err != nil {
			return nil, err
		}
		return stdlib.OpenDB(*cfg), nil
	case dbconn.MySQL:
		cfg, err := mysqlConfig(d)
		if err != nil {
			return nil, err
		}
		connector, err := mysql.NewConnector(cfg)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidConnection, err)
		}
		return sql.OpenDB(connector), nil
	case nil:
		return nil, fmt.Errorf("%w: no descriptor", ErrInvalidConnection)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedDialect, desc.Dialect())
	}
}

// sqliteDSN builds a URI filename. Recorder URLs such as
// sqlite:////config/home-assistant_v2.db leave a doubled leading slash in the
// path, which SQLite would read as a URI authority, so the path is cleaned.
func sqliteDSN(d dbconn.SQLite) string {
	dsn := "file:" + filepath.Clean(d.Path)
	if d.OpenFlags&dbconn.OpenReadOnly != 0 {
		dsn += "?mode=ro"
	}
	return dsn
}

func postgresConfig(d dbconn.Postgres) (*pgx.ConnConfig, error) {
	cfg, err := pgx.ParseConfig(d.URL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConnection, err)
	}
	if cfg.RuntimeParams == nil {
		cfg.RuntimeParams = make(map[string]string)
	}
	cfg.RuntimeParams["statement_timeout"] = statementTimeoutMs
	cfg.RuntimeParams["default_transaction_read_only"] = "on"
	return cfg, nil
}

// mysqlConfig converts a recorder style mysql:// URL into driver settings.
// unix_socket, charset and ssl query parameters are understood; any other
// parameter is passed through as a session variable.
func mysqlConfig(d dbconn.MySQL) (*mysql.Config, error) {
	u, err := url.Parse(d.URL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConnection, err)
	}

	cfg := mysql.NewConfig()
	if u.User != nil {
		cfg.User = u.User.Username()
		cfg.Passwd, _ = u.User.Password()
	}
	cfg.DBName = strings.TrimPrefix(u.Path, "/")
	cfg.Net = "tcp"
	cfg.Addr = u.Host
	if cfg.Addr != "" && u.Port() == "" {
		cfg.Addr = net.JoinHostPort(u.Hostname(), "3306")
	}

	params := map[string]string{"max_execution_time": statementTimeoutMs}
	for key, values := range parseMySQLQuery(u.RawQuery) {
		value := values[len(values)-1]
		switch key {
		case "unix_socket":
			cfg.Net = "unix"
			cfg.Addr = value
		case "ssl":
			if value == "true" {
				cfg.TLSConfig = "true"
			}
		case "charset":
			if err := cfg.Apply(mysql.Charset(value, "")); err != nil {
				return nil, fmt.Errorf("%w: %v", ErrInvalidConnection, err)
			}
		default:
			params[key] = value
		}
	}
	cfg.Params = params
	return cfg, nil
}

// parseMySQLQuery accepts both & and ; separators, as found in recorder URLs
// such as ?charset=utf8mb4;ssl=true.
func parseMySQLQuery(raw string) url.Values {
	values, _ := url.ParseQuery(strings.ReplaceAll(raw, ";", "&"))
	return values
}
