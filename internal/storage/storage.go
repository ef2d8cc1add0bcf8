package storage

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/eugenenazirov/dbstats/internal/dbconn"
)

// Row is one labelled value returned by a statistics query.
type Row struct {
	Name  string
	Value float64
}

// StatisticsTable selects between long and short term statistics.
type StatisticsTable string

const (
	LongTermStatistics  StatisticsTable = "statistics"
	ShortTermStatistics StatisticsTable = "statistics_short_term"
)

// Storage runs the fixed statistics queries against the recorder database.
// A limit of zero or less means no limit.
type Storage interface {
	Dialect() dbconn.Dialect
	TableRows(ctx context.Context) ([]Row, error)
	TableSizes(ctx context.Context) ([]Row, error)
	Version(ctx context.Context) (string, error)
	StateCounts(ctx context.Context, limit int) ([]Row, error)
	AttributeSizes(ctx context.Context, limit int) ([]Row, error)
	EventTypeCounts(ctx context.Context, limit int) ([]Row, error)
	StatisticCounts(ctx context.Context, table StatisticsTable, limit int) ([]Row, error)
	Close() error
}

// Option configures SQLStorage.
type Option func(*SQLStorage)

// WithQueryLogging logs every query and its duration.
func WithQueryLogging(enabled bool) Option {
	return func(s *SQLStorage) {
		s.logQueries = enabled
	}
}

// SQLStorage implements Storage on top of database/sql.
type SQLStorage struct {
	db         *sql.DB
	dialect    dbconn.Dialect
	logger     *zap.Logger
	logQueries bool
}

var _ Storage = (*SQLStorage)(nil)

// Open connects to the database described by desc and verifies the
// connection.
func Open(ctx context.Context, desc dbconn.Descriptor, logger *zap.Logger, opts ...Option) (*SQLStorage, error) {
	db, err := openDB(desc)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(time.Hour)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s: %w", desc, err)
	}

	s := New(db, desc.Dialect(), logger, opts...)
	s.logger.Info("database connection established", zap.String("database", desc.String()))
	return s, nil
}

// New wraps an already opened database.
func New(db *sql.DB, dialect dbconn.Dialect, logger *zap.Logger, opts ...Option) *SQLStorage {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &SQLStorage{
		db:      db,
		dialect: dialect,
		logger:  logger.With(zap.String("component", "storage")),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Dialect returns the connected database type.
func (s *SQLStorage) Dialect() dbconn.Dialect {
	return s.dialect
}

// Close releases the connection pool.
func (s *SQLStorage) Close() error {
	return s.db.Close()
}

// TableRows counts the rows of every user table, largest first.
func (s *SQLStorage) TableRows(ctx context.Context) ([]Row, error) {
	switch s.dialect {
	case dbconn.DialectSQLite:
		return s.perSQLiteTable(ctx, func(ctx context.Context, table string) (float64, error) {
			return s.scalar(ctx, "SELECT count(*) FROM "+quoteIdent(table))
		})
	case dbconn.DialectPostgres:
		return s.queryRows(ctx, `SELECT relname, n_live_tup FROM pg_stat_user_tables ORDER BY n_live_tup DESC`)
	case dbconn.DialectMySQL:
		return s.queryRows(ctx, `SELECT table_name, table_rows FROM information_schema.tables
WHERE table_schema = DATABASE() ORDER BY table_rows DESC`)
	}
	return nil, fmt.Errorf("%w: %s", ErrUnsupportedDialect, s.dialect)
}

// TableSizes reports the on-disk size of every user table in MB, largest
// first.
func (s *SQLStorage) TableSizes(ctx context.Context) ([]Row, error) {
	switch s.dialect {
	case dbconn.DialectSQLite:
		return s.sqliteTableSizes(ctx)
	case dbconn.DialectPostgres:
		return s.queryRows(ctx, `SELECT table_name, pg_total_relation_size(quote_ident(table_name)) / 1024 / 1024
FROM information_schema.tables WHERE table_schema = 'public'
ORDER BY pg_total_relation_size(quote_ident(table_name)) DESC`)
	case dbconn.DialectMySQL:
		return s.queryRows(ctx, `SELECT table_name, round(((data_length + index_length) / 1024 / 1024), 2)
FROM information_schema.tables WHERE table_schema = DATABASE()
ORDER BY (data_length + index_length) DESC`)
	}
	return nil, fmt.Errorf("%w: %s", ErrUnsupportedDialect, s.dialect)
}

// Version returns the database server version string.
func (s *SQLStorage) Version(ctx context.Context) (string, error) {
	query := `SELECT VERSION()`
	if s.dialect == dbconn.DialectSQLite {
		query = `SELECT sqlite_version()`
	}
	s.trace(query)

	var version string
	if err := s.db.QueryRowContext(ctx, query).Scan(&version); err != nil {
		return "", fmt.Errorf("query version: %w", err)
	}
	return version, nil
}

// StateCounts counts recorded states per entity.
func (s *SQLStorage) StateCounts(ctx context.Context, limit int) ([]Row, error) {
	return s.queryRows(ctx, `SELECT states_meta.entity_id, count(*) AS cnt
FROM states INNER JOIN states_meta ON states.metadata_id = states_meta.metadata_id
GROUP BY states_meta.entity_id ORDER BY cnt DESC`+limitClause(limit))
}

// AttributeSizes sums the size of the shared attributes referenced by each
// entity, in MB.
func (s *SQLStorage) AttributeSizes(ctx context.Context, limit int) ([]Row, error) {
	return s.queryRows(ctx, `SELECT attr2entity.entity_id, sum(length(a.shared_attrs)) / 1024.0 / 1024.0 AS size
FROM (SELECT DISTINCT state_attributes.attributes_id, states_meta.entity_id
      FROM state_attributes, states, states_meta
      WHERE state_attributes.attributes_id = states.attributes_id
        AND states_meta.metadata_id = states.metadata_id) attr2entity, state_attributes a
WHERE a.attributes_id = attr2entity.attributes_id
GROUP BY attr2entity.entity_id ORDER BY size DESC`+limitClause(limit))
}

// EventTypeCounts counts recorded events per event type.
func (s *SQLStorage) EventTypeCounts(ctx context.Context, limit int) ([]Row, error) {
	return s.queryRows(ctx, `SELECT event_types.event_type, count(*) AS cnt
FROM events INNER JOIN event_types ON events.event_type_id = event_types.event_type_id
GROUP BY event_types.event_type ORDER BY cnt DESC`+limitClause(limit))
}

// StatisticCounts counts long or short term statistic rows per statistic id.
func (s *SQLStorage) StatisticCounts(ctx context.Context, table StatisticsTable, limit int) ([]Row, error) {
	if table != LongTermStatistics && table != ShortTermStatistics {
		return nil, fmt.Errorf("unknown statistics table %q", table)
	}
	return s.queryRows(ctx, `SELECT statistics_meta.statistic_id, count(*) AS cnt
FROM `+string(table)+` s INNER JOIN statistics_meta ON s.metadata_id = statistics_meta.id
GROUP BY statistics_meta.statistic_id ORDER BY cnt DESC`+limitClause(limit))
}

// sqliteTableSizes reads page sizes from the dbstat virtual table. Builds of
// SQLite without SQLITE_ENABLE_DBSTAT_VTAB, the go-sqlite3 default, lack it;
// sizes are then estimated from the stored payload of every row.
func (s *SQLStorage) sqliteTableSizes(ctx context.Context) ([]Row, error) {
	rows, err := s.perSQLiteTable(ctx, func(ctx context.Context, table string) (float64, error) {
		return s.scalar(ctx, `SELECT SUM(pgsize) / 1024.0 / 1024.0 FROM dbstat WHERE name = ?`, table)
	})
	if err == nil || !isMissingDBStat(err) {
		return rows, err
	}

	s.logger.Debug("dbstat unavailable, estimating table sizes from row payload")
	return s.perSQLiteTable(ctx, func(ctx context.Context, table string) (float64, error) {
		size, err := s.sqlitePayloadBytes(ctx, table)
		if err != nil {
			return 0, err
		}
		return size / 1024 / 1024, nil
	})
}

// sqlitePayloadBytes sums the byte length of every column value in table.
func (s *SQLStorage) sqlitePayloadBytes(ctx context.Context, table string) (float64, error) {
	columns, err := s.sqliteColumns(ctx, table)
	if err != nil {
		return 0, err
	}
	if len(columns) == 0 {
		return 0, nil
	}

	terms := make([]string, 0, len(columns))
	for _, column := range columns {
		terms = append(terms, "COALESCE(length(CAST("+quoteIdent(column)+" AS BLOB)), 0)")
	}
	return s.scalar(ctx, "SELECT SUM("+strings.Join(terms, " + ")+") FROM "+quoteIdent(table))
}

func (s *SQLStorage) sqliteColumns(ctx context.Context, table string) ([]string, error) {
	const query = `SELECT name FROM pragma_table_info(?)`
	s.trace(query, zap.String("table", table))

	rows, err := s.db.QueryContext(ctx, query, table)
	if err != nil {
		return nil, fmt.Errorf("list columns of %s: %w", table, err)
	}
	defer rows.Close()

	var columns []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan column name: %w", err)
		}
		columns = append(columns, name)
	}
	return columns, rows.Err()
}

func isMissingDBStat(err error) bool {
	return strings.Contains(err.Error(), "no such table: dbstat")
}

func (s *SQLStorage) perSQLiteTable(ctx context.Context, measure func(ctx context.Context, table string) (float64, error)) ([]Row, error) {
	tables, err := s.sqliteTables(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]Row, 0, len(tables))
	for _, table := range tables {
		value, err := measure(ctx, table)
		if err != nil {
			return nil, fmt.Errorf("query table %s: %w", table, err)
		}
		out = append(out, Row{Name: table, Value: value})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Value > out[j].Value })
	return out, nil
}

// scalar runs a query returning a single, possibly NULL, number.
func (s *SQLStorage) scalar(ctx context.Context, query string, args ...any) (float64, error) {
	s.trace(query)

	var value sql.NullFloat64
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&value); err != nil {
		return 0, err
	}
	return value.Float64, nil
}

func (s *SQLStorage) sqliteTables(ctx context.Context) ([]string, error) {
	const query = `SELECT name FROM sqlite_master WHERE type = 'table'`
	s.trace(query)

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	defer rows.Close()

	var tables []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan table name: %w", err)
		}
		tables = append(tables, name)
	}
	return tables, rows.Err()
}

func (s *SQLStorage) queryRows(ctx context.Context, query string) ([]Row, error) {
	s.trace(query)
	start := time.Now()

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	var out []Row
	for rows.Next() {
		var (
			name  sql.NullString
			value sql.NullFloat64
		)
		if err := rows.Scan(&name, &value); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		out = append(out, Row{Name: name.String, Value: value.Float64})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}

	if s.logQueries {
		s.logger.Info("query completed", zap.Int("rows", len(out)), zap.Duration("duration", time.Since(start)))
	}
	return out, nil
}

func (s *SQLStorage) trace(query string, fields ...zap.Field) {
	if !s.logQueries {
		return
	}
	s.logger.Info("query", append([]zap.Field{zap.String("sql", query)}, fields...)...)
}

func limitClause(limit int) string {
	if limit <= 0 {
		return ""
	}
	return fmt.Sprintf(" LIMIT %d", limit)
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
