package storage

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"

	"go.uber.org/zap/zaptest"

	"github.com/eugenenazirov/dbstats/internal/dbconn"
)

const recorderSchema = `
CREATE TABLE states_meta (metadata_id INTEGER PRIMARY KEY, entity_id TEXT);
CREATE TABLE state_attributes (attributes_id INTEGER PRIMARY KEY, shared_attrs TEXT);
CREATE TABLE states (state_id INTEGER PRIMARY KEY, metadata_id INTEGER, attributes_id INTEGER, state TEXT);
CREATE TABLE event_types (event_type_id INTEGER PRIMARY KEY, event_type TEXT);
CREATE TABLE events (event_id INTEGER PRIMARY KEY, event_type_id INTEGER);
CREATE TABLE statistics_meta (id INTEGER PRIMARY KEY, statistic_id TEXT);
CREATE TABLE statistics (id INTEGER PRIMARY KEY, metadata_id INTEGER);
CREATE TABLE statistics_short_term (id INTEGER PRIMARY KEY, metadata_id INTEGER);

INSERT INTO states_meta VALUES (1, 'sensor.kitchen'), (2, 'light.hall'), (3, 'sensor.garage');
INSERT INTO state_attributes VALUES (10, '{"unit":"C"}'), (11, '{"brightness":255,"color_mode":"hs"}');
INSERT INTO states (metadata_id, attributes_id, state) VALUES
  (1, 10, '20'), (1, 10, '21'), (1, 10, '22'),
  (2, 11, 'on'), (2, 11, 'off'),
  (3, 10, '5');
INSERT INTO event_types VALUES (1, 'state_changed'), (2, 'call_service');
INSERT INTO events (event_type_id) VALUES (1), (1), (2);
INSERT INTO statistics_meta VALUES (1, 'sensor.kitchen'), (2, 'sensor.garage');
INSERT INTO statistics (metadata_id) VALUES (1), (2), (2);
INSERT INTO statistics_short_term (metadata_id) VALUES (1);
`

func newSQLiteStorage(t *testing.T) *SQLStorage {
	t.Helper()

	path := filepath.Join(t.TempDir(), "home-assistant_v2.db")
	db, err := sql.Open("sqlite3", "file:"+path)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if _, err := db.Exec(recorderSchema); err != nil {
		t.Fatalf("seed schema: %v", err)
	}
	if err := db.Close(); err != nil {
		t.Fatalf("close seed connection: %v", err)
	}

	s, err := Open(context.Background(), dbconn.SQLite{Path: path, OpenFlags: dbconn.OpenReadOnly}, zaptest.NewLogger(t), WithQueryLogging(true))
	if err != nil {
		t.Fatalf("Open returned error: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSQLStorageStateCounts(t *testing.T) {
	t.Parallel()

	s := newSQLiteStorage(t)

	rows, err := s.StateCounts(context.Background(), 2)
	if err != nil {
		t.Fatalf("StateCounts returned error: %v", err)
	}
	want := []Row{{Name: "sensor.kitchen", Value: 3}, {Name: "light.hall", Value: 2}}
	assertRows(t, rows, want)
}

func TestSQLStorageEventTypeCounts(t *testing.T) {
	t.Parallel()

	s := newSQLiteStorage(t)

	rows, err := s.EventTypeCounts(context.Background(), 0)
	if err != nil {
		t.Fatalf("EventTypeCounts returned error: %v", err)
	}
	assertRows(t, rows, []Row{{Name: "state_changed", Value: 2}, {Name: "call_service", Value: 1}})
}

func TestSQLStorageStatisticCounts(t *testing.T) {
	t.Parallel()

	s := newSQLiteStorage(t)
	ctx := context.Background()

	long, err := s.StatisticCounts(ctx, LongTermStatistics, 0)
	if err != nil {
		t.Fatalf("StatisticCounts(long) returned error: %v", err)
	}
	assertRows(t, long, []Row{{Name: "sensor.garage", Value: 2}, {Name: "sensor.kitchen", Value: 1}})

	short, err := s.StatisticCounts(ctx, ShortTermStatistics, 0)
	if err != nil {
		t.Fatalf("StatisticCounts(short) returned error: %v", err)
	}
	assertRows(t, short, []Row{{Name: "sensor.kitchen", Value: 1}})

	if _, err := s.StatisticCounts(ctx, StatisticsTable("states; DROP TABLE states"), 0); err == nil {
		t.Fatal("expected error for unknown statistics table")
	}
}

func TestSQLStorageAttributeSizes(t *testing.T) {
	t.Parallel()

	s := newSQLiteStorage(t)

	rows, err := s.AttributeSizes(context.Background(), 0)
	if err != nil {
		t.Fatalf("AttributeSizes returned error: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected 3 entities, got %+v", rows)
	}
	if rows[0].Name != "light.hall" {
		t.Fatalf("expected light.hall to have the largest attributes, got %+v", rows)
	}
	for _, r := range rows {
		if r.Value <= 0 {
			t.Fatalf("expected positive size for %s, got %v", r.Name, r.Value)
		}
	}
}

func TestSQLStorageTableRows(t *testing.T) {
	t.Parallel()

	s := newSQLiteStorage(t)

	rows, err := s.TableRows(context.Background())
	if err != nil {
		t.Fatalf("TableRows returned error: %v", err)
	}
	if len(rows) != 8 {
		t.Fatalf("expected 8 tables, got %+v", rows)
	}
	if rows[0].Name != "states" || rows[0].Value != 6 {
		t.Fatalf("expected states with 6 rows first, got %+v", rows[0])
	}
	for i := 1; i < len(rows); i++ {
		if rows[i].Value > rows[i-1].Value {
			t.Fatalf("rows not sorted descending: %+v", rows)
		}
	}
}

func TestSQLStorageTableSizes(t *testing.T) {
	t.Parallel()

	s := newSQLiteStorage(t)

	rows, err := s.TableSizes(context.Background())
	if err != nil {
		t.Fatalf("TableSizes returned error: %v", err)
	}
	if len(rows) != 8 {
		t.Fatalf("expected 8 tables, got %+v", rows)
	}
	for i := 1; i < len(rows); i++ {
		if rows[i].Value > rows[i-1].Value {
			t.Fatalf("rows not sorted descending: %+v", rows)
		}
	}
	for _, r := range rows {
		if r.Name == "states" && r.Value <= 0 {
			t.Fatalf("expected a positive size for states, got %v", r.Value)
		}
	}
}

func TestSQLitePayloadBytes(t *testing.T) {
	t.Parallel()

	s := newSQLiteStorage(t)

	size, err := s.sqlitePayloadBytes(context.Background(), "states")
	if err != nil {
		t.Fatalf("sqlitePayloadBytes returned error: %v", err)
	}
	// six rows: ids 6 bytes, metadata ids 6, attribute ids 12, states 12
	if size != 36 {
		t.Fatalf("expected 36 payload bytes, got %v", size)
	}
}

func TestIsMissingDBStat(t *testing.T) {
	t.Parallel()

	if !isMissingDBStat(errors.New("query table states: no such table: dbstat")) {
		t.Fatal("expected missing dbstat to be detected")
	}
	if isMissingDBStat(errors.New("no such table: states")) {
		t.Fatal("expected other missing tables to be reported as errors")
	}
}

func TestSQLStorageVersion(t *testing.T) {
	t.Parallel()

	s := newSQLiteStorage(t)

	version, err := s.Version(context.Background())
	if err != nil {
		t.Fatalf("Version returned error: %v", err)
	}
	if version == "" || version[0] != '3' {
		t.Fatalf("unexpected sqlite version %q", version)
	}
	if s.Dialect() != dbconn.DialectSQLite {
		t.Fatalf("Dialect = %q", s.Dialect())
	}
}

func TestSQLStorageUnsupportedDialect(t *testing.T) {
	t.Parallel()

	s := New(nil, dbconn.Dialect("oracle"), nil)

	if _, err := s.TableRows(context.Background()); !errors.Is(err, ErrUnsupportedDialect) {
		t.Fatalf("TableRows: expected ErrUnsupportedDialect, got %v", err)
	}
	if _, err := s.TableSizes(context.Background()); !errors.Is(err, ErrUnsupportedDialect) {
		t.Fatalf("TableSizes: expected ErrUnsupportedDialect, got %v", err)
	}
}

func TestOpenMissingSQLiteFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "missing.db")
	_, err := Open(context.Background(), dbconn.SQLite{Path: path, OpenFlags: dbconn.OpenReadOnly}, zaptest.NewLogger(t))
	if err == nil {
		t.Fatal("expected error opening a missing read-only database")
	}
}

func TestLimitClause(t *testing.T) {
	t.Parallel()

	if got := limitClause(0); got != "" {
		t.Fatalf("limitClause(0) = %q", got)
	}
	if got := limitClause(-5); got != "" {
		t.Fatalf("limitClause(-5) = %q", got)
	}
	if got := limitClause(25); got != " LIMIT 25" {
		t.Fatalf("limitClause(25) = %q", got)
	}
}

func assertRows(t *testing.T, got, want []Row) {
	t.Helper()

	if len(got) != len(want) {
		t.Fatalf("got %d rows %+v, want %+v", len(got), got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("row %d = %+v, want %+v", i, got[i], want[i])
		}
	}
}
