package stats

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/eugenenazirov/dbstats/internal/dbconn"
	"github.com/eugenenazirov/dbstats/internal/storage"
)

const (
	defaultRowLimit = 10
	maxVersionLen   = 42
	unknownVersion  = "unknown"
)

// Reporter turns raw query results into chart payloads.
type Reporter struct {
	store   storage.Storage
	logger  *zap.Logger
	limit   int
	version string
	source  dbconn.Source
}

// Option configures a Reporter.
type Option func(*Reporter)

// WithRowLimit caps the number of bars in the per-entity charts.
func WithRowLimit(limit int) Option {
	return func(r *Reporter) {
		if limit > 0 {
			r.limit = limit
		}
	}
}

// WithAppVersion sets the version reported in the alerts.
func WithAppVersion(version string) Option {
	return func(r *Reporter) {
		r.version = version
	}
}

// WithConnectionSource records where the database connection came from.
func WithConnectionSource(source dbconn.Source) Option {
	return func(r *Reporter) {
		r.source = source
	}
}

// NewReporter creates a Reporter over store.
func NewReporter(store storage.Storage, logger *zap.Logger, opts ...Option) *Reporter {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Reporter{
		store:   store,
		logger:  logger,
		limit:   defaultRowLimit,
		version: "dev",
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Dialect returns the dialect of the underlying database.
func (r *Reporter) Dialect() dbconn.Dialect {
	if r.store == nil {
		return ""
	}
	return r.store.Dialect()
}

// TableRows reports the row count of every table, largest first.
func (r *Reporter) TableRows(ctx context.Context) ([]CountStat, error) {
	if r.store == nil {
		return nil, ErrNoStorage
	}
	rows, err := r.store.TableRows(ctx)
	if err != nil {
		return nil, fmt.Errorf("table rows: %w", err)
	}
	return toStats(rows, false, 0), nil
}

// TableSizes reports the size of every table in MB, largest first.
func (r *Reporter) TableSizes(ctx context.Context) ([]CountStat, error) {
	if r.store == nil {
		return nil, ErrNoStorage
	}
	rows, err := r.store.TableSizes(ctx)
	if err != nil {
		return nil, fmt.Errorf("table sizes: %w", err)
	}
	return toStats(rows, true, 0), nil
}

// StateCounts reports the entities with the most recorded states.
func (r *Reporter) StateCounts(ctx context.Context) ([]CountStat, error) {
	if r.store == nil {
		return nil, ErrNoStorage
	}
	rows, err := r.store.StateCounts(ctx, r.limit)
	if err != nil {
		return nil, fmt.Errorf("state counts: %w", err)
	}
	return toStats(rows, false, r.limit), nil
}

// StatesByDomain groups recorded states by entity domain, the part of the
// entity id before the first dot.
func (r *Reporter) StatesByDomain(ctx context.Context) ([]CountStat, error) {
	if r.store == nil {
		return nil, ErrNoStorage
	}
	rows, err := r.store.StateCounts(ctx, 0)
	if err != nil {
		return nil, fmt.Errorf("state counts: %w", err)
	}

	totals := make(map[string]float64)
	for _, row := range rows {
		domain, _, _ := strings.Cut(row.Name, ".")
		totals[domain] += row.Value
	}
	grouped := make([]storage.Row, 0, len(totals))
	for domain, total := range totals {
		grouped = append(grouped, storage.Row{Name: domain, Value: total})
	}
	sort.Slice(grouped, func(i, j int) bool {
		if grouped[i].Value != grouped[j].Value {
			return grouped[i].Value > grouped[j].Value
		}
		return grouped[i].Name < grouped[j].Name
	})
	return toStats(grouped, false, r.limit), nil
}

// AttributeSizes reports the entities whose shared attributes use the most
// space, in MB.
func (r *Reporter) AttributeSizes(ctx context.Context) ([]CountStat, error) {
	if r.store == nil {
		return nil, ErrNoStorage
	}
	rows, err := r.store.AttributeSizes(ctx, r.limit)
	if err != nil {
		return nil, fmt.Errorf("attribute sizes: %w", err)
	}
	return toStats(rows, true, r.limit), nil
}

// EventCounts reports the most frequent event types.
func (r *Reporter) EventCounts(ctx context.Context) ([]CountStat, error) {
	if r.store == nil {
		return nil, ErrNoStorage
	}
	rows, err := r.store.EventTypeCounts(ctx, r.limit)
	if err != nil {
		return nil, fmt.Errorf("event counts: %w", err)
	}
	return toStats(rows, false, r.limit), nil
}

// Statistics reports the statistic ids with the most long or short term
// rows.
func (r *Reporter) Statistics(ctx context.Context, table storage.StatisticsTable) ([]CountStat, error) {
	if r.store == nil {
		return nil, ErrNoStorage
	}
	rows, err := r.store.StatisticCounts(ctx, table, r.limit)
	if err != nil {
		return nil, fmt.Errorf("%s counts: %w", table, err)
	}
	return toStats(rows, false, r.limit), nil
}

// Alerts describes the running service and database. A failure to read the
// database version is logged and reported as unknown rather than returned.
func (r *Reporter) Alerts(ctx context.Context) []Alert {
	version := unknownVersion
	if r.store != nil {
		v, err := r.store.Version(ctx)
		if err != nil {
			r.logger.Warn("failed to get database version", zap.Error(err))
		} else {
			version = truncateVersion(v)
		}
	}

	text := fmt.Sprintf("Running with dbstats core version %s on database type %s version %s",
		r.version, r.Dialect(), version)
	if r.source != "" {
		text += fmt.Sprintf(" (connection from %s)", r.source)
	}
	return []Alert{{Type: AlertInfo, Text: text}}
}

func truncateVersion(v string) string {
	if len(v) <= maxVersionLen {
		return v
	}
	return strings.TrimSpace(v[:maxVersionLen]) + "..."
}

// toStats keeps the storage order, optionally rounding to two decimals and
// capping the result at limit entries when limit is positive.
func toStats(rows []storage.Row, round bool, limit int) []CountStat {
	if limit > 0 && len(rows) > limit {
		rows = rows[:limit]
	}
	out := make([]CountStat, 0, len(rows))
	for _, row := range rows {
		value := row.Value
		if round {
			value = roundTo2(value)
		}
		out = append(out, CountStat{Type: row.Name, Count: value})
	}
	return out
}

func roundTo2(v float64) float64 {
	return math.Round(v*100) / 100
}
