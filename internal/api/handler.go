package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/eugenenazirov/dbstats/internal/dbconn"
	"github.com/eugenenazirov/dbstats/internal/stats"
	"github.com/eugenenazirov/dbstats/internal/storage"
)

type contextKey string

const requestIDContextKey contextKey = "requestID"

// StatsProvider is the statistics source behind the chart endpoints.
type StatsProvider interface {
	Dialect() dbconn.Dialect
	TableRows(ctx context.Context) ([]stats.CountStat, error)
	TableSizes(ctx context.Context) ([]stats.CountStat, error)
	StateCounts(ctx context.Context) ([]stats.CountStat, error)
	StatesByDomain(ctx context.Context) ([]stats.CountStat, error)
	AttributeSizes(ctx context.Context) ([]stats.CountStat, error)
	EventCounts(ctx context.Context) ([]stats.CountStat, error)
	Statistics(ctx context.Context, table storage.StatisticsTable) ([]stats.CountStat, error)
	Alerts(ctx context.Context) []stats.Alert
}

// ConfigInfo is the redacted view of the running configuration.
type ConfigInfo struct {
	Dialect        dbconn.Dialect `json:"dialect"`
	Source         dbconn.Source  `json:"source"`
	Database       string         `json:"database"`
	LoggingEnabled bool           `json:"loggingEnabled"`
	ServerPort     int            `json:"serverPort"`
	MaxRowsInChart int            `json:"maxRowsInChart"`
}

// Handler wires the statistics provider into HTTP handlers.
type Handler struct {
	stats  StatsProvider
	info   ConfigInfo
	logger *zap.Logger

	clock func() time.Time
}

// HandlerOption configures Handler behaviour.
type HandlerOption func(*Handler)

// WithClock overrides the time source, primarily for tests.
func WithClock(clock func() time.Time) HandlerOption {
	return func(h *Handler) {
		h.clock = clock
	}
}

// WithConfigInfo sets the payload served by the config endpoint.
func WithConfigInfo(info ConfigInfo) HandlerOption {
	return func(h *Handler) {
		h.info = info
	}
}

// WithHandlerLogger sets the logger used for failed queries.
func WithHandlerLogger(logger *zap.Logger) HandlerOption {
	return func(h *Handler) {
		h.logger = logger
	}
}

// NewHandler constructs a Handler with the provided dependencies.
func NewHandler(provider StatsProvider, opts ...HandlerOption) *Handler {
	h := &Handler{
		stats:  provider,
		logger: zap.NewNop(),
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	_ = r
	resp := healthResponse{
		Status:    "ok",
		Timestamp: h.clock(),
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleConfig(w http.ResponseWriter, r *http.Request) {
	_ = r
	writeJSON(w, http.StatusOK, h.info)
}

func (h *Handler) handleAlerts(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.stats.Alerts(r.Context()))
}

func (h *Handler) handleTableRows(w http.ResponseWriter, r *http.Request) {
	h.serveChart(w, r, h.stats.TableRows)
}

func (h *Handler) handleTableSize(w http.ResponseWriter, r *http.Request) {
	h.serveChart(w, r, h.stats.TableSizes)
}

func (h *Handler) handleStateCount(w http.ResponseWriter, r *http.Request) {
	h.serveChart(w, r, h.stats.StateCounts)
}

func (h *Handler) handleStatesByDomain(w http.ResponseWriter, r *http.Request) {
	h.serveChart(w, r, h.stats.StatesByDomain)
}

func (h *Handler) handleAttributesSize(w http.ResponseWriter, r *http.Request) {
	h.serveChart(w, r, h.stats.AttributeSizes)
}

func (h *Handler) handleEventCount(w http.ResponseWriter, r *http.Request) {
	h.serveChart(w, r, h.stats.EventCounts)
}

func (h *Handler) handleStatisticsLong(w http.ResponseWriter, r *http.Request) {
	h.serveChart(w, r, func(ctx context.Context) ([]stats.CountStat, error) {
		return h.stats.Statistics(ctx, storage.LongTermStatistics)
	})
}

func (h *Handler) handleStatisticsShort(w http.ResponseWriter, r *http.Request) {
	h.serveChart(w, r, func(ctx context.Context) ([]stats.CountStat, error) {
		return h.stats.Statistics(ctx, storage.ShortTermStatistics)
	})
}

func (h *Handler) serveChart(w http.ResponseWriter, r *http.Request, query func(context.Context) ([]stats.CountStat, error)) {
	data, err := query(r.Context())
	if err != nil {
		switch {
		case errors.Is(err, storage.ErrUnsupportedDialect):
			details := fmt.Sprintf("Database type %s not supported yet for this chart", h.stats.Dialect())
			writeError(w, http.StatusBadRequest, "Unsupported database", details)
		case errors.Is(err, stats.ErrNoStorage):
			writeError(w, http.StatusServiceUnavailable, "Database unavailable", err.Error(),
				"Check DB_CONNECT_STRING or the recorder db_url in configuration.yaml")
		default:
			h.logger.Error("statistics query failed",
				zap.String("path", r.URL.Path),
				zap.String("request_id", requestIDFromContext(r.Context())),
				zap.Error(err),
			)
			writeInternalError(w, err)
		}
		return
	}
	if data == nil {
		data = []stats.CountStat{}
	}
	writeJSON(w, http.StatusOK, data)
}

func requestIDFromContext(ctx context.Context) string {
	if v := ctx.Value(requestIDContextKey); v != nil {
		if id, ok := v.(string); ok {
			return id
		}
	}
	return ""
}

type healthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

type errorResponse struct {
	Error      string `json:"error"`
	Details    string `json:"details,omitempty"`
	Suggestion string `json:"suggestion,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	if status != 0 {
		w.WriteHeader(status)
	}
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message, details string, suggestion ...string) {
	resp := errorResponse{
		Error:   message,
		Details: details,
	}
	if len(suggestion) > 0 {
		resp.Suggestion = suggestion[0]
	}
	writeJSON(w, status, resp)
}

func writeInternalError(w http.ResponseWriter, err error) {
	writeError(w, http.StatusInternalServerError, "Internal error", err.Error())
}
