package api

import (
	"net/http"

	"golang.org/x/time/rate"
)

const (
	defaultChartRPS   = 25
	defaultChartBurst = 50
)

// limiter is satisfied by *rate.Limiter.
type limiter interface {
	Allow() bool
}

// unlimitedPaths serve liveness checks and never touch the database.
var unlimitedPaths = map[string]bool{
	"/api/health": true,
}

// newChartLimiter returns a token bucket shared by all chart queries, or nil
// when either setting disables limiting.
func newChartLimiter(ratePerSecond float64, burst int) limiter {
	if ratePerSecond <= 0 || burst <= 0 {
		return nil
	}
	return rate.NewLimiter(rate.Limit(ratePerSecond), burst)
}

func rateLimitMiddleware(l limiter, next http.Handler) http.Handler {
	if l == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if unlimitedPaths[r.URL.Path] || l.Allow() {
			next.ServeHTTP(w, r)
			return
		}
		w.Header().Set("Retry-After", "1")
		writeError(w, http.StatusTooManyRequests, "Too many requests", "database queries are rate limited, please retry shortly")
	})
}
