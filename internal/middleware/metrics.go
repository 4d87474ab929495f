package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/sakif/mutual-radar/internal/metrics"
)

// Metrics records request latency and count per method, route and status.
// The route label is the chi pattern, never the raw path.
func Metrics() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := wrap(w)

			next.ServeHTTP(ww, r)

			route := routePattern(r)
			status := strconv.Itoa(ww.statusCode)

			metrics.HTTPRequestDuration.WithLabelValues(r.Method, route, status).
				Observe(time.Since(start).Seconds())
			metrics.HTTPRequestsTotal.WithLabelValues(r.Method, route, status).Inc()
		})
	}
}
