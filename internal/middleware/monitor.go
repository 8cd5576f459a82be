package middleware

import (
	"context"
	"net/http"
	"time"

	"github.com/healthtrack/healthtrack/internal/metrics"
)

type routeKey struct{}

// Monitor records request counts and latency per route pattern. Requests
// rejected before reaching the mux are recorded as "unmatched". When other
// middleware sits between Monitor and the mux, Route must wrap the mux so the
// matched pattern is reported back.
func Monitor(m *metrics.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := wrapWriter(w)
			pattern := new(string)
			r = r.WithContext(context.WithValue(r.Context(), routeKey{}, pattern))

			next.ServeHTTP(rw, r)

			route := *pattern
			if route == "" {
				route = r.Pattern
			}
			if route == "" {
				route = "unmatched"
			}
			m.ObserveRequest(route, r.Method, rw.statusCode, time.Since(start))
		})
	}
}

// Route reports the pattern the mux matched to an enclosing Monitor.
func Route(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(w, r)

		if pattern, ok := r.Context().Value(routeKey{}).(*string); ok {
			*pattern = r.Pattern
		}
	})
}
