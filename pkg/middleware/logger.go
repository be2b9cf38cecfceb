package middleware

import (
	"log/slog"
	"net/http"
	"time"
)

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

// Observer receives the method, route pattern, status, and duration of each request.
type Observer func(method, pattern string, status int, elapsed time.Duration)

// Logger returns middleware that logs each request and reports it to any observers.
func Logger(logger *slog.Logger, observers ...Observer) Func {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

			next.ServeHTTP(rec, r)

			elapsed := time.Since(start)
			logger.Info(
				"request",
				"method", r.Method,
				"uri", r.URL.RequestURI(),
				"status", rec.status,
				"duration", elapsed,
			)

			for _, observe := range observers {
				observe(r.Method, r.Pattern, rec.status, elapsed)
			}
		})
	}
}
