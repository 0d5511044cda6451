package api

import (
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/im-zhong/eduagent/internal/metrics"
)

// loggingResponseWriter captures the status code for request logging.
type loggingResponseWriter struct {
	http.ResponseWriter
	status int
}

func (w *loggingResponseWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// RequestLogging logs one structured line per request.
func RequestLogging(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			lw := &loggingResponseWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(lw, r)
			logger.Info("http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", lw.status,
				"duration", time.Since(start),
				"remote", r.RemoteAddr,
			)
		})
	}
}

// RateLimit applies a token-bucket limit across all requests. Requests over
// the limit get 429 without reaching a handler.
func RateLimit(requestsPerMinute, burst int) func(http.Handler) http.Handler {
	limiter := rate.NewLimiter(rate.Limit(float64(requestsPerMinute)/60.0), burst)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.Allow() {
				w.Header().Set("Retry-After", "1")
				http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// Chain builds the standard middleware stack: metrics innermost, then
// logging, then rate limiting outermost.
func Chain(logger *slog.Logger, requestsPerMinute, burst int) func(http.Handler) http.Handler {
	logging := RequestLogging(logger)
	var limit func(http.Handler) http.Handler
	if requestsPerMinute > 0 {
		limit = RateLimit(requestsPerMinute, burst)
	}
	return func(next http.Handler) http.Handler {
		handler := metrics.Middleware(next)
		handler = logging(handler)
		if limit != nil {
			handler = limit(handler)
		}
		return handler
	}
}
