package middleware

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/utafrali/checkout-saga/pkg/logger"
)

// CorrelationIDHeader is read from requests and echoed on responses.
const CorrelationIDHeader = "X-Correlation-ID"

// RequestLogging assigns a correlation id (taken from the inbound header or
// generated), stores a request-scoped logger in the context and writes one
// access log line per request. Mount it after Tracing so the logger carries
// trace_id and span_id.
func RequestLogging(base *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			correlationID := r.Header.Get(CorrelationIDHeader)
			if correlationID == "" {
				correlationID = uuid.NewString()
			}
			w.Header().Set(CorrelationIDHeader, correlationID)

			ctx := logger.WithCorrelationID(r.Context(), correlationID)
			l := logger.WithContext(ctx, base)
			ctx = logger.NewContext(ctx, l)

			sw := wrap(w)
			next.ServeHTTP(sw, r.WithContext(ctx))

			level := slog.LevelInfo
			if sw.status >= http.StatusInternalServerError {
				level = slog.LevelError
			}
			l.LogAttrs(ctx, level, "http request",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", sw.status),
				slog.Duration("duration", time.Since(start)),
				slog.Int("bytes", sw.bytes),
				slog.String("remote_addr", r.RemoteAddr),
			)
		})
	}
}
