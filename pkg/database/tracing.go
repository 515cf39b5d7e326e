package database

import (
	"context"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/utafrali/checkout-saga/pkg/tracing"
)

const tracerName = "github.com/utafrali/checkout-saga/pkg/database"

var queryDuration = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "db_query_duration_seconds",
		Help:    "Duration of repository queries",
		Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
	},
	[]string{"operation", "status"},
)

// QueryObserver wraps repository queries in client spans, records their
// latency and logs queries slower than a threshold. A nil *QueryObserver is
// valid and observes nothing.
type QueryObserver struct {
	slow   time.Duration
	logger *slog.Logger
}

// NewQueryObserver creates an observer. A zero slow threshold disables slow
// query logging.
func NewQueryObserver(slow time.Duration, logger *slog.Logger) *QueryObserver {
	return &QueryObserver{slow: slow, logger: logger}
}

// Start begins observing one query. The returned function must be called
// with the query's error once it completes:
//
//	ctx, end := o.Start(ctx, "GetCheckoutAttempt", query)
//	defer func() { end(err) }()
func (o *QueryObserver) Start(ctx context.Context, operation, statement string) (context.Context, func(error)) {
	if o == nil {
		return ctx, func(error) {}
	}

	start := time.Now()
	ctx, span := tracing.Tracer(tracerName).Start(ctx, "db."+operation,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("db.system", "postgresql"),
			attribute.String("db.operation", operation),
			attribute.String("db.statement", statement),
		),
	)

	return ctx, func(err error) {
		elapsed := time.Since(start)
		tracing.EndSpan(span, err)

		status := "ok"
		if err != nil {
			status = "error"
		}
		queryDuration.WithLabelValues(operation, status).Observe(elapsed.Seconds())

		if o.slow > 0 && elapsed >= o.slow && o.logger != nil {
			attrs := []any{
				slog.String("operation", operation),
				slog.Duration("duration", elapsed),
			}
			if err != nil {
				attrs = append(attrs, slog.String("error", err.Error()))
			}
			o.logger.WarnContext(ctx, "slow query detected", attrs...)
		}
	}
}
