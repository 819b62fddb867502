package engine

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Record kinds used as metric labels.
const (
	kindTopics    = "topics"
	kindExercises = "exercises"
	kindPosts     = "posts"
	kindReplies   = "replies"
	kindPost      = "post"
	kindReply     = "reply"
)

var (
	fetchFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mathprepa_engine_fetch_failures_total",
			Help: "List loads that failed and degraded to an empty list.",
		},
		[]string{"kind"},
	)

	mutationFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mathprepa_engine_mutation_failures_total",
			Help: "Post or reply creations rejected by the store.",
		},
		[]string{"kind"},
	)

	refetchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mathprepa_engine_refetches_total",
			Help: "List re-fetches triggered by a successful create.",
		},
		[]string{"kind"},
	)
)

func init() {
	prometheus.MustRegister(fetchFailuresTotal)
	prometheus.MustRegister(mutationFailuresTotal)
	prometheus.MustRegister(refetchesTotal)
}

var tracer = otel.Tracer("github.com/seantiz/mathprepa/internal/engine")

func startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

// endSpan records err on the span, if any, and ends it.
func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
