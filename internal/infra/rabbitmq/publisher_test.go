package rabbitmq

import (
	"context"
	"testing"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vikrammonish02/EMprion/internal/domain/entity"
	"github.com/vikrammonish02/EMprion/internal/domain/port"
	"github.com/vikrammonish02/EMprion/internal/infra/tracing"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

func TestResultPublishingProperties(t *testing.T) {
	id := uuid.New()
	msg := resultPublishing(entity.AnalysisResultMessage{JobID: id, Status: entity.JobStatusRejected}, []byte("{}"))

	assert.Equal(t, "application/json", msg.ContentType)
	assert.Equal(t, "REJECTED", msg.Type)
	assert.Equal(t, id.String(), msg.MessageId)
	assert.Equal(t, id.String(), msg.CorrelationId)
}

func TestDeadLetterPublishingHeaders(t *testing.T) {
	msg := deadLetterPublishing(port.DeadLetter{Body: []byte("x"), Reason: "max retries exceeded", JobID: "job-1", Attempt: 5})
	assert.Equal(t, "max retries exceeded", msg.Headers["x-dlq-reason"])
	assert.Equal(t, "job-1", msg.Headers["x-job-id"])
	assert.Equal(t, "5", msg.Headers["x-attempt"])

	malformed := deadLetterPublishing(port.DeadLetter{Body: []byte("{"), Reason: "unmarshal_error"})
	assert.NotContains(t, malformed.Headers, "x-job-id")
}

func TestTraceRoundTripsThroughHeaders(t *testing.T) {
	prev := otel.GetTextMapPropagator()
	otel.SetTextMapPropagator(tracing.Propagator())
	t.Cleanup(func() { otel.SetTextMapPropagator(prev) })

	tp := sdktrace.NewTracerProvider()
	ctx, span := tp.Tracer("test").Start(context.Background(), "publish")
	defer span.End()

	headers := injectTrace(ctx, amqp.Table{"x-dlq-reason": "r"})
	assert.Equal(t, "r", headers["x-dlq-reason"])
	require.Contains(t, headers, "traceparent")

	got := extractTrace(context.Background(), headers)
	assert.Equal(t, span.SpanContext().TraceID(), trace.SpanContextFromContext(got).TraceID())
}

func TestExtractTraceWithoutHeaders(t *testing.T) {
	ctx := context.Background()
	assert.Equal(t, ctx, extractTrace(ctx, nil))
}

func TestHeaderCarrierIgnoresNonStringValues(t *testing.T) {
	c := headerCarrier{"a": "1", "b": int64(2)}
	assert.Equal(t, "1", c.Get("a"))
	assert.Equal(t, "", c.Get("b"))
	assert.ElementsMatch(t, []string{"a", "b"}, c.Keys())
}
