package tracing

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestInit_Disabled(t *testing.T) {
	shutdown, err := Init(Config{Enabled: false})
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))
}

func TestStartSpanAndEnd(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tp, err := NewProvider(Config{ServiceName: "test", ServiceVersion: "dev"}, exporter)
	require.NoError(t, err)

	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	defer otel.SetTracerProvider(prev)

	ctx, span := StartSpan(context.Background(), "approval.Approve", "expense_id", "exp-1", "dangling")
	_, child := StartSpan(ctx, "approval.evaluate")
	End(child, nil)
	End(span, errors.New("not eligible"))

	require.NoError(t, tp.ForceFlush(context.Background()))
	spans := exporter.GetSpans()
	require.Len(t, spans, 2)

	assert.Equal(t, "approval.evaluate", spans[0].Name)
	assert.Equal(t, spans[1].SpanContext.SpanID(), spans[0].Parent.SpanID())

	assert.Equal(t, "approval.Approve", spans[1].Name)
	assert.Equal(t, codes.Error, spans[1].Status.Code)
	require.Len(t, spans[1].Attributes, 1)
	assert.Equal(t, "exp-1", spans[1].Attributes[0].Value.AsString())
}
