package tracing

import (
	"context"
	"errors"
	"testing"

	"go.opentelemetry.io/otel/attribute"
)

func TestStartSpanSetsTraceID(t *testing.T) {
	ctx, span := StartSpan(context.Background(), "test.span", attribute.String("tool", "grant_gold"))
	defer EndSpan(span, nil)

	if GetTraceID(ctx) == "" {
		t.Error("StartSpan did not set a trace ID")
	}
}

func TestStartSpanKeepsExistingTraceID(t *testing.T) {
	ctx := WithTraceID(context.Background(), "existing")
	ctx, span := StartSpan(ctx, "test.span")
	EndSpan(span, errors.New("boom"))

	if got := GetTraceID(ctx); got != "existing" {
		t.Errorf("Expected existing trace ID, got %s", got)
	}
}

func TestInitOpenTelemetry(t *testing.T) {
	if err := InitOpenTelemetry("tablekeeper-test"); err != nil {
		t.Fatalf("InitOpenTelemetry failed: %v", err)
	}
	// Second call is a no-op.
	if err := InitOpenTelemetry("tablekeeper-test"); err != nil {
		t.Fatalf("second InitOpenTelemetry failed: %v", err)
	}
	if err := ShutdownOpenTelemetry(context.Background()); err != nil {
		t.Fatalf("ShutdownOpenTelemetry failed: %v", err)
	}
}
