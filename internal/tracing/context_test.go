package tracing

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestNewTraceID(t *testing.T) {
	id1 := NewTraceID()
	id2 := NewTraceID()

	if id1 == "" {
		t.Error("NewTraceID returned empty string")
	}

	if id1 == id2 {
		t.Error("NewTraceID returned duplicate IDs")
	}
}

func TestContextValues(t *testing.T) {
	ctx := context.Background()
	ctx = WithTraceID(ctx, "trace-1")
	ctx = WithSessionID(ctx, "s1")
	ctx = WithActor(ctx, "dm")

	tc := FromContext(ctx)
	if tc.TraceID != "trace-1" {
		t.Errorf("Expected trace ID trace-1, got %s", tc.TraceID)
	}
	if tc.SessionID != "s1" {
		t.Errorf("Expected session ID s1, got %s", tc.SessionID)
	}
	if tc.Actor != "dm" {
		t.Errorf("Expected actor dm, got %s", tc.Actor)
	}
}

func TestGetFromEmptyContext(t *testing.T) {
	ctx := context.Background()

	if GetTraceID(ctx) != "" {
		t.Error("Expected empty trace ID")
	}
	if GetSessionID(ctx) != "" {
		t.Error("Expected empty session ID")
	}
	if GetActor(ctx) != "" {
		t.Error("Expected empty actor")
	}
}

func TestNewRequestContext(t *testing.T) {
	ctx := NewRequestContext(context.Background())
	if GetTraceID(ctx) == "" {
		t.Error("NewRequestContext did not set a trace ID")
	}
}

func TestLoggerFromContext(t *testing.T) {
	var buf bytes.Buffer
	base := zerolog.New(&buf)

	ctx := WithSessionID(WithTraceID(context.Background(), "trace-1"), "s1")
	logger := LoggerFromContext(ctx, base)
	logger.Info().Msg("hello")

	out := buf.String()
	if !strings.Contains(out, `"trace_id":"trace-1"`) {
		t.Errorf("trace_id missing from %s", out)
	}
	if !strings.Contains(out, `"session_id":"s1"`) {
		t.Errorf("session_id missing from %s", out)
	}
	if strings.Contains(out, `"actor"`) {
		t.Errorf("unexpected actor field in %s", out)
	}
}
