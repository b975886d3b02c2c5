package logger

import (
	"context"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func tracedContext(t *testing.T) context.Context {
	t.Helper()
	traceID, err := trace.TraceIDFromHex("0102030405060708090a0b0c0d0e0f10")
	if err != nil {
		t.Fatalf("trace id: %v", err)
	}
	spanID, err := trace.SpanIDFromHex("0102030405060708")
	if err != nil {
		t.Fatalf("span id: %v", err)
	}
	sc := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID: traceID,
		SpanID:  spanID,
	})
	return trace.ContextWithSpanContext(context.Background(), sc)
}

func TestWithContextAttachesTraceFields(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	base := zap.New(core)

	WithContext(tracedContext(t), base).Info("settled")

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("expected one entry, got %d", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["trace_id"] != "0102030405060708090a0b0c0d0e0f10" {
		t.Fatalf("unexpected trace_id %v", fields["trace_id"])
	}
	if fields["span_id"] != "0102030405060708" {
		t.Fatalf("unexpected span_id %v", fields["span_id"])
	}
}

func TestWithContextWithoutSpanReturnsBase(t *testing.T) {
	base := zap.NewNop()
	if WithContext(context.Background(), base) != base {
		t.Fatalf("expected the base logger back when no span is recorded")
	}
}

func TestGinMiddlewareLogsWithTraceCorrelation(t *testing.T) {
	gin.SetMode(gin.TestMode)
	core, logs := observer.New(zap.InfoLevel)

	engine := gin.New()
	engine.Use(GinMiddleware(zap.New(core)))
	engine.GET("/health", func(c *gin.Context) { c.String(200, "ok") })

	req := httptest.NewRequest("GET", "/health", nil)
	req = req.WithContext(tracedContext(t))
	req.Header.Set("X-Request-Id", "req-9")
	engine.ServeHTTP(httptest.NewRecorder(), req)

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("expected one entry, got %d", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["request_id"] != "req-9" {
		t.Fatalf("unexpected request_id %v", fields["request_id"])
	}
	if fields["trace_id"] != "0102030405060708090a0b0c0d0e0f10" {
		t.Fatalf("expected trace correlation on request logs, got %v", fields["trace_id"])
	}
}
