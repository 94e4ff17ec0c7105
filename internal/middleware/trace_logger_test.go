package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestWithTraceLoggerInstallsRequestLogger(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	base := zap.New(core)

	handler := WithTraceLogger(base)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		LoggerFromRequest(r, zap.NewNop()).Info("handled")
	}))

	req := httptest.NewRequest("GET", "/li/1/status", nil)
	handler.ServeHTTP(httptest.NewRecorder(), req)

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("expected 1 log entry, got %d", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["http_method"] != "GET" {
		t.Errorf("expected http_method GET, got %v", fields["http_method"])
	}
	if fields["http_path"] != "/li/1/status" {
		t.Errorf("expected http_path /li/1/status, got %v", fields["http_path"])
	}
}

func TestLoggerFromContextFallsBack(t *testing.T) {
	fallback := zap.NewNop()
	req := httptest.NewRequest("GET", "/health", nil)
	if got := LoggerFromRequest(req, fallback); got != fallback {
		t.Error("expected the fallback logger without the middleware installed")
	}
}
