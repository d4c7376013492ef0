package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// newSpanRecorder installs an in-memory exporter as the global trace
// provider for the duration of the test.
func newSpanRecorder(t *testing.T) *tracetest.InMemoryExporter {
	t.Helper()
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSyncer(exporter),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)
	otel.SetTracerProvider(tp)
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	return exporter
}

func spanAttrs(stub tracetest.SpanStub) map[attribute.Key]attribute.Value {
	attrs := make(map[attribute.Key]attribute.Value, len(stub.Attributes))
	for _, kv := range stub.Attributes {
		attrs[kv.Key] = kv.Value
	}
	return attrs
}

func TestTracingSpanPerRequest(t *testing.T) {
	exporter := newSpanRecorder(t)

	handler := Tracing(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("[]"))
	}))

	req := httptest.NewRequest(http.MethodGet, "/main_server/client_interface/json/?switcher=GetSearchResults", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	if spans[0].Name != "GET /main_server/client_interface/json/" {
		t.Errorf("unexpected span name %q", spans[0].Name)
	}

	attrs := spanAttrs(spans[0])
	if got := attrs["http.method"].AsString(); got != "GET" {
		t.Errorf("http.method = %q", got)
	}
	if got := attrs["http.status_code"].AsInt64(); got != 200 {
		t.Errorf("http.status_code = %d", got)
	}
	if got := attrs["http.url"].AsString(); got == "" {
		t.Error("http.url attribute missing")
	}
}

func TestTracingServerErrorMarksSpan(t *testing.T) {
	exporter := newSpanRecorder(t)

	handler := Tracing(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))

	req := httptest.NewRequest(http.MethodGet, "/main_server/client_interface/json/", nil)
	handler.ServeHTTP(httptest.NewRecorder(), req)

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	if spans[0].Status.Code != codes.Error {
		t.Errorf("expected error span status, got %v", spans[0].Status.Code)
	}
}

func TestTracingClientErrorIsNotSpanError(t *testing.T) {
	exporter := newSpanRecorder(t)

	handler := Tracing(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))

	req := httptest.NewRequest(http.MethodGet, "/main_server/client_interface/yaml/", nil)
	handler.ServeHTTP(httptest.NewRecorder(), req)

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	if spans[0].Status.Code == codes.Error {
		t.Error("a 400 must not mark the span as failed")
	}
	if got := spanAttrs(spans[0])["http.status_code"].AsInt64(); got != 400 {
		t.Errorf("http.status_code = %d", got)
	}
}

func TestTracingCarriesRequestID(t *testing.T) {
	exporter := newSpanRecorder(t)

	var handler http.Handler = Tracing(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	handler = CorrelationID(zerolog.Nop())(handler)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-ID", "req-42")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	if got := spanAttrs(spans[0])["request_id"].AsString(); got != "req-42" {
		t.Errorf("request_id attribute = %q, want req-42", got)
	}
}

func TestTracingHonorsIncomingTraceparent(t *testing.T) {
	exporter := newSpanRecorder(t)
	otel.SetTextMapPropagator(propagation.TraceContext{})
	t.Cleanup(func() { otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator()) })

	handler := Tracing(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	req := httptest.NewRequest(http.MethodGet, "/main_server/client_interface/xml/", nil)
	req.Header.Set("traceparent", "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	if got := spans[0].SpanContext.TraceID().String(); got != "4bf92f3577b34da6a3ce929d0e0e4736" {
		t.Errorf("expected the caller's trace to continue, got trace id %s", got)
	}
}
