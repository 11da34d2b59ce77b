package api

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/opensource-finance/kestrel/internal/metrics"
)

func TestResponseWriterRecordsStatusAndSize(t *testing.T) {
	var seen *responseWriter
	h := LoggingMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = w.(*responseWriter)
		w.WriteHeader(http.StatusTeapot)
		w.Write([]byte("short and stout"))
	}))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/pot", nil))

	if seen.statusCode != http.StatusTeapot || seen.bytes != len("short and stout") {
		t.Errorf("unexpected record: status %d bytes %d", seen.statusCode, seen.bytes)
	}
	if wrap(seen) != seen {
		t.Error("nested middleware must share one wrapper")
	}
}

func TestRecoverMiddleware(t *testing.T) {
	h := RecoverMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))

	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected status 500, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), `"error":"internal server error"`) {
		t.Errorf("expected JSON error body, got %s", rr.Body.String())
	}
	if ct := rr.Header().Get("Content-Type"); !strings.HasPrefix(ct, "application/json") {
		t.Errorf("expected JSON content type, got %q", ct)
	}
}

func TestRoutePatternAfterRouting(t *testing.T) {
	var route string
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if before := routePattern(req); before != "" {
				t.Errorf("pattern known before routing: %q", before)
			}
			next.ServeHTTP(w, req)
			route = routePattern(req)
		})
	})
	r.Use(TracingMiddleware)
	r.Use(MetricsMiddleware(metrics.New()))
	r.Get("/api/fraud/transactions/{id}", func(w http.ResponseWriter, r *http.Request) {})

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/fraud/transactions/42", nil))

	if route != "/api/fraud/transactions/{id}" {
		t.Errorf("expected route pattern, got %q", route)
	}
	if rr.Header().Get(RequestIDHeader) == "" || rr.Header().Get(TraceIDHeader) == "" {
		t.Error("expected request and trace ids on the response")
	}
}
