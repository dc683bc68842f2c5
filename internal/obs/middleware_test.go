package obs_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/noah-isme/grosir-api/internal/common"
	"github.com/noah-isme/grosir-api/internal/obs"
)

func TestHTTPMetricsLabels(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := obs.NewHTTPMetrics("grosir", []float64{1, 10}, registry)

	r := chi.NewRouter()
	r.Use(obs.HTTPObs{Metrics: metrics}.Middleware)
	r.Get("/api/v1/wholesale/products", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/wholesale/products?first=10", nil))
	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected 204 got %d", rr.Code)
	}
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/nope/123", nil))

	total := testutil.ToFloat64(metrics.Requests.WithLabelValues(http.MethodGet, "/api/v1/wholesale/products", "2xx"))
	if total != 1 {
		t.Fatalf("expected counter to be 1, got %v", total)
	}
	unmatched := testutil.ToFloat64(metrics.Requests.WithLabelValues(http.MethodGet, "unmatched", "4xx"))
	if unmatched != 1 {
		t.Fatalf("expected unmatched route label, got %v", unmatched)
	}
	if samples := testutil.CollectAndCount(metrics.Latency); samples == 0 {
		t.Fatalf("expected histogram sample")
	}
	if val := testutil.ToFloat64(metrics.InFlight); val != 0 {
		t.Fatalf("expected no in-flight requests, got %v", val)
	}

	again := obs.NewHTTPMetrics("grosir", nil, registry)
	if again.Requests != metrics.Requests {
		t.Fatal("expected existing collector to be reused")
	}
}

func TestParseBucketsCSV(t *testing.T) {
	got := obs.ParseBucketsCSV(" 50, 5,abc,-1,,5, 10")
	want := []float64{5, 10, 50}
	if len(got) != len(want) {
		t.Fatalf("unexpected buckets %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("unexpected buckets %v", got)
		}
	}
	if obs.ParseBucketsCSV("") != nil {
		t.Fatal("expected nil for empty input")
	}
}

func TestStatusClass(t *testing.T) {
	for code, want := range map[int]string{200: "2xx", 207: "2xx", 413: "4xx", 502: "5xx", 42: "unknown"} {
		if got := obs.StatusClass(code); got != want {
			t.Fatalf("StatusClass(%d) = %q, want %q", code, got, want)
		}
	}
}

func TestRequestLoggerSeesShopResolvedDownstream(t *testing.T) {
	var buf bytes.Buffer
	logger := obs.RequestLogger{Logger: obs.NewLoggerTo(&buf, "json")}

	r := chi.NewRouter()
	r.Use(logger.Middleware)
	r.With(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(common.WithShop(r.Context(), "demo-store.myshopify.com")))
		})
	}).Post("/api/v1/wholesale/save", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	})
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/api/v1/wholesale/save", nil))

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("decode log line: %v (%s)", err, buf.String())
	}
	if entry["shop"] != "demo-store.myshopify.com" {
		t.Fatalf("expected shop from inner middleware, got %v", entry["shop"])
	}
	if entry["route"] != "/api/v1/wholesale/save" {
		t.Fatalf("unexpected route %v", entry["route"])
	}
	if entry["level"] != "warn" {
		t.Fatalf("expected warn level for 429, got %v", entry["level"])
	}
}

func TestRequestLoggerIncludesShop(t *testing.T) {
	var buf bytes.Buffer
	logger := obs.RequestLogger{Logger: obs.NewLoggerTo(&buf, "json")}
	handler := logger.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))

	ctx := common.WithShop(context.Background(), "demo-store.myshopify.com")
	req := httptest.NewRequest(http.MethodPost, "/api/v1/wholesale/save", nil).WithContext(ctx)
	handler.ServeHTTP(httptest.NewRecorder(), req)

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("decode log line: %v (%s)", err, buf.String())
	}
	if entry["shop"] != "demo-store.myshopify.com" {
		t.Fatalf("expected shop field, got %v", entry["shop"])
	}
	if entry["level"] != "error" {
		t.Fatalf("expected error level for 5xx, got %v", entry["level"])
	}
	if entry["status"] != float64(http.StatusBadGateway) {
		t.Fatalf("unexpected status %v", entry["status"])
	}
}
