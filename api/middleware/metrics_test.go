package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/angelmondragon/tastecert-backend/pkg/metrics"
)

func TestMetricsUsesRoutePattern(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.NewHTTPMetrics(reg)

	r := chi.NewRouter()
	r.Use(Metrics(m))
	r.Get("/api/public/certificates/{ref}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	for _, ref := range []string{"TC-2026-000001", "TC-2026-000002"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/public/certificates/"+ref, nil))
	}

	expected := `
# HELP tastecert_http_requests_total HTTP requests by method, route and status.
# TYPE tastecert_http_requests_total counter
tastecert_http_requests_total{method="GET",route="/api/public/certificates/{ref}",status="404"} 2
`
	if err := testutil.GatherAndCompare(reg, strings.NewReader(expected), "tastecert_http_requests_total"); err != nil {
		t.Fatalf("unexpected metrics: %v", err)
	}
}
