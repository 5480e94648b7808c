package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestDomainMetricsCountScansByOutcome(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewDomainMetrics(reg)
	m.IncScan(ScanTracked)
	m.IncScan(ScanTracked)
	m.IncScan(ScanInactive)
	m.IncCertificateIssued("gold")
	m.IncCertificateIssued("")

	if got := testutil.ToFloat64(m.scans.WithLabelValues(ScanTracked)); got != 2 {
		t.Fatalf("expected tracked=2, got %f", got)
	}
	if got := testutil.ToFloat64(m.scans.WithLabelValues(ScanInactive)); got != 1 {
		t.Fatalf("expected inactive=1, got %f", got)
	}
	if got := testutil.ToFloat64(m.certificates.WithLabelValues("gold")); got != 1 {
		t.Fatalf("expected gold=1, got %f", got)
	}
	if got := testutil.ToFloat64(m.certificates.WithLabelValues("unknown")); got != 1 {
		t.Fatalf("expected blank tier under unknown, got %f", got)
	}
	if n := testutil.CollectAndCount(m.scans); n != 2 {
		t.Fatalf("expected 2 scan series, got %d", n)
	}
}

func TestNilMetricsAreSafe(t *testing.T) {
	var d *DomainMetrics
	d.IncScan(ScanMissing)
	var h *HTTPMetrics
	h.Observe(http.MethodGet, "/", http.StatusOK, time.Millisecond)
	NewDomainMetrics(nil).IncEmail("x", "ok")
}

func TestHandlerServesRegisteredMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewHTTPMetrics(reg)
	m.Observe(http.MethodGet, "/api/public/ping", http.StatusOK, 10*time.Millisecond)

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "tastecert_http_requests_total") {
		t.Fatalf("expected http counter in output: %s", rec.Body.String())
	}
}

func TestOutboxMetricsCountByOutcome(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewOutboxMetrics(reg)
	m.Inc("certificate_issued", OutboxPublished)
	m.Inc("certificate_issued", OutboxDeadLettered)
	m.Inc("certificate_issued", OutboxPublished)

	expected := `
# HELP tastecert_outbox_events_total Outbox rows processed by event type and outcome.
# TYPE tastecert_outbox_events_total counter
tastecert_outbox_events_total{event_type="certificate_issued",outcome="dead_lettered"} 1
tastecert_outbox_events_total{event_type="certificate_issued",outcome="published"} 2
`
	if err := testutil.GatherAndCompare(reg, strings.NewReader(expected), "tastecert_outbox_events_total"); err != nil {
		t.Fatalf("unexpected metrics: %v", err)
	}

	var nilMetrics *OutboxMetrics
	nilMetrics.Inc("x", OutboxRetried)
}
