package metrics

import "github.com/prometheus/client_golang/prometheus"

// Scan outcomes recorded by the scan tracker.
const (
	ScanTracked  = "tracked"
	ScanInactive = "inactive"
	ScanMissing  = "missing"
)

// DomainMetrics counts certification events.
type DomainMetrics struct {
	scans        *prometheus.CounterVec
	certificates *prometheus.CounterVec
	qrIssued     *prometheus.CounterVec
	emails       *prometheus.CounterVec
}

func NewDomainMetrics(reg prometheus.Registerer) *DomainMetrics {
	if reg == nil {
		return &DomainMetrics{}
	}
	scans := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "qr_scans_total",
		Help:      "QR scan hits by outcome.",
	}, []string{"outcome"})
	certificates := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "certificates_issued_total",
		Help:      "Certificates issued by award tier.",
	}, []string{"tier"})
	qrIssued := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "qr_codes_rendered_total",
		Help:      "QR images rendered by operation.",
	}, []string{"operation"})
	emails := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "emails_sent_total",
		Help:      "Notification e-mails by template and outcome.",
	}, []string{"template", "outcome"})
	reg.MustRegister(scans, certificates, qrIssued, emails)
	return &DomainMetrics{scans: scans, certificates: certificates, qrIssued: qrIssued, emails: emails}
}

func (m *DomainMetrics) IncScan(outcome string) {
	if m == nil || m.scans == nil {
		return
	}
	m.scans.WithLabelValues(normalizeLabel(outcome)).Inc()
}

func (m *DomainMetrics) IncCertificateIssued(tier string) {
	if m == nil || m.certificates == nil {
		return
	}
	m.certificates.WithLabelValues(normalizeLabel(tier)).Inc()
}

func (m *DomainMetrics) IncQRRendered(operation string) {
	if m == nil || m.qrIssued == nil {
		return
	}
	m.qrIssued.WithLabelValues(normalizeLabel(operation)).Inc()
}

func (m *DomainMetrics) IncEmail(template, outcome string) {
	if m == nil || m.emails == nil {
		return
	}
	m.emails.WithLabelValues(normalizeLabel(template), normalizeLabel(outcome)).Inc()
}
