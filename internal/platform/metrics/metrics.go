// Package metrics holds the Prometheus collectors for the registry. A nil *Metrics is valid and records nothing.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "union_registry"

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	CodesIssued         prometheus.Counter
	SMSDeliveryFailed   prometheus.Counter
	Verifications       *prometheus.CounterVec
	RateLimited         prometheus.Counter
	UnionsRegistered    prometheus.Counter
	Decisions           *prometheus.CounterVec
	FilingsSubmitted    *prometheus.CounterVec
	AuditDeterminations *prometheus.CounterVec
	HTTPRequests        *prometheus.CounterVec
	HTTPDuration        *prometheus.HistogramVec
}

// New creates the metrics and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		CodesIssued: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "verification_codes_issued_total",
			Help: "Verification codes generated and stored.",
		}),
		SMSDeliveryFailed: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "sms_delivery_failures_total",
			Help: "Verification codes the SMS provider failed to accept.",
		}),
		Verifications: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "verifications_total",
			Help: "Code verification attempts by result.",
		}, []string{"result"}),
		RateLimited: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "verification_rate_limited_total",
			Help: "Code requests rejected by the per-phone rate limit.",
		}),
		UnionsRegistered: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "unions_registered_total",
			Help: "Unions registered.",
		}),
		Decisions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "approval_decisions_total",
			Help: "Administrative decisions by action.",
		}, []string{"action"}),
		FilingsSubmitted: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "filings_submitted_total",
			Help: "Financial request submissions by result.",
		}, []string{"result"}),
		AuditDeterminations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "audit_determinations_total",
			Help: "Audit-requirement determinations by outcome.",
		}, []string{"status"}),
		HTTPRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "http_requests_total",
			Help: "HTTP requests by method, route pattern, and status code.",
		}, []string{"method", "route", "status"}),
		HTTPDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Name: "http_request_duration_seconds",
			Help:    "HTTP request latency by route pattern.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
}

func (m *Metrics) IncCodesIssued() {
	if m != nil {
		m.CodesIssued.Inc()
	}
}

func (m *Metrics) IncSMSDeliveryFailed() {
	if m != nil {
		m.SMSDeliveryFailed.Inc()
	}
}

// ObserveVerification records a verification attempt; result is "ok" or "invalid".
func (m *Metrics) ObserveVerification(result string) {
	if m != nil {
		m.Verifications.WithLabelValues(result).Inc()
	}
}

func (m *Metrics) IncRateLimited() {
	if m != nil {
		m.RateLimited.Inc()
	}
}

func (m *Metrics) IncUnionsRegistered() {
	if m != nil {
		m.UnionsRegistered.Inc()
	}
}

func (m *Metrics) ObserveDecision(action string) {
	if m != nil {
		m.Decisions.WithLabelValues(action).Inc()
	}
}

// ObserveFiling records a submission outcome ("ok", "rejected", "error").
func (m *Metrics) ObserveFiling(result string) {
	if m != nil {
		m.FilingsSubmitted.WithLabelValues(result).Inc()
	}
}

func (m *Metrics) ObserveAuditDetermination(status string) {
	if m != nil {
		m.AuditDeterminations.WithLabelValues(status).Inc()
	}
}

// ObserveHTTP records one request against its chi route pattern.
func (m *Metrics) ObserveHTTP(method, route string, status int, d time.Duration) {
	if m == nil {
		return
	}
	if route == "" {
		route = "unmatched"
	}
	m.HTTPRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.HTTPDuration.WithLabelValues(method, route).Observe(d.Seconds())
}
