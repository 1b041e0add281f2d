package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetrics_Record(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.IncCodesIssued()
	m.IncCodesIssued()
	m.IncSMSDeliveryFailed()
	m.ObserveVerification("ok")
	m.ObserveDecision("approve")
	m.ObserveDecision("reject")
	m.ObserveDecision("reject")
	m.ObserveFiling("ok")
	m.ObserveAuditDetermination("required")
	m.ObserveHTTP("POST", "/api/send-sms", 200, 10*time.Millisecond)
	m.ObserveHTTP("GET", "", 404, time.Millisecond)

	if got := testutil.ToFloat64(m.CodesIssued); got != 2 {
		t.Errorf("CodesIssued = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.SMSDeliveryFailed); got != 1 {
		t.Errorf("SMSDeliveryFailed = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.Decisions.WithLabelValues("reject")); got != 2 {
		t.Errorf("Decisions{reject} = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.HTTPRequests.WithLabelValues("GET", "unmatched", "404")); got != 1 {
		t.Errorf("HTTPRequests{unmatched} = %v, want 1", got)
	}
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	m.IncCodesIssued()
	m.IncSMSDeliveryFailed()
	m.ObserveVerification("invalid")
	m.IncRateLimited()
	m.IncUnionsRegistered()
	m.ObserveDecision("approve")
	m.ObserveFiling("error")
	m.ObserveAuditDetermination("not_required")
	m.ObserveHTTP("GET", "/healthz", 200, time.Millisecond)
}

func TestNew_RegistersOnce(t *testing.T) {
	reg := prometheus.NewRegistry()
	New(reg)
	defer func() {
		if recover() == nil {
			t.Error("registering twice on one registry should panic")
		}
	}()
	New(reg)
}
