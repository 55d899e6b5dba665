package observability

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetrics_Counters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.RecordForcedLogout("token_changed")
	m.RecordForcedLogout("token_changed")
	m.RecordValidation(false)
	m.RecordLogin("success")
	m.RecordMonitorCheck("unchanged")
	m.RecordRequest("/session", "GET", 200, time.Millisecond)

	if got := testutil.ToFloat64(m.forcedLogouts.WithLabelValues("token_changed")); got != 2 {
		t.Fatalf("forced logouts = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.validations.WithLabelValues("invalid")); got != 1 {
		t.Fatalf("invalid validations = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.logins.WithLabelValues("success")); got != 1 {
		t.Fatalf("logins = %v, want 1", got)
	}
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	m.RecordForcedLogout("x")
	m.RecordValidation(true)
	m.RecordLogin("x")
	m.RecordMonitorCheck("x")
	m.RecordRequest("/", "GET", 200, time.Second)
}
