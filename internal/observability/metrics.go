package observability

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the session core's prometheus collectors.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	forcedLogouts *prometheus.CounterVec
	validations   *prometheus.CounterVec
	logins        *prometheus.CounterVec
	monitorChecks *prometheus.CounterVec
	requests      *prometheus.HistogramVec
}

// NewMetrics registers collectors on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		forcedLogouts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "inkbook",
			Subsystem: "session",
			Name:      "forced_logouts_total",
			Help:      "Forced logouts by detector reason.",
		}, []string{"reason"}),
		validations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "inkbook",
			Subsystem: "session",
			Name:      "remote_validations_total",
			Help:      "Remote token validations by result.",
		}, []string{"result"}),
		logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "inkbook",
			Subsystem: "session",
			Name:      "logins_total",
			Help:      "Login attempts by outcome.",
		}, []string{"outcome"}),
		monitorChecks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "inkbook",
			Subsystem: "session",
			Name:      "token_monitor_checks_total",
			Help:      "Local token integrity checks by outcome.",
		}, []string{"outcome"}),
		requests: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "inkbook",
			Subsystem: "control",
			Name:      "request_duration_seconds",
			Help:      "Control server request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "path", "status"}),
	}
	if reg != nil {
		reg.MustRegister(m.forcedLogouts, m.validations, m.logins, m.monitorChecks, m.requests)
	}
	return m
}

// RecordForcedLogout counts a detector-triggered logout.
func (m *Metrics) RecordForcedLogout(reason string) {
	if m == nil {
		return
	}
	m.forcedLogouts.WithLabelValues(reason).Inc()
}

// RecordValidation counts a remote validation outcome.
func (m *Metrics) RecordValidation(valid bool) {
	if m == nil {
		return
	}
	result := "invalid"
	if valid {
		result = "valid"
	}
	m.validations.WithLabelValues(result).Inc()
}

// RecordLogin counts a login outcome.
func (m *Metrics) RecordLogin(outcome string) {
	if m == nil {
		return
	}
	m.logins.WithLabelValues(outcome).Inc()
}

// RecordMonitorCheck counts a token monitor poll.
func (m *Metrics) RecordMonitorCheck(outcome string) {
	if m == nil {
		return
	}
	m.monitorChecks.WithLabelValues(outcome).Inc()
}

// RecordRequest observes a control server request.
func (m *Metrics) RecordRequest(path, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(method, path, strconv.Itoa(status)).Observe(duration.Seconds())
}
