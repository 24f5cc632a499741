package api

import (
	"sync"
	"time"
)

// AlertType identifies the kind of anomaly detected.
type AlertType string

const (
	AlertIssuanceSpike    AlertType = "issuance_spike"
	AlertAuthFailureSpike AlertType = "auth_failure_spike"
)

// AlertEvent describes an anomaly that triggered an alert.
type AlertEvent struct {
	Type      AlertType `json:"type"`
	Message   string    `json:"message"`
	Count     int       `json:"count"`
	Threshold int       `json:"threshold"`
	Timestamp time.Time `json:"timestamp"`
}

// AlertFunc is the callback invoked when an anomaly is detected.
type AlertFunc func(AlertEvent)

// slidingWindow counts events inside a trailing time window.
type slidingWindow struct {
	times     []time.Time
	window    time.Duration
	threshold int
}

// add records an event at now and reports the window size when the
// threshold is reached. The window resets after firing so one spike
// produces one alert.
func (sw *slidingWindow) add(now time.Time) (int, bool) {
	sw.times = append(sw.times, now)
	sw.times = trimWindow(sw.times, now, sw.window)
	if len(sw.times) < sw.threshold {
		return 0, false
	}
	n := len(sw.times)
	sw.times = sw.times[:0]
	return n, true
}

// metricsCollector tracks sliding window counters for anomaly detection.
type metricsCollector struct {
	mu           sync.Mutex
	issuance     slidingWindow
	authFailures slidingWindow
	alertFn      AlertFunc
	now          func() time.Time
}

const (
	defaultIssuanceWindow       = 1 * time.Minute
	defaultIssuanceThreshold    = 100
	defaultAuthFailureWindow    = 1 * time.Minute
	defaultAuthFailureThreshold = 50
)

func newMetricsCollector(alertFn AlertFunc) *metricsCollector {
	return &metricsCollector{
		issuance:     slidingWindow{window: defaultIssuanceWindow, threshold: defaultIssuanceThreshold},
		authFailures: slidingWindow{window: defaultAuthFailureWindow, threshold: defaultAuthFailureThreshold},
		alertFn:      alertFn,
		now:          time.Now,
	}
}

// recordEvent inspects an audit event and updates the relevant counters.
func (m *metricsCollector) recordEvent(event AuditEvent) {
	if m == nil || m.alertFn == nil {
		return
	}
	switch event {
	case AuditCertIssued:
		m.record(&m.issuance, AlertIssuanceSpike, "certificate issuance rate exceeds threshold")
	case AuditAuthFailure:
		m.record(&m.authFailures, AlertAuthFailureSpike, "authentication failure rate exceeds threshold")
	}
}

func (m *metricsCollector) record(sw *slidingWindow, typ AlertType, msg string) {
	m.mu.Lock()
	now := m.now()
	n, fire := sw.add(now)
	threshold := sw.threshold
	m.mu.Unlock()

	if fire {
		m.alertFn(AlertEvent{
			Type:      typ,
			Message:   msg,
			Count:     n,
			Threshold: threshold,
			Timestamp: now,
		})
	}
}

// trimWindow removes entries older than (now - window) from the sorted slice.
func trimWindow(times []time.Time, now time.Time, window time.Duration) []time.Time {
	cutoff := now.Add(-window)
	start := 0
	for start < len(times) && times[start].Before(cutoff) {
		start++
	}
	return times[start:]
}
