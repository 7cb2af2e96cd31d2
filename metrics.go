package goIdentity

import (
	"sync/atomic"
	"time"
)

// MetricID names one engine counter.
type MetricID uint16

const (
	// MetricSessionCreated counts sessions created by CreateOrRefresh.
	MetricSessionCreated MetricID = iota
	MetricSessionRefreshed
	MetricSessionSaveFailure
	MetricSessionResolved
	// MetricSessionRejected counts presented key/token pairs that did not resolve.
	MetricSessionRejected
	MetricLoginSuccess
	MetricLoginFailure
	MetricLoginForbidden
	MetricLoginRateLimited
	MetricLogout
	MetricLoginAsSuccess
	// MetricLoginAsDenied counts impersonation attempts refused for missing roles.
	MetricLoginAsDenied
	MetricLogoutAs
	MetricOAuth2Success
	MetricOAuth2Failure
	MetricPasswordResetRequest
	MetricPasswordResetConfirmSuccess
	MetricPasswordResetConfirmFailure
	MetricPasswordResetRateLimited
	MetricPasswordUpgraded
	// MetricStoreUnavailable counts store calls that failed for reasons other than validation.
	MetricStoreUnavailable
	// MetricResolveLatency buckets session resolution latency.
	MetricResolveLatency
	metricIDCount
)

// ResolveLatencyBounds are the inclusive upper bounds of the resolve latency
// buckets. A final overflow bucket holds everything slower.
var ResolveLatencyBounds = [...]time.Duration{
	5 * time.Millisecond,
	10 * time.Millisecond,
	25 * time.Millisecond,
	50 * time.Millisecond,
	100 * time.Millisecond,
	250 * time.Millisecond,
	500 * time.Millisecond,
}

// LatencyBucketCount is len(ResolveLatencyBounds) plus the overflow bucket.
const LatencyBucketCount = len(ResolveLatencyBounds) + 1

// counter is padded to a 64-byte cache line.
type counter struct {
	atomic.Uint64
	_ [56]byte
}

// Metrics holds lock-free counters and the resolve latency histogram.
// A nil *Metrics is a valid no-op.
type Metrics struct {
	enabled bool
	latency bool
	counts  [metricIDCount]counter
	buckets [LatencyBucketCount]atomic.Uint64
}

// MetricsSnapshot is a point-in-time copy of every counter.
type MetricsSnapshot struct {
	Counters   map[MetricID]uint64
	Histograms map[MetricID][]uint64
}

func emptySnapshot() MetricsSnapshot {
	return MetricsSnapshot{
		Counters:   map[MetricID]uint64{},
		Histograms: map[MetricID][]uint64{},
	}
}

// NewMetrics returns counters configured by cfg.
func NewMetrics(cfg MetricsConfig) *Metrics {
	return &Metrics{
		enabled: cfg.Enabled,
		latency: cfg.Enabled && cfg.EnableLatencyHistograms,
	}
}

func (m *Metrics) Enabled() bool { return m != nil && m.enabled }

func (m *Metrics) LatencyEnabled() bool { return m != nil && m.latency }

// Inc adds one to id.
func (m *Metrics) Inc(id MetricID) {
	if !m.Enabled() || id >= metricIDCount {
		return
	}
	m.counts[id].Add(1)
}

// Observe records d. MetricResolveLatency is the only histogram; other ids
// are ignored.
func (m *Metrics) Observe(id MetricID, d time.Duration) {
	if id != MetricResolveLatency || !m.LatencyEnabled() {
		return
	}
	m.buckets[latencyBucket(d)].Add(1)
}

// Value returns the current count of id.
func (m *Metrics) Value(id MetricID) uint64 {
	if m == nil || id >= metricIDCount {
		return 0
	}
	return m.counts[id].Load()
}

// Snapshot copies all counters. Disabled metrics yield empty maps.
func (m *Metrics) Snapshot() MetricsSnapshot {
	if !m.Enabled() {
		return emptySnapshot()
	}

	s := MetricsSnapshot{
		Counters:   make(map[MetricID]uint64, int(metricIDCount)),
		Histograms: make(map[MetricID][]uint64, 1),
	}
	for id := range m.counts {
		s.Counters[MetricID(id)] = m.counts[id].Load()
	}
	if m.latency {
		buckets := make([]uint64, LatencyBucketCount)
		for i := range m.buckets {
			buckets[i] = m.buckets[i].Load()
		}
		s.Histograms[MetricResolveLatency] = buckets
	}
	return s
}

func latencyBucket(d time.Duration) int {
	for i, bound := range ResolveLatencyBounds {
		if d <= bound {
			return i
		}
	}
	return len(ResolveLatencyBounds)
}
