package goSession

import (
	"sync/atomic"
	"time"
)

// MetricID names one counter or histogram in Metrics.
type MetricID uint16

const (
	// MetricRequestSuccess counts logical requests that resolved with a 2xx.
	MetricRequestSuccess MetricID = iota
	// MetricRequestFailure counts logical requests that surfaced an error to the caller.
	MetricRequestFailure
	// MetricUnauthorized counts 401 responses observed on any attempt.
	MetricUnauthorized
	// MetricAuthRejected counts 401s on auth-domain endpoints (bad credentials).
	MetricAuthRejected
	// MetricRefreshStarted counts refresh calls issued.
	MetricRefreshStarted
	// MetricRefreshSuccess counts refresh calls that renewed the session.
	MetricRefreshSuccess
	// MetricRefreshFailure counts refresh calls that failed.
	MetricRefreshFailure
	// MetricRefreshQueued counts requests that waited on an in-flight refresh.
	MetricRefreshQueued
	// MetricRefreshAdopted counts 401s resolved by an already completed refresh episode.
	MetricRefreshAdopted
	// MetricReplaySuccess counts retry attempts that succeeded.
	MetricReplaySuccess
	// MetricReplayFailure counts retry attempts that failed.
	MetricReplayFailure
	// MetricSessionExpired counts terminal session losses.
	MetricSessionExpired
	// MetricLogout counts explicit logouts.
	MetricLogout
	// MetricRequestLatency is the per-attempt latency histogram.
	MetricRequestLatency
	// MetricRefreshLatency is the refresh call latency histogram.
	MetricRefreshLatency
	metricIDCount
)

const (
	histBucketCount = 8
	cacheLineSize   = 64
)

type metricHistogram struct {
	buckets [histBucketCount]uint64
}

type paddedCounter struct {
	value uint64
	_     [cacheLineSize - 8]byte
}

// Metrics holds lock-free counters and latency histograms for a Client.
type Metrics struct {
	enabled       bool
	enableLatency bool
	counters      [metricIDCount]paddedCounter
	histograms    [metricIDCount]metricHistogram
}

// MetricsSnapshot is a point-in-time copy of Metrics.
type MetricsSnapshot struct {
	Counters   map[MetricID]uint64
	Histograms map[MetricID][]uint64
}

// NewMetrics returns Metrics configured by cfg. Histograms require
// cfg.Enabled as well.
func NewMetrics(cfg MetricsConfig) *Metrics {
	return &Metrics{
		enabled:       cfg.Enabled,
		enableLatency: cfg.Enabled && cfg.EnableLatencyHistograms,
	}
}

// Enabled reports whether counters are recorded.
func (m *Metrics) Enabled() bool {
	return m != nil && m.enabled
}

// LatencyEnabled reports whether histograms are recorded.
func (m *Metrics) LatencyEnabled() bool {
	return m != nil && m.enableLatency
}

// Inc adds one to the counter for id. Safe for concurrent use.
func (m *Metrics) Inc(id MetricID) {
	if m == nil || !m.enabled || id >= metricIDCount {
		return
	}
	atomic.AddUint64(&m.counters[id].value, 1)
}

// Observe records d into the histogram for id. Only latency metrics carry
// histograms; other ids are ignored.
func (m *Metrics) Observe(id MetricID, d time.Duration) {
	if m == nil || !m.enabled || !m.enableLatency || id >= metricIDCount {
		return
	}
	if !isHistogramMetric(id) {
		return
	}

	b := bucketIndex(d)
	atomic.AddUint64(&m.histograms[id].buckets[b], 1)
}

// Value returns the current count for id.
func (m *Metrics) Value(id MetricID) uint64 {
	if m == nil || id >= metricIDCount {
		return 0
	}
	return atomic.LoadUint64(&m.counters[id].value)
}

// Snapshot copies every counter and, when enabled, every latency histogram.
func (m *Metrics) Snapshot() MetricsSnapshot {
	if m == nil || !m.enabled {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}

	s := MetricsSnapshot{
		Counters:   make(map[MetricID]uint64, int(metricIDCount)),
		Histograms: make(map[MetricID][]uint64, 2),
	}

	for id := MetricID(0); id < metricIDCount; id++ {
		if isHistogramMetric(id) {
			continue
		}
		s.Counters[id] = atomic.LoadUint64(&m.counters[id].value)
	}

	if m.enableLatency {
		for _, id := range []MetricID{MetricRequestLatency, MetricRefreshLatency} {
			buckets := make([]uint64, histBucketCount)
			for i := 0; i < histBucketCount; i++ {
				buckets[i] = atomic.LoadUint64(&m.histograms[id].buckets[i])
			}
			s.Histograms[id] = buckets
		}
	}

	return s
}

func isHistogramMetric(id MetricID) bool {
	return id == MetricRequestLatency || id == MetricRefreshLatency
}

func bucketIndex(d time.Duration) int {
	ms := d.Milliseconds()

	switch {
	case ms <= 5:
		return 0
	case ms <= 10:
		return 1
	case ms <= 25:
		return 2
	case ms <= 50:
		return 3
	case ms <= 100:
		return 4
	case ms <= 250:
		return 5
	case ms <= 500:
		return 6
	default:
		return 7
	}
}
