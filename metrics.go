package goOTP

import (
	"sync/atomic"
	"time"
)

// MetricID identifies one engine counter.
type MetricID uint16

const (
	// MetricOTPIssued counts codes persisted and delivered.
	MetricOTPIssued MetricID = iota
	// MetricOTPIssueThrottled counts issuance rejected by the generation throttle.
	MetricOTPIssueThrottled
	// MetricOTPSuperseded counts issuances that invalidated an earlier active code.
	MetricOTPSuperseded
	// MetricOTPDeliveryFailed counts codes persisted but not delivered.
	MetricOTPDeliveryFailed
	// MetricOTPVerified counts successfully consumed codes.
	MetricOTPVerified
	// MetricOTPExpired counts submissions matching an expired or superseded code.
	MetricOTPExpired
	// MetricOTPInvalid counts submissions matching no unconsumed code.
	MetricOTPInvalid
	// MetricOTPRateLimited counts submissions rejected or cut off by the failure budget.
	MetricOTPRateLimited
	// MetricOTPResend counts codes reissued for a pending session.
	MetricOTPResend
	// MetricSecondFactorRollback counts logouts after a failed second-factor start.
	MetricSecondFactorRollback
	// MetricSweepRun counts completed expired-record sweeps.
	MetricSweepRun
	// MetricSweepFailed counts failed expired-record sweeps, scoped or global.
	MetricSweepFailed
	// MetricSweepDeleted counts records removed by sweeps.
	MetricSweepDeleted
	// MetricValidateLatency is the histogram of Validate latency.
	MetricValidateLatency
	metricIDCount
)

const (
	histBucketCount = 8
	cacheLineSize   = 64
)

type metricHistogram struct {
	buckets  [histBucketCount]uint64
	sumNanos uint64
}

type paddedCounter struct {
	value uint64
	_     [cacheLineSize - 8]byte
}

// Metrics holds lock-free counters and the Validate latency histogram.
type Metrics struct {
	enabled       bool
	enableLatency bool
	counters      [metricIDCount]paddedCounter
	histograms    [metricIDCount]metricHistogram
}

// MetricsSnapshot is a point-in-time copy of every counter.
type MetricsSnapshot struct {
	Counters   map[MetricID]uint64
	Histograms map[MetricID][]uint64
	// HistogramSums holds the total observed duration per histogram.
	HistogramSums map[MetricID]time.Duration
}

// NewMetrics creates a [Metrics] set. A disabled set records nothing.
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

// LatencyEnabled reports whether the Validate histogram is recorded.
func (m *Metrics) LatencyEnabled() bool {
	return m != nil && m.enableLatency
}

// Inc increments a counter by one.
func (m *Metrics) Inc(id MetricID) {
	if m == nil || !m.enabled || id >= metricIDCount {
		return
	}
	atomic.AddUint64(&m.counters[id].value, 1)
}

// Add increases a counter by n.
func (m *Metrics) Add(id MetricID, n uint64) {
	if m == nil || !m.enabled || id >= metricIDCount || n == 0 {
		return
	}
	atomic.AddUint64(&m.counters[id].value, n)
}

// Observe records d in the Validate latency histogram. Other IDs are ignored.
func (m *Metrics) Observe(id MetricID, d time.Duration) {
	if m == nil || !m.enabled || !m.enableLatency || id >= metricIDCount {
		return
	}
	if id != MetricValidateLatency {
		return
	}

	b := bucketIndex(d)
	atomic.AddUint64(&m.histograms[id].buckets[b], 1)
	if d > 0 {
		atomic.AddUint64(&m.histograms[id].sumNanos, uint64(d))
	}
}

// Value returns the current value of a counter.
func (m *Metrics) Value(id MetricID) uint64 {
	if m == nil || id >= metricIDCount {
		return 0
	}
	return atomic.LoadUint64(&m.counters[id].value)
}

// Snapshot copies every counter. A disabled set yields empty maps.
func (m *Metrics) Snapshot() MetricsSnapshot {
	if m == nil || !m.enabled {
		return MetricsSnapshot{
			Counters:      map[MetricID]uint64{},
			Histograms:    map[MetricID][]uint64{},
			HistogramSums: map[MetricID]time.Duration{},
		}
	}

	s := MetricsSnapshot{
		Counters:      make(map[MetricID]uint64, int(metricIDCount)),
		Histograms:    make(map[MetricID][]uint64, 1),
		HistogramSums: make(map[MetricID]time.Duration, 1),
	}

	for id := MetricID(0); id < metricIDCount; id++ {
		s.Counters[id] = atomic.LoadUint64(&m.counters[id].value)
	}

	if m.enableLatency {
		buckets := make([]uint64, histBucketCount)
		for i := 0; i < histBucketCount; i++ {
			buckets[i] = atomic.LoadUint64(&m.histograms[MetricValidateLatency].buckets[i])
		}
		s.Histograms[MetricValidateLatency] = buckets
		s.HistogramSums[MetricValidateLatency] = time.Duration(atomic.LoadUint64(&m.histograms[MetricValidateLatency].sumNanos))
	}

	return s
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
