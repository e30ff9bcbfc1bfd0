package goOTP

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestMetricsDisabledNoIncrement(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: false})
	m.Inc(MetricOTPVerified)

	if got := m.Value(MetricOTPVerified); got != 0 {
		t.Fatalf("expected 0, got %d", got)
	}
}

func TestMetricsEnabledIncrement(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: true})
	m.Inc(MetricOTPVerified)
	m.Inc(MetricOTPVerified)
	m.Inc(MetricOTPVerified)

	if got := m.Value(MetricOTPVerified); got != 3 {
		t.Fatalf("expected 3, got %d", got)
	}
}

func TestMetricsConcurrentIncrementSafe(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: true})

	const goroutines = 32
	const perG = 4000

	var wg sync.WaitGroup
	wg.Add(goroutines)
	for i := 0; i < goroutines; i++ {
		go func() {
			defer wg.Done()
			for j := 0; j < perG; j++ {
				m.Inc(MetricOTPIssued)
			}
		}()
	}
	wg.Wait()

	want := uint64(goroutines * perG)
	if got := m.Value(MetricOTPIssued); got != want {
		t.Fatalf("expected %d, got %d", want, got)
	}
}

func TestMetricsHistogramBucketCorrectness(t *testing.T) {
	m := NewMetrics(MetricsConfig{
		Enabled:                 true,
		EnableLatencyHistograms: true,
	})

	observations := []time.Duration{
		5 * time.Millisecond,
		10 * time.Millisecond,
		25 * time.Millisecond,
		50 * time.Millisecond,
		100 * time.Millisecond,
		250 * time.Millisecond,
		500 * time.Millisecond,
		700 * time.Millisecond,
	}

	for _, d := range observations {
		m.Observe(MetricValidateLatency, d)
	}

	snap := m.Snapshot()
	buckets := snap.Histograms[MetricValidateLatency]
	if len(buckets) != 8 {
		t.Fatalf("expected 8 buckets, got %d", len(buckets))
	}

	for i, v := range buckets {
		if v != 1 {
			t.Fatalf("bucket %d expected 1, got %d", i, v)
		}
	}
}

func TestMetricsSnapshotConsistency(t *testing.T) {
	m := NewMetrics(MetricsConfig{
		Enabled:                 true,
		EnableLatencyHistograms: true,
	})
	m.Inc(MetricOTPVerified)
	m.Inc(MetricOTPInvalid)
	m.Inc(MetricOTPInvalid)
	m.Observe(MetricValidateLatency, 2*time.Millisecond)

	snap := m.Snapshot()

	if snap.Counters[MetricOTPVerified] != 1 {
		t.Fatalf("expected MetricOTPVerified=1 got %d", snap.Counters[MetricOTPVerified])
	}
	if snap.Counters[MetricOTPInvalid] != 2 {
		t.Fatalf("expected MetricOTPInvalid=2 got %d", snap.Counters[MetricOTPInvalid])
	}
	if len(snap.Histograms[MetricValidateLatency]) != 8 {
		t.Fatalf("expected histogram length 8")
	}
	if snap.Histograms[MetricValidateLatency][0] != 1 {
		t.Fatalf("expected first histogram bucket=1 got %d", snap.Histograms[MetricValidateLatency][0])
	}
}

func TestMetricsAddAndLatencyOnlyForValidate(t *testing.T) {
	m := NewMetrics(MetricsConfig{
		Enabled:                 true,
		EnableLatencyHistograms: true,
	})
	m.Add(MetricSweepDeleted, 7)
	m.Add(MetricSweepDeleted, 0)
	m.Observe(MetricOTPIssued, time.Millisecond)

	if got := m.Value(MetricSweepDeleted); got != 7 {
		t.Fatalf("expected 7, got %d", got)
	}
	if _, ok := m.Snapshot().Histograms[MetricOTPIssued]; ok {
		t.Fatal("expected no histogram for non-latency metric")
	}
}

func TestMetricsHistogramTracksSum(t *testing.T) {
	m := NewMetrics(MetricsConfig{
		Enabled:                 true,
		EnableLatencyHistograms: true,
	})
	m.Observe(MetricValidateLatency, 2*time.Millisecond)
	m.Observe(MetricValidateLatency, 30*time.Millisecond)
	m.Observe(MetricValidateLatency, -time.Second)

	if got := m.Snapshot().HistogramSums[MetricValidateLatency]; got != 32*time.Millisecond {
		t.Fatalf("expected sum 32ms, got %v", got)
	}

	off := NewMetrics(MetricsConfig{Enabled: true})
	off.Observe(MetricValidateLatency, time.Millisecond)
	if _, ok := off.Snapshot().HistogramSums[MetricValidateLatency]; ok {
		t.Fatal("expected no sum when latency histograms are disabled")
	}
}

func TestEngineValidateRecordsLatency(t *testing.T) {
	h := newEngineHarness(t, func(c *Config) {
		c.Metrics.EnableLatencyHistograms = true
	})
	ctx := context.Background()

	rec, err := h.engine.Issue(ctx, "u1", ChannelEmail)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if err := h.engine.Validate(ctx, "u1", rec.Code, ChannelEmail); err != nil {
		t.Fatalf("validate: %v", err)
	}

	snap := h.engine.MetricsSnapshot()
	var total uint64
	for _, v := range snap.Histograms[MetricValidateLatency] {
		total += v
	}
	if total != 1 {
		t.Fatalf("expected one latency observation, got %d", total)
	}
	if snap.Counters[MetricOTPIssued] != 1 || snap.Counters[MetricOTPVerified] != 1 {
		t.Fatalf("unexpected counters %+v", snap.Counters)
	}
}
