package otel

import (
	"context"
	"sync"
	"testing"

	goSession "github.com/MrEthical07/goSession"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

type fakeSource struct {
	mu       sync.RWMutex
	snapshot goSession.MetricsSnapshot
	dropped  uint64
}

func (f *fakeSource) MetricsSnapshot() goSession.MetricsSnapshot {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := goSession.MetricsSnapshot{
		Counters:   make(map[goSession.MetricID]uint64, len(f.snapshot.Counters)),
		Histograms: make(map[goSession.MetricID][]uint64, len(f.snapshot.Histograms)),
	}
	for k, v := range f.snapshot.Counters {
		out.Counters[k] = v
	}
	for k, buckets := range f.snapshot.Histograms {
		next := make([]uint64, len(buckets))
		copy(next, buckets)
		out.Histograms[k] = next
	}
	return out
}

func (f *fakeSource) EventsDropped() uint64 {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.dropped
}

func newTestMeter() (*sdkmetric.ManualReader, *sdkmetric.MeterProvider) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	return reader, provider
}

func findSum(rm metricdata.ResourceMetrics, name string) (int64, bool) {
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			switch data := m.Data.(type) {
			case metricdata.Sum[int64]:
				if len(data.DataPoints) > 0 {
					return data.DataPoints[0].Value, true
				}
			case metricdata.Gauge[int64]:
				if len(data.DataPoints) > 0 {
					return data.DataPoints[0].Value, true
				}
			}
		}
	}
	return 0, false
}

func findBucket(rm metricdata.ResourceMetrics, name, le string) (int64, bool) {
	want := attribute.String("le", le)
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			gauge, ok := m.Data.(metricdata.Gauge[int64])
			if !ok {
				return 0, false
			}
			for _, dp := range gauge.DataPoints {
				if v, ok := dp.Attributes.Value(want.Key); ok && v == want.Value {
					return dp.Value, true
				}
			}
		}
	}
	return 0, false
}

func TestExporterRegistersAndCollects(t *testing.T) {
	reader, provider := newTestMeter()
	meter := provider.Meter("gosession-test")

	src := &fakeSource{
		snapshot: goSession.MetricsSnapshot{
			Counters: map[goSession.MetricID]uint64{
				goSession.MetricRefreshStarted: 3,
			},
			Histograms: map[goSession.MetricID][]uint64{
				goSession.MetricRequestLatency: {1, 1, 1, 1, 1, 1, 1, 1},
			},
		},
		dropped: 1,
	}

	exp, err := NewOTelExporterFromSource(meter, src)
	if err != nil {
		t.Fatalf("NewOTelExporterFromSource failed: %v", err)
	}
	defer func() {
		if err := exp.Close(); err != nil {
			t.Fatalf("Close failed: %v", err)
		}
	}()

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect failed: %v", err)
	}
	if v, ok := findSum(rm, "gosession_refresh_started_total"); !ok || v != 3 {
		t.Fatalf("expected refresh_started=3, got %d (found=%v)", v, ok)
	}
	if v, ok := findSum(rm, "gosession_request_latency_seconds_count"); !ok || v != 8 {
		t.Fatalf("expected latency count=8, got %d (found=%v)", v, ok)
	}
	if v, ok := findSum(rm, "gosession_events_dropped_total"); !ok || v != 1 {
		t.Fatalf("expected events dropped=1, got %d (found=%v)", v, ok)
	}
	if v, ok := findBucket(rm, "gosession_request_latency_seconds_bucket", "0.025"); !ok || v != 3 {
		t.Fatalf("expected le=0.025 bucket=3, got %d (found=%v)", v, ok)
	}
	if v, ok := findBucket(rm, "gosession_request_latency_seconds_bucket", "+Inf"); !ok || v != 8 {
		t.Fatalf("expected le=+Inf bucket=8, got %d (found=%v)", v, ok)
	}
	if _, ok := findSum(rm, "gosession_refresh_in_flight"); ok {
		t.Fatal("expected no coordinator gauges for a plain snapshot source")
	}
}

func TestExporterReportsClientCoordinator(t *testing.T) {
	reader, provider := newTestMeter()
	meter := provider.Meter("gosession-test")

	client, err := goSession.New().
		WithBaseURL("http://127.0.0.1:1").
		WithMetricsEnabled(true).
		Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	defer client.Close()

	exp, err := NewOTelExporter(meter, client)
	if err != nil {
		t.Fatalf("NewOTelExporter failed: %v", err)
	}
	defer exp.Close()

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect failed: %v", err)
	}
	if v, ok := findSum(rm, "gosession_refresh_in_flight"); !ok || v != 0 {
		t.Fatalf("expected idle in-flight gauge, got %d (found=%v)", v, ok)
	}
	if v, ok := findSum(rm, "gosession_refresh_waiting"); !ok || v != 0 {
		t.Fatalf("expected empty waiting gauge, got %d (found=%v)", v, ok)
	}
}

func TestExporterRejectsNilInputs(t *testing.T) {
	_, provider := newTestMeter()
	meter := provider.Meter("gosession-test")

	if _, err := NewOTelExporterFromSource(meter, nil); err == nil {
		t.Fatal("expected error for nil source")
	}
	if _, err := NewOTelExporter(meter, nil); err == nil {
		t.Fatal("expected error for nil client")
	}
	if _, err := NewOTelExporterFromSource(nil, &fakeSource{}); err == nil {
		t.Fatal("expected error for nil meter")
	}
}

func TestExporterConcurrentCollectNoPanic(t *testing.T) {
	reader, provider := newTestMeter()
	meter := provider.Meter("gosession-test")

	src := &fakeSource{
		snapshot: goSession.MetricsSnapshot{
			Counters: map[goSession.MetricID]uint64{
				goSession.MetricRequestSuccess: 1,
			},
			Histograms: map[goSession.MetricID][]uint64{
				goSession.MetricRefreshLatency: {1, 0, 0, 0, 0, 0, 0, 0},
			},
		},
	}

	exp, err := NewOTelExporterFromSource(meter, src)
	if err != nil {
		t.Fatalf("NewOTelExporterFromSource failed: %v", err)
	}
	defer func() {
		if err := exp.Close(); err != nil {
			t.Fatalf("Close failed: %v", err)
		}
	}()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(v uint64) {
			defer wg.Done()
			src.mu.Lock()
			src.snapshot.Counters[goSession.MetricRequestSuccess] = v
			src.mu.Unlock()

			var rm metricdata.ResourceMetrics
			_ = reader.Collect(context.Background(), &rm)
		}(uint64(i + 1))
	}
	wg.Wait()
}
