package otel

import (
	"context"
	"testing"

	captivault "github.com/captivault/captivault"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

type fakeSource struct {
	snapshot captivault.MetricsSnapshot
	dropped  uint64
}

func (f *fakeSource) MetricsSnapshot() captivault.MetricsSnapshot {
	return f.snapshot
}

func (f *fakeSource) AuditDropped() uint64 {
	return f.dropped
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		snapshot: captivault.MetricsSnapshot{
			Counters: map[captivault.MetricID]uint64{
				captivault.MetricLoginSuccess:   7,
				captivault.MetricSessionRotated: 3,
			},
			Histograms: map[captivault.MetricID][]uint64{
				captivault.MetricGuardLatency: {1, 2, 0, 0, 0, 0, 0, 1},
			},
		},
		dropped: 5,
	}
}

func TestOTelExporterObservesCounters(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	meter := provider.Meter("captivault-test")

	exporter, err := NewOTelExporterFromSource(meter, newFakeSource())
	if err != nil {
		t.Fatalf("NewOTelExporterFromSource: %v", err)
	}
	defer func() {
		if err := exporter.Close(); err != nil {
			t.Fatalf("Close: %v", err)
		}
	}()

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}

	values := map[string]int64{}
	for _, scope := range rm.ScopeMetrics {
		for _, m := range scope.Metrics {
			switch data := m.Data.(type) {
			case metricdata.Sum[int64]:
				for _, dp := range data.DataPoints {
					values[m.Name] = dp.Value
				}
			case metricdata.Gauge[int64]:
				for _, dp := range data.DataPoints {
					values[m.Name] = dp.Value
				}
			}
		}
	}

	if got := values["captivault_login_success_total"]; got != 7 {
		t.Fatalf("login success = %d, want 7", got)
	}
	if got := values["captivault_session_rotated_total"]; got != 3 {
		t.Fatalf("session rotated = %d, want 3", got)
	}
	if got := values["captivault_audit_dropped_total"]; got != 5 {
		t.Fatalf("audit dropped = %d, want 5", got)
	}
	// Histogram buckets export cumulatively.
	if got := values["captivault_guard_latency_seconds_bucket_le_0_01"]; got != 3 {
		t.Fatalf("bucket le 0.01 = %d, want 3", got)
	}
	if got := values["captivault_guard_latency_seconds_count"]; got != 4 {
		t.Fatalf("histogram count = %d, want 4", got)
	}
}

func TestOTelExporterRejectsNilInputs(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	meter := provider.Meter("captivault-test")

	if _, err := NewOTelExporterFromSource(nil, newFakeSource()); err != ErrNilMeter {
		t.Fatalf("nil meter error = %v, want ErrNilMeter", err)
	}
	if _, err := NewOTelExporterFromSource(meter, nil); err != ErrNilSource {
		t.Fatalf("nil source error = %v, want ErrNilSource", err)
	}
}
