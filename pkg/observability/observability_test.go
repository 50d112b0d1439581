package observability

import (
	"context"
	"errors"
	"testing"

	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func TestTrackOperation_RecordsREDMetrics(t *testing.T) {
	p, err := New(Config{ServiceName: "test", Environment: "test"})
	if err != nil {
		t.Fatalf("new provider: %v", err)
	}
	defer func() { _ = p.Shutdown(context.Background()) }()

	ctx := context.Background()
	_, done := p.TrackOperation(ctx, "decide")
	done(nil)
	_, done = p.TrackOperation(ctx, "decide")
	done(errors.New("boom"))

	var rm metricdata.ResourceMetrics
	if err := p.Collect(ctx, &rm); err != nil {
		t.Fatalf("collect: %v", err)
	}

	found := map[string]bool{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			found[m.Name] = true
			if m.Name == "checkops.requests" {
				sum, ok := m.Data.(metricdata.Sum[int64])
				if !ok {
					t.Fatalf("requests metric has unexpected type %T", m.Data)
				}
				var total int64
				for _, dp := range sum.DataPoints {
					total += dp.Value
				}
				if total != 2 {
					t.Fatalf("expected 2 requests recorded, got %d", total)
				}
			}
		}
	}
	for _, name := range []string{"checkops.requests", "checkops.errors", "checkops.duration_seconds"} {
		if !found[name] {
			t.Fatalf("metric %s not collected; have %v", name, found)
		}
	}
}
