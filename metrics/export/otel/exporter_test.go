package otel

import (
	"context"
	"maps"
	"slices"
	"sync"
	"testing"

	"github.com/MrEthical07/authstate"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

type fakeSource struct {
	mu       sync.RWMutex
	snapshot authstate.MetricsSnapshot
	dropped  uint64
}

func (f *fakeSource) MetricsSnapshot() authstate.MetricsSnapshot {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := authstate.MetricsSnapshot{
		Counters:   maps.Clone(f.snapshot.Counters),
		Histograms: make(map[authstate.MetricID][]uint64, len(f.snapshot.Histograms)),
	}
	for k, buckets := range f.snapshot.Histograms {
		out.Histograms[k] = slices.Clone(buckets)
	}
	return out
}

func (f *fakeSource) AuditDropped() uint64 {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.dropped
}

func newReader(t *testing.T) (*sdkmetric.ManualReader, *sdkmetric.MeterProvider) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })
	return reader, provider
}

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Metrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	out := map[string]metricdata.Metrics{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			out[m.Name] = m
		}
	}
	return out
}

func TestExporterRegistersAndCollects(t *testing.T) {
	reader, provider := newReader(t)

	src := &fakeSource{
		snapshot: authstate.MetricsSnapshot{
			Counters: map[authstate.MetricID]uint64{
				authstate.MetricLoginSuccess:  3,
				authstate.MetricLoginRejected: 1,
			},
			Histograms: map[authstate.MetricID][]uint64{
				authstate.MetricRefreshLatency: {1, 1, 1, 1, 1, 1, 1, 1},
			},
		},
		dropped: 1,
	}

	exp, err := NewOTelExporterFromSource(provider.Meter("authstate-test"), src)
	require.NoError(t, err)
	defer func() { assert.NoError(t, exp.Close()) }()

	got := collect(t, reader)

	login, ok := got["authstate_login_total"]
	require.True(t, ok)
	sum, ok := login.Data.(metricdata.Sum[int64])
	require.True(t, ok)
	byOutcome := map[string]int64{}
	for _, dp := range sum.DataPoints {
		v, _ := dp.Attributes.Value("outcome")
		byOutcome[v.AsString()] = dp.Value
	}
	assert.Equal(t, map[string]int64{"success": 3, "rejected": 1}, byOutcome)

	count, ok := got["authstate_state_refresh_latency_seconds_count"]
	require.True(t, ok)
	gauge, ok := count.Data.(metricdata.Gauge[int64])
	require.True(t, ok)
	require.Len(t, gauge.DataPoints, 1)
	assert.Equal(t, int64(8), gauge.DataPoints[0].Value)

	assert.Contains(t, got, "authstate_audit_dropped_total")
}

func TestExporterRejectsNilInputs(t *testing.T) {
	_, provider := newReader(t)

	_, err := NewOTelExporterFromSource(provider.Meter("authstate-test"), nil)
	assert.ErrorIs(t, err, ErrNilSource)

	_, err = NewOTelExporterFromSource(nil, &fakeSource{})
	assert.ErrorIs(t, err, ErrNilMeter)

	_, err = NewOTelExporter(provider.Meter("authstate-test"), nil)
	assert.ErrorIs(t, err, ErrNilSource)
}

func TestExporterStopsAfterClose(t *testing.T) {
	reader, provider := newReader(t)
	src := &fakeSource{snapshot: authstate.MetricsSnapshot{
		Counters: map[authstate.MetricID]uint64{authstate.MetricStoreError: 2},
	}}

	exp, err := NewOTelExporterFromSource(provider.Meter("authstate-test"), src)
	require.NoError(t, err)
	require.Contains(t, collect(t, reader), "authstate_store_error_total")

	require.NoError(t, exp.Close())
	assert.NoError(t, (*OTelExporter)(nil).Close())
}

func TestExporterConcurrentCollectNoPanic(t *testing.T) {
	reader, provider := newReader(t)

	src := &fakeSource{
		snapshot: authstate.MetricsSnapshot{
			Counters: map[authstate.MetricID]uint64{
				authstate.MetricRefreshPoll: 1,
			},
			Histograms: map[authstate.MetricID][]uint64{
				authstate.MetricRefreshLatency: {1, 0, 0, 0, 0, 0, 0, 0},
			},
		},
	}

	exp, err := NewOTelExporterFromSource(provider.Meter("authstate-test"), src)
	require.NoError(t, err)
	defer func() { assert.NoError(t, exp.Close()) }()

	var wg sync.WaitGroup
	for i := range 8 {
		wg.Add(1)
		go func(v uint64) {
			defer wg.Done()
			src.mu.Lock()
			src.snapshot.Counters[authstate.MetricRefreshPoll] = v
			src.mu.Unlock()

			var rm metricdata.ResourceMetrics
			_ = reader.Collect(context.Background(), &rm)
		}(uint64(i + 1))
	}
	wg.Wait()
}
