package cache

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/tao-tracker/tao-tracker/internal/cache"

// metrics holds the coordinator instruments; every measurement carries the slot name.
type metrics struct {
	hits          metric.Int64Counter
	misses        metric.Int64Counter
	staleServed   metric.Int64Counter
	fetchFailures metric.Int64Counter
	fetchDuration metric.Float64Histogram
}

func newMetrics(provider metric.MeterProvider) (*metrics, error) {
	meter := provider.Meter(meterName)
	m := &metrics{}
	var err error

	m.hits, err = meter.Int64Counter("tracker.cache.hits",
		metric.WithDescription("Requests served from a fresh slot"))
	if err != nil {
		return nil, err
	}

	m.misses, err = meter.Int64Counter("tracker.cache.misses",
		metric.WithDescription("Requests that triggered an upstream fetch"))
	if err != nil {
		return nil, err
	}

	m.staleServed, err = meter.Int64Counter("tracker.cache.stale_served",
		metric.WithDescription("Failed refreshes answered with the previous payload"))
	if err != nil {
		return nil, err
	}

	m.fetchFailures, err = meter.Int64Counter("tracker.cache.fetch_failures",
		metric.WithDescription("Upstream fetches that returned an error"))
	if err != nil {
		return nil, err
	}

	m.fetchDuration, err = meter.Float64Histogram("tracker.upstream.fetch_duration_seconds",
		metric.WithDescription("Upstream fetch latency in seconds"),
		metric.WithUnit("s"))
	if err != nil {
		return nil, err
	}

	return m, nil
}

func slotAttr(name string) metric.MeasurementOption {
	return metric.WithAttributes(attribute.String("slot", slotKind(name)))
}

func (m *metrics) hit(ctx context.Context, name string) {
	m.hits.Add(ctx, 1, slotAttr(name))
}

func (m *metrics) miss(ctx context.Context, name string) {
	m.misses.Add(ctx, 1, slotAttr(name))
}

func (m *metrics) stale(ctx context.Context, name string) {
	m.staleServed.Add(ctx, 1, slotAttr(name))
}

func (m *metrics) fetched(ctx context.Context, name string, took time.Duration, err error) {
	m.fetchDuration.Record(ctx, took.Seconds(), slotAttr(name))
	if err != nil {
		m.fetchFailures.Add(ctx, 1, slotAttr(name))
	}
}

// slotKind 去掉 "wallet:<address>" 之类的键后缀，避免指标基数随地址膨胀。
func slotKind(name string) string {
	for i := 0; i < len(name); i++ {
		if name[i] == ':' {
			return name[:i]
		}
	}
	return name
}
