package photovec

import (
	"sync/atomic"
	"time"

	"github.com/lensmark/photovec/ann"
)

// MetricsCollector defines an interface for collecting operational metrics.
// Implement this interface to integrate with monitoring systems.
type MetricsCollector interface {
	// RecordUpsert is called after each corpus upsert.
	RecordUpsert(newCount, updated int, duration time.Duration, err error)

	// RecordSearch is called after each search. backend names the path
	// that actually answered, fallback whether selection degraded.
	RecordSearch(topK int, backend ann.Kind, fallback bool, duration time.Duration, err error)

	// RecordBuild is called after each backend build.
	RecordBuild(kind ann.Kind, built bool, duration time.Duration, err error)
}

// NoopMetricsCollector is a no-op implementation of MetricsCollector.
type NoopMetricsCollector struct{}

func (NoopMetricsCollector) RecordUpsert(int, int, time.Duration, error)            {}
func (NoopMetricsCollector) RecordSearch(int, ann.Kind, bool, time.Duration, error) {}
func (NoopMetricsCollector) RecordBuild(ann.Kind, bool, time.Duration, error)       {}

// BasicMetricsCollector provides simple in-memory metrics collection, useful
// for debugging without an external monitoring stack.
type BasicMetricsCollector struct {
	UpsertCount      atomic.Int64
	UpsertErrors     atomic.Int64
	UpsertNewRows    atomic.Int64
	UpsertUpdated    atomic.Int64
	UpsertTotalNanos atomic.Int64

	SearchCount      atomic.Int64
	SearchErrors     atomic.Int64
	SearchFallbacks  atomic.Int64
	SearchTotalNanos atomic.Int64

	BuildCount      atomic.Int64
	BuildErrors     atomic.Int64
	BuildTotalNanos atomic.Int64
}

// RecordUpsert implements MetricsCollector.
func (b *BasicMetricsCollector) RecordUpsert(newCount, updated int, duration time.Duration, err error) {
	b.UpsertCount.Add(1)
	b.UpsertTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.UpsertErrors.Add(1)
		return
	}
	b.UpsertNewRows.Add(int64(newCount))
	b.UpsertUpdated.Add(int64(updated))
}

// RecordSearch implements MetricsCollector.
func (b *BasicMetricsCollector) RecordSearch(topK int, backend ann.Kind, fallback bool, duration time.Duration, err error) {
	b.SearchCount.Add(1)
	b.SearchTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.SearchErrors.Add(1)
	}
	if fallback {
		b.SearchFallbacks.Add(1)
	}
}

// RecordBuild implements MetricsCollector.
func (b *BasicMetricsCollector) RecordBuild(kind ann.Kind, built bool, duration time.Duration, err error) {
	b.BuildCount.Add(1)
	b.BuildTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.BuildErrors.Add(1)
	}
}

// BasicMetricsStats is a snapshot of a BasicMetricsCollector.
type BasicMetricsStats struct {
	UpsertCount     int64
	UpsertErrors    int64
	UpsertNewRows   int64
	UpsertUpdated   int64
	SearchCount     int64
	SearchErrors    int64
	SearchFallbacks int64
	SearchAvgNanos  int64
	BuildCount      int64
	BuildErrors     int64
}

// GetStats returns a snapshot of current metrics.
func (b *BasicMetricsCollector) GetStats() BasicMetricsStats {
	stats := BasicMetricsStats{
		UpsertCount:     b.UpsertCount.Load(),
		UpsertErrors:    b.UpsertErrors.Load(),
		UpsertNewRows:   b.UpsertNewRows.Load(),
		UpsertUpdated:   b.UpsertUpdated.Load(),
		SearchCount:     b.SearchCount.Load(),
		SearchErrors:    b.SearchErrors.Load(),
		SearchFallbacks: b.SearchFallbacks.Load(),
		BuildCount:      b.BuildCount.Load(),
		BuildErrors:     b.BuildErrors.Load(),
	}
	if stats.SearchCount > 0 {
		stats.SearchAvgNanos = b.SearchTotalNanos.Load() / stats.SearchCount
	}
	return stats
}
