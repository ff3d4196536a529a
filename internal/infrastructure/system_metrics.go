package infrastructure

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"go.opentelemetry.io/otel/metric"
)

// SystemMetrics records Go runtime gauges: goroutines, heap usage, GC
// pauses and process uptime.
type SystemMetrics struct {
	goroutines metric.Int64Gauge
	heapBytes  metric.Int64Gauge
	allocBytes metric.Int64Gauge
	sysBytes   metric.Int64Gauge
	gcPause    metric.Float64Histogram
	uptime     metric.Float64Gauge
}

// NewSystemMetrics registers the runtime instruments on the meter.
func NewSystemMetrics(meter metric.Meter) (*SystemMetrics, error) {
	var (
		sm  SystemMetrics
		err error
	)

	// gauge stops registering after the first failure
	gauge := func(name, desc, unit string) metric.Int64Gauge {
		if err != nil {
			return nil
		}
		opts := []metric.Int64GaugeOption{metric.WithDescription(desc)}
		if unit != "" {
			opts = append(opts, metric.WithUnit(unit))
		}
		var g metric.Int64Gauge
		g, err = meter.Int64Gauge(name, opts...)
		return g
	}

	sm.goroutines = gauge("system_goroutines", "Number of active goroutines", "")
	sm.heapBytes = gauge("system_memory_usage_bytes", "Memory usage in bytes", "By")
	sm.allocBytes = gauge("system_memory_allocated_bytes", "Memory allocated by Go runtime in bytes", "By")
	sm.sysBytes = gauge("system_memory_system_bytes", "Memory obtained from the OS in bytes", "By")

	if err == nil {
		sm.gcPause, err = meter.Float64Histogram("system_gc_pause_seconds",
			metric.WithDescription("Garbage collection pause duration"), metric.WithUnit("s"))
	}
	if err == nil {
		sm.uptime, err = meter.Float64Gauge("system_process_uptime_seconds",
			metric.WithDescription("Process uptime in seconds"), metric.WithUnit("s"))
	}
	if err != nil {
		return nil, err
	}
	return &sm, nil
}

// SystemStats is one sample of the runtime state.
type SystemStats struct {
	GoRoutines      int64
	MemoryUsage     int64
	MemoryAllocated int64
	MemorySystem    int64
	GCCount         uint32
	LastGCPause     time.Duration
	ProcessUptime   time.Duration
	Timestamp       time.Time
}

// Collect samples the runtime, records every gauge and returns the sample.
func (sm *SystemMetrics) Collect(ctx context.Context, startTime time.Time) *SystemStats {
	stats := sampleRuntime(startTime)
	sm.record(ctx, stats)
	return stats
}

func sampleRuntime(startTime time.Time) *SystemStats {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	return &SystemStats{
		GoRoutines:      int64(runtime.NumGoroutine()),
		MemoryUsage:     int64(mem.Alloc),
		MemoryAllocated: int64(mem.TotalAlloc),
		MemorySystem:    int64(mem.Sys),
		GCCount:         mem.NumGC,
		LastGCPause:     time.Duration(mem.PauseNs[(mem.NumGC+255)%256]),
		ProcessUptime:   time.Since(startTime),
		Timestamp:       time.Now(),
	}
}

func (sm *SystemMetrics) record(ctx context.Context, stats *SystemStats) {
	sm.goroutines.Record(ctx, stats.GoRoutines)
	sm.heapBytes.Record(ctx, stats.MemoryUsage)
	sm.allocBytes.Record(ctx, stats.MemoryAllocated)
	sm.sysBytes.Record(ctx, stats.MemorySystem)
	sm.uptime.Record(ctx, stats.ProcessUptime.Seconds())

	// PauseNs is a ring buffer; a zero entry means no GC has run yet.
	if stats.LastGCPause > 0 {
		sm.gcPause.Record(ctx, stats.LastGCPause.Seconds())
	}
}

// SystemMetricsCollector samples the runtime gauges on a fixed interval
// for the lifetime of the process.
type SystemMetricsCollector struct {
	metrics  *SystemMetrics
	started  time.Time
	interval time.Duration
	done     chan struct{}
}

// NewSystemMetricsCollector builds a collector; Start begins sampling.
func NewSystemMetricsCollector(meter metric.Meter, interval time.Duration) (*SystemMetricsCollector, error) {
	metrics, err := NewSystemMetrics(meter)
	if err != nil {
		return nil, fmt.Errorf("create system metrics: %w", err)
	}

	return &SystemMetricsCollector{
		metrics:  metrics,
		started:  time.Now(),
		interval: interval,
		done:     make(chan struct{}),
	}, nil
}

// Start samples immediately and then on every tick until Stop or the
// context ends. Run it on its own goroutine.
func (c *SystemMetricsCollector) Start(ctx context.Context) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		c.metrics.Collect(ctx, c.started)
		select {
		case <-ticker.C:
		case <-c.done:
			return
		case <-ctx.Done():
			return
		}
	}
}

// Stop ends periodic collection.
func (c *SystemMetricsCollector) Stop() {
	close(c.done)
}

// GetCurrentStats takes a fresh sample outside the periodic schedule.
func (c *SystemMetricsCollector) GetCurrentStats(ctx context.Context) *SystemStats {
	return c.metrics.Collect(ctx, c.started)
}
