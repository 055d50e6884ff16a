package metrics

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"
)

// Sampler produces one or more system metric samples per collection pass.
// Samplers are independent: one failing never blocks the others. Types
// declares which metric kinds the sampler covers so the collector can write
// sentinel samples when it fails outright.
type Sampler interface {
	Name() string
	Types() []MetricType
	Sample(ctx context.Context) ([]Metric, error)
}

// HostSampler reads CPU, memory, and disk utilization from the host
type HostSampler struct {
	// DiskPath is the mount point whose usage is reported
	DiskPath string
}

// NewHostSampler creates a host sampler for the root filesystem
func NewHostSampler() *HostSampler {
	return &HostSampler{DiskPath: "/"}
}

// Name returns the sampler name
func (s *HostSampler) Name() string { return "host" }

// Types returns the metric kinds this sampler covers
func (s *HostSampler) Types() []MetricType {
	return []MetricType{MetricCPUUsage, MetricMemoryUsage, MetricDiskUsage}
}

// Sample reads current host utilization percentages
func (s *HostSampler) Sample(ctx context.Context) ([]Metric, error) {
	now := time.Now().UTC()
	samples := make([]Metric, 0, 3)

	cpuPercents, err := cpu.PercentWithContext(ctx, 0, false)
	if err != nil {
		return nil, fmt.Errorf("failed to read cpu usage: %w", err)
	}
	if len(cpuPercents) > 0 {
		samples = append(samples, Metric{
			Type:       MetricCPUUsage,
			Value:      cpuPercents[0],
			RecordedAt: now,
		})
	}

	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read memory usage: %w", err)
	}
	samples = append(samples, Metric{
		Type:       MetricMemoryUsage,
		Value:      vm.UsedPercent,
		RecordedAt: now,
	})

	du, err := disk.UsageWithContext(ctx, s.DiskPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read disk usage for %s: %w", s.DiskPath, err)
	}
	samples = append(samples, Metric{
		Type:       MetricDiskUsage,
		Value:      du.UsedPercent,
		RecordedAt: now,
	})

	return samples, nil
}

// DBStatser exposes the connection pool statistics and a timed probe query.
// Implemented by the database layer.
type DBStatser interface {
	PoolStats() sql.DBStats
	ProbeQueryTime(ctx context.Context) (time.Duration, error)
}

// DatabaseSampler reports connection pool saturation and query latency
type DatabaseSampler struct {
	db DBStatser
}

// NewDatabaseSampler creates a database sampler
func NewDatabaseSampler(db DBStatser) *DatabaseSampler {
	return &DatabaseSampler{db: db}
}

// Name returns the sampler name
func (s *DatabaseSampler) Name() string { return "database" }

// Types returns the metric kinds this sampler covers
func (s *DatabaseSampler) Types() []MetricType {
	return []MetricType{MetricDBConnections, MetricDBQueryTime}
}

// Sample reads pool saturation and probe query latency
func (s *DatabaseSampler) Sample(ctx context.Context) ([]Metric, error) {
	now := time.Now().UTC()
	stats := s.db.PoolStats()

	saturation := 0.0
	if stats.MaxOpenConnections > 0 {
		saturation = float64(stats.InUse) / float64(stats.MaxOpenConnections) * 100
	}

	samples := []Metric{
		{
			Type:       MetricDBConnections,
			Value:      saturation,
			RecordedAt: now,
			Metadata: map[string]interface{}{
				"in_use": stats.InUse,
				"idle":   stats.Idle,
				"max":    stats.MaxOpenConnections,
			},
		},
	}

	took, err := s.db.ProbeQueryTime(ctx)
	if err != nil {
		return samples, fmt.Errorf("probe query failed: %w", err)
	}
	samples = append(samples, Metric{
		Type:       MetricDBQueryTime,
		Value:      float64(took.Microseconds()) / 1000,
		RecordedAt: now,
	})

	return samples, nil
}

// CacheStatser exposes cache hit statistics. Satisfied by the cache layer.
type CacheStatser interface {
	HitRatio(ctx context.Context) (float64, error)
}

// CacheSampler reports the cache hit rate
type CacheSampler struct {
	cache CacheStatser
}

// NewCacheSampler creates a cache sampler
func NewCacheSampler(cache CacheStatser) *CacheSampler {
	return &CacheSampler{cache: cache}
}

// Name returns the sampler name
func (s *CacheSampler) Name() string { return "cache" }

// Types returns the metric kinds this sampler covers
func (s *CacheSampler) Types() []MetricType {
	return []MetricType{MetricCacheHitRate}
}

// Sample reads the cache hit rate as a percentage
func (s *CacheSampler) Sample(ctx context.Context) ([]Metric, error) {
	ratio, err := s.cache.HitRatio(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read cache stats: %w", err)
	}

	return []Metric{{
		Type:       MetricCacheHitRate,
		Value:      ratio * 100,
		RecordedAt: time.Now().UTC(),
	}}, nil
}

// LatencyRecorder keeps a bounded window of observed request latencies and
// reports their p95. The HTTP layer feeds it, the API sampler reads it.
type LatencyRecorder struct {
	mu      sync.Mutex
	samples []float64
	next    int
	full    bool
}

// NewLatencyRecorder creates a recorder holding up to capacity samples
func NewLatencyRecorder(capacity int) *LatencyRecorder {
	if capacity <= 0 {
		capacity = 1024
	}
	return &LatencyRecorder{samples: make([]float64, capacity)}
}

// Observe records one request latency
func (r *LatencyRecorder) Observe(d time.Duration) {
	ms := float64(d.Microseconds()) / 1000

	r.mu.Lock()
	r.samples[r.next] = ms
	r.next++
	if r.next == len(r.samples) {
		r.next = 0
		r.full = true
	}
	r.mu.Unlock()
}

// P95 returns the 95th percentile latency in milliseconds over the current
// window, or 0 when nothing has been observed yet.
func (r *LatencyRecorder) P95() float64 {
	r.mu.Lock()
	n := r.next
	if r.full {
		n = len(r.samples)
	}
	window := make([]float64, n)
	copy(window, r.samples[:n])
	r.mu.Unlock()

	if len(window) == 0 {
		return 0
	}

	sort.Float64s(window)
	idx := int(float64(len(window))*0.95) - 1
	if idx < 0 {
		idx = 0
	}
	return window[idx]
}

// QueueLengther exposes the depth of a work queue. Satisfied by the alert
// dispatcher.
type QueueLengther interface {
	QueueLength() int
}

// AppSampler reports application-level metrics: API latency p95 and the
// alert queue depth.
type AppSampler struct {
	latencies *LatencyRecorder
	queue     QueueLengther
}

// NewAppSampler creates an application sampler. Either argument may be nil,
// in which case the corresponding metric is skipped.
func NewAppSampler(latencies *LatencyRecorder, queue QueueLengther) *AppSampler {
	return &AppSampler{latencies: latencies, queue: queue}
}

// Name returns the sampler name
func (s *AppSampler) Name() string { return "app" }

// Types returns the metric kinds this sampler covers
func (s *AppSampler) Types() []MetricType {
	var types []MetricType
	if s.latencies != nil {
		types = append(types, MetricAPIResponseTime)
	}
	if s.queue != nil {
		types = append(types, MetricQueueLength)
	}
	return types
}

// Sample reads API latency and queue depth
func (s *AppSampler) Sample(ctx context.Context) ([]Metric, error) {
	now := time.Now().UTC()
	var samples []Metric

	if s.latencies != nil {
		samples = append(samples, Metric{
			Type:       MetricAPIResponseTime,
			Value:      s.latencies.P95(),
			RecordedAt: now,
		})
	}

	if s.queue != nil {
		samples = append(samples, Metric{
			Type:       MetricQueueLength,
			Value:      float64(s.queue.QueueLength()),
			RecordedAt: now,
		})
	}

	return samples, nil
}
