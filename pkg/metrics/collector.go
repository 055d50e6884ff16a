package metrics

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/rizrmd/travel-sub003/pkg/cache"
	"github.com/rizrmd/travel-sub003/pkg/logger"
)

// TenantLister lists the tenants the collector samples each pass
type TenantLister interface {
	ListActiveTenantIDs(ctx context.Context) ([]uuid.UUID, error)
}

// CollectorConfig contains configuration for the metric collector
type CollectorConfig struct {
	// SnapshotTTL is how long a health snapshot stays cached
	SnapshotTTL time.Duration `yaml:"snapshot_ttl" json:"snapshot_ttl"`

	// TenantConcurrency bounds parallel tenant stat collection
	TenantConcurrency int `yaml:"tenant_concurrency" json:"tenant_concurrency"`
}

// DefaultCollectorConfig returns default collector configuration
func DefaultCollectorConfig() *CollectorConfig {
	return &CollectorConfig{
		SnapshotTTL:       5 * time.Minute,
		TenantConcurrency: 8,
	}
}

const healthSnapshotKey = "metrics:health_snapshot"

// Trend describes how a metric is moving against its trailing-hour average
type Trend string

const (
	TrendRising  Trend = "rising"
	TrendFalling Trend = "falling"
	TrendStable  Trend = "stable"
)

// trendBand is the relative change below which a metric counts as stable
const trendBand = 0.05

// ComponentHealth is one system metric's classified state in a snapshot
type ComponentHealth struct {
	MetricType MetricType   `json:"metric_type"`
	Value      float64      `json:"value"`
	Display    string       `json:"display"`
	Status     HealthStatus `json:"status"`
	Trend      Trend        `json:"trend"`
	RecordedAt time.Time    `json:"recorded_at"`
}

// HealthSnapshot is the platform health roll-up served to dashboards.
// Overall status is the worst component status.
type HealthSnapshot struct {
	Status      HealthStatus      `json:"status"`
	Components  []ComponentHealth `json:"components"`
	GeneratedAt time.Time         `json:"generated_at"`
}

// Collector runs the periodic metric collection passes: a system pass over
// the registered samplers and a tenant pass over every active tenant's
// business counters.
type Collector struct {
	config     *CollectorConfig
	repository Repository
	tenants    TenantLister
	stats      TenantStatsProvider
	samplers   []Sampler
	snapshots  cache.Cache
	log        *logger.Logger
	tracer     trace.Tracer
}

// NewCollector creates a new metric collector
func NewCollector(
	config *CollectorConfig,
	repository Repository,
	tenants TenantLister,
	stats TenantStatsProvider,
	snapshots cache.Cache,
	log *logger.Logger,
) *Collector {
	if config == nil {
		config = DefaultCollectorConfig()
	}
	if log == nil {
		log = logger.GetDefault()
	}

	return &Collector{
		config:     config,
		repository: repository,
		tenants:    tenants,
		stats:      stats,
		snapshots:  snapshots,
		log:        log,
		tracer:     otel.Tracer("metric-collector"),
	}
}

// RegisterSampler adds a system metric sampler to the collection pass
func (c *Collector) RegisterSampler(sampler Sampler) {
	c.samplers = append(c.samplers, sampler)
	c.log.Info("registered metric sampler: %s", sampler.Name())
}

// CollectSystemMetrics runs every registered sampler and persists the batch.
// A failing sampler is logged and skipped; partial samples it returned are
// still kept.
func (c *Collector) CollectSystemMetrics(ctx context.Context) error {
	ctx, span := c.tracer.Start(ctx, "metric_collector.collect_system")
	defer span.End()

	var rows []*SystemMetric
	for _, sampler := range c.samplers {
		samples, err := c.sample(ctx, sampler)
		if err != nil {
			span.RecordError(err)
			c.log.WithField("sampler", sampler.Name()).Warn("sampler failed: %v", err)

			// A dead sampler must not go silently stale: every kind it
			// covers but did not report gets a critical sentinel sample.
			reported := make(map[MetricType]struct{}, len(samples))
			for _, m := range samples {
				reported[m.Type] = struct{}{}
			}
			for _, t := range sampler.Types() {
				if _, ok := reported[t]; !ok {
					samples = append(samples, SentinelCritical(t, err.Error()))
				}
			}
		}
		for _, m := range samples {
			rows = append(rows, &SystemMetric{
				ID:         uuid.New(),
				MetricType: string(m.Type),
				Value:      m.Value,
				Metadata:   m.Metadata,
				RecordedAt: m.RecordedAt,
			})
		}
	}

	span.SetAttributes(attribute.Int("sample_count", len(rows)))

	if len(rows) == 0 {
		return fmt.Errorf("system collection pass produced no samples")
	}

	if err := c.repository.SaveSystemMetrics(ctx, rows); err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to save system metrics: %w", err)
	}

	// Each pass replaces the cached snapshot so dashboards see this cycle's
	// values, not the tail of the previous TTL.
	if _, err := c.refreshSnapshot(ctx); err != nil {
		c.log.Warn("failed to refresh health snapshot: %v", err)
	}
	return nil
}

// sample runs one sampler with panic containment
func (c *Collector) sample(ctx context.Context, sampler Sampler) (samples []Metric, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("sampler %s panicked: %v", sampler.Name(), r)
		}
	}()
	return sampler.Sample(ctx)
}

// CollectTenantMetrics samples business counters for every active tenant.
// Per-tenant failures are contained; one broken tenant never blocks the rest
// of the pass.
func (c *Collector) CollectTenantMetrics(ctx context.Context) error {
	ctx, span := c.tracer.Start(ctx, "metric_collector.collect_tenants")
	defer span.End()

	tenantIDs, err := c.tenants.ListActiveTenantIDs(ctx)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to list active tenants: %w", err)
	}

	span.SetAttributes(attribute.Int("tenant_count", len(tenantIDs)))

	semaphore := make(chan struct{}, c.config.TenantConcurrency)
	done := make(chan struct{}, len(tenantIDs))

	for _, tenantID := range tenantIDs {
		go func(id uuid.UUID) {
			semaphore <- struct{}{}
			defer func() {
				<-semaphore
				done <- struct{}{}
			}()
			if err := c.collectOneTenant(ctx, id); err != nil {
				c.log.WithField("tenant_id", id.String()).Warn("tenant metric collection failed: %v", err)
			}
		}(tenantID)
	}

	for i := 0; i < len(tenantIDs); i++ {
		<-done
	}

	return nil
}

func (c *Collector) collectOneTenant(ctx context.Context, tenantID uuid.UUID) error {
	stats, err := c.stats.CollectTenantStats(ctx, tenantID)
	if err != nil {
		// A broken tenant probe must not go silently stale: the whole
		// tenant catalog gets critical sentinel rows for this cycle.
		rows := make([]*TenantMetric, 0, len(TenantMetricTypes()))
		for _, t := range TenantMetricTypes() {
			m := SentinelCritical(t, err.Error())
			rows = append(rows, &TenantMetric{
				ID:         uuid.New(),
				TenantID:   tenantID,
				MetricType: string(m.Type),
				Value:      m.Value,
				Metadata:   m.Metadata,
				RecordedAt: m.RecordedAt,
			})
		}
		if saveErr := c.repository.SaveTenantMetrics(ctx, rows); saveErr != nil {
			c.log.WithField("tenant_id", tenantID.String()).Error("failed to save sentinel tenant metrics: %v", saveErr)
		}
		return err
	}

	now := time.Now().UTC()
	score := CalculateActivityScore(
		float64(stats.UserCount),
		float64(stats.JamaahCount),
		float64(stats.APICallCount),
		float64(stats.ActiveSessions),
	)

	values := []struct {
		metricType MetricType
		value      float64
	}{
		{MetricUserCount, float64(stats.UserCount)},
		{MetricJamaahCount, float64(stats.JamaahCount)},
		{MetricRevenue, stats.Revenue},
		{MetricActivityScore, score},
		{MetricErrorCount, float64(stats.ErrorCount)},
		{MetricAPICallCount, float64(stats.APICallCount)},
		{MetricStorageUsed, stats.StorageUsedMB},
		{MetricActiveSessions, float64(stats.ActiveSessions)},
	}

	rows := make([]*TenantMetric, 0, len(values))
	for _, v := range values {
		rows = append(rows, &TenantMetric{
			ID:         uuid.New(),
			TenantID:   tenantID,
			MetricType: string(v.metricType),
			Value:      v.value,
			RecordedAt: now,
		})
	}

	return c.repository.SaveTenantMetrics(ctx, rows)
}

// HealthSnapshot classifies the latest sample of every system metric into a
// platform health roll-up. Snapshots are cached so dashboards hitting the
// endpoint in a tight loop never touch the metric tables.
func (c *Collector) HealthSnapshot(ctx context.Context) (*HealthSnapshot, error) {
	ctx, span := c.tracer.Start(ctx, "metric_collector.health_snapshot")
	defer span.End()

	if c.snapshots != nil {
		if data, err := c.snapshots.Get(ctx, healthSnapshotKey); err == nil {
			var snapshot HealthSnapshot
			if err := json.Unmarshal(data, &snapshot); err == nil {
				span.SetAttributes(attribute.Bool("cache.hit", true))
				return &snapshot, nil
			}
		}
	}

	snapshot, err := c.refreshSnapshot(ctx)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	span.SetAttributes(attribute.String("status", string(snapshot.Status)))
	return snapshot, nil
}

// refreshSnapshot rebuilds the health roll-up from the latest persisted rows
// and replaces the cached copy (last writer wins).
func (c *Collector) refreshSnapshot(ctx context.Context) (*HealthSnapshot, error) {
	latest, err := c.repository.LatestSystemMetrics(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load latest system metrics: %w", err)
	}

	snapshot := &HealthSnapshot{
		Status:      StatusHealthy,
		Components:  make([]ComponentHealth, 0, len(latest)),
		GeneratedAt: time.Now().UTC(),
	}

	now := time.Now().UTC()
	for _, row := range latest {
		m := row.ToMetric()
		status := m.Status()
		snapshot.Components = append(snapshot.Components, ComponentHealth{
			MetricType: m.Type,
			Value:      m.Value,
			Display:    FormatValue(m.Type, m.Value),
			Status:     status,
			Trend:      c.trendFor(ctx, m, now),
			RecordedAt: m.RecordedAt,
		})
		snapshot.Status = worseOf(snapshot.Status, status)
	}

	if c.snapshots != nil {
		if data, err := json.Marshal(snapshot); err == nil {
			if err := c.snapshots.Set(ctx, healthSnapshotKey, data, c.config.SnapshotTTL); err != nil {
				c.log.Warn("failed to cache health snapshot: %v", err)
			}
		}
	}

	return snapshot, nil
}

// trendFor compares the latest value against the trailing-hour average
func (c *Collector) trendFor(ctx context.Context, m Metric, now time.Time) Trend {
	baseline, err := c.repository.AverageSystemValue(ctx, m.Type, now.Add(-time.Hour), now)
	if err != nil || baseline == 0 {
		return TrendStable
	}

	change := (m.Value - baseline) / baseline
	switch {
	case change > trendBand:
		return TrendRising
	case change < -trendBand:
		return TrendFalling
	default:
		return TrendStable
	}
}

// PruneExpired removes metric samples past their retention period
func (c *Collector) PruneExpired(ctx context.Context) error {
	ctx, span := c.tracer.Start(ctx, "metric_collector.prune_expired")
	defer span.End()

	now := time.Now().UTC()

	systemDeleted, err := c.repository.DeleteSystemMetricsBefore(ctx, now.Add(-SystemMetricRetention))
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to prune system metrics: %w", err)
	}

	tenantDeleted, err := c.repository.DeleteTenantMetricsBefore(ctx, now.Add(-TenantMetricRetention))
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to prune tenant metrics: %w", err)
	}

	if systemDeleted > 0 || tenantDeleted > 0 {
		c.log.Info("pruned %d system and %d tenant metric samples", systemDeleted, tenantDeleted)
	}
	return nil
}

// worseOf returns the more severe of two health statuses
func worseOf(a, b HealthStatus) HealthStatus {
	rank := func(s HealthStatus) int {
		switch s {
		case StatusCritical:
			return 2
		case StatusDegraded:
			return 1
		default:
			return 0
		}
	}
	if rank(b) > rank(a) {
		return b
	}
	return a
}
