package metrics

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rizrmd/travel-sub003/pkg/cache"
)

type fakeRepository struct {
	mu sync.Mutex

	systemRows []*SystemMetric
	tenantRows []*TenantMetric

	latest   []*SystemMetric
	averages map[MetricType]float64

	saveTenantErr error
}

func newFakeRepository() *fakeRepository {
	return &fakeRepository{averages: make(map[MetricType]float64)}
}

func (r *fakeRepository) SaveSystemMetrics(ctx context.Context, rows []*SystemMetric) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.systemRows = append(r.systemRows, rows...)
	return nil
}

func (r *fakeRepository) SaveTenantMetrics(ctx context.Context, rows []*TenantMetric) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.saveTenantErr != nil {
		return r.saveTenantErr
	}
	r.tenantRows = append(r.tenantRows, rows...)
	return nil
}

func (r *fakeRepository) LatestSystemMetrics(ctx context.Context) ([]*SystemMetric, error) {
	return r.latest, nil
}

func (r *fakeRepository) AverageSystemValue(ctx context.Context, metricType MetricType, from, to time.Time) (float64, error) {
	return r.averages[metricType], nil
}

func (r *fakeRepository) SystemMetricHistory(ctx context.Context, metricType MetricType, from, to time.Time) ([]*SystemMetric, error) {
	return nil, nil
}

func (r *fakeRepository) LatestTenantValue(ctx context.Context, tenantID uuid.UUID, metricType MetricType) (float64, error) {
	return 0, nil
}

func (r *fakeRepository) AverageTenantValue(ctx context.Context, tenantID uuid.UUID, metricType MetricType, from, to time.Time) (float64, error) {
	return 0, nil
}

func (r *fakeRepository) SumTenantValue(ctx context.Context, tenantID uuid.UUID, metricType MetricType, from, to time.Time) (float64, error) {
	return 0, nil
}

func (r *fakeRepository) TenantMetricHistory(ctx context.Context, tenantID uuid.UUID, metricType MetricType, from, to time.Time) ([]*TenantMetric, error) {
	return nil, nil
}

func (r *fakeRepository) DeleteSystemMetricsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	return 0, nil
}

func (r *fakeRepository) DeleteTenantMetricsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	return 0, nil
}

type fakeTenantLister struct {
	ids []uuid.UUID
}

func (l *fakeTenantLister) ListActiveTenantIDs(ctx context.Context) ([]uuid.UUID, error) {
	return l.ids, nil
}

type fakeStatsProvider struct {
	stats map[uuid.UUID]*TenantStats
	errs  map[uuid.UUID]error
}

func (p *fakeStatsProvider) CollectTenantStats(ctx context.Context, tenantID uuid.UUID) (*TenantStats, error) {
	if err := p.errs[tenantID]; err != nil {
		return nil, err
	}
	return p.stats[tenantID], nil
}

type stubSampler struct {
	name    string
	types   []MetricType
	samples []Metric
	err     error
	panics  bool
}

func (s *stubSampler) Name() string        { return s.name }
func (s *stubSampler) Types() []MetricType { return s.types }
func (s *stubSampler) Sample(ctx context.Context) ([]Metric, error) {
	if s.panics {
		panic("sampler blew up")
	}
	return s.samples, s.err
}

func newTestCollector(repo Repository, tenants TenantLister, stats TenantStatsProvider, snapshots cache.Cache) *Collector {
	return NewCollector(&CollectorConfig{
		SnapshotTTL:       time.Minute,
		TenantConcurrency: 4,
	}, repo, tenants, stats, snapshots, nil)
}

func TestCollectSystemMetricsPersistsAllSamples(t *testing.T) {
	repo := newFakeRepository()
	c := newTestCollector(repo, &fakeTenantLister{}, nil, nil)

	now := time.Now().UTC()
	c.RegisterSampler(&stubSampler{
		name:  "host",
		types: []MetricType{MetricCPUUsage, MetricMemoryUsage},
		samples: []Metric{
			{Type: MetricCPUUsage, Value: 42, RecordedAt: now},
			{Type: MetricMemoryUsage, Value: 61, RecordedAt: now},
		},
	})

	require.NoError(t, c.CollectSystemMetrics(context.Background()))
	require.Len(t, repo.systemRows, 2)
	assert.Equal(t, string(MetricCPUUsage), repo.systemRows[0].MetricType)
	assert.Equal(t, 42.0, repo.systemRows[0].Value)
}

func TestCollectSystemMetricsWritesSentinelsForFailedSampler(t *testing.T) {
	repo := newFakeRepository()
	c := newTestCollector(repo, &fakeTenantLister{}, nil, nil)

	c.RegisterSampler(&stubSampler{
		name:    "host",
		types:   []MetricType{MetricCPUUsage},
		samples: []Metric{{Type: MetricCPUUsage, Value: 10, RecordedAt: time.Now().UTC()}},
	})
	c.RegisterSampler(&stubSampler{
		name:  "database",
		types: []MetricType{MetricDBConnections, MetricDBQueryTime},
		err:   fmt.Errorf("connection refused"),
	})

	require.NoError(t, c.CollectSystemMetrics(context.Background()))
	require.Len(t, repo.systemRows, 3)

	sentinels := 0
	for _, row := range repo.systemRows {
		if row.Metadata != nil && row.Metadata["sentinel"] == true {
			sentinels++
			assert.Equal(t, StatusCritical, Classify(MetricType(row.MetricType), row.Value))
			assert.Equal(t, "connection refused", row.Metadata["error"])
		}
	}
	assert.Equal(t, 2, sentinels)
}

func TestCollectSystemMetricsContainsSamplerPanic(t *testing.T) {
	repo := newFakeRepository()
	c := newTestCollector(repo, &fakeTenantLister{}, nil, nil)

	c.RegisterSampler(&stubSampler{
		name:   "broken",
		types:  []MetricType{MetricQueueLength},
		panics: true,
	})
	c.RegisterSampler(&stubSampler{
		name:    "host",
		types:   []MetricType{MetricCPUUsage},
		samples: []Metric{{Type: MetricCPUUsage, Value: 5, RecordedAt: time.Now().UTC()}},
	})

	require.NoError(t, c.CollectSystemMetrics(context.Background()))
	// One real sample plus one sentinel for the panicking sampler's kind.
	assert.Len(t, repo.systemRows, 2)
}

func TestCollectSystemMetricsErrorsWhenNothingSampled(t *testing.T) {
	repo := newFakeRepository()
	c := newTestCollector(repo, &fakeTenantLister{}, nil, nil)

	assert.Error(t, c.CollectSystemMetrics(context.Background()))
}

func TestCollectTenantMetricsWritesFullCatalog(t *testing.T) {
	tenantID := uuid.New()
	repo := newFakeRepository()
	stats := &fakeStatsProvider{stats: map[uuid.UUID]*TenantStats{
		tenantID: {
			TenantID:       tenantID,
			UserCount:      10,
			JamaahCount:    50,
			Revenue:        1234.5,
			ErrorCount:     3,
			APICallCount:   1000,
			StorageUsedMB:  512,
			ActiveSessions: 5,
		},
	}}

	c := newTestCollector(repo, &fakeTenantLister{ids: []uuid.UUID{tenantID}}, stats, nil)
	require.NoError(t, c.CollectTenantMetrics(context.Background()))

	require.Len(t, repo.tenantRows, len(TenantMetricTypes()))

	byType := make(map[string]float64)
	for _, row := range repo.tenantRows {
		assert.Equal(t, tenantID, row.TenantID)
		byType[row.MetricType] = row.Value
	}
	assert.Equal(t, 1234.5, byType[string(MetricRevenue)])
	// All four activity terms are saturated for these counters.
	assert.Equal(t, 100.0, byType[string(MetricActivityScore)])
}

func TestCollectTenantMetricsIsolatesFailingTenant(t *testing.T) {
	good, bad := uuid.New(), uuid.New()
	repo := newFakeRepository()
	stats := &fakeStatsProvider{
		stats: map[uuid.UUID]*TenantStats{good: {TenantID: good, UserCount: 1}},
		errs:  map[uuid.UUID]error{bad: fmt.Errorf("tenant schema missing")},
	}

	c := newTestCollector(repo, &fakeTenantLister{ids: []uuid.UUID{bad, good}}, stats, nil)
	require.NoError(t, c.CollectTenantMetrics(context.Background()))

	// Both tenants produce a full catalog: real rows for the healthy one,
	// sentinel rows for the broken one.
	assert.Len(t, repo.tenantRows, 2*len(TenantMetricTypes()))
	for _, row := range repo.tenantRows {
		if row.TenantID == good {
			assert.Nil(t, row.Metadata)
		}
	}
}

func TestCollectTenantMetricsWritesSentinelsForFailedTenant(t *testing.T) {
	tenantID := uuid.New()
	repo := newFakeRepository()
	stats := &fakeStatsProvider{
		errs: map[uuid.UUID]error{tenantID: fmt.Errorf("tenant schema missing")},
	}

	c := newTestCollector(repo, &fakeTenantLister{ids: []uuid.UUID{tenantID}}, stats, nil)
	require.NoError(t, c.CollectTenantMetrics(context.Background()))

	require.Len(t, repo.tenantRows, len(TenantMetricTypes()))
	for _, row := range repo.tenantRows {
		assert.Equal(t, tenantID, row.TenantID)
		require.NotNil(t, row.Metadata)
		assert.Equal(t, true, row.Metadata["sentinel"])
		assert.Equal(t, "tenant schema missing", row.Metadata["error"])
	}

	// The sentinel activity score classifies critical, so the broken tenant
	// surfaces instead of going silently stale.
	byType := make(map[string]float64)
	for _, row := range repo.tenantRows {
		byType[row.MetricType] = row.Value
	}
	assert.Equal(t, StatusCritical, Classify(MetricActivityScore, byType[string(MetricActivityScore)]))
}

func TestHealthSnapshotRollsUpWorstStatus(t *testing.T) {
	now := time.Now().UTC()
	repo := newFakeRepository()
	repo.latest = []*SystemMetric{
		{MetricType: string(MetricCPUUsage), Value: 50, RecordedAt: now},
		{MetricType: string(MetricMemoryUsage), Value: 80, RecordedAt: now},
		{MetricType: string(MetricDiskUsage), Value: 96, RecordedAt: now},
	}

	c := newTestCollector(repo, &fakeTenantLister{}, nil, nil)
	snapshot, err := c.HealthSnapshot(context.Background())
	require.NoError(t, err)

	assert.Equal(t, StatusCritical, snapshot.Status)
	require.Len(t, snapshot.Components, 3)
}

func TestHealthSnapshotTrend(t *testing.T) {
	now := time.Now().UTC()
	repo := newFakeRepository()
	repo.latest = []*SystemMetric{
		{MetricType: string(MetricCPUUsage), Value: 60, RecordedAt: now},
		{MetricType: string(MetricMemoryUsage), Value: 40, RecordedAt: now},
		{MetricType: string(MetricQueueLength), Value: 51, RecordedAt: now},
	}
	repo.averages[MetricCPUUsage] = 50    // +20% -> rising
	repo.averages[MetricMemoryUsage] = 50 // -20% -> falling
	repo.averages[MetricQueueLength] = 50 // +2% -> stable

	c := newTestCollector(repo, &fakeTenantLister{}, nil, nil)
	snapshot, err := c.HealthSnapshot(context.Background())
	require.NoError(t, err)

	trends := make(map[MetricType]Trend)
	for _, comp := range snapshot.Components {
		trends[comp.MetricType] = comp.Trend
	}
	assert.Equal(t, TrendRising, trends[MetricCPUUsage])
	assert.Equal(t, TrendFalling, trends[MetricMemoryUsage])
	assert.Equal(t, TrendStable, trends[MetricQueueLength])
}

func TestCollectSystemMetricsRefreshesSnapshot(t *testing.T) {
	now := time.Now().UTC()
	repo := newFakeRepository()
	repo.latest = []*SystemMetric{
		{MetricType: string(MetricCPUUsage), Value: 10, RecordedAt: now},
	}

	snapshots := cache.NewMemoryCache(&cache.MemoryConfig{})
	defer snapshots.Close()

	c := newTestCollector(repo, &fakeTenantLister{}, nil, snapshots)
	c.RegisterSampler(&stubSampler{
		name:    "host",
		types:   []MetricType{MetricCPUUsage},
		samples: []Metric{{Type: MetricCPUUsage, Value: 10, RecordedAt: now}},
	})

	require.NoError(t, c.CollectSystemMetrics(context.Background()))

	first, err := c.HealthSnapshot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 10.0, first.Components[0].Value)

	// The next pass replaces the cached snapshot even though the previous
	// one is still inside its TTL.
	repo.latest[0].Value = 95
	require.NoError(t, c.CollectSystemMetrics(context.Background()))

	second, err := c.HealthSnapshot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 95.0, second.Components[0].Value)
	assert.Equal(t, StatusCritical, second.Status)
}

func TestHealthSnapshotUsesCache(t *testing.T) {
	now := time.Now().UTC()
	repo := newFakeRepository()
	repo.latest = []*SystemMetric{
		{MetricType: string(MetricCPUUsage), Value: 10, RecordedAt: now},
	}

	snapshots := cache.NewMemoryCache(&cache.MemoryConfig{})
	defer snapshots.Close()

	c := newTestCollector(repo, &fakeTenantLister{}, nil, snapshots)

	first, err := c.HealthSnapshot(context.Background())
	require.NoError(t, err)

	// Change the underlying data; the cached snapshot must still be served.
	repo.latest[0].Value = 99

	second, err := c.HealthSnapshot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, first.GeneratedAt.Unix(), second.GeneratedAt.Unix())
	assert.Equal(t, 10.0, second.Components[0].Value)
}
