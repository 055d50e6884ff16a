package anomaly

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rizrmd/travel-sub003/pkg/metrics"
)

type fakeAnomalyRepo struct {
	mu        sync.Mutex
	anomalies []*Anomaly
}

func (r *fakeAnomalyRepo) Create(ctx context.Context, a *Anomaly) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.anomalies = append(r.anomalies, a)
	return nil
}

func (r *fakeAnomalyRepo) GetByID(ctx context.Context, id uuid.UUID) (*Anomaly, error) {
	return nil, fmt.Errorf("not implemented")
}

func (r *fakeAnomalyRepo) Update(ctx context.Context, a *Anomaly) error { return nil }

func (r *fakeAnomalyRepo) List(ctx context.Context, filter *Filter) ([]*Anomaly, error) {
	return nil, nil
}

func (r *fakeAnomalyRepo) CountByStatus(ctx context.Context, tenantID *uuid.UUID) (map[Status]int64, error) {
	return nil, nil
}

func (r *fakeAnomalyRepo) byType(anomalyType AnomalyType) []*Anomaly {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*Anomaly
	for _, a := range r.anomalies {
		if a.Type == anomalyType {
			out = append(out, a)
		}
	}
	return out
}

type fakeDirectory struct {
	ids []uuid.UUID
}

func (d *fakeDirectory) ListActiveTenantIDs(ctx context.Context) ([]uuid.UUID, error) {
	return d.ids, nil
}

// fakeTenantMetrics serves fixed values per metric type: latest for
// LatestValue, reference for window reads that end in the past, current for
// windows that end now.
type fakeTenantMetrics struct {
	latest    map[metrics.MetricType]float64
	current   map[metrics.MetricType]float64
	reference map[metrics.MetricType]float64
}

func (f *fakeTenantMetrics) LatestValue(ctx context.Context, tenantID uuid.UUID, metricType metrics.MetricType) (float64, error) {
	return f.latest[metricType], nil
}

func (f *fakeTenantMetrics) AverageValue(ctx context.Context, tenantID uuid.UUID, metricType metrics.MetricType, from, to time.Time) (float64, error) {
	return f.windowValue(metricType, to), nil
}

func (f *fakeTenantMetrics) SumValue(ctx context.Context, tenantID uuid.UUID, metricType metrics.MetricType, from, to time.Time) (float64, error) {
	return f.windowValue(metricType, to), nil
}

func (f *fakeTenantMetrics) windowValue(metricType metrics.MetricType, to time.Time) float64 {
	if time.Since(to) > time.Minute {
		return f.reference[metricType]
	}
	return f.current[metricType]
}

type fakeSystemMetrics struct {
	current   map[metrics.MetricType]float64
	reference map[metrics.MetricType]float64
}

func (f *fakeSystemMetrics) AverageValue(ctx context.Context, metricType metrics.MetricType, from, to time.Time) (float64, error) {
	if time.Since(to) > time.Minute {
		return f.reference[metricType], nil
	}
	return f.current[metricType], nil
}

type fakeUserStats struct {
	total, inactive int64
}

func (f *fakeUserStats) UserCounts(ctx context.Context, tenantID uuid.UUID) (int64, int64, error) {
	return f.total, f.inactive, nil
}

type capturingPublisher struct {
	mu        sync.Mutex
	published []*Anomaly
}

func (p *capturingPublisher) Publish(ctx context.Context, a *Anomaly) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.published = append(p.published, a)
	return nil
}

func quietTenantMetrics() *fakeTenantMetrics {
	return &fakeTenantMetrics{
		latest:    map[metrics.MetricType]float64{},
		current:   map[metrics.MetricType]float64{},
		reference: map[metrics.MetricType]float64{},
	}
}

func quietSystemMetrics() *fakeSystemMetrics {
	return &fakeSystemMetrics{
		current:   map[metrics.MetricType]float64{},
		reference: map[metrics.MetricType]float64{},
	}
}

func newTestDetector(repo Repository, dir TenantDirectory, tm TenantMetricSource, sm SystemMetricSource, us UserStatsProvider, pub Publisher) *Detector {
	return NewDetector(nil, repo, dir, tm, sm, us, pub, nil)
}

func TestActivityDropDetection(t *testing.T) {
	tenantID := uuid.New()
	repo := &fakeAnomalyRepo{}
	pub := &capturingPublisher{}

	tm := quietTenantMetrics()
	tm.latest[metrics.MetricActivityScore] = 30
	tm.reference[metrics.MetricActivityScore] = 80 // 62.5% drop -> critical

	d := newTestDetector(repo, &fakeDirectory{ids: []uuid.UUID{tenantID}}, tm, quietSystemMetrics(), &fakeUserStats{}, pub)
	require.NoError(t, d.RunCycle(context.Background()))

	drops := repo.byType(TypeActivityDrop)
	require.Len(t, drops, 1)

	a := drops[0]
	assert.Equal(t, SeverityCritical, a.Severity)
	assert.Equal(t, StatusDetected, a.Status)
	require.NotNil(t, a.TenantID)
	assert.Equal(t, tenantID, *a.TenantID)
	assert.InDelta(t, 62.5, a.Metadata["change_percentage"].(float64), 0.01)

	// Critical anomalies are handed to the dispatcher after persistence.
	require.Len(t, pub.published, 1)
	assert.Equal(t, a.ID, pub.published[0].ID)
}

func TestActivityDropSkipsWithoutReference(t *testing.T) {
	repo := &fakeAnomalyRepo{}
	tm := quietTenantMetrics()
	tm.latest[metrics.MetricActivityScore] = 0 // new tenant, no history

	d := newTestDetector(repo, &fakeDirectory{ids: []uuid.UUID{uuid.New()}}, tm, quietSystemMetrics(), &fakeUserStats{}, nil)
	require.NoError(t, d.RunCycle(context.Background()))
	assert.Empty(t, repo.byType(TypeActivityDrop))
}

func TestErrorSpikeMinimumCountGuard(t *testing.T) {
	repo := &fakeAnomalyRepo{}
	tm := quietTenantMetrics()
	// 2 -> 8 errors is a 300% jump but below the absolute noise floor.
	tm.current[metrics.MetricErrorCount] = 8
	tm.reference[metrics.MetricErrorCount] = 2

	d := newTestDetector(repo, &fakeDirectory{ids: []uuid.UUID{uuid.New()}}, tm, quietSystemMetrics(), &fakeUserStats{}, nil)
	require.NoError(t, d.RunCycle(context.Background()))
	assert.Empty(t, repo.byType(TypeErrorSpike))
}

func TestErrorSpikeFiresAboveFloor(t *testing.T) {
	repo := &fakeAnomalyRepo{}
	tm := quietTenantMetrics()
	tm.current[metrics.MetricErrorCount] = 60
	tm.reference[metrics.MetricErrorCount] = 20 // +200% -> critical

	d := newTestDetector(repo, &fakeDirectory{ids: []uuid.UUID{uuid.New()}}, tm, quietSystemMetrics(), &fakeUserStats{}, nil)
	require.NoError(t, d.RunCycle(context.Background()))

	spikes := repo.byType(TypeErrorSpike)
	require.Len(t, spikes, 1)
	assert.Equal(t, SeverityCritical, spikes[0].Severity)
}

func TestUserChurnRule(t *testing.T) {
	repo := &fakeAnomalyRepo{}

	d := newTestDetector(repo, &fakeDirectory{ids: []uuid.UUID{uuid.New()}}, quietTenantMetrics(), quietSystemMetrics(),
		&fakeUserStats{total: 100, inactive: 20}, nil) // 20% churn -> warning

	require.NoError(t, d.RunCycle(context.Background()))

	churn := repo.byType(TypeUserChurn)
	require.Len(t, churn, 1)
	assert.Equal(t, SeverityWarning, churn[0].Severity)
}

func TestUserChurnSkipsEmptyTenant(t *testing.T) {
	repo := &fakeAnomalyRepo{}
	d := newTestDetector(repo, &fakeDirectory{ids: []uuid.UUID{uuid.New()}}, quietTenantMetrics(), quietSystemMetrics(),
		&fakeUserStats{total: 0, inactive: 0}, nil)

	require.NoError(t, d.RunCycle(context.Background()))
	assert.Empty(t, repo.byType(TypeUserChurn))
}

func TestPlatformRulesEmitWithoutTenantScope(t *testing.T) {
	repo := &fakeAnomalyRepo{}
	sm := quietSystemMetrics()
	sm.current[metrics.MetricMemoryUsage] = 84
	sm.reference[metrics.MetricMemoryUsage] = 60 // +40% -> critical

	d := newTestDetector(repo, &fakeDirectory{}, quietTenantMetrics(), sm, &fakeUserStats{}, nil)
	require.NoError(t, d.RunCycle(context.Background()))

	mem := repo.byType(TypeHighMemory)
	require.Len(t, mem, 1)
	assert.Nil(t, mem[0].TenantID)
	assert.Equal(t, SeverityCritical, mem[0].Severity)
}

func TestInfoAnomaliesAreNotPublished(t *testing.T) {
	repo := &fakeAnomalyRepo{}
	pub := &capturingPublisher{}

	// Churn exactly at the boundary minus epsilon stays info and never
	// reaches the publisher; below warning nothing persists either.
	d := newTestDetector(repo, &fakeDirectory{ids: []uuid.UUID{uuid.New()}}, quietTenantMetrics(), quietSystemMetrics(),
		&fakeUserStats{total: 100, inactive: 14}, pub)

	require.NoError(t, d.RunCycle(context.Background()))
	assert.Empty(t, repo.anomalies)
	assert.Empty(t, pub.published)
}

func TestRunCycleEvaluatesEveryTenant(t *testing.T) {
	ids := []uuid.UUID{uuid.New(), uuid.New(), uuid.New()}
	repo := &fakeAnomalyRepo{}

	d := newTestDetector(repo, &fakeDirectory{ids: ids}, quietTenantMetrics(), quietSystemMetrics(),
		&fakeUserStats{total: 10, inactive: 5}, nil) // 50% churn everywhere

	require.NoError(t, d.RunCycle(context.Background()))
	assert.Len(t, repo.byType(TypeUserChurn), len(ids))
}
