package database

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/rizrmd/travel-sub003/pkg/metrics"
)

// TenantMetricSource adapts the metric repository to the per-tenant read
// surface the detection rules consume.
type TenantMetricSource struct {
	repo metrics.Repository
}

// NewTenantMetricSource wraps a metric repository for rule evaluation
func NewTenantMetricSource(repo metrics.Repository) *TenantMetricSource {
	return &TenantMetricSource{repo: repo}
}

// LatestValue returns the most recent sample of a tenant metric
func (s *TenantMetricSource) LatestValue(ctx context.Context, tenantID uuid.UUID, metricType metrics.MetricType) (float64, error) {
	return s.repo.LatestTenantValue(ctx, tenantID, metricType)
}

// AverageValue averages tenant samples over a trailing window
func (s *TenantMetricSource) AverageValue(ctx context.Context, tenantID uuid.UUID, metricType metrics.MetricType, from, to time.Time) (float64, error) {
	return s.repo.AverageTenantValue(ctx, tenantID, metricType, from, to)
}

// SumValue sums tenant samples over a trailing window
func (s *TenantMetricSource) SumValue(ctx context.Context, tenantID uuid.UUID, metricType metrics.MetricType, from, to time.Time) (float64, error) {
	return s.repo.SumTenantValue(ctx, tenantID, metricType, from, to)
}

// SystemMetricSource adapts the metric repository to the platform-wide read
// surface the detection rules consume.
type SystemMetricSource struct {
	repo metrics.Repository
}

// NewSystemMetricSource wraps a metric repository for platform rules
func NewSystemMetricSource(repo metrics.Repository) *SystemMetricSource {
	return &SystemMetricSource{repo: repo}
}

// AverageValue averages platform samples over a trailing window
func (s *SystemMetricSource) AverageValue(ctx context.Context, metricType metrics.MetricType, from, to time.Time) (float64, error) {
	return s.repo.AverageSystemValue(ctx, metricType, from, to)
}
