package metrics

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Repository defines the interface for metric persistence and time-window
// reads. Window queries are half-open [from, to).
type Repository interface {
	// SaveSystemMetrics stores one batch of platform samples
	SaveSystemMetrics(ctx context.Context, metrics []*SystemMetric) error

	// SaveTenantMetrics stores one batch of tenant samples
	SaveTenantMetrics(ctx context.Context, metrics []*TenantMetric) error

	// LatestSystemMetrics returns the most recent sample of every system
	// metric type
	LatestSystemMetrics(ctx context.Context) ([]*SystemMetric, error)

	// AverageSystemValue averages a system metric over a window
	AverageSystemValue(ctx context.Context, metricType MetricType, from, to time.Time) (float64, error)

	// SystemMetricHistory returns samples of one type over a window, oldest
	// first
	SystemMetricHistory(ctx context.Context, metricType MetricType, from, to time.Time) ([]*SystemMetric, error)

	// LatestTenantValue returns the most recent sample of a tenant metric
	LatestTenantValue(ctx context.Context, tenantID uuid.UUID, metricType MetricType) (float64, error)

	// AverageTenantValue averages a tenant metric over a window
	AverageTenantValue(ctx context.Context, tenantID uuid.UUID, metricType MetricType, from, to time.Time) (float64, error)

	// SumTenantValue sums a tenant metric over a window
	SumTenantValue(ctx context.Context, tenantID uuid.UUID, metricType MetricType, from, to time.Time) (float64, error)

	// TenantMetricHistory returns samples of one type for one tenant over a
	// window, oldest first
	TenantMetricHistory(ctx context.Context, tenantID uuid.UUID, metricType MetricType, from, to time.Time) ([]*TenantMetric, error)

	// DeleteSystemMetricsBefore removes system samples older than the cutoff
	// and reports how many rows went
	DeleteSystemMetricsBefore(ctx context.Context, cutoff time.Time) (int64, error)

	// DeleteTenantMetricsBefore removes tenant samples older than the cutoff
	DeleteTenantMetricsBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// TenantStats is one tenant's raw activity numbers for a collection pass
type TenantStats struct {
	TenantID       uuid.UUID `json:"tenant_id"`
	UserCount      int64     `json:"user_count"`
	JamaahCount    int64     `json:"jamaah_count"`
	Revenue        float64   `json:"revenue"`
	ErrorCount     int64     `json:"error_count"`
	APICallCount   int64     `json:"api_call_count"`
	StorageUsedMB  float64   `json:"storage_used_mb"`
	ActiveSessions int64     `json:"active_sessions"`
}

// TenantStatsProvider reads per-tenant business counters from the
// operational store. The collector turns these into tenant metric samples.
type TenantStatsProvider interface {
	CollectTenantStats(ctx context.Context, tenantID uuid.UUID) (*TenantStats, error)
}
