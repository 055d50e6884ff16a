package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/rizrmd/travel-sub003/pkg/metrics"
)

// MetricRepository implements metrics.Repository on PostgreSQL. Window
// queries are half-open [from, to).
type MetricRepository struct {
	db *gorm.DB
}

// NewMetricRepository creates a metric repository
func NewMetricRepository(conn *Connection) *MetricRepository {
	return &MetricRepository{db: conn.DB()}
}

// SaveSystemMetrics stores one batch of platform samples
func (r *MetricRepository) SaveSystemMetrics(ctx context.Context, rows []*metrics.SystemMetric) error {
	if len(rows) == 0 {
		return nil
	}
	if err := r.db.WithContext(ctx).Create(rows).Error; err != nil {
		return fmt.Errorf("failed to save system metrics: %w", err)
	}
	return nil
}

// SaveTenantMetrics stores one batch of tenant samples
func (r *MetricRepository) SaveTenantMetrics(ctx context.Context, rows []*metrics.TenantMetric) error {
	if len(rows) == 0 {
		return nil
	}
	if err := r.db.WithContext(ctx).Create(rows).Error; err != nil {
		return fmt.Errorf("failed to save tenant metrics: %w", err)
	}
	return nil
}

// LatestSystemMetrics returns the most recent sample of every system metric
// type
func (r *MetricRepository) LatestSystemMetrics(ctx context.Context) ([]*metrics.SystemMetric, error) {
	var rows []*metrics.SystemMetric
	err := r.db.WithContext(ctx).
		Raw(`SELECT DISTINCT ON (metric_type) *
		     FROM system_metrics
		     ORDER BY metric_type, recorded_at DESC`).
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load latest system metrics: %w", err)
	}
	return rows, nil
}

// AverageSystemValue averages a system metric over a window. Empty windows
// average to zero.
func (r *MetricRepository) AverageSystemValue(ctx context.Context, metricType metrics.MetricType, from, to time.Time) (float64, error) {
	var avg float64
	err := r.db.WithContext(ctx).
		Model(&metrics.SystemMetric{}).
		Select("COALESCE(AVG(value), 0)").
		Where("metric_type = ? AND recorded_at >= ? AND recorded_at < ?", string(metricType), from, to).
		Scan(&avg).Error
	if err != nil {
		return 0, fmt.Errorf("failed to average system metric %s: %w", metricType, err)
	}
	return avg, nil
}

// SystemMetricHistory returns samples of one type over a window, oldest first
func (r *MetricRepository) SystemMetricHistory(ctx context.Context, metricType metrics.MetricType, from, to time.Time) ([]*metrics.SystemMetric, error) {
	var rows []*metrics.SystemMetric
	err := r.db.WithContext(ctx).
		Where("metric_type = ? AND recorded_at >= ? AND recorded_at < ?", string(metricType), from, to).
		Order("recorded_at ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load system metric history: %w", err)
	}
	return rows, nil
}

// LatestTenantValue returns the most recent sample of a tenant metric, or
// zero when the tenant has no samples of that kind.
func (r *MetricRepository) LatestTenantValue(ctx context.Context, tenantID uuid.UUID, metricType metrics.MetricType) (float64, error) {
	var row metrics.TenantMetric
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND metric_type = ?", tenantID, string(metricType)).
		Order("recorded_at DESC").
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to load latest tenant metric %s: %w", metricType, err)
	}
	return row.Value, nil
}

// AverageTenantValue averages a tenant metric over a window
func (r *MetricRepository) AverageTenantValue(ctx context.Context, tenantID uuid.UUID, metricType metrics.MetricType, from, to time.Time) (float64, error) {
	var avg float64
	err := r.db.WithContext(ctx).
		Model(&metrics.TenantMetric{}).
		Select("COALESCE(AVG(value), 0)").
		Where("tenant_id = ? AND metric_type = ? AND recorded_at >= ? AND recorded_at < ?",
			tenantID, string(metricType), from, to).
		Scan(&avg).Error
	if err != nil {
		return 0, fmt.Errorf("failed to average tenant metric %s: %w", metricType, err)
	}
	return avg, nil
}

// SumTenantValue sums a tenant metric over a window
func (r *MetricRepository) SumTenantValue(ctx context.Context, tenantID uuid.UUID, metricType metrics.MetricType, from, to time.Time) (float64, error) {
	var sum float64
	err := r.db.WithContext(ctx).
		Model(&metrics.TenantMetric{}).
		Select("COALESCE(SUM(value), 0)").
		Where("tenant_id = ? AND metric_type = ? AND recorded_at >= ? AND recorded_at < ?",
			tenantID, string(metricType), from, to).
		Scan(&sum).Error
	if err != nil {
		return 0, fmt.Errorf("failed to sum tenant metric %s: %w", metricType, err)
	}
	return sum, nil
}

// TenantMetricHistory returns samples of one type for one tenant over a
// window, oldest first
func (r *MetricRepository) TenantMetricHistory(ctx context.Context, tenantID uuid.UUID, metricType metrics.MetricType, from, to time.Time) ([]*metrics.TenantMetric, error) {
	var rows []*metrics.TenantMetric
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND metric_type = ? AND recorded_at >= ? AND recorded_at < ?",
			tenantID, string(metricType), from, to).
		Order("recorded_at ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load tenant metric history: %w", err)
	}
	return rows, nil
}

// DeleteSystemMetricsBefore removes system samples older than the cutoff
func (r *MetricRepository) DeleteSystemMetricsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("recorded_at < ?", cutoff).
		Delete(&metrics.SystemMetric{})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to prune system metrics: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// DeleteTenantMetricsBefore removes tenant samples older than the cutoff
func (r *MetricRepository) DeleteTenantMetricsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("recorded_at < ?", cutoff).
		Delete(&metrics.TenantMetric{})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to prune tenant metrics: %w", result.Error)
	}
	return result.RowsAffected, nil
}
