// Package metrics provides the metric catalog, health classification, and
// the periodic collector for system-wide and per-tenant platform metrics.
package metrics

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/rizrmd/travel-sub003/internal/database/models"
)

// MetricType identifies a metric kind in the catalog
type MetricType string

// System metric catalog (platform-wide, 90-day retention)
const (
	MetricAPIResponseTime MetricType = "api_response_time_p95"
	MetricDBQueryTime     MetricType = "db_query_time_avg"
	MetricCacheHitRate    MetricType = "cache_hit_rate"
	MetricQueueLength     MetricType = "queue_length"
	MetricCPUUsage        MetricType = "cpu_usage"
	MetricMemoryUsage     MetricType = "memory_usage"
	MetricDiskUsage       MetricType = "disk_usage"
	MetricDBConnections   MetricType = "db_connections"
)

// Tenant metric catalog (per-tenant, 365-day retention)
const (
	MetricUserCount      MetricType = "user_count"
	MetricJamaahCount    MetricType = "jamaah_count"
	MetricRevenue        MetricType = "revenue"
	MetricActivityScore  MetricType = "activity_score"
	MetricErrorCount     MetricType = "error_count"
	MetricAPICallCount   MetricType = "api_call_count"
	MetricStorageUsed    MetricType = "storage_used"
	MetricActiveSessions MetricType = "active_sessions"
)

// HealthStatus classifies a metric value against its thresholds
type HealthStatus string

const (
	StatusHealthy  HealthStatus = "healthy"
	StatusDegraded HealthStatus = "degraded"
	StatusCritical HealthStatus = "critical"
)

// Retention windows per metric family
const (
	SystemMetricRetention = 90 * 24 * time.Hour
	TenantMetricRetention = 365 * 24 * time.Hour
)

// Threshold holds the fixed (warning, critical) pair for a metric kind.
// LowerIsWorse inverts the comparison for kinds where a falling value
// indicates trouble (cache hit rate).
type Threshold struct {
	Warning      float64
	Critical     float64
	LowerIsWorse bool
	Unit         string
}

// thresholds is the fixed classification table for the full catalog.
// Values are product-tuned; changing them shifts dashboard semantics.
var thresholds = map[MetricType]Threshold{
	MetricAPIResponseTime: {Warning: 500, Critical: 2000, Unit: "ms"},
	MetricDBQueryTime:     {Warning: 100, Critical: 500, Unit: "ms"},
	MetricCacheHitRate:    {Warning: 80, Critical: 50, LowerIsWorse: true, Unit: "%"},
	MetricQueueLength:     {Warning: 100, Critical: 1000, Unit: ""},
	MetricCPUUsage:        {Warning: 70, Critical: 90, Unit: "%"},
	MetricMemoryUsage:     {Warning: 75, Critical: 90, Unit: "%"},
	MetricDiskUsage:       {Warning: 80, Critical: 95, Unit: "%"},
	MetricDBConnections:   {Warning: 80, Critical: 95, Unit: ""},

	MetricErrorCount:     {Warning: 50, Critical: 200, Unit: ""},
	MetricAPICallCount:   {Warning: 10000, Critical: 50000, Unit: ""},
	MetricStorageUsed:    {Warning: 4096, Critical: 5120, Unit: "MB"},
	MetricActiveSessions: {Warning: 500, Critical: 1000, Unit: ""},
	MetricActivityScore:  {Warning: 40, Critical: 20, LowerIsWorse: true, Unit: ""},
}

// SystemMetricTypes returns the system metric catalog in collection order
func SystemMetricTypes() []MetricType {
	return []MetricType{
		MetricAPIResponseTime,
		MetricDBQueryTime,
		MetricCacheHitRate,
		MetricQueueLength,
		MetricCPUUsage,
		MetricMemoryUsage,
		MetricDiskUsage,
		MetricDBConnections,
	}
}

// TenantMetricTypes returns the tenant metric catalog in collection order
func TenantMetricTypes() []MetricType {
	return []MetricType{
		MetricUserCount,
		MetricJamaahCount,
		MetricRevenue,
		MetricActivityScore,
		MetricErrorCount,
		MetricAPICallCount,
		MetricStorageUsed,
		MetricActiveSessions,
	}
}

// GetThreshold returns the threshold pair for a metric kind
func GetThreshold(metricType MetricType) (Threshold, bool) {
	t, ok := thresholds[metricType]
	return t, ok
}

// SentinelCritical builds a critical-classifying sample for a metric kind
// whose sampler failed. The value sits exactly on the critical threshold in
// either direction, so a broken sampler surfaces on dashboards instead of
// going silently stale.
func SentinelCritical(metricType MetricType, reason string) Metric {
	value := 0.0
	if t, ok := thresholds[metricType]; ok {
		value = t.Critical
	}
	return Metric{
		Type:  metricType,
		Value: value,
		Metadata: models.JSONMap{
			"sentinel": true,
			"error":    reason,
		},
		RecordedAt: time.Now().UTC(),
	}
}

// Metric is an immutable observation of a single metric kind
type Metric struct {
	Type       MetricType     `json:"type"`
	Value      float64        `json:"value"`
	Metadata   models.JSONMap `json:"metadata,omitempty"`
	RecordedAt time.Time      `json:"recorded_at"`
}

// Classify evaluates a metric value against the fixed threshold table.
// It is a pure function of (metricType, value); kinds without thresholds
// (user_count, jamaah_count, revenue) are always healthy.
func Classify(metricType MetricType, value float64) HealthStatus {
	t, ok := thresholds[metricType]
	if !ok {
		return StatusHealthy
	}

	if t.LowerIsWorse {
		switch {
		case value <= t.Critical:
			return StatusCritical
		case value <= t.Warning:
			return StatusDegraded
		default:
			return StatusHealthy
		}
	}

	switch {
	case value >= t.Critical:
		return StatusCritical
	case value >= t.Warning:
		return StatusDegraded
	default:
		return StatusHealthy
	}
}

// Status classifies the metric against its threshold pair
func (m Metric) Status() HealthStatus {
	return Classify(m.Type, m.Value)
}

// Aggregate averages metrics of the same type into a single roll-up metric
// tagged aggregated=true with the sample count.
func Aggregate(samples []Metric) (Metric, error) {
	if len(samples) == 0 {
		return Metric{}, fmt.Errorf("cannot aggregate empty metric set")
	}

	metricType := samples[0].Type
	var sum float64
	for _, s := range samples {
		if s.Type != metricType {
			return Metric{}, fmt.Errorf("cannot aggregate mixed metric types: %s and %s", metricType, s.Type)
		}
		sum += s.Value
	}

	return Metric{
		Type:  metricType,
		Value: sum / float64(len(samples)),
		Metadata: models.JSONMap{
			"aggregated": true,
			"count":      len(samples),
		},
		RecordedAt: samples[len(samples)-1].RecordedAt,
	}, nil
}

// FormatValue renders a metric value with its unit for display.
// Presentation only; never consulted by Classify.
func FormatValue(metricType MetricType, value float64) string {
	t, ok := thresholds[metricType]
	if !ok || t.Unit == "" {
		return fmt.Sprintf("%.2f", value)
	}
	if t.Unit == "%" {
		return fmt.Sprintf("%.2f%%", value)
	}
	return fmt.Sprintf("%.2f %s", value, t.Unit)
}

// SystemMetric is a persisted platform-wide metric sample
type SystemMetric struct {
	ID         uuid.UUID      `gorm:"type:uuid;primary_key;default:gen_random_uuid()" json:"id"`
	MetricType string         `gorm:"not null;index:idx_system_metrics_type_time" json:"metric_type"`
	Value      float64        `gorm:"not null" json:"value"`
	Metadata   models.JSONMap `gorm:"type:jsonb" json:"metadata,omitempty"`
	RecordedAt time.Time      `gorm:"not null;index:idx_system_metrics_type_time" json:"recorded_at"`
}

// TableName returns the table name for SystemMetric
func (SystemMetric) TableName() string {
	return "system_metrics"
}

// TenantMetric is a persisted per-tenant metric sample
type TenantMetric struct {
	ID         uuid.UUID      `gorm:"type:uuid;primary_key;default:gen_random_uuid()" json:"id"`
	TenantID   uuid.UUID      `gorm:"type:uuid;not null;index:idx_tenant_metrics_tenant_type_time" json:"tenant_id"`
	MetricType string         `gorm:"not null;index:idx_tenant_metrics_tenant_type_time" json:"metric_type"`
	Value      float64        `gorm:"not null" json:"value"`
	Metadata   models.JSONMap `gorm:"type:jsonb" json:"metadata,omitempty"`
	RecordedAt time.Time      `gorm:"not null;index:idx_tenant_metrics_tenant_type_time" json:"recorded_at"`
}

// TableName returns the table name for TenantMetric
func (TenantMetric) TableName() string {
	return "tenant_metrics"
}

// ToMetric converts a persisted system metric row to the value object
func (m SystemMetric) ToMetric() Metric {
	return Metric{
		Type:       MetricType(m.MetricType),
		Value:      m.Value,
		Metadata:   m.Metadata,
		RecordedAt: m.RecordedAt,
	}
}

// ToMetric converts a persisted tenant metric row to the value object
func (m TenantMetric) ToMetric() Metric {
	return Metric{
		Type:       MetricType(m.MetricType),
		Value:      m.Value,
		Metadata:   m.Metadata,
		RecordedAt: m.RecordedAt,
	}
}

// CalculateActivityScore derives the 0-100 tenant engagement score from four
// weighted sub-metrics. Each term is capped at 25 and the total at 100; the
// weighting is a product decision and dashboards depend on exact parity.
func CalculateActivityScore(userCount, jamaahCount, apiCalls, activeSessions float64) float64 {
	score := clampTerm(25 * userCount / 10)
	score += clampTerm(25 * jamaahCount / 50)
	score += clampTerm(25 * apiCalls / 1000)
	score += clampTerm(25 * activeSessions / 5)
	if score > 100 {
		score = 100
	}
	return score
}

func clampTerm(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 25 {
		return 25
	}
	return v
}
