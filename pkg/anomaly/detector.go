package anomaly

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/rizrmd/travel-sub003/internal/database/models"
	"github.com/rizrmd/travel-sub003/pkg/logger"
	"github.com/rizrmd/travel-sub003/pkg/metrics"
)

// TenantMetricSource reads current and reference tenant metric values
type TenantMetricSource interface {
	// LatestValue returns the most recent sample of a tenant metric
	LatestValue(ctx context.Context, tenantID uuid.UUID, metricType metrics.MetricType) (float64, error)

	// AverageValue averages samples over a trailing window
	AverageValue(ctx context.Context, tenantID uuid.UUID, metricType metrics.MetricType, from, to time.Time) (float64, error)

	// SumValue sums samples over a trailing window
	SumValue(ctx context.Context, tenantID uuid.UUID, metricType metrics.MetricType, from, to time.Time) (float64, error)
}

// SystemMetricSource reads current and reference platform metric values
type SystemMetricSource interface {
	AverageValue(ctx context.Context, metricType metrics.MetricType, from, to time.Time) (float64, error)
}

// UserStatsProvider supplies user cohort counts for the churn rule
type UserStatsProvider interface {
	// UserCounts returns the total and inactive user counts for a tenant
	UserCounts(ctx context.Context, tenantID uuid.UUID) (total, inactive int64, err error)
}

// DetectorConfig contains configuration for the anomaly detector
type DetectorConfig struct {
	// MinErrorCount is the floor below which the error spike rule never
	// fires regardless of percentage change
	MinErrorCount float64 `yaml:"min_error_count" json:"min_error_count"`

	// MaxConcurrentTenants bounds parallel tenant evaluation
	MaxConcurrentTenants int `yaml:"max_concurrent_tenants" json:"max_concurrent_tenants"`
}

// DefaultDetectorConfig returns default detector configuration
func DefaultDetectorConfig() *DetectorConfig {
	return &DetectorConfig{
		MinErrorCount:        10,
		MaxConcurrentTenants: 8,
	}
}

// Detector runs one evaluation pass per cycle across all active tenants,
// plus a platform-wide pass, and persists anomalies for rules whose change
// percentage crosses the warning threshold.
type Detector struct {
	config        *DetectorConfig
	repository    Repository
	tenants       TenantDirectory
	tenantMetrics TenantMetricSource
	systemMetrics SystemMetricSource
	userStats     UserStatsProvider
	publisher     Publisher
	log           *logger.Logger
	tracer        trace.Tracer
}

// NewDetector creates a new anomaly detector
func NewDetector(
	config *DetectorConfig,
	repository Repository,
	tenants TenantDirectory,
	tenantMetrics TenantMetricSource,
	systemMetrics SystemMetricSource,
	userStats UserStatsProvider,
	publisher Publisher,
	log *logger.Logger,
) *Detector {
	if config == nil {
		config = DefaultDetectorConfig()
	}
	if log == nil {
		log = logger.GetDefault()
	}

	return &Detector{
		config:        config,
		repository:    repository,
		tenants:       tenants,
		tenantMetrics: tenantMetrics,
		systemMetrics: systemMetrics,
		userStats:     userStats,
		publisher:     publisher,
		log:           log,
		tracer:        otel.Tracer("anomaly-detector"),
	}
}

// ruleResult carries a rule evaluation outcome: nil anomaly means the rule
// did not fire (below threshold, missing data, or guarded out).
type ruleResult struct {
	anomaly *Anomaly
	err     error
}

// tenantRule evaluates one detection rule for one tenant
type tenantRule struct {
	name string
	eval func(ctx context.Context, tenantID uuid.UUID) ruleResult
}

// RunCycle evaluates all detection rules for the platform and every active
// tenant. Failures are contained per (tenant, rule); the cycle itself only
// errors when the tenant directory is unreachable.
func (d *Detector) RunCycle(ctx context.Context) error {
	ctx, span := d.tracer.Start(ctx, "anomaly_detector.run_cycle")
	defer span.End()

	d.runPlatformRules(ctx)

	tenantIDs, err := d.tenants.ListActiveTenantIDs(ctx)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to list active tenants: %w", err)
	}

	span.SetAttributes(attribute.Int("tenant_count", len(tenantIDs)))

	semaphore := make(chan struct{}, d.config.MaxConcurrentTenants)
	done := make(chan struct{}, len(tenantIDs))

	for _, tenantID := range tenantIDs {
		go func(id uuid.UUID) {
			semaphore <- struct{}{}
			defer func() {
				<-semaphore
				done <- struct{}{}
			}()
			d.evaluateTenant(ctx, id)
		}(tenantID)
	}

	for i := 0; i < len(tenantIDs); i++ {
		<-done
	}

	return nil
}

// evaluateTenant runs every tenant rule for one tenant. Rules within a
// tenant run sequentially so anomaly writes for the tenant are serialized.
func (d *Detector) evaluateTenant(ctx context.Context, tenantID uuid.UUID) {
	defer func() {
		if r := recover(); r != nil {
			d.log.Error("panic evaluating tenant %s: %v", tenantID, r)
		}
	}()

	rules := []tenantRule{
		{name: "activity_drop", eval: d.evalActivityDrop},
		{name: "error_spike", eval: d.evalErrorSpike},
		{name: "api_usage_spike", eval: d.evalAPIUsageSpike},
		{name: "revenue_drop", eval: d.evalRevenueDrop},
		{name: "user_churn", eval: d.evalUserChurn},
	}

	for _, rule := range rules {
		result := rule.eval(ctx, tenantID)
		if result.err != nil {
			d.log.WithFields(map[string]interface{}{
				"tenant_id": tenantID.String(),
				"rule":      rule.name,
			}).Warn("detection rule failed: %v", result.err)
			continue
		}
		if result.anomaly == nil {
			continue
		}
		d.emit(ctx, result.anomaly)
	}
}

// runPlatformRules evaluates the platform-wide rules (no tenant scope)
func (d *Detector) runPlatformRules(ctx context.Context) {
	rules := []struct {
		name string
		eval func(ctx context.Context) ruleResult
	}{
		{name: "slow_performance", eval: d.evalSlowPerformance},
		{name: "high_memory", eval: d.evalHighMemory},
		{name: "disk_space_low", eval: d.evalDiskSpaceLow},
	}

	for _, rule := range rules {
		result := rule.eval(ctx)
		if result.err != nil {
			d.log.WithField("rule", rule.name).Warn("platform detection rule failed: %v", result.err)
			continue
		}
		if result.anomaly == nil {
			continue
		}
		d.emit(ctx, result.anomaly)
	}
}

// emit persists an anomaly and, when it warrants alerting, publishes it to
// the dispatcher. Persistence happens before publish: dispatch reads the
// anomaly's assigned id.
func (d *Detector) emit(ctx context.Context, a *Anomaly) {
	if err := d.repository.Create(ctx, a); err != nil {
		d.log.Error("failed to persist anomaly type=%s: %v", a.Type, err)
		return
	}

	d.log.WithFields(map[string]interface{}{
		"anomaly_id": a.ID.String(),
		"type":       string(a.Type),
		"severity":   string(a.Severity),
	}).Info("anomaly detected")

	if !a.ShouldTriggerAlert() {
		return
	}

	if d.publisher == nil {
		return
	}
	if err := d.publisher.Publish(ctx, a); err != nil {
		d.log.Error("failed to publish anomaly %s for dispatch: %v", a.ID, err)
	}
}

// Tenant rules. All reference windows are trailing: "yesterday" is the
// window 48h..24h ago, "prior hour" is 120m..60m ago, "last month" is
// 60d..30d ago.

func (d *Detector) evalActivityDrop(ctx context.Context, tenantID uuid.UUID) ruleResult {
	current, err := d.tenantMetrics.LatestValue(ctx, tenantID, metrics.MetricActivityScore)
	if err != nil {
		return ruleResult{err: err}
	}

	now := time.Now().UTC()
	reference, err := d.tenantMetrics.AverageValue(ctx, tenantID, metrics.MetricActivityScore,
		now.Add(-48*time.Hour), now.Add(-24*time.Hour))
	if err != nil {
		return ruleResult{err: err}
	}
	if reference == 0 {
		return ruleResult{}
	}

	changePct := (reference - current) / reference * 100
	pair := changeThresholds[TypeActivityDrop]
	if changePct < pair.Warning {
		return ruleResult{}
	}

	return ruleResult{anomaly: d.buildAnomaly(
		&tenantID,
		TypeActivityDrop,
		changePct,
		fmt.Sprintf("Tenant activity score dropped %.1f%% (from %.1f to %.1f)", changePct, reference, current),
		reference, current,
	)}
}

func (d *Detector) evalErrorSpike(ctx context.Context, tenantID uuid.UUID) ruleResult {
	now := time.Now().UTC()
	current, err := d.tenantMetrics.SumValue(ctx, tenantID, metrics.MetricErrorCount,
		now.Add(-time.Hour), now)
	if err != nil {
		return ruleResult{err: err}
	}
	// Low absolute error counts are noise regardless of relative change.
	if current < d.config.MinErrorCount {
		return ruleResult{}
	}

	reference, err := d.tenantMetrics.SumValue(ctx, tenantID, metrics.MetricErrorCount,
		now.Add(-2*time.Hour), now.Add(-time.Hour))
	if err != nil {
		return ruleResult{err: err}
	}
	if reference == 0 {
		return ruleResult{}
	}

	changePct := (current - reference) / reference * 100
	pair := changeThresholds[TypeErrorSpike]
	if changePct < pair.Warning {
		return ruleResult{}
	}

	return ruleResult{anomaly: d.buildAnomaly(
		&tenantID,
		TypeErrorSpike,
		changePct,
		fmt.Sprintf("Error count spiked %.1f%% (from %.0f to %.0f in the last hour)", changePct, reference, current),
		reference, current,
	)}
}

func (d *Detector) evalAPIUsageSpike(ctx context.Context, tenantID uuid.UUID) ruleResult {
	now := time.Now().UTC()
	current, err := d.tenantMetrics.SumValue(ctx, tenantID, metrics.MetricAPICallCount,
		now.Add(-time.Hour), now)
	if err != nil {
		return ruleResult{err: err}
	}

	reference, err := d.tenantMetrics.SumValue(ctx, tenantID, metrics.MetricAPICallCount,
		now.Add(-2*time.Hour), now.Add(-time.Hour))
	if err != nil {
		return ruleResult{err: err}
	}
	if reference == 0 {
		return ruleResult{}
	}

	changePct := (current - reference) / reference * 100
	pair := changeThresholds[TypeAPIUsageSpike]
	if changePct < pair.Warning {
		return ruleResult{}
	}

	return ruleResult{anomaly: d.buildAnomaly(
		&tenantID,
		TypeAPIUsageSpike,
		changePct,
		fmt.Sprintf("API usage spiked %.1f%% (from %.0f to %.0f calls per hour)", changePct, reference, current),
		reference, current,
	)}
}

func (d *Detector) evalRevenueDrop(ctx context.Context, tenantID uuid.UUID) ruleResult {
	now := time.Now().UTC()
	current, err := d.tenantMetrics.SumValue(ctx, tenantID, metrics.MetricRevenue,
		now.Add(-30*24*time.Hour), now)
	if err != nil {
		return ruleResult{err: err}
	}

	reference, err := d.tenantMetrics.SumValue(ctx, tenantID, metrics.MetricRevenue,
		now.Add(-60*24*time.Hour), now.Add(-30*24*time.Hour))
	if err != nil {
		return ruleResult{err: err}
	}
	if reference == 0 {
		return ruleResult{}
	}

	changePct := (reference - current) / reference * 100
	pair := changeThresholds[TypeRevenueDrop]
	if changePct < pair.Warning {
		return ruleResult{}
	}

	return ruleResult{anomaly: d.buildAnomaly(
		&tenantID,
		TypeRevenueDrop,
		changePct,
		fmt.Sprintf("Revenue dropped %.1f%% (from %.2f to %.2f month over month)", changePct, reference, current),
		reference, current,
	)}
}

func (d *Detector) evalUserChurn(ctx context.Context, tenantID uuid.UUID) ruleResult {
	total, inactive, err := d.userStats.UserCounts(ctx, tenantID)
	if err != nil {
		return ruleResult{err: err}
	}
	if total == 0 {
		return ruleResult{}
	}

	churnPct := float64(inactive) / float64(total) * 100
	pair := changeThresholds[TypeUserChurn]
	if churnPct < pair.Warning {
		return ruleResult{}
	}

	return ruleResult{anomaly: d.buildAnomaly(
		&tenantID,
		TypeUserChurn,
		churnPct,
		fmt.Sprintf("User churn at %.1f%% (%d of %d users inactive)", churnPct, inactive, total),
		float64(total), float64(inactive),
	)}
}

// Platform rules compare the current hour against the prior hour.

func (d *Detector) evalSlowPerformance(ctx context.Context) ruleResult {
	return d.evalSystemSpike(ctx, metrics.MetricAPIResponseTime, TypeSlowPerf,
		"API p95 latency rose %.1f%% (from %.0fms to %.0fms)")
}

func (d *Detector) evalHighMemory(ctx context.Context) ruleResult {
	return d.evalSystemSpike(ctx, metrics.MetricMemoryUsage, TypeHighMemory,
		"Memory usage rose %.1f%% (from %.1f%% to %.1f%%)")
}

func (d *Detector) evalDiskSpaceLow(ctx context.Context) ruleResult {
	return d.evalSystemSpike(ctx, metrics.MetricDiskUsage, TypeDiskSpaceLow,
		"Disk usage rose %.1f%% (from %.1f%% to %.1f%%)")
}

func (d *Detector) evalSystemSpike(ctx context.Context, metricType metrics.MetricType, anomalyType AnomalyType, template string) ruleResult {
	now := time.Now().UTC()
	current, err := d.systemMetrics.AverageValue(ctx, metricType, now.Add(-time.Hour), now)
	if err != nil {
		return ruleResult{err: err}
	}

	reference, err := d.systemMetrics.AverageValue(ctx, metricType,
		now.Add(-2*time.Hour), now.Add(-time.Hour))
	if err != nil {
		return ruleResult{err: err}
	}
	if reference == 0 {
		return ruleResult{}
	}

	changePct := (current - reference) / reference * 100
	pair := changeThresholds[anomalyType]
	if changePct < pair.Warning {
		return ruleResult{}
	}

	return ruleResult{anomaly: d.buildAnomaly(
		nil,
		anomalyType,
		changePct,
		fmt.Sprintf(template, changePct, reference, current),
		reference, current,
	)}
}

// buildAnomaly assembles a detected anomaly with severity derived from the
// type's threshold pair and the before/after values kept in metadata.
func (d *Detector) buildAnomaly(tenantID *uuid.UUID, anomalyType AnomalyType, changePct float64, description string, reference, current float64) *Anomaly {
	return &Anomaly{
		ID:          uuid.New(),
		TenantID:    tenantID,
		Type:        anomalyType,
		Severity:    DetermineSeverity(anomalyType, changePct),
		Description: description,
		Status:      StatusDetected,
		Metadata: models.JSONMap{
			"change_percentage": changePct,
			"reference_value":   reference,
			"current_value":     current,
		},
		DetectedAt: time.Now().UTC(),
	}
}
