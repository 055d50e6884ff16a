// Package anomaly provides the anomaly domain model, the deterministic
// severity rules, and the per-tenant detection engine. Detection compares a
// current metric value against a prior-period reference value; anything
// crossing a type-specific percentage-change threshold becomes an Anomaly.
package anomaly

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/rizrmd/travel-sub003/internal/database/models"
)

// AnomalyType represents the type of anomaly detected
type AnomalyType string

const (
	TypeActivityDrop  AnomalyType = "activity_drop"
	TypeErrorSpike    AnomalyType = "error_spike"
	TypeAPIUsageSpike AnomalyType = "api_usage_spike"
	TypeRevenueDrop   AnomalyType = "revenue_drop"
	TypeUserChurn     AnomalyType = "user_churn"
	TypeSlowPerf      AnomalyType = "slow_performance"
	TypeHighMemory    AnomalyType = "high_memory"
	TypeDiskSpaceLow  AnomalyType = "disk_space_low"
)

// Severity represents the severity level of an anomaly
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Status represents the current status of an anomaly
type Status string

const (
	StatusDetected      Status = "detected"
	StatusAcknowledged  Status = "acknowledged"
	StatusResolved      Status = "resolved"
	StatusFalsePositive Status = "false_positive"
)

// Channel identifies an outbound alert channel
type Channel string

const (
	ChannelEmail Channel = "email"
	ChannelSlack Channel = "slack"
	ChannelSMS   Channel = "sms"
)

// ErrInvalidTransition is returned when a status transition is not allowed
// from the anomaly's current state. Terminal states reject all transitions.
var ErrInvalidTransition = errors.New("invalid anomaly status transition")

// ThresholdPair holds the (warning%, critical%) change thresholds for an
// anomaly type. These operate on percentage change, not absolute values,
// and encode product-tuned sensitivity per type.
type ThresholdPair struct {
	Warning  float64
	Critical float64
}

// changeThresholds is the fixed per-type threshold table
var changeThresholds = map[AnomalyType]ThresholdPair{
	TypeActivityDrop:  {Warning: 30, Critical: 50},
	TypeErrorSpike:    {Warning: 100, Critical: 200},
	TypeAPIUsageSpike: {Warning: 150, Critical: 300},
	TypeRevenueDrop:   {Warning: 20, Critical: 40},
	TypeUserChurn:     {Warning: 15, Critical: 30},
	TypeSlowPerf:      {Warning: 50, Critical: 100},
	TypeHighMemory:    {Warning: 20, Critical: 35},
	TypeDiskSpaceLow:  {Warning: 10, Critical: 20},
}

// GetThresholdPair returns the change-threshold pair for an anomaly type
func GetThresholdPair(anomalyType AnomalyType) (ThresholdPair, bool) {
	p, ok := changeThresholds[anomalyType]
	return p, ok
}

// DetermineSeverity maps a percentage change to a severity using the
// type's threshold pair: >= critical -> critical, >= warning -> warning,
// otherwise info.
func DetermineSeverity(anomalyType AnomalyType, changePct float64) Severity {
	pair, ok := changeThresholds[anomalyType]
	if !ok {
		return SeverityInfo
	}

	switch {
	case changePct >= pair.Critical:
		return SeverityCritical
	case changePct >= pair.Warning:
		return SeverityWarning
	default:
		return SeverityInfo
	}
}

// Anomaly represents a detected deviation from expected platform behavior.
// A nil TenantID marks a platform-wide anomaly.
type Anomaly struct {
	ID              uuid.UUID      `gorm:"type:uuid;primary_key;default:gen_random_uuid()" json:"id"`
	TenantID        *uuid.UUID     `gorm:"type:uuid;index" json:"tenant_id,omitempty"`
	Type            AnomalyType    `gorm:"not null;index" json:"type"`
	Severity        Severity       `gorm:"not null;index" json:"severity"`
	Description     string         `gorm:"not null" json:"description"`
	Status          Status         `gorm:"not null;default:'detected';index" json:"status"`
	Metadata        models.JSONMap `gorm:"type:jsonb" json:"metadata,omitempty"`
	DetectedAt      time.Time      `gorm:"not null;index" json:"detected_at"`
	ResolvedAt      *time.Time     `json:"resolved_at,omitempty"`
	ResolutionNotes string         `json:"resolution_notes,omitempty"`
}

// TableName returns the table name for Anomaly
func (Anomaly) TableName() string {
	return "anomalies"
}

// IsTerminal reports whether the anomaly is in a terminal state
func (a *Anomaly) IsTerminal() bool {
	return a.Status == StatusResolved || a.Status == StatusFalsePositive
}

// Acknowledge transitions detected -> acknowledged. It is a no-op from
// acknowledged and rejected from terminal states.
func (a *Anomaly) Acknowledge() error {
	switch a.Status {
	case StatusDetected:
		a.Status = StatusAcknowledged
		return nil
	case StatusAcknowledged:
		return nil
	default:
		return ErrInvalidTransition
	}
}

// Resolve transitions detected or acknowledged -> resolved with operator
// notes. Rejected from terminal states without mutating history.
func (a *Anomaly) Resolve(notes string) error {
	if a.IsTerminal() {
		return ErrInvalidTransition
	}

	now := time.Now().UTC()
	a.Status = StatusResolved
	a.ResolvedAt = &now
	a.ResolutionNotes = notes
	return nil
}

// MarkFalsePositive transitions detected or acknowledged -> false_positive
// with the operator's reasoning. Rejected from terminal states.
func (a *Anomaly) MarkFalsePositive(reason string) error {
	if a.IsTerminal() {
		return ErrInvalidTransition
	}

	now := time.Now().UTC()
	a.Status = StatusFalsePositive
	a.ResolvedAt = &now
	a.ResolutionNotes = reason
	return nil
}

// ShouldTriggerAlert reports whether this anomaly warrants alert dispatch.
// Info-level anomalies never alert, and an anomaly alerting once is enough:
// any status beyond detected suppresses re-dispatch.
func (a *Anomaly) ShouldTriggerAlert() bool {
	return a.Severity != SeverityInfo && a.Status == StatusDetected
}

// RequiresImmediateAction reports whether an operator should be paged now
func (a *Anomaly) RequiresImmediateAction() bool {
	return a.Severity == SeverityCritical && a.Status == StatusDetected
}

// AlertChannels returns the channel fan-out for the anomaly's severity
func (a *Anomaly) AlertChannels() []Channel {
	switch a.Severity {
	case SeverityCritical:
		return []Channel{ChannelEmail, ChannelSlack, ChannelSMS}
	case SeverityWarning:
		return []Channel{ChannelEmail, ChannelSlack}
	default:
		return []Channel{ChannelEmail}
	}
}

// recommendedActions holds the fixed per-type operator runbooks
var recommendedActions = map[AnomalyType][]string{
	TypeActivityDrop: {
		"Check whether the tenant has an ongoing service disruption",
		"Review recent deployments affecting the tenant's booking flows",
		"Compare login and session counts against the previous week",
		"Contact the tenant admin if the drop persists beyond 24 hours",
	},
	TypeErrorSpike: {
		"Inspect application error logs for the spiking tenant",
		"Check for failing third-party integrations (payment gateway, visa API)",
		"Verify recent configuration or deployment changes",
		"Roll back the latest release if errors correlate with it",
	},
	TypeAPIUsageSpike: {
		"Verify the traffic is legitimate and not an abusive client",
		"Check per-endpoint breakdown for scraping patterns",
		"Consider tightening the tenant's API rate limits",
		"Notify the tenant if usage will exceed plan quotas",
	},
	TypeRevenueDrop: {
		"Compare booking volume against the previous month",
		"Check payment gateway success rates for failures",
		"Review seasonal patterns before escalating",
		"Flag the account to customer success for follow-up",
	},
	TypeUserChurn: {
		"Identify which user cohorts stopped logging in",
		"Check for unresolved support tickets from the tenant",
		"Review recent pricing or feature changes",
		"Schedule a retention call with the tenant admin",
	},
	TypeSlowPerf: {
		"Check database slow-query log and connection pool saturation",
		"Review API p95 latency per endpoint",
		"Inspect cache hit rate for regressions",
		"Scale out application instances if load-driven",
	},
	TypeHighMemory: {
		"Inspect memory usage per process for leaks",
		"Check for unusually large report or export jobs",
		"Restart affected workers during a low-traffic window",
		"Raise instance memory limits if growth is organic",
	},
	TypeDiskSpaceLow: {
		"Prune expired uploads and temporary files",
		"Verify metric and log retention sweeps are running",
		"Archive old documents to object storage",
		"Expand the volume if usage growth is legitimate",
	},
}

// RecommendedActions returns the fixed remediation checklist for a type.
// Presentation data for operator runbooks; order is meaningful.
func RecommendedActions(anomalyType AnomalyType) []string {
	actions, ok := recommendedActions[anomalyType]
	if !ok {
		return nil
	}
	out := make([]string, len(actions))
	copy(out, actions)
	return out
}

// Filter contains filtering options for anomaly queries
type Filter struct {
	TenantID   *uuid.UUID    `json:"tenant_id,omitempty"`
	Types      []AnomalyType `json:"types,omitempty"`
	Severities []Severity    `json:"severities,omitempty"`
	Statuses   []Status      `json:"statuses,omitempty"`
	From       *time.Time    `json:"from,omitempty"`
	To         *time.Time    `json:"to,omitempty"`
	Limit      int           `json:"limit,omitempty"`
	Offset     int           `json:"offset,omitempty"`
}
