// Package alerting turns detected anomalies into outbound notifications.
// Dispatch is queue based: detectors publish anomalies, a worker pool fans
// each one out to its severity-appropriate channels, and a shared cache
// enforces one alert per (tenant, anomaly type) per rate-limit window.
package alerting

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/rizrmd/travel-sub003/internal/database/models"
	"github.com/rizrmd/travel-sub003/pkg/anomaly"
)

// AlertStatus represents the delivery state of an alert
type AlertStatus string

const (
	AlertStatusPending      AlertStatus = "pending"
	AlertStatusSent         AlertStatus = "sent"
	AlertStatusFailed       AlertStatus = "failed"
	AlertStatusAcknowledged AlertStatus = "acknowledged"
	AlertStatusSuppressed   AlertStatus = "suppressed"
)

// Alert represents a single notification attempt on one channel. An anomaly
// fanning out to three channels produces three alert rows, each with its own
// delivery outcome.
type Alert struct {
	ID             uuid.UUID        `gorm:"type:uuid;primary_key;default:gen_random_uuid()" json:"id"`
	AnomalyID      uuid.UUID        `gorm:"type:uuid;not null;index" json:"anomaly_id"`
	TenantID       *uuid.UUID       `gorm:"type:uuid;index" json:"tenant_id,omitempty"`
	Channel        anomaly.Channel  `gorm:"not null" json:"channel"`
	Recipient      string           `gorm:"not null" json:"recipient"`
	Subject        string           `gorm:"not null" json:"subject"`
	Body           string           `gorm:"type:text" json:"body"`
	Severity       anomaly.Severity `gorm:"not null;index" json:"severity"`
	Status         AlertStatus      `gorm:"not null;default:'pending';index" json:"status"`
	Error          string           `json:"error,omitempty"`
	Metadata       models.JSONMap   `gorm:"type:jsonb" json:"metadata,omitempty"`
	CreatedAt      time.Time        `gorm:"not null;index" json:"created_at"`
	SentAt         *time.Time       `json:"sent_at,omitempty"`
	AcknowledgedAt *time.Time       `json:"acknowledged_at,omitempty"`
	AcknowledgedBy string           `json:"acknowledged_by,omitempty"`
}

// TableName returns the table name for Alert
func (Alert) TableName() string {
	return "alerts"
}

// Acknowledge marks a delivered alert as seen by an operator
func (a *Alert) Acknowledge(operator string) {
	now := time.Now().UTC()
	a.Status = AlertStatusAcknowledged
	a.AcknowledgedAt = &now
	a.AcknowledgedBy = operator
}

// AlertFilter contains filtering options for alert history queries
type AlertFilter struct {
	TenantID   *uuid.UUID        `json:"tenant_id,omitempty"`
	AnomalyID  *uuid.UUID        `json:"anomaly_id,omitempty"`
	Channels   []anomaly.Channel `json:"channels,omitempty"`
	Severities []anomaly.Severity `json:"severities,omitempty"`
	Statuses   []AlertStatus     `json:"statuses,omitempty"`
	From       *time.Time        `json:"from,omitempty"`
	To         *time.Time        `json:"to,omitempty"`
	Limit      int               `json:"limit,omitempty"`
	Offset     int               `json:"offset,omitempty"`
}

// AlertRepository defines the interface for alert persistence
type AlertRepository interface {
	// Create stores a new alert row
	Create(ctx context.Context, alert *Alert) error

	// GetByID retrieves an alert by ID
	GetByID(ctx context.Context, id uuid.UUID) (*Alert, error)

	// Update persists a mutated alert (delivery outcome, acknowledgement)
	Update(ctx context.Context, alert *Alert) error

	// List retrieves alert history with filtering and pagination
	List(ctx context.Context, filter *AlertFilter) ([]*Alert, error)

	// ListByAnomaly retrieves all alerts produced for one anomaly
	ListByAnomaly(ctx context.Context, anomalyID uuid.UUID) ([]*Alert, error)
}

// ChannelSender delivers an alert on one channel. Implementations must be
// safe for concurrent use by multiple dispatch workers.
type ChannelSender interface {
	// Channel returns the channel this sender serves
	Channel() anomaly.Channel

	// Send delivers the alert to its recipient
	Send(ctx context.Context, alert *Alert) error
}
