package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/rizrmd/travel-sub003/pkg/alerting"
)

// AlertRepository implements alerting.AlertRepository on PostgreSQL
type AlertRepository struct {
	db *gorm.DB
}

// NewAlertRepository creates an alert repository
func NewAlertRepository(conn *Connection) *AlertRepository {
	return &AlertRepository{db: conn.DB()}
}

// Create stores a new alert row
func (r *AlertRepository) Create(ctx context.Context, alert *alerting.Alert) error {
	if err := r.db.WithContext(ctx).Create(alert).Error; err != nil {
		return fmt.Errorf("failed to create alert: %w", err)
	}
	return nil
}

// GetByID retrieves an alert by ID
func (r *AlertRepository) GetByID(ctx context.Context, id uuid.UUID) (*alerting.Alert, error) {
	var alert alerting.Alert
	err := r.db.WithContext(ctx).First(&alert, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("alert %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load alert %s: %w", id, err)
	}
	return &alert, nil
}

// Update persists a mutated alert
func (r *AlertRepository) Update(ctx context.Context, alert *alerting.Alert) error {
	if err := r.db.WithContext(ctx).Save(alert).Error; err != nil {
		return fmt.Errorf("failed to update alert %s: %w", alert.ID, err)
	}
	return nil
}

// List retrieves alert history with filtering and pagination, newest first
func (r *AlertRepository) List(ctx context.Context, filter *alerting.AlertFilter) ([]*alerting.Alert, error) {
	query := r.db.WithContext(ctx).Model(&alerting.Alert{})

	if filter != nil {
		if filter.TenantID != nil {
			query = query.Where("tenant_id = ?", *filter.TenantID)
		}
		if filter.AnomalyID != nil {
			query = query.Where("anomaly_id = ?", *filter.AnomalyID)
		}
		if len(filter.Channels) > 0 {
			query = query.Where("channel IN ?", filter.Channels)
		}
		if len(filter.Severities) > 0 {
			query = query.Where("severity IN ?", filter.Severities)
		}
		if len(filter.Statuses) > 0 {
			query = query.Where("status IN ?", filter.Statuses)
		}
		if filter.From != nil {
			query = query.Where("created_at >= ?", *filter.From)
		}
		if filter.To != nil {
			query = query.Where("created_at < ?", *filter.To)
		}
		if filter.Limit > 0 {
			query = query.Limit(filter.Limit)
		}
		if filter.Offset > 0 {
			query = query.Offset(filter.Offset)
		}
	}

	var rows []*alerting.Alert
	if err := query.Order("created_at DESC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list alerts: %w", err)
	}
	return rows, nil
}

// ListByAnomaly retrieves all alerts produced for one anomaly
func (r *AlertRepository) ListByAnomaly(ctx context.Context, anomalyID uuid.UUID) ([]*alerting.Alert, error) {
	var rows []*alerting.Alert
	err := r.db.WithContext(ctx).
		Where("anomaly_id = ?", anomalyID).
		Order("created_at ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list alerts for anomaly %s: %w", anomalyID, err)
	}
	return rows, nil
}
