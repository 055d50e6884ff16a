package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/rizrmd/travel-sub003/pkg/anomaly"
)

// ErrNotFound is returned when a requested row does not exist
var ErrNotFound = errors.New("record not found")

// AnomalyRepository implements anomaly.Repository on PostgreSQL
type AnomalyRepository struct {
	db *gorm.DB
}

// NewAnomalyRepository creates an anomaly repository
func NewAnomalyRepository(conn *Connection) *AnomalyRepository {
	return &AnomalyRepository{db: conn.DB()}
}

// Create stores a new anomaly
func (r *AnomalyRepository) Create(ctx context.Context, a *anomaly.Anomaly) error {
	if err := r.db.WithContext(ctx).Create(a).Error; err != nil {
		return fmt.Errorf("failed to create anomaly: %w", err)
	}
	return nil
}

// GetByID retrieves an anomaly by ID
func (r *AnomalyRepository) GetByID(ctx context.Context, id uuid.UUID) (*anomaly.Anomaly, error) {
	var a anomaly.Anomaly
	err := r.db.WithContext(ctx).First(&a, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("anomaly %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load anomaly %s: %w", id, err)
	}
	return &a, nil
}

// Update persists a mutated anomaly
func (r *AnomalyRepository) Update(ctx context.Context, a *anomaly.Anomaly) error {
	if err := r.db.WithContext(ctx).Save(a).Error; err != nil {
		return fmt.Errorf("failed to update anomaly %s: %w", a.ID, err)
	}
	return nil
}

// List retrieves anomalies with filtering and pagination, newest first
func (r *AnomalyRepository) List(ctx context.Context, filter *anomaly.Filter) ([]*anomaly.Anomaly, error) {
	query := r.db.WithContext(ctx).Model(&anomaly.Anomaly{})

	if filter != nil {
		if filter.TenantID != nil {
			query = query.Where("tenant_id = ?", *filter.TenantID)
		}
		if len(filter.Types) > 0 {
			query = query.Where("type IN ?", filter.Types)
		}
		if len(filter.Severities) > 0 {
			query = query.Where("severity IN ?", filter.Severities)
		}
		if len(filter.Statuses) > 0 {
			query = query.Where("status IN ?", filter.Statuses)
		}
		if filter.From != nil {
			query = query.Where("detected_at >= ?", *filter.From)
		}
		if filter.To != nil {
			query = query.Where("detected_at < ?", *filter.To)
		}
		if filter.Limit > 0 {
			query = query.Limit(filter.Limit)
		}
		if filter.Offset > 0 {
			query = query.Offset(filter.Offset)
		}
	}

	var rows []*anomaly.Anomaly
	if err := query.Order("detected_at DESC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list anomalies: %w", err)
	}
	return rows, nil
}

// CountByStatus returns anomaly counts grouped by status, optionally scoped
// to one tenant
func (r *AnomalyRepository) CountByStatus(ctx context.Context, tenantID *uuid.UUID) (map[anomaly.Status]int64, error) {
	type row struct {
		Status anomaly.Status
		Count  int64
	}

	query := r.db.WithContext(ctx).
		Model(&anomaly.Anomaly{}).
		Select("status, COUNT(*) AS count").
		Group("status")
	if tenantID != nil {
		query = query.Where("tenant_id = ?", *tenantID)
	}

	var rows []row
	if err := query.Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to count anomalies by status: %w", err)
	}

	counts := make(map[anomaly.Status]int64, len(rows))
	for _, r := range rows {
		counts[r.Status] = r.Count
	}
	return counts, nil
}
