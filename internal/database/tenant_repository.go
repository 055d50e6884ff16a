package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/rizrmd/travel-sub003/internal/database/models"
	"github.com/rizrmd/travel-sub003/pkg/alerting"
)

// TenantRepository reads the tenant directory. It backs the collector and
// detector tenant listings and resolves alert contacts per tenant.
type TenantRepository struct {
	db       *gorm.DB
	platform alerting.Contacts
}

// NewTenantRepository creates a tenant repository. The platform contacts
// receive platform-wide alerts and fill gaps in tenant contact info.
func NewTenantRepository(conn *Connection, platform alerting.Contacts) *TenantRepository {
	return &TenantRepository{db: conn.DB(), platform: platform}
}

// Create stores a new tenant after validation
func (r *TenantRepository) Create(ctx context.Context, tenant *models.Tenant) error {
	if err := tenant.Validate(); err != nil {
		return err
	}
	if err := r.db.WithContext(ctx).Create(tenant).Error; err != nil {
		return fmt.Errorf("failed to create tenant: %w", err)
	}
	return nil
}

// GetByID retrieves a tenant by ID
func (r *TenantRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Tenant, error) {
	var tenant models.Tenant
	err := r.db.WithContext(ctx).First(&tenant, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("tenant %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load tenant %s: %w", id, err)
	}
	return &tenant, nil
}

// List retrieves all tenants, active first
func (r *TenantRepository) List(ctx context.Context) ([]*models.Tenant, error) {
	var tenants []*models.Tenant
	err := r.db.WithContext(ctx).
		Order("status ASC, name ASC").
		Find(&tenants).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list tenants: %w", err)
	}
	return tenants, nil
}

// ListActiveTenantIDs returns the ids of all active tenants
func (r *TenantRepository) ListActiveTenantIDs(ctx context.Context) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := r.db.WithContext(ctx).
		Model(&models.Tenant{}).
		Where("status = ?", models.TenantStatusActive).
		Order("name ASC").
		Pluck("id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list active tenants: %w", err)
	}
	return ids, nil
}

// ContactsFor resolves alert delivery addresses. A nil tenant id resolves to
// the platform operations contacts; tenant gaps fall back to them as well so
// a tenant without an SMS number still pages someone.
func (r *TenantRepository) ContactsFor(ctx context.Context, tenantID *uuid.UUID) (*alerting.Contacts, error) {
	if tenantID == nil {
		contacts := r.platform
		return &contacts, nil
	}

	tenant, err := r.GetByID(ctx, *tenantID)
	if err != nil {
		return nil, err
	}

	contacts := alerting.Contacts{
		Email:        tenant.ContactInfo.OpsEmail,
		Phone:        tenant.ContactInfo.AdminPhone,
		SlackWebhook: tenant.ContactInfo.SlackWebhook,
	}
	if contacts.Email == "" {
		contacts.Email = tenant.ContactInfo.AdminEmail
	}
	if contacts.Email == "" {
		contacts.Email = r.platform.Email
	}
	if contacts.Phone == "" {
		contacts.Phone = r.platform.Phone
	}
	if contacts.SlackWebhook == "" {
		contacts.SlackWebhook = r.platform.SlackWebhook
	}
	return &contacts, nil
}
