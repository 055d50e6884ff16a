package models

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Tenant represents a travel agency on the platform
type Tenant struct {
	ID          uuid.UUID `gorm:"type:uuid;primary_key;default:gen_random_uuid()" json:"id"`
	Name        string    `gorm:"unique;not null;index" json:"name"`
	DisplayName string    `gorm:"not null" json:"display_name"`

	// Subscription information
	Plan         string `gorm:"not null;default:'basic'" json:"plan"`
	BillingEmail string `gorm:"not null" json:"billing_email"`

	// Contact information
	ContactInfo TenantContactInfo `gorm:"type:jsonb" json:"contact_info"`

	// Status and metadata
	Status    string     `gorm:"not null;default:'active';index" json:"status"`
	CreatedAt time.Time  `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time  `gorm:"not null" json:"updated_at"`
	DeletedAt *time.Time `gorm:"index" json:"deleted_at,omitempty"`
}

// TenantContactInfo represents contact information for a tenant
type TenantContactInfo struct {
	AdminEmail   string `json:"admin_email"`
	AdminPhone   string `json:"admin_phone"`
	OpsEmail     string `json:"ops_email"`
	SlackWebhook string `json:"slack_webhook,omitempty"`
}

// Scan implements the sql.Scanner interface for TenantContactInfo
func (t *TenantContactInfo) Scan(value interface{}) error {
	if value == nil {
		return nil
	}

	bytes, ok := value.([]byte)
	if !ok {
		return fmt.Errorf("cannot scan %T into TenantContactInfo", value)
	}

	return json.Unmarshal(bytes, t)
}

// Value implements the driver.Valuer interface for TenantContactInfo
func (t TenantContactInfo) Value() (interface{}, error) {
	return json.Marshal(t)
}

// TableName returns the table name for Tenant model
func (Tenant) TableName() string {
	return "tenants"
}

// IsActive checks if the tenant is active
func (t *Tenant) IsActive() bool {
	return t.Status == TenantStatusActive && t.DeletedAt == nil
}

// Validate validates the tenant model
func (t *Tenant) Validate() ValidationErrors {
	var errors ValidationErrors

	if t.Name == "" {
		errors.Add("name", "name is required")
	}

	if t.DisplayName == "" {
		errors.Add("display_name", "display name is required")
	}

	if t.BillingEmail == "" {
		errors.Add("billing_email", "billing email is required")
	}

	if !IsValidTenantStatus(t.Status) {
		errors.Add("status", "invalid status value")
	}

	if !IsValidPlan(t.Plan) {
		errors.Add("plan", "invalid subscription plan")
	}

	return errors
}
