// Package models contains the database models for the travel platform.
// These models back the multi-tenant observability subsystem: tenants,
// metric history, detected anomalies, and dispatched alerts.
package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// Common constants for model validation
const (
	// Status values for tenants
	TenantStatusActive    = "active"
	TenantStatusSuspended = "suspended"
	TenantStatusDeleted   = "deleted"

	// Subscription plans
	PlanBasic      = "basic"
	PlanPro        = "pro"
	PlanEnterprise = "enterprise"
)

// JSONMap is a helper type for JSONB fields
type JSONMap map[string]interface{}

// Scan implements the sql.Scanner interface for JSONMap
func (j *JSONMap) Scan(value interface{}) error {
	if value == nil {
		*j = make(JSONMap)
		return nil
	}

	bytes, ok := value.([]byte)
	if !ok {
		return fmt.Errorf("cannot scan %T into JSONMap", value)
	}

	return json.Unmarshal(bytes, j)
}

// Value implements the driver.Valuer interface for JSONMap
func (j JSONMap) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	return json.Marshal(j)
}

// ValidationError represents a model validation error
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (v ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", v.Field, v.Message)
}

// ValidationErrors represents multiple validation errors
type ValidationErrors []ValidationError

func (v ValidationErrors) Error() string {
	if len(v) == 0 {
		return "no validation errors"
	}
	if len(v) == 1 {
		return v[0].Error()
	}
	return fmt.Sprintf("%d validation errors: %s (and %d more)", len(v), v[0].Error(), len(v)-1)
}

// HasErrors returns true if there are validation errors
func (v ValidationErrors) HasErrors() bool {
	return len(v) > 0
}

// Add adds a validation error
func (v *ValidationErrors) Add(field, message string) {
	*v = append(*v, ValidationError{Field: field, Message: message})
}

// Model represents the base model interface
type Model interface {
	Validate() ValidationErrors
	TableName() string
}

// GetValidTenantStatuses returns all valid tenant status values
func GetValidTenantStatuses() []string {
	return []string{TenantStatusActive, TenantStatusSuspended, TenantStatusDeleted}
}

// GetValidPlans returns all valid subscription plan values
func GetValidPlans() []string {
	return []string{PlanBasic, PlanPro, PlanEnterprise}
}

// IsValidTenantStatus checks if a tenant status value is valid
func IsValidTenantStatus(status string) bool {
	return contains(GetValidTenantStatuses(), status)
}

// IsValidPlan checks if a subscription plan value is valid
func IsValidPlan(plan string) bool {
	return contains(GetValidPlans(), plan)
}

// contains checks if a slice contains a specific string
func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}
