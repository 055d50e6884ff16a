// Package api exposes the read surface for admin dashboards: platform
// health, anomaly listings and transitions, and alert history.
package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/rizrmd/travel-sub003/pkg/anomaly"
)

// ResolveRequest carries operator notes for resolving an anomaly
type ResolveRequest struct {
	Notes string `json:"notes"`
}

// FalsePositiveRequest carries the reasoning for a false positive
type FalsePositiveRequest struct {
	Reason string `json:"reason"`
}

// AcknowledgeAlertRequest identifies the acknowledging operator
type AcknowledgeAlertRequest struct {
	Operator string `json:"operator" binding:"required"`
}

// AnomalyListItem is the list-view projection of an anomaly
type AnomalyListItem struct {
	ID          uuid.UUID           `json:"id"`
	TenantID    *uuid.UUID          `json:"tenant_id,omitempty"`
	Type        anomaly.AnomalyType `json:"type"`
	Severity    anomaly.Severity    `json:"severity"`
	Status      anomaly.Status      `json:"status"`
	Description string              `json:"description"`
	DetectedAt  time.Time           `json:"detected_at"`
}

// AnomalyDetail is the full anomaly view including the runbook
type AnomalyDetail struct {
	AnomalyListItem
	Metadata           map[string]interface{} `json:"metadata,omitempty"`
	ResolvedAt         *time.Time             `json:"resolved_at,omitempty"`
	ResolutionNotes    string                 `json:"resolution_notes,omitempty"`
	RecommendedActions []string               `json:"recommended_actions"`
}

// ListAnomaliesResponse is the paginated anomaly listing
type ListAnomaliesResponse struct {
	Anomalies []AnomalyListItem `json:"anomalies"`
	Total     int               `json:"total"`
	Limit     int               `json:"limit"`
	Offset    int               `json:"offset"`
}

func toListItem(a *anomaly.Anomaly) AnomalyListItem {
	return AnomalyListItem{
		ID:          a.ID,
		TenantID:    a.TenantID,
		Type:        a.Type,
		Severity:    a.Severity,
		Status:      a.Status,
		Description: a.Description,
		DetectedAt:  a.DetectedAt,
	}
}

func toDetail(a *anomaly.Anomaly) AnomalyDetail {
	return AnomalyDetail{
		AnomalyListItem:    toListItem(a),
		Metadata:           a.Metadata,
		ResolvedAt:         a.ResolvedAt,
		ResolutionNotes:    a.ResolutionNotes,
		RecommendedActions: anomaly.RecommendedActions(a.Type),
	}
}
