package api

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/rizrmd/travel-sub003/internal/database"
	"github.com/rizrmd/travel-sub003/pkg/alerting"
	"github.com/rizrmd/travel-sub003/pkg/anomaly"
)

// AnomalyController handles anomaly and alert API endpoints
type AnomalyController struct {
	anomalies  anomaly.Repository
	alerts     alerting.AlertRepository
	dispatcher *alerting.Dispatcher
	tracer     trace.Tracer
}

// NewAnomalyController creates a new anomaly controller
func NewAnomalyController(anomalies anomaly.Repository, alerts alerting.AlertRepository, dispatcher *alerting.Dispatcher) *AnomalyController {
	return &AnomalyController{
		anomalies:  anomalies,
		alerts:     alerts,
		dispatcher: dispatcher,
		tracer:     otel.Tracer("anomaly-controller"),
	}
}

// RegisterRoutes registers all anomaly and alert routes
func (c *AnomalyController) RegisterRoutes(router *gin.RouterGroup) {
	anomalyGroup := router.Group("/anomalies")
	{
		anomalyGroup.GET("", c.ListAnomalies)
		anomalyGroup.GET("/summary", c.GetSummary)
		anomalyGroup.GET("/:id", c.GetAnomaly)
		anomalyGroup.GET("/:id/alerts", c.ListAnomalyAlerts)
		anomalyGroup.POST("/:id/acknowledge", c.AcknowledgeAnomaly)
		anomalyGroup.POST("/:id/resolve", c.ResolveAnomaly)
		anomalyGroup.POST("/:id/false-positive", c.MarkFalsePositive)
	}

	alertGroup := router.Group("/alerts")
	{
		alertGroup.GET("", c.ListAlerts)
		alertGroup.POST("/:id/acknowledge", c.AcknowledgeAlert)
	}
}

// ListAnomalies lists anomalies with filtering and pagination
func (c *AnomalyController) ListAnomalies(ctx *gin.Context) {
	span := trace.SpanFromContext(ctx.Request.Context())
	span.SetAttributes(attribute.String("endpoint", "list_anomalies"))

	filter, err := parseAnomalyFilter(ctx)
	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "invalid filter parameters", "details": err.Error()})
		return
	}

	rows, err := c.anomalies.List(ctx.Request.Context(), filter)
	if err != nil {
		span.RecordError(err)
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "failed to retrieve anomalies"})
		return
	}

	items := make([]AnomalyListItem, 0, len(rows))
	for _, a := range rows {
		items = append(items, toListItem(a))
	}

	ctx.JSON(http.StatusOK, ListAnomaliesResponse{
		Anomalies: items,
		Total:     len(items),
		Limit:     filter.Limit,
		Offset:    filter.Offset,
	})
}

// GetSummary returns anomaly counts grouped by status
func (c *AnomalyController) GetSummary(ctx *gin.Context) {
	var tenantID *uuid.UUID
	if raw := ctx.Query("tenant_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			ctx.JSON(http.StatusBadRequest, gin.H{"error": "invalid tenant_id"})
			return
		}
		tenantID = &id
	}

	counts, err := c.anomalies.CountByStatus(ctx.Request.Context(), tenantID)
	if err != nil {
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "failed to summarize anomalies"})
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"counts": counts})
}

// GetAnomaly retrieves one anomaly with its recommended actions
func (c *AnomalyController) GetAnomaly(ctx *gin.Context) {
	a, ok := c.loadAnomaly(ctx)
	if !ok {
		return
	}
	ctx.JSON(http.StatusOK, toDetail(a))
}

// ListAnomalyAlerts returns the alert history for one anomaly
func (c *AnomalyController) ListAnomalyAlerts(ctx *gin.Context) {
	id, err := uuid.Parse(ctx.Param("id"))
	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "invalid anomaly id"})
		return
	}

	alerts, err := c.alerts.ListByAnomaly(ctx.Request.Context(), id)
	if err != nil {
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "failed to retrieve alerts"})
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"alerts": alerts, "total": len(alerts)})
}

// AcknowledgeAnomaly transitions an anomaly to acknowledged
func (c *AnomalyController) AcknowledgeAnomaly(ctx *gin.Context) {
	c.transition(ctx, func(a *anomaly.Anomaly) error {
		return a.Acknowledge()
	})
}

// ResolveAnomaly transitions an anomaly to resolved with operator notes
func (c *AnomalyController) ResolveAnomaly(ctx *gin.Context) {
	var req ResolveRequest
	if err := ctx.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body", "details": err.Error()})
		return
	}

	c.transition(ctx, func(a *anomaly.Anomaly) error {
		return a.Resolve(req.Notes)
	})
}

// MarkFalsePositive transitions an anomaly to false_positive
func (c *AnomalyController) MarkFalsePositive(ctx *gin.Context) {
	var req FalsePositiveRequest
	if err := ctx.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body", "details": err.Error()})
		return
	}

	c.transition(ctx, func(a *anomaly.Anomaly) error {
		return a.MarkFalsePositive(req.Reason)
	})
}

// ListAlerts lists alert history with filtering
func (c *AnomalyController) ListAlerts(ctx *gin.Context) {
	filter := &alerting.AlertFilter{
		Limit:  parseIntQuery(ctx, "limit", 50),
		Offset: parseIntQuery(ctx, "offset", 0),
	}
	if raw := ctx.Query("tenant_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			ctx.JSON(http.StatusBadRequest, gin.H{"error": "invalid tenant_id"})
			return
		}
		filter.TenantID = &id
	}
	if raw := ctx.Query("status"); raw != "" {
		filter.Statuses = []alerting.AlertStatus{alerting.AlertStatus(raw)}
	}

	alerts, err := c.alerts.List(ctx.Request.Context(), filter)
	if err != nil {
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "failed to retrieve alerts"})
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"alerts": alerts, "total": len(alerts)})
}

// AcknowledgeAlert marks one alert as seen by an operator
func (c *AnomalyController) AcknowledgeAlert(ctx *gin.Context) {
	id, err := uuid.Parse(ctx.Param("id"))
	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "invalid alert id"})
		return
	}

	var req AcknowledgeAlertRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body", "details": err.Error()})
		return
	}

	alert, err := c.dispatcher.AcknowledgeAlert(ctx.Request.Context(), id, req.Operator)
	if errors.Is(err, database.ErrNotFound) {
		ctx.JSON(http.StatusNotFound, gin.H{"error": "alert not found"})
		return
	}
	if err != nil {
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "failed to acknowledge alert"})
		return
	}

	ctx.JSON(http.StatusOK, alert)
}

// Internal methods

// transition loads the anomaly, applies a domain transition, and persists.
// Invalid transitions map to 409 without touching the row.
func (c *AnomalyController) transition(ctx *gin.Context, apply func(*anomaly.Anomaly) error) {
	a, ok := c.loadAnomaly(ctx)
	if !ok {
		return
	}

	if err := apply(a); err != nil {
		if errors.Is(err, anomaly.ErrInvalidTransition) {
			ctx.JSON(http.StatusConflict, gin.H{
				"error":  "invalid status transition",
				"status": a.Status,
			})
			return
		}
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "transition failed"})
		return
	}

	if err := c.anomalies.Update(ctx.Request.Context(), a); err != nil {
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "failed to persist transition"})
		return
	}

	ctx.JSON(http.StatusOK, toDetail(a))
}

func (c *AnomalyController) loadAnomaly(ctx *gin.Context) (*anomaly.Anomaly, bool) {
	id, err := uuid.Parse(ctx.Param("id"))
	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "invalid anomaly id"})
		return nil, false
	}

	a, err := c.anomalies.GetByID(ctx.Request.Context(), id)
	if errors.Is(err, database.ErrNotFound) {
		ctx.JSON(http.StatusNotFound, gin.H{"error": "anomaly not found"})
		return nil, false
	}
	if err != nil {
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "failed to retrieve anomaly"})
		return nil, false
	}
	return a, true
}

func parseAnomalyFilter(ctx *gin.Context) (*anomaly.Filter, error) {
	filter := &anomaly.Filter{
		Limit:  parseIntQuery(ctx, "limit", 50),
		Offset: parseIntQuery(ctx, "offset", 0),
	}

	if raw := ctx.Query("tenant_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return nil, err
		}
		filter.TenantID = &id
	}
	if raw := ctx.Query("type"); raw != "" {
		filter.Types = []anomaly.AnomalyType{anomaly.AnomalyType(raw)}
	}
	if raw := ctx.Query("severity"); raw != "" {
		filter.Severities = []anomaly.Severity{anomaly.Severity(raw)}
	}
	if raw := ctx.Query("status"); raw != "" {
		filter.Statuses = []anomaly.Status{anomaly.Status(raw)}
	}
	if raw := ctx.Query("from"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return nil, err
		}
		filter.From = &t
	}
	if raw := ctx.Query("to"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return nil, err
		}
		filter.To = &t
	}

	return filter, nil
}

func parseIntQuery(ctx *gin.Context, name string, fallback int) int {
	raw := ctx.Query(name)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return fallback
	}
	return v
}
