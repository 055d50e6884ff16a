package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/rizrmd/travel-sub003/pkg/alerting"
	"github.com/rizrmd/travel-sub003/pkg/metrics"
	"github.com/rizrmd/travel-sub003/pkg/scheduler"
)

const maxHistoryHours = 24 * 7

// HealthChecker reports whether a backing service is reachable
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// MonitoringController exposes the platform health surface: the component
// snapshot, raw metric history, and the state of the background machinery.
type MonitoringController struct {
	collector  *metrics.Collector
	repository metrics.Repository
	sched      *scheduler.Scheduler
	dispatcher *alerting.Dispatcher
	db         HealthChecker
	tracer     trace.Tracer
}

// NewMonitoringController creates a new monitoring controller
func NewMonitoringController(collector *metrics.Collector, repository metrics.Repository, sched *scheduler.Scheduler, dispatcher *alerting.Dispatcher, db HealthChecker) *MonitoringController {
	return &MonitoringController{
		collector:  collector,
		repository: repository,
		sched:      sched,
		dispatcher: dispatcher,
		db:         db,
		tracer:     otel.Tracer("monitoring-controller"),
	}
}

// RegisterRoutes registers all monitoring routes
func (c *MonitoringController) RegisterRoutes(router *gin.RouterGroup) {
	group := router.Group("/monitoring")
	{
		group.GET("/health", c.GetHealth)
		group.GET("/metrics/:type/history", c.GetMetricHistory)
		group.GET("/tasks", c.GetTasks)
		group.GET("/dispatcher", c.GetDispatcher)
	}
}

// GetHealth returns the cached platform health snapshot
func (c *MonitoringController) GetHealth(ctx *gin.Context) {
	span := trace.SpanFromContext(ctx.Request.Context())
	span.SetAttributes(attribute.String("endpoint", "get_health"))

	snapshot, err := c.collector.HealthSnapshot(ctx.Request.Context())
	if err != nil {
		span.RecordError(err)
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "failed to build health snapshot"})
		return
	}

	status := http.StatusOK
	if snapshot.Status == metrics.StatusCritical {
		status = http.StatusServiceUnavailable
	}
	ctx.JSON(status, snapshot)
}

// GetMetricHistory returns raw system metric samples for one type.
// The window is ?hours=N back from now, default 24, capped at one week.
func (c *MonitoringController) GetMetricHistory(ctx *gin.Context) {
	metricType := metrics.MetricType(ctx.Param("type"))

	hours := parseIntQuery(ctx, "hours", 24)
	if hours < 1 {
		hours = 1
	}
	if hours > maxHistoryHours {
		hours = maxHistoryHours
	}

	now := time.Now().UTC()
	rows, err := c.repository.SystemMetricHistory(ctx.Request.Context(), metricType, now.Add(-time.Duration(hours)*time.Hour), now)
	if err != nil {
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "failed to retrieve metric history"})
		return
	}

	ctx.JSON(http.StatusOK, gin.H{
		"metric_type": metricType,
		"hours":       hours,
		"samples":     rows,
		"total":       len(rows),
	})
}

// GetTasks returns the run accounting for every scheduled task
func (c *MonitoringController) GetTasks(ctx *gin.Context) {
	ctx.JSON(http.StatusOK, gin.H{"tasks": c.sched.Status()})
}

// GetDispatcher returns queue depth and dispatch counters
func (c *MonitoringController) GetDispatcher(ctx *gin.Context) {
	stats := c.dispatcher.GetStats()
	ctx.JSON(http.StatusOK, gin.H{
		"queue_length": c.dispatcher.QueueLength(),
		"stats":        stats,
	})
}

// Liveness is the plain process liveness probe
func (c *MonitoringController) Liveness(ctx *gin.Context) {
	ctx.JSON(http.StatusOK, gin.H{"status": "ok", "time": time.Now().UTC()})
}

// Readiness verifies the backing database before reporting ready
func (c *MonitoringController) Readiness(ctx *gin.Context) {
	checkCtx, cancel := context.WithTimeout(ctx.Request.Context(), 5*time.Second)
	defer cancel()

	if err := c.db.HealthCheck(checkCtx); err != nil {
		ctx.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"status": "ready"})
}
