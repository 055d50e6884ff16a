package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rizrmd/travel-sub003/internal/database"
	"github.com/rizrmd/travel-sub003/pkg/alerting"
	"github.com/rizrmd/travel-sub003/pkg/anomaly"
)

type fakeAnomalyRepo struct {
	rows map[uuid.UUID]*anomaly.Anomaly

	lastFilter *anomaly.Filter
	updated    []*anomaly.Anomaly
	listErr    error
}

func newFakeAnomalyRepo() *fakeAnomalyRepo {
	return &fakeAnomalyRepo{rows: make(map[uuid.UUID]*anomaly.Anomaly)}
}

func (r *fakeAnomalyRepo) Create(ctx context.Context, a *anomaly.Anomaly) error {
	r.rows[a.ID] = a
	return nil
}

func (r *fakeAnomalyRepo) GetByID(ctx context.Context, id uuid.UUID) (*anomaly.Anomaly, error) {
	a, ok := r.rows[id]
	if !ok {
		return nil, database.ErrNotFound
	}
	return a, nil
}

func (r *fakeAnomalyRepo) Update(ctx context.Context, a *anomaly.Anomaly) error {
	r.updated = append(r.updated, a)
	r.rows[a.ID] = a
	return nil
}

func (r *fakeAnomalyRepo) List(ctx context.Context, filter *anomaly.Filter) ([]*anomaly.Anomaly, error) {
	r.lastFilter = filter
	if r.listErr != nil {
		return nil, r.listErr
	}
	var out []*anomaly.Anomaly
	for _, a := range r.rows {
		out = append(out, a)
	}
	return out, nil
}

func (r *fakeAnomalyRepo) CountByStatus(ctx context.Context, tenantID *uuid.UUID) (map[anomaly.Status]int64, error) {
	return map[anomaly.Status]int64{anomaly.StatusDetected: int64(len(r.rows))}, nil
}

type fakeAlertRepo struct {
	rows map[uuid.UUID]*alerting.Alert
}

func newFakeAlertRepo() *fakeAlertRepo {
	return &fakeAlertRepo{rows: make(map[uuid.UUID]*alerting.Alert)}
}

func (r *fakeAlertRepo) Create(ctx context.Context, alert *alerting.Alert) error {
	r.rows[alert.ID] = alert
	return nil
}

func (r *fakeAlertRepo) GetByID(ctx context.Context, id uuid.UUID) (*alerting.Alert, error) {
	alert, ok := r.rows[id]
	if !ok {
		return nil, database.ErrNotFound
	}
	return alert, nil
}

func (r *fakeAlertRepo) Update(ctx context.Context, alert *alerting.Alert) error {
	r.rows[alert.ID] = alert
	return nil
}

func (r *fakeAlertRepo) List(ctx context.Context, filter *alerting.AlertFilter) ([]*alerting.Alert, error) {
	var out []*alerting.Alert
	for _, alert := range r.rows {
		out = append(out, alert)
	}
	return out, nil
}

func (r *fakeAlertRepo) ListByAnomaly(ctx context.Context, anomalyID uuid.UUID) ([]*alerting.Alert, error) {
	var out []*alerting.Alert
	for _, alert := range r.rows {
		if alert.AnomalyID == anomalyID {
			out = append(out, alert)
		}
	}
	return out, nil
}

func newTestRouter(anomalies *fakeAnomalyRepo, alerts *fakeAlertRepo) *gin.Engine {
	gin.SetMode(gin.TestMode)

	dispatcher := alerting.NewDispatcher(nil, alerts, nil, nil, nil)
	controller := NewAnomalyController(anomalies, alerts, dispatcher)

	engine := gin.New()
	controller.RegisterRoutes(engine.Group("/api/v1"))
	return engine
}

func seedAnomaly(repo *fakeAnomalyRepo, status anomaly.Status) *anomaly.Anomaly {
	tenantID := uuid.New()
	a := &anomaly.Anomaly{
		ID:          uuid.New(),
		TenantID:    &tenantID,
		Type:        anomaly.TypeActivityDrop,
		Severity:    anomaly.SeverityCritical,
		Status:      status,
		Description: "activity score dropped 62.5% against yesterday",
		DetectedAt:  time.Now().UTC(),
	}
	repo.rows[a.ID] = a
	return a
}

func doJSON(t *testing.T, engine *gin.Engine, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")

	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)
	return rec
}

func TestListAnomalies(t *testing.T) {
	repo := newFakeAnomalyRepo()
	seedAnomaly(repo, anomaly.StatusDetected)
	seedAnomaly(repo, anomaly.StatusDetected)

	engine := newTestRouter(repo, newFakeAlertRepo())
	rec := doJSON(t, engine, http.MethodGet, "/api/v1/anomalies", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp ListAnomaliesResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.Total)
	assert.Equal(t, 50, resp.Limit)
}

func TestListAnomaliesFilterParsing(t *testing.T) {
	repo := newFakeAnomalyRepo()
	engine := newTestRouter(repo, newFakeAlertRepo())

	tenantID := uuid.New()
	path := fmt.Sprintf("/api/v1/anomalies?tenant_id=%s&severity=critical&status=detected&limit=10&offset=20", tenantID)
	rec := doJSON(t, engine, http.MethodGet, path, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	require.NotNil(t, repo.lastFilter)
	require.NotNil(t, repo.lastFilter.TenantID)
	assert.Equal(t, tenantID, *repo.lastFilter.TenantID)
	assert.Equal(t, []anomaly.Severity{anomaly.SeverityCritical}, repo.lastFilter.Severities)
	assert.Equal(t, []anomaly.Status{anomaly.StatusDetected}, repo.lastFilter.Statuses)
	assert.Equal(t, 10, repo.lastFilter.Limit)
	assert.Equal(t, 20, repo.lastFilter.Offset)
}

func TestListAnomaliesRejectsBadTenantID(t *testing.T) {
	engine := newTestRouter(newFakeAnomalyRepo(), newFakeAlertRepo())
	rec := doJSON(t, engine, http.MethodGet, "/api/v1/anomalies?tenant_id=not-a-uuid", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetAnomalyIncludesRunbook(t *testing.T) {
	repo := newFakeAnomalyRepo()
	a := seedAnomaly(repo, anomaly.StatusDetected)

	engine := newTestRouter(repo, newFakeAlertRepo())
	rec := doJSON(t, engine, http.MethodGet, "/api/v1/anomalies/"+a.ID.String(), nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var detail AnomalyDetail
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &detail))
	assert.Equal(t, a.ID, detail.ID)
	assert.NotEmpty(t, detail.RecommendedActions)
}

func TestGetAnomalyNotFound(t *testing.T) {
	engine := newTestRouter(newFakeAnomalyRepo(), newFakeAlertRepo())
	rec := doJSON(t, engine, http.MethodGet, "/api/v1/anomalies/"+uuid.NewString(), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetAnomalyBadID(t *testing.T) {
	engine := newTestRouter(newFakeAnomalyRepo(), newFakeAlertRepo())
	rec := doJSON(t, engine, http.MethodGet, "/api/v1/anomalies/not-a-uuid", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAcknowledgeAnomaly(t *testing.T) {
	repo := newFakeAnomalyRepo()
	a := seedAnomaly(repo, anomaly.StatusDetected)

	engine := newTestRouter(repo, newFakeAlertRepo())
	rec := doJSON(t, engine, http.MethodPost, "/api/v1/anomalies/"+a.ID.String()+"/acknowledge", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, anomaly.StatusAcknowledged, a.Status)
	require.Len(t, repo.updated, 1)
}

func TestResolveAnomalyWithNotes(t *testing.T) {
	repo := newFakeAnomalyRepo()
	a := seedAnomaly(repo, anomaly.StatusAcknowledged)

	engine := newTestRouter(repo, newFakeAlertRepo())
	rec := doJSON(t, engine, http.MethodPost, "/api/v1/anomalies/"+a.ID.String()+"/resolve",
		ResolveRequest{Notes: "restarted the ingest worker"})
	require.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, anomaly.StatusResolved, a.Status)
	assert.Equal(t, "restarted the ingest worker", a.ResolutionNotes)
}

func TestResolveAnomalyEmptyBodyAllowed(t *testing.T) {
	repo := newFakeAnomalyRepo()
	a := seedAnomaly(repo, anomaly.StatusDetected)

	engine := newTestRouter(repo, newFakeAlertRepo())
	rec := doJSON(t, engine, http.MethodPost, "/api/v1/anomalies/"+a.ID.String()+"/resolve", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, anomaly.StatusResolved, a.Status)
}

func TestInvalidTransitionConflicts(t *testing.T) {
	repo := newFakeAnomalyRepo()
	a := seedAnomaly(repo, anomaly.StatusResolved)

	engine := newTestRouter(repo, newFakeAlertRepo())
	rec := doJSON(t, engine, http.MethodPost, "/api/v1/anomalies/"+a.ID.String()+"/acknowledge", nil)
	require.Equal(t, http.StatusConflict, rec.Code)

	// Conflicted transitions never hit the repository.
	assert.Empty(t, repo.updated)
	assert.Equal(t, anomaly.StatusResolved, a.Status)
}

func TestMarkFalsePositive(t *testing.T) {
	repo := newFakeAnomalyRepo()
	a := seedAnomaly(repo, anomaly.StatusDetected)

	engine := newTestRouter(repo, newFakeAlertRepo())
	rec := doJSON(t, engine, http.MethodPost, "/api/v1/anomalies/"+a.ID.String()+"/false-positive",
		FalsePositiveRequest{Reason: "ramadan seasonality"})
	require.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, anomaly.StatusFalsePositive, a.Status)
	assert.Equal(t, "ramadan seasonality", a.ResolutionNotes)
}

func TestGetSummary(t *testing.T) {
	repo := newFakeAnomalyRepo()
	seedAnomaly(repo, anomaly.StatusDetected)

	engine := newTestRouter(repo, newFakeAlertRepo())
	rec := doJSON(t, engine, http.MethodGet, "/api/v1/anomalies/summary", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Counts map[string]int64 `json:"counts"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, int64(1), resp.Counts[string(anomaly.StatusDetected)])
}

func TestListAnomalyAlerts(t *testing.T) {
	anomalies := newFakeAnomalyRepo()
	a := seedAnomaly(anomalies, anomaly.StatusDetected)

	alerts := newFakeAlertRepo()
	alerts.rows[uuid.New()] = &alerting.Alert{ID: uuid.New(), AnomalyID: a.ID, Channel: anomaly.ChannelEmail}
	alerts.rows[uuid.New()] = &alerting.Alert{ID: uuid.New(), AnomalyID: uuid.New(), Channel: anomaly.ChannelSlack}

	engine := newTestRouter(anomalies, alerts)
	rec := doJSON(t, engine, http.MethodGet, "/api/v1/anomalies/"+a.ID.String()+"/alerts", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Total int `json:"total"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.Total)
}

func TestAcknowledgeAlert(t *testing.T) {
	alerts := newFakeAlertRepo()
	alertID := uuid.New()
	alerts.rows[alertID] = &alerting.Alert{ID: alertID, Status: alerting.AlertStatusSent}

	engine := newTestRouter(newFakeAnomalyRepo(), alerts)
	rec := doJSON(t, engine, http.MethodPost, "/api/v1/alerts/"+alertID.String()+"/acknowledge",
		AcknowledgeAlertRequest{Operator: "ops@platform.example.com"})
	require.Equal(t, http.StatusOK, rec.Code)

	stored := alerts.rows[alertID]
	assert.Equal(t, alerting.AlertStatusAcknowledged, stored.Status)
	assert.Equal(t, "ops@platform.example.com", stored.AcknowledgedBy)
	assert.NotNil(t, stored.AcknowledgedAt)
}

func TestAcknowledgeAlertRequiresOperator(t *testing.T) {
	engine := newTestRouter(newFakeAnomalyRepo(), newFakeAlertRepo())
	rec := doJSON(t, engine, http.MethodPost, "/api/v1/alerts/"+uuid.NewString()+"/acknowledge",
		map[string]string{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAcknowledgeAlertNotFound(t *testing.T) {
	engine := newTestRouter(newFakeAnomalyRepo(), newFakeAlertRepo())
	rec := doJSON(t, engine, http.MethodPost, "/api/v1/alerts/"+uuid.NewString()+"/acknowledge",
		AcknowledgeAlertRequest{Operator: "ops"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
