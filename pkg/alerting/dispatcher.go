package alerting

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/rizrmd/travel-sub003/internal/database/models"
	"github.com/rizrmd/travel-sub003/pkg/anomaly"
	"github.com/rizrmd/travel-sub003/pkg/cache"
	"github.com/rizrmd/travel-sub003/pkg/logger"
)

// Contacts holds the delivery addresses for one alert scope
type Contacts struct {
	Email        string `json:"email"`
	Phone        string `json:"phone"`
	SlackWebhook string `json:"slack_webhook"`
}

// ContactResolver looks up delivery addresses for a tenant. A nil tenant id
// resolves to the platform operations contacts.
type ContactResolver interface {
	ContactsFor(ctx context.Context, tenantID *uuid.UUID) (*Contacts, error)
}

// DispatcherConfig contains configuration for the alert dispatcher
type DispatcherConfig struct {
	Enabled         bool          `yaml:"enabled" json:"enabled"`
	QueueSize       int           `yaml:"queue_size" json:"queue_size"`
	WorkerPoolSize  int           `yaml:"worker_pool_size" json:"worker_pool_size"`
	RateLimitWindow time.Duration `yaml:"rate_limit_window" json:"rate_limit_window"`

	// RecordSuppressed keeps audit rows for rate-limited alerts. Off by
	// default: a suppressed occurrence writes no alert rows.
	RecordSuppressed bool `yaml:"record_suppressed" json:"record_suppressed"`
}

// DefaultDispatcherConfig returns default dispatcher configuration
func DefaultDispatcherConfig() *DispatcherConfig {
	return &DispatcherConfig{
		Enabled:         true,
		QueueSize:       1000,
		WorkerPoolSize:  3,
		RateLimitWindow: 60 * time.Minute,
	}
}

// DispatcherStats tracks dispatch outcomes since startup
type DispatcherStats struct {
	Queued     int64 `json:"queued"`
	Dispatched int64 `json:"dispatched"`
	Suppressed int64 `json:"suppressed"`
	Failed     int64 `json:"failed"`
	Dropped    int64 `json:"dropped"`
}

// Dispatcher consumes published anomalies and fans each one out to the
// channels its severity requires. One alert per (tenant, anomaly type) per
// rate-limit window; the window is tracked in the shared cache so every
// instance of the service honors it.
type Dispatcher struct {
	config     *DispatcherConfig
	repository AlertRepository
	contacts   ContactResolver
	limiter    cache.Cache
	senders    map[anomaly.Channel]ChannelSender
	log        *logger.Logger
	tracer     trace.Tracer

	queue    chan *anomaly.Anomaly
	stopChan chan struct{}
	wg       sync.WaitGroup
	once     sync.Once

	statsMu sync.Mutex
	stats   DispatcherStats
}

// NewDispatcher creates a new alert dispatcher
func NewDispatcher(
	config *DispatcherConfig,
	repository AlertRepository,
	contacts ContactResolver,
	limiter cache.Cache,
	log *logger.Logger,
) *Dispatcher {
	if config == nil {
		config = DefaultDispatcherConfig()
	}
	if log == nil {
		log = logger.GetDefault()
	}

	return &Dispatcher{
		config:     config,
		repository: repository,
		contacts:   contacts,
		limiter:    limiter,
		senders:    make(map[anomaly.Channel]ChannelSender),
		log:        log,
		tracer:     otel.Tracer("alert-dispatcher"),
		queue:      make(chan *anomaly.Anomaly, config.QueueSize),
		stopChan:   make(chan struct{}),
	}
}

// RegisterSender registers a channel sender. Later registrations for the
// same channel replace earlier ones.
func (d *Dispatcher) RegisterSender(sender ChannelSender) {
	d.senders[sender.Channel()] = sender
	d.log.Info("registered alert channel: %s", sender.Channel())
}

// Start launches the dispatch worker pool
func (d *Dispatcher) Start() {
	if !d.config.Enabled {
		d.log.Warn("alert dispatcher disabled, anomalies will not produce notifications")
		return
	}

	workers := d.config.WorkerPoolSize
	if workers <= 0 {
		workers = 3
	}

	for i := 0; i < workers; i++ {
		d.wg.Add(1)
		go d.worker(i)
	}

	d.log.Info("started alert dispatcher with %d workers", workers)
}

// Stop drains the workers and shuts the dispatcher down
func (d *Dispatcher) Stop() {
	d.once.Do(func() { close(d.stopChan) })
	d.wg.Wait()
}

// Publish enqueues an anomaly for dispatch. Non-blocking: when the queue is
// full the anomaly is dropped and counted, never stalling the detector.
func (d *Dispatcher) Publish(ctx context.Context, a *anomaly.Anomaly) error {
	if !d.config.Enabled {
		return nil
	}

	select {
	case d.queue <- a:
		d.bump(func(s *DispatcherStats) { s.Queued++ })
		return nil
	default:
		d.bump(func(s *DispatcherStats) { s.Dropped++ })
		return fmt.Errorf("alert queue full, dropped anomaly %s", a.ID)
	}
}

// QueueLength reports the current dispatch backlog
func (d *Dispatcher) QueueLength() int {
	return len(d.queue)
}

// GetStats returns dispatch counters since startup
func (d *Dispatcher) GetStats() DispatcherStats {
	d.statsMu.Lock()
	defer d.statsMu.Unlock()
	return d.stats
}

// AcknowledgeAlert marks one alert as acknowledged by an operator
func (d *Dispatcher) AcknowledgeAlert(ctx context.Context, alertID uuid.UUID, operator string) (*Alert, error) {
	alert, err := d.repository.GetByID(ctx, alertID)
	if err != nil {
		return nil, err
	}

	alert.Acknowledge(operator)
	if err := d.repository.Update(ctx, alert); err != nil {
		return nil, fmt.Errorf("failed to acknowledge alert %s: %w", alertID, err)
	}

	d.log.WithFields(map[string]interface{}{
		"alert_id": alertID.String(),
		"operator": operator,
	}).Info("alert acknowledged")

	return alert, nil
}

// Internal methods

func (d *Dispatcher) worker(id int) {
	defer d.wg.Done()

	for {
		select {
		case <-d.stopChan:
			return
		case a := <-d.queue:
			d.dispatch(context.Background(), a)
		}
	}
}

// dispatch sends one anomaly to all of its channels. Channel failures are
// independent: a dead SMS gateway never blocks the email or Slack copy.
func (d *Dispatcher) dispatch(ctx context.Context, a *anomaly.Anomaly) {
	ctx, span := d.tracer.Start(ctx, "alert_dispatcher.dispatch")
	defer span.End()

	span.SetAttributes(
		attribute.String("anomaly_id", a.ID.String()),
		attribute.String("anomaly_type", string(a.Type)),
		attribute.String("severity", string(a.Severity)),
	)

	allowed, err := d.claimRateLimit(ctx, a)
	if err != nil {
		// Treat limiter outages as allowed: a missed suppression beats a
		// missed critical alert.
		d.log.Warn("rate limiter unavailable, dispatching anyway: %v", err)
		allowed = true
	}

	contacts, err := d.contacts.ContactsFor(ctx, a.TenantID)
	if err != nil {
		d.log.Error("failed to resolve alert contacts for anomaly %s: %v", a.ID, err)
		d.bump(func(s *DispatcherStats) { s.Failed++ })
		return
	}

	for _, channel := range a.AlertChannels() {
		alert := d.buildAlert(a, channel, contacts)

		if !allowed {
			if d.config.RecordSuppressed {
				alert.Status = AlertStatusSuppressed
				if err := d.repository.Create(ctx, alert); err != nil {
					d.log.Error("failed to record suppressed alert: %v", err)
				}
			}
			d.bump(func(s *DispatcherStats) { s.Suppressed++ })
			continue
		}

		d.send(ctx, alert)
	}
}

// claimRateLimit atomically claims the (scope, type) window slot. The first
// claim in a window wins; every later attempt is suppressed and re-anchors
// the window, so a continuously firing anomaly alerts once per quiet window
// rather than once per fixed interval.
func (d *Dispatcher) claimRateLimit(ctx context.Context, a *anomaly.Anomaly) (bool, error) {
	scope := "platform"
	if a.TenantID != nil {
		scope = a.TenantID.String()
	}
	key := fmt.Sprintf("alerts:ratelimit:%s:%s", scope, a.Type)

	claimed, err := d.limiter.SetNX(ctx, key, []byte(a.ID.String()), d.config.RateLimitWindow)
	if err != nil {
		return false, err
	}
	if !claimed {
		if err := d.limiter.Expire(ctx, key, d.config.RateLimitWindow); err != nil {
			d.log.Warn("failed to re-anchor rate limit window for %s: %v", key, err)
		}
	}
	return claimed, nil
}

func (d *Dispatcher) send(ctx context.Context, alert *Alert) {
	sender, ok := d.senders[alert.Channel]
	if !ok {
		alert.Status = AlertStatusFailed
		alert.Error = fmt.Sprintf("no sender registered for channel %s", alert.Channel)
	} else if alert.Recipient == "" {
		alert.Status = AlertStatusFailed
		alert.Error = "no recipient configured"
	} else if err := sender.Send(ctx, alert); err != nil {
		alert.Status = AlertStatusFailed
		alert.Error = err.Error()
		d.log.WithFields(map[string]interface{}{
			"anomaly_id": alert.AnomalyID.String(),
			"channel":    string(alert.Channel),
		}).Error("alert delivery failed: %v", err)
	} else {
		now := time.Now().UTC()
		alert.Status = AlertStatusSent
		alert.SentAt = &now
	}

	if alert.Status == AlertStatusSent {
		d.bump(func(s *DispatcherStats) { s.Dispatched++ })
	} else {
		d.bump(func(s *DispatcherStats) { s.Failed++ })
	}

	if err := d.repository.Create(ctx, alert); err != nil {
		d.log.Error("failed to persist alert for anomaly %s: %v", alert.AnomalyID, err)
	}
}

func (d *Dispatcher) buildAlert(a *anomaly.Anomaly, channel anomaly.Channel, contacts *Contacts) *Alert {
	return &Alert{
		ID:        uuid.New(),
		AnomalyID: a.ID,
		TenantID:  a.TenantID,
		Channel:   channel,
		Recipient: recipientFor(channel, contacts),
		Subject:   buildSubject(a),
		Body:      buildBody(a),
		Severity:  a.Severity,
		Status:    AlertStatusPending,
		Metadata: models.JSONMap{
			"anomaly_type": string(a.Type),
		},
		CreatedAt: time.Now().UTC(),
	}
}

func recipientFor(channel anomaly.Channel, contacts *Contacts) string {
	switch channel {
	case anomaly.ChannelEmail:
		return contacts.Email
	case anomaly.ChannelSlack:
		return contacts.SlackWebhook
	case anomaly.ChannelSMS:
		return contacts.Phone
	default:
		return ""
	}
}

func buildSubject(a *anomaly.Anomaly) string {
	scope := "Platform"
	if a.TenantID != nil {
		scope = fmt.Sprintf("Tenant %s", a.TenantID)
	}
	return fmt.Sprintf("[%s] %s: %s", strings.ToUpper(string(a.Severity)), scope, a.Type)
}

func buildBody(a *anomaly.Anomaly) string {
	var b strings.Builder

	fmt.Fprintf(&b, "%s\n\n", a.Description)
	fmt.Fprintf(&b, "Severity: %s\n", a.Severity)
	fmt.Fprintf(&b, "Detected at: %s\n", a.DetectedAt.Format(time.RFC3339))

	if actions := anomaly.RecommendedActions(a.Type); len(actions) > 0 {
		b.WriteString("\nRecommended actions:\n")
		for i, action := range actions {
			fmt.Fprintf(&b, "%d. %s\n", i+1, action)
		}
	}

	return b.String()
}

func (d *Dispatcher) bump(fn func(*DispatcherStats)) {
	d.statsMu.Lock()
	fn(&d.stats)
	d.statsMu.Unlock()
}
