package alerting

import (
	"context"
	"fmt"
	"net/http"
	"net/smtp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-resty/resty/v2"

	"github.com/rizrmd/travel-sub003/pkg/anomaly"
)

// EmailConfig contains configuration for the SMTP email channel
type EmailConfig struct {
	Host     string `yaml:"host" json:"host"`
	Port     int    `yaml:"port" json:"port"`
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
	From     string `yaml:"from" json:"from"`
}

// DefaultEmailConfig returns default email channel configuration
func DefaultEmailConfig() *EmailConfig {
	return &EmailConfig{
		Host: "localhost",
		Port: 587,
		From: "alerts@travel.example.com",
	}
}

// EmailSender delivers alerts over SMTP
type EmailSender struct {
	config *EmailConfig
}

// NewEmailSender creates a new SMTP email sender
func NewEmailSender(config *EmailConfig) *EmailSender {
	if config == nil {
		config = DefaultEmailConfig()
	}
	return &EmailSender{config: config}
}

// Channel returns the channel this sender serves
func (s *EmailSender) Channel() anomaly.Channel {
	return anomaly.ChannelEmail
}

// Send delivers the alert as a plain-text email
func (s *EmailSender) Send(ctx context.Context, alert *Alert) error {
	var msg strings.Builder
	fmt.Fprintf(&msg, "From: %s\r\n", s.config.From)
	fmt.Fprintf(&msg, "To: %s\r\n", alert.Recipient)
	fmt.Fprintf(&msg, "Subject: %s\r\n", alert.Subject)
	msg.WriteString("MIME-Version: 1.0\r\nContent-Type: text/plain; charset=utf-8\r\n\r\n")
	msg.WriteString(alert.Body)

	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)

	var auth smtp.Auth
	if s.config.Username != "" {
		auth = smtp.PlainAuth("", s.config.Username, s.config.Password, s.config.Host)
	}

	if err := smtp.SendMail(addr, auth, s.config.From, []string{alert.Recipient}, []byte(msg.String())); err != nil {
		return fmt.Errorf("smtp delivery failed: %w", err)
	}
	return nil
}

// SlackConfig contains configuration for the Slack webhook channel
type SlackConfig struct {
	Timeout time.Duration `yaml:"timeout" json:"timeout"`

	// DefaultWebhookURL is used when the alert scope carries no webhook
	DefaultWebhookURL string `yaml:"default_webhook_url" json:"default_webhook_url"`
}

// DefaultSlackConfig returns default Slack channel configuration
func DefaultSlackConfig() *SlackConfig {
	return &SlackConfig{
		Timeout: 10 * time.Second,
	}
}

// SlackSender delivers alerts to Slack incoming webhooks. The alert
// recipient is the webhook URL, per-tenant webhooks come from the tenant's
// contact info.
type SlackSender struct {
	config *SlackConfig
	client *resty.Client
}

// NewSlackSender creates a new Slack webhook sender
func NewSlackSender(config *SlackConfig) *SlackSender {
	if config == nil {
		config = DefaultSlackConfig()
	}

	client := resty.New().
		SetTimeout(config.Timeout).
		SetRetryCount(2)

	return &SlackSender{config: config, client: client}
}

// Channel returns the channel this sender serves
func (s *SlackSender) Channel() anomaly.Channel {
	return anomaly.ChannelSlack
}

// Send posts the alert to the webhook as a Slack message
func (s *SlackSender) Send(ctx context.Context, alert *Alert) error {
	webhookURL := alert.Recipient
	if webhookURL == "" {
		webhookURL = s.config.DefaultWebhookURL
	}
	if webhookURL == "" {
		return fmt.Errorf("no slack webhook configured")
	}

	payload := map[string]interface{}{
		"text": fmt.Sprintf("*%s*\n```%s```", alert.Subject, alert.Body),
	}

	resp, err := s.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(payload).
		Post(webhookURL)
	if err != nil {
		return fmt.Errorf("failed to post slack webhook: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return fmt.Errorf("slack webhook returned status %d: %s", resp.StatusCode(), resp.String())
	}
	return nil
}

// SMSConfig contains configuration for the SMS gateway channel
type SMSConfig struct {
	GatewayURL string        `yaml:"gateway_url" json:"gateway_url"`
	APIKey     string        `yaml:"api_key" json:"api_key"`
	SenderID   string        `yaml:"sender_id" json:"sender_id"`
	Timeout    time.Duration `yaml:"timeout" json:"timeout"`

	// MaxLength truncates message bodies; SMS segments are expensive
	MaxLength int `yaml:"max_length" json:"max_length"`
}

// DefaultSMSConfig returns default SMS channel configuration
func DefaultSMSConfig() *SMSConfig {
	return &SMSConfig{
		SenderID:  "TRAVELOPS",
		Timeout:   10 * time.Second,
		MaxLength: 320,
	}
}

// SMSSender delivers alerts through an HTTP SMS gateway
type SMSSender struct {
	config *SMSConfig
	client *resty.Client
}

// NewSMSSender creates a new SMS gateway sender
func NewSMSSender(config *SMSConfig) *SMSSender {
	if config == nil {
		config = DefaultSMSConfig()
	}

	client := resty.New().
		SetTimeout(config.Timeout).
		SetRetryCount(2)

	return &SMSSender{config: config, client: client}
}

// Channel returns the channel this sender serves
func (s *SMSSender) Channel() anomaly.Channel {
	return anomaly.ChannelSMS
}

// Send posts a truncated alert to the SMS gateway
func (s *SMSSender) Send(ctx context.Context, alert *Alert) error {
	if s.config.GatewayURL == "" {
		return fmt.Errorf("no sms gateway configured")
	}

	message := alert.Subject + " " + firstLine(alert.Body)
	if s.config.MaxLength > 0 {
		message = truncate(message, s.config.MaxLength)
	}

	resp, err := s.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetHeader("Authorization", "Bearer "+s.config.APIKey).
		SetBody(map[string]string{
			"to":      alert.Recipient,
			"from":    s.config.SenderID,
			"message": message,
		}).
		Post(s.config.GatewayURL)
	if err != nil {
		return fmt.Errorf("failed to post sms gateway: %w", err)
	}
	if resp.StatusCode() >= 300 {
		return fmt.Errorf("sms gateway returned status %d: %s", resp.StatusCode(), resp.String())
	}
	return nil
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

// truncate cuts s to at most max bytes without splitting a rune
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	for max > 0 && !utf8.RuneStart(s[max]) {
		max--
	}
	return s[:max]
}
