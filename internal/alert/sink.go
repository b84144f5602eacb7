package alert

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"text/template"
	"time"

	"go.uber.org/zap"

	"rwaScope/internal/model"
)

// Sink delivers one alert. Delivery is fire and forget: implementations
// log their own failures and never return them to the caller, so a dead
// sink cannot stall event tracking.
type Sink interface {
	Deliver(alert model.Alert)
}

// LogSink writes alerts to the structured log.
type LogSink struct {
	logger *zap.Logger
}

func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger}
}

func (s *LogSink) Deliver(alert model.Alert) {
	fields := []zap.Field{
		zap.String("severity", string(alert.Severity)),
		zap.String("network", alert.Network),
		zap.Any("details", alert.Details),
	}
	switch alert.Severity {
	case model.SeverityCritical:
		s.logger.Error(alert.Message, fields...)
	case model.SeverityWarning:
		s.logger.Warn(alert.Message, fields...)
	default:
		s.logger.Info(alert.Message, fields...)
	}
}

var defaultWebhookBody = template.Must(template.New("webhook").Parse(
	`{{.Severity}} on {{.Network}}: {{.Message}}`))

// WebhookSink POSTs alerts as JSON to an HTTP endpoint. A text template
// renders the human-readable summary carried alongside the raw alert.
type WebhookSink struct {
	url     string
	client  *http.Client
	body    *template.Template
	timeout time.Duration
	logger  *zap.Logger
}

func NewWebhookSink(url string, bodyTemplate string, logger *zap.Logger) (*WebhookSink, error) {
	if url == "" {
		return nil, fmt.Errorf("webhook url is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	body := defaultWebhookBody
	if bodyTemplate != "" {
		parsed, err := template.New("webhook").Parse(bodyTemplate)
		if err != nil {
			return nil, fmt.Errorf("parse webhook template: %w", err)
		}
		body = parsed
	}
	return &WebhookSink{
		url:     url,
		client:  &http.Client{Timeout: 10 * time.Second},
		body:    body,
		timeout: 10 * time.Second,
		logger:  logger,
	}, nil
}

func (s *WebhookSink) Deliver(alert model.Alert) {
	var summary bytes.Buffer
	if err := s.body.Execute(&summary, alert); err != nil {
		s.logger.Warn("webhook template failed", zap.Error(err))
		return
	}

	payload, err := json.Marshal(struct {
		Summary string      `json:"summary"`
		Alert   model.Alert `json:"alert"`
	}{Summary: summary.String(), Alert: alert})
	if err != nil {
		s.logger.Warn("webhook payload marshal failed", zap.Error(err))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(payload))
	if err != nil {
		s.logger.Warn("webhook request build failed", zap.Error(err))
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		s.logger.Warn("webhook delivery failed", zap.Error(err), zap.String("url", s.url))
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		s.logger.Warn("webhook rejected alert",
			zap.Int("status", resp.StatusCode), zap.String("url", s.url))
	}
}
