package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"rwaScope/internal/model"
)

// Publisher fans decoded events and alerts out to Kafka. Topics are per
// network (<prefix>-<network>) so downstream consumers subscribe to the
// chains they care about; alerts share one topic. Publishing is fire and
// forget: a broker outage is logged and ingestion keeps moving.
type Publisher struct {
	writer     *kafka.Writer
	prefix     string
	alertTopic string
	logger     *zap.Logger
}

func NewPublisher(brokers []string, prefix string, logger *zap.Logger) (*Publisher, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("at least one kafka broker is required")
	}
	if prefix == "" {
		prefix = "rwascope-events"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		Async:        true,
		BatchTimeout: 50 * time.Millisecond,
	}
	return &Publisher{
		writer:     writer,
		prefix:     prefix,
		alertTopic: prefix + "-alerts",
		logger:     logger,
	}, nil
}

// Publish sends one decoded event to its network topic, keyed by
// transaction hash so a transaction's events stay on one partition.
func (p *Publisher) Publish(dec model.Decoded) {
	payload, err := json.Marshal(dec)
	if err != nil {
		p.logger.Warn("event payload marshal failed", zap.Error(err))
		return
	}
	msg := kafka.Message{
		Topic: fmt.Sprintf("%s-%s", p.prefix, dec.Provenance.Network),
		Key:   []byte(dec.Provenance.TxHash),
		Value: payload,
	}
	p.write(msg, "event")
}

// PublishAlert sends one alert to the shared alert topic.
func (p *Publisher) PublishAlert(alert model.Alert) {
	payload, err := json.Marshal(alert)
	if err != nil {
		p.logger.Warn("alert payload marshal failed", zap.Error(err))
		return
	}
	msg := kafka.Message{
		Topic: p.alertTopic,
		Key:   []byte(alert.Network),
		Value: payload,
	}
	p.write(msg, "alert")
}

// Deliver lets the publisher serve as an alert sink.
func (p *Publisher) Deliver(alert model.Alert) {
	p.PublishAlert(alert)
}

func (p *Publisher) write(msg kafka.Message, kind string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.logger.Warn("kafka publish failed",
			zap.String("kind", kind),
			zap.String("topic", msg.Topic),
			zap.Error(err),
		)
	}
}

func (p *Publisher) Close() error {
	return p.writer.Close()
}
