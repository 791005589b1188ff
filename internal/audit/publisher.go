package audit

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"shopfloor-service/internal/bucketing"
	"shopfloor-service/internal/client"
	"shopfloor-service/internal/config"
	"shopfloor-service/internal/models"
	"shopfloor-service/internal/util"
)

// TicketEvent is the message published to the audit topic for every ticket
// mutation. Consumers downstream (reporting, escalation) key on ticket_id.
type TicketEvent struct {
	EventType string            `json:"event_type"`
	TicketID  string            `json:"ticket_id"`
	Actor     string            `json:"actor"`
	At        time.Time         `json:"at"`
	Details   map[string]string `json:"details,omitempty"`
}

// Publisher fans audit data out to Kafka (ticket events) and ClickHouse
// (security events). Both sinks are best-effort: the primary write has
// already committed when these run, so failures are logged, not returned.
type Publisher struct {
	producer   *client.KafkaProducer
	clickhouse *client.ClickHouseClient
	buckets    *bucketing.Manager
	topic      string
}

func NewPublisher(cfg *config.Config, producer *client.KafkaProducer, ch *client.ClickHouseClient, buckets *bucketing.Manager) *Publisher {
	return &Publisher{
		producer:   producer,
		clickhouse: ch,
		buckets:    buckets,
		topic:      cfg.Kafka.AuditTopic,
	}
}

// PublishTicketEvent emits one audit message for a ticket mutation.
func (p *Publisher) PublishTicketEvent(ctx context.Context, eventType, ticketID, actor string, details map[string]string) {
	if p == nil || p.producer == nil {
		return
	}

	event := TicketEvent{
		EventType: eventType,
		TicketID:  ticketID,
		Actor:     actor,
		At:        time.Now().UTC(),
		Details:   details,
	}

	value, err := json.Marshal(event)
	if err != nil {
		util.Error("Failed to marshal ticket event", zap.Error(err))
		return
	}

	if err := p.producer.ProduceMessage(ctx, p.topic, []byte(ticketID), value, map[string]string{
		"event_type": eventType,
	}); err != nil {
		util.Error("Failed to publish ticket event",
			zap.String("event_type", eventType),
			zap.String("ticket_id", ticketID),
			zap.Error(err))
	}
}

// RecordSecurityEvent writes an authentication incident to ClickHouse. The
// source key is bucketed so the table partitions on a bounded integer.
func (p *Publisher) RecordSecurityEvent(ctx context.Context, event *models.SecurityEvent) {
	if p == nil || p.clickhouse == nil {
		return
	}

	if event.EventTime.IsZero() {
		event.EventTime = time.Now().UTC()
	}
	event.EventBucket = p.buckets.EventBucket(event.SourceKey)

	err := p.clickhouse.Exec(ctx, `
		INSERT INTO security_events
			(event_bucket, event_time, event_type, source_key, principal_kind, employee_id, session_id, details)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		event.EventBucket, event.EventTime, event.EventType, event.SourceKey,
		event.Kind, event.EmployeeID, event.SessionID, event.Details)
	if err != nil {
		util.Error("Failed to record security event",
			zap.String("event_type", event.EventType),
			zap.Error(err))
	}
}
