package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/stackpilot/teamgate/internal/core/domain"
	"github.com/stackpilot/teamgate/internal/core/port"
	"github.com/stackpilot/teamgate/internal/infra/config"
)

const schemaVersion = "1.0"

// EventPublisher implements port.EventPublisher using Kafka.
type EventPublisher struct {
	producer *Producer
	logger   *zap.Logger
	appCfg   config.AppSettings
}

// NewEventPublisher constructs a Kafka-backed event publisher.
func NewEventPublisher(producer *Producer, appCfg config.AppSettings, logger *zap.Logger) *EventPublisher {
	return &EventPublisher{producer: producer, appCfg: appCfg, logger: logger}
}

type envelopeMetadata map[string]string

type eventEnvelope struct {
	EventID   string           `json:"event_id"`
	EventType string           `json:"event_type"`
	SubjectID string           `json:"subject_id,omitempty"`
	Timestamp time.Time        `json:"timestamp"`
	Version   string           `json:"version"`
	Payload   any              `json:"payload"`
	Metadata  envelopeMetadata `json:"metadata,omitempty"`
}

func (p *EventPublisher) publish(ctx context.Context, eventID, eventType, subjectID string, ts time.Time, payload any) error {
	if ts.IsZero() {
		ts = time.Now().UTC()
	}

	id := eventID
	if id == "" {
		id = uuid.NewString()
	}

	metadata := envelopeMetadata{
		"service":     p.appCfg.Name,
		"environment": p.appCfg.Env,
	}

	if span := trace.SpanFromContext(ctx); span != nil {
		if sc := span.SpanContext(); sc.IsValid() {
			metadata["trace_id"] = sc.TraceID().String()
		}
	}

	envelope := eventEnvelope{
		EventID:   id,
		EventType: eventType,
		SubjectID: subjectID,
		Timestamp: ts.UTC(),
		Version:   schemaVersion,
		Payload:   payload,
		Metadata:  metadata,
	}

	bytes, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("marshal event envelope: %w", err)
	}

	message := &sarama.ProducerMessage{
		Topic: p.producer.TopicName(eventType),
		Value: sarama.ByteEncoder(bytes),
	}

	select {
	case p.producer.Producer().Input() <- message:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// PublishSessionCreated publishes teamgate.session.created events.
func (p *EventPublisher) PublishSessionCreated(ctx context.Context, event domain.SessionCreatedEvent) error {
	payload := struct {
		SubjectID  string         `json:"subject_id"`
		Email      string         `json:"email"`
		RememberMe bool           `json:"remember_me"`
		ExpiresAt  time.Time      `json:"expires_at"`
		CreatedAt  time.Time      `json:"created_at"`
		Metadata   map[string]any `json:"metadata,omitempty"`
	}{
		SubjectID:  event.SubjectID,
		Email:      event.Email,
		RememberMe: event.RememberMe,
		ExpiresAt:  event.ExpiresAt.UTC(),
		CreatedAt:  event.CreatedAt.UTC(),
		Metadata:   event.Metadata,
	}

	return p.publish(ctx, event.EventID, "teamgate.session.created", event.SubjectID, event.CreatedAt, payload)
}

// PublishSessionRefreshed publishes teamgate.session.refreshed events.
func (p *EventPublisher) PublishSessionRefreshed(ctx context.Context, event domain.SessionRefreshedEvent) error {
	payload := struct {
		SubjectID   string    `json:"subject_id"`
		ExpiresAt   time.Time `json:"expires_at"`
		RefreshedAt time.Time `json:"refreshed_at"`
	}{
		SubjectID:   event.SubjectID,
		ExpiresAt:   event.ExpiresAt.UTC(),
		RefreshedAt: event.RefreshedAt.UTC(),
	}

	return p.publish(ctx, event.EventID, "teamgate.session.refreshed", event.SubjectID, event.RefreshedAt, payload)
}

// PublishOrganizationSwitched publishes teamgate.session.organization_switched events.
func (p *EventPublisher) PublishOrganizationSwitched(ctx context.Context, event domain.OrganizationSwitchedEvent) error {
	payload := struct {
		SubjectID      string    `json:"subject_id"`
		OrganizationID string    `json:"organization_id"`
		SwitchedAt     time.Time `json:"switched_at"`
	}{
		SubjectID:      event.SubjectID,
		OrganizationID: event.OrganizationID,
		SwitchedAt:     event.SwitchedAt.UTC(),
	}

	return p.publish(ctx, event.EventID, "teamgate.session.organization_switched", event.SubjectID, event.SwitchedAt, payload)
}

// PublishSessionDestroyed publishes teamgate.session.destroyed events.
func (p *EventPublisher) PublishSessionDestroyed(ctx context.Context, event domain.SessionDestroyedEvent) error {
	payload := struct {
		SubjectID   string    `json:"subject_id"`
		Reason      string    `json:"reason"`
		DestroyedAt time.Time `json:"destroyed_at"`
	}{
		SubjectID:   event.SubjectID,
		Reason:      event.Reason,
		DestroyedAt: event.DestroyedAt.UTC(),
	}

	return p.publish(ctx, event.EventID, "teamgate.session.destroyed", event.SubjectID, event.DestroyedAt, payload)
}

// PublishPersonalOrganizationProvisioned publishes teamgate.organization.provisioned events.
func (p *EventPublisher) PublishPersonalOrganizationProvisioned(ctx context.Context, event domain.PersonalOrganizationProvisionedEvent) error {
	payload := struct {
		SubjectID      string    `json:"subject_id"`
		OrganizationID string    `json:"organization_id"`
		Name           string    `json:"name"`
		ProvisionedAt  time.Time `json:"provisioned_at"`
	}{
		SubjectID:      event.SubjectID,
		OrganizationID: event.OrganizationID,
		Name:           event.Name,
		ProvisionedAt:  event.ProvisionedAt.UTC(),
	}

	return p.publish(ctx, event.EventID, "teamgate.organization.provisioned", event.SubjectID, event.ProvisionedAt, payload)
}

var _ port.EventPublisher = (*EventPublisher)(nil)
