package kafka

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/stackpilot/teamgate/internal/core/domain"
	"github.com/stackpilot/teamgate/internal/core/port"
)

// StubPublisher logs events instead of sending them to Kafka. Useful for
// development environments without a broker.
type StubPublisher struct {
	logger *zap.Logger
}

// NewStubPublisher constructs a development-friendly event publisher.
func NewStubPublisher(logger *zap.Logger) *StubPublisher {
	return &StubPublisher{logger: logger}
}

func (p *StubPublisher) logEvent(eventType, subjectID string, at time.Time, payload any) {
	if at.IsZero() {
		at = time.Now().UTC()
	}

	p.logger.Info("stub event published",
		zap.String("event_type", eventType),
		zap.String("subject_id", subjectID),
		zap.Time("timestamp", at.UTC()),
		zap.Any("payload", payload),
	)
}

// PublishSessionCreated logs teamgate.session.created events.
func (p *StubPublisher) PublishSessionCreated(_ context.Context, event domain.SessionCreatedEvent) error {
	payload := map[string]any{
		"subject_id":  event.SubjectID,
		"email":       event.Email,
		"remember_me": event.RememberMe,
		"expires_at":  event.ExpiresAt,
		"created_at":  event.CreatedAt,
		"metadata":    event.Metadata,
	}
	p.logEvent("teamgate.session.created", event.SubjectID, event.CreatedAt, payload)
	return nil
}

// PublishSessionRefreshed logs teamgate.session.refreshed events.
func (p *StubPublisher) PublishSessionRefreshed(_ context.Context, event domain.SessionRefreshedEvent) error {
	payload := map[string]any{
		"subject_id":   event.SubjectID,
		"expires_at":   event.ExpiresAt,
		"refreshed_at": event.RefreshedAt,
	}
	p.logEvent("teamgate.session.refreshed", event.SubjectID, event.RefreshedAt, payload)
	return nil
}

// PublishOrganizationSwitched logs teamgate.session.organization_switched events.
func (p *StubPublisher) PublishOrganizationSwitched(_ context.Context, event domain.OrganizationSwitchedEvent) error {
	payload := map[string]any{
		"subject_id":      event.SubjectID,
		"organization_id": event.OrganizationID,
		"switched_at":     event.SwitchedAt,
	}
	p.logEvent("teamgate.session.organization_switched", event.SubjectID, event.SwitchedAt, payload)
	return nil
}

// PublishSessionDestroyed logs teamgate.session.destroyed events.
func (p *StubPublisher) PublishSessionDestroyed(_ context.Context, event domain.SessionDestroyedEvent) error {
	payload := map[string]any{
		"subject_id":   event.SubjectID,
		"reason":       event.Reason,
		"destroyed_at": event.DestroyedAt,
	}
	p.logEvent("teamgate.session.destroyed", event.SubjectID, event.DestroyedAt, payload)
	return nil
}

// PublishPersonalOrganizationProvisioned logs teamgate.organization.provisioned events.
func (p *StubPublisher) PublishPersonalOrganizationProvisioned(_ context.Context, event domain.PersonalOrganizationProvisionedEvent) error {
	payload := map[string]any{
		"subject_id":      event.SubjectID,
		"organization_id": event.OrganizationID,
		"name":            event.Name,
		"provisioned_at":  event.ProvisionedAt,
	}
	p.logEvent("teamgate.organization.provisioned", event.SubjectID, event.ProvisionedAt, payload)
	return nil
}

var _ port.EventPublisher = (*StubPublisher)(nil)
