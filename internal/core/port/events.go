package port

import (
	"context"

	"github.com/stackpilot/teamgate/internal/core/domain"
)

// EventPublisher emits session lifecycle events to downstream consumers.
type EventPublisher interface {
	PublishSessionCreated(ctx context.Context, event domain.SessionCreatedEvent) error
	PublishSessionRefreshed(ctx context.Context, event domain.SessionRefreshedEvent) error
	PublishOrganizationSwitched(ctx context.Context, event domain.OrganizationSwitchedEvent) error
	PublishSessionDestroyed(ctx context.Context, event domain.SessionDestroyedEvent) error
	PublishPersonalOrganizationProvisioned(ctx context.Context, event domain.PersonalOrganizationProvisionedEvent) error
}
