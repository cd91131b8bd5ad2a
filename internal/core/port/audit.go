package port

import (
	"context"

	"github.com/stackpilot/teamgate/internal/core/domain"
)

// AuditStore persists session lifecycle records for the audit trail.
type AuditStore interface {
	StoreEvent(ctx context.Context, event domain.SessionAuditEvent) error
	ListBySubject(ctx context.Context, subjectID string, limit int) ([]domain.SessionAuditEvent, error)
}
