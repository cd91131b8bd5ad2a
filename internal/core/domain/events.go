package domain

import "time"

// SessionCreatedEvent is published when a successful authentication issues a
// new session token.
type SessionCreatedEvent struct {
	EventID    string
	SubjectID  string
	Email      string
	RememberMe bool
	ExpiresAt  time.Time
	CreatedAt  time.Time
	Metadata   map[string]any
}

// SessionRefreshedEvent is published when a session's absolute expiry is
// extended without re-authentication.
type SessionRefreshedEvent struct {
	EventID     string
	SubjectID   string
	ExpiresAt   time.Time
	RefreshedAt time.Time
}

// OrganizationSwitchedEvent is published when the session's active
// organization changes.
type OrganizationSwitchedEvent struct {
	EventID        string
	SubjectID      string
	OrganizationID string
	SwitchedAt     time.Time
}

// SessionDestroyedEvent is published on logout or when an invalid session is
// proactively cleared.
type SessionDestroyedEvent struct {
	EventID     string
	SubjectID   string
	Reason      string
	DestroyedAt time.Time
}

// PersonalOrganizationProvisionedEvent is published when a first sign-in
// auto-creates a personal tenant for a subject with no memberships.
type PersonalOrganizationProvisionedEvent struct {
	EventID        string
	SubjectID      string
	OrganizationID string
	Name           string
	ProvisionedAt  time.Time
}

// SessionAuditEvent is the persisted audit-trail record for session
// lifecycle changes. Unlike the Kafka events above it is written
// synchronously best-effort to Postgres.
type SessionAuditEvent struct {
	ID        string
	SubjectID string
	Kind      string
	At        time.Time
	IP        *string
	UserAgent *string
	Details   map[string]any
}
