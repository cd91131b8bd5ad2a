package usecase

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/stackpilot/teamgate/internal/core/domain"
	"github.com/stackpilot/teamgate/internal/core/port"
	"github.com/stackpilot/teamgate/internal/infra/security"
	"github.com/stackpilot/teamgate/internal/infra/telemetry"
)

// ErrNoSession indicates an operation that requires a session found none.
var ErrNoSession = errors.New("no valid session")

// SessionPolicy bundles the lifetime knobs governed by the remember-me
// choice: the absolute session lifetime and the secondary inactivity ceiling.
// Both must be satisfied for a session to be considered live.
type SessionPolicy struct {
	StandardTTL           time.Duration
	RememberMeTTL         time.Duration
	StandardIdleCeiling   time.Duration
	RememberMeIdleCeiling time.Duration
}

// DefaultSessionPolicy returns the production lifetimes: 7 days / 30 days
// absolute, 2 hours / 7 days idle.
func DefaultSessionPolicy() SessionPolicy {
	return SessionPolicy{
		StandardTTL:           7 * 24 * time.Hour,
		RememberMeTTL:         30 * 24 * time.Hour,
		StandardIdleCeiling:   2 * time.Hour,
		RememberMeIdleCeiling: 7 * 24 * time.Hour,
	}
}

func (p SessionPolicy) ttl(rememberMe bool) time.Duration {
	if rememberMe {
		return p.RememberMeTTL
	}
	return p.StandardTTL
}

func (p SessionPolicy) idleCeiling(rememberMe bool) time.Duration {
	if rememberMe {
		return p.RememberMeIdleCeiling
	}
	return p.StandardIdleCeiling
}

// SessionService owns the stateless session lifecycle: issuance, decoding,
// activity tracking, refresh, organization-context switching and
// invalidation. Every mutator follows decode, transform a copy, re-encode;
// there is no server-side session table and no cross-request consistency
// guarantee. Two concurrent requests holding the same pre-mutation cookie
// can race to produce divergent re-signed tokens; the last Set-Cookie applied
// by the client wins. That is an accepted trade-off of stateless sessions,
// not a defect to lock around.
//
// Every operation that touches the signed token swallows decode and
// signature failures into a neutral negative result. A tampered cookie
// degrades to "logged out", never to an error surfaced to the end user.
type SessionService struct {
	codec   *security.SessionCodec
	orgs    *OrganizationService
	policy  SessionPolicy
	events  port.EventPublisher
	audit   port.AuditStore
	metrics *telemetry.Metrics
	logger  *zap.Logger
	now     func() time.Time
}

// NewSessionService constructs a SessionService.
func NewSessionService(codec *security.SessionCodec, orgs *OrganizationService, policy SessionPolicy, logger *zap.Logger) *SessionService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if policy.StandardTTL <= 0 {
		policy = DefaultSessionPolicy()
	}
	return &SessionService{
		codec:  codec,
		orgs:   orgs,
		policy: policy,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the internal clock for deterministic tests.
func (s *SessionService) WithClock(clock func() time.Time) *SessionService {
	if clock != nil {
		s.now = clock
	}
	return s
}

// WithEventPublisher injects the lifecycle event publisher.
func (s *SessionService) WithEventPublisher(events port.EventPublisher) *SessionService {
	s.events = events
	return s
}

// WithAuditStore injects the audit-trail store.
func (s *SessionService) WithAuditStore(audit port.AuditStore) *SessionService {
	s.audit = audit
	return s
}

// WithMetrics injects the session lifecycle counters.
func (s *SessionService) WithMetrics(metrics *telemetry.Metrics) *SessionService {
	s.metrics = metrics
	return s
}

// Policy exposes the active lifetime policy.
func (s *SessionService) Policy() SessionPolicy {
	return s.policy
}

// Create issues a new signed session for a freshly authenticated subject.
// Organization memberships are fetched (and a personal organization
// provisioned when none exist) before signing. The returned token is the
// caller's to persist via the carrier.
func (s *SessionService) Create(ctx context.Context, auth port.AuthenticatedSubject, rememberMe bool) (string, *domain.Session, error) {
	if strings.TrimSpace(auth.Subject.ID) == "" {
		return "", nil, errors.New("authenticated subject is required")
	}

	orgs, err := s.orgs.ListForSubject(ctx, auth.Subject)
	if err != nil {
		return "", nil, err
	}

	now := s.now()
	ttl := s.policy.ttl(rememberMe)

	session := domain.Session{
		Subject: auth.Subject,
		Credential: domain.UpstreamCredential{
			AccessToken:  auth.AccessToken,
			RefreshToken: auth.RefreshToken,
		},
		Organizations: orgs,
		LastActivity:  now,
		ExpiresAt:     now.Add(ttl),
		RememberMe:    rememberMe,
	}
	if len(orgs) > 0 {
		session.CurrentOrganizationID = orgs[0].ID
	}

	token, err := s.codec.Encode(session, ttl)
	if err != nil {
		return "", nil, err
	}

	if s.events != nil {
		event := domain.SessionCreatedEvent{
			EventID:    uuid.NewString(),
			SubjectID:  session.Subject.ID,
			Email:      session.Subject.Email,
			RememberMe: rememberMe,
			ExpiresAt:  session.ExpiresAt,
			CreatedAt:  now,
		}
		if err := s.events.PublishSessionCreated(ctx, event); err != nil {
			s.logger.Warn("publish session created failed", zap.String("subject_id", session.Subject.ID), zap.Error(err))
		}
	}
	s.recordAudit(ctx, session.Subject.ID, "session.created", map[string]any{
		"remember_me": rememberMe,
		"expires_at":  session.ExpiresAt,
	})
	if s.metrics != nil {
		s.metrics.SessionsCreated.Inc()
	}

	return token, &session, nil
}

// Fetch reads and verifies the session carried by the request. Any decode
// failure returns (nil, false); callers treat "no valid session" as a normal
// outcome. A decoded payload with an empty organization list is transparently
// repopulated from the Directory Service without re-authentication.
func (s *SessionService) Fetch(ctx context.Context, carrier port.SessionCarrier) (*domain.Session, bool) {
	raw, ok := carrier.Token()
	if !ok {
		return nil, false
	}

	session, err := s.codec.Decode(raw)
	if err != nil {
		s.logger.Debug("session decode failed", zap.Error(err))
		return nil, false
	}
	if session.IsExpired(s.now()) {
		return nil, false
	}

	if len(session.Organizations) == 0 {
		// Defensive fallback for legacy or corrupted payloads.
		orgs, err := s.orgs.ListForSubject(ctx, session.Subject)
		if err != nil {
			s.logger.Warn("organization repopulation failed", zap.String("subject_id", session.Subject.ID), zap.Error(err))
			return session, true
		}
		session.ReplaceOrganizations(orgs)
		s.reissue(carrier, *session)
	}

	return session, true
}

// TouchActivity re-signs the session with a fresh activity timestamp. A false
// result (no session, decode failure) never raises.
func (s *SessionService) TouchActivity(ctx context.Context, carrier port.SessionCarrier) bool {
	session, ok := s.Fetch(ctx, carrier)
	if !ok {
		return false
	}

	session.LastActivity = s.now()
	return s.reissue(carrier, *session)
}

// Refresh extends the session's absolute expiry using its existing
// remember-me flag, without re-authentication against the Directory Service.
func (s *SessionService) Refresh(ctx context.Context, carrier port.SessionCarrier) bool {
	session, ok := s.Fetch(ctx, carrier)
	if !ok {
		return false
	}

	now := s.now()
	ttl := s.policy.ttl(session.RememberMe)
	session.LastActivity = now
	session.ExpiresAt = now.Add(ttl)

	token, err := s.codec.Encode(*session, ttl)
	if err != nil {
		s.logger.Warn("session refresh encode failed", zap.String("subject_id", session.Subject.ID), zap.Error(err))
		return false
	}
	carrier.Store(token, session.RememberMe)

	if s.events != nil {
		event := domain.SessionRefreshedEvent{
			EventID:     uuid.NewString(),
			SubjectID:   session.Subject.ID,
			ExpiresAt:   session.ExpiresAt,
			RefreshedAt: now,
		}
		if err := s.events.PublishSessionRefreshed(ctx, event); err != nil {
			s.logger.Warn("publish session refreshed failed", zap.String("subject_id", session.Subject.ID), zap.Error(err))
		}
	}
	s.recordAudit(ctx, session.Subject.ID, "session.refreshed", map[string]any{
		"expires_at": session.ExpiresAt,
	})

	return true
}

// MergeSubjectData replaces the cached subject snapshot after a profile edit
// while preserving every other session field. Only email, name fields and the
// verified flag may change; a mismatched subject id is a no-op.
func (s *SessionService) MergeSubjectData(ctx context.Context, carrier port.SessionCarrier, updated domain.Subject) bool {
	session, ok := s.Fetch(ctx, carrier)
	if !ok {
		return false
	}
	if updated.ID != session.Subject.ID {
		return false
	}

	session.Subject.Email = updated.Email
	session.Subject.FirstName = updated.FirstName
	session.Subject.LastName = updated.LastName
	session.Subject.EmailVerified = updated.EmailVerified
	session.LastActivity = s.now()

	return s.reissue(carrier, *session)
}

// SwitchOrganization changes the active organization. The target must already
// be in the session's membership snapshot; an unknown id fails closed with no
// mutation, so a client cannot switch into an organization it was never
// granted, even with a plausible-looking id.
func (s *SessionService) SwitchOrganization(ctx context.Context, carrier port.SessionCarrier, targetID string) bool {
	targetID = strings.TrimSpace(targetID)
	if targetID == "" {
		return false
	}

	session, ok := s.Fetch(ctx, carrier)
	if !ok {
		return false
	}
	if !session.HasOrganization(targetID) {
		s.logger.Warn("organization switch rejected",
			zap.String("subject_id", session.Subject.ID),
			zap.String("target_organization_id", targetID),
		)
		return false
	}

	now := s.now()
	session.CurrentOrganizationID = targetID
	session.LastActivity = now
	if !s.reissue(carrier, *session) {
		return false
	}

	if s.events != nil {
		event := domain.OrganizationSwitchedEvent{
			EventID:        uuid.NewString(),
			SubjectID:      session.Subject.ID,
			OrganizationID: targetID,
			SwitchedAt:     now,
		}
		if err := s.events.PublishOrganizationSwitched(ctx, event); err != nil {
			s.logger.Warn("publish organization switched failed", zap.String("subject_id", session.Subject.ID), zap.Error(err))
		}
	}
	s.recordAudit(ctx, session.Subject.ID, "session.organization_switched", map[string]any{
		"organization_id": targetID,
	})

	return true
}

// RefreshOrganizations re-fetches memberships from the Directory Service and
// restores the current-organization invariant: a current organization that
// disappeared falls back to the first entry of the new list.
func (s *SessionService) RefreshOrganizations(ctx context.Context, carrier port.SessionCarrier) bool {
	session, ok := s.Fetch(ctx, carrier)
	if !ok {
		return false
	}

	orgs, err := s.orgs.ListForSubject(ctx, session.Subject)
	if err != nil {
		s.logger.Warn("refresh organizations failed", zap.String("subject_id", session.Subject.ID), zap.Error(err))
		return false
	}

	session.ReplaceOrganizations(orgs)
	session.LastActivity = s.now()
	return s.reissue(carrier, *session)
}

// IsValid composes Fetch with the inactivity check. A session idle beyond its
// remember-me-dependent ceiling is invalid and its cookie is proactively
// cleared. This is a secondary timeout independent of the absolute expiry and
// the token's embedded expiration; all must hold.
func (s *SessionService) IsValid(ctx context.Context, carrier port.SessionCarrier) bool {
	session, ok := s.Fetch(ctx, carrier)
	if !ok {
		return false
	}

	idle := s.now().Sub(session.LastActivity)
	if idle > s.policy.idleCeiling(session.RememberMe) {
		carrier.Clear()
		s.publishDestroyed(ctx, session.Subject.ID, "inactivity_timeout")
		return false
	}

	return true
}

// Invalidate deletes the stored session. Idempotent: it succeeds with or
// without a prior valid session.
func (s *SessionService) Invalidate(ctx context.Context, carrier port.SessionCarrier) {
	subjectID := ""
	if raw, ok := carrier.Token(); ok {
		if session, err := s.codec.Decode(raw); err == nil {
			subjectID = session.Subject.ID
		}
	}

	carrier.Clear()

	if subjectID != "" {
		s.publishDestroyed(ctx, subjectID, "logout")
	}
}

// reissue re-signs the session with its remaining absolute lifetime and
// stores the new token. Sessions past their absolute expiry are not
// re-issued.
func (s *SessionService) reissue(carrier port.SessionCarrier, session domain.Session) bool {
	ttl := session.ExpiresAt.Sub(s.now())
	if ttl <= 0 {
		return false
	}

	token, err := s.codec.Encode(session, ttl)
	if err != nil {
		s.logger.Warn("session re-encode failed", zap.String("subject_id", session.Subject.ID), zap.Error(err))
		return false
	}

	carrier.Store(token, session.RememberMe)
	return true
}

func (s *SessionService) publishDestroyed(ctx context.Context, subjectID, reason string) {
	if s.events != nil {
		event := domain.SessionDestroyedEvent{
			EventID:     uuid.NewString(),
			SubjectID:   subjectID,
			Reason:      reason,
			DestroyedAt: s.now(),
		}
		if err := s.events.PublishSessionDestroyed(ctx, event); err != nil {
			s.logger.Warn("publish session destroyed failed", zap.String("subject_id", subjectID), zap.Error(err))
		}
	}
	s.recordAudit(ctx, subjectID, "session.destroyed", map[string]any{
		"reason": reason,
	})
	if s.metrics != nil {
		s.metrics.SessionsDestroyed.WithLabelValues(reason).Inc()
	}
}

// recordAudit writes a best-effort audit record; failures are logged, never
// propagated into the request path.
func (s *SessionService) recordAudit(ctx context.Context, subjectID, kind string, details map[string]any) {
	if s.audit == nil {
		return
	}

	event := domain.SessionAuditEvent{
		ID:        uuid.NewString(),
		SubjectID: subjectID,
		Kind:      kind,
		At:        s.now(),
		Details:   details,
	}
	if err := s.audit.StoreEvent(ctx, event); err != nil {
		s.logger.Warn("store session audit event failed",
			zap.String("subject_id", subjectID),
			zap.String("kind", kind),
			zap.Error(err),
		)
	}
}
