package usecase

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/stackpilot/teamgate/internal/core/domain"
	"github.com/stackpilot/teamgate/internal/core/port"
	"github.com/stackpilot/teamgate/internal/infra/security"
	"github.com/stackpilot/teamgate/internal/infra/telemetry"
)

// DefaultCSRFTTL is both the embedded token expiry and the server-side
// freshness window.
const DefaultCSRFTTL = time.Hour

// CSRFService issues and verifies anti-forgery tokens bound to the ambient
// session. Tokens are deliberately not single-use: this is the double-submit
// pattern, not a nonce ledger. Capturing a valid token already requires a
// capability beyond plain cross-site request forgery.
type CSRFService struct {
	codec     *security.CSRFCodec
	sessions  *SessionService
	ttl       time.Duration
	freshness time.Duration
	metrics   *telemetry.Metrics
	audit     port.AuditStore
	logger    *zap.Logger
	now       func() time.Time
}

// NewCSRFService constructs a CSRFService.
func NewCSRFService(codec *security.CSRFCodec, sessions *SessionService, ttl time.Duration, logger *zap.Logger) *CSRFService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if ttl <= 0 {
		ttl = DefaultCSRFTTL
	}
	return &CSRFService{
		codec:     codec,
		sessions:  sessions,
		ttl:       ttl,
		freshness: ttl,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the internal clock for deterministic tests.
func (s *CSRFService) WithClock(clock func() time.Time) *CSRFService {
	if clock != nil {
		s.now = clock
	}
	return s
}

// WithMetrics injects the verification failure counters.
func (s *CSRFService) WithMetrics(metrics *telemetry.Metrics) *CSRFService {
	s.metrics = metrics
	return s
}

// WithAuditStore injects the audit-trail store for rejected verifications.
func (s *CSRFService) WithAuditStore(audit port.AuditStore) *CSRFService {
	s.audit = audit
	return s
}

// TTL exposes the configured token lifetime.
func (s *CSRFService) TTL() time.Duration {
	return s.ttl
}

// Issue mints a token for the current session's subject. A missing session is
// an authentication failure, not a silent fallback.
func (s *CSRFService) Issue(ctx context.Context, carrier port.SessionCarrier) (string, error) {
	session, ok := s.sessions.Fetch(ctx, carrier)
	if !ok {
		return "", ErrNoSession
	}
	return s.codec.Encode(session.Subject.ID, s.ttl)
}

// Verify checks a token against the ambient session: the session must exist,
// the token must decode, its subject must match the session's subject, and
// its age must be inside the freshness window. The age check is independent
// of the token's own embedded expiry as defense in depth against clock skew
// or an extended embedded lifetime.
func (s *CSRFService) Verify(ctx context.Context, carrier port.SessionCarrier, token string) bool {
	session, ok := s.sessions.Fetch(ctx, carrier)
	if !ok {
		s.rejected(ctx, "", "no_session")
		return false
	}

	decoded, err := s.codec.Decode(token)
	if err != nil {
		s.logger.Debug("csrf token decode failed", zap.Error(err))
		s.rejected(ctx, session.Subject.ID, "decode")
		return false
	}
	if decoded.SubjectID != session.Subject.ID {
		s.logger.Warn("csrf token subject mismatch",
			zap.String("session_subject_id", session.Subject.ID),
		)
		s.rejected(ctx, session.Subject.ID, "subject_mismatch")
		return false
	}
	if s.now().Sub(decoded.IssuedAt) > s.freshness {
		s.rejected(ctx, session.Subject.ID, "stale")
		return false
	}

	return true
}

// rejected records a failed verification on the metrics and audit surfaces;
// neither may block or fail the request.
func (s *CSRFService) rejected(ctx context.Context, subjectID, reason string) {
	if s.metrics != nil {
		s.metrics.CSRFFailures.WithLabelValues(reason).Inc()
	}
	if s.audit == nil || subjectID == "" {
		return
	}

	event := domain.SessionAuditEvent{
		ID:        uuid.NewString(),
		SubjectID: subjectID,
		Kind:      "csrf.rejected",
		At:        s.now(),
		Details:   map[string]any{"reason": reason},
	}
	if err := s.audit.StoreEvent(ctx, event); err != nil {
		s.logger.Warn("store csrf audit event failed",
			zap.String("subject_id", subjectID),
			zap.Error(err),
		)
	}
}
