package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/stackpilot/teamgate/internal/core/domain"
	"github.com/stackpilot/teamgate/internal/core/port"
)

// ErrDirectoryUnavailable indicates the Directory Service could not serve the
// request.
var ErrDirectoryUnavailable = errors.New("directory service unavailable")

const (
	provisionLockTTL    = 30 * time.Second
	provisionRetryDelay = 100 * time.Millisecond
	provisionRetryLimit = 5
	membershipPageLimit = 100
)

// OrganizationService maintains the snapshot of organizations a subject
// belongs to. It is the only place that creates organizations implicitly:
// a subject with zero memberships gets exactly one personal organization.
type OrganizationService struct {
	directory port.DirectoryService
	locker    port.ProvisionLocker
	events    port.EventPublisher
	logger    *zap.Logger
	now       func() time.Time
}

// NewOrganizationService constructs an OrganizationService.
func NewOrganizationService(directory port.DirectoryService, locker port.ProvisionLocker, events port.EventPublisher, logger *zap.Logger) *OrganizationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OrganizationService{
		directory: directory,
		locker:    locker,
		events:    events,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the internal clock for deterministic tests.
func (s *OrganizationService) WithClock(clock func() time.Time) *OrganizationService {
	if clock != nil {
		s.now = clock
	}
	return s
}

// ListForSubject returns the ordered organization snapshots the subject is a
// member of, provisioning a personal organization when the subject has none.
func (s *OrganizationService) ListForSubject(ctx context.Context, subject domain.Subject) ([]domain.Organization, error) {
	if strings.TrimSpace(subject.ID) == "" {
		return nil, fmt.Errorf("subject id is required")
	}
	if s.directory == nil {
		return nil, fmt.Errorf("directory service not configured")
	}

	orgs, err := s.fetchSnapshots(ctx, subject.ID)
	if err != nil {
		return nil, err
	}
	if len(orgs) > 0 {
		return orgs, nil
	}

	return s.provisionPersonal(ctx, subject)
}

func (s *OrganizationService) fetchSnapshots(ctx context.Context, subjectID string) ([]domain.Organization, error) {
	memberships, err := s.directory.ListMembershipsBySubject(ctx, subjectID, port.Pagination{Limit: membershipPageLimit})
	if err != nil {
		return nil, fmt.Errorf("%w: list memberships: %v", ErrDirectoryUnavailable, err)
	}

	orgs := make([]domain.Organization, 0, len(memberships))
	for _, membership := range memberships {
		if membership.Status != "" && membership.Status != domain.MembershipActive {
			continue
		}
		if membership.Organization != nil {
			orgs = append(orgs, *membership.Organization)
			continue
		}
		org, err := s.directory.GetOrganization(ctx, membership.OrganizationID)
		if err != nil {
			return nil, fmt.Errorf("%w: get organization %s: %v", ErrDirectoryUnavailable, membership.OrganizationID, err)
		}
		orgs = append(orgs, *org)
	}

	return orgs, nil
}

// provisionPersonal creates the subject's single personal organization. A
// provisioning lock serializes concurrent first sign-ins; losers of the race
// re-read memberships until the winner's organization becomes visible.
func (s *OrganizationService) provisionPersonal(ctx context.Context, subject domain.Subject) ([]domain.Organization, error) {
	if s.locker != nil {
		acquired, err := s.locker.Acquire(ctx, subject.ID, provisionLockTTL)
		if err != nil {
			return nil, fmt.Errorf("acquire provision lock: %w", err)
		}
		if !acquired {
			return s.awaitProvisioned(ctx, subject.ID)
		}
		defer func() {
			if err := s.locker.Release(ctx, subject.ID); err != nil {
				s.logger.Warn("release provision lock failed", zap.String("subject_id", subject.ID), zap.Error(err))
			}
		}()

		// The lock may have been acquired after another request finished
		// provisioning and released; re-read before creating.
		orgs, err := s.fetchSnapshots(ctx, subject.ID)
		if err != nil {
			return nil, err
		}
		if len(orgs) > 0 {
			return orgs, nil
		}
	}

	org, err := s.directory.CreateOrganization(ctx, port.OrganizationSpec{
		Name:     personalOrganizationName(subject),
		Color:    domain.DefaultOrganizationColor,
		Personal: true,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: create personal organization: %v", ErrDirectoryUnavailable, err)
	}

	if _, err := s.directory.CreateMembership(ctx, subject.ID, org.ID, domain.RoleAdmin); err != nil {
		return nil, fmt.Errorf("%w: create admin membership: %v", ErrDirectoryUnavailable, err)
	}

	s.logger.Info("personal organization provisioned",
		zap.String("subject_id", subject.ID),
		zap.String("organization_id", org.ID),
	)

	if s.events != nil {
		event := domain.PersonalOrganizationProvisionedEvent{
			EventID:        uuid.NewString(),
			SubjectID:      subject.ID,
			OrganizationID: org.ID,
			Name:           org.Name,
			ProvisionedAt:  s.now(),
		}
		if err := s.events.PublishPersonalOrganizationProvisioned(ctx, event); err != nil {
			s.logger.Warn("publish provisioned event failed", zap.String("subject_id", subject.ID), zap.Error(err))
		}
	}

	return []domain.Organization{*org}, nil
}

func (s *OrganizationService) awaitProvisioned(ctx context.Context, subjectID string) ([]domain.Organization, error) {
	for attempt := 0; attempt < provisionRetryLimit; attempt++ {
		orgs, err := s.fetchSnapshots(ctx, subjectID)
		if err != nil {
			return nil, err
		}
		if len(orgs) > 0 {
			return orgs, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(provisionRetryDelay):
		}
	}

	return nil, fmt.Errorf("personal organization provisioning in progress for subject %s", subjectID)
}

func personalOrganizationName(subject domain.Subject) string {
	given := strings.TrimSpace(subject.FirstName)
	if given != "" {
		return fmt.Sprintf("%s's Team", given)
	}
	return fmt.Sprintf("Team %s", subject.ID)
}
