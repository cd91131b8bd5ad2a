package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/stackpilot/teamgate/internal/core/domain"
	"github.com/stackpilot/teamgate/internal/core/port"
)

func newOrgService(t *testing.T, directory *fakeDirectory, locker *fakeLocker, publisher *fakePublisher) *OrganizationService {
	t.Helper()
	clock := newTestClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	return NewOrganizationService(directory, locker, publisher, zaptest.NewLogger(t)).WithClock(clock.Now)
}

func TestOrganizationService_ListForSubject(t *testing.T) {
	directory := newFakeDirectory()
	directory.setMemberships("subj_01", teamOrg("org_01", "First"), teamOrg("org_02", "Second"))
	service := newOrgService(t, directory, newFakeLocker(), &fakePublisher{})

	orgs, err := service.ListForSubject(context.Background(), testSubject())
	if err != nil {
		t.Fatalf("ListForSubject returned error: %v", err)
	}
	if len(orgs) != 2 || orgs[0].ID != "org_01" || orgs[1].ID != "org_02" {
		t.Fatalf("unexpected organizations: %+v", orgs)
	}
	if directory.createOrgCalls != 0 {
		t.Fatalf("expected no provisioning, got %d creates", directory.createOrgCalls)
	}
}

func TestOrganizationService_FiltersPendingMemberships(t *testing.T) {
	directory := newFakeDirectory()
	directory.addMembership("subj_01", teamOrg("org_01", "Active"), domain.MembershipActive)
	directory.addMembership("subj_01", teamOrg("org_02", "Pending"), domain.MembershipPending)
	service := newOrgService(t, directory, newFakeLocker(), &fakePublisher{})

	orgs, err := service.ListForSubject(context.Background(), testSubject())
	if err != nil {
		t.Fatalf("ListForSubject returned error: %v", err)
	}
	if len(orgs) != 1 || orgs[0].ID != "org_01" {
		t.Fatalf("expected only the active membership, got %+v", orgs)
	}
}

func TestOrganizationService_ProvisionsPersonalOrganization(t *testing.T) {
	directory := newFakeDirectory()
	publisher := &fakePublisher{}
	service := newOrgService(t, directory, newFakeLocker(), publisher)

	orgs, err := service.ListForSubject(context.Background(), testSubject())
	if err != nil {
		t.Fatalf("ListForSubject returned error: %v", err)
	}
	if len(orgs) != 1 {
		t.Fatalf("expected one provisioned organization, got %d", len(orgs))
	}
	org := orgs[0]
	if org.Name != "Ada's Team" {
		t.Fatalf("expected name Ada's Team, got %q", org.Name)
	}
	if !org.Personal {
		t.Fatalf("expected personal organization")
	}
	if org.Color != domain.DefaultOrganizationColor {
		t.Fatalf("expected default color, got %q", org.Color)
	}

	memberships, err := directory.ListMembershipsBySubject(context.Background(), "subj_01", port.Pagination{Limit: membershipPageLimit})
	if err != nil {
		t.Fatalf("ListMembershipsBySubject returned error: %v", err)
	}
	if len(memberships) != 1 || memberships[0].Role != domain.RoleAdmin {
		t.Fatalf("expected one admin membership, got %+v", memberships)
	}
	if len(publisher.provisioned) != 1 || publisher.provisioned[0].OrganizationID != org.ID {
		t.Fatalf("expected provisioned event for %s", org.ID)
	}
}

func TestOrganizationService_PersonalNameFallsBackToSubjectID(t *testing.T) {
	directory := newFakeDirectory()
	service := newOrgService(t, directory, newFakeLocker(), &fakePublisher{})

	subject := testSubject()
	subject.FirstName = "  "

	orgs, err := service.ListForSubject(context.Background(), subject)
	if err != nil {
		t.Fatalf("ListForSubject returned error: %v", err)
	}
	if orgs[0].Name != "Team subj_01" {
		t.Fatalf("expected fallback name, got %q", orgs[0].Name)
	}
}

func TestOrganizationService_ProvisioningIsIdempotent(t *testing.T) {
	directory := newFakeDirectory()
	service := newOrgService(t, directory, newFakeLocker(), &fakePublisher{})

	first, err := service.ListForSubject(context.Background(), testSubject())
	if err != nil {
		t.Fatalf("first ListForSubject returned error: %v", err)
	}
	second, err := service.ListForSubject(context.Background(), testSubject())
	if err != nil {
		t.Fatalf("second ListForSubject returned error: %v", err)
	}

	if directory.createOrgCalls != 1 {
		t.Fatalf("expected exactly one organization creation, got %d", directory.createOrgCalls)
	}
	if len(first) != 1 || len(second) != 1 || first[0].ID != second[0].ID {
		t.Fatalf("expected both calls to return the same organization")
	}
}

func TestOrganizationService_LockLoserWaitsForWinner(t *testing.T) {
	directory := newFakeDirectory()
	locker := newFakeLocker()
	locker.denyAll = true
	service := newOrgService(t, directory, locker, &fakePublisher{})

	// The lock holder finishes provisioning while this request polls.
	go func() {
		time.Sleep(150 * time.Millisecond)
		directory.setMemberships("subj_01", teamOrg("org_won", "Winner"))
	}()

	orgs, err := service.ListForSubject(context.Background(), testSubject())
	if err != nil {
		t.Fatalf("ListForSubject returned error: %v", err)
	}
	if len(orgs) != 1 || orgs[0].ID != "org_won" {
		t.Fatalf("expected winner's organization, got %+v", orgs)
	}
	if directory.createOrgCalls != 0 {
		t.Fatalf("expected lock loser not to create, got %d creates", directory.createOrgCalls)
	}
}

func TestOrganizationService_LockLoserGivesUpEventually(t *testing.T) {
	directory := newFakeDirectory()
	locker := newFakeLocker()
	locker.denyAll = true
	service := newOrgService(t, directory, locker, &fakePublisher{})

	if _, err := service.ListForSubject(context.Background(), testSubject()); err == nil {
		t.Fatalf("expected error when provisioning never completes")
	}
}

func TestOrganizationService_DirectoryFailure(t *testing.T) {
	directory := newFakeDirectory()
	directory.listErr = errors.New("boom")
	service := newOrgService(t, directory, newFakeLocker(), &fakePublisher{})

	_, err := service.ListForSubject(context.Background(), testSubject())
	if !errors.Is(err, ErrDirectoryUnavailable) {
		t.Fatalf("expected ErrDirectoryUnavailable, got %v", err)
	}
}

func TestOrganizationService_RequiresSubjectID(t *testing.T) {
	service := newOrgService(t, newFakeDirectory(), newFakeLocker(), &fakePublisher{})

	if _, err := service.ListForSubject(context.Background(), domain.Subject{}); err == nil {
		t.Fatalf("expected error for empty subject id")
	}
}
