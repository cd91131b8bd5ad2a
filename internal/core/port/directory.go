package port

import (
	"context"

	"github.com/stackpilot/teamgate/internal/core/domain"
)

// SubjectPatch describes the fields of a subject record that routes are
// allowed to change. Nil fields are left untouched.
type SubjectPatch struct {
	Email         *string
	FirstName     *string
	LastName      *string
	EmailVerified *bool
}

// OrganizationSpec describes a new organization to create.
type OrganizationSpec struct {
	Name     string
	Color    string
	Personal bool
	Domains  []string
}

// OrganizationPatch describes organization fields open to update.
type OrganizationPatch struct {
	Name    *string
	Color   *string
	Domains []string
}

// MembershipPatch describes membership fields open to update.
type MembershipPatch struct {
	Role *domain.MembershipRole
}

// InvitationSpec describes an invitation to send.
type InvitationSpec struct {
	Email          string
	OrganizationID string
	Role           domain.MembershipRole
	InviterID      string
}

// Pagination bounds list calls against the Directory Service.
type Pagination struct {
	Limit  int
	After  string
	Before string
}

// AuthenticatedSubject is the tuple the Directory Service returns for a
// completed authentication (code exchange or organization selection).
type AuthenticatedSubject struct {
	Subject      domain.Subject
	AccessToken  string
	RefreshToken string
}

// DirectoryService is the external identity/organization system of record.
// All user, organization, membership and invitation state lives there; this
// service only caches snapshots of it inside signed session tokens.
type DirectoryService interface {
	GetSubject(ctx context.Context, id string) (*domain.Subject, error)
	UpdateSubject(ctx context.Context, id string, patch SubjectPatch) (*domain.Subject, error)

	ListMembershipsBySubject(ctx context.Context, subjectID string, page Pagination) ([]domain.Membership, error)
	ListMembershipsByOrganization(ctx context.Context, organizationID string, page Pagination) ([]domain.Membership, error)
	CreateMembership(ctx context.Context, subjectID, organizationID string, role domain.MembershipRole) (*domain.Membership, error)
	UpdateMembership(ctx context.Context, membershipID string, patch MembershipPatch) (*domain.Membership, error)
	DeleteMembership(ctx context.Context, membershipID string) error

	GetOrganization(ctx context.Context, id string) (*domain.Organization, error)
	CreateOrganization(ctx context.Context, spec OrganizationSpec) (*domain.Organization, error)
	UpdateOrganization(ctx context.Context, id string, patch OrganizationPatch) (*domain.Organization, error)
	DeleteOrganization(ctx context.Context, id string) error

	SendInvitation(ctx context.Context, spec InvitationSpec) (*domain.Invitation, error)
	ListInvitations(ctx context.Context, organizationID string, page Pagination) ([]domain.Invitation, error)
	GetInvitation(ctx context.Context, id string) (*domain.Invitation, error)
	RevokeInvitation(ctx context.Context, id string) error

	AuthenticateWithCode(ctx context.Context, code string) (*AuthenticatedSubject, error)
	AuthenticateWithOrganizationSelection(ctx context.Context, pendingToken, organizationID string) (*AuthenticatedSubject, error)
}
