package domain

import "time"

// DomainState enumerates verification states for an organization domain.
type DomainState string

const (
	DomainStateVerified   DomainState = "verified"
	DomainStatePending    DomainState = "pending"
	DomainStateUnverified DomainState = "unverified"
)

// OrganizationDomain is a domain claimed by an organization.
type OrganizationDomain struct {
	ID     string
	Domain string
	State  DomainState
}

// DefaultOrganizationColor is applied to auto-provisioned personal
// organizations that carry no branding of their own.
const DefaultOrganizationColor = "#6366F1"

// Organization is a tenant snapshot as cached inside a session. Personal
// organizations are single-member tenants provisioned implicitly on first
// sign-in; team organizations are created explicitly by users.
type Organization struct {
	ID       string
	Name     string
	Color    string
	Personal bool
	Domains  []OrganizationDomain
}

// MembershipRole enumerates the roles a subject can hold in an organization.
type MembershipRole string

const (
	RoleAdmin  MembershipRole = "admin"
	RoleMember MembershipRole = "member"
)

// MembershipStatus enumerates membership lifecycle states.
type MembershipStatus string

const (
	MembershipActive  MembershipStatus = "active"
	MembershipPending MembershipStatus = "pending"
)

// Membership links a subject to an organization with a role.
type Membership struct {
	ID             string
	SubjectID      string
	OrganizationID string
	Role           MembershipRole
	Status         MembershipStatus
	Organization   *Organization
	CreatedAt      time.Time
}

// InvitationState enumerates invitation lifecycle states.
type InvitationState string

const (
	InvitationPending  InvitationState = "pending"
	InvitationAccepted InvitationState = "accepted"
	InvitationRevoked  InvitationState = "revoked"
	InvitationExpired  InvitationState = "expired"
)

// Invitation represents a pending organization invite held by the Directory
// Service.
type Invitation struct {
	ID             string
	Email          string
	OrganizationID string
	Role           MembershipRole
	State          InvitationState
	ExpiresAt      time.Time
	CreatedAt      time.Time
}
