package handlers

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/stackpilot/teamgate/internal/core/domain"
	"github.com/stackpilot/teamgate/internal/transport/http/middleware"
)

// ErrorResponse represents a generic error payload with trace ID for debugging.
type ErrorResponse struct {
	Error   string `json:"error"`
	TraceID string `json:"trace_id,omitempty"`
}

// NewErrorResponse creates an error response with trace ID from context
func NewErrorResponse(c *gin.Context, errorMsg string) ErrorResponse {
	return ErrorResponse{
		Error:   errorMsg,
		TraceID: middleware.GetTraceID(c),
	}
}

// MessageResponse represents a simple message payload.
type MessageResponse struct {
	Message string `json:"message"`
}

// SubjectPayload is the identity snapshot returned in session responses.
type SubjectPayload struct {
	ID            string `json:"id"`
	Email         string `json:"email"`
	FirstName     string `json:"first_name,omitempty"`
	LastName      string `json:"last_name,omitempty"`
	EmailVerified bool   `json:"email_verified"`
}

// OrganizationDomainPayload describes a claimed organization domain.
type OrganizationDomainPayload struct {
	ID     string `json:"id"`
	Domain string `json:"domain"`
	State  string `json:"state"`
}

// OrganizationPayload describes an organization snapshot.
type OrganizationPayload struct {
	ID       string                      `json:"id"`
	Name     string                      `json:"name"`
	Color    string                      `json:"color,omitempty"`
	Personal bool                        `json:"personal"`
	Domains  []OrganizationDomainPayload `json:"domains,omitempty"`
}

// SessionResponse is the full session view returned to the frontend.
type SessionResponse struct {
	Subject               SubjectPayload        `json:"subject"`
	Organizations         []OrganizationPayload `json:"organizations"`
	CurrentOrganizationID string                `json:"current_organization_id,omitempty"`
	ExpiresAt             time.Time             `json:"expires_at"`
	LastActivity          time.Time             `json:"last_activity"`
	RememberMe            bool                  `json:"remember_me"`
}

// OrganizationListResponse wraps the session's organization snapshots.
type OrganizationListResponse struct {
	Organizations         []OrganizationPayload `json:"organizations"`
	CurrentOrganizationID string                `json:"current_organization_id,omitempty"`
}

// AuthCallbackRequest carries the authorization code returned by the
// Directory Service sign-in flow.
type AuthCallbackRequest struct {
	Code       string `json:"code" binding:"required"`
	RememberMe bool   `json:"remember_me"`
}

// OrganizationSelectRequest completes a sign-in that required an explicit
// organization choice.
type OrganizationSelectRequest struct {
	PendingToken   string `json:"pending_token" binding:"required"`
	OrganizationID string `json:"organization_id" binding:"required"`
	RememberMe     bool   `json:"remember_me"`
}

// CSRFTokenResponse returns a freshly minted anti-forgery token.
type CSRFTokenResponse struct {
	Token     string `json:"csrf_token"`
	ExpiresIn int    `json:"expires_in"`
}

// SwitchOrganizationRequest selects the active organization.
type SwitchOrganizationRequest struct {
	OrganizationID string `json:"organization_id" binding:"required"`
}

// ProfileUpdateRequest patches the subject's editable profile fields. Nil
// fields stay untouched.
type ProfileUpdateRequest struct {
	Email     *string `json:"email,omitempty"`
	FirstName *string `json:"first_name,omitempty"`
	LastName  *string `json:"last_name,omitempty"`
}

// OrganizationUpdateRequest patches organization fields.
type OrganizationUpdateRequest struct {
	Name    *string  `json:"name,omitempty"`
	Color   *string  `json:"color,omitempty"`
	Domains []string `json:"domains,omitempty"`
}

// MembershipPayload describes an organization member.
type MembershipPayload struct {
	ID             string          `json:"id"`
	SubjectID      string          `json:"subject_id"`
	OrganizationID string          `json:"organization_id"`
	Role           string          `json:"role"`
	Status         string          `json:"status"`
	CreatedAt      time.Time       `json:"created_at"`
	Subject        *SubjectPayload `json:"subject,omitempty"`
}

// MembershipListResponse wraps an organization's member list.
type MembershipListResponse struct {
	Members []MembershipPayload `json:"members"`
	Total   int                 `json:"total"`
}

// MembershipUpdateRequest changes a member's role.
type MembershipUpdateRequest struct {
	Role string `json:"role" binding:"required"`
}

// InvitationCreateRequest invites an email address into an organization.
type InvitationCreateRequest struct {
	Email string `json:"email" binding:"required,email"`
	Role  string `json:"role"`
}

// InvitationPayload describes a pending organization invitation.
type InvitationPayload struct {
	ID             string    `json:"id"`
	Email          string    `json:"email"`
	OrganizationID string    `json:"organization_id"`
	Role           string    `json:"role"`
	State          string    `json:"state"`
	ExpiresAt      time.Time `json:"expires_at"`
	CreatedAt      time.Time `json:"created_at"`
}

// InvitationListResponse wraps an organization's pending invitations.
type InvitationListResponse struct {
	Invitations []InvitationPayload `json:"invitations"`
	Total       int                 `json:"total"`
}

// HealthResponse describes the service health payload.
type HealthResponse struct {
	Status    string    `json:"status"`
	StartedAt time.Time `json:"started_at"`
	Timestamp time.Time `json:"timestamp"`
}

// ReadyResponse describes readiness probe results with dependency checks.
type ReadyResponse struct {
	Status    string            `json:"status"`
	Checks    map[string]string `json:"checks,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}

func newSubjectPayload(subject domain.Subject) SubjectPayload {
	return SubjectPayload{
		ID:            subject.ID,
		Email:         subject.Email,
		FirstName:     subject.FirstName,
		LastName:      subject.LastName,
		EmailVerified: subject.EmailVerified,
	}
}

func newOrganizationPayload(org domain.Organization) OrganizationPayload {
	payload := OrganizationPayload{
		ID:       org.ID,
		Name:     org.Name,
		Color:    org.Color,
		Personal: org.Personal,
	}

	if len(org.Domains) > 0 {
		payload.Domains = make([]OrganizationDomainPayload, 0, len(org.Domains))
		for _, d := range org.Domains {
			payload.Domains = append(payload.Domains, OrganizationDomainPayload{
				ID:     d.ID,
				Domain: d.Domain,
				State:  string(d.State),
			})
		}
	}

	return payload
}

func newOrganizationPayloads(orgs []domain.Organization) []OrganizationPayload {
	payloads := make([]OrganizationPayload, 0, len(orgs))
	for _, org := range orgs {
		payloads = append(payloads, newOrganizationPayload(org))
	}
	return payloads
}

func newSessionResponse(session domain.Session) SessionResponse {
	return SessionResponse{
		Subject:               newSubjectPayload(session.Subject),
		Organizations:         newOrganizationPayloads(session.Organizations),
		CurrentOrganizationID: session.CurrentOrganizationID,
		ExpiresAt:             session.ExpiresAt,
		LastActivity:          session.LastActivity,
		RememberMe:            session.RememberMe,
	}
}

func newMembershipPayload(membership domain.Membership) MembershipPayload {
	return MembershipPayload{
		ID:             membership.ID,
		SubjectID:      membership.SubjectID,
		OrganizationID: membership.OrganizationID,
		Role:           string(membership.Role),
		Status:         string(membership.Status),
		CreatedAt:      membership.CreatedAt,
	}
}

func newInvitationPayload(invitation domain.Invitation) InvitationPayload {
	return InvitationPayload{
		ID:             invitation.ID,
		Email:          invitation.Email,
		OrganizationID: invitation.OrganizationID,
		Role:           string(invitation.Role),
		State:          string(invitation.State),
		ExpiresAt:      invitation.ExpiresAt,
		CreatedAt:      invitation.CreatedAt,
	}
}
