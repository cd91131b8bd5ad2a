package directory

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/stackpilot/teamgate/internal/core/domain"
	"github.com/stackpilot/teamgate/internal/core/port"
	"github.com/stackpilot/teamgate/internal/infra/config"
	"github.com/stackpilot/teamgate/internal/repository"
)

const defaultTimeout = 10 * time.Second

// Client is the HTTP client for the Directory Service, the external system of
// record for subjects, organizations, memberships and invitations.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	logger  *zap.Logger
}

// NewClient constructs a Directory Service client from configuration.
func NewClient(cfg config.DirectorySettings, logger *zap.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		http:    &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

type subjectDTO struct {
	ID            string `json:"id"`
	Email         string `json:"email"`
	FirstName     string `json:"first_name"`
	LastName      string `json:"last_name"`
	EmailVerified bool   `json:"email_verified"`
}

type organizationDomainDTO struct {
	ID     string `json:"id"`
	Domain string `json:"domain"`
	State  string `json:"state"`
}

type organizationDTO struct {
	ID       string                  `json:"id"`
	Name     string                  `json:"name"`
	Color    string                  `json:"color"`
	Personal bool                    `json:"personal"`
	Domains  []organizationDomainDTO `json:"domains,omitempty"`
}

type membershipDTO struct {
	ID             string           `json:"id"`
	SubjectID      string           `json:"subject_id"`
	OrganizationID string           `json:"organization_id"`
	Role           string           `json:"role"`
	Status         string           `json:"status"`
	Organization   *organizationDTO `json:"organization,omitempty"`
	CreatedAt      time.Time        `json:"created_at"`
}

type invitationDTO struct {
	ID             string    `json:"id"`
	Email          string    `json:"email"`
	OrganizationID string    `json:"organization_id"`
	Role           string    `json:"role"`
	State          string    `json:"state"`
	ExpiresAt      time.Time `json:"expires_at"`
	CreatedAt      time.Time `json:"created_at"`
}

type authenticatedDTO struct {
	Subject      subjectDTO `json:"subject"`
	AccessToken  string     `json:"access_token"`
	RefreshToken string     `json:"refresh_token"`
}

type listResponse[T any] struct {
	Data []T `json:"data"`
}

func (dto subjectDTO) toDomain() *domain.Subject {
	return &domain.Subject{
		ID:            dto.ID,
		Email:         dto.Email,
		FirstName:     dto.FirstName,
		LastName:      dto.LastName,
		EmailVerified: dto.EmailVerified,
	}
}

func (dto organizationDTO) toDomain() *domain.Organization {
	domains := make([]domain.OrganizationDomain, 0, len(dto.Domains))
	for _, d := range dto.Domains {
		domains = append(domains, domain.OrganizationDomain{
			ID:     d.ID,
			Domain: d.Domain,
			State:  domain.DomainState(d.State),
		})
	}
	if len(domains) == 0 {
		domains = nil
	}

	return &domain.Organization{
		ID:       dto.ID,
		Name:     dto.Name,
		Color:    dto.Color,
		Personal: dto.Personal,
		Domains:  domains,
	}
}

func (dto membershipDTO) toDomain() domain.Membership {
	membership := domain.Membership{
		ID:             dto.ID,
		SubjectID:      dto.SubjectID,
		OrganizationID: dto.OrganizationID,
		Role:           domain.MembershipRole(dto.Role),
		Status:         domain.MembershipStatus(dto.Status),
		CreatedAt:      dto.CreatedAt,
	}
	if dto.Organization != nil {
		membership.Organization = dto.Organization.toDomain()
	}
	return membership
}

func (dto invitationDTO) toDomain() domain.Invitation {
	return domain.Invitation{
		ID:             dto.ID,
		Email:          dto.Email,
		OrganizationID: dto.OrganizationID,
		Role:           domain.MembershipRole(dto.Role),
		State:          domain.InvitationState(dto.State),
		ExpiresAt:      dto.ExpiresAt,
		CreatedAt:      dto.CreatedAt,
	}
}

// do issues one request and decodes the JSON response into out (when out is
// non-nil). 404 and 409 map to the repository sentinel errors so callers can
// branch without inspecting status codes.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body any, out any) error {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request body: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("build directory request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("directory request %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return repository.ErrNotFound
	case resp.StatusCode == http.StatusConflict:
		return repository.ErrConflict
	case resp.StatusCode >= 400:
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("directory %s %s: status %d: %s", method, path, resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode directory response: %w", err)
	}
	return nil
}

func paginationQuery(page port.Pagination) url.Values {
	query := url.Values{}
	if page.Limit > 0 {
		query.Set("limit", strconv.Itoa(page.Limit))
	}
	if page.After != "" {
		query.Set("after", page.After)
	}
	if page.Before != "" {
		query.Set("before", page.Before)
	}
	return query
}

// GetSubject fetches a subject record.
func (c *Client) GetSubject(ctx context.Context, id string) (*domain.Subject, error) {
	var dto subjectDTO
	if err := c.do(ctx, http.MethodGet, "/v1/subjects/"+url.PathEscape(id), nil, nil, &dto); err != nil {
		return nil, err
	}
	return dto.toDomain(), nil
}

// UpdateSubject patches a subject record and returns the updated state.
func (c *Client) UpdateSubject(ctx context.Context, id string, patch port.SubjectPatch) (*domain.Subject, error) {
	body := map[string]any{}
	if patch.Email != nil {
		body["email"] = *patch.Email
	}
	if patch.FirstName != nil {
		body["first_name"] = *patch.FirstName
	}
	if patch.LastName != nil {
		body["last_name"] = *patch.LastName
	}
	if patch.EmailVerified != nil {
		body["email_verified"] = *patch.EmailVerified
	}

	var dto subjectDTO
	if err := c.do(ctx, http.MethodPatch, "/v1/subjects/"+url.PathEscape(id), nil, body, &dto); err != nil {
		return nil, err
	}
	return dto.toDomain(), nil
}

// ListMembershipsBySubject returns the subject's memberships with embedded
// organization snapshots.
func (c *Client) ListMembershipsBySubject(ctx context.Context, subjectID string, page port.Pagination) ([]domain.Membership, error) {
	query := paginationQuery(page)
	query.Set("expand", "organization")

	var resp listResponse[membershipDTO]
	if err := c.do(ctx, http.MethodGet, "/v1/subjects/"+url.PathEscape(subjectID)+"/memberships", query, nil, &resp); err != nil {
		return nil, err
	}

	memberships := make([]domain.Membership, 0, len(resp.Data))
	for _, dto := range resp.Data {
		memberships = append(memberships, dto.toDomain())
	}
	return memberships, nil
}

// ListMembershipsByOrganization returns the organization's member roster.
func (c *Client) ListMembershipsByOrganization(ctx context.Context, organizationID string, page port.Pagination) ([]domain.Membership, error) {
	var resp listResponse[membershipDTO]
	if err := c.do(ctx, http.MethodGet, "/v1/organizations/"+url.PathEscape(organizationID)+"/memberships", paginationQuery(page), nil, &resp); err != nil {
		return nil, err
	}

	memberships := make([]domain.Membership, 0, len(resp.Data))
	for _, dto := range resp.Data {
		memberships = append(memberships, dto.toDomain())
	}
	return memberships, nil
}

// CreateMembership adds a subject to an organization.
func (c *Client) CreateMembership(ctx context.Context, subjectID, organizationID string, role domain.MembershipRole) (*domain.Membership, error) {
	body := map[string]any{
		"subject_id": subjectID,
		"role":       string(role),
	}

	var dto membershipDTO
	if err := c.do(ctx, http.MethodPost, "/v1/organizations/"+url.PathEscape(organizationID)+"/memberships", nil, body, &dto); err != nil {
		return nil, err
	}
	membership := dto.toDomain()
	return &membership, nil
}

// UpdateMembership patches a membership record.
func (c *Client) UpdateMembership(ctx context.Context, membershipID string, patch port.MembershipPatch) (*domain.Membership, error) {
	body := map[string]any{}
	if patch.Role != nil {
		body["role"] = string(*patch.Role)
	}

	var dto membershipDTO
	if err := c.do(ctx, http.MethodPatch, "/v1/memberships/"+url.PathEscape(membershipID), nil, body, &dto); err != nil {
		return nil, err
	}
	membership := dto.toDomain()
	return &membership, nil
}

// DeleteMembership removes a subject from an organization.
func (c *Client) DeleteMembership(ctx context.Context, membershipID string) error {
	return c.do(ctx, http.MethodDelete, "/v1/memberships/"+url.PathEscape(membershipID), nil, nil, nil)
}

// GetOrganization fetches an organization record.
func (c *Client) GetOrganization(ctx context.Context, id string) (*domain.Organization, error) {
	var dto organizationDTO
	if err := c.do(ctx, http.MethodGet, "/v1/organizations/"+url.PathEscape(id), nil, nil, &dto); err != nil {
		return nil, err
	}
	return dto.toDomain(), nil
}

// CreateOrganization creates a new organization.
func (c *Client) CreateOrganization(ctx context.Context, spec port.OrganizationSpec) (*domain.Organization, error) {
	body := map[string]any{
		"name":     spec.Name,
		"color":    spec.Color,
		"personal": spec.Personal,
	}
	if len(spec.Domains) > 0 {
		body["domains"] = spec.Domains
	}

	var dto organizationDTO
	if err := c.do(ctx, http.MethodPost, "/v1/organizations", nil, body, &dto); err != nil {
		return nil, err
	}
	return dto.toDomain(), nil
}

// UpdateOrganization patches an organization record.
func (c *Client) UpdateOrganization(ctx context.Context, id string, patch port.OrganizationPatch) (*domain.Organization, error) {
	body := map[string]any{}
	if patch.Name != nil {
		body["name"] = *patch.Name
	}
	if patch.Color != nil {
		body["color"] = *patch.Color
	}
	if patch.Domains != nil {
		body["domains"] = patch.Domains
	}

	var dto organizationDTO
	if err := c.do(ctx, http.MethodPatch, "/v1/organizations/"+url.PathEscape(id), nil, body, &dto); err != nil {
		return nil, err
	}
	return dto.toDomain(), nil
}

// DeleteOrganization removes an organization.
func (c *Client) DeleteOrganization(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/v1/organizations/"+url.PathEscape(id), nil, nil, nil)
}

// SendInvitation creates a pending invite.
func (c *Client) SendInvitation(ctx context.Context, spec port.InvitationSpec) (*domain.Invitation, error) {
	body := map[string]any{
		"email":      spec.Email,
		"role":       string(spec.Role),
		"inviter_id": spec.InviterID,
	}

	var dto invitationDTO
	if err := c.do(ctx, http.MethodPost, "/v1/organizations/"+url.PathEscape(spec.OrganizationID)+"/invitations", nil, body, &dto); err != nil {
		return nil, err
	}
	invitation := dto.toDomain()
	return &invitation, nil
}

// ListInvitations returns the organization's pending invites.
func (c *Client) ListInvitations(ctx context.Context, organizationID string, page port.Pagination) ([]domain.Invitation, error) {
	var resp listResponse[invitationDTO]
	if err := c.do(ctx, http.MethodGet, "/v1/organizations/"+url.PathEscape(organizationID)+"/invitations", paginationQuery(page), nil, &resp); err != nil {
		return nil, err
	}

	invitations := make([]domain.Invitation, 0, len(resp.Data))
	for _, dto := range resp.Data {
		invitations = append(invitations, dto.toDomain())
	}
	return invitations, nil
}

// GetInvitation fetches an invitation record.
func (c *Client) GetInvitation(ctx context.Context, id string) (*domain.Invitation, error) {
	var dto invitationDTO
	if err := c.do(ctx, http.MethodGet, "/v1/invitations/"+url.PathEscape(id), nil, nil, &dto); err != nil {
		return nil, err
	}
	invitation := dto.toDomain()
	return &invitation, nil
}

// RevokeInvitation cancels a pending invite.
func (c *Client) RevokeInvitation(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/v1/invitations/"+url.PathEscape(id), nil, nil, nil)
}

// AuthenticateWithCode exchanges an authorization code for the subject and its
// upstream tokens.
func (c *Client) AuthenticateWithCode(ctx context.Context, code string) (*port.AuthenticatedSubject, error) {
	body := map[string]any{"code": code}

	var dto authenticatedDTO
	if err := c.do(ctx, http.MethodPost, "/v1/auth/code", nil, body, &dto); err != nil {
		return nil, err
	}

	return &port.AuthenticatedSubject{
		Subject:      *dto.Subject.toDomain(),
		AccessToken:  dto.AccessToken,
		RefreshToken: dto.RefreshToken,
	}, nil
}

// AuthenticateWithOrganizationSelection completes a multi-organization sign-in
// by resolving the pending token against the chosen organization.
func (c *Client) AuthenticateWithOrganizationSelection(ctx context.Context, pendingToken, organizationID string) (*port.AuthenticatedSubject, error) {
	body := map[string]any{
		"pending_token":   pendingToken,
		"organization_id": organizationID,
	}

	var dto authenticatedDTO
	if err := c.do(ctx, http.MethodPost, "/v1/auth/organization", nil, body, &dto); err != nil {
		return nil, err
	}

	return &port.AuthenticatedSubject{
		Subject:      *dto.Subject.toDomain(),
		AccessToken:  dto.AccessToken,
		RefreshToken: dto.RefreshToken,
	}, nil
}

var _ port.DirectoryService = (*Client)(nil)
