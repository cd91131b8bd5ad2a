package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/stackpilot/teamgate/internal/core/domain"
	"github.com/stackpilot/teamgate/internal/core/port"
	"github.com/stackpilot/teamgate/internal/repository"
	"github.com/stackpilot/teamgate/internal/transport/http/cookie"
	"github.com/stackpilot/teamgate/internal/transport/http/middleware"
	"github.com/stackpilot/teamgate/internal/usecase"
)

const defaultListLimit = 50

// OrganizationHandler proxies organization, member and invitation management
// to the Directory Service. Every route is scoped to the caller's session:
// an organization id outside the session's membership snapshot is rejected
// before the Directory Service is ever contacted, the same fail-closed rule
// the session manager applies to organization switching.
type OrganizationHandler struct {
	directory port.DirectoryService
	sessions  *usecase.SessionService
	store     *cookie.Store
}

// NewOrganizationHandler constructs OrganizationHandler.
func NewOrganizationHandler(directory port.DirectoryService, sessions *usecase.SessionService, store *cookie.Store) *OrganizationHandler {
	return &OrganizationHandler{
		directory: directory,
		sessions:  sessions,
		store:     store,
	}
}

// RegisterRoutes binds organization routes onto an authenticated group.
func (h *OrganizationHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/organizations", h.list)
	r.PATCH("/organizations/:id", h.update)
	r.DELETE("/organizations/:id", h.remove)

	r.GET("/organizations/:id/members", h.listMembers)
	r.PATCH("/organizations/:id/members/:membership_id", h.updateMember)
	r.DELETE("/organizations/:id/members/:membership_id", h.removeMember)

	r.GET("/organizations/:id/invitations", h.listInvitations)
	r.POST("/organizations/:id/invitations", h.createInvitation)
	r.DELETE("/organizations/:id/invitations/:invitation_id", h.revokeInvitation)
}

// List godoc
// @Summary List the session's organizations
// @Description Returns the organization snapshots cached in the session.
// @Tags Organizations
// @Produce json
// @Success 200 {object} OrganizationListResponse
// @Failure 401 {object} ErrorResponse
// @Router /api/v1/organizations [get]
func (h *OrganizationHandler) list(c *gin.Context) {
	session, ok := middleware.SessionFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "authentication required"))
		return
	}

	c.JSON(http.StatusOK, OrganizationListResponse{
		Organizations:         newOrganizationPayloads(session.Organizations),
		CurrentOrganizationID: session.CurrentOrganizationID,
	})
}

// Update godoc
// @Summary Update an organization
// @Description Patches name, color or claimed domains. Requires admin role in the target organization.
// @Tags Organizations
// @Accept json
// @Produce json
// @Param id path string true "Organization ID"
// @Param request body OrganizationUpdateRequest true "Organization patch"
// @Success 200 {object} OrganizationPayload
// @Failure 400 {object} ErrorResponse
// @Failure 403 {object} ErrorResponse
// @Failure 503 {object} ErrorResponse
// @Router /api/v1/organizations/{id} [patch]
func (h *OrganizationHandler) update(c *gin.Context) {
	orgID, ok := h.requireAdminScope(c)
	if !ok {
		return
	}

	var req OrganizationUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid organization payload"))
		return
	}
	if req.Name == nil && req.Color == nil && req.Domains == nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "no organization fields supplied"))
		return
	}

	org, err := h.directory.UpdateOrganization(c.Request.Context(), orgID, port.OrganizationPatch{
		Name:    req.Name,
		Color:   req.Color,
		Domains: req.Domains,
	})
	if err != nil {
		h.respondDirectoryError(c, err, "failed to update organization")
		return
	}

	// Keep the session snapshot in line with the rename.
	h.sessions.RefreshOrganizations(c.Request.Context(), h.store.Bind(c))

	c.JSON(http.StatusOK, newOrganizationPayload(*org))
}

// Remove godoc
// @Summary Delete an organization
// @Description Deletes a team organization. Personal organizations cannot be deleted. Requires admin role.
// @Tags Organizations
// @Produce json
// @Param id path string true "Organization ID"
// @Success 204 {string} string ""
// @Failure 403 {object} ErrorResponse
// @Failure 503 {object} ErrorResponse
// @Router /api/v1/organizations/{id} [delete]
func (h *OrganizationHandler) remove(c *gin.Context) {
	orgID, ok := h.requireAdminScope(c)
	if !ok {
		return
	}

	session, _ := middleware.SessionFromContext(c)
	for _, org := range session.Organizations {
		if org.ID == orgID && org.Personal {
			c.JSON(http.StatusForbidden, NewErrorResponse(c, "personal organizations cannot be deleted"))
			return
		}
	}

	if err := h.directory.DeleteOrganization(c.Request.Context(), orgID); err != nil {
		h.respondDirectoryError(c, err, "failed to delete organization")
		return
	}

	h.sessions.RefreshOrganizations(c.Request.Context(), h.store.Bind(c))

	c.Status(http.StatusNoContent)
}

// ListMembers godoc
// @Summary List organization members
// @Tags Organizations
// @Produce json
// @Param id path string true "Organization ID"
// @Success 200 {object} MembershipListResponse
// @Failure 403 {object} ErrorResponse
// @Failure 503 {object} ErrorResponse
// @Router /api/v1/organizations/{id}/members [get]
func (h *OrganizationHandler) listMembers(c *gin.Context) {
	orgID, ok := h.requireOrganizationScope(c)
	if !ok {
		return
	}

	memberships, err := h.directory.ListMembershipsByOrganization(c.Request.Context(), orgID, paginationFromQuery(c))
	if err != nil {
		h.respondDirectoryError(c, err, "failed to list members")
		return
	}

	payloads := make([]MembershipPayload, 0, len(memberships))
	for _, membership := range memberships {
		payloads = append(payloads, newMembershipPayload(membership))
	}

	c.JSON(http.StatusOK, MembershipListResponse{Members: payloads, Total: len(payloads)})
}

// UpdateMember godoc
// @Summary Change a member's role
// @Description Requires admin role in the organization.
// @Tags Organizations
// @Accept json
// @Produce json
// @Param id path string true "Organization ID"
// @Param membership_id path string true "Membership ID"
// @Param request body MembershipUpdateRequest true "Role change"
// @Success 200 {object} MembershipPayload
// @Failure 400 {object} ErrorResponse
// @Failure 403 {object} ErrorResponse
// @Failure 503 {object} ErrorResponse
// @Router /api/v1/organizations/{id}/members/{membership_id} [patch]
func (h *OrganizationHandler) updateMember(c *gin.Context) {
	if _, ok := h.requireAdminScope(c); !ok {
		return
	}

	var req MembershipUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "role is required"))
		return
	}

	role, ok := parseMembershipRole(req.Role)
	if !ok {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "unknown role"))
		return
	}

	membership, err := h.directory.UpdateMembership(c.Request.Context(), c.Param("membership_id"), port.MembershipPatch{Role: &role})
	if err != nil {
		h.respondDirectoryError(c, err, "failed to update membership")
		return
	}

	c.JSON(http.StatusOK, newMembershipPayload(*membership))
}

// RemoveMember godoc
// @Summary Remove a member from an organization
// @Description Requires admin role in the organization.
// @Tags Organizations
// @Produce json
// @Param id path string true "Organization ID"
// @Param membership_id path string true "Membership ID"
// @Success 204 {string} string ""
// @Failure 403 {object} ErrorResponse
// @Failure 503 {object} ErrorResponse
// @Router /api/v1/organizations/{id}/members/{membership_id} [delete]
func (h *OrganizationHandler) removeMember(c *gin.Context) {
	if _, ok := h.requireAdminScope(c); !ok {
		return
	}

	if err := h.directory.DeleteMembership(c.Request.Context(), c.Param("membership_id")); err != nil {
		h.respondDirectoryError(c, err, "failed to remove member")
		return
	}

	c.Status(http.StatusNoContent)
}

// ListInvitations godoc
// @Summary List pending invitations
// @Tags Organizations
// @Produce json
// @Param id path string true "Organization ID"
// @Success 200 {object} InvitationListResponse
// @Failure 403 {object} ErrorResponse
// @Failure 503 {object} ErrorResponse
// @Router /api/v1/organizations/{id}/invitations [get]
func (h *OrganizationHandler) listInvitations(c *gin.Context) {
	orgID, ok := h.requireOrganizationScope(c)
	if !ok {
		return
	}

	invitations, err := h.directory.ListInvitations(c.Request.Context(), orgID, paginationFromQuery(c))
	if err != nil {
		h.respondDirectoryError(c, err, "failed to list invitations")
		return
	}

	payloads := make([]InvitationPayload, 0, len(invitations))
	for _, invitation := range invitations {
		payloads = append(payloads, newInvitationPayload(invitation))
	}

	c.JSON(http.StatusOK, InvitationListResponse{Invitations: payloads, Total: len(payloads)})
}

// CreateInvitation godoc
// @Summary Invite an email address into an organization
// @Description Requires admin role in the organization.
// @Tags Organizations
// @Accept json
// @Produce json
// @Param id path string true "Organization ID"
// @Param request body InvitationCreateRequest true "Invitation payload"
// @Success 201 {object} InvitationPayload
// @Failure 400 {object} ErrorResponse
// @Failure 403 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Failure 503 {object} ErrorResponse
// @Router /api/v1/organizations/{id}/invitations [post]
func (h *OrganizationHandler) createInvitation(c *gin.Context) {
	orgID, ok := h.requireAdminScope(c)
	if !ok {
		return
	}

	var req InvitationCreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "valid email is required"))
		return
	}

	role := domain.RoleMember
	if strings.TrimSpace(req.Role) != "" {
		parsed, ok := parseMembershipRole(req.Role)
		if !ok {
			c.JSON(http.StatusBadRequest, NewErrorResponse(c, "unknown role"))
			return
		}
		role = parsed
	}

	session, _ := middleware.SessionFromContext(c)

	invitation, err := h.directory.SendInvitation(c.Request.Context(), port.InvitationSpec{
		Email:          strings.TrimSpace(req.Email),
		OrganizationID: orgID,
		Role:           role,
		InviterID:      session.Subject.ID,
	})
	if err != nil {
		h.respondDirectoryError(c, err, "failed to send invitation")
		return
	}

	c.JSON(http.StatusCreated, newInvitationPayload(*invitation))
}

// RevokeInvitation godoc
// @Summary Revoke a pending invitation
// @Description Requires admin role in the organization.
// @Tags Organizations
// @Produce json
// @Param id path string true "Organization ID"
// @Param invitation_id path string true "Invitation ID"
// @Success 204 {string} string ""
// @Failure 403 {object} ErrorResponse
// @Failure 503 {object} ErrorResponse
// @Router /api/v1/organizations/{id}/invitations/{invitation_id} [delete]
func (h *OrganizationHandler) revokeInvitation(c *gin.Context) {
	if _, ok := h.requireAdminScope(c); !ok {
		return
	}

	if err := h.directory.RevokeInvitation(c.Request.Context(), c.Param("invitation_id")); err != nil {
		h.respondDirectoryError(c, err, "failed to revoke invitation")
		return
	}

	c.Status(http.StatusNoContent)
}

// requireOrganizationScope resolves the :id parameter and rejects ids outside
// the session's membership snapshot.
func (h *OrganizationHandler) requireOrganizationScope(c *gin.Context) (string, bool) {
	session, ok := middleware.SessionFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "authentication required"))
		return "", false
	}

	orgID := strings.TrimSpace(c.Param("id"))
	if orgID == "" || !session.HasOrganization(orgID) {
		c.JSON(http.StatusForbidden, NewErrorResponse(c, "organization not available to this session"))
		return "", false
	}

	return orgID, true
}

// requireAdminScope additionally verifies the caller holds the admin role in
// the target organization, per the live Directory record rather than the
// session snapshot.
func (h *OrganizationHandler) requireAdminScope(c *gin.Context) (string, bool) {
	orgID, ok := h.requireOrganizationScope(c)
	if !ok {
		return "", false
	}

	session, _ := middleware.SessionFromContext(c)

	memberships, err := h.directory.ListMembershipsBySubject(c.Request.Context(), session.Subject.ID, port.Pagination{Limit: defaultListLimit})
	if err != nil {
		h.respondDirectoryError(c, err, "failed to verify organization role")
		return "", false
	}

	for _, membership := range memberships {
		if membership.OrganizationID == orgID && membership.Role == domain.RoleAdmin {
			return orgID, true
		}
	}

	c.JSON(http.StatusForbidden, NewErrorResponse(c, "admin role required"))
	return "", false
}

func (h *OrganizationHandler) respondDirectoryError(c *gin.Context, err error, fallback string) {
	RespondWithMappedError(c, err, []ErrorCase{
		{Err: repository.ErrNotFound, Status: http.StatusNotFound, Message: "record not found"},
		{Err: repository.ErrConflict, Status: http.StatusConflict, Message: "record conflict"},
		{Err: usecase.ErrDirectoryUnavailable, Status: http.StatusServiceUnavailable, Message: "directory service unavailable"},
	}, http.StatusServiceUnavailable, fallback)
}

func paginationFromQuery(c *gin.Context) port.Pagination {
	page := port.Pagination{
		Limit:  defaultListLimit,
		After:  strings.TrimSpace(c.Query("after")),
		Before: strings.TrimSpace(c.Query("before")),
	}

	if raw := strings.TrimSpace(c.Query("limit")); raw != "" {
		if limit, err := strconv.Atoi(raw); err == nil && limit > 0 && limit <= 200 {
			page.Limit = limit
		}
	}

	return page
}

func parseMembershipRole(raw string) (domain.MembershipRole, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case string(domain.RoleAdmin):
		return domain.RoleAdmin, true
	case string(domain.RoleMember):
		return domain.RoleMember, true
	default:
		return "", false
	}
}
