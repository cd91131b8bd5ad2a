package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/stackpilot/teamgate/internal/core/port"
	"github.com/stackpilot/teamgate/internal/repository"
	"github.com/stackpilot/teamgate/internal/transport/http/cookie"
	"github.com/stackpilot/teamgate/internal/transport/http/middleware"
	"github.com/stackpilot/teamgate/internal/usecase"
)

// SessionHandler exposes read and mutation endpoints on the current session.
// All routes require the session middleware; the decoded session is taken
// from the request context, then every mutation re-reads the cookie through
// the carrier so concurrent re-issues stay consistent.
type SessionHandler struct {
	sessions  *usecase.SessionService
	directory port.DirectoryService
	store     *cookie.Store
}

// NewSessionHandler constructs SessionHandler.
func NewSessionHandler(sessions *usecase.SessionService, directory port.DirectoryService, store *cookie.Store) *SessionHandler {
	return &SessionHandler{
		sessions:  sessions,
		directory: directory,
		store:     store,
	}
}

// RegisterRoutes binds session routes onto an authenticated group.
func (h *SessionHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/session", h.current)
	r.POST("/session/refresh", h.refresh)
	r.POST("/session/organization", h.switchOrganization)
	r.POST("/session/organizations/refresh", h.refreshOrganizations)
	r.PATCH("/profile", h.updateProfile)
}

// Current godoc
// @Summary Fetch the current session
// @Description Returns the subject snapshot, organization list and active organization for the calling session.
// @Tags Session
// @Produce json
// @Success 200 {object} SessionResponse
// @Failure 401 {object} ErrorResponse
// @Router /api/v1/session [get]
func (h *SessionHandler) current(c *gin.Context) {
	session, ok := middleware.SessionFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "authentication required"))
		return
	}

	c.JSON(http.StatusOK, newSessionResponse(*session))
}

// Refresh godoc
// @Summary Extend the session's absolute expiry
// @Description Re-signs the session with a full lifetime derived from its remember-me flag, without re-authentication.
// @Tags Session
// @Produce json
// @Success 200 {object} SessionResponse
// @Failure 401 {object} ErrorResponse
// @Router /api/v1/session/refresh [post]
func (h *SessionHandler) refresh(c *gin.Context) {
	carrier := h.store.Bind(c)
	if !h.sessions.Refresh(c.Request.Context(), carrier) {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "authentication required"))
		return
	}

	h.respondWithSession(c, carrier)
}

// SwitchOrganization godoc
// @Summary Switch the active organization
// @Description Changes the session's current organization. The target must already be in the membership snapshot; unknown ids fail closed.
// @Tags Session
// @Accept json
// @Produce json
// @Param request body SwitchOrganizationRequest true "Target organization"
// @Success 200 {object} SessionResponse
// @Failure 400 {object} ErrorResponse
// @Failure 403 {object} ErrorResponse
// @Router /api/v1/session/organization [post]
func (h *SessionHandler) switchOrganization(c *gin.Context) {
	var req SwitchOrganizationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "organization_id is required"))
		return
	}

	carrier := h.store.Bind(c)
	if !h.sessions.SwitchOrganization(c.Request.Context(), carrier, strings.TrimSpace(req.OrganizationID)) {
		c.JSON(http.StatusForbidden, NewErrorResponse(c, "organization not available to this session"))
		return
	}

	h.respondWithSession(c, carrier)
}

// RefreshOrganizations godoc
// @Summary Re-fetch organization memberships
// @Description Replaces the session's cached organization list with fresh Directory Service data.
// @Tags Session
// @Produce json
// @Success 200 {object} SessionResponse
// @Failure 401 {object} ErrorResponse
// @Failure 503 {object} ErrorResponse
// @Router /api/v1/session/organizations/refresh [post]
func (h *SessionHandler) refreshOrganizations(c *gin.Context) {
	carrier := h.store.Bind(c)
	if !h.sessions.RefreshOrganizations(c.Request.Context(), carrier) {
		c.JSON(http.StatusServiceUnavailable, NewErrorResponse(c, "failed to refresh organizations"))
		return
	}

	h.respondWithSession(c, carrier)
}

// UpdateProfile godoc
// @Summary Update the subject's profile
// @Description Patches the subject record in the Directory Service, then merges the updated snapshot into the session.
// @Tags Session
// @Accept json
// @Produce json
// @Param request body ProfileUpdateRequest true "Profile patch"
// @Success 200 {object} SessionResponse
// @Failure 400 {object} ErrorResponse
// @Failure 401 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Failure 503 {object} ErrorResponse
// @Router /api/v1/profile [patch]
func (h *SessionHandler) updateProfile(c *gin.Context) {
	session, ok := middleware.SessionFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "authentication required"))
		return
	}

	var req ProfileUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid profile payload"))
		return
	}
	if req.Email == nil && req.FirstName == nil && req.LastName == nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "no profile fields supplied"))
		return
	}

	updated, err := h.directory.UpdateSubject(c.Request.Context(), session.Subject.ID, port.SubjectPatch{
		Email:     req.Email,
		FirstName: req.FirstName,
		LastName:  req.LastName,
	})
	if err != nil {
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: repository.ErrNotFound, Status: http.StatusNotFound, Message: "subject not found"},
			{Err: repository.ErrConflict, Status: http.StatusConflict, Message: "email already in use"},
		}, http.StatusServiceUnavailable, "failed to update profile")
		return
	}

	carrier := h.store.Bind(c)
	if !h.sessions.MergeSubjectData(c.Request.Context(), carrier, *updated) {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "authentication required"))
		return
	}

	h.respondWithSession(c, carrier)
}

// respondWithSession re-reads the freshly issued cookie so the response body
// matches what the client will carry on its next request.
func (h *SessionHandler) respondWithSession(c *gin.Context, carrier port.SessionCarrier) {
	session, ok := h.sessions.Fetch(c.Request.Context(), carrier)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "authentication required"))
		return
	}
	c.JSON(http.StatusOK, newSessionResponse(*session))
}
