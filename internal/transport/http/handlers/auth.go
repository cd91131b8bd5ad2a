package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/stackpilot/teamgate/internal/core/port"
	"github.com/stackpilot/teamgate/internal/repository"
	"github.com/stackpilot/teamgate/internal/transport/http/cookie"
	"github.com/stackpilot/teamgate/internal/usecase"
)

// AuthHandler exposes the sign-in callback and logout endpoints. It is the
// only place a session comes into or goes out of existence on behalf of the
// browser.
type AuthHandler struct {
	directory port.DirectoryService
	sessions  *usecase.SessionService
	store     *cookie.Store
}

// NewAuthHandler constructs AuthHandler.
func NewAuthHandler(directory port.DirectoryService, sessions *usecase.SessionService, store *cookie.Store) *AuthHandler {
	return &AuthHandler{
		directory: directory,
		sessions:  sessions,
		store:     store,
	}
}

// RegisterRoutes binds authentication routes, applying optional middleware
// ahead of the callback handlers.
func (h *AuthHandler) RegisterRoutes(r *gin.RouterGroup, callbackMiddlewares ...gin.HandlerFunc) {
	if len(callbackMiddlewares) > 0 {
		callbackChain := append([]gin.HandlerFunc{}, callbackMiddlewares...)
		r.POST("/callback", append(callbackChain, h.callback)...)

		selectChain := append([]gin.HandlerFunc{}, callbackMiddlewares...)
		r.POST("/organization", append(selectChain, h.selectOrganization)...)
	} else {
		r.POST("/callback", h.callback)
		r.POST("/organization", h.selectOrganization)
	}

	r.POST("/logout", h.logout)
}

// Callback godoc
// @Summary Complete a Directory Service sign-in
// @Description Exchanges the authorization code for subject identity, provisions organization context and sets the session cookie.
// @Tags Authentication
// @Accept json
// @Produce json
// @Param request body AuthCallbackRequest true "Callback payload"
// @Success 200 {object} SessionResponse
// @Failure 400 {object} ErrorResponse
// @Failure 401 {object} ErrorResponse
// @Failure 503 {object} ErrorResponse
// @Router /api/v1/auth/callback [post]
func (h *AuthHandler) callback(c *gin.Context) {
	var req AuthCallbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "code is required"))
		return
	}

	auth, err := h.directory.AuthenticateWithCode(c.Request.Context(), strings.TrimSpace(req.Code))
	if err != nil {
		h.respondAuthError(c, err)
		return
	}

	h.establishSession(c, *auth, req.RememberMe)
}

// SelectOrganization godoc
// @Summary Complete a sign-in that requires an organization choice
// @Description Finishes authentication for subjects whose Directory sign-in returned a pending token and sets the session cookie.
// @Tags Authentication
// @Accept json
// @Produce json
// @Param request body OrganizationSelectRequest true "Organization selection payload"
// @Success 200 {object} SessionResponse
// @Failure 400 {object} ErrorResponse
// @Failure 401 {object} ErrorResponse
// @Failure 503 {object} ErrorResponse
// @Router /api/v1/auth/organization [post]
func (h *AuthHandler) selectOrganization(c *gin.Context) {
	var req OrganizationSelectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "pending_token and organization_id are required"))
		return
	}

	auth, err := h.directory.AuthenticateWithOrganizationSelection(
		c.Request.Context(),
		strings.TrimSpace(req.PendingToken),
		strings.TrimSpace(req.OrganizationID),
	)
	if err != nil {
		h.respondAuthError(c, err)
		return
	}

	h.establishSession(c, *auth, req.RememberMe)
}

// Logout godoc
// @Summary Destroy the current session
// @Description Clears the session cookie. Idempotent: succeeds with or without a live session.
// @Tags Authentication
// @Produce json
// @Success 204 {string} string ""
// @Router /api/v1/auth/logout [post]
func (h *AuthHandler) logout(c *gin.Context) {
	h.sessions.Invalidate(c.Request.Context(), h.store.Bind(c))
	c.Status(http.StatusNoContent)
}

func (h *AuthHandler) establishSession(c *gin.Context, auth port.AuthenticatedSubject, rememberMe bool) {
	token, session, err := h.sessions.Create(c.Request.Context(), auth, rememberMe)
	if err != nil {
		if errors.Is(err, usecase.ErrDirectoryUnavailable) {
			c.JSON(http.StatusServiceUnavailable, NewErrorResponse(c, "directory service unavailable"))
			return
		}
		c.JSON(http.StatusInternalServerError, NewErrorResponse(c, "failed to establish session"))
		return
	}

	h.store.Bind(c).Store(token, rememberMe)
	c.JSON(http.StatusOK, newSessionResponse(*session))
}

func (h *AuthHandler) respondAuthError(c *gin.Context, err error) {
	RespondWithMappedError(c, err, []ErrorCase{
		{Err: repository.ErrNotFound, Status: http.StatusUnauthorized, Message: "invalid or expired authorization code"},
		{Err: usecase.ErrDirectoryUnavailable, Status: http.StatusServiceUnavailable, Message: "directory service unavailable"},
	}, http.StatusBadGateway, "authentication failed")
}
