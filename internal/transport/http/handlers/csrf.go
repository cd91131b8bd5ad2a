package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/stackpilot/teamgate/internal/transport/http/cookie"
	"github.com/stackpilot/teamgate/internal/usecase"
)

// CSRFHandler issues anti-forgery tokens for the double-submit protocol.
type CSRFHandler struct {
	csrf  *usecase.CSRFService
	store *cookie.Store
}

// NewCSRFHandler constructs CSRFHandler.
func NewCSRFHandler(csrf *usecase.CSRFService, store *cookie.Store) *CSRFHandler {
	return &CSRFHandler{csrf: csrf, store: store}
}

// Issue godoc
// @Summary Issue an anti-forgery token
// @Description Mints a CSRF token bound to the current session's subject. The frontend sends it back in the X-CSRF-Token header on mutating requests.
// @Tags CSRF
// @Produce json
// @Success 200 {object} CSRFTokenResponse
// @Failure 401 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /api/v1/csrf [get]
func (h *CSRFHandler) Issue(c *gin.Context) {
	token, err := h.csrf.Issue(c.Request.Context(), h.store.Bind(c))
	if err != nil {
		if errors.Is(err, usecase.ErrNoSession) {
			c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "authentication required"))
			return
		}
		c.JSON(http.StatusInternalServerError, NewErrorResponse(c, "failed to issue csrf token"))
		return
	}

	c.JSON(http.StatusOK, CSRFTokenResponse{
		Token:     token,
		ExpiresIn: int(h.csrf.TTL() / time.Second),
	})
}
