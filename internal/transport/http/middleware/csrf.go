package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/stackpilot/teamgate/internal/transport/http/cookie"
	"github.com/stackpilot/teamgate/internal/usecase"
)

// CSRFTokenHeader carries the anti-forgery token on mutating requests.
const CSRFTokenHeader = "X-CSRF-Token"

var mutatingMethods = map[string]struct{}{
	http.MethodPost:   {},
	http.MethodPut:    {},
	http.MethodPatch:  {},
	http.MethodDelete: {},
}

// CSRFGuard rejects mutating requests without a valid anti-forgery token.
// Safe methods pass through untouched; the session cookie alone never
// authorizes a state change.
func CSRFGuard(csrf *usecase.CSRFService, store *cookie.Store, logger *zap.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}

	return func(c *gin.Context) {
		if _, mutating := mutatingMethods[c.Request.Method]; !mutating {
			c.Next()
			return
		}

		token := strings.TrimSpace(c.GetHeader(CSRFTokenHeader))
		if token == "" {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error":    "csrf token required",
				"trace_id": GetTraceID(c),
			})
			return
		}

		if !csrf.Verify(c.Request.Context(), store.Bind(c), token) {
			logger.Warn("csrf verification failed",
				zap.String("method", c.Request.Method),
				zap.String("path", c.Request.URL.Path),
			)
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error":    "invalid csrf token",
				"trace_id": GetTraceID(c),
			})
			return
		}

		c.Next()
	}
}
