package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/stackpilot/teamgate/internal/core/domain"
	"github.com/stackpilot/teamgate/internal/transport/http/cookie"
	"github.com/stackpilot/teamgate/internal/usecase"
)

// RequireSession validates the session cookie, enforces the inactivity
// ceiling and attaches the decoded session to the Gin context. Requests
// without a live session receive 401; an idle-expired cookie is cleared in
// the same response.
func RequireSession(sessions *usecase.SessionService, store *cookie.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		carrier := store.Bind(c)

		if !sessions.IsValid(c.Request.Context(), carrier) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":    "authentication required",
				"trace_id": GetTraceID(c),
			})
			return
		}

		session, ok := sessions.Fetch(c.Request.Context(), carrier)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":    "authentication required",
				"trace_id": GetTraceID(c),
			})
			return
		}

		if reqCtx := GetRequestContext(c); reqCtx != nil {
			reqCtx.SubjectID = session.Subject.ID
		}
		c.Set(SessionKey, session)
		c.Set(SubjectKey, session.Subject)

		c.Next()
	}
}

// SessionFromContext returns the session attached by RequireSession.
func SessionFromContext(c *gin.Context) (*domain.Session, bool) {
	value, exists := c.Get(SessionKey)
	if !exists {
		return nil, false
	}
	session, ok := value.(*domain.Session)
	return session, ok
}

// TouchActivity re-signs the session with a fresh activity timestamp. It runs
// before the handler so the Set-Cookie header lands ahead of the response
// body; handlers that re-issue the token afterwards simply supersede it.
func TouchActivity(sessions *usecase.SessionService, store *cookie.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		sessions.TouchActivity(c.Request.Context(), store.Bind(c))
		c.Next()
	}
}
