package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/hipper-gif/meal-delivery/internal/session"
)

const sessionStateKey = "session_state"

// Session resolves the session cookie into a *session.State and attaches it to
// both the gin context and the request context. A store failure degrades to
// an anonymous state.
func Session(manager *session.Manager, cookieName string, log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, _ := c.Cookie(cookieName)

		state, err := manager.Load(c.Request.Context(), id)
		if err != nil {
			log.Warn().
				Err(err).
				Str("request_id", c.Writer.Header().Get(requestIDHeader)).
				Msg("session load failed, continuing anonymous")
			state = &session.State{ID: id}
		}

		c.Set(sessionStateKey, state)
		c.Request = c.Request.WithContext(session.WithState(c.Request.Context(), state))
		c.Next()
	}
}

// CurrentSession returns the state attached by Session, or an empty anonymous
// state when the middleware did not run.
func CurrentSession(c *gin.Context) *session.State {
	if v, ok := c.Get(sessionStateKey); ok {
		if state, ok := v.(*session.State); ok {
			return state
		}
	}
	return &session.State{}
}

func RequireSession() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !CurrentSession(c).Authenticated() {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"success": false,
				"error":   "Please log in.",
			})
			return
		}
		c.Next()
	}
}
