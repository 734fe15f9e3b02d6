package api

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	sessionCookieName = "snowbotium_session"
	sessionHeaderName = "X-Session-ID"
	sessionContextKey = "session_id"
	sessionCookieAge  = 24 * 60 * 60
)

// sessionMiddleware attaches the caller's session, opening one when the
// request carries no usable session id.
func (h *Handler) sessionMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		sessionID := extractSessionID(c)
		if sessionID == "" {
			se := h.workers.StartSession()
			sessionID = se.ID
			setSessionCookie(c, sessionID)
		} else {
			h.workers.EnsureSession(sessionID)
		}
		c.Set(sessionContextKey, sessionID)
		c.Header(sessionHeaderName, sessionID)
		c.Next()
	}
}

// SessionIDFromContext retrieves the session id stored by the middleware.
func SessionIDFromContext(c *gin.Context) (string, bool) {
	val, ok := c.Get(sessionContextKey)
	if !ok {
		return "", false
	}
	id, ok := val.(string)
	return id, ok && id != ""
}

func extractSessionID(c *gin.Context) string {
	candidate := strings.TrimSpace(c.GetHeader(sessionHeaderName))
	if candidate == "" {
		if v, err := c.Cookie(sessionCookieName); err == nil {
			candidate = v
		}
	}
	if candidate == "" {
		return ""
	}
	parsed, err := uuid.Parse(candidate)
	if err != nil {
		return ""
	}
	return parsed.String()
}

func setSessionCookie(c *gin.Context, sessionID string) {
	http.SetCookie(c.Writer, &http.Cookie{
		Name:     sessionCookieName,
		Value:    sessionID,
		Path:     "/",
		MaxAge:   sessionCookieAge,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

func clearSessionCookie(c *gin.Context) {
	http.SetCookie(c.Writer, &http.Cookie{
		Name:     sessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}
