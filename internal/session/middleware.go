package session

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	CookieName = "sid"
	HeaderName = "X-Session-Id"

	ctxSession = "session"
)

// Middleware attaches the caller's Session to the gin context. Requests
// without a session id get a fresh anonymous session that is only persisted
// once the caller signs in.
func Middleware(store Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := strings.TrimSpace(c.GetHeader(HeaderName))
		if id == "" {
			if cookie, err := c.Cookie(CookieName); err == nil {
				id = strings.TrimSpace(cookie)
			}
		}

		if id == "" {
			c.Set(ctxSession, New(uuid.NewString(), store))
			c.Next()
			return
		}

		sess, err := Open(c.Request.Context(), id, store)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"ok": false, "error": "load session: " + err.Error()})
			c.Abort()
			return
		}

		c.Set(ctxSession, sess)
		c.Next()
	}
}

// FromContext returns the session set by Middleware.
func FromContext(c *gin.Context) *Session {
	if v, ok := c.Get(ctxSession); ok {
		if sess, ok := v.(*Session); ok {
			return sess
		}
	}
	return nil
}

// RequireSession rejects requests that are not signed in.
func RequireSession() gin.HandlerFunc {
	return func(c *gin.Context) {
		sess := FromContext(c)
		if sess == nil || !sess.Authenticated() {
			c.JSON(http.StatusUnauthorized, gin.H{"ok": false, "error": "login required", "code": "unauthorized"})
			c.Abort()
			return
		}
		c.Next()
	}
}
