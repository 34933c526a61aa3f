package http

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/akeditz/storefront/internal/apiclient"
	"github.com/akeditz/storefront/internal/logger"
	"github.com/akeditz/storefront/internal/session"
)

const cookieMaxAge = int(session.DefaultTTL / time.Second)

func (h *Handler) login(c *gin.Context) {
	var req loginReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "invalid body"})
		return
	}

	sess := session.FromContext(c)
	user, err := sess.Login(c.Request.Context(), h.api, req.Email, req.Password)
	if err != nil {
		writeError(c, err)
		return
	}

	h.setCookie(c, sess.ID(), cookieMaxAge)
	c.JSON(http.StatusOK, gin.H{"ok": true, "user": user, "session_id": sess.ID()})
}

func (h *Handler) register(c *gin.Context) {
	var req registerReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "invalid body"})
		return
	}

	sess := session.FromContext(c)
	user, err := sess.Register(c.Request.Context(), h.api, req.Name, req.Email, req.Password)
	if err != nil {
		writeError(c, err)
		return
	}

	h.setCookie(c, sess.ID(), cookieMaxAge)
	c.JSON(http.StatusCreated, gin.H{"ok": true, "user": user, "session_id": sess.ID()})
}

// logout always succeeds; a backend failure only gets logged.
func (h *Handler) logout(c *gin.Context) {
	sess := session.FromContext(c)
	sess.Logout(c.Request.Context(), sess.Client(h.api))
	h.setCookie(c, "", -1)
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (h *Handler) me(c *gin.Context) {
	sess := session.FromContext(c)
	user, err := sess.Refresh(c.Request.Context(), sess.Client(h.api))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "user": user})
}

func (h *Handler) setCookie(c *gin.Context, value string, maxAge int) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(session.CookieName, value, maxAge, "/", "", h.secureCookie, true)
}

// writeError maps session and backend errors to HTTP responses.
func writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, session.ErrMissingCredentials):
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": err.Error()})
	case errors.Is(err, session.ErrNotFound), apiclient.IsUnauthorized(err):
		c.JSON(http.StatusUnauthorized, gin.H{"ok": false, "error": apiclient.UserMessage(err), "code": "unauthorized"})
	case apiclient.IsClient(err):
		status := apiclient.StatusOf(err)
		if status < 400 {
			status = http.StatusBadRequest
		}
		c.JSON(status, gin.H{"ok": false, "error": apiclient.UserMessage(err)})
	default:
		logger.New(c.Request.Context()).LogError(c.FullPath(), err)
		c.JSON(http.StatusBadGateway, gin.H{"ok": false, "error": apiclient.UserMessage(err)})
	}
}
