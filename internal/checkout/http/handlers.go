package http

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/akeditz/storefront/internal/apiclient"
	"github.com/akeditz/storefront/internal/audit"
	"github.com/akeditz/storefront/internal/checkout"
	"github.com/akeditz/storefront/internal/logger"
	"github.com/akeditz/storefront/internal/payments/card"
	"github.com/akeditz/storefront/internal/payments/intent"
	"github.com/akeditz/storefront/internal/session"
)

func (h *Handler) begin(c *gin.Context) {
	var req beginReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "invalid body"})
		return
	}

	sess := session.FromContext(c)
	snap, err := h.svc.Begin(c.Request.Context(), sess.Client(h.api), userID(sess), strings.TrimSpace(req.ProjectID))
	if err != nil {
		writeError(c, err, nil)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"ok": true, "checkout": snap})
}

func (h *Handler) list(c *gin.Context) {
	items, err := h.svc.List(c.Request.Context(), userID(session.FromContext(c)))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"ok": false, "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "checkouts": items})
}

func (h *Handler) listHistory(c *gin.Context) {
	if h.history == nil {
		c.JSON(http.StatusOK, gin.H{"ok": true, "entries": []audit.Entry{}})
		return
	}

	limit, _ := strconv.Atoi(c.Query("limit"))
	entries, err := h.history.ListByUser(c.Request.Context(), userID(session.FromContext(c)), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"ok": false, "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "entries": entries})
}

func (h *Handler) get(c *gin.Context) {
	snap, err := h.svc.Get(c.Request.Context(), userID(session.FromContext(c)), c.Param("id"))
	if err != nil {
		writeError(c, err, nil)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "checkout": snap})
}

func (h *Handler) close(c *gin.Context) {
	snap, err := h.svc.Close(c.Request.Context(), userID(session.FromContext(c)), c.Param("id"))
	if err != nil {
		writeError(c, err, nil)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "checkout": snap})
}

func (h *Handler) selectMethod(c *gin.Context) {
	var req methodReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "invalid body"})
		return
	}
	m, err := checkout.ParseMethod(strings.ToLower(strings.TrimSpace(req.Method)))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "method must be card or qr"})
		return
	}

	snap, err := h.svc.SelectMethod(c.Request.Context(), userID(session.FromContext(c)), c.Param("id"), m)
	if err != nil {
		writeError(c, err, &snap)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "checkout": snap})
}

func (h *Handler) retryIntent(c *gin.Context) {
	snap, err := h.svc.RetryIntent(c.Request.Context(), userID(session.FromContext(c)), c.Param("id"))
	if err != nil {
		writeError(c, err, &snap)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "checkout": snap})
}

func (h *Handler) acceptTerms(c *gin.Context) {
	var req termsReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "invalid body"})
		return
	}

	snap, err := h.svc.AcceptTerms(c.Request.Context(), userID(session.FromContext(c)), c.Param("id"), req.Accepted)
	if err != nil {
		writeError(c, err, &snap)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "checkout": snap})
}

func (h *Handler) confirmCard(c *gin.Context) {
	var req confirmReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "invalid body"})
		return
	}
	if req.Error == nil && req.Status == "" && req.RedirectURL == "" {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "status or error is required"})
		return
	}

	snap, out, err := h.svc.SubmitCard(c.Request.Context(), userID(session.FromContext(c)), c.Param("id"), req.confirmer())
	if err != nil {
		writeError(c, err, &snap)
		return
	}

	resp := gin.H{"ok": out.State != card.StateFailed, "checkout": snap, "state": out.State}
	if out.RedirectURL != "" {
		resp["redirect_url"] = out.RedirectURL
	}
	if out.Message != "" {
		resp["error"] = out.Message
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) refreshQR(c *gin.Context) {
	snap, err := h.svc.RefreshQR(c.Request.Context(), userID(session.FromContext(c)), c.Param("id"))
	if err != nil {
		writeError(c, err, &snap)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "checkout": snap})
}

func userID(sess *session.Session) string {
	if sess == nil {
		return ""
	}
	if u := sess.User(); u != nil {
		return u.ID
	}
	return ""
}

// writeError maps checkout errors to HTTP responses. snap, when it carries
// an id, is returned alongside the error so the page can render it.
func writeError(c *gin.Context, err error, snap *checkout.Snapshot) {
	body := gin.H{"ok": false, "error": err.Error()}
	if snap != nil && snap.ID != "" {
		body["checkout"] = snap
	}

	if g, ok := checkout.AsGuardError(err); ok {
		body["error"] = g.Message
		body["title"] = g.Title
		body["reason"] = g.Reason
		c.JSON(http.StatusUnprocessableEntity, body)
		return
	}
	if f, ok := intent.AsFailure(err); ok {
		body["error"] = f.Message
		body["exhausted"] = f.Exhausted
		status := http.StatusBadGateway
		switch f.Class {
		case intent.ClassUnauthorized:
			status = http.StatusUnauthorized
		case intent.ClassValidation:
			status = http.StatusUnprocessableEntity
		}
		c.JSON(status, body)
		return
	}

	switch {
	case errors.Is(err, checkout.ErrNotFound):
		c.JSON(http.StatusNotFound, body)
	case errors.Is(err, checkout.ErrForbidden):
		c.JSON(http.StatusForbidden, body)
	case errors.Is(err, checkout.ErrInvalidMethod):
		c.JSON(http.StatusBadRequest, body)
	case errors.Is(err, checkout.ErrClosed),
		errors.Is(err, checkout.ErrCompleted),
		errors.Is(err, checkout.ErrMethodChanged),
		errors.Is(err, checkout.ErrNoCardFlow),
		errors.Is(err, checkout.ErrNoQRFlow),
		errors.Is(err, card.ErrTermsNotAccepted),
		errors.Is(err, card.ErrNoClientSecret),
		errors.Is(err, card.ErrInProgress),
		errors.Is(err, card.ErrCompleted):
		c.JSON(http.StatusConflict, body)
	case apiclient.IsUnauthorized(err):
		body["error"] = apiclient.UserMessage(err)
		c.JSON(http.StatusUnauthorized, body)
	default:
		logger.New(c.Request.Context()).LogError("checkout", err)
		body["error"] = apiclient.UserMessage(err)
		c.JSON(http.StatusBadGateway, body)
	}
}
