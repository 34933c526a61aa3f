package http

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/akeditz/storefront/internal/apiclient"
	"github.com/akeditz/storefront/internal/domain"
	"github.com/akeditz/storefront/internal/logger"
	"github.com/akeditz/storefront/internal/session"
)

func (h *Handler) listProjects(c *gin.Context) {
	featured, _ := strconv.ParseBool(c.Query("featured"))
	filter := domain.ProjectFilter{
		Category: strings.TrimSpace(c.Query("category")),
		Search:   strings.TrimSpace(c.Query("search")),
		Featured: featured,
	}

	sess := session.FromContext(c)
	projects, err := sess.Client(h.api).ListProjects(c.Request.Context(), filter)
	if err != nil {
		writeError(c, err)
		return
	}

	owned := h.purchased(c, sess)
	for i := range projects {
		if !owned[projects[i].ID] {
			projects[i] = projects[i].Gated()
		}
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "projects": projects})
}

func (h *Handler) getProject(c *gin.Context) {
	sess := session.FromContext(c)
	p, err := sess.Client(h.api).GetProject(c.Request.Context(), c.Param("id"))
	if errors.Is(err, domain.ErrProjectNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"ok": false, "error": "project not found"})
		return
	}
	if err != nil {
		writeError(c, err)
		return
	}

	owned := h.purchased(c, sess)[p.ID]
	if !owned {
		gated := p.Gated()
		p = &gated
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "project": p, "purchased": owned})
}

func (h *Handler) listBlogs(c *gin.Context) {
	blogs, err := h.api.ListBlogs(c.Request.Context(), strings.TrimSpace(c.Query("category")))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "blogs": blogs})
}

func (h *Handler) getBlog(c *gin.Context) {
	b, err := h.api.GetBlog(c.Request.Context(), c.Param("id"))
	if err != nil {
		if apiclient.StatusOf(err) == http.StatusNotFound {
			c.JSON(http.StatusNotFound, gin.H{"ok": false, "error": "blog not found"})
			return
		}
		writeError(c, err)
		return
	}
	if !b.IsPublished {
		c.JSON(http.StatusNotFound, gin.H{"ok": false, "error": "blog not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "blog": b})
}

func (h *Handler) subscribe(c *gin.Context) {
	var req subscribeReq
	if err := c.ShouldBindJSON(&req); err != nil || !strings.Contains(req.Email, "@") {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "a valid email is required"})
		return
	}

	if err := h.api.Subscribe(c.Request.Context(), strings.TrimSpace(req.Email), req.Source); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "message": "Successfully subscribed to newsletter!"})
}

func (h *Handler) myProjects(c *gin.Context) {
	sess := session.FromContext(c)
	projects, err := sess.Client(h.api).MyProjects(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "projects": projects})
}

func (h *Handler) myPayments(c *gin.Context) {
	sess := session.FromContext(c)
	payments, err := sess.Client(h.api).UserPayments(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "payments": payments})
}

// purchased returns the ids of projects the session user bought. Anonymous
// sessions and lookup failures own nothing.
func (h *Handler) purchased(c *gin.Context, sess *session.Session) map[string]bool {
	owned := map[string]bool{}
	if sess == nil || !sess.Authenticated() {
		return owned
	}
	projects, err := sess.Client(h.api).MyProjects(c.Request.Context())
	if err != nil {
		logger.New(c.Request.Context()).LogWarnf("storefront.purchased", "purchased projects unavailable: %v", err)
		return owned
	}
	for _, p := range projects {
		owned[p.ID] = true
	}
	return owned
}
