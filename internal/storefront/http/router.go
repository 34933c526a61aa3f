package http

import (
	"github.com/gin-gonic/gin"

	"github.com/akeditz/storefront/internal/session"
)

// Register attaches storefront routes to the /api/v1 group.
func (h *Handler) Register(rg *gin.RouterGroup) {
	auth := rg.Group("/auth")
	auth.POST("/login", h.login)
	auth.POST("/register", h.register)
	auth.POST("/logout", h.logout)
	auth.GET("/me", session.RequireSession(), h.me)

	rg.GET("/projects", h.listProjects)
	rg.GET("/projects/:id", h.getProject)
	rg.GET("/blogs", h.listBlogs)
	rg.GET("/blogs/:id", h.getBlog)
	rg.POST("/newsletter/subscribe", h.subscribe)

	me := rg.Group("/me", session.RequireSession())
	me.GET("/projects", h.myProjects)
	me.GET("/payments", h.myPayments)
}
