package http

import (
	"github.com/gin-gonic/gin"

	"github.com/akeditz/storefront/internal/session"
)

// Register attaches checkout routes to the given router group. Every route
// needs a signed-in session.
func (h *Handler) Register(rg *gin.RouterGroup) {
	rg.Use(session.RequireSession())

	rg.POST("", h.begin)
	rg.GET("", h.list)
	rg.GET("/history", h.listHistory)
	rg.GET("/:id", h.get)
	rg.DELETE("/:id", h.close)
	rg.POST("/:id/method", h.selectMethod)
	rg.POST("/:id/intent/retry", h.retryIntent)
	rg.POST("/:id/card/terms", h.acceptTerms)
	rg.POST("/:id/card/confirm", h.confirmCard)
	rg.POST("/:id/qr/refresh", h.refreshQR)
}
