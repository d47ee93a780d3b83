package api

import (
	"log/slog"

	"github.com/gin-gonic/gin"
)

// NewRouter returns a gin engine with recovery, request ids, request
// logging and every route registered.
func NewRouter(h *Handlers, log *slog.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestID(), requestLogger(log))
	RegisterRoutes(r, h)
	return r
}

func RegisterRoutes(r *gin.Engine, h *Handlers) {
	r.GET("/health", h.health)
	r.GET("/metadata", h.metadata)
	r.GET("/image-proxy", h.imageProxy)
	r.OPTIONS("/image-proxy", h.imageProxyOptions)
	r.GET("/resolve", h.resolve)
	r.POST("/render", h.render)
	r.GET("/themes", h.themes)
	r.GET("/variants", h.variants)
	r.GET("/qr", h.qr)
}
