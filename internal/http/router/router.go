package router

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/nhle/orgpulse/internal/http/handler"
)

// Handlers groups the API handlers. A nil handler leaves its routes
// unregistered.
type Handlers struct {
	Transform *handler.TransformHandler
	Metrics   *handler.MetricsHandler
	Ingest    *handler.IngestHandler

	// Prometheus serves /metrics.
	Prometheus http.Handler
}

func SetupRoutes(router *gin.Engine, h Handlers) {
	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if h.Prometheus != nil {
		router.GET("/metrics", gin.WrapH(h.Prometheus))
	}

	api := router.Group("/api")
	if h.Transform != nil {
		api.POST("/transform", h.Transform.RunAll)
		api.POST("/transform/:source", h.Transform.Run)
		api.GET("/transform/status", h.Transform.Status)
	}
	if h.Metrics != nil {
		m := api.Group("/metrics")
		m.GET("/space", h.Metrics.Space)
		m.GET("/flow", h.Metrics.Flow)
		m.GET("/dora", h.Metrics.Dora)
	}
	if h.Ingest != nil {
		api.POST("/raw/:source", h.Ingest.Raw)
		api.POST("/webhooks/github", h.Ingest.GitHub)
		api.POST("/webhooks/slack", h.Ingest.Slack)
	}
}
