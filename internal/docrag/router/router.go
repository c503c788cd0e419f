// Package router wires the docrag HTTP routes.
package router

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kart-io/logger"

	"github.com/kart-io/docrag/internal/docrag/handler"
	"github.com/kart-io/docrag/pkg/infra/middleware"
	"github.com/kart-io/docrag/pkg/utils/errors"
	"github.com/kart-io/docrag/pkg/utils/response"
)

const (
	healthPath  = "/healthz"
	metricsPath = "/metrics"
)

// New builds the gin engine serving h. requestTimeout bounds every API
// request; zero disables it.
func New(h *handler.DocHandler, requestTimeout time.Duration) *gin.Engine {
	logger.Info("Registering docrag routes...")

	r := gin.New()
	r.Use(
		middleware.RequestID(),
		middleware.Logger(healthPath, metricsPath),
		middleware.Recovery(),
		middleware.Timeout(requestTimeout, healthPath, metricsPath),
	)

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, &response.Response{
			Code:      errors.ErrInvalidRequest.Code,
			Message:   "no route for " + c.Request.Method + " " + c.Request.URL.Path,
			RequestID: c.GetString(response.RequestIDKey),
		})
	})

	r.GET(healthPath, h.Health)
	r.GET(metricsPath, h.Metrics)

	v1 := r.Group("/v1")
	{
		docs := v1.Group("/documents/:id")
		{
			docs.POST("/ingest", h.Ingest)
			docs.POST("/search", h.Search)
			docs.POST("/query", h.Query)
			docs.POST("/agentic-query", h.AgenticQuery)
		}

		v1.GET("/ids", h.ListIDs)
		v1.DELETE("/ids", h.DeleteAll)
	}

	logger.Info("HTTP routes registered")
	return r
}
