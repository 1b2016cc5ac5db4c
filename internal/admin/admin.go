// Package admin provides the read-only usage API.
package admin

import (
	"time"

	"github.com/labstack/echo/v4"

	"healthproxy/internal/usage"
)

// Handler serves admin API endpoints.
type Handler struct {
	usageReader usage.UsageReader
	storageType string
	startTime   time.Time
}

// NewHandler creates a new admin API handler.
// reader may be nil if usage tracking is not available.
func NewHandler(reader usage.UsageReader, storageType string) *Handler {
	return &Handler{
		usageReader: reader,
		storageType: storageType,
		startTime:   time.Now(),
	}
}

// Register mounts the routes on g, which is expected at /admin/api/v1.
func (h *Handler) Register(g *echo.Group) {
	g.GET("/overview", h.Overview)
	g.GET("/usage/summary", h.UsageSummary)
	g.GET("/usage/features", h.UsageByFeature)
}
