package admin

import (
	"net/http"
	"runtime"
	"time"

	"github.com/labstack/echo/v4"

	"healthproxy/internal/version"
)

// Overview handles GET /admin/api/v1/overview.
func (h *Handler) Overview(c echo.Context) error {
	uptime := time.Since(h.startTime).Round(time.Second)

	resp := OverviewResponse{
		Version:      version.Version,
		GoVersion:    runtime.Version(),
		Uptime:       uptime.String(),
		UsageEnabled: h.usageReader != nil,
	}
	if resp.UsageEnabled {
		resp.StorageType = h.storageType
	}
	return c.JSON(http.StatusOK, resp)
}
