package admin

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"healthproxy/internal/core"
	"healthproxy/internal/usage"
)

const (
	dateLayout  = "2006-01-02"
	defaultDays = 30
	// maxDays bounds the span of a usage query, both ends included.
	maxDays = 366
)

// parseUsageParams extracts UsageQueryParams from the request query string.
// Returns an error if date parameters are malformed or span more than maxDays.
func parseUsageParams(c echo.Context) (usage.UsageQueryParams, error) {
	var params usage.UsageQueryParams

	now := time.Now().UTC()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	startStr := c.QueryParam("start_date")
	endStr := c.QueryParam("end_date")

	var startParsed, endParsed bool

	if startStr != "" {
		t, err := time.Parse(dateLayout, startStr)
		if err != nil {
			return params, core.NewBadRequestError("invalid start_date format, expected YYYY-MM-DD", err)
		}
		params.StartDate = t
		startParsed = true
	}

	if endStr != "" {
		t, err := time.Parse(dateLayout, endStr)
		if err != nil {
			return params, core.NewBadRequestError("invalid end_date format, expected YYYY-MM-DD", err)
		}
		params.EndDate = t
		endParsed = true
	}

	if startParsed || endParsed {
		// Fill in missing side
		if !startParsed {
			params.StartDate = params.EndDate.AddDate(0, 0, -(defaultDays - 1))
		}
		if !endParsed {
			params.EndDate = today
		}
		if params.EndDate.Before(params.StartDate) {
			return params, core.NewBadRequestError("end_date must not be before start_date", nil)
		}
		if params.EndDate.After(params.StartDate.AddDate(0, 0, maxDays-1)) {
			return params, core.NewBadRequestError(fmt.Sprintf("date range must not exceed %d days", maxDays), nil)
		}
		return params, nil
	}

	// Fall back to days param
	days := defaultDays
	if d := c.QueryParam("days"); d != "" {
		if parsed, err := strconv.Atoi(d); err == nil && parsed > 0 {
			if parsed > maxDays {
				return params, core.NewBadRequestError(fmt.Sprintf("days must not exceed %d", maxDays), nil)
			}
			days = parsed
		}
	}
	params.EndDate = today
	params.StartDate = today.AddDate(0, 0, -(days - 1))
	return params, nil
}

// handleError renders err with the envelope used by the proxy endpoints.
// Storage errors are logged and hidden behind a generic message.
func handleError(c echo.Context, err error) error {
	proxyErr := core.AsProxyError(err)
	if proxyErr.Kind == core.KindUnexpectedFailure {
		slog.ErrorContext(c.Request().Context(), "usage query failed", "error", err)
		return c.JSON(http.StatusInternalServerError, core.ErrorResponse{Error: "failed to read usage data"})
	}
	return c.JSON(proxyErr.HTTPStatusCode(), proxyErr.ToJSON())
}

// UsageSummary handles GET /admin/api/v1/usage/summary
func (h *Handler) UsageSummary(c echo.Context) error {
	if h.usageReader == nil {
		return c.JSON(http.StatusOK, usage.UsageSummary{})
	}

	params, err := parseUsageParams(c)
	if err != nil {
		return handleError(c, err)
	}

	summary, err := h.usageReader.GetSummary(c.Request().Context(), params)
	if err != nil {
		return handleError(c, err)
	}
	if summary == nil {
		summary = &usage.UsageSummary{}
	}

	return c.JSON(http.StatusOK, summary)
}

// UsageByFeature handles GET /admin/api/v1/usage/features
func (h *Handler) UsageByFeature(c echo.Context) error {
	if h.usageReader == nil {
		return c.JSON(http.StatusOK, []usage.FeatureUsage{})
	}

	params, err := parseUsageParams(c)
	if err != nil {
		return handleError(c, err)
	}

	features, err := h.usageReader.GetFeatureUsage(c.Request().Context(), params)
	if err != nil {
		return handleError(c, err)
	}

	if features == nil {
		features = []usage.FeatureUsage{}
	}

	return c.JSON(http.StatusOK, features)
}
