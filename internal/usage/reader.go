package usage

import (
	"context"
	"time"
)

// UsageQueryParams selects the day range to aggregate. Both bounds are
// inclusive at day precision; a zero bound is open.
type UsageQueryParams struct {
	StartDate time.Time
	EndDate   time.Time
}

// UsageSummary holds aggregate request counts for a period.
type UsageSummary struct {
	TotalRequests      int64 `json:"total_requests"`
	SuccessfulRequests int64 `json:"successful_requests"`
	FailedRequests     int64 `json:"failed_requests"`
}

// FeatureUsage is the request count for one feature.
type FeatureUsage struct {
	Feature  string `json:"feature"`
	Requests int64  `json:"requests"`
}

// UsageReader provides read access to usage data for the admin API.
type UsageReader interface {
	// GetSummary returns aggregate counts for the range.
	GetSummary(ctx context.Context, params UsageQueryParams) (*UsageSummary, error)

	// GetFeatureUsage returns per-feature request counts sorted by count
	// descending, then by feature name.
	GetFeatureUsage(ctx context.Context, params UsageQueryParams) ([]FeatureUsage, error)
}
