package usage

import (
	"sort"
	"strings"
	"time"
)

// timeBounds converts day-precision params into a half-open [from, to)
// interval. Zero values mean the side is unbounded.
func timeBounds(params UsageQueryParams) (from, to time.Time) {
	if !params.StartDate.IsZero() {
		from = truncateDay(params.StartDate)
	}
	if !params.EndDate.IsZero() {
		to = truncateDay(params.EndDate).AddDate(0, 0, 1)
	}
	return from, to
}

func truncateDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// buildWhereClause joins condition strings into a SQL WHERE clause.
// Returns an empty string when conditions is empty.
func buildWhereClause(conditions []string) string {
	if len(conditions) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(conditions, " AND ")
}

// sortFeatureUsage orders by requests descending, then feature ascending.
func sortFeatureUsage(items []FeatureUsage) {
	sort.Slice(items, func(i, j int) bool {
		if items[i].Requests != items[j].Requests {
			return items[i].Requests > items[j].Requests
		}
		return items[i].Feature < items[j].Feature
	})
}
