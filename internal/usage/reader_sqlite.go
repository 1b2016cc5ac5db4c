package usage

import (
	"context"
	"database/sql"
	"fmt"
)

// SQLiteReader implements UsageReader for SQLite databases.
type SQLiteReader struct {
	db *sql.DB
}

// NewSQLiteReader creates a new SQLite usage reader.
func NewSQLiteReader(db *sql.DB) (*SQLiteReader, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}
	return &SQLiteReader{db: db}, nil
}

func sqliteRange(params UsageQueryParams) (string, []any) {
	from, to := timeBounds(params)
	var conditions []string
	var args []any
	if !from.IsZero() {
		conditions = append(conditions, "timestamp >= ?")
		args = append(args, from.Format(sqliteTimeLayout))
	}
	if !to.IsZero() {
		conditions = append(conditions, "timestamp < ?")
		args = append(args, to.Format(sqliteTimeLayout))
	}
	return buildWhereClause(conditions), args
}

func (r *SQLiteReader) GetSummary(ctx context.Context, params UsageQueryParams) (*UsageSummary, error) {
	where, args := sqliteRange(params)
	query := `SELECT COUNT(*), COALESCE(SUM(succeeded), 0) FROM feature_usage` + where

	summary := &UsageSummary{}
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&summary.TotalRequests, &summary.SuccessfulRequests); err != nil {
		return nil, fmt.Errorf("failed to query usage summary: %w", err)
	}
	summary.FailedRequests = summary.TotalRequests - summary.SuccessfulRequests
	return summary, nil
}

func (r *SQLiteReader) GetFeatureUsage(ctx context.Context, params UsageQueryParams) ([]FeatureUsage, error) {
	where, args := sqliteRange(params)
	query := `SELECT feature, COUNT(*) AS requests FROM feature_usage` + where +
		` GROUP BY feature ORDER BY requests DESC, feature ASC`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query feature usage: %w", err)
	}
	defer rows.Close()

	result := make([]FeatureUsage, 0)
	for rows.Next() {
		var f FeatureUsage
		if err := rows.Scan(&f.Feature, &f.Requests); err != nil {
			return nil, fmt.Errorf("failed to scan feature usage row: %w", err)
		}
		result = append(result, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating feature usage rows: %w", err)
	}
	return result, nil
}
