package usage

import (
	"context"
	"fmt"
	"strconv"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgreSQLReader implements UsageReader for PostgreSQL databases.
type PostgreSQLReader struct {
	pool *pgxpool.Pool
}

// NewPostgreSQLReader creates a new PostgreSQL usage reader.
func NewPostgreSQLReader(pool *pgxpool.Pool) (*PostgreSQLReader, error) {
	if pool == nil {
		return nil, fmt.Errorf("connection pool is required")
	}
	return &PostgreSQLReader{pool: pool}, nil
}

func pgRange(params UsageQueryParams) (string, []any) {
	from, to := timeBounds(params)
	var conditions []string
	var args []any
	if !from.IsZero() {
		args = append(args, from)
		conditions = append(conditions, "timestamp >= $"+strconv.Itoa(len(args)))
	}
	if !to.IsZero() {
		args = append(args, to)
		conditions = append(conditions, "timestamp < $"+strconv.Itoa(len(args)))
	}
	return buildWhereClause(conditions), args
}

func (r *PostgreSQLReader) GetSummary(ctx context.Context, params UsageQueryParams) (*UsageSummary, error) {
	where, args := pgRange(params)
	query := `SELECT COUNT(*), COUNT(*) FILTER (WHERE succeeded) FROM feature_usage` + where

	summary := &UsageSummary{}
	if err := r.pool.QueryRow(ctx, query, args...).Scan(&summary.TotalRequests, &summary.SuccessfulRequests); err != nil {
		return nil, fmt.Errorf("failed to query usage summary: %w", err)
	}
	summary.FailedRequests = summary.TotalRequests - summary.SuccessfulRequests
	return summary, nil
}

func (r *PostgreSQLReader) GetFeatureUsage(ctx context.Context, params UsageQueryParams) ([]FeatureUsage, error) {
	where, args := pgRange(params)
	query := `SELECT feature, COUNT(*) AS requests FROM feature_usage` + where +
		` GROUP BY feature ORDER BY requests DESC, feature ASC`

	rows, err := r.pool.Query(ctx, query, args...)
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
