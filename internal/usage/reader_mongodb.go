package usage

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
)

// MongoDBReader implements UsageReader for MongoDB.
type MongoDBReader struct {
	collection *mongo.Collection
}

// NewMongoDBReader creates a new MongoDB usage reader.
func NewMongoDBReader(database *mongo.Database) (*MongoDBReader, error) {
	if database == nil {
		return nil, fmt.Errorf("database is required")
	}
	return &MongoDBReader{collection: database.Collection(mongoCollection)}, nil
}

// matchStage returns a $match stage for the range, or nil when unbounded.
func matchStage(params UsageQueryParams) bson.D {
	from, to := timeBounds(params)
	bounds := bson.D{}
	if !from.IsZero() {
		bounds = append(bounds, bson.E{Key: "$gte", Value: from})
	}
	if !to.IsZero() {
		bounds = append(bounds, bson.E{Key: "$lt", Value: to})
	}
	if len(bounds) == 0 {
		return nil
	}
	return bson.D{{Key: "$match", Value: bson.D{{Key: "timestamp", Value: bounds}}}}
}

func (r *MongoDBReader) GetSummary(ctx context.Context, params UsageQueryParams) (*UsageSummary, error) {
	pipeline := bson.A{}
	if m := matchStage(params); m != nil {
		pipeline = append(pipeline, m)
	}

	successful := bson.D{{Key: "$cond", Value: bson.A{
		bson.D{{Key: "$and", Value: bson.A{
			bson.D{{Key: "$gt", Value: bson.A{"$status_code", 0}}},
			bson.D{{Key: "$lt", Value: bson.A{"$status_code", 400}}},
		}}},
		1,
		0,
	}}}
	pipeline = append(pipeline, bson.D{{Key: "$group", Value: bson.D{
		{Key: "_id", Value: nil},
		{Key: "total", Value: bson.D{{Key: "$sum", Value: 1}}},
		{Key: "successful", Value: bson.D{{Key: "$sum", Value: successful}}},
	}}})

	cursor, err := r.collection.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate usage summary: %w", err)
	}
	defer cursor.Close(ctx)

	summary := &UsageSummary{}
	if cursor.Next(ctx) {
		var row struct {
			Total      int64 `bson:"total"`
			Successful int64 `bson:"successful"`
		}
		if err := cursor.Decode(&row); err != nil {
			return nil, fmt.Errorf("failed to decode usage summary: %w", err)
		}
		summary.TotalRequests = row.Total
		summary.SuccessfulRequests = row.Successful
		summary.FailedRequests = row.Total - row.Successful
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("error iterating usage summary cursor: %w", err)
	}
	return summary, nil
}

func (r *MongoDBReader) GetFeatureUsage(ctx context.Context, params UsageQueryParams) ([]FeatureUsage, error) {
	pipeline := bson.A{}
	if m := matchStage(params); m != nil {
		pipeline = append(pipeline, m)
	}
	pipeline = append(pipeline,
		bson.D{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: "$feature"},
			{Key: "requests", Value: bson.D{{Key: "$sum", Value: 1}}},
		}}},
		bson.D{{Key: "$sort", Value: bson.D{
			{Key: "requests", Value: -1},
			{Key: "_id", Value: 1},
		}}},
	)

	cursor, err := r.collection.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate feature usage: %w", err)
	}
	defer cursor.Close(ctx)

	result := make([]FeatureUsage, 0)
	for cursor.Next(ctx) {
		var row struct {
			Feature  string `bson:"_id"`
			Requests int64  `bson:"requests"`
		}
		if err := cursor.Decode(&row); err != nil {
			return nil, fmt.Errorf("failed to decode feature usage row: %w", err)
		}
		result = append(result, FeatureUsage{Feature: row.Feature, Requests: row.Requests})
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("error iterating feature usage cursor: %w", err)
	}
	return result, nil
}
