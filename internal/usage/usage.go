// Package usage records which features are used and serves aggregate
// counts to the admin API.
package usage

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Feature names recorded in usage entries.
const (
	FeatureDental       = "dental"
	FeatureEyeTest      = "eye-test"
	FeaturePrescription = "prescription"
	FeatureChat         = "health-chat"
)

// UsageStore defines the interface for usage storage backends.
// Implementations must be safe for concurrent use.
type UsageStore interface {
	// WriteBatch writes multiple usage entries to storage.
	// This is called by the Logger when flushing buffered entries.
	WriteBatch(ctx context.Context, entries []*UsageEntry) error

	// Flush forces any pending writes to complete.
	// Called during graceful shutdown.
	Flush(ctx context.Context) error

	// Close releases resources and flushes pending writes.
	Close() error
}

// UsageEntry records one proxied request.
type UsageEntry struct {
	ID        string    `json:"id" bson:"_id"`
	RequestID string    `json:"request_id" bson:"request_id"`
	Timestamp time.Time `json:"timestamp" bson:"timestamp"`

	// Feature is one of the Feature* constants.
	Feature  string `json:"feature" bson:"feature"`
	Provider string `json:"provider" bson:"provider"`
	Model    string `json:"model" bson:"model"`

	// StatusCode is the status returned to the client.
	StatusCode int   `json:"status_code" bson:"status_code"`
	DurationMs int64 `json:"duration_ms" bson:"duration_ms"`
	Streamed   bool  `json:"streamed" bson:"streamed"`
}

// Succeeded reports whether the client received a non-error status.
func (e *UsageEntry) Succeeded() bool {
	return e.StatusCode > 0 && e.StatusCode < 400
}

// NewEntry creates an entry stamped with a fresh ID and the current time.
func NewEntry(requestID, feature, provider, model string, status int, elapsed time.Duration) *UsageEntry {
	return &UsageEntry{
		ID:         uuid.NewString(),
		RequestID:  requestID,
		Timestamp:  time.Now().UTC(),
		Feature:    feature,
		Provider:   provider,
		Model:      model,
		StatusCode: status,
		DurationMs: elapsed.Milliseconds(),
	}
}

// Config holds usage tracking configuration
type Config struct {
	// Enabled controls whether usage tracking is active
	Enabled bool

	// BufferSize is the number of usage entries to buffer before flushing
	BufferSize int

	// FlushInterval is how often to flush buffered entries
	FlushInterval time.Duration

	// RetentionDays is how long to keep usage data (0 = forever)
	RetentionDays int
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() Config {
	return Config{
		Enabled:       true,
		BufferSize:    1000,
		FlushInterval: 5 * time.Second,
		RetentionDays: 90,
	}
}
