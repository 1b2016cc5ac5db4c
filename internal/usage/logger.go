package usage

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Recorder accepts usage entries. Write must never block the caller.
type Recorder interface {
	Write(entry *UsageEntry)
	Close() error
}

// Logger buffers entries in a channel and writes them to a UsageStore in
// batches, either when BatchFlushThreshold is reached or on every tick.
type Logger struct {
	store  UsageStore
	config Config
	buffer chan *UsageEntry
	done   chan struct{}
	loop   sync.WaitGroup

	// mu guards closed. Write holds the read lock while sending so Close
	// cannot stop the flush loop under an in-progress send.
	mu      sync.RWMutex
	closed  bool
	dropped atomic.Int64
}

// NewLogger starts the background flush loop for store.
func NewLogger(store UsageStore, cfg Config) *Logger {
	defaults := DefaultConfig()
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = defaults.BufferSize
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = defaults.FlushInterval
	}

	l := &Logger{
		store:  store,
		config: cfg,
		buffer: make(chan *UsageEntry, cfg.BufferSize),
		done:   make(chan struct{}),
	}

	l.loop.Add(1)
	go l.run()

	return l
}

// Write queues entry. When the buffer is full or the logger is closed the
// entry is dropped.
func (l *Logger) Write(entry *UsageEntry) {
	if entry == nil {
		return
	}

	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.closed {
		return
	}

	select {
	case l.buffer <- entry:
	default:
		l.dropped.Add(1)
		slog.Warn("usage buffer full, dropping entry",
			"request_id", entry.RequestID,
			"feature", entry.Feature,
		)
	}
}

// Dropped returns how many entries were discarded because the buffer was full.
func (l *Logger) Dropped() int64 {
	return l.dropped.Load()
}

// Config returns the logger configuration
func (l *Logger) Config() Config {
	return l.config
}

// Close drains the buffer, flushes the store and closes it. Safe to call
// more than once.
func (l *Logger) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	l.mu.Unlock()

	close(l.done)
	l.loop.Wait()

	return l.store.Close()
}

func (l *Logger) run() {
	defer l.loop.Done()

	ticker := time.NewTicker(l.config.FlushInterval)
	defer ticker.Stop()

	batch := make([]*UsageEntry, 0, BatchFlushThreshold)
	flush := func() {
		if len(batch) == 0 {
			return
		}
		l.writeBatch(batch)
		batch = make([]*UsageEntry, 0, BatchFlushThreshold)
	}

	for {
		select {
		case entry := <-l.buffer:
			batch = append(batch, entry)
			if len(batch) >= BatchFlushThreshold {
				flush()
			}

		case <-ticker.C:
			flush()

		case <-l.done:
			close(l.buffer)
			for entry := range l.buffer {
				batch = append(batch, entry)
			}
			flush()

			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			if err := l.store.Flush(ctx); err != nil {
				slog.Error("failed to flush usage store", "error", err)
			}
			cancel()
			return
		}
	}
}

func (l *Logger) writeBatch(batch []*UsageEntry) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := l.store.WriteBatch(ctx, batch); err != nil {
		slog.Error("failed to write usage batch",
			"error", err,
			"count", len(batch),
		)
	}
}

// NoopLogger discards every entry. Used when usage tracking is disabled.
type NoopLogger struct{}

// Write does nothing
func (NoopLogger) Write(_ *UsageEntry) {}

// Close does nothing
func (NoopLogger) Close() error {
	return nil
}
