package usage

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockStore implements UsageStore for testing
type mockStore struct {
	mu       sync.Mutex
	entries  []*UsageEntry
	batches  int
	flushed  bool
	closed   bool
	writeErr error
}

func (m *mockStore) WriteBatch(_ context.Context, entries []*UsageEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.batches++
	if m.writeErr != nil {
		return m.writeErr
	}
	m.entries = append(m.entries, entries...)
	return nil
}

func (m *mockStore) Flush(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.flushed = true
	return nil
}

func (m *mockStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func (m *mockStore) getEntries() []*UsageEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make([]*UsageEntry, len(m.entries))
	copy(result, m.entries)
	return result
}

func testEntry(i int) *UsageEntry {
	return NewEntry(fmt.Sprintf("req-%d", i), FeatureDental, "openai", "gpt-4o", 200, 120*time.Millisecond)
}

func TestLogger_FlushesOnInterval(t *testing.T) {
	store := &mockStore{}
	logger := NewLogger(store, Config{
		Enabled:       true,
		BufferSize:    100,
		FlushInterval: 50 * time.Millisecond,
	})
	defer func() { _ = logger.Close() }()

	for i := 0; i < 5; i++ {
		logger.Write(testEntry(i))
	}

	require.Eventually(t, func() bool {
		return len(store.getEntries()) == 5
	}, 2*time.Second, 10*time.Millisecond)
}

func TestLogger_FlushesAtThreshold(t *testing.T) {
	store := &mockStore{}
	logger := NewLogger(store, Config{
		Enabled:       true,
		BufferSize:    BatchFlushThreshold * 2,
		FlushInterval: time.Hour,
	})
	defer func() { _ = logger.Close() }()

	for i := 0; i < BatchFlushThreshold; i++ {
		logger.Write(testEntry(i))
	}

	require.Eventually(t, func() bool {
		return len(store.getEntries()) == BatchFlushThreshold
	}, 2*time.Second, 10*time.Millisecond)
}

func TestLogger_CloseDrainsAndClosesStore(t *testing.T) {
	store := &mockStore{}
	logger := NewLogger(store, Config{
		Enabled:       true,
		BufferSize:    1000,
		FlushInterval: time.Hour,
	})

	for i := 0; i < 10; i++ {
		logger.Write(testEntry(i))
	}

	require.NoError(t, logger.Close())
	assert.Len(t, store.getEntries(), 10)
	assert.True(t, store.flushed)
	assert.True(t, store.closed)

	// Idempotent, and writes after close are ignored.
	require.NoError(t, logger.Close())
	logger.Write(testEntry(99))
	assert.Len(t, store.getEntries(), 10)
}

func TestLogger_ConcurrentWritesDuringClose(t *testing.T) {
	store := &mockStore{}
	logger := NewLogger(store, Config{
		Enabled:       true,
		BufferSize:    1000,
		FlushInterval: time.Hour,
	})

	const writers, perWriter = 8, 100
	var wg sync.WaitGroup
	start := make(chan struct{})
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			<-start
			for i := 0; i < perWriter; i++ {
				logger.Write(testEntry(w*perWriter + i))
			}
		}(w)
	}

	close(start)
	require.NoError(t, logger.Close())
	wg.Wait()

	stored := len(store.getEntries())
	assert.LessOrEqual(t, stored, writers*perWriter)
	assert.Zero(t, logger.Dropped())
	assert.True(t, store.closed)

	logger.Write(testEntry(-1))
	assert.Len(t, store.getEntries(), stored)
}

func TestLogger_BufferFullDropsWithoutBlocking(t *testing.T) {
	store := &mockStore{}
	logger := NewLogger(store, Config{
		Enabled:       true,
		BufferSize:    2,
		FlushInterval: time.Hour,
	})

	done := make(chan struct{})
	go func() {
		for i := 0; i < 500; i++ {
			logger.Write(testEntry(i))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Write blocked on a full buffer")
	}

	require.NoError(t, logger.Close())
	assert.Equal(t, int64(500), int64(len(store.getEntries()))+logger.Dropped())
}

func TestLogger_StoreErrorDoesNotStopLoop(t *testing.T) {
	store := &mockStore{writeErr: errors.New("disk full")}
	logger := NewLogger(store, Config{
		Enabled:       true,
		BufferSize:    10,
		FlushInterval: 20 * time.Millisecond,
	})

	logger.Write(testEntry(1))
	require.Eventually(t, func() bool {
		store.mu.Lock()
		defer store.mu.Unlock()
		return store.batches >= 1
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, logger.Close())
}

func TestLogger_NilEntryIgnored(t *testing.T) {
	store := &mockStore{}
	logger := NewLogger(store, Config{})
	logger.Write(nil)
	require.NoError(t, logger.Close())
	assert.Empty(t, store.getEntries())
	assert.Equal(t, DefaultConfig().BufferSize, logger.Config().BufferSize)
}

func TestNoopLogger(t *testing.T) {
	var logger Recorder = NoopLogger{}
	logger.Write(testEntry(1))
	assert.NoError(t, logger.Close())
}

func TestNewEntry(t *testing.T) {
	e := NewEntry("req-1", FeatureChat, "gateway", "google/gemini-2.5-flash", 429, 1500*time.Millisecond)

	assert.Len(t, e.ID, 36)
	assert.Equal(t, "req-1", e.RequestID)
	assert.Equal(t, FeatureChat, e.Feature)
	assert.Equal(t, int64(1500), e.DurationMs)
	assert.Equal(t, time.UTC, e.Timestamp.Location())
	assert.False(t, e.Succeeded())
}

func TestUsageEntry_Succeeded(t *testing.T) {
	for status, want := range map[int]bool{0: false, 200: true, 399: true, 400: false, 402: false, 500: false} {
		e := &UsageEntry{StatusCode: status}
		assert.Equal(t, want, e.Succeeded(), "status %d", status)
	}
}
