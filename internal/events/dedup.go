package events

import (
	"context"
	"sync"
	"time"
)

// defaultDedupTTL is how long a processed message ID is remembered.
const defaultDedupTTL = 24 * time.Hour

// DeduplicationStore tracks processed inbound message IDs so that a
// redelivered email webhook or queue message does not start a second
// pipeline run.
type DeduplicationStore interface {
	// MarkProcessed marks a message as processed.
	MarkProcessed(ctx context.Context, messageID string, runID RunID) error

	// IsProcessed checks if a message has been processed.
	IsProcessed(ctx context.Context, messageID string) (bool, error)

	// Cleanup removes entries older than the given age and returns how
	// many were removed.
	Cleanup(ctx context.Context, olderThan time.Duration) (int, error)

	// Close releases any resources held by the store.
	Close() error
}

// InMemoryDeduplicationStore is the in-memory implementation, used for
// tests and single-instance deployments.
type InMemoryDeduplicationStore struct {
	mu        sync.RWMutex
	entries   map[string]dedupEntry
	ttl       time.Duration
	stopCh    chan struct{}
	stoppedCh chan struct{}
}

type dedupEntry struct {
	runID       RunID
	processedAt time.Time
}

// NewInMemoryDeduplicationStore creates a new in-memory store.
func NewInMemoryDeduplicationStore() *InMemoryDeduplicationStore {
	store := &InMemoryDeduplicationStore{
		entries:   make(map[string]dedupEntry),
		ttl:       defaultDedupTTL,
		stopCh:    make(chan struct{}),
		stoppedCh: make(chan struct{}),
	}
	go store.periodicCleanup()
	return store
}

// MarkProcessed implements DeduplicationStore.
func (s *InMemoryDeduplicationStore) MarkProcessed(_ context.Context, messageID string, runID RunID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[messageID] = dedupEntry{runID: runID, processedAt: time.Now()}
	return nil
}

// IsProcessed implements DeduplicationStore.
func (s *InMemoryDeduplicationStore) IsProcessed(_ context.Context, messageID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.entries[messageID]
	if !ok {
		return false, nil
	}
	return time.Since(entry.processedAt) < s.ttl, nil
}

// Cleanup implements DeduplicationStore.
func (s *InMemoryDeduplicationStore) Cleanup(_ context.Context, olderThan time.Duration) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	cutoff := time.Now().Add(-olderThan)
	for id, entry := range s.entries {
		if entry.processedAt.Before(cutoff) {
			delete(s.entries, id)
			removed++
		}
	}
	return removed, nil
}

// Close stops the cleanup goroutine gracefully.
func (s *InMemoryDeduplicationStore) Close() error {
	close(s.stopCh)
	<-s.stoppedCh
	return nil
}

func (s *InMemoryDeduplicationStore) periodicCleanup() {
	defer close(s.stoppedCh)

	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			_, _ = s.Cleanup(context.Background(), s.ttl)
		}
	}
}
