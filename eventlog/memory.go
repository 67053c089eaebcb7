package eventlog

import (
	"context"
	"sync"
)

// MemoryStore implements Store for testing without persistence.
type MemoryStore struct {
	mu     sync.Mutex
	events []*Event
}

// NewMemoryStore creates an in-memory event store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Append stores an event in memory.
func (s *MemoryStore) Append(ctx context.Context, event *Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	event.Seq = uint64(len(s.events)) + 1
	s.events = append(s.events, event)
	return nil
}

// List returns events after afterSeq, at most limit of them.
func (s *MemoryStore) List(ctx context.Context, afterSeq uint64, limit int) ([]*Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Sequence numbers are contiguous from 1, so events with Seq >
	// afterSeq start at index afterSeq.
	if afterSeq >= uint64(len(s.events)) {
		return nil, nil
	}

	remaining := s.events[afterSeq:]
	if limit > 0 && limit < len(remaining) {
		remaining = remaining[:limit]
	}

	result := make([]*Event, len(remaining))
	copy(result, remaining)
	return result, nil
}

// Close is a no-op for the in-memory store.
func (s *MemoryStore) Close() error {
	return nil
}
