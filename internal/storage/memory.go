package storage

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// memoryRetention bounds both in-memory logs; the oldest entries are
// evicted first.
const memoryRetention = 1000

// MemoryStore is a bounded in-memory Store for deployments without a
// database.
type MemoryStore struct {
	mu     sync.Mutex
	events []*EventLog
	frames []*FrameLog
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// CreateEventLog records an event, evicting the oldest past retention.
func (s *MemoryStore) CreateEventLog(_ context.Context, event *EventLog) error {
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	if len(s.events) > memoryRetention {
		s.events = s.events[len(s.events)-memoryRetention:]
	}
	return nil
}

// ListEventLogs lists events, newest first.
func (s *MemoryStore) ListEventLogs(_ context.Context, limit, offset int) ([]*EventLog, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := pageNewestFirst(s.events, limit, offset)
	return out, int64(len(s.events)), nil
}

// CreateFrameLog records a frame, evicting the oldest past retention.
func (s *MemoryStore) CreateFrameLog(_ context.Context, frame *FrameLog) error {
	if frame.ID == uuid.Nil {
		frame.ID = uuid.New()
	}
	if frame.CreatedAt.IsZero() {
		frame.CreatedAt = time.Now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.frames = append(s.frames, frame)
	if len(s.frames) > memoryRetention {
		s.frames = s.frames[len(s.frames)-memoryRetention:]
	}
	return nil
}

// ListFrameLogs lists frames, newest first.
func (s *MemoryStore) ListFrameLogs(_ context.Context, limit, offset int) ([]*FrameLog, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := pageNewestFirst(s.frames, limit, offset)
	return out, int64(len(s.frames)), nil
}

// Close is a no-op for the in-memory store.
func (s *MemoryStore) Close() error { return nil }

func pageNewestFirst[T any](items []*T, limit, offset int) []*T {
	if limit <= 0 {
		limit = 50
	}
	var out []*T
	for i := len(items) - 1 - offset; i >= 0 && len(out) < limit; i-- {
		out = append(out, items[i])
	}
	return out
}
