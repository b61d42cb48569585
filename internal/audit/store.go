package audit

import (
	"context"
	"sync"
)

// Store is an append-only event log.
type Store interface {
	Append(ctx context.Context, event Event) error
	ListByEntity(ctx context.Context, kind EntityKind, entityID string) ([]Event, error)
}

// InMemory keeps events in process. Default backend and the test sink.
type InMemory struct {
	mu     sync.RWMutex
	events []Event
}

func NewInMemory() *InMemory {
	return &InMemory{}
}

func (s *InMemory) Append(_ context.Context, event Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

func (s *InMemory) ListByEntity(_ context.Context, kind EntityKind, entityID string) ([]Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Event
	for _, e := range s.events {
		if e.EntityKind == kind && e.EntityID == entityID {
			out = append(out, e)
		}
	}
	return out, nil
}
