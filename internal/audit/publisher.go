package audit

import (
	"context"
	"time"
)

// Publisher captures structured audit events. It is append-only and uses the
// store for persistence so tests can swap sinks easily. Callers treat Emit
// failures as log-and-continue; the audit trail never blocks a business
// write.
type Publisher struct {
	store Store
	sinks []Sink
}

// Sink receives a copy of every emitted event, typically for shipping to a
// broker. Sink failures do not fail Emit.
type Sink interface {
	Ship(ctx context.Context, event Event) error
}

func NewPublisher(store Store, sinks ...Sink) *Publisher {
	return &Publisher{store: store, sinks: sinks}
}

func (p *Publisher) Emit(ctx context.Context, event Event) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	if err := p.store.Append(ctx, event); err != nil {
		return err
	}
	for _, sink := range p.sinks {
		// best effort, the store append is the source of truth
		_ = sink.Ship(ctx, event)
	}
	return nil
}

// Trail returns the recorded events for one entity, oldest first.
func (p *Publisher) Trail(ctx context.Context, kind EntityKind, entityID string) ([]Event, error) {
	return p.store.ListByEntity(ctx, kind, entityID)
}
