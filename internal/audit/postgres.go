package audit

import (
	"context"
	"database/sql"
	"fmt"
)

// Postgres is the durable event log. The table is append-only; events are
// never updated or deleted.
type Postgres struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

func (s *Postgres) Append(ctx context.Context, event Event) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_events (ts, actor, entity_kind, entity_id, action, detail, request_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		event.Timestamp, event.Actor, string(event.EntityKind), event.EntityID,
		string(event.Action), event.Detail, event.RequestID,
	)
	if err != nil {
		return fmt.Errorf("failed to append audit event: %w", err)
	}
	return nil
}

func (s *Postgres) ListByEntity(ctx context.Context, kind EntityKind, entityID string) ([]Event, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT ts, actor, entity_kind, entity_id, action, detail, request_id
		FROM audit_events
		WHERE entity_kind = $1 AND entity_id = $2
		ORDER BY ts, id`,
		string(kind), entityID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit events: %w", err)
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var e Event
		if err := rows.Scan(&e.Timestamp, &e.Actor, &e.EntityKind, &e.EntityID, &e.Action, &e.Detail, &e.RequestID); err != nil {
			return nil, fmt.Errorf("failed to scan audit event: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
