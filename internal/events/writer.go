package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// Writer appends rows to the events audit table.
type Writer struct {
	DB  *sql.DB
	Now func() time.Time
}

// EventPayload holds the event-specific details, stored as JSON.
type EventPayload map[string]any

func (w Writer) timestamp() string {
	now := time.Now
	if w.Now != nil {
		now = w.Now
	}
	return now().UTC().Format(time.RFC3339)
}

// Append writes an audit event through the caller's open transaction, so the
// event commits or rolls back together with the mutation it describes.
func (w Writer) Append(ctx context.Context, tx *sql.Tx, evtType, entityKind, entityID, actorID string, payload EventPayload) error {
	data := []byte("{}")
	if len(payload) > 0 {
		var err error
		if data, err = json.Marshal(payload); err != nil {
			return fmt.Errorf("marshal event payload: %w", err)
		}
	}
	var entity any
	if entityID != "" {
		entity = entityID
	}
	_, err := tx.ExecContext(ctx,
		`INSERT INTO events(ts,type,entity_kind,entity_id,actor_id,payload_json) VALUES (?,?,?,?,?,?)`,
		w.timestamp(), evtType, entityKind, entity, actorID, string(data))
	return err
}
