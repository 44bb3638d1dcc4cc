package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// Event types appended by the engine.
const (
	TypeParticipantRegistered = "participant.registered"
	TypeRoleUpdated           = "participant.role_updated"
	TypeMaterialSubmitted     = "material.submitted"
	TypeWasteTransferred      = "waste.transferred"
)

type Writer struct {
	DB *sql.DB
}

type EventPayload map[string]any

// Append records one event inside the caller's transaction. The timestamp is
// passed in so events share the clock of the mutation they describe.
func (w Writer) Append(ctx context.Context, tx *sql.Tx, at time.Time, evtType, entityKind, entityID, actorID string, payload EventPayload) error {
	ts := at.UTC().Format(time.RFC3339)
	if payload == nil {
		payload = EventPayload{}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO events(ts,type,entity_kind,entity_id,actor_id,payload_json) VALUES (?,?,?,?,?,?)`,
		ts, evtType, entityKind, nullable(entityID), actorID, string(data))
	return err
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
