package repo

import (
	"context"

	"scavenger/internal/domain"
)

// LatestEvents returns up to n events, newest first, with optional filters.
func (r Repo) LatestEvents(ctx context.Context, n int, evtType, entityKind, entityID string) ([]domain.Event, error) {
	query := `SELECT id,ts,type,entity_kind,COALESCE(entity_id,''),actor_id,payload_json FROM events`
	var (
		conds []string
		args  []any
	)
	if evtType != "" {
		conds = append(conds, "type=?")
		args = append(args, evtType)
	}
	if entityKind != "" {
		conds = append(conds, "entity_kind=?")
		args = append(args, entityKind)
	}
	if entityID != "" {
		conds = append(conds, "entity_id=?")
		args = append(args, entityID)
	}
	for i, c := range conds {
		if i == 0 {
			query += " WHERE " + c
		} else {
			query += " AND " + c
		}
	}
	query += ` ORDER BY id DESC LIMIT ?`
	args = append(args, n)
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Event
	for rows.Next() {
		var e domain.Event
		if err := rows.Scan(&e.ID, &e.TS, &e.Type, &e.EntityKind, &e.EntityID, &e.ActorID, &e.Payload); err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

// EventsAfter returns up to n events with id greater than cursor, oldest first.
func (r Repo) EventsAfter(ctx context.Context, n int, cursor int64) ([]domain.Event, error) {
	rows, err := r.DB.QueryContext(ctx,
		`SELECT id,ts,type,entity_kind,COALESCE(entity_id,''),actor_id,payload_json FROM events WHERE id>? ORDER BY id LIMIT ?`,
		cursor, n)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Event
	for rows.Next() {
		var e domain.Event
		if err := rows.Scan(&e.ID, &e.TS, &e.Type, &e.EntityKind, &e.EntityID, &e.ActorID, &e.Payload); err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

// LatestEventID returns the highest event id, 0 when the log is empty.
func (r Repo) LatestEventID(ctx context.Context) (int64, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT COALESCE(MAX(id),0) FROM events`)
	var id int64
	err := row.Scan(&id)
	return id, err
}
