// Package audit appends the immutable trail of mutating operations.
// Entries are written inside the caller's transaction so a state change
// and its audit record commit or roll back together.
package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

type Recorder struct {
	DB  *sql.DB
	Now func() time.Time
}

// Append writes one audit entry within tx. Before and after are marshaled
// snapshots of the entity; either may be nil.
func (r Recorder) Append(ctx context.Context, tx *sql.Tx, action, entityKind, entityID, actorID string, before, after any) error {
	if r.Now == nil {
		r.Now = time.Now
	}
	ts := r.Now().UTC().Format(time.RFC3339)
	beforeJSON, err := snapshot(before)
	if err != nil {
		return fmt.Errorf("marshal audit before-state: %w", err)
	}
	afterJSON, err := snapshot(after)
	if err != nil {
		return fmt.Errorf("marshal audit after-state: %w", err)
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO audit_entries(ts,action,entity_kind,entity_id,actor_id,before_json,after_json) VALUES (?,?,?,?,?,?,?)`,
		ts, action, entityKind, nullable(entityID), actorID, beforeJSON, afterJSON)
	return err
}

func snapshot(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
