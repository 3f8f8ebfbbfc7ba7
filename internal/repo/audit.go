package repo

import (
	"context"

	"ouvidor/internal/domain"
)

const auditColumns = `id,ts,action,entity_kind,entity_id,actor_id,before_json,after_json`

func (r Repo) scanAuditRows(ctx context.Context, query string, args ...any) ([]domain.AuditEntry, error) {
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.AuditEntry
	for rows.Next() {
		var e domain.AuditEntry
		var entityID, before, after *string
		if err := rows.Scan(&e.ID, &e.TS, &e.Action, &e.EntityKind, &entityID, &e.ActorID, &before, &after); err != nil {
			return nil, err
		}
		if entityID != nil {
			e.EntityID = *entityID
		}
		if before != nil {
			e.Before = *before
		}
		if after != nil {
			e.After = *after
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

// LatestAuditEntries returns the newest n entries, optionally filtered.
func (r Repo) LatestAuditEntries(ctx context.Context, n int, action, entityKind, entityID string) ([]domain.AuditEntry, error) {
	query := `SELECT ` + auditColumns + ` FROM audit_entries WHERE 1=1`
	var args []any
	if action != "" {
		query += ` AND action=?`
		args = append(args, action)
	}
	if entityKind != "" {
		query += ` AND entity_kind=?`
		args = append(args, entityKind)
	}
	if entityID != "" {
		query += ` AND entity_id=?`
		args = append(args, entityID)
	}
	query += ` ORDER BY id DESC LIMIT ?`
	args = append(args, n)
	return r.scanAuditRows(ctx, query, args...)
}

// AuditEntriesAfter returns up to n entries with id greater than cursor,
// oldest first. The webhook forwarder pages with this.
func (r Repo) AuditEntriesAfter(ctx context.Context, n int, cursor int64) ([]domain.AuditEntry, error) {
	return r.scanAuditRows(ctx, `SELECT `+auditColumns+` FROM audit_entries WHERE id>? ORDER BY id ASC LIMIT ?`, cursor, n)
}

func (r Repo) LatestAuditID(ctx context.Context) (int64, error) {
	var id int64
	err := r.DB.QueryRowContext(ctx, `SELECT COALESCE(MAX(id),0) FROM audit_entries`).Scan(&id)
	return id, err
}
