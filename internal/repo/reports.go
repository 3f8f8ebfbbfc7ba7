package repo

import (
	"context"
	"time"

	"ouvidor/internal/domain"
)

// Read-only aggregates for the reporting collaborator. These never
// participate in lifecycle logic.

func (r Repo) CountManifestationsByStatus(ctx context.Context) (map[domain.Status]int, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT status, COUNT(*) FROM manifestations GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	counts := map[domain.Status]int{}
	for rows.Next() {
		var s domain.Status
		var n int
		if err := rows.Scan(&s, &n); err != nil {
			return nil, err
		}
		counts[s] = n
	}
	return counts, rows.Err()
}

func (r Repo) CountManifestationsByType(ctx context.Context) (map[domain.Type]int, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT type, COUNT(*) FROM manifestations GROUP BY type`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	counts := map[domain.Type]int{}
	for rows.Next() {
		var t domain.Type
		var n int
		if err := rows.Scan(&t, &n); err != nil {
			return nil, err
		}
		counts[t] = n
	}
	return counts, rows.Err()
}

// CountManifestationsByDay buckets creations per calendar day over the last
// `days` days, most recent first.
func (r Repo) CountManifestationsByDay(ctx context.Context, days int, now time.Time) (map[string]int, error) {
	since := now.UTC().AddDate(0, 0, -days).Format(time.RFC3339)
	rows, err := r.DB.QueryContext(ctx, `SELECT substr(created_at,1,10) AS day, COUNT(*)
FROM manifestations WHERE created_at >= ? GROUP BY day ORDER BY day DESC`, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	counts := map[string]int{}
	for rows.Next() {
		var day string
		var n int
		if err := rows.Scan(&day, &n); err != nil {
			return nil, err
		}
		counts[day] = n
	}
	return counts, rows.Err()
}

// CountOverdue counts open manifestations whose deadline already passed.
func (r Repo) CountOverdue(ctx context.Context, now time.Time) (int, error) {
	var n int
	err := r.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM manifestations
WHERE response_deadline IS NOT NULL AND response_deadline < ?
AND status NOT IN ('responded','closed','canceled')`, now.UTC().Format(time.RFC3339)).Scan(&n)
	return n, err
}
