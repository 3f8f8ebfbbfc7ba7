package repo

import (
	"context"
	"database/sql"

	"ouvidor/internal/domain"
)

const planColumns = `id,manifestation_id,title,description,sector_id,responsible_user_id,status,
deadline,started_at,completed_at,notes,created_at,updated_at`

func scanPlan(scan func(dest ...any) error) (domain.ActionPlan, error) {
	var p domain.ActionPlan
	var description, notes sql.NullString
	err := scan(&p.ID, &p.ManifestationID, &p.Title, &description, &p.SectorID, &p.ResponsibleUserID,
		&p.Status, &p.Deadline, &p.StartedAt, &p.CompletedAt, &notes, &p.CreatedAt, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		return p, ErrNotFound
	}
	if err != nil {
		return p, err
	}
	p.Description = description.String
	p.Notes = notes.String
	return p, nil
}

func (r Repo) InsertPlanTx(ctx context.Context, tx *sql.Tx, p domain.ActionPlan) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO action_plans(`+planColumns+`)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		p.ID, p.ManifestationID, p.Title, nullable(p.Description), p.SectorID, p.ResponsibleUserID,
		p.Status, p.Deadline, p.StartedAt, p.CompletedAt, nullable(p.Notes), p.CreatedAt, p.UpdatedAt)
	return err
}

func (r Repo) GetPlan(ctx context.Context, id string) (domain.ActionPlan, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+planColumns+` FROM action_plans WHERE id=?`, id)
	return scanPlan(row.Scan)
}

func (r Repo) GetPlanTx(ctx context.Context, tx *sql.Tx, id string) (domain.ActionPlan, error) {
	row := tx.QueryRowContext(ctx, `SELECT `+planColumns+` FROM action_plans WHERE id=?`, id)
	return scanPlan(row.Scan)
}

// UpdatePlanTx writes the plan guarded by the optimistic token, same
// discipline as manifestations.
func (r Repo) UpdatePlanTx(ctx context.Context, tx *sql.Tx, p domain.ActionPlan, expectedUpdatedAt string) error {
	res, err := tx.ExecContext(ctx, `UPDATE action_plans SET
title=?, description=?, sector_id=?, responsible_user_id=?, status=?,
deadline=?, started_at=?, completed_at=?, notes=?, updated_at=?
WHERE id=? AND updated_at=?`,
		p.Title, nullable(p.Description), p.SectorID, p.ResponsibleUserID, p.Status,
		p.Deadline, p.StartedAt, p.CompletedAt, nullable(p.Notes), p.UpdatedAt,
		p.ID, expectedUpdatedAt)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		var one int
		err := tx.QueryRowContext(ctx, `SELECT 1 FROM action_plans WHERE id=?`, p.ID).Scan(&one)
		if err == sql.ErrNoRows {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		return ErrConflict
	}
	return nil
}

func (r Repo) ListPlans(ctx context.Context, manifestationID string) ([]domain.ActionPlan, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+planColumns+` FROM action_plans
WHERE manifestation_id=? ORDER BY created_at ASC, id ASC`, manifestationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.ActionPlan
	for rows.Next() {
		p, err := scanPlan(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, p)
	}
	return res, rows.Err()
}
