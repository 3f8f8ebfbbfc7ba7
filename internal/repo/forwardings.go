package repo

import (
	"context"
	"database/sql"

	"ouvidor/internal/domain"
)

const forwardingColumns = `id,manifestation_id,origin_sector_id,destination_sector_id,origin_user_id,
destination_user_id,instructions,deadline,status,return_note,returned_at,created_at`

func scanForwarding(scan func(dest ...any) error) (domain.ForwardingRecord, error) {
	var f domain.ForwardingRecord
	var instructions, returnNote sql.NullString
	err := scan(&f.ID, &f.ManifestationID, &f.OriginSectorID, &f.DestinationSector, &f.OriginUserID,
		&f.DestinationUserID, &instructions, &f.Deadline, &f.Status, &returnNote, &f.ReturnedAt, &f.CreatedAt)
	if err == sql.ErrNoRows {
		return f, ErrNotFound
	}
	if err != nil {
		return f, err
	}
	f.Instructions = instructions.String
	f.ReturnNote = returnNote.String
	return f, nil
}

func (r Repo) InsertForwardingTx(ctx context.Context, tx *sql.Tx, f domain.ForwardingRecord) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO forwardings(`+forwardingColumns+`)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?)`,
		f.ID, f.ManifestationID, f.OriginSectorID, f.DestinationSector, f.OriginUserID,
		f.DestinationUserID, nullable(f.Instructions), f.Deadline, f.Status,
		nullable(f.ReturnNote), f.ReturnedAt, f.CreatedAt)
	return err
}

func (r Repo) GetForwarding(ctx context.Context, id string) (domain.ForwardingRecord, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+forwardingColumns+` FROM forwardings WHERE id=?`, id)
	return scanForwarding(row.Scan)
}

func (r Repo) ListForwardings(ctx context.Context, manifestationID string) ([]domain.ForwardingRecord, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+forwardingColumns+` FROM forwardings
WHERE manifestation_id=? ORDER BY created_at ASC, id ASC`, manifestationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.ForwardingRecord
	for rows.Next() {
		f, err := scanForwarding(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, f)
	}
	return res, rows.Err()
}

// LatestOpenForwardingTx returns the newest forwarding that has not yet
// recorded a return, if any.
func (r Repo) LatestOpenForwardingTx(ctx context.Context, tx *sql.Tx, manifestationID string) (domain.ForwardingRecord, error) {
	row := tx.QueryRowContext(ctx, `SELECT `+forwardingColumns+` FROM forwardings
WHERE manifestation_id=? AND returned_at IS NULL ORDER BY created_at DESC, id DESC LIMIT 1`, manifestationID)
	return scanForwarding(row.Scan)
}

// SetForwardingReturnTx records the destination's reply. It is the only
// mutation the forwarding history ever sees.
func (r Repo) SetForwardingReturnTx(ctx context.Context, tx *sql.Tx, id string, status domain.ForwardingStatus, note, returnedAt string) error {
	res, err := tx.ExecContext(ctx, `UPDATE forwardings SET status=?, return_note=?, returned_at=?
WHERE id=? AND returned_at IS NULL`, status, nullable(note), returnedAt, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		var one int
		err := tx.QueryRowContext(ctx, `SELECT 1 FROM forwardings WHERE id=?`, id).Scan(&one)
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
